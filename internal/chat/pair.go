package chat

import "fmt"

// PairKey maps an unordered user-id pair to its canonical key. The same key
// addresses both the room and the cache entry, so either participant
// resolves the same conversation regardless of who initiated it.
func PairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("room_%d_%d", a, b)
}
