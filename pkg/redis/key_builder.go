package redis

import "strings"

// KeyBuilder builds Redis keys according to the service naming convention:
// namespace:entity[:attribute].
type KeyBuilder struct {
	namespace string
}

// NewKeyBuilder creates a new KeyBuilder with the given namespace.
func NewKeyBuilder(namespace string) *KeyBuilder {
	return &KeyBuilder{namespace: strings.ToLower(namespace)}
}

// Build creates a Redis key following the naming convention.
func (kb *KeyBuilder) Build(entity, attribute string) string {
	parts := []string{kb.namespace, strings.ToLower(entity)}
	if attribute != "" {
		parts = append(parts, attribute)
	}
	return strings.Join(parts, ":")
}

// BuildPattern creates a Redis key pattern for SCAN matching.
func (kb *KeyBuilder) BuildPattern(entity, pattern string) string {
	if pattern == "" {
		pattern = "*"
	}
	return strings.Join([]string{kb.namespace, strings.ToLower(entity), pattern}, ":")
}
