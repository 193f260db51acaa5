package chat

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/linkhub/chat-service/pkg/json"
)

// historyEntity is the cache entity name; full keys look like
// chat:history:room_2_5.
const historyEntity = "history"

// KV is the minimal key-value surface the conversation cache needs from
// its backend. Entries carry no TTL: correctness depends entirely on the
// invalidation protocol, never on expiry.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// ConversationCache is a read-through cache of ordered conversation
// history keyed by canonical pair key.
//
// Accepted race: a read-through population can interleave with a
// concurrent append+invalidate for the same key and briefly repopulate a
// snapshot taken before the append. The window is bounded and
// self-healing: the next append's unconditional invalidation evicts it.
// Closing it would need cross-operation locking between the store and the
// cache, which this design deliberately avoids.
type ConversationCache struct {
	kv      KV
	store   MessageStore
	keys    Keyspace
	log     *zap.Logger
	metrics *Metrics
}

// Keyspace builds the backend keys and scan patterns for cache entries.
type Keyspace interface {
	Build(entity, attribute string) string
	BuildPattern(entity, pattern string) string
}

// NewConversationCache wires the cache in front of store.
func NewConversationCache(kv KV, store MessageStore, keys Keyspace, log *zap.Logger, metrics *Metrics) *ConversationCache {
	return &ConversationCache{
		kv:      kv,
		store:   store,
		keys:    keys,
		log:     log.With(zap.String("module", "conversation_cache")),
		metrics: metrics,
	}
}

// History returns the full ordered history for the pair (a, b),
// reading through to the message store on a miss and populating the
// cache before returning.
func (c *ConversationCache) History(ctx context.Context, a, b int64) ([]Message, error) {
	key := c.keys.Build(historyEntity, PairKey(a, b))

	data, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		// A broken cache backend must not take down reads; fall through
		// to the store.
		c.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}
	if ok && err == nil {
		var msgs []Message
		if err := json.Unmarshal(data, &msgs); err == nil {
			c.metrics.CacheHits.Inc()
			return msgs, nil
		}
		c.log.Warn("corrupt cache entry, refetching", zap.String("key", key))
	}
	c.metrics.CacheMisses.Inc()

	msgs, err := c.store.History(ctx, a, b)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}

	data, err = json.Marshal(msgs)
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}
	if err := c.kv.Set(ctx, key, data); err != nil {
		c.log.Warn("cache populate failed", zap.String("key", key), zap.Error(err))
	}
	return msgs, nil
}

// Invalidate unconditionally evicts the entry for pairKey.
func (c *ConversationCache) Invalidate(ctx context.Context, pairKey string) error {
	key := c.keys.Build(historyEntity, pairKey)
	if err := c.kv.Del(ctx, key); err != nil {
		c.log.Error("cache invalidation failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("invalidate %s: %w", pairKey, err)
	}
	return nil
}

// InvalidateAllForUser evicts every entry whose pair contains id. Used when
// denormalized sender metadata embedded in cached history changes, e.g. a
// display-name or avatar update.
func (c *ConversationCache) InvalidateAllForUser(ctx context.Context, id int64) error {
	patterns := []string{
		c.keys.BuildPattern(historyEntity, fmt.Sprintf("room_%d_*", id)),
		c.keys.BuildPattern(historyEntity, fmt.Sprintf("room_*_%d", id)),
	}

	var stale []string
	for _, pattern := range patterns {
		keys, err := c.kv.Keys(ctx, pattern)
		if err != nil {
			return fmt.Errorf("scan %s: %w", pattern, err)
		}
		stale = append(stale, keys...)
	}
	if len(stale) == 0 {
		return nil
	}
	if err := c.kv.Del(ctx, stale...); err != nil {
		return fmt.Errorf("invalidate entries for user %d: %w", id, err)
	}
	c.log.Info("invalidated user entries", zap.Int64("user_id", id), zap.Int("count", len(stale)))
	return nil
}
