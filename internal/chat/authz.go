package chat

import (
	"context"
	"fmt"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Gate is the authorization predicate: two users may chat iff they
// currently share a connection edge. The check is re-evaluated on every
// join and every send, never cached for the session's lifetime, so a
// revoked connection stops accepting sends immediately. The graph lookup
// sits behind a circuit breaker; an open breaker denies (fail closed).
type Gate struct {
	graph   SocialGraph
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
	metrics *Metrics
}

// NewGate wraps graph.
func NewGate(graph SocialGraph, log *zap.Logger, metrics *Metrics) *Gate {
	log = log.With(zap.String("module", "authz"))
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "social-graph",
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Gate{graph: graph, breaker: breaker, log: log, metrics: metrics}
}

// Authorized reports whether a and b currently share a connection edge.
// Any lookup failure denies.
func (g *Gate) Authorized(ctx context.Context, a, b int64) (bool, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.graph.Connected(ctx, a, b)
	})
	if err != nil {
		g.metrics.AuthDenials.Inc()
		return false, fmt.Errorf("authorization lookup: %w", err)
	}
	ok, _ := result.(bool)
	if !ok {
		g.metrics.AuthDenials.Inc()
	}
	return ok, nil
}
