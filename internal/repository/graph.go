package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// GraphRepository reads the connection-edge table owned by the external
// connection service. Edge creation writes two rows at acceptance time,
// but the pair of inserts is not known to be atomic, so the predicate is
// a symmetric OR: either stored direction is a valid witness.
type GraphRepository struct {
	*BaseRepository
}

// NewGraphRepository creates a social-graph oracle over db.
func NewGraphRepository(db *sql.DB, log *zap.Logger) *GraphRepository {
	return &GraphRepository{
		BaseRepository: NewBaseRepository(db, log.With(zap.String("module", "graph_repository"))),
	}
}

// Connected reports whether a connection edge currently exists between a
// and b.
func (r *GraphRepository) Connected(ctx context.Context, a, b int64) (bool, error) {
	var exists bool
	err := r.DB().QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM connection_edges
			WHERE (from_id = $1 AND to_id = $2)
			   OR (from_id = $2 AND to_id = $1)
		)`,
		a, b,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup connection edge: %w", err)
	}
	return exists, nil
}
