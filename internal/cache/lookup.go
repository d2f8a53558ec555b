package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/partcli/internal/models"
)

// DefaultMaxAge is how long a cached model record stays usable.
const DefaultMaxAge = 24 * time.Hour

// Fetcher is the remote surface the caching lookup wraps.
type Fetcher interface {
	Model(ctx context.Context, id uuid.UUID) (*models.Model, error)
	AssemblyTree(ctx context.Context, id uuid.UUID) (*models.AssemblyTreeNode, error)
}

// Lookup serves model records from the store when possible and falls back to
// the remote client. Assembly trees always pass through: structure changes
// more often than identity. A cached record can lag the remote state by up to
// maxAge, including models deleted remotely; callers wanting current state
// pass a nil store. It satisfies the resolver's lookup surface.
type Lookup struct {
	client Fetcher
	store  *Store
	tenant string
	maxAge time.Duration
	logger *zap.Logger
}

// NewLookup wraps client with the store. A nil store disables caching.
func NewLookup(client Fetcher, store *Store, tenant string, logger *zap.Logger) *Lookup {
	return &Lookup{client: client, store: store, tenant: tenant, maxAge: DefaultMaxAge, logger: logger}
}

// Model returns a model record, preferring the cache. Cache problems degrade
// to remote fetches, never to errors.
func (l *Lookup) Model(ctx context.Context, id uuid.UUID) (*models.Model, error) {
	if l.store != nil {
		m, ok, err := l.store.Get(ctx, l.tenant, id, l.maxAge)
		if err != nil && l.logger != nil {
			l.logger.Warn("cache read failed", zap.String("model", id.String()), zap.Error(err))
		}
		if ok {
			return m, nil
		}
	}
	m, err := l.client.Model(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.store != nil {
		if err := l.store.Put(ctx, l.tenant, m); err != nil && l.logger != nil {
			l.logger.Warn("cache write failed", zap.String("model", id.String()), zap.Error(err))
		}
	}
	return m, nil
}

// AssemblyTree passes through to the remote client.
func (l *Lookup) AssemblyTree(ctx context.Context, id uuid.UUID) (*models.AssemblyTreeNode, error) {
	return l.client.AssemblyTree(ctx, id)
}
