package matchgraph

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/partcli/internal/assembly"
	"github.com/hyperjump/partcli/internal/models"
)

// ErrAllQueriesFailed means no match query in a build succeeded. Individual
// failures are recoverable; a fully failed build is not.
var ErrAllQueriesFailed = errors.New("all match queries failed")

// MatchSource is the remote surface the builder needs.
type MatchSource interface {
	Matches(ctx context.Context, id uuid.UUID, threshold float64) ([]models.ModelMatch, error)
	ModelMetadata(ctx context.Context, id uuid.UUID) ([]models.Property, error)
}

// QueryFailure records one model whose match query failed and was skipped.
type QueryFailure struct {
	ModelID uuid.UUID
	Err     error
}

// Result is a completed build: the graph plus the failures that were skipped
// along the way.
type Result struct {
	Graph    *Graph
	Failures []QueryFailure
}

// Builder runs match queries for every part of a set of assemblies and
// accumulates the results into one graph.
type Builder struct {
	client      MatchSource
	folders     models.FolderList
	threshold   float64
	jobs        int
	includeMeta bool
	logger      *zap.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithJobs bounds concurrent match queries.
func WithJobs(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.jobs = n
		}
	}
}

// WithLogger sets a logger for skipped-query warnings.
func WithLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// WithFolders supplies the tenant folder list so matched models outside the
// assemblies carry folder names.
func WithFolders(folders models.FolderList) BuilderOption {
	return func(b *Builder) { b.folders = folders }
}

// WithMetadata attaches source model metadata to graph nodes and report rows.
func WithMetadata(include bool) BuilderOption {
	return func(b *Builder) { b.includeMeta = include }
}

// NewBuilder creates a builder. threshold is the inclusive minimum match
// score, a fraction in [0, 1].
func NewBuilder(client MatchSource, threshold float64, opts ...BuilderOption) *Builder {
	b := &Builder{client: client, threshold: threshold, jobs: 4}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// queryResult is one worker's output. Workers never touch the graph; all
// mutation happens on the coordinating goroutine after the group finishes,
// in traversal order, so indices never depend on query completion order.
type queryResult struct {
	matches []models.ModelMatch
	meta    map[string]string
	err     error
}

// Build flattens the given assembly trees, assigns graph indices in
// traversal order, and fans out one match query per resolved part. Stub
// nodes join the graph but are never queried. Failed queries are recorded
// and skipped; only a build where every query fails returns an error.
func (b *Builder) Build(ctx context.Context, roots []*assembly.Node) (*Result, error) {
	var refs []*assembly.Node
	seen := make(map[uuid.UUID]bool)
	for _, root := range roots {
		for _, n := range assembly.Flatten(root) {
			if !seen[n.UUID] {
				seen[n.UUID] = true
				refs = append(refs, n)
			}
		}
	}

	g := NewGraph()
	for _, ref := range refs {
		g.Insert(ref.UUID, ref.Name, ref.FolderName, ref.Unresolved)
	}

	results := make([]queryResult, len(refs))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(b.jobs)
	for i, ref := range refs {
		if ref.Unresolved {
			continue
		}
		i, ref := i, ref
		group.Go(func() error {
			matches, err := b.client.Matches(gctx, ref.UUID, b.threshold)
			if err != nil {
				results[i].err = err
				return nil
			}
			results[i].matches = matches
			if b.includeMeta {
				props, err := b.client.ModelMetadata(gctx, ref.UUID)
				if err == nil {
					results[i].meta = models.PropertyMap(props)
				} else if b.logger != nil {
					b.logger.Warn("metadata fetch failed",
						zap.String("model", ref.UUID.String()), zap.Error(err))
				}
			}
			return nil
		})
	}
	_ = group.Wait()

	res := &Result{Graph: g}
	queried, failed := 0, 0
	for i, ref := range refs {
		if ref.Unresolved {
			continue
		}
		queried++
		if results[i].err != nil {
			failed++
			res.Failures = append(res.Failures, QueryFailure{ModelID: ref.UUID, Err: results[i].err})
			if b.logger != nil {
				b.logger.Warn("match query failed, model skipped",
					zap.String("model", ref.UUID.String()), zap.Error(results[i].err))
			}
			continue
		}
		if n, ok := g.Node(ref.UUID); ok {
			n.Metadata = results[i].meta
		}
		for _, m := range results[i].matches {
			if m.MatchedModel.UUID == ref.UUID {
				continue
			}
			if m.MatchPercentage < b.threshold {
				continue
			}
			folder := m.MatchedModel.FolderName
			if folder == "" {
				folder = b.folders.NameOf(m.MatchedModel.FolderID)
			}
			g.Insert(m.MatchedModel.UUID, m.MatchedModel.Name, folder, false)
			g.AddEdge(ref.UUID, m.MatchedModel.UUID, m.MatchPercentage, m.ReverseMatchPercentage)
		}
	}

	if queried > 0 && failed == queried {
		return nil, fmt.Errorf("%w: %d models", ErrAllQueriesFailed, failed)
	}
	return res, nil
}
