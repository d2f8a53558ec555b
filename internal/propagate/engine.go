// Package propagate assigns metadata labels to models based on their
// highest-confidence geometric matches. One invocation is one pass: decisions
// are computed against a metadata snapshot taken before any mutation, so a
// pass never observes its own writes. Converging a whole folder may require
// re-running.
package propagate

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/partcli/internal/models"
)

// ErrAllModelsFailed means every model in scope failed with an error, either
// during evaluation or during mutation.
var ErrAllModelsFailed = errors.New("label propagation failed for every model")

// Client is the remote surface the engine needs.
type Client interface {
	Models(ctx context.Context, folderIDs []uint32, search string) ([]models.Model, error)
	Matches(ctx context.Context, id uuid.UUID, threshold float64) ([]models.ModelMatch, error)
	ModelMetadata(ctx context.Context, id uuid.UUID) ([]models.Property, error)
	SetProperty(ctx context.Context, id uuid.UUID, name, value string) (models.Property, error)
	DeleteProperty(ctx context.Context, id uuid.UUID, name string) error
}

// Outcome classifies what happened to one model during a pass.
type Outcome string

const (
	// OutcomeAssigned means the property was set from match evidence.
	OutcomeAssigned Outcome = "assigned"
	// OutcomeDeleted means the existing property was removed because no
	// candidate carried it.
	OutcomeDeleted Outcome = "deleted"
	// OutcomeUnchanged means no mutation was needed.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeSkipped means the model could not be evaluated.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed means the decided mutation could not be applied.
	OutcomeFailed Outcome = "failed"
)

// ModelOutcome is the per-model line of a propagation report.
type ModelOutcome struct {
	ModelUUID  uuid.UUID `json:"modelUuid"`
	ModelName  string    `json:"modelName"`
	Outcome    Outcome   `json:"outcome"`
	Value      string    `json:"value,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// Report summarizes one propagation pass. Outcomes follow scope listing order.
type Report struct {
	Property  string         `json:"property"`
	Threshold float64        `json:"threshold"`
	DryRun    bool           `json:"dryRun"`
	Outcomes  []ModelOutcome `json:"outcomes"`
	Assigned  int            `json:"assigned"`
	Deleted   int            `json:"deleted"`
	Unchanged int            `json:"unchanged"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
}

// Engine runs label propagation passes.
type Engine struct {
	client    Client
	property  string
	threshold float64
	exclusive bool
	dryRun    bool
	jobs      int
	logger    *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithJobs bounds concurrent evaluation.
func WithJobs(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.jobs = n
		}
	}
}

// WithLogger sets a logger for per-model warnings.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithExclusive restricts match evidence to candidates inside the scope folders.
func WithExclusive(on bool) EngineOption {
	return func(e *Engine) { e.exclusive = on }
}

// WithDryRun computes decisions without applying any mutation.
func WithDryRun(on bool) EngineOption {
	return func(e *Engine) { e.dryRun = on }
}

// NewEngine creates an engine propagating the named property. threshold is
// the inclusive minimum match score.
func NewEngine(client Client, property string, threshold float64, opts ...EngineOption) *Engine {
	e := &Engine{client: client, property: property, threshold: threshold, jobs: 4}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// decision is the computed action for one model, before mutation. errored
// marks skips caused by query failures as opposed to benign ones.
type decision struct {
	outcome    Outcome
	value      string
	confidence float64
	reason     string
	errored    bool
}

// metaCache memoizes metadata lookups across workers so a candidate shared by
// many models is fetched once.
type metaCache struct {
	client Client
	mu     sync.Mutex
	data   map[uuid.UUID]map[string]string
	errs   map[uuid.UUID]error
}

func (c *metaCache) get(ctx context.Context, id uuid.UUID) (map[string]string, error) {
	c.mu.Lock()
	if m, ok := c.data[id]; ok {
		c.mu.Unlock()
		return m, nil
	}
	if err, ok := c.errs[id]; ok {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	props, err := c.client.ModelMetadata(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.errs[id] = err
		return nil, err
	}
	m := models.PropertyMap(props)
	if m == nil {
		m = map[string]string{}
	}
	c.data[id] = m
	return m, nil
}

// Propagate runs one pass over the models of the given folders, optionally
// narrowed by a search term. Per-model problems are recorded in the report
// and never abort the pass; an error is returned only when listing the scope
// fails or every model fails.
func (e *Engine) Propagate(ctx context.Context, folderIDs []uint32, search string) (*Report, error) {
	scope, err := e.client.Models(ctx, folderIDs, search)
	if err != nil {
		return nil, err
	}
	inScope := make(map[uint32]bool, len(folderIDs))
	for _, id := range folderIDs {
		inScope[id] = true
	}

	cache := &metaCache{
		client: e.client,
		data:   make(map[uuid.UUID]map[string]string),
		errs:   make(map[uuid.UUID]error),
	}

	// Phase one: evaluate every model against the pre-mutation snapshot.
	decisions := make([]decision, len(scope))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(e.jobs)
	for i := range scope {
		i := i
		m := scope[i]
		group.Go(func() error {
			decisions[i] = e.evaluate(gctx, m, inScope, cache)
			return nil
		})
	}
	_ = group.Wait()

	// Phase two: apply mutations in scope order.
	report := &Report{Property: e.property, Threshold: e.threshold, DryRun: e.dryRun}
	errored := 0
	for i, m := range scope {
		d := decisions[i]
		if !e.dryRun {
			d = e.apply(ctx, m, d)
		}
		out := ModelOutcome{
			ModelUUID:  m.UUID,
			ModelName:  m.Name,
			Outcome:    d.outcome,
			Value:      d.value,
			Confidence: d.confidence,
			Reason:     d.reason,
		}
		report.Outcomes = append(report.Outcomes, out)
		switch d.outcome {
		case OutcomeAssigned:
			report.Assigned++
		case OutcomeDeleted:
			report.Deleted++
		case OutcomeUnchanged:
			report.Unchanged++
		case OutcomeSkipped:
			report.Skipped++
		case OutcomeFailed:
			report.Failed++
		}
		if d.errored || d.outcome == OutcomeFailed {
			errored++
		}
	}

	if len(scope) > 0 && errored == len(scope) {
		return report, ErrAllModelsFailed
	}
	return report, nil
}

// evaluate computes the decision for one model without mutating anything.
func (e *Engine) evaluate(ctx context.Context, m models.Model, inScope map[uint32]bool, cache *metaCache) decision {
	if !m.Ready() {
		return decision{outcome: OutcomeSkipped, reason: "model not finished"}
	}

	meta, err := cache.get(ctx, m.UUID)
	if err != nil {
		e.warnf(m, "metadata read failed", err)
		return decision{outcome: OutcomeSkipped, reason: "metadata read failed: " + err.Error(), errored: true}
	}
	current, hasCurrent := meta[e.property]
	if current == "" {
		hasCurrent = false
	}

	matches, err := e.client.Matches(ctx, m.UUID, e.threshold)
	if err != nil {
		e.warnf(m, "match query failed", err)
		return decision{outcome: OutcomeSkipped, reason: "match query failed: " + err.Error(), errored: true}
	}

	candidates := e.rank(m, matches, inScope)

	// First candidate carrying a non-empty value supplies the evidence.
	var evidence *struct {
		value string
		score float64
	}
	for _, c := range candidates {
		cm, err := cache.get(ctx, c.MatchedModel.UUID)
		if err != nil {
			continue
		}
		if v := cm[e.property]; v != "" {
			evidence = &struct {
				value string
				score float64
			}{value: v, score: c.MatchPercentage}
			break
		}
	}

	switch {
	case evidence == nil && hasCurrent:
		// No candidate carries the property: the existing label has lost
		// its evidence and is removed.
		return decision{outcome: OutcomeDeleted, value: current, reason: "no match carries the property"}
	case evidence == nil:
		return decision{outcome: OutcomeUnchanged, reason: "no evidence"}
	case hasCurrent && current == evidence.value:
		return decision{outcome: OutcomeUnchanged, value: current, confidence: 1.0}
	case hasCurrent:
		// An existing label is authoritative within the pass.
		return decision{
			outcome:    OutcomeUnchanged,
			value:      current,
			confidence: 1.0,
			reason:     "existing value kept over " + evidence.value,
		}
	default:
		return decision{outcome: OutcomeAssigned, value: evidence.value, confidence: evidence.score}
	}
}

// rank filters and orders match candidates: self-matches and sub-threshold
// scores are dropped, exclusive mode drops candidates outside the scope
// folders, and ties on score break toward the lexicographically smallest
// candidate UUID so a pass is deterministic.
func (e *Engine) rank(m models.Model, matches []models.ModelMatch, inScope map[uint32]bool) []models.ModelMatch {
	var out []models.ModelMatch
	for _, c := range matches {
		if c.MatchedModel.UUID == m.UUID {
			continue
		}
		if c.MatchPercentage < e.threshold {
			continue
		}
		if e.exclusive && !inScope[c.MatchedModel.FolderID] {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MatchPercentage != out[j].MatchPercentage {
			return out[i].MatchPercentage > out[j].MatchPercentage
		}
		return strings.Compare(out[i].MatchedModel.UUID.String(), out[j].MatchedModel.UUID.String()) < 0
	})
	return out
}

// apply performs the mutation a decision calls for. Mutation failures become
// failed outcomes; the pass continues.
func (e *Engine) apply(ctx context.Context, m models.Model, d decision) decision {
	switch d.outcome {
	case OutcomeAssigned:
		if _, err := e.client.SetProperty(ctx, m.UUID, e.property, d.value); err != nil {
			e.warnf(m, "property write failed", err)
			return decision{outcome: OutcomeFailed, value: d.value, reason: "property write failed: " + err.Error()}
		}
	case OutcomeDeleted:
		if err := e.client.DeleteProperty(ctx, m.UUID, e.property); err != nil {
			e.warnf(m, "property delete failed", err)
			return decision{outcome: OutcomeFailed, value: d.value, reason: "property delete failed: " + err.Error()}
		}
	}
	return d
}

func (e *Engine) warnf(m models.Model, msg string, err error) {
	if e.logger != nil {
		e.logger.Warn(msg, zap.String("model", m.UUID.String()), zap.String("name", m.Name), zap.Error(err))
	}
}
