package eval

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mvaleed/acs/internal/domain"
	"github.com/mvaleed/acs/internal/obs"
)

// entityGraph is the slice of *graph.Graph the evaluator depends on. It is
// declared here, not imported as a concrete type, so evaluator tests can
// supply a fake graph without constructing a real one.
type entityGraph interface {
	GetEntity(id int64) (domain.Entity, error)
	Ancestors(root int64) []domain.Entity
	Descendants(root int64) []int64
}

// Evaluator is the Permission Evaluator (spec §4.B).
type Evaluator struct {
	graph    entityGraph
	cache    *decisionCache
	strategy Strategy
	logger   *obs.Logger
}

// Config configures an Evaluator.
type Config struct {
	Strategy Strategy
	CacheTTL time.Duration
	CacheMax int
	Logger   *obs.Logger
}

func New(g entityGraph, cfg Config) *Evaluator {
	logger := cfg.Logger
	if logger == nil {
		logger = obs.NewNop()
	}
	return &Evaluator{
		graph:    g,
		cache:    newDecisionCache(cfg.CacheTTL, cfg.CacheMax),
		strategy: cfg.Strategy.normalized(),
		logger:   logger,
	}
}

// Strategy reports the active conflict-resolution strategy.
func (e *Evaluator) Strategy() Strategy { return e.strategy }

// SetStrategy changes the process-wide conflict-resolution strategy. It
// does not invalidate the cache: cached decisions were computed under the
// prior strategy and remain valid until their TTL expires, same as any
// other cache entry (spec §4.B says strategy is "configurable,
// process-wide" but does not require eager recomputation on change).
func (e *Evaluator) SetStrategy(s Strategy) { e.strategy = s.normalized() }

// InvalidateEntity drops cached decisions for entityID and every
// descendant of it (spec §4.B cache-invalidation clause). Callers pass
// the descendant ids already resolved via the graph since the dispatcher,
// not the evaluator, knows when a mutation landed.
func (e *Evaluator) InvalidateEntity(entityID int64, descendants []int64) {
	ids := append([]int64{entityID}, descendants...)
	e.cache.invalidateEntities(ids...)
}

// Evaluate implements the resolution algorithm of spec §4.B.
func (e *Evaluator) Evaluate(entityID int64, uri string, verb domain.Verb, evalCtx *EvalContext) (Decision, error) {
	start := time.Now()

	if _, err := e.graph.GetEntity(entityID); err != nil {
		return Decision{}, err
	}

	key := cacheKey{EntityID: entityID, URI: uri, Verb: verb}
	now := time.Now().UTC()
	if evalCtx == nil {
		if cached, ok := e.cache.get(key, now); ok {
			cached.FromCache = true
			return cached, nil
		}
	}

	sources, err := e.collectSources(entityID)
	if err != nil {
		return Decision{}, err
	}

	filtered := e.filter(sources, uri, verb, evalCtx)

	d := Decision{EvaluationTime: time.Since(start)}
	if len(filtered) == 0 {
		d.Allowed = false
		d.Reason = "no matching permission"
		if evalCtx == nil {
			e.cache.put(key, d, now)
		}
		return d, nil
	}

	perms := make([]domain.Permission, len(filtered))
	for i, s := range filtered {
		perms[i] = s.Permission
	}
	effective := resolve(e.strategy, perms)

	d.Allowed = effective.Grant && !effective.Deny
	d.Sources = filtered
	d.AppliedPermissions = []domain.Permission{effective}
	if d.Allowed {
		d.Reason = fmt.Sprintf("granted by permission %d", effective.ID)
	} else {
		d.Reason = fmt.Sprintf("denied by permission %d", effective.ID)
	}

	if evalCtx == nil {
		e.cache.put(key, d, now)
	}
	e.logDecision(entityID, uri, verb, d)
	return d, nil
}

// Check is a convenience wrapper returning only the boolean allowed,
// matching the CheckPermission command surface (spec §6).
func (e *Evaluator) Check(entityID int64, uri string, verb domain.Verb) (bool, error) {
	d, err := e.Evaluate(entityID, uri, verb, nil)
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

// collectSources walks entityID and every ancestor (BFS via
// entityGraph.Ancestors, which already de-duplicates diamond inheritance)
// and returns one Source per permission found, self first.
func (e *Evaluator) collectSources(entityID int64) ([]Source, error) {
	self, err := e.graph.GetEntity(entityID)
	if err != nil {
		return nil, err
	}

	var out []Source
	for _, p := range self.Core().PermissionList() {
		out = append(out, Source{EntityID: entityID, EntityKind: self.EntityKind(), Permission: p})
	}

	for _, ancestor := range e.graph.Ancestors(entityID) {
		for _, p := range ancestor.Core().PermissionList() {
			out = append(out, Source{EntityID: ancestor.EntityID(), EntityKind: ancestor.EntityKind(), Permission: p})
		}
	}
	return out, nil
}

func (e *Evaluator) filter(sources []Source, uri string, verb domain.Verb, evalCtx *EvalContext) []Source {
	var out []Source
	for _, s := range sources {
		p := s.Permission
		if p.Verb != verb {
			continue
		}
		if !matchURI(p.URI, uri) {
			continue
		}
		if p.IsConditional() {
			if evalCtx == nil || !p.Condition.Evaluate(evalCtx.Attributes) {
				continue
			}
		}
		if p.IsTemporary() {
			at := time.Now().UTC()
			if evalCtx != nil {
				at = evalCtx.now()
			}
			if !p.ValidAt(at) {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

func (e *Evaluator) logDecision(entityID int64, uri string, verb domain.Verb, d Decision) {
	e.logger.Debug("evaluated permission",
		zap.Int64("entity_id", entityID),
		zap.String("uri", uri),
		zap.String("verb", string(verb)),
		zap.Bool("allowed", d.Allowed),
		zap.Bool("from_cache", d.FromCache),
	)
}
