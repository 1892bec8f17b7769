package eval

import (
	"sort"

	"github.com/mvaleed/acs/internal/domain"
)

// EffectivePermission is one row of an effective-permissions listing:
// the permission plus the entity that actually contributes it.
type EffectivePermission struct {
	Permission domain.Permission
	SourceID   int64
	SourceKind domain.Kind
}

// EffectivePermissions lists every permission reachable by entityID
// (direct plus inherited), without conflict resolution collapsing them —
// useful for audit/reporting rather than a single allow/deny answer.
func (e *Evaluator) EffectivePermissions(entityID int64) ([]EffectivePermission, error) {
	sources, err := e.collectSources(entityID)
	if err != nil {
		return nil, err
	}
	out := make([]EffectivePermission, 0, len(sources))
	for _, s := range sources {
		out = append(out, EffectivePermission{Permission: s.Permission, SourceID: s.EntityID, SourceKind: s.EntityKind})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Permission.ID < out[j].Permission.ID })
	return out, nil
}

// MatrixCell is one (entity, resource, verb) cell of a permission matrix.
type MatrixCell struct {
	EntityID int64
	URI      string
	Verb     domain.Verb
	Allowed  bool
}

// PermissionMatrix evaluates every (entity × resource × verb) combination
// requested, in deterministic order.
func (e *Evaluator) PermissionMatrix(entityIDs []int64, uris []string, verbs []domain.Verb) ([]MatrixCell, error) {
	var out []MatrixCell
	for _, id := range entityIDs {
		for _, uri := range uris {
			for _, verb := range verbs {
				d, err := e.Evaluate(id, uri, verb, nil)
				if err != nil {
					return nil, err
				}
				out = append(out, MatrixCell{EntityID: id, URI: uri, Verb: verb, Allowed: d.Allowed})
			}
		}
	}
	return out, nil
}

// ConflictReport describes a (uri, verb) candidate set on entityID that
// contained both a grant and a deny opinion before resolution.
type ConflictReport struct {
	EntityID int64
	URI      string
	Verb     domain.Verb
	Grants   []domain.Permission
	Denies   []domain.Permission
}

// Conflicts reports every URI/verb pair reachable by entityID where the
// candidate set contains both grant and deny opinions.
func (e *Evaluator) Conflicts(entityID int64) ([]ConflictReport, error) {
	sources, err := e.collectSources(entityID)
	if err != nil {
		return nil, err
	}

	byKey := make(map[domain.PermKey][]domain.Permission)
	for _, s := range sources {
		k := s.Permission.Key()
		byKey[k] = append(byKey[k], s.Permission)
	}

	var reports []ConflictReport
	for key, perms := range byKey {
		var grants, denies []domain.Permission
		for _, p := range perms {
			if p.Grant {
				grants = append(grants, p)
			}
			if p.Deny {
				denies = append(denies, p)
			}
		}
		if len(grants) > 0 && len(denies) > 0 {
			reports = append(reports, ConflictReport{
				EntityID: entityID, URI: key.URI, Verb: key.Verb, Grants: grants, Denies: denies,
			})
		}
	}
	sort.Slice(reports, func(i, j int) bool {
		if reports[i].URI != reports[j].URI {
			return reports[i].URI < reports[j].URI
		}
		return reports[i].Verb < reports[j].Verb
	})
	return reports, nil
}

// GapReport lists, for entityID, every (uri, verb) pair from required
// that is not allowed.
func (e *Evaluator) GapReport(entityID int64, required []MatrixCell) ([]MatrixCell, error) {
	var gaps []MatrixCell
	for _, cell := range required {
		d, err := e.Evaluate(entityID, cell.URI, cell.Verb, nil)
		if err != nil {
			return nil, err
		}
		if !d.Allowed {
			gaps = append(gaps, MatrixCell{EntityID: entityID, URI: cell.URI, Verb: cell.Verb, Allowed: false})
		}
	}
	return gaps, nil
}

// InheritanceTrace returns the ordered chain of ancestors (entityID
// first) that carried a permission matching uri/verb, for debugging why a
// decision came out the way it did.
func (e *Evaluator) InheritanceTrace(entityID int64, uri string, verb domain.Verb) ([]Source, error) {
	sources, err := e.collectSources(entityID)
	if err != nil {
		return nil, err
	}
	var trace []Source
	for _, s := range sources {
		if s.Permission.Verb == verb && matchURI(s.Permission.URI, uri) {
			trace = append(trace, s)
		}
	}
	return trace, nil
}
