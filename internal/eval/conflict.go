package eval

import "github.com/mvaleed/acs/internal/domain"

// resolve reduces candidates (all already filtered to matching verb/uri)
// to a single effective permission per the configured Strategy (spec
// §4.B.ii). candidates must be non-empty.
func resolve(strategy Strategy, candidates []domain.Permission) domain.Permission {
	switch strategy.normalized() {
	case GrantOverrides:
		if p, ok := firstWhere(candidates, func(p domain.Permission) bool { return p.Grant }); ok {
			return p
		}
		return denyOverrides(candidates)
	case MostSpecific:
		return mostSpecific(candidates)
	case MostRecent:
		return mostRecent(candidates)
	case HighestPriority:
		return highestPriority(candidates)
	default:
		return denyOverrides(candidates)
	}
}

func firstWhere(perms []domain.Permission, pred func(domain.Permission) bool) (domain.Permission, bool) {
	for _, p := range perms {
		if pred(p) {
			return p, true
		}
	}
	return domain.Permission{}, false
}

// denyOverrides: if any candidate denies, deny wins; else the first grant
// (or, lacking any grant/deny opinion, the first candidate) is returned.
func denyOverrides(perms []domain.Permission) domain.Permission {
	if p, ok := firstWhere(perms, func(p domain.Permission) bool { return p.Deny }); ok {
		return p
	}
	if p, ok := firstWhere(perms, func(p domain.Permission) bool { return p.Grant }); ok {
		return p
	}
	return perms[0]
}

func mostSpecific(perms []domain.Permission) domain.Permission {
	best := perms[0]
	tied := []domain.Permission{best}
	for _, p := range perms[1:] {
		switch {
		case moreSpecific(p.URI, best.URI):
			best = p
			tied = []domain.Permission{p}
		case !moreSpecific(best.URI, p.URI):
			tied = append(tied, p)
		}
	}
	if len(tied) == 1 {
		return tied[0]
	}
	return denyOverrides(tied)
}

func mostRecent(perms []domain.Permission) domain.Permission {
	best := perms[0]
	for _, p := range perms[1:] {
		if p.ID > best.ID {
			best = p
		}
	}
	return best
}

func highestPriority(perms []domain.Permission) domain.Permission {
	best := perms[0]
	tied := []domain.Permission{best}
	for _, p := range perms[1:] {
		switch {
		case p.Priority > best.Priority:
			best = p
			tied = []domain.Permission{p}
		case p.Priority == best.Priority:
			tied = append(tied, p)
		}
	}
	if len(tied) == 1 {
		return tied[0]
	}
	return denyOverrides(tied)
}
