package eval

import "strings"

// patternKind classifies a permission's URI pattern per spec §4.B: a
// pattern containing `*` is a glob, one containing a `{name}` segment
// (and no `*`) is a template, and anything else is a literal.
type patternKind int

const (
	patternLiteral patternKind = iota
	patternTemplate
	patternGlob
)

func classifyPattern(pattern string) patternKind {
	if strings.Contains(pattern, "*") {
		return patternGlob
	}
	for _, seg := range strings.Split(pattern, "/") {
		if isTemplateSegment(seg) {
			return patternTemplate
		}
	}
	return patternLiteral
}

func isTemplateSegment(seg string) bool {
	return len(seg) >= 2 && seg[0] == '{' && seg[len(seg)-1] == '}'
}

// matchURI reports whether pattern matches candidate under the matching
// rules in spec §4.B: literal is case-insensitive equality, glob `*`
// matches any character sequence including `/` and is anchored, and
// template `{name}` segments match exactly one path segment.
func matchURI(pattern, candidate string) bool {
	switch classifyPattern(pattern) {
	case patternLiteral:
		return strings.EqualFold(pattern, candidate)
	case patternTemplate:
		return matchTemplate(pattern, candidate)
	default:
		return matchGlob(strings.ToLower(pattern), strings.ToLower(candidate))
	}
}

func matchTemplate(pattern, candidate string) bool {
	patSegs := strings.Split(pattern, "/")
	candSegs := strings.Split(candidate, "/")
	if len(patSegs) != len(candSegs) {
		return false
	}
	for i, seg := range patSegs {
		if isTemplateSegment(seg) {
			if candSegs[i] == "" {
				return false
			}
			continue
		}
		if !strings.EqualFold(seg, candSegs[i]) {
			return false
		}
	}
	return true
}

// matchGlob matches pattern against s where `*` matches any sequence
// (including empty, including `/`), anchored at both ends. Implemented by
// splitting on `*` and testing each literal chunk matches in order with
// non-decreasing position, standard shell-glob matching.
func matchGlob(pattern, s string) bool {
	chunks := strings.Split(pattern, "*")
	if len(chunks) == 1 {
		return pattern == s
	}

	if !strings.HasPrefix(s, chunks[0]) {
		return false
	}
	s = s[len(chunks[0]):]

	last := len(chunks) - 1
	for i := 1; i < last; i++ {
		chunk := chunks[i]
		if chunk == "" {
			continue
		}
		idx := strings.Index(s, chunk)
		if idx < 0 {
			return false
		}
		s = s[idx+len(chunk):]
	}

	return strings.HasSuffix(s, chunks[last])
}

// specificity returns a comparable rank: higher is more specific. Ties
// within the same kind are broken by pattern length (spec: "among globs,
// longer patterns are more specific"; applied uniformly since longer
// literal/template patterns are never less specific either).
func specificity(pattern string) (kind patternKind, length int) {
	k := classifyPattern(pattern)
	return k, len(pattern)
}

// moreSpecific reports whether a is strictly more specific than b, per
// spec §4.B: "literal > template > glob; among globs, longer patterns are
// more specific".
func moreSpecific(a, b string) bool {
	ka, la := specificity(a)
	kb, lb := specificity(b)
	// lower patternKind value is more specific: literal(0) > template(1) > glob(2)
	if ka != kb {
		return ka < kb
	}
	return la > lb
}
