package capability

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// IsolationPolicy gates every capability call: deny patterns win over allow
// patterns, with optional namespace and time-window refinements.
type IsolationPolicy struct {
	AllowedCapabilities []string
	DeniedCapabilities  []string
	NamespacePolicies   map[string]NamespacePolicy
	TimeConstraints     *TimeConstraints
	ResourceConstraints *ResourceConstraints
}

// NamespacePolicy further restricts calls within a given namespace.
type NamespacePolicy struct {
	Allowed bool
}

// TimeConstraints restricts the hours during which calls are permitted, in
// UTC, as [StartHour, EndHour).
type TimeConstraints struct {
	StartHour int
	EndHour   int
}

// ResourceConstraints bounds aggregate resource usage enforced by the
// marketplace's resource monitor.
type ResourceConstraints struct {
	MaxConcurrentCalls int
	MaxCallsPerMinute  int
}

// Allows reports whether id is permitted at time now under p. Deny patterns
// always win over allow patterns; an empty AllowedCapabilities list means
// "allow everything not denied".
func (p IsolationPolicy) Allows(id string, now time.Time) bool {
	for _, deny := range p.DeniedCapabilities {
		if MatchGlob(deny, id) {
			return false
		}
	}
	if ns, ok := p.NamespacePolicies[Namespace(id)]; ok && !ns.Allowed {
		return false
	}
	if p.TimeConstraints != nil && !p.TimeConstraints.allows(now) {
		return false
	}
	if len(p.AllowedCapabilities) == 0 {
		return true
	}
	for _, allow := range p.AllowedCapabilities {
		if MatchGlob(allow, id) {
			return true
		}
	}
	return false
}

func (tc TimeConstraints) allows(now time.Time) bool {
	hour := now.UTC().Hour()
	if tc.StartHour <= tc.EndHour {
		return hour >= tc.StartHour && hour < tc.EndHour
	}
	// Wrapping window, e.g. 22:00-06:00.
	return hour >= tc.StartHour || hour < tc.EndHour
}

var globCache sync.Map // glob pattern -> *regexp.Regexp

// MatchGlob reports whether id matches glob pattern g, where '*' is a
// multi-segment wildcard (translated to ".*" in the equivalent regex, per
// the property-based test in §8: matches(g, i) == matches_regex(replace('*',
// '.*', g), i)).
func MatchGlob(g, id string) bool {
	re, ok := globCache.Load(g)
	if !ok {
		compiled := compileGlob(g)
		globCache.Store(g, compiled)
		re = compiled
	}
	return re.(*regexp.Regexp).MatchString(id)
}

func compileGlob(g string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range g {
		switch r {
		case '*':
			b.WriteString(".*")
		case '.', '+', '?', '(', ')', '[', ']', '{', '}', '^', '$', '|', '\\':
			b.WriteString(regexp.QuoteMeta(string(r)))
		default:
			b.WriteRune(r)
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}
