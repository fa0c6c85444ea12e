package capability

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestMatchGlobBasics(t *testing.T) {
	require.True(t, MatchGlob("users.*", "users.profile.get"))
	require.True(t, MatchGlob("net.http.get", "net.http.get"))
	require.False(t, MatchGlob("net.http.get", "net.http.scan"))
	require.True(t, MatchGlob("*", "anything.at.all"))
}

func TestIsolationPolicyDenyWins(t *testing.T) {
	p := IsolationPolicy{
		AllowedCapabilities: []string{"users.*", "net.http.get"},
		DeniedCapabilities:  []string{"net.http.scan"},
	}
	require.False(t, p.Allows("net.http.scan", time.Now()))
	require.True(t, p.Allows("users.profile.get", time.Now()))
	require.False(t, p.Allows("other.thing", time.Now()))
}

// TestGlobMatchesRegexEquivalence is the §8 property-based test:
// matches(g, i) = matches_regex(replace('*','.*',g), i).
func TestGlobMatchesRegexEquivalence(t *testing.T) {
	props := gopter.NewProperties(nil)
	segment := gen.RegexMatch(`[a-z]{1,6}`)

	props.Property("glob matches iff naive regex translation matches", prop.ForAll(
		func(segs []string, star bool) bool {
			g := strings.Join(segs, ".")
			id := g
			if star {
				g = g + ".*"
				id = id + ".anything"
			}
			want := regexp.MustCompile("^" + strings.ReplaceAll(regexp.QuoteMeta(g), `\*`, ".*") + "$").MatchString(id)
			got := MatchGlob(g, id)
			return got == want
		},
		gen.SliceOfN(3, segment),
		gen.Bool(),
	))
	props.TestingRun(t)
}
