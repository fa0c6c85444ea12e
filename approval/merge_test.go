package approval

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

// TestSameServerMergeProperty is the discovery-merge property from the
// testable-properties section: for any two discoveries describing the same
// server, add(d); add(d') yields one record whose alternative_endpoints is
// the deduplicated union and whose expires_at only ever moves forward.
func TestSameServerMergeProperty(t *testing.T) {
	endpoint := gen.RegexMatch(`https://[a-z]{3,8}\.example`)

	props := gopter.NewProperties(nil)
	props.Property("add twice merges endpoints and extends expiry forward-only", prop.ForAll(
		func(altsA, altsB []string, hoursA, hoursB int) bool {
			root := t.TempDir()
			q, err := New(root)
			if err != nil {
				return false
			}
			ctx := context.Background()
			now := time.Now().UTC()

			d1 := testPending("merge-target")
			d1.ServerInfo.AlternativeEndpoints = altsA
			d1.ExpiresAt = now.Add(time.Duration(hoursA) * time.Hour)
			d2 := testPending("merge-target")
			d2.ServerInfo.AlternativeEndpoints = altsB
			d2.ExpiresAt = now.Add(time.Duration(hoursB) * time.Hour)

			id1, err := q.Add(ctx, d1)
			if err != nil {
				return false
			}
			id2, err := q.Add(ctx, d2)
			if err != nil || id1 != id2 {
				return false
			}
			pendings := q.ListPending()
			if len(pendings) != 1 {
				return false
			}
			merged := pendings[0]

			want := uniqueUnion(altsA, altsB)
			got := append([]string(nil), merged.ServerInfo.AlternativeEndpoints...)
			sort.Strings(want)
			sort.Strings(got)
			if len(want) != len(got) {
				return false
			}
			for i := range want {
				if want[i] != got[i] {
					return false
				}
			}

			maxExp := d1.ExpiresAt
			if d2.ExpiresAt.After(maxExp) {
				maxExp = d2.ExpiresAt
			}
			return merged.ExpiresAt.Equal(maxExp)
		},
		gen.SliceOfN(2, endpoint),
		gen.SliceOfN(2, endpoint),
		gen.IntRange(1, 48),
		gen.IntRange(1, 48),
	))
	props.TestingRun(t)
}

func uniqueUnion(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func TestLegacyServerJSONIsMigratedWithBackup(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "pending", "legacy-mcp")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	legacy := `{"id":"discovery-legacy","source":"Manual","server_info":{"name":"legacy-mcp","endpoint":"https://legacy.example"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, legacyFilename), []byte(legacy), 0o644))

	q, err := New(root)
	require.NoError(t, err)

	pendings := q.ListPending()
	require.Len(t, pendings, 1)
	require.Equal(t, "discovery-legacy", pendings[0].ID)

	_, err = os.Stat(filepath.Join(dir, recordFilename))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, legacyFilename+".bak"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, legacyFilename))
	require.True(t, os.IsNotExist(err))
}

func TestSExpressionManifestFormIsReadable(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "pending", "sexpr-mcp")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	// The flat legacy form carries scalar fields; nested structures arrive as
	// one-level lists. Exercise the scalar path the reader guarantees.
	flat := `(server :id "discovery-sexpr" :domain_match true)`
	require.NoError(t, os.WriteFile(filepath.Join(dir, recordFilename), []byte(flat), 0o644))

	var rec PendingDiscovery
	require.NoError(t, readRecord(dir, &rec))
	require.Equal(t, "discovery-sexpr", rec.ID)
	require.True(t, rec.DomainMatch)
}
