package capability

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContentHashDeterministic(t *testing.T) {
	m := Manifest{
		ID:          "users.profile.get",
		Name:        "Get profile",
		Description: "fetches a user profile",
		Version:     "1.0.0",
		Provider: Provider{
			Kind: ProviderHTTP,
			HTTP: &HTTPConfig{BaseURL: "https://api.example/v1/", Method: "GET"},
		},
	}
	h1 := ComputeContentHash(m)
	h2 := ComputeContentHash(m)
	require.Equal(t, h1, h2)
}

// TestContentHashIgnoresHandlerIdentity checks the §8 content-hash property
// on fixed examples: compute_content_hash(m) = compute_content_hash(m') where
// m' differs only in in-process handler identity.
func TestContentHashIgnoresHandlerIdentity(t *testing.T) {
	base := Manifest{
		ID:   "ccos.test.echo",
		Name: "echo",
		Provider: Provider{
			Kind:  ProviderLocal,
			Local: &LocalConfig{HandlerKey: "echo-handler-v1"},
		},
	}
	variant := base
	variant.Provider.Local = &LocalConfig{HandlerKey: "echo-handler-v1"} // distinct pointer, same key
	require.Equal(t, ComputeContentHash(base), ComputeContentHash(variant))

	differentKey := base
	differentKey.Provider.Local = &LocalConfig{HandlerKey: "different-handler"}
	require.NotEqual(t, ComputeContentHash(base), ComputeContentHash(differentKey))
}

func TestValidIDRequiresDot(t *testing.T) {
	require.True(t, ValidID("users.profile.get"))
	require.False(t, ValidID("noDotsHere"))
}

func TestNamespaceExtractsFirstSegment(t *testing.T) {
	require.Equal(t, "users", Namespace("users.profile.get"))
	require.Equal(t, "solo", Namespace("solo"))
}
