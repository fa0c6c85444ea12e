// Package capability defines the typed capability catalog's data model:
// manifests, provider variants, isolation policy, and the glob matching used
// to enforce it. The marketplace and registry subpackages build the runtime
// behavior on top of these types.
package capability

import (
	"strings"
	"time"
)

// ProviderKind tags which Provider variant a manifest carries.
type ProviderKind string

const (
	// ProviderLocal dispatches to an in-process handler function.
	ProviderLocal ProviderKind = "local"
	// ProviderHTTP dispatches to an HTTP endpoint.
	ProviderHTTP ProviderKind = "http"
	// ProviderMCP dispatches through the Model Context Protocol.
	ProviderMCP ProviderKind = "mcp"
	// ProviderA2A dispatches through an Agent-to-Agent protocol.
	ProviderA2A ProviderKind = "a2a"
	// ProviderPlugin dispatches to a loaded plugin.
	ProviderPlugin ProviderKind = "plugin"
	// ProviderRemoteRTFS dispatches to a remote RTFS evaluator.
	ProviderRemoteRTFS ProviderKind = "remote_rtfs"
	// ProviderStream dispatches by opening a stream handle.
	ProviderStream ProviderKind = "stream"
)

// Provider is the tagged union of capability execution backends. Exactly one
// of the typed fields should be non-nil, matching the manifest's Kind.
type Provider struct {
	Kind       ProviderKind
	Local      *LocalConfig
	HTTP       *HTTPConfig
	MCP        *MCPConfig
	A2A        *A2AConfig
	Plugin     *PluginConfig
	RemoteRTFS *RemoteRTFSConfig
	Stream     *StreamConfig
}

type (
	// LocalConfig names the in-process handler registered for this capability.
	// The handler itself lives in a side table keyed by HandlerKey so manifests
	// stay serializable.
	LocalConfig struct {
		HandlerKey string
	}

	// HTTPConfig configures an HTTP provider.
	HTTPConfig struct {
		BaseURL string
		Method  string
		Headers map[string]string
		Timeout time.Duration
	}

	// MCPConfig configures an MCP provider.
	MCPConfig struct {
		ServerEndpoint string
		ToolName       string
	}

	// A2AConfig configures an Agent-to-Agent provider.
	A2AConfig struct {
		AgentEndpoint string
		SkillName     string
	}

	// PluginConfig configures a loaded-plugin provider.
	PluginConfig struct {
		PluginPath string
		EntryPoint string
	}

	// RemoteRTFSConfig configures a remote RTFS evaluator provider.
	RemoteRTFSConfig struct {
		Endpoint string
	}

	// StreamConfig configures a streaming provider.
	StreamConfig struct {
		StreamName string
	}
)

// Provenance records where a manifest came from and how it was vetted.
type Provenance struct {
	Source       string    `json:"source"`
	Version      string    `json:"version,omitempty"`
	ContentHash  string    `json:"content_hash"`
	CustodyChain []string  `json:"custody_chain,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Manifest is a typed, named, schema-carrying operation exposed by a
// provider.
type Manifest struct {
	ID          string
	Name        string
	Description string
	Version     string
	Provider    Provider
	InputSchema  any
	OutputSchema any
	Attestation  string
	Provenance   Provenance
	Permissions  []string
	Effects      []string
	Metadata     map[string]string
}

// ValidID reports whether id satisfies the dotted-namespace rule: it must
// contain at least one '.'.
func ValidID(id string) bool {
	return strings.Contains(id, ".")
}

// Namespace returns the first dotted segment of id, or id itself if it has
// none.
func Namespace(id string) string {
	if idx := strings.Index(id, "."); idx >= 0 {
		return id[:idx]
	}
	return id
}
