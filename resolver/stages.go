package resolver

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"goa.design/ccos/capability"
)

// ExactMatchStage re-checks the marketplace for the requested id, covering
// the race where a concurrent registration happened between the trap and
// the pipeline run.
type ExactMatchStage struct {
	Manifests ManifestStore
}

func (s *ExactMatchStage) Name() string { return "exact_match" }

func (s *ExactMatchStage) Discover(_ context.Context, req DiscoveryRequest) (*capability.Manifest, error) {
	if m, ok := s.Manifests.Get(req.CapabilityID); ok {
		return &m, nil
	}
	return nil, ErrNoMatch
}

// PartialMatchStage finds an already-registered capability that is "close
// enough" to service the request: one id is a prefix of the other, or they
// share the first dotted segment (e.g. travel.flights ~ travel.hotels).
type PartialMatchStage struct {
	Manifests ManifestStore
}

func (s *PartialMatchStage) Name() string { return "partial_match" }

func (s *PartialMatchStage) Discover(_ context.Context, req DiscoveryRequest) (*capability.Manifest, error) {
	for _, m := range s.Manifests.Manifests() {
		if m.ID == req.CapabilityID {
			continue
		}
		if partialMatch(req.CapabilityID, m.ID) {
			alias := m
			alias.ID = req.CapabilityID
			alias.Provenance.Source = "partial_match:" + m.ID
			return &alias, nil
		}
	}
	return nil, ErrNoMatch
}

func partialMatch(a, b string) bool {
	if a == b {
		return true
	}
	if strings.HasPrefix(a, b) || strings.HasPrefix(b, a) {
		return true
	}
	return capability.Namespace(a) == capability.Namespace(b)
}

// ManifestParser decodes one on-disk capability manifest file (an RTFS
// capability block, per §4.6/§6).
type ManifestParser interface {
	ParseFile(path string) (capability.Manifest, error)
}

// LocalManifestScanStage walks a capabilities directory tree looking for a
// manifest file whose parsed id matches the request.
type LocalManifestScanStage struct {
	Root   string
	Parser ManifestParser
	FS     fs.FS // when nil, Root is walked on the OS filesystem
}

func (s *LocalManifestScanStage) Name() string { return "local_manifest_scan" }

func (s *LocalManifestScanStage) Discover(_ context.Context, req DiscoveryRequest) (*capability.Manifest, error) {
	if s.Parser == nil || s.Root == "" {
		return nil, ErrNoMatch
	}
	fsys := s.FS
	if fsys == nil {
		fsys = localDirFS(s.Root)
	}
	var found *capability.Manifest
	_ = fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || found != nil || d.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ".rtfs" {
			return nil
		}
		full := path
		if s.FS == nil {
			full = filepath.Join(s.Root, path)
		}
		manifest, perr := s.Parser.ParseFile(full)
		if perr != nil {
			return nil
		}
		if manifest.ID == req.CapabilityID {
			found = &manifest
		}
		return nil
	})
	if found == nil {
		return nil, ErrNoMatch
	}
	return found, nil
}

// MCPServerCandidate is one result from an MCP registry search.
type MCPServerCandidate struct {
	Name        string
	Description string
	Endpoint    string
	ToolName    string
}

// MCPRegistryClient searches a Model Context Protocol server registry.
type MCPRegistryClient interface {
	Search(ctx context.Context, query string) ([]MCPServerCandidate, error)
}

// MCPRegistryStage queries an MCP server registry, ranks results with the
// scoring formula from §4.4, and registers the top-ranked candidate above
// the acceptance threshold as a manifest.
type MCPRegistryStage struct {
	Client MCPRegistryClient
}

func (s *MCPRegistryStage) Name() string { return "mcp_registry" }

// mcpScoreMax is the divisor applied to the formula's raw points before the
// threshold (0.3) comparison. Raw scores can reach 34, so normalized scores
// above 1 occur.
const mcpScoreMax = 20.0

// mcpAcceptThreshold is the minimum normalized score a candidate must reach.
const mcpAcceptThreshold = 0.3

func (s *MCPRegistryStage) Discover(ctx context.Context, req DiscoveryRequest) (*capability.Manifest, error) {
	if s.Client == nil {
		return nil, ErrNoMatch
	}
	// The query passed to the registry search is the capability id itself.
	// isFreeText is not consulted: the client gets no indication of whether
	// to run a semantic query or an exact-id lookup.
	candidates, err := s.Client.Search(ctx, req.CapabilityID)
	if err != nil {
		return nil, err
	}
	type scored struct {
		candidate MCPServerCandidate
		score     float64
	}
	var ranked []scored
	for _, c := range candidates {
		sc := scoreMCPCandidate(c, req.CapabilityID) / mcpScoreMax
		if sc >= mcpAcceptThreshold {
			ranked = append(ranked, scored{c, sc})
		}
	}
	if len(ranked) == 0 {
		return nil, ErrNoMatch
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	top := ranked[0].candidate

	manifest := capability.Manifest{
		ID:      req.CapabilityID,
		Name:    top.Name,
		Version: "0.0.0-discovered",
		Provider: capability.Provider{
			Kind: capability.ProviderMCP,
			MCP:  &capability.MCPConfig{ServerEndpoint: top.Endpoint, ToolName: top.ToolName},
		},
		Provenance: capability.Provenance{Source: "mcp_registry"},
	}
	return &manifest, nil
}

var (
	penaltyWords = []string{"plugin", "extension", "specific", "custom"}
	bonusWords   = []string{"api", "sdk", "client", "service", "provider"}
)

func scoreMCPCandidate(c MCPServerCandidate, capabilityID string) float64 {
	name := strings.ToLower(c.Name)
	desc := strings.ToLower(c.Description)
	id := strings.ToLower(capabilityID)
	segment := strings.ToLower(capability.Namespace(capabilityID))

	var score float64
	if name == id {
		score += 10
	}
	if strings.Contains(desc, id) {
		score += 8
	}
	switch {
	case strings.Contains(name, id) || strings.Contains(id, name):
		score += 6
	case strings.Contains(name, segment):
		score += 4
	}
	if strings.Contains(desc, segment) {
		score += 3
	}
	for _, w := range penaltyWords {
		if strings.Contains(desc, w) {
			score -= 2
		}
	}
	for _, w := range bonusWords {
		if strings.Contains(desc, w) {
			score += 1
		}
	}
	if strings.Contains(name, segment) {
		score += 2
	}
	return score
}

// isFreeText reports whether query looks like natural-language text rather
// than a capability identifier: it contains spaces, or contains neither a
// dot nor camelCase casing.
func isFreeText(query string) bool {
	if strings.Contains(query, " ") {
		return true
	}
	hasDot := strings.Contains(query, ".")
	hasCamel := false
	for i := 1; i < len(query); i++ {
		if query[i-1] >= 'a' && query[i-1] <= 'z' && query[i] >= 'A' && query[i] <= 'Z' {
			hasCamel = true
			break
		}
	}
	return !hasDot && !hasCamel
}

// WebSearchClient finds API documentation or an OpenAPI specification URL
// for a free-text query.
type WebSearchClient interface {
	FindAPIDocs(ctx context.Context, query string) (specURL string, found bool, err error)
}

// OpenAPIIntrospector turns an OpenAPI spec into capability manifests (the
// introspect package's Synthesizer).
type OpenAPIIntrospector interface {
	Synthesize(ctx context.Context, specURL string) ([]capability.Manifest, error)
}

// WebSearchStage is disabled unless explicitly enabled by feature flag, per
// §4.4's "only if explicitly enabled" gate. When it finds an OpenAPI spec it
// runs introspection; otherwise it registers a generic HTTP-API manifest
// inferred from heuristics over the URL and capability id.
type WebSearchStage struct {
	Enabled     bool
	Search      WebSearchClient
	Introspect  OpenAPIIntrospector
}

func (s *WebSearchStage) Name() string { return "web_search" }

func (s *WebSearchStage) Discover(ctx context.Context, req DiscoveryRequest) (*capability.Manifest, error) {
	if !s.Enabled || s.Search == nil {
		return nil, ErrNoMatch
	}
	specURL, found, err := s.Search.FindAPIDocs(ctx, req.CapabilityID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNoMatch
	}
	if s.Introspect != nil {
		manifests, err := s.Introspect.Synthesize(ctx, specURL)
		if err != nil {
			return nil, err
		}
		for _, m := range manifests {
			if m.ID == req.CapabilityID || partialMatch(m.ID, req.CapabilityID) {
				return &m, nil
			}
		}
	}
	manifest := genericHTTPManifest(req.CapabilityID, specURL)
	return &manifest, nil
}

// genericHTTPManifest builds a placeholder HTTP-provider manifest when no
// OpenAPI spec could be introspected: the discovered URL becomes the base
// URL, the env-var name is derived from the id's first dotted segment, and
// the auth query parameter is always "api_key".
func genericHTTPManifest(capabilityID, discoveredURL string) capability.Manifest {
	slug := strings.ReplaceAll(capability.Namespace(capabilityID), ".", "-")
	envVar := strings.ToUpper(strings.ReplaceAll(slug, "-", "_")) + "_API_KEY"
	return capability.Manifest{
		ID:      capabilityID,
		Name:    capabilityID,
		Version: "0.0.0-discovered",
		Provider: capability.Provider{
			Kind: capability.ProviderHTTP,
			HTTP: &capability.HTTPConfig{BaseURL: discoveredURL, Method: "GET"},
		},
		Metadata: map[string]string{
			"auth_env_var": envVar,
			"auth_param":   "api_key",
		},
		Provenance: capability.Provenance{Source: "web_search"},
	}
}

// NetworkCatalogClient is an extension point for additional network catalog
// lookups (e.g. a private registry); no concrete implementation ships with
// CCOS itself.
type NetworkCatalogClient interface {
	Lookup(ctx context.Context, capabilityID string) (*capability.Manifest, error)
}

// NetworkCatalogStage is the final, extension-point pipeline stage: it
// dispatches to zero or more configured catalog clients in order.
type NetworkCatalogStage struct {
	Clients []NetworkCatalogClient
}

func (s *NetworkCatalogStage) Name() string { return "network_catalog" }

func (s *NetworkCatalogStage) Discover(ctx context.Context, req DiscoveryRequest) (*capability.Manifest, error) {
	for _, c := range s.Clients {
		m, err := c.Lookup(ctx, req.CapabilityID)
		if err != nil {
			return nil, err
		}
		if m != nil {
			return m, nil
		}
	}
	return nil, ErrNoMatch
}
