// Package introspect turns an OpenAPI specification (JSON or YAML, version
// 2 or 3) into a set of capability.Manifest values with schemas expressed in
// the plan language's type system, and renders each as an RTFS capability
// file under <output>/openapi/<api_slug>/<endpoint_slug>.rtfs.
package introspect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"goa.design/ccos/capability"
	"goa.design/ccos/ccoserr"
	"goa.design/ccos/rtfs"
)

// Fetcher retrieves the raw bytes of an OpenAPI spec document.
type Fetcher interface {
	Fetch(ctx context.Context, specURL string) ([]byte, error)
}

// HTTPFetcher is the default Fetcher, a thin wrapper over net/http used
// whenever specURL is a real network location.
type HTTPFetcher struct {
	Client *http.Client
}

// Fetch retrieves specURL over HTTP.
func (f HTTPFetcher) Fetch(ctx context.Context, specURL string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, specURL, nil)
	if err != nil {
		return nil, ccoserr.NetworkError("introspect: build request for "+specURL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, ccoserr.NetworkError("introspect: fetch "+specURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, ccoserr.NetworkError(fmt.Sprintf("introspect: fetch %s: status %d", specURL, resp.StatusCode), nil)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ccoserr.NetworkError("introspect: read body of "+specURL, err)
	}
	return body, nil
}

// Synthesizer parses OpenAPI specs and synthesizes capability manifests,
// optionally rendering each as an RTFS capability file on disk.
type Synthesizer struct {
	Fetch      Fetcher
	OutputRoot string // if non-empty, Synthesize also writes .rtfs files
}

// NewSynthesizer constructs a Synthesizer fetching specs over HTTP and
// rendering capability files under outputRoot (pass "" to skip rendering).
func NewSynthesizer(outputRoot string) *Synthesizer {
	return &Synthesizer{Fetch: HTTPFetcher{}, OutputRoot: outputRoot}
}

// Synthesize fetches, parses, and converts the OpenAPI spec at specURL into
// one manifest per path x method.
func (s *Synthesizer) Synthesize(ctx context.Context, specURL string) ([]capability.Manifest, error) {
	raw, err := s.Fetch.Fetch(ctx, specURL)
	if err != nil {
		return nil, err
	}
	doc, err := parseSpec(raw)
	if err != nil {
		return nil, err
	}
	manifests := synthesizeFromDoc(doc)
	if s.OutputRoot != "" {
		if err := s.render(doc, manifests); err != nil {
			return nil, err
		}
	}
	return manifests, nil
}

// parseSpec decodes JSON or YAML into a generic document tree. OpenAPI
// documents are heterogeneous enough (2.0 vs 3.x) that a dynamic map is more
// tractable than a strict struct; synthesizeFromDoc normalizes both shapes.
func parseSpec(raw []byte) (map[string]any, error) {
	trimmed := strings.TrimSpace(string(raw))
	var doc map[string]any
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, ccoserr.TypeErrorf("introspect.parse_spec", "JSON OpenAPI document", err.Error())
		}
		return doc, nil
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, ccoserr.TypeErrorf("introspect.parse_spec", "YAML OpenAPI document", err.Error())
	}
	return normalizeYAMLMap(doc), nil
}

// normalizeYAMLMap returns v as a map[string]any, or nil if it is not one.
// It converts no nodes: yaml.v3 already decodes string-keyed mappings,
// nested ones included, into map[string]any.
func normalizeYAMLMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func synthesizeFromDoc(doc map[string]any) []capability.Manifest {
	apiTitle, apiVersion := infoFields(doc)
	baseURL := ResolveBaseURL(doc)
	apiSlug := rtfs.SanitizeIdent(strings.ToLower(apiTitle))
	auth := primaryAuth(doc)

	paths, _ := doc["paths"].(map[string]any)
	var manifests []capability.Manifest
	for _, path := range sortedKeys(paths) {
		methods, _ := paths[path].(map[string]any)
		for _, method := range sortedKeys(methods) {
			op, ok := methods[method].(map[string]any)
			if !ok || !isHTTPMethod(method) {
				continue
			}
			m := synthesizeOperation(apiTitle, apiVersion, apiSlug, baseURL, path, method, op, auth)
			manifests = append(manifests, m)
		}
	}
	return manifests
}

// primaryAuth picks the document's first declared security scheme (by sorted
// scheme name, for determinism) that carries a usable credential.
func primaryAuth(doc map[string]any) AuthInfo {
	all := InferAllAuth(doc)
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if all[name].Type != AuthNone {
			return all[name]
		}
	}
	return AuthInfo{Type: AuthNone}
}

func infoFields(doc map[string]any) (title, version string) {
	info, _ := doc["info"].(map[string]any)
	title, _ = info["title"].(string)
	version, _ = info["version"].(string)
	if title == "" {
		title = "api"
	}
	return title, version
}

// ResolveBaseURL prefers servers[0].url (OpenAPI 3.x), else falls back to
// scheme://host+basePath (OpenAPI 2.0).
func ResolveBaseURL(doc map[string]any) string {
	if servers, ok := doc["servers"].([]any); ok && len(servers) > 0 {
		if srv, ok := servers[0].(map[string]any); ok {
			if url, ok := srv["url"].(string); ok && url != "" {
				return url
			}
		}
	}
	host, _ := doc["host"].(string)
	basePath, _ := doc["basePath"].(string)
	scheme := "https"
	if schemes, ok := doc["schemes"].([]any); ok && len(schemes) > 0 {
		if s, ok := schemes[0].(string); ok {
			scheme = s
		}
	}
	if host == "" {
		return ""
	}
	return scheme + "://" + host + basePath
}

func isHTTPMethod(m string) bool {
	switch strings.ToLower(m) {
	case "get", "post", "put", "delete", "patch", "head", "options":
		return true
	}
	return false
}

func synthesizeOperation(apiTitle, apiVersion, apiSlug, baseURL, path, method string, op map[string]any, auth AuthInfo) capability.Manifest {
	operationID, _ := op["operationId"].(string)
	endpointSlug := operationID
	if endpointSlug == "" {
		endpointSlug = strings.ToLower(method) + "_" + strings.ReplaceAll(strings.Trim(path, "/"), "/", "_")
	}
	id := apiSlug + "." + rtfs.SanitizeIdent(endpointSlug)

	inputSchema := buildInputSchema(op)
	outputSchema := buildOutputSchema(op)
	description, _ := op["summary"].(string)
	if description == "" {
		description, _ = op["description"].(string)
	}

	metadata := map[string]string{
		"endpoint_method": strings.ToUpper(method),
		"endpoint_path":   path,
		"base_url":        baseURL,
		"api_title":       apiTitle,
		"api_version":     apiVersion,
		"introspected":    "true",
	}
	if limits, ok := op["x-ccos-rate-limits"].(map[string]any); ok {
		for k, v := range limits {
			metadata["rate_limit_"+k] = fmt.Sprintf("%v", v)
		}
	}
	if auth.Type != AuthNone {
		metadata["auth_type"] = string(auth.Type)
		metadata["auth_location"] = string(auth.Location)
		metadata["auth_param_name"] = auth.ParamName
		metadata["auth_env_var"] = auth.EnvVar
	}

	return capability.Manifest{
		ID:          id,
		Name:        id,
		Description: description,
		Version:     "1.0.0",
		Provider: capability.Provider{
			Kind:  capability.ProviderLocal,
			Local: &capability.LocalConfig{HandlerKey: "introspect.placeholder"},
		},
		InputSchema:  inputSchema,
		OutputSchema: outputSchema,
		Metadata:     metadata,
		Provenance:   capability.Provenance{Source: "openapi:" + apiSlug},
	}
}

func buildInputSchema(op map[string]any) rtfs.TypeExpr {
	var fields []rtfs.Field
	if params, ok := op["parameters"].([]any); ok {
		for _, p := range params {
			param, ok := p.(map[string]any)
			if !ok {
				continue
			}
			name, _ := param["name"].(string)
			if name == "" {
				continue
			}
			required, _ := param["required"].(bool)
			schema, _ := param["schema"].(map[string]any)
			jsonType, _ := schema["type"].(string)
			if jsonType == "" {
				jsonType, _ = param["type"].(string) // OpenAPI 2.0 inlines type on the param
			}
			fields = append(fields, rtfs.Field{Name: name, Type: rtfs.FromJSONSchemaType(jsonType), Optional: !required})
		}
	}
	if body, ok := requestBodySchema(op); ok {
		fields = append(fields, rtfs.Field{Name: "body", Type: jsonSchemaToType(body), Optional: false})
	}
	return rtfs.TypeExpr{Kind: rtfs.TypeMap, Fields: fields}
}

func requestBodySchema(op map[string]any) (map[string]any, bool) {
	rb, ok := op["requestBody"].(map[string]any)
	if !ok {
		return nil, false
	}
	content, ok := rb["content"].(map[string]any)
	if !ok {
		return nil, false
	}
	appJSON, ok := content["application/json"].(map[string]any)
	if !ok {
		return nil, false
	}
	schema, ok := appJSON["schema"].(map[string]any)
	return schema, ok
}

func buildOutputSchema(op map[string]any) rtfs.TypeExpr {
	responses, ok := op["responses"].(map[string]any)
	if !ok {
		return rtfs.TypeExpr{Kind: rtfs.TypeAny}
	}
	for _, code := range []string{"200", "201", "202", "204"} {
		resp, ok := responses[code].(map[string]any)
		if !ok {
			continue
		}
		if schema, ok := resp["schema"].(map[string]any); ok { // OpenAPI 2.0
			return jsonSchemaToType(schema)
		}
		if content, ok := resp["content"].(map[string]any); ok { // OpenAPI 3.x
			if appJSON, ok := content["application/json"].(map[string]any); ok {
				if schema, ok := appJSON["schema"].(map[string]any); ok {
					return jsonSchemaToType(schema)
				}
			}
		}
	}
	return rtfs.TypeExpr{Kind: rtfs.TypeAny}
}

// jsonSchemaToType recursively converts a JSON-Schema node into the plan
// type system, per §4.6's conversion table.
func jsonSchemaToType(schema map[string]any) rtfs.TypeExpr {
	jsonType, _ := schema["type"].(string)
	switch jsonType {
	case "array":
		items, _ := schema["items"].(map[string]any)
		elem := jsonSchemaToType(items)
		return rtfs.TypeExpr{Kind: rtfs.TypeVector, Elem: &elem}
	case "object":
		props, _ := schema["properties"].(map[string]any)
		required := map[string]bool{}
		if reqList, ok := schema["required"].([]any); ok {
			for _, r := range reqList {
				if name, ok := r.(string); ok {
					required[name] = true
				}
			}
		}
		var fields []rtfs.Field
		for _, name := range sortedKeys(props) {
			propSchema, _ := props[name].(map[string]any)
			fields = append(fields, rtfs.Field{
				Name:     name,
				Type:     jsonSchemaToType(propSchema),
				Optional: !required[name],
			})
		}
		return rtfs.TypeExpr{Kind: rtfs.TypeMap, Fields: fields}
	default:
		return rtfs.FromJSONSchemaType(jsonType)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// render writes each manifest as an RTFS capability file under
// <OutputRoot>/openapi/<api_slug>/<endpoint_slug>.rtfs.
func (s *Synthesizer) render(doc map[string]any, manifests []capability.Manifest) error {
	apiTitle, _ := infoFields(doc)
	apiSlug := rtfs.SanitizeIdent(strings.ToLower(apiTitle))
	dir := filepath.Join(s.OutputRoot, "openapi", apiSlug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ccoserr.Generic("introspect: mkdir "+dir, err)
	}
	for _, m := range manifests {
		endpointSlug := strings.TrimPrefix(m.ID, apiSlug+".")
		path := filepath.Join(dir, endpointSlug+".rtfs")
		content := RenderCapabilityFile(m)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return ccoserr.Generic("introspect: write "+path, err)
		}
	}
	return nil
}
