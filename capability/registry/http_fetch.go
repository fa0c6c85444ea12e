package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"goa.design/ccos/causalchain"
	"goa.design/ccos/ccoserr"
)

// httpFetcher implements the HTTP-fetch contract from §4.3: a bare URL
// string or a request map, an optional case-insensitive host allowlist, and
// a mock/live toggle so tests never hit the network.
type httpFetcher struct {
	client       *http.Client
	mock         bool
	mockResponse map[string]any
	hostAllow    map[string]bool
}

// HTTPFetcherOption configures a httpFetcher.
type HTTPFetcherOption func(*httpFetcher)

// WithMockMode switches the fetcher to mock mode, returning response for
// every call instead of making a real request.
func WithMockMode(response map[string]any) HTTPFetcherOption {
	return func(f *httpFetcher) {
		f.mock = true
		f.mockResponse = response
	}
}

// WithHostAllowlist restricts live requests to the given hosts
// (case-insensitive).
func WithHostAllowlist(hosts ...string) HTTPFetcherOption {
	return func(f *httpFetcher) {
		f.hostAllow = make(map[string]bool, len(hosts))
		for _, h := range hosts {
			f.hostAllow[strings.ToLower(h)] = true
		}
	}
}

// WithHTTPClient replaces the live-mode HTTP client (for custom transports).
func WithHTTPClient(client *http.Client) HTTPFetcherOption {
	return func(f *httpFetcher) { f.client = client }
}

// NewHTTPFetcher constructs a live-mode fetcher with a 30s default client.
func NewHTTPFetcher(opts ...HTTPFetcherOption) *httpFetcher {
	f := &httpFetcher{client: &http.Client{Timeout: 30 * time.Second}}
	for _, o := range opts {
		o(f)
	}
	return f
}

func builtinHTTPFetch(ctx context.Context, reg *Registry, input Value) (Value, error) {
	req, err := normalizeFetchRequest(input)
	if err != nil {
		return nil, err
	}
	return reg.http.fetch(ctx, req)
}

type fetchRequest struct {
	url     string
	method  string
	headers map[string]string
	body    string
	timeout time.Duration
}

func normalizeFetchRequest(input Value) (fetchRequest, error) {
	req := fetchRequest{method: http.MethodGet, timeout: 30 * time.Second}
	switch v := input.(type) {
	case string:
		req.url = v
		return req, nil
	case map[string]any:
		return fillFetchRequest(req, v)
	case []any:
		// Keyword-arg list form: (:url "https://..." :method "GET" ...).
		if len(v)%2 != 0 {
			return req, ccoserr.ArityMismatchf("ccos.network.http-fetch", len(v)+1, len(v))
		}
		m := make(map[string]any, len(v)/2)
		for i := 0; i < len(v); i += 2 {
			key, ok := v[i].(string)
			if !ok {
				return req, ccoserr.TypeErrorf("ccos.network.http-fetch", "keyword argument name", typeName(v[i]))
			}
			m[key] = v[i+1]
		}
		return fillFetchRequest(req, m)
	default:
		return req, ccoserr.TypeErrorf("ccos.network.http-fetch", "URL string, request map, or keyword-arg list", typeName(input))
	}
}

func fillFetchRequest(req fetchRequest, v map[string]any) (fetchRequest, error) {
	get := func(key string) (any, bool) {
		// Map keys may arrive with or without the leading keyword colon
		// depending on the evaluator's value representation.
		if val, ok := v[key]; ok {
			return val, true
		}
		val, ok := v[":"+key]
		return val, ok
	}
	url, _ := stringField(get("url"))
	if url == "" {
		return req, ccoserr.InvalidArgument("ccos.network.http-fetch: missing 'url'")
	}
	req.url = url
	if m, _ := stringField(get("method")); m != "" {
		req.method = strings.ToUpper(m)
	}
	if raw, ok := get("headers"); ok {
		if h, ok := raw.(map[string]any); ok {
			req.headers = make(map[string]string, len(h))
			for k, hv := range h {
				if s, ok := hv.(string); ok {
					req.headers[strings.TrimPrefix(k, ":")] = s
				}
			}
		}
	}
	if b, _ := stringField(get("body")); b != "" {
		req.body = b
	}
	if ms, ok := numberField(get("timeout-ms")); ok && ms > 0 {
		req.timeout = time.Duration(ms) * time.Millisecond
	} else if ms, ok := numberField(get("timeout_ms")); ok && ms > 0 {
		req.timeout = time.Duration(ms) * time.Millisecond
	} else if s, ok := numberField(get("timeout")); ok && s > 0 {
		req.timeout = time.Duration(s) * time.Second
	}
	return req, nil
}

func stringField(v any, ok bool) (string, bool) {
	if !ok {
		return "", false
	}
	s, isStr := v.(string)
	return s, isStr
}

func numberField(v any, ok bool) (float64, bool) {
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func (f *httpFetcher) fetch(ctx context.Context, req fetchRequest) (Value, error) {
	if !f.hostAllowed(req.url) {
		return nil, ccoserr.SecurityViolation("ccos.network.http-fetch", causalchain.RedactString(req.url), "host not in allowlist")
	}
	if f.mock {
		if f.mockResponse != nil {
			return f.mockResponse, nil
		}
		body := fmt.Sprintf(`{"args":{},"headers":{},"origin":"127.0.0.1","url":%q}`, req.url)
		return map[string]any{
			"status":  200,
			"body":    body,
			"headers": map[string]any{"content-type": "application/json"},
		}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, req.timeout)
	defer cancel()

	var bodyReader io.Reader
	if req.body != "" {
		bodyReader = strings.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, bodyReader)
	if err != nil {
		return nil, ccoserr.NetworkError("ccos.network.http-fetch: "+causalchain.RedactString(req.url), err)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, ccoserr.NetworkError("ccos.network.http-fetch: "+causalchain.RedactString(req.url), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ccoserr.NetworkError("ccos.network.http-fetch: read response body", err)
	}

	headers := make(map[string]any, len(resp.Header))
	for k, v := range resp.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	return map[string]any{
		"status":  resp.StatusCode,
		"headers": headers,
		"body":    string(respBody),
	}, nil
}

func (f *httpFetcher) hostAllowed(rawURL string) bool {
	if len(f.hostAllow) == 0 {
		return true
	}
	host := extractHost(rawURL)
	return f.hostAllow[strings.ToLower(host)]
}

func extractHost(rawURL string) string {
	u := rawURL
	if idx := strings.Index(u, "://"); idx >= 0 {
		u = u[idx+3:]
	}
	if idx := strings.IndexAny(u, "/?"); idx >= 0 {
		u = u[:idx]
	}
	if idx := strings.Index(u, "@"); idx >= 0 {
		u = u[idx+1:]
	}
	if idx := strings.LastIndex(u, ":"); idx >= 0 {
		u = u[:idx]
	}
	return u
}
