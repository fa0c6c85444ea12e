package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"goa.design/ccos/capability"
	"goa.design/ccos/causalchain"
	"goa.design/ccos/ccoserr"
)

// HTTPExecutor dispatches Provider.HTTP manifests over a blocking
// *http.Client, the live counterpart of the runtime registry's mock
// http-fetch mode.
type HTTPExecutor struct {
	client *http.Client
}

// NewHTTPExecutor constructs an HTTPExecutor using the given client, or
// http.DefaultClient if nil.
func NewHTTPExecutor(client *http.Client) *HTTPExecutor {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPExecutor{client: client}
}

// Execute sends an HTTP request built from manifest.Provider.HTTP and input.
// When input is a map, its "url" entry replaces the configured base URL and
// its "body" entry is JSON-encoded as the request body; request headers come
// only from the provider config. It returns a map with "status", "headers"
// and "body", where body is the decoded JSON, or the raw body string if it
// is not JSON.
func (e *HTTPExecutor) Execute(ctx context.Context, m capability.Manifest, input Value) (Value, error) {
	cfg := m.Provider.HTTP
	if cfg == nil {
		return nil, ccoserr.Genericf("http executor: manifest %q has no http provider config", m.ID)
	}
	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}
	url := cfg.BaseURL
	var body io.Reader
	if in, ok := input.(map[string]Value); ok {
		if u, ok := in["url"].(string); ok && u != "" {
			url = u
		}
		if b, ok := in["body"]; ok {
			encoded, err := json.Marshal(b)
			if err != nil {
				return nil, ccoserr.TypeErrorf("http-execute", "json-serializable body", "unserializable value")
			}
			body = bytes.NewReader(encoded)
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, url, body)
	if err != nil {
		return nil, ccoserr.NetworkError("http executor: build request", err)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, ccoserr.NetworkError("http executor: request to "+causalchain.RedactString(url), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ccoserr.NetworkError("http executor: read response", err)
	}

	headers := map[string]Value{}
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	result := map[string]Value{
		"status":  resp.StatusCode,
		"headers": headers,
	}
	var decoded any
	if json.Unmarshal(respBody, &decoded) == nil {
		result["body"] = decoded
	} else {
		result["body"] = string(respBody)
	}
	return result, nil
}

var _ Executor = (*HTTPExecutor)(nil)
