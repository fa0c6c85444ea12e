package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFetchRequestAcceptsBareURL(t *testing.T) {
	req, err := normalizeFetchRequest("https://api.example.com/w")
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/w", req.url)
	assert.Equal(t, "GET", req.method)
}

func TestNormalizeFetchRequestAcceptsKeywordKeyedMap(t *testing.T) {
	req, err := normalizeFetchRequest(map[string]any{
		":url":        "https://api.example.com/w",
		":method":     "post",
		":body":       `{"q":1}`,
		":timeout-ms": float64(1500),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/w", req.url)
	assert.Equal(t, "POST", req.method)
	assert.Equal(t, `{"q":1}`, req.body)
	assert.Equal(t, 1500*time.Millisecond, req.timeout)
}

func TestNormalizeFetchRequestAcceptsKeywordArgList(t *testing.T) {
	req, err := normalizeFetchRequest([]any{":url", "https://api.example.com/w", ":timeout", float64(5)})
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/w", req.url)
	assert.Equal(t, 5*time.Second, req.timeout)
}

func TestNormalizeFetchRequestRejectsOddKeywordList(t *testing.T) {
	_, err := normalizeFetchRequest([]any{":url"})
	assert.Error(t, err)
}

func TestNormalizeFetchRequestRejectsMissingURL(t *testing.T) {
	_, err := normalizeFetchRequest(map[string]any{":method": "GET"})
	assert.Error(t, err)
}

func TestMockModeDefaultResponseEchoesURL(t *testing.T) {
	fetcher := NewHTTPFetcher()
	fetcher.mock = true

	out, err := fetcher.fetch(context.Background(), fetchRequest{url: "https://api.example.com/w", method: "GET"})
	require.NoError(t, err)
	resp := out.(map[string]any)
	assert.Equal(t, 200, resp["status"])
	assert.Contains(t, resp["body"], `"url":"https://api.example.com/w"`)
	assert.Contains(t, resp["body"], `"origin":"127.0.0.1"`)
	headers := resp["headers"].(map[string]any)
	assert.Equal(t, "application/json", headers["content-type"])
}

func TestHostAllowlistIsCaseInsensitive(t *testing.T) {
	fetcher := NewHTTPFetcher(WithHostAllowlist("API.Example.COM"), WithMockMode(nil))
	_, err := fetcher.fetch(context.Background(), fetchRequest{url: "https://api.example.com/w"})
	require.NoError(t, err)

	_, err = fetcher.fetch(context.Background(), fetchRequest{url: "https://evil.example.com/w"})
	assert.Error(t, err)
}
