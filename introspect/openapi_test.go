package introspect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/ccos/rtfs"
)

type fakeFetcher struct {
	body []byte
}

func (f fakeFetcher) Fetch(context.Context, string) ([]byte, error) { return f.body, nil }

const openapi3Doc = `{
  "info": {"title": "Users API", "version": "1.0"},
  "servers": [{"url": "https://api.example/v1"}],
  "paths": {
    "/profile/{userId}": {
      "get": {
        "operationId": "getProfile",
        "summary": "Fetch a profile",
        "parameters": [
          {"name": "userId", "in": "path", "required": true, "schema": {"type": "string"}}
        ],
        "responses": {
          "200": {
            "content": {
              "application/json": {
                "schema": {
                  "type": "object",
                  "required": ["id", "name"],
                  "properties": {
                    "id": {"type": "string"},
                    "name": {"type": "string"},
                    "email": {"type": "string"}
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}`

func TestSynthesizeBuildsOneManifestPerOperation(t *testing.T) {
	s := &Synthesizer{Fetch: fakeFetcher{body: []byte(openapi3Doc)}}
	manifests, err := s.Synthesize(context.Background(), "https://api.example/openapi.json")
	require.NoError(t, err)
	require.Len(t, manifests, 1)

	m := manifests[0]
	assert.Equal(t, "users_api.getProfile", m.ID)
	assert.Equal(t, "Fetch a profile", m.Description)
	assert.Equal(t, "https://api.example/v1", m.Metadata["base_url"])
	assert.Equal(t, "GET", m.Metadata["endpoint_method"])
	assert.Equal(t, "/profile/{userId}", m.Metadata["endpoint_path"])
	assert.Equal(t, "true", m.Metadata["introspected"])

	inSchema, ok := m.InputSchema.(rtfs.TypeExpr)
	require.True(t, ok)
	require.Len(t, inSchema.Fields, 1)
	assert.Equal(t, "userId", inSchema.Fields[0].Name)
	assert.False(t, inSchema.Fields[0].Optional)

	outSchema, ok := m.OutputSchema.(rtfs.TypeExpr)
	require.True(t, ok)
	assert.Equal(t, rtfs.TypeMap, outSchema.Kind)
}

const openapi2Doc = `{
  "info": {"title": "Legacy API", "version": "2"},
  "host": "legacy.example",
  "basePath": "/v2",
  "schemes": ["https"],
  "paths": {
    "/widgets": {
      "post": {
        "parameters": [{"name": "name", "in": "query", "type": "string", "required": false}],
        "responses": {"200": {"schema": {"type": "array", "items": {"type": "string"}}}}
      }
    }
  }
}`

func TestSynthesizeResolvesOpenAPI2BaseURLAndSchema(t *testing.T) {
	s := &Synthesizer{Fetch: fakeFetcher{body: []byte(openapi2Doc)}}
	manifests, err := s.Synthesize(context.Background(), "https://legacy.example/swagger.json")
	require.NoError(t, err)
	require.Len(t, manifests, 1)

	m := manifests[0]
	assert.Equal(t, "https://legacy.example/v2", m.Metadata["base_url"])
	out, ok := m.OutputSchema.(rtfs.TypeExpr)
	require.True(t, ok)
	assert.Equal(t, rtfs.TypeVector, out.Kind)
}

func TestInferAuthRecognizesAPIKeyAndBearer(t *testing.T) {
	apiKey := InferAuth("apiKeyAuth", map[string]any{"type": "apiKey", "name": "X-Api-Key", "in": "header"})
	assert.Equal(t, AuthAPIKey, apiKey.Type)
	assert.Equal(t, LocationHeader, apiKey.Location)

	bearer := InferAuth("bearerAuth", map[string]any{"type": "http", "scheme": "bearer"})
	assert.Equal(t, AuthBearer, bearer.Type)
}

const securedDoc = `{
  "info": {"title": "Weather API", "version": "1.0"},
  "servers": [{"url": "https://api.weather.example"}],
  "components": {
    "securitySchemes": {
      "appid": {"type": "apiKey", "name": "appid", "in": "query"}
    }
  },
  "paths": {
    "/forecast": {
      "get": {
        "operationId": "getForecast",
        "responses": {"200": {"content": {"application/json": {"schema": {"type": "object"}}}}}
      }
    }
  }
}`

func TestSynthesizeAttachesAuthMetadataAndStubInsertsToken(t *testing.T) {
	s := &Synthesizer{Fetch: fakeFetcher{body: []byte(securedDoc)}}
	manifests, err := s.Synthesize(context.Background(), "https://api.weather.example/openapi.json")
	require.NoError(t, err)
	require.Len(t, manifests, 1)

	m := manifests[0]
	assert.Equal(t, "api_key", m.Metadata["auth_type"])
	assert.Equal(t, "query", m.Metadata["auth_location"])
	assert.Equal(t, "appid", m.Metadata["auth_param_name"])
	assert.Equal(t, "APPID_API_KEY", m.Metadata["auth_env_var"])

	rendered := RenderCapabilityFile(m)
	assert.Contains(t, rendered, `(call :ccos.system.env "APPID_API_KEY")`)
	assert.Contains(t, rendered, `"?appid="`)
	assert.Contains(t, rendered, "ccos.network.http-fetch")
}

func TestRenderCapabilityFileIncludesMetadataAndSchemas(t *testing.T) {
	s := &Synthesizer{Fetch: fakeFetcher{body: []byte(openapi3Doc)}}
	manifests, err := s.Synthesize(context.Background(), "https://api.example/openapi.json")
	require.NoError(t, err)

	out := RenderCapabilityFile(manifests[0])
	assert.Contains(t, out, "(capability :users_api.getProfile")
	assert.Contains(t, out, ":input_schema")
	assert.Contains(t, out, "ccos.network.http-fetch")
}
