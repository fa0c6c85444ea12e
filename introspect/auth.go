package introspect

import "strings"

// AuthType enumerates the security-scheme families §4.6 recognizes.
type AuthType string

const (
	AuthAPIKey AuthType = "api_key"
	AuthBearer AuthType = "bearer"
	AuthNone   AuthType = "none"
)

// AuthLocation names where the credential is carried.
type AuthLocation string

const (
	LocationHeader AuthLocation = "header"
	LocationQuery  AuthLocation = "query"
	LocationBody   AuthLocation = "body"
)

// AuthInfo is the inferred auth contract for one security scheme.
type AuthInfo struct {
	Type      AuthType
	Location  AuthLocation
	ParamName string
	EnvVar    string
}

// InferAuth converts one OpenAPI securityScheme definition into an AuthInfo.
// schemeName is the key under components.securitySchemes (3.x) or
// securityDefinitions (2.0).
func InferAuth(schemeName string, scheme map[string]any) AuthInfo {
	schemeType, _ := scheme["type"].(string)
	envVar := strings.ToUpper(schemeName) + "_API_KEY"

	switch schemeType {
	case "http":
		httpScheme, _ := scheme["scheme"].(string)
		if strings.EqualFold(httpScheme, "bearer") {
			return AuthInfo{Type: AuthBearer, Location: LocationHeader, ParamName: "Authorization", EnvVar: strings.ToUpper(schemeName) + "_TOKEN"}
		}
		return AuthInfo{Type: AuthAPIKey, Location: LocationHeader, ParamName: "Authorization", EnvVar: envVar}
	case "apiKey":
		name, _ := scheme["name"].(string)
		in, _ := scheme["in"].(string)
		loc := LocationHeader
		switch in {
		case "query":
			loc = LocationQuery
		case "header":
			loc = LocationHeader
		}
		return AuthInfo{Type: AuthAPIKey, Location: loc, ParamName: name, EnvVar: envVar}
	case "oauth2":
		return AuthInfo{Type: AuthBearer, Location: LocationHeader, ParamName: "Authorization", EnvVar: strings.ToUpper(schemeName) + "_TOKEN"}
	default:
		return AuthInfo{Type: AuthNone}
	}
}

// InferAllAuth returns one AuthInfo per security scheme declared in the
// document (OpenAPI 3.x components.securitySchemes, or 2.0
// securityDefinitions), keyed by scheme name.
func InferAllAuth(doc map[string]any) map[string]AuthInfo {
	out := map[string]AuthInfo{}
	if components, ok := doc["components"].(map[string]any); ok {
		if schemes, ok := components["securitySchemes"].(map[string]any); ok {
			for name, raw := range schemes {
				if scheme, ok := raw.(map[string]any); ok {
					out[name] = InferAuth(name, scheme)
				}
			}
		}
	}
	if schemes, ok := doc["securityDefinitions"].(map[string]any); ok {
		for name, raw := range schemes {
			if scheme, ok := raw.(map[string]any); ok {
				out[name] = InferAuth(name, scheme)
			}
		}
	}
	return out
}
