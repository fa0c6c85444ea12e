package approval

import "strings"

// InferAuthEnvVar derives a suggested environment variable name from a
// server name, per §4.5's three known patterns. Secrets themselves are
// never stored, only the variable name a human would set.
func InferAuthEnvVar(serverName string) string {
	segs := strings.Split(serverName, "/")
	switch {
	case len(segs) == 3 && segs[0] == "web":
		// web/<ns>/<api> -> <API>_API_KEY
		return envName(segs[2]) + "_API_KEY"
	case len(segs) == 2 && segs[1] == segs[0]+"-mcp":
		// <vendor>/<vendor>-mcp -> <VENDOR>_MCP_TOKEN
		return envName(segs[0]) + "_MCP_TOKEN"
	case len(segs) == 2 && segs[0] == "apis.guru":
		// apis.guru/<api> -> <API>_API_KEY
		return envName(segs[1]) + "_API_KEY"
	default:
		return ""
	}
}

func envName(s string) string {
	return strings.ToUpper(strings.ReplaceAll(s, "-", "_"))
}
