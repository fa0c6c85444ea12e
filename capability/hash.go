package capability

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeContentHash derives a deterministic hash over the parts of a
// manifest that define its identity: id, name, description, version,
// provider kind, and provider-specific configuration. It deliberately excludes anything that
// cannot be serialized deterministically (in-process handler identity,
// pointers, timestamps), so registering the same logical manifest twice -
// even with a different in-process handler closure - produces the same
// hash.
func ComputeContentHash(m Manifest) string {
	h := sha256.New()
	fmt.Fprintf(h, "id=%s\nname=%s\ndesc=%s\nversion=%s\nkind=%s\n",
		m.ID, m.Name, m.Description, m.Version, m.Provider.Kind)
	writeProviderFields(h, m.Provider)
	return hex.EncodeToString(h.Sum(nil))
}

func writeProviderFields(h interface{ Write([]byte) (int, error) }, p Provider) {
	switch p.Kind {
	case ProviderLocal:
		if p.Local != nil {
			fmt.Fprintf(h, "local.handler_key=%s\n", p.Local.HandlerKey)
		}
	case ProviderHTTP:
		if p.HTTP != nil {
			fmt.Fprintf(h, "http.base_url=%s\nhttp.method=%s\n", p.HTTP.BaseURL, p.HTTP.Method)
		}
	case ProviderMCP:
		if p.MCP != nil {
			fmt.Fprintf(h, "mcp.endpoint=%s\nmcp.tool=%s\n", p.MCP.ServerEndpoint, p.MCP.ToolName)
		}
	case ProviderA2A:
		if p.A2A != nil {
			fmt.Fprintf(h, "a2a.endpoint=%s\na2a.skill=%s\n", p.A2A.AgentEndpoint, p.A2A.SkillName)
		}
	case ProviderPlugin:
		if p.Plugin != nil {
			fmt.Fprintf(h, "plugin.path=%s\nplugin.entry=%s\n", p.Plugin.PluginPath, p.Plugin.EntryPoint)
		}
	case ProviderRemoteRTFS:
		if p.RemoteRTFS != nil {
			fmt.Fprintf(h, "remote_rtfs.endpoint=%s\n", p.RemoteRTFS.Endpoint)
		}
	case ProviderStream:
		if p.Stream != nil {
			fmt.Fprintf(h, "stream.name=%s\n", p.Stream.StreamName)
		}
	}
}
