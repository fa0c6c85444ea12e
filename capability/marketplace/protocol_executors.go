package marketplace

import (
	"context"

	"goa.design/ccos/capability"
	"goa.design/ccos/ccoserr"
)

// MCPClient performs the Model Context Protocol handshake and tool call
// needed to service a Provider.MCP manifest. Concrete MCP transports are an
// external collaborator (§1); this interface is the seam CCOS depends on.
type MCPClient interface {
	CallTool(ctx context.Context, serverEndpoint, toolName string, input Value) (Value, error)
}

// MCPExecutor dispatches Provider.MCP manifests through an MCPClient.
type MCPExecutor struct {
	client MCPClient
}

// NewMCPExecutor constructs an MCPExecutor over client.
func NewMCPExecutor(client MCPClient) *MCPExecutor {
	return &MCPExecutor{client: client}
}

// Execute performs the configured tool call.
func (e *MCPExecutor) Execute(ctx context.Context, m capability.Manifest, input Value) (Value, error) {
	cfg := m.Provider.MCP
	if cfg == nil {
		return nil, ccoserr.Genericf("mcp executor: manifest %q has no mcp provider config", m.ID)
	}
	if e.client == nil {
		return nil, ccoserr.Genericf("mcp executor: no MCP client configured for capability %q", m.ID)
	}
	out, err := e.client.CallTool(ctx, cfg.ServerEndpoint, cfg.ToolName, input)
	if err != nil {
		return nil, ccoserr.NetworkError("mcp executor: call tool "+cfg.ToolName, err)
	}
	return out, nil
}

var _ Executor = (*MCPExecutor)(nil)

// PluginInvoker loads and invokes a capability implemented by a loaded
// plugin (go plugin, WASM module, subprocess - transport-agnostic).
type PluginInvoker interface {
	Invoke(ctx context.Context, pluginPath, entryPoint string, input Value) (Value, error)
}

// PluginExecutor dispatches Provider.Plugin manifests through a PluginInvoker.
type PluginExecutor struct {
	invoker PluginInvoker
}

// NewPluginExecutor constructs a PluginExecutor over invoker.
func NewPluginExecutor(invoker PluginInvoker) *PluginExecutor {
	return &PluginExecutor{invoker: invoker}
}

// Execute invokes the configured plugin entry point.
func (e *PluginExecutor) Execute(ctx context.Context, m capability.Manifest, input Value) (Value, error) {
	cfg := m.Provider.Plugin
	if cfg == nil {
		return nil, ccoserr.Genericf("plugin executor: manifest %q has no plugin provider config", m.ID)
	}
	if e.invoker == nil {
		return nil, ccoserr.Genericf("plugin executor: no invoker configured for capability %q", m.ID)
	}
	out, err := e.invoker.Invoke(ctx, cfg.PluginPath, cfg.EntryPoint, input)
	if err != nil {
		return nil, ccoserr.Generic("plugin executor: invoke "+cfg.EntryPoint, err)
	}
	return out, nil
}

var _ Executor = (*PluginExecutor)(nil)

// RemoteRTFSClient evaluates an RTFS expression on a remote evaluator
// service. The RTFS evaluator itself is an external collaborator (§1); this
// is the narrow seam for calling a *remote* one as a capability provider.
type RemoteRTFSClient interface {
	EvalRemote(ctx context.Context, endpoint string, input Value) (Value, error)
}

// RemoteRTFSExecutor dispatches Provider.RemoteRTFS manifests.
type RemoteRTFSExecutor struct {
	client RemoteRTFSClient
}

// NewRemoteRTFSExecutor constructs a RemoteRTFSExecutor over client.
func NewRemoteRTFSExecutor(client RemoteRTFSClient) *RemoteRTFSExecutor {
	return &RemoteRTFSExecutor{client: client}
}

// Execute evaluates the manifest's body on the configured remote endpoint.
func (e *RemoteRTFSExecutor) Execute(ctx context.Context, m capability.Manifest, input Value) (Value, error) {
	cfg := m.Provider.RemoteRTFS
	if cfg == nil {
		return nil, ccoserr.Genericf("remote-rtfs executor: manifest %q has no remote_rtfs provider config", m.ID)
	}
	if e.client == nil {
		return nil, ccoserr.Genericf("remote-rtfs executor: no client configured for capability %q", m.ID)
	}
	out, err := e.client.EvalRemote(ctx, cfg.Endpoint, input)
	if err != nil {
		return nil, ccoserr.NetworkError("remote-rtfs executor: eval at "+cfg.Endpoint, err)
	}
	return out, nil
}

var _ Executor = (*RemoteRTFSExecutor)(nil)
