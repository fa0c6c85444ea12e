// Package a2a implements the Agent-to-Agent provider executor: it dials a
// peer agent's gRPC skill-invocation endpoint and forwards the capability
// call as a single request/response, mirroring the request/reply shape the
// teacher's registry gateway uses for tool calls.
package a2a

import (
	"context"
	"encoding/json"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"goa.design/ccos/capability"
	"goa.design/ccos/ccoserr"
)

// Dialer opens a gRPC connection to an A2A agent endpoint. Production
// deployments typically supply transport credentials; DialInsecure below is
// the default used when no Dialer is configured, suitable for same-cluster
// traffic behind an already-authenticated mesh.
type Dialer func(ctx context.Context, endpoint string) (*grpc.ClientConn, error)

// DialInsecure dials endpoint without transport security. Intended for
// local/dev use or when the transport is already secured (service mesh).
func DialInsecure(ctx context.Context, endpoint string) (*grpc.ClientConn, error) {
	return grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// Invoker performs the actual skill invocation RPC once a connection is
// established. Concrete CCOS deployments supply this against their A2A
// service definition; Executor treats it as an opaque transport.
type Invoker func(ctx context.Context, conn *grpc.ClientConn, skill string, payload []byte) ([]byte, error)

// Executor dispatches capability.ProviderA2A manifests.
type Executor struct {
	dial   Dialer
	invoke Invoker

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewExecutor constructs an A2A Executor. invoke is required; dial defaults
// to DialInsecure.
func NewExecutor(dial Dialer, invoke Invoker) *Executor {
	if dial == nil {
		dial = DialInsecure
	}
	return &Executor{dial: dial, invoke: invoke, conns: make(map[string]*grpc.ClientConn)}
}

// Execute marshals input to JSON, invokes the configured skill over gRPC,
// and unmarshals the response.
func (e *Executor) Execute(ctx context.Context, m capability.Manifest, input any) (any, error) {
	cfg := m.Provider.A2A
	if cfg == nil {
		return nil, ccoserr.Genericf("a2a executor: manifest %q has no a2a provider config", m.ID)
	}
	if e.invoke == nil {
		return nil, ccoserr.Genericf("a2a executor: no invoker configured for capability %q", m.ID)
	}
	conn, err := e.connFor(ctx, cfg.AgentEndpoint)
	if err != nil {
		return nil, ccoserr.NetworkError("a2a executor: dial "+cfg.AgentEndpoint, err)
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, ccoserr.TypeErrorf("a2a-execute", "json-serializable input", "unserializable value")
	}
	respBytes, err := e.invoke(ctx, conn, cfg.SkillName, payload)
	if err != nil {
		return nil, ccoserr.NetworkError("a2a executor: invoke skill "+cfg.SkillName, err)
	}
	var result any
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return string(respBytes), nil
	}
	return result, nil
}

func (e *Executor) connFor(ctx context.Context, endpoint string) (*grpc.ClientConn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if conn, ok := e.conns[endpoint]; ok {
		return conn, nil
	}
	conn, err := e.dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	e.conns[endpoint] = conn
	return conn, nil
}

// Close tears down every cached connection.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for endpoint, conn := range e.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(e.conns, endpoint)
	}
	return firstErr
}
