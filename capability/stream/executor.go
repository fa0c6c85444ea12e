package stream

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"goa.design/ccos/capability"
	"goa.design/ccos/ccoserr"
)

// Message is the envelope published on both the call and result streams.
type Message struct {
	CallID  string          `json:"call_id"`
	Payload json.RawMessage `json:"payload"`
	Error   string          `json:"error,omitempty"`
}

// Executor dispatches capability.ProviderStream manifests by publishing a
// call message onto the manifest's configured stream and blocking until the
// first message arrives on the call's own result stream (named from a fresh
// call id) or ctx is done. The result's call_id is not compared.
type Executor struct {
	client Client
}

// NewExecutor constructs a stream Executor over client.
func NewExecutor(client Client) *Executor {
	return &Executor{client: client}
}

// Execute publishes input on the manifest's stream and awaits a correlated
// result.
func (e *Executor) Execute(ctx context.Context, m capability.Manifest, input any) (any, error) {
	cfg := m.Provider.Stream
	if cfg == nil {
		return nil, ccoserr.Genericf("stream executor: manifest %q has no stream provider config", m.ID)
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, ccoserr.TypeErrorf("stream-execute", "json-serializable input", "unserializable value")
	}
	callID := uuid.NewString()
	msg := Message{CallID: callID, Payload: payload}
	encoded, err := json.Marshal(msg)
	if err != nil {
		return nil, ccoserr.Generic("stream executor: marshal call envelope", err)
	}

	callStream, err := e.client.Stream(CallStreamID(cfg.StreamName))
	if err != nil {
		return nil, ccoserr.NetworkError("stream executor: open call stream", err)
	}
	resultStream, err := e.client.Stream(ResultStreamID(callID))
	if err != nil {
		return nil, ccoserr.NetworkError("stream executor: open result stream", err)
	}
	sink, err := resultStream.NewSink(ctx, "orchestrator")
	if err != nil {
		return nil, ccoserr.NetworkError("stream executor: open result sink", err)
	}
	defer sink.Close(ctx)

	if _, err := callStream.Add(ctx, "call", encoded); err != nil {
		return nil, ccoserr.NetworkError("stream executor: publish call", err)
	}

	select {
	case <-ctx.Done():
		return nil, ccoserr.NetworkError("stream executor: timed out waiting for result", ctx.Err())
	case ev, ok := <-sink.Subscribe():
		if !ok {
			return nil, ccoserr.NetworkError("stream executor: result sink closed", nil)
		}
		var result Message
		if err := json.Unmarshal(ev.Payload, &result); err != nil {
			return nil, ccoserr.Generic("stream executor: decode result envelope", err)
		}
		_ = sink.Ack(ctx, ev)
		if result.Error != "" {
			return nil, ccoserr.NetworkError("stream executor: remote error: "+result.Error, nil)
		}
		var decoded any
		if err := json.Unmarshal(result.Payload, &decoded); err != nil {
			return nil, ccoserr.Generic("stream executor: decode result payload", err)
		}
		return decoded, nil
	}
}

var _ interface {
	Execute(ctx context.Context, m capability.Manifest, input any) (any, error)
} = (*Executor)(nil)
