package registry

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"goa.design/ccos/ccoserr"
)

func stringInput(v Value, op string) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", ccoserr.TypeErrorf(op, "string", typeName(v))
	}
	return s, nil
}

func mapInput(v Value, op string) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, ccoserr.TypeErrorf(op, "map", typeName(v))
	}
	return m, nil
}

func typeName(v Value) string {
	switch v.(type) {
	case nil:
		return "nil"
	case string:
		return "string"
	case bool:
		return "bool"
	case float64, int, int64:
		return "number"
	case map[string]any:
		return "map"
	case []any:
		return "vector"
	default:
		return "unknown"
	}
}

func builtinSystemEnv(_ context.Context, _ *Registry, input Value) (Value, error) {
	name, err := stringInput(input, "ccos.system.env")
	if err != nil {
		return nil, err
	}
	return os.Getenv(name), nil
}

func builtinSystemTime(_ context.Context, _ *Registry, _ Value) (Value, error) {
	return time.Now().UTC().Format(time.RFC3339Nano), nil
}

func builtinReadFile(_ context.Context, _ *Registry, input Value) (Value, error) {
	path, err := stringInput(input, "ccos.io.read-file")
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ccoserr.Generic("ccos.io.read-file: "+path, err)
	}
	return string(data), nil
}

func builtinWriteFile(_ context.Context, _ *Registry, input Value) (Value, error) {
	args, err := mapInput(input, "ccos.io.write-file")
	if err != nil {
		return nil, err
	}
	path, ok := args["path"].(string)
	if !ok {
		return nil, ccoserr.InvalidArgument("ccos.io.write-file: missing string 'path'")
	}
	content, _ := args["content"].(string)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, ccoserr.Generic("ccos.io.write-file: "+path, err)
	}
	return true, nil
}

func builtinPrint(ctx context.Context, reg *Registry, input Value) (Value, error) {
	reg.logger.Info(ctx, "ccos.io.print", "value", input)
	return nil, nil
}

func builtinJSONParse(_ context.Context, _ *Registry, input Value) (Value, error) {
	s, err := stringInput(input, "ccos.json.parse")
	if err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return nil, ccoserr.TypeErrorf("ccos.json.parse", "valid JSON text", "unparseable text")
	}
	return decoded, nil
}

func builtinJSONStringify(_ context.Context, _ *Registry, input Value) (Value, error) {
	encoded, err := json.Marshal(input)
	if err != nil {
		return nil, ccoserr.TypeErrorf("ccos.json.stringify", "JSON-serializable value", typeName(input))
	}
	return string(encoded), nil
}

// stateStore is the in-process key/value store backing ccos.state.*.
type stateStore struct {
	mu   sync.RWMutex
	data map[string]Value
}

func newStateStore() *stateStore {
	return &stateStore{data: make(map[string]Value)}
}

func builtinStateGet(_ context.Context, reg *Registry, input Value) (Value, error) {
	key, err := stringInput(input, "ccos.state.get")
	if err != nil {
		return nil, err
	}
	reg.state.mu.RLock()
	defer reg.state.mu.RUnlock()
	return reg.state.data[key], nil
}

func builtinStateSet(_ context.Context, reg *Registry, input Value) (Value, error) {
	args, err := mapInput(input, "ccos.state.set")
	if err != nil {
		return nil, err
	}
	key, ok := args["key"].(string)
	if !ok {
		return nil, ccoserr.InvalidArgument("ccos.state.set: missing string 'key'")
	}
	reg.state.mu.Lock()
	reg.state.data[key] = args["value"]
	reg.state.mu.Unlock()
	return true, nil
}

func builtinStateDelete(_ context.Context, reg *Registry, input Value) (Value, error) {
	key, err := stringInput(input, "ccos.state.delete")
	if err != nil {
		return nil, err
	}
	reg.state.mu.Lock()
	delete(reg.state.data, key)
	reg.state.mu.Unlock()
	return true, nil
}
