package rpc

import (
	"fmt"

	"rpcsock/internal/msgpack"
)

const jsonrpcVersion = "2.0"

func encodeRequest(id, method string, params any) ([]byte, error) {
	m := map[string]any{"jsonrpc": jsonrpcVersion, "method": method, "id": id}
	if params == nil {
		m["params"] = msgpack.Undefined
	} else {
		m["params"] = params
	}
	return msgpack.Marshal(m)
}

func encodeNotification(method string, params any) ([]byte, error) {
	m := map[string]any{"jsonrpc": jsonrpcVersion, "method": method}
	if params != nil {
		m["params"] = params
	}
	return msgpack.Marshal(m)
}

// inboundFrame is the parsed shape of a response frame, normalized to a
// string id regardless of whether the wire id decoded as a MessagePack
// string or integer.
type inboundFrame struct {
	hasID     bool
	id        string
	hasResult bool
	result    any
	rpcErr    *RPCError
}

func decodeInbound(data []byte) (*inboundFrame, error) {
	v, err := msgpack.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: inbound frame is a %T, want a mapping", ErrDeserialization, v)
	}

	f := &inboundFrame{}
	if idVal, present := m["id"]; present && idVal != nil {
		f.hasID = true
		f.id = normalizeID(idVal)
	}

	if errVal, present := m["error"]; present && errVal != nil {
		em, ok := errVal.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: error field is a %T, want a mapping", ErrDeserialization, errVal)
		}
		msg, _ := em["message"].(string)
		f.rpcErr = &RPCError{Code: decodeCode(em["code"]), Message: msg, Data: em["data"]}
		return f, nil
	}

	if resVal, present := m["result"]; present {
		f.hasResult = true
		f.result = resVal
	}
	return f, nil
}

// decodeCode extracts an RPC error's numeric code regardless of which
// integer type the codec decoded it as: every integer tag decodes as
// int64 except the uint64 tag (0xCF), which decodes as uint64.
func decodeCode(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case uint64:
		return int(n)
	default:
		return 0
	}
}

// normalizeID collapses the wire-level string|number id into a single
// string key, per this implementation's id-collision-safety redesign.
func normalizeID(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
