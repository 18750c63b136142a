package protocol

import (
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgPack implements Protocol as a msgpack map with keys "method" (string)
// and "payload" (binary). It is grounded on
// github.com/vmihailenco/msgpack/v5 — no repo in the retrieved example pack
// depends on a msgpack library, so this dependency is named as an
// out-of-pack ecosystem choice in DESIGN.md rather than grounded on an
// example.
type MsgPack struct{}

type wireMessage struct {
	Method  string `msgpack:"method"`
	Payload []byte `msgpack:"payload"`
}

type wireError struct {
	Code ErrorCode `msgpack:"code"`
	Msg  string    `msgpack:"msg"`
	Data []byte    `msgpack:"data,omitempty"`
}

// Parse implements Protocol. When payload arrives encoded as a map or a
// string rather than binary it is re-encoded/decoded into the canonical
// byte form rather than rejected outright.
func (MsgPack) Parse(payload []byte) ParsedRequest {
	var raw map[string]interface{}
	if err := msgpack.Unmarshal(payload, &raw); err != nil {
		return ParsedRequest{}
	}

	method, ok := raw["method"].(string)
	if !ok || method == "" {
		return ParsedRequest{}
	}

	body, err := canonicalizePayload(raw["payload"])
	if err != nil {
		return ParsedRequest{}
	}

	return ParsedRequest{Method: method, Payload: body}
}

// canonicalizePayload normalizes a decoded "payload" field into raw bytes,
// accepting binary, string, or a nested map (re-encoded to msgpack bytes).
func canonicalizePayload(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	case map[string]interface{}:
		return msgpack.Marshal(t)
	default:
		return msgpack.Marshal(t)
	}
}

// Serialize implements Protocol. Payload sizes must fit a u32; larger
// inputs fail the encode with an overflow error.
func (MsgPack) Serialize(method string, payload []byte) ([]byte, error) {
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, fmt.Errorf("protocol: payload size %d overflows u32", len(payload))
	}
	return msgpack.Marshal(wireMessage{Method: method, Payload: payload})
}

// SerializeError implements Protocol as {code:int, msg:string, data?:bin}.
func (MsgPack) SerializeError(e ErrorObj) []byte {
	out, err := msgpack.Marshal(wireError{Code: e.Code, Msg: e.Msg, Data: e.Data})
	if err != nil {
		// Marshal of a fixed, small struct cannot fail in practice; fall back
		// to a minimal hand-built map so the caller always gets bytes back.
		fallback, _ := msgpack.Marshal(map[string]interface{}{
			"code": int(e.Code),
			"msg":  e.Msg,
		})
		return fallback
	}
	return out
}
