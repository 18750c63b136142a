package protocol

import (
	"bytes"
	"fmt"
)

// SimpleText implements Protocol as "<method>:<payload-bytes>". Only the
// first ':' splits method from payload; a method name may not itself
// contain ':' — that is a documented limitation of this minimal wire
// format, not a bug.
type SimpleText struct{}

// Parse implements Protocol.
func (SimpleText) Parse(payload []byte) ParsedRequest {
	idx := bytes.IndexByte(payload, ':')
	if idx < 0 {
		return ParsedRequest{}
	}
	method := string(payload[:idx])
	if method == "" {
		return ParsedRequest{}
	}
	body := payload[idx+1:]
	out := make([]byte, len(body))
	copy(out, body)
	return ParsedRequest{Method: method, Payload: out}
}

// Serialize implements Protocol.
func (SimpleText) Serialize(method string, payload []byte) ([]byte, error) {
	buf := make([]byte, 0, len(method)+1+len(payload))
	buf = append(buf, method...)
	buf = append(buf, ':')
	buf = append(buf, payload...)
	return buf, nil
}

// SerializeError implements Protocol as "error:<code>:<msg>".
// The ErrorObj's Data field has no representation in SimpleText and is
// dropped — a documented limitation of the text protocol.
func (SimpleText) SerializeError(e ErrorObj) []byte {
	return []byte(fmt.Sprintf("error:%d:%s", e.Code, e.Msg))
}
