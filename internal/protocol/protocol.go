package protocol

// ParsedRequest is the decoded application-level message inside a DATA frame's
// payload: a method name plus opaque request bytes.
type ParsedRequest struct {
	Method  string
	Payload []byte
}

// ErrorCode enumerates the taxonomy an ErrorObj may carry.
type ErrorCode uint8

const (
	ErrCodeParse       ErrorCode = 1
	ErrCodeMiddleware  ErrorCode = 2
	ErrCodeNotFound    ErrorCode = 3
	ErrCodeAuth        ErrorCode = 4
	ErrCodeRateLimited ErrorCode = 5
	ErrCodeInternal    ErrorCode = 99
)

// ErrorObj is the error shape carried inside a DATA frame's payload when a
// dispatch fails. No dedicated wire frame type exists for
// errors: they travel as ordinary DATA frames whose payload
// Protocol.SerializeError produced.
type ErrorObj struct {
	Code ErrorCode
	Msg  string
	Data []byte
}

// Protocol is the pluggable application-level codec contract.
// ParsedRequest.Method is empty on parse failure — Protocol implementations
// never panic or return an error for malformed input; they signal failure
// through the zero value instead.
type Protocol interface {
	// Parse decodes payload into a ParsedRequest. A failure to decode a
	// method name yields ParsedRequest{} (Method == "").
	Parse(payload []byte) ParsedRequest
	// Serialize encodes a method name and reply payload into wire bytes
	// suitable to place inside a DATA frame's payload.
	Serialize(method string, payload []byte) ([]byte, error)
	// SerializeError encodes an ErrorObj into wire bytes suitable to place
	// inside a DATA frame's payload.
	SerializeError(e ErrorObj) []byte
}
