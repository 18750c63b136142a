package rpcregistry

import "github.com/efecan0/binaryrpc/internal/session"

// Responder is the narrow capability an RpcContext needs from the transport
// layer: reply is modeled as writing to the call's out-buffer (see Context),
// but broadcast and disconnect require reaching back into the live
// connection/transport, which this interface abstracts to avoid rpcregistry
// depending on wstransport.
type Responder interface {
	Broadcast(payload []byte) error
	Disconnect() error
	PublishTo(sid string, payload []byte) (uint64, error)
}

// Context is the context-based handler surface: reply, broadcast,
// disconnect, and session access.
type Context struct {
	session   *session.Session
	out       *[]byte
	responder Responder
}

// Reply stages data as the call's reply; the worker pool sends it once the
// handler returns.
func (c *Context) Reply(data []byte) {
	*c.out = data
}

// Broadcast sends data to all connected clients via the transport.
func (c *Context) Broadcast(data []byte) error {
	if c.responder == nil {
		return nil
	}
	return c.responder.Broadcast(data)
}

// Disconnect closes the connection this call arrived on.
func (c *Context) Disconnect() error {
	if c.responder == nil {
		return nil
	}
	return c.responder.Disconnect()
}

// Publish sends data to another session by id, at the reliability level
// configured on the App — unlike Reply (always QoS-0, tied to this call)
// this is a first-class use of the App's configured tier.
func (c *Context) Publish(sid string, data []byte) (uint64, error) {
	if c.responder == nil {
		return 0, nil
	}
	return c.responder.PublishTo(sid, data)
}

// Session returns the session this call is bound to.
func (c *Context) Session() *session.Session { return c.session }

// HasRole reports whether the session's "role" field matches expected.
func (c *Context) HasRole(expected string) bool {
	role, ok := session.GetAs[string](c.session, "role")
	return ok && role == expected
}
