package binaryrpc

import (
	"net/http"

	"github.com/efecan0/binaryrpc/internal/session"
)

// HandshakeInspector extracts a ClientIdentity from the WebSocket upgrade
// request, or rejects it.
type HandshakeInspector interface {
	// Extract parses r into a ClientIdentity. ok is false to reject the
	// handshake; reason is sent back to the client as the rejection text.
	Extract(r *http.Request) (identity session.ClientIdentity, ok bool, reason string)
}

// HandshakeInspectorFunc adapts a function to a HandshakeInspector; the
// function's own ok/reason results decide acceptance.
type HandshakeInspectorFunc func(r *http.Request) (session.ClientIdentity, bool, string)

func (f HandshakeInspectorFunc) Extract(r *http.Request) (session.ClientIdentity, bool, string) {
	return f(r)
}

// Plugin is an open extension point: a named component initialized once,
// in registration order, when App.Run starts.
type Plugin interface {
	// Initialize is called once, in App.UsePlugin registration order, when
	// App.Run starts.
	Initialize(app *App) error
	// Name identifies the plugin, e.g. for logging.
	Name() string
}
