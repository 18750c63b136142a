// Package roomplugin implements ad-hoc broadcast groups on top of the
// session manager.
//
// A room is just a set of session ids; membership lives entirely in this
// plugin's own map, not in the session's KV store.
package roomplugin

import (
	"sync"

	binaryrpc "github.com/efecan0/binaryrpc"
	"github.com/efecan0/binaryrpc/internal/wstransport"
)

// Plugin tracks room membership and fans messages out to every session
// currently online in a room.
type Plugin struct {
	app *binaryrpc.App

	mu    sync.Mutex
	rooms map[string]map[string]struct{}
}

// New constructs an unattached Plugin. Register it with App.UsePlugin;
// Initialize wires it to the running App's session manager.
func New() *Plugin {
	return &Plugin{rooms: make(map[string]map[string]struct{})}
}

// Name identifies the plugin for logging.
func (p *Plugin) Name() string { return "RoomPlugin" }

// Initialize records the App this plugin was registered against. The
// original constructs against a SessionManager and ITransport directly;
// this port defers both lookups to Join/Broadcast time via the App, since
// the App is only fully wired once Run starts plugin initialization.
func (p *Plugin) Initialize(app *binaryrpc.App) error {
	p.app = app
	return nil
}

// Join adds sid to room. Idempotent.
func (p *Plugin) Join(room, sid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	members, ok := p.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		p.rooms[room] = members
	}
	members[sid] = struct{}{}
}

// Leave removes sid from room, dropping the room entirely once it is empty.
func (p *Plugin) Leave(room, sid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	members, ok := p.rooms[room]
	if !ok {
		return
	}
	delete(members, sid)
	if len(members) == 0 {
		delete(p.rooms, room)
	}
}

// LeaveAll removes sid from every room it belongs to.
func (p *Plugin) LeaveAll(sid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for room, members := range p.rooms {
		delete(members, sid)
		if len(members) == 0 {
			delete(p.rooms, room)
		}
	}
}

// RoomMembers returns a snapshot of room's current members, or nil if the
// room does not exist.
func (p *Plugin) RoomMembers(room string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	members, ok := p.rooms[room]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(members))
	for sid := range members {
		out = append(out, sid)
	}
	return out
}

// Broadcast writes data to every member of room that currently has a live
// connection, silently skipping offline members. Delivery is fire-and-forget,
// matching the App's RPC-reply QoS-0 convention.
func (p *Plugin) Broadcast(room string, data []byte) {
	p.mu.Lock()
	members, ok := p.rooms[room]
	if !ok {
		p.mu.Unlock()
		return
	}
	sids := make([]string, 0, len(members))
	for sid := range members {
		sids = append(sids, sid)
	}
	p.mu.Unlock()

	sessions := p.app.Sessions()
	for _, sid := range sids {
		sess, ok := sessions.GetSession(sid)
		if !ok {
			continue
		}
		conn, ok := sess.LiveConn().(*wstransport.Conn)
		if !ok || conn == nil {
			continue
		}
		conn.SendData(data)
	}
}
