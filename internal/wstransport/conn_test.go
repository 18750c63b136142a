package wstransport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/efecan0/binaryrpc/internal/protocol"
	"github.com/efecan0/binaryrpc/internal/qos"
	"github.com/efecan0/binaryrpc/internal/session"
)

func firstConn(t *testing.T, srv *Server) *Conn {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var found *Conn
		srv.conns.Range(func(_, v any) bool {
			found = v.(*Conn)
			return false
		})
		if found != nil {
			return found
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no connection registered on server")
	return nil
}

func TestSend1RegistersPendingAndAckClearsIt(t *testing.T) {
	srv, hs, _ := newTestServer(t, nil)
	ws := dial(t, hs)

	conn := firstConn(t, srv)
	id := conn.Send1([]byte("payload"), qos.NewLinearBackoff(10*time.Millisecond, time.Second))

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	f, ok := protocol.DecodeFrame(data)
	if !ok || f.Type != protocol.FrameData || f.ID != id {
		t.Fatalf("got %+v, want DATA(%d)", f, id)
	}

	cs := conn.qosState()
	cs.PendMx.RLock()
	_, pending := cs.Pending1[id]
	cs.PendMx.RUnlock()
	if !pending {
		t.Fatal("expected id to be tracked as pending after Send1")
	}

	ack := protocol.Encode(protocol.Frame{Type: protocol.FrameAck, ID: id})
	if err := ws.WriteMessage(websocket.BinaryMessage, ack); err != nil {
		t.Fatalf("write ack failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		cs.PendMx.RLock()
		_, pending = cs.Pending1[id]
		cs.PendMx.RUnlock()
		if !pending {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("ack did not clear pending1 entry")
}

func TestSafeSendOverflowClosesConnection(t *testing.T) {
	mgr := session.NewManager(60_000, nil)
	srv := New(Config{
		Inspector: fixedInspector{clientID: "overflow-client"},
		Opts:      Options{MaxSendQueueSize: 4},
	}, mgr, nil, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.handleUpgrade)
	hs := httptest.NewServer(mux)
	defer hs.Close()

	dial(t, hs) // client never reads, so writes back up

	conn := firstConn(t, srv)

	var lastOk bool
	for i := 0; i < 32; i++ {
		lastOk = conn.SendData([]byte("x"))
		if !lastOk {
			break
		}
	}

	if lastOk {
		t.Fatal("expected safeSend to eventually report overflow")
	}
	if conn.IsAlive() {
		t.Error("expected connection to be closed after send queue overflow")
	}
}

func TestPublishReturnsQueueOverflowDistinctFromConnClosed(t *testing.T) {
	mgr := session.NewManager(60_000, nil)
	srv := New(Config{
		Inspector: fixedInspector{clientID: "overflow-client-2"},
		Opts:      Options{MaxSendQueueSize: 4},
	}, mgr, nil, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.handleUpgrade)
	hs := httptest.NewServer(mux)
	defer hs.Close()

	dial(t, hs) // client never reads, so writes back up

	conn := firstConn(t, srv)

	var lastErr error
	for i := 0; i < 32 && conn.IsAlive(); i++ {
		_, lastErr = conn.Publish([]byte("x"), LevelNone, nil)
	}

	if lastErr != ErrQueueOverflow {
		t.Fatalf("expected ErrQueueOverflow once the queue backs up, got %v", lastErr)
	}
	if conn.IsAlive() {
		t.Error("expected connection to be closed after send queue overflow")
	}

	if _, err := conn.Publish([]byte("y"), LevelNone, nil); err != ErrConnClosed {
		t.Fatalf("expected ErrConnClosed on an already-closed connection, got %v", err)
	}
}

func TestSafeSendDoesNotPanicRacingClose(t *testing.T) {
	srv, hs, _ := newTestServer(t, nil)
	dial(t, hs)

	conn := firstConn(t, srv)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			conn.SendData([]byte("x"))
		}
	}()

	conn.CloseWithReason(websocket.CloseNormalClosure, "")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sender goroutine did not finish")
	}
}

func TestPublish2FourWayHandshakeEmitsData(t *testing.T) {
	srv, hs, _ := newTestServer(t, nil)
	ws := dial(t, hs)

	conn := firstConn(t, srv)
	id, ok := conn.Publish2([]byte("payload"), qos.NewLinearBackoff(10*time.Millisecond, time.Second))
	if !ok {
		t.Fatal("Publish2 refused")
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read prepare failed: %v", err)
	}
	f, ok := protocol.DecodeFrame(data)
	if !ok || f.Type != protocol.FramePrepare || f.ID != id {
		t.Fatalf("got %+v, want PREPARE(%d)", f, id)
	}

	prepareAck := protocol.Encode(protocol.Frame{Type: protocol.FramePrepareAck, ID: id})
	if err := ws.WriteMessage(websocket.BinaryMessage, prepareAck); err != nil {
		t.Fatalf("write prepare_ack failed: %v", err)
	}

	_, data, err = ws.ReadMessage()
	if err != nil {
		t.Fatalf("read commit failed: %v", err)
	}
	f, ok = protocol.DecodeFrame(data)
	if !ok || f.Type != protocol.FrameCommit || f.ID != id {
		t.Fatalf("got %+v, want COMMIT(%d)", f, id)
	}

	complete := protocol.Encode(protocol.Frame{Type: protocol.FrameComplete, ID: id})
	if err := ws.WriteMessage(websocket.BinaryMessage, complete); err != nil {
		t.Fatalf("write complete failed: %v", err)
	}

	_, data, err = ws.ReadMessage()
	if err != nil {
		t.Fatalf("read final data failed: %v", err)
	}
	f, ok = protocol.DecodeFrame(data)
	if !ok || f.Type != protocol.FrameData || string(f.Payload) != "payload" {
		t.Fatalf("got %+v, want DATA(payload)", f)
	}

	cs := conn.qosState()
	cs.Q2Mx.RLock()
	_, stillPending := cs.Qos2Pending[id]
	cs.Q2Mx.RUnlock()
	if stillPending {
		t.Error("expected qos2Pending entry to be erased after COMPLETE")
	}
}
