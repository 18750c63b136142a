package wstransport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/efecan0/binaryrpc/internal/protocol"
	"github.com/efecan0/binaryrpc/internal/session"
)

type fixedInspector struct {
	clientID string
}

func (f fixedInspector) Extract(r *http.Request) (session.ClientIdentity, bool, string) {
	return session.ClientIdentity{ClientID: f.clientID}, true, ""
}

func newTestServer(t *testing.T, dispatch DispatchFunc) (*Server, *httptest.Server, *session.Manager) {
	t.Helper()
	mgr := session.NewManager(60_000, nil)
	srv := New(Config{
		Inspector: fixedInspector{clientID: "client-1"},
		Opts:      Options{MaxRetry: 3, MaxSendQueueSize: sendBufferSize, DuplicateTtlMs: 5000},
		Dispatch:  dispatch,
	}, mgr, nil, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.handleUpgrade)
	hs := httptest.NewServer(mux)
	t.Cleanup(hs.Close)
	return srv, hs, mgr
}

func dial(t *testing.T, hs *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHandleUpgradeAcceptsAndDispatchesQoS0(t *testing.T) {
	received := make(chan []byte, 1)
	_, hs, _ := newTestServer(t, func(payload []byte, s *session.Session, responder Responder) {
		received <- payload
	})

	ws := dial(t, hs)

	frame := protocol.Encode(protocol.Frame{Type: protocol.FrameData, ID: 1, Payload: []byte("hello")})
	if err := ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case payload := <-received:
		if string(payload) != "hello" {
			t.Errorf("payload = %q, want %q", payload, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch was never called")
	}
}

func TestHandleUpgradeSendsAckForQoS1Data(t *testing.T) {
	_, hs, _ := newTestServer(t, func(payload []byte, s *session.Session, responder Responder) {})

	ws := dial(t, hs)

	frame := protocol.Encode(protocol.Frame{Type: protocol.FrameData, ID: 42, Payload: []byte("x")})
	if err := ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	got, ok := protocol.DecodeFrame(data)
	if !ok {
		t.Fatal("failed to decode ack frame")
	}
	if got.Type != protocol.FrameAck || got.ID != 42 {
		t.Errorf("got frame %+v, want ack(42)", got)
	}
}

func TestHandleUpgradeRejectsFailedInspection(t *testing.T) {
	mgr := session.NewManager(60_000, nil)
	srv := New(Config{
		Inspector: HandshakeRejectAll{},
	}, mgr, nil, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.handleUpgrade)
	hs := httptest.NewServer(mux)
	defer hs.Close()

	resp, err := http.Get(hs.URL + "/ws")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

// HandshakeRejectAll is a test-only Inspector that always refuses.
type HandshakeRejectAll struct{}

func (HandshakeRejectAll) Extract(r *http.Request) (session.ClientIdentity, bool, string) {
	return session.ClientIdentity{}, false, "denied"
}

func TestBroadcastReachesAllConnections(t *testing.T) {
	received := make(chan []byte, 4)
	srv, hs, _ := newTestServer(t, func(payload []byte, s *session.Session, responder Responder) {})
	_ = srv

	ws1 := dial(t, hs)
	ws2 := dial(t, hs)

	go func() {
		_, data, err := ws1.ReadMessage()
		if err == nil {
			received <- data
		}
	}()
	go func() {
		_, data, err := ws2.ReadMessage()
		if err == nil {
			received <- data
		}
	}()

	time.Sleep(50 * time.Millisecond) // let both readPumps start
	if err := srv.Broadcast([]byte("hi")); err != nil {
		t.Fatalf("broadcast failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case data := <-received:
			f, ok := protocol.DecodeFrame(data)
			if !ok || string(f.Payload) != "hi" {
				t.Errorf("unexpected broadcast frame: %+v", f)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("broadcast did not reach a connection")
		}
	}
}

func TestOnConnClosedMarksSessionOfflineWhenLastConn(t *testing.T) {
	_, hs, mgr := newTestServer(t, func(payload []byte, s *session.Session, responder Responder) {})

	ws := dial(t, hs)
	time.Sleep(50 * time.Millisecond)

	sessions := mgr.ListSessionIds()
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	sess, _ := mgr.GetSession(sessions[0])
	if sess.ConnectionState() != session.Online {
		t.Fatalf("expected session Online after connect")
	}

	ws.Close()
	time.Sleep(100 * time.Millisecond)

	if sess.ConnectionState() != session.Offline {
		t.Errorf("expected session Offline after disconnect, got %v", sess.ConnectionState())
	}
}

func TestSendToSessionDeliversAtConfiguredLevel(t *testing.T) {
	mgr := session.NewManager(60_000, nil)
	srv := New(Config{
		Inspector: fixedInspector{clientID: "client-1"},
		Opts:      Options{MaxRetry: 3, MaxSendQueueSize: sendBufferSize, Level: LevelAtLeastOnce},
		Dispatch:  func(payload []byte, s *session.Session, responder Responder) {},
	}, mgr, nil, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.handleUpgrade)
	hs := httptest.NewServer(mux)
	t.Cleanup(hs.Close)

	ws := dial(t, hs)
	time.Sleep(50 * time.Millisecond)

	sids := mgr.ListSessionIds()
	if len(sids) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sids))
	}

	id, err := srv.SendToSession(sids[0], []byte("payload"), LevelAtLeastOnce, srv.opts.BackoffOrDefault())
	if err != nil {
		t.Fatalf("SendToSession failed: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	got, ok := protocol.DecodeFrame(data)
	if !ok || got.Type != protocol.FrameData || got.ID != id {
		t.Fatalf("got frame %+v, want DATA(%d)", got, id)
	}
}

func TestSendToSessionQueuesWhenOffline(t *testing.T) {
	mgr := session.NewManager(60_000, nil)
	sess := mgr.CreateSession(session.ClientIdentity{ClientID: "offline-client"}, 0)

	srv := New(Config{Inspector: fixedInspector{clientID: "offline-client"}}, mgr, nil, nil)

	id, err := srv.SendToSession(sess.ID(), []byte("later"), LevelAtLeastOnce, srv.opts.BackoffOrDefault())
	if err != nil {
		t.Fatalf("SendToSession failed: %v", err)
	}
	if id != 0 {
		t.Errorf("expected id 0 for a queued offline send, got %d", id)
	}
	if mgr.OfflineQueueDepth(sess.ID()) != 1 {
		t.Errorf("expected message to be queued for offline session")
	}
}

func TestNewPropagatesCompressionSettingToUpgrader(t *testing.T) {
	mgr := session.NewManager(60_000, nil)
	srv := New(Config{
		Inspector: fixedInspector{clientID: "c"},
		Opts:      Options{EnableCompression: true, CompressionThresholdBytes: 512},
	}, mgr, nil, nil)

	if !srv.upgrader.EnableCompression {
		t.Fatal("expected upgrader.EnableCompression to be true")
	}
}

func TestSendToSessionUnknownSidReturnsError(t *testing.T) {
	mgr := session.NewManager(60_000, nil)
	srv := New(Config{Inspector: fixedInspector{clientID: "c"}}, mgr, nil, nil)

	if _, err := srv.SendToSession("no-such-sid", []byte("x"), LevelNone, srv.opts.BackoffOrDefault()); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRunRetrySchedulerStopsOnContextCancel(t *testing.T) {
	mgr := session.NewManager(60_000, nil)
	srv := New(Config{Inspector: fixedInspector{clientID: "c"}}, mgr, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.RunRetryScheduler(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RunRetryScheduler returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunRetryScheduler did not stop after cancel")
	}
}
