package session

import "testing"

func identityWithToken(clientID string, deviceID uint64, tok Token) ClientIdentity {
	return ClientIdentity{ClientID: clientID, DeviceID: deviceID, SessionToken: tok}
}

func TestGetOrCreateZeroTokenAlwaysCreates(t *testing.T) {
	m := NewManager(30000, nil)

	s1 := m.GetOrCreate(ClientIdentity{ClientID: "A", DeviceID: 1}, 0)
	s2 := m.GetOrCreate(ClientIdentity{ClientID: "A", DeviceID: 1}, 0)

	if s1.ID() == s2.ID() {
		t.Fatal("expected zero-token requests to always mint a new session")
	}
}

func TestGetOrCreateValidTokenRebindsSameSid(t *testing.T) {
	m := NewManager(30000, nil)
	tok := RandomToken()

	created := m.CreateSession(identityWithToken("A", 7, tok), 0)

	found := m.GetOrCreate(identityWithToken("A", 7, tok), 100)
	if found.ID() != created.ID() {
		t.Fatalf("expected same sid on valid reconnect, got %s vs %s", found.ID(), created.ID())
	}
	if found.ExpiryMs() != 100+30000 {
		t.Fatalf("expected expiry refreshed to 30100, got %d", found.ExpiryMs())
	}
}

func TestGetOrCreateBadTokenMintsNewSession(t *testing.T) {
	m := NewManager(30000, nil)
	tok := RandomToken()
	other := RandomToken()

	original := m.CreateSession(identityWithToken("A", 7, tok), 0)
	fresh := m.GetOrCreate(identityWithToken("A", 7, other), 100)

	if fresh.ID() == original.ID() {
		t.Fatal("expected mismatched token to mint a new session")
	}
	if _, ok := m.GetSession(original.ID()); !ok {
		t.Fatal("expected the old session to remain until reaped")
	}
}

func TestGetOrCreateExpiredTokenMintsNewSession(t *testing.T) {
	m := NewManager(1000, nil)
	tok := RandomToken()

	original := m.CreateSession(identityWithToken("A", 7, tok), 0)
	fresh := m.GetOrCreate(identityWithToken("A", 7, tok), 5000)

	if fresh.ID() == original.ID() {
		t.Fatal("expected expired session to mint a new one")
	}
}

func TestReapRemovesOfflineExpiredSessions(t *testing.T) {
	m := NewManager(100, nil)
	s := m.CreateSession(ClientIdentity{ClientID: "A", DeviceID: 1}, 0)

	m.Reap(50) // not expired yet
	if _, ok := m.GetSession(s.ID()); !ok {
		t.Fatal("expected session to survive before expiry")
	}

	m.Reap(200) // now expired and offline
	if _, ok := m.GetSession(s.ID()); ok {
		t.Fatal("expected expired offline session to be reaped")
	}
}

func TestReapSparesOnlineSessions(t *testing.T) {
	m := NewManager(100, nil)
	s := m.CreateSession(ClientIdentity{ClientID: "A", DeviceID: 1}, 0)
	s.Rebind("conn")

	m.Reap(1_000_000)
	if _, ok := m.GetSession(s.ID()); !ok {
		t.Fatal("expected online session to survive reap regardless of expiry")
	}
}

func TestRemoveSessionClearsIndex(t *testing.T) {
	m := NewManager(30000, nil)
	s := m.CreateSession(ClientIdentity{ClientID: "A", DeviceID: 1}, 0)

	m.SetField(s.ID(), "room", "lobby", true)
	if got := m.FindIndexed("room", "lobby"); len(got) != 1 {
		t.Fatalf("expected sid indexed under lobby, got %v", got)
	}

	m.RemoveSession(s.ID())

	if got := m.FindIndexed("room", "lobby"); len(got) != 0 {
		t.Fatalf("expected no sid indexed after removal, got %v", got)
	}
}

func TestSetFieldUnknownSidReturnsFalse(t *testing.T) {
	m := NewManager(30000, nil)
	if m.SetField("nonexistent", "k", "v", false) {
		t.Fatal("expected SetField on unknown sid to return false")
	}
}

func TestGetFieldTypedRoundTrip(t *testing.T) {
	m := NewManager(30000, nil)
	s := m.CreateSession(ClientIdentity{ClientID: "A", DeviceID: 1}, 0)

	m.SetField(s.ID(), "count", 42, false)
	got, ok := GetField[int](m, s.ID(), "count")
	if !ok || got != 42 {
		t.Fatalf("expected count=42, got %d ok=%v", got, ok)
	}
}

func TestIndexedLookupConsistencyScenario(t *testing.T) {
	// Scenario 6 from 
	m := NewManager(30000, nil)
	s := m.CreateSession(ClientIdentity{ClientID: "A", DeviceID: 1}, 0)

	m.SetField(s.ID(), "room", "lobby", true)
	m.SetField(s.ID(), "room", "garden", true)

	if got := m.FindIndexed("room", "lobby"); len(got) != 0 {
		t.Fatalf("expected lobby empty, got %v", got)
	}
	got := m.FindIndexed("room", "garden")
	if len(got) != 1 || got[0] != s.ID() {
		t.Fatalf("expected [%s] in garden, got %v", s.ID(), got)
	}
}
