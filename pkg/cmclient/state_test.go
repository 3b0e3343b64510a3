package cmclient

import "testing"

func TestSessionStateLatchIsStickyOnce(t *testing.T) {
	s := newSessionState()

	s.latch(5, 0xdead)
	got := s.identity()
	if got.SessionID != 5 || got.SteamID != 0xdead {
		t.Fatalf("identity after first latch = %+v", got)
	}

	// A later frame carrying a different session id must not override it.
	s.latch(9, 0xbeef)
	got = s.identity()
	if got.SessionID != 5 || got.SteamID != 0xdead {
		t.Fatalf("latch must be sticky, got %+v", got)
	}
}

func TestSessionStateLatchIgnoresZero(t *testing.T) {
	s := newSessionState()
	s.latch(0, 0)
	got := s.identity()
	if got.SessionID != 0 || got.SteamID != 0 {
		t.Fatalf("latch(0, 0) must not set identity, got %+v", got)
	}
}

func TestSessionStateClearOnDisconnect(t *testing.T) {
	s := newSessionState()
	s.latch(5, 0xdead)
	s.setConnected(true)
	s.setLoggedOn(true)
	s.setPhase(phaseReady)

	s.clearOnDisconnect()

	if s.isConnected() || s.isLoggedOn() {
		t.Fatalf("clearOnDisconnect must drop connected/loggedOn flags")
	}
	if s.getPhase() != phaseIdle {
		t.Fatalf("clearOnDisconnect must reset phase to idle, got %v", s.getPhase())
	}
	got := s.identity()
	if got.SessionID != 0 || got.SteamID != 0 {
		t.Fatalf("clearOnDisconnect must reset identity, got %+v", got)
	}

	// A fresh connect's latch should now take effect again.
	s.latch(11, 0xf00d)
	got = s.identity()
	if got.SessionID != 11 || got.SteamID != 0xf00d {
		t.Fatalf("latch after clear did not take, got %+v", got)
	}
}
