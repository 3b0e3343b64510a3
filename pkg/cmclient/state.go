package cmclient

import "sync"

// connPhase tracks where a connection attempt sits in the reconnection state
// machine (spec.md §4.7).
type connPhase int

const (
	phaseIdle connPhase = iota
	phaseConnecting
	phaseEncrypting
	phaseReady
	phaseScheduledRetry
)

// sessionState holds the fields latched off the wire during a connection
// plus the phase/connected flags the reconnection policy drives, each read
// and written through its own getter/setter under one shared RWMutex, so Send
// can read session identity from any goroutine without a round trip through
// the event loop. Mirrors the get/set-per-field shape
// of the session package's TcpSession this client's session handling is
// grounded on.
type sessionState struct {
	mu sync.RWMutex

	phase     connPhase
	connected bool
	loggedOn  bool

	sessionID int32
	steamID   uint64
}

func newSessionState() *sessionState {
	return &sessionState{}
}

func (s *sessionState) setPhase(p connPhase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

func (s *sessionState) getPhase() connPhase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

func (s *sessionState) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

func (s *sessionState) isConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *sessionState) setLoggedOn(v bool) {
	s.mu.Lock()
	s.loggedOn = v
	s.mu.Unlock()
}

func (s *sessionState) isLoggedOn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggedOn
}

// latch records the session id and steam id the first time a populated Proto
// header carries them (spec.md §4.5 step 3); it is sticky for the rest of
// the connection's life.
func (s *sessionState) latch(sessionID int32, steamID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionID == 0 && sessionID != 0 {
		s.sessionID = sessionID
	}
	if s.steamID == 0 && steamID != 0 {
		s.steamID = steamID
	}
}

func (s *sessionState) identity() sessionIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sessionIdentity{SessionID: s.sessionID, SteamID: s.steamID}
}

// clearOnDisconnect resets every field a fresh connect attempt should start
// from zero (spec.md §4.4, §4.7).
func (s *sessionState) clearOnDisconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phaseIdle
	s.connected = false
	s.loggedOn = false
	s.sessionID = 0
	s.steamID = 0
}
