package cmclient

import (
	"testing"
	"time"

	"github.com/junbin-yang/steamcm/internal/serverdir"
)

func newReconnectTestClient(t *testing.T) *Client {
	t.Helper()
	c := NewClient(serverdir.New(nil))
	// handleClose/scheduleReconnect are loop-owned; these tests call them
	// directly and assert on bookkeeping fields, so the background loop is
	// stopped the same way newTestClient does it in dispatcher_test.go.
	c.Close()
	t.Cleanup(func() {
		if c.reconnectTimer != nil {
			c.reconnectTimer.Stop()
		}
		c.Close()
	})
	return c
}

func TestHandleCloseOfReadySessionNeverRetries(t *testing.T) {
	c := newReconnectTestClient(t)
	c.autoRetry = true
	c.session.setConnected(true)

	var gotErr error
	c.handlers.onError = func(err error) { gotErr = err }

	c.handleClose(true)

	if _, ok := gotErr.(*DisconnectedError); !ok {
		t.Fatalf("error = %v, want *DisconnectedError", gotErr)
	}
	if c.session.isConnected() {
		t.Fatalf("session must be cleared after a ready session drops")
	}
	if c.reconnectTimer != nil {
		t.Fatalf("a previously-ready session must never schedule an automatic reconnect")
	}
}

func TestHandleCloseWithoutAutoRetrySurfacesCannotConnect(t *testing.T) {
	c := newReconnectTestClient(t)
	c.autoRetry = false

	var gotErr error
	c.handlers.onError = func(err error) { gotErr = err }

	c.handleClose(true)

	if _, ok := gotErr.(*CannotConnectError); !ok {
		t.Fatalf("error = %v, want *CannotConnectError", gotErr)
	}
	if c.reconnectTimer != nil {
		t.Fatalf("auto-retry disabled must never schedule a reconnect")
	}
}

func TestHandleCloseCleanMidHandshakeRetriesImmediately(t *testing.T) {
	c := newReconnectTestClient(t)
	c.autoRetry = true
	c.backoff = 4 * time.Second

	c.handleClose(false) // clean close, not an error

	// reconnectNow -> beginDial runs synchronously up to the point it spawns
	// the dial goroutine, so phase and backoff are observable immediately.
	if c.session.getPhase() != phaseConnecting {
		t.Fatalf("phase = %v, want phaseConnecting (immediate retry)", c.session.getPhase())
	}
	if c.backoff != 4*time.Second {
		t.Fatalf("backoff = %v, must stay unchanged on a clean mid-handshake close", c.backoff)
	}
	if c.reconnectTimer != nil {
		t.Fatalf("an immediate retry must not go through the backoff timer")
	}
}

func TestScheduleReconnectDoublesBackoffEachRound(t *testing.T) {
	c := newReconnectTestClient(t)

	c.scheduleReconnect()
	if c.backoff != 2*time.Second {
		t.Fatalf("backoff after first schedule = %v, want 2s (1s initial, doubled)", c.backoff)
	}
	c.reconnectTimer.Stop()

	c.scheduleReconnect()
	if c.backoff != 4*time.Second {
		t.Fatalf("backoff after second schedule = %v, want 4s", c.backoff)
	}
	c.reconnectTimer.Stop()

	c.scheduleReconnect()
	if c.backoff != 8*time.Second {
		t.Fatalf("backoff after third schedule = %v, want 8s", c.backoff)
	}
	c.reconnectTimer.Stop()
}

func TestHandleCloseWithErrorSchedulesBackoffRetry(t *testing.T) {
	c := newReconnectTestClient(t)
	c.autoRetry = true

	c.handleClose(true)

	if c.reconnectTimer == nil {
		t.Fatalf("an error-close with auto-retry enabled must arm a reconnect timer")
	}
	if c.backoff != 2*time.Second {
		t.Fatalf("backoff = %v, want 2s (1s initial, doubled) after the first error-close", c.backoff)
	}
	if c.session.getPhase() != phaseScheduledRetry {
		t.Fatalf("phase = %v, want phaseScheduledRetry", c.session.getPhase())
	}
	c.reconnectTimer.Stop()
}
