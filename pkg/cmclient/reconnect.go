package cmclient

import (
	"fmt"
	"time"
)

// handleClose implements the Session Manager's reconnection policy (spec.md
// §4.7) reacting to a Transport close. Runs only on the event loop.
func (c *Client) handleClose(hadError bool) {
	wasReady := c.session.isConnected()
	c.setTransportLocked(nil)
	c.stopHeartbeatLocked()

	if wasReady {
		// A previously-Ready session dropped: surface it once, never
		// auto-reconnect a logged-on session (spec.md §4.7).
		c.session.clearOnDisconnect()
		c.handlers.error(&DisconnectedError{})
		return
	}

	c.session.clearOnDisconnect()

	if !c.autoRetry {
		c.handlers.error(&CannotConnectError{})
		return
	}

	if !hadError {
		// Clean close mid-handshake: reconnect immediately, backoff unchanged
		// (spec.md §4.7).
		c.session.setPhase(phaseScheduledRetry)
		c.reconnectNow()
		return
	}

	c.session.setPhase(phaseScheduledRetry)
	c.scheduleReconnect()
}

// scheduleReconnect arms a backoff timer before the next connect attempt,
// then doubles the backoff for next time (spec.md §4.7: initial backoff is
// 1s, doubling on each error-close, reset to unset on any successful
// low-level connect).
func (c *Client) scheduleReconnect() {
	wait := c.backoff
	if wait <= 0 {
		wait = time.Second
	}
	c.handlers.debug(fmt.Sprintf("cmclient: reconnecting to %s:%d in %s", c.lastServer.Host, c.lastServer.Port, wait))

	gen := c.generation
	c.reconnectTimer = time.AfterFunc(wait, func() {
		c.post(func() {
			if gen != c.generation {
				return
			}
			c.reconnectTimer = nil
			c.reconnectNow()
		})
	})
	c.backoff = wait * 2
}

// reconnectNow starts a fresh connect attempt against the last server used,
// invalidating the prior generation.
func (c *Client) reconnectNow() {
	ep := c.lastServer
	c.generation++
	c.jobs.reset()
	c.beginDial(ep)
}
