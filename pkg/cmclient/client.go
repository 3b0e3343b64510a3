// Package cmclient implements a client for a Steam-like connection-manager
// (CM) protocol: a framed, encrypted TCP session carrying typed,
// job-correlated request/response traffic, with automatic reconnection.
package cmclient

import (
	"crypto/rsa"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/junbin-yang/steamcm/internal/handshakecrypto"
	"github.com/junbin-yang/steamcm/internal/logger"
	"github.com/junbin-yang/steamcm/internal/serverdir"
)

const defaultHeartbeatSeconds = 30

// Client is the Session Manager: the public entry point bundling Transport,
// Header Codec, Job Registry, Multi Expander, and the reconnection policy
// behind one typed, event-driven API (spec.md §2, §9 "Session Manager").
//
// All state that the reconnection policy and dispatcher touch is confined to
// one goroutine (runLoop), fed by a buffered work queue — the single-threaded
// cooperative event loop spec.md §5 calls for. Send and reply bypass the
// loop entirely: they only touch sessionState and jobRegistry, which carry
// their own locks, so application code may call them from any goroutine,
// including from inside a handler running on the loop, without risking a
// self-deadlock.
type Client struct {
	dir      *serverdir.Directory
	handlers handlers

	connectTimeout time.Duration
	idleTimeout    time.Duration

	session *sessionState
	jobs    *jobRegistry

	workCh chan func()
	doneCh chan struct{}

	// live holds the current Transport for lock-free reads from Send, which
	// must never route through the event loop (see Send's comment). Written
	// only from runLoop; read from any goroutine.
	live atomic.Pointer[transport]

	// Touched only from runLoop.
	transport      *transport
	generation     int
	autoRetry      bool
	lastServer     serverdir.Endpoint
	backoff        time.Duration
	reconnectTimer *time.Timer
	heartbeatTimer *time.Timer
	localAddr      string
	localPort      uint16
	pendingKey     [handshakecrypto.SessionKeyLength]byte
	handshakeKey   *rsa.PublicKey
}

// NewClient constructs a Client bound to the given bootstrap directory and
// starts its event loop. Call Connect to begin a connection attempt.
func NewClient(dir *serverdir.Directory, opts ...Option) *Client {
	c := &Client{
		dir:            dir,
		session:        newSessionState(),
		jobs:           newJobRegistry(),
		connectTimeout: time.Second,
		idleTimeout:    time.Second,
		workCh:         make(chan func(), 256),
		doneCh:         make(chan struct{}),
		handshakeKey:   handshakecrypto.DefaultPublicKey(),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.runLoop()
	return c
}

func (c *Client) runLoop() {
	for {
		select {
		case fn := <-c.workCh:
			fn()
		case <-c.doneCh:
			return
		}
	}
}

// post hands fn to the event loop. It never blocks waiting for fn to run:
// the work queue is buffered deeply enough that this is true both for
// ordinary callers and for a handler calling back into Client reentrantly
// from inside a loop-owned closure — the reentrant call simply runs right
// after the current one finishes, rather than deadlocking against itself.
func (c *Client) post(fn func()) {
	select {
	case c.workCh <- fn:
	case <-c.doneCh:
	}
}

// Close stops the event loop permanently. Not part of the CM protocol
// surface; it exists for clean process shutdown.
func (c *Client) Close() {
	select {
	case <-c.doneCh:
	default:
		close(c.doneCh)
	}
}

// Bind records the local address/port to use on the next Connect (spec.md
// §4.4).
func (c *Client) Bind(localAddr string, localPort uint16) {
	c.post(func() {
		c.localAddr = localAddr
		c.localPort = localPort
	})
}

// Connect tears down any current connection, resets the job counter and
// session state, picks server (or a random bootstrap entry when server is
// nil), and starts a Transport connect attempt (spec.md §4.4).
//
// Connect does not block on the network dial; failures surface through the
// error handler, matching the fire-and-forget shape of the rest of the
// client's control surface.
func (c *Client) Connect(server *serverdir.Endpoint, autoRetry bool) {
	c.post(func() {
		c.disconnectLocked()
		c.jobs.reset()
		c.session.clearOnDisconnect()
		c.autoRetry = autoRetry
		c.backoff = 0

		var ep serverdir.Endpoint
		if server != nil {
			ep = *server
		} else {
			picked, ok := c.dir.Random()
			if !ok {
				c.handlers.error(ErrNoServers)
				return
			}
			ep = picked
		}
		c.lastServer = ep
		c.generation++
		c.beginDial(ep)
	})
}

// Disconnect tears down any live Transport, detaches listeners, clears
// session flags, and cancels any pending reconnect timer (spec.md §4.4).
// Idempotent.
//
// The connected flag is cleared synchronously, before this call returns, so
// that a Multi Expander iteration checking it mid-batch (possibly on the
// very goroutine this was called from, inside a handler) observes the
// disconnect immediately rather than after a full loop round trip. The
// heavier teardown — transport, timers, job registry — still runs on the
// loop.
func (c *Client) Disconnect() {
	c.session.setConnected(false)
	c.post(func() { c.disconnectLocked() })
}

// disconnectLocked runs only on the event loop.
func (c *Client) disconnectLocked() {
	c.generation++
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.stopHeartbeatLocked()
	c.setTransportLocked(nil)
	c.session.clearOnDisconnect()
	c.jobs.clear()
}

// setTransportLocked updates both the loop-owned transport field and the
// lock-free published pointer Send reads. Runs only on the event loop.
func (c *Client) setTransportLocked(t *transport) {
	if c.transport != nil && c.transport != t {
		c.transport.Close()
	}
	c.transport = t
	c.live.Store(t)
}

// Send originates a request: it strips any caller-supplied target job (a
// fresh request never targets an existing job), then hands off to the
// low-level send path (spec.md §4.4, §4.3).
//
// Send does not go through the event loop — see sendLow's comment — so this
// can be called from any goroutine, including synchronously from inside a
// message handler running on the loop.
func (c *Client) Send(h Header, body []byte, cb ResponseFunc) error {
	h.StampReplyTarget(NoJob)
	return c.sendLow(h, body, cb)
}

// makeReply builds the ReplyFunc handed to a dispatched frame's handler
// (spec.md §4.5 step 6): it stamps the target job to the request's source
// job and hands off to the low-level send path directly, bypassing Send —
// Send unconditionally strips the target job, which would otherwise discard
// the very correlation a reply exists to carry.
func (c *Client) makeReply(sourceJob uint64) ReplyFunc {
	return func(h Header, body []byte, cb ResponseFunc) error {
		h.StampReplyTarget(sourceJob)
		return c.sendLow(h, body, cb)
	}
}

// sendLow allocates a fresh source job only when cb is non-nil, stamps the
// header, encodes it against the current session identity, and writes it to
// the live Transport. It never touches the target job, so both Send (which
// stamps NoJob) and reply (which stamps the originator's source job) can
// share it without one clobbering the other's intent (spec.md §4.5 step 6:
// "the low-level send path" the reply continuation uses).
//
// sendLow does not go through the event loop — it reads the live Transport
// pointer directly, and sessionState/jobRegistry are independently safe for
// concurrent use.
func (c *Client) sendLow(h Header, body []byte, cb ResponseFunc) error {
	t := c.live.Load()
	if t == nil {
		return ErrNotConnected
	}
	var sourceID uint64 = NoJob
	if cb != nil {
		sourceID = c.jobs.alloc(cb)
	}
	h.SetSourceJob(sourceID)
	frame := encodeHeader(c.session.identity(), h, body)
	return t.Send(frame)
}

// beginDial spawns the blocking network dial on its own goroutine — the
// event loop must never block on I/O (spec.md §5) — and posts the result
// back once it settles. gen is captured at the moment of the call so a
// result from a superseded attempt is recognized as stale and discarded.
func (c *Client) beginDial(ep serverdir.Endpoint) {
	gen := c.generation
	c.session.setPhase(phaseConnecting)
	c.handlers.debug(fmt.Sprintf("cmclient: connecting to %s:%d", ep.Host, ep.Port))

	t := newTransport(c.transportEventsFor(gen))
	c.setTransportLocked(t)
	cfg := TransportConfig{
		Remote:         ep,
		LocalAddr:      c.localAddr,
		LocalPort:      c.localPort,
		ConnectTimeout: c.connectTimeout,
	}
	go func() {
		err := t.Connect(cfg)
		c.post(func() { c.onDialResult(gen, t, err) })
	}()
}

func (c *Client) onDialResult(gen int, t *transport, err error) {
	if gen != c.generation {
		t.Close()
		return
	}
	if err != nil {
		c.handlers.error(err)
		c.handleClose(true)
		return
	}
	c.backoff = 0 // spec.md §4.7: backoff resets on any successful low-level connect.
	t.SetTimeout(c.idleTimeout)
	c.session.setPhase(phaseEncrypting)
	logger.Debugf("cmclient: tcp connected to %s:%d, awaiting handshake", c.lastServer.Host, c.lastServer.Port)
}

// transportEventsFor binds a Transport's lifecycle callbacks to this Client,
// tagged with the generation active when the Transport was created so stale
// events from a superseded connection are dropped (spec.md §9).
func (c *Client) transportEventsFor(gen int) transportEvents {
	return transportEvents{
		onPacket: func(b []byte) {
			c.post(func() {
				if gen == c.generation {
					c.onPacket(b)
				}
			})
		},
		onClose: func(hadError bool) {
			c.post(func() {
				if gen == c.generation {
					c.handleClose(hadError)
				}
			})
		},
	}
}

// failFatal tears a connection down for a reason that never triggers a
// reconnect — an encryption failure or an unrecoverable protocol decode
// error (spec.md §7).
func (c *Client) failFatal(err error) {
	c.generation++
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.stopHeartbeatLocked()
	c.setTransportLocked(nil)
	c.session.clearOnDisconnect()
	c.jobs.clear()
	c.handlers.error(err)
}

func (c *Client) stopHeartbeatLocked() {
	if c.heartbeatTimer != nil {
		c.heartbeatTimer.Stop()
		c.heartbeatTimer = nil
	}
}
