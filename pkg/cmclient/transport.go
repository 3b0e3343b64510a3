package cmclient

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/junbin-yang/steamcm/internal/handshakecrypto"
	"github.com/junbin-yang/steamcm/internal/logger"
	"github.com/junbin-yang/steamcm/internal/serverdir"
)

// wireMagic tags every frame on the wire (spec.md §6).
var wireMagic = [4]byte{'V', 'T', '0', '1'}

const frameHeaderSize = 4 + len(wireMagic)

// TransportConfig parameterizes a single connect attempt (spec.md §3).
type TransportConfig struct {
	Remote         serverdir.Endpoint
	LocalAddr      string
	LocalPort      uint16
	ConnectTimeout time.Duration
}

// transportEvents are the lifecycle callbacks Transport emits (spec.md
// §4.1). A typed struct of callbacks, rather than a string-keyed listener
// map, is the rewrite spec.md §9 calls for.
type transportEvents struct {
	onConnect func()
	onPacket  func([]byte)
	onEnd     func()
	onError   func(error)
	onClose   func(hadError bool)
}

// transport is the reliable, framed byte-stream connection to a single CM
// node. One transport exists per connect attempt (spec.md §3 invariants).
type transport struct {
	events transportEvents

	mu          sync.Mutex
	conn        net.Conn
	stream      *handshakecrypto.Stream
	idleTimeout time.Duration
	destroyed   bool

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

func newTransport(events transportEvents) *transport {
	return &transport{events: events}
}

// Connect dials the remote endpoint and starts the read loop (spec.md §4.1).
func (t *transport) Connect(cfg TransportConfig) error {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	if cfg.LocalAddr != "" || cfg.LocalPort != 0 {
		dialer.LocalAddr = &net.TCPAddr{IP: net.ParseIP(cfg.LocalAddr), Port: int(cfg.LocalPort)}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Remote.Host, cfg.Remote.Port)
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("cmclient: dial %s: %w", addr, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.destroyed = false
	t.idleTimeout = cfg.ConnectTimeout
	t.mu.Unlock()

	t.wg.Add(1)
	go t.readLoop()

	if t.events.onConnect != nil {
		t.events.onConnect()
	}
	return nil
}

// SetTimeout arms (d>0) or disables (d==0) the idle-read timeout (spec.md
// §4.1).
func (t *transport) SetTimeout(d time.Duration) {
	t.mu.Lock()
	t.idleTimeout = d
	conn := t.conn
	t.mu.Unlock()

	// Apply to a read already in progress too, not only to the next one.
	if conn != nil {
		if d > 0 {
			conn.SetReadDeadline(time.Now().Add(d))
		} else {
			conn.SetReadDeadline(time.Time{})
		}
	}
}

// InstallKey enables wire encryption using the negotiated session key. It is
// called out-of-band by the handshake engine, never by the application.
func (t *transport) InstallKey(key [handshakecrypto.SessionKeyLength]byte) {
	t.mu.Lock()
	t.stream = handshakecrypto.NewStream(key)
	t.mu.Unlock()
}

// Send writes one whole frame, encrypting it first if a key has been
// installed.
func (t *transport) Send(frame []byte) error {
	t.mu.Lock()
	conn := t.conn
	stream := t.stream
	t.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	payload := frame
	if stream != nil {
		enc, err := stream.Encrypt(frame)
		if err != nil {
			return fmt.Errorf("cmclient: encrypt outbound frame: %w", err)
		}
		payload = enc
	}

	header := make([]byte, frameHeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(payload)))
	copy(header[4:], wireMagic[:])

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := conn.Write(header); err != nil {
		return fmt.Errorf("cmclient: write frame header: %w", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("cmclient: write frame payload: %w", err)
	}
	return nil
}

// Close tears the connection down without emitting a close event and without
// waiting for readLoop to exit. The Session Manager calls this from its own
// single-consumer loop, where blocking on readLoop's exit would deadlock if
// readLoop is itself parked trying to hand a just-read packet back to that
// same loop (spec.md §9, "Timers" design note on generation counters applies
// equally to transport teardown).
func (t *transport) Close() {
	t.mu.Lock()
	t.destroyed = true
	conn := t.conn
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Destroy is Close plus waiting for readLoop to fully exit. Safe only from a
// goroutine other than the Session Manager's own loop; nothing in this
// package calls it.
func (t *transport) Destroy() {
	t.Close()
	t.wg.Wait()
}

func (t *transport) readLoop() {
	defer t.wg.Done()

	header := make([]byte, frameHeaderSize)
	for {
		t.mu.Lock()
		conn := t.conn
		idle := t.idleTimeout
		t.mu.Unlock()
		if conn == nil {
			return
		}

		if idle > 0 {
			conn.SetReadDeadline(time.Now().Add(idle))
		} else {
			conn.SetReadDeadline(time.Time{})
		}

		if _, err := io.ReadFull(conn, header); err != nil {
			t.handleReadError(err)
			return
		}

		length := binary.LittleEndian.Uint32(header[0:4])
		if string(header[4:frameHeaderSize]) != string(wireMagic[:]) {
			t.handleReadError(fmt.Errorf("cmclient: bad frame magic"))
			return
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(conn, payload); err != nil {
			t.handleReadError(err)
			return
		}

		t.mu.Lock()
		stream := t.stream
		t.mu.Unlock()

		if stream != nil {
			plain, err := stream.Decrypt(payload)
			if err != nil {
				t.handleReadError(fmt.Errorf("cmclient: decrypt inbound frame: %w", err))
				return
			}
			payload = plain
		}

		if t.events.onPacket != nil {
			t.events.onPacket(payload)
		}
	}
}

func (t *transport) handleReadError(err error) {
	t.mu.Lock()
	destroyed := t.destroyed
	t.mu.Unlock()
	if destroyed {
		// Self-initiated teardown: the caller already knows, no events.
		return
	}

	if errors.Is(err, io.EOF) {
		if t.events.onEnd != nil {
			t.events.onEnd()
		}
		t.closeWithEvent(false)
		return
	}

	logger.Debugf("cmclient: transport read error: %v", err)
	if t.events.onError != nil {
		t.events.onError(err)
	}
	t.closeWithEvent(true)
}

func (t *transport) closeWithEvent(hadError bool) {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if t.events.onClose != nil {
		t.events.onClose(hadError)
	}
}
