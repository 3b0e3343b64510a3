package cmclient

import (
	"bytes"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/junbin-yang/steamcm/internal/schema"
	"github.com/junbin-yang/steamcm/internal/serverdir"
)

// fakeConn is a minimal net.Conn whose writes accumulate in a buffer, for
// tests that only need to observe what a handler tried to send.
type fakeConn struct {
	mu  sync.Mutex
	out bytes.Buffer
}

func (f *fakeConn) Read(b []byte) (int, error)  { return 0, net.ErrClosed }
func (f *fakeConn) Close() error                { return nil }
func (f *fakeConn) LocalAddr() net.Addr         { return &net.TCPAddr{} }
func (f *fakeConn) RemoteAddr() net.Addr        { return &net.TCPAddr{} }
func (f *fakeConn) SetDeadline(time.Time) error { return nil }
func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) Write(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out.Write(b)
}
func (f *fakeConn) frames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]byte
	data := f.out.Bytes()
	for len(data) >= frameHeaderSize {
		n := binary.LittleEndian.Uint32(data[:4])
		data = data[frameHeaderSize:]
		if uint32(len(data)) < n {
			break
		}
		out = append(out, data[:n])
		data = data[n:]
	}
	return out
}

// newTestClient builds a Client with a fake, in-memory Transport wired in as
// the live connection, so dispatch/handler tests never touch a real socket.
func newTestClient(t *testing.T) (*Client, *fakeConn) {
	t.Helper()
	c := NewClient(serverdir.New(nil))
	// These tests drive onPacket/expandMulti directly, off the event loop,
	// to keep assertions synchronous. Stop runLoop right away so a stray
	// post() (e.g. from Disconnect inside a handler) never races the test
	// goroutine over Client's loop-owned fields; the closure is left
	// sitting unread in workCh, which is harmless once nothing drains it.
	c.Close()
	t.Cleanup(c.Close)

	conn := &fakeConn{}
	tr := newTransport(transportEvents{})
	tr.conn = conn
	c.transport = tr
	c.live.Store(tr)
	return c, conn
}

func encodeFrame(t *testing.T, ident sessionIdentity, h Header, body []byte) []byte {
	t.Helper()
	return encodeHeader(ident, h, body)
}

func TestDispatchGenericMessage(t *testing.T) {
	c, _ := newTestClient(t)

	var got Header
	var gotBody []byte
	c.handlers.onMessage = func(h Header, body []byte, reply ReplyFunc) {
		got = h
		gotBody = body
	}

	frame := encodeFrame(t, sessionIdentity{}, Header{Msg: EMsgClientLoggedOff, TargetJob: NoJob, SourceJob: NoJob}, []byte("payload"))
	// EMsgClientLoggedOff triggers the internal handler too, but with no
	// registered job/session it should still fall through to onMessage.
	c.onPacket(frame)

	if got.Msg != EMsgClientLoggedOff {
		t.Fatalf("onMessage saw msg=%d, want %d", got.Msg, EMsgClientLoggedOff)
	}
	if string(gotBody) != "payload" {
		t.Fatalf("onMessage saw body=%q", gotBody)
	}
}

func TestDispatchJobCallbackTakesPriorityOverMessage(t *testing.T) {
	c, conn := newTestClient(t)
	_ = conn

	messageFired := false
	c.handlers.onMessage = func(h Header, body []byte, reply ReplyFunc) { messageFired = true }

	var jobBody []byte
	jobID := c.jobs.alloc(func(h Header, body []byte, reply ReplyFunc) { jobBody = body })

	frame := encodeFrame(t, sessionIdentity{}, Header{Msg: EMsgClientLoggedOff, TargetJob: jobID, SourceJob: NoJob}, []byte("resp"))
	c.onPacket(frame)

	if string(jobBody) != "resp" {
		t.Fatalf("job callback body = %q, want %q", jobBody, "resp")
	}
	if messageFired {
		t.Fatalf("generic message handler must not fire when a job callback resolves the frame")
	}
	if _, ok := c.jobs.take(jobID); ok {
		t.Fatalf("job must be consumed exactly once")
	}
}

func TestReplyStampsOriginatorsSourceJobAsTarget(t *testing.T) {
	c, conn := newTestClient(t)

	const originatorSourceJob = uint64(777)
	c.handlers.onMessage = func(h Header, body []byte, reply ReplyFunc) {
		if reply == nil {
			t.Fatalf("reply must be non-nil when the incoming frame carries a source job")
		}
		if err := reply(Header{Msg: EMsgClientLoggedOff}, []byte("ack"), nil); err != nil {
			t.Fatalf("reply: %v", err)
		}
	}

	frame := encodeFrame(t, sessionIdentity{}, Header{Msg: EMsgClientLoggedOff, TargetJob: NoJob, SourceJob: originatorSourceJob}, []byte{0, 0, 0, 0})
	c.onPacket(frame)

	frames := conn.frames()
	if len(frames) != 1 {
		t.Fatalf("got %d frames written, want 1", len(frames))
	}
	hdr, _, err := decodeHeader(frames[0])
	if err != nil {
		t.Fatalf("decode reply frame: %v", err)
	}
	// The reply must target the originator's source job, not NoJob — Send
	// unconditionally strips the target job, so reply must not route
	// through it.
	if hdr.TargetJobID() != originatorSourceJob {
		t.Fatalf("reply target job = %d, want %d (the originator's source job)", hdr.TargetJobID(), originatorSourceJob)
	}
}

func TestDispatchLatchesSessionIdentityOnce(t *testing.T) {
	c, _ := newTestClient(t)

	frame := encodeFrame(t, sessionIdentity{SessionID: 3, SteamID: 77}, Header{
		Msg:   EMsgClientHeartBeat,
		Proto: &schema.ProtoHeader{},
	}, nil)
	c.onPacket(frame)

	got := c.session.identity()
	if got.SessionID != 3 || got.SteamID != 77 {
		t.Fatalf("identity not latched from first proto frame: %+v", got)
	}

	frame2 := encodeFrame(t, sessionIdentity{SessionID: 9, SteamID: 999}, Header{
		Msg:   EMsgClientHeartBeat,
		Proto: &schema.ProtoHeader{},
	}, nil)
	c.onPacket(frame2)

	got = c.session.identity()
	if got.SessionID != 3 || got.SteamID != 77 {
		t.Fatalf("identity must stay latched to the first value, got %+v", got)
	}
}

func TestChannelEncryptRequestSendsResponse(t *testing.T) {
	c, conn := newTestClient(t)

	// ChannelEncryptRequest is always Plain-variant on the wire (spec.md
	// §4.6); encodeHeader only produces Plain for the Response message the
	// client itself sends, so build this incoming
	// server frame with the Plain encoder directly.
	frame := encodePlainHeader(Header{Msg: EMsgChannelEncryptRequest, TargetJob: NoJob, SourceJob: NoJob}, nil)
	c.onPacket(frame)

	frames := conn.frames()
	if len(frames) != 1 {
		t.Fatalf("got %d frames written, want 1", len(frames))
	}
	hdr, body, err := decodeHeader(frames[0])
	if err != nil {
		t.Fatalf("decode response frame: %v", err)
	}
	if hdr.Msg != EMsgChannelEncryptResponse {
		t.Fatalf("response msg = %d, want %d", hdr.Msg, EMsgChannelEncryptResponse)
	}
	if len(body) < 12 {
		t.Fatalf("response body too short: %d bytes", len(body))
	}
	if c.pendingKey == ([32]byte{}) {
		t.Fatalf("pending key was never cached")
	}
}

func TestChannelEncryptResultSuccess(t *testing.T) {
	c, _ := newTestClient(t)

	connected := false
	c.handlers.onConnected = func() { connected = true }

	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, uint32(eresultOK))
	frame := encodePlainHeader(Header{Msg: EMsgChannelEncryptResult, TargetJob: NoJob, SourceJob: NoJob}, body)
	c.onPacket(frame)

	if !connected {
		t.Fatalf("connected handler did not fire on success")
	}
	if !c.session.isConnected() {
		t.Fatalf("session not marked connected")
	}
	if c.session.getPhase() != phaseReady {
		t.Fatalf("phase = %v, want phaseReady", c.session.getPhase())
	}
}

func TestChannelEncryptResultFailureNeverTransitions(t *testing.T) {
	c, _ := newTestClient(t)

	var gotErr error
	c.handlers.onError = func(err error) { gotErr = err }
	connected := false
	c.handlers.onConnected = func() { connected = true }

	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, 5) // non-OK result
	frame := encodePlainHeader(Header{Msg: EMsgChannelEncryptResult, TargetJob: NoJob, SourceJob: NoJob}, body)
	c.onPacket(frame)

	if connected {
		t.Fatalf("connected handler must not fire on a failed handshake")
	}
	if c.session.isConnected() {
		t.Fatalf("session must not be marked connected on a failed handshake")
	}
	if _, ok := gotErr.(*EncryptionFailedError); !ok {
		t.Fatalf("error = %v, want *EncryptionFailedError", gotErr)
	}
	if c.live.Load() != nil {
		t.Fatalf("transport must be torn down after a failed handshake")
	}
}

func TestMultiExpansionOrderAndAbortOnDisconnect(t *testing.T) {
	c, _ := newTestClient(t)
	c.session.setConnected(true)

	var seen []int32
	c.handlers.onMessage = func(h Header, body []byte, reply ReplyFunc) {
		seen = append(seen, int32(h.Msg))
		if len(seen) == 1 {
			// A handler observing the first sub-frame disconnects mid-batch;
			// the second sub-frame must never be dispatched.
			c.Disconnect()
		}
	}

	sub1 := encodeFrame(t, sessionIdentity{}, Header{Msg: EMsgClientLoggedOff, TargetJob: NoJob, SourceJob: NoJob}, []byte{0, 0, 0, 0})
	sub2 := encodeFrame(t, sessionIdentity{}, Header{Msg: EMsgClientCMList, TargetJob: NoJob, SourceJob: NoJob}, []byte{0, 0, 0, 0})

	var multiBody []byte
	for _, sub := range [][]byte{sub1, sub2} {
		lenBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(lenBuf, uint32(len(sub)))
		multiBody = append(multiBody, lenBuf...)
		multiBody = append(multiBody, sub...)
	}

	c.expandMulti(multiBody)

	if len(seen) != 1 {
		t.Fatalf("dispatched %d sub-frames, want exactly 1 (abort on disconnect)", len(seen))
	}
	if seen[0] != int32(EMsgClientLoggedOff) {
		t.Fatalf("first dispatched sub-frame msg = %d, want %d", seen[0], EMsgClientLoggedOff)
	}
}
