package cmclient

import (
	"crypto/rsa"
	"time"

	"github.com/junbin-yang/steamcm/internal/schema"
	"github.com/junbin-yang/steamcm/internal/serverdir"
)

// Option configures a Client at construction time, following the functional
// options shape this client's reconnection logic was grounded on (compare
// WithDisconnectHandler in the reconnection reference this package adapts).
type Option func(*Client)

// WithOnDebug sets the handler for low-level tracing events (spec.md §6).
func WithOnDebug(fn func(msg string)) Option {
	return func(c *Client) { c.handlers.onDebug = fn }
}

// WithOnConnected sets the handler fired once the channel is encrypted
// (spec.md §4.6 ChannelEncryptResult, §6).
func WithOnConnected(fn func()) Option {
	return func(c *Client) { c.handlers.onConnected = fn }
}

// WithOnMessage sets the generic sink for frames that aren't consumed by a
// job callback (spec.md §4.5 step 7). Frames an internal handler has already
// processed still reach this sink.
func WithOnMessage(fn func(h Header, body []byte, reply ReplyFunc)) Option {
	return func(c *Client) { c.handlers.onMessage = fn }
}

// WithOnServers sets the handler fired when ClientCMList refreshes the
// bootstrap directory (spec.md §4.6).
func WithOnServers(fn func(list []serverdir.Endpoint)) Option {
	return func(c *Client) { c.handlers.onServers = fn }
}

// WithOnLogOnResponse sets the handler fired for every ClientLogOnResponse,
// regardless of result (spec.md §4.6).
func WithOnLogOnResponse(fn func(resp *schema.MsgClientLogOnResponse)) Option {
	return func(c *Client) { c.handlers.onLogOnResponse = fn }
}

// WithOnLoggedOff sets the handler fired when the server logs the client
// off (spec.md §4.6).
func WithOnLoggedOff(fn func(eresult int32)) Option {
	return func(c *Client) { c.handlers.onLoggedOff = fn }
}

// WithOnError sets the handler for terminal and transient error conditions
// (spec.md §7).
func WithOnError(fn func(err error)) Option {
	return func(c *Client) { c.handlers.onError = fn }
}

// WithHandshakeKey overrides the RSA public key used to wrap the session key
// during the channel-encrypt handshake (spec.md §4.6 ChannelEncryptRequest).
// Defaults to a process-local placeholder; set this when talking to a real
// CM node whose published key is known.
func WithHandshakeKey(pub *rsa.PublicKey) Option {
	return func(c *Client) { c.handshakeKey = pub }
}

// WithConnectTimeout overrides the per-attempt dial timeout (spec.md §3
// TransportConfig).
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) { c.connectTimeout = d }
}

// WithIdleTimeout overrides the Transport's idle-read timeout, armed once a
// connection is established and while awaiting the handshake (spec.md §4.1).
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Client) { c.idleTimeout = d }
}

// handlers holds the typed callback hooks a Client invokes. Never a
// string-keyed listener map (spec.md §9, "Event emitter").
type handlers struct {
	onDebug         func(msg string)
	onConnected     func()
	onMessage       func(h Header, body []byte, reply ReplyFunc)
	onServers       func(list []serverdir.Endpoint)
	onLogOnResponse func(resp *schema.MsgClientLogOnResponse)
	onLoggedOff     func(eresult int32)
	onError         func(err error)
}

func (h handlers) debug(msg string) {
	if h.onDebug != nil {
		h.onDebug(msg)
	}
}

func (h handlers) connected() {
	if h.onConnected != nil {
		h.onConnected()
	}
}

func (h handlers) message(hdr Header, body []byte, reply ReplyFunc) {
	if h.onMessage != nil {
		h.onMessage(hdr, body, reply)
	}
}

func (h handlers) servers(list []serverdir.Endpoint) {
	if h.onServers != nil {
		h.onServers(list)
	}
}

func (h handlers) logOnResponse(resp *schema.MsgClientLogOnResponse) {
	if h.onLogOnResponse != nil {
		h.onLogOnResponse(resp)
	}
}

func (h handlers) loggedOff(eresult int32) {
	if h.onLoggedOff != nil {
		h.onLoggedOff(eresult)
	}
}

func (h handlers) error(err error) {
	if h.onError != nil {
		h.onError(err)
	}
}
