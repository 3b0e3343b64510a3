package cmclient

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/junbin-yang/steamcm/internal/crc"
	"github.com/junbin-yang/steamcm/internal/handshakecrypto"
	"github.com/junbin-yang/steamcm/internal/multizip"
	"github.com/junbin-yang/steamcm/internal/schema"
	"github.com/junbin-yang/steamcm/internal/serverdir"
)

// runInternalHandler implements the Dispatcher's step 5 (spec.md §4.5,
// §4.6): the state-affecting messages every connection needs to react to
// regardless of whether the application registers anything for them.
func (c *Client) runInternalHandler(hdr Header, body []byte) {
	switch hdr.Msg {
	case EMsgChannelEncryptRequest:
		c.handleChannelEncryptRequest()
	case EMsgChannelEncryptResult:
		c.handleChannelEncryptResult(body)
	case EMsgMulti:
		c.handleMulti(body)
	case EMsgClientLogOnResponse:
		c.handleClientLogOnResponse(body)
	case EMsgClientLoggedOff:
		c.handleClientLoggedOff(body)
	case EMsgClientCMList:
		c.handleClientCMList(body)
	}
}

func (c *Client) handleChannelEncryptRequest() {
	if c.transport != nil {
		c.transport.SetTimeout(0)
	}

	key, err := handshakecrypto.GenerateSessionKey(c.handshakeKey)
	if err != nil {
		c.failFatal(fmt.Errorf("cmclient: generate session key: %w", err))
		return
	}
	c.pendingKey = key.Plain

	checksum := crc.Signed(key.Encrypted)

	body := make([]byte, 4+len(key.Encrypted)+4+4)
	binary.LittleEndian.PutUint32(body[0:4], encodeRawEMsg(EMsgChannelEncryptResponse, false))
	copy(body[4:], key.Encrypted)
	off := 4 + len(key.Encrypted)
	binary.LittleEndian.PutUint32(body[off:off+4], checksum)
	// trailing reserved u32 is left zero.

	if err := c.Send(Header{Msg: EMsgChannelEncryptResponse}, body, nil); err != nil {
		c.handlers.error(fmt.Errorf("cmclient: send channel encrypt response: %w", err))
	}
}

func (c *Client) handleChannelEncryptResult(body []byte) {
	result, err := schema.UnmarshalCMsgChannelEncryptResult(body)
	if err != nil {
		c.failFatal(&ProtocolError{Reason: err.Error()})
		return
	}

	if result.Result != eresultOK {
		c.failFatal(&EncryptionFailedError{ResultCode: result.Result})
		return
	}

	if c.transport != nil {
		c.transport.InstallKey(c.pendingKey)
		// The idle-read timeout stays disabled once the channel is ready
		// (spec.md §9): handleChannelEncryptRequest already turned it off
		// for the duration of the handshake, and a Ready session relies on
		// ClientHeartBeat, not a read deadline, to detect a dead peer.
	}
	c.session.setConnected(true)
	c.session.setPhase(phaseReady)
	c.handlers.connected()
}

func (c *Client) handleMulti(body []byte) {
	multi, err := schema.UnmarshalCMsgMulti(body)
	if err != nil {
		c.failFatal(&ProtocolError{Reason: err.Error()})
		return
	}

	payload := multi.MessageBody
	if multi.SizeUnzipped > 0 {
		unzipped, err := multizip.Decompress(payload)
		if err != nil {
			c.failFatal(&ProtocolError{Reason: err.Error()})
			return
		}
		payload = unzipped
	}

	c.expandMulti(payload)
}

func (c *Client) handleClientLogOnResponse(body []byte) {
	resp, err := schema.UnmarshalMsgClientLogOnResponse(body)
	if err != nil {
		c.failFatal(&ProtocolError{Reason: err.Error()})
		return
	}

	if resp.EResult == eresultOK {
		c.session.setLoggedOn(true)
		c.startHeartbeat(resp.OutOfGameHeartbeatSeconds)
	}
	c.handlers.logOnResponse(resp)
}

func (c *Client) handleClientLoggedOff(body []byte) {
	resp, err := schema.UnmarshalMsgClientLoggedOff(body)
	if err != nil {
		c.failFatal(&ProtocolError{Reason: err.Error()})
		return
	}

	c.session.setLoggedOn(false)
	c.stopHeartbeatLocked()
	c.handlers.loggedOff(resp.EResult)
}

func (c *Client) handleClientCMList(body []byte) {
	resp, err := schema.UnmarshalMsgClientCMList(body)
	if err != nil {
		c.failFatal(&ProtocolError{Reason: err.Error()})
		return
	}

	list := make([]serverdir.Endpoint, len(resp.CMAddresses))
	for i := range resp.CMAddresses {
		var ip [4]byte
		binary.BigEndian.PutUint32(ip[:], resp.CMAddresses[i])
		list[i] = serverdir.Endpoint{
			Host: net.IP(ip[:]).String(),
			Port: uint16(resp.CMPorts[i]),
		}
	}

	c.dir.Update(list)
	c.handlers.servers(list)
}

// startHeartbeat arms the periodic ClientHeartBeat send (spec.md §4.6
// ClientLogOnResponse). Runs only on the event loop.
func (c *Client) startHeartbeat(periodSeconds int32) {
	c.stopHeartbeatLocked()
	if periodSeconds <= 0 {
		periodSeconds = defaultHeartbeatSeconds
	}
	c.armHeartbeat(time.Duration(periodSeconds)*time.Second, c.generation)
}

func (c *Client) armHeartbeat(period time.Duration, gen int) {
	c.heartbeatTimer = time.AfterFunc(period, func() {
		c.post(func() {
			if gen != c.generation || c.session.getPhase() != phaseReady {
				return
			}
			c.sendHeartbeat()
			c.armHeartbeat(period, gen)
		})
	})
}

func (c *Client) sendHeartbeat() {
	body := schema.CMsgClientHeartBeat{}.Marshal()
	if err := c.Send(Header{Msg: EMsgClientHeartBeat, Proto: &schema.ProtoHeader{}}, body, nil); err != nil {
		c.handlers.error(fmt.Errorf("cmclient: send heartbeat: %w", err))
	}
}
