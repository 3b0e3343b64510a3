package cmclient

import "encoding/binary"

// expandMulti implements the Multi Expander (spec.md §4.6, §9 "Multi
// Expander"): while payload is non-empty and the session is still
// connected, read a little-endian u32 sub-size, recursively feed the next
// sub_size bytes into the Dispatcher, and advance. Re-checking connected
// every iteration lets a handler that triggers disconnect abort the batch
// cleanly.
func (c *Client) expandMulti(payload []byte) {
	for len(payload) > 0 {
		if !c.session.isConnected() {
			return
		}

		if len(payload) < 4 {
			c.failFatal(&ProtocolError{Reason: "multi: truncated sub-frame length"})
			return
		}
		subLen := binary.LittleEndian.Uint32(payload[:4])
		payload = payload[4:]

		if uint64(subLen) > uint64(len(payload)) {
			c.failFatal(&ProtocolError{Reason: "multi: sub-frame length exceeds remaining payload"})
			return
		}
		sub := payload[:subLen]
		payload = payload[subLen:]

		c.onPacket(sub)
	}
}
