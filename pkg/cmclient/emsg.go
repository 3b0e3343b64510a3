package cmclient

// EMsg is the 32-bit message-type enumeration used on the wire. Bit 31 is
// reserved to flag a Proto header (spec.md §3, GLOSSARY).
type EMsg uint32

const protoMask uint32 = 0x80000000

// Messages this client acts on directly. The full vendor enumeration is far
// larger; only the subset the dispatcher and internal handlers need a name
// for is declared here, matching spec.md §4.6's list of internal handlers.
const (
	EMsgChannelEncryptRequest  EMsg = 1303
	EMsgChannelEncryptResponse EMsg = 1304
	EMsgChannelEncryptResult   EMsg = 1305

	EMsgMulti EMsg = 1

	EMsgClientLogOnResponse EMsg = 751
	EMsgClientHeartBeat     EMsg = 703
	EMsgClientLoggedOff     EMsg = 4
	EMsgClientCMList        EMsg = 283
)

// eresultOK is the well-known "success" result code shared by every eresult
// field this client inspects (ChannelEncryptResult, ClientLogOnResponse).
const eresultOK int32 = 1

// splitRawEMsg extracts the logical EMsg and the proto-header flag from the
// raw little-endian u32 that leads every frame.
func splitRawEMsg(raw uint32) (msg EMsg, isProto bool) {
	return EMsg(raw &^ protoMask), raw&protoMask != 0
}

// encodeRawEMsg produces the on-wire u32 for msg, setting bit 31 when the
// frame carries a Proto header.
func encodeRawEMsg(msg EMsg, proto bool) uint32 {
	raw := uint32(msg)
	if proto {
		raw |= protoMask
	}
	return raw
}
