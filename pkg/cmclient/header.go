package cmclient

import (
	"encoding/binary"
	"fmt"

	"github.com/junbin-yang/steamcm/internal/schema"
)

// NoJob is the sentinel job id meaning "no correlation" (spec.md §3, §6).
const NoJob uint64 = ^uint64(0)

// HeaderVariant tags which of the three wire header shapes a Header carries
// (spec.md §3). Modeling this as a tagged variant, rather than dispatching
// on runtime shape the way the vendor's original client does, is the
// typed-rewrite called for in spec.md §9.
type HeaderVariant int

const (
	HeaderPlain HeaderVariant = iota
	HeaderProto
	HeaderExtended
)

const (
	extendedHeaderSize    = 36
	extendedHeaderVersion = uint16(2)
	extendedHeaderCanary  = byte(239)
)

// Header is the normalized, in-process form of whichever header variant a
// frame carries.
type Header struct {
	Variant HeaderVariant
	Msg     EMsg

	// Plain / Extended job ids.
	TargetJob uint64
	SourceJob uint64

	// Extended-only identity fields.
	SteamID   uint64
	SessionID int32

	// Proto-only payload.
	Proto *schema.ProtoHeader
}

// SourceJobID returns the source job id regardless of variant.
func (h Header) SourceJobID() uint64 {
	if h.Variant == HeaderProto {
		if h.Proto == nil {
			return NoJob
		}
		return h.Proto.JobIDSource
	}
	return h.SourceJob
}

// TargetJobID returns the target job id regardless of variant.
func (h Header) TargetJobID() uint64 {
	if h.Variant == HeaderProto {
		if h.Proto == nil {
			return NoJob
		}
		return h.Proto.JobIDTarget
	}
	return h.TargetJob
}

// StampReplyTarget sets the target job id on whichever variant h carries,
// used by the dispatcher's reply() continuation (spec.md §4.5 step 6). It
// keys off h.Proto rather than h.Variant so it works equally on headers
// decoded off the wire and on headers an application just constructed for
// an outbound send.
func (h *Header) StampReplyTarget(id uint64) {
	if h.Proto != nil {
		h.Proto.JobIDTarget = id
		return
	}
	h.TargetJob = id
}

// SetSourceJob sets the source job id on whichever variant h carries.
func (h *Header) SetSourceJob(id uint64) {
	if h.Proto != nil {
		h.Proto.JobIDSource = id
		return
	}
	h.SourceJob = id
}

// normalizeHeader implements the Header Codec's normalize operation
// (spec.md §4.2).
func normalizeHeader(h Header) (sourceJob, targetJob uint64) {
	return h.SourceJobID(), h.TargetJobID()
}

// decodeRawEMsg implements the Header Codec's decode_raw_emsg operation.
func decodeRawEMsg(frame []byte) (EMsg, bool, error) {
	if len(frame) < 4 {
		return 0, false, fmt.Errorf("cmclient: frame shorter than a raw emsg (%d bytes)", len(frame))
	}
	raw := binary.LittleEndian.Uint32(frame[0:4])
	msg, isProto := splitRawEMsg(raw)
	return msg, isProto, nil
}

// decodeHeader implements the Header Codec's decode operation: it picks the
// variant per spec.md §3's wire rule and splits frame into (Header, body).
func decodeHeader(frame []byte) (Header, []byte, error) {
	msg, isProto, err := decodeRawEMsg(frame)
	if err != nil {
		return Header{}, nil, err
	}

	switch {
	case isProto:
		return decodeProtoHeader(msg, frame)
	case msg == EMsgChannelEncryptRequest || msg == EMsgChannelEncryptResponse || msg == EMsgChannelEncryptResult:
		return decodePlainHeader(msg, frame)
	default:
		return decodeExtendedHeader(msg, frame)
	}
}

func decodePlainHeader(msg EMsg, frame []byte) (Header, []byte, error) {
	const size = 4 + 8 + 8
	if len(frame) < size {
		return Header{}, nil, &ProtocolError{Reason: fmt.Sprintf("plain header too short (%d bytes)", len(frame))}
	}
	h := Header{
		Variant:   HeaderPlain,
		Msg:       msg,
		TargetJob: binary.LittleEndian.Uint64(frame[4:12]),
		SourceJob: binary.LittleEndian.Uint64(frame[12:20]),
	}
	return h, frame[size:], nil
}

func decodeProtoHeader(msg EMsg, frame []byte) (Header, []byte, error) {
	const fixed = 4 + 4
	if len(frame) < fixed {
		return Header{}, nil, &ProtocolError{Reason: fmt.Sprintf("proto header length field truncated (%d bytes)", len(frame))}
	}
	headerLen := int(int32(binary.LittleEndian.Uint32(frame[4:8])))
	if headerLen < 0 || len(frame) < fixed+headerLen {
		return Header{}, nil, &ProtocolError{Reason: fmt.Sprintf("proto header body truncated (want %d, have %d)", headerLen, len(frame)-fixed)}
	}

	h := Header{Variant: HeaderProto, Msg: msg}
	if headerLen > 0 {
		ph, err := schema.UnmarshalProtoHeader(frame[fixed : fixed+headerLen])
		if err != nil {
			return Header{}, nil, &ProtocolError{Reason: err.Error()}
		}
		h.Proto = &ph
	}
	return h, frame[fixed+headerLen:], nil
}

func decodeExtendedHeader(msg EMsg, frame []byte) (Header, []byte, error) {
	if len(frame) < extendedHeaderSize {
		return Header{}, nil, &ProtocolError{Reason: fmt.Sprintf("extended header too short (%d bytes)", len(frame))}
	}
	// Layout: u32 emsg, u8 header_size, u16 header_version, u64 target_job,
	// u64 source_job, u8 header_canary, u64 steam_id, i32 session_id.
	h := Header{
		Variant:   HeaderExtended,
		Msg:       msg,
		TargetJob: binary.LittleEndian.Uint64(frame[7:15]),
		SourceJob: binary.LittleEndian.Uint64(frame[15:23]),
		SteamID:   binary.LittleEndian.Uint64(frame[24:32]),
		SessionID: int32(binary.LittleEndian.Uint32(frame[32:36])),
	}
	return h, frame[extendedHeaderSize:], nil
}

// encodeHeader implements the Header Codec's encode operation, including
// the mirror-image variant-selection rule and session stamping (spec.md
// §4.2).
func encodeHeader(state sessionIdentity, h Header, body []byte) []byte {
	switch {
	case h.Msg == EMsgChannelEncryptResponse:
		return encodePlainHeader(h, body)
	case h.Proto != nil:
		h.Proto.ClientSessionID = state.SessionID
		h.Proto.SteamID = state.SteamID
		return encodeProtoHeader(h, body)
	default:
		h.SessionID = state.SessionID
		h.SteamID = state.SteamID
		return encodeExtendedHeader(h, body)
	}
}

type sessionIdentity struct {
	SessionID int32
	SteamID   uint64
}

func encodePlainHeader(h Header, body []byte) []byte {
	buf := make([]byte, 4+8+8+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], encodeRawEMsg(h.Msg, false))
	binary.LittleEndian.PutUint64(buf[4:12], h.TargetJob)
	binary.LittleEndian.PutUint64(buf[12:20], h.SourceJob)
	copy(buf[20:], body)
	return buf
}

func encodeProtoHeader(h Header, body []byte) []byte {
	if h.Proto == nil {
		h.Proto = &schema.ProtoHeader{}
	}
	phBytes := h.Proto.Marshal()

	buf := make([]byte, 4+4+len(phBytes)+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], encodeRawEMsg(h.Msg, true))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(phBytes)))
	copy(buf[8:], phBytes)
	copy(buf[8+len(phBytes):], body)
	return buf
}

func encodeExtendedHeader(h Header, body []byte) []byte {
	buf := make([]byte, extendedHeaderSize+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], encodeRawEMsg(h.Msg, false))
	buf[4] = extendedHeaderSize
	binary.LittleEndian.PutUint16(buf[5:7], extendedHeaderVersion)
	binary.LittleEndian.PutUint64(buf[7:15], h.TargetJob)
	binary.LittleEndian.PutUint64(buf[15:23], h.SourceJob)
	buf[23] = extendedHeaderCanary
	binary.LittleEndian.PutUint64(buf[24:32], h.SteamID)
	binary.LittleEndian.PutUint32(buf[32:36], uint32(h.SessionID))
	copy(buf[extendedHeaderSize:], body)
	return buf
}
