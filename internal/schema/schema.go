// Package schema stands in for the code-generated protobuf schema module
// spec.md §1 treats as an external collaborator. It defines the handful of
// CM messages this client interprets directly. Each type encodes itself
// with encoding/binary the same way the teacher's own wire structs
// (AuthPacket, TransPacket in pkg/session/protocol.go) do, rather than
// through a generated protobuf codec — a protoc toolchain is not available
// in this environment, and every field this client actually reads is a
// fixed-shape scalar or byte slice, so a hand-rolled fixed-layout encoding
// carries the same information a generated accessor would expose.
package schema

import (
	"encoding/binary"
	"fmt"
)

// ProtoHeader is the payload of a wire Proto header (spec.md §3, §6).
// Extra holds any additional protobuf fields the real schema would carry;
// this client never inspects them, so they round-trip opaquely.
type ProtoHeader struct {
	ClientSessionID int32
	SteamID         uint64
	JobIDSource     uint64
	JobIDTarget     uint64
	Extra           []byte
}

// Marshal encodes h into the fixed-layout form read by UnmarshalProtoHeader.
func (h ProtoHeader) Marshal() []byte {
	buf := make([]byte, 4+8+8+8+4+len(h.Extra))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.ClientSessionID))
	binary.LittleEndian.PutUint64(buf[4:12], h.SteamID)
	binary.LittleEndian.PutUint64(buf[12:20], h.JobIDSource)
	binary.LittleEndian.PutUint64(buf[20:28], h.JobIDTarget)
	binary.LittleEndian.PutUint32(buf[28:32], uint32(len(h.Extra)))
	copy(buf[32:], h.Extra)
	return buf
}

// UnmarshalProtoHeader decodes a ProtoHeader produced by Marshal.
func UnmarshalProtoHeader(data []byte) (ProtoHeader, error) {
	if len(data) < 32 {
		return ProtoHeader{}, fmt.Errorf("schema: proto header too short (%d bytes)", len(data))
	}
	h := ProtoHeader{
		ClientSessionID: int32(binary.LittleEndian.Uint32(data[0:4])),
		SteamID:         binary.LittleEndian.Uint64(data[4:12]),
		JobIDSource:     binary.LittleEndian.Uint64(data[12:20]),
		JobIDTarget:     binary.LittleEndian.Uint64(data[20:28]),
	}
	extraLen := binary.LittleEndian.Uint32(data[28:32])
	if uint32(len(data)-32) < extraLen {
		return ProtoHeader{}, fmt.Errorf("schema: proto header extra field truncated")
	}
	h.Extra = append([]byte(nil), data[32:32+extraLen]...)
	return h, nil
}

// CMsgMulti is the body of an EMsgMulti frame (spec.md §4.6).
type CMsgMulti struct {
	SizeUnzipped uint32
	MessageBody  []byte
}

func (m CMsgMulti) Marshal() []byte {
	buf := make([]byte, 4+4+len(m.MessageBody))
	binary.LittleEndian.PutUint32(buf[0:4], m.SizeUnzipped)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(m.MessageBody)))
	copy(buf[8:], m.MessageBody)
	return buf
}

func UnmarshalCMsgMulti(data []byte) (*CMsgMulti, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("schema: CMsgMulti too short (%d bytes)", len(data))
	}
	m := &CMsgMulti{SizeUnzipped: binary.LittleEndian.Uint32(data[0:4])}
	bodyLen := binary.LittleEndian.Uint32(data[4:8])
	if uint32(len(data)-8) < bodyLen {
		return nil, fmt.Errorf("schema: CMsgMulti body truncated")
	}
	m.MessageBody = data[8 : 8+bodyLen]
	return m, nil
}

// CMsgClientHeartBeat is always empty on the wire.
type CMsgClientHeartBeat struct{}

func (CMsgClientHeartBeat) Marshal() []byte { return nil }

// CMsgChannelEncryptResult is the body of an EMsgChannelEncryptResult frame.
type CMsgChannelEncryptResult struct {
	Result int32
}

func UnmarshalCMsgChannelEncryptResult(data []byte) (*CMsgChannelEncryptResult, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("schema: CMsgChannelEncryptResult too short (%d bytes)", len(data))
	}
	return &CMsgChannelEncryptResult{Result: int32(binary.LittleEndian.Uint32(data[0:4]))}, nil
}

// MsgClientLogOnResponse is the body of an EMsgClientLogOnResponse frame.
type MsgClientLogOnResponse struct {
	EResult                   int32
	OutOfGameHeartbeatSeconds int32
}

func UnmarshalMsgClientLogOnResponse(data []byte) (*MsgClientLogOnResponse, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("schema: MsgClientLogOnResponse too short (%d bytes)", len(data))
	}
	return &MsgClientLogOnResponse{
		EResult:                   int32(binary.LittleEndian.Uint32(data[0:4])),
		OutOfGameHeartbeatSeconds: int32(binary.LittleEndian.Uint32(data[4:8])),
	}, nil
}

// MsgClientLoggedOff is the body of an EMsgClientLoggedOff frame.
type MsgClientLoggedOff struct {
	EResult int32
}

func UnmarshalMsgClientLoggedOff(data []byte) (*MsgClientLoggedOff, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("schema: MsgClientLoggedOff too short (%d bytes)", len(data))
	}
	return &MsgClientLoggedOff{EResult: int32(binary.LittleEndian.Uint32(data[0:4]))}, nil
}

// MsgClientCMList is the body of an EMsgClientCMList frame: parallel arrays
// of big-endian IPv4 addresses and their ports.
type MsgClientCMList struct {
	CMAddresses []uint32
	CMPorts     []uint32
}

func UnmarshalMsgClientCMList(data []byte) (*MsgClientCMList, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("schema: MsgClientCMList too short (%d bytes)", len(data))
	}
	count := binary.LittleEndian.Uint32(data[0:4])
	need := 4 + int(count)*8
	if len(data) < need {
		return nil, fmt.Errorf("schema: MsgClientCMList truncated (need %d, have %d)", need, len(data))
	}
	m := &MsgClientCMList{
		CMAddresses: make([]uint32, count),
		CMPorts:     make([]uint32, count),
	}
	off := 4
	for i := uint32(0); i < count; i++ {
		m.CMAddresses[i] = binary.BigEndian.Uint32(data[off : off+4])
		off += 4
	}
	for i := uint32(0); i < count; i++ {
		m.CMPorts[i] = binary.LittleEndian.Uint32(data[off : off+4])
		off += 4
	}
	return m, nil
}
