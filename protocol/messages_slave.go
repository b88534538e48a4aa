package protocol

import "encoding/binary"

// SyncSlot is one slave's TDMA slot assignment inside a Sync broadcast.
type SyncSlot struct {
	DeviceID  uint32
	TimeSlot  byte
	TestCount uint16
}

// SyncMsg is MASTER->SLAVE message Sync: the unified periodic broadcast
// carrying mode, interval, time base, and per-slave slot/test-count
// assignments. Individual SetTime/ConductionConfig/SlaveControl messages
// are deprecated; only Sync is emitted by this implementation.
type SyncMsg struct {
	Mode          byte
	IntervalMs    byte
	CurrentTimeUs uint64
	StartTimeUs   uint64
	Slots         []SyncSlot
}

// EncodeSync serialises a Sync message body.
func EncodeSync(m SyncMsg) []byte {
	out := make([]byte, 1+1+8+8+1+len(m.Slots)*7)
	out[0] = m.Mode
	out[1] = m.IntervalMs
	binary.LittleEndian.PutUint64(out[2:10], m.CurrentTimeUs)
	binary.LittleEndian.PutUint64(out[10:18], m.StartTimeUs)
	out[18] = byte(len(m.Slots))
	off := 19
	for _, s := range m.Slots {
		binary.LittleEndian.PutUint32(out[off:off+4], s.DeviceID)
		out[off+4] = s.TimeSlot
		binary.LittleEndian.PutUint16(out[off+5:off+7], s.TestCount)
		off += 7
	}
	return out
}

// DecodeSync parses a Sync message body (used by test harnesses emulating
// slave firmware).
func DecodeSync(body []byte) (SyncMsg, error) {
	if len(body) < 19 {
		return SyncMsg{}, ErrPayloadLenMismatch
	}
	n := int(body[18])
	if len(body) < 19+n*7 {
		return SyncMsg{}, ErrPayloadLenMismatch
	}
	m := SyncMsg{
		Mode:          body[0],
		IntervalMs:    body[1],
		CurrentTimeUs: binary.LittleEndian.Uint64(body[2:10]),
		StartTimeUs:   binary.LittleEndian.Uint64(body[10:18]),
		Slots:         make([]SyncSlot, n),
	}
	off := 19
	for i := 0; i < n; i++ {
		m.Slots[i] = SyncSlot{
			DeviceID:  binary.LittleEndian.Uint32(body[off : off+4]),
			TimeSlot:  body[off+4],
			TestCount: binary.LittleEndian.Uint16(body[off+5 : off+7]),
		}
		off += 7
	}
	return m, nil
}

// ShortIdAssignMsg is MASTER->SLAVE message ShortIdAssign.
type ShortIdAssignMsg struct {
	ShortID byte
}

func EncodeShortIdAssign(shortID byte) []byte {
	return []byte{shortID}
}

func DecodeShortIdAssign(body []byte) (ShortIdAssignMsg, error) {
	if len(body) < 1 {
		return ShortIdAssignMsg{}, ErrPayloadLenMismatch
	}
	return ShortIdAssignMsg{ShortID: body[0]}, nil
}

// PingReqMsg is MASTER->SLAVE message PingReq.
type PingReqMsg struct {
	Seq uint16
	Ts  uint32
}

func EncodePingReq(seq uint16, ts uint32) []byte {
	out := make([]byte, 6)
	binary.LittleEndian.PutUint16(out[0:2], seq)
	binary.LittleEndian.PutUint32(out[2:6], ts)
	return out
}

func DecodePingReq(body []byte) (PingReqMsg, error) {
	if len(body) < 6 {
		return PingReqMsg{}, ErrPayloadLenMismatch
	}
	return PingReqMsg{Seq: binary.LittleEndian.Uint16(body[0:2]), Ts: binary.LittleEndian.Uint32(body[2:6])}, nil
}

// EncodeSlaveRst serialises the body of a backend-triggered Rst command
// forwarded to one slave. This reuses message ID MsgSlaveRst: unlike the
// periodic per-slave config push it replaces (now carried by Sync), an
// explicit backend Rst request has no Sync-carried equivalent, so it is
// still emitted on the wire despite MsgSlaveRst's general legacy status.
func EncodeSlaveRst(lock byte, clipStatus uint16) []byte {
	out := make([]byte, 3)
	out[0] = lock
	binary.LittleEndian.PutUint16(out[1:3], clipStatus)
	return out
}

// LegacyMsg captures the raw body of a deprecated MASTER->SLAVE message
// (SetTime, ConductionConfig, ResistanceConfig, ClipConfig, SlaveRst,
// SlaveControl). These remain decodable for interop with older slave
// firmware; none is emitted by this implementation except SlaveRst (see
// EncodeSlaveRst).
type LegacyMsg struct {
	ID   byte
	Body []byte
}

func DecodeLegacy(id byte, body []byte) LegacyMsg {
	return LegacyMsg{ID: id, Body: body}
}

// --- Slave -> Master ---

// AnnounceMsg is SLAVE->MASTER message Announce: a slave's unsolicited
// self-introduction on joining the network.
type AnnounceMsg struct {
	DeviceID uint32
	Major    byte
	Minor    byte
	Patch    uint16
}

func DecodeAnnounce(body []byte) (AnnounceMsg, error) {
	if len(body) < 8 {
		return AnnounceMsg{}, ErrPayloadLenMismatch
	}
	return AnnounceMsg{
		DeviceID: binary.LittleEndian.Uint32(body[0:4]),
		Major:    body[4],
		Minor:    body[5],
		Patch:    binary.LittleEndian.Uint16(body[6:8]),
	}, nil
}

// ShortIdConfirmMsg is SLAVE->MASTER message ShortIdConfirm.
type ShortIdConfirmMsg struct {
	Status  byte
	ShortID byte
}

func DecodeShortIdConfirm(body []byte) (ShortIdConfirmMsg, error) {
	if len(body) < 2 {
		return ShortIdConfirmMsg{}, ErrPayloadLenMismatch
	}
	return ShortIdConfirmMsg{Status: body[0], ShortID: body[1]}, nil
}

// PingRspMsg is SLAVE->MASTER message PingRsp.
type PingRspMsg struct {
	Seq uint16
	Ts  uint32
}

func DecodePingRsp(body []byte) (PingRspMsg, error) {
	if len(body) < 6 {
		return PingRspMsg{}, ErrPayloadLenMismatch
	}
	return PingRspMsg{Seq: binary.LittleEndian.Uint16(body[0:2]), Ts: binary.LittleEndian.Uint32(body[2:6])}, nil
}

// RstResponseMsg is SLAVE->MASTER message RstResponse.
type RstResponseMsg struct {
	Status  byte
	Lock    byte
	ClipLed uint16
}

func DecodeRstResponse(body []byte) (RstResponseMsg, error) {
	if len(body) < 4 {
		return RstResponseMsg{}, ErrPayloadLenMismatch
	}
	return RstResponseMsg{
		Status:  body[0],
		Lock:    body[1],
		ClipLed: binary.LittleEndian.Uint16(body[2:4]),
	}, nil
}

// LegacyCfgRspMsg captures one of the three legacy per-mode config-response
// variants (ConductionCfgRsp, ResistanceCfgRsp, ClipCfgRsp). The original
// firmware uses asymmetric field orders between request and response for
// these; only the status byte is load-bearing for backend-response
// correlation (§4.4), so that is all this implementation decodes.
type LegacyCfgRspMsg struct {
	Status byte
}

func DecodeLegacyCfgRsp(body []byte) (LegacyCfgRspMsg, error) {
	if len(body) < 1 {
		return LegacyCfgRspMsg{}, ErrPayloadLenMismatch
	}
	return LegacyCfgRspMsg{Status: body[0]}, nil
}
