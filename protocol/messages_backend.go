package protocol

import "encoding/binary"

// SlaveConfigEntry describes one slave as announced by the backend in a
// SlaveConfig message.
type SlaveConfigEntry struct {
	DeviceID      uint32
	ConductionNum byte
	ResistanceNum byte
	ClipMode      byte
	ClipStatus    uint16
}

// SlaveConfigMsg is BACKEND->MASTER message SlaveConfig.
type SlaveConfigMsg struct {
	Slaves []SlaveConfigEntry
}

func DecodeSlaveConfig(body []byte) (SlaveConfigMsg, error) {
	if len(body) < 1 {
		return SlaveConfigMsg{}, ErrPayloadLenMismatch
	}
	n := int(body[0])
	const entrySize = 4 + 1 + 1 + 1 + 2
	if len(body) < 1+n*entrySize {
		return SlaveConfigMsg{}, ErrPayloadLenMismatch
	}
	msg := SlaveConfigMsg{Slaves: make([]SlaveConfigEntry, n)}
	off := 1
	for i := 0; i < n; i++ {
		e := SlaveConfigEntry{
			DeviceID:      binary.LittleEndian.Uint32(body[off : off+4]),
			ConductionNum: body[off+4],
			ResistanceNum: body[off+5],
			ClipMode:      body[off+6],
			ClipStatus:    binary.LittleEndian.Uint16(body[off+7 : off+9]),
		}
		msg.Slaves[i] = e
		off += entrySize
	}
	return msg, nil
}

// ModeConfigMsg is BACKEND->MASTER message ModeConfig.
type ModeConfigMsg struct {
	Mode byte
}

func DecodeModeConfig(body []byte) (ModeConfigMsg, error) {
	if len(body) < 1 {
		return ModeConfigMsg{}, ErrPayloadLenMismatch
	}
	return ModeConfigMsg{Mode: body[0]}, nil
}

// RstEntry is one slave targeted by a Rst request.
type RstEntry struct {
	DeviceID   uint32
	Lock       byte
	ClipStatus uint16
}

// RstMsg is BACKEND->MASTER message Rst.
type RstMsg struct {
	Slaves []RstEntry
}

func DecodeRst(body []byte) (RstMsg, error) {
	if len(body) < 1 {
		return RstMsg{}, ErrPayloadLenMismatch
	}
	n := int(body[0])
	const entrySize = 4 + 1 + 2
	if len(body) < 1+n*entrySize {
		return RstMsg{}, ErrPayloadLenMismatch
	}
	msg := RstMsg{Slaves: make([]RstEntry, n)}
	off := 1
	for i := 0; i < n; i++ {
		msg.Slaves[i] = RstEntry{
			DeviceID:   binary.LittleEndian.Uint32(body[off : off+4]),
			Lock:       body[off+4],
			ClipStatus: binary.LittleEndian.Uint16(body[off+5 : off+7]),
		}
		off += entrySize
	}
	return msg, nil
}

// CtrlMsg is BACKEND->MASTER message Ctrl.
type CtrlMsg struct {
	RunningStatus byte
}

func DecodeCtrl(body []byte) (CtrlMsg, error) {
	if len(body) < 1 {
		return CtrlMsg{}, ErrPayloadLenMismatch
	}
	return CtrlMsg{RunningStatus: body[0]}, nil
}

// PingCtrlMsg is BACKEND->MASTER message PingCtrl.
type PingCtrlMsg struct {
	Mode     byte
	Count    uint16
	Interval uint16
	Dest     uint32
}

func DecodePingCtrl(body []byte) (PingCtrlMsg, error) {
	if len(body) < 9 {
		return PingCtrlMsg{}, ErrPayloadLenMismatch
	}
	return PingCtrlMsg{
		Mode:     body[0],
		Count:    binary.LittleEndian.Uint16(body[1:3]),
		Interval: binary.LittleEndian.Uint16(body[3:5]),
		Dest:     binary.LittleEndian.Uint32(body[5:9]),
	}, nil
}

// IntervalConfigMsg is BACKEND->MASTER message IntervalConfig.
type IntervalConfigMsg struct {
	IntervalMs byte
}

func DecodeIntervalConfig(body []byte) (IntervalConfigMsg, error) {
	if len(body) < 1 {
		return IntervalConfigMsg{}, ErrPayloadLenMismatch
	}
	return IntervalConfigMsg{IntervalMs: body[0]}, nil
}

// DeviceListReqMsg is BACKEND->MASTER message DeviceListReq.
type DeviceListReqMsg struct {
	Reserve byte
}

func DecodeDeviceListReq(body []byte) (DeviceListReqMsg, error) {
	if len(body) < 1 {
		return DeviceListReqMsg{}, ErrPayloadLenMismatch
	}
	return DeviceListReqMsg{Reserve: body[0]}, nil
}

// ClearDeviceListMsg is BACKEND->MASTER message ClearDeviceList (no body).
type ClearDeviceListMsg struct{}

func DecodeClearDeviceList(body []byte) (ClearDeviceListMsg, error) {
	return ClearDeviceListMsg{}, nil
}

// --- Master -> Backend responses ---

// EncodeSlaveConfigRsp encodes Master->Backend SlaveConfigRsp, echoing the
// accepted per-slave configuration back to the backend.
func EncodeSlaveConfigRsp(status byte, slaves []SlaveConfigEntry) []byte {
	const entrySize = 4 + 1 + 1 + 1 + 2
	out := make([]byte, 2+len(slaves)*entrySize)
	out[0] = status
	out[1] = byte(len(slaves))
	off := 2
	for _, e := range slaves {
		binary.LittleEndian.PutUint32(out[off:off+4], e.DeviceID)
		out[off+4] = e.ConductionNum
		out[off+5] = e.ResistanceNum
		out[off+6] = e.ClipMode
		binary.LittleEndian.PutUint16(out[off+7:off+9], e.ClipStatus)
		off += entrySize
	}
	return out
}

// EncodeModeConfigRsp encodes Master->Backend ModeConfigRsp: the fan-out's
// overall status and the mode it was applied to. No per-slave list.
func EncodeModeConfigRsp(status, mode byte) []byte {
	return []byte{status, mode}
}

// EncodeRstRsp encodes Master->Backend RstRsp, echoing each targeted
// slave's requested lock/clip_status back to the backend rather than a
// per-slave completion code.
func EncodeRstRsp(status byte, slaves []RstEntry) []byte {
	const entrySize = 4 + 1 + 2
	out := make([]byte, 2+len(slaves)*entrySize)
	out[0] = status
	out[1] = byte(len(slaves))
	off := 2
	for _, e := range slaves {
		binary.LittleEndian.PutUint32(out[off:off+4], e.DeviceID)
		out[off+4] = e.Lock
		binary.LittleEndian.PutUint16(out[off+5:off+7], e.ClipStatus)
		off += entrySize
	}
	return out
}

// EncodeCtrlRsp encodes Master->Backend CtrlRsp, echoing the requested
// running_status back to the backend.
func EncodeCtrlRsp(status, runningStatus byte) []byte {
	return []byte{status, runningStatus}
}

// EncodePingCtrlRsp encodes Master->Backend PingRsp summary.
func EncodePingCtrlRsp(mode byte, total, succeeded uint16, dest uint32) []byte {
	out := make([]byte, 9)
	out[0] = mode
	binary.LittleEndian.PutUint16(out[1:3], total)
	binary.LittleEndian.PutUint16(out[3:5], succeeded)
	binary.LittleEndian.PutUint32(out[5:9], dest)
	return out
}

// EncodeIntervalConfigRsp encodes Master->Backend IntervalConfigRsp,
// echoing the interval it was applied to.
func EncodeIntervalConfigRsp(status, intervalMs byte) []byte {
	return []byte{status, intervalMs}
}

// DeviceListEntry describes one registry entry in a DeviceList response.
// VersionMajor/Minor/Patch echo the slave's firmware version, matching the
// backend contract's fixed 10-byte-per-device stride exactly; there is no
// battery field on the wire (see DESIGN.md).
type DeviceListEntry struct {
	DeviceID     uint32
	ShortID      byte
	Online       bool
	VersionMajor byte
	VersionMinor byte
	VersionPatch uint16
}

// EncodeDeviceListRsp encodes Master->Backend DeviceListRsp.
func EncodeDeviceListRsp(devices []DeviceListEntry) []byte {
	const entrySize = 4 + 1 + 1 + 1 + 1 + 2
	out := make([]byte, 1+len(devices)*entrySize)
	out[0] = byte(len(devices))
	off := 1
	for _, d := range devices {
		binary.LittleEndian.PutUint32(out[off:off+4], d.DeviceID)
		out[off+4] = d.ShortID
		if d.Online {
			out[off+5] = 1
		}
		out[off+6] = d.VersionMajor
		out[off+7] = d.VersionMinor
		binary.LittleEndian.PutUint16(out[off+8:off+10], d.VersionPatch)
		off += entrySize
	}
	return out
}

// EncodeClearDeviceListRsp encodes Master->Backend ClearDeviceListRsp.
func EncodeClearDeviceListRsp(status byte) []byte {
	return []byte{status}
}
