package protocol

import "encoding/binary"

// FragmentPacket splits a logical packet's payload into one or more Frames
// sized to mtu (including the 7-byte header). Fragment 0 carries the first
// mtu-7 bytes of payload, and so on; fragment_seq increases by one per
// fragment, more_fragments is set on every fragment but the last.
func FragmentPacket(class byte, payload []byte, mtu int) []*Frame {
	maxChunk := mtu - FrameHeaderSize
	if maxChunk <= 0 {
		maxChunk = 1
	}

	if len(payload) == 0 {
		return []*Frame{{Class: class, FragmentSeq: 0, MoreFragments: false, Payload: nil}}
	}

	var frames []*Frame
	seq := byte(0)
	for offset := 0; offset < len(payload); offset += maxChunk {
		end := offset + maxChunk
		if end > len(payload) {
			end = len(payload)
		}
		frames = append(frames, &Frame{
			Class:         class,
			FragmentSeq:   seq,
			MoreFragments: end < len(payload),
			Payload:       payload[offset:end],
		})
		seq++
	}
	return frames
}

// PackBackendToMaster and PackMasterToBackend share the BACKEND/MASTER
// payload framing: message_id (1 byte) followed by the serialized body.

// PackMasterToBackend fragments a Master->Backend message for transmission.
func PackMasterToBackend(messageID byte, body []byte, mtu int) []*Frame {
	payload := append([]byte{messageID}, body...)
	return FragmentPacket(ClassMasterToBackend, payload, mtu)
}

// PackBackendToMaster fragments a Backend->Master message (used by test
// harnesses emulating the backend side).
func PackBackendToMaster(messageID byte, body []byte, mtu int) []*Frame {
	payload := append([]byte{messageID}, body...)
	return FragmentPacket(ClassBackendToMaster, payload, mtu)
}

// PackMasterToSlave fragments a Master->Slave message. The payload is
// prefixed with the 32-bit LE destination device_id (BroadcastDeviceID for
// all slaves) ahead of the message_id and body.
func PackMasterToSlave(deviceID uint32, messageID byte, body []byte, mtu int) []*Frame {
	payload := make([]byte, 5+len(body))
	binary.LittleEndian.PutUint32(payload[0:4], deviceID)
	payload[4] = messageID
	copy(payload[5:], body)
	return FragmentPacket(ClassMasterToSlave, payload, mtu)
}

// PackSlaveToMaster fragments a Slave->Master message (used by test
// harnesses emulating slave replies).
func PackSlaveToMaster(deviceID uint32, messageID byte, body []byte, mtu int) []*Frame {
	payload := make([]byte, 5+len(body))
	binary.LittleEndian.PutUint32(payload[0:4], deviceID)
	payload[4] = messageID
	copy(payload[5:], body)
	return FragmentPacket(ClassSlaveToMaster, payload, mtu)
}

// ParseBackendOrMasterPayload splits a reassembled BACKEND<->MASTER payload
// into its message_id and body.
func ParseBackendOrMasterPayload(payload []byte) (msgID byte, body []byte, err error) {
	if len(payload) < 1 {
		return 0, nil, ErrPayloadLenMismatch
	}
	return payload[0], payload[1:], nil
}

// ParseSlaveOrMasterPayload splits a reassembled MASTER<->SLAVE payload into
// its device_id, message_id and body.
func ParseSlaveOrMasterPayload(payload []byte) (deviceID uint32, msgID byte, body []byte, err error) {
	if len(payload) < 5 {
		return 0, 0, nil, ErrPayloadLenMismatch
	}
	deviceID = binary.LittleEndian.Uint32(payload[0:4])
	return deviceID, payload[4], payload[5:], nil
}
