package protocol

import "encoding/binary"

// CompletePacket is a fully reassembled logical packet: every fragment has
// been concatenated in fragment_seq order up to a terminator frame.
type CompletePacket struct {
	Class   byte
	Payload []byte
}

type pendingChain struct {
	class   byte
	nextSeq byte
	payload []byte
}

// Reassembler scans an inbound byte stream for Frames, concatenates
// fragments belonging to the same logical packet, and queues completed
// packets for the consumer. One Reassembler should be used per transport
// (radio, UDP) since each maintains its own in-progress fragment chain.
type Reassembler struct {
	buf      []byte
	current  *pendingChain
	complete []CompletePacket
}

// NewReassembler returns an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// ProcessReceived appends newly received bytes to the internal buffer and
// scans it for complete Frames, feeding each into the fragment-chain state
// machine. It always makes forward progress even if the stream starts
// mid-packet or contains garbage.
func (r *Reassembler) ProcessReceived(data []byte) {
	r.buf = append(r.buf, data...)

	for {
		idx := findMagic(r.buf)
		if idx < 0 {
			// Keep a trailing byte that might be the start of a magic
			// sequence split across two reads.
			if len(r.buf) > 0 && r.buf[len(r.buf)-1] == FrameMagic1 {
				r.buf = r.buf[len(r.buf)-1:]
			} else {
				r.buf = r.buf[:0]
			}
			return
		}
		if idx > 0 {
			r.buf = r.buf[idx:]
		}

		if len(r.buf) < FrameHeaderSize {
			return // wait for the rest of the header
		}

		payloadLen := int(binary.LittleEndian.Uint16(r.buf[5:7]))
		if payloadLen > DefaultMTU {
			// Implausible length for this header position: the magic bytes
			// we matched on were probably payload bytes, not a real header.
			// Drop them and keep scanning so we always make progress.
			r.buf = r.buf[2:]
			continue
		}

		total := FrameHeaderSize + payloadLen
		if len(r.buf) < total {
			return // wait for the rest of the payload
		}

		frame, err := DecodeFrame(r.buf[:total])
		r.buf = r.buf[total:]
		if err != nil {
			continue
		}
		r.handleFrame(frame)
	}
}

func (r *Reassembler) handleFrame(frame *Frame) {
	if r.current != nil && (frame.Class != r.current.class || frame.FragmentSeq != r.current.nextSeq) {
		// Sequence broken mid-chain: discard the unterminated chain.
		r.current = nil
	}

	if r.current == nil {
		if frame.FragmentSeq != 0 {
			// A fragment other than the first, with no chain in progress:
			// we missed the start of this packet. Drop it.
			return
		}
		r.current = &pendingChain{class: frame.Class}
	}

	r.current.payload = append(r.current.payload, frame.Payload...)
	r.current.nextSeq = frame.FragmentSeq + 1

	if !frame.MoreFragments {
		r.complete = append(r.complete, CompletePacket{Class: r.current.class, Payload: r.current.payload})
		r.current = nil
	}
}

// NextCompletePacket pops the oldest fully reassembled packet, if any.
func (r *Reassembler) NextCompletePacket() (CompletePacket, bool) {
	if len(r.complete) == 0 {
		return CompletePacket{}, false
	}
	p := r.complete[0]
	r.complete = r.complete[1:]
	return p, true
}

// findMagic returns the offset of the first occurrence of the two magic
// bytes in buf, or -1 if none is present.
func findMagic(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == FrameMagic1 && buf[i+1] == FrameMagic2 {
			return i
		}
	}
	return -1
}
