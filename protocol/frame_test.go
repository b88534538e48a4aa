package protocol

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		frame *Frame
	}{
		{"empty payload", &Frame{Class: ClassMasterToSlave, FragmentSeq: 0, MoreFragments: false, Payload: []byte{}}},
		{"small payload", &Frame{Class: ClassSlaveToMaster, FragmentSeq: 3, MoreFragments: true, Payload: []byte{1, 2, 3, 4, 5}}},
		{"max mtu payload", &Frame{Class: ClassMasterToBackend, FragmentSeq: 255, MoreFragments: false, Payload: bytes.Repeat([]byte{0xAA}, DefaultMTU-FrameHeaderSize)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := EncodeFrame(tt.frame)
			decoded, err := DecodeFrame(encoded)
			if err != nil {
				t.Fatalf("DecodeFrame() error = %v", err)
			}
			if decoded.Class != tt.frame.Class {
				t.Errorf("Class = %v, want %v", decoded.Class, tt.frame.Class)
			}
			if decoded.FragmentSeq != tt.frame.FragmentSeq {
				t.Errorf("FragmentSeq = %v, want %v", decoded.FragmentSeq, tt.frame.FragmentSeq)
			}
			if decoded.MoreFragments != tt.frame.MoreFragments {
				t.Errorf("MoreFragments = %v, want %v", decoded.MoreFragments, tt.frame.MoreFragments)
			}
			if !bytes.Equal(decoded.Payload, tt.frame.Payload) {
				t.Errorf("Payload mismatch: got %v, want %v", decoded.Payload, tt.frame.Payload)
			}
		})
	}
}

func TestDecodeFrameInvalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"nil data", nil},
		{"too short", []byte{FrameMagic1, FrameMagic2}},
		{"bad magic", []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
		{"truncated payload", func() []byte {
			f := EncodeFrame(&Frame{Class: ClassMasterToSlave, Payload: []byte{1, 2, 3, 4, 5}})
			return f[:len(f)-2]
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeFrame(tt.data); err == nil {
				t.Error("DecodeFrame() = nil error, want error for invalid frame")
			}
		})
	}
}
