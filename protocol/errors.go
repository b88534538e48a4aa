package protocol

import "errors"

var (
	ErrFrameMagic         = errors.New("frame magic mismatch")
	ErrFrameShort         = errors.New("frame shorter than header")
	ErrUnknownMessageID   = errors.New("unknown message id")
	ErrPayloadLenMismatch = errors.New("payload length mismatch")
	ErrPoolExhausted      = errors.New("short-id pool exhausted")
	ErrTooManyAnnounces   = errors.New("device exceeded announce count limit")
	ErrDeviceUnknown      = errors.New("device not found in registry")
)
