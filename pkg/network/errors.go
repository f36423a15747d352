package network

import "errors"

var (
	ErrInvalidCertificate = errors.New("invalid peer certificate")
	ErrListenerFailed     = errors.New("failed to start listener")
	ErrDialFailed         = errors.New("failed to dial peer")
	ErrPayloadTooLarge    = errors.New("payload exceeds maximum size")
	ErrUnknownStreamKind  = errors.New("unknown stream kind")
	ErrAnnounceRejected   = errors.New("peer rejected receipt announcement")
)
