package network

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/crosslane/crosslane/internal/message"
)

// maxPayloadSize bounds a receipt announcement; anything larger is a
// malformed or hostile peer.
const maxPayloadSize = 1 << 20

// writeEnvelope frames a receipt announcement: identifier, then a
// length-prefixed payload.
func writeEnvelope(w io.Writer, id message.Identifier, payload []byte) error {
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	buf := make([]byte, 0, message.IdentifierSize+4+len(payload))
	buf = append(buf, id.Encode()...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

func readEnvelope(r io.Reader) (message.Identifier, []byte, error) {
	header := make([]byte, message.IdentifierSize+4)
	if _, err := io.ReadFull(r, header); err != nil {
		return message.Identifier{}, nil, fmt.Errorf("read envelope header: %w", err)
	}
	id, err := message.DecodeIdentifier(header[:message.IdentifierSize])
	if err != nil {
		return message.Identifier{}, nil, err
	}
	size := binary.BigEndian.Uint32(header[message.IdentifierSize:])
	if size > maxPayloadSize {
		return message.Identifier{}, nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return message.Identifier{}, nil, fmt.Errorf("read envelope payload: %w", err)
	}
	return id, payload, nil
}
