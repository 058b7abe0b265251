package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const idSize = 8

// Encode encodes message into the payload written to the message pipe.
func Encode(msg any) ([]byte, error) {
	m := NewMarshaller()
	size, err := m.Size(msg)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, idSize+size)
	id, n, err := m.Marshal(msg, buf[idSize:])
	if err != nil {
		return nil, err
	}
	binary.LittleEndian.PutUint64(buf, id)
	return buf[:idSize+n], nil
}

// Decode decodes message read from the message pipe.
func Decode(payload []byte) (any, error) {
	if len(payload) < idSize {
		return nil, errors.Errorf("payload of %d bytes is too short", len(payload))
	}
	msg, _, err := NewMarshaller().Unmarshal(binary.LittleEndian.Uint64(payload), payload[idSize:])
	return msg, err
}
