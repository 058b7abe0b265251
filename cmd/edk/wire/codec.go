package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const idSize = 8

// Encode encodes message into the payload of the message pipe.
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

// Decode decodes the payload read from the message pipe.
func Decode(payload []byte) (any, error) {
	if len(payload) < idSize {
		return nil, errors.Errorf("payload of %d bytes is too short", len(payload))
	}
	msg, n, err := NewMarshaller().Unmarshal(binary.LittleEndian.Uint64(payload), payload[idSize:])
	if err != nil {
		return nil, err
	}
	if idSize+n != uint64(len(payload)) {
		return nil, errors.Errorf("%d trailing bytes in payload", uint64(len(payload))-idSize-n)
	}
	return msg, nil
}
