package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodec(t *testing.T) {
	requireT := require.New(t)

	for _, msg := range []any{
		&Ping{Seq: 1, Slave: "slave-0"},
		&Ping{},
		&Pong{Seq: 300, ProcessID: 2},
	} {
		payload, err := Encode(msg)
		requireT.NoError(err)

		decoded, err := Decode(payload)
		requireT.NoError(err)
		requireT.Equal(msg, decoded)

		_, err = Decode(append(payload, 0x00))
		requireT.Error(err)
	}

	_, err := Decode([]byte{0x01})
	requireT.Error(err)

	_, err = Encode(&struct{}{})
	requireT.Error(err)
}
