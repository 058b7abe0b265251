package edk

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"

	"github.com/outofforest/edk/wire"
)

// PlatformHandle is one end of a pipe connecting two processes.
// The accepting end has empty address and is completed by the listener of the process holding it,
// the dialing end connects to the address and presents the token.
type PlatformHandle struct {
	Address string
	Token   wire.PipeToken
}

// IsValid tells if the handle refers to a pipe.
func (h PlatformHandle) IsValid() bool {
	return h.Token != wire.PipeToken{}
}

// IsServer tells if this is the accepting end.
func (h PlatformHandle) IsServer() bool {
	return h.Address == ""
}

// String returns the form of the handle suitable for passing to a child process.
func (h PlatformHandle) String() string {
	return h.Address + "#" + hex.EncodeToString(h.Token[:])
}

// ParsePlatformHandle parses the string form of the handle.
func ParsePlatformHandle(s string) (PlatformHandle, error) {
	pos := strings.LastIndexByte(s, '#')
	if pos < 0 {
		return PlatformHandle{}, errors.Errorf("invalid platform handle %q", s)
	}

	h := PlatformHandle{Address: s[:pos]}
	token := s[pos+1:]
	if hex.DecodedLen(len(token)) != len(h.Token) {
		return PlatformHandle{}, errors.Errorf("invalid token in platform handle %q", s)
	}
	if _, err := hex.Decode(h.Token[:], []byte(token)); err != nil {
		return PlatformHandle{}, errors.Wrapf(err, "invalid token in platform handle %q", s)
	}
	if !h.IsValid() {
		return PlatformHandle{}, errors.Errorf("zero token in platform handle %q", s)
	}
	return h, nil
}

func platformHandleFromWire(h wire.PipeHandle) PlatformHandle {
	return PlatformHandle{
		Address: h.Address,
		Token:   h.Token,
	}
}

func (h PlatformHandle) toWire() wire.PipeHandle {
	return wire.PipeHandle{
		Address: h.Address,
		Token:   h.Token,
	}
}
