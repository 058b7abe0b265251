package edk

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"sync/atomic"

	"github.com/pkg/errors"
)

// ProcessIdentifier identifies a process in the group brokered by the master.
type ProcessIdentifier uint64

const (
	// InvalidProcessIdentifier is never assigned to a process.
	InvalidProcessIdentifier ProcessIdentifier = 0

	// MasterProcessIdentifier is the identifier of the master process.
	MasterProcessIdentifier ProcessIdentifier = 1

	firstSlaveProcessIdentifier ProcessIdentifier = 2
)

// ProcessType is the role of the process in the process group.
type ProcessType int

// Process types.
const (
	ProcessTypeNone ProcessType = iota
	ProcessTypeMaster
	ProcessTypeSlave
)

func (t ProcessType) String() string {
	switch t {
	case ProcessTypeNone:
		return "none"
	case ProcessTypeMaster:
		return "master"
	case ProcessTypeSlave:
		return "slave"
	default:
		return "unknown(" + strconv.Itoa(int(t)) + ")"
	}
}

// ParseProcessType parses process type.
func ParseProcessType(s string) (ProcessType, error) {
	switch s {
	case "none", "":
		return ProcessTypeNone, nil
	case "master":
		return ProcessTypeMaster, nil
	case "slave":
		return ProcessTypeSlave, nil
	default:
		return 0, errors.Errorf("unknown process type %q", s)
	}
}

// SlaveInfo is the opaque value the embedder associates with the slave.
type SlaveInfo any

// ConnectionIdentifier correlates connect requests of two processes.
type ConnectionIdentifier [16]byte

// GenerateConnectionIdentifier generates new random connection identifier.
func GenerateConnectionIdentifier() (ConnectionIdentifier, error) {
	var id ConnectionIdentifier
	if _, err := rand.Read(id[:]); err != nil {
		return ConnectionIdentifier{}, errors.WithStack(err)
	}
	return id, nil
}

// ParseConnectionIdentifier parses the string form of connection identifier.
func ParseConnectionIdentifier(s string) (ConnectionIdentifier, error) {
	var id ConnectionIdentifier
	if hex.DecodedLen(len(s)) != len(id) {
		return ConnectionIdentifier{}, errors.Errorf("invalid connection identifier %q", s)
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return ConnectionIdentifier{}, errors.Wrapf(err, "invalid connection identifier %q", s)
	}
	return id, nil
}

func (id ConnectionIdentifier) String() string {
	return hex.EncodeToString(id[:])
}

// ChannelID identifies a channel within a process.
type ChannelID uint64

// Channel IDs live in the upper half of the 64-bit space, process identifiers never get there.
const channelIDBase ChannelID = 1 << 63

// Valid tells if channel ID belongs to the channel ID space.
func (id ChannelID) Valid() bool {
	return id&channelIDBase != 0
}

type channelIDGenerator struct {
	last atomic.Uint64
}

func (g *channelIDGenerator) Next() ChannelID {
	return channelIDBase | ChannelID(g.last.Add(1))
}
