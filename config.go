package edk

import (
	"github.com/pkg/errors"
)

const (
	// MaxMessageNumBytes is the maximum size of message payload.
	MaxMessageNumBytes = 4 * 1024 * 1024

	// MaxMessageNumHandles is the maximum number of handles attached to a message.
	MaxMessageNumHandles = 10000

	// Every attached handle takes at most 21 bytes in the frame header.
	maxFrameHeaderSize = 64 + MaxMessageNumHandles*21
)

// Config is the configuration of the process.
type Config struct {
	// ProcessType is the role of the process.
	ProcessType ProcessType

	// ListenAddress is the address of the listener accepting pipes of the process.
	ListenAddress string

	// MaxMessageSize is the maximum size of a frame sent over a connection.
	MaxMessageSize uint64

	// MasterHandle is the handle of the control pipe received from the master, slaves only.
	MasterHandle PlatformHandle
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		ProcessType:    ProcessTypeNone,
		ListenAddress:  "localhost:0",
		MaxMessageSize: MaxMessageNumBytes + maxFrameHeaderSize,
	}
}

// Validate validates the config.
func (c Config) Validate() error {
	switch c.ProcessType {
	case ProcessTypeNone, ProcessTypeMaster:
		if c.MasterHandle.IsValid() {
			return errors.Errorf("master handle is set for %s process", c.ProcessType)
		}
	case ProcessTypeSlave:
		if !c.MasterHandle.IsValid() || c.MasterHandle.IsServer() {
			return errors.New("slave requires the dialing end of the master pipe")
		}
	default:
		return errors.Errorf("unknown process type %d", c.ProcessType)
	}
	if c.ListenAddress == "" {
		return errors.New("listen address is empty")
	}
	if c.MaxMessageSize < MaxMessageNumBytes {
		return errors.Errorf("max message size %d is below %d", c.MaxMessageSize, MaxMessageNumBytes)
	}
	return nil
}
