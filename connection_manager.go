package edk

import (
	"context"

	"github.com/pkg/errors"
)

// ErrConnectFailed is returned when connection can't be established.
var ErrConnectFailed = errors.New("connect failed")

// ConnectResult is the outcome of Connect.
type ConnectResult struct {
	Success               bool
	PeerProcessIdentifier ProcessIdentifier
	IsFirst               bool

	// PlatformHandle is the end of the pipe to the peer. It is not valid when peer is the calling process.
	PlatformHandle PlatformHandle
}

// ConnectionManager brokers pipes between processes sharing a connection identifier.
type ConnectionManager interface {
	// ProcessIdentifier returns the identifier of this process.
	ProcessIdentifier() ProcessIdentifier

	// AllowConnect declares that this process participates in the connection.
	AllowConnect(ctx context.Context, connectionID ConnectionIdentifier) bool

	// CancelConnect withdraws participation in the connection.
	CancelConnect(ctx context.Context, connectionID ConnectionIdentifier) bool

	// Connect waits until the other party connects too and returns the end of the pipe.
	Connect(ctx context.Context, connectionID ConnectionIdentifier) ConnectResult

	// Shutdown disconnects the process from its peers.
	Shutdown()
}

// droppedResultFunc disposes of the result of Connect whose caller stopped waiting.
type droppedResultFunc func(connectionID ConnectionIdentifier, result ConnectResult)

type ackKind int

const (
	ackKindNone ackKind = iota
	ackKindAllowConnect
	ackKindCancelConnect
	ackKindConnect
)

func (k ackKind) String() string {
	switch k {
	case ackKindAllowConnect:
		return "allow connect ack"
	case ackKindCancelConnect:
		return "cancel connect ack"
	case ackKindConnect:
		return "connect ack"
	default:
		return "none"
	}
}
