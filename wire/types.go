package wire

type (
	// PipeToken pairs the accepting and the dialing end of a pipe.
	PipeToken [16]byte

	// ConnectionID correlates connect requests of two processes.
	ConnectionID [16]byte

	// ProcessID identifies a process in the group brokered by the master.
	ProcessID uint64

	// EndpointID identifies an endpoint multiplexed over a channel.
	EndpointID uint64

	// HandleType is the kind of dispatcher attached to a message.
	HandleType uint64
)

// Hello is the first message sent on every connection dialed to a process listener.
type Hello struct {
	Token PipeToken
}

// Goodbye announces an orderly shutdown of the sending side.
type Goodbye struct {
	Reason string
}

// RegisterSlave is sent by the slave once its control connection is established.
type RegisterSlave struct {
	Address string
}

// RegisterSlaveAck tells the slave its process ID.
type RegisterSlaveAck struct {
	ProcessID ProcessID
}

// AllowConnect requests participation in the connection.
type AllowConnect struct {
	ConnectionID ConnectionID
}

// AllowConnectAck is the reply to AllowConnect.
type AllowConnectAck struct {
	Success bool
}

// CancelConnect withdraws participation in the connection.
type CancelConnect struct {
	ConnectionID ConnectionID
}

// CancelConnectAck is the reply to CancelConnect.
type CancelConnectAck struct {
	Success bool
}

// Connect requests the pipe of the connection.
type Connect struct {
	ConnectionID ConnectionID
}

// WithdrawConnect abandons the outstanding Connect of the sender. Participation in the connection
// is kept. The ack of the withdrawn Connect is still sent.
type WithdrawConnect struct {
	ConnectionID ConnectionID
}

// AckSuccessConnectData describes the peer of a successful connection.
type AckSuccessConnectData struct {
	PeerProcessID ProcessID
	IsFirst       bool
}

// PipeHandle is the portable form of one end of a pipe. Empty address means the end is
// accepted on the listener of the receiving process.
type PipeHandle struct {
	Address string
	Token   PipeToken
}

// ConnectAck is the reply to Connect.
type ConnectAck struct {
	Success bool
	Data    AckSuccessConnectData
	Handle  PipeHandle
}

// Handle is the portable form of a dispatcher attached to a message.
type Handle struct {
	Type       HandleType
	EndpointID EndpointID
}

// EndpointMessage carries a message of an endpoint.
type EndpointMessage struct {
	EndpointID EndpointID
	Handles    []Handle
	Payload    []byte
}

// EndpointClosed tells the peer that the endpoint is closed.
type EndpointClosed struct {
	EndpointID EndpointID
}
