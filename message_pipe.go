package edk

import (
	"sync"
)

// messagePipeEndpoint is one port of the message pipe. All the methods are called with the pipe lock held.
type messagePipeEndpoint interface {
	// Close is called when the port is closed by its owner.
	Close() []*message

	// OnPeerClose is called when the other port is closed. False means the port should be closed too.
	OnPeerClose() bool

	// EnqueueMessage accepts the message delivered to the port. False means the message is dropped.
	EnqueueMessage(m *message) bool
}

// localEndpoint is the port read by a dispatcher in this process.
type localEndpoint struct {
	queue     []*message
	peerOpen  bool
	awakables awakableList
}

func newLocalEndpoint() *localEndpoint {
	return &localEndpoint{peerOpen: true}
}

func (e *localEndpoint) Close() []*message {
	e.awakables.CancelAll()
	queue := e.queue
	e.queue = nil
	return queue
}

func (e *localEndpoint) OnPeerClose() bool {
	e.peerOpen = false
	e.awakables.AwakeForStateChange(e.HandleSignalsState())
	return true
}

func (e *localEndpoint) EnqueueMessage(m *message) bool {
	e.queue = append(e.queue, m)
	if len(e.queue) == 1 {
		e.awakables.AwakeForStateChange(e.HandleSignalsState())
	}
	return true
}

func (e *localEndpoint) HandleSignalsState() HandleSignalsState {
	state := HandleSignalsState{
		Satisfied:   HandleSignalNone,
		Satisfiable: HandleSignalPeerClosed,
	}
	if len(e.queue) > 0 {
		state.Satisfied |= HandleSignalReadable
		state.Satisfiable |= HandleSignalReadable
	}
	if e.peerOpen {
		state.Satisfied |= HandleSignalWritable
		state.Satisfiable |= HandleSignalReadable | HandleSignalWritable
	} else {
		state.Satisfied |= HandleSignalPeerClosed
	}
	return state
}

func (e *localEndpoint) ReadMessage(buf []byte, handles []Dispatcher, flags ReadMessageFlags) (int, int, *message, Result) {
	if len(e.queue) == 0 {
		if e.peerOpen {
			return 0, 0, nil, ResultShouldWait
		}
		return 0, 0, nil, ResultFailedPrecondition
	}

	m := e.queue[0]
	numBytes := len(m.bytes)
	numHandles := len(m.dispatchers)
	if numBytes > len(buf) || numHandles > len(handles) {
		if flags&ReadMessageFlagMayDiscard == 0 {
			return numBytes, numHandles, nil, ResultResourceExhausted
		}
		e.pop()
		return numBytes, numHandles, m, ResultResourceExhausted
	}

	e.pop()
	copy(buf, m.bytes)
	copy(handles, m.dispatchers)
	m.dispatchers = nil
	return numBytes, numHandles, nil, ResultOK
}

func (e *localEndpoint) pop() {
	e.queue[0] = nil
	e.queue = e.queue[1:]
	if len(e.queue) == 0 {
		e.queue = nil
	}
}

// proxyEndpoint forwards messages delivered to the port over a channel.
type proxyEndpoint struct {
	endpoint *ChannelEndpoint
}

func (e *proxyEndpoint) Close() []*message {
	e.endpoint.DetachFromClient()
	return nil
}

func (e *proxyEndpoint) OnPeerClose() bool {
	e.endpoint.DetachFromClient()
	return false
}

func (e *proxyEndpoint) EnqueueMessage(m *message) bool {
	return e.endpoint.EnqueueMessage(m)
}

// MessagePipe is the pair of ports. Message written to one port is delivered to the other one.
type MessagePipe struct {
	mu    sync.Mutex
	ports [2]messagePipeEndpoint
}

// NewLocalMessagePipe creates message pipe with both ports in this process.
func NewLocalMessagePipe() *MessagePipe {
	return &MessagePipe{
		ports: [2]messagePipeEndpoint{newLocalEndpoint(), newLocalEndpoint()},
	}
}

// newProxyMessagePipe creates message pipe with port 0 local and port 1 proxied to the endpoint.
func newProxyMessagePipe(endpoint *ChannelEndpoint) *MessagePipe {
	p := &MessagePipe{}
	p.ports[0] = newLocalEndpoint()
	p.ports[1] = &proxyEndpoint{endpoint: endpoint}
	endpoint.setClient(p, 1)
	return p
}

func peerPort(port int) int {
	return port ^ 1
}

// Close closes the port. Returned messages must be discarded once no locks are held.
func (p *MessagePipe) Close(port int) []*message {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closeLocked(port)
}

func (p *MessagePipe) closeLocked(port int) []*message {
	e := p.ports[port]
	if e == nil {
		return nil
	}
	p.ports[port] = nil
	discarded := e.Close()

	peer := peerPort(port)
	if p.ports[peer] != nil && !p.ports[peer].OnPeerClose() {
		p.ports[peer] = nil
	}
	return discarded
}

// WriteMessage writes message to the port. Handles must be reserved by transferDispatchers.
// Message dropped on the way is returned, it must be discarded once no locks are held.
func (p *MessagePipe) WriteMessage(port int, bytes []byte, handles []Dispatcher) (Result, *message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	peer := p.ports[peerPort(port)]
	if peer == nil {
		return ResultFailedPrecondition, nil
	}

	m := &message{
		bytes: append([]byte(nil), bytes...),
	}
	if len(handles) > 0 {
		m.dispatchers = make([]Dispatcher, 0, len(handles))
		for _, h := range handles {
			m.dispatchers = append(m.dispatchers, h.endTransitAndClose())
		}
	}
	if !peer.EnqueueMessage(m) {
		return ResultOK, m
	}
	return ResultOK, nil
}

// ReadMessage reads the oldest message delivered to the port. Discarded message is returned
// if it did not fit and the caller allowed that.
func (p *MessagePipe) ReadMessage(
	port int,
	buf []byte,
	handles []Dispatcher,
	flags ReadMessageFlags,
) (int, int, *message, Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.local(port).ReadMessage(buf, handles, flags)
}

// HandleSignalsState returns the signals state of the port.
func (p *MessagePipe) HandleSignalsState(port int) HandleSignalsState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.local(port).HandleSignalsState()
}

// AddAwakable registers awakable on the port.
func (p *MessagePipe) AddAwakable(
	port int,
	awakable Awakable,
	signals HandleSignals,
	context uint64,
) (Result, HandleSignalsState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.local(port)
	state := e.HandleSignalsState()
	if state.Satisfies(signals) {
		return ResultAlreadyExists, state
	}
	if !state.CanSatisfy(signals) {
		return ResultFailedPrecondition, state
	}
	e.awakables.Add(awakable, signals, context)
	return ResultOK, state
}

// RemoveAwakable unregisters awakable from the port.
func (p *MessagePipe) RemoveAwakable(port int, awakable Awakable) HandleSignalsState {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.local(port)
	e.awakables.Remove(awakable)
	return e.HandleSignalsState()
}

// EnqueueMessage delivers the message received by the channel endpoint proxying the port to the other port.
// It returns the message back if it can't be delivered.
func (p *MessagePipe) EnqueueMessage(port int, endpoint *ChannelEndpoint, m *message) *message {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isProxiedBy(port, endpoint) {
		return m
	}
	peer := p.ports[peerPort(port)]
	if peer == nil || !peer.EnqueueMessage(m) {
		return m
	}
	return nil
}

// OnDetachFromChannel closes the port proxied by the endpoint when the channel side of it is gone.
func (p *MessagePipe) OnDetachFromChannel(port int, endpoint *ChannelEndpoint) []*message {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isProxiedBy(port, endpoint) {
		return nil
	}
	return p.closeLocked(port)
}

// convertLocalToProxy replaces the local port with the proxy to the new, not yet attached, channel endpoint.
// Messages queued on the port are moved to the endpoint.
func (p *MessagePipe) convertLocalToProxy(port int) *ChannelEndpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	local := p.local(port)
	local.awakables.CancelAll()

	endpoint := newChannelEndpoint(local.queue)
	local.queue = nil

	if p.ports[peerPort(port)] == nil {
		// Nothing is going to be written to this port, so the far side learns about it right after
		// the queued messages.
		p.ports[port] = nil
		endpoint.DetachFromClient()
		return endpoint
	}

	p.ports[port] = &proxyEndpoint{endpoint: endpoint}
	endpoint.setClient(p, port)
	return endpoint
}

func (p *MessagePipe) local(port int) *localEndpoint {
	e, ok := p.ports[port].(*localEndpoint)
	if !ok {
		panic("message pipe port is not local")
	}
	return e
}

func (p *MessagePipe) isProxiedBy(port int, endpoint *ChannelEndpoint) bool {
	e, ok := p.ports[port].(*proxyEndpoint)
	return ok && e.endpoint == endpoint
}
