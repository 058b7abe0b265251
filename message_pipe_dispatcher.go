package edk

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/outofforest/edk/wire"
)

// MessagePipeDispatcher is the handle of one port of a message pipe.
type MessagePipeDispatcher struct {
	mu          sync.Mutex
	pipe        *MessagePipe
	port        int
	inTransit   bool
	initialized bool
}

// NewMessagePipeDispatcher creates dispatcher which must be initialized with Init before use.
func NewMessagePipeDispatcher() *MessagePipeDispatcher {
	return &MessagePipeDispatcher{}
}

// Init binds the dispatcher to the port of the pipe.
func (d *MessagePipeDispatcher) Init(pipe *MessagePipe, port int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		panic(errors.New("message pipe dispatcher is initialized already"))
	}
	if pipe == nil || (port != 0 && port != 1) {
		panic(errors.Errorf("invalid message pipe port %d", port))
	}
	d.pipe = pipe
	d.port = port
	d.initialized = true
}

// CreateMessagePipe creates message pipe with both ports in this process.
func CreateMessagePipe() (*MessagePipeDispatcher, *MessagePipeDispatcher) {
	p := NewLocalMessagePipe()
	d0 := NewMessagePipeDispatcher()
	d0.Init(p, 0)
	d1 := NewMessagePipeDispatcher()
	d1.Init(p, 1)
	return d0, d1
}

// CreateRemoteMessagePipe creates message pipe whose other port is the channel endpoint returned.
// Messages written before the endpoint is attached to a channel are sent once it is.
func CreateRemoteMessagePipe() (*MessagePipeDispatcher, *ChannelEndpoint) {
	e := newChannelEndpoint(nil)
	d := NewMessagePipeDispatcher()
	d.Init(newProxyMessagePipe(e), 0)
	return d, e
}

func messagePipeDispatcherFromWireForm(h wire.Handle, c *Channel) (Dispatcher, error) {
	e, err := c.acceptRemoteEndpoint(h.EndpointID)
	if err != nil {
		return nil, err
	}

	var p *MessagePipe
	if e == nil {
		p = NewLocalMessagePipe()
		p.Close(1)
	} else {
		p = newProxyMessagePipe(e)
	}

	d := NewMessagePipeDispatcher()
	d.Init(p, 0)
	return d, nil
}

// Type returns TypeMessagePipe.
func (d *MessagePipeDispatcher) Type() Type {
	return TypeMessagePipe
}

// Close closes the port. Messages waiting in it are discarded.
func (d *MessagePipeDispatcher) Close() Result {
	d.mu.Lock()
	if result := d.checkLocked(); result != ResultOK {
		d.mu.Unlock()
		return result
	}
	pipe, port := d.pipe, d.port
	d.pipe = nil
	d.mu.Unlock()

	discardMessages(pipe.Close(port))
	return ResultOK
}

// WriteMessage writes message to the pipe. Attached handles are moved into the message, unless the write
// fails, in which case all of them stay with the caller.
func (d *MessagePipeDispatcher) WriteMessage(bytes []byte, handles []Dispatcher, flags WriteMessageFlags) Result {
	if flags != WriteMessageFlagNone {
		return ResultUnimplemented
	}
	if len(bytes) > MaxMessageNumBytes {
		return ResultResourceExhausted
	}

	if result := transferDispatchers(d, handles); result != ResultOK {
		return result
	}

	d.mu.Lock()
	if result := d.checkLocked(); result != ResultOK {
		d.mu.Unlock()
		cancelTransit(handles)
		return result
	}
	for _, h := range handles {
		if mp, ok := h.(*MessagePipeDispatcher); ok && mp.transitPipe() == d.pipe {
			d.mu.Unlock()
			cancelTransit(handles)
			return ResultInvalidArgument
		}
	}

	result, dropped := d.pipe.WriteMessage(d.port, bytes, handles)
	d.mu.Unlock()

	if result != ResultOK {
		cancelTransit(handles)
		return result
	}
	if dropped != nil {
		discardMessages([]*message{dropped})
	}
	return ResultOK
}

// ReadMessage reads the oldest message. If it does not fit into buf and handles, ResultResourceExhausted
// is returned together with the required sizes, and the message is discarded if
// ReadMessageFlagMayDiscard is set.
func (d *MessagePipeDispatcher) ReadMessage(
	buf []byte,
	handles []Dispatcher,
	flags ReadMessageFlags,
) (int, int, Result) {
	d.mu.Lock()
	if result := d.checkLocked(); result != ResultOK {
		d.mu.Unlock()
		return 0, 0, result
	}
	numBytes, numHandles, discarded, result := d.pipe.ReadMessage(d.port, buf, handles, flags)
	d.mu.Unlock()

	if discarded != nil {
		discardMessages([]*message{discarded})
	}
	return numBytes, numHandles, result
}

// HandleSignalsState returns the current state of signals.
func (d *MessagePipeDispatcher) HandleSignalsState() HandleSignalsState {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.checkLocked() != ResultOK {
		return HandleSignalsState{}
	}
	return d.pipe.HandleSignalsState(d.port)
}

// AddAwakable registers the awakable to be awoken when any of the signals is satisfied or becomes
// unsatisfiable. ResultAlreadyExists is returned if signals are satisfied already and
// ResultFailedPrecondition if they never can be.
func (d *MessagePipeDispatcher) AddAwakable(
	awakable Awakable,
	signals HandleSignals,
	context uint64,
) (Result, HandleSignalsState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if result := d.checkLocked(); result != ResultOK {
		return result, HandleSignalsState{}
	}
	return d.pipe.AddAwakable(d.port, awakable, signals, context)
}

// RemoveAwakable unregisters the awakable.
func (d *MessagePipeDispatcher) RemoveAwakable(awakable Awakable) HandleSignalsState {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.checkLocked() != ResultOK {
		return HandleSignalsState{}
	}
	return d.pipe.RemoveAwakable(d.port, awakable)
}

func (d *MessagePipeDispatcher) checkLocked() Result {
	switch {
	case d.pipe == nil:
		return ResultInvalidArgument
	case d.inTransit:
		return ResultBusy
	default:
		return ResultOK
	}
}

func (d *MessagePipeDispatcher) beginTransit() Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	if result := d.checkLocked(); result != ResultOK {
		return result
	}
	d.inTransit = true
	return ResultOK
}

func (d *MessagePipeDispatcher) cancelTransit() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.inTransit = false
}

func (d *MessagePipeDispatcher) transitPipe() *MessagePipe {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.pipe
}

func (d *MessagePipeDispatcher) endTransitAndClose() Dispatcher {
	d.mu.Lock()
	defer d.mu.Unlock()

	moved := &MessagePipeDispatcher{
		pipe:        d.pipe,
		port:        d.port,
		initialized: true,
	}
	d.pipe = nil
	d.inTransit = false
	return moved
}

func (d *MessagePipeDispatcher) intoWireForm(c *Channel) (wire.Handle, *ChannelEndpoint) {
	d.mu.Lock()
	pipe, port := d.pipe, d.port
	d.pipe = nil
	d.mu.Unlock()

	h := wire.Handle{
		Type:       wire.HandleType(TypeMessagePipe),
		EndpointID: closedEndpointWireID,
	}
	if pipe == nil {
		return h, nil
	}

	e := pipe.convertLocalToProxy(port)
	h.EndpointID = c.registerEndpoint(e)
	if h.EndpointID == closedEndpointWireID {
		e.onRemoteClosed()
		return h, nil
	}
	return h, e
}
