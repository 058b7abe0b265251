package edk

import (
	"github.com/pkg/errors"

	"github.com/outofforest/edk/wire"
)

// Type is the kind of dispatcher.
type Type int

// Dispatcher types.
const (
	TypeUnknown Type = iota
	TypeMessagePipe
)

// Dispatcher is the object backing an open handle.
type Dispatcher interface {
	// Type returns the kind of dispatcher.
	Type() Type

	// Close closes the handle.
	Close() Result

	// beginTransit reserves the dispatcher for a message being written.
	beginTransit() Result

	// cancelTransit releases the reservation taken by beginTransit.
	cancelTransit()

	// endTransitAndClose moves the handle into the dispatcher returned, owned by the message,
	// and closes this one.
	endTransitAndClose() Dispatcher

	// intoWireForm moves the handle onto the channel. The dispatcher is closed afterwards.
	// Returned endpoint, if any, must be attached after the message carrying the handle is queued.
	intoWireForm(c *Channel) (wire.Handle, *ChannelEndpoint)
}

func dispatcherFromWireForm(h wire.Handle, c *Channel) (Dispatcher, error) {
	switch Type(h.Type) {
	case TypeMessagePipe:
		return messagePipeDispatcherFromWireForm(h, c)
	default:
		return nil, errors.Wrapf(ErrProtocolViolation, "unknown handle type %d", h.Type)
	}
}

// message is the unit of data carried by message pipes.
type message struct {
	bytes       []byte
	dispatchers []Dispatcher
}

// discardMessages closes dispatchers of the messages which are never going to be delivered.
// It must be called without holding any pipe lock.
func discardMessages(msgs []*message) {
	for _, m := range msgs {
		for _, d := range m.dispatchers {
			d.Close()
		}
		m.dispatchers = nil
	}
}

// transferDispatchers reserves all the handles for the message. On failure none of them is reserved.
func transferDispatchers(self Dispatcher, handles []Dispatcher) Result {
	if len(handles) > MaxMessageNumHandles {
		return ResultResourceExhausted
	}

	seen := make(map[Dispatcher]struct{}, len(handles))
	for _, h := range handles {
		if h == nil || h == self {
			return ResultInvalidArgument
		}
		if _, exists := seen[h]; exists {
			return ResultInvalidArgument
		}
		seen[h] = struct{}{}
	}

	for i, h := range handles {
		if result := h.beginTransit(); result != ResultOK {
			cancelTransit(handles[:i])
			return result
		}
	}
	return ResultOK
}

func cancelTransit(handles []Dispatcher) {
	for _, h := range handles {
		h.cancelTransit()
	}
}
