package edk

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/outofforest/edk/wire"
	"github.com/outofforest/logger"
	"github.com/outofforest/resonance"
)

const (
	// pipeAcceptTimeout is how long the dialed connection waits for the accepting end of its pipe.
	pipeAcceptTimeout = time.Minute

	// maxAbandonedPipes bounds the number of remembered abandoned tokens.
	maxAbandonedPipes = 4096
)

var errPipeAbandoned = errors.New("pipe abandoned")

type serveFunc func(ctx context.Context, c *resonance.Connection) error

type pipeSlot struct {
	connCh    chan *resonance.Connection
	abandoned chan struct{}
	done      chan struct{}
}

// listener accepts connections dialed to the process and hands them over to the holders of
// the accepting ends of pipes.
type listener struct {
	ls            net.Listener
	config        resonance.Config
	acceptTimeout time.Duration

	mu             sync.Mutex
	slots          map[wire.PipeToken]*pipeSlot
	abandoned      map[wire.PipeToken]struct{}
	abandonedOrder []wire.PipeToken
}

func newListener(ls net.Listener, config resonance.Config) *listener {
	return &listener{
		ls:            ls,
		config:        config,
		acceptTimeout: pipeAcceptTimeout,
		slots:         map[wire.PipeToken]*pipeSlot{},
		abandoned:     map[wire.PipeToken]struct{}{},
	}
}

// Address returns the address peers dial to reach this process.
func (l *listener) Address() string {
	return l.ls.Addr().String()
}

// NewPair creates both ends of a pipe accepted by this listener.
func (l *listener) NewPair() (PlatformHandle, PlatformHandle, error) {
	token, err := pipeToken()
	if err != nil {
		return PlatformHandle{}, PlatformHandle{}, err
	}
	return PlatformHandle{Token: token}, PlatformHandle{Address: l.Address(), Token: token}, nil
}

// Run accepts connections.
func (l *listener) Run(ctx context.Context) error {
	return resonance.RunServer(ctx, l.ls, l.config, l.handleConnection)
}

// handleConnection passes the dialed connection to the accepting end of the pipe. Connection is closed
// if the accepting end has been dropped or does not show up in time.
func (l *listener) handleConnection(ctx context.Context, c *resonance.Connection) error {
	msg, err := c.ReceiveProton(wire.NewMarshaller())
	if err != nil {
		return err
	}

	hello, ok := msg.(*wire.Hello)
	if !ok {
		return errors.New("hello message expected")
	}

	slot, err := l.slot(hello.Token)
	if err != nil {
		logger.Get(ctx).Debug("Pipe connected after its accepting end was dropped")
		return err
	}

	timer := time.NewTimer(l.acceptTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		l.abandon(hello.Token, slot)
		return errors.WithStack(ctx.Err())
	case <-timer.C:
		l.abandon(hello.Token, slot)
		return errors.Errorf("pipe not accepted within %s", l.acceptTimeout)
	case <-slot.abandoned:
		logger.Get(ctx).Debug("Pipe connected after its accepting end was dropped")
		return errors.WithStack(errPipeAbandoned)
	case slot.connCh <- c:
	}

	select {
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	case <-slot.done:
		return nil
	}
}

// Accept waits for the dialing end of the pipe and serves the connection. It returns without
// error if stopCh is closed before the peer connects.
func (l *listener) Accept(ctx context.Context, h PlatformHandle, stopCh <-chan struct{}, serve serveFunc) error {
	if !h.IsServer() {
		return errors.Errorf("handle %s is not the accepting end", h)
	}

	slot, err := l.slot(h.Token)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		l.abandon(h.Token, slot)
		return errors.WithStack(ctx.Err())
	case <-stopCh:
		l.abandon(h.Token, slot)
		return nil
	case <-slot.abandoned:
		return errors.WithStack(errPipeAbandoned)
	case c := <-slot.connCh:
		defer l.release(h.Token, slot)
		defer close(slot.done)

		logger.Get(ctx).Debug("Pipe accepted", zap.String("address", l.Address()))
		return serve(ctx, c)
	}
}

func (l *listener) slot(token wire.PipeToken) (*pipeSlot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, abandoned := l.abandoned[token]; abandoned {
		return nil, errors.WithStack(errPipeAbandoned)
	}

	slot, exists := l.slots[token]
	if !exists {
		slot = &pipeSlot{
			connCh:    make(chan *resonance.Connection),
			abandoned: make(chan struct{}),
			done:      make(chan struct{}),
		}
		l.slots[token] = slot
	}
	return slot, nil
}

// abandon drops the slot and remembers the token, so later attempts to use it fail immediately.
func (l *listener) abandon(token wire.PipeToken, slot *pipeSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.slots[token] != slot {
		return
	}
	delete(l.slots, token)
	close(slot.abandoned)

	if len(l.abandonedOrder) == maxAbandonedPipes {
		delete(l.abandoned, l.abandonedOrder[0])
		l.abandonedOrder = l.abandonedOrder[1:]
	}
	l.abandoned[token] = struct{}{}
	l.abandonedOrder = append(l.abandonedOrder, token)
}

func (l *listener) release(token wire.PipeToken, slot *pipeSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.slots[token] == slot {
		delete(l.slots, token)
	}
}
