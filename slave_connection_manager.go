package edk

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/outofforest/edk/wire"
	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"
	"github.com/outofforest/resonance"
)

type awaitedAck struct {
	kind         ackKind
	connectionID ConnectionIdentifier
	replyCh      chan any

	// abandoned is set when the caller stopped waiting. The ack is dropped on arrival.
	abandoned bool
}

// SlaveConnectionManager is the connection manager of the slave process. Requests are sent to the master
// over the control connection, one at a time. Master sends acks in the order of requests.
type SlaveConnectionManager struct {
	masterHandle   PlatformHandle
	listener       *listener
	config         resonance.Config
	delegate       SlaveProcessDelegate
	delegateRunner TaskRunner
	m              wire.Marshaller
	outbox         *outbox[any]
	closing        atomic.Bool
	processID      atomic.Uint64
	onDropped      droppedResultFunc

	// permit is taken by the request and released when its ack arrives or the request is abandoned.
	permit chan struct{}

	mu      sync.Mutex
	awaited []*awaitedAck

	disconnectOnce sync.Once
	disconnectedCh chan struct{}
}

func newSlaveConnectionManager(
	masterHandle PlatformHandle,
	listener *listener,
	config resonance.Config,
	delegate SlaveProcessDelegate,
	delegateRunner TaskRunner,
) *SlaveConnectionManager {
	return &SlaveConnectionManager{
		masterHandle:   masterHandle,
		listener:       listener,
		config:         config,
		delegate:       delegate,
		delegateRunner: delegateRunner,
		m:              wire.NewMarshaller(),
		outbox:         newOutbox[any](),
		permit:         make(chan struct{}, 1),
		disconnectedCh: make(chan struct{}),
	}
}

// ProcessIdentifier returns the identifier assigned by the master. It is InvalidProcessIdentifier until
// the slave is registered.
func (m *SlaveConnectionManager) ProcessIdentifier() ProcessIdentifier {
	return ProcessIdentifier(m.processID.Load())
}

// AllowConnect declares that slave participates in the connection.
func (m *SlaveConnectionManager) AllowConnect(ctx context.Context, connectionID ConnectionIdentifier) bool {
	ack, ok := m.exchange(ctx, ackKindAllowConnect, connectionID, &wire.AllowConnect{
		ConnectionID: wire.ConnectionID(connectionID),
	})
	return ok && ack.(*wire.AllowConnectAck).Success
}

// CancelConnect withdraws participation of the slave in the connection.
func (m *SlaveConnectionManager) CancelConnect(ctx context.Context, connectionID ConnectionIdentifier) bool {
	ack, ok := m.exchange(ctx, ackKindCancelConnect, connectionID, &wire.CancelConnect{
		ConnectionID: wire.ConnectionID(connectionID),
	})
	return ok && ack.(*wire.CancelConnectAck).Success
}

// Connect connects the slave to the other party of the connection. If ctx is canceled first, the request
// is withdrawn but participation in the connection is kept.
func (m *SlaveConnectionManager) Connect(ctx context.Context, connectionID ConnectionIdentifier) ConnectResult {
	ack, ok := m.exchange(ctx, ackKindConnect, connectionID, &wire.Connect{
		ConnectionID: wire.ConnectionID(connectionID),
	})
	if !ok {
		return ConnectResult{}
	}
	return connectAckFromWire(ack.(*wire.ConnectAck))
}

// Shutdown closes the control connection. Outstanding request fails and master disconnection is reported.
func (m *SlaveConnectionManager) Shutdown() {
	m.outbox.Close()
	m.disconnect()
}

// Run connects to the master and serves the control connection until it is closed.
func (m *SlaveConnectionManager) Run(ctx context.Context) error {
	defer m.disconnect()

	log := logger.Get(ctx)

	err := resonance.RunClient(ctx, m.masterHandle.Address, m.config,
		func(ctx context.Context, c *resonance.Connection) error {
			return m.serve(ctx, c)
		})
	if err != nil && ctx.Err() == nil {
		log.Error("Master connection failed", zap.Error(err))
	}
	return nil
}

func (m *SlaveConnectionManager) serve(ctx context.Context, c *resonance.Connection) error {
	if err := c.SendProton(&wire.Hello{Token: m.masterHandle.Token}, m.m); err != nil {
		return err
	}
	if err := c.SendProton(&wire.RegisterSlave{Address: m.listener.Address()}, m.m); err != nil {
		return err
	}

	msg, err := c.ReceiveProton(m.m)
	if err != nil {
		return err
	}
	ack, ok := msg.(*wire.RegisterSlaveAck)
	if !ok {
		return errors.Wrapf(ErrProtocolViolation, "register slave ack expected, got %T", msg)
	}
	if ProcessIdentifier(ack.ProcessID) < firstSlaveProcessIdentifier {
		return errors.Wrapf(ErrProtocolViolation, "invalid process identifier %d", ack.ProcessID)
	}
	m.processID.Store(uint64(ack.ProcessID))

	logger.Get(ctx).Info("Slave registered", zap.Uint64("processID", uint64(ack.ProcessID)))

	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		spawn("receiver", parallel.Exit, func(ctx context.Context) error {
			return m.receive(ctx, c)
		})
		spawn("sender", parallel.Exit, func(ctx context.Context) error {
			defer c.Close()

			return m.send(ctx, c)
		})

		return nil
	})
}

func (m *SlaveConnectionManager) receive(ctx context.Context, c *resonance.Connection) error {
	for {
		msg, err := c.ReceiveProton(m.m)
		if err != nil {
			if m.closing.Load() {
				return nil
			}
			return err
		}

		var kind ackKind
		switch msg.(type) {
		case *wire.AllowConnectAck:
			kind = ackKindAllowConnect
		case *wire.CancelConnectAck:
			kind = ackKindCancelConnect
		case *wire.ConnectAck:
			kind = ackKindConnect
		case *wire.Goodbye:
			return nil
		default:
			return errors.Wrapf(ErrProtocolViolation, "unexpected message %T", msg)
		}

		if err := m.deliverAck(kind, msg); err != nil {
			logger.Get(ctx).DPanic("Master sent unexpected ack", zap.Error(err))
			return err
		}
	}
}

func (m *SlaveConnectionManager) deliverAck(kind ackKind, ack any) error {
	m.mu.Lock()
	if len(m.awaited) == 0 || m.awaited[0].kind != kind {
		expected := ackKindNone
		if len(m.awaited) > 0 {
			expected = m.awaited[0].kind
		}
		m.mu.Unlock()

		return errors.Wrapf(ErrProtocolViolation, "received %s while awaiting %s", kind, expected)
	}
	awaited := m.awaited[0]
	m.awaited = m.awaited[1:]
	if awaited.abandoned {
		m.mu.Unlock()

		m.drop(awaited, ack)
		return nil
	}
	awaited.replyCh <- ack
	m.mu.Unlock()

	<-m.permit
	return nil
}

func (m *SlaveConnectionManager) send(ctx context.Context, c *resonance.Connection) error {
	for {
		msgs, ok, err := m.outbox.Wait(ctx)
		if err != nil {
			return err
		}
		if !ok {
			m.closing.Store(true)
			return sendGoodbye(c, m.m, "slave shut down")
		}
		for _, msg := range msgs {
			if err := c.SendProton(msg, m.m); err != nil {
				return err
			}
		}
	}
}

// exchange sends the request and waits for the ack of the kind. The permit guarantees that only one
// request is awaited by a caller.
func (m *SlaveConnectionManager) exchange(
	ctx context.Context,
	kind ackKind,
	connectionID ConnectionIdentifier,
	request any,
) (any, bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case <-m.disconnectedCh:
		return nil, false
	case m.permit <- struct{}{}:
	}

	awaited := &awaitedAck{
		kind:         kind,
		connectionID: connectionID,
		replyCh:      make(chan any, 1),
	}

	m.mu.Lock()
	if !m.outbox.Push(request) {
		m.mu.Unlock()
		<-m.permit
		return nil, false
	}
	m.awaited = append(m.awaited, awaited)
	m.mu.Unlock()

	select {
	case <-ctx.Done():
		m.abandon(awaited)
		return nil, false
	case <-m.disconnectedCh:
		return nil, false
	case ack := <-awaited.replyCh:
		return ack, true
	}
}

// abandon releases the permit of the request whose caller stopped waiting. Outstanding Connect is
// withdrawn, so master sends its ack before acks of the next requests.
func (m *SlaveConnectionManager) abandon(awaited *awaitedAck) {
	m.mu.Lock()
	select {
	case ack := <-awaited.replyCh:
		m.mu.Unlock()

		m.drop(awaited, ack)
		return
	default:
	}

	awaited.abandoned = true
	if awaited.kind == ackKindConnect {
		m.outbox.Push(&wire.WithdrawConnect{ConnectionID: wire.ConnectionID(awaited.connectionID)})
	}
	m.mu.Unlock()

	<-m.permit
}

func (m *SlaveConnectionManager) drop(awaited *awaitedAck, ack any) {
	if awaited.kind != ackKindConnect || m.onDropped == nil {
		return
	}
	m.onDropped(awaited.connectionID, connectAckFromWire(ack.(*wire.ConnectAck)))
}

func (m *SlaveConnectionManager) disconnect() {
	m.disconnectOnce.Do(func() {
		close(m.disconnectedCh)
		m.outbox.Close()
		postOrRun(m.delegateRunner, m.delegate.OnMasterDisconnect)
	})
}
