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

type slaveConn struct {
	id      ProcessIdentifier
	info    SlaveInfo
	handle  PlatformHandle
	address string
	outbox  *outbox[any]
	closing atomic.Bool
	stopCh  chan struct{}
	stop    sync.Once
}

func (s *slaveConn) Stop() {
	s.stop.Do(func() {
		close(s.stopCh)
		s.outbox.Close()
	})
}

type pendingConnect struct {
	first  ProcessIdentifier
	second ProcessIdentifier

	waitingParty ProcessIdentifier
	waiting      func(ConnectResult)
	selfConnects int
}

func (p *pendingConnect) isParty(id ProcessIdentifier) bool {
	return id == p.first || id == p.second
}

// MasterConnectionManager is the connection manager of the master process. It keeps the registry of
// slaves and pairs connect requests of two processes. The state is accessed by tasks on the I/O runner only.
type MasterConnectionManager struct {
	ioRunner       TaskRunner
	listener       *listener
	delegate       MasterProcessDelegate
	delegateRunner TaskRunner
	group          *parallel.Group
	m              wire.Marshaller
	onDropped      droppedResultFunc

	nextProcessID ProcessIdentifier
	slaves        map[ProcessIdentifier]*slaveConn
	pending       map[ConnectionIdentifier]*pendingConnect
	resolved      map[ConnectionIdentifier]struct{}
	shutdown      bool
}

func newMasterConnectionManager(
	ioRunner TaskRunner,
	listener *listener,
	delegate MasterProcessDelegate,
	delegateRunner TaskRunner,
) *MasterConnectionManager {
	return &MasterConnectionManager{
		ioRunner:       ioRunner,
		listener:       listener,
		delegate:       delegate,
		delegateRunner: delegateRunner,
		m:              wire.NewMarshaller(),
		nextProcessID:  firstSlaveProcessIdentifier,
		slaves:         map[ProcessIdentifier]*slaveConn{},
		pending:        map[ConnectionIdentifier]*pendingConnect{},
		resolved:       map[ConnectionIdentifier]struct{}{},
	}
}

// ProcessIdentifier returns MasterProcessIdentifier.
func (m *MasterConnectionManager) ProcessIdentifier() ProcessIdentifier {
	return MasterProcessIdentifier
}

// GenerateConnectionIdentifier generates new connection identifier.
func (m *MasterConnectionManager) GenerateConnectionIdentifier() (ConnectionIdentifier, error) {
	return GenerateConnectionIdentifier()
}

// AddSlave registers the slave which is going to connect using the dialing end of the pipe whose
// accepting end is serverHandle. InvalidProcessIdentifier is returned if master is shut down.
func (m *MasterConnectionManager) AddSlave(slaveInfo SlaveInfo, serverHandle PlatformHandle) ProcessIdentifier {
	id, _ := call(m.ioRunner, func() ProcessIdentifier {
		return m.addSlaveOnIOThread(slaveInfo, serverHandle)
	})
	return id
}

// AddSlaveAndBootstrap registers the slave and the pending connection between master and the slave.
func (m *MasterConnectionManager) AddSlaveAndBootstrap(
	slaveInfo SlaveInfo,
	serverHandle PlatformHandle,
	connectionID ConnectionIdentifier,
) ProcessIdentifier {
	id, _ := call(m.ioRunner, func() ProcessIdentifier {
		if m.knownOnIOThread(connectionID) {
			return InvalidProcessIdentifier
		}

		id := m.addSlaveOnIOThread(slaveInfo, serverHandle)
		if id != InvalidProcessIdentifier {
			m.pending[connectionID] = &pendingConnect{
				first:  MasterProcessIdentifier,
				second: id,
			}
		}
		return id
	})
	return id
}

// AllowConnect declares that master participates in the connection.
func (m *MasterConnectionManager) AllowConnect(ctx context.Context, connectionID ConnectionIdentifier) bool {
	ok, _ := call(m.ioRunner, func() bool {
		return m.allowConnectOnIOThread(MasterProcessIdentifier, connectionID)
	})
	return ok
}

// CancelConnect withdraws participation of master in the connection.
func (m *MasterConnectionManager) CancelConnect(ctx context.Context, connectionID ConnectionIdentifier) bool {
	ok, _ := call(m.ioRunner, func() bool {
		return m.cancelConnectOnIOThread(MasterProcessIdentifier, connectionID)
	})
	return ok
}

// Connect connects master to the other party of the connection. If ctx is canceled first, the request
// is withdrawn but participation in the connection is kept.
func (m *MasterConnectionManager) Connect(ctx context.Context, connectionID ConnectionIdentifier) ConnectResult {
	resultCh := make(chan ConnectResult, 1)
	if !m.ioRunner.PostTask(func() {
		m.connectOnIOThread(MasterProcessIdentifier, connectionID, func(result ConnectResult) {
			resultCh <- result
		})
	}) {
		return ConnectResult{}
	}

	select {
	case <-ctx.Done():
		m.ioRunner.PostTask(func() {
			m.withdrawConnectOnIOThread(MasterProcessIdentifier, connectionID)

			// Result delivered before the withdrawal is not received by anyone.
			select {
			case result := <-resultCh:
				m.drop(connectionID, result)
			default:
			}
		})
		return ConnectResult{}
	case result := <-resultCh:
		return result
	}
}

// Shutdown disconnects all the slaves and fails pending connects.
func (m *MasterConnectionManager) Shutdown() {
	call(m.ioRunner, func() struct{} {
		m.shutdownOnIOThread()
		return struct{}{}
	})
}

func (m *MasterConnectionManager) addSlaveOnIOThread(slaveInfo SlaveInfo, serverHandle PlatformHandle) ProcessIdentifier {
	if m.shutdown {
		return InvalidProcessIdentifier
	}

	slave := &slaveConn{
		id:     m.nextProcessID,
		info:   slaveInfo,
		handle: serverHandle,
		outbox: newOutbox[any](),
		stopCh: make(chan struct{}),
	}
	m.nextProcessID++
	m.slaves[slave.id] = slave

	m.group.Spawn("slave", parallel.Continue, func(ctx context.Context) error {
		log := logger.Get(ctx).With(zap.Uint64("processID", uint64(slave.id)))

		err := m.listener.Accept(ctx, slave.handle, slave.stopCh,
			func(ctx context.Context, c *resonance.Connection) error {
				return m.serveSlave(ctx, slave, c)
			})
		if err != nil && ctx.Err() == nil {
			log.Error("Slave connection failed", zap.Error(err))
		}

		m.ioRunner.PostTask(func() {
			m.removeSlaveOnIOThread(slave)
		})
		return nil
	})

	return slave.id
}

func (m *MasterConnectionManager) serveSlave(ctx context.Context, slave *slaveConn, c *resonance.Connection) error {
	msg, err := c.ReceiveProton(m.m)
	if err != nil {
		return err
	}
	register, ok := msg.(*wire.RegisterSlave)
	if !ok {
		return errors.Wrapf(ErrProtocolViolation, "register slave message expected, got %T", msg)
	}

	if registered, _ := call(m.ioRunner, func() bool {
		if m.slaves[slave.id] != slave {
			return false
		}
		slave.address = register.Address
		return true
	}); !registered {
		return nil
	}

	if err := c.SendProton(&wire.RegisterSlaveAck{ProcessID: wire.ProcessID(slave.id)}, m.m); err != nil {
		return err
	}

	logger.Get(ctx).Info("Slave registered",
		zap.Uint64("processID", uint64(slave.id)), zap.String("address", register.Address))

	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		spawn("receiver", parallel.Exit, func(ctx context.Context) error {
			return m.receiveFromSlave(slave, c)
		})
		spawn("sender", parallel.Exit, func(ctx context.Context) error {
			defer c.Close()

			return m.sendToSlave(ctx, slave, c)
		})

		return nil
	})
}

func (m *MasterConnectionManager) receiveFromSlave(slave *slaveConn, c *resonance.Connection) error {
	for {
		msg, err := c.ReceiveProton(m.m)
		if err != nil {
			if slave.closing.Load() {
				return nil
			}
			return err
		}

		var task func()
		switch msg := msg.(type) {
		case *wire.AllowConnect:
			task = func() {
				slave.outbox.Push(&wire.AllowConnectAck{
					Success: m.allowConnectOnIOThread(slave.id, ConnectionIdentifier(msg.ConnectionID)),
				})
			}
		case *wire.CancelConnect:
			task = func() {
				slave.outbox.Push(&wire.CancelConnectAck{
					Success: m.cancelConnectOnIOThread(slave.id, ConnectionIdentifier(msg.ConnectionID)),
				})
			}
		case *wire.Connect:
			task = func() {
				m.connectOnIOThread(slave.id, ConnectionIdentifier(msg.ConnectionID), func(result ConnectResult) {
					slave.outbox.Push(connectAckToWire(result))
				})
			}
		case *wire.WithdrawConnect:
			task = func() {
				m.withdrawConnectOnIOThread(slave.id, ConnectionIdentifier(msg.ConnectionID))
			}
		case *wire.Goodbye:
			return nil
		default:
			return errors.Wrapf(ErrProtocolViolation, "unexpected message %T", msg)
		}

		if !m.ioRunner.PostTask(task) {
			return errors.WithStack(errShutdown)
		}
	}
}

func (m *MasterConnectionManager) sendToSlave(ctx context.Context, slave *slaveConn, c *resonance.Connection) error {
	for {
		msgs, ok, err := slave.outbox.Wait(ctx)
		if err != nil {
			return err
		}
		if !ok {
			slave.closing.Store(true)
			return sendGoodbye(c, m.m, "master shut down")
		}
		for _, msg := range msgs {
			if err := c.SendProton(msg, m.m); err != nil {
				return err
			}
		}
	}
}

func (m *MasterConnectionManager) allowConnectOnIOThread(id ProcessIdentifier, connectionID ConnectionIdentifier) bool {
	if m.shutdown {
		return false
	}
	if _, resolved := m.resolved[connectionID]; resolved {
		return false
	}

	p, exists := m.pending[connectionID]
	switch {
	case !exists:
		m.pending[connectionID] = &pendingConnect{first: id}
		return true
	case p.second == InvalidProcessIdentifier:
		p.second = id
		return true
	default:
		return false
	}
}

func (m *MasterConnectionManager) cancelConnectOnIOThread(id ProcessIdentifier, connectionID ConnectionIdentifier) bool {
	p, exists := m.pending[connectionID]
	if !exists || !p.isParty(id) {
		return false
	}

	delete(m.pending, connectionID)
	if p.waiting != nil {
		p.waiting(ConnectResult{})
	}
	return true
}

func (m *MasterConnectionManager) connectOnIOThread(
	id ProcessIdentifier,
	connectionID ConnectionIdentifier,
	reply func(ConnectResult),
) {
	p, exists := m.pending[connectionID]
	if m.shutdown || !exists || !p.isParty(id) || p.second == InvalidProcessIdentifier {
		reply(ConnectResult{})
		return
	}

	if p.first == p.second {
		result := ConnectResult{
			Success:               true,
			PeerProcessIdentifier: id,
			IsFirst:               p.selfConnects == 0,
		}
		p.selfConnects++
		if p.selfConnects == 2 {
			m.resolveOnIOThread(connectionID)
		}
		reply(result)
		return
	}

	if p.waiting == nil {
		p.waitingParty = id
		p.waiting = reply
		return
	}
	if p.waitingParty == id {
		reply(ConnectResult{})
		return
	}

	m.resolveOnIOThread(connectionID)

	replyFirst, replySecond := p.waiting, reply
	if p.waitingParty != p.first {
		replyFirst, replySecond = replySecond, replyFirst
	}

	address, ok := m.addressOnIOThread(p.first)
	if !ok {
		replyFirst(ConnectResult{})
		replySecond(ConnectResult{})
		return
	}
	token, err := pipeToken()
	if err != nil {
		replyFirst(ConnectResult{})
		replySecond(ConnectResult{})
		return
	}

	replyFirst(ConnectResult{
		Success:               true,
		PeerProcessIdentifier: p.second,
		IsFirst:               true,
		PlatformHandle:        PlatformHandle{Token: token},
	})
	replySecond(ConnectResult{
		Success:               true,
		PeerProcessIdentifier: p.first,
		PlatformHandle:        PlatformHandle{Address: address, Token: token},
	})
}

// withdrawConnectOnIOThread fails the outstanding Connect of the party. Nothing happens if it has been
// answered already.
func (m *MasterConnectionManager) withdrawConnectOnIOThread(id ProcessIdentifier, connectionID ConnectionIdentifier) {
	p, exists := m.pending[connectionID]
	if !exists || p.waiting == nil || p.waitingParty != id {
		return
	}

	waiting := p.waiting
	p.waiting = nil
	p.waitingParty = InvalidProcessIdentifier
	waiting(ConnectResult{})
}

func (m *MasterConnectionManager) resolveOnIOThread(connectionID ConnectionIdentifier) {
	delete(m.pending, connectionID)
	m.resolved[connectionID] = struct{}{}
}

func (m *MasterConnectionManager) knownOnIOThread(connectionID ConnectionIdentifier) bool {
	if _, exists := m.pending[connectionID]; exists {
		return true
	}
	_, resolved := m.resolved[connectionID]
	return resolved
}

func (m *MasterConnectionManager) drop(connectionID ConnectionIdentifier, result ConnectResult) {
	if m.onDropped != nil {
		m.onDropped(connectionID, result)
	}
}

func (m *MasterConnectionManager) addressOnIOThread(id ProcessIdentifier) (string, bool) {
	if id == MasterProcessIdentifier {
		return m.listener.Address(), true
	}
	slave, exists := m.slaves[id]
	if !exists || slave.address == "" {
		return "", false
	}
	return slave.address, true
}

func (m *MasterConnectionManager) removeSlaveOnIOThread(slave *slaveConn) {
	if m.slaves[slave.id] != slave {
		return
	}
	delete(m.slaves, slave.id)
	slave.Stop()

	for connectionID, p := range m.pending {
		if !p.isParty(slave.id) {
			continue
		}
		delete(m.pending, connectionID)
		if p.waiting != nil && p.waitingParty != slave.id {
			p.waiting(ConnectResult{})
		}
	}

	info := slave.info
	postOrRun(m.delegateRunner, func() {
		m.delegate.OnSlaveDisconnect(info)
	})
}

func (m *MasterConnectionManager) shutdownOnIOThread() {
	if m.shutdown {
		return
	}
	m.shutdown = true

	for _, slave := range m.slaves {
		m.removeSlaveOnIOThread(slave)
	}
	for connectionID, p := range m.pending {
		delete(m.pending, connectionID)
		if p.waiting != nil {
			p.waiting(ConnectResult{})
		}
	}
}

func connectAckToWire(result ConnectResult) *wire.ConnectAck {
	return &wire.ConnectAck{
		Success: result.Success,
		Data: wire.AckSuccessConnectData{
			PeerProcessID: wire.ProcessID(result.PeerProcessIdentifier),
			IsFirst:       result.IsFirst,
		},
		Handle: result.PlatformHandle.toWire(),
	}
}

func connectAckFromWire(ack *wire.ConnectAck) ConnectResult {
	if !ack.Success {
		return ConnectResult{}
	}
	return ConnectResult{
		Success:               true,
		PeerProcessIdentifier: ProcessIdentifier(ack.Data.PeerProcessID),
		IsFirst:               ack.Data.IsFirst,
		PlatformHandle:        platformHandleFromWire(ack.Handle),
	}
}
