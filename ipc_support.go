package edk

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"
)

const channelShutdownTimeout = 5 * time.Second

// IPCSupport is the IPC context of the process. It owns the listener, the connection manager and the
// channel manager.
type IPCSupport struct {
	config         Config
	delegate       ProcessDelegate
	delegateRunner TaskRunner
	ioRunner       *SerialTaskRunner
	listener       *listener
	channelManager *ChannelManager
	master         *MasterConnectionManager
	slave          *SlaveConnectionManager
	running        atomic.Bool

	mu            sync.Mutex
	localConnects map[ConnectionIdentifier]*MessagePipeDispatcher
}

// NewIPCSupport creates IPC support of the process. Delegate must implement MasterProcessDelegate or
// SlaveProcessDelegate, depending on the process type. Delegate calls are posted to delegateRunner,
// or made directly if it is nil.
func NewIPCSupport(config Config, delegate ProcessDelegate, delegateRunner TaskRunner) (*IPCSupport, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if delegate == nil {
		return nil, errors.New("process delegate is nil")
	}

	var masterDelegate MasterProcessDelegate
	var slaveDelegate SlaveProcessDelegate
	switch config.ProcessType {
	case ProcessTypeMaster:
		var ok bool
		if masterDelegate, ok = delegate.(MasterProcessDelegate); !ok {
			return nil, errors.New("master process requires master process delegate")
		}
	case ProcessTypeSlave:
		var ok bool
		if slaveDelegate, ok = delegate.(SlaveProcessDelegate); !ok {
			return nil, errors.New("slave process requires slave process delegate")
		}
	}

	ls, err := net.Listen("tcp", config.ListenAddress)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	connConfig := connectionConfig(config)
	ioRunner := NewSerialTaskRunner()
	l := newListener(ls, connConfig)

	s := &IPCSupport{
		config:         config,
		delegate:       delegate,
		delegateRunner: delegateRunner,
		ioRunner:       ioRunner,
		listener:       l,
		channelManager: newChannelManager(ioRunner, l, connConfig),
		localConnects:  map[ConnectionIdentifier]*MessagePipeDispatcher{},
	}

	switch config.ProcessType {
	case ProcessTypeMaster:
		s.master = newMasterConnectionManager(ioRunner, l, masterDelegate, delegateRunner)
		s.master.onDropped = s.dropConnectResult
	case ProcessTypeSlave:
		s.slave = newSlaveConnectionManager(config.MasterHandle, l, connConfig, slaveDelegate, delegateRunner)
		s.slave.onDropped = s.dropConnectResult
	}

	return s, nil
}

// Run runs IPC support until context is canceled. Then connection manager and channels are shut down,
// and OnShutdownComplete is delivered to the delegate.
func (s *IPCSupport) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		panic(errors.New("IPC support is running already"))
	}
	defer postOrRun(s.delegateRunner, s.delegate.OnShutdownComplete)

	log := logger.Get(ctx).With(zap.Stringer("processType", s.config.ProcessType))

	group := parallel.NewGroup(context.WithoutCancel(ctx))
	s.channelManager.group = group
	if s.master != nil {
		s.master.group = group
	}

	group.Spawn("ioRunner", parallel.Fail, s.ioRunner.Run)
	group.Spawn("listener", parallel.Fail, s.listener.Run)
	if s.slave != nil {
		group.Spawn("master", parallel.Continue, s.slave.Run)
	}
	group.Spawn("shutdown", parallel.Exit, func(groupCtx context.Context) error {
		select {
		case <-ctx.Done():
		case <-groupCtx.Done():
		}

		log.Info("Shutting down IPC support")
		s.shutdown()
		return nil
	})

	log.Info("IPC support started", zap.String("address", s.listener.Address()))

	return group.Wait()
}

func (s *IPCSupport) shutdown() {
	if cm := s.connectionManager(); cm != nil {
		cm.Shutdown()
	}
	call(s.ioRunner, func() struct{} {
		s.channelManager.ShutdownOnIOThread()
		return struct{}{}
	})
	s.channelManager.wait(channelShutdownTimeout)
}

// ProcessType returns the type of the process.
func (s *IPCSupport) ProcessType() ProcessType {
	return s.config.ProcessType
}

// ProcessIdentifier returns the identifier of the process.
func (s *IPCSupport) ProcessIdentifier() ProcessIdentifier {
	if cm := s.connectionManager(); cm != nil {
		return cm.ProcessIdentifier()
	}
	return InvalidProcessIdentifier
}

// ChannelManager returns the channel manager of the process.
func (s *IPCSupport) ChannelManager() *ChannelManager {
	return s.channelManager
}

// CreatePlatformChannelPair creates the pipe accepted by this process. Server handle must be used in this
// process, client handle is passed to the peer.
func (s *IPCSupport) CreatePlatformChannelPair() (PlatformHandle, PlatformHandle, error) {
	return s.listener.NewPair()
}

// GenerateConnectionIdentifier generates new connection identifier.
func (s *IPCSupport) GenerateConnectionIdentifier() (ConnectionIdentifier, error) {
	return GenerateConnectionIdentifier()
}

// ConnectToSlave adds the slave connecting with the dialing end of the pipe whose accepting end is
// serverHandle, and returns the bootstrap message pipe to it. Callback is posted to callbackRunner
// once the channel to the slave is created or connecting failed.
func (s *IPCSupport) ConnectToSlave(
	connectionID ConnectionIdentifier,
	slaveInfo SlaveInfo,
	serverHandle PlatformHandle,
	callback func(),
	callbackRunner TaskRunner,
) (*MessagePipeDispatcher, ProcessIdentifier, error) {
	if s.master == nil {
		return nil, InvalidProcessIdentifier, errors.Errorf("%s process can't connect to slave", s.config.ProcessType)
	}
	if !serverHandle.IsValid() || !serverHandle.IsServer() {
		return nil, InvalidProcessIdentifier, errors.Errorf("handle %s is not the accepting end", serverHandle)
	}

	slaveID := s.master.AddSlaveAndBootstrap(slaveInfo, serverHandle, connectionID)
	if slaveID == InvalidProcessIdentifier {
		return nil, InvalidProcessIdentifier, errors.New("adding slave failed")
	}

	d, e := CreateRemoteMessagePipe()
	s.connectBootstrap(s.master, connectionID, e, callback, callbackRunner)
	return d, slaveID, nil
}

// ConnectToMaster returns the bootstrap message pipe to the master. Callback is posted to callbackRunner
// once the channel to the master is created or connecting failed.
func (s *IPCSupport) ConnectToMaster(
	connectionID ConnectionIdentifier,
	callback func(),
	callbackRunner TaskRunner,
) (*MessagePipeDispatcher, error) {
	if s.slave == nil {
		return nil, errors.Errorf("%s process can't connect to master", s.config.ProcessType)
	}

	d, e := CreateRemoteMessagePipe()
	s.connectBootstrap(s.slave, connectionID, e, callback, callbackRunner)
	return d, nil
}

func (s *IPCSupport) connectBootstrap(
	cm ConnectionManager,
	connectionID ConnectionIdentifier,
	bootstrap *ChannelEndpoint,
	callback func(),
	callbackRunner TaskRunner,
) {
	if !s.ioRunner.PostTask(func() {
		s.channelManager.group.Spawn("connect", parallel.Continue, func(ctx context.Context) error {
			result := cm.Connect(ctx, connectionID)
			if !result.Success || !result.PlatformHandle.IsValid() {
				logger.Get(ctx).Error("Connecting bootstrap message pipe failed",
					zap.Stringer("connectionID", connectionID))
				bootstrap.onRemoteClosed()
			} else {
				s.channelManager.createChannel(s.channelManager.NewChannelID(), result.PlatformHandle, bootstrap,
					nil, nil)
			}

			if callback != nil {
				postOrRun(callbackRunner, callback)
			}
			return nil
		})
	}) {
		bootstrap.onRemoteClosed()
		if callback != nil {
			postOrRun(callbackRunner, callback)
		}
	}
}

// AllowConnect declares that this process participates in the connection.
func (s *IPCSupport) AllowConnect(ctx context.Context, connectionID ConnectionIdentifier) bool {
	cm := s.connectionManager()
	return cm != nil && cm.AllowConnect(ctx, connectionID)
}

// CancelConnect withdraws participation of this process in the connection.
func (s *IPCSupport) CancelConnect(ctx context.Context, connectionID ConnectionIdentifier) bool {
	cm := s.connectionManager()
	return cm != nil && cm.CancelConnect(ctx, connectionID)
}

// ConnectMessagePipe waits until the other party of the connection connects too and returns the message
// pipe to it. If both parties are this process, the ends of a local message pipe are returned to
// the two callers.
func (s *IPCSupport) ConnectMessagePipe(
	ctx context.Context,
	connectionID ConnectionIdentifier,
) (*MessagePipeDispatcher, ProcessIdentifier, error) {
	cm := s.connectionManager()
	if cm == nil {
		return nil, InvalidProcessIdentifier, errors.Errorf("%s process can't connect", s.config.ProcessType)
	}

	result := cm.Connect(ctx, connectionID)
	if !result.Success {
		return nil, InvalidProcessIdentifier, errors.WithStack(ErrConnectFailed)
	}

	if result.PeerProcessIdentifier == cm.ProcessIdentifier() {
		return s.connectLocally(connectionID), result.PeerProcessIdentifier, nil
	}

	id := s.channelManager.NewChannelID()
	d, ok := call(s.ioRunner, func() *MessagePipeDispatcher {
		return s.channelManager.CreateChannelOnIOThread(id, result.PlatformHandle)
	})
	if !ok {
		return nil, InvalidProcessIdentifier, errors.WithStack(errShutdown)
	}
	return d, result.PeerProcessIdentifier, nil
}

// dropConnectResult closes the message pipe of the connection whose caller stopped waiting, so the peer
// observes it as closed.
func (s *IPCSupport) dropConnectResult(connectionID ConnectionIdentifier, result ConnectResult) {
	if !result.Success {
		return
	}
	if result.PeerProcessIdentifier == s.ProcessIdentifier() {
		s.connectLocally(connectionID).Close()
		return
	}

	id := s.channelManager.NewChannelID()
	s.ioRunner.PostTask(func() {
		s.channelManager.CreateChannelOnIOThread(id, result.PlatformHandle).Close()
	})
}

func (s *IPCSupport) connectLocally(connectionID ConnectionIdentifier) *MessagePipeDispatcher {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d, exists := s.localConnects[connectionID]; exists {
		delete(s.localConnects, connectionID)
		return d
	}

	d0, d1 := CreateMessagePipe()
	s.localConnects[connectionID] = d1
	return d0
}

func (s *IPCSupport) connectionManager() ConnectionManager {
	switch {
	case s.master != nil:
		return s.master
	case s.slave != nil:
		return s.slave
	default:
		return nil
	}
}
