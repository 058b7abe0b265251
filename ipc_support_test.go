package edk_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/edk"
	"github.com/outofforest/edk/test/wire"
	"github.com/outofforest/parallel"
	"github.com/outofforest/qa"
)

type processDelegate struct {
	slaveDisconnectCh  chan edk.SlaveInfo
	masterDisconnects  atomic.Int32
	masterDisconnectCh chan struct{}
	shutdownOnce       sync.Once
	shutdownCh         chan struct{}
}

func newProcessDelegate() *processDelegate {
	return &processDelegate{
		slaveDisconnectCh:  make(chan edk.SlaveInfo, 10),
		masterDisconnectCh: make(chan struct{}),
		shutdownCh:         make(chan struct{}),
	}
}

func (d *processDelegate) OnShutdownComplete() {
	d.shutdownOnce.Do(func() {
		close(d.shutdownCh)
	})
}

func (d *processDelegate) OnSlaveDisconnect(slaveInfo edk.SlaveInfo) {
	d.slaveDisconnectCh <- slaveInfo
}

func (d *processDelegate) OnMasterDisconnect() {
	if d.masterDisconnects.Add(1) == 1 {
		close(d.masterDisconnectCh)
	}
}

type shutdownDelegate struct{}

func (shutdownDelegate) OnShutdownComplete() {}

type process struct {
	ipc      *edk.IPCSupport
	delegate *processDelegate
	stopOnce sync.Once
	stopCh   chan struct{}
}

func (p *process) Stop(ctx context.Context, requireT *require.Assertions) {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	wait(ctx, requireT, p.delegate.shutdownCh)
}

func startProcess(t *testing.T, group *parallel.Group, config edk.Config) *process {
	delegate := newProcessDelegate()
	ipc, err := edk.NewIPCSupport(config, delegate, nil)
	require.NoError(t, err)

	p := &process{
		ipc:      ipc,
		delegate: delegate,
		stopCh:   make(chan struct{}),
	}

	group.Spawn("process", parallel.Continue, func(ctx context.Context) error {
		return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
			spawn("ipc", parallel.Exit, ipc.Run)
			spawn("stop", parallel.Exit, func(ctx context.Context) error {
				select {
				case <-ctx.Done():
				case <-p.stopCh:
				}
				return nil
			})
			return nil
		})
	})

	return p
}

func startMaster(t *testing.T, group *parallel.Group) *process {
	config := edk.DefaultConfig()
	config.ProcessType = edk.ProcessTypeMaster
	return startProcess(t, group, config)
}

type slave struct {
	*process

	id         edk.ProcessIdentifier
	masterPipe *edk.MessagePipeDispatcher
	pipe       *edk.MessagePipeDispatcher
}

func startSlave(
	ctx context.Context,
	t *testing.T,
	group *parallel.Group,
	master *process,
	slaveInfo edk.SlaveInfo,
) *slave {
	requireT := require.New(t)

	server, client, err := master.ipc.CreatePlatformChannelPair()
	requireT.NoError(err)
	connectionID, err := master.ipc.GenerateConnectionIdentifier()
	requireT.NoError(err)

	masterPipe, id, err := master.ipc.ConnectToSlave(connectionID, slaveInfo, server, nil, nil)
	requireT.NoError(err)

	config := edk.DefaultConfig()
	config.ProcessType = edk.ProcessTypeSlave
	config.MasterHandle = client
	p := startProcess(t, group, config)

	connectedCh := make(chan struct{})
	pipe, err := p.ipc.ConnectToMaster(connectionID, func() {
		close(connectedCh)
	}, nil)
	requireT.NoError(err)
	wait(ctx, requireT, connectedCh)

	exchange(ctx, requireT, masterPipe, pipe, 1)
	requireT.Equal(id, p.ipc.ProcessIdentifier())

	return &slave{
		process:    p,
		id:         id,
		masterPipe: masterPipe,
		pipe:       pipe,
	}
}

func wait(ctx context.Context, requireT *require.Assertions, ch <-chan struct{}) {
	select {
	case <-ctx.Done():
		requireT.Fail("timeout")
	case <-ch:
	}
}

func newConnectionID(requireT *require.Assertions) edk.ConnectionIdentifier {
	id, err := edk.GenerateConnectionIdentifier()
	requireT.NoError(err)
	return id
}

func send(requireT *require.Assertions, d *edk.MessagePipeDispatcher, msg any, handles ...edk.Dispatcher) {
	payload, err := wire.Encode(msg)
	requireT.NoError(err)
	requireT.Equal(edk.ResultOK, d.WriteMessage(payload, handles, edk.WriteMessageFlagNone))
}

func receive(
	ctx context.Context,
	requireT *require.Assertions,
	d *edk.MessagePipeDispatcher,
) (any, []edk.Dispatcher) {
	result, err := edk.WaitForSignals(ctx, d, edk.HandleSignalReadable)
	requireT.NoError(err)
	requireT.Equal(edk.ResultOK, result)

	numBytes, numHandles, result := d.ReadMessage(nil, nil, edk.ReadMessageFlagNone)
	requireT.Equal(edk.ResultResourceExhausted, result)

	buf := make([]byte, numBytes)
	handles := make([]edk.Dispatcher, numHandles)
	numBytes, numHandles, result = d.ReadMessage(buf, handles, edk.ReadMessageFlagNone)
	requireT.Equal(edk.ResultOK, result)

	msg, err := wire.Decode(buf[:numBytes])
	requireT.NoError(err)
	return msg, handles[:numHandles]
}

// exchange sends ping from d1 and expects pong on it from d2.
func exchange(ctx context.Context, requireT *require.Assertions, d1, d2 *edk.MessagePipeDispatcher, seq uint64) {
	send(requireT, d1, &wire.Ping{Seq: seq, Text: "ping"})
	msg, handles := receive(ctx, requireT, d2)
	requireT.Equal(&wire.Ping{Seq: seq, Text: "ping"}, msg)
	requireT.Empty(handles)

	send(requireT, d2, &wire.Pong{Seq: seq, Text: "pong"})
	msg, handles = receive(ctx, requireT, d1)
	requireT.Equal(&wire.Pong{Seq: seq, Text: "pong"}, msg)
	requireT.Empty(handles)
}

func waitPeerClosed(ctx context.Context, requireT *require.Assertions, d *edk.MessagePipeDispatcher) {
	result, err := edk.WaitForSignals(ctx, d, edk.HandleSignalPeerClosed)
	requireT.NoError(err)
	requireT.Equal(edk.ResultOK, result)
}

func connectPair(
	ctx context.Context,
	requireT *require.Assertions,
	p1, p2 *process,
	connectionID edk.ConnectionIdentifier,
) (*edk.MessagePipeDispatcher, *edk.MessagePipeDispatcher) {
	var d1, d2 *edk.MessagePipeDispatcher
	var peer1, peer2 edk.ProcessIdentifier
	requireT.NoError(parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		spawn("first", parallel.Continue, func(ctx context.Context) error {
			var err error
			d1, peer1, err = p1.ipc.ConnectMessagePipe(ctx, connectionID)
			return err
		})
		spawn("second", parallel.Continue, func(ctx context.Context) error {
			var err error
			d2, peer2, err = p2.ipc.ConnectMessagePipe(ctx, connectionID)
			return err
		})
		return nil
	}))

	requireT.Equal(p2.ipc.ProcessIdentifier(), peer1)
	requireT.Equal(p1.ipc.ProcessIdentifier(), peer2)
	return d1, d2
}

func TestMasterAndSlavesCommunicateOverBootstrapPipes(t *testing.T) {
	requireT := require.New(t)

	ctx := qa.NewContext(t)
	group := qa.NewGroup(ctx, t)

	master := startMaster(t, group)
	a := startSlave(ctx, t, group, master, "a")
	b := startSlave(ctx, t, group, master, "b")

	defer func() {
		b.Stop(ctx, requireT)
		a.Stop(ctx, requireT)
		master.Stop(ctx, requireT)

		group.Exit(nil)
		requireT.NoError(group.Wait())
	}()

	requireT.Equal(edk.MasterProcessIdentifier, master.ipc.ProcessIdentifier())
	requireT.NotEqual(a.id, b.id)

	exchange(ctx, requireT, a.pipe, a.masterPipe, 2)
	exchange(ctx, requireT, b.masterPipe, b.pipe, 3)
}

func TestSlavesConnectMessagePipe(t *testing.T) {
	requireT := require.New(t)

	ctx := qa.NewContext(t)
	group := qa.NewGroup(ctx, t)

	master := startMaster(t, group)
	a := startSlave(ctx, t, group, master, "a")
	b := startSlave(ctx, t, group, master, "b")

	defer func() {
		b.Stop(ctx, requireT)
		a.Stop(ctx, requireT)
		master.Stop(ctx, requireT)

		group.Exit(nil)
		requireT.NoError(group.Wait())
	}()

	id := newConnectionID(requireT)
	requireT.True(a.ipc.AllowConnect(ctx, id))
	requireT.True(b.ipc.AllowConnect(ctx, id))
	requireT.False(master.ipc.AllowConnect(ctx, id))

	da, db := connectPair(ctx, requireT, a.process, b.process, id)
	exchange(ctx, requireT, da, db, 1)
	exchange(ctx, requireT, db, da, 2)

	// Connection is consumed.
	_, _, err := a.ipc.ConnectMessagePipe(ctx, id)
	requireT.ErrorIs(err, edk.ErrConnectFailed)

	requireT.Equal(edk.ResultOK, da.Close())
	waitPeerClosed(ctx, requireT, db)
}

func TestMasterConnectsMessagePipeToSlave(t *testing.T) {
	requireT := require.New(t)

	ctx := qa.NewContext(t)
	group := qa.NewGroup(ctx, t)

	master := startMaster(t, group)
	a := startSlave(ctx, t, group, master, "a")

	defer func() {
		a.Stop(ctx, requireT)
		master.Stop(ctx, requireT)

		group.Exit(nil)
		requireT.NoError(group.Wait())
	}()

	id := newConnectionID(requireT)
	requireT.True(master.ipc.AllowConnect(ctx, id))
	requireT.True(a.ipc.AllowConnect(ctx, id))

	dm, da := connectPair(ctx, requireT, master, a.process, id)
	exchange(ctx, requireT, dm, da, 1)
}

func TestReconnectCreatesIndependentPipes(t *testing.T) {
	requireT := require.New(t)

	ctx := qa.NewContext(t)
	group := qa.NewGroup(ctx, t)

	master := startMaster(t, group)
	a := startSlave(ctx, t, group, master, "a")
	b := startSlave(ctx, t, group, master, "b")

	defer func() {
		b.Stop(ctx, requireT)
		a.Stop(ctx, requireT)
		master.Stop(ctx, requireT)

		group.Exit(nil)
		requireT.NoError(group.Wait())
	}()

	var pipes [][2]*edk.MessagePipeDispatcher
	for range 2 {
		id := newConnectionID(requireT)
		requireT.True(b.ipc.AllowConnect(ctx, id))
		requireT.True(a.ipc.AllowConnect(ctx, id))

		da, db := connectPair(ctx, requireT, a.process, b.process, id)
		pipes = append(pipes, [2]*edk.MessagePipeDispatcher{da, db})
	}

	requireT.Equal(edk.ResultOK, pipes[0][0].Close())
	waitPeerClosed(ctx, requireT, pipes[0][1])

	exchange(ctx, requireT, pipes[1][0], pipes[1][1], 1)
}

func TestSelfConnectCreatesLocalPipe(t *testing.T) {
	requireT := require.New(t)

	ctx := qa.NewContext(t)
	group := qa.NewGroup(ctx, t)

	master := startMaster(t, group)
	a := startSlave(ctx, t, group, master, "a")

	defer func() {
		a.Stop(ctx, requireT)
		master.Stop(ctx, requireT)

		group.Exit(nil)
		requireT.NoError(group.Wait())
	}()

	for _, p := range []*process{a.process, master} {
		id := newConnectionID(requireT)
		requireT.True(p.ipc.AllowConnect(ctx, id))
		requireT.True(p.ipc.AllowConnect(ctx, id))

		d1, d2 := connectPair(ctx, requireT, p, p, id)
		requireT.NotSame(d1, d2)
		exchange(ctx, requireT, d1, d2, 1)
	}
}

func TestCancelConnectFailsWaitingPeer(t *testing.T) {
	requireT := require.New(t)

	ctx := qa.NewContext(t)
	group := qa.NewGroup(ctx, t)

	master := startMaster(t, group)
	a := startSlave(ctx, t, group, master, "a")
	b := startSlave(ctx, t, group, master, "b")

	defer func() {
		b.Stop(ctx, requireT)
		a.Stop(ctx, requireT)
		master.Stop(ctx, requireT)

		group.Exit(nil)
		requireT.NoError(group.Wait())
	}()

	id := newConnectionID(requireT)
	requireT.True(a.ipc.AllowConnect(ctx, id))
	requireT.True(b.ipc.AllowConnect(ctx, id))

	errCh := make(chan error, 1)
	group.Spawn("connect", parallel.Continue, func(ctx context.Context) error {
		_, _, err := a.ipc.ConnectMessagePipe(ctx, id)
		errCh <- err
		return nil
	})

	requireT.True(b.ipc.CancelConnect(ctx, id))
	requireT.False(b.ipc.CancelConnect(ctx, id))

	select {
	case <-ctx.Done():
		requireT.Fail("timeout")
	case err := <-errCh:
		requireT.ErrorIs(err, edk.ErrConnectFailed)
	}

	_, _, err := b.ipc.ConnectMessagePipe(ctx, id)
	requireT.ErrorIs(err, edk.ErrConnectFailed)
}

func TestConnectCanceledByContextIsFollowedByCancelConnect(t *testing.T) {
	requireT := require.New(t)

	ctx := qa.NewContext(t)
	group := qa.NewGroup(ctx, t)

	master := startMaster(t, group)
	a := startSlave(ctx, t, group, master, "a")
	b := startSlave(ctx, t, group, master, "b")

	defer func() {
		b.Stop(ctx, requireT)
		a.Stop(ctx, requireT)
		master.Stop(ctx, requireT)

		group.Exit(nil)
		requireT.NoError(group.Wait())
	}()

	for _, p := range []*process{a.process, master} {
		id := newConnectionID(requireT)
		requireT.True(p.ipc.AllowConnect(ctx, id))
		requireT.True(b.ipc.AllowConnect(ctx, id))

		connectCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		_, _, err := p.ipc.ConnectMessagePipe(connectCtx, id)
		cancel()
		requireT.ErrorIs(err, edk.ErrConnectFailed)

		cancelCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		requireT.True(p.ipc.CancelConnect(cancelCtx, id))
		cancel()

		_, _, err = b.ipc.ConnectMessagePipe(ctx, id)
		requireT.ErrorIs(err, edk.ErrConnectFailed)
	}
}

func TestConnectCanceledByContextCanBeRetried(t *testing.T) {
	requireT := require.New(t)

	ctx := qa.NewContext(t)
	group := qa.NewGroup(ctx, t)

	master := startMaster(t, group)
	a := startSlave(ctx, t, group, master, "a")
	b := startSlave(ctx, t, group, master, "b")

	defer func() {
		b.Stop(ctx, requireT)
		a.Stop(ctx, requireT)
		master.Stop(ctx, requireT)

		group.Exit(nil)
		requireT.NoError(group.Wait())
	}()

	id := newConnectionID(requireT)
	requireT.True(a.ipc.AllowConnect(ctx, id))
	requireT.True(b.ipc.AllowConnect(ctx, id))

	connectCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, _, err := a.ipc.ConnectMessagePipe(connectCtx, id)
	requireT.ErrorIs(err, edk.ErrConnectFailed)

	// Other requests of the slave are not blocked.
	requireT.True(a.ipc.AllowConnect(ctx, newConnectionID(requireT)))

	da, db := connectPair(ctx, requireT, a.process, b.process, id)
	exchange(ctx, requireT, da, db, 1)
}

func TestConnectWithoutAllowFails(t *testing.T) {
	requireT := require.New(t)

	ctx := qa.NewContext(t)
	group := qa.NewGroup(ctx, t)

	master := startMaster(t, group)
	a := startSlave(ctx, t, group, master, "a")

	defer func() {
		a.Stop(ctx, requireT)
		master.Stop(ctx, requireT)

		group.Exit(nil)
		requireT.NoError(group.Wait())
	}()

	id := newConnectionID(requireT)
	_, _, err := a.ipc.ConnectMessagePipe(ctx, id)
	requireT.ErrorIs(err, edk.ErrConnectFailed)

	requireT.True(a.ipc.AllowConnect(ctx, id))
	_, _, err = a.ipc.ConnectMessagePipe(ctx, id)
	requireT.ErrorIs(err, edk.ErrConnectFailed)
}

func TestSlaveShutdownIsReportedToMasterOnce(t *testing.T) {
	requireT := require.New(t)

	ctx := qa.NewContext(t)
	group := qa.NewGroup(ctx, t)

	master := startMaster(t, group)
	a := startSlave(ctx, t, group, master, "a")
	b := startSlave(ctx, t, group, master, "b")

	defer func() {
		group.Exit(nil)
		requireT.NoError(group.Wait())
	}()

	a.Stop(ctx, requireT)
	requireT.EqualValues(1, a.delegate.masterDisconnects.Load())

	select {
	case <-ctx.Done():
		requireT.Fail("timeout")
	case info := <-master.delegate.slaveDisconnectCh:
		requireT.Equal("a", info)
	}
	waitPeerClosed(ctx, requireT, a.masterPipe)

	// Remaining slave is still connected.
	exchange(ctx, requireT, b.masterPipe, b.pipe, 2)

	b.Stop(ctx, requireT)
	select {
	case <-ctx.Done():
		requireT.Fail("timeout")
	case info := <-master.delegate.slaveDisconnectCh:
		requireT.Equal("b", info)
	}

	master.Stop(ctx, requireT)
	requireT.Empty(master.delegate.slaveDisconnectCh)
}

func TestMasterShutdownIsReportedToSlavesOnce(t *testing.T) {
	requireT := require.New(t)

	ctx := qa.NewContext(t)
	group := qa.NewGroup(ctx, t)

	master := startMaster(t, group)
	a := startSlave(ctx, t, group, master, "a")
	b := startSlave(ctx, t, group, master, "b")

	defer func() {
		group.Exit(nil)
		requireT.NoError(group.Wait())
	}()

	master.Stop(ctx, requireT)

	infos := []edk.SlaveInfo{<-master.delegate.slaveDisconnectCh, <-master.delegate.slaveDisconnectCh}
	requireT.ElementsMatch([]edk.SlaveInfo{"a", "b"}, infos)

	for _, s := range []*slave{a, b} {
		wait(ctx, requireT, s.delegate.masterDisconnectCh)
		waitPeerClosed(ctx, requireT, s.pipe)

		id := newConnectionID(requireT)
		requireT.False(s.ipc.AllowConnect(ctx, id))
		_, _, err := s.ipc.ConnectMessagePipe(ctx, id)
		requireT.ErrorIs(err, edk.ErrConnectFailed)

		s.Stop(ctx, requireT)
		requireT.EqualValues(1, s.delegate.masterDisconnects.Load())
	}
	requireT.Empty(master.delegate.slaveDisconnectCh)
}

func TestMessagePipesTravelOverChannels(t *testing.T) {
	requireT := require.New(t)

	ctx := qa.NewContext(t)
	group := qa.NewGroup(ctx, t)

	master := startMaster(t, group)
	a := startSlave(ctx, t, group, master, "a")

	defer func() {
		a.Stop(ctx, requireT)
		master.Stop(ctx, requireT)

		group.Exit(nil)
		requireT.NoError(group.Wait())
	}()

	outer0, outer1 := edk.CreateMessagePipe()
	inner0, inner1 := edk.CreateMessagePipe()

	// inner1 is queued in outer pipe before outer1 is sent.
	send(requireT, outer0, &wire.Ping{Seq: 1, Text: "inner"}, inner1)
	send(requireT, a.masterPipe, &wire.Ping{Seq: 2, Text: "outer"}, outer1)

	msg, handles := receive(ctx, requireT, a.pipe)
	requireT.Equal(&wire.Ping{Seq: 2, Text: "outer"}, msg)
	requireT.Len(handles, 1)
	remoteOuter := handles[0].(*edk.MessagePipeDispatcher)
	requireT.Equal(edk.TypeMessagePipe, remoteOuter.Type())

	msg, handles = receive(ctx, requireT, remoteOuter)
	requireT.Equal(&wire.Ping{Seq: 1, Text: "inner"}, msg)
	requireT.Len(handles, 1)
	remoteInner := handles[0].(*edk.MessagePipeDispatcher)

	exchange(ctx, requireT, inner0, remoteInner, 3)
	exchange(ctx, requireT, remoteOuter, outer0, 4)

	// Handle goes back to the master.
	send(requireT, a.pipe, &wire.Pong{Seq: 5, Text: "back"}, remoteInner)
	msg, handles = receive(ctx, requireT, a.masterPipe)
	requireT.Equal(&wire.Pong{Seq: 5, Text: "back"}, msg)
	requireT.Len(handles, 1)
	backInner := handles[0].(*edk.MessagePipeDispatcher)

	exchange(ctx, requireT, inner0, backInner, 6)

	requireT.Equal(edk.ResultOK, backInner.Close())
	waitPeerClosed(ctx, requireT, inner0)
}

func TestChannelManagerCreatesAndShutsDownChannels(t *testing.T) {
	requireT := require.New(t)

	ctx := qa.NewContext(t)
	group := qa.NewGroup(ctx, t)

	p := startProcess(t, group, edk.DefaultConfig())

	defer func() {
		p.Stop(ctx, requireT)

		group.Exit(nil)
		requireT.NoError(group.Wait())
	}()

	requireT.Equal(edk.ProcessTypeNone, p.ipc.ProcessType())
	requireT.Equal(edk.InvalidProcessIdentifier, p.ipc.ProcessIdentifier())
	_, _, err := p.ipc.ConnectMessagePipe(ctx, newConnectionID(requireT))
	requireT.Error(err)

	server, client, err := p.ipc.CreatePlatformChannelPair()
	requireT.NoError(err)

	cm := p.ipc.ChannelManager()
	createdCh := make(chan struct{}, 2)
	created := func() {
		createdCh <- struct{}{}
	}

	serverID := cm.NewChannelID()
	d1 := cm.CreateChannel(serverID, server, created, nil)
	send(requireT, d1, &wire.Ping{Seq: 1, Text: "early"})
	d2 := cm.CreateChannel(cm.NewChannelID(), client, created, nil)

	for range 2 {
		select {
		case <-ctx.Done():
			requireT.Fail("timeout")
		case <-createdCh:
		}
	}

	msg, _ := receive(ctx, requireT, d2)
	requireT.Equal(&wire.Ping{Seq: 1, Text: "early"}, msg)
	exchange(ctx, requireT, d2, d1, 2)

	cm.WillShutdownChannel(serverID)
	shutdownCh := make(chan struct{})
	cm.ShutdownChannel(serverID, func() {
		close(shutdownCh)
	}, nil)
	wait(ctx, requireT, shutdownCh)

	waitPeerClosed(ctx, requireT, d1)
	waitPeerClosed(ctx, requireT, d2)
}

func TestIPCSupportValidatesRole(t *testing.T) {
	requireT := require.New(t)

	config := edk.DefaultConfig()
	config.ProcessType = edk.ProcessTypeMaster
	_, err := edk.NewIPCSupport(config, shutdownDelegate{}, nil)
	requireT.Error(err)

	_, err = edk.NewIPCSupport(config, nil, nil)
	requireT.Error(err)

	ctx := qa.NewContext(t)
	group := qa.NewGroup(ctx, t)

	master := startMaster(t, group)
	p := startProcess(t, group, edk.DefaultConfig())

	defer func() {
		p.Stop(ctx, requireT)
		master.Stop(ctx, requireT)

		group.Exit(nil)
		requireT.NoError(group.Wait())
	}()

	server, _, err := master.ipc.CreatePlatformChannelPair()
	requireT.NoError(err)
	id := newConnectionID(requireT)

	_, _, err = p.ipc.ConnectToSlave(id, "x", server, nil, nil)
	requireT.Error(err)
	_, err = master.ipc.ConnectToMaster(id, nil, nil)
	requireT.Error(err)
	_, err = p.ipc.ConnectToMaster(id, nil, nil)
	requireT.Error(err)

	_, client, err := master.ipc.CreatePlatformChannelPair()
	requireT.NoError(err)
	_, _, err = master.ipc.ConnectToSlave(id, "x", client, nil, nil)
	requireT.Error(err)
}
