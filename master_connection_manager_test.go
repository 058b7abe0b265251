package edk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/parallel"
	"github.com/outofforest/qa"
)

type recordingMasterDelegate struct {
	mu                sync.Mutex
	disconnected      []SlaveInfo
	shutdownCompleted int
}

func (d *recordingMasterDelegate) OnShutdownComplete() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.shutdownCompleted++
}

func (d *recordingMasterDelegate) OnSlaveDisconnect(slaveInfo SlaveInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.disconnected = append(d.disconnected, slaveInfo)
}

func (d *recordingMasterDelegate) Disconnected() []SlaveInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]SlaveInfo(nil), d.disconnected...)
}

type connectReplies struct {
	results []ConnectResult
}

func (r *connectReplies) Reply(result ConnectResult) {
	r.results = append(r.results, result)
}

func newTestMasterConnectionManager(delegate MasterProcessDelegate) *MasterConnectionManager {
	m := newMasterConnectionManager(NewSerialTaskRunner(), nil, delegate, nil)
	for i, address := range []string{"localhost:1002", "localhost:1003"} {
		slave := &slaveConn{
			id:      m.nextProcessID,
			info:    i,
			address: address,
			outbox:  newOutbox[any](),
			stopCh:  make(chan struct{}),
		}
		m.slaves[slave.id] = slave
		m.nextProcessID++
	}
	return m
}

func newConnectionID(requireT *require.Assertions) ConnectionIdentifier {
	id, err := GenerateConnectionIdentifier()
	requireT.NoError(err)
	return id
}

func TestMasterPairsTwoSlaves(t *testing.T) {
	requireT := require.New(t)

	m := newTestMasterConnectionManager(&recordingMasterDelegate{})
	id := newConnectionID(requireT)

	requireT.True(m.allowConnectOnIOThread(2, id))
	requireT.True(m.allowConnectOnIOThread(3, id))
	requireT.False(m.allowConnectOnIOThread(3, id))

	var replies2, replies3 connectReplies
	m.connectOnIOThread(3, id, replies3.Reply)
	requireT.Empty(replies3.results)

	m.connectOnIOThread(2, id, replies2.Reply)
	requireT.Len(replies2.results, 1)
	requireT.Len(replies3.results, 1)
	requireT.NotContains(m.pending, id)

	first, second := replies2.results[0], replies3.results[0]
	requireT.True(first.Success)
	requireT.True(first.IsFirst)
	requireT.EqualValues(3, first.PeerProcessIdentifier)
	requireT.True(first.PlatformHandle.IsServer())

	requireT.True(second.Success)
	requireT.False(second.IsFirst)
	requireT.EqualValues(2, second.PeerProcessIdentifier)
	requireT.Equal("localhost:1002", second.PlatformHandle.Address)
	requireT.Equal(first.PlatformHandle.Token, second.PlatformHandle.Token)
	requireT.True(first.PlatformHandle.IsValid())
}

func TestMasterReconnectCreatesNewPipe(t *testing.T) {
	requireT := require.New(t)

	m := newTestMasterConnectionManager(&recordingMasterDelegate{})

	var tokens []PlatformHandle
	for range 2 {
		id := newConnectionID(requireT)
		requireT.True(m.allowConnectOnIOThread(2, id))
		requireT.True(m.allowConnectOnIOThread(3, id))

		var replies2, replies3 connectReplies
		m.connectOnIOThread(2, id, replies2.Reply)
		m.connectOnIOThread(3, id, replies3.Reply)
		requireT.Len(replies2.results, 1)
		requireT.Len(replies3.results, 1)
		requireT.EqualValues(3, replies2.results[0].PeerProcessIdentifier)
		requireT.EqualValues(2, replies3.results[0].PeerProcessIdentifier)

		tokens = append(tokens, replies2.results[0].PlatformHandle)
	}

	requireT.NotEqual(tokens[0].Token, tokens[1].Token)
}

func TestMasterConnectBeforeBothPartiesAllowFails(t *testing.T) {
	requireT := require.New(t)

	m := newTestMasterConnectionManager(&recordingMasterDelegate{})
	id := newConnectionID(requireT)

	var replies connectReplies
	m.connectOnIOThread(2, id, replies.Reply)

	requireT.True(m.allowConnectOnIOThread(2, id))
	m.connectOnIOThread(2, id, replies.Reply)

	requireT.True(m.allowConnectOnIOThread(3, id))
	m.connectOnIOThread(MasterProcessIdentifier, id, replies.Reply)

	requireT.Equal([]ConnectResult{{}, {}, {}}, replies.results)
}

func TestMasterSelfConnect(t *testing.T) {
	requireT := require.New(t)

	m := newTestMasterConnectionManager(&recordingMasterDelegate{})
	id := newConnectionID(requireT)

	requireT.True(m.allowConnectOnIOThread(2, id))
	requireT.True(m.allowConnectOnIOThread(2, id))

	var replies connectReplies
	m.connectOnIOThread(2, id, replies.Reply)
	m.connectOnIOThread(2, id, replies.Reply)
	requireT.NotContains(m.pending, id)

	requireT.Equal([]ConnectResult{
		{
			Success:               true,
			PeerProcessIdentifier: 2,
			IsFirst:               true,
		},
		{
			Success:               true,
			PeerProcessIdentifier: 2,
		},
	}, replies.results)
	for _, r := range replies.results {
		requireT.False(r.PlatformHandle.IsValid())
	}
}

func TestMasterCancelConnectFailsWaitingPeer(t *testing.T) {
	requireT := require.New(t)

	m := newTestMasterConnectionManager(&recordingMasterDelegate{})
	id := newConnectionID(requireT)

	requireT.True(m.allowConnectOnIOThread(2, id))
	requireT.True(m.allowConnectOnIOThread(3, id))

	var replies2, replies3 connectReplies
	m.connectOnIOThread(3, id, replies3.Reply)

	requireT.False(m.cancelConnectOnIOThread(MasterProcessIdentifier, id))
	requireT.True(m.cancelConnectOnIOThread(2, id))
	requireT.False(m.cancelConnectOnIOThread(2, id))
	requireT.Equal([]ConnectResult{{}}, replies3.results)

	m.connectOnIOThread(2, id, replies2.Reply)
	requireT.Equal([]ConnectResult{{}}, replies2.results)
	requireT.Equal(InvalidProcessIdentifier, replies2.results[0].PeerProcessIdentifier)
}

func TestMasterRejectsAllowConnectOfResolvedConnection(t *testing.T) {
	requireT := require.New(t)

	m := newTestMasterConnectionManager(&recordingMasterDelegate{})

	id := newConnectionID(requireT)
	requireT.True(m.allowConnectOnIOThread(2, id))
	requireT.True(m.allowConnectOnIOThread(3, id))

	var replies connectReplies
	m.connectOnIOThread(2, id, replies.Reply)
	m.connectOnIOThread(3, id, replies.Reply)
	requireT.Len(replies.results, 2)

	requireT.False(m.allowConnectOnIOThread(2, id))
	requireT.False(m.allowConnectOnIOThread(3, id))
	requireT.NotContains(m.pending, id)

	selfID := newConnectionID(requireT)
	requireT.True(m.allowConnectOnIOThread(3, selfID))
	requireT.True(m.allowConnectOnIOThread(3, selfID))
	m.connectOnIOThread(3, selfID, replies.Reply)
	m.connectOnIOThread(3, selfID, replies.Reply)
	requireT.Len(replies.results, 4)
	requireT.False(m.allowConnectOnIOThread(3, selfID))

	// Canceled connection is not resolved.
	canceledID := newConnectionID(requireT)
	requireT.True(m.allowConnectOnIOThread(2, canceledID))
	requireT.True(m.cancelConnectOnIOThread(2, canceledID))
	requireT.True(m.allowConnectOnIOThread(2, canceledID))
}

func TestMasterWithdrawnConnectKeepsParticipation(t *testing.T) {
	requireT := require.New(t)

	m := newTestMasterConnectionManager(&recordingMasterDelegate{})
	id := newConnectionID(requireT)

	requireT.True(m.allowConnectOnIOThread(2, id))
	requireT.True(m.allowConnectOnIOThread(3, id))

	var replies2, replies3 connectReplies
	m.connectOnIOThread(2, id, replies2.Reply)

	m.withdrawConnectOnIOThread(3, id)
	requireT.Empty(replies2.results)

	m.withdrawConnectOnIOThread(2, id)
	m.withdrawConnectOnIOThread(2, id)
	requireT.Equal([]ConnectResult{{}}, replies2.results)

	m.connectOnIOThread(3, id, replies3.Reply)
	requireT.Empty(replies3.results)

	requireT.True(m.cancelConnectOnIOThread(2, id))
	requireT.Equal([]ConnectResult{{}}, replies3.results)
	requireT.Len(replies2.results, 1)
}

func TestMasterConnectCanceledByContextIsWithdrawn(t *testing.T) {
	requireT := require.New(t)

	ctx := qa.NewContext(t)
	group := qa.NewGroup(ctx, t)

	defer func() {
		group.Exit(nil)
		requireT.NoError(group.Wait())
	}()

	m := newTestMasterConnectionManager(&recordingMasterDelegate{})
	group.Spawn("ioRunner", parallel.Fail, m.ioRunner.(*SerialTaskRunner).Run)

	id := newConnectionID(requireT)
	requireT.True(m.AllowConnect(ctx, id))
	allowed, _ := call(m.ioRunner, func() bool {
		return m.allowConnectOnIOThread(2, id)
	})
	requireT.True(allowed)

	connectCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	requireT.Equal(ConnectResult{}, m.Connect(connectCtx, id))

	// Slave connecting later waits for master instead of getting the pipe nobody accepts.
	var replies connectReplies
	results, _ := call(m.ioRunner, func() []ConnectResult {
		m.connectOnIOThread(2, id, replies.Reply)
		return append([]ConnectResult(nil), replies.results...)
	})
	requireT.Empty(results)

	requireT.True(m.CancelConnect(ctx, id))
	results, _ = call(m.ioRunner, func() []ConnectResult {
		return append([]ConnectResult(nil), replies.results...)
	})
	requireT.Equal([]ConnectResult{{}}, results)
}

func TestMasterDropsResultOfCanceledConnect(t *testing.T) {
	requireT := require.New(t)

	ctx := qa.NewContext(t)
	group := qa.NewGroup(ctx, t)

	defer func() {
		group.Exit(nil)
		requireT.NoError(group.Wait())
	}()

	type dropped struct {
		connectionID ConnectionIdentifier
		result       ConnectResult
	}
	droppedCh := make(chan dropped, 1)

	m := newTestMasterConnectionManager(&recordingMasterDelegate{})
	m.onDropped = func(connectionID ConnectionIdentifier, result ConnectResult) {
		droppedCh <- dropped{connectionID: connectionID, result: result}
	}
	group.Spawn("ioRunner", parallel.Fail, m.ioRunner.(*SerialTaskRunner).Run)

	id := newConnectionID(requireT)
	var replies connectReplies
	allowed, _ := call(m.ioRunner, func() bool {
		allowed := m.allowConnectOnIOThread(2, id) && m.allowConnectOnIOThread(MasterProcessIdentifier, id)
		m.connectOnIOThread(2, id, replies.Reply)
		return allowed
	})
	requireT.True(allowed)

	// Runner is blocked, so pairing happens after the caller gives up.
	releaseCh := make(chan struct{})
	requireT.True(m.ioRunner.PostTask(func() {
		<-releaseCh
	}))

	connectCtx, cancel := context.WithCancel(ctx)
	cancel()
	requireT.Equal(ConnectResult{}, m.Connect(connectCtx, id))
	close(releaseCh)

	select {
	case <-ctx.Done():
		requireT.Fail("result not dropped")
	case d := <-droppedCh:
		requireT.Equal(id, d.connectionID)
		requireT.True(d.result.Success)
		requireT.EqualValues(2, d.result.PeerProcessIdentifier)
		requireT.True(d.result.PlatformHandle.IsValid())
	}

	results, _ := call(m.ioRunner, func() []ConnectResult {
		return append([]ConnectResult(nil), replies.results...)
	})
	requireT.Len(results, 1)
	requireT.True(results[0].Success)
	requireT.Equal(MasterProcessIdentifier, results[0].PeerProcessIdentifier)
}

func TestMasterSlaveDisconnectFailsPendingConnects(t *testing.T) {
	requireT := require.New(t)

	delegate := &recordingMasterDelegate{}
	m := newTestMasterConnectionManager(delegate)
	id := newConnectionID(requireT)

	requireT.True(m.allowConnectOnIOThread(MasterProcessIdentifier, id))
	requireT.True(m.allowConnectOnIOThread(3, id))

	var replies connectReplies
	m.connectOnIOThread(MasterProcessIdentifier, id, replies.Reply)

	slave := m.slaves[3]
	m.removeSlaveOnIOThread(slave)
	m.removeSlaveOnIOThread(slave)

	requireT.Equal([]ConnectResult{{}}, replies.results)
	requireT.NotContains(m.pending, id)
	requireT.Equal([]SlaveInfo{1}, delegate.Disconnected())

	select {
	case <-slave.outbox.Done():
	default:
		requireT.Fail("slave connection should be stopped")
	}
}

func TestMasterShutdownDisconnectsEverySlaveOnce(t *testing.T) {
	requireT := require.New(t)

	delegate := &recordingMasterDelegate{}
	m := newTestMasterConnectionManager(delegate)
	id := newConnectionID(requireT)

	requireT.True(m.allowConnectOnIOThread(MasterProcessIdentifier, id))
	requireT.True(m.allowConnectOnIOThread(2, id))

	var replies connectReplies
	m.connectOnIOThread(MasterProcessIdentifier, id, replies.Reply)

	m.shutdownOnIOThread()
	m.shutdownOnIOThread()

	requireT.Equal([]ConnectResult{{}}, replies.results)
	requireT.ElementsMatch([]SlaveInfo{0, 1}, delegate.Disconnected())
	requireT.Empty(m.slaves)
	requireT.Empty(m.pending)

	requireT.False(m.allowConnectOnIOThread(2, newConnectionID(requireT)))
	requireT.Equal(InvalidProcessIdentifier, m.addSlaveOnIOThread(2, PlatformHandle{}))
}
