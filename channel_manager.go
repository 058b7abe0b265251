package edk

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/outofforest/parallel"
	"github.com/outofforest/resonance"
)

// ChannelManager owns the channels of the process. Methods with OnIOThread suffix must be called from
// tasks running on the I/O runner, the others post such tasks.
type ChannelManager struct {
	ioRunner TaskRunner
	listener *listener
	config   resonance.Config
	group    *parallel.Group
	ids      channelIDGenerator
	running  sync.WaitGroup

	channels map[ChannelID]*Channel
	shutdown bool
}

func newChannelManager(ioRunner TaskRunner, listener *listener, config resonance.Config) *ChannelManager {
	return &ChannelManager{
		ioRunner: ioRunner,
		listener: listener,
		config:   config,
		channels: map[ChannelID]*Channel{},
	}
}

// NewChannelID allocates new channel ID.
func (m *ChannelManager) NewChannelID() ChannelID {
	return m.ids.Next()
}

// CreateChannelOnIOThread creates the channel over the pipe and returns the dispatcher of its bootstrap
// message pipe.
func (m *ChannelManager) CreateChannelOnIOThread(id ChannelID, handle PlatformHandle) *MessagePipeDispatcher {
	d, e := CreateRemoteMessagePipe()
	m.createChannelOnIOThread(id, handle, e)
	return d
}

// CreateChannel creates the channel on the I/O runner. The dispatcher of the bootstrap message pipe is
// returned immediately, messages written to it are sent once the channel exists. Callback is posted to
// callbackRunner when channel is created.
func (m *ChannelManager) CreateChannel(
	id ChannelID,
	handle PlatformHandle,
	callback func(),
	callbackRunner TaskRunner,
) *MessagePipeDispatcher {
	d, e := CreateRemoteMessagePipe()
	m.createChannel(id, handle, e, callback, callbackRunner)
	return d
}

func (m *ChannelManager) createChannel(
	id ChannelID,
	handle PlatformHandle,
	bootstrap *ChannelEndpoint,
	callback func(),
	callbackRunner TaskRunner,
) {
	if !m.ioRunner.PostTask(func() {
		m.createChannelOnIOThread(id, handle, bootstrap)
		if callback != nil {
			postOrRun(callbackRunner, callback)
		}
	}) {
		bootstrap.onRemoteClosed()
	}
}

func (m *ChannelManager) createChannelOnIOThread(id ChannelID, handle PlatformHandle, bootstrap *ChannelEndpoint) {
	if !id.Valid() || !handle.IsValid() {
		panic(errors.Errorf("invalid channel %d or handle %s", id, handle))
	}
	if _, exists := m.channels[id]; exists {
		panic(errors.Errorf("channel %d exists already", id))
	}
	if m.shutdown {
		bootstrap.onRemoteClosed()
		return
	}

	ch := newChannel(id, handle, m.listener, m.config)
	ch.attachBootstrapEndpoint(bootstrap)
	m.channels[id] = ch

	m.running.Add(1)
	m.group.Spawn("channel", parallel.Continue, func(ctx context.Context) error {
		defer m.running.Done()

		return ch.Run(ctx)
	})
}

// WillShutdownChannel marks the channel as going to be shut down, so its connection errors are not
// reported.
func (m *ChannelManager) WillShutdownChannel(id ChannelID) {
	m.ioRunner.PostTask(func() {
		m.channelOnIOThread(id).WillShutdown()
	})
}

// ShutdownChannelOnIOThread shuts the channel down.
func (m *ChannelManager) ShutdownChannelOnIOThread(id ChannelID) {
	ch := m.channelOnIOThread(id)
	delete(m.channels, id)
	ch.Shutdown()
}

// ShutdownChannel shuts the channel down on the I/O runner and posts callback to callbackRunner afterwards.
func (m *ChannelManager) ShutdownChannel(id ChannelID, callback func(), callbackRunner TaskRunner) {
	if !m.ioRunner.PostTask(func() {
		m.ShutdownChannelOnIOThread(id)
		if callback != nil {
			postOrRun(callbackRunner, callback)
		}
	}) && callback != nil {
		postOrRun(callbackRunner, callback)
	}
}

// ShutdownOnIOThread shuts all the channels down. No channel is created afterwards.
func (m *ChannelManager) ShutdownOnIOThread() {
	m.shutdown = true
	for id, ch := range m.channels {
		delete(m.channels, id)
		ch.WillShutdown()
		ch.Shutdown()
	}
}

// wait waits until channels are closed, but not longer than timeout.
func (m *ChannelManager) wait(timeout time.Duration) {
	doneCh := make(chan struct{})
	go func() {
		m.running.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-time.After(timeout):
	}
}

func (m *ChannelManager) channelOnIOThread(id ChannelID) *Channel {
	ch, exists := m.channels[id]
	if !exists {
		panic(errors.Errorf("channel %d does not exist", id))
	}
	return ch
}
