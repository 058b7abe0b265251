package edk

import (
	"sync"

	"github.com/outofforest/edk/wire"
)

// ChannelEndpoint connects the proxy port of a message pipe to an endpoint multiplexed over a channel.
// Until it is attached to the channel, messages are kept in order and sent once it is.
type ChannelEndpoint struct {
	mu sync.Mutex

	client     *MessagePipe
	clientPort int

	channel *Channel
	id      wire.EndpointID
	paused  []*message

	clientDetached bool
	remoteClosed   bool
}

func newChannelEndpoint(queue []*message) *ChannelEndpoint {
	return &ChannelEndpoint{
		paused: queue,
	}
}

func (e *ChannelEndpoint) setClient(p *MessagePipe, port int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.client = p
	e.clientPort = port
}

// EnqueueMessage sends the message written to the client pipe. False is returned if the message can't
// be sent anymore, the caller discards it then.
func (e *ChannelEndpoint) EnqueueMessage(m *message) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.remoteClosed {
		return false
	}
	if e.channel == nil {
		e.paused = append(e.paused, m)
		return true
	}
	return e.channel.pushMessage(e.id, m)
}

// DetachFromClient is called when the client pipe no longer uses the endpoint. The remote side is told
// the endpoint is closed. Calling it more than once does nothing.
func (e *ChannelEndpoint) DetachFromClient() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.clientDetached {
		return
	}
	e.clientDetached = true
	e.client = nil

	if e.channel != nil && !e.remoteClosed {
		e.channel.closeEndpoint(e.id, e)
	}
}

// attach binds the registered endpoint to the channel and sends the messages queued so far.
func (e *ChannelEndpoint) attach(c *Channel) {
	e.mu.Lock()
	e.channel = c
	paused := e.paused
	e.paused = nil

	var discarded []*message
	if e.remoteClosed {
		discarded = paused
	} else {
		for i, m := range paused {
			if !c.pushMessage(e.id, m) {
				discarded = paused[i:]
				break
			}
		}
		if e.clientDetached {
			c.closeEndpoint(e.id, e)
		}
	}
	e.mu.Unlock()

	discardMessages(discarded)
}

// onReadMessage delivers message received from the remote endpoint to the client pipe.
func (e *ChannelEndpoint) onReadMessage(m *message) {
	e.mu.Lock()
	client, port := e.client, e.clientPort
	e.mu.Unlock()

	if client == nil {
		discardMessages([]*message{m})
		return
	}
	if m := client.EnqueueMessage(port, e, m); m != nil {
		discardMessages([]*message{m})
	}
}

// onRemoteClosed is called when the remote endpoint is closed or the channel is gone.
func (e *ChannelEndpoint) onRemoteClosed() {
	e.mu.Lock()
	if e.remoteClosed {
		e.mu.Unlock()
		return
	}
	e.remoteClosed = true
	client, port := e.client, e.clientPort
	paused := e.paused
	e.paused = nil
	e.mu.Unlock()

	discardMessages(paused)
	if client != nil {
		discardMessages(client.OnDetachFromChannel(port, e))
	}
}
