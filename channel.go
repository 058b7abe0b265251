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

const (
	bootstrapEndpointID  wire.EndpointID = 1
	firstServerEndpoint  wire.EndpointID = 2
	firstClientEndpoint  wire.EndpointID = 3
	endpointIDIncrement  wire.EndpointID = 2
	closedEndpointWireID wire.EndpointID = 0
)

type frame struct {
	endpointID wire.EndpointID
	// nil message means the endpoint is closed.
	message *message
}

// Channel multiplexes message pipe endpoints over a single connection between two processes.
type Channel struct {
	id       ChannelID
	handle   PlatformHandle
	listener *listener
	config   resonance.Config
	m        wire.Marshaller
	outbox   *outbox[frame]
	closing  atomic.Bool

	mu             sync.Mutex
	endpoints      map[wire.EndpointID]*ChannelEndpoint
	nextEndpointID wire.EndpointID
	draining       bool
	shutdown       bool
	dead           bool
}

func newChannel(id ChannelID, handle PlatformHandle, listener *listener, config resonance.Config) *Channel {
	nextEndpointID := firstClientEndpoint
	if handle.IsServer() {
		nextEndpointID = firstServerEndpoint
	}

	return &Channel{
		id:             id,
		handle:         handle,
		listener:       listener,
		config:         config,
		m:              wire.NewMarshaller(),
		outbox:         newOutbox[frame](),
		endpoints:      map[wire.EndpointID]*ChannelEndpoint{},
		nextEndpointID: nextEndpointID,
	}
}

// ID returns the ID of the channel.
func (c *Channel) ID() ChannelID {
	return c.id
}

// Run connects the channel and serves it until it is shut down, the connection is lost or the context
// is canceled. Connection errors are logged, not returned.
func (c *Channel) Run(ctx context.Context) error {
	log := logger.Get(ctx).With(zap.Uint64("channelID", uint64(c.id)))

	err := c.connect(ctx)
	c.onConnectionClosed()

	if err != nil && ctx.Err() == nil && !c.isDraining() {
		log.Error("Channel connection failed", zap.Error(err))
		return nil
	}
	log.Debug("Channel closed")
	return nil
}

func (c *Channel) connect(ctx context.Context) error {
	if c.handle.IsServer() {
		return c.listener.Accept(ctx, c.handle, c.outbox.Done(), c.serve)
	}

	return resonance.RunClient(ctx, c.handle.Address, c.config,
		func(ctx context.Context, conn *resonance.Connection) error {
			if err := conn.SendProton(&wire.Hello{Token: c.handle.Token}, c.m); err != nil {
				return err
			}
			return c.serve(ctx, conn)
		})
}

func (c *Channel) serve(ctx context.Context, conn *resonance.Connection) error {
	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		spawn("receiver", parallel.Exit, func(ctx context.Context) error {
			return c.receive(ctx, conn)
		})
		spawn("sender", parallel.Exit, func(ctx context.Context) error {
			defer conn.Close()

			return c.send(ctx, conn)
		})

		return nil
	})
}

func (c *Channel) receive(ctx context.Context, conn *resonance.Connection) error {
	for {
		msg, err := conn.ReceiveProton(c.m)
		if err != nil {
			if c.closing.Load() {
				return nil
			}
			return err
		}

		switch msg := msg.(type) {
		case *wire.EndpointMessage:
			if err := c.onEndpointMessage(msg); err != nil {
				return err
			}
		case *wire.EndpointClosed:
			c.onEndpointClosed(msg.EndpointID)
		case *wire.Goodbye:
			logger.Get(ctx).Debug("Channel closed by peer", zap.String("reason", msg.Reason))
			return nil
		default:
			return errors.Wrapf(ErrProtocolViolation, "unexpected message %T", msg)
		}
	}
}

func (c *Channel) send(ctx context.Context, conn *resonance.Connection) error {
	for {
		frames, ok, err := c.outbox.Wait(ctx)
		if err != nil {
			return err
		}
		if !ok {
			c.closing.Store(true)
			return sendGoodbye(conn, c.m, "channel shut down")
		}

		for i, f := range frames {
			if err := c.sendFrame(conn, f); err != nil {
				discardFrames(frames[i+1:])
				return err
			}
		}
	}
}

func (c *Channel) sendFrame(conn *resonance.Connection, f frame) error {
	if f.message == nil {
		return conn.SendProton(&wire.EndpointClosed{EndpointID: f.endpointID}, c.m)
	}

	msg := &wire.EndpointMessage{
		EndpointID: f.endpointID,
		Payload:    f.message.bytes,
	}
	var endpoints []*ChannelEndpoint
	if len(f.message.dispatchers) > 0 {
		msg.Handles = make([]wire.Handle, 0, len(f.message.dispatchers))
		for _, d := range f.message.dispatchers {
			h, e := d.intoWireForm(c)
			msg.Handles = append(msg.Handles, h)
			if e != nil {
				endpoints = append(endpoints, e)
			}
		}
		f.message.dispatchers = nil
	}

	if err := conn.SendProton(msg, c.m); err != nil {
		return err
	}

	for _, e := range endpoints {
		e.attach(c)
	}
	return nil
}

func (c *Channel) onEndpointMessage(msg *wire.EndpointMessage) error {
	if len(msg.Payload) > MaxMessageNumBytes {
		return errors.Wrapf(ErrProtocolViolation, "message of %d bytes exceeds the limit", len(msg.Payload))
	}
	if len(msg.Handles) > MaxMessageNumHandles {
		return errors.Wrapf(ErrProtocolViolation, "message with %d handles exceeds the limit", len(msg.Handles))
	}

	m := &message{
		bytes: msg.Payload,
	}
	if len(msg.Handles) > 0 {
		m.dispatchers = make([]Dispatcher, 0, len(msg.Handles))
		for _, h := range msg.Handles {
			d, err := dispatcherFromWireForm(h, c)
			if err != nil {
				discardMessages([]*message{m})
				return err
			}
			m.dispatchers = append(m.dispatchers, d)
		}
	}

	c.mu.Lock()
	e := c.endpoints[msg.EndpointID]
	c.mu.Unlock()

	if e == nil {
		discardMessages([]*message{m})
		return nil
	}
	e.onReadMessage(m)
	return nil
}

func (c *Channel) onEndpointClosed(id wire.EndpointID) {
	c.mu.Lock()
	e := c.endpoints[id]
	delete(c.endpoints, id)
	c.mu.Unlock()

	if e != nil {
		e.onRemoteClosed()
	}
}

// registerEndpoint assigns local ID to the endpoint created for a handle being sent.
// Zero is returned if channel is going away.
func (c *Channel) registerEndpoint(e *ChannelEndpoint) wire.EndpointID {
	c.mu.Lock()
	if c.shutdown || c.dead {
		c.mu.Unlock()
		return closedEndpointWireID
	}
	id := c.nextEndpointID
	c.nextEndpointID += endpointIDIncrement
	c.endpoints[id] = e
	c.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.id = id
	return id
}

// acceptRemoteEndpoint creates the endpoint for a handle received from the peer.
func (c *Channel) acceptRemoteEndpoint(id wire.EndpointID) (*ChannelEndpoint, error) {
	if id == closedEndpointWireID {
		return nil, nil
	}
	if id == bootstrapEndpointID || (id%2 == 0) == c.handle.IsServer() {
		return nil, errors.Wrapf(ErrProtocolViolation, "endpoint ID %d allocated by wrong side", id)
	}

	e := newChannelEndpoint(nil)
	e.id = id
	e.channel = c

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.endpoints[id]; exists {
		return nil, errors.Wrapf(ErrProtocolViolation, "endpoint ID %d already in use", id)
	}
	c.endpoints[id] = e
	return e, nil
}

// attachBootstrapEndpoint binds the endpoint both sides of the channel know upfront.
func (c *Channel) attachBootstrapEndpoint(e *ChannelEndpoint) {
	c.mu.Lock()
	if _, exists := c.endpoints[bootstrapEndpointID]; exists {
		c.mu.Unlock()
		panic(errors.Errorf("channel %d has bootstrap endpoint already", c.id))
	}
	dead := c.dead
	if !dead {
		c.endpoints[bootstrapEndpointID] = e
	}
	c.mu.Unlock()

	e.mu.Lock()
	e.id = bootstrapEndpointID
	e.mu.Unlock()

	if dead {
		e.onRemoteClosed()
		return
	}
	e.attach(c)
}

func (c *Channel) pushMessage(id wire.EndpointID, m *message) bool {
	return c.outbox.Push(frame{endpointID: id, message: m})
}

// closeEndpoint is called when the client of the endpoint is gone.
func (c *Channel) closeEndpoint(id wire.EndpointID, e *ChannelEndpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.endpoints[id] != e {
		return
	}
	delete(c.endpoints, id)
	c.outbox.Push(frame{endpointID: id})
}

// WillShutdown tells the channel that it is going to be shut down, so connection errors are expected.
func (c *Channel) WillShutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.draining = true
}

// Shutdown closes the channel. Messages queued before are still sent.
func (c *Channel) Shutdown() {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		panic(errors.Errorf("channel %d is shut down already", c.id))
	}
	c.shutdown = true
	c.mu.Unlock()

	c.outbox.Close()
}

func (c *Channel) isDraining() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.draining || c.shutdown
}

func (c *Channel) onConnectionClosed() {
	c.mu.Lock()
	c.dead = true
	endpoints := c.endpoints
	c.endpoints = map[wire.EndpointID]*ChannelEndpoint{}
	c.mu.Unlock()

	c.outbox.Close()
	frames, _, _ := c.outbox.Wait(context.Background())
	discardFrames(frames)

	for _, e := range endpoints {
		e.onRemoteClosed()
	}
}

func discardFrames(frames []frame) {
	for _, f := range frames {
		if f.message != nil {
			discardMessages([]*message{f.message})
		}
	}
}
