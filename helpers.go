package edk

import (
	"crypto/rand"

	"github.com/pkg/errors"

	"github.com/outofforest/edk/wire"
	"github.com/outofforest/resonance"
)

var (
	// ErrProtocolViolation is returned when the peer breaks the protocol.
	ErrProtocolViolation = errors.New("protocol violation")

	errShutdown = errors.New("shutting down")
)

func pipeToken() (wire.PipeToken, error) {
	var token wire.PipeToken
	_, err := rand.Read(token[:])
	if err != nil {
		return wire.PipeToken{}, errors.WithStack(err)
	}
	return token, nil
}

// call runs task on the runner and waits for its result. False is returned if runner is stopped.
func call[T any](runner TaskRunner, task func() T) (T, bool) {
	resultCh := make(chan T, 1)
	if !runner.PostTask(func() {
		resultCh <- task()
	}) {
		var t T
		return t, false
	}
	return <-resultCh, true
}

// postOrRun posts task to the runner, or runs it in place if there is no runner.
func postOrRun(runner TaskRunner, task func()) {
	if runner == nil {
		task()
		return
	}
	runner.PostTask(task)
}

// sendGoodbye tells the peer that the connection is closed deliberately.
func sendGoodbye(c *resonance.Connection, m wire.Marshaller, reason string) error {
	return c.SendProton(&wire.Goodbye{Reason: reason}, m)
}

func connectionConfig(config Config) resonance.Config {
	return resonance.Config{
		MaxMessageSize: config.MaxMessageSize,
	}
}
