package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
)

// Reply is the answer to one command.
type Reply struct {
	Value any
	Err   error
}

// Envelope wraps a command with a one-shot reply channel.
type Envelope struct {
	Command any

	reply chan Reply
	once  sync.Once
}

// NewEnvelope wraps command for a request.
func NewEnvelope(command any) *Envelope {
	return &Envelope{
		Command: command,
		reply:   make(chan Reply, 1),
	}
}

// Respond sends the reply. Only the first call has an effect; later calls return false.
func (e *Envelope) Respond(value any, err error) bool {
	sent := false

	e.once.Do(func() {
		e.reply <- Reply{Value: value, Err: err}
		sent = true
	})

	return sent
}

// Handler answers one command.
type Handler func(ctx context.Context, command any) (any, error)

// Request publishes cmd on topic and waits for exactly one reply.
// The reply's error, if any, is returned as is.
func (b *Bus) Request(ctx context.Context, topic Topic, cmd any) (any, error) {
	if b.SubscriberCount(topic) == 0 {
		return nil, errors.Newf(errors.ErrCodeCommandSendFailed, "no handler for %T on %s", cmd, topic)
	}

	env := NewEnvelope(cmd)

	if err := b.Publish(ctx, topic, env); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeCommandSendFailed, err, "failed to send %T", cmd)
	}

	select {
	case reply := <-env.reply:
		return reply.Value, reply.Err
	case <-ctx.Done():
		return nil, errors.Wrapf(errors.ErrCodeResponseRecvFailed, ctx.Err(), "no response to %T", cmd)
	}
}

// Call is Request with a typed response.
func Call[R any](ctx context.Context, b *Bus, topic Topic, cmd any) (R, error) {
	var zero R

	value, err := b.Request(ctx, topic, cmd)
	if err != nil {
		return zero, err
	}

	typed, ok := value.(R)
	if !ok {
		return zero, errors.Newf(errors.ErrCodeUnexpectedResponse, "expected %T in response to %T, got %T", zero, cmd, value)
	}

	return typed, nil
}

// Serve answers every envelope received on sub with handler until ctx is done
// or the subscription is closed. A panicking handler is answered with
// ErrCodeCommandHandlerPanics and the loop keeps serving.
func (b *Bus) Serve(ctx context.Context, sub *Subscription, handler Handler) {
	for {
		msg, err := sub.Receive(ctx)
		if err != nil {
			return
		}

		env, ok := msg.(*Envelope)
		if !ok {
			b.log.Warn("ignoring non-command message",
				zap.String("topic", string(sub.Topic)),
				zap.String("type", fmt.Sprintf("%T", msg)),
			)

			continue
		}

		b.dispatch(ctx, env, handler)
	}
}

func (b *Bus) dispatch(ctx context.Context, env *Envelope, handler Handler) {
	var (
		value any
		err   error
	)

	var catcher panics.Catcher
	catcher.Try(func() {
		value, err = handler(ctx, env.Command)
	})

	if recovered := catcher.Recovered(); recovered != nil {
		b.handlerPanics.Add(1)
		b.log.Error("command handler panic",
			zap.String("command", fmt.Sprintf("%T", env.Command)),
			zap.Any("panic", recovered.Value),
		)

		env.Respond(nil, errors.Wrapf(errors.ErrCodeCommandHandlerPanics, recovered.AsError(), "handler panicked on %T", env.Command))

		return
	}

	env.Respond(value, err)
}
