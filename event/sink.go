// Package event carries outbound platform events out of the auth engine.
//
// The engine emits events like welcome-mail requests and reset links as
// fire-and-forget notifications. Delivery is the host application's job:
// wire a Sink that forwards to a mail worker, a message bus, or whatever
// the deployment uses. A sink must never block the calling flow for long;
// the context it receives is the flow's context and may already be near
// its deadline.
package event

import "context"

// Common event names emitted by the engine. Payload keys are documented on
// the flows that emit them.
const (
	NameUserRegistered         = "auth/user.registered"
	NameVerificationRequested  = "auth/email.verification_requested"
	NamePasswordResetRequested = "auth/password.reset_requested"
	NamePasswordChanged        = "auth/password.changed"
)

// Sink receives outbound events. Implementations must be safe for
// concurrent use and should return quickly; slow transports belong behind
// their own queue.
type Sink interface {
	Send(ctx context.Context, name string, payload map[string]any)
}

// NoOpSink discards everything. It is the default when no sink is wired.
type NoOpSink struct{}

func (NoOpSink) Send(context.Context, string, map[string]any) {}

// Emitted is one captured event.
type Emitted struct {
	Name    string
	Payload map[string]any
}

// ChannelSink buffers events on a channel for tests to observe.
type ChannelSink struct {
	ch chan Emitted
}

// NewChannelSink returns a sink with the given buffer. Once the buffer is
// full further events are dropped, mirroring fire-and-forget semantics.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 16
	}
	return &ChannelSink{ch: make(chan Emitted, buffer)}
}

func (s *ChannelSink) Send(_ context.Context, name string, payload map[string]any) {
	select {
	case s.ch <- Emitted{Name: name, Payload: payload}:
	default:
	}
}

// Events exposes the captured stream.
func (s *ChannelSink) Events() <-chan Emitted { return s.ch }
