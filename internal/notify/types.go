package notify

import (
	"context"
	"errors"
	"time"
)

// Typed delivery failures. The scheduler treats all of them the same way
// (log and move on), but callers that probe a channel up front care about
// the difference.
var (
	// ErrInvalidChannel means the channel id is malformed or rejected by the
	// transport (unknown chat, bot blocked).
	ErrInvalidChannel = errors.New("invalid channel")
	// ErrTimeout means the send did not complete within the configured bound.
	ErrTimeout = errors.New("send timed out")
	// ErrUnreachable covers transport-level failures.
	ErrUnreachable = errors.New("channel unreachable")
)

// Notifier delivers a text message to an outbound channel.
//
// Implementations do not retry; retry policy, if any, belongs to the caller.
// Send must be bounded: a hung transport returns ErrTimeout instead of
// blocking the caller indefinitely.
type Notifier interface {
	Send(ctx context.Context, channelID, text string) error
}

type Config struct {
	Token string
	// Polling enables the /start greeter loop.
	Polling bool
	// SendTimeout bounds one Send call. Default 8s.
	SendTimeout time.Duration
	// RatePerSec caps outbound sends. Default 3.
	RatePerSec int
	// PollTimeout is the long-poll timeout. Default 10s.
	PollTimeout time.Duration
}

// Func adapts a function to the Notifier interface (used by tests).
type Func func(ctx context.Context, channelID, text string) error

func (f Func) Send(ctx context.Context, channelID, text string) error {
	return f(ctx, channelID, text)
}
