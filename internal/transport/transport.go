// Package transport carries trust checks from evaluators to the decision
// coordinator and decisions back. Delivery is asynchronous: sending a check
// never waits for its decision.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned when sending over a closed client or reply channel.
var ErrClosed = errors.New("transport closed")

// CheckTrusted asks the coordinator whether a certificate is trusted.
type CheckTrusted struct {
	RequestID   uint64 `json:"request_id"`
	Certificate []byte `json:"certificate"`
	Foreground  bool   `json:"foreground"`
}

// AbortCheck withdraws an outstanding CheckTrusted with the same request id.
type AbortCheck struct {
	RequestID   uint64 `json:"request_id"`
	Certificate []byte `json:"certificate"`
}

// Decision answers a CheckTrusted.
type Decision struct {
	RequestID uint64 `json:"request_id"`
	Trusted   bool   `json:"trusted"`
}

// ReplyChannel returns decisions to the sender of a request. ID is stable
// for the life of the channel and distinguishes senders whose request ids
// may collide.
type ReplyChannel interface {
	ID() string
	SendDecision(ctx context.Context, d Decision) error
}

// Handler is the coordinator side of the transport.
type Handler interface {
	HandleCheck(msg CheckTrusted, reply ReplyChannel)
	HandleAbort(msg AbortCheck, reply ReplyChannel)
}

// Client is the evaluator side of the transport.
type Client interface {
	CheckTrusted(ctx context.Context, msg CheckTrusted) error
	AbortCheck(ctx context.Context, msg AbortCheck) error
	Close() error
}

// Sink receives decisions on the evaluator side.
type Sink interface {
	Deliver(d Decision)
}
