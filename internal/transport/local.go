package transport

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// localQueueSize bounds decisions buffered between the coordinator and the
// receiving goroutine.
const localQueueSize = 64

// Local connects evaluators and a coordinator in the same process. Decisions
// are handed to a single receiving goroutine that delivers them to the sink,
// so the coordinator never runs evaluator code.
type Local struct {
	handler   Handler
	sink      Sink
	logger    *slog.Logger
	id        string
	decisions chan Decision
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewLocal starts a Local transport that sends checks to handler and
// delivers decisions to sink.
func NewLocal(handler Handler, sink Sink, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Local{
		handler:   handler,
		sink:      sink,
		logger:    logger,
		id:        "local-" + uuid.NewString(),
		decisions: make(chan Decision, localQueueSize),
		done:      make(chan struct{}),
	}
	l.wg.Add(1)
	go l.receive()
	return l
}

func (l *Local) receive() {
	defer l.wg.Done()
	for {
		select {
		case d := <-l.decisions:
			l.sink.Deliver(d)
		case <-l.done:
			return
		}
	}
}

// ID implements ReplyChannel.
func (l *Local) ID() string {
	return l.id
}

// SendDecision implements ReplyChannel.
func (l *Local) SendDecision(ctx context.Context, d Decision) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	select {
	case l.decisions <- d:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CheckTrusted implements Client.
func (l *Local) CheckTrusted(_ context.Context, msg CheckTrusted) error {
	if l.closed() {
		return ErrClosed
	}
	l.handler.HandleCheck(msg, l)
	return nil
}

// AbortCheck implements Client.
func (l *Local) AbortCheck(_ context.Context, msg AbortCheck) error {
	if l.closed() {
		return ErrClosed
	}
	l.handler.HandleAbort(msg, l)
	return nil
}

// Close stops the receiving goroutine. Decisions not yet delivered are
// dropped.
func (l *Local) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.wg.Wait()
		l.logger.Debug("local transport closed", "id", l.id)
	})
	return nil
}

func (l *Local) closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}
