// Package coordinator is the single decision authority for certificates the
// system roots do not trust. It answers evaluators from the store, merges
// concurrent checks of the same certificate into one pending decision, asks
// a Presenter for a user decision, and fans the result out to every waiter.
//
// All state is owned by the goroutine running Run. Every operation is an
// event queued to that goroutine and handled to completion before the next.
package coordinator

import (
	"context"
	"crypto/x509"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/sensiblebit/certtrust"
	"github.com/sensiblebit/certtrust/internal/certstore"
	"github.com/sensiblebit/certtrust/internal/metrics"
	"github.com/sensiblebit/certtrust/internal/transport"
)

const defaultQueueSize = 256

var (
	// ErrStopped is returned by operations submitted after Run returned.
	ErrStopped = errors.New("coordinator stopped")
	// ErrNoPendingDecision is returned by DecideTag when no pending
	// certificate has the given tag.
	ErrNoPendingDecision = errors.New("no pending decision for certificate")
)

// State is the decision state of one certificate.
type State int

const (
	StateUnknown State = iota
	StatePending
	StateTrusted
	StateRejected
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateTrusted:
		return "trusted"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Presenter obtains a user decision for a certificate. Present is called on
// the coordinator goroutine and must return without waiting for the user;
// the decision is reported later through Decide. A non-nil error means no
// decision can be obtained and the check is answered as untrusted.
type Presenter interface {
	Present(cert *x509.Certificate, foreground bool) error
	Dismiss(cert *x509.Certificate)
}

// Pending describes a certificate awaiting a user decision.
type Pending struct {
	Cert       *x509.Certificate
	Tag        string
	Waiters    int
	Foreground bool
	Since      time.Time
}

type waiter struct {
	requestID uint64
	reply     transport.ReplyChannel
}

type pendingDecision struct {
	cert       *x509.Certificate
	waiters    []waiter
	foreground bool
	since      time.Time
}

// Options configures a Coordinator.
type Options struct {
	Store     *certstore.Store
	Presenter Presenter
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	// QueueSize bounds events waiting for the loop. Zero uses a default.
	QueueSize int
}

// Coordinator implements transport.Handler.
type Coordinator struct {
	store     *certstore.Store
	presenter Presenter
	logger    *slog.Logger
	metrics   *metrics.Metrics

	events  chan func(context.Context)
	stopped chan struct{}

	// owned by the Run goroutine
	pending map[certtrust.ID]*pendingDecision
}

var _ transport.Handler = (*Coordinator)(nil)

// New creates a Coordinator. Nothing is processed until Run is called.
func New(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Coordinator{
		store:     opts.Store,
		presenter: opts.Presenter,
		logger:    logger,
		metrics:   opts.Metrics,
		events:    make(chan func(context.Context), size),
		stopped:   make(chan struct{}),
		pending:   make(map[certtrust.ID]*pendingDecision),
	}
}

// Run processes events until ctx is done. It must be called exactly once.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.stopped)
	c.logger.Debug("coordinator started")
	for {
		select {
		case ev := <-c.events:
			ev(ctx)
		case <-ctx.Done():
			c.logger.Debug("coordinator stopped", "pending", len(c.pending))
			return nil
		}
	}
}

// submit queues ev. It reports false if the loop has stopped.
func (c *Coordinator) submit(ev func(context.Context)) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.stopped:
		return false
	}
}

// call queues fn and waits for its result.
func call[T any](ctx context.Context, c *Coordinator, fn func(context.Context) T) (T, error) {
	result := make(chan T, 1)
	var zero T
	select {
	case c.events <- func(ctx context.Context) { result <- fn(ctx) }:
	case <-c.stopped:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case v := <-result:
		return v, nil
	case <-c.stopped:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// HandleCheck queues a trust check. It implements transport.Handler.
func (c *Coordinator) HandleCheck(msg transport.CheckTrusted, reply transport.ReplyChannel) {
	if !c.submit(func(ctx context.Context) { c.check(ctx, msg, reply) }) {
		c.logger.Warn("dropping check, coordinator stopped", "request", msg.RequestID)
	}
}

// HandleAbort queues withdrawal of a trust check. It implements
// transport.Handler.
func (c *Coordinator) HandleAbort(msg transport.AbortCheck, reply transport.ReplyChannel) {
	if !c.submit(func(context.Context) { c.abort(msg, reply) }) {
		c.logger.Warn("dropping abort, coordinator stopped", "request", msg.RequestID)
	}
}

// Decide records the user's decision on cert and answers every evaluator
// waiting on it. The returned error reports a failure to persist the trust
// store; the decision is applied regardless.
func (c *Coordinator) Decide(ctx context.Context, cert *x509.Certificate, trusted bool) error {
	saveErr, err := call(ctx, c, func(ctx context.Context) error { return c.decide(ctx, cert, trusted) })
	if err != nil {
		return err
	}
	return saveErr
}

// DecideTag is Decide for the pending certificate whose Tag is tag.
func (c *Coordinator) DecideTag(ctx context.Context, tag string, trusted bool) error {
	decideErr, err := call(ctx, c, func(ctx context.Context) error {
		for _, p := range c.pending {
			if strings.EqualFold(certtrust.Tag(p.cert), tag) {
				return c.decide(ctx, p.cert, trusted)
			}
		}
		return ErrNoPendingDecision
	})
	if err != nil {
		return err
	}
	return decideErr
}

// Reset forgets every trusted and rejected certificate. Pending decisions
// are left as they are.
func (c *Coordinator) Reset(ctx context.Context) error {
	saveErr, err := call(ctx, c, func(context.Context) error { return c.store.Reset() })
	if err != nil {
		return err
	}
	return saveErr
}

// State reports the decision state of cert.
func (c *Coordinator) State(ctx context.Context, cert *x509.Certificate) (State, error) {
	return call(ctx, c, func(context.Context) State { return c.stateOf(cert) })
}

// PendingDecisions lists the certificates awaiting a decision, oldest first.
func (c *Coordinator) PendingDecisions(ctx context.Context) ([]Pending, error) {
	return call(ctx, c, func(context.Context) []Pending {
		out := make([]Pending, 0, len(c.pending))
		for _, p := range c.pending {
			out = append(out, Pending{
				Cert:       p.cert,
				Tag:        certtrust.Tag(p.cert),
				Waiters:    len(p.waiters),
				Foreground: p.foreground,
				Since:      p.since,
			})
		}
		sort.Slice(out, func(i, j int) bool {
			if !out[i].Since.Equal(out[j].Since) {
				return out[i].Since.Before(out[j].Since)
			}
			return out[i].Tag < out[j].Tag
		})
		return out
	})
}

func (c *Coordinator) stateOf(cert *x509.Certificate) State {
	if _, ok := c.pending[certtrust.IDOf(cert)]; ok {
		return StatePending
	}
	if c.store.IsRejected(cert) {
		return StateRejected
	}
	if c.store.Contains(cert) {
		return StateTrusted
	}
	return StateUnknown
}

func (c *Coordinator) check(ctx context.Context, msg transport.CheckTrusted, reply transport.ReplyChannel) {
	cert, err := certtrust.ParseDER(msg.Certificate)
	if err != nil {
		c.logger.Warn("rejecting malformed certificate", "request", msg.RequestID, "error", err)
		c.metrics.IncRequest("malformed")
		c.send(ctx, reply, transport.Decision{RequestID: msg.RequestID, Trusted: false})
		return
	}
	id := certtrust.IDOf(cert)
	w := waiter{requestID: msg.RequestID, reply: reply}

	if p, ok := c.pending[id]; ok {
		p.waiters = append(p.waiters, w)
		c.logger.Debug("joined pending decision", "request", msg.RequestID, "subject", cert.Subject.String(), "waiters", len(p.waiters))
		c.metrics.IncRequest("pending")
		return
	}
	if c.store.IsRejected(cert) {
		c.metrics.IncRequest("rejected")
		c.send(ctx, reply, transport.Decision{RequestID: msg.RequestID, Trusted: false})
		return
	}
	if c.store.Contains(cert) {
		c.metrics.IncRequest("trusted")
		c.send(ctx, reply, transport.Decision{RequestID: msg.RequestID, Trusted: true})
		return
	}

	p := &pendingDecision{cert: cert, waiters: []waiter{w}, foreground: msg.Foreground, since: time.Now()}
	c.pending[id] = p
	c.metrics.SetPending(len(c.pending))
	c.logger.Info("asking for decision", "subject", cert.Subject.String(), "tag", certtrust.Tag(cert), "foreground", msg.Foreground)

	if c.presenter == nil {
		c.failPresentation(ctx, id, p, errors.New("no presenter configured"))
		return
	}
	if err := c.presenter.Present(cert, msg.Foreground); err != nil {
		c.failPresentation(ctx, id, p, err)
		return
	}
	c.metrics.IncRequest("presented")
}

// failPresentation answers all waiters of p as untrusted without caching
// a verdict.
func (c *Coordinator) failPresentation(ctx context.Context, id certtrust.ID, p *pendingDecision, err error) {
	c.logger.Warn("cannot obtain user decision, rejecting", "subject", p.cert.Subject.String(), "error", err)
	c.metrics.IncRequest("no_presenter")
	c.metrics.IncPresenterFailure()
	delete(c.pending, id)
	c.metrics.SetPending(len(c.pending))
	for _, w := range p.waiters {
		c.send(ctx, w.reply, transport.Decision{RequestID: w.requestID, Trusted: false})
	}
}

func (c *Coordinator) decide(ctx context.Context, cert *x509.Certificate, trusted bool) error {
	id := certtrust.IDOf(cert)
	p := c.pending[id]
	delete(c.pending, id)
	c.metrics.SetPending(len(c.pending))
	c.metrics.IncDecision(trusted)

	var err error
	if trusted {
		err = c.store.SetTrusted(cert)
	} else {
		err = c.store.SetRejected(cert)
	}

	if p != nil {
		for _, w := range p.waiters {
			c.send(ctx, w.reply, transport.Decision{RequestID: w.requestID, Trusted: trusted})
		}
		c.logger.Debug("decision delivered", "subject", cert.Subject.String(), "trusted", trusted, "waiters", len(p.waiters))
	}
	if c.presenter != nil {
		c.presenter.Dismiss(cert)
	}
	return err
}

func (c *Coordinator) abort(msg transport.AbortCheck, reply transport.ReplyChannel) {
	id, p := c.findWaiter(msg, reply)
	if p == nil {
		c.logger.Debug("abort for unknown request", "request", msg.RequestID)
		return
	}
	c.metrics.IncAbort()

	kept := p.waiters[:0]
	for _, w := range p.waiters {
		if w.requestID == msg.RequestID && w.reply.ID() == reply.ID() {
			continue
		}
		kept = append(kept, w)
	}
	p.waiters = kept
	if len(p.waiters) > 0 {
		return
	}

	delete(c.pending, id)
	c.metrics.SetPending(len(c.pending))
	c.logger.Info("all requests withdrawn, dropping pending decision", "subject", p.cert.Subject.String())
	if c.presenter != nil {
		c.presenter.Dismiss(p.cert)
	}
}

// findWaiter locates the pending decision holding the aborted request.
// The certificate bytes select it directly; malformed bytes fall back to a
// scan by request id and reply channel.
func (c *Coordinator) findWaiter(msg transport.AbortCheck, reply transport.ReplyChannel) (certtrust.ID, *pendingDecision) {
	if len(msg.Certificate) > 0 {
		id := certtrust.IDFromDER(msg.Certificate)
		if p, ok := c.pending[id]; ok && p.has(msg.RequestID, reply) {
			return id, p
		}
	}
	for id, p := range c.pending {
		if p.has(msg.RequestID, reply) {
			return id, p
		}
	}
	return certtrust.ID{}, nil
}

func (p *pendingDecision) has(requestID uint64, reply transport.ReplyChannel) bool {
	for _, w := range p.waiters {
		if w.requestID == requestID && w.reply.ID() == reply.ID() {
			return true
		}
	}
	return false
}

func (c *Coordinator) send(ctx context.Context, reply transport.ReplyChannel, d transport.Decision) {
	if err := reply.SendDecision(ctx, d); err != nil {
		c.metrics.IncReplyFailure()
		c.logger.Warn("couldn't send decision", "request", d.RequestID, "channel", reply.ID(), "error", err)
	}
}
