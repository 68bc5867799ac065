package presenter

import (
	"bufio"
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/sensiblebit/certtrust"
)

// Terminal asks the user on a terminal, one certificate at a time.
// Foreground requests are queued for a prompt; background requests only
// print a notice, leaving the decision to another surface.
type Terminal struct {
	out     io.Writer
	decider Decider
	logger  *slog.Logger
	lines   chan string

	outMu sync.Mutex

	mu     sync.Mutex
	queue  []*x509.Certificate
	queued map[certtrust.ID]bool
	wake   chan struct{}
}

// NewTerminal creates a Terminal reading answers from in and writing
// prompts to out. Call Run to start prompting.
func NewTerminal(in io.Reader, out io.Writer, decider Decider, logger *slog.Logger) *Terminal {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Terminal{
		out:     out,
		decider: decider,
		logger:  logger,
		lines:   make(chan string),
		queued:  make(map[certtrust.ID]bool),
		wake:    make(chan struct{}, 1),
	}
	go t.readLines(in)
	return t
}

func (t *Terminal) readLines(in io.Reader) {
	defer close(t.lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		t.lines <- scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		t.logger.Warn("reading terminal input", "error", err)
	}
}

// Present queues a prompt for foreground requests and prints a notice for
// background ones.
func (t *Terminal) Present(cert *x509.Certificate, foreground bool) error {
	if !foreground {
		t.outMu.Lock()
		defer t.outMu.Unlock()
		_, err := fmt.Fprintf(t.out, "Certificate for %s is awaiting a decision (tag %s)\n",
			certtrust.FormatCN(cert), certtrust.Tag(cert))
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	id := certtrust.IDOf(cert)
	if t.queued[id] {
		return nil
	}
	t.queued[id] = true
	t.queue = append(t.queue, cert)
	select {
	case t.wake <- struct{}{}:
	default:
	}
	return nil
}

// Dismiss drops a queued prompt for cert. A prompt already on screen stays
// until answered.
func (t *Terminal) Dismiss(cert *x509.Certificate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := certtrust.IDOf(cert)
	if !t.queued[id] {
		return
	}
	delete(t.queued, id)
	for i, c := range t.queue {
		if certtrust.IDOf(c) == id {
			t.queue = append(t.queue[:i], t.queue[i+1:]...)
			break
		}
	}
}

// Run prompts for queued certificates until ctx is done or input ends.
func (t *Terminal) Run(ctx context.Context) error {
	for {
		cert := t.pop()
		if cert == nil {
			select {
			case <-t.wake:
				continue
			case <-ctx.Done():
				return nil
			}
		}

		trusted, ok, err := t.prompt(ctx, cert)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := t.decider.Decide(ctx, cert, trusted); err != nil {
			t.logger.Warn("applying decision", "subject", cert.Subject.String(), "error", err)
		}
	}
}

func (t *Terminal) pop() *x509.Certificate {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.queue) == 0 {
		return nil
	}
	cert := t.queue[0]
	t.queue = t.queue[1:]
	delete(t.queued, certtrust.IDOf(cert))
	return cert
}

// prompt shows cert and reads the answer. ok is false when input has ended
// or ctx is done.
func (t *Terminal) prompt(ctx context.Context, cert *x509.Certificate) (trusted, ok bool, err error) {
	if err := t.show(cert); err != nil {
		return false, false, err
	}

	select {
	case line, open := <-t.lines:
		if !open {
			t.logger.Info("terminal input closed, no longer prompting")
			return false, false, nil
		}
		return parseAnswer(line), true, nil
	case <-ctx.Done():
		return false, false, nil
	}
}

func (t *Terminal) show(cert *x509.Certificate) error {
	t.outMu.Lock()
	defer t.outMu.Unlock()
	if _, err := fmt.Fprint(t.out, "\nThe server presented a certificate that is not trusted.\n"); err != nil {
		return err
	}
	if err := WriteDetails(t.out, certtrust.NewDetails(cert)); err != nil {
		return err
	}
	_, err := fmt.Fprint(t.out, "Trust this certificate? [y/N] ")
	return err
}

func parseAnswer(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
