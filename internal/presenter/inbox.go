package presenter

import (
	"crypto/x509"
	"sort"
	"sync"
	"time"

	"github.com/sensiblebit/certtrust"
)

// Notification is a certificate waiting for a decision.
type Notification struct {
	certtrust.Details
	Foreground bool      `json:"foreground"`
	Since      time.Time `json:"since"`
}

// Inbox keeps passive notifications for pending certificates until they
// are decided or withdrawn. It never decides by itself.
type Inbox struct {
	mu    sync.Mutex
	items map[certtrust.ID]Notification
}

// NewInbox creates an empty Inbox.
func NewInbox() *Inbox {
	return &Inbox{items: make(map[certtrust.ID]Notification)}
}

// Present records a notification for cert.
func (in *Inbox) Present(cert *x509.Certificate, foreground bool) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	id := certtrust.IDOf(cert)
	if n, ok := in.items[id]; ok {
		n.Foreground = n.Foreground || foreground
		in.items[id] = n
		return nil
	}
	in.items[id] = Notification{
		Details:    certtrust.NewDetails(cert),
		Foreground: foreground,
		Since:      time.Now(),
	}
	return nil
}

// Dismiss removes the notification for cert.
func (in *Inbox) Dismiss(cert *x509.Certificate) {
	in.mu.Lock()
	defer in.mu.Unlock()
	delete(in.items, certtrust.IDOf(cert))
}

// List returns the current notifications, oldest first.
func (in *Inbox) List() []Notification {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]Notification, 0, len(in.items))
	for _, n := range in.items {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Since.Equal(out[j].Since) {
			return out[i].Since.Before(out[j].Since)
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}
