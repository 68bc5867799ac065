package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sensiblebit/certtrust"
	"github.com/sensiblebit/certtrust/internal/certstore"
	"github.com/sensiblebit/certtrust/internal/certtest"
	"github.com/sensiblebit/certtrust/internal/coordinator"
	"github.com/sensiblebit/certtrust/internal/metrics"
	"github.com/sensiblebit/certtrust/internal/presenter"
	"github.com/sensiblebit/certtrust/internal/registry"
	"github.com/sensiblebit/certtrust/internal/transport"
	"github.com/sensiblebit/certtrust/internal/trust"
)

type testServer struct {
	srv   *httptest.Server
	coord *coordinator.Coordinator
	store *certstore.Store
	inbox *presenter.Inbox
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := certstore.New(certstore.NewMemoryBackend(), nil)
	inbox := presenter.NewInbox()
	coord := coordinator.New(coordinator.Options{Store: store, Presenter: inbox, Metrics: m})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = coord.Run(ctx)
	}()

	srv := httptest.NewServer(NewRouter(Options{
		Coordinator: coord,
		Store:       store,
		WebSocket:   transport.NewWSHandler(coord, nil),
		Inbox:       inbox,
		Gatherer:    reg,
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return &testServer{srv: srv, coord: coord, store: store, inbox: inbox}
}

func (s *testServer) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(s.srv.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (s *testServer) getJSON(t *testing.T, path string, v any) {
	t.Helper()
	resp, err := http.Get(s.srv.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("GET %s: decoding: %v", path, err)
	}
}

type pendingCheck struct {
	reply chan transport.Decision
}

func (p pendingCheck) ID() string { return "test" }
func (p pendingCheck) SendDecision(_ context.Context, d transport.Decision) error {
	p.reply <- d
	return nil
}

func TestServer_PendingAndDecide(t *testing.T) {
	// WHY: A pending certificate must be listed with its tag, and posting a
	// decision for that tag must answer the waiting check.
	t.Parallel()
	s := newTestServer(t)
	cert := certtest.SelfSigned(t, "pending.example.com")
	reply := pendingCheck{reply: make(chan transport.Decision, 1)}
	s.coord.HandleCheck(transport.CheckTrusted{RequestID: 1, Certificate: cert.Raw, Foreground: true}, reply)

	var pending []PendingResponse
	s.getJSON(t, "/pending", &pending)
	if len(pending) != 1 {
		t.Fatalf("got %d pending, want 1", len(pending))
	}
	if pending[0].Tag != certtrust.Tag(cert) || pending[0].Waiters != 1 || !pending[0].Foreground {
		t.Errorf("pending[0] = %+v", pending[0])
	}

	var notes []presenter.Notification
	s.getJSON(t, "/notifications", &notes)
	if len(notes) != 1 || notes[0].Tag != certtrust.Tag(cert) {
		t.Errorf("notifications = %+v", notes)
	}

	resp := s.post(t, "/decisions", `{"tag":"`+strings.ToLower(certtrust.Tag(cert))+`","trusted":true}`)
	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("POST /decisions: status %d: %s", resp.StatusCode, body)
	}
	select {
	case d := <-reply.reply:
		if !d.Trusted {
			t.Error("check answered untrusted")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("check not answered")
	}
	if len(s.inbox.List()) != 0 {
		t.Error("notification not dismissed after decision")
	}

	var trusted []certtrust.Details
	s.getJSON(t, "/trusted", &trusted)
	if len(trusted) != 1 || trusted[0].Tag != certtrust.Tag(cert) {
		t.Errorf("trusted = %+v", trusted)
	}
}

func TestServer_DecisionErrors(t *testing.T) {
	// WHY: Malformed commands and unknown tags must be reported to the
	// caller instead of being silently dropped.
	t.Parallel()
	s := newTestServer(t)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"missing trusted", `{"tag":"AB"}`, http.StatusBadRequest},
		{"unknown field", `{"tag":"AB","trusted":true,"x":1}`, http.StatusBadRequest},
		{"unknown tag", `{"tag":"AB","trusted":true}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.post(t, "/decisions", tt.body).StatusCode; got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestServer_Reset(t *testing.T) {
	// WHY: POST /reset clears every stored decision.
	t.Parallel()
	s := newTestServer(t)
	cert := certtest.SelfSigned(t, "reset.example.com")
	if err := s.coord.Decide(context.Background(), cert, true); err != nil {
		t.Fatal(err)
	}
	if resp := s.post(t, "/reset", ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if s.store.Contains(cert) {
		t.Error("certificate still trusted after reset")
	}
}

func TestServer_Metrics(t *testing.T) {
	// WHY: The metrics endpoint must expose the coordinator collectors.
	t.Parallel()
	s := newTestServer(t)
	if err := s.coord.Decide(context.Background(), certtest.SelfSigned(t, "m.example.com"), false); err != nil {
		t.Fatal(err)
	}
	resp, err := http.Get(s.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`certtrust_coordinator_decisions_total{verdict="rejected"} 1`)) {
		t.Errorf("decision counter missing from metrics output")
	}
}

func TestServer_RemoteEvaluator(t *testing.T) {
	// WHY: An evaluator in another process reaches the coordinator over
	// /ws, blocks until a decision is posted over HTTP, and then succeeds.
	t.Parallel()
	s := newTestServer(t)
	reg := registry.New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := transport.DialWS(ctx, "ws"+strings.TrimPrefix(s.srv.URL, "http")+"/ws", reg, nil)
	if err != nil {
		t.Fatal(err)
	}
	e, err := trust.New(trust.Options{Registry: reg, Client: client, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	cert := certtest.SelfSigned(t, "remote.example.com")
	result := make(chan error, 1)
	go func() { result <- e.CheckCustomTrusted(ctx, cert) }()

	deadline := time.Now().Add(5 * time.Second)
	for len(s.inbox.List()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if resp := s.post(t, "/decisions", `{"tag":"`+certtrust.Tag(cert)+`","trusted":false}`); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("POST /decisions: status %d", resp.StatusCode)
	}

	select {
	case err := <-result:
		if !errors.Is(err, trust.ErrNotTrusted) {
			t.Errorf("error = %v, want ErrNotTrusted", err)
		}
	case <-ctx.Done():
		t.Fatal("remote check never returned")
	}
}
