package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocal_DecisionReachesSink(t *testing.T) {
	// WHY: Decisions sent by the coordinator must reach the evaluator side
	// through the receiving goroutine, not on the coordinator's stack.
	t.Parallel()
	yes := true
	h := newRecordingHandler(&yes)
	sink := make(chanSink, 1)
	l := NewLocal(h, sink, nil)
	defer l.Close()

	if err := l.CheckTrusted(context.Background(), CheckTrusted{RequestID: 7, Certificate: []byte{1}}); err != nil {
		t.Fatalf("CheckTrusted: %v", err)
	}
	d, ok := sink.next(time.Second)
	if !ok {
		t.Fatal("no decision delivered")
	}
	if d.RequestID != 7 || !d.Trusted {
		t.Errorf("got %+v, want request 7 trusted", d)
	}
}

func TestLocal_AbortReachesHandler(t *testing.T) {
	// WHY: Timed-out evaluators withdraw their check through the same
	// channel identity the check was sent with.
	t.Parallel()
	h := newRecordingHandler(nil)
	l := NewLocal(h, make(chanSink, 1), nil)
	defer l.Close()

	if err := l.CheckTrusted(context.Background(), CheckTrusted{RequestID: 1}); err != nil {
		t.Fatal(err)
	}
	if err := l.AbortCheck(context.Background(), AbortCheck{RequestID: 1}); err != nil {
		t.Fatal(err)
	}
	if len(h.aborts) != 1 || h.aborts[0].RequestID != 1 {
		t.Fatalf("aborts = %+v", h.aborts)
	}
	if h.replies[0].ID() != l.ID() {
		t.Errorf("reply channel id = %q, want %q", h.replies[0].ID(), l.ID())
	}
}

func TestLocal_Closed(t *testing.T) {
	// WHY: After Close both directions must fail fast instead of blocking.
	t.Parallel()
	l := NewLocal(newRecordingHandler(nil), make(chanSink), nil)
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l.CheckTrusted(context.Background(), CheckTrusted{}); !errors.Is(err, ErrClosed) {
		t.Errorf("CheckTrusted error = %v, want ErrClosed", err)
	}
	if err := l.SendDecision(context.Background(), Decision{}); !errors.Is(err, ErrClosed) {
		t.Errorf("SendDecision error = %v, want ErrClosed", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
