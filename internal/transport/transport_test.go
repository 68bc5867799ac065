package transport

import (
	"context"
	"sync"
	"time"
)

// recordingHandler records messages and optionally answers checks.
type recordingHandler struct {
	mu      sync.Mutex
	checks  []CheckTrusted
	aborts  []AbortCheck
	replies []ReplyChannel
	answer  *bool
	aborted chan AbortCheck
}

func newRecordingHandler(answer *bool) *recordingHandler {
	return &recordingHandler{answer: answer, aborted: make(chan AbortCheck, 16)}
}

func (h *recordingHandler) HandleCheck(msg CheckTrusted, reply ReplyChannel) {
	h.mu.Lock()
	h.checks = append(h.checks, msg)
	h.replies = append(h.replies, reply)
	h.mu.Unlock()
	if h.answer != nil {
		_ = reply.SendDecision(context.Background(), Decision{RequestID: msg.RequestID, Trusted: *h.answer})
	}
}

func (h *recordingHandler) HandleAbort(msg AbortCheck, _ ReplyChannel) {
	h.mu.Lock()
	h.aborts = append(h.aborts, msg)
	h.mu.Unlock()
	h.aborted <- msg
}

func (h *recordingHandler) checkCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.checks)
}

// chanSink forwards delivered decisions to a channel.
type chanSink chan Decision

func (s chanSink) Deliver(d Decision) { s <- d }

func (s chanSink) next(timeout time.Duration) (Decision, bool) {
	select {
	case d := <-s:
		return d, true
	case <-time.After(timeout):
		return Decision{}, false
	}
}
