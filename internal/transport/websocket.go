package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

// Envelope types on the WebSocket connection.
const (
	typeCheck    = "check"
	typeAbort    = "abort"
	typeDecision = "decision"
)

const (
	wsReadLimit    = 1 << 20
	wsWriteTimeout = 5 * time.Second
	wsDialTimeout  = 10 * time.Second
)

// envelope frames every message on the WebSocket connection as JSON.
type envelope struct {
	Type     string        `json:"type"`
	Check    *CheckTrusted `json:"check,omitempty"`
	Abort    *AbortCheck   `json:"abort,omitempty"`
	Decision *Decision     `json:"decision,omitempty"`
}

// WSHandler accepts WebSocket connections from remote evaluators and feeds
// their messages to a Handler. Each connection is one ReplyChannel. When a
// connection drops, checks it left unanswered are aborted.
type WSHandler struct {
	handler        Handler
	logger         *slog.Logger
	originPatterns []string
}

// NewWSHandler creates a WSHandler dispatching to handler. originPatterns
// is passed to websocket.AcceptOptions and may be empty.
func NewWSHandler(handler Handler, logger *slog.Logger, originPatterns ...string) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{handler: handler, logger: logger, originPatterns: originPatterns}
}

// ServeHTTP implements http.Handler.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Warn("accepting websocket", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(wsReadLimit)

	rc := &wsReplyChannel{
		id:          uuid.NewString(),
		conn:        conn,
		outstanding: make(map[uint64][]byte),
	}
	logger := h.logger.With("channel", rc.id, "remote", r.RemoteAddr)
	logger.Debug("evaluator connected")

	ctx := r.Context()
	defer func() {
		for _, abort := range rc.drain() {
			h.handler.HandleAbort(abort, rc)
		}
		_ = conn.Close(websocket.StatusNormalClosure, "closed")
		logger.Debug("evaluator disconnected")
	}()

	for {
		var env envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && !errors.Is(err, context.Canceled) {
				logger.Debug("reading websocket", "error", err)
			}
			return
		}
		switch {
		case env.Type == typeCheck && env.Check != nil:
			rc.track(*env.Check)
			h.handler.HandleCheck(*env.Check, rc)
		case env.Type == typeAbort && env.Abort != nil:
			rc.untrack(env.Abort.RequestID)
			h.handler.HandleAbort(*env.Abort, rc)
		default:
			logger.Warn("ignoring unexpected websocket message", "type", env.Type)
		}
	}
}

// wsReplyChannel is the server side of one evaluator connection.
type wsReplyChannel struct {
	id   string
	conn *websocket.Conn

	mu          sync.Mutex
	outstanding map[uint64][]byte
	closed      bool
}

func (c *wsReplyChannel) ID() string {
	return c.id
}

func (c *wsReplyChannel) SendDecision(ctx context.Context, d Decision) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	delete(c.outstanding, d.RequestID)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.conn, envelope{Type: typeDecision, Decision: &d}); err != nil {
		return fmt.Errorf("writing decision %d: %w", d.RequestID, err)
	}
	return nil
}

func (c *wsReplyChannel) track(msg CheckTrusted) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outstanding[msg.RequestID] = msg.Certificate
}

func (c *wsReplyChannel) untrack(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.outstanding, id)
}

// drain marks the channel closed and returns aborts for every unanswered
// check.
func (c *wsReplyChannel) drain() []AbortCheck {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	aborts := make([]AbortCheck, 0, len(c.outstanding))
	for id, der := range c.outstanding {
		aborts = append(aborts, AbortCheck{RequestID: id, Certificate: der})
	}
	c.outstanding = nil
	return aborts
}

// WSClient is a Client talking to a remote coordinator over WebSocket. Its
// read loop is the receiving context that delivers decisions to the sink.
type WSClient struct {
	conn   *websocket.Conn
	sink   Sink
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// DialWS connects to the coordinator WebSocket endpoint at url.
func DialWS(ctx context.Context, url string, sink Sink, logger *slog.Logger) (*WSClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dialCtx, cancelDial := context.WithTimeout(ctx, wsDialTimeout)
	defer cancelDial()
	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing coordinator %s: %w", url, err)
	}
	conn.SetReadLimit(wsReadLimit)

	readCtx, cancel := context.WithCancel(context.Background())
	c := &WSClient{
		conn:   conn,
		sink:   sink,
		logger: logger.With("coordinator", url),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.readLoop(readCtx)
	return c, nil
}

func (c *WSClient) readLoop(ctx context.Context) {
	defer close(c.done)
	for {
		var env envelope
		if err := wsjson.Read(ctx, c.conn, &env); err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("coordinator connection lost", "error", err)
			}
			return
		}
		if env.Type != typeDecision || env.Decision == nil {
			c.logger.Warn("ignoring unexpected websocket message", "type", env.Type)
			continue
		}
		c.sink.Deliver(*env.Decision)
	}
}

// CheckTrusted implements Client.
func (c *WSClient) CheckTrusted(ctx context.Context, msg CheckTrusted) error {
	return c.write(ctx, envelope{Type: typeCheck, Check: &msg})
}

// AbortCheck implements Client.
func (c *WSClient) AbortCheck(ctx context.Context, msg AbortCheck) error {
	return c.write(ctx, envelope{Type: typeAbort, Abort: &msg})
}

func (c *WSClient) write(ctx context.Context, env envelope) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.conn, env); err != nil {
		return fmt.Errorf("writing %s: %w", env.Type, err)
	}
	return nil
}

// Done is closed once the connection to the coordinator is gone.
func (c *WSClient) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection and waits for the read loop to exit.
func (c *WSClient) Close() error {
	var err error
	c.once.Do(func() {
		err = c.conn.Close(websocket.StatusNormalClosure, "closed")
		c.cancel()
		<-c.done
	})
	return err
}
