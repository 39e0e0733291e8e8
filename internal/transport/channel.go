// Package transport opens one push connection per job and delivers the
// plain-text status messages the Job Service sends over it.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"imagedash/internal/domain"
	"imagedash/internal/infra"
)

// CloseReason says why a channel stopped.
type CloseReason int

const (
	// ReasonTerminal: the channel delivered COMPLETED or FAILED and closed itself.
	ReasonTerminal CloseReason = iota
	// ReasonClosed: the owner called Close.
	ReasonClosed
	// ReasonRemote: the Job Service ended the connection.
	ReasonRemote
	// ReasonError: dial or read failed.
	ReasonError
)

func (r CloseReason) String() string {
	switch r {
	case ReasonTerminal:
		return "terminal"
	case ReasonClosed:
		return "closed"
	case ReasonRemote:
		return "remote"
	case ReasonError:
		return "error"
	}
	return "unknown"
}

// Handlers are invoked from the channel's reader goroutine, one call at a time.
type Handlers struct {
	OnMessage func(status domain.JobStatus)
	// OnError receives errors wrapping domain.ErrTransport. Nothing is retried.
	OnError func(err error)
	// OnClose runs exactly once when the channel is fully shut down.
	OnClose func(reason CloseReason)
}

// DialerOptions configures the push connection dialer.
type DialerOptions struct {
	BaseURL          string
	HandshakeTimeout time.Duration
	Logger           *infra.Logger
}

// Dialer opens status channels against the Job Service.
type Dialer struct {
	baseURL *url.URL
	ws      *websocket.Dialer
	logger  infra.Logger
}

func NewDialer(opts DialerOptions) (*Dialer, error) {
	base, err := toWebSocketURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dialer{
		baseURL: base,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		},
		logger: infra.LoggerOrNop(opts.Logger),
	}, nil
}

func toWebSocketURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(raw), "/"))
	if err != nil {
		return nil, fmt.Errorf("transport: parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("transport: unsupported base url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("transport: base url has no host")
	}
	return u, nil
}

// StatusURL addresses the push channel for jobID. The token is omitted when empty.
func (d *Dialer) StatusURL(jobID, token string) string {
	u := *d.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/status"
	q := url.Values{}
	q.Set("id", jobID)
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Open returns immediately; the connection is established in the background
// and failures are reported through h.OnError.
func (d *Dialer) Open(jobID, token string, h Handlers) *Channel {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		jobID:  jobID,
		h:      h,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: d.logger.With().Str("job_id", jobID).Logger(),
	}
	go c.run(d.ws, d.StatusURL(jobID, token))
	return c
}

// Channel is one push connection for one job.
type Channel struct {
	jobID  string
	h      Handlers
	ctx    context.Context
	cancel context.CancelFunc
	logger infra.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	closing  bool
	terminal bool

	finishOnce sync.Once
	done       chan struct{}
}

// Close shuts the channel down without waiting for the peer. Closing a
// channel that already closed itself is a no-op.
func (c *Channel) Close() {
	c.shutdown(false)
}

func (c *Channel) shutdown(terminal bool) {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	c.terminal = terminal
	conn := c.conn
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(250*time.Millisecond))
		_ = conn.Close()
	}
}

func (c *Channel) isClosing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

func (c *Channel) run(ws *websocket.Dialer, target string) {
	conn, resp, err := ws.DialContext(c.ctx, target, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if c.isClosing() {
			c.finish(ReasonClosed)
			return
		}
		if resp != nil {
			err = fmt.Errorf("%w (handshake status %d)", err, resp.StatusCode)
		}
		c.report(err)
		c.shutdown(false)
		c.finish(ReasonError)
		return
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		_ = conn.Close()
		c.finish(ReasonClosed)
		return
	}
	c.conn = conn
	c.mu.Unlock()
	c.logger.Debug().Msg("transport: channel open")

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.finish(c.classifyReadError(err))
			return
		}
		if msgType != websocket.TextMessage {
			c.logger.Debug().Int("type", msgType).Msg("transport: ignoring non-text message")
			continue
		}
		if c.isClosing() {
			c.finish(ReasonClosed)
			return
		}
		status := domain.JobStatus(string(data))
		if c.h.OnMessage != nil {
			c.h.OnMessage(status)
		}
		if status.IsTerminal() {
			c.shutdown(true)
			c.finish(ReasonTerminal)
			return
		}
	}
}

func (c *Channel) classifyReadError(err error) CloseReason {
	c.mu.Lock()
	closing, terminal := c.closing, c.terminal
	c.mu.Unlock()
	switch {
	case terminal:
		return ReasonTerminal
	case closing:
		return ReasonClosed
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		c.shutdown(false)
		return ReasonRemote
	}
	c.report(err)
	c.shutdown(false)
	return ReasonError
}

func (c *Channel) report(err error) {
	wrapped := fmt.Errorf("transport: job %s: %w: %w", c.jobID, domain.ErrTransport, err)
	c.logger.Warn().Err(err).Msg("transport: channel error")
	if c.h.OnError != nil {
		c.h.OnError(wrapped)
	}
}

func (c *Channel) finish(reason CloseReason) {
	c.finishOnce.Do(func() {
		c.logger.Debug().Str("reason", reason.String()).Msg("transport: channel closed")
		if c.h.OnClose != nil {
			c.h.OnClose(reason)
		}
		close(c.done)
	})
}
