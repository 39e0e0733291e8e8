package tracker

import (
	"sync"

	"imagedash/internal/domain"
	"imagedash/internal/infra"
	"imagedash/internal/transport"
)

// Channel is the part of a push connection the manager needs.
type Channel interface {
	Close()
}

// Opener opens one push channel for a job. It must not block on the network.
type Opener interface {
	Open(jobID, token string, h transport.Handlers) Channel
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(jobID, token string, h transport.Handlers) Channel

func (f OpenerFunc) Open(jobID, token string, h transport.Handlers) Channel {
	return f(jobID, token, h)
}

// DialerOpener opens real websocket channels.
func DialerOpener(d *transport.Dialer) Opener {
	return OpenerFunc(func(jobID, token string, h transport.Handlers) Channel {
		return d.Open(jobID, token, h)
	})
}

// TokenSource yields the bearer token for newly opened channels.
type TokenSource interface {
	AccessToken() string
}

// ManagerOptions wires the manager to its collaborators.
type ManagerOptions struct {
	Opener   Opener
	Tokens   TokenSource
	OnStatus func(jobID string, status domain.JobStatus)
	OnError  func(jobID string, err error)
	Logger   *infra.Logger
}

type subscription struct {
	jobID string
	ch    Channel

	closeRequested bool
	closeCalled    bool
	ended          bool
}

// Manager keeps exactly one push channel open per tracked, non-terminal job.
type Manager struct {
	opener   Opener
	tokens   TokenSource
	onStatus func(string, domain.JobStatus)
	onError  func(string, error)
	logger   infra.Logger

	mu       sync.Mutex
	open     map[string]*subscription
	finished map[string]struct{}
	torn     bool
}

func NewManager(opts ManagerOptions) *Manager {
	return &Manager{
		opener:   opts.Opener,
		tokens:   opts.Tokens,
		onStatus: opts.OnStatus,
		onError:  opts.OnError,
		logger:   infra.LoggerOrNop(opts.Logger),
		open:     make(map[string]*subscription),
		finished: make(map[string]struct{}),
	}
}

// Reconcile brings the open subscriptions in line with jobs: one channel per
// non-terminal job, none for terminal or absent ones. A job that was ever seen
// terminal is never subscribed again.
func (m *Manager) Reconcile(jobs []domain.Job) {
	m.mu.Lock()
	if m.torn {
		m.mu.Unlock()
		m.logger.Warn().Msg("tracker: reconcile after teardown ignored")
		return
	}

	keep := make(map[string]struct{}, len(jobs))
	var pending []*subscription
	for _, job := range jobs {
		if job.Status.IsTerminal() {
			m.finished[job.ID] = struct{}{}
			continue
		}
		if _, done := m.finished[job.ID]; done {
			continue
		}
		keep[job.ID] = struct{}{}
		if _, ok := m.open[job.ID]; ok {
			continue
		}
		sub := &subscription{jobID: job.ID}
		m.open[job.ID] = sub
		pending = append(pending, sub)
	}

	var detached []*subscription
	for id, sub := range m.open {
		if _, ok := keep[id]; !ok {
			delete(m.open, id)
			detached = append(detached, sub)
		}
	}
	m.mu.Unlock()

	for _, sub := range detached {
		m.logger.Debug().Str("job_id", sub.jobID).Msg("tracker: closing subscription")
		m.closeSubscription(sub)
	}

	var token string
	if m.tokens != nil {
		token = m.tokens.AccessToken()
	}
	for _, sub := range pending {
		m.logger.Debug().Str("job_id", sub.jobID).Msg("tracker: opening subscription")
		ch := m.opener.Open(sub.jobID, token, m.handlersFor(sub))
		m.attach(sub, ch)
	}
}

// Teardown closes every open subscription. Later calls, and later Reconcile
// calls, do nothing.
func (m *Manager) Teardown() {
	m.mu.Lock()
	if m.torn {
		m.mu.Unlock()
		return
	}
	m.torn = true
	subs := make([]*subscription, 0, len(m.open))
	for _, sub := range m.open {
		subs = append(subs, sub)
	}
	m.open = make(map[string]*subscription)
	m.mu.Unlock()

	for _, sub := range subs {
		m.closeSubscription(sub)
	}
	m.logger.Debug().Int("closed", len(subs)).Msg("tracker: subscriptions torn down")
}

// Subscribed returns the ids with a live subscription.
func (m *Manager) Subscribed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.open))
	for id := range m.open {
		ids = append(ids, id)
	}
	return ids
}

func (m *Manager) attach(sub *subscription, ch Channel) {
	m.mu.Lock()
	sub.ch = ch
	closeNow := sub.closeRequested && !sub.ended && !sub.closeCalled
	if closeNow {
		sub.closeCalled = true
	}
	m.mu.Unlock()
	if closeNow {
		ch.Close()
	}
}

// closeSubscription calls Close at most once, and not at all on a channel
// that already ended on its own.
func (m *Manager) closeSubscription(sub *subscription) {
	m.mu.Lock()
	sub.closeRequested = true
	ch := sub.ch
	closeNow := ch != nil && !sub.ended && !sub.closeCalled
	if closeNow {
		sub.closeCalled = true
	}
	m.mu.Unlock()
	if closeNow {
		ch.Close()
	}
}

func (m *Manager) handlersFor(sub *subscription) transport.Handlers {
	return transport.Handlers{
		OnMessage: func(status domain.JobStatus) {
			if m.onStatus != nil {
				m.onStatus(sub.jobID, status)
			}
			if status.IsTerminal() {
				m.mu.Lock()
				m.finished[sub.jobID] = struct{}{}
				m.mu.Unlock()
			}
		},
		OnError: func(err error) {
			m.logger.Warn().Err(err).Str("job_id", sub.jobID).Msg("tracker: subscription error")
			if m.onError != nil {
				m.onError(sub.jobID, err)
			}
		},
		OnClose: func(reason transport.CloseReason) {
			m.mu.Lock()
			sub.ended = true
			if m.open[sub.jobID] == sub {
				delete(m.open, sub.jobID)
			}
			if reason == transport.ReasonTerminal {
				m.finished[sub.jobID] = struct{}{}
			}
			m.mu.Unlock()
			m.logger.Debug().Str("job_id", sub.jobID).Str("reason", reason.String()).Msg("tracker: subscription ended")
		},
	}
}
