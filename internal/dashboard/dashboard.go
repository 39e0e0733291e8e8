package dashboard

import (
	"context"
	"sync"
	"time"

	"imagedash/internal/auth"
	"imagedash/internal/events"
	"imagedash/internal/infra"
)

// Dashboard holds the current View and replaces it whenever the signed-in
// user changes. Token-only rotations keep the view and its channels.
type Dashboard struct {
	deps           Deps
	session        *auth.Session
	logger         infra.Logger
	refreshTimeout time.Duration

	mu    sync.RWMutex
	view  *View
	unsub func()
}

func New(deps Deps, session *auth.Session) *Dashboard {
	d := &Dashboard{
		deps:           deps,
		session:        session,
		logger:         infra.LoggerOrNop(deps.Logger),
		refreshTimeout: 30 * time.Second,
		view:           NewView(deps),
	}
	d.unsub = session.OnChange(d.sessionChanged)
	return d
}

// View returns the live view.
func (d *Dashboard) View() *View {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.view
}

// Session returns the session the dashboard follows.
func (d *Dashboard) Session() *auth.Session {
	return d.session
}

func (d *Dashboard) sessionChanged(prev, next auth.Snapshot) {
	if d.deps.Bus != nil {
		d.deps.Bus.Publish(events.Event{Type: events.TypeSession, Timestamp: time.Now().Unix()})
	}
	if prev.User == next.User && prev.LoggedIn() == next.LoggedIn() {
		d.logger.Debug().Str("user", next.User).Msg("dashboard: token rotated")
		return
	}

	fresh := NewView(d.deps)
	d.mu.Lock()
	old := d.view
	d.view = fresh
	d.mu.Unlock()
	old.Close()
	d.logger.Info().Str("user", next.User).Bool("logged_in", next.LoggedIn()).Msg("dashboard: session changed, view replaced")

	if !next.LoggedIn() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.refreshTimeout)
	defer cancel()
	if _, err := fresh.Refresh(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("dashboard: initial refresh")
	}
}

// RunRefresher reloads the list every interval until ctx is done. It is the
// caller-driven resilience the tracker itself does not provide.
func (d *Dashboard) RunRefresher(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !d.session.Current().LoggedIn() {
				continue
			}
			rctx, cancel := context.WithTimeout(ctx, d.refreshTimeout)
			if _, err := d.View().Refresh(rctx); err != nil {
				d.logger.Warn().Err(err).Msg("dashboard: periodic refresh")
			}
			cancel()
		}
	}
}

// Close detaches from the session and closes the live view.
func (d *Dashboard) Close() {
	d.mu.Lock()
	unsub := d.unsub
	d.unsub = nil
	view := d.view
	d.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	view.Close()
}
