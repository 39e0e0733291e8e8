package auth

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"imagedash/internal/infra"
)

// FileProvider binds a token file to a Session. Whatever refreshes the token
// (a login helper, a sidecar) rewrites the file; the provider notices on the
// next poll. An empty file means logged out; so does a missing file once it
// has existed. A file that was never written leaves the session alone, so a
// token set from ACCESS_TOKEN or PUT /api/session survives until it appears.
type FileProvider struct {
	path     string
	interval time.Duration
	session  *Session
	logger   infra.Logger
	seen     bool
}

func NewFileProvider(path string, interval time.Duration, session *Session, logger *infra.Logger) *FileProvider {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &FileProvider{
		path:     strings.TrimSpace(path),
		interval: interval,
		session:  session,
		logger:   infra.LoggerOrNop(logger),
	}
}

// Sync reads the file once and updates the session when the token changed.
func (p *FileProvider) Sync() error {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if !p.seen {
				return nil
			}
			if p.session.AccessToken() != "" {
				p.logger.Info().Str("path", p.path).Msg("auth: token file removed, logging out")
			}
			p.session.Clear()
			return nil
		}
		return err
	}
	p.seen = true
	token := strings.TrimSpace(string(raw))
	if token == p.session.AccessToken() {
		return nil
	}
	snap := p.session.SetToken(token)
	p.logger.Debug().Str("user", snap.User).Bool("logged_in", snap.LoggedIn()).Msg("auth: session updated from token file")
	return nil
}

// Run polls until ctx is done. Read errors are logged and the previous
// session is kept.
func (p *FileProvider) Run(ctx context.Context) error {
	if err := p.Sync(); err != nil {
		p.logger.Warn().Err(err).Str("path", p.path).Msg("auth: read token file")
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.Sync(); err != nil {
				p.logger.Warn().Err(err).Str("path", p.path).Msg("auth: read token file")
			}
		}
	}
}
