package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"imagedash/internal/auth"
	"imagedash/internal/dashboard"
	"imagedash/internal/events"
	"imagedash/internal/infra"
	"imagedash/internal/middleware"
	"imagedash/internal/storage"
)

// TokenVerifier checks a sign-in token before the session accepts it.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.TokenClaims, error)
}

// Options wires the handlers to the running dashboard.
type Options struct {
	Dashboard      *dashboard.Dashboard
	Session        *auth.Session
	Bus            *events.Bus
	Blobs          *storage.BlobStore
	MaxUploadBytes int64
	Verifier       TokenVerifier
	Logger         *infra.Logger
}

type App struct {
	Dashboard      *dashboard.Dashboard
	Session        *auth.Session
	Bus            *events.Bus
	Blobs          *storage.BlobStore
	MaxUploadBytes int64
	Verifier       TokenVerifier

	logger  infra.Logger
	notices catalog.Catalog
}

func NewApp(opts Options) *App {
	return &App{
		Dashboard:      opts.Dashboard,
		Session:        opts.Session,
		Bus:            opts.Bus,
		Blobs:          opts.Blobs,
		MaxUploadBytes: opts.MaxUploadBytes,
		Verifier:       opts.Verifier,
		logger:         infra.LoggerOrNop(opts.Logger),
		notices:        newNoticeCatalog(),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorResponse{Error: errCode, Message: message})
}

// notice renders a user-visible message in the request's locale.
func (a *App) notice(r *http.Request, key string, args ...any) string {
	tag := language.Make(middleware.LocaleFromContext(r.Context()))
	return message.NewPrinter(tag, message.Catalog(a.notices)).Sprintf(key, args...)
}
