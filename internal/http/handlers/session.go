package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"imagedash/internal/auth"
)

var validate = validator.New()

type loginRequest struct {
	AccessToken string `json:"access_token" validate:"required"`
}

type sessionResponse struct {
	User      string     `json:"user"`
	LoggedIn  bool       `json:"logged_in"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func toSessionResponse(s auth.Snapshot) sessionResponse {
	resp := sessionResponse{User: s.User, LoggedIn: s.LoggedIn()}
	if !s.ExpiresAt.IsZero() {
		exp := s.ExpiresAt
		resp.ExpiresAt = &exp
	}
	return resp
}

func (a *App) GetSession(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, toSessionResponse(a.Session.Current()))
}

// PutSession signs in with a token issued by the identity provider. The same
// user rotating tokens keeps the current view; a different user replaces it.
func (a *App) PutSession(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", a.notice(r, noticeInvalidPayload))
		return
	}
	if err := validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, "validation", a.notice(r, noticeSessionRequired))
		return
	}
	if a.Verifier != nil {
		if _, err := a.Verifier.Verify(r.Context(), req.AccessToken); err != nil {
			a.logger.Warn().Err(err).Msg("session: token rejected")
			a.error(w, http.StatusUnauthorized, "invalid_token", a.notice(r, noticeInvalidToken))
			return
		}
	}
	snap := a.Session.SetToken(req.AccessToken)
	a.logger.Info().Str("user", snap.User).Msg("session: signed in")
	a.json(w, http.StatusOK, toSessionResponse(snap))
}

func (a *App) DeleteSession(w http.ResponseWriter, r *http.Request) {
	a.Session.Clear()
	a.logger.Info().Msg("session: signed out")
	w.WriteHeader(http.StatusNoContent)
}
