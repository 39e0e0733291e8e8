package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"imagedash/internal/jobservice"
)

const multipartOverhead = 1 << 20

type generateResponse struct {
	JobID string `json:"job_id"`
}

// Generate forwards a multipart submission (image + prompt) to the Job
// Service. Missing fields and oversized images are rejected before any
// request leaves the dashboard.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	limit := a.MaxUploadBytes
	if limit <= 0 {
		limit = jobservice.DefaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(limit + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "validation",
				a.notice(r, noticeUploadFailed, fmt.Sprintf("file size exceeds %d bytes", limit)))
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", a.notice(r, noticeInvalidPayload))
		return
	}
	defer r.MultipartForm.RemoveAll()

	req := jobservice.SubmitRequest{Prompt: r.FormValue("prompt")}
	file, header, err := r.FormFile("image")
	if err == nil {
		defer file.Close()
		data, readErr := io.ReadAll(io.LimitReader(file, limit+1))
		if readErr != nil {
			a.error(w, http.StatusBadRequest, "bad_request", a.notice(r, noticeInvalidPayload))
			return
		}
		req.Image = data
		req.Filename = header.Filename
		req.ContentType = header.Header.Get("Content-Type")
	}

	jobID, err := a.Dashboard.View().Submit(r.Context(), req)
	if err != nil {
		a.submitError(w, r, err)
		return
	}
	a.logger.Info().Str("job_id", jobID).Msg("generate: submitted")
	a.json(w, http.StatusAccepted, generateResponse{JobID: jobID})
}

func (a *App) submitError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *jobservice.ValidationError
	if errors.As(err, &verr) {
		msg := a.notice(r, noticeUploadFailed, verr.Reason)
		switch {
		case verr.Field == "Image" && verr.Reason == "is required":
			msg = a.notice(r, noticeImageRequired)
		case verr.Field == "Prompt":
			msg = a.notice(r, noticePromptRequired)
		}
		a.error(w, http.StatusBadRequest, "validation", msg)
		return
	}

	a.logger.Warn().Err(err).Msg("generate: submit")
	reason := a.notice(r, noticeUnknownError)
	var httpErr *jobservice.HTTPError
	if errors.As(err, &httpErr) && httpErr.Detail != "" {
		reason = httpErr.Detail
	}
	a.error(w, http.StatusBadGateway, "submit_failed", a.notice(r, noticeUploadFailed, reason))
}
