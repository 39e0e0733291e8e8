package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"imagedash/internal/domain"
	"imagedash/internal/jobservice"
)

type jobItem struct {
	ID        string           `json:"id"`
	Status    domain.JobStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

type jobsResponse struct {
	Jobs       []jobItem `json:"jobs"`
	Subscribed []string  `json:"subscribed"`
}

type detailResponse struct {
	ID       string           `json:"id"`
	Status   domain.JobStatus `json:"status"`
	ImageURL *string          `json:"image_url"`
}

func toJobsResponse(jobs []domain.Job, subscribed []string) jobsResponse {
	items := make([]jobItem, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, jobItem{ID: job.ID, Status: job.Status, CreatedAt: job.CreatedAt})
	}
	if subscribed == nil {
		subscribed = []string{}
	}
	return jobsResponse{Jobs: items, Subscribed: subscribed}
}

// ListJobs returns the current snapshot without contacting the Job Service.
func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	view := a.Dashboard.View()
	a.json(w, http.StatusOK, toJobsResponse(view.Jobs(), view.Subscribed()))
}

func (a *App) RefreshJobs(w http.ResponseWriter, r *http.Request) {
	view := a.Dashboard.View()
	jobs, err := view.Refresh(r.Context())
	if err != nil {
		a.logger.Warn().Err(err).Msg("jobs: refresh")
		a.error(w, http.StatusBadGateway, "fetch_failed", a.notice(r, noticeFetchQueues))
		return
	}
	a.json(w, http.StatusOK, toJobsResponse(jobs, view.Subscribed()))
}

func (a *App) JobDetail(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}
	res, err := a.Dashboard.View().Detail(r.Context(), jobID)
	if err != nil {
		a.logger.Warn().Err(err).Str("job_id", jobID).Msg("jobs: detail")
		reason := a.notice(r, noticeUnknownError)
		var httpErr *jobservice.HTTPError
		if errors.As(err, &httpErr) && httpErr.Detail != "" {
			reason = httpErr.Detail
		}
		a.error(w, http.StatusBadGateway, "status_fetch_failed", a.notice(r, noticeCheckStatus, reason))
		return
	}
	resp := detailResponse{ID: res.JobID, Status: res.Status}
	if res.ImageURL != "" {
		url := res.ImageURL
		resp.ImageURL = &url
	}
	a.json(w, http.StatusOK, resp)
}
