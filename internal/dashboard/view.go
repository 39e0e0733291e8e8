// Package dashboard owns the per-session tracking state: one View holds the
// job list, its push subscriptions and the current detail result, and is
// discarded as a unit.
package dashboard

import (
	"context"
	"sync"
	"time"

	"imagedash/internal/domain"
	"imagedash/internal/events"
	"imagedash/internal/infra"
	"imagedash/internal/jobservice"
	"imagedash/internal/tracker"
)

// JobService is the Job Service surface a view needs.
type JobService interface {
	tracker.Lister
	tracker.StatusFetcher
	Submit(ctx context.Context, req jobservice.SubmitRequest) (string, error)
}

// Deps are shared by every view the dashboard creates.
type Deps struct {
	Jobs   JobService
	Opener tracker.Opener
	Tokens tracker.TokenSource
	Blobs  tracker.BlobStore
	Bus    *events.Bus
	Logger *infra.Logger
}

// View is the explicit lifecycle object behind one dashboard session.
type View struct {
	jobs    JobService
	store   *tracker.Store
	subs    *tracker.Manager
	details *tracker.DetailFetcher
	bus     *events.Bus
	logger  infra.Logger

	closeOnce sync.Once
}

func NewView(deps Deps) *View {
	v := &View{
		jobs:   deps.Jobs,
		bus:    deps.Bus,
		logger: infra.LoggerOrNop(deps.Logger),
	}
	v.store = tracker.NewStore(deps.Jobs, deps.Logger)
	v.details = tracker.NewDetailFetcher(deps.Jobs, deps.Blobs, deps.Logger)
	v.subs = tracker.NewManager(tracker.ManagerOptions{
		Opener:   deps.Opener,
		Tokens:   deps.Tokens,
		OnStatus: v.applyStatus,
		Logger:   deps.Logger,
	})
	return v
}

func (v *View) applyStatus(jobID string, status domain.JobStatus) {
	if !status.Known() {
		v.logger.Warn().Str("job_id", jobID).Str("status", string(status)).Msg("dashboard: unrecognized status kept verbatim")
	}
	if !v.store.ApplyStatus(jobID, status) {
		return
	}
	v.logger.Debug().Str("job_id", jobID).Str("status", string(status)).Msg("dashboard: status pushed")
	if v.bus != nil {
		v.bus.Publish(events.StatusEvent(jobID, status))
	}
}

// Refresh reloads the list and reconciles subscriptions with it. On a failed
// load the previous list stays and no subscription changes.
func (v *View) Refresh(ctx context.Context) ([]domain.Job, error) {
	jobs, err := v.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	v.subs.Reconcile(jobs)
	if v.bus != nil {
		v.bus.Publish(events.Event{Type: events.TypeJobs, Timestamp: time.Now().Unix()})
	}
	return jobs, nil
}

// Jobs returns the current snapshot.
func (v *View) Jobs() []domain.Job {
	return v.store.Snapshot()
}

// Subscribed returns the ids with a live push channel.
func (v *View) Subscribed() []string {
	return v.subs.Subscribed()
}

// Detail runs a one-shot authoritative fetch for jobID.
func (v *View) Detail(ctx context.Context, jobID string) (tracker.DetailResult, error) {
	return v.details.FetchDetail(ctx, jobID)
}

// Submit sends a generation request and refreshes the list on success. A
// failed refresh does not fail the submission; it is logged.
func (v *View) Submit(ctx context.Context, req jobservice.SubmitRequest) (string, error) {
	id, err := v.jobs.Submit(ctx, req)
	if err != nil {
		return "", err
	}
	if _, err := v.Refresh(ctx); err != nil {
		v.logger.Warn().Err(err).Str("job_id", id).Msg("dashboard: refresh after submit")
		if id != "" && v.store.Upsert(domain.Job{ID: id, Status: domain.JobStatusQueued}) {
			v.subs.Reconcile(v.store.Snapshot())
		}
	}
	return id, nil
}

// Close tears down every subscription and releases the current detail image.
// Only the first call has an effect.
func (v *View) Close() {
	v.closeOnce.Do(func() {
		v.subs.Teardown()
		v.details.Close()
	})
}
