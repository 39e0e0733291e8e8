package tracker

import (
	"context"
	"fmt"
	"sync"

	"imagedash/internal/domain"
	"imagedash/internal/infra"
	"imagedash/internal/jobservice"
	"imagedash/internal/storage"
)

// StatusFetcher performs the one-shot GET /status/{id}.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, jobID string) (*jobservice.StatusResponse, error)
}

// BlobStore materializes binary payloads behind local URLs.
type BlobStore interface {
	Put(ctx context.Context, data []byte, contentType string) (storage.Blob, error)
	Revoke(key string) error
}

// DetailResult is the authoritative status of one job plus its result image,
// when the Job Service returned one. ImageURL is empty otherwise.
type DetailResult struct {
	JobID    string
	Status   domain.JobStatus
	ImageURL string
}

// DetailFetcher runs on-demand detail requests. Each new result supersedes the
// previous one and the previously materialized image is revoked.
type DetailFetcher struct {
	fetcher StatusFetcher
	blobs   BlobStore
	logger  infra.Logger

	mu      sync.Mutex
	lastKey string
	closed  bool
}

func NewDetailFetcher(fetcher StatusFetcher, blobs BlobStore, logger *infra.Logger) *DetailFetcher {
	return &DetailFetcher{fetcher: fetcher, blobs: blobs, logger: infra.LoggerOrNop(logger)}
}

// FetchDetail always goes to the Job Service; nothing is cached or retried.
// Failures wrap domain.ErrStatusFetch and leave the previous result alive.
func (d *DetailFetcher) FetchDetail(ctx context.Context, jobID string) (DetailResult, error) {
	resp, err := d.fetcher.FetchStatus(ctx, jobID)
	if err != nil {
		return DetailResult{}, err
	}
	result := DetailResult{JobID: jobID, Status: resp.Status}

	var key string
	if resp.IsImage() {
		blob, err := d.blobs.Put(ctx, resp.Body, resp.ContentType)
		if err != nil {
			return DetailResult{}, fmt.Errorf("tracker: materialize image for %s: %w: %w", jobID, domain.ErrStatusFetch, err)
		}
		key = blob.Key
		result.ImageURL = blob.URL
	}
	if !d.supersede(key) {
		return DetailResult{}, fmt.Errorf("tracker: detail for %s finished after close: %w", jobID, domain.ErrStatusFetch)
	}

	d.logger.Debug().
		Str("job_id", jobID).
		Str("status", string(result.Status)).
		Bool("image", result.ImageURL != "").
		Msg("tracker: detail fetched")
	return result, nil
}

// supersede installs key as the current image and revokes the previous one.
// After Close nothing is installed: key itself is revoked and false returned.
func (d *DetailFetcher) supersede(key string) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.revoke(key)
		return false
	}
	prev := d.lastKey
	d.lastKey = key
	d.mu.Unlock()
	d.revoke(prev)
	return true
}

func (d *DetailFetcher) revoke(key string) {
	if key == "" {
		return
	}
	if err := d.blobs.Revoke(key); err != nil {
		d.logger.Warn().Err(err).Str("key", key).Msg("tracker: revoke image")
	}
}

// Close revokes the image of the current result. Fetches still in flight
// when Close runs have their images revoked as soon as they land.
func (d *DetailFetcher) Close() {
	d.mu.Lock()
	d.closed = true
	prev := d.lastKey
	d.lastKey = ""
	d.mu.Unlock()
	d.revoke(prev)
}
