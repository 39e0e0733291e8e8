package jobservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"imagedash/internal/domain"
	"imagedash/internal/infra"
)

// MetadataHeader carries the job status on /status responses regardless of body type.
const MetadataHeader = "X-Image-Metadata"

// DefaultMaxUploadBytes is the client-side cap on submitted images.
const DefaultMaxUploadBytes int64 = 5 * 1024 * 1024

// TokenSource yields the bearer token to attach to the next request.
type TokenSource interface {
	AccessToken() string
}

// Options configures the Job Service client.
type Options struct {
	BaseURL        string
	Tokens         TokenSource
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
	MaxUploadBytes int64
}

// Client talks to the Job Service REST surface.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	logger     infra.Logger
	maxUpload  int64
	validate   *validator.Validate
}

// HTTPError is a non-2xx answer from the Job Service. It unwraps to the
// sentinel of the failing operation (domain.ErrFetch, domain.ErrStatusFetch
// or domain.ErrSubmit).
type HTTPError struct {
	Op         string
	StatusCode int
	Detail     string
	kind       error
}

func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("jobservice: %s: status %d: %s", e.Op, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("jobservice: %s: status %d", e.Op, e.StatusCode)
}

func (e *HTTPError) Unwrap() error { return e.kind }

type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("jobservice: base url is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("jobservice: invalid base url %q", opts.BaseURL)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	return &Client{
		baseURL:    baseURL,
		tokens:     opts.Tokens,
		httpClient: httpClient,
		logger:     infra.LoggerOrNop(opts.Logger),
		maxUpload:  maxUpload,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

// BaseURL returns the normalized Job Service base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// MaxUploadBytes returns the client-side image size cap.
func (c *Client) MaxUploadBytes() int64 {
	return c.maxUpload
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	// Read at call time: the token may rotate between requests.
	if c.tokens != nil {
		if token := c.tokens.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

type queueItem struct {
	S3ObjectID string `json:"s3_object_id"`
	Status     string `json:"status"`
	CreatedOn  string `json:"created_on"`
}

// ListJobs fetches the ordered job list. Every failure wraps domain.ErrFetch.
func (c *Client) ListJobs(ctx context.Context) ([]domain.Job, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/queues", nil)
	if err != nil {
		return nil, fmt.Errorf("jobservice: build list request: %w: %w", domain.ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jobservice: list jobs: %w: %w", domain.ErrFetch, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("jobservice: read list response: %w: %w", domain.ErrFetch, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newHTTPError("list jobs", resp.StatusCode, raw, domain.ErrFetch)
	}

	var items []queueItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("jobservice: decode list response: %w: %w", domain.ErrFetch, err)
	}
	jobs := make([]domain.Job, 0, len(items))
	for _, item := range items {
		created, err := ParseCreatedOn(item.CreatedOn)
		if err != nil {
			c.logger.Warn().Err(err).Str("job_id", item.S3ObjectID).Msg("jobservice: keeping job without creation time")
		}
		jobs = append(jobs, domain.Job{
			ID:        item.S3ObjectID,
			Status:    domain.ParseStatus(item.Status),
			CreatedAt: created,
		})
	}
	c.logger.Debug().Int("count", len(jobs)).Msg("jobservice: listed jobs")
	return jobs, nil
}

var createdOnLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
}

// ParseCreatedOn accepts the timestamp formats the Job Service has emitted.
// Zone-less values are taken as UTC.
func ParseCreatedOn(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range createdOnLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized created_on %q", raw)
}

// StatusResponse is the decoded answer of GET /status/{id}.
type StatusResponse struct {
	Status      domain.JobStatus
	ContentType string
	Body        []byte
}

// IsImage reports whether the body is image content.
func (r *StatusResponse) IsImage() bool {
	if r == nil || len(r.Body) == 0 {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(r.ContentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/")
}

// FetchStatus performs one authenticated GET /status/{id}. Non-2xx answers
// wrap domain.ErrStatusFetch and drop any metadata that came with them.
func (c *Client) FetchStatus(ctx context.Context, jobID string) (*StatusResponse, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, fmt.Errorf("jobservice: job id is required: %w", domain.ErrStatusFetch)
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/status/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("jobservice: build status request: %w: %w", domain.ErrStatusFetch, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jobservice: fetch status: %w: %w", domain.ErrStatusFetch, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("jobservice: read status response: %w: %w", domain.ErrStatusFetch, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newHTTPError("fetch status", resp.StatusCode, raw, domain.ErrStatusFetch)
	}

	out := &StatusResponse{
		Status:      ParseMetadata(resp.Header.Get(MetadataHeader)),
		ContentType: resp.Header.Get("Content-Type"),
		Body:        raw,
	}
	c.logger.Debug().
		Str("job_id", jobID).
		Str("status", string(out.Status)).
		Str("content_type", out.ContentType).
		Int("bytes", len(raw)).
		Msg("jobservice: fetched status")
	return out, nil
}

// ParseMetadata reads the status from the X-Image-Metadata JSON value.
// Absent or unparsable metadata yields UNKNOWN.
func ParseMetadata(header string) domain.JobStatus {
	header = strings.TrimSpace(header)
	if header == "" {
		return domain.JobStatusUnknown
	}
	var meta struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(header), &meta); err != nil {
		return domain.JobStatusUnknown
	}
	return domain.ParseStatus(meta.Status)
}

func newHTTPError(op string, status int, body []byte, kind error) *HTTPError {
	return &HTTPError{Op: op, StatusCode: status, Detail: extractDetail(body), kind: kind}
}

// extractDetail pulls the {detail} message out of an error body. Non-string
// details (validation lists) are returned as compact JSON.
func extractDetail(body []byte) string {
	var decoded errorResponse
	if err := json.Unmarshal(body, &decoded); err != nil || len(decoded.Detail) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(decoded.Detail, &text); err == nil {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(string(decoded.Detail))
}
