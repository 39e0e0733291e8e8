package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagedash/internal/auth"
	"imagedash/internal/dashboard"
	"imagedash/internal/events"
	"imagedash/internal/http/handlers"
	"imagedash/internal/jobservice"
	"imagedash/internal/storage"
	"imagedash/internal/tracker"
	"imagedash/internal/transport"
)

type jobServiceStub struct {
	mu         sync.Mutex
	queue      []map[string]string
	failQueues bool
	generated  int
	auth       []string
}

func (s *jobServiceStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /queues", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.auth = append(s.auth, r.Header.Get("Authorization"))
		if s.failQueues {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(s.queue)
	})
	mux.HandleFunc("GET /status/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "done":
			w.Header().Set(jobservice.MetadataHeader, `{"status":"COMPLETED"}`)
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("\x89PNG\r\n\x1a\nfake"))
		case "failed":
			w.Header().Set(jobservice.MetadataHeader, `{"status":"FAILED"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"job not found"}`))
		}
	})
	mux.HandleFunc("POST /generate", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if r.FormValue("prompt") == "reject" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"detail":"prompt rejected"}`))
			return
		}
		s.generated++
		s.queue = append(s.queue, map[string]string{
			"s3_object_id": "job-new",
			"status":       "QUEUED",
			"created_on":   "2025-03-01 10:00:00",
		})
		_ = json.NewEncoder(w).Encode(map[string]string{"job_id": "job-new"})
	})
	return mux
}

type idleChannel struct{}

func (idleChannel) Close() {}

type fixture struct {
	server  *httptest.Server
	stub    *jobServiceStub
	session *auth.Session
	dash    *dashboard.Dashboard
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	stub := &jobServiceStub{queue: []map[string]string{
		{"s3_object_id": "a", "status": "PROCESSING", "created_on": "2025-03-01 09:00:00"},
		{"s3_object_id": "b", "status": "COMPLETED", "created_on": "2025-03-01 08:00:00"},
	}}
	upstream := httptest.NewServer(stub.handler())
	t.Cleanup(upstream.Close)

	session := auth.NewSession()
	client, err := jobservice.NewClient(jobservice.Options{BaseURL: upstream.URL, Tokens: session, MaxUploadBytes: 1024})
	require.NoError(t, err)
	blobs, err := storage.NewBlobStore(t.TempDir(), "/blobs")
	require.NoError(t, err)
	bus := events.NewBus(nil)

	dash := dashboard.New(dashboard.Deps{
		Jobs: client,
		Opener: tracker.OpenerFunc(func(jobID, token string, h transport.Handlers) tracker.Channel {
			return idleChannel{}
		}),
		Tokens: session,
		Blobs:  blobs,
		Bus:    bus,
	}, session)
	t.Cleanup(dash.Close)

	app := handlers.NewApp(handlers.Options{
		Dashboard:      dash,
		Session:        session,
		Bus:            bus,
		Blobs:          blobs,
		MaxUploadBytes: 1024,
	})
	srv := httptest.NewServer(NewRouter(app, RouterOptions{Logger: zerolog.Nop(), DefaultLocale: "en"}))
	t.Cleanup(srv.Close)
	return &fixture{server: srv, stub: stub, session: session, dash: dash}
}

func (f *fixture) do(t *testing.T, method, path string, body io.Reader, header http.Header) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, body)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (f *fixture) login(t *testing.T, token string) {
	t.Helper()
	resp, _ := f.do(t, http.MethodPut, "/api/session", strings.NewReader(`{"access_token":"`+token+`"}`), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func multipartBody(t *testing.T, prompt string, image []byte) (io.Reader, http.Header) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if prompt != "" {
		require.NoError(t, mw.WriteField("prompt", prompt))
	}
	if image != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="in.png"`)
		h.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, http.Header{"Content-Type": {mw.FormDataContentType()}}
}

func mintToken(t *testing.T, sub string) string {
	t.Helper()
	token, err := auth.SignToken("secret", auth.TokenClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: sub, Audience: jwt.ClaimStrings{"authenticated"}}})
	require.NoError(t, err)
	return token
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/v1/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestOpenAPIDocument(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/v1/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var doc struct {
		Paths map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Contains(t, doc.Paths, "/api/jobs/{id}/detail")
	assert.Contains(t, doc.Paths, "/api/generate")

	resp, _ = f.do(t, http.MethodGet, "/v1/docs", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestJobsRequireSession(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodGet, "/api/jobs", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, f.stub.auth)
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	token := mintToken(t, "user-1")

	resp, body := f.do(t, http.MethodPut, "/api/session", strings.NewReader(`{"access_token":"`+token+`"}`), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"user":"user-1","logged_in":true}`, string(body))

	resp, body = f.do(t, http.MethodGet, "/api/session", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"user":"user-1","logged_in":true}`, string(body))

	resp, _ = f.do(t, http.MethodDelete, "/api/session", nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.False(t, f.session.Current().LoggedIn())
}

func TestSessionRejectsEmptyToken(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPut, "/api/session", strings.NewReader(`{"access_token":""}`), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "access_token is required")
}

func TestRefreshListsAndSubscribes(t *testing.T) {
	f := newFixture(t)
	token := mintToken(t, "user-1")
	f.login(t, token)

	resp, body := f.do(t, http.MethodPost, "/api/jobs/refresh", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		Jobs []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"jobs"`
		Subscribed []string `json:"subscribed"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got.Jobs, 2)
	assert.Equal(t, "a", got.Jobs[0].ID)
	assert.Equal(t, "PROCESSING", got.Jobs[0].Status)
	assert.Equal(t, []string{"a"}, got.Subscribed)

	f.stub.mu.Lock()
	defer f.stub.mu.Unlock()
	require.NotEmpty(t, f.stub.auth)
	assert.Equal(t, "Bearer "+token, f.stub.auth[len(f.stub.auth)-1])
}

func TestRefreshFailureIsLocalizedNotice(t *testing.T) {
	f := newFixture(t)
	f.login(t, mintToken(t, "user-1"))
	f.stub.mu.Lock()
	f.stub.failQueues = true
	f.stub.mu.Unlock()

	resp, body := f.do(t, http.MethodPost, "/api/jobs/refresh", nil, nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, string(body), "Error fetching queues")

	resp, body = f.do(t, http.MethodPost, "/api/jobs/refresh", nil, http.Header{"Accept-Language": {"id-ID"}})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, string(body), "Gagal mengambil antrean")
}

func TestDetailServesMaterializedImage(t *testing.T) {
	f := newFixture(t)
	f.login(t, mintToken(t, "user-1"))

	resp, body := f.do(t, http.MethodGet, "/api/jobs/done/detail", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var detail struct {
		ID       string  `json:"id"`
		Status   string  `json:"status"`
		ImageURL *string `json:"image_url"`
	}
	require.NoError(t, json.Unmarshal(body, &detail))
	assert.Equal(t, "COMPLETED", detail.Status)
	require.NotNil(t, detail.ImageURL)

	resp, img := f.do(t, http.MethodGet, *detail.ImageURL, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "\x89PNG\r\n\x1a\nfake", string(img))

	// A new detail result revokes the previous image.
	resp, body = f.do(t, http.MethodGet, "/api/jobs/failed/detail", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"id":"failed","status":"FAILED","image_url":null}`, string(body))

	resp, _ = f.do(t, http.MethodGet, *detail.ImageURL, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDetailFailureCarriesDetail(t *testing.T) {
	f := newFixture(t)
	f.login(t, mintToken(t, "user-1"))

	resp, body := f.do(t, http.MethodGet, "/api/jobs/missing/detail", nil, nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, string(body), "Error checking status: job not found")
}

func TestGenerateValidatesBeforeSubmitting(t *testing.T) {
	f := newFixture(t)
	f.login(t, mintToken(t, "user-1"))

	body, header := multipartBody(t, "a cat", nil)
	resp, data := f.do(t, http.MethodPost, "/api/generate", body, header)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(data), "Please select an image")

	body, header = multipartBody(t, "", []byte{1, 2, 3})
	resp, data = f.do(t, http.MethodPost, "/api/generate", body, header)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(data), "Please enter a prompt")

	body, header = multipartBody(t, "a cat", bytes.Repeat([]byte{1}, 2048))
	resp, _ = f.do(t, http.MethodPost, "/api/generate", body, header)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	f.stub.mu.Lock()
	defer f.stub.mu.Unlock()
	assert.Zero(t, f.stub.generated)
}

func TestGenerateSubmitsAndReloads(t *testing.T) {
	f := newFixture(t)
	f.login(t, mintToken(t, "user-1"))

	body, header := multipartBody(t, "a cat", []byte{1, 2, 3})
	resp, data := f.do(t, http.MethodPost, "/api/generate", body, header)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.JSONEq(t, `{"job_id":"job-new"}`, string(data))

	ids := make([]string, 0)
	for _, job := range f.dash.View().Jobs() {
		ids = append(ids, job.ID)
	}
	assert.Contains(t, ids, "job-new")
	assert.Contains(t, f.dash.View().Subscribed(), "job-new")
}

func TestGenerateRejectionShowsDetail(t *testing.T) {
	f := newFixture(t)
	f.login(t, mintToken(t, "user-1"))

	body, header := multipartBody(t, "reject", []byte{1})
	resp, data := f.do(t, http.MethodPost, "/api/generate", body, header)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, string(data), "Upload failed: prompt rejected")
}

func TestUnknownBlobIsNotFound(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodGet, "/blobs/nope.png", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEventsStreamStatusUpdates(t *testing.T) {
	f := newFixture(t)
	f.login(t, mintToken(t, "user-1"))

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	go func() {
		if r, err := http.Post(f.server.URL+"/api/jobs/refresh", "application/json", nil); err == nil {
			r.Body.Close()
		}
	}()

	buf := make([]byte, 512)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "event: jobs")
}
