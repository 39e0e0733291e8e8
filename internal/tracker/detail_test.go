package tracker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagedash/internal/domain"
	"imagedash/internal/jobservice"
	"imagedash/internal/storage"
)

func newDetailFixture(t *testing.T, handler http.HandlerFunc) (*DetailFetcher, *storage.BlobStore, *atomic.Int32) {
	t.Helper()
	hits := &atomic.Int32{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(ts.Close)

	client, err := jobservice.NewClient(jobservice.Options{BaseURL: ts.URL})
	require.NoError(t, err)
	blobs, err := storage.NewBlobStore(t.TempDir(), "/blobs")
	require.NoError(t, err)
	return NewDetailFetcher(client, blobs, nil), blobs, hits
}

func TestFetchDetailFailedWithoutImage(t *testing.T) {
	fetcher, _, _ := newDetailFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(jobservice.MetadataHeader, `{"status":"FAILED"}`)
		w.WriteHeader(http.StatusOK)
	})

	got, err := fetcher.FetchDetail(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, DetailResult{JobID: "x", Status: domain.JobStatusFailed}, got)
}

func TestFetchDetailMissingMetadataIsUnknown(t *testing.T) {
	fetcher, _, _ := newDetailFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})

	got, err := fetcher.FetchDetail(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusUnknown, got.Status)
	assert.Empty(t, got.ImageURL)
}

func TestFetchDetailMaterializesImage(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	fetcher, blobs, _ := newDetailFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(jobservice.MetadataHeader, `{"status":"COMPLETED"}`)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	})

	got, err := fetcher.FetchDetail(context.Background(), "done")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	require.NotEmpty(t, got.ImageURL)

	path, err := blobs.Path(blobs.KeyFromURL(got.ImageURL))
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, png, data)
}

func TestFetchDetailRevokesSupersededImage(t *testing.T) {
	fetcher, blobs, _ := newDetailFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(jobservice.MetadataHeader, `{"status":"COMPLETED"}`)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("img"))
	})

	first, err := fetcher.FetchDetail(context.Background(), "a")
	require.NoError(t, err)
	second, err := fetcher.FetchDetail(context.Background(), "a")
	require.NoError(t, err)
	assert.NotEqual(t, first.ImageURL, second.ImageURL, "every call re-fetches and re-materializes")

	_, err = blobs.Path(blobs.KeyFromURL(first.ImageURL))
	assert.ErrorIs(t, err, storage.ErrBlobNotFound)
	_, err = blobs.Path(blobs.KeyFromURL(second.ImageURL))
	assert.NoError(t, err)

	fetcher.Close()
	_, err = blobs.Path(blobs.KeyFromURL(second.ImageURL))
	assert.ErrorIs(t, err, storage.ErrBlobNotFound)
}

func TestFetchDetailErrorKeepsPreviousImage(t *testing.T) {
	var fail atomic.Bool
	fetcher, blobs, hits := newDetailFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.Header().Set(jobservice.MetadataHeader, `{"status":"PROCESSING"}`)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set(jobservice.MetadataHeader, `{"status":"COMPLETED"}`)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("img"))
	})

	ok, err := fetcher.FetchDetail(context.Background(), "a")
	require.NoError(t, err)

	fail.Store(true)
	got, err := fetcher.FetchDetail(context.Background(), "a")
	assert.ErrorIs(t, err, domain.ErrStatusFetch)
	assert.Equal(t, DetailResult{}, got, "partial header data is discarded")
	assert.Equal(t, int32(2), hits.Load())

	_, err = blobs.Path(blobs.KeyFromURL(ok.ImageURL))
	assert.NoError(t, err)
}

func TestFetchDetailAfterCloseLeavesNoImage(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.Header().Set(jobservice.MetadataHeader, `{"status":"COMPLETED"}`)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("img"))
	}))
	t.Cleanup(ts.Close)

	client, err := jobservice.NewClient(jobservice.Options{BaseURL: ts.URL})
	require.NoError(t, err)
	dir := t.TempDir()
	blobs, err := storage.NewBlobStore(dir, "/blobs")
	require.NoError(t, err)
	fetcher := NewDetailFetcher(client, blobs, nil)

	type outcome struct {
		res DetailResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := fetcher.FetchDetail(context.Background(), "late")
		done <- outcome{res, err}
	}()

	<-entered
	fetcher.Close()
	close(release)

	got := <-done
	assert.ErrorIs(t, got.err, domain.ErrStatusFetch)
	assert.Empty(t, got.res.ImageURL)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "image fetched after close must not stay on disk")
}
