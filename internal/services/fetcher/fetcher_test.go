package fetcher

import (
	"bytes"
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cozy-creator/xray-classifier/internal/artifact"
	"github.com/cozy-creator/xray-classifier/internal/errdefs"
	"github.com/cozy-creator/xray-classifier/internal/nn"
)

func encodedArtifact(t *testing.T) (*artifact.Artifact, []byte) {
	t.Helper()
	m := nn.NewSequential(nn.Shape{4, 4, 3},
		nn.NewRescaling(1.0/255, 0),
		nn.NewFlatten(),
		nn.NewDense(2, nn.ActivationSoftmax),
	)
	require.NoError(t, m.Build(rand.New(rand.NewSource(7))))
	a := artifact.New(m, []string{"NORMAL", "PNEUMONIA"})

	var buf bytes.Buffer
	require.NoError(t, artifact.Encode(&buf, a))
	return a, buf.Bytes()
}

func serve(t *testing.T, payload []byte, ranges *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "" && ranges != nil {
			ranges.Add(1)
		}
		http.ServeContent(w, r, "model.xcls", time.Time{}, bytes.NewReader(payload))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestFetcher() *Fetcher {
	return New(WithOutput(nil), WithRetry(10*time.Millisecond, time.Second))
}

func TestFetchDownloadsAndVerifies(t *testing.T) {
	want, payload := encodedArtifact(t)
	srv := serve(t, payload, nil)

	dest := filepath.Join(t.TempDir(), "models", "model.xcls")
	got, err := newTestFetcher().Fetch(context.Background(), srv.URL+"/model.xcls", dest)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Checksum, got.Checksum)

	onDisk, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, onDisk)
	assert.NoFileExists(t, dest+".tmp")
}

func TestFetchResumesPartialDownload(t *testing.T) {
	_, payload := encodedArtifact(t)
	var ranges atomic.Int32
	srv := serve(t, payload, &ranges)

	dest := filepath.Join(t.TempDir(), "model.xcls")
	require.NoError(t, os.WriteFile(dest+".tmp", payload[:len(payload)/2], 0o644))

	_, err := newTestFetcher().Fetch(context.Background(), srv.URL, dest)
	require.NoError(t, err)
	assert.Equal(t, int32(1), ranges.Load())

	onDisk, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, onDisk)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	_, payload := encodedArtifact(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		http.ServeContent(w, r, "model.xcls", time.Time{}, bytes.NewReader(payload))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "model.xcls")
	_, err := newTestFetcher().Fetch(context.Background(), srv.URL, dest)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "model.xcls")
	_, err := newTestFetcher().Fetch(context.Background(), srv.URL, dest)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.NoFileExists(t, dest)
}

func TestFetchRejectsInvalidArtifact(t *testing.T) {
	srv := serve(t, []byte("definitely not an artifact"), nil)

	dir := t.TempDir()
	dest := filepath.Join(dir, "model.xcls")
	require.NoError(t, os.WriteFile(dest, []byte("previous"), 0o644))

	_, err := newTestFetcher().Fetch(context.Background(), srv.URL, dest)
	assert.ErrorIs(t, err, errdefs.ErrArtifactFormat)

	onDisk, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []byte("previous"), onDisk)
	assert.NoFileExists(t, dest+".tmp")
}

func TestFetchHonoursCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(WithOutput(nil)).Fetch(ctx, srv.URL, filepath.Join(t.TempDir(), "model.xcls"))
	assert.ErrorIs(t, err, context.Canceled)
}
