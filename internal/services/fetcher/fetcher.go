// Package fetcher downloads a trained artifact over HTTP, resuming partial
// downloads and verifying the result before it replaces anything on disk.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
	"go.uber.org/zap"

	"github.com/cozy-creator/xray-classifier/internal/artifact"
)

var ErrSizeMismatch = errors.New("downloaded size does not match content length")

type Fetcher struct {
	client         *http.Client
	logger         *zap.Logger
	output         io.Writer
	maxElapsedTime time.Duration
	initialBackoff time.Duration
}

type Option func(*Fetcher)

func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// WithOutput sets where the progress bar is drawn. A nil writer disables it.
func WithOutput(w io.Writer) Option {
	return func(f *Fetcher) { f.output = w }
}

func WithRetry(initial, maxElapsed time.Duration) Option {
	return func(f *Fetcher) {
		f.initialBackoff = initial
		f.maxElapsedTime = maxElapsed
	}
}

func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:         http.DefaultClient,
		logger:         zap.NewNop(),
		output:         os.Stderr,
		maxElapsedTime: 5 * time.Minute,
		initialBackoff: time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads url into destPath. Bytes land in destPath+".tmp" first; a
// retry continues from whatever the temp file already holds. The artifact is
// decoded and validated before the rename, so a bad download never replaces
// an existing artifact.
func (f *Fetcher) Fetch(ctx context.Context, url, destPath string) (*artifact.Artifact, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	tmpPath := destPath + ".tmp"

	var progress *mpb.Progress
	if f.output != nil {
		progress = mpb.NewWithContext(ctx,
			mpb.WithOutput(f.output),
			mpb.WithWidth(60),
			mpb.WithRefreshRate(180*time.Millisecond),
		)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = f.maxElapsedTime
	b.InitialInterval = f.initialBackoff
	b.MaxInterval = 30 * time.Second

	attempt := 0
	operation := func() error {
		attempt++
		err := f.downloadWithResume(ctx, url, tmpPath, filepath.Base(destPath), progress)
		if err != nil {
			f.logger.Warn("download attempt failed",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))
	if progress != nil {
		progress.Wait()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}

	a, err := artifact.Load(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return nil, err
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return nil, fmt.Errorf("failed to move artifact into place: %w", err)
	}

	f.logger.Info("artifact fetched",
		zap.String("url", url),
		zap.String("path", destPath),
		zap.String("artifact_id", a.ID),
	)
	return a, nil
}

func (f *Fetcher) downloadWithResume(ctx context.Context, url, tmpPath, name string, progress *mpb.Progress) error {
	var initialSize int64
	if info, err := os.Stat(tmpPath); err == nil {
		initialSize = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	if initialSize > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", initialSize))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	var totalSize int64
	switch {
	case resp.StatusCode == http.StatusPartialContent:
		flags |= os.O_APPEND
		totalSize = initialSize + resp.ContentLength
	case resp.StatusCode == http.StatusOK:
		// server ignored the range; start over
		flags |= os.O_TRUNC
		initialSize = 0
		totalSize = resp.ContentLength
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		// the temp file is stale or already complete; drop it and retry clean
		os.Remove(tmpPath)
		return fmt.Errorf("range not satisfiable at offset %d", initialSize)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return backoff.Permanent(fmt.Errorf("bad status: %s", resp.Status))
	default:
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	file, err := os.OpenFile(tmpPath, flags, 0o644)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to open file: %w", err))
	}
	defer file.Close()

	body := io.Reader(resp.Body)
	if progress != nil && totalSize > 0 {
		bar := progress.AddBar(totalSize,
			mpb.PrependDecorators(
				decor.Name(name+" "),
				decor.CountersKibiByte("% .2f / % .2f"),
			),
			mpb.AppendDecorators(
				decor.EwmaETA(decor.ET_STYLE_GO, 90),
				decor.Name(" ] "),
				decor.EwmaSpeed(decor.UnitKiB, "% .2f", 60),
			),
		)
		bar.SetCurrent(initialSize)
		proxy := bar.ProxyReader(resp.Body)
		defer proxy.Close()
		body = proxy
		defer func() {
			if !bar.Completed() {
				bar.Abort(true)
			}
		}()
	}

	written, err := io.Copy(file, body)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return fmt.Errorf("download interrupted after %d bytes: %w", initialSize+written, err)
	}

	if totalSize > 0 && initialSize+written != totalSize {
		return fmt.Errorf("%w: got %d, want %d", ErrSizeMismatch, initialSize+written, totalSize)
	}

	return file.Sync()
}
