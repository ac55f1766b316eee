package dataset

import (
	"context"
	"image"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/nfnt/resize"
	"go.uber.org/zap"

	"github.com/cozy-creator/xray-classifier/internal/errdefs"
	"github.com/cozy-creator/xray-classifier/internal/utils/imageutil"
)

// Loader decodes and resizes samples on a worker pool. Results keep the
// order of the input regardless of which worker finished first.
type Loader struct {
	width, height int
	interp        resize.InterpolationFunction
	workers       int
	logger        *zap.Logger
	onDecoded     func(done, total int)
}

type LoaderOption func(*Loader)

func WithLogger(l *zap.Logger) LoaderOption {
	return func(ld *Loader) { ld.logger = l }
}

// WithProgress is called after every decoded image. Calls are serialized.
func WithProgress(fn func(done, total int)) LoaderOption {
	return func(ld *Loader) { ld.onDecoded = fn }
}

func NewLoader(width, height int, interp resize.InterpolationFunction, workers int, opts ...LoaderOption) *Loader {
	if workers < 1 {
		workers = 1
	}
	l := &Loader{
		width:   width,
		height:  height,
		interp:  interp,
		workers: workers,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load decodes every sample. The first failure in sample order is returned
// as a CorruptImageError.
func (l *Loader) Load(ctx context.Context, samples []Sample) ([]*image.RGBA, error) {
	images := make([]*image.RGBA, len(samples))
	errs := make([]error, len(samples))

	var (
		mu   sync.Mutex
		done int
	)
	wp := workerpool.New(l.workers)
	for i, s := range samples {
		i, s := i, s
		wp.Submit(func() {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			img, err := imageutil.LoadFile(s.Path, l.width, l.height, l.interp)
			if err != nil {
				errs[i] = &errdefs.CorruptImageError{Path: s.Path, Err: err}
				return
			}
			images[i] = img
			if l.onDecoded != nil {
				mu.Lock()
				done++
				l.onDecoded(done, len(samples))
				mu.Unlock()
			}
		})
	}
	wp.StopWait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, err := range errs {
		if err != nil {
			l.logger.Error("failed to decode image", zap.Error(err))
			return nil, err
		}
	}

	l.logger.Debug("decoded images", zap.Int("count", len(images)), zap.Int("workers", l.workers))
	return images, nil
}
