package cmd

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"

	"github.com/cozy-creator/xray-classifier/internal/artifact"
)

// barProgress renders decoding and training progress with mpb.
type barProgress struct {
	mu     sync.Mutex
	p      *mpb.Progress
	decode *mpb.Bar
	train  *mpb.Bar
	epochs int
	epoch  int
	loss   float64
	acc    float64
	val    string
}

func newBarProgress(w io.Writer) *barProgress {
	return &barProgress{
		p: mpb.New(
			mpb.WithOutput(w),
			mpb.WithWidth(40),
			mpb.WithRefreshRate(180*time.Millisecond),
		),
	}
}

func (b *barProgress) Decoded(done, total int) {
	if b.decode == nil {
		b.decode = b.p.AddBar(int64(total),
			mpb.PrependDecorators(
				decor.Name("decoding "),
				decor.CountersNoUnit("%d / %d"),
			),
			mpb.AppendDecorators(
				decor.OnComplete(decor.Percentage(), "done"),
			),
		)
	}
	b.decode.SetCurrent(int64(done))
}

func (b *barProgress) Start(epochs, batchesPerEpoch int) {
	b.mu.Lock()
	b.epochs = epochs
	b.epoch = 1
	b.mu.Unlock()
	b.train = b.p.AddBar(int64(epochs*batchesPerEpoch),
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string {
				b.mu.Lock()
				defer b.mu.Unlock()
				return fmt.Sprintf("epoch %d/%d ", b.epoch, b.epochs)
			}),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Any(func(decor.Statistics) string {
				b.mu.Lock()
				defer b.mu.Unlock()
				return fmt.Sprintf("loss %.4f acc %.4f%s", b.loss, b.acc, b.val)
			}),
			decor.Name(" "),
			decor.AverageETA(decor.ET_STYLE_GO),
		),
	)
}

func (b *barProgress) Batch(epoch, batch int, loss, accuracy float64) {
	b.mu.Lock()
	b.epoch, b.loss, b.acc = epoch, loss, accuracy
	b.mu.Unlock()
	if b.train != nil {
		b.train.Increment()
	}
}

func (b *barProgress) Epoch(m artifact.EpochMetrics) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loss, b.acc = m.Loss, m.Accuracy
	if m.HasValidation {
		b.val = fmt.Sprintf(" val_loss %.4f val_acc %.4f", m.ValLoss, m.ValAccuracy)
	}
}

func (b *barProgress) Finish(err error) {
	for _, bar := range []*mpb.Bar{b.decode, b.train} {
		if bar != nil && !bar.Completed() {
			bar.Abort(false)
		}
	}
	b.p.Wait()
}
