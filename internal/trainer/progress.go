package trainer

import "github.com/cozy-creator/xray-classifier/internal/artifact"

// Progress observes a training run. Calls come from the training goroutine.
type Progress interface {
	Decoded(done, total int)
	Start(epochs, batchesPerEpoch int)
	Batch(epoch, batch int, loss, accuracy float64)
	Epoch(m artifact.EpochMetrics)
	Finish(err error)
}

type nopProgress struct{}

func (nopProgress) Decoded(int, int)                 {}
func (nopProgress) Start(int, int)                   {}
func (nopProgress) Batch(int, int, float64, float64) {}
func (nopProgress) Epoch(artifact.EpochMetrics)      {}
func (nopProgress) Finish(error)                     {}
