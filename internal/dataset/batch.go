package dataset

import (
	"image"
	"math/rand"

	"github.com/cozy-creator/xray-classifier/internal/augment"
	"github.com/cozy-creator/xray-classifier/internal/nn"
	"github.com/cozy-creator/xray-classifier/internal/utils/imageutil"
)

// ShuffleOrder returns a permutation of 0..n-1 produced by a streaming
// shuffle buffer of the given size: the buffer is filled in order and each
// output is a uniformly chosen buffer slot, refilled from the stream. A
// buffer of at least n is a full uniform shuffle.
func ShuffleOrder(n, bufferSize int, rng *rand.Rand) []int {
	if bufferSize < 1 {
		bufferSize = 1
	}
	order := make([]int, 0, n)
	buf := make([]int, 0, bufferSize)
	next := 0
	for next < n && len(buf) < bufferSize {
		buf = append(buf, next)
		next++
	}
	for len(buf) > 0 {
		i := rng.Intn(len(buf))
		order = append(order, buf[i])
		if next < n {
			buf[i] = next
			next++
		} else {
			buf[i] = buf[len(buf)-1]
			buf = buf[:len(buf)-1]
		}
	}
	return order
}

type Batch struct {
	X      *nn.Tensor
	Labels []int
}

// Batcher cuts the images selected by order into batches of size; the last
// one may be smaller. Batches are materialized on demand. With a non-nil
// augmenter, Batch must be called in index order for reproducible output.
type Batcher struct {
	images []*image.RGBA
	labels []int
	order  []int
	size   int
	aug    *augment.Augmenter
}

func NewBatcher(images []*image.RGBA, labels []int, order []int, size int, aug *augment.Augmenter) *Batcher {
	if size < 1 {
		size = 1
	}
	return &Batcher{images: images, labels: labels, order: order, size: size, aug: aug}
}

// Len is the number of batches.
func (b *Batcher) Len() int {
	return (len(b.order) + b.size - 1) / b.size
}

func (b *Batcher) Batch(i int) Batch {
	start := i * b.size
	end := start + b.size
	if end > len(b.order) {
		end = len(b.order)
	}

	bounds := b.images[b.order[start]].Bounds()
	h, w := bounds.Dy(), bounds.Dx()
	per := h * w * 3

	x := nn.NewTensor(end-start, h, w, 3)
	ys := make([]int, end-start)
	for j, idx := range b.order[start:end] {
		img := b.images[idx]
		if b.aug != nil {
			img = b.aug.Apply(img)
		}
		imageutil.ToTensor(img, x.Data[j*per:(j+1)*per])
		ys[j] = b.labels[idx]
	}
	return Batch{X: x, Labels: ys}
}

// Sequential returns 0..n-1.
func Sequential(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

func Labels(samples []Sample) []int {
	labels := make([]int, len(samples))
	for i, s := range samples {
		labels[i] = s.Label
	}
	return labels
}
