package nn

import (
	"fmt"
	"math"
)

// Epsilon bounds probabilities away from 0 and 1 before taking logs.
const Epsilon = 1e-7

func checkLabels(probs *Tensor, labels []int) error {
	if len(probs.Shape) != 2 {
		return fmt.Errorf("expected (batch, classes) probabilities, got %v", probs.Shape)
	}
	if probs.Batch() != len(labels) {
		return fmt.Errorf("batch of %d predictions but %d labels", probs.Batch(), len(labels))
	}
	classes := probs.Shape[1]
	for _, y := range labels {
		if y < 0 || y >= classes {
			return fmt.Errorf("label %d out of range for %d classes", y, classes)
		}
	}
	return nil
}

// SparseCategoricalCrossentropy is the mean of -log p[y] over the batch,
// with p clipped to [Epsilon, 1-Epsilon].
func SparseCategoricalCrossentropy(probs *Tensor, labels []int) (float64, error) {
	if err := checkLabels(probs, labels); err != nil {
		return 0, err
	}
	var sum float64
	for i, y := range labels {
		p := float64(probs.Row(i)[y])
		p = math.Min(math.Max(p, Epsilon), 1-Epsilon)
		sum -= math.Log(p)
	}
	return sum / float64(len(labels)), nil
}

// CrossentropyGrad is the gradient of SparseCategoricalCrossentropy with
// respect to the probabilities.
func CrossentropyGrad(probs *Tensor, labels []int) *Tensor {
	g := NewTensor(probs.Shape...)
	scale := 1 / float32(len(labels))
	for i, y := range labels {
		p := probs.Row(i)[y]
		if p < Epsilon {
			p = Epsilon
		}
		g.Row(i)[y] = -scale / p
	}
	return g
}

// SoftmaxCrossentropyGrad is the gradient of the loss with respect to the
// logits of a softmax output: (p - onehot(y)) / batch.
func SoftmaxCrossentropyGrad(probs *Tensor, labels []int) *Tensor {
	g := probs.Clone()
	scale := 1 / float32(len(labels))
	for i, y := range labels {
		row := g.Row(i)
		row[y] -= 1
		for j := range row {
			row[j] *= scale
		}
	}
	return g
}

// CountCorrect returns how many rows of probs have their argmax at the label.
func CountCorrect(probs *Tensor, labels []int) int {
	correct := 0
	for i, y := range labels {
		if Argmax(probs.Row(i)) == y {
			correct++
		}
	}
	return correct
}
