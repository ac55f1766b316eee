// Package nn is a small convolutional network library: NHWC tensors, the
// layers needed by the classifier, sparse categorical cross-entropy and
// Adam. Matrix products go through gonum's float32 BLAS.
package nn

import (
	"fmt"
	"strings"
)

// Shape lists dimensions without the batch axis unless stated otherwise.
type Shape []int

func (s Shape) Size() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s Shape) Clone() Shape {
	return append(Shape(nil), s...)
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = fmt.Sprint(d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Tensor is a dense row-major float32 array. The first axis is the batch.
type Tensor struct {
	Shape Shape
	Data  []float32
}

func NewTensor(shape ...int) *Tensor {
	s := Shape(shape)
	return &Tensor{Shape: s, Data: make([]float32, s.Size())}
}

// FromData wraps data without copying it.
func FromData(data []float32, shape ...int) (*Tensor, error) {
	s := Shape(shape)
	if s.Size() != len(data) {
		return nil, fmt.Errorf("tensor of shape %v needs %d values, got %d", s, s.Size(), len(data))
	}
	return &Tensor{Shape: s, Data: data}, nil
}

func (t *Tensor) Batch() int { return t.Shape[0] }

// Sample returns the shape of one batch element.
func (t *Tensor) Sample() Shape { return t.Shape[1:] }

// Row returns the i-th batch element as a slice sharing t's storage.
func (t *Tensor) Row(i int) []float32 {
	n := t.Sample().Size()
	return t.Data[i*n : (i+1)*n]
}

func (t *Tensor) Reshape(shape ...int) *Tensor {
	s := Shape(shape)
	if s.Size() != len(t.Data) {
		panic(fmt.Sprintf("nn: cannot reshape %v into %v", t.Shape, s))
	}
	return &Tensor{Shape: s, Data: t.Data}
}

func (t *Tensor) Clone() *Tensor {
	return &Tensor{Shape: t.Shape.Clone(), Data: append([]float32(nil), t.Data...)}
}

// Argmax returns the index of the largest value. Ties resolve to the lowest
// index and an empty slice yields -1.
func Argmax(v []float32) int {
	if len(v) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
