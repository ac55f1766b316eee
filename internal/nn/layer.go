package nn

import (
	"fmt"
	"math"
	"math/rand"
)

const (
	KindRescaling = "rescaling"
	KindConv2D    = "conv2d"
	KindMaxPool2D = "max_pooling2d"
	KindDropout   = "dropout"
	KindFlatten   = "flatten"
	KindDense     = "dense"
)

const (
	PaddingSame  = "same"
	PaddingValid = "valid"
)

// LayerSpec is the serializable description of a layer. Only the fields
// relevant to Kind are set.
type LayerSpec struct {
	Kind       string  `msgpack:"kind" json:"kind"`
	Name       string  `msgpack:"name" json:"name"`
	Filters    int     `msgpack:"filters,omitempty" json:"filters,omitempty"`
	KernelSize int     `msgpack:"kernel_size,omitempty" json:"kernel_size,omitempty"`
	Padding    string  `msgpack:"padding,omitempty" json:"padding,omitempty"`
	PoolSize   int     `msgpack:"pool_size,omitempty" json:"pool_size,omitempty"`
	Units      int     `msgpack:"units,omitempty" json:"units,omitempty"`
	Activation string  `msgpack:"activation,omitempty" json:"activation,omitempty"`
	Rate       float64 `msgpack:"rate,omitempty" json:"rate,omitempty"`
	Scale      float64 `msgpack:"scale,omitempty" json:"scale,omitempty"`
	Offset     float64 `msgpack:"offset,omitempty" json:"offset,omitempty"`
}

// Param is a trainable array and the gradient of the last backward pass.
type Param struct {
	Name  string
	Shape Shape
	Value []float32
	Grad  []float32
}

func newParam(name string, shape ...int) *Param {
	s := Shape(shape)
	return &Param{
		Name:  name,
		Shape: s,
		Value: make([]float32, s.Size()),
		Grad:  make([]float32, s.Size()),
	}
}

// Layer is one stage of a Sequential model.
//
// Forward with training=false must not modify the layer, so a built model
// can serve concurrent inference. Forward with training=true caches what
// Backward needs; Backward consumes the cache of the latest training
// Forward, fills the gradients of Params and returns the input gradient.
type Layer interface {
	Name() string
	Spec() LayerSpec
	Build(in Shape, rng *rand.Rand) (Shape, error)
	OutputShape() Shape
	Forward(x *Tensor, training bool) *Tensor
	Backward(dy *Tensor) *Tensor
	Params() []*Param

	setName(name string)
}

type base struct {
	name string
	in   Shape
	out  Shape
}

func (b *base) Name() string        { return b.name }
func (b *base) setName(name string) { b.name = name }
func (b *base) OutputShape() Shape  { return b.out }
func (b *base) Params() []*Param    { return nil }

func (b *base) batchShape(n int) []int {
	return append([]int{n}, b.out...)
}

// glorotUniform fills w from U(-l, l) with l = sqrt(6 / (fanIn + fanOut)).
func glorotUniform(w []float32, fanIn, fanOut int, rng *rand.Rand) {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	for i := range w {
		w[i] = float32((rng.Float64()*2 - 1) * limit)
	}
}

// FromSpec constructs an unbuilt layer from its description.
func FromSpec(s LayerSpec) (Layer, error) {
	var l Layer
	switch s.Kind {
	case KindRescaling:
		l = NewRescaling(float32(s.Scale), float32(s.Offset))
	case KindConv2D:
		if s.Filters < 1 || s.KernelSize < 1 {
			return nil, fmt.Errorf("conv2d %q: filters and kernel_size must be positive", s.Name)
		}
		if err := validActivation(s.Activation); err != nil {
			return nil, err
		}
		padding := s.Padding
		if padding == "" {
			padding = PaddingValid
		}
		if padding != PaddingSame && padding != PaddingValid {
			return nil, fmt.Errorf("conv2d %q: unknown padding %q", s.Name, s.Padding)
		}
		l = NewConv2D(s.Filters, s.KernelSize, padding, s.Activation)
	case KindMaxPool2D:
		if s.PoolSize < 1 {
			return nil, fmt.Errorf("max_pooling2d %q: pool_size must be positive", s.Name)
		}
		l = NewMaxPool2D(s.PoolSize)
	case KindDropout:
		if s.Rate < 0 || s.Rate >= 1 {
			return nil, fmt.Errorf("dropout %q: rate must be in [0, 1)", s.Name)
		}
		l = NewDropout(s.Rate)
	case KindFlatten:
		l = NewFlatten()
	case KindDense:
		if s.Units < 1 {
			return nil, fmt.Errorf("dense %q: units must be positive", s.Name)
		}
		if err := validActivation(s.Activation); err != nil {
			return nil, err
		}
		l = NewDense(s.Units, s.Activation)
	default:
		return nil, fmt.Errorf("unknown layer kind %q", s.Kind)
	}
	l.setName(s.Name)
	return l, nil
}
