package nn

import "math/rand"

// Rescaling maps x to x*scale + offset.
type Rescaling struct {
	base
	scale  float32
	offset float32
}

func NewRescaling(scale, offset float32) *Rescaling {
	return &Rescaling{scale: scale, offset: offset}
}

func (r *Rescaling) Spec() LayerSpec {
	return LayerSpec{Kind: KindRescaling, Name: r.name, Scale: float64(r.scale), Offset: float64(r.offset)}
}

func (r *Rescaling) Build(in Shape, _ *rand.Rand) (Shape, error) {
	r.in, r.out = in.Clone(), in.Clone()
	return r.out, nil
}

func (r *Rescaling) Forward(x *Tensor, _ bool) *Tensor {
	y := &Tensor{Shape: x.Shape.Clone(), Data: make([]float32, len(x.Data))}
	for i, v := range x.Data {
		y.Data[i] = v*r.scale + r.offset
	}
	return y
}

func (r *Rescaling) Backward(dy *Tensor) *Tensor {
	dx := &Tensor{Shape: dy.Shape.Clone(), Data: make([]float32, len(dy.Data))}
	for i, v := range dy.Data {
		dx.Data[i] = v * r.scale
	}
	return dx
}
