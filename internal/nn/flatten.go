package nn

import "math/rand"

type Flatten struct {
	base
}

func NewFlatten() *Flatten { return &Flatten{} }

func (f *Flatten) Spec() LayerSpec {
	return LayerSpec{Kind: KindFlatten, Name: f.name}
}

func (f *Flatten) Build(in Shape, _ *rand.Rand) (Shape, error) {
	f.in = in.Clone()
	f.out = Shape{in.Size()}
	return f.out, nil
}

func (f *Flatten) Forward(x *Tensor, _ bool) *Tensor {
	return x.Reshape(f.batchShape(x.Batch())...)
}

func (f *Flatten) Backward(dy *Tensor) *Tensor {
	return dy.Reshape(append([]int{dy.Batch()}, f.in...)...)
}
