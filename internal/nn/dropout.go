package nn

import "math/rand"

// Dropout zeroes each activation with probability rate during training and
// scales the survivors by 1/(1-rate). It is the identity at inference.
type Dropout struct {
	base
	rate float64
	rng  *rand.Rand
	mask []float32
}

func NewDropout(rate float64) *Dropout {
	return &Dropout{rate: rate}
}

func (d *Dropout) Spec() LayerSpec {
	return LayerSpec{Kind: KindDropout, Name: d.name, Rate: d.rate}
}

func (d *Dropout) Build(in Shape, rng *rand.Rand) (Shape, error) {
	d.in, d.out = in.Clone(), in.Clone()
	if rng == nil {
		rng = rand.New(rand.NewSource(0))
	}
	d.rng = rand.New(rand.NewSource(rng.Int63()))
	return d.out, nil
}

func (d *Dropout) Forward(x *Tensor, training bool) *Tensor {
	if !training || d.rate == 0 {
		return x
	}

	keep := 1 - d.rate
	scale := float32(1 / keep)
	d.mask = make([]float32, len(x.Data))
	y := &Tensor{Shape: x.Shape.Clone(), Data: make([]float32, len(x.Data))}
	for i, v := range x.Data {
		if d.rng.Float64() < keep {
			d.mask[i] = scale
			y.Data[i] = v * scale
		}
	}
	return y
}

func (d *Dropout) Backward(dy *Tensor) *Tensor {
	if d.mask == nil {
		return dy
	}
	dx := &Tensor{Shape: dy.Shape.Clone(), Data: make([]float32, len(dy.Data))}
	for i, v := range dy.Data {
		dx.Data[i] = v * d.mask[i]
	}
	return dx
}
