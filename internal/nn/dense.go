package nn

import (
	"fmt"
	"math/rand"
)

// Dense is a fully connected layer over (batch, features) input.
type Dense struct {
	base
	units      int
	activation string

	kernel *Param
	bias   *Param

	x *Tensor
	y *Tensor
}

func NewDense(units int, activation string) *Dense {
	return &Dense{units: units, activation: activation}
}

func (d *Dense) Spec() LayerSpec {
	return LayerSpec{Kind: KindDense, Name: d.name, Units: d.units, Activation: d.activation}
}

func (d *Dense) Build(in Shape, rng *rand.Rand) (Shape, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("dense %s expects flat input, got %v", d.name, in)
	}
	d.in = in.Clone()
	d.out = Shape{d.units}
	d.kernel = newParam(d.name+"/kernel", in[0], d.units)
	d.bias = newParam(d.name+"/bias", d.units)
	if rng != nil {
		glorotUniform(d.kernel.Value, in[0], d.units, rng)
	}
	return d.out, nil
}

func (d *Dense) Params() []*Param { return []*Param{d.kernel, d.bias} }

func (d *Dense) Activation() string { return d.activation }

func (d *Dense) Forward(x *Tensor, training bool) *Tensor {
	n := x.Batch()
	y := NewTensor(n, d.units)
	matmul(false, false, x.Data, n, d.in[0], d.kernel.Value, d.in[0], d.units, 0, y.Data)
	for r := 0; r < n; r++ {
		row := y.Data[r*d.units : (r+1)*d.units]
		for i, b := range d.bias.Value {
			row[i] += b
		}
	}
	activate(d.activation, y.Data, n, d.units)

	if training {
		d.x, d.y = x, y
	}
	return y
}

func (d *Dense) Backward(dy *Tensor) *Tensor {
	dz := activationGrad(d.activation, d.y.Data, dy.Data, dy.Batch(), d.units)
	return d.backwardLinear(dz, dy.Batch())
}

// BackwardLogits skips the activation and takes the gradient with respect
// to the pre-activation values directly.
func (d *Dense) BackwardLogits(dz *Tensor) *Tensor {
	return d.backwardLinear(dz.Data, dz.Batch())
}

func (d *Dense) backwardLinear(dz []float32, n int) *Tensor {
	matmul(true, false, d.x.Data, n, d.in[0], dz, n, d.units, 0, d.kernel.Grad)
	for i := range d.bias.Grad {
		d.bias.Grad[i] = 0
	}
	for r := 0; r < n; r++ {
		for i, v := range dz[r*d.units : (r+1)*d.units] {
			d.bias.Grad[i] += v
		}
	}

	dx := NewTensor(n, d.in[0])
	matmul(false, true, dz, n, d.units, d.kernel.Value, d.in[0], d.units, 0, dx.Data)
	return dx
}
