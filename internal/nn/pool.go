package nn

import (
	"fmt"
	"math/rand"
)

// MaxPool2D takes the maximum over non-overlapping size x size windows.
// Trailing rows and columns that do not fill a window are dropped.
type MaxPool2D struct {
	base
	size int

	argmax []int32
}

func NewMaxPool2D(size int) *MaxPool2D { return &MaxPool2D{size: size} }

func (p *MaxPool2D) Spec() LayerSpec {
	return LayerSpec{Kind: KindMaxPool2D, Name: p.name, PoolSize: p.size}
}

func (p *MaxPool2D) Build(in Shape, _ *rand.Rand) (Shape, error) {
	if len(in) != 3 {
		return nil, fmt.Errorf("max_pooling2d %s expects (h, w, c) input, got %v", p.name, in)
	}
	oh, ow := in[0]/p.size, in[1]/p.size
	if oh < 1 || ow < 1 {
		return nil, fmt.Errorf("max_pooling2d %s: pool %d does not fit input %v", p.name, p.size, in)
	}
	p.in = in.Clone()
	p.out = Shape{oh, ow, in[2]}
	return p.out, nil
}

func (p *MaxPool2D) Forward(x *Tensor, training bool) *Tensor {
	n := x.Batch()
	h, w, ch := p.in[0], p.in[1], p.in[2]
	oh, ow := p.out[0], p.out[1]

	y := NewTensor(p.batchShape(n)...)
	var argmax []int32
	if training {
		argmax = make([]int32, len(y.Data))
	}

	o := 0
	for b := 0; b < n; b++ {
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				for c := 0; c < ch; c++ {
					bestIdx := ((b*h+oy*p.size)*w+ox*p.size)*ch + c
					best := x.Data[bestIdx]
					for py := 0; py < p.size; py++ {
						for px := 0; px < p.size; px++ {
							idx := ((b*h+oy*p.size+py)*w+ox*p.size+px)*ch + c
							if x.Data[idx] > best {
								best, bestIdx = x.Data[idx], idx
							}
						}
					}
					y.Data[o] = best
					if argmax != nil {
						argmax[o] = int32(bestIdx)
					}
					o++
				}
			}
		}
	}

	if training {
		p.argmax = argmax
	}
	return y
}

func (p *MaxPool2D) Backward(dy *Tensor) *Tensor {
	dx := NewTensor(append([]int{dy.Batch()}, p.in...)...)
	for o, idx := range p.argmax {
		dx.Data[idx] += dy.Data[o]
	}
	return dx
}
