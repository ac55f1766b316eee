package nn

import (
	"fmt"
	"math/rand"
)

// Conv2D is a stride-1 2-D convolution over NHWC input with a fused
// activation. The kernel is stored as (k, k, in_channels, filters).
type Conv2D struct {
	base
	filters    int
	kernelSize int
	padding    string
	activation string

	kernel *Param
	bias   *Param

	padTop, padLeft int

	// training cache
	cols []float32
	y    *Tensor
}

func NewConv2D(filters, kernelSize int, padding, activation string) *Conv2D {
	return &Conv2D{filters: filters, kernelSize: kernelSize, padding: padding, activation: activation}
}

func (c *Conv2D) Spec() LayerSpec {
	return LayerSpec{
		Kind:       KindConv2D,
		Name:       c.name,
		Filters:    c.filters,
		KernelSize: c.kernelSize,
		Padding:    c.padding,
		Activation: c.activation,
	}
}

func (c *Conv2D) Build(in Shape, rng *rand.Rand) (Shape, error) {
	if len(in) != 3 {
		return nil, fmt.Errorf("conv2d %s expects (h, w, c) input, got %v", c.name, in)
	}
	h, w, ch := in[0], in[1], in[2]
	k := c.kernelSize

	oh, ow := h, w
	if c.padding == PaddingSame {
		c.padTop, c.padLeft = (k-1)/2, (k-1)/2
	} else {
		oh, ow = h-k+1, w-k+1
		c.padTop, c.padLeft = 0, 0
	}
	if oh < 1 || ow < 1 {
		return nil, fmt.Errorf("conv2d %s: kernel %d does not fit input %v", c.name, k, in)
	}

	c.in = in.Clone()
	c.out = Shape{oh, ow, c.filters}
	c.kernel = newParam(c.name+"/kernel", k, k, ch, c.filters)
	c.bias = newParam(c.name+"/bias", c.filters)
	if rng != nil {
		glorotUniform(c.kernel.Value, k*k*ch, k*k*c.filters, rng)
	}
	return c.out, nil
}

func (c *Conv2D) Params() []*Param { return []*Param{c.kernel, c.bias} }

func (c *Conv2D) patch() int { return c.kernelSize * c.kernelSize * c.in[2] }

// im2col lays every receptive field out as one row of cols. Samples outside
// the input contribute zeros.
func (c *Conv2D) im2col(x *Tensor) []float32 {
	n := x.Batch()
	h, w, ch := c.in[0], c.in[1], c.in[2]
	oh, ow := c.out[0], c.out[1]
	k, kkc := c.kernelSize, c.patch()

	cols := make([]float32, n*oh*ow*kkc)
	for b := 0; b < n; b++ {
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				row := cols[((b*oh+oy)*ow+ox)*kkc:][:kkc]
				for ky := 0; ky < k; ky++ {
					iy := oy + ky - c.padTop
					if iy < 0 || iy >= h {
						continue
					}
					for kx := 0; kx < k; kx++ {
						ix := ox + kx - c.padLeft
						if ix < 0 || ix >= w {
							continue
						}
						copy(row[(ky*k+kx)*ch:][:ch], x.Data[((b*h+iy)*w+ix)*ch:][:ch])
					}
				}
			}
		}
	}
	return cols
}

// col2im is the adjoint of im2col: it scatters row gradients back onto the
// input positions they were gathered from.
func (c *Conv2D) col2im(dcols []float32, n int) *Tensor {
	h, w, ch := c.in[0], c.in[1], c.in[2]
	oh, ow := c.out[0], c.out[1]
	k, kkc := c.kernelSize, c.patch()

	dx := NewTensor(n, h, w, ch)
	for b := 0; b < n; b++ {
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				row := dcols[((b*oh+oy)*ow+ox)*kkc:][:kkc]
				for ky := 0; ky < k; ky++ {
					iy := oy + ky - c.padTop
					if iy < 0 || iy >= h {
						continue
					}
					for kx := 0; kx < k; kx++ {
						ix := ox + kx - c.padLeft
						if ix < 0 || ix >= w {
							continue
						}
						src := row[(ky*k+kx)*ch:][:ch]
						dst := dx.Data[((b*h+iy)*w+ix)*ch:][:ch]
						for i, v := range src {
							dst[i] += v
						}
					}
				}
			}
		}
	}
	return dx
}

func (c *Conv2D) Forward(x *Tensor, training bool) *Tensor {
	n := x.Batch()
	rows, kkc := n*c.out[0]*c.out[1], c.patch()

	cols := c.im2col(x)
	y := NewTensor(c.batchShape(n)...)
	matmul(false, false, cols, rows, kkc, c.kernel.Value, kkc, c.filters, 0, y.Data)
	for r := 0; r < rows; r++ {
		out := y.Data[r*c.filters : (r+1)*c.filters]
		for f, b := range c.bias.Value {
			out[f] += b
		}
	}
	activate(c.activation, y.Data, rows, c.filters)

	if training {
		c.cols, c.y = cols, y
	}
	return y
}

func (c *Conv2D) Backward(dy *Tensor) *Tensor {
	n := dy.Batch()
	rows, kkc := n*c.out[0]*c.out[1], c.patch()

	dz := activationGrad(c.activation, c.y.Data, dy.Data, rows, c.filters)

	matmul(true, false, c.cols, rows, kkc, dz, rows, c.filters, 0, c.kernel.Grad)
	for f := range c.bias.Grad {
		c.bias.Grad[f] = 0
	}
	for r := 0; r < rows; r++ {
		for f, v := range dz[r*c.filters : (r+1)*c.filters] {
			c.bias.Grad[f] += v
		}
	}

	dcols := make([]float32, rows*kkc)
	matmul(false, true, dz, rows, c.filters, c.kernel.Value, kkc, c.filters, 0, dcols)
	return c.col2im(dcols, n)
}
