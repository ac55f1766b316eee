package nn

import (
	"fmt"
	"math"
)

const (
	ActivationLinear  = "linear"
	ActivationReLU    = "relu"
	ActivationSoftmax = "softmax"
)

func validActivation(name string) error {
	switch name {
	case "", ActivationLinear, ActivationReLU, ActivationSoftmax:
		return nil
	}
	return fmt.Errorf("unknown activation %q", name)
}

// activate applies act in place to a rows x cols matrix.
func activate(act string, data []float32, rows, cols int) {
	switch act {
	case ActivationReLU:
		for i, v := range data {
			if v < 0 {
				data[i] = 0
			}
		}
	case ActivationSoftmax:
		for r := 0; r < rows; r++ {
			softmax(data[r*cols : (r+1)*cols])
		}
	}
}

func softmax(row []float32) {
	max := row[0]
	for _, v := range row[1:] {
		if v > max {
			max = v
		}
	}
	var sum float64
	for i, v := range row {
		e := math.Exp(float64(v - max))
		row[i] = float32(e)
		sum += e
	}
	for i := range row {
		row[i] = float32(float64(row[i]) / sum)
	}
}

// activationGrad turns the gradient with respect to the activation output
// into the gradient with respect to its input. out holds the activation
// output of the forward pass.
func activationGrad(act string, out, dy []float32, rows, cols int) []float32 {
	dz := make([]float32, len(dy))
	switch act {
	case ActivationReLU:
		for i, v := range out {
			if v > 0 {
				dz[i] = dy[i]
			}
		}
	case ActivationSoftmax:
		for r := 0; r < rows; r++ {
			p := out[r*cols : (r+1)*cols]
			g := dy[r*cols : (r+1)*cols]
			var dot float32
			for i := range p {
				dot += p[i] * g[i]
			}
			z := dz[r*cols : (r+1)*cols]
			for i := range p {
				z[i] = p[i] * (g[i] - dot)
			}
		}
	default:
		copy(dz, dy)
	}
	return dz
}
