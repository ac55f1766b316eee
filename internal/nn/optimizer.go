package nn

import "math"

type Optimizer interface {
	Step(params []*Param)
}

// Adam implements the Adam update with the bias correction folded into the
// step size.
type Adam struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64

	t int
	m map[*Param][]float32
	v map[*Param][]float32
}

func NewAdam(learningRate float64) *Adam {
	return &Adam{
		LearningRate: learningRate,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-7,
		m:            make(map[*Param][]float32),
		v:            make(map[*Param][]float32),
	}
}

// Iterations returns the number of steps taken so far.
func (a *Adam) Iterations() int { return a.t }

func (a *Adam) Step(params []*Param) {
	a.t++
	t := float64(a.t)
	lr := a.LearningRate * math.Sqrt(1-math.Pow(a.Beta2, t)) / (1 - math.Pow(a.Beta1, t))

	b1, b2 := float32(a.Beta1), float32(a.Beta2)
	for _, p := range params {
		m, ok := a.m[p]
		if !ok {
			m = make([]float32, len(p.Value))
			a.m[p] = m
		}
		v, ok := a.v[p]
		if !ok {
			v = make([]float32, len(p.Value))
			a.v[p] = v
		}

		for i, g := range p.Grad {
			m[i] = b1*m[i] + (1-b1)*g
			v[i] = b2*v[i] + (1-b2)*g*g
			p.Value[i] -= float32(lr * float64(m[i]) / (math.Sqrt(float64(v[i])) + a.Epsilon))
		}
	}
}
