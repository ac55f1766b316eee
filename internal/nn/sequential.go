package nn

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"text/tabwriter"

	"github.com/cozy-creator/xray-classifier/internal/errdefs"
)

// ErrDiverged is returned by TrainStep when the batch loss is NaN or Inf.
var ErrDiverged = errors.New("loss is not finite")

// Weights is the serializable value of one Param.
type Weights struct {
	Name  string    `msgpack:"name"`
	Shape []int     `msgpack:"shape"`
	Data  []float32 `msgpack:"data"`
}

// Sequential chains layers. Inputs have shape (batch, Input...).
type Sequential struct {
	Input  Shape
	Layers []Layer

	built bool
}

// NewSequential names unnamed layers after their kind, numbering repeats
// the way "conv2d", "conv2d_1", "conv2d_2" are numbered.
func NewSequential(input Shape, layers ...Layer) *Sequential {
	seen := make(map[string]int)
	for _, l := range layers {
		if l.Name() != "" {
			continue
		}
		kind := l.Spec().Kind
		if n := seen[kind]; n > 0 {
			l.setName(fmt.Sprintf("%s_%d", kind, n))
		} else {
			l.setName(kind)
		}
		seen[kind]++
	}
	return &Sequential{Input: input.Clone(), Layers: layers}
}

// FromSpecs rebuilds an unbuilt model from layer descriptions.
func FromSpecs(input Shape, specs []LayerSpec) (*Sequential, error) {
	layers := make([]Layer, 0, len(specs))
	for _, s := range specs {
		l, err := FromSpec(s)
		if err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}
	return NewSequential(input, layers...), nil
}

// Build infers every layer shape and initializes parameters from rng. A nil
// rng leaves kernels zeroed, for models whose weights are loaded afterwards.
func (m *Sequential) Build(rng *rand.Rand) error {
	shape := m.Input
	for _, l := range m.Layers {
		out, err := l.Build(shape, rng)
		if err != nil {
			return err
		}
		shape = out
	}
	m.built = true
	return nil
}

func (m *Sequential) Built() bool { return m.built }

func (m *Sequential) OutputShape() Shape {
	if len(m.Layers) == 0 {
		return m.Input
	}
	return m.Layers[len(m.Layers)-1].OutputShape()
}

func (m *Sequential) Specs() []LayerSpec {
	specs := make([]LayerSpec, len(m.Layers))
	for i, l := range m.Layers {
		specs[i] = l.Spec()
	}
	return specs
}

func (m *Sequential) Params() []*Param {
	var params []*Param
	for _, l := range m.Layers {
		params = append(params, l.Params()...)
	}
	return params
}

func (m *Sequential) CountParams() int {
	n := 0
	for _, p := range m.Params() {
		n += len(p.Value)
	}
	return n
}

// Weights returns a copy of every parameter in layer order.
func (m *Sequential) Weights() []Weights {
	params := m.Params()
	ws := make([]Weights, len(params))
	for i, p := range params {
		ws[i] = Weights{
			Name:  p.Name,
			Shape: append([]int(nil), p.Shape...),
			Data:  append([]float32(nil), p.Value...),
		}
	}
	return ws
}

// SetWeights copies ws into the parameters. Names and shapes must match
// the built model exactly.
func (m *Sequential) SetWeights(ws []Weights) error {
	params := m.Params()
	if len(ws) != len(params) {
		return &errdefs.DimensionMismatchError{What: "weight count", Expected: []int{len(params)}, Actual: []int{len(ws)}}
	}
	for i, p := range params {
		w := ws[i]
		if w.Name != p.Name {
			return fmt.Errorf("weight %d: expected %q, got %q", i, p.Name, w.Name)
		}
		if !p.Shape.Equal(w.Shape) || len(w.Data) != len(p.Value) {
			return &errdefs.DimensionMismatchError{What: p.Name, Expected: p.Shape, Actual: w.Shape}
		}
	}
	for i, p := range params {
		copy(p.Value, ws[i].Data)
	}
	return nil
}

func (m *Sequential) checkInput(x *Tensor) error {
	if !m.built {
		return fmt.Errorf("model is not built")
	}
	if len(x.Shape) < 1 || x.Batch() < 1 || !x.Sample().Equal(m.Input) {
		return &errdefs.DimensionMismatchError{What: "input", Expected: append([]int{-1}, m.Input...), Actual: x.Shape}
	}
	return nil
}

func (m *Sequential) Forward(x *Tensor, training bool) (*Tensor, error) {
	if err := m.checkInput(x); err != nil {
		return nil, err
	}
	for _, l := range m.Layers {
		x = l.Forward(x, training)
	}
	return x, nil
}

// Predict runs inference. It is safe for concurrent use.
func (m *Sequential) Predict(x *Tensor) (*Tensor, error) {
	return m.Forward(x, false)
}

// Backward propagates dy from the output down to the first layer that owns
// parameters.
func (m *Sequential) Backward(dy *Tensor) {
	m.backwardFrom(len(m.Layers)-1, dy)
}

func (m *Sequential) backwardFrom(last int, dy *Tensor) {
	first := m.firstTrainable()
	for i := last; i >= first; i-- {
		dy = m.Layers[i].Backward(dy)
	}
}

func (m *Sequential) firstTrainable() int {
	for i, l := range m.Layers {
		if len(l.Params()) > 0 {
			return i
		}
	}
	return len(m.Layers)
}

// StepResult reports the loss and accuracy of one batch.
type StepResult struct {
	Loss    float64
	Correct int
	Size    int
}

// TrainStep runs forward, backward and one optimizer update on a batch.
// A non-finite loss is reported before any parameter is touched.
func (m *Sequential) TrainStep(x *Tensor, labels []int, opt Optimizer) (StepResult, error) {
	probs, err := m.Forward(x, true)
	if err != nil {
		return StepResult{}, err
	}
	loss, err := SparseCategoricalCrossentropy(probs, labels)
	if err != nil {
		return StepResult{}, err
	}
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return StepResult{}, fmt.Errorf("%w: %v", ErrDiverged, loss)
	}

	last := len(m.Layers) - 1
	if d, ok := m.Layers[last].(*Dense); ok && d.Activation() == ActivationSoftmax {
		dx := d.BackwardLogits(SoftmaxCrossentropyGrad(probs, labels))
		m.backwardFrom(last-1, dx)
	} else {
		m.backwardFrom(last, CrossentropyGrad(probs, labels))
	}

	opt.Step(m.Params())
	return StepResult{Loss: loss, Correct: CountCorrect(probs, labels), Size: len(labels)}, nil
}

// Evaluate runs inference on a batch and returns its loss and accuracy.
func (m *Sequential) Evaluate(x *Tensor, labels []int) (StepResult, error) {
	probs, err := m.Predict(x)
	if err != nil {
		return StepResult{}, err
	}
	loss, err := SparseCategoricalCrossentropy(probs, labels)
	if err != nil {
		return StepResult{}, err
	}
	return StepResult{Loss: loss, Correct: CountCorrect(probs, labels), Size: len(labels)}, nil
}

// Summary renders a layer table with output shapes and parameter counts.
func (m *Sequential) Summary() string {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Layer (type)\tOutput Shape\tParam #")
	for _, l := range m.Layers {
		n := 0
		for _, p := range l.Params() {
			n += len(p.Value)
		}
		fmt.Fprintf(tw, "%s (%s)\t%v\t%d\n", l.Name(), l.Spec().Kind, append(Shape{-1}, l.OutputShape()...), n)
	}
	tw.Flush()
	fmt.Fprintf(&buf, "Total params: %d\n", m.CountParams())
	return buf.String()
}
