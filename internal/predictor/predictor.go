// Package predictor loads a trained artifact once and classifies images.
// A Predictor is safe for concurrent use.
package predictor

import (
	"bytes"
	"context"
	"image"
	"io"
	"os"
	"strings"

	"github.com/nfnt/resize"
	"go.uber.org/zap"

	"github.com/cozy-creator/xray-classifier/internal/artifact"
	"github.com/cozy-creator/xray-classifier/internal/config"
	"github.com/cozy-creator/xray-classifier/internal/errdefs"
	"github.com/cozy-creator/xray-classifier/internal/nn"
	"github.com/cozy-creator/xray-classifier/internal/utils/imageutil"
)

type Predictor struct {
	artifact   *artifact.Artifact
	model      *nn.Sequential
	interp     resize.InterpolationFunction
	interpName string
	height     int
	width      int
	logger     *zap.Logger
}

type Option func(*Predictor)

func WithLogger(l *zap.Logger) Option {
	return func(p *Predictor) {
		if l != nil {
			p.logger = l
		}
	}
}

// New loads the artifact at cfg.ArtifactPath. An empty cfg.Interpolation
// falls back to the interpolation recorded in the artifact.
func New(cfg config.PredictConfig, opts ...Option) (*Predictor, error) {
	a, model, err := artifact.LoadNetwork(cfg.ArtifactPath)
	if err != nil {
		return nil, err
	}
	return newPredictor(a, model, cfg.Interpolation, opts...)
}

// Load is New with the artifact's own interpolation.
func Load(path string, opts ...Option) (*Predictor, error) {
	return New(config.PredictConfig{ArtifactPath: path}, opts...)
}

// NewFromArtifact serves an artifact already in memory. An empty
// interpolation falls back to a.Interpolation.
func NewFromArtifact(a *artifact.Artifact, interpolation string, opts ...Option) (*Predictor, error) {
	model, err := a.Network()
	if err != nil {
		return nil, err
	}
	return newPredictor(a, model, interpolation, opts...)
}

func newPredictor(a *artifact.Artifact, model *nn.Sequential, interpolation string, opts ...Option) (*Predictor, error) {
	if interpolation == "" {
		interpolation = a.Interpolation
	}
	if interpolation == "" {
		interpolation = config.DefaultInterpolation
	}
	interp, err := imageutil.ParseInterpolation(interpolation)
	if err != nil {
		return nil, errdefs.InvalidConfig("interpolation", interpolation, "nearest, bilinear, bicubic or lanczos3")
	}

	p := &Predictor{
		artifact:   a,
		model:      model,
		interp:     interp,
		interpName: strings.ToLower(interpolation),
		height:     a.InputShape[0],
		width:      a.InputShape[1],
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.logger.Debug("loaded artifact",
		zap.String("artifact_id", a.ID),
		zap.Strings("labels", a.Labels),
		zap.Int("params", a.NumParams()),
	)
	return p, nil
}

func (p *Predictor) Artifact() *artifact.Artifact { return p.artifact }

// Interpolation names the resize filter applied before inference.
func (p *Predictor) Interpolation() string { return p.interpName }

func (p *Predictor) Labels() []string {
	return append([]string(nil), p.artifact.Labels...)
}

// Label returns the class name for index i, or "" when out of range.
func (p *Predictor) Label(i int) string {
	if i < 0 || i >= len(p.artifact.Labels) {
		return ""
	}
	return p.artifact.Labels[i]
}

// Predict classifies the image file at path and returns the index of the
// most probable class. Ties resolve to the lowest index.
func (p *Predictor) Predict(path string) (int, error) {
	probs, err := p.Probabilities(path)
	if err != nil {
		return -1, err
	}
	return nn.Argmax(probs), nil
}

// Probabilities returns the softmax output for the image file at path.
func (p *Predictor) Probabilities(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errdefs.ImageDecodeError{Path: path, Err: err}
	}
	img, err := imageutil.Decode(data)
	if err != nil {
		return nil, &errdefs.ImageDecodeError{Path: path, Err: err}
	}
	return p.ProbabilitiesImage(img)
}

// PredictReader classifies an encoded image read from r.
func (p *Predictor) PredictReader(r io.Reader) (int, []float32, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return -1, nil, &errdefs.ImageDecodeError{Path: "<reader>", Err: err}
	}
	img, err := imageutil.Decode(buf.Bytes())
	if err != nil {
		return -1, nil, &errdefs.ImageDecodeError{Path: "<reader>", Err: err}
	}
	probs, err := p.ProbabilitiesImage(img)
	if err != nil {
		return -1, nil, err
	}
	return nn.Argmax(probs), probs, nil
}

// PredictImage classifies an already decoded image.
func (p *Predictor) PredictImage(img image.Image) (int, error) {
	probs, err := p.ProbabilitiesImage(img)
	if err != nil {
		return -1, err
	}
	return nn.Argmax(probs), nil
}

func (p *Predictor) ProbabilitiesImage(img image.Image) ([]float32, error) {
	rgb := imageutil.Resize(img, p.width, p.height, p.interp)
	x, err := nn.FromData(imageutil.Tensor(rgb), 1, p.height, p.width, 3)
	if err != nil {
		return nil, &errdefs.DimensionMismatchError{What: "resized image: " + err.Error(), Expected: []int{p.height, p.width, 3}}
	}
	out, err := p.model.Predict(x)
	if err != nil {
		return nil, err
	}
	return out.Row(0), nil
}

// Result pairs a file with its classification.
type Result struct {
	Path          string
	Class         int
	Label         string
	Probabilities []float32
	Err           error
}

// PredictFiles classifies each path in order. A failure on one file is
// recorded in its Result and does not stop the others.
func (p *Predictor) PredictFiles(ctx context.Context, paths []string) ([]Result, error) {
	results := make([]Result, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		probs, err := p.Probabilities(path)
		r := Result{Path: path, Class: -1, Err: err}
		if err == nil {
			r.Class = nn.Argmax(probs)
			r.Label = p.Label(r.Class)
			r.Probabilities = probs
		} else {
			p.logger.Warn("failed to classify image", zap.String("path", path), zap.Error(err))
		}
		results = append(results, r)
	}
	return results, nil
}
