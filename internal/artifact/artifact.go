// Package artifact persists a trained classifier: architecture, weights,
// label names and training provenance in one zstd-compressed msgpack file.
package artifact

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cozy-creator/xray-classifier/internal/errdefs"
	"github.com/cozy-creator/xray-classifier/internal/nn"
	"github.com/cozy-creator/xray-classifier/internal/utils/hashutil"
)

const (
	Format    = "xray-classifier"
	Version   = 1
	Extension = ".xcls"

	imageChannels = 3
)

type EpochMetrics struct {
	Epoch         int     `msgpack:"epoch" json:"epoch"`
	Loss          float64 `msgpack:"loss" json:"loss"`
	Accuracy      float64 `msgpack:"accuracy" json:"accuracy"`
	HasValidation bool    `msgpack:"has_validation" json:"has_validation"`
	ValLoss       float64 `msgpack:"val_loss,omitempty" json:"val_loss,omitempty"`
	ValAccuracy   float64 `msgpack:"val_accuracy,omitempty" json:"val_accuracy,omitempty"`
	DurationMs    int64   `msgpack:"duration_ms" json:"duration_ms"`
}

type DatasetInfo struct {
	Root        string `msgpack:"root" json:"root"`
	Files       int    `msgpack:"files" json:"files"`
	Digest      string `msgpack:"digest" json:"digest"`
	TrainCount  int    `msgpack:"train_count" json:"train_count"`
	ValCount    int    `msgpack:"val_count" json:"val_count"`
	ClassCounts []int  `msgpack:"class_counts" json:"class_counts"`
}

type TrainingInfo struct {
	Epochs          int     `msgpack:"epochs" json:"epochs"`
	BatchSize       int     `msgpack:"batch_size" json:"batch_size"`
	LearningRate    float64 `msgpack:"learning_rate" json:"learning_rate"`
	Seed            int64   `msgpack:"seed" json:"seed"`
	ValidationSplit float64 `msgpack:"validation_split" json:"validation_split"`
	ShuffleBuffer   int     `msgpack:"shuffle_buffer" json:"shuffle_buffer"`
	FlipHorizontal  bool    `msgpack:"flip_horizontal" json:"flip_horizontal"`
	Rotation        float64 `msgpack:"rotation" json:"rotation"`
	Zoom            float64 `msgpack:"zoom" json:"zoom"`
	DurationMs      int64   `msgpack:"duration_ms" json:"duration_ms"`
}

// Artifact is everything needed to rebuild a trained network and to tell
// where it came from.
type Artifact struct {
	Format        string         `msgpack:"format" json:"format"`
	Version       int            `msgpack:"version" json:"version"`
	ID            string         `msgpack:"id" json:"id"`
	CreatedAt     time.Time      `msgpack:"created_at" json:"created_at"`
	InputShape    []int          `msgpack:"input_shape" json:"input_shape"`
	Labels        []string       `msgpack:"labels" json:"labels"`
	Interpolation string         `msgpack:"interpolation" json:"interpolation"`
	Layers        []nn.LayerSpec `msgpack:"layers" json:"layers"`
	Weights       []nn.Weights   `msgpack:"weights" json:"-"`
	History       []EpochMetrics `msgpack:"history" json:"history"`
	Dataset       DatasetInfo    `msgpack:"dataset" json:"dataset"`
	Training      TrainingInfo   `msgpack:"training" json:"training"`
	Checksum      string         `msgpack:"checksum" json:"checksum"`
}

// New snapshots model and stamps a fresh ID and checksum.
func New(model *nn.Sequential, labels []string) *Artifact {
	a := &Artifact{
		Format:     Format,
		Version:    Version,
		ID:         uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
		InputShape: append([]int(nil), model.Input...),
		Labels:     append([]string(nil), labels...),
		Layers:     model.Specs(),
		Weights:    model.Weights(),
	}
	a.Checksum = a.ComputeChecksum()
	return a
}

// ComputeChecksum hashes weight names, shapes and values.
func (a *Artifact) ComputeChecksum() string {
	d := hashutil.NewDigest().Int(len(a.Weights))
	for _, w := range a.Weights {
		d.String(w.Name).Ints(w.Shape).Float32s(w.Data)
	}
	return d.Hex()
}

// NumParams counts every stored weight value.
func (a *Artifact) NumParams() int {
	n := 0
	for _, w := range a.Weights {
		n += len(w.Data)
	}
	return n
}

// Validate checks the header and checksum, then that the stored layers
// rebuild into a network whose output width matches the label count.
func (a *Artifact) Validate() error {
	_, err := a.validatedNetwork()
	return err
}

func (a *Artifact) validatedNetwork() (*nn.Sequential, error) {
	if err := a.checkHeader(); err != nil {
		return nil, err
	}
	return a.Network()
}

func (a *Artifact) checkHeader() error {
	if a.Format != Format {
		return &errdefs.ArtifactFormatError{Reason: fmt.Sprintf("unexpected format %q", a.Format)}
	}
	if a.Version != Version {
		return &errdefs.ArtifactFormatError{Reason: fmt.Sprintf("unsupported version %d", a.Version)}
	}
	if sum := a.ComputeChecksum(); sum != a.Checksum {
		return &errdefs.ArtifactFormatError{Reason: "weights checksum mismatch"}
	}
	return nil
}

// Network rebuilds the model described by the artifact and loads its
// weights. The result is ready for inference.
func (a *Artifact) Network() (*nn.Sequential, error) {
	if len(a.InputShape) != 3 {
		return nil, &errdefs.DimensionMismatchError{What: "input shape rank", Expected: []int{3}, Actual: []int{len(a.InputShape)}}
	}
	if a.InputShape[2] != imageChannels {
		return nil, &errdefs.DimensionMismatchError{What: "input channels", Expected: []int{imageChannels}, Actual: []int{a.InputShape[2]}}
	}
	if a.InputShape[0] < 1 || a.InputShape[1] < 1 {
		return nil, &errdefs.DimensionMismatchError{What: "input height and width", Expected: []int{1, 1, imageChannels}, Actual: a.InputShape}
	}
	if len(a.Labels) < 2 {
		return nil, &errdefs.ArtifactFormatError{Reason: fmt.Sprintf("need at least two labels, got %d", len(a.Labels))}
	}

	model, err := nn.FromSpecs(nn.Shape(a.InputShape), a.Layers)
	if err != nil {
		return nil, &errdefs.ArtifactFormatError{Reason: "invalid layer description", Err: err}
	}
	if err := model.Build(nil); err != nil {
		return nil, &errdefs.DimensionMismatchError{What: "layers: " + err.Error(), Expected: a.InputShape}
	}

	out := model.OutputShape()
	if len(out) != 1 || out[0] != len(a.Labels) {
		return nil, &errdefs.DimensionMismatchError{What: "output classes", Expected: []int{len(a.Labels)}, Actual: out}
	}

	if err := model.SetWeights(a.Weights); err != nil {
		var dimErr *errdefs.DimensionMismatchError
		if errors.As(err, &dimErr) {
			return nil, err
		}
		return nil, &errdefs.ArtifactFormatError{Reason: "weights do not match layers", Err: err}
	}
	return model, nil
}
