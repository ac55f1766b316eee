package artifact

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cozy-creator/xray-classifier/internal/errdefs"
	"github.com/cozy-creator/xray-classifier/internal/nn"
)

func testModel(t *testing.T, classes int) *nn.Sequential {
	t.Helper()
	m := nn.NewSequential(nn.Shape{8, 8, 3},
		nn.NewRescaling(1.0/255, 0),
		nn.NewConv2D(4, 3, nn.PaddingSame, nn.ActivationReLU),
		nn.NewMaxPool2D(2),
		nn.NewDropout(0.2),
		nn.NewFlatten(),
		nn.NewDense(classes, nn.ActivationSoftmax),
	)
	require.NoError(t, m.Build(rand.New(rand.NewSource(1))))
	return m
}

func testInput() *nn.Tensor {
	x := nn.NewTensor(2, 8, 8, 3)
	rng := rand.New(rand.NewSource(2))
	for i := range x.Data {
		x.Data[i] = float32(rng.Intn(256))
	}
	return x
}

func TestSaveLoadPreservesPredictions(t *testing.T) {
	model := testModel(t, 2)
	a := New(model, []string{"NORMAL", "PNEUMONIA"})
	a.History = []EpochMetrics{{Epoch: 1, Loss: 0.7, Accuracy: 0.5}}

	path := filepath.Join(t.TempDir(), "model"+Extension)
	require.NoError(t, Save(path, a))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, a.ID, loaded.ID)
	assert.Equal(t, a.Labels, loaded.Labels)
	assert.Equal(t, a.History, loaded.History)
	assert.Equal(t, a.Checksum, loaded.Checksum)
	assert.True(t, a.CreatedAt.Equal(loaded.CreatedAt))

	rebuilt, err := loaded.Network()
	require.NoError(t, err)

	x := testInput()
	want, err := model.Predict(x)
	require.NoError(t, err)
	got, err := rebuilt.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, want.Data, got.Data)

	withNet, served, err := LoadNetwork(path)
	require.NoError(t, err)
	assert.Equal(t, a.ID, withNet.ID)
	got, err = served.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, want.Data, got.Data)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.xcls"))
	assert.ErrorIs(t, err, errdefs.ErrArtifactNotFound)

	garbage := filepath.Join(dir, "garbage.xcls")
	require.NoError(t, os.WriteFile(garbage, []byte("this is not an artifact"), 0o644))
	_, err = Load(garbage)
	assert.ErrorIs(t, err, errdefs.ErrArtifactFormat)

	var formatErr *errdefs.ArtifactFormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Equal(t, garbage, formatErr.Path)
}

func TestValidateRejectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(a *Artifact)
		want   error
	}{
		{"format", func(a *Artifact) { a.Format = "keras" }, errdefs.ErrArtifactFormat},
		{"version", func(a *Artifact) { a.Version = 99 }, errdefs.ErrArtifactFormat},
		{"weights", func(a *Artifact) { a.Weights[0].Data[0] += 1 }, errdefs.ErrArtifactFormat},
		{"labels", func(a *Artifact) { a.Labels = append(a.Labels, "COVID") }, errdefs.ErrDimensionMismatch},
		{"input", func(a *Artifact) { a.InputShape = []int{8, 8} }, errdefs.ErrDimensionMismatch},
		{"layers", func(a *Artifact) { a.Layers[1].Kind = "lstm" }, errdefs.ErrArtifactFormat},
		{"weight shape", func(a *Artifact) {
			a.Weights[0].Shape = []int{1, 2, 3}
			a.Checksum = a.ComputeChecksum()
		}, errdefs.ErrDimensionMismatch},
		{"weight name", func(a *Artifact) {
			a.Weights[0].Name = "renamed/kernel"
			a.Checksum = a.ComputeChecksum()
		}, errdefs.ErrArtifactFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(testModel(t, 2), []string{"a", "b"})
			tt.mutate(a)

			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, a))
			decoded, err := Decode(&buf)
			require.NoError(t, err)
			assert.ErrorIs(t, decoded.Validate(), tt.want)
		})
	}
}

func TestLoadRejectsEmptyInputSize(t *testing.T) {
	m := nn.NewSequential(nn.Shape{0, 0, 3},
		nn.NewFlatten(),
		nn.NewDense(2, nn.ActivationSoftmax),
	)
	require.NoError(t, m.Build(rand.New(rand.NewSource(1))))

	path := filepath.Join(t.TempDir(), "model"+Extension)
	require.NoError(t, Save(path, New(m, []string{"NORMAL", "PNEUMONIA"})))

	_, err := Load(path)
	assert.ErrorIs(t, err, errdefs.ErrDimensionMismatch)

	var dimErr *errdefs.DimensionMismatchError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, []int{0, 0, 3}, dimErr.Actual)
}

func TestSaveOverwritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.xcls")

	first := New(testModel(t, 2), []string{"a", "b"})
	require.NoError(t, Save(path, first))
	second := New(testModel(t, 3), []string{"a", "b", "c"})
	require.NoError(t, Save(path, second))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, second.ID, loaded.ID)
	assert.Len(t, loaded.Labels, 3)
	assert.Equal(t, second.NumParams(), loaded.NumParams())
}
