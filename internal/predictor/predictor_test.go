package predictor

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cozy-creator/xray-classifier/internal/artifact"
	"github.com/cozy-creator/xray-classifier/internal/config"
	"github.com/cozy-creator/xray-classifier/internal/errdefs"
	"github.com/cozy-creator/xray-classifier/internal/nn"
	"github.com/cozy-creator/xray-classifier/internal/testutil"
	"github.com/cozy-creator/xray-classifier/internal/trainer"
)

var labels = []string{"NORMAL", "PNEUMONIA"}

func saveArtifact(t *testing.T, mutate func(m *nn.Sequential)) string {
	t.Helper()
	model, err := trainer.BuildNetwork(16, 16, len(labels), 123)
	require.NoError(t, err)
	if mutate != nil {
		mutate(model)
	}

	a := artifact.New(model, labels)
	a.Interpolation = "bilinear"
	path := filepath.Join(t.TempDir(), "model.xcls")
	require.NoError(t, artifact.Save(path, a))
	return path
}

func writeImage(t *testing.T, w, h int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scan.png")
	testutil.WritePNG(t, path, testutil.Pattern(1, 2, w, h, rand.New(rand.NewSource(1))))
	return path
}

func TestNewFailsWithoutArtifact(t *testing.T) {
	_, err := New(config.PredictConfig{ArtifactPath: filepath.Join(t.TempDir(), "missing.xcls")})
	assert.ErrorIs(t, err, errdefs.ErrArtifactNotFound)

	broken := filepath.Join(t.TempDir(), "broken.xcls")
	require.NoError(t, os.WriteFile(broken, []byte("nope"), 0o644))
	_, err = Load(broken)
	assert.ErrorIs(t, err, errdefs.ErrArtifactFormat)
}

func TestPredictReturnsClassIndex(t *testing.T) {
	p, err := Load(saveArtifact(t, nil))
	require.NoError(t, err)
	assert.Equal(t, labels, p.Labels())

	for _, size := range [][2]int{{16, 16}, {1, 1}, {300, 200}} {
		path := writeImage(t, size[0], size[1])

		idx, err := p.Predict(path)
		require.NoError(t, err, "%dx%d", size[0], size[1])
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, len(labels))

		probs, err := p.Probabilities(path)
		require.NoError(t, err)
		require.Len(t, probs, 2)
		assert.InDelta(t, 1, float64(probs[0]+probs[1]), 1e-5)
		assert.Equal(t, nn.Argmax(probs), idx)
	}
}

func TestPredictAcceptsGrayscale(t *testing.T) {
	p, err := Load(saveArtifact(t, nil))
	require.NoError(t, err)

	gray := image.NewGray(image.Rect(0, 0, 40, 30))
	for i := range gray.Pix {
		gray.Pix[i] = uint8(i % 251)
	}
	path := filepath.Join(t.TempDir(), "gray.png")
	testutil.WritePNG(t, path, gray)

	_, err = p.Predict(path)
	assert.NoError(t, err)
}

func TestPredictDecodeErrors(t *testing.T) {
	p, err := Load(saveArtifact(t, nil))
	require.NoError(t, err)

	text := filepath.Join(t.TempDir(), "notes.png")
	require.NoError(t, os.WriteFile(text, []byte("plain text"), 0o644))

	for _, path := range []string{text, filepath.Join(t.TempDir(), "missing.png")} {
		idx, err := p.Predict(path)
		assert.ErrorIs(t, err, errdefs.ErrImageDecode)
		assert.Equal(t, -1, idx)
	}
}

func TestTiesResolveToFirstClass(t *testing.T) {
	// zeroed output layer gives identical logits for every class
	path := saveArtifact(t, func(m *nn.Sequential) {
		last := m.Layers[len(m.Layers)-1]
		for _, param := range last.Params() {
			for i := range param.Value {
				param.Value[i] = 0
			}
		}
	})
	p, err := Load(path)
	require.NoError(t, err)

	probs, err := p.Probabilities(writeImage(t, 16, 16))
	require.NoError(t, err)
	assert.Equal(t, probs[0], probs[1])

	idx, err := p.Predict(writeImage(t, 16, 16))
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, "NORMAL", p.Label(idx))
	assert.Equal(t, "", p.Label(5))
}

func TestPredictIsSafeForConcurrentUse(t *testing.T) {
	p, err := Load(saveArtifact(t, nil))
	require.NoError(t, err)
	path := writeImage(t, 24, 24)

	want, err := p.Probabilities(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := p.Probabilities(path)
			if assert.NoError(t, err) {
				assert.Equal(t, want, got)
			}
		}()
	}
	wg.Wait()
}

func TestPredictReaderAndImage(t *testing.T) {
	p, err := Load(saveArtifact(t, nil))
	require.NoError(t, err)
	path := writeImage(t, 16, 16)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	idx, probs, err := p.PredictReader(f)
	require.NoError(t, err)
	assert.Equal(t, nn.Argmax(probs), idx)

	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	_, err = p.PredictImage(img)
	assert.NoError(t, err)
}

func TestPredictFilesKeepsGoingAfterFailure(t *testing.T) {
	p, err := Load(saveArtifact(t, nil))
	require.NoError(t, err)

	good := writeImage(t, 16, 16)
	bad := filepath.Join(t.TempDir(), "bad.jpg")
	require.NoError(t, os.WriteFile(bad, []byte("x"), 0o644))

	results, err := p.PredictFiles(context.Background(), []string{bad, good})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, errdefs.ErrImageDecode)
	assert.NoError(t, results[1].Err)
	assert.NotEmpty(t, results[1].Label)
}

func TestTrainedArtifactRoundTrip(t *testing.T) {
	const perClass = 20
	data := testutil.WriteDataset(t, t.TempDir(), labels, perClass, 32, 32, 3)
	cfg := config.Default().Train
	cfg.DataDir = data
	cfg.ArtifactPath = filepath.Join(t.TempDir(), "model.xcls")
	cfg.ImageHeight, cfg.ImageWidth = 32, 32
	cfg.Epochs, cfg.BatchSize, cfg.Workers = 5, 8, 2
	// the fixture separates classes by band position, which a flip destroys
	cfg.Augment = config.AugmentConfig{}

	res, err := trainer.New(cfg).Train(context.Background())
	require.NoError(t, err)

	pc := config.Default().Predict
	pc.ArtifactPath = res.Path
	p, err := New(pc)
	require.NoError(t, err)
	assert.Equal(t, res.Artifact.ID, p.Artifact().ID)
	assert.Equal(t, cfg.Interpolation, p.Interpolation())

	correct, total := 0, 0
	for class, label := range labels {
		for i := 0; i < perClass; i++ {
			idx, err := p.Predict(filepath.Join(data, label, fmt.Sprintf("img_%03d.png", i)))
			require.NoError(t, err)
			if idx == class {
				correct++
			}
			total++
		}
	}
	assert.GreaterOrEqual(t, correct, total*9/10, "correct %d/%d", correct, total)
}

func TestInterpolationFallsBackToArtifact(t *testing.T) {
	model, err := trainer.BuildNetwork(16, 16, len(labels), 123)
	require.NoError(t, err)
	a := artifact.New(model, labels)
	a.Interpolation = "lanczos3"
	path := filepath.Join(t.TempDir(), "model.xcls")
	require.NoError(t, artifact.Save(path, a))

	pc := config.Default().Predict
	pc.ArtifactPath = path
	p, err := New(pc)
	require.NoError(t, err)
	assert.Equal(t, "lanczos3", p.Interpolation())

	p, err = New(config.PredictConfig{ArtifactPath: path, Interpolation: "nearest"})
	require.NoError(t, err)
	assert.Equal(t, "nearest", p.Interpolation())

	a.Interpolation = ""
	p, err = NewFromArtifact(a, "")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultInterpolation, p.Interpolation())
}

func TestNewRejectsEmptyInputSize(t *testing.T) {
	m := nn.NewSequential(nn.Shape{0, 0, 3},
		nn.NewFlatten(),
		nn.NewDense(len(labels), nn.ActivationSoftmax),
	)
	require.NoError(t, m.Build(rand.New(rand.NewSource(1))))
	path := filepath.Join(t.TempDir(), "model.xcls")
	require.NoError(t, artifact.Save(path, artifact.New(m, labels)))

	_, err := Load(path)
	assert.ErrorIs(t, err, errdefs.ErrDimensionMismatch)
}
