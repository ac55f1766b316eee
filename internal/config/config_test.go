package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cozy-creator/xray-classifier/internal/errdefs"
)

func TestLoadWritesTemplatesAndDefaults(t *testing.T) {
	home := t.TempDir()
	v := viper.New()
	v.Set("home", home)

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(home, "config.yaml"))
	assert.FileExists(t, filepath.Join(home, ".env"))

	d := Default()
	assert.Equal(t, home, cfg.Home)
	assert.Equal(t, d.Train.Epochs, cfg.Train.Epochs)
	assert.Equal(t, d.Train.Seed, cfg.Train.Seed)
	assert.Equal(t, d.Train.ImageHeight, cfg.Train.ImageHeight)
	assert.Equal(t, d.Train.Augment, cfg.Train.Augment)
	assert.Equal(t, filepath.Join(home, "artifacts"), cfg.Storage.Dir)
	assert.Nil(t, cfg.DB)

	assert.Equal(t, DefaultInterpolation, cfg.Train.Interpolation)
	assert.Empty(t, cfg.Predict.Interpolation, "predict falls back to the artifact's interpolation")
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XRAY_TRAIN_EPOCHS", "3")
	t.Setenv("XRAY_TRAIN_DATA_DIR", "/data/xray")

	v := viper.New()
	v.Set("home", home)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Train.Epochs)
	assert.Equal(t, "/data/xray", cfg.Train.DataDir)
}

func TestLoadConfigFile(t *testing.T) {
	home := t.TempDir()
	file := filepath.Join(home, "custom.yaml")
	require.NoError(t, os.WriteFile(file, []byte("train:\n  batch_size: 8\n  image_height: 64\ndb:\n  driver: sqlite\n  dsn: file:runs.db\n"), 0o644))

	v := viper.New()
	v.Set("home", home)
	v.Set("config_file", file)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Train.BatchSize)
	assert.Equal(t, 64, cfg.Train.ImageHeight)
	assert.Equal(t, DefaultImageWidth, cfg.Train.ImageWidth)
	require.NotNil(t, cfg.DB)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XRAY_TRAIN_VALIDATION_SPLIT", "1.5")

	v := viper.New()
	v.Set("home", home)
	_, err := Load(v)
	assert.ErrorIs(t, err, errdefs.ErrInvalidConfig)
}

func TestTrainConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TrainConfig)
	}{
		{"zero split", func(c *TrainConfig) { c.ValidationSplit = 0 }},
		{"whole split", func(c *TrainConfig) { c.ValidationSplit = 1 }},
		{"no epochs", func(c *TrainConfig) { c.Epochs = 0 }},
		{"no batch", func(c *TrainConfig) { c.BatchSize = 0 }},
		{"no height", func(c *TrainConfig) { c.ImageHeight = 0 }},
		{"negative lr", func(c *TrainConfig) { c.LearningRate = -1 }},
		{"full rotation", func(c *TrainConfig) { c.Augment.Rotation = 1 }},
		{"negative zoom", func(c *TrainConfig) { c.Augment.Zoom = -0.1 }},
		{"no data dir", func(c *TrainConfig) { c.DataDir = "" }},
		{"no artifact path", func(c *TrainConfig) { c.ArtifactPath = "" }},
	}

	require.NoError(t, Default().Train.Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default().Train
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), errdefs.ErrInvalidConfig)
		})
	}
}

func TestValidateStorage(t *testing.T) {
	cfg := Default()
	cfg.Storage.Type = "ftp"
	assert.ErrorIs(t, cfg.Validate(), errdefs.ErrInvalidConfig)

	cfg.Storage.Type = StorageS3
	assert.ErrorIs(t, cfg.Validate(), errdefs.ErrInvalidConfig)

	cfg.Storage.S3 = &S3Config{Bucket: "models"}
	assert.NoError(t, cfg.Validate())
}

func TestDefaultsAreIndependent(t *testing.T) {
	a, b := Default(), Default()
	a.Train.Epochs = 99
	assert.Equal(t, DefaultEpochs, b.Train.Epochs)
	assert.Positive(t, a.Train.Workers)
}
