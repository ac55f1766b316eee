package config

import (
	"errors"
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

const (
	DefaultHome          = "~/.xray"
	DefaultDataDir       = "chest_xray_dataset/train"
	DefaultArtifactPath  = "model.xcls"
	DefaultImageHeight   = 80
	DefaultImageWidth    = 80
	DefaultChannels      = 3
	DefaultBatchSize     = 32
	DefaultEpochs        = 10
	DefaultSeed          = 123
	DefaultValSplit      = 0.1
	DefaultLearningRate  = 0.001
	DefaultShuffleBuffer = 1000
	DefaultInterpolation = "bilinear"

	DefaultFlipHorizontal = true
	DefaultRotation       = 0.1
	DefaultZoom           = 0.1

	DefaultEventsTopic     = "xray/training/events"
	DefaultEventsQueueSize = 64
)

var (
	ErrHomeNotSet       = errors.New("xray home directory is not set")
	ErrHomeExpandFailed = errors.New("failed to expand xray home directory")
	ErrConfigNotLoaded  = errors.New("config not loaded")
)

// DefaultWorkers is the number of goroutines used to decode dataset images.
// Physical cores are preferred since decoding does not benefit from SMT.
func DefaultWorkers() int {
	if n := cpuid.CPU.PhysicalCores; n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// Default returns the built-in configuration. It never reads viper, so a
// caller can build several independent configurations in one process.
func Default() *Config {
	return &Config{
		Environment: EnvironmentDevelopment,
		Home:        DefaultHome,
		Train: TrainConfig{
			DataDir:         DefaultDataDir,
			ArtifactPath:    DefaultArtifactPath,
			ValidationSplit: DefaultValSplit,
			Seed:            DefaultSeed,
			ImageHeight:     DefaultImageHeight,
			ImageWidth:      DefaultImageWidth,
			BatchSize:       DefaultBatchSize,
			Epochs:          DefaultEpochs,
			LearningRate:    DefaultLearningRate,
			ShuffleBuffer:   DefaultShuffleBuffer,
			Workers:         DefaultWorkers(),
			Interpolation:   DefaultInterpolation,
			Augment: AugmentConfig{
				FlipHorizontal: DefaultFlipHorizontal,
				Rotation:       DefaultRotation,
				Zoom:           DefaultZoom,
			},
		},
		Predict: PredictConfig{
			ArtifactPath: DefaultArtifactPath,
		},
		Storage: StorageConfig{
			Type: StorageLocal,
		},
	}
}
