package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cozy-creator/xray-classifier/internal/errdefs"
	"github.com/cozy-creator/xray-classifier/internal/templates"
	"github.com/cozy-creator/xray-classifier/internal/utils/pathutil"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
	EnvironmentTest        = "test"
)

const envPrefix = "XRAY"

type Config struct {
	Environment string        `mapstructure:"environment"`
	Home        string        `mapstructure:"home"`
	Train       TrainConfig   `mapstructure:"train"`
	Predict     PredictConfig `mapstructure:"predict"`
	Storage     StorageConfig `mapstructure:"storage"`
	DB          *DBConfig     `mapstructure:"db"`
	Events      *EventsConfig `mapstructure:"events"`
}

// TrainConfig holds every knob of a training run. The zero value is not
// usable; start from Default().Train.
type TrainConfig struct {
	DataDir         string        `mapstructure:"data_dir"`
	ArtifactPath    string        `mapstructure:"artifact_path"`
	ValidationSplit float64       `mapstructure:"validation_split"`
	Seed            int64         `mapstructure:"seed"`
	ImageHeight     int           `mapstructure:"image_height"`
	ImageWidth      int           `mapstructure:"image_width"`
	BatchSize       int           `mapstructure:"batch_size"`
	Epochs          int           `mapstructure:"epochs"`
	LearningRate    float64       `mapstructure:"learning_rate"`
	ShuffleBuffer   int           `mapstructure:"shuffle_buffer"`
	Workers         int           `mapstructure:"workers"`
	Interpolation   string        `mapstructure:"interpolation"`
	Augment         AugmentConfig `mapstructure:"augment"`
	Publish         bool          `mapstructure:"publish"`
}

// AugmentConfig mirrors the random flip / rotation / zoom stage. Rotation is
// a fraction of a full turn, Zoom a fraction of the image size.
type AugmentConfig struct {
	FlipHorizontal bool    `mapstructure:"flip_horizontal"`
	Rotation       float64 `mapstructure:"rotation"`
	Zoom           float64 `mapstructure:"zoom"`
}

// PredictConfig selects the artifact to serve. An empty Interpolation uses
// the one recorded in the artifact at training time.
type PredictConfig struct {
	ArtifactPath  string `mapstructure:"artifact_path"`
	Interpolation string `mapstructure:"interpolation"`
}

type StorageConfig struct {
	Type string    `mapstructure:"type"`
	Dir  string    `mapstructure:"dir"`
	S3   *S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Folder      string `mapstructure:"folder"`
	Region      string `mapstructure:"region_name"`
	Bucket      string `mapstructure:"bucket_name"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
	EndpointUrl string `mapstructure:"endpoint_url"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Debug  bool   `mapstructure:"debug"`
}

type EventsConfig struct {
	Topic     string        `mapstructure:"topic"`
	QueueSize int           `mapstructure:"queue_size"`
	Pulsar    *PulsarConfig `mapstructure:"pulsar"`
}

type PulsarConfig struct {
	URL string `mapstructure:"url"`
}

var config *Config

// SetDefaults registers every default with v so that environment variables
// such as XRAY_TRAIN_EPOCHS are picked up by AutomaticEnv.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("environment", d.Environment)
	v.SetDefault("home", d.Home)

	v.SetDefault("train.data_dir", d.Train.DataDir)
	v.SetDefault("train.artifact_path", d.Train.ArtifactPath)
	v.SetDefault("train.validation_split", d.Train.ValidationSplit)
	v.SetDefault("train.seed", d.Train.Seed)
	v.SetDefault("train.image_height", d.Train.ImageHeight)
	v.SetDefault("train.image_width", d.Train.ImageWidth)
	v.SetDefault("train.batch_size", d.Train.BatchSize)
	v.SetDefault("train.epochs", d.Train.Epochs)
	v.SetDefault("train.learning_rate", d.Train.LearningRate)
	v.SetDefault("train.shuffle_buffer", d.Train.ShuffleBuffer)
	v.SetDefault("train.workers", d.Train.Workers)
	v.SetDefault("train.interpolation", d.Train.Interpolation)
	v.SetDefault("train.augment.flip_horizontal", d.Train.Augment.FlipHorizontal)
	v.SetDefault("train.augment.rotation", d.Train.Augment.Rotation)
	v.SetDefault("train.augment.zoom", d.Train.Augment.Zoom)
	v.SetDefault("train.publish", d.Train.Publish)

	v.SetDefault("predict.artifact_path", d.Predict.ArtifactPath)
	v.SetDefault("predict.interpolation", d.Predict.Interpolation)

	v.SetDefault("storage.type", d.Storage.Type)
}

// InitConfig resolves the home directory, writes the default .env and
// config.yaml on first use, loads both and unmarshals the result into the
// package-level config returned by GetConfig.
func InitConfig() error {
	cfg, err := Load(viper.GetViper())
	if err != nil {
		return err
	}

	config = cfg
	return nil
}

// Load does the work of InitConfig against an explicit viper instance.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	home, err := getHome(v)
	if err != nil {
		return nil, err
	}
	v.Set("home", home)

	if err := os.MkdirAll(home, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create xray home directory: %w", err)
	}

	envFile := v.GetString("env_file")
	if envFile == "" {
		envFile = filepath.Join(home, ".env")
	}

	configFile := v.GetString("config_file")
	if configFile == "" {
		configFile = filepath.Join(home, "config.yaml")
	}

	if _, err := os.Stat(envFile); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat .env file: %w", err)
		}

		if err := templates.WriteEnv(envFile); err != nil {
			return nil, fmt.Errorf("failed to create .env file: %w", err)
		}
	}

	if _, err := os.Stat(configFile); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config.yaml file: %w", err)
		}

		if err := templates.WriteConfig(configFile); err != nil {
			return nil, fmt.Errorf("failed to create config.yaml file: %w", err)
		}
	}

	if err := godotenv.Load(envFile); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`, `-`, `_`))
	v.AutomaticEnv()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = filepath.Join(home, "artifacts")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func GetConfig() *Config {
	if config == nil {
		panic(ErrConfigNotLoaded)
	}

	return config
}

func IsLoaded() bool {
	return config != nil
}

// Validate checks every hyperparameter range. It does not touch the
// filesystem; a missing data directory is reported by the trainer.
func (c *Config) Validate() error {
	if err := c.Train.Validate(); err != nil {
		return err
	}

	switch strings.ToLower(c.Storage.Type) {
	case "", StorageLocal:
	case StorageS3:
		if c.Storage.S3 == nil || c.Storage.S3.Bucket == "" {
			return errdefs.InvalidConfig("storage.s3.bucket_name", "", "set when storage.type is s3")
		}
	default:
		return errdefs.InvalidConfig("storage.type", c.Storage.Type, "local or s3")
	}

	return nil
}

func (t TrainConfig) Validate() error {
	if t.ValidationSplit <= 0 || t.ValidationSplit >= 1 {
		return errdefs.InvalidConfig("validation_split", t.ValidationSplit, "in (0, 1)")
	}
	if t.Epochs < 1 {
		return errdefs.InvalidConfig("epochs", t.Epochs, ">= 1")
	}
	if t.BatchSize < 1 {
		return errdefs.InvalidConfig("batch_size", t.BatchSize, ">= 1")
	}
	if t.ImageHeight < 1 || t.ImageWidth < 1 {
		return errdefs.InvalidConfig("image_size", fmt.Sprintf("%dx%d", t.ImageHeight, t.ImageWidth), "positive")
	}
	if t.LearningRate <= 0 {
		return errdefs.InvalidConfig("learning_rate", t.LearningRate, "> 0")
	}
	if t.Augment.Rotation < 0 || t.Augment.Rotation >= 1 {
		return errdefs.InvalidConfig("augment.rotation", t.Augment.Rotation, "in [0, 1)")
	}
	if t.Augment.Zoom < 0 || t.Augment.Zoom >= 1 {
		return errdefs.InvalidConfig("augment.zoom", t.Augment.Zoom, "in [0, 1)")
	}
	if t.DataDir == "" {
		return errdefs.InvalidConfig("data_dir", "", "non-empty")
	}
	if t.ArtifactPath == "" {
		return errdefs.InvalidConfig("artifact_path", "", "non-empty")
	}
	return nil
}

// Returns the xray home directory path from the `home` key (flag or
// XRAY_HOME), falling back to DefaultHome, with "~" expanded.
func getHome(v *viper.Viper) (string, error) {
	home := v.GetString("home")
	if home == "" {
		home = os.Getenv("XRAY_HOME")
		if home == "" {
			home = DefaultHome
		}
	}

	home, err := pathutil.ExpandPath(home)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHomeExpandFailed, err)
	}
	if home == "" {
		return "", ErrHomeNotSet
	}

	return home, nil
}
