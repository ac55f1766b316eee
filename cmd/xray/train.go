package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cozy-creator/xray-classifier/internal/config"
	"github.com/cozy-creator/xray-classifier/internal/db"
	"github.com/cozy-creator/xray-classifier/internal/db/migrations"
	"github.com/cozy-creator/xray-classifier/internal/db/repository"
	"github.com/cozy-creator/xray-classifier/internal/mq"
	"github.com/cozy-creator/xray-classifier/internal/services/artifactstore"
	"github.com/cozy-creator/xray-classifier/internal/trainer"
	"github.com/cozy-creator/xray-classifier/pkg/logger"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the classifier and save the artifact",
	Args:  cobra.NoArgs,
	RunE:  runTrain,
}

func init() {
	d := config.Default().Train
	flags := trainCmd.Flags()

	flags.String("data-dir", d.DataDir, "Directory with one subdirectory of images per class")
	flags.String("artifact", d.ArtifactPath, "Where to write the trained artifact")
	flags.Int("epochs", d.Epochs, "Number of passes over the training set")
	flags.Int("batch-size", d.BatchSize, "Samples per optimization step")
	flags.Int64("seed", d.Seed, "Seed for the split, weight initialization, shuffling and augmentation")
	flags.Float64("validation-split", d.ValidationSplit, "Fraction of samples held out for validation")
	flags.Float64("learning-rate", d.LearningRate, "Adam learning rate")
	flags.Int("image-height", d.ImageHeight, "Height images are resized to")
	flags.Int("image-width", d.ImageWidth, "Width images are resized to")
	flags.Int("workers", d.Workers, "Goroutines used to decode images")
	flags.String("interpolation", d.Interpolation, "Resize filter: nearest, bilinear, bicubic or lanczos3")
	flags.Bool("no-augment", false, "Disable random flip, rotation and zoom")
	flags.Bool("publish", d.Publish, "Publish training events to the events topic")
	flags.Bool("quiet", false, "Do not draw progress bars")
	flags.Bool("push", false, "Upload the artifact to the configured storage after training")

	viper.BindPFlag("train.data_dir", flags.Lookup("data-dir"))
	viper.BindPFlag("train.artifact_path", flags.Lookup("artifact"))
	viper.BindPFlag("train.epochs", flags.Lookup("epochs"))
	viper.BindPFlag("train.batch_size", flags.Lookup("batch-size"))
	viper.BindPFlag("train.seed", flags.Lookup("seed"))
	viper.BindPFlag("train.validation_split", flags.Lookup("validation-split"))
	viper.BindPFlag("train.learning_rate", flags.Lookup("learning-rate"))
	viper.BindPFlag("train.image_height", flags.Lookup("image-height"))
	viper.BindPFlag("train.image_width", flags.Lookup("image-width"))
	viper.BindPFlag("train.workers", flags.Lookup("workers"))
	viper.BindPFlag("train.interpolation", flags.Lookup("interpolation"))
	viper.BindPFlag("train.publish", flags.Lookup("publish"))
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg := config.GetConfig()
	log := logger.GetLogger()

	trainCfg := cfg.Train
	if noAugment, _ := cmd.Flags().GetBool("no-augment"); noAugment {
		trainCfg.Augment = config.AugmentConfig{}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []trainer.Option{trainer.WithLogger(log)}
	if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
		opts = append(opts, trainer.WithProgress(newBarProgress(cmd.ErrOrStderr())))
	}

	if cfg.DB != nil && cfg.DB.DSN != "" {
		driver, err := db.NewConnection(ctx, cfg.DB)
		if err != nil {
			return err
		}
		defer driver.Close()

		if _, err := migrations.Apply(ctx, driver.GetDB()); err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
		opts = append(opts, trainer.WithRunStore(repository.NewTrainingRunRepository(driver.GetDB())))
	}

	if trainCfg.Publish {
		queue, err := mq.NewMQ(cfg.Events)
		if err != nil {
			return fmt.Errorf("failed to connect to events queue: %w", err)
		}
		defer queue.Close()

		topic := eventsTopic(cfg)
		if cfg.Events == nil || cfg.Events.Pulsar == nil || cfg.Events.Pulsar.URL == "" {
			// nobody else can read an in-process queue, so log what it carries
			go drainEvents(ctx, queue, topic, log)
		}
		opts = append(opts, trainer.WithPublisher(queue, topic))
	}

	res, err := trainer.New(trainCfg, opts...).Train(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("training interrupted, no artifact written")
		}
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "saved %s (%s)\n", res.Path, res.Artifact.ID)
	if n := len(res.History); n > 0 {
		m := res.History[n-1]
		fmt.Fprintf(out, "final loss %.4f accuracy %.4f", m.Loss, m.Accuracy)
		if m.HasValidation {
			fmt.Fprintf(out, " val_loss %.4f val_accuracy %.4f", m.ValLoss, m.ValAccuracy)
		}
		fmt.Fprintln(out)
	}

	if push, _ := cmd.Flags().GetBool("push"); push {
		store, err := artifactstore.NewStore(ctx, &cfg.Storage)
		if err != nil {
			return err
		}
		location, err := artifactstore.Push(ctx, store, res.Path)
		if err != nil {
			return fmt.Errorf("artifact saved but push failed: %w", err)
		}
		fmt.Fprintf(out, "pushed to %s\n", location)
	}
	return nil
}

func eventsTopic(cfg *config.Config) string {
	if cfg.Events != nil && cfg.Events.Topic != "" {
		return cfg.Events.Topic
	}
	return config.DefaultEventsTopic
}

func drainEvents(ctx context.Context, queue mq.MQ, topic string, log *zap.Logger) {
	for {
		msg, err := queue.Receive(ctx, topic)
		if err != nil {
			return
		}
		data, err := queue.GetMessageData(msg)
		if err != nil {
			continue
		}
		queue.Ack(topic, msg) //nolint:errcheck

		ev, err := trainer.DecodeEvent(data)
		if err != nil {
			log.Warn("undecodable training event", zap.Error(err))
			continue
		}
		log.Debug("training event", zap.String("type", ev.Type), zap.String("run_id", ev.RunID))
	}
}
