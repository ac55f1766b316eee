package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cozy-creator/xray-classifier/internal/config"
	"github.com/cozy-creator/xray-classifier/internal/mq"
	"github.com/cozy-creator/xray-classifier/internal/trainer"
	"github.com/cozy-creator/xray-classifier/pkg/logger"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follow training events published to the events topic",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.GetConfig()
		if cfg.Events == nil || cfg.Events.Pulsar == nil || cfg.Events.Pulsar.URL == "" {
			return errors.New("events.pulsar.url is not set; in-process events can only be seen by the training command")
		}

		queue, err := mq.NewMQ(cfg.Events)
		if err != nil {
			return err
		}
		defer queue.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		topic := eventsTopic(cfg)
		enc := json.NewEncoder(cmd.OutOrStdout())
		for {
			msg, err := queue.Receive(ctx, topic)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}

			data, err := queue.GetMessageData(msg)
			if err != nil {
				return err
			}
			if err := queue.Ack(topic, msg); err != nil {
				logger.Warn("failed to ack event", zap.Error(err))
			}

			ev, err := trainer.DecodeEvent(data)
			if err != nil {
				logger.Warn("undecodable training event", zap.Error(err))
				continue
			}
			if err := enc.Encode(ev); err != nil {
				return err
			}
		}
	},
}
