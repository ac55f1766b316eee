package trainer

import (
	"context"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/cozy-creator/xray-classifier/internal/artifact"
	"github.com/cozy-creator/xray-classifier/internal/mq"
)

const (
	EventStarted  = "train.started"
	EventEpoch    = "train.epoch"
	EventFinished = "train.finished"
	EventFailed   = "train.failed"
)

// Event is published as msgpack on the events topic.
type Event struct {
	Type         string                 `msgpack:"type" json:"type"`
	RunID        string                 `msgpack:"run_id" json:"run_id"`
	Time         time.Time              `msgpack:"time" json:"time"`
	Epochs       int                    `msgpack:"epochs,omitempty" json:"epochs,omitempty"`
	Labels       []string               `msgpack:"labels,omitempty" json:"labels,omitempty"`
	Metrics      *artifact.EpochMetrics `msgpack:"metrics,omitempty" json:"metrics,omitempty"`
	ArtifactPath string                 `msgpack:"artifact_path,omitempty" json:"artifact_path,omitempty"`
	ArtifactID   string                 `msgpack:"artifact_id,omitempty" json:"artifact_id,omitempty"`
	Error        string                 `msgpack:"error,omitempty" json:"error,omitempty"`
}

func DecodeEvent(data []byte) (*Event, error) {
	ev := &Event{}
	if err := msgpack.Unmarshal(data, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// publisher never fails the run: errors are logged and dropped.
type publisher struct {
	queue  mq.MQ
	topic  string
	logger *zap.Logger
}

func (p *publisher) publish(ctx context.Context, ev Event) {
	if p == nil || p.queue == nil {
		return
	}
	ev.Time = time.Now().UTC()

	data, err := msgpack.Marshal(&ev)
	if err != nil {
		p.logger.Warn("failed to encode training event", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	if err := p.queue.Publish(ctx, p.topic, data); err != nil {
		p.logger.Warn("failed to publish training event", zap.String("type", ev.Type), zap.String("topic", p.topic), zap.Error(err))
	}
}
