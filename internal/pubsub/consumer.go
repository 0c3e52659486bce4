package pubsub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/runrelay/runrelay/internal/streams"
	"github.com/runrelay/runrelay/pkg/errors"
	"github.com/runrelay/runrelay/pkg/logger"
)

// NewKafkaConsumer tails the shared topic from the current offset:
// every relay node sees every event, replay of old chunks comes from
// history instead.
func NewKafkaConsumer(ctx context.Context, cfg Config, log logger.Logger) (*kafkaConsumer, error) {
	c := kafka.Client{
		Addr:    kafka.TCP(cfg.Brokers...),
		Timeout: time.Second * 5,
	}

	now := time.Now().UnixMilli()

	partitions := cfg.Partitions
	if len(partitions) == 0 {
		partitions = []int{0}
	}

	requests := make([]kafka.OffsetRequest, 0, len(partitions))
	for _, p := range partitions {
		requests = append(requests, kafka.OffsetRequest{
			Partition: p,
			Timestamp: now,
		})
	}

	offsets, err := c.ListOffsets(ctx, &kafka.ListOffsetsRequest{
		Topics:         map[string][]kafka.OffsetRequest{cfg.Topic: requests},
		IsolationLevel: kafka.ReadCommitted,
	})
	if err != nil {
		return nil, errors.WrapFail(err, "list offsets")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Topic:          cfg.Topic,
		StartOffset:    offsets.Topics[cfg.Topic][0].LastOffset,
		Brokers:        cfg.Brokers,
		QueueCapacity:  1024,
		IsolationLevel: kafka.ReadCommitted,
		MaxAttempts:    3,
	})

	return &kafkaConsumer{
		reader: reader,
		logger: log.With("kafka_consumer"),
	}, nil
}

type kafkaConsumer struct {
	reader *kafka.Reader
	logger logger.Logger
}

func (c *kafkaConsumer) HandleEvents(ctx context.Context, apply ApplyFunc) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				msg, err := c.reader.FetchMessage(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					c.logger.Error(errors.WrapFail(err, "fetch message"))
					continue
				}

				var ev streams.Event
				err = json.Unmarshal(msg.Value, &ev)
				if err != nil {
					c.logger.Error(errors.WrapFail(err, "unmarshal event"))
					continue
				}

				err = apply(ctx, ev)
				if err != nil {
					c.logger.Warn(errors.WrapFail(err, "apply event"))
				}
			}
		}
	}()
}
