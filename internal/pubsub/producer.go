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

func NewKafkaProducer(cfg Config, log logger.Logger) *kafkaProducer {
	c := &kafka.Client{
		Addr:    kafka.TCP(cfg.Brokers...),
		Timeout: time.Second * 5,
	}

	return &kafkaProducer{
		client: c,
		topic:  cfg.Topic,
		logger: log.With("kafka_producer"),
	}
}

type kafkaProducer struct {
	client *kafka.Client
	topic  string
	logger logger.Logger
}

// Forward publishes the event keyed by stream id, so chunks of one
// stream land on one partition and stay ordered.
func (p *kafkaProducer) Forward(ctx context.Context, ev streams.Event) error {
	bytes, err := json.Marshal(ev)
	if err != nil {
		return errors.WrapFail(err, "marshal event to json")
	}

	record := kafka.Record{
		Key:   kafka.NewBytes([]byte(ev.GetID())),
		Value: kafka.NewBytes(bytes),
	}

	_, err = p.client.Produce(ctx, &kafka.ProduceRequest{
		Topic:        p.topic,
		RequiredAcks: 1,
		Records:      kafka.NewRecordReader(record),
	})
	return errors.WrapFail(err, "produce event")
}
