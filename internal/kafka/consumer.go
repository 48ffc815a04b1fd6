package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"

	"github.com/rzzdr/options-risk-engine/pkg/utils/logger"
)

// MessageHandler is a function that processes Kafka messages
type MessageHandler func(ctx context.Context, msg *Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads a topic as part of a consumer group
type Consumer struct {
	reader  messageReader
	topic   string
	metrics MetricsRecorder
	log     *logger.Logger
}

func newConsumer(r messageReader, topic string) *Consumer {
	return &Consumer{
		reader: r,
		topic:  topic,
		log:    logger.GetLogger("kafka.consumer"),
	}
}

// WithMetrics attaches a metrics recorder
func (c *Consumer) WithMetrics(m MetricsRecorder) *Consumer {
	c.metrics = m
	return c
}

// ConsumeMessages passes messages to handler until ctx ends. Offsets are
// committed after the handler returns, including when it fails, so one bad
// message cannot stall the partition.
func (c *Consumer) ConsumeMessages(ctx context.Context, handler MessageHandler) error {
	c.log.Infof("Starting consumer for topic: %s", c.topic)

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Infof("Context cancelled, stopping consumer for topic: %s", c.topic)
				return ctx.Err()
			}
			c.log.Errorf("Error fetching message: %v", err)
			return err
		}

		result := "consumed"
		if err := handler(ctx, fromKafka(m)); err != nil {
			result = "error"
			c.log.Errorf("Error processing message at offset %d: %v", m.Offset, err)
		}
		c.record(result)

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Errorf("Error committing offset: %v", err)
		}
	}
}

func (c *Consumer) record(result string) {
	if c.metrics != nil {
		c.metrics.RecordKafkaMessage(c.topic, result)
	}
}

// Close closes the consumer
func (c *Consumer) Close() error {
	c.log.Infof("Closing consumer for topic %s", c.topic)
	return c.reader.Close()
}
