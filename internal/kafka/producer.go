package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rzzdr/options-risk-engine/pkg/utils/errors"
	"github.com/rzzdr/options-risk-engine/pkg/utils/logger"
)

// MetricsRecorder counts produced and consumed messages by result
type MetricsRecorder interface {
	RecordKafkaMessage(topic, result string)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes JSON messages to one topic
type Producer struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
	metrics MetricsRecorder
	log     *logger.Logger
}

func newProducer(w messageWriter, topic string, timeout time.Duration) *Producer {
	return &Producer{
		writer:  w,
		topic:   topic,
		timeout: timeout,
		log:     logger.GetLogger("kafka.producer"),
	}
}

// WithMetrics attaches a metrics recorder
func (p *Producer) WithMetrics(m MetricsRecorder) *Producer {
	p.metrics = m
	return p
}

// Topic returns the topic written to
func (p *Producer) Topic() string {
	return p.topic
}

// ProduceMessage writes one message, waiting for the broker acknowledgement
func (p *Producer) ProduceMessage(ctx context.Context, key, value []byte, headers []MessageHeader) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:     key,
		Value:   value,
		Headers: toHeaders(headers),
		Time:    time.Now(),
	})
	if err != nil {
		p.record("error")
		p.log.Errorf("Failed to produce message to %s: %v", p.topic, err)
		return errors.Network(err, "failed to produce message to "+p.topic)
	}
	p.record("produced")
	p.log.Debugf("Message delivered to topic %s with key %s", p.topic, string(key))
	return nil
}

// ProduceJSON encodes value as JSON and writes it under key
func (p *Producer) ProduceJSON(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Internal(err, "failed to encode message")
	}
	return p.ProduceMessage(ctx, []byte(key), data, []MessageHeader{{Key: "content-type", Value: []byte("application/json")}})
}

func (p *Producer) record(result string) {
	if p.metrics != nil {
		p.metrics.RecordKafkaMessage(p.topic, result)
	}
}

// Close flushes pending writes and closes the producer
func (p *Producer) Close() error {
	p.log.Infof("Closing producer for topic %s", p.topic)
	return p.writer.Close()
}
