// Package kafka carries position events and risk reports between the API and
// the risk engine.
package kafka

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rzzdr/options-risk-engine/pkg/utils/errors"
	"github.com/rzzdr/options-risk-engine/pkg/utils/logger"
)

// Config holds the broker list and topic names
type Config struct {
	Brokers        []string
	GroupID        string
	PositionTopic  string
	RiskTopic      string
	DefaultTimeout time.Duration
	BatchTimeout   time.Duration
	MinBytes       int
	MaxBytes       int
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Brokers:        []string{"localhost:9092"},
		GroupID:        "optrisk-risk-engine",
		PositionTopic:  "position_events",
		RiskTopic:      "risk_reports",
		DefaultTimeout: 10 * time.Second,
		BatchTimeout:   10 * time.Millisecond,
		MinBytes:       1,
		MaxBytes:       10e6,
	}
}

// Message represents a Kafka message
type Message struct {
	Key       []byte
	Value     []byte
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Headers   []MessageHeader
}

// MessageHeader represents a Kafka message header
type MessageHeader struct {
	Key   string
	Value []byte
}

func fromKafka(m kafka.Message) *Message {
	msg := &Message{
		Key:       m.Key,
		Value:     m.Value,
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Timestamp: m.Time,
	}
	for _, h := range m.Headers {
		msg.Headers = append(msg.Headers, MessageHeader{Key: h.Key, Value: h.Value})
	}
	return msg
}

func toHeaders(headers []MessageHeader) []kafka.Header {
	if len(headers) == 0 {
		return nil
	}
	out := make([]kafka.Header, len(headers))
	for i, h := range headers {
		out[i] = kafka.Header{Key: h.Key, Value: h.Value}
	}
	return out
}

// Client builds producers and consumers from one configuration
type Client struct {
	config *Config
	log    *logger.Logger
}

// NewClient creates a new Kafka client
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if len(config.Brokers) == 0 {
		return nil, errors.InvalidArgument("kafka: no brokers configured")
	}
	return &Client{
		config: config,
		log:    logger.GetLogger("kafka.client"),
	}, nil
}

// NewProducer creates a producer writing to topic
func (c *Client) NewProducer(topic string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(c.config.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: c.config.BatchTimeout,
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: c.config.DefaultTimeout,
	}
	return newProducer(w, topic, c.config.DefaultTimeout)
}

// NewConsumer creates a consumer group reader on topic
func (c *Client) NewConsumer(topic string) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.config.Brokers,
		GroupID:     c.config.GroupID,
		Topic:       topic,
		MinBytes:    c.config.MinBytes,
		MaxBytes:    c.config.MaxBytes,
		StartOffset: kafka.FirstOffset,
	})
	return newConsumer(r, topic)
}

// EnsureTopicExists creates topic on the cluster controller when missing
func (c *Client) EnsureTopicExists(ctx context.Context, topic string, partitions, replicationFactor int) error {
	var d kafka.Dialer
	d.Timeout = c.config.DefaultTimeout

	conn, err := d.DialContext(ctx, "tcp", c.config.Brokers[0])
	if err != nil {
		return errors.Network(err, "failed to dial kafka")
	}
	defer conn.Close()

	existing, err := conn.ReadPartitions(topic)
	if err == nil && len(existing) > 0 {
		c.log.Infof("Topic %s already exists", topic)
		return nil
	}

	controller, err := conn.Controller()
	if err != nil {
		return errors.Network(err, "failed to find kafka controller")
	}
	ctrl, err := d.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return errors.Network(err, "failed to dial kafka controller")
	}
	defer ctrl.Close()

	c.log.Infof("Creating topic %s with %d partitions and replication factor %d", topic, partitions, replicationFactor)
	err = ctrl.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: replicationFactor,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to create topic %s", topic)
	}
	return nil
}
