package kafka

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/options-risk-engine/pkg/models"
	"github.com/rzzdr/options-risk-engine/pkg/utils/errors"
)

type memoryTopic struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	next      int
	failWrite error
	closed    bool
}

func (t *memoryTopic) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failWrite != nil {
		return t.failWrite
	}
	for _, m := range msgs {
		m.Offset = int64(len(t.messages))
		t.messages = append(t.messages, m)
	}
	return nil
}

func (t *memoryTopic) FetchMessage(ctx context.Context) (kafka.Message, error) {
	t.mu.Lock()
	if t.next < len(t.messages) {
		m := t.messages[t.next]
		t.next++
		t.mu.Unlock()
		return m, nil
	}
	t.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (t *memoryTopic) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range msgs {
		t.committed = append(t.committed, m.Offset)
	}
	return nil
}

func (t *memoryTopic) Close() error {
	t.closed = true
	return nil
}

type messageCounts struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *messageCounts) RecordKafkaMessage(topic, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[topic+"/"+result]++
}

func TestEventRoundTrip(t *testing.T) {
	topic := &memoryTopic{}
	counts := &messageCounts{}
	pub := NewEventPublisher(newProducer(topic, "position_events", time.Second).WithMetrics(counts))

	pos := &models.Position{ID: "p-1", Underlying: "NIFTY", Status: models.PositionStatusOpen}
	require.NoError(t, pub.PublishPositionEvent(context.Background(), models.PositionCreated, pos))
	require.Len(t, topic.messages, 1)
	assert.Equal(t, "p-1", string(topic.messages[0].Key))
	assert.Equal(t, "content-type", topic.messages[0].Headers[0].Key)

	event, err := DecodePositionEvent(fromKafka(topic.messages[0]))
	require.NoError(t, err)
	assert.Equal(t, models.PositionCreated, event.Type)
	assert.Equal(t, "NIFTY", event.Position.Underlying)
	assert.Equal(t, 1, counts.counts["position_events/produced"])

	err = pub.PublishPositionEvent(context.Background(), models.PositionCreated, &models.Position{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))

	require.NoError(t, pub.Close())
	assert.True(t, topic.closed)
}

func TestProduceFailure(t *testing.T) {
	topic := &memoryTopic{failWrite: stderrors.New("leader not available")}
	p := newProducer(topic, "risk_reports", 0)

	err := PublishRiskReport(context.Background(), p, &models.RiskReport{PositionID: "p-1"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeNetwork))
}

func TestDecodePositionEvent(t *testing.T) {
	_, err := DecodePositionEvent(&Message{Value: []byte("{not json")})
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))

	_, err = DecodePositionEvent(&Message{Value: []byte(`{"type":"deleted"}`)})
	assert.Error(t, err)
}

func TestConsumeMessages(t *testing.T) {
	topic := &memoryTopic{}
	for i, id := range []string{"a", "bad", "c"} {
		value, _ := json.Marshal(map[string]string{"id": id})
		topic.messages = append(topic.messages, kafka.Message{Key: []byte(id), Value: value, Offset: int64(i), Topic: "position_events"})
	}

	counts := &messageCounts{}
	c := newConsumer(topic, "position_events").WithMetrics(counts)

	ctx, cancel := context.WithCancel(context.Background())
	var seen []string
	err := c.ConsumeMessages(ctx, func(_ context.Context, msg *Message) error {
		seen = append(seen, string(msg.Key))
		if len(seen) == 3 {
			cancel()
		}
		if string(msg.Key) == "bad" {
			return stderrors.New("cannot evaluate")
		}
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a", "bad", "c"}, seen)
	assert.Equal(t, []int64{0, 1, 2}, topic.committed)
	assert.Equal(t, 2, counts.counts["position_events/consumed"])
	assert.Equal(t, 1, counts.counts["position_events/error"])
}

func TestNewClientRequiresBrokers(t *testing.T) {
	_, err := NewClient(&Config{})
	assert.Error(t, err)

	c, err := NewClient(nil)
	require.NoError(t, err)
	assert.Equal(t, "risk_reports", c.NewProducer("risk_reports").Topic())
}
