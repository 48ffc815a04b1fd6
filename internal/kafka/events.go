package kafka

import (
	"context"
	"encoding/json"

	"github.com/rzzdr/options-risk-engine/pkg/models"
	"github.com/rzzdr/options-risk-engine/pkg/utils/errors"
)

// EventPublisher publishes position lifecycle events keyed by position id
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher wraps a producer on the position events topic
func NewEventPublisher(p *Producer) *EventPublisher {
	return &EventPublisher{producer: p}
}

// PublishPositionEvent implements the API's event sink
func (e *EventPublisher) PublishPositionEvent(ctx context.Context, eventType models.PositionEventType, position *models.Position) error {
	if position == nil || position.ID == "" {
		return errors.InvalidArgument("position event without position id")
	}
	return e.producer.ProduceJSON(ctx, position.ID, models.PositionEvent{Type: eventType, Position: position})
}

// Close closes the underlying producer
func (e *EventPublisher) Close() error {
	return e.producer.Close()
}

// DecodePositionEvent parses a position event message
func DecodePositionEvent(msg *Message) (*models.PositionEvent, error) {
	var event models.PositionEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return nil, errors.InvalidArgumentf("malformed position event at offset %d: %v", msg.Offset, err)
	}
	if event.Position == nil {
		return nil, errors.InvalidArgumentf("position event at offset %d has no position", msg.Offset)
	}
	return &event, nil
}

// PublishRiskReport writes a report keyed by its position id
func PublishRiskReport(ctx context.Context, p *Producer, report *models.RiskReport) error {
	return p.ProduceJSON(ctx, report.PositionID, report)
}
