package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// Event is the envelope published for every attempt lifecycle change.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Event types emitted by the attempt service.
const (
	EventAttemptStarted   = "attempt.started"
	EventAttemptCompleted = "attempt.completed"
	EventBestScoreChanged = "attempt.best_score_changed"
)

const (
	eventSource  = "attempt-service"
	eventVersion = "1.0"
)

// AttemptStartedEvent is the payload for attempt.started.
type AttemptStartedEvent struct {
	AttemptID     uint      `json:"attempt_id"`
	UserID        string    `json:"user_id"`
	QuizID        uint      `json:"quiz_id"`
	TopicID       uint      `json:"topic_id"`
	AttemptNumber int       `json:"attempt_number"`
	StartedAt     time.Time `json:"started_at"`
}

// AttemptCompletedEvent is the payload for attempt.completed.
type AttemptCompletedEvent struct {
	AttemptID     uint      `json:"attempt_id"`
	UserID        string    `json:"user_id"`
	QuizID        uint      `json:"quiz_id"`
	TopicID       uint      `json:"topic_id"`
	AttemptNumber int       `json:"attempt_number"`
	Score         float64   `json:"score"`
	MaxScore      float64   `json:"max_score"`
	Grade         string    `json:"grade"`
	IsBestScore   bool      `json:"is_best_score"`
	CompletedAt   time.Time `json:"completed_at"`
}

// BestScoreChangedEvent is the payload for attempt.best_score_changed,
// emitted when a later attempt takes over the best-score flag.
type BestScoreChangedEvent struct {
	AttemptID     uint    `json:"attempt_id"`
	UserID        string  `json:"user_id"`
	QuizID        uint    `json:"quiz_id"`
	AttemptNumber int     `json:"attempt_number"`
	Score         float64 `json:"score"`
	Grade         string  `json:"grade"`
}

// NewEvent stamps a payload with the service envelope.
func NewEvent(eventType string, data interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    eventSource,
		Version:   eventVersion,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventPublisher publishes attempt lifecycle events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// ===== KAFKA PUBLISHER =====

// KafkaEventPublisher publishes events to a Kafka topic via Watermill.
type KafkaEventPublisher struct {
	publisher message.Publisher
	topic     string
	logger    *slog.Logger
}

// NewKafkaEventPublisher connects to the given brokers. topic receives every
// event; routing by event type is the consumer's concern.
func NewKafkaEventPublisher(brokers []string, topic string, logger *slog.Logger) (*KafkaEventPublisher, error) {
	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:   brokers,
			Marshaler: kafka.DefaultMarshaler{},
		},
		watermill.NewSlogLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}

	return &KafkaEventPublisher{
		publisher: publisher,
		topic:     topic,
		logger:    logger,
	}, nil
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("event_type", event.Type)
	msg.Metadata.Set("source", event.Source)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		p.logger.ErrorContext(ctx, "Failed to publish event",
			"error", err,
			"event_type", event.Type,
			"event_id", event.ID)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.DebugContext(ctx, "Published event",
		"event_type", event.Type,
		"event_id", event.ID)
	return nil
}

func (p *KafkaEventPublisher) Close() error {
	return p.publisher.Close()
}

// ===== MOCK PUBLISHER =====

// MockEventPublisher records events in memory for tests and local mode.
type MockEventPublisher struct {
	mu     sync.Mutex
	events []*Event
	logger *slog.Logger
}

func NewMockEventPublisher(logger *slog.Logger) *MockEventPublisher {
	return &MockEventPublisher{logger: logger}
}

func (p *MockEventPublisher) Publish(ctx context.Context, event *Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	p.logger.DebugContext(ctx, "Mock published event", "event_type", event.Type)
	return nil
}

func (p *MockEventPublisher) Close() error {
	return nil
}

// GetPublishedEvents returns a snapshot of everything published so far.
func (p *MockEventPublisher) GetPublishedEvents() []*Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Event, len(p.events))
	copy(out, p.events)
	return out
}

func (p *MockEventPublisher) ClearEvents() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}
