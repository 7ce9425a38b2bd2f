package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types published by the attendance and device services.
const (
	TypeAttendanceMarked      = "attendance.marked"
	TypeDeviceRequestCreated  = "device.request.created"
	TypeDeviceRequestApproved = "device.request.approved"
	TypeDeviceRequestRejected = "device.request.rejected"
)

type Event interface {
	EventType() string
	EventID() string
	OccurredAt() time.Time
	Payload() interface{}
}

type BaseEvent struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

func (e BaseEvent) EventType() string     { return e.Type }
func (e BaseEvent) EventID() string       { return e.ID }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) Payload() interface{}  { return e.Data }

// NewEvent builds a BaseEvent with a generated id and the current time.
func NewEvent(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

type Handler func(ctx context.Context, event Event) error

type EventBus struct {
	handlers map[string][]Handler
	logger   *slog.Logger
	mu       sync.RWMutex
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

func (eb *EventBus) Subscribe(eventType string, handler Handler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
	eb.logger.Debug("event handler registered",
		"event_type", eventType,
		"total_handlers", len(eb.handlers[eventType]))
}

// Publish dispatches the event to all registered handlers asynchronously.
// Handler errors are logged, never propagated to the publisher.
func (eb *EventBus) Publish(ctx context.Context, event Event) {
	eb.mu.RLock()
	handlers := eb.handlers[event.EventType()]
	eb.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	for _, handler := range handlers {
		go func(h Handler) {
			if err := h(ctx, event); err != nil {
				eb.logger.Error("event handler failed",
					"event_type", event.EventType(),
					"event_id", event.EventID(),
					"error", err)
			}
		}(handler)
	}
}

// PublishSync dispatches the event in the caller's goroutine and returns
// the first handler error.
func (eb *EventBus) PublishSync(ctx context.Context, event Event) error {
	eb.mu.RLock()
	handlers := eb.handlers[event.EventType()]
	eb.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			return fmt.Errorf("handler failed for event %s: %w", event.EventType(), err)
		}
	}

	return nil
}
