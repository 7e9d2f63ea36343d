// Package memory is the dry-run publisher: run notifications are logged and
// kept in memory instead of being sent to a broker.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-crawler/internal/logging"
	"github.com/JakeFAU/jobpost-crawler/internal/publisher"
)

// Publisher logs every notification and keeps it for inspection.
type Publisher struct {
	logger *zap.Logger

	mu     sync.RWMutex
	events []Event
}

// Event is one recorded notification.
type Event struct {
	ID      string
	Topic   string
	Payload json.RawMessage
}

// New returns a dry-run Publisher.
func New(logger *zap.Logger) *Publisher {
	return &Publisher{logger: logging.OrNop(logger).Named("dry_run_publisher")}
}

// Publish encodes payload the same way the Pub/Sub publisher does, logs it
// and returns a local ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", fmt.Errorf("topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	p.mu.Lock()
	id := fmt.Sprintf("dry-run-%d", len(p.events)+1)
	p.events = append(p.events, Event{ID: id, Topic: topic, Payload: data})
	p.mu.Unlock()

	fields := []zap.Field{zap.String("topic", topic), zap.String("message_id", id)}
	if ev, ok := payload.(publisher.RunCompleted); ok {
		fields = append(fields,
			zap.String("run_id", ev.RunID),
			zap.Int("jobs", ev.Jobs),
			zap.Int("failures", ev.Failures),
		)
	}
	p.logger.Info("run notification not sent (dry run)", append(fields, zap.ByteString("payload", data))...)
	return id, nil
}

// Events returns a copy of the recorded notifications.
func (p *Publisher) Events() []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}
