// Package notifier доставляет доменные события во внешний канал реального времени.
// Доставка best-effort: ошибки логируются и никогда не возвращаются вызывающему.
package notifier

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Темы событий вывода монет.
const (
	TopicWithdrawalCreated       = "withdrawal.created"
	TopicWithdrawalStatusChanged = "withdrawal.status_changed"
)

// Publisher публикует событие по принципу fire-and-forget.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any)
}

// Event описывает конверт события, который уходит во внешний канал.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Topic      string    `json:"topic"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// NewEvent оборачивает полезную нагрузку в конверт с новым идентификатором.
func NewEvent(topic string, payload any) Event {
	return Event{
		ID:         uuid.New(),
		Topic:      topic,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// LogNotifier пишет события в лог. Используется, когда адрес вебхука не задан.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier создаёт LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Publish записывает событие в лог.
func (n *LogNotifier) Publish(_ context.Context, topic string, payload any) {
	ev := NewEvent(topic, payload)
	n.logger.Info("event published",
		zap.String("event_id", ev.ID.String()),
		zap.String("topic", ev.Topic),
		zap.Any("payload", ev.Payload),
	)
}
