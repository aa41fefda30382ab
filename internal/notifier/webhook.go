package notifier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/mmeshcher/coin-ledger/internal/metrics"
)

const (
	defaultQueueSize = 256
	deliveryTimeout  = 5 * time.Second
	drainTimeout     = 2 * time.Second
)

// WebhookNotifier складывает события в ограниченную очередь и отправляет их POST-запросом на вебхук.
type WebhookNotifier struct {
	url     string
	client  *resty.Client
	queue   chan Event
	logger  *zap.Logger
	dropped atomic.Int64
}

// NewWebhookNotifier создаёт нотификатор для указанного адреса. Доставка начинается после Run.
func NewWebhookNotifier(url string, queueSize int, logger *zap.Logger) *WebhookNotifier {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	url = strings.TrimRight(url, "/")
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}

	return &WebhookNotifier{
		url:    url,
		client: newHTTPClient(),
		queue:  make(chan Event, queueSize),
		logger: logger,
	}
}

// Publish ставит событие в очередь. При переполнении событие отбрасывается.
func (n *WebhookNotifier) Publish(_ context.Context, topic string, payload any) {
	ev := NewEvent(topic, payload)

	select {
	case n.queue <- ev:
	default:
		n.dropped.Add(1)
		metrics.NotifierEvents.WithLabelValues(topic, "dropped").Inc()
		n.logger.Warn("notifier queue is full, event dropped",
			zap.String("event_id", ev.ID.String()),
			zap.String("topic", topic),
		)
	}
}

// Dropped возвращает число событий, отброшенных из-за переполнения очереди.
func (n *WebhookNotifier) Dropped() int64 {
	return n.dropped.Load()
}

// Run доставляет события до отмены ctx, после чего пытается отправить остаток очереди.
func (n *WebhookNotifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			n.drain()
			return nil
		case ev := <-n.queue:
			n.send(ctx, ev)
		}
	}
}

func (n *WebhookNotifier) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-n.queue:
			n.send(ctx, ev)
		default:
			return
		}
	}
}

func (n *WebhookNotifier) send(ctx context.Context, ev Event) {
	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	if err := n.deliver(ctx, ev); err != nil {
		metrics.NotifierEvents.WithLabelValues(ev.Topic, "failed").Inc()
		n.logger.Warn("event delivery failed",
			zap.String("event_id", ev.ID.String()),
			zap.String("topic", ev.Topic),
			zap.Error(err),
		)
		return
	}

	metrics.NotifierEvents.WithLabelValues(ev.Topic, "delivered").Inc()
}

func (n *WebhookNotifier) deliver(ctx context.Context, ev Event) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Event-Topic", ev.Topic).
		SetHeader("X-Event-Id", ev.ID.String()).
		SetBody(ev).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode())
	}

	return nil
}

func newHTTPClient() *resty.Client {
	return resty.New().
		SetTimeout(deliveryTimeout).
		SetRetryCount(2).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		AddRetryCondition(func(_ *resty.Response, err error) bool {
			return isRetryableError(err)
		})
}

// isRetryableError отбирает сетевые ошибки; ответы сервера с ошибкой не повторяются.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}
