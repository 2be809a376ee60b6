package job

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/mq"
)

type OutboxStore interface {
	GetPending(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	RecordFailure(ctx context.Context, id uuid.UUID, maxRetries int) error
}

// OutboxRelay публикует неотправленные события outbox.
// Неудачная отправка увеличивает счётчик попыток, после maxRetries событие failed.
type OutboxRelay struct {
	ticker
	store      OutboxStore
	publisher  mq.Publisher
	batchSize  int
	maxRetries int
}

func NewOutboxRelay(store OutboxStore, publisher mq.Publisher, interval time.Duration, batchSize, maxRetries int) *OutboxRelay {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &OutboxRelay{
		ticker:     newTicker("outbox_relay", interval),
		store:      store,
		publisher:  publisher,
		batchSize:  batchSize,
		maxRetries: maxRetries,
	}
}

func (r *OutboxRelay) Start(ctx context.Context) {
	r.run(ctx, func(ctx context.Context) { r.RunOnce(ctx) })
}

// RunOnce отправляет одну пачку и возвращает число отправленных событий.
func (r *OutboxRelay) RunOnce(ctx context.Context) int {
	events, err := r.store.GetPending(ctx, r.batchSize)
	if err != nil {
		logger.Log.WithField("job", r.name).WithError(err).Error("outbox: query pending failed")
		return 0
	}

	sent := 0
	for _, ev := range events {
		if ctx.Err() != nil {
			break
		}
		if r.relay(ctx, ev) {
			sent++
		}
	}
	return sent
}

func (r *OutboxRelay) relay(ctx context.Context, ev models.OutboxEvent) bool {
	fields := logrus.Fields{"job": r.name, "event_id": ev.ID, "transaction_id": ev.TransactionID, "event_type": ev.EventType}

	err := r.publisher.Publish(ctx, mq.Message{
		Key:     ev.TransactionID.String(),
		Type:    ev.EventType,
		Payload: ev.Payload,
	})
	if err == nil {
		if err := r.store.MarkSent(ctx, ev.ID); err != nil {
			logger.Log.WithFields(fields).WithError(err).Error("outbox: mark sent failed")
			return false
		}
		return true
	}

	logger.Log.WithFields(fields).WithField("retry", ev.RetryCount+1).WithError(err).Warn("outbox: publish failed")
	if err := r.store.RecordFailure(ctx, ev.ID, r.maxRetries); err != nil {
		logger.Log.WithFields(fields).WithError(err).Error("outbox: record failure failed")
	}
	return false
}
