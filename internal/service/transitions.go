package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/cache"
	"github.com/ignatzorin/escrow-backend/internal/domain/escrow"
	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/repository"
)

// DefaultCacheTTL - сколько хранится завершённая транзакция в кэше.
const DefaultCacheTTL = 10 * time.Minute

// transitionWriter записывает принятые переходы и рассылает события.
// Общий для сервисов транзакций, оплаты и споров.
type transitionWriter struct {
	txs      TransactionStore
	notifier Notifier
	cache    cache.Cache
	cacheTTL time.Duration
}

func newTransitionWriter(txs TransactionStore, notifier Notifier, c cache.Cache) *transitionWriter {
	return &transitionWriter{txs: txs, notifier: notifier, cache: c, cacheTTL: DefaultCacheTTL}
}

// SetCacheTTL задаёт время хранения завершённых транзакций в кэше.
func (w *transitionWriter) SetCacheTTL(ttl time.Duration) {
	if ttl > 0 {
		w.cacheTTL = ttl
	}
}

func (w *transitionWriter) load(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	if w.cache != nil {
		if data, ok, err := w.cache.Get(ctx, cache.TransactionKey(id.String())); err == nil && ok {
			var t models.Transaction
			if err := json.Unmarshal(data, &t); err == nil {
				return &t, nil
			}
		} else if err != nil {
			logger.Log.WithError(err).Warn("cache: чтение транзакции не удалось")
		}
	}

	t, err := w.txs.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	w.remember(ctx, t)
	return t, nil
}

// remember кэширует только терминальные транзакции: они больше не меняются.
func (w *transitionWriter) remember(ctx context.Context, t *models.Transaction) {
	if w.cache == nil || !t.Status.IsTerminal() {
		return
	}
	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	if err := w.cache.Set(ctx, cache.TransactionKey(t.ID.String()), data, w.cacheTTL); err != nil {
		logger.Log.WithError(err).Warn("cache: запись транзакции не удалась")
	}
}

// commit атомарно сохраняет переход (и изменения спора, если есть),
// затем уведомляет участников.
func (w *transitionWriter) commit(ctx context.Context, out *escrow.Outcome, disputeOut *escrow.DisputeOutcome) error {
	event, err := outboxEvent(out.Event)
	if err != nil {
		return err
	}
	change := repository.TransitionChange{
		Before:  out.Before,
		After:   out.Transaction,
		Credits: out.Credits,
		Events:  []models.OutboxEvent{event},
	}
	if disputeOut != nil {
		if disputeOut.Before == nil {
			change.NewDispute = disputeOut.Dispute
		} else {
			change.DisputeBefore = disputeOut.Before
			change.DisputeAfter = disputeOut.Dispute
		}
	}

	if err := w.txs.ApplyTransition(ctx, change); err != nil {
		logger.Log.WithFields(logrus.Fields{
			"transaction_id": out.Transaction.ID,
			"action":         out.Action,
			"from":           out.From,
		}).WithError(err).Warn("переход не записан")
		return mapRepoError(err)
	}

	logger.Log.WithFields(logrus.Fields{
		"transaction_id": out.Transaction.ID,
		"action":         out.Action,
		"from":           out.From,
		"to":             out.To,
		"actor_role":     out.Event.ActorRole,
	}).Info("transaction transition")

	w.remember(ctx, out.Transaction)
	if w.notifier != nil {
		w.notifier.Notify(ctx, out.Event)
	}
	return nil
}

func outboxEvent(ev models.TransitionEvent) (models.OutboxEvent, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("service: marshal event %w", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		TransactionID: ev.TransactionID,
		EventType:     ev.Type,
		Payload:       payload,
		Status:        models.OutboxStatusPending,
		CreatedAt:     ev.OccurredAt,
	}, nil
}
