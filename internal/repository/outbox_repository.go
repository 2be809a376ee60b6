package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/repository/common"
)

type OutboxRepository struct {
	db *sqlx.DB
}

func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func insertOutboxEvent(ctx context.Context, tx *sqlx.Tx, ev *models.OutboxEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.Status == "" {
		ev.Status = models.OutboxStatusPending
	}
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO outbox_events (id, transaction_id, event_type, payload, status, retry_count, created_at)
		VALUES (:id, :transaction_id, :event_type, :payload, :status, :retry_count, :created_at)
	`, ev)
	if err != nil {
		return fmt.Errorf("outbox repository: insert %w", err)
	}
	return nil
}

// GetPending возвращает неотправленные события в порядке создания.
func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	events := []models.OutboxEvent{}
	query := r.db.Rebind(`
		SELECT * FROM outbox_events WHERE status = ?
		ORDER BY created_at, id LIMIT ?
	`)
	if err := r.db.SelectContext(ctx, &events, query, models.OutboxStatusPending, pageLimit(limit)); err != nil {
		return nil, fmt.Errorf("outbox repository: get pending %w", err)
	}
	return events, nil
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE outbox_events SET status = ? WHERE id = ? AND status = ?`),
		models.OutboxStatusSent, id, models.OutboxStatusPending)
	if err != nil {
		return fmt.Errorf("outbox repository: mark sent %w", err)
	}
	return common.ExpectOne(res, common.ErrNotFound)
}

// RecordFailure увеличивает счётчик попыток и помечает событие failed,
// когда попытки исчерпаны.
func (r *OutboxRepository) RecordFailure(ctx context.Context, id uuid.UUID, maxRetries int) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE outbox_events
		SET retry_count = retry_count + 1,
			status = CASE WHEN retry_count + 1 >= ? THEN ? ELSE status END
		WHERE id = ? AND status = ?
	`), maxRetries, models.OutboxStatusFailed, id, models.OutboxStatusPending)
	if err != nil {
		return fmt.Errorf("outbox repository: record failure %w", err)
	}
	return common.ExpectOne(res, common.ErrNotFound)
}
