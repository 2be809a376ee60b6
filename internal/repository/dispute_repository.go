package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/repository/common"
)

var (
	ErrDisputeNotFound = errors.New("dispute not found")
	ErrDisputeExists   = errors.New("dispute already exists for this transaction")
)

type DisputeRepository struct {
	db *sqlx.DB
}

func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

func insertDispute(ctx context.Context, tx *sqlx.Tx, d *models.Dispute) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO disputes (
			id, transaction_id, opened_by_id, opened_by_role, reason, description, evidence, status,
			winner, resolution, resolved_by_id, resolved_at, deadline, version, created_at, updated_at
		) VALUES (
			:id, :transaction_id, :opened_by_id, :opened_by_role, :reason, :description, :evidence, :status,
			:winner, :resolution, :resolved_by_id, :resolved_at, :deadline, :version, :created_at, :updated_at
		)
	`, d)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return ErrDisputeExists
		}
		return fmt.Errorf("dispute repository: create %w", err)
	}
	return nil
}

// updateDispute - условное обновление спора по статусу и версии.
func updateDispute(ctx context.Context, tx *sqlx.Tx, before, after *models.Dispute) error {
	if before == nil {
		return fmt.Errorf("dispute repository: update %w", common.ErrInvalidInput)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE disputes SET
			evidence = ?, status = ?, winner = ?, resolution = ?, resolved_by_id = ?, resolved_at = ?,
			version = ?, updated_at = ?
		WHERE id = ? AND status = ? AND version = ?
	`), after.Evidence, after.Status, after.Winner, after.Resolution, after.ResolvedByID, after.ResolvedAt,
		after.Version, after.UpdatedAt, before.ID, before.Status, before.Version)
	if err != nil {
		return fmt.Errorf("dispute repository: update %w", err)
	}
	return common.ExpectOne(res, common.ErrStaleState)
}

// Update записывает изменение спора, не затрагивающее транзакцию.
func (r *DisputeRepository) Update(ctx context.Context, before, after *models.Dispute, events ...models.OutboxEvent) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := updateDispute(ctx, tx, before, after); err != nil {
			return err
		}
		for i := range events {
			if err := insertOutboxEvent(ctx, tx, &events[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return common.GetByID[models.Dispute](ctx, r.db, "disputes", id, ErrDisputeNotFound)
}

func (r *DisputeRepository) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.Dispute, error) {
	return common.GetByField[models.Dispute](ctx, r.db, "disputes", "transaction_id", transactionID, ErrDisputeNotFound)
}

// ListByUser - споры по транзакциям, где пользователь участник.
func (r *DisputeRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	disputes := []models.Dispute{}
	query := r.db.Rebind(`
		SELECT d.* FROM disputes d
		JOIN transactions t ON t.id = d.transaction_id
		WHERE t.seller_id = ? OR t.buyer_id = ?
		ORDER BY d.created_at DESC
		LIMIT ? OFFSET ?
	`)
	if err := r.db.SelectContext(ctx, &disputes, query, userID, userID, pageLimit(limit), offset); err != nil {
		return nil, fmt.Errorf("dispute repository: list by user %w", err)
	}
	return disputes, nil
}

// List - выборка для администратора, опционально по статусу.
func (r *DisputeRepository) List(ctx context.Context, status *valueobject.DisputeStatus, limit, offset int) ([]models.Dispute, error) {
	query := `SELECT * FROM disputes`
	var args []interface{}
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, pageLimit(limit), offset)

	disputes := []models.Dispute{}
	if err := r.db.SelectContext(ctx, &disputes, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("dispute repository: list %w", err)
	}
	return disputes, nil
}

// ListOverdue - нерешённые споры с истёкшим дедлайном.
func (r *DisputeRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.Dispute, error) {
	disputes := []models.Dispute{}
	query := r.db.Rebind(`
		SELECT * FROM disputes
		WHERE status NOT IN (?, ?, ?) AND deadline IS NOT NULL AND deadline < ?
		ORDER BY deadline
		LIMIT ?
	`)
	err := r.db.SelectContext(ctx, &disputes, query,
		valueobject.DisputeResolvedBuyer, valueobject.DisputeResolvedSeller, valueobject.DisputeClosed,
		now, pageLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("dispute repository: list overdue %w", err)
	}
	return disputes, nil
}

func (r *DisputeRepository) AddMessage(ctx context.Context, msg *models.DisputeMessage) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO dispute_messages (id, dispute_id, sender_id, sender_role, message, created_at)
		VALUES (:id, :dispute_id, :sender_id, :sender_role, :message, :created_at)
	`, msg)
	if err != nil {
		return fmt.Errorf("dispute repository: add message %w", err)
	}
	return nil
}

// ListMessages возвращает сообщения спора в порядке отправки.
func (r *DisputeRepository) ListMessages(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeMessage, error) {
	messages := []models.DisputeMessage{}
	query := r.db.Rebind(`SELECT * FROM dispute_messages WHERE dispute_id = ? ORDER BY created_at, id`)
	if err := r.db.SelectContext(ctx, &messages, query, disputeID); err != nil {
		return nil, fmt.Errorf("dispute repository: list messages %w", err)
	}
	return messages, nil
}
