package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/repository/common"
)

var ErrWithdrawalNotFound = errors.New("withdrawal not found")

type WithdrawalRepository struct {
	db *sqlx.DB
}

func NewWithdrawalRepository(db *sqlx.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// Create резервирует сумму: available уменьшается, pending растёт, заявка сохраняется.
func (r *WithdrawalRepository) Create(ctx context.Context, w *models.Withdrawal) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		ref := "withdrawal:" + w.ID.String()
		credit := models.WalletCredit{
			UserID:    w.UserID,
			Kind:      models.EntryWithdrawal,
			Available: w.Amount.Neg(),
			Pending:   w.Amount,
			Amount:    w.Amount,
			Reference: &ref,
		}
		if err := applyWalletCredit(ctx, tx, credit, w.CreatedAt); err != nil {
			return err
		}
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO withdrawals (
				id, user_id, amount, method, platform_fee, method_fee, net_amount, destination,
				status, rejection_reason, created_at, processed_at
			) VALUES (
				:id, :user_id, :amount, :method, :platform_fee, :method_fee, :net_amount, :destination,
				:status, :rejection_reason, :created_at, :processed_at
			)
		`, w)
		if err != nil {
			return fmt.Errorf("withdrawal repository: create %w", err)
		}
		return nil
	})
}

func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	return common.GetByID[models.Withdrawal](ctx, r.db, "withdrawals", id, ErrWithdrawalNotFound)
}

func (r *WithdrawalRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Withdrawal, error) {
	withdrawals := []models.Withdrawal{}
	query := r.db.Rebind(`
		SELECT * FROM withdrawals WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?
	`)
	if err := r.db.SelectContext(ctx, &withdrawals, query, userID, pageLimit(limit), offset); err != nil {
		return nil, fmt.Errorf("withdrawal repository: list by user %w", err)
	}
	return withdrawals, nil
}

func (r *WithdrawalRepository) ListByStatus(ctx context.Context, status string, limit, offset int) ([]models.Withdrawal, error) {
	withdrawals := []models.Withdrawal{}
	query := r.db.Rebind(`
		SELECT * FROM withdrawals WHERE status = ? ORDER BY created_at LIMIT ? OFFSET ?
	`)
	if err := r.db.SelectContext(ctx, &withdrawals, query, status, pageLimit(limit), offset); err != nil {
		return nil, fmt.Errorf("withdrawal repository: list by status %w", err)
	}
	return withdrawals, nil
}

// Complete отмечает выплату выполненной и освобождает pending.
func (r *WithdrawalRepository) Complete(ctx context.Context, w *models.Withdrawal, now time.Time) error {
	return r.finish(ctx, w, models.WithdrawalStatusCompleted, nil, now, models.WalletCredit{
		UserID:  w.UserID,
		Pending: w.Amount.Neg(),
	})
}

// Reject возвращает зарезервированную сумму в available.
func (r *WithdrawalRepository) Reject(ctx context.Context, w *models.Withdrawal, reason string, now time.Time) error {
	ref := "withdrawal_reversal:" + w.ID.String()
	return r.finish(ctx, w, models.WithdrawalStatusRejected, &reason, now, models.WalletCredit{
		UserID:    w.UserID,
		Kind:      models.EntryWithdrawalReversal,
		Available: w.Amount,
		Pending:   w.Amount.Neg(),
		Amount:    w.Amount,
		Reference: &ref,
	})
}

func (r *WithdrawalRepository) finish(ctx context.Context, w *models.Withdrawal, status string, reason *string, now time.Time, credit models.WalletCredit) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE withdrawals SET status = ?, rejection_reason = ?, processed_at = ?
			WHERE id = ? AND status = ?
		`), status, reason, now, w.ID, models.WithdrawalStatusPending)
		if err != nil {
			return fmt.Errorf("withdrawal repository: update status %w", err)
		}
		if err := common.ExpectOne(res, common.ErrStaleState); err != nil {
			return err
		}
		if credit.Available.IsZero() && credit.Pending.IsZero() {
			return nil
		}
		return applyWalletCredit(ctx, tx, credit, now)
	})
}
