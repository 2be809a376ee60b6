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
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicateReference  = errors.New("payment reference already used")
)

// TransitionChange - всё, что должно быть записано атомарно вместе с переходом.
type TransitionChange struct {
	Before *models.Transaction
	After  *models.Transaction

	Credits []models.WalletCredit

	NewDispute    *models.Dispute
	DisputeBefore *models.Dispute
	DisputeAfter  *models.Dispute

	Events []models.OutboxEvent
}

type TransactionRepository struct {
	db *sqlx.DB
}

func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const insertTransactionQuery = `
	INSERT INTO transactions (
		id, seller_id, buyer_id, buyer_name, buyer_phone, buyer_email, buyer_address,
		product_name, product_description, amount, currency, quantity, platform_fee, seller_payout,
		status, payment_reference, expires_at, paid_at, accepted_at, shipped_at, delivered_at,
		completed_at, cancelled_at, refunded_at, rejected_at, rejection_reason, payout_contact,
		courier_name, tracking_number, estimated_delivery_date, shipping_notes,
		version, created_at, updated_at
	) VALUES (
		:id, :seller_id, :buyer_id, :buyer_name, :buyer_phone, :buyer_email, :buyer_address,
		:product_name, :product_description, :amount, :currency, :quantity, :platform_fee, :seller_payout,
		:status, :payment_reference, :expires_at, :paid_at, :accepted_at, :shipped_at, :delivered_at,
		:completed_at, :cancelled_at, :refunded_at, :rejected_at, :rejection_reason, :payout_contact,
		:courier_name, :tracking_number, :estimated_delivery_date, :shipping_notes,
		:version, :created_at, :updated_at
	)
`

// Create сохраняет новую платёжную ссылку вместе с событиями outbox.
func (r *TransactionRepository) Create(ctx context.Context, t *models.Transaction, events ...models.OutboxEvent) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, insertTransactionQuery, t); err != nil {
			return fmt.Errorf("transaction repository: create %w", err)
		}
		for i := range events {
			if err := insertOutboxEvent(ctx, tx, &events[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return common.GetByID[models.Transaction](ctx, r.db, "transactions", id, ErrTransactionNotFound)
}

func (r *TransactionRepository) GetByPaymentReference(ctx context.Context, reference string) (*models.Transaction, error) {
	return common.GetByField[models.Transaction](ctx, r.db, "transactions", "payment_reference", reference, ErrTransactionNotFound)
}

// List возвращает транзакции, где пользователь продавец и/или покупатель.
func (r *TransactionRepository) List(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	query := `SELECT * FROM transactions WHERE `
	var args []interface{}

	switch filter.Role {
	case models.RoleSeller:
		query += `seller_id = ?`
		args = append(args, filter.UserID)
	case models.RoleBuyer:
		query += `buyer_id = ?`
		args = append(args, filter.UserID)
	default:
		query += `(seller_id = ? OR buyer_id = ?)`
		args = append(args, filter.UserID, filter.UserID)
	}

	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, *filter.Status)
	}

	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, pageLimit(filter.Limit), filter.Offset)

	items := []models.Transaction{}
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("transaction repository: list %w", err)
	}
	return items, nil
}

// ListExpiredPending - неоплаченные ссылки, срок которых истёк.
func (r *TransactionRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.Transaction, error) {
	items := []models.Transaction{}
	query := r.db.Rebind(`
		SELECT * FROM transactions
		WHERE status = ? AND expires_at < ?
		ORDER BY expires_at
		LIMIT ?
	`)
	if err := r.db.SelectContext(ctx, &items, query, valueobject.TransactionPending, now, pageLimit(limit)); err != nil {
		return nil, fmt.Errorf("transaction repository: list expired %w", err)
	}
	return items, nil
}

const casTransactionQuery = `
	UPDATE transactions SET
		buyer_id = ?, buyer_name = ?, buyer_phone = ?, buyer_email = ?, buyer_address = ?,
		platform_fee = ?, seller_payout = ?, status = ?, payment_reference = ?,
		paid_at = ?, accepted_at = ?, shipped_at = ?, delivered_at = ?, completed_at = ?,
		cancelled_at = ?, refunded_at = ?, rejected_at = ?, rejection_reason = ?, payout_contact = ?,
		courier_name = ?, tracking_number = ?, estimated_delivery_date = ?, shipping_notes = ?,
		version = ?, updated_at = ?
	WHERE id = ? AND status = ? AND version = ?
`

// ApplyTransition записывает переход одной транзакцией БД: условное обновление
// строки транзакции, спор, кошельки и outbox. Если строка уже изменилась,
// возвращает common.ErrStaleState и ничего не записывает.
func (r *TransactionRepository) ApplyTransition(ctx context.Context, change TransitionChange) error {
	before, after := change.Before, change.After
	if before == nil || after == nil || before.ID != after.ID {
		return fmt.Errorf("transaction repository: apply transition %w", common.ErrInvalidInput)
	}

	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(casTransactionQuery),
			after.BuyerID, after.BuyerName, after.BuyerPhone, after.BuyerEmail, after.BuyerAddress,
			after.PlatformFee, after.SellerPayout, after.Status, after.PaymentReference,
			after.PaidAt, after.AcceptedAt, after.ShippedAt, after.DeliveredAt, after.CompletedAt,
			after.CancelledAt, after.RefundedAt, after.RejectedAt, after.RejectionReason, after.PayoutContact,
			after.CourierName, after.TrackingNumber, after.EstimatedDeliveryDate, after.ShippingNotes,
			after.Version, after.UpdatedAt,
			before.ID, before.Status, before.Version,
		)
		if err != nil {
			if common.IsUniqueViolation(err) {
				return ErrDuplicateReference
			}
			return fmt.Errorf("transaction repository: update %w", err)
		}
		if err := common.ExpectOne(res, common.ErrStaleState); err != nil {
			return err
		}

		if change.NewDispute != nil {
			if err := insertDispute(ctx, tx, change.NewDispute); err != nil {
				return err
			}
		}
		if change.DisputeAfter != nil {
			if err := updateDispute(ctx, tx, change.DisputeBefore, change.DisputeAfter); err != nil {
				return err
			}
		}

		for _, credit := range change.Credits {
			if err := applyWalletCredit(ctx, tx, credit, after.UpdatedAt); err != nil {
				return err
			}
		}

		for i := range change.Events {
			if err := insertOutboxEvent(ctx, tx, &change.Events[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func pageLimit(limit int) int {
	if limit <= 0 {
		return models.DefaultPageSize
	}
	if limit > models.MaxPageSize {
		return models.MaxPageSize
	}
	return limit
}
