package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/repository/common"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

const driverPostgres = "postgres"

type WalletRepository struct {
	db *sqlx.DB
}

func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Get возвращает кошелёк пользователя, создаёт пустой если его нет.
func (r *WalletRepository) Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if err := ensureWallet(ctx, r.db, userID, time.Now().UTC()); err != nil {
		return nil, err
	}
	return getWallet(ctx, r.db, userID)
}

func (r *WalletRepository) ListEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WalletEntry, error) {
	entries := []models.WalletEntry{}
	query := r.db.Rebind(`
		SELECT * FROM wallet_entries WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?
	`)
	if err := r.db.SelectContext(ctx, &entries, query, userID, pageLimit(limit), offset); err != nil {
		return nil, fmt.Errorf("wallet repository: list entries %w", err)
	}
	return entries, nil
}

// Credit применяет одно изменение кошелька в отдельной транзакции (пополнение).
// Повтор с тем же Reference возвращает ErrDuplicateReference.
func (r *WalletRepository) Credit(ctx context.Context, credit models.WalletCredit, now time.Time) (*models.Wallet, error) {
	var wallet *models.Wallet
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := applyWalletCredit(ctx, tx, credit, now); err != nil {
			return err
		}
		w, err := getWallet(ctx, tx, credit.UserID)
		if err != nil {
			return err
		}
		wallet = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

func ensureWallet(ctx context.Context, q common.Queryer, userID uuid.UUID, now time.Time) error {
	query := q.Rebind(`
		INSERT INTO wallets (user_id, available_balance, pending_balance, total_earned, total_spent, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT (user_id) DO NOTHING
	`)
	if _, err := q.ExecContext(ctx, query, userID, decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero, now, now); err != nil {
		return fmt.Errorf("wallet repository: ensure %w", err)
	}
	return nil
}

func getWallet(ctx context.Context, q common.Queryer, userID uuid.UUID) (*models.Wallet, error) {
	return common.GetByField[models.Wallet](ctx, q, "wallets", "user_id", userID, common.ErrNotFound)
}

// applyWalletCredit изменяет баланс и пишет запись журнала.
// В postgres изменение относительное: параллельные зачисления не конфликтуют,
// а условие в WHERE не даёт балансу уйти в минус.
func applyWalletCredit(ctx context.Context, tx *sqlx.Tx, credit models.WalletCredit, now time.Time) error {
	if err := ensureWallet(ctx, tx, credit.UserID, now); err != nil {
		return err
	}
	var err error
	if tx.DriverName() == driverPostgres {
		err = addToWallet(ctx, tx, credit, now)
	} else {
		err = rewriteWallet(ctx, tx, credit, now)
	}
	if err != nil {
		return err
	}

	if credit.Kind == "" {
		return nil
	}
	entry := models.WalletEntry{
		ID:            uuid.New(),
		UserID:        credit.UserID,
		TransactionID: credit.TransactionID,
		Kind:          credit.Kind,
		Amount:        credit.Amount,
		Reference:     credit.Reference,
		CreatedAt:     now,
	}
	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO wallet_entries (id, user_id, transaction_id, kind, amount, reference, created_at)
		VALUES (:id, :user_id, :transaction_id, :kind, :amount, :reference, :created_at)
	`, entry)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("wallet repository: insert entry %w", err)
	}
	return nil
}

func addToWallet(ctx context.Context, tx *sqlx.Tx, c models.WalletCredit, now time.Time) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE wallets SET
			available_balance = available_balance + ?, pending_balance = pending_balance + ?,
			total_earned = total_earned + ?, total_spent = total_spent + ?,
			version = version + 1, updated_at = ?
		WHERE user_id = ? AND available_balance + ? >= 0 AND pending_balance + ? >= 0
	`), c.Available, c.Pending, c.Earned, c.Spent, now, c.UserID, c.Available, c.Pending)
	if err != nil {
		return fmt.Errorf("wallet repository: update %w", err)
	}
	// строка уже создана ensureWallet, поэтому ноль строк - это нехватка средств
	return common.ExpectOne(res, ErrInsufficientFunds)
}

// rewriteWallet считает баланс в Go. В sqlite суммы хранятся текстом, а запись
// сериализована блокировкой базы, взятой ещё в ensureWallet.
func rewriteWallet(ctx context.Context, tx *sqlx.Tx, c models.WalletCredit, now time.Time) error {
	w, err := getWallet(ctx, tx, c.UserID)
	if err != nil {
		return err
	}
	version := w.Version
	if !w.Apply(c, now) {
		return ErrInsufficientFunds
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE wallets SET
			available_balance = ?, pending_balance = ?, total_earned = ?, total_spent = ?,
			version = version + 1, updated_at = ?
		WHERE user_id = ? AND version = ?
	`), w.AvailableBalance, w.PendingBalance, w.TotalEarned, w.TotalSpent, now, w.UserID, version)
	if err != nil {
		return fmt.Errorf("wallet repository: update %w", err)
	}
	return common.ExpectOne(res, common.ErrStaleState)
}
