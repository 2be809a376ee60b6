package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Типы записей журнала кошелька
const (
	EntrySalePayout         = "sale_payout"
	EntryRefund             = "refund"
	EntryPurchase           = "purchase"
	EntryTopup              = "topup"
	EntryWithdrawal         = "withdrawal"
	EntryWithdrawalReversal = "withdrawal_reversal"
)

// Wallet - баланс пользователя. Суммы никогда не становятся отрицательными.
type Wallet struct {
	UserID           uuid.UUID       `db:"user_id" json:"user_id"`
	AvailableBalance decimal.Decimal `db:"available_balance" json:"available_balance"`
	PendingBalance   decimal.Decimal `db:"pending_balance" json:"pending_balance"`
	TotalEarned      decimal.Decimal `db:"total_earned" json:"total_earned"`
	TotalSpent       decimal.Decimal `db:"total_spent" json:"total_spent"`
	Version          int             `db:"version" json:"-"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// NewWallet создаёт пустой кошелёк.
func NewWallet(userID uuid.UUID, now time.Time) *Wallet {
	return &Wallet{
		UserID:           userID,
		AvailableBalance: decimal.Zero,
		PendingBalance:   decimal.Zero,
		TotalEarned:      decimal.Zero,
		TotalSpent:       decimal.Zero,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// WalletEntry - запись журнала движения средств.
type WalletEntry struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	UserID        uuid.UUID       `db:"user_id" json:"user_id"`
	TransactionID *uuid.UUID      `db:"transaction_id" json:"transaction_id,omitempty"`
	Kind          string          `db:"kind" json:"kind"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Reference     *string         `db:"reference" json:"reference,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// WalletCredit - изменение кошелька, которое должно быть записано вместе с переходом.
// Available и Pending могут быть отрицательными (списание), Earned и Spent только растут.
type WalletCredit struct {
	UserID        uuid.UUID
	TransactionID *uuid.UUID
	Kind          string
	Available     decimal.Decimal
	Pending       decimal.Decimal
	Earned        decimal.Decimal
	Spent         decimal.Decimal
	// Amount попадает в журнал
	Amount    decimal.Decimal
	Reference *string
}

// Apply применяет изменение к кошельку. Возвращает false, если баланс ушёл бы в минус.
func (w *Wallet) Apply(c WalletCredit, now time.Time) bool {
	available := w.AvailableBalance.Add(c.Available)
	pending := w.PendingBalance.Add(c.Pending)
	if available.IsNegative() || pending.IsNegative() {
		return false
	}
	w.AvailableBalance = available
	w.PendingBalance = pending
	w.TotalEarned = w.TotalEarned.Add(c.Earned)
	w.TotalSpent = w.TotalSpent.Add(c.Spent)
	w.UpdatedAt = now
	return true
}
