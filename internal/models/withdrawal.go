package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	WithdrawalStatusPending   = "pending"
	WithdrawalStatusCompleted = "completed"
	WithdrawalStatusRejected  = "rejected"
)

// Способы вывода средств
const (
	WithdrawalMethodBankTransfer = "bank_transfer"
	WithdrawalMethodMobileMoney  = "mobile_money"
)

type Withdrawal struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	UserID          uuid.UUID       `db:"user_id" json:"user_id"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	Method          string          `db:"method" json:"method"`
	PlatformFee     decimal.Decimal `db:"platform_fee" json:"platform_fee"`
	MethodFee       decimal.Decimal `db:"method_fee" json:"method_fee"`
	NetAmount       decimal.Decimal `db:"net_amount" json:"net_amount"`
	Destination     string          `db:"destination" json:"destination"`
	Status          string          `db:"status" json:"status"`
	RejectionReason *string         `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt     *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
}
