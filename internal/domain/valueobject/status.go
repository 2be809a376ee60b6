package valueobject

import "github.com/ignatzorin/escrow-backend/internal/pkg/apperror"

type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "PENDING"
	TransactionProcessing TransactionStatus = "PROCESSING"
	TransactionPaid       TransactionStatus = "PAID"
	TransactionAccepted   TransactionStatus = "ACCEPTED"
	TransactionShipped    TransactionStatus = "SHIPPED"
	TransactionDelivered  TransactionStatus = "DELIVERED"
	TransactionCompleted  TransactionStatus = "COMPLETED"
	TransactionDisputed   TransactionStatus = "DISPUTED"
	TransactionCancelled  TransactionStatus = "CANCELLED"
	TransactionRefunded   TransactionStatus = "REFUNDED"
	TransactionExpired    TransactionStatus = "EXPIRED"
)

func (s TransactionStatus) IsValid() bool {
	switch s {
	case TransactionPending, TransactionProcessing, TransactionPaid, TransactionAccepted,
		TransactionShipped, TransactionDelivered, TransactionCompleted, TransactionDisputed,
		TransactionCancelled, TransactionRefunded, TransactionExpired:
		return true
	}
	return false
}

// IsTerminal - из терминальных статусов переходов нет.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionCompleted, TransactionCancelled, TransactionRefunded, TransactionExpired:
		return true
	}
	return false
}

// IsEscrowHeld - деньги покупателя получены и удерживаются платформой.
func (s TransactionStatus) IsEscrowHeld() bool {
	switch s {
	case TransactionPaid, TransactionAccepted, TransactionShipped, TransactionDelivered, TransactionDisputed:
		return true
	}
	return false
}

func NewTransactionStatus(status string) (TransactionStatus, error) {
	s := TransactionStatus(status)
	if !s.IsValid() {
		return "", apperror.Validation("некорректный статус транзакции")
	}
	return s, nil
}

type DisputeStatus string

const (
	DisputeOpen           DisputeStatus = "OPEN"
	DisputeUnderReview    DisputeStatus = "UNDER_REVIEW"
	DisputeAwaitingSeller DisputeStatus = "AWAITING_SELLER"
	DisputeAwaitingBuyer  DisputeStatus = "AWAITING_BUYER"
	DisputeResolvedBuyer  DisputeStatus = "RESOLVED_BUYER"
	DisputeResolvedSeller DisputeStatus = "RESOLVED_SELLER"
	DisputeClosed         DisputeStatus = "CLOSED"
)

func (s DisputeStatus) IsValid() bool {
	switch s {
	case DisputeOpen, DisputeUnderReview, DisputeAwaitingSeller, DisputeAwaitingBuyer,
		DisputeResolvedBuyer, DisputeResolvedSeller, DisputeClosed:
		return true
	}
	return false
}

func (s DisputeStatus) IsTerminal() bool {
	switch s {
	case DisputeResolvedBuyer, DisputeResolvedSeller, DisputeClosed:
		return true
	}
	return false
}

func NewDisputeStatus(status string) (DisputeStatus, error) {
	s := DisputeStatus(status)
	if !s.IsValid() {
		return "", apperror.Validation("некорректный статус спора")
	}
	return s, nil
}
