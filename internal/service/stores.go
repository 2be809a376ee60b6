package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/gateway"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/repository"
)

type TransactionStore interface {
	Create(ctx context.Context, t *models.Transaction, events ...models.OutboxEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	GetByPaymentReference(ctx context.Context, reference string) (*models.Transaction, error)
	List(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.Transaction, error)
	ApplyTransition(ctx context.Context, change repository.TransitionChange) error
}

type DisputeStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.Dispute, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error)
	List(ctx context.Context, status *valueobject.DisputeStatus, limit, offset int) ([]models.Dispute, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.Dispute, error)
	Update(ctx context.Context, before, after *models.Dispute, events ...models.OutboxEvent) error
	AddMessage(ctx context.Context, msg *models.DisputeMessage) error
	ListMessages(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeMessage, error)
}

type WalletStore interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	ListEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WalletEntry, error)
	Credit(ctx context.Context, credit models.WalletCredit, now time.Time) (*models.Wallet, error)
}

type WithdrawalStore interface {
	Create(ctx context.Context, w *models.Withdrawal) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Withdrawal, error)
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]models.Withdrawal, error)
	Complete(ctx context.Context, w *models.Withdrawal, now time.Time) error
	Reject(ctx context.Context, w *models.Withdrawal, reason string, now time.Time) error
}

// NotificationRepository описывает взаимодействие сервиса с хранилищем уведомлений.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, userID, id uuid.UUID) error
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

// Notifier доставляет событие участникам транзакции после коммита.
// Ошибки доставки не возвращаются вызывающему.
type Notifier interface {
	Notify(ctx context.Context, event models.TransitionEvent)
}

// PaymentGateway - то, что сервисы используют от платёжного шлюза.
type PaymentGateway = gateway.Gateway

func pageParams(limit, offset int) (int, int) {
	if limit <= 0 || limit > models.MaxPageSize {
		limit = models.DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func utcNow() time.Time {
	return time.Now().UTC()
}
