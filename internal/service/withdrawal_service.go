package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/domain/escrow"
	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// UserNotifier - уведомление одного пользователя о событии вне транзакции.
type UserNotifier interface {
	NotifyUser(ctx context.Context, userID uuid.UUID, event string, data interface{})
}

type WithdrawalOptions struct {
	PlatformPercent decimal.Decimal
	Methods         map[string]escrow.MethodFee
}

// DefaultWithdrawalMethods - комиссии способов вывода по умолчанию.
func DefaultWithdrawalMethods() map[string]escrow.MethodFee {
	return map[string]escrow.MethodFee{
		models.WithdrawalMethodBankTransfer: {Type: escrow.MethodFeeFlat, Value: decimal.NewFromInt(27)},
		models.WithdrawalMethodMobileMoney:  {Type: escrow.MethodFeePercentage, Value: decimal.RequireFromString("1.5")},
	}
}

type WithdrawalService struct {
	repo     WithdrawalStore
	notifier UserNotifier
	opts     WithdrawalOptions
	now      func() time.Time
}

func NewWithdrawalService(repo WithdrawalStore, notifier UserNotifier, opts WithdrawalOptions) *WithdrawalService {
	if opts.PlatformPercent.IsZero() {
		opts.PlatformPercent = escrow.WithdrawalFeePercent
	}
	if len(opts.Methods) == 0 {
		opts.Methods = DefaultWithdrawalMethods()
	}
	return &WithdrawalService{repo: repo, notifier: notifier, opts: opts, now: utcNow}
}

// Quote считает комиссии вывода без записи.
func (s *WithdrawalService) Quote(amount decimal.Decimal, method string) (escrow.FeeBreakdown, error) {
	fee, ok := s.opts.Methods[method]
	if !ok {
		return escrow.FeeBreakdown{}, apperror.Validation("неизвестный способ вывода: " + method)
	}
	return escrow.ComputeFees(amount, escrow.WithdrawalSchedule(s.opts.PlatformPercent, fee))
}

type WithdrawalRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	Destination string          `json:"destination"`
}

// CreateWithdrawal резервирует сумму на балансе. Комиссии проверяются до записи.
func (s *WithdrawalService) CreateWithdrawal(ctx context.Context, actor escrow.Actor, req WithdrawalRequest) (*models.Withdrawal, error) {
	if actor.UserID == uuid.Nil {
		return nil, apperror.ErrUnauthorized
	}
	destination := strings.TrimSpace(req.Destination)
	if destination == "" {
		return nil, apperror.Validation("реквизиты для вывода обязательны")
	}
	fees, err := s.Quote(req.Amount, req.Method)
	if err != nil {
		return nil, err
	}

	w := &models.Withdrawal{
		ID:          uuid.New(),
		UserID:      actor.UserID,
		Amount:      fees.Amount,
		Method:      req.Method,
		PlatformFee: fees.PlatformFee,
		MethodFee:   fees.MethodFee,
		NetAmount:   fees.NetAmount,
		Destination: destination,
		Status:      models.WithdrawalStatusPending,
		CreatedAt:   s.now(),
	}
	if err := s.repo.Create(ctx, w); err != nil {
		return nil, mapRepoError(err)
	}

	logger.Log.WithFields(logrus.Fields{
		"withdrawal_id": w.ID,
		"user_id":       w.UserID,
		"amount":        w.Amount.String(),
		"method":        w.Method,
	}).Info("withdrawal requested")
	return w, nil
}

func (s *WithdrawalService) GetWithdrawal(ctx context.Context, actor escrow.Actor, id uuid.UUID) (*models.Withdrawal, error) {
	w, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if w.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, apperror.ErrForbidden
	}
	return w, nil
}

func (s *WithdrawalService) ListUserWithdrawals(ctx context.Context, actor escrow.Actor, limit, offset int) ([]models.Withdrawal, error) {
	limit, offset = pageParams(limit, offset)
	items, err := s.repo.ListByUser(ctx, actor.UserID, limit, offset)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return items, nil
}

// ListPending - заявки, ожидающие обработки администратором.
func (s *WithdrawalService) ListPending(ctx context.Context, actor escrow.Actor, limit, offset int) ([]models.Withdrawal, error) {
	if !actor.IsAdmin() {
		return nil, apperror.ErrForbidden
	}
	limit, offset = pageParams(limit, offset)
	items, err := s.repo.ListByStatus(ctx, models.WithdrawalStatusPending, limit, offset)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return items, nil
}

func (s *WithdrawalService) Complete(ctx context.Context, actor escrow.Actor, id uuid.UUID) (*models.Withdrawal, error) {
	return s.process(ctx, actor, id, func(w *models.Withdrawal, now time.Time) error {
		if err := s.repo.Complete(ctx, w, now); err != nil {
			return err
		}
		w.Status = models.WithdrawalStatusCompleted
		w.ProcessedAt = &now
		return nil
	})
}

func (s *WithdrawalService) Reject(ctx context.Context, actor escrow.Actor, id uuid.UUID, reason string) (*models.Withdrawal, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperror.Validation("причина отказа обязательна")
	}
	return s.process(ctx, actor, id, func(w *models.Withdrawal, now time.Time) error {
		if err := s.repo.Reject(ctx, w, reason, now); err != nil {
			return err
		}
		w.Status = models.WithdrawalStatusRejected
		w.RejectionReason = &reason
		w.ProcessedAt = &now
		return nil
	})
}

func (s *WithdrawalService) process(ctx context.Context, actor escrow.Actor, id uuid.UUID, fn func(*models.Withdrawal, time.Time) error) (*models.Withdrawal, error) {
	if !actor.IsAdmin() {
		return nil, apperror.ErrForbidden
	}
	w, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if w.Status != models.WithdrawalStatusPending {
		return nil, apperror.InvalidTransition("заявка уже обработана")
	}
	if err := fn(w, s.now()); err != nil {
		return nil, mapRepoError(err)
	}

	logger.Log.WithFields(logrus.Fields{
		"withdrawal_id": w.ID,
		"status":        w.Status,
	}).Info("withdrawal processed")
	if s.notifier != nil {
		s.notifier.NotifyUser(ctx, w.UserID, models.EventWithdrawalUpdated, w)
	}
	return w, nil
}
