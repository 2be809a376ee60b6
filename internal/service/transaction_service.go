package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/cache"
	"github.com/ignatzorin/escrow-backend/internal/domain/escrow"
	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// TransactionService - просмотр транзакций и переходы продавца/покупателя.
type TransactionService struct {
	*transitionWriter
	machine *escrow.Machine
	now     func() time.Time
}

func NewTransactionService(txs TransactionStore, machine *escrow.Machine, notifier Notifier, c cache.Cache) *TransactionService {
	return &TransactionService{
		transitionWriter: newTransitionWriter(txs, notifier, c),
		machine:          machine,
		now:              utcNow,
	}
}

type TransactionDetail struct {
	Transaction    *models.Transaction `json:"transaction"`
	AllowedActions []escrow.Action     `json:"allowed_actions"`
}

// Get возвращает транзакцию участнику или администратору.
func (s *TransactionService) Get(ctx context.Context, actor escrow.Actor, id uuid.UUID) (*TransactionDetail, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !t.IsParticipant(actor.UserID) {
		return nil, apperror.ErrForbidden
	}
	actions := escrow.AllowedActions(t, actor)
	if actions == nil {
		actions = []escrow.Action{}
	}
	return &TransactionDetail{Transaction: t, AllowedActions: actions}, nil
}

func (s *TransactionService) List(ctx context.Context, actor escrow.Actor, filter models.TransactionFilter) ([]models.Transaction, error) {
	if actor.UserID == uuid.Nil {
		return nil, apperror.ErrUnauthorized
	}
	filter.UserID = actor.UserID
	filter.Limit, filter.Offset = pageParams(filter.Limit, filter.Offset)
	items, err := s.txs.List(ctx, filter)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return items, nil
}

func (s *TransactionService) Accept(ctx context.Context, actor escrow.Actor, id uuid.UUID, payoutContact string) (*models.Transaction, error) {
	return s.transition(ctx, id, escrow.Input{Action: escrow.ActionAccept, Actor: actor, PayoutContact: payoutContact})
}

func (s *TransactionService) Reject(ctx context.Context, actor escrow.Actor, id uuid.UUID, reason string) (*models.Transaction, error) {
	return s.transition(ctx, id, escrow.Input{Action: escrow.ActionReject, Actor: actor, Reason: reason})
}

func (s *TransactionService) Ship(ctx context.Context, actor escrow.Actor, id uuid.UUID, shipping escrow.Shipping) (*models.Transaction, error) {
	return s.transition(ctx, id, escrow.Input{Action: escrow.ActionShip, Actor: actor, Shipping: &shipping})
}

func (s *TransactionService) ConfirmDelivery(ctx context.Context, actor escrow.Actor, id uuid.UUID) (*models.Transaction, error) {
	return s.transition(ctx, id, escrow.Input{Action: escrow.ActionConfirmDelivery, Actor: actor})
}

func (s *TransactionService) Complete(ctx context.Context, actor escrow.Actor, id uuid.UUID) (*models.Transaction, error) {
	return s.transition(ctx, id, escrow.Input{Action: escrow.ActionComplete, Actor: actor})
}

func (s *TransactionService) transition(ctx context.Context, id uuid.UUID, in escrow.Input) (*models.Transaction, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	in.Now = s.now()
	out, err := s.machine.Apply(t, in)
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, out, nil); err != nil {
		return nil, err
	}
	return out.Transaction, nil
}

// ExpireDue переводит просроченные неоплаченные ссылки в EXPIRED.
// Конфликты (ссылку успели оплатить) пропускаются.
func (s *TransactionService) ExpireDue(ctx context.Context, limit int) (int, error) {
	now := s.now()
	due, err := s.txs.ListExpiredPending(ctx, now, limit)
	if err != nil {
		return 0, mapRepoError(err)
	}

	expired := 0
	for i := range due {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		t := &due[i]
		out, err := s.machine.Apply(t, escrow.Input{Action: escrow.ActionExpire, Actor: escrow.SystemActor(), Now: now})
		if err == nil {
			err = s.commit(ctx, out, nil)
		}
		if err != nil {
			if apperror.IsConflict(err) || apperror.IsInvalidTransition(err) {
				logger.Log.WithField("transaction_id", t.ID).WithError(err).Debug("expiry: пропуск")
				continue
			}
			return expired, err
		}
		expired++
	}
	if expired > 0 {
		logger.Log.WithFields(logrus.Fields{"expired": expired}).Info("expiry sweep")
	}
	return expired, nil
}
