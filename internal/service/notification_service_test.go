package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/repository"
)

type memNotifications struct {
	mu    sync.Mutex
	items []models.Notification
	err   error
}

func (r *memNotifications) Create(_ context.Context, n *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.items = append(r.items, *n)
	return nil
}

func (r *memNotifications) List(_ context.Context, userID uuid.UUID, _, _ int, _ bool) ([]models.Notification, error) {
	var out []models.Notification
	for _, n := range r.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *memNotifications) MarkAsRead(_ context.Context, userID, id uuid.UUID) error {
	for i := range r.items {
		if r.items[i].ID == id && r.items[i].UserID == userID {
			r.items[i].IsRead = true
			return nil
		}
	}
	return repository.ErrNotificationNotFound
}

func (r *memNotifications) CountUnread(_ context.Context, userID uuid.UUID) (int, error) {
	n := 0
	for _, item := range r.items {
		if item.UserID == userID && !item.IsRead {
			n++
		}
	}
	return n, nil
}

type recordingPusher struct {
	users []uuid.UUID
}

func (p *recordingPusher) BroadcastToUser(userID uuid.UUID, _ string, _ interface{}) error {
	p.users = append(p.users, userID)
	return nil
}

func syncNotificationService(repo NotificationRepository) *NotificationService {
	svc := NewNotificationService(repo)
	svc.async = false
	svc.now = clock
	return svc
}

func transitionEvent() models.TransitionEvent {
	b := buyerID
	return models.TransitionEvent{
		Type:          models.EventTransactionTransition,
		TransactionID: uuid.New(),
		Action:        "accept",
		From:          "PAID",
		To:            "ACCEPTED",
		SellerID:      sellerID,
		BuyerID:       &b,
	}
}

func TestNotificationService_NotifyPersistsForBothParties(t *testing.T) {
	repo := &memNotifications{}
	svc := syncNotificationService(repo)

	svc.Notify(context.Background(), transitionEvent())

	require.Len(t, repo.items, 2)
	var payload struct {
		Event string                 `json:"event"`
		Data  models.TransitionEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(repo.items[0].Payload, &payload))
	assert.Equal(t, models.EventTransactionTransition, payload.Event)
	assert.Equal(t, "ACCEPTED", payload.Data.To)
	assert.ElementsMatch(t, []uuid.UUID{sellerID, buyerID}, []uuid.UUID{repo.items[0].UserID, repo.items[1].UserID})
}

func TestNotificationService_NotifyUsesPusher(t *testing.T) {
	repo := &memNotifications{}
	pusher := &recordingPusher{}
	svc := syncNotificationService(repo)
	svc.SetPusher(pusher)

	svc.Notify(context.Background(), transitionEvent())

	assert.ElementsMatch(t, []uuid.UUID{sellerID, buyerID}, pusher.users)
	assert.Empty(t, repo.items)
}

func TestNotificationService_DeliveryFailureIsSwallowed(t *testing.T) {
	repo := &memNotifications{err: errors.New("db down")}
	svc := syncNotificationService(repo)

	assert.NotPanics(t, func() {
		svc.Notify(context.Background(), transitionEvent())
	})
}

func TestNotificationService_ReadFlow(t *testing.T) {
	repo := &memNotifications{}
	svc := syncNotificationService(repo)
	ctx := context.Background()

	n, err := svc.CreateNotification(ctx, buyerID, models.EventTransactionTransition, map[string]string{"to": "PAID"})
	require.NoError(t, err)

	count, err := svc.CountUnread(ctx, buyerID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	err = svc.MarkAsRead(ctx, sellerID, n.ID)
	assert.Error(t, err)

	require.NoError(t, svc.MarkAsRead(ctx, buyerID, n.ID))
	count, _ = svc.CountUnread(ctx, buyerID)
	assert.Equal(t, 0, count)
}
