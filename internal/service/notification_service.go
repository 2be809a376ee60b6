package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/goroutine"
	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/models"
)

// Pusher доставляет событие открытым websocket-соединениям пользователя.
type Pusher interface {
	BroadcastToUser(userID uuid.UUID, event string, data interface{}) error
}

const notifyTimeout = 5 * time.Second

// NotificationService содержит бизнес-логику работы с уведомлениями.
type NotificationService struct {
	repo   NotificationRepository
	pusher Pusher
	now    func() time.Time
	// async=false используется в тестах
	async bool
}

// NewNotificationService создаёт новый сервис уведомлений.
func NewNotificationService(repo NotificationRepository) *NotificationService {
	return &NotificationService{repo: repo, now: utcNow, async: true}
}

// SetPusher подключает websocket hub. Hub сам сохраняет уведомление через CreateNotification.
func (s *NotificationService) SetPusher(p Pusher) {
	s.pusher = p
}

// Notify рассылает событие продавцу и покупателю. Не блокирует и не возвращает ошибок.
func (s *NotificationService) Notify(_ context.Context, event models.TransitionEvent) {
	for _, userID := range event.Recipients() {
		s.NotifyUser(context.Background(), userID, event.Type, event)
	}
}

// NotifyUser отправляет событие одному пользователю.
func (s *NotificationService) NotifyUser(_ context.Context, userID uuid.UUID, event string, data interface{}) {
	deliver := func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		var err error
		if s.pusher != nil {
			err = s.pusher.BroadcastToUser(userID, event, data)
		} else {
			_, err = s.CreateNotification(ctx, userID, event, data)
		}
		if err != nil {
			logger.Log.WithFields(logrus.Fields{
				"user_id": userID,
				"event":   event,
			}).WithError(err).Warn("уведомление не доставлено")
		}
	}

	if s.async {
		goroutine.SafeGo(deliver)
		return
	}
	deliver()
}

// CreateNotification создаёт новое уведомление.
func (s *NotificationService) CreateNotification(ctx context.Context, userID uuid.UUID, event string, data interface{}) (*models.Notification, error) {
	payload := map[string]interface{}{
		"event": event,
		"data":  data,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("notification service: marshal payload %w", err)
	}

	notification := &models.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Payload:   payloadBytes,
		IsRead:    false,
		CreatedAt: s.now(),
	}

	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, err
	}

	return notification, nil
}

// SaveNotification - вариант CreateNotification для websocket hub.
func (s *NotificationService) SaveNotification(ctx context.Context, userID uuid.UUID, event string, data interface{}) error {
	_, err := s.CreateNotification(ctx, userID, event, data)
	return err
}

// ListNotifications возвращает список уведомлений пользователя.
func (s *NotificationService) ListNotifications(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error) {
	limit, offset = pageParams(limit, offset)
	items, err := s.repo.List(ctx, userID, limit, offset, unreadOnly)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return items, nil
}

// MarkAsRead отмечает уведомление пользователя как прочитанное.
func (s *NotificationService) MarkAsRead(ctx context.Context, userID, id uuid.UUID) error {
	return mapRepoError(s.repo.MarkAsRead(ctx, userID, id))
}

// CountUnread возвращает количество непрочитанных уведомлений.
func (s *NotificationService) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, mapRepoError(err)
	}
	return n, nil
}
