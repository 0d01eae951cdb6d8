package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/ignatzorin/workdeal-backend/internal/logger"
	"github.com/ignatzorin/workdeal-backend/internal/models"
)

// Pusher доставляет уведомление подключённому пользователю в реальном
// времени. Реализуется WebSocket хабом; отсутствие соединения не ошибка.
type Pusher interface {
	Push(userID uuid.UUID, payload []byte)
}

// NotificationService сохраняет уведомления и пробует доставить их по
// WebSocket. Персистентность первична: push лишь ускоряет доставку.
type NotificationService struct {
	notifications NotificationStore
	pusher        Pusher
}

func NewNotificationService(notifications NotificationStore, pusher Pusher) *NotificationService {
	return &NotificationService{notifications: notifications, pusher: pusher}
}

// Deliver сохраняет уведомление и отправляет его в открытое соединение.
func (s *NotificationService) Deliver(ctx context.Context, task models.NotificationTask) error {
	payload, err := json.Marshal(map[string]interface{}{
		"event": task.Event,
		"data":  task.Data,
	})
	if err != nil {
		return err
	}

	n := &models.Notification{
		UserID:  task.UserID,
		Payload: payload,
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		return err
	}

	if s.pusher != nil {
		s.pusher.Push(task.UserID, payload)
	}

	logger.Log.WithFields(map[string]interface{}{
		"user_id": task.UserID,
		"event":   task.Event,
	}).Debug("уведомление доставлено")
	return nil
}

// List возвращает уведомления пользователя, новые первыми.
func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.notifications.ListByUser(ctx, userID, limit, offset)
}

// CountUnread возвращает число непрочитанных уведомлений.
func (s *NotificationService) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.notifications.CountUnread(ctx, userID)
}

// MarkRead помечает уведомление прочитанным.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	return s.notifications.MarkRead(ctx, id, userID)
}

// MarkAllRead помечает все уведомления пользователя прочитанными.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	return s.notifications.MarkAllRead(ctx, userID)
}
