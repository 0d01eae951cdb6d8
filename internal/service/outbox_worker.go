package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignatzorin/workdeal-backend/internal/goroutine"
	"github.com/ignatzorin/workdeal-backend/internal/logger"
	"github.com/ignatzorin/workdeal-backend/internal/models"
	"github.com/ignatzorin/workdeal-backend/internal/provider"
)

const (
	outboxBatchSize   = 50
	outboxMaxAttempts = 5
)

// RefundProvider — внешний провайдер для исполнения возвратов.
type RefundProvider interface {
	Refund(ctx context.Context, txID string, amount float64, idempotencyKey string) (*provider.RefundResult, error)
}

// OutboxWorker разбирает отложенные задачи: уведомления и возвраты
// у провайдера. Задачи пишутся в одной транзакции с финансовым
// изменением, поэтому воркер может повторять их без риска потери.
type OutboxWorker struct {
	outbox        OutboxStore
	notifications *NotificationService
	refunds       RefundProvider
	pollInterval  time.Duration
}

func NewOutboxWorker(outbox OutboxStore, notifications *NotificationService, refunds RefundProvider, pollInterval time.Duration) *OutboxWorker {
	return &OutboxWorker{
		outbox:        outbox,
		notifications: notifications,
		refunds:       refunds,
		pollInterval:  pollInterval,
	}
}

// Start запускает цикл опроса в отдельной горутине. Останавливается
// при отмене контекста.
func (w *OutboxWorker) Start(ctx context.Context) {
	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Log.Info("outbox worker: остановлен")
				return
			case <-ticker.C:
				w.runOnce(ctx)
			}
		}
	})
}

// runOnce забирает пачку задач и обрабатывает каждую.
func (w *OutboxWorker) runOnce(ctx context.Context) {
	messages, err := w.outbox.ClaimPending(ctx, outboxBatchSize)
	if err != nil {
		logger.Log.WithError(err).Error("outbox worker: не удалось получить задачи")
		return
	}

	for _, msg := range messages {
		if err := w.process(ctx, msg); err != nil {
			logger.Log.WithError(err).WithFields(map[string]interface{}{
				"message_id": msg.ID,
				"kind":       msg.Kind,
				"attempts":   msg.Attempts,
			}).Warn("outbox worker: задача не выполнена")

			if markErr := w.outbox.MarkFailed(ctx, msg.ID, err.Error(), outboxMaxAttempts); markErr != nil {
				logger.Log.WithError(markErr).Error("outbox worker: не удалось пометить задачу")
			}
			continue
		}

		if err := w.outbox.MarkDone(ctx, msg.ID); err != nil {
			logger.Log.WithError(err).WithField("message_id", msg.ID).
				Error("outbox worker: не удалось закрыть задачу")
		}
	}
}

func (w *OutboxWorker) process(ctx context.Context, msg models.OutboxMessage) error {
	switch msg.Kind {
	case models.OutboxKindNotification:
		var task models.NotificationTask
		if err := json.Unmarshal(msg.Payload, &task); err != nil {
			return fmt.Errorf("outbox: payload уведомления повреждён: %w", err)
		}
		return w.notifications.Deliver(ctx, task)

	case models.OutboxKindProviderRefund:
		var task models.ProviderRefundTask
		if err := json.Unmarshal(msg.Payload, &task); err != nil {
			return fmt.Errorf("outbox: payload возврата повреждён: %w", err)
		}
		// ID сообщения служит idempotency key: повтор задачи не
		// приводит к двойному возврату.
		result, err := w.refunds.Refund(ctx, task.ProviderTxID, task.Amount, msg.ID.String())
		if err != nil {
			return err
		}
		logger.Log.WithFields(map[string]interface{}{
			"payment_id": task.PaymentID,
			"refund_id":  result.RefundID,
			"amount":     task.Amount,
		}).Info("возврат исполнен провайдером")
		return nil

	default:
		return fmt.Errorf("outbox: неизвестный вид задачи %q", msg.Kind)
	}
}
