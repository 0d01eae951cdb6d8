package service

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/ignatzorin/workdeal-backend/internal/models"
)

// notifyMessage собирает outbox-задачу уведомления. Задача пишется той же
// транзакцией, что и финансовое изменение, и доставляется воркером после
// фиксации.
func notifyMessage(entityID, userID uuid.UUID, event string, data interface{}) models.OutboxMessage {
	payload, _ := json.Marshal(models.NotificationTask{
		UserID: userID,
		Event:  event,
		Data:   data,
	})
	return models.OutboxMessage{
		Kind:     models.OutboxKindNotification,
		EntityID: entityID,
		Payload:  payload,
	}
}

// refundMessage собирает outbox-задачу возврата у провайдера. Решение о
// сумме принято в момент записи; воркер только исполняет его и может
// безопасно повторять попытки.
func refundMessage(paymentID uuid.UUID, providerTxID string, amount float64) models.OutboxMessage {
	payload, _ := json.Marshal(models.ProviderRefundTask{
		PaymentID:    paymentID,
		ProviderTxID: providerTxID,
		Amount:       amount,
	})
	return models.OutboxMessage{
		Kind:     models.OutboxKindProviderRefund,
		EntityID: paymentID,
		Payload:  payload,
	}
}
