package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxMessage — отложенное побочное действие, записанное в одной
// транзакции с финансовым изменением. Воркер доставляет уведомления и
// вызывает возвраты у провайдера после фиксации транзакции; повтор
// безопасен, так как задача идемпотентна по своему ID.
type OutboxMessage struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	Kind        string          `db:"kind" json:"kind"`
	EntityID    uuid.UUID       `db:"entity_id" json:"entity_id"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	Status      string          `db:"status" json:"status"`
	Attempts    int             `db:"attempts" json:"attempts"`
	LastError   *string         `db:"last_error" json:"last_error,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
}

// NotificationTask — payload задачи kind=notification.
type NotificationTask struct {
	UserID uuid.UUID   `json:"user_id"`
	Event  string      `json:"event"`
	Data   interface{} `json:"data"`
}

// ProviderRefundTask — payload задачи kind=provider_refund.
type ProviderRefundTask struct {
	PaymentID    uuid.UUID `json:"payment_id"`
	ProviderTxID string    `json:"provider_tx_id"`
	Amount       float64   `json:"amount"`
}
