package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/workdeal-backend/internal/domain/valueobject"
)

// Job — единица работы, порождающая от 1 до MaxWorkers контрактов
// (по одному на выбранного исполнителя).
// Инвариант: сумма долей исполнителей равна AllocatedTotal и не превышает Price.
type Job struct {
	ID       uuid.UUID `db:"id" json:"id"`
	ClientID uuid.UUID `db:"client_id" json:"client_id"`

	Title       string `db:"title" json:"title"`
	Description string `db:"description" json:"description"`

	Price float64 `db:"price" json:"price"`
	// OriginalPrice — исторический максимум оплаченной цены. Используется
	// при повышении бюджета, чтобы не брать оплату за уже оплаченное.
	OriginalPrice float64 `db:"original_price" json:"original_price"`

	Status valueobject.JobStatus `db:"status" json:"status"`
	// PreviousStatus хранит статус до входа в pending_payment,
	// чтобы cancel-budget-change мог его восстановить.
	PreviousStatus *string `db:"previous_status" json:"previous_status,omitempty"`

	MaxWorkers      int     `db:"max_workers" json:"max_workers"`
	AllocatedTotal  float64 `db:"allocated_total" json:"allocated_total"`
	RemainingBudget float64 `db:"remaining_budget" json:"remaining_budget"`

	PendingNewPrice      *float64 `db:"pending_new_price" json:"pending_new_price,omitempty"`
	PendingPriceDecrease bool     `db:"pending_price_decrease" json:"pending_price_decrease"`

	PublicationFeePaid bool `db:"publication_fee_paid" json:"publication_fee_paid"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	Allocations []WorkerAllocation `json:"worker_allocations,omitempty"`
}

// WorkerAllocation — доля бюджета задания, закреплённая за исполнителем.
type WorkerAllocation struct {
	ID         uuid.UUID `db:"id" json:"id"`
	JobID      uuid.UUID `db:"job_id" json:"job_id"`
	WorkerID   uuid.UUID `db:"worker_id" json:"worker_id"`
	Amount     float64   `db:"amount" json:"allocated_amount"`
	Percentage float64   `db:"percentage" json:"percentage"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// SelectedWorker — исполнитель, выбранный клиентом для задания.
type SelectedWorker struct {
	JobID     uuid.UUID `db:"job_id" json:"job_id"`
	WorkerID  uuid.UUID `db:"worker_id" json:"worker_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PriceDecreaseVote — голос держателя активного контракта/отклика
// по предложению о снижении бюджета.
type PriceDecreaseVote struct {
	ID        uuid.UUID `db:"id" json:"id"`
	JobID     uuid.UUID `db:"job_id" json:"job_id"`
	VoterID   uuid.UUID `db:"voter_id" json:"voter_id"`
	Accepted  bool      `db:"accepted" json:"accepted"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
