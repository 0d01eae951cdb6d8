package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/workdeal-backend/internal/domain/valueobject"
)

// Dispute — эскалация по результату одного контракта.
// У контракта может быть не более одного активного (нетерминального) спора.
type Dispute struct {
	ID          uuid.UUID                 `db:"id" json:"id"`
	ContractID  uuid.UUID                 `db:"contract_id" json:"contract_id"`
	PaymentID   *uuid.UUID                `db:"payment_id" json:"payment_id,omitempty"`
	InitiatorID uuid.UUID                 `db:"initiator_id" json:"initiator_id"`
	DefendantID uuid.UUID                 `db:"defendant_id" json:"defendant_id"`
	Category    string                    `db:"category" json:"category"`
	Status      valueobject.DisputeStatus `db:"status" json:"status"`

	ResolutionType *string    `db:"resolution_type" json:"resolution_type,omitempty"`
	Resolution     *string    `db:"resolution" json:"resolution,omitempty"`
	RefundAmount   *float64   `db:"refund_amount" json:"refund_amount,omitempty"`
	ResolvedBy     *uuid.UUID `db:"resolved_by" json:"resolved_by,omitempty"`

	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// DisputeLog — запись append-only журнала событий спора.
type DisputeLog struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	DisputeID uuid.UUID  `db:"dispute_id" json:"dispute_id"`
	ActorID   *uuid.UUID `db:"actor_id" json:"actor_id,omitempty"`
	Event     string     `db:"event" json:"event"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// DisputeMessage — сообщение стороны спора или администратора.
type DisputeMessage struct {
	ID        uuid.UUID `db:"id" json:"id"`
	DisputeID uuid.UUID `db:"dispute_id" json:"dispute_id"`
	AuthorID  uuid.UUID `db:"author_id" json:"author_id"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
