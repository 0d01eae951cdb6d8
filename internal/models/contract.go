package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/workdeal-backend/internal/domain/valueobject"
)

// Contract — соглашение между клиентом и одним исполнителем по заданию.
// Для мульти-исполнительских заданий создаётся по одному контракту на
// каждого выбранного исполнителя. Инвариант: TotalPrice = Price + Commission.
type Contract struct {
	ID       uuid.UUID `db:"id" json:"id"`
	JobID    uuid.UUID `db:"job_id" json:"job_id"`
	ClientID uuid.UUID `db:"client_id" json:"client_id"`
	DoerID   uuid.UUID `db:"doer_id" json:"doer_id"`

	Price      float64 `db:"price" json:"price"`
	Commission float64 `db:"commission" json:"commission"`
	TotalPrice float64 `db:"total_price" json:"total_price"`

	Status        valueobject.ContractStatus `db:"status" json:"status"`
	PaymentStatus string                     `db:"payment_status" json:"payment_status"`
	EscrowStatus  string                     `db:"escrow_status" json:"escrow_status"`
	DisputeStatus *string                    `db:"dispute_status" json:"dispute_status,omitempty"`

	ClientConfirmed bool `db:"client_confirmed" json:"client_confirmed"`
	DoerConfirmed   bool `db:"doer_confirmed" json:"doer_confirmed"`

	TermsAcceptedByClient bool `db:"terms_accepted_by_client" json:"terms_accepted_by_client"`
	TermsAcceptedByDoer   bool `db:"terms_accepted_by_doer" json:"terms_accepted_by_doer"`

	// Код сопряжения: обе стороны независимо подтверждают один и тот же
	// одноразовый токен, после чего работа считается начатой.
	PairingCode              *string    `db:"pairing_code" json:"-"`
	PairingCodeExpiresAt     *time.Time `db:"pairing_code_expires_at" json:"pairing_code_expires_at,omitempty"`
	PairingConfirmedByClient bool       `db:"pairing_confirmed_by_client" json:"pairing_confirmed_by_client"`
	PairingConfirmedByDoer   bool       `db:"pairing_confirmed_by_doer" json:"pairing_confirmed_by_doer"`

	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`

	// Продление допускается не более одного раза за время жизни контракта.
	// Ответ на запрос принимает только сторона, не подававшая его.
	HasBeenExtended      bool       `db:"has_been_extended" json:"has_been_extended"`
	ExtensionRequested   bool       `db:"extension_requested" json:"extension_requested"`
	ExtensionRequestedBy *uuid.UUID `db:"extension_requested_by" json:"extension_requested_by,omitempty"`
	ExtensionNewEndDate  *time.Time `db:"extension_new_end_date" json:"extension_new_end_date,omitempty"`
	ExtensionAmount      *float64   `db:"extension_amount" json:"extension_amount,omitempty"`

	CancellationReason *string `db:"cancellation_reason" json:"cancellation_reason,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TermsMutuallyAccepted — обе стороны приняли условия контракта.
func (c *Contract) TermsMutuallyAccepted() bool {
	return c.TermsAcceptedByClient && c.TermsAcceptedByDoer
}

// PairingConfirmed — обе стороны подтвердили код сопряжения.
func (c *Contract) PairingConfirmed() bool {
	return c.PairingConfirmedByClient && c.PairingConfirmedByDoer
}

// BothConfirmedCompletion — обе стороны подтвердили завершение работы.
func (c *Contract) BothConfirmedCompletion() bool {
	return c.ClientConfirmed && c.DoerConfirmed
}

// PriceModification — запись append-only журнала изменений цены контракта.
type PriceModification struct {
	ID         uuid.UUID `db:"id" json:"id"`
	ContractID uuid.UUID `db:"contract_id" json:"contract_id"`
	OldPrice   float64   `db:"old_price" json:"old_price"`
	NewPrice   float64   `db:"new_price" json:"new_price"`
	ActorID    uuid.UUID `db:"actor_id" json:"actor_id"`
	Reason     string    `db:"reason" json:"reason"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
