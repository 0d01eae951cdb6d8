package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/workdeal-backend/internal/domain/valueobject"
)

// Payment представляет одно движение средств с одной целью:
// оплата контракта, депозит в escrow, публикация задания, доплата бюджета
// или членский взнос. Комиссия входит в Amount и никогда не возвращается.
type Payment struct {
	ID               uuid.UUID                 `db:"id" json:"id"`
	PayerID          uuid.UUID                 `db:"payer_id" json:"payer_id"`
	RecipientID      *uuid.UUID                `db:"recipient_id" json:"recipient_id,omitempty"`
	ContractID       *uuid.UUID                `db:"contract_id" json:"contract_id,omitempty"`
	JobID            *uuid.UUID                `db:"job_id" json:"job_id,omitempty"`
	Amount           float64                   `db:"amount" json:"amount"`
	Currency         string                    `db:"currency" json:"currency"`
	Type             string                    `db:"payment_type" json:"payment_type"`
	Status           valueobject.PaymentStatus `db:"status" json:"status"`
	ProviderTxID     *string                   `db:"provider_tx_id" json:"provider_tx_id,omitempty"`
	Commission       float64                   `db:"commission" json:"commission"`
	IsEscrow         bool                      `db:"is_escrow" json:"is_escrow"`
	RefundedAmount   float64                   `db:"refunded_amount" json:"refunded_amount"`
	AdminNotes       *string                   `db:"admin_notes" json:"admin_notes,omitempty"`
	ApprovedAt       *time.Time                `db:"approved_at" json:"approved_at,omitempty"`
	EscrowVerifiedAt *time.Time                `db:"escrow_verified_at" json:"escrow_verified_at,omitempty"`
	RefundedAt       *time.Time                `db:"refunded_at" json:"refunded_at,omitempty"`
	CreatedAt        time.Time                 `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time                 `db:"updated_at" json:"updated_at"`
}

// EscrowEligible сообщает, может ли платёж такого типа попасть в escrow.
func (p *Payment) EscrowEligible() bool {
	return p.Type == PaymentTypeContract || p.Type == PaymentTypeEscrowDeposit
}

// RefundableAmount — максимум, который можно вернуть плательщику.
// Комиссия платформы не возвращается ни при полном, ни при частичном возврате.
func (p *Payment) RefundableAmount() float64 {
	refundable := p.Amount - p.Commission - p.RefundedAmount
	if refundable < 0 {
		return 0
	}
	return refundable
}

// PaymentProof — чек/подтверждение перевода, загруженное плательщиком.
// У платежа может быть не более одного чека в статусе pending.
type PaymentProof struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PaymentID uuid.UUID `db:"payment_id" json:"payment_id"`
	FilePath  string    `db:"file_path" json:"file_path"`
	Status    string    `db:"status" json:"status"`
	Comment   *string   `db:"comment" json:"comment,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// PaymentAudit — запись аудита о переходе платежа между статусами.
type PaymentAudit struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	PaymentID  uuid.UUID  `db:"payment_id" json:"payment_id"`
	ActorID    *uuid.UUID `db:"actor_id" json:"actor_id,omitempty"`
	FromStatus string     `db:"from_status" json:"from_status"`
	ToStatus   string     `db:"to_status" json:"to_status"`
	Reason     *string    `db:"reason" json:"reason,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// UserBalance — внутренний баланс пользователя. Сюда попадают кредиты
// при снижении бюджета оплаченного задания (возврат без провайдера).
type UserBalance struct {
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Available float64   `db:"available" json:"available"`
	Credit    float64   `db:"credit" json:"credit"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
