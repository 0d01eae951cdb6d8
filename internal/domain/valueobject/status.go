package valueobject

import "github.com/ignatzorin/workdeal-backend/internal/pkg/apperror"

// PaymentStatus — замкнутый тип статусов платежа.
// Допустимые переходы описаны в paymentTransitions; любой другой переход
// отклоняется до записи в базу.
type PaymentStatus string

const (
	PaymentStatusPending            PaymentStatus = "pending"
	PaymentStatusPendingVerify      PaymentStatus = "pending_verification"
	PaymentStatusVerified           PaymentStatus = "verified"
	PaymentStatusHeldEscrow         PaymentStatus = "held_escrow"
	PaymentStatusConfirmedForPayout PaymentStatus = "confirmed_for_payout"
	PaymentStatusCompleted          PaymentStatus = "completed"
	PaymentStatusRejected           PaymentStatus = "rejected"
	PaymentStatusRefunded           PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded  PaymentStatus = "partially_refunded"
	PaymentStatusDisputed           PaymentStatus = "disputed"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:            {PaymentStatusPendingVerify, PaymentStatusVerified, PaymentStatusRejected, PaymentStatusDisputed},
	PaymentStatusPendingVerify:      {PaymentStatusVerified, PaymentStatusRejected, PaymentStatusDisputed},
	PaymentStatusVerified:           {PaymentStatusHeldEscrow, PaymentStatusCompleted, PaymentStatusDisputed},
	PaymentStatusHeldEscrow:         {PaymentStatusConfirmedForPayout, PaymentStatusDisputed},
	PaymentStatusConfirmedForPayout: {PaymentStatusCompleted, PaymentStatusDisputed},
	PaymentStatusRejected:           {PaymentStatusPendingVerify},
	// Из disputed платёж уходит в терминальные статусы решения либо, при
	// отклонении спора без последствий, обратно в кастодиальное состояние.
	PaymentStatusDisputed:          {PaymentStatusCompleted, PaymentStatusRefunded, PaymentStatusPartiallyRefunded, PaymentStatusHeldEscrow, PaymentStatusVerified},
	PaymentStatusCompleted:         {},
	PaymentStatusRefunded:          {},
	PaymentStatusPartiallyRefunded: {},
}

func (s PaymentStatus) IsValid() bool {
	_, ok := paymentTransitions[s]
	return ok
}

// IsTerminal сообщает, что платёж больше не изменяется.
// rejected намеренно не терминален: cancel-reject возвращает его в работу.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusCompleted, PaymentStatusRefunded, PaymentStatusPartiallyRefunded:
		return true
	}
	return false
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition возвращает новый статус или ошибку INVALID_STATE.
func (s PaymentStatus) Transition(next PaymentStatus) (PaymentStatus, error) {
	if !s.CanTransitionTo(next) {
		return s, apperror.New(apperror.ErrCodeInvalidState,
			"недопустимый переход платежа из статуса "+string(s)+" в "+string(next))
	}
	return next, nil
}

func NewPaymentStatus(status string) (PaymentStatus, error) {
	s := PaymentStatus(status)
	if !s.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректный статус платежа")
	}
	return s, nil
}

// ContractStatus — статусы контракта.
type ContractStatus string

const (
	ContractStatusPending      ContractStatus = "pending"
	ContractStatusAccepted     ContractStatus = "accepted"
	ContractStatusInProgress   ContractStatus = "in_progress"
	ContractStatusAwaitConfirm ContractStatus = "awaiting_confirmation"
	ContractStatusCompleted    ContractStatus = "completed"
	ContractStatusCancelled    ContractStatus = "cancelled"
	ContractStatusRejected     ContractStatus = "rejected"
	ContractStatusDisputed     ContractStatus = "disputed"
)

var contractTransitions = map[ContractStatus][]ContractStatus{
	ContractStatusPending:      {ContractStatusAccepted, ContractStatusCancelled, ContractStatusRejected},
	ContractStatusAccepted:     {ContractStatusInProgress, ContractStatusCancelled, ContractStatusRejected, ContractStatusDisputed},
	ContractStatusInProgress:   {ContractStatusAwaitConfirm, ContractStatusDisputed},
	ContractStatusAwaitConfirm: {ContractStatusCompleted, ContractStatusInProgress, ContractStatusDisputed},
	ContractStatusDisputed:     {ContractStatusCompleted, ContractStatusCancelled, ContractStatusInProgress},
	ContractStatusCompleted:    {},
	ContractStatusCancelled:    {},
	ContractStatusRejected:     {},
}

func (s ContractStatus) IsValid() bool {
	_, ok := contractTransitions[s]
	return ok
}

func (s ContractStatus) IsTerminal() bool {
	switch s {
	case ContractStatusCompleted, ContractStatusCancelled, ContractStatusRejected:
		return true
	}
	return false
}

func (s ContractStatus) CanTransitionTo(next ContractStatus) bool {
	for _, allowed := range contractTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s ContractStatus) Transition(next ContractStatus) (ContractStatus, error) {
	if !s.CanTransitionTo(next) {
		return s, apperror.New(apperror.ErrCodeInvalidState,
			"недопустимый переход контракта из статуса "+string(s)+" в "+string(next))
	}
	return next, nil
}

// DisputeStatus — статусы спора.
type DisputeStatus string

const (
	DisputeStatusOpen             DisputeStatus = "open"
	DisputeStatusInReview         DisputeStatus = "in_review"
	DisputeStatusResolvedReleased DisputeStatus = "resolved_released"
	DisputeStatusResolvedRefunded DisputeStatus = "resolved_refunded"
	DisputeStatusResolvedPartial  DisputeStatus = "resolved_partial"
	DisputeStatusClosed           DisputeStatus = "closed"
)

// IsActive сообщает, что спор ещё может быть разрешён.
func (s DisputeStatus) IsActive() bool {
	return s == DisputeStatusOpen || s == DisputeStatusInReview
}

// JobStatus — статусы задания.
type JobStatus string

const (
	JobStatusDraft          JobStatus = "draft"
	JobStatusOpen           JobStatus = "open"
	JobStatusPendingPayment JobStatus = "pending_payment"
	JobStatusInProgress     JobStatus = "in_progress"
	JobStatusCompleted      JobStatus = "completed"
	JobStatusCancelled      JobStatus = "cancelled"
)

// AllocationEligible сообщает, можно ли менять распределение бюджета.
func (s JobStatus) AllocationEligible() bool {
	return s == JobStatusOpen || s == JobStatusInProgress
}
