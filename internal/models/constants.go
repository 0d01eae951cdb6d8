package models

// Роли пользователей
const (
	RoleClient = "client"
	RoleDoer   = "doer"
	RoleAdmin  = "admin"
)

// Тарифы пользователей
const (
	TierFree     = "free"
	TierPro      = "pro"
	TierSuperPro = "super_pro"
)

// Типы платежей
const (
	PaymentTypeContract      = "contract_payment"
	PaymentTypeEscrowDeposit = "escrow_deposit"
	PaymentTypePublication   = "job_publication"
	PaymentTypeBudgetRaise   = "budget_increase"
	PaymentTypeMembership    = "membership"
)

// Статусы чеков об оплате
const (
	ProofStatusPending  = "pending"
	ProofStatusApproved = "approved"
	ProofStatusRejected = "rejected"
)

// Статусы оплаты контракта
const (
	ContractPaymentUnpaid            = "unpaid"
	ContractPaymentPending           = "pending"
	ContractPaymentEscrow            = "escrow"
	ContractPaymentPendingPayout     = "pending_payout"
	ContractPaymentReleased          = "released"
	ContractPaymentRefunded          = "refunded"
	ContractPaymentPartiallyRefunded = "partially_refunded"
)

// Статусы escrow контракта
const (
	EscrowStatusNone     = "none"
	EscrowStatusHeld     = "held"
	EscrowStatusReleased = "released"
	EscrowStatusRefunded = "refunded"
)

// Типы разрешения спора
const (
	ResolutionFullRelease   = "full_release"
	ResolutionFullRefund    = "full_refund"
	ResolutionPartialRefund = "partial_refund"
	ResolutionNoAction      = "no_action"
)

// Виды задач в outbox
const (
	OutboxKindNotification   = "notification"
	OutboxKindProviderRefund = "provider_refund"
)

// Статусы задач в outbox
const (
	OutboxStatusPending    = "pending"
	OutboxStatusProcessing = "processing"
	OutboxStatusDone       = "done"
	OutboxStatusFailed     = "failed"
)

// Причина отмены контракта при снятии исполнителя с задания
const CancelReasonWorkerRemoved = "исполнитель снят с задания клиентом"

// Ограничения мульти-исполнительских заданий
const (
	MinWorkersPerJob = 1
	MaxWorkersPerJob = 5
)
