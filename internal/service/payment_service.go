package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ignatzorin/workdeal-backend/internal/domain/valueobject"
	"github.com/ignatzorin/workdeal-backend/internal/logger"
	"github.com/ignatzorin/workdeal-backend/internal/models"
	"github.com/ignatzorin/workdeal-backend/internal/pkg/apperror"
	"github.com/ignatzorin/workdeal-backend/internal/repository"
)

// PaymentService управляет жизненным циклом платежа. Все переходы идут
// через условное обновление по текущему статусу; повтор уже применённого
// действия возвращает ALREADY_PROCESSED и не дублирует побочные эффекты.
type PaymentService struct {
	payments  PaymentStore
	contracts ContractStore
	jobs      JobStore
}

func NewPaymentService(payments PaymentStore, contracts ContractStore, jobs JobStore) *PaymentService {
	return &PaymentService{payments: payments, contracts: contracts, jobs: jobs}
}

// CreatePaymentInput — параметры создания платежа.
// Amount включает комиссию; Commission хранится отдельно, чтобы возвраты
// никогда её не затрагивали.
type CreatePaymentInput struct {
	PayerID     uuid.UUID
	RecipientID *uuid.UUID
	ContractID  *uuid.UUID
	JobID       *uuid.UUID
	Amount      float64
	Currency    string
	Type        string
	Commission  float64
}

var validPaymentTypes = map[string]bool{
	models.PaymentTypeContract:      true,
	models.PaymentTypeEscrowDeposit: true,
	models.PaymentTypePublication:   true,
	models.PaymentTypeBudgetRaise:   true,
	models.PaymentTypeMembership:    true,
}

// CreatePayment создаёт платёж в статусе pending.
func (s *PaymentService) CreatePayment(ctx context.Context, input CreatePaymentInput) (*models.Payment, error) {
	if !validPaymentTypes[input.Type] {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестный тип платежа")
	}
	if input.Amount <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "сумма платежа должна быть положительной")
	}
	if input.Commission < 0 || input.Commission > input.Amount {
		return nil, apperror.New(apperror.ErrCodeValidation, "комиссия не может превышать сумму платежа")
	}
	if input.Type == models.PaymentTypeContract && input.ContractID == nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "платёж по контракту требует ссылку на контракт")
	}

	currency := input.Currency
	if currency == "" {
		currency = valueobject.DefaultCurrency
	}

	p := &models.Payment{
		PayerID:     input.PayerID,
		RecipientID: input.RecipientID,
		ContractID:  input.ContractID,
		JobID:       input.JobID,
		Amount:      input.Amount,
		Currency:    currency,
		Type:        input.Type,
		Status:      valueobject.PaymentStatusPending,
		Commission:  input.Commission,
		IsEscrow:    input.Type == models.PaymentTypeContract || input.Type == models.PaymentTypeEscrowDeposit,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPayment возвращает платёж по идентификатору.
func (s *PaymentService) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return s.payments.GetByID(ctx, id)
}

// ListByPayer возвращает платежи пользователя.
func (s *PaymentService) ListByPayer(ctx context.Context, payerID uuid.UUID, limit, offset int) ([]models.Payment, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.payments.ListByPayer(ctx, payerID, limit, offset)
}

// ListAudit возвращает журнал аудита платежа.
func (s *PaymentService) ListAudit(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentAudit, error) {
	return s.payments.ListAudit(ctx, paymentID)
}

// SubmitProof прикладывает чек об оплате и переводит платёж на проверку.
func (s *PaymentService) SubmitProof(ctx context.Context, paymentID, payerID uuid.UUID, filePath string, comment *string) (*models.Payment, error) {
	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.PayerID != payerID {
		return nil, apperror.ErrForbidden
	}
	if p.Status != valueobject.PaymentStatusPending && p.Status != valueobject.PaymentStatusPendingVerify {
		return nil, apperror.New(apperror.ErrCodeInvalidState,
			"чек можно приложить только к платежу, ожидающему оплаты или проверки")
	}

	proof := &models.PaymentProof{
		PaymentID: paymentID,
		FilePath:  filePath,
		Comment:   comment,
	}
	if err := s.payments.CreateProof(ctx, proof); err != nil {
		if errors.Is(err, repository.ErrDuplicatePendingProof) {
			return nil, apperror.New(apperror.ErrCodeConflict, "у платежа уже есть чек на проверке")
		}
		return nil, err
	}

	if p.Status == valueobject.PaymentStatusPending {
		updated, err := s.payments.Transition(ctx, repository.PaymentTransition{
			PaymentID: paymentID,
			From:      valueobject.PaymentStatusPending,
			To:        valueobject.PaymentStatusPendingVerify,
			ActorID:   &payerID,
		})
		if err != nil {
			return nil, s.mapTransitionErr(err)
		}
		return updated, nil
	}
	return p, nil
}

// ApproveProof подтверждает оплату: платёж переходит в verified, приложенный
// чек помечается approved. Чек не обязателен — платежи, подтверждённые
// провайдером, проходят без него.
func (s *PaymentService) ApproveProof(ctx context.Context, paymentID, actorID uuid.UUID, notes *string) (*models.Payment, error) {
	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := s.checkTransition(p, valueobject.PaymentStatusVerified); err != nil {
		return nil, err
	}

	proofFrom, proofTo := models.ProofStatusPending, models.ProofStatusApproved
	t := repository.PaymentTransition{
		PaymentID:       paymentID,
		From:            p.Status,
		To:              valueobject.PaymentStatusVerified,
		ActorID:         &actorID,
		Notes:           notes,
		SetApprovedAt:   true,
		ProofFromStatus: &proofFrom,
		ProofToStatus:   &proofTo,
		Outbox:          paymentParticipantNotifications(p, "payment.verified"),
	}
	updated, err := s.payments.Transition(ctx, t)
	if err != nil {
		return nil, s.mapTransitionErr(err)
	}

	logger.Financial("payment", string(p.Status), string(updated.Status)).
		WithField("payment_id", paymentID).Info("оплата подтверждена")
	return updated, nil
}

// RejectPayment отклоняет платёж. Причина обязательна; приложенный чек
// помечается rejected.
func (s *PaymentService) RejectPayment(ctx context.Context, paymentID, actorID uuid.UUID, reason string, notes *string) (*models.Payment, error) {
	if reason == "" {
		return nil, apperror.New(apperror.ErrCodeMissingReason, "причина отклонения обязательна")
	}

	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := s.checkTransition(p, valueobject.PaymentStatusRejected); err != nil {
		return nil, err
	}

	proofFrom, proofTo := models.ProofStatusPending, models.ProofStatusRejected
	updated, err := s.payments.Transition(ctx, repository.PaymentTransition{
		PaymentID:       paymentID,
		From:            p.Status,
		To:              valueobject.PaymentStatusRejected,
		ActorID:         &actorID,
		Reason:          &reason,
		Notes:           notes,
		ProofFromStatus: &proofFrom,
		ProofToStatus:   &proofTo,
		Outbox: []models.OutboxMessage{
			notifyMessage(paymentID, p.PayerID, "payment.rejected", map[string]interface{}{
				"payment_id": paymentID,
				"reason":     reason,
			}),
		},
	})
	if err != nil {
		return nil, s.mapTransitionErr(err)
	}

	logger.Financial("payment", string(p.Status), string(updated.Status)).
		WithField("payment_id", paymentID).WithField("reason", reason).Info("платёж отклонён")
	return updated, nil
}

// VerifyEscrow — второй, отдельный шаг проверки: подтверждение фактического
// зачисления средств в escrow. Проверка чека и фиксация средств — разные
// границы доверия, поэтому шаги не объединяются в один.
func (s *PaymentService) VerifyEscrow(ctx context.Context, paymentID, actorID uuid.UUID, notes *string) (*models.Payment, error) {
	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !p.EscrowEligible() {
		return nil, apperror.New(apperror.ErrCodeWrongType,
			"в escrow попадают только платежи по контракту и депозиты")
	}
	if err := s.checkTransition(p, valueobject.PaymentStatusHeldEscrow); err != nil {
		return nil, err
	}

	updated, err := s.payments.Transition(ctx, repository.PaymentTransition{
		PaymentID:           paymentID,
		From:                p.Status,
		To:                  valueobject.PaymentStatusHeldEscrow,
		ActorID:             &actorID,
		Notes:               notes,
		SetEscrowVerifiedAt: true,
		Outbox:              paymentParticipantNotifications(p, "payment.escrow_held"),
	})
	if err != nil {
		return nil, s.mapTransitionErr(err)
	}

	logger.Financial("payment", string(p.Status), string(updated.Status)).
		WithField("payment_id", paymentID).Info("средства зачислены в escrow")

	// Контракт реагирует на событие escrow: отмечаем удержание и, если
	// условия уже приняты обеими сторонами, открываем работу. Ошибка здесь
	// не откатывает платёж: переход контракта повторится при следующем чтении.
	if p.ContractID != nil {
		if err := s.reactContractToEscrow(ctx, *p.ContractID); err != nil {
			logger.Financial("contract", "", "").
				WithField("contract_id", *p.ContractID).
				WithError(err).Warn("не удалось обновить контракт после escrow")
		}
	}
	return updated, nil
}

// reactContractToEscrow переводит контракт в escrow-состояние и, при
// взаимно принятых условиях, в in_progress (escrow-ворота, независимые от
// кода сопряжения).
func (s *PaymentService) reactContractToEscrow(ctx context.Context, contractID uuid.UUID) error {
	c, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return err
	}

	expected := c.Status
	c.PaymentStatus = models.ContractPaymentEscrow
	c.EscrowStatus = models.EscrowStatusHeld

	var outbox []models.OutboxMessage
	if c.Status == valueobject.ContractStatusAccepted && c.TermsMutuallyAccepted() {
		c.Status = valueobject.ContractStatusInProgress
		outbox = contractParticipantNotifications(c, "contract.in_progress")
	}
	if err := s.contracts.UpdateGuarded(ctx, c, expected, outbox); err != nil {
		return err
	}
	return s.raiseJobPaidMaximum(ctx, c.JobID)
}

// raiseJobPaidMaximum поднимает оплаченный максимум бюджета задания до
// текущей цены. Последующее повышение цены тарифицируется только на
// разницу с этим максимумом.
func (s *PaymentService) raiseJobPaidMaximum(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.OriginalPrice >= job.Price {
		return nil
	}
	expected := job.Status
	job.OriginalPrice = job.Price
	return s.jobs.UpdateGuarded(ctx, job, expected, nil)
}

// ConfirmForPayout отмечает, что средства готовы к выплате исполнителю.
// Допустим только из held_escrow.
func (s *PaymentService) ConfirmForPayout(ctx context.Context, paymentID, actorID uuid.UUID, notes *string) (*models.Payment, error) {
	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := s.checkTransition(p, valueobject.PaymentStatusConfirmedForPayout); err != nil {
		return nil, err
	}

	updated, err := s.payments.Transition(ctx, repository.PaymentTransition{
		PaymentID: paymentID,
		From:      p.Status,
		To:        valueobject.PaymentStatusConfirmedForPayout,
		ActorID:   &actorID,
		Notes:     notes,
		Outbox:    paymentParticipantNotifications(p, "payment.confirmed_for_payout"),
	})
	if err != nil {
		return nil, s.mapTransitionErr(err)
	}

	logger.Financial("payment", string(p.Status), string(updated.Status)).
		WithField("payment_id", paymentID).Info("выплата подтверждена")
	return updated, nil
}

// ReleasePayout завершает платёж после выплаты исполнителю.
func (s *PaymentService) ReleasePayout(ctx context.Context, paymentID, actorID uuid.UUID, notes *string) (*models.Payment, error) {
	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := s.checkTransition(p, valueobject.PaymentStatusCompleted); err != nil {
		return nil, err
	}

	updated, err := s.payments.Transition(ctx, repository.PaymentTransition{
		PaymentID: paymentID,
		From:      p.Status,
		To:        valueobject.PaymentStatusCompleted,
		ActorID:   &actorID,
		Notes:     notes,
		Outbox:    paymentParticipantNotifications(p, "payment.completed"),
	})
	if err != nil {
		return nil, s.mapTransitionErr(err)
	}

	logger.Financial("payment", string(p.Status), string(updated.Status)).
		WithField("payment_id", paymentID).Info("платёж завершён")

	if p.ContractID != nil {
		if err := s.markContractReleased(ctx, *p.ContractID); err != nil {
			logger.Financial("contract", "", "").
				WithField("contract_id", *p.ContractID).
				WithError(err).Warn("не удалось отметить выплату по контракту")
		}
	}
	return updated, nil
}

func (s *PaymentService) markContractReleased(ctx context.Context, contractID uuid.UUID) error {
	c, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return err
	}
	expected := c.Status
	c.PaymentStatus = models.ContractPaymentReleased
	c.EscrowStatus = models.EscrowStatusReleased
	return s.contracts.UpdateGuarded(ctx, c, expected, nil)
}

// CancelReject отменяет ошибочное отклонение: платёж возвращается на
// проверку, отклонённый чек снова становится pending.
func (s *PaymentService) CancelReject(ctx context.Context, paymentID, actorID uuid.UUID, notes *string) (*models.Payment, error) {
	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != valueobject.PaymentStatusRejected {
		return nil, apperror.New(apperror.ErrCodeInvalidState,
			"отменить можно только отклонённый платёж")
	}

	proofFrom, proofTo := models.ProofStatusRejected, models.ProofStatusPending
	updated, err := s.payments.Transition(ctx, repository.PaymentTransition{
		PaymentID:       paymentID,
		From:            valueobject.PaymentStatusRejected,
		To:              valueobject.PaymentStatusPendingVerify,
		ActorID:         &actorID,
		Notes:           notes,
		ProofFromStatus: &proofFrom,
		ProofToStatus:   &proofTo,
		Outbox: []models.OutboxMessage{
			notifyMessage(paymentID, p.PayerID, "payment.reject_cancelled", map[string]interface{}{
				"payment_id": paymentID,
			}),
		},
	})
	if err != nil {
		return nil, s.mapTransitionErr(err)
	}

	logger.Financial("payment", string(p.Status), string(updated.Status)).
		WithField("payment_id", paymentID).Info("отклонение платежа отменено")
	return updated, nil
}

// MarkDisputed замораживает платёж до решения по спору.
func (s *PaymentService) MarkDisputed(ctx context.Context, paymentID, actorID uuid.UUID, reason string) (*models.Payment, error) {
	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := s.checkTransition(p, valueobject.PaymentStatusDisputed); err != nil {
		return nil, err
	}

	updated, err := s.payments.Transition(ctx, repository.PaymentTransition{
		PaymentID: paymentID,
		From:      p.Status,
		To:        valueobject.PaymentStatusDisputed,
		ActorID:   &actorID,
		Reason:    &reason,
		Outbox:    paymentParticipantNotifications(p, "payment.disputed"),
	})
	if err != nil {
		return nil, s.mapTransitionErr(err)
	}
	return updated, nil
}

// HandleProviderConfirmation обрабатывает webhook провайдера: платёж
// подтверждается без чека, к нему привязывается транзакция провайдера.
// Повторный webhook по уже подтверждённому платежу идемпотентен.
func (s *PaymentService) HandleProviderConfirmation(ctx context.Context, paymentID uuid.UUID, providerTxID string) (*models.Payment, error) {
	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status == valueobject.PaymentStatusVerified && p.ProviderTxID != nil && *p.ProviderTxID == providerTxID {
		return p, nil
	}
	if err := s.checkTransition(p, valueobject.PaymentStatusVerified); err != nil {
		return nil, err
	}

	updated, err := s.payments.Transition(ctx, repository.PaymentTransition{
		PaymentID:     paymentID,
		From:          p.Status,
		To:            valueobject.PaymentStatusVerified,
		SetApprovedAt: true,
		ProviderTxID:  &providerTxID,
		Outbox:        paymentParticipantNotifications(p, "payment.verified"),
	})
	if err != nil {
		return nil, s.mapTransitionErr(err)
	}

	logger.Financial("payment", string(p.Status), string(updated.Status)).
		WithField("payment_id", paymentID).
		WithField("provider_tx_id", providerTxID).Info("оплата подтверждена провайдером")
	return updated, nil
}

// GetPendingProof возвращает чек платежа, ожидающий проверки.
func (s *PaymentService) GetPendingProof(ctx context.Context, paymentID uuid.UUID) (*models.PaymentProof, error) {
	proof, err := s.payments.GetPendingProof(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if proof == nil {
		return nil, apperror.New(apperror.ErrCodeNotFound, "у платежа нет чека на проверке")
	}
	return proof, nil
}

// GetBalance возвращает внутренний баланс пользователя.
func (s *PaymentService) GetBalance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error) {
	return s.payments.GetBalance(ctx, userID)
}

// checkTransition отсекает повтор уже применённого действия и недопустимый
// переход до обращения к базе.
func (s *PaymentService) checkTransition(p *models.Payment, to valueobject.PaymentStatus) error {
	if p.Status == to {
		return apperror.New(apperror.ErrCodeAlreadyProcessed, "действие уже выполнено")
	}
	if _, err := p.Status.Transition(to); err != nil {
		return err
	}
	return nil
}

// mapTransitionErr переводит конфликт условного обновления в доменную
// ошибку: состояние изменил параллельный запрос.
func (s *PaymentService) mapTransitionErr(err error) error {
	if errors.Is(err, repository.ErrStateConflict) {
		return apperror.New(apperror.ErrCodeAlreadyProcessed,
			"платёж уже обработан другим запросом")
	}
	return err
}

// paymentParticipantNotifications — по одному уведомлению каждой стороне платежа.
func paymentParticipantNotifications(p *models.Payment, event string) []models.OutboxMessage {
	data := map[string]interface{}{
		"payment_id": p.ID,
		"amount":     p.Amount,
	}
	messages := []models.OutboxMessage{notifyMessage(p.ID, p.PayerID, event, data)}
	if p.RecipientID != nil {
		messages = append(messages, notifyMessage(p.ID, *p.RecipientID, event, data))
	}
	return messages
}

// contractParticipantNotifications — по одному уведомлению каждой стороне контракта.
func contractParticipantNotifications(c *models.Contract, event string) []models.OutboxMessage {
	data := map[string]interface{}{
		"contract_id": c.ID,
		"job_id":      c.JobID,
	}
	return []models.OutboxMessage{
		notifyMessage(c.ID, c.ClientID, event, data),
		notifyMessage(c.ID, c.DoerID, event, data),
	}
}
