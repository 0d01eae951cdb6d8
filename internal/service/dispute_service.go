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

// DisputeService разрешает споры: по решению администратора приводит
// платёж и контракт в согласованное терминальное состояние одной
// транзакцией и ставит возврат провайдеру в очередь.
type DisputeService struct {
	disputes  DisputeStore
	contracts ContractStore
	payments  PaymentStore
	outbox    OutboxStore
}

func NewDisputeService(disputes DisputeStore, contracts ContractStore, payments PaymentStore, outbox OutboxStore) *DisputeService {
	return &DisputeService{disputes: disputes, contracts: contracts, payments: payments, outbox: outbox}
}

// ResolutionResult — итог разрешения спора.
type ResolutionResult struct {
	Dispute  *models.Dispute
	Payment  *models.Payment
	Contract *models.Contract
}

// CreateDispute открывает спор по контракту. Активный спор может быть
// только один; платёж и контракт замораживаются до решения.
func (s *DisputeService) CreateDispute(ctx context.Context, contractID, initiatorID uuid.UUID, category string) (*models.Dispute, error) {
	c, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}

	var defendantID uuid.UUID
	switch initiatorID {
	case c.ClientID:
		defendantID = c.DoerID
	case c.DoerID:
		defendantID = c.ClientID
	default:
		return nil, apperror.ErrForbidden
	}

	if c.Status.IsTerminal() {
		return nil, apperror.New(apperror.ErrCodeInvalidState,
			"спор нельзя открыть по завершённому контракту")
	}

	active, err := s.disputes.GetActiveByContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, apperror.New(apperror.ErrCodeConflict, "по контракту уже открыт спор")
	}

	d := &models.Dispute{
		ContractID:  contractID,
		InitiatorID: initiatorID,
		DefendantID: defendantID,
		Category:    category,
		Status:      valueobject.DisputeStatusOpen,
	}

	p, err := s.payments.GetByContractID(ctx, contractID)
	if err != nil && !apperror.IsNotFound(err) {
		return nil, err
	}
	if p != nil {
		d.PaymentID = &p.ID
	}

	// Повторная проверка в Create закрывает гонку двух параллельных запросов.
	if err := s.disputes.Create(ctx, d); err != nil {
		if errors.Is(err, repository.ErrActiveDisputeExists) {
			return nil, apperror.New(apperror.ErrCodeConflict, "по контракту уже открыт спор")
		}
		return nil, err
	}

	// Замораживаем платёж: из любого нетерминального статуса в disputed.
	if p != nil && p.Status.CanTransitionTo(valueobject.PaymentStatusDisputed) {
		reason := "открыт спор по контракту"
		if _, err := s.payments.Transition(ctx, repository.PaymentTransition{
			PaymentID: p.ID,
			From:      p.Status,
			To:        valueobject.PaymentStatusDisputed,
			ActorID:   &initiatorID,
			Reason:    &reason,
		}); err != nil && !errors.Is(err, repository.ErrStateConflict) {
			return nil, err
		}
	}

	expected := c.Status
	if c.Status.CanTransitionTo(valueobject.ContractStatusDisputed) {
		c.Status = valueobject.ContractStatusDisputed
	}
	disputeStatus := string(valueobject.DisputeStatusOpen)
	c.DisputeStatus = &disputeStatus

	outbox := []models.OutboxMessage{
		notifyMessage(d.ID, defendantID, "dispute.opened", map[string]interface{}{
			"dispute_id":  d.ID,
			"contract_id": contractID,
			"category":    category,
		}),
	}
	if err := s.contracts.UpdateGuarded(ctx, c, expected, outbox); err != nil {
		return nil, mapContractConflict(err)
	}

	logger.Financial("contract", string(expected), string(c.Status)).
		WithField("dispute_id", d.ID).Info("открыт спор")
	return d, nil
}

// TakeInReview — администратор берёт спор в рассмотрение.
func (s *DisputeService) TakeInReview(ctx context.Context, disputeID, adminID uuid.UUID) error {
	if err := s.disputes.MarkInReview(ctx, disputeID, adminID); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return apperror.New(apperror.ErrCodeAlreadyProcessed, "спор уже в рассмотрении или закрыт")
		}
		return err
	}
	return nil
}

// ResolveDispute применяет решение администратора. Решение терминально и
// необратимо; платёж и контракт пишутся одной транзакцией, возврат
// провайдеру ставится в outbox той же транзакцией.
func (s *DisputeService) ResolveDispute(ctx context.Context, disputeID, adminID uuid.UUID, resolutionType, resolution string, refundAmount *float64) (*ResolutionResult, error) {
	if resolution == "" {
		return nil, apperror.New(apperror.ErrCodeMissingReason, "текст решения обязателен")
	}

	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !d.Status.IsActive() {
		return nil, apperror.New(apperror.ErrCodeAlreadyResolved, "спор уже разрешён")
	}

	c, err := s.contracts.GetByID(ctx, d.ContractID)
	if err != nil {
		return nil, err
	}

	var p *models.Payment
	if d.PaymentID != nil {
		if p, err = s.payments.GetByID(ctx, *d.PaymentID); err != nil {
			return nil, err
		}
	}

	plan, creditFallback, err := s.buildResolutionPlan(d, c, p, adminID, resolutionType, resolution, refundAmount)
	if err != nil {
		return nil, err
	}

	resolved, err := s.disputes.Resolve(ctx, *plan)
	if err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, apperror.New(apperror.ErrCodeAlreadyResolved, "спор уже разрешён другим запросом")
		}
		return nil, err
	}

	// Возврат без провайдерской транзакции зачисляется на внутренний баланс.
	if creditFallback > 0 {
		if err := s.payments.CreditBalance(ctx, p.PayerID, creditFallback); err != nil {
			logger.Financial("balance", "", "").
				WithField("user_id", p.PayerID).
				WithError(err).Error("не удалось зачислить возврат на внутренний баланс")
		}
	}

	result := &ResolutionResult{Dispute: resolved}
	if d.PaymentID != nil {
		result.Payment, _ = s.payments.GetByID(ctx, *d.PaymentID)
	}
	result.Contract, _ = s.contracts.GetByID(ctx, d.ContractID)

	before := string(valueobject.PaymentStatusDisputed)
	after := ""
	if result.Payment != nil {
		after = string(result.Payment.Status)
	}
	logger.Financial("dispute", before, after).
		WithField("dispute_id", disputeID).
		WithField("resolution_type", resolutionType).Info("спор разрешён")
	return result, nil
}

// buildResolutionPlan собирает атомарный план решения. Возвращает также
// сумму, которую нужно зачислить на внутренний баланс, если провайдерская
// транзакция отсутствует.
func (s *DisputeService) buildResolutionPlan(d *models.Dispute, c *models.Contract, p *models.Payment, adminID uuid.UUID, resolutionType, resolution string, refundAmount *float64) (*repository.ResolutionPlan, float64, error) {
	plan := &repository.ResolutionPlan{
		DisputeID:        d.ID,
		ResolutionType:   resolutionType,
		Resolution:       resolution,
		ResolvedBy:       adminID,
		Contract:         c,
		ContractExpected: c.Status,
	}

	notify := func(event string, data map[string]interface{}) {
		plan.Outbox = append(plan.Outbox,
			notifyMessage(d.ID, c.ClientID, event, data),
			notifyMessage(d.ID, c.DoerID, event, data))
	}

	var creditFallback float64

	switch resolutionType {
	case models.ResolutionFullRelease:
		plan.DisputeStatus = valueobject.DisputeStatusResolvedReleased
		status := string(valueobject.DisputeStatusResolvedReleased)
		c.Status = valueobject.ContractStatusCompleted
		c.PaymentStatus = models.ContractPaymentReleased
		c.EscrowStatus = models.EscrowStatusReleased
		c.DisputeStatus = &status
		c.ClientConfirmed = true
		c.DoerConfirmed = true
		if p != nil {
			plan.PaymentID = &p.ID
			plan.PaymentFrom = p.Status
			plan.PaymentTo = valueobject.PaymentStatusCompleted
		}
		plan.LogEvent = "спор разрешён: полная выплата исполнителю"
		notify("dispute.resolved_released", map[string]interface{}{"dispute_id": d.ID})

	case models.ResolutionFullRefund:
		if p == nil {
			return nil, 0, apperror.New(apperror.ErrCodeInvalidState,
				"возврат невозможен: по спору нет платежа")
		}
		refund := p.RefundableAmount()
		plan.DisputeStatus = valueobject.DisputeStatusResolvedRefunded
		status := string(valueobject.DisputeStatusResolvedRefunded)
		c.Status = valueobject.ContractStatusCancelled
		c.PaymentStatus = models.ContractPaymentRefunded
		c.EscrowStatus = models.EscrowStatusRefunded
		c.DisputeStatus = &status
		c.CancellationReason = &resolution
		plan.PaymentID = &p.ID
		plan.PaymentFrom = p.Status
		plan.PaymentTo = valueobject.PaymentStatusRefunded
		plan.RefundAmount = &refund
		plan.AddRefundedAmount = refund
		plan.LogEvent = "спор разрешён: полный возврат клиенту"
		if p.ProviderTxID != nil && refund > 0 {
			plan.Outbox = append(plan.Outbox, refundMessage(p.ID, *p.ProviderTxID, refund))
		} else {
			creditFallback = refund
		}
		notify("dispute.resolved_refunded", map[string]interface{}{
			"dispute_id":    d.ID,
			"refund_amount": refund,
		})

	case models.ResolutionPartialRefund:
		if p == nil {
			return nil, 0, apperror.New(apperror.ErrCodeInvalidState,
				"возврат невозможен: по спору нет платежа")
		}
		if refundAmount == nil || *refundAmount <= 0 {
			return nil, 0, apperror.New(apperror.ErrCodeValidation,
				"для частичного возврата требуется положительная сумма")
		}
		if *refundAmount > p.RefundableAmount() {
			return nil, 0, apperror.New(apperror.ErrCodeValidation,
				"сумма возврата превышает доступную: комиссия не возвращается")
		}
		plan.DisputeStatus = valueobject.DisputeStatusResolvedPartial
		status := string(valueobject.DisputeStatusResolvedPartial)
		c.Status = valueobject.ContractStatusCompleted
		c.PaymentStatus = models.ContractPaymentPartiallyRefunded
		c.EscrowStatus = models.EscrowStatusReleased
		c.DisputeStatus = &status
		c.ClientConfirmed = true
		c.DoerConfirmed = true
		plan.PaymentID = &p.ID
		plan.PaymentFrom = p.Status
		plan.PaymentTo = valueobject.PaymentStatusPartiallyRefunded
		plan.RefundAmount = refundAmount
		plan.AddRefundedAmount = *refundAmount
		plan.LogEvent = "спор разрешён: частичный возврат клиенту"
		if p.ProviderTxID != nil {
			plan.Outbox = append(plan.Outbox, refundMessage(p.ID, *p.ProviderTxID, *refundAmount))
		} else {
			creditFallback = *refundAmount
		}
		notify("dispute.resolved_partial", map[string]interface{}{
			"dispute_id":    d.ID,
			"refund_amount": *refundAmount,
		})

	case models.ResolutionNoAction:
		plan.DisputeStatus = valueobject.DisputeStatusClosed
		c.DisputeStatus = nil
		if c.Status == valueobject.ContractStatusDisputed {
			c.Status = valueobject.ContractStatusInProgress
		}
		if p != nil && p.Status == valueobject.PaymentStatusDisputed {
			plan.PaymentID = &p.ID
			plan.PaymentFrom = p.Status
			// Восстанавливаем кастодиальное состояние по отметкам времени.
			if p.EscrowVerifiedAt != nil {
				plan.PaymentTo = valueobject.PaymentStatusHeldEscrow
			} else {
				plan.PaymentTo = valueobject.PaymentStatusVerified
			}
		}
		plan.LogEvent = "спор закрыт без последствий"
		notify("dispute.closed", map[string]interface{}{"dispute_id": d.ID})

	default:
		return nil, 0, apperror.New(apperror.ErrCodeValidation, "неизвестный тип решения")
	}

	return plan, creditFallback, nil
}

// GetDispute возвращает спор по идентификатору.
func (s *DisputeService) GetDispute(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return s.disputes.GetByID(ctx, id)
}

// ListByUser возвращает споры пользователя.
func (s *DisputeService) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.disputes.ListByUser(ctx, userID, limit, offset)
}

// AddMessage добавляет сообщение стороны спора.
func (s *DisputeService) AddMessage(ctx context.Context, disputeID, authorID uuid.UUID, body string) (*models.DisputeMessage, error) {
	if body == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "сообщение не может быть пустым")
	}
	d, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !d.Status.IsActive() {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "спор закрыт, сообщения недоступны")
	}
	msg := &models.DisputeMessage{
		DisputeID: disputeID,
		AuthorID:  authorID,
		Body:      body,
	}
	if err := s.disputes.AddMessage(ctx, msg); err != nil {
		return nil, err
	}

	recipient := d.DefendantID
	if authorID == d.DefendantID {
		recipient = d.InitiatorID
	}
	note := notifyMessage(d.ID, recipient, "dispute.message", map[string]interface{}{
		"dispute_id": disputeID,
		"author_id":  authorID,
	})
	if err := s.outbox.Enqueue(ctx, &note); err != nil {
		logger.Log.WithField("dispute_id", disputeID).WithError(err).
			Warn("не удалось поставить уведомление о сообщении спора")
	}
	return msg, nil
}

// ListLogs возвращает журнал спора.
func (s *DisputeService) ListLogs(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeLog, error) {
	return s.disputes.ListLogs(ctx, disputeID)
}

// ListMessages возвращает сообщения спора.
func (s *DisputeService) ListMessages(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeMessage, error) {
	return s.disputes.ListMessages(ctx, disputeID)
}
