package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/workdeal-backend/internal/domain/valueobject"
	"github.com/ignatzorin/workdeal-backend/internal/logger"
	"github.com/ignatzorin/workdeal-backend/internal/models"
	"github.com/ignatzorin/workdeal-backend/internal/pkg/apperror"
)

// PricingService ведёт переговоры об изменении бюджета задания.
// Повышение требует доплаты и применяется только после её подтверждения;
// снижение требует единогласного согласия всех активных исполнителей.
type PricingService struct {
	jobs       JobStore
	contracts  ContractStore
	payments   PaymentStore
	users      UserStore
	commission CommissionConfig
}

func NewPricingService(jobs JobStore, contracts ContractStore, payments PaymentStore, users UserStore, commission CommissionConfig) *PricingService {
	return &PricingService{
		jobs:       jobs,
		contracts:  contracts,
		payments:   payments,
		users:      users,
		commission: commission,
	}
}

// ProposePriceIncrease предлагает повышение бюджета. Доплата считается от
// исторического максимума оплаченной цены, чтобы не тарифицировать уже
// оплаченную часть повторно; комиссия берётся только с дельты.
// Задание уходит в pending_payment до подтверждения доплаты.
func (s *PricingService) ProposePriceIncrease(ctx context.Context, jobID, actorID uuid.UUID, newPrice float64) (*models.Job, *models.Payment, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	if job.ClientID != actorID {
		return nil, nil, apperror.ErrForbidden
	}
	if newPrice <= job.Price {
		return nil, nil, apperror.New(apperror.ErrCodeValidation,
			"новая цена должна быть выше текущей")
	}
	if job.Status == valueobject.JobStatusPendingPayment {
		return nil, nil, apperror.New(apperror.ErrCodeConflict,
			"по заданию уже ожидается доплата")
	}
	if job.PendingPriceDecrease {
		return nil, nil, apperror.New(apperror.ErrCodeConflict,
			"сначала завершите голосование по снижению бюджета")
	}

	chargeable := newPrice - job.OriginalPrice
	if chargeable <= 0 {
		// Новая цена в пределах уже оплаченного максимума: доплата не нужна.
		expected := job.Status
		job.Price = newPrice
		job.RemainingBudget = newPrice - job.AllocatedTotal
		if err := s.jobs.UpdateGuarded(ctx, job, expected, nil); err != nil {
			return nil, nil, err
		}
		return job, nil, nil
	}

	client, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return nil, nil, err
	}
	commission := CalculateCommission(chargeable, client.Tier, client.HasFamilyPlan, client.HasReferralDiscount, s.commission)
	required := chargeable + commission

	payment := &models.Payment{
		PayerID:    actorID,
		JobID:      &jobID,
		Amount:     required,
		Currency:   valueobject.DefaultCurrency,
		Type:       models.PaymentTypeBudgetRaise,
		Status:     valueobject.PaymentStatusPending,
		Commission: commission,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, nil, err
	}

	expected := job.Status
	prev := string(job.Status)
	job.PreviousStatus = &prev
	job.Status = valueobject.JobStatusPendingPayment
	job.PendingNewPrice = &newPrice

	if err := s.jobs.UpdateGuarded(ctx, job, expected, nil); err != nil {
		return nil, nil, err
	}

	logger.Financial("job", prev, string(job.Status)).
		WithField("job_id", jobID).
		WithField("required_payment", required).Info("предложено повышение бюджета")
	return job, payment, nil
}

// ApplyPriceIncrease применяет отложенное повышение после подтверждения
// доплаты. Новая цена становится историческим максимумом, прежний статус
// задания восстанавливается.
func (s *PricingService) ApplyPriceIncrease(ctx context.Context, jobID, paymentID uuid.UUID) (*models.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != valueobject.JobStatusPendingPayment || job.PendingNewPrice == nil {
		return nil, apperror.New(apperror.ErrCodeInvalidState,
			"по заданию нет ожидающего повышения бюджета")
	}

	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.JobID == nil || *payment.JobID != jobID || payment.Type != models.PaymentTypeBudgetRaise {
		return nil, apperror.New(apperror.ErrCodeWrongType,
			"платёж не относится к доплате по этому заданию")
	}
	switch payment.Status {
	case valueobject.PaymentStatusVerified, valueobject.PaymentStatusHeldEscrow,
		valueobject.PaymentStatusConfirmedForPayout, valueobject.PaymentStatusCompleted:
	default:
		return nil, apperror.New(apperror.ErrCodeInvalidState,
			"доплата ещё не подтверждена")
	}

	expected := job.Status
	oldPrice := job.Price
	job.Price = *job.PendingNewPrice
	if job.Price > job.OriginalPrice {
		job.OriginalPrice = job.Price
	}
	job.RemainingBudget = job.Price - job.AllocatedTotal
	job.Status = restoreJobStatus(job)
	job.PreviousStatus = nil
	job.PendingNewPrice = nil

	outbox := []models.OutboxMessage{
		notifyMessage(jobID, job.ClientID, "job.price_increased", map[string]interface{}{
			"job_id":    jobID,
			"old_price": oldPrice,
			"new_price": job.Price,
		}),
	}
	if err := s.jobs.UpdateGuarded(ctx, job, expected, outbox); err != nil {
		return nil, err
	}

	logger.Financial("job", string(expected), string(job.Status)).
		WithField("job_id", jobID).
		WithField("new_price", job.Price).Info("бюджет повышен")
	return job, nil
}

// CancelBudgetChange отменяет ожидающее повышение без списаний и
// восстанавливает прежний статус задания.
func (s *PricingService) CancelBudgetChange(ctx context.Context, jobID, actorID uuid.UUID) (*models.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ClientID != actorID {
		return nil, apperror.ErrForbidden
	}
	if job.Status != valueobject.JobStatusPendingPayment {
		return nil, apperror.New(apperror.ErrCodeInvalidState,
			"по заданию нет ожидающего изменения бюджета")
	}

	expected := job.Status
	job.Status = restoreJobStatus(job)
	job.PreviousStatus = nil
	job.PendingNewPrice = nil

	if err := s.jobs.UpdateGuarded(ctx, job, expected, nil); err != nil {
		return nil, err
	}
	return job, nil
}

// ProposePriceDecrease запускает голосование о снижении бюджета среди всех
// держателей активных контрактов.
func (s *PricingService) ProposePriceDecrease(ctx context.Context, jobID, actorID uuid.UUID, newPrice float64) (*models.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ClientID != actorID {
		return nil, apperror.ErrForbidden
	}
	if newPrice <= 0 || newPrice >= job.Price {
		return nil, apperror.New(apperror.ErrCodeValidation,
			"новая цена должна быть положительной и ниже текущей")
	}
	if newPrice < job.AllocatedTotal {
		return nil, apperror.New(apperror.ErrCodeBudgetExceeded,
			"новая цена ниже суммы уже распределённых долей")
	}
	if job.PendingPriceDecrease || job.Status == valueobject.JobStatusPendingPayment {
		return nil, apperror.New(apperror.ErrCodeConflict,
			"по заданию уже есть незавершённое изменение бюджета")
	}

	voters, err := s.activeDoers(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(voters) == 0 {
		return nil, apperror.New(apperror.ErrCodeInvalidState,
			"снижение без активных исполнителей не требует голосования")
	}

	if err := s.jobs.ClearPriceDecreaseVotes(ctx, jobID); err != nil {
		return nil, err
	}

	expected := job.Status
	job.PendingNewPrice = &newPrice
	job.PendingPriceDecrease = true

	outbox := make([]models.OutboxMessage, 0, len(voters))
	for _, doerID := range voters {
		outbox = append(outbox, notifyMessage(jobID, doerID, "job.price_decrease_proposed", map[string]interface{}{
			"job_id":    jobID,
			"new_price": newPrice,
		}))
	}
	if err := s.jobs.UpdateGuarded(ctx, job, expected, outbox); err != nil {
		return nil, err
	}
	return job, nil
}

// VoteOnPriceDecrease — голос исполнителя. Единственный отказ отменяет всё
// предложение; единогласное согласие применяет новую цену, а уже
// оплаченная разница зачисляется клиенту на внутренний баланс.
func (s *PricingService) VoteOnPriceDecrease(ctx context.Context, jobID, voterID uuid.UUID, accept bool) (*models.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.PendingPriceDecrease || job.PendingNewPrice == nil {
		return nil, apperror.New(apperror.ErrCodeInvalidState,
			"по заданию нет предложения о снижении бюджета")
	}

	voters, err := s.activeDoers(ctx, jobID)
	if err != nil {
		return nil, err
	}
	isVoter := false
	for _, id := range voters {
		if id == voterID {
			isVoter = true
			break
		}
	}
	if !isVoter {
		return nil, apperror.ErrForbidden
	}

	if !accept {
		// Один отказ отменяет предложение целиком: цена не меняется.
		expected := job.Status
		job.PendingNewPrice = nil
		job.PendingPriceDecrease = false
		outbox := []models.OutboxMessage{
			notifyMessage(jobID, job.ClientID, "job.price_decrease_rejected", map[string]interface{}{
				"job_id":   jobID,
				"voter_id": voterID,
			}),
		}
		if err := s.jobs.UpdateGuarded(ctx, job, expected, outbox); err != nil {
			return nil, err
		}
		if err := s.jobs.ClearPriceDecreaseVotes(ctx, jobID); err != nil {
			return nil, err
		}
		return job, nil
	}

	if err := s.jobs.AddPriceDecreaseVote(ctx, &models.PriceDecreaseVote{
		JobID:    jobID,
		VoterID:  voterID,
		Accepted: true,
	}); err != nil {
		return nil, err
	}

	votes, err := s.jobs.ListPriceDecreaseVotes(ctx, jobID)
	if err != nil {
		return nil, err
	}
	accepted := make(map[uuid.UUID]bool, len(votes))
	for _, v := range votes {
		if v.Accepted {
			accepted[v.VoterID] = true
		}
	}
	for _, id := range voters {
		if !accepted[id] {
			return job, nil
		}
	}

	return s.applyPriceDecrease(ctx, job)
}

// applyPriceDecrease применяет единогласно принятое снижение.
func (s *PricingService) applyPriceDecrease(ctx context.Context, job *models.Job) (*models.Job, error) {
	newPrice := *job.PendingNewPrice
	oldPrice := job.Price

	// Уже оплаченная разница возвращается клиенту внутренним кредитом,
	// без обращения к провайдеру.
	var credit float64
	if job.OriginalPrice >= oldPrice {
		credit = oldPrice - newPrice
	}

	expected := job.Status
	job.Price = newPrice
	job.RemainingBudget = newPrice - job.AllocatedTotal
	job.PendingNewPrice = nil
	job.PendingPriceDecrease = false

	outbox := []models.OutboxMessage{
		notifyMessage(job.ID, job.ClientID, "job.price_decreased", map[string]interface{}{
			"job_id":    job.ID,
			"old_price": oldPrice,
			"new_price": newPrice,
			"credit":    credit,
		}),
	}
	if err := s.jobs.UpdateGuarded(ctx, job, expected, outbox); err != nil {
		return nil, err
	}
	if err := s.jobs.ClearPriceDecreaseVotes(ctx, job.ID); err != nil {
		return nil, err
	}

	if credit > 0 {
		if err := s.payments.CreditBalance(ctx, job.ClientID, credit); err != nil {
			logger.Financial("balance", "", "").
				WithField("user_id", job.ClientID).
				WithError(err).Error("не удалось зачислить кредит за снижение бюджета")
		}
	}

	logger.Financial("job", "", "").
		WithField("job_id", job.ID).
		WithField("old_price", oldPrice).
		WithField("new_price", newPrice).Info("бюджет снижен единогласно")
	return job, nil
}

// activeDoers возвращает исполнителей с нетерминальными контрактами.
func (s *PricingService) activeDoers(ctx context.Context, jobID uuid.UUID) ([]uuid.UUID, error) {
	contracts, err := s.contracts.ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	var doers []uuid.UUID
	for _, c := range contracts {
		if !c.Status.IsTerminal() {
			doers = append(doers, c.DoerID)
		}
	}
	return doers, nil
}

// restoreJobStatus возвращает статус, в котором задание было до входа в
// pending_payment.
func restoreJobStatus(job *models.Job) valueobject.JobStatus {
	if job.PreviousStatus != nil {
		return valueobject.JobStatus(*job.PreviousStatus)
	}
	return valueobject.JobStatusOpen
}
