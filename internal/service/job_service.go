package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/workdeal-backend/internal/domain/valueobject"
	"github.com/ignatzorin/workdeal-backend/internal/models"
	"github.com/ignatzorin/workdeal-backend/internal/pkg/apperror"
)

// JobService управляет жизненным циклом задания: публикация, выбор
// исполнителей и порождение контрактов.
type JobService struct {
	jobs           JobStore
	contracts      ContractStore
	payments       PaymentStore
	users          UserStore
	commission     CommissionConfig
	publicationFee float64
}

func NewJobService(jobs JobStore, contracts ContractStore, payments PaymentStore, users UserStore, commission CommissionConfig, publicationFee float64) *JobService {
	return &JobService{
		jobs:           jobs,
		contracts:      contracts,
		payments:       payments,
		users:          users,
		commission:     commission,
		publicationFee: publicationFee,
	}
}

// CreateJobInput — параметры нового задания.
type CreateJobInput struct {
	ClientID    uuid.UUID
	Title       string
	Description string
	Price       float64
	MaxWorkers  int
}

// CreateJob создаёт черновик задания.
func (s *JobService) CreateJob(ctx context.Context, input CreateJobInput) (*models.Job, error) {
	if input.Title == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "название задания обязательно")
	}
	if input.Price <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "бюджет задания должен быть положительным")
	}
	if input.MaxWorkers < models.MinWorkersPerJob || input.MaxWorkers > models.MaxWorkersPerJob {
		return nil, apperror.New(apperror.ErrCodeValidation, "число исполнителей должно быть от 1 до 5")
	}

	j := &models.Job{
		ClientID:        input.ClientID,
		Title:           input.Title,
		Description:     input.Description,
		Price:           input.Price,
		OriginalPrice:   0,
		Status:          valueobject.JobStatusDraft,
		MaxWorkers:      input.MaxWorkers,
		RemainingBudget: input.Price,
	}
	if err := s.jobs.Create(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

// GetJob возвращает задание с распределением бюджета.
func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return s.jobs.GetByID(ctx, id)
}

// PublishJob публикует черновик. Если взнос за публикацию ещё не оплачен,
// создаётся платёж job_publication, а задание остаётся черновиком до
// подтверждения оплаты.
func (s *JobService) PublishJob(ctx context.Context, jobID, actorID uuid.UUID) (*models.Job, *models.Payment, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	if job.ClientID != actorID {
		return nil, nil, apperror.ErrForbidden
	}
	if job.Status != valueobject.JobStatusDraft {
		return nil, nil, apperror.New(apperror.ErrCodeInvalidState, "опубликовать можно только черновик")
	}

	if s.publicationFee > 0 && !job.PublicationFeePaid {
		payment := &models.Payment{
			PayerID:  actorID,
			JobID:    &jobID,
			Amount:   s.publicationFee,
			Currency: valueobject.DefaultCurrency,
			Type:     models.PaymentTypePublication,
			Status:   valueobject.PaymentStatusPending,
		}
		if err := s.payments.Create(ctx, payment); err != nil {
			return nil, nil, err
		}
		return job, payment, nil
	}

	expected := job.Status
	job.Status = valueobject.JobStatusOpen
	if err := s.jobs.UpdateGuarded(ctx, job, expected, nil); err != nil {
		return nil, nil, err
	}
	return job, nil, nil
}

// ConfirmPublication открывает задание после подтверждения взноса.
func (s *JobService) ConfirmPublication(ctx context.Context, jobID, paymentID uuid.UUID) (*models.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != valueobject.JobStatusDraft {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "задание уже опубликовано")
	}

	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.JobID == nil || *payment.JobID != jobID || payment.Type != models.PaymentTypePublication {
		return nil, apperror.New(apperror.ErrCodeWrongType, "платёж не относится к публикации этого задания")
	}
	switch payment.Status {
	case valueobject.PaymentStatusVerified, valueobject.PaymentStatusCompleted:
	default:
		return nil, apperror.New(apperror.ErrCodeInvalidState, "взнос за публикацию ещё не подтверждён")
	}

	expected := job.Status
	job.Status = valueobject.JobStatusOpen
	job.PublicationFeePaid = true
	if err := s.jobs.UpdateGuarded(ctx, job, expected, nil); err != nil {
		return nil, err
	}
	return job, nil
}

// SelectWorkerInput — выбор исполнителя с долей бюджета и сроками.
type SelectWorkerInput struct {
	JobID     uuid.UUID
	ActorID   uuid.UUID
	WorkerID  uuid.UUID
	Amount    float64
	StartDate time.Time
	EndDate   time.Time
}

// SelectWorker закрепляет исполнителя за заданием и порождает контракт
// на его долю бюджета. Комиссия считается по тарифу клиента.
func (s *JobService) SelectWorker(ctx context.Context, input SelectWorkerInput) (*models.Contract, error) {
	job, err := s.jobs.GetByID(ctx, input.JobID)
	if err != nil {
		return nil, err
	}
	if job.ClientID != input.ActorID {
		return nil, apperror.ErrForbidden
	}
	if job.Status != valueobject.JobStatusOpen {
		return nil, apperror.New(apperror.ErrCodeInvalidState,
			"выбирать исполнителей можно только для открытого задания")
	}
	if input.Amount <= 0 || input.Amount > job.Price-job.AllocatedTotal {
		return nil, apperror.New(apperror.ErrCodeBudgetExceeded,
			"доля исполнителя превышает нераспределённый бюджет")
	}
	if !input.EndDate.After(input.StartDate) {
		return nil, apperror.New(apperror.ErrCodeValidation,
			"дата окончания должна быть позже даты начала")
	}

	selected, err := s.jobs.ListSelectedWorkers(ctx, input.JobID)
	if err != nil {
		return nil, err
	}
	if len(selected) >= job.MaxWorkers {
		return nil, apperror.New(apperror.ErrCodeConflict,
			"достигнут предел числа исполнителей для задания")
	}
	for _, w := range selected {
		if w.WorkerID == input.WorkerID {
			return nil, apperror.New(apperror.ErrCodeConflict,
				"исполнитель уже выбран для этого задания")
		}
	}

	worker, err := s.users.GetByID(ctx, input.WorkerID)
	if err != nil {
		return nil, err
	}
	client, err := s.users.GetByID(ctx, job.ClientID)
	if err != nil {
		return nil, err
	}

	commission := CalculateCommission(input.Amount, client.Tier, client.HasFamilyPlan, client.HasReferralDiscount, s.commission)
	c := &models.Contract{
		JobID:         input.JobID,
		ClientID:      job.ClientID,
		DoerID:        worker.ID,
		Price:         input.Amount,
		Commission:    commission,
		TotalPrice:    input.Amount + commission,
		Status:        valueobject.ContractStatusPending,
		PaymentStatus: models.ContractPaymentUnpaid,
		EscrowStatus:  models.EscrowStatusNone,
		StartDate:     input.StartDate,
		EndDate:       input.EndDate,
	}
	if err := s.contracts.Create(ctx, c); err != nil {
		return nil, err
	}
	if err := s.jobs.AddSelectedWorker(ctx, input.JobID, input.WorkerID); err != nil {
		return nil, err
	}
	return c, nil
}

// StartJob переводит задание в работу после того, как хотя бы один
// контракт открыт.
func (s *JobService) StartJob(ctx context.Context, jobID, actorID uuid.UUID) (*models.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ClientID != actorID {
		return nil, apperror.ErrForbidden
	}
	if job.Status != valueobject.JobStatusOpen {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "в работу переходит только открытое задание")
	}

	expected := job.Status
	job.Status = valueobject.JobStatusInProgress
	if err := s.jobs.UpdateGuarded(ctx, job, expected, nil); err != nil {
		return nil, err
	}
	return job, nil
}

// CompleteJob завершает задание, когда все контракты терминальны.
func (s *JobService) CompleteJob(ctx context.Context, jobID, actorID uuid.UUID) (*models.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ClientID != actorID {
		return nil, apperror.ErrForbidden
	}
	if job.Status != valueobject.JobStatusInProgress {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "завершить можно только задание в работе")
	}

	contracts, err := s.contracts.ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	for _, c := range contracts {
		if !c.Status.IsTerminal() {
			return nil, apperror.New(apperror.ErrCodeInvalidState,
				"по заданию остались незавершённые контракты")
		}
	}

	expected := job.Status
	job.Status = valueobject.JobStatusCompleted
	if err := s.jobs.UpdateGuarded(ctx, job, expected, nil); err != nil {
		return nil, err
	}
	return job, nil
}

// CancelJob отменяет задание без активных контрактов.
func (s *JobService) CancelJob(ctx context.Context, jobID, actorID uuid.UUID) (*models.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ClientID != actorID {
		return nil, apperror.ErrForbidden
	}
	if job.Status == valueobject.JobStatusCompleted || job.Status == valueobject.JobStatusCancelled {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "задание уже закрыто")
	}

	contracts, err := s.contracts.ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	for _, c := range contracts {
		if !c.Status.IsTerminal() {
			return nil, apperror.New(apperror.ErrCodeInvalidState,
				"сначала завершите или расторгните активные контракты")
		}
	}

	expected := job.Status
	job.Status = valueobject.JobStatusCancelled
	if err := s.jobs.UpdateGuarded(ctx, job, expected, nil); err != nil {
		return nil, err
	}
	return job, nil
}
