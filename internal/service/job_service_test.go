package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/workdeal-backend/internal/domain/valueobject"
	"github.com/ignatzorin/workdeal-backend/internal/models"
	"github.com/ignatzorin/workdeal-backend/internal/pkg/apperror"
)

type jobFixture struct {
	jobs      *mockJobStore
	contracts *mockContractStore
	payments  *mockPaymentStore
	users     *mockUserStore
	svc       *JobService

	clientID uuid.UUID
	job      *models.Job
}

func newJobFixture(publicationFee float64) *jobFixture {
	f := &jobFixture{
		jobs:      new(mockJobStore),
		contracts: new(mockContractStore),
		payments:  new(mockPaymentStore),
		users:     new(mockUserStore),
		clientID:  uuid.New(),
	}
	f.svc = NewJobService(f.jobs, f.contracts, f.payments, f.users, DefaultCommissionConfig(), publicationFee)
	f.job = &models.Job{
		ID:              uuid.New(),
		ClientID:        f.clientID,
		Title:           "Ремонт кухни",
		Price:           100000,
		Status:          valueobject.JobStatusOpen,
		MaxWorkers:      2,
		RemainingBudget: 100000,
	}
	return f
}

func TestCreateJob_Validation(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(0)

	_, err := f.svc.CreateJob(ctx, CreateJobInput{ClientID: f.clientID, Title: "", Price: 1000, MaxWorkers: 1})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "название задания обязательно")

	_, err = f.svc.CreateJob(ctx, CreateJobInput{ClientID: f.clientID, Title: "x", Price: 0, MaxWorkers: 1})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "бюджет задания должен быть положительным")

	_, err = f.svc.CreateJob(ctx, CreateJobInput{ClientID: f.clientID, Title: "x", Price: 1000, MaxWorkers: 6})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "от 1 до 5")

	f.jobs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestPublishJob_FeeCreatesPaymentAndKeepsDraft(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(5000)
	f.job.Status = valueobject.JobStatusDraft

	f.jobs.On("GetByID", ctx, f.job.ID).Return(f.job, nil)
	f.payments.On("Create", ctx, mock.MatchedBy(func(p *models.Payment) bool {
		return p.Type == models.PaymentTypePublication && p.Amount == 5000 &&
			p.JobID != nil && *p.JobID == f.job.ID
	})).Return(nil)

	job, payment, err := f.svc.PublishJob(ctx, f.job.ID, f.clientID)

	assert.NoError(t, err)
	assert.NotNil(t, payment)
	assert.Equal(t, valueobject.JobStatusDraft, job.Status)
	f.jobs.AssertNotCalled(t, "UpdateGuarded", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPublishJob_NoFeeOpensImmediately(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(0)
	f.job.Status = valueobject.JobStatusDraft

	f.jobs.On("GetByID", ctx, f.job.ID).Return(f.job, nil)
	f.jobs.On("UpdateGuarded", ctx, mock.Anything, valueobject.JobStatusDraft, mock.Anything).Return(nil)

	job, payment, err := f.svc.PublishJob(ctx, f.job.ID, f.clientID)

	assert.NoError(t, err)
	assert.Nil(t, payment)
	assert.Equal(t, valueobject.JobStatusOpen, job.Status)
}

func TestConfirmPublication_RequiresVerifiedFee(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(5000)
	f.job.Status = valueobject.JobStatusDraft

	paymentID := uuid.New()
	f.jobs.On("GetByID", ctx, f.job.ID).Return(f.job, nil)
	f.payments.On("GetByID", ctx, paymentID).Return(&models.Payment{
		ID:     paymentID,
		JobID:  &f.job.ID,
		Type:   models.PaymentTypePublication,
		Status: valueobject.PaymentStatusPending,
	}, nil)

	_, err := f.svc.ConfirmPublication(ctx, f.job.ID, paymentID)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ещё не подтверждён")
}

func TestConfirmPublication_OpensJob(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(5000)
	f.job.Status = valueobject.JobStatusDraft

	paymentID := uuid.New()
	f.jobs.On("GetByID", ctx, f.job.ID).Return(f.job, nil)
	f.payments.On("GetByID", ctx, paymentID).Return(&models.Payment{
		ID:     paymentID,
		JobID:  &f.job.ID,
		Type:   models.PaymentTypePublication,
		Status: valueobject.PaymentStatusVerified,
	}, nil)
	f.jobs.On("UpdateGuarded", ctx, mock.MatchedBy(func(j *models.Job) bool {
		return j.Status == valueobject.JobStatusOpen && j.PublicationFeePaid
	}), valueobject.JobStatusDraft, mock.Anything).Return(nil)

	job, err := f.svc.ConfirmPublication(ctx, f.job.ID, paymentID)

	assert.NoError(t, err)
	assert.Equal(t, valueobject.JobStatusOpen, job.Status)
	f.jobs.AssertExpectations(t)
}

func TestSelectWorker_CreatesContractWithCommission(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(0)
	workerID := uuid.New()

	f.jobs.On("GetByID", ctx, f.job.ID).Return(f.job, nil)
	f.jobs.On("ListSelectedWorkers", ctx, f.job.ID).Return([]models.SelectedWorker{}, nil)
	f.users.On("GetByID", ctx, workerID).Return(&models.User{ID: workerID, Role: models.RoleDoer}, nil)
	f.users.On("GetByID", ctx, f.clientID).Return(&models.User{ID: f.clientID, Tier: models.TierFree}, nil)
	f.contracts.On("Create", ctx, mock.MatchedBy(func(c *models.Contract) bool {
		// Доля 50000, комиссия 8% = 4000, всего к оплате 54000.
		return c.Price == 50000 && c.Commission == 4000 && c.TotalPrice == 54000 &&
			c.Status == valueobject.ContractStatusPending &&
			c.PaymentStatus == models.ContractPaymentUnpaid &&
			c.EscrowStatus == models.EscrowStatusNone
	})).Return(nil)
	f.jobs.On("AddSelectedWorker", ctx, f.job.ID, workerID).Return(nil)

	c, err := f.svc.SelectWorker(ctx, SelectWorkerInput{
		JobID:     f.job.ID,
		ActorID:   f.clientID,
		WorkerID:  workerID,
		Amount:    50000,
		StartDate: time.Now().Add(48 * time.Hour),
		EndDate:   time.Now().Add(96 * time.Hour),
	})

	assert.NoError(t, err)
	assert.Equal(t, workerID, c.DoerID)
	f.contracts.AssertExpectations(t)
	f.jobs.AssertExpectations(t)
}

func TestSelectWorker_ShareExceedsFreeBudget(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(0)
	f.job.AllocatedTotal = 80000

	f.jobs.On("GetByID", ctx, f.job.ID).Return(f.job, nil)

	_, err := f.svc.SelectWorker(ctx, SelectWorkerInput{
		JobID:     f.job.ID,
		ActorID:   f.clientID,
		WorkerID:  uuid.New(),
		Amount:    30000,
		StartDate: time.Now(),
		EndDate:   time.Now().Add(time.Hour),
	})

	assert.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeBudgetExceeded))
}

func TestSelectWorker_MaxWorkersReached(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(0)
	f.job.MaxWorkers = 1

	f.jobs.On("GetByID", ctx, f.job.ID).Return(f.job, nil)
	f.jobs.On("ListSelectedWorkers", ctx, f.job.ID).Return(
		selectedWorkers(f.job.ID, uuid.New()), nil)

	_, err := f.svc.SelectWorker(ctx, SelectWorkerInput{
		JobID:     f.job.ID,
		ActorID:   f.clientID,
		WorkerID:  uuid.New(),
		Amount:    30000,
		StartDate: time.Now(),
		EndDate:   time.Now().Add(time.Hour),
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "предел числа исполнителей")
}

func TestSelectWorker_DuplicateWorker(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(0)
	workerID := uuid.New()

	f.jobs.On("GetByID", ctx, f.job.ID).Return(f.job, nil)
	f.jobs.On("ListSelectedWorkers", ctx, f.job.ID).Return(
		selectedWorkers(f.job.ID, workerID), nil)

	_, err := f.svc.SelectWorker(ctx, SelectWorkerInput{
		JobID:     f.job.ID,
		ActorID:   f.clientID,
		WorkerID:  workerID,
		Amount:    30000,
		StartDate: time.Now(),
		EndDate:   time.Now().Add(time.Hour),
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "уже выбран")
}

func TestCompleteJob_BlockedByActiveContracts(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(0)
	f.job.Status = valueobject.JobStatusInProgress

	f.jobs.On("GetByID", ctx, f.job.ID).Return(f.job, nil)
	f.contracts.On("ListByJob", ctx, f.job.ID).Return(
		activeContracts(f.job.ID, uuid.New()), nil)

	_, err := f.svc.CompleteJob(ctx, f.job.ID, f.clientID)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "незавершённые контракты")
	f.jobs.AssertNotCalled(t, "UpdateGuarded", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelJob_AllContractsTerminal(t *testing.T) {
	ctx := context.Background()
	f := newJobFixture(0)

	f.jobs.On("GetByID", ctx, f.job.ID).Return(f.job, nil)
	f.contracts.On("ListByJob", ctx, f.job.ID).Return([]models.Contract{
		{ID: uuid.New(), JobID: f.job.ID, Status: valueobject.ContractStatusCancelled},
	}, nil)
	f.jobs.On("UpdateGuarded", ctx, mock.Anything, valueobject.JobStatusOpen, mock.Anything).Return(nil)

	job, err := f.svc.CancelJob(ctx, f.job.ID, f.clientID)

	assert.NoError(t, err)
	assert.Equal(t, valueobject.JobStatusCancelled, job.Status)
}
