package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/workdeal-backend/internal/domain/valueobject"
	"github.com/ignatzorin/workdeal-backend/internal/models"
	"github.com/ignatzorin/workdeal-backend/internal/pkg/apperror"
)

type pricingFixture struct {
	jobs      *mockJobStore
	contracts *mockContractStore
	payments  *mockPaymentStore
	users     *mockUserStore
	svc       *PricingService

	clientID uuid.UUID
	job      *models.Job
}

func newPricingFixture() *pricingFixture {
	f := &pricingFixture{
		jobs:      new(mockJobStore),
		contracts: new(mockContractStore),
		payments:  new(mockPaymentStore),
		users:     new(mockUserStore),
		clientID:  uuid.New(),
	}
	f.svc = NewPricingService(f.jobs, f.contracts, f.payments, f.users, DefaultCommissionConfig())
	f.job = &models.Job{
		ID:            uuid.New(),
		ClientID:      f.clientID,
		Price:         100000,
		OriginalPrice: 100000,
		Status:        valueobject.JobStatusInProgress,
		MaxWorkers:    2,
	}
	return f
}

func activeContracts(jobID uuid.UUID, doerIDs ...uuid.UUID) []models.Contract {
	out := make([]models.Contract, 0, len(doerIDs))
	for _, id := range doerIDs {
		out = append(out, models.Contract{
			ID:     uuid.New(),
			JobID:  jobID,
			DoerID: id,
			Status: valueobject.ContractStatusInProgress,
		})
	}
	return out
}

func TestProposePriceIncrease_CommissionOnDeltaOnly(t *testing.T) {
	ctx := context.Background()
	f := newPricingFixture()

	f.jobs.On("GetByID", ctx, f.job.ID).Return(f.job, nil)
	f.users.On("GetByID", ctx, f.clientID).Return(&models.User{ID: f.clientID, Tier: models.TierFree}, nil)

	// Доплата: дельта 50000 плюс комиссия 8% от дельты.
	f.payments.On("Create", ctx, mock.MatchedBy(func(p *models.Payment) bool {
		return p.Amount == 54000 && p.Commission == 4000 &&
			p.Type == models.PaymentTypeBudgetRaise &&
			p.Status == valueobject.PaymentStatusPending
	})).Return(nil)
	f.jobs.On("UpdateGuarded", ctx, mock.MatchedBy(func(j *models.Job) bool {
		return j.Status == valueobject.JobStatusPendingPayment &&
			j.PendingNewPrice != nil && *j.PendingNewPrice == 150000 &&
			j.PreviousStatus != nil && *j.PreviousStatus == string(valueobject.JobStatusInProgress)
	}), valueobject.JobStatusInProgress, mock.Anything).Return(nil)

	job, payment, err := f.svc.ProposePriceIncrease(ctx, f.job.ID, f.clientID, 150000)

	assert.NoError(t, err)
	assert.Equal(t, valueobject.JobStatusPendingPayment, job.Status)
	assert.Equal(t, float64(54000), payment.Amount)
	f.payments.AssertExpectations(t)
	f.jobs.AssertExpectations(t)
}

func TestProposePriceIncrease_WithinPaidMaximumIsFree(t *testing.T) {
	ctx := context.Background()
	f := newPricingFixture()
	// Бюджет уже был оплачен до 150000, затем снижен: повышение в пределах
	// оплаченного максимума не требует доплаты.
	f.job.OriginalPrice = 150000
	f.job.Price = 120000

	f.jobs.On("GetByID", ctx, f.job.ID).Return(f.job, nil)
	f.jobs.On("UpdateGuarded", ctx, mock.MatchedBy(func(j *models.Job) bool {
		return j.Price == 140000 && j.Status == valueobject.JobStatusInProgress
	}), valueobject.JobStatusInProgress, mock.Anything).Return(nil)

	job, payment, err := f.svc.ProposePriceIncrease(ctx, f.job.ID, f.clientID, 140000)

	assert.NoError(t, err)
	assert.Nil(t, payment)
	assert.Equal(t, float64(140000), job.Price)
	f.payments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestProposePriceIncrease_MustBeHigher(t *testing.T) {
	ctx := context.Background()
	f := newPricingFixture()

	f.jobs.On("GetByID", ctx, f.job.ID).Return(f.job, nil)

	_, _, err := f.svc.ProposePriceIncrease(ctx, f.job.ID, f.clientID, 90000)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "должна быть выше текущей")
}

func TestProposePriceIncrease_NotOwner(t *testing.T) {
	ctx := context.Background()
	f := newPricingFixture()

	f.jobs.On("GetByID", ctx, f.job.ID).Return(f.job, nil)

	_, _, err := f.svc.ProposePriceIncrease(ctx, f.job.ID, uuid.New(), 150000)

	assert.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeForbidden))
}

func TestProposePriceIncrease_PendingDecreaseBlocks(t *testing.T) {
	ctx := context.Background()
	f := newPricingFixture()
	f.job.PendingPriceDecrease = true

	f.jobs.On("GetByID", ctx, f.job.ID).Return(f.job, nil)

	_, _, err := f.svc.ProposePriceIncrease(ctx, f.job.ID, f.clientID, 150000)

	assert.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeConflict))
}

func TestApplyPriceIncrease_RequiresConfirmedPayment(t *testing.T) {
	ctx := context.Background()
	f := newPricingFixture()
	newPrice := float64(150000)
	prev := string(valueobject.JobStatusInProgress)
	f.job.Status = valueobject.JobStatusPendingPayment
	f.job.PendingNewPrice = &newPrice
	f.job.PreviousStatus = &prev

	paymentID := uuid.New()
	f.jobs.On("GetByID", ctx, f.job.ID).Return(f.job, nil)
	f.payments.On("GetByID", ctx, paymentID).Return(&models.Payment{
		ID:     paymentID,
		JobID:  &f.job.ID,
		Type:   models.PaymentTypeBudgetRaise,
		Status: valueobject.PaymentStatusPending,
	}, nil)

	_, err := f.svc.ApplyPriceIncrease(ctx, f.job.ID, paymentID)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "доплата ещё не подтверждена")
}

func TestApplyPriceIncrease_RaisesPaidMaximumAndRestoresStatus(t *testing.T) {
	ctx := context.Background()
	f := newPricingFixture()
	newPrice := float64(150000)
	prev := string(valueobject.JobStatusInProgress)
	f.job.Status = valueobject.JobStatusPendingPayment
	f.job.PendingNewPrice = &newPrice
	f.job.PreviousStatus = &prev
	f.job.AllocatedTotal = 60000

	paymentID := uuid.New()
	f.jobs.On("GetByID", ctx, f.job.ID).Return(f.job, nil)
	f.payments.On("GetByID", ctx, paymentID).Return(&models.Payment{
		ID:     paymentID,
		JobID:  &f.job.ID,
		Type:   models.PaymentTypeBudgetRaise,
		Status: valueobject.PaymentStatusVerified,
	}, nil)
	f.jobs.On("UpdateGuarded", ctx, mock.MatchedBy(func(j *models.Job) bool {
		return j.Price == 150000 && j.OriginalPrice == 150000 &&
			j.RemainingBudget == 90000 &&
			j.Status == valueobject.JobStatusInProgress &&
			j.PendingNewPrice == nil && j.PreviousStatus == nil
	}), valueobject.JobStatusPendingPayment, mock.Anything).Return(nil)

	job, err := f.svc.ApplyPriceIncrease(ctx, f.job.ID, paymentID)

	assert.NoError(t, err)
	assert.Equal(t, float64(150000), job.OriginalPrice)
	f.jobs.AssertExpectations(t)
}

func TestApplyPriceIncrease_WrongPayment(t *testing.T) {
	ctx := context.Background()
	f := newPricingFixture()
	newPrice := float64(150000)
	f.job.Status = valueobject.JobStatusPendingPayment
	f.job.PendingNewPrice = &newPrice

	paymentID := uuid.New()
	otherJob := uuid.New()
	f.jobs.On("GetByID", ctx, f.job.ID).Return(f.job, nil)
	f.payments.On("GetByID", ctx, paymentID).Return(&models.Payment{
		ID:     paymentID,
		JobID:  &otherJob,
		Type:   models.PaymentTypeBudgetRaise,
		Status: valueobject.PaymentStatusVerified,
	}, nil)

	_, err := f.svc.ApplyPriceIncrease(ctx, f.job.ID, paymentID)

	assert.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeWrongType))
}

func TestCancelBudgetChange_RestoresPreviousStatus(t *testing.T) {
	ctx := context.Background()
	f := newPricingFixture()
	newPrice := float64(150000)
	prev := string(valueobject.JobStatusOpen)
	f.job.Status = valueobject.JobStatusPendingPayment
	f.job.PendingNewPrice = &newPrice
	f.job.PreviousStatus = &prev

	f.jobs.On("GetByID", ctx, f.job.ID).Return(f.job, nil)
	f.jobs.On("UpdateGuarded", ctx, mock.Anything, valueobject.JobStatusPendingPayment, mock.Anything).Return(nil)

	job, err := f.svc.CancelBudgetChange(ctx, f.job.ID, f.clientID)

	assert.NoError(t, err)
	assert.Equal(t, valueobject.JobStatusOpen, job.Status)
	assert.Nil(t, job.PendingNewPrice)
}

func TestProposePriceDecrease_BelowAllocated(t *testing.T) {
	ctx := context.Background()
	f := newPricingFixture()
	f.job.AllocatedTotal = 90000

	f.jobs.On("GetByID", ctx, f.job.ID).Return(f.job, nil)

	_, err := f.svc.ProposePriceDecrease(ctx, f.job.ID, f.clientID, 80000)

	assert.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeBudgetExceeded))
}

func TestProposePriceDecrease_NotifiesAllActiveDoers(t *testing.T) {
	ctx := context.Background()
	f := newPricingFixture()
	doerA, doerB := uuid.New(), uuid.New()

	f.jobs.On("GetByID", ctx, f.job.ID).Return(f.job, nil)
	f.contracts.On("ListByJob", ctx, f.job.ID).Return(activeContracts(f.job.ID, doerA, doerB), nil)
	f.jobs.On("ClearPriceDecreaseVotes", ctx, f.job.ID).Return(nil)
	f.jobs.On("UpdateGuarded", ctx, mock.MatchedBy(func(j *models.Job) bool {
		return j.PendingPriceDecrease && j.PendingNewPrice != nil && *j.PendingNewPrice == 80000
	}), valueobject.JobStatusInProgress, mock.MatchedBy(func(outbox []models.OutboxMessage) bool {
		return len(outbox) == 2
	})).Return(nil)

	job, err := f.svc.ProposePriceDecrease(ctx, f.job.ID, f.clientID, 80000)

	assert.NoError(t, err)
	assert.True(t, job.PendingPriceDecrease)
	f.jobs.AssertExpectations(t)
}

func TestVoteOnPriceDecrease_SingleRejectCancelsProposal(t *testing.T) {
	ctx := context.Background()
	f := newPricingFixture()
	doerA, doerB := uuid.New(), uuid.New()
	newPrice := float64(80000)
	f.job.PendingPriceDecrease = true
	f.job.PendingNewPrice = &newPrice

	f.jobs.On("GetByID", ctx, f.job.ID).Return(f.job, nil)
	f.contracts.On("ListByJob", ctx, f.job.ID).Return(activeContracts(f.job.ID, doerA, doerB), nil)
	f.jobs.On("UpdateGuarded", ctx, mock.MatchedBy(func(j *models.Job) bool {
		// Цена не меняется, предложение снимается.
		return !j.PendingPriceDecrease && j.PendingNewPrice == nil && j.Price == 100000
	}), valueobject.JobStatusInProgress, mock.Anything).Return(nil)
	f.jobs.On("ClearPriceDecreaseVotes", ctx, f.job.ID).Return(nil)

	job, err := f.svc.VoteOnPriceDecrease(ctx, f.job.ID, doerA, false)

	assert.NoError(t, err)
	assert.Equal(t, float64(100000), job.Price)
	f.jobs.AssertExpectations(t)
	f.jobs.AssertNotCalled(t, "AddPriceDecreaseVote", mock.Anything, mock.Anything)
}

func TestVoteOnPriceDecrease_WaitsForRemainingVotes(t *testing.T) {
	ctx := context.Background()
	f := newPricingFixture()
	doerA, doerB := uuid.New(), uuid.New()
	newPrice := float64(80000)
	f.job.PendingPriceDecrease = true
	f.job.PendingNewPrice = &newPrice

	f.jobs.On("GetByID", ctx, f.job.ID).Return(f.job, nil)
	f.contracts.On("ListByJob", ctx, f.job.ID).Return(activeContracts(f.job.ID, doerA, doerB), nil)
	f.jobs.On("AddPriceDecreaseVote", ctx, mock.Anything).Return(nil)
	f.jobs.On("ListPriceDecreaseVotes", ctx, f.job.ID).Return([]models.PriceDecreaseVote{
		{JobID: f.job.ID, VoterID: doerA, Accepted: true},
	}, nil)

	job, err := f.svc.VoteOnPriceDecrease(ctx, f.job.ID, doerA, true)

	assert.NoError(t, err)
	assert.True(t, job.PendingPriceDecrease)
	f.jobs.AssertNotCalled(t, "UpdateGuarded", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVoteOnPriceDecrease_UnanimousAppliesAndCreditsClient(t *testing.T) {
	ctx := context.Background()
	f := newPricingFixture()
	doerA, doerB := uuid.New(), uuid.New()
	newPrice := float64(80000)
	f.job.PendingPriceDecrease = true
	f.job.PendingNewPrice = &newPrice
	f.job.AllocatedTotal = 60000

	f.jobs.On("GetByID", ctx, f.job.ID).Return(f.job, nil)
	f.contracts.On("ListByJob", ctx, f.job.ID).Return(activeContracts(f.job.ID, doerA, doerB), nil)
	f.jobs.On("AddPriceDecreaseVote", ctx, mock.Anything).Return(nil)
	f.jobs.On("ListPriceDecreaseVotes", ctx, f.job.ID).Return([]models.PriceDecreaseVote{
		{JobID: f.job.ID, VoterID: doerA, Accepted: true},
		{JobID: f.job.ID, VoterID: doerB, Accepted: true},
	}, nil)
	f.jobs.On("UpdateGuarded", ctx, mock.MatchedBy(func(j *models.Job) bool {
		return j.Price == 80000 && j.RemainingBudget == 20000 && !j.PendingPriceDecrease
	}), valueobject.JobStatusInProgress, mock.Anything).Return(nil)
	f.jobs.On("ClearPriceDecreaseVotes", ctx, f.job.ID).Return(nil)
	// Уже оплаченная разница зачисляется клиенту внутренним кредитом.
	f.payments.On("CreditBalance", ctx, f.clientID, float64(20000)).Return(nil)

	job, err := f.svc.VoteOnPriceDecrease(ctx, f.job.ID, doerB, true)

	assert.NoError(t, err)
	assert.Equal(t, float64(80000), job.Price)
	f.payments.AssertExpectations(t)
	f.jobs.AssertExpectations(t)
}

func TestVoteOnPriceDecrease_OutsiderForbidden(t *testing.T) {
	ctx := context.Background()
	f := newPricingFixture()
	newPrice := float64(80000)
	f.job.PendingPriceDecrease = true
	f.job.PendingNewPrice = &newPrice

	f.jobs.On("GetByID", ctx, f.job.ID).Return(f.job, nil)
	f.contracts.On("ListByJob", ctx, f.job.ID).Return(activeContracts(f.job.ID, uuid.New()), nil)

	_, err := f.svc.VoteOnPriceDecrease(ctx, f.job.ID, uuid.New(), true)

	assert.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeForbidden))
}
