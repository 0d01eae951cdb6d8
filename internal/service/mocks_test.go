package service

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/workdeal-backend/internal/domain/valueobject"
	"github.com/ignatzorin/workdeal-backend/internal/logger"
	"github.com/ignatzorin/workdeal-backend/internal/models"
	"github.com/ignatzorin/workdeal-backend/internal/repository"
)

func TestMain(m *testing.M) {
	logger.Init("error")
	os.Exit(m.Run())
}

type mockPaymentStore struct {
	mock.Mock
}

func (m *mockPaymentStore) Create(ctx context.Context, p *models.Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *mockPaymentStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *mockPaymentStore) GetByContractID(ctx context.Context, contractID uuid.UUID) (*models.Payment, error) {
	args := m.Called(ctx, contractID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *mockPaymentStore) ListByPayer(ctx context.Context, payerID uuid.UUID, limit, offset int) ([]models.Payment, error) {
	args := m.Called(ctx, payerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Payment), args.Error(1)
}

func (m *mockPaymentStore) Transition(ctx context.Context, t repository.PaymentTransition) (*models.Payment, error) {
	args := m.Called(ctx, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *mockPaymentStore) CreateProof(ctx context.Context, proof *models.PaymentProof) error {
	args := m.Called(ctx, proof)
	return args.Error(0)
}

func (m *mockPaymentStore) GetPendingProof(ctx context.Context, paymentID uuid.UUID) (*models.PaymentProof, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentProof), args.Error(1)
}

func (m *mockPaymentStore) ListAudit(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentAudit, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PaymentAudit), args.Error(1)
}

func (m *mockPaymentStore) GetBalance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserBalance), args.Error(1)
}

func (m *mockPaymentStore) CreditBalance(ctx context.Context, userID uuid.UUID, amount float64) error {
	args := m.Called(ctx, userID, amount)
	return args.Error(0)
}

type mockContractStore struct {
	mock.Mock
}

func (m *mockContractStore) Create(ctx context.Context, c *models.Contract) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *mockContractStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Contract), args.Error(1)
}

func (m *mockContractStore) ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.Contract, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Contract), args.Error(1)
}

func (m *mockContractStore) GetByJobAndDoer(ctx context.Context, jobID, doerID uuid.UUID) (*models.Contract, error) {
	args := m.Called(ctx, jobID, doerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Contract), args.Error(1)
}

func (m *mockContractStore) UpdateGuarded(ctx context.Context, c *models.Contract, expected valueobject.ContractStatus, outbox []models.OutboxMessage) error {
	args := m.Called(ctx, c, expected, outbox)
	return args.Error(0)
}

func (m *mockContractStore) AddPriceModification(ctx context.Context, pm *models.PriceModification) error {
	args := m.Called(ctx, pm)
	return args.Error(0)
}

func (m *mockContractStore) ListPriceModifications(ctx context.Context, contractID uuid.UUID) ([]models.PriceModification, error) {
	args := m.Called(ctx, contractID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PriceModification), args.Error(1)
}

type mockJobStore struct {
	mock.Mock
}

func (m *mockJobStore) Create(ctx context.Context, j *models.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}

func (m *mockJobStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Job), args.Error(1)
}

func (m *mockJobStore) UpdateGuarded(ctx context.Context, j *models.Job, expected valueobject.JobStatus, outbox []models.OutboxMessage) error {
	args := m.Called(ctx, j, expected, outbox)
	return args.Error(0)
}

func (m *mockJobStore) AddSelectedWorker(ctx context.Context, jobID, workerID uuid.UUID) error {
	args := m.Called(ctx, jobID, workerID)
	return args.Error(0)
}

func (m *mockJobStore) ListSelectedWorkers(ctx context.Context, jobID uuid.UUID) ([]models.SelectedWorker, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SelectedWorker), args.Error(1)
}

func (m *mockJobStore) ListAllocations(ctx context.Context, jobID uuid.UUID) ([]models.WorkerAllocation, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.WorkerAllocation), args.Error(1)
}

func (m *mockJobStore) ApplyAllocationPlan(ctx context.Context, plan repository.AllocationPlan) error {
	args := m.Called(ctx, plan)
	return args.Error(0)
}

func (m *mockJobStore) AddPriceDecreaseVote(ctx context.Context, vote *models.PriceDecreaseVote) error {
	args := m.Called(ctx, vote)
	return args.Error(0)
}

func (m *mockJobStore) ListPriceDecreaseVotes(ctx context.Context, jobID uuid.UUID) ([]models.PriceDecreaseVote, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PriceDecreaseVote), args.Error(1)
}

func (m *mockJobStore) ClearPriceDecreaseVotes(ctx context.Context, jobID uuid.UUID) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

type mockDisputeStore struct {
	mock.Mock
}

func (m *mockDisputeStore) Create(ctx context.Context, d *models.Dispute) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *mockDisputeStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

func (m *mockDisputeStore) GetActiveByContract(ctx context.Context, contractID uuid.UUID) (*models.Dispute, error) {
	args := m.Called(ctx, contractID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

func (m *mockDisputeStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Dispute), args.Error(1)
}

func (m *mockDisputeStore) MarkInReview(ctx context.Context, id uuid.UUID, adminID uuid.UUID) error {
	args := m.Called(ctx, id, adminID)
	return args.Error(0)
}

func (m *mockDisputeStore) Resolve(ctx context.Context, plan repository.ResolutionPlan) (*models.Dispute, error) {
	args := m.Called(ctx, plan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

func (m *mockDisputeStore) AddLog(ctx context.Context, log *models.DisputeLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *mockDisputeStore) ListLogs(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeLog, error) {
	args := m.Called(ctx, disputeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DisputeLog), args.Error(1)
}

func (m *mockDisputeStore) AddMessage(ctx context.Context, msg *models.DisputeMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *mockDisputeStore) ListMessages(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeMessage, error) {
	args := m.Called(ctx, disputeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DisputeMessage), args.Error(1)
}

type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) Create(ctx context.Context, u *models.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *mockUserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserStore) UpdateTier(ctx context.Context, id uuid.UUID, tier string) error {
	args := m.Called(ctx, id, tier)
	return args.Error(0)
}
