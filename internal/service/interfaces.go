package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/workdeal-backend/internal/domain/valueobject"
	"github.com/ignatzorin/workdeal-backend/internal/models"
	"github.com/ignatzorin/workdeal-backend/internal/repository"
)

// Интерфейсы хранилищ объявлены на стороне потребителя, чтобы сервисы
// тестировались на моках без базы данных.

type PaymentStore interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetByContractID(ctx context.Context, contractID uuid.UUID) (*models.Payment, error)
	ListByPayer(ctx context.Context, payerID uuid.UUID, limit, offset int) ([]models.Payment, error)
	Transition(ctx context.Context, t repository.PaymentTransition) (*models.Payment, error)
	CreateProof(ctx context.Context, proof *models.PaymentProof) error
	GetPendingProof(ctx context.Context, paymentID uuid.UUID) (*models.PaymentProof, error)
	ListAudit(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentAudit, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error)
	CreditBalance(ctx context.Context, userID uuid.UUID, amount float64) error
}

type ContractStore interface {
	Create(ctx context.Context, c *models.Contract) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.Contract, error)
	GetByJobAndDoer(ctx context.Context, jobID, doerID uuid.UUID) (*models.Contract, error)
	UpdateGuarded(ctx context.Context, c *models.Contract, expected valueobject.ContractStatus, outbox []models.OutboxMessage) error
	AddPriceModification(ctx context.Context, pm *models.PriceModification) error
	ListPriceModifications(ctx context.Context, contractID uuid.UUID) ([]models.PriceModification, error)
}

type JobStore interface {
	Create(ctx context.Context, j *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	UpdateGuarded(ctx context.Context, j *models.Job, expected valueobject.JobStatus, outbox []models.OutboxMessage) error
	AddSelectedWorker(ctx context.Context, jobID, workerID uuid.UUID) error
	ListSelectedWorkers(ctx context.Context, jobID uuid.UUID) ([]models.SelectedWorker, error)
	ListAllocations(ctx context.Context, jobID uuid.UUID) ([]models.WorkerAllocation, error)
	ApplyAllocationPlan(ctx context.Context, plan repository.AllocationPlan) error
	AddPriceDecreaseVote(ctx context.Context, vote *models.PriceDecreaseVote) error
	ListPriceDecreaseVotes(ctx context.Context, jobID uuid.UUID) ([]models.PriceDecreaseVote, error)
	ClearPriceDecreaseVotes(ctx context.Context, jobID uuid.UUID) error
}

type DisputeStore interface {
	Create(ctx context.Context, d *models.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetActiveByContract(ctx context.Context, contractID uuid.UUID) (*models.Dispute, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error)
	MarkInReview(ctx context.Context, id uuid.UUID, adminID uuid.UUID) error
	Resolve(ctx context.Context, plan repository.ResolutionPlan) (*models.Dispute, error)
	AddLog(ctx context.Context, log *models.DisputeLog) error
	ListLogs(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeLog, error)
	AddMessage(ctx context.Context, msg *models.DisputeMessage) error
	ListMessages(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeMessage, error)
}

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateTier(ctx context.Context, id uuid.UUID, tier string) error
}

type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) error
}

type OutboxStore interface {
	Enqueue(ctx context.Context, m *models.OutboxMessage) error
	ClaimPending(ctx context.Context, limit int) ([]models.OutboxMessage, error)
	MarkDone(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, maxAttempts int) error
}
