package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/workdeal-backend/internal/domain/valueobject"
	"github.com/ignatzorin/workdeal-backend/internal/logger"
	"github.com/ignatzorin/workdeal-backend/internal/models"
	"github.com/ignatzorin/workdeal-backend/internal/pkg/apperror"
	"github.com/ignatzorin/workdeal-backend/internal/repository"
)

const reallocationReason = "budget reallocation"

// AllocationService ведёт распределение бюджета мульти-исполнительского
// задания. Инвариант: сумма долей не превышает бюджет; нарушение
// отклоняется до записи, частичных записей не бывает.
type AllocationService struct {
	jobs          JobStore
	contracts     ContractStore
	users         UserStore
	commission    CommissionConfig
	minAllocation float64
}

func NewAllocationService(jobs JobStore, contracts ContractStore, users UserStore, commission CommissionConfig, minAllocation float64) *AllocationService {
	return &AllocationService{
		jobs:          jobs,
		contracts:     contracts,
		users:         users,
		commission:    commission,
		minAllocation: minAllocation,
	}
}

// AllocationEntry — запрошенная доля одного исполнителя.
type AllocationEntry struct {
	WorkerID uuid.UUID `json:"worker_id"`
	Amount   float64   `json:"amount"`
}

// SetWorkerAllocations перезаписывает распределение бюджета целиком.
// Проверки: каждый исполнитель выбран для задания, доля не ниже
// минимального порога, сумма долей в пределах бюджета. Цены затронутых
// контрактов пересчитываются атомарно с записью в журнал изменений.
func (s *AllocationService) SetWorkerAllocations(ctx context.Context, jobID, actorID uuid.UUID, entries []AllocationEntry) (*models.Job, error) {
	if len(entries) == 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "список долей пуст")
	}

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ClientID != actorID {
		return nil, apperror.ErrForbidden
	}
	if !job.Status.AllocationEligible() {
		return nil, apperror.New(apperror.ErrCodeInvalidState,
			"распределение бюджета доступно только для открытого задания или задания в работе")
	}

	selected, err := s.jobs.ListSelectedWorkers(ctx, jobID)
	if err != nil {
		return nil, err
	}
	selectedSet := make(map[uuid.UUID]bool, len(selected))
	for _, w := range selected {
		selectedSet[w.WorkerID] = true
	}

	var total float64
	seen := make(map[uuid.UUID]bool, len(entries))
	allocations := make([]models.WorkerAllocation, 0, len(entries))
	for _, e := range entries {
		if !selectedSet[e.WorkerID] {
			return nil, apperror.New(apperror.ErrCodeUnknownWorker,
				"исполнитель не выбран для этого задания")
		}
		if seen[e.WorkerID] {
			return nil, apperror.New(apperror.ErrCodeValidation,
				"исполнитель указан в списке дважды")
		}
		seen[e.WorkerID] = true
		if e.Amount < s.minAllocation {
			return nil, apperror.New(apperror.ErrCodeBelowMinimum,
				"доля исполнителя ниже минимального порога")
		}
		total += e.Amount

		share, err := valueobject.NewAllocation(e.Amount, job.Price)
		if err != nil {
			return nil, err
		}
		allocations = append(allocations, models.WorkerAllocation{
			JobID:      jobID,
			WorkerID:   e.WorkerID,
			Amount:     share.Amount,
			Percentage: share.Percentage,
		})
	}
	if total > job.Price {
		return nil, apperror.New(apperror.ErrCodeBudgetExceeded,
			"сумма долей превышает бюджет задания")
	}

	contractUpdates, outbox, err := s.contractUpdatesFor(ctx, job, allocations)
	if err != nil {
		return nil, err
	}

	plan := repository.AllocationPlan{
		JobID:           jobID,
		ActorID:         actorID,
		Reason:          reallocationReason,
		Allocations:     allocations,
		AllocatedTotal:  total,
		RemainingBudget: job.Price - total,
		ContractUpdates: contractUpdates,
		Outbox:          outbox,
	}
	if err := s.jobs.ApplyAllocationPlan(ctx, plan); err != nil {
		return nil, err
	}

	logger.Financial("job", "", "").
		WithField("job_id", jobID).
		WithField("allocated_total", total).Info("бюджет перераспределён")
	return s.jobs.GetByID(ctx, jobID)
}

// RemoveWorker снимает исполнителя с задания: его контракт отменяется с
// фиксированной причиной, освободившаяся доля либо поровну делится между
// оставшимися, либо возвращается в нераспределённый остаток.
func (s *AllocationService) RemoveWorker(ctx context.Context, jobID, workerID, actorID uuid.UUID, redistribute bool) (*models.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ClientID != actorID {
		return nil, apperror.ErrForbidden
	}
	if !job.Status.AllocationEligible() {
		return nil, apperror.New(apperror.ErrCodeInvalidState,
			"снять исполнителя можно только с открытого задания или задания в работе")
	}

	var freed float64
	remaining := make([]models.WorkerAllocation, 0, len(job.Allocations))
	found := false
	for _, a := range job.Allocations {
		if a.WorkerID == workerID {
			freed = a.Amount
			found = true
			continue
		}
		remaining = append(remaining, a)
	}
	if !found {
		return nil, apperror.New(apperror.ErrCodeUnknownWorker,
			"у исполнителя нет доли в этом задании")
	}

	var total float64
	if redistribute && len(remaining) > 0 {
		extra := freed / float64(len(remaining))
		for i := range remaining {
			remaining[i].Amount += extra
			share, err := valueobject.NewAllocation(remaining[i].Amount, job.Price)
			if err != nil {
				return nil, err
			}
			remaining[i].Percentage = share.Percentage
		}
	}
	for _, a := range remaining {
		total += a.Amount
	}

	contractUpdates, outbox, err := s.contractUpdatesFor(ctx, job, remaining)
	if err != nil {
		return nil, err
	}

	plan := repository.AllocationPlan{
		JobID:           jobID,
		ActorID:         actorID,
		Reason:          reallocationReason,
		Allocations:     remaining,
		AllocatedTotal:  total,
		RemainingBudget: job.Price - total,
		ContractUpdates: contractUpdates,
		CancelReason:    models.CancelReasonWorkerRemoved,
		Outbox:          outbox,
	}

	// Контракт снятого исполнителя отменяется в той же транзакции.
	if c, err := s.contracts.GetByJobAndDoer(ctx, jobID, workerID); err == nil {
		plan.CancelContractID = &c.ID
		plan.Outbox = append(plan.Outbox,
			notifyMessage(jobID, workerID, "contract.cancelled", map[string]interface{}{
				"contract_id": c.ID,
				"reason":      models.CancelReasonWorkerRemoved,
			}))
	} else if !apperror.IsNotFound(err) {
		return nil, err
	}

	if err := s.jobs.ApplyAllocationPlan(ctx, plan); err != nil {
		return nil, err
	}

	logger.Financial("job", "", "").
		WithField("job_id", jobID).
		WithField("removed_worker", workerID).
		WithField("redistributed", redistribute).Info("исполнитель снят с задания")
	return s.jobs.GetByID(ctx, jobID)
}

// contractUpdatesFor пересчитывает цену, комиссию и полную стоимость
// контрактов под новые доли. Комиссия считается по тарифу клиента.
func (s *AllocationService) contractUpdatesFor(ctx context.Context, job *models.Job, allocations []models.WorkerAllocation) ([]repository.ContractPriceUpdate, []models.OutboxMessage, error) {
	client, err := s.users.GetByID(ctx, job.ClientID)
	if err != nil {
		return nil, nil, err
	}

	var updates []repository.ContractPriceUpdate
	var outbox []models.OutboxMessage
	for _, a := range allocations {
		c, err := s.contracts.GetByJobAndDoer(ctx, job.ID, a.WorkerID)
		if err != nil {
			if apperror.IsNotFound(err) {
				continue
			}
			return nil, nil, err
		}
		if c.Status.IsTerminal() || c.Price == a.Amount {
			continue
		}

		commission := CalculateCommission(a.Amount, client.Tier, client.HasFamilyPlan, client.HasReferralDiscount, s.commission)
		updates = append(updates, repository.ContractPriceUpdate{
			ContractID: c.ID,
			OldPrice:   c.Price,
			Price:      a.Amount,
			Commission: commission,
			TotalPrice: a.Amount + commission,
		})
		outbox = append(outbox,
			notifyMessage(c.ID, c.DoerID, "contract.price_changed", map[string]interface{}{
				"contract_id": c.ID,
				"old_price":   c.Price,
				"new_price":   a.Amount,
			}))
	}
	return updates, outbox, nil
}
