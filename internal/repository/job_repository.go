package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/workdeal-backend/internal/domain/valueobject"
	"github.com/ignatzorin/workdeal-backend/internal/models"
	"github.com/ignatzorin/workdeal-backend/internal/pkg/apperror"
)

const jobColumns = `
	id, client_id, title, description, price, original_price, status,
	previous_status, max_workers, allocated_total, remaining_budget,
	pending_new_price, pending_price_decrease, publication_fee_paid,
	created_at, updated_at
`

// ContractPriceUpdate — перерасчёт цены одного контракта при
// перераспределении бюджета.
type ContractPriceUpdate struct {
	ContractID uuid.UUID
	OldPrice   float64
	Price      float64
	Commission float64
	TotalPrice float64
}

// AllocationPlan — атомарный план перезаписи распределения бюджета:
// новый набор долей, итоги задания, перерасчёт контрактов и, при снятии
// исполнителя, отмена его контракта. Применяется одной транзакцией,
// частичная запись невозможна.
type AllocationPlan struct {
	JobID           uuid.UUID
	ActorID         uuid.UUID
	Reason          string
	Allocations     []models.WorkerAllocation
	AllocatedTotal  float64
	RemainingBudget float64
	ContractUpdates []ContractPriceUpdate

	CancelContractID *uuid.UUID
	CancelReason     string

	Outbox []models.OutboxMessage
}

type JobRepository struct {
	db *sqlx.DB
}

func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create сохраняет новое задание.
func (r *JobRepository) Create(ctx context.Context, j *models.Job) error {
	query := `
		INSERT INTO jobs (client_id, title, description, price, original_price,
			status, max_workers, remaining_budget)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, allocated_total, created_at, updated_at
	`
	row := r.db.QueryRowxContext(ctx, query,
		j.ClientID, j.Title, j.Description, j.Price, j.OriginalPrice,
		j.Status, j.MaxWorkers, j.RemainingBudget)
	if err := row.Scan(&j.ID, &j.AllocatedTotal, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return fmt.Errorf("job repository: create %w", err)
	}
	return nil
}

// GetByID возвращает задание вместе с распределением бюджета.
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := r.db.GetContext(ctx, &j, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrJobNotFound
		}
		return nil, fmt.Errorf("job repository: get by id %w", err)
	}

	allocations, err := r.ListAllocations(ctx, id)
	if err != nil {
		return nil, err
	}
	j.Allocations = allocations

	return &j, nil
}

// UpdateGuarded перезаписывает задание при условии совпадения статуса.
func (r *JobRepository) UpdateGuarded(ctx context.Context, j *models.Job, expected valueobject.JobStatus, outbox []models.OutboxMessage) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET
			title = $1, description = $2, price = $3, original_price = $4,
			status = $5, previous_status = $6, max_workers = $7,
			allocated_total = $8, remaining_budget = $9,
			pending_new_price = $10, pending_price_decrease = $11,
			publication_fee_paid = $12, updated_at = NOW()
		WHERE id = $13 AND status = $14
	`,
		j.Title, j.Description, j.Price, j.OriginalPrice,
		j.Status, j.PreviousStatus, j.MaxWorkers,
		j.AllocatedTotal, j.RemainingBudget,
		j.PendingNewPrice, j.PendingPriceDecrease,
		j.PublicationFeePaid, j.ID, expected)
	if err != nil {
		return fmt.Errorf("job repository: guarded update %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrStateConflict
	}

	if err := insertOutbox(ctx, tx, outbox); err != nil {
		return err
	}

	return tx.Commit()
}

// AddSelectedWorker фиксирует выбор исполнителя для задания.
func (r *JobRepository) AddSelectedWorker(ctx context.Context, jobID, workerID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO job_selected_workers (job_id, worker_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING
	`, jobID, workerID)
	if err != nil {
		return fmt.Errorf("job repository: add selected worker %w", err)
	}
	return nil
}

// ListSelectedWorkers возвращает выбранных исполнителей задания.
func (r *JobRepository) ListSelectedWorkers(ctx context.Context, jobID uuid.UUID) ([]models.SelectedWorker, error) {
	var workers []models.SelectedWorker
	err := r.db.SelectContext(ctx, &workers, `
		SELECT job_id, worker_id, created_at FROM job_selected_workers
		WHERE job_id = $1 ORDER BY created_at ASC
	`, jobID)
	return workers, err
}

// ListAllocations возвращает текущее распределение бюджета.
func (r *JobRepository) ListAllocations(ctx context.Context, jobID uuid.UUID) ([]models.WorkerAllocation, error) {
	var allocations []models.WorkerAllocation
	err := r.db.SelectContext(ctx, &allocations, `
		SELECT id, job_id, worker_id, amount, percentage, created_at, updated_at
		FROM worker_allocations WHERE job_id = $1 ORDER BY created_at ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("job repository: list allocations %w", err)
	}
	return allocations, nil
}

// ApplyAllocationPlan применяет план перераспределения бюджета одной
// транзакцией: перезапись долей, итоги задания, цены контрактов, журнал
// изменений цены, отмена контракта снятого исполнителя и outbox.
func (r *JobRepository) ApplyAllocationPlan(ctx context.Context, plan AllocationPlan) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM worker_allocations WHERE job_id = $1`, plan.JobID); err != nil {
		return fmt.Errorf("job repository: clear allocations %w", err)
	}

	for _, a := range plan.Allocations {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO worker_allocations (job_id, worker_id, amount, percentage)
			VALUES ($1, $2, $3, $4)
		`, plan.JobID, a.WorkerID, a.Amount, a.Percentage)
		if err != nil {
			return fmt.Errorf("job repository: insert allocation %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET allocated_total = $1, remaining_budget = $2, updated_at = NOW()
		WHERE id = $3
	`, plan.AllocatedTotal, plan.RemainingBudget, plan.JobID)
	if err != nil {
		return fmt.Errorf("job repository: update totals %w", err)
	}
	if rows, err := res.RowsAffected(); err != nil {
		return err
	} else if rows == 0 {
		return apperror.ErrJobNotFound
	}

	for _, cu := range plan.ContractUpdates {
		_, err := tx.ExecContext(ctx, `
			UPDATE contracts SET price = $1, commission = $2, total_price = $3, updated_at = NOW()
			WHERE id = $4
		`, cu.Price, cu.Commission, cu.TotalPrice, cu.ContractID)
		if err != nil {
			return fmt.Errorf("job repository: update contract price %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO price_modifications (contract_id, old_price, new_price, actor_id, reason)
			VALUES ($1, $2, $3, $4, $5)
		`, cu.ContractID, cu.OldPrice, cu.Price, plan.ActorID, plan.Reason)
		if err != nil {
			return fmt.Errorf("job repository: log price modification %w", err)
		}
	}

	if plan.CancelContractID != nil {
		_, err := tx.ExecContext(ctx, `
			UPDATE contracts SET status = $1, cancellation_reason = $2, updated_at = NOW()
			WHERE id = $3
		`, valueobject.ContractStatusCancelled, plan.CancelReason, *plan.CancelContractID)
		if err != nil {
			return fmt.Errorf("job repository: cancel contract %w", err)
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM job_selected_workers WHERE job_id = $1 AND worker_id = (
			SELECT doer_id FROM contracts WHERE id = $2
		)`, plan.JobID, *plan.CancelContractID)
		if err != nil {
			return fmt.Errorf("job repository: remove selected worker %w", err)
		}
	}

	if err := insertOutbox(ctx, tx, plan.Outbox); err != nil {
		return err
	}

	return tx.Commit()
}

// AddPriceDecreaseVote фиксирует голос по снижению бюджета.
func (r *JobRepository) AddPriceDecreaseVote(ctx context.Context, vote *models.PriceDecreaseVote) error {
	row := r.db.QueryRowxContext(ctx, `
		INSERT INTO price_decrease_votes (job_id, voter_id, accepted)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_id, voter_id) DO UPDATE SET accepted = $3, created_at = NOW()
		RETURNING id, created_at
	`, vote.JobID, vote.VoterID, vote.Accepted)
	if err := row.Scan(&vote.ID, &vote.CreatedAt); err != nil {
		return fmt.Errorf("job repository: add price decrease vote %w", err)
	}
	return nil
}

// ListPriceDecreaseVotes возвращает голоса по текущему предложению.
func (r *JobRepository) ListPriceDecreaseVotes(ctx context.Context, jobID uuid.UUID) ([]models.PriceDecreaseVote, error) {
	var votes []models.PriceDecreaseVote
	err := r.db.SelectContext(ctx, &votes, `
		SELECT id, job_id, voter_id, accepted, created_at
		FROM price_decrease_votes WHERE job_id = $1 ORDER BY created_at ASC
	`, jobID)
	return votes, err
}

// ClearPriceDecreaseVotes удаляет голоса после завершения голосования.
func (r *JobRepository) ClearPriceDecreaseVotes(ctx context.Context, jobID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM price_decrease_votes WHERE job_id = $1`, jobID)
	return err
}
