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

const contractColumns = `
	id, job_id, client_id, doer_id, price, commission, total_price,
	status, payment_status, escrow_status, dispute_status,
	client_confirmed, doer_confirmed,
	terms_accepted_by_client, terms_accepted_by_doer,
	pairing_code, pairing_code_expires_at,
	pairing_confirmed_by_client, pairing_confirmed_by_doer,
	start_date, end_date,
	has_been_extended, extension_requested, extension_requested_by,
	extension_new_end_date, extension_amount,
	cancellation_reason, created_at, updated_at
`

type ContractRepository struct {
	db *sqlx.DB
}

func NewContractRepository(db *sqlx.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

// Create сохраняет новый контракт.
func (r *ContractRepository) Create(ctx context.Context, c *models.Contract) error {
	query := `
		INSERT INTO contracts (job_id, client_id, doer_id, price, commission,
			total_price, status, payment_status, escrow_status, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`
	row := r.db.QueryRowxContext(ctx, query,
		c.JobID, c.ClientID, c.DoerID, c.Price, c.Commission, c.TotalPrice,
		c.Status, c.PaymentStatus, c.EscrowStatus, c.StartDate, c.EndDate)
	if err := row.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return fmt.Errorf("contract repository: create %w", err)
	}
	return nil
}

// GetByID возвращает контракт по идентификатору.
func (r *ContractRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	var c models.Contract
	err := r.db.GetContext(ctx, &c, `SELECT `+contractColumns+` FROM contracts WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrContractNotFound
		}
		return nil, fmt.Errorf("contract repository: get by id %w", err)
	}
	return &c, nil
}

// ListByJob возвращает все контракты задания.
func (r *ContractRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.Contract, error) {
	var contracts []models.Contract
	err := r.db.SelectContext(ctx, &contracts, `
		SELECT `+contractColumns+` FROM contracts WHERE job_id = $1 ORDER BY created_at ASC
	`, jobID)
	return contracts, err
}

// GetByJobAndDoer возвращает контракт исполнителя по заданию.
func (r *ContractRepository) GetByJobAndDoer(ctx context.Context, jobID, doerID uuid.UUID) (*models.Contract, error) {
	var c models.Contract
	err := r.db.GetContext(ctx, &c, `
		SELECT `+contractColumns+` FROM contracts WHERE job_id = $1 AND doer_id = $2
	`, jobID, doerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrContractNotFound
		}
		return nil, fmt.Errorf("contract repository: get by job and doer %w", err)
	}
	return &c, nil
}

// UpdateGuarded перезаписывает контракт целиком при условии, что его статус
// в базе совпадает с expected. Ноль затронутых строк — ErrStateConflict.
// Outbox-сообщения записываются той же транзакцией.
func (r *ContractRepository) UpdateGuarded(ctx context.Context, c *models.Contract, expected valueobject.ContractStatus, outbox []models.OutboxMessage) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE contracts SET
			price = $1, commission = $2, total_price = $3,
			status = $4, payment_status = $5, escrow_status = $6, dispute_status = $7,
			client_confirmed = $8, doer_confirmed = $9,
			terms_accepted_by_client = $10, terms_accepted_by_doer = $11,
			pairing_code = $12, pairing_code_expires_at = $13,
			pairing_confirmed_by_client = $14, pairing_confirmed_by_doer = $15,
			end_date = $16,
			has_been_extended = $17, extension_requested = $18, extension_requested_by = $19,
			extension_new_end_date = $20, extension_amount = $21,
			cancellation_reason = $22,
			updated_at = NOW()
		WHERE id = $23 AND status = $24
	`,
		c.Price, c.Commission, c.TotalPrice,
		c.Status, c.PaymentStatus, c.EscrowStatus, c.DisputeStatus,
		c.ClientConfirmed, c.DoerConfirmed,
		c.TermsAcceptedByClient, c.TermsAcceptedByDoer,
		c.PairingCode, c.PairingCodeExpiresAt,
		c.PairingConfirmedByClient, c.PairingConfirmedByDoer,
		c.EndDate,
		c.HasBeenExtended, c.ExtensionRequested, c.ExtensionRequestedBy,
		c.ExtensionNewEndDate, c.ExtensionAmount,
		c.CancellationReason,
		c.ID, expected)
	if err != nil {
		return fmt.Errorf("contract repository: guarded update %w", err)
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

// AddPriceModification добавляет запись в журнал изменений цены.
func (r *ContractRepository) AddPriceModification(ctx context.Context, pm *models.PriceModification) error {
	row := r.db.QueryRowxContext(ctx, `
		INSERT INTO price_modifications (contract_id, old_price, new_price, actor_id, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, pm.ContractID, pm.OldPrice, pm.NewPrice, pm.ActorID, pm.Reason)
	if err := row.Scan(&pm.ID, &pm.CreatedAt); err != nil {
		return fmt.Errorf("contract repository: add price modification %w", err)
	}
	return nil
}

// ListPriceModifications возвращает журнал изменений цены контракта.
func (r *ContractRepository) ListPriceModifications(ctx context.Context, contractID uuid.UUID) ([]models.PriceModification, error) {
	var entries []models.PriceModification
	err := r.db.SelectContext(ctx, &entries, `
		SELECT id, contract_id, old_price, new_price, actor_id, reason, created_at
		FROM price_modifications WHERE contract_id = $1 ORDER BY created_at ASC
	`, contractID)
	return entries, err
}
