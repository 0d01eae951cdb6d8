package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/workdeal-backend/internal/domain/valueobject"
	"github.com/ignatzorin/workdeal-backend/internal/models"
	"github.com/ignatzorin/workdeal-backend/internal/pkg/apperror"
)

const paymentColumns = `
	id, payer_id, recipient_id, contract_id, job_id, amount, currency,
	payment_type, status, provider_tx_id, commission, is_escrow,
	refunded_amount, admin_notes, approved_at, escrow_verified_at,
	refunded_at, created_at, updated_at
`

// PaymentTransition описывает один атомарный переход платежа.
// Обновление выполняется условно по статусу From; ноль затронутых строк
// означает, что состояние уже изменил параллельный запрос.
type PaymentTransition struct {
	PaymentID uuid.UUID
	From      valueobject.PaymentStatus
	To        valueobject.PaymentStatus
	ActorID   *uuid.UUID
	Reason    *string
	Notes     *string

	SetApprovedAt       bool
	SetEscrowVerifiedAt bool
	SetRefundedAt       bool
	AddRefundedAmount   float64
	ProviderTxID        *string

	// Новый статус для связанных чеков (pending -> approved/rejected,
	// rejected -> pending при cancel-reject).
	ProofFromStatus *string
	ProofToStatus   *string

	// Побочные действия, записываемые в outbox той же транзакцией.
	Outbox []models.OutboxMessage
}

type PaymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create сохраняет новый платёж.
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	query := `
		INSERT INTO payments (payer_id, recipient_id, contract_id, job_id, amount,
			currency, payment_type, status, commission, is_escrow, admin_notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, refunded_amount, created_at, updated_at
	`
	row := r.db.QueryRowxContext(ctx, query,
		p.PayerID, p.RecipientID, p.ContractID, p.JobID, p.Amount,
		p.Currency, p.Type, p.Status, p.Commission, p.IsEscrow, p.AdminNotes)
	if err := row.Scan(&p.ID, &p.RefundedAmount, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("payment repository: create %w", err)
	}
	return nil
}

// GetByID возвращает платёж по идентификатору.
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	err := r.db.GetContext(ctx, &p, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("payment repository: get by id %w", err)
	}
	return &p, nil
}

// GetByContractID возвращает последний платёж по контракту.
func (r *PaymentRepository) GetByContractID(ctx context.Context, contractID uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	err := r.db.GetContext(ctx, &p, `
		SELECT `+paymentColumns+` FROM payments
		WHERE contract_id = $1 ORDER BY created_at DESC LIMIT 1
	`, contractID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("payment repository: get by contract %w", err)
	}
	return &p, nil
}

// ListByPayer возвращает платежи пользователя.
func (r *PaymentRepository) ListByPayer(ctx context.Context, payerID uuid.UUID, limit, offset int) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.SelectContext(ctx, &payments, `
		SELECT `+paymentColumns+` FROM payments
		WHERE payer_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, payerID, limit, offset)
	return payments, err
}

// Transition применяет переход платежа: условное обновление строки по
// текущему статусу, запись аудита, обновление чеков и запись outbox —
// всё в одной транзакции. Ноль затронутых строк — ErrStateConflict.
func (r *PaymentRepository) Transition(ctx context.Context, t PaymentTransition) (*models.Payment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	set := `status = $1, updated_at = NOW()`
	args := []interface{}{t.To}
	idx := 2

	if t.Notes != nil {
		set += fmt.Sprintf(", admin_notes = $%d", idx)
		args = append(args, *t.Notes)
		idx++
	}
	if t.ProviderTxID != nil {
		set += fmt.Sprintf(", provider_tx_id = $%d", idx)
		args = append(args, *t.ProviderTxID)
		idx++
	}
	if t.AddRefundedAmount > 0 {
		set += fmt.Sprintf(", refunded_amount = refunded_amount + $%d", idx)
		args = append(args, t.AddRefundedAmount)
		idx++
	}
	if t.SetApprovedAt {
		set += ", approved_at = NOW()"
	}
	if t.SetEscrowVerifiedAt {
		set += ", escrow_verified_at = NOW()"
	}
	if t.SetRefundedAt {
		set += ", refunded_at = NOW()"
	}

	query := fmt.Sprintf(`UPDATE payments SET %s WHERE id = $%d AND status = $%d`, set, idx, idx+1)
	args = append(args, t.PaymentID, t.From)

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("payment repository: transition update %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrStateConflict
	}

	if t.ProofFromStatus != nil && t.ProofToStatus != nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE payment_proofs SET status = $1, updated_at = NOW()
			WHERE payment_id = $2 AND status = $3
		`, *t.ProofToStatus, t.PaymentID, *t.ProofFromStatus)
		if err != nil {
			return nil, fmt.Errorf("payment repository: transition proof %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payment_audit (payment_id, actor_id, from_status, to_status, reason)
		VALUES ($1, $2, $3, $4, $5)
	`, t.PaymentID, t.ActorID, t.From, t.To, t.Reason)
	if err != nil {
		return nil, fmt.Errorf("payment repository: transition audit %w", err)
	}

	if err := insertOutbox(ctx, tx, t.Outbox); err != nil {
		return nil, err
	}

	var p models.Payment
	if err := tx.GetContext(ctx, &p, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, t.PaymentID); err != nil {
		return nil, fmt.Errorf("payment repository: transition reread %w", err)
	}

	return &p, tx.Commit()
}

// CreateProof добавляет чек об оплате. Второй pending чек запрещён.
func (r *PaymentRepository) CreateProof(ctx context.Context, proof *models.PaymentProof) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var pending int
	err = tx.GetContext(ctx, &pending, `
		SELECT COUNT(*) FROM payment_proofs WHERE payment_id = $1 AND status = $2
	`, proof.PaymentID, models.ProofStatusPending)
	if err != nil {
		return fmt.Errorf("payment repository: count pending proofs %w", err)
	}
	if pending > 0 {
		return ErrDuplicatePendingProof
	}

	row := tx.QueryRowxContext(ctx, `
		INSERT INTO payment_proofs (payment_id, file_path, status, comment)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, proof.PaymentID, proof.FilePath, models.ProofStatusPending, proof.Comment)
	if err := row.Scan(&proof.ID, &proof.CreatedAt, &proof.UpdatedAt); err != nil {
		return fmt.Errorf("payment repository: create proof %w", err)
	}
	proof.Status = models.ProofStatusPending

	return tx.Commit()
}

// GetPendingProof возвращает непроверенный чек платежа, если он есть.
func (r *PaymentRepository) GetPendingProof(ctx context.Context, paymentID uuid.UUID) (*models.PaymentProof, error) {
	var proof models.PaymentProof
	err := r.db.GetContext(ctx, &proof, `
		SELECT id, payment_id, file_path, status, comment, created_at, updated_at
		FROM payment_proofs WHERE payment_id = $1 AND status = $2
	`, paymentID, models.ProofStatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("payment repository: get pending proof %w", err)
	}
	return &proof, nil
}

// ListAudit возвращает журнал аудита платежа по порядку событий.
func (r *PaymentRepository) ListAudit(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentAudit, error) {
	var entries []models.PaymentAudit
	err := r.db.SelectContext(ctx, &entries, `
		SELECT id, payment_id, actor_id, from_status, to_status, reason, created_at
		FROM payment_audit WHERE payment_id = $1 ORDER BY created_at ASC
	`, paymentID)
	return entries, err
}

// GetBalance возвращает внутренний баланс пользователя, создаёт если не существует.
func (r *PaymentRepository) GetBalance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error) {
	var balance models.UserBalance
	query := `
		INSERT INTO user_balances (user_id, available, credit)
		VALUES ($1, 0, 0)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
		RETURNING user_id, available, credit, updated_at
	`
	if err := r.db.GetContext(ctx, &balance, query, userID); err != nil {
		return nil, fmt.Errorf("payment repository: get balance %w", err)
	}
	return &balance, nil
}

// CreditBalance зачисляет внутренний кредит пользователю (без провайдера).
func (r *PaymentRepository) CreditBalance(ctx context.Context, userID uuid.UUID, amount float64) error {
	if amount <= 0 {
		return apperror.New(apperror.ErrCodeValidation, "сумма кредита должна быть положительной")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_balances (user_id, available, credit)
		VALUES ($1, 0, $2)
		ON CONFLICT (user_id) DO UPDATE SET credit = user_balances.credit + $2, updated_at = NOW()
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("payment repository: credit balance %w", err)
	}
	return nil
}

// insertOutbox записывает отложенные побочные действия внутри транзакции.
func insertOutbox(ctx context.Context, tx *sqlx.Tx, messages []models.OutboxMessage) error {
	for i := range messages {
		m := &messages[i]
		if len(m.Payload) == 0 {
			m.Payload = json.RawMessage(`{}`)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO outbox (kind, entity_id, payload, status)
			VALUES ($1, $2, $3, $4)
		`, m.Kind, m.EntityID, []byte(m.Payload), models.OutboxStatusPending)
		if err != nil {
			return fmt.Errorf("outbox: insert %w", err)
		}
	}
	return nil
}
