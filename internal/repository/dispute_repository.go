package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/workdeal-backend/internal/domain/valueobject"
	"github.com/ignatzorin/workdeal-backend/internal/models"
	"github.com/ignatzorin/workdeal-backend/internal/pkg/apperror"
)

const disputeColumns = `
	id, contract_id, payment_id, initiator_id, defendant_id, category, status,
	resolution_type, resolution, refund_amount, resolved_by, created_at, resolved_at
`

// ResolutionPlan — атомарное применение решения администратора:
// терминальные статусы спора, платежа и контракта записываются одной
// транзакцией вместе с журналом и outbox.
type ResolutionPlan struct {
	DisputeID      uuid.UUID
	DisputeStatus  valueobject.DisputeStatus
	ResolutionType string
	Resolution     string
	RefundAmount   *float64
	ResolvedBy     uuid.UUID

	// Платёж: переход выполняется условно по статусу From.
	PaymentID         *uuid.UUID
	PaymentFrom       valueobject.PaymentStatus
	PaymentTo         valueobject.PaymentStatus
	AddRefundedAmount float64

	// Контракт: обновляется вместе с платёжными полями.
	Contract         *models.Contract
	ContractExpected valueobject.ContractStatus

	LogEvent string
	Outbox   []models.OutboxMessage
}

type DisputeRepository struct {
	db *sqlx.DB
}

func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

// Create открывает спор. Второй активный спор по контракту запрещён.
func (r *DisputeRepository) Create(ctx context.Context, d *models.Dispute) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var active int
	err = tx.GetContext(ctx, &active, `
		SELECT COUNT(*) FROM disputes
		WHERE contract_id = $1 AND status IN ($2, $3)
	`, d.ContractID, valueobject.DisputeStatusOpen, valueobject.DisputeStatusInReview)
	if err != nil {
		return fmt.Errorf("dispute repository: count active %w", err)
	}
	if active > 0 {
		return ErrActiveDisputeExists
	}

	row := tx.QueryRowxContext(ctx, `
		INSERT INTO disputes (contract_id, payment_id, initiator_id, defendant_id, category, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, d.ContractID, d.PaymentID, d.InitiatorID, d.DefendantID, d.Category, d.Status)
	if err := row.Scan(&d.ID, &d.CreatedAt); err != nil {
		return fmt.Errorf("dispute repository: create %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO dispute_logs (dispute_id, actor_id, event)
		VALUES ($1, $2, $3)
	`, d.ID, d.InitiatorID, "спор открыт")
	if err != nil {
		return fmt.Errorf("dispute repository: create log %w", err)
	}

	return tx.Commit()
}

// GetByID возвращает спор по идентификатору.
func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrDisputeNotFound
		}
		return nil, fmt.Errorf("dispute repository: get by id %w", err)
	}
	return &d, nil
}

// GetActiveByContract возвращает активный спор контракта, если он есть.
func (r *DisputeRepository) GetActiveByContract(ctx context.Context, contractID uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `
		SELECT `+disputeColumns+` FROM disputes
		WHERE contract_id = $1 AND status IN ($2, $3)
	`, contractID, valueobject.DisputeStatusOpen, valueobject.DisputeStatusInReview)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("dispute repository: get active %w", err)
	}
	return &d, nil
}

// ListByUser возвращает споры, где пользователь — сторона.
func (r *DisputeRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT `+disputeColumns+` FROM disputes
		WHERE initiator_id = $1 OR defendant_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return disputes, err
}

// MarkInReview переводит спор в рассмотрение администратором.
func (r *DisputeRepository) MarkInReview(ctx context.Context, id uuid.UUID, adminID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE disputes SET status = $1 WHERE id = $2 AND status = $3
	`, valueobject.DisputeStatusInReview, id, valueobject.DisputeStatusOpen)
	if err != nil {
		return fmt.Errorf("dispute repository: mark in review %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrStateConflict
	}
	return r.AddLog(ctx, &models.DisputeLog{DisputeID: id, ActorID: &adminID, Event: "спор взят в рассмотрение"})
}

// Resolve применяет решение администратора одной транзакцией.
// Спор закрывается условно по активному статусу; платёж и контракт
// обновляются условно по своим ожидаемым статусам. Любой конфликт
// откатывает всё целиком.
func (r *DisputeRepository) Resolve(ctx context.Context, plan ResolutionPlan) (*models.Dispute, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now()

	res, err := tx.ExecContext(ctx, `
		UPDATE disputes SET status = $1, resolution_type = $2, resolution = $3,
			refund_amount = $4, resolved_by = $5, resolved_at = $6
		WHERE id = $7 AND status IN ($8, $9)
	`, plan.DisputeStatus, plan.ResolutionType, plan.Resolution,
		plan.RefundAmount, plan.ResolvedBy, now,
		plan.DisputeID, valueobject.DisputeStatusOpen, valueobject.DisputeStatusInReview)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: resolve update %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrStateConflict
	}

	if plan.PaymentID != nil {
		set := `status = $1, updated_at = NOW()`
		args := []interface{}{plan.PaymentTo}
		idx := 2
		if plan.AddRefundedAmount > 0 {
			set += fmt.Sprintf(", refunded_amount = refunded_amount + $%d, refunded_at = NOW()", idx)
			args = append(args, plan.AddRefundedAmount)
			idx++
		}
		query := fmt.Sprintf(`UPDATE payments SET %s WHERE id = $%d AND status = $%d`, set, idx, idx+1)
		args = append(args, *plan.PaymentID, plan.PaymentFrom)

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("dispute repository: resolve payment %w", err)
		}
		if rows, err := res.RowsAffected(); err != nil {
			return nil, err
		} else if rows == 0 {
			return nil, ErrStateConflict
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO payment_audit (payment_id, actor_id, from_status, to_status, reason)
			VALUES ($1, $2, $3, $4, $5)
		`, *plan.PaymentID, plan.ResolvedBy, plan.PaymentFrom, plan.PaymentTo, plan.Resolution)
		if err != nil {
			return nil, fmt.Errorf("dispute repository: resolve audit %w", err)
		}
	}

	if plan.Contract != nil {
		c := plan.Contract
		res, err := tx.ExecContext(ctx, `
			UPDATE contracts SET status = $1, payment_status = $2, escrow_status = $3,
				dispute_status = $4, client_confirmed = $5, doer_confirmed = $6,
				cancellation_reason = $7, updated_at = NOW()
			WHERE id = $8 AND status = $9
		`, c.Status, c.PaymentStatus, c.EscrowStatus,
			c.DisputeStatus, c.ClientConfirmed, c.DoerConfirmed,
			c.CancellationReason, c.ID, plan.ContractExpected)
		if err != nil {
			return nil, fmt.Errorf("dispute repository: resolve contract %w", err)
		}
		if rows, err := res.RowsAffected(); err != nil {
			return nil, err
		} else if rows == 0 {
			return nil, ErrStateConflict
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO dispute_logs (dispute_id, actor_id, event)
		VALUES ($1, $2, $3)
	`, plan.DisputeID, plan.ResolvedBy, plan.LogEvent)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: resolve log %w", err)
	}

	if err := insertOutbox(ctx, tx, plan.Outbox); err != nil {
		return nil, err
	}

	var d models.Dispute
	if err := tx.GetContext(ctx, &d, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, plan.DisputeID); err != nil {
		return nil, fmt.Errorf("dispute repository: resolve reread %w", err)
	}

	return &d, tx.Commit()
}

// AddLog добавляет запись в журнал спора.
func (r *DisputeRepository) AddLog(ctx context.Context, log *models.DisputeLog) error {
	row := r.db.QueryRowxContext(ctx, `
		INSERT INTO dispute_logs (dispute_id, actor_id, event)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, log.DisputeID, log.ActorID, log.Event)
	if err := row.Scan(&log.ID, &log.CreatedAt); err != nil {
		return fmt.Errorf("dispute repository: add log %w", err)
	}
	return nil
}

// ListLogs возвращает журнал спора по порядку событий.
func (r *DisputeRepository) ListLogs(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeLog, error) {
	var logs []models.DisputeLog
	err := r.db.SelectContext(ctx, &logs, `
		SELECT id, dispute_id, actor_id, event, created_at
		FROM dispute_logs WHERE dispute_id = $1 ORDER BY created_at ASC
	`, disputeID)
	return logs, err
}

// AddMessage добавляет сообщение стороны спора.
func (r *DisputeRepository) AddMessage(ctx context.Context, msg *models.DisputeMessage) error {
	row := r.db.QueryRowxContext(ctx, `
		INSERT INTO dispute_messages (dispute_id, author_id, body)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, msg.DisputeID, msg.AuthorID, msg.Body)
	if err := row.Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return fmt.Errorf("dispute repository: add message %w", err)
	}
	return nil
}

// ListMessages возвращает сообщения спора по порядку.
func (r *DisputeRepository) ListMessages(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeMessage, error) {
	var messages []models.DisputeMessage
	err := r.db.SelectContext(ctx, &messages, `
		SELECT id, dispute_id, author_id, body, created_at
		FROM dispute_messages WHERE dispute_id = $1 ORDER BY created_at ASC
	`, disputeID)
	return messages, err
}
