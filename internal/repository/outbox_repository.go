package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/workdeal-backend/internal/models"
)

type OutboxRepository struct {
	db *sqlx.DB
}

func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Enqueue записывает задачу вне финансовой транзакции. Для побочных
// действий, сопровождающих переходы, задачи пишутся внутри транзакции
// перехода, этот метод нужен для самостоятельных задач.
func (r *OutboxRepository) Enqueue(ctx context.Context, m *models.OutboxMessage) error {
	row := r.db.QueryRowxContext(ctx, `
		INSERT INTO outbox (kind, entity_id, payload, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, m.Kind, m.EntityID, []byte(m.Payload), models.OutboxStatusPending)
	if err := row.Scan(&m.ID, &m.CreatedAt); err != nil {
		return fmt.Errorf("outbox repository: enqueue %w", err)
	}
	m.Status = models.OutboxStatusPending
	return nil
}

// ClaimPending забирает пачку необработанных задач с блокировкой строк,
// чтобы несколько воркеров не взяли одну и ту же задачу.
func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int) ([]models.OutboxMessage, error) {
	var messages []models.OutboxMessage
	err := r.db.SelectContext(ctx, &messages, `
		UPDATE outbox SET status = $1, attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM outbox WHERE status = $2
			ORDER BY created_at ASC LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, kind, entity_id, payload, status, attempts, last_error, created_at, processed_at
	`, models.OutboxStatusProcessing, models.OutboxStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox repository: claim pending %w", err)
	}
	return messages, nil
}

// MarkDone помечает задачу выполненной.
func (r *OutboxRepository) MarkDone(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox SET status = $1, processed_at = NOW(), last_error = NULL
		WHERE id = $2
	`, models.OutboxStatusDone, id)
	if err != nil {
		return fmt.Errorf("outbox repository: mark done %w", err)
	}
	return nil
}

// MarkFailed возвращает задачу в очередь с текстом ошибки; после
// maxAttempts попыток задача остаётся в статусе failed.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, maxAttempts int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox SET
			status = CASE WHEN attempts >= $1 THEN $2 ELSE $3 END,
			last_error = $4
		WHERE id = $5
	`, maxAttempts, models.OutboxStatusFailed, models.OutboxStatusPending, reason, id)
	if err != nil {
		return fmt.Errorf("outbox repository: mark failed %w", err)
	}
	return nil
}
