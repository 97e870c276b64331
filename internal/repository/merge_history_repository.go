package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/reactive-engine/internal/domain"
)

// MergeHistoryRepository stores executed merges for auditing.
type MergeHistoryRepository interface {
	Create(ctx context.Context, record *domain.MergeRecord) error
	ListByRequester(ctx context.Context, email string, limit int) ([]domain.MergeRecord, error)
}

type mergeHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewMergeHistoryRepository builds repository.
func NewMergeHistoryRepository(pool *pgxpool.Pool) MergeHistoryRepository {
	return &mergeHistoryRepository{pool: pool}
}

func (r *mergeHistoryRepository) Create(ctx context.Context, record *domain.MergeRecord) error {
	issues, err := json.Marshal(record.Issues)
	if err != nil {
		return fmt.Errorf("encode issues: %w", err)
	}
	const query = `
        INSERT INTO merge_history (requester_email, target_ticket, source_tickets, issues, priority, assignee, executed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id::text`
	return r.pool.QueryRow(ctx, query,
		record.RequesterEmail,
		record.TargetTicket,
		record.SourceTickets,
		string(issues),
		record.Priority,
		record.Assignee,
		record.ExecutedAt,
	).Scan(&record.ID)
}

func (r *mergeHistoryRepository) ListByRequester(ctx context.Context, email string, limit int) ([]domain.MergeRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
        SELECT id::text, requester_email, target_ticket, source_tickets, issues, priority, assignee, executed_at
        FROM merge_history WHERE requester_email=$1 ORDER BY executed_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, email, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.MergeRecord
	for rows.Next() {
		var (
			record domain.MergeRecord
			issues []byte
		)
		if err := rows.Scan(
			&record.ID,
			&record.RequesterEmail,
			&record.TargetTicket,
			&record.SourceTickets,
			&issues,
			&record.Priority,
			&record.Assignee,
			&record.ExecutedAt,
		); err != nil {
			return nil, err
		}
		if len(issues) > 0 {
			if err := json.Unmarshal(issues, &record.Issues); err != nil {
				return nil, fmt.Errorf("decode issues: %w", err)
			}
		}
		result = append(result, record)
	}
	return result, rows.Err()
}
