package audit

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage persists audit entries in the reconciliation_log table.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

func NewPostgresStorage(pool *pgxpool.Pool) *PostgresStorage {
	if pool == nil {
		panic("audit: pgx pool is required")
	}
	return &PostgresStorage{pool: pool}
}

func (s *PostgresStorage) Store(ctx context.Context, entry Entry) error {
	var metadata []byte
	if entry.Metadata != nil {
		var err error
		metadata, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Join(ErrStorageFailure, err)
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO reconciliation_log
			(id, operation, user_id, session_id, customer_id, subscription_id, email, status, error, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID.String(), entry.Operation, entry.UserID.String(),
		entry.SessionID, entry.CustomerID, entry.SubscriptionID,
		entry.Email, string(entry.Status), entry.Error, metadata, entry.CreatedAt,
	)
	if err != nil {
		return errors.Join(ErrStorageFailure, err)
	}
	return nil
}

func (s *PostgresStorage) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, operation, user_id, session_id, customer_id, subscription_id, email, status, error, metadata, created_at
		FROM reconciliation_log
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		userID.String(), limit,
	)
	if err != nil {
		return nil, errors.Join(ErrStorageFailure, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry            Entry
			idStr, userIDStr string
			status           string
			metadata         []byte
		)
		if err := rows.Scan(&idStr, &entry.Operation, &userIDStr,
			&entry.SessionID, &entry.CustomerID, &entry.SubscriptionID,
			&entry.Email, &status, &entry.Error, &metadata, &entry.CreatedAt); err != nil {
			return nil, errors.Join(ErrStorageFailure, err)
		}

		entry.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, errors.Join(ErrStorageFailure, err)
		}
		entry.UserID, err = uuid.Parse(userIDStr)
		if err != nil {
			return nil, errors.Join(ErrStorageFailure, err)
		}
		entry.Status = Status(status)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, errors.Join(ErrStorageFailure, err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStorageFailure, err)
	}
	return entries, nil
}
