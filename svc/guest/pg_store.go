package guest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists guest sessions in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	if pool == nil {
		panic("guest: pgxpool is required")
	}
	return &PGStore{pool: pool}
}

func (s *PGStore) Create(ctx context.Context, sess *GuestSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO guest_sessions (
			session_id, customer_id, subscription_id, email, price_id,
			payment_status, amount_total, currency, metadata, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (session_id) DO NOTHING`,
		sess.SessionID, sess.CustomerID, sess.SubscriptionID, sess.Email, sess.PriceID,
		sess.PaymentStatus, sess.AmountTotal, sess.Currency, sess.Metadata,
		sess.CreatedAt, sess.ExpiresAt)
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}

const selectSession = `
	SELECT session_id, customer_id, COALESCE(subscription_id, ''), email,
	       COALESCE(price_id, ''), payment_status, amount_total, currency,
	       metadata, created_at, expires_at, consumed_by, consumed_at
	FROM guest_sessions`

func (s *PGStore) Get(ctx context.Context, sessionID string) (*GuestSession, error) {
	row := s.pool.QueryRow(ctx, selectSession+` WHERE session_id = $1`, sessionID)

	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return sess, nil
}

func (s *PGStore) MarkConsumed(ctx context.Context, sessionID string, userID uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE guest_sessions SET consumed_by = $2, consumed_at = $3
		WHERE session_id = $1 AND consumed_by IS NULL`,
		sessionID, userID, at)
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM guest_sessions WHERE session_id = $1)`,
			sessionID).Scan(&exists); err != nil {
			return errors.Join(ErrStoreFailure, err)
		}
		if exists {
			return ErrSessionConsumed
		}
		return ErrSessionNotFound
	}
	return nil
}

func (s *PGStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM guest_sessions
		WHERE consumed_by IS NULL AND expires_at < $1`, cutoff)
	if err != nil {
		return 0, errors.Join(ErrStoreFailure, err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PGStore) ListPending(ctx context.Context, now time.Time) ([]GuestSession, error) {
	rows, err := s.pool.Query(ctx,
		selectSession+` WHERE consumed_by IS NULL AND expires_at >= $1 ORDER BY created_at`, now)
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	defer rows.Close()

	var out []GuestSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, errors.Join(ErrStoreFailure, err)
		}
		out = append(out, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return out, nil
}

func scanSession(row pgx.Row) (*GuestSession, error) {
	var sess GuestSession
	err := row.Scan(&sess.SessionID, &sess.CustomerID, &sess.SubscriptionID, &sess.Email,
		&sess.PriceID, &sess.PaymentStatus, &sess.AmountTotal, &sess.Currency,
		&sess.Metadata, &sess.CreatedAt, &sess.ExpiresAt, &sess.ConsumedBy, &sess.ConsumedAt)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}
