package subscription

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists the subscription mirror in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	if pool == nil {
		panic("subscription: pgxpool is required")
	}
	return &PGStore{pool: pool}
}

func (s *PGStore) Upsert(ctx context.Context, sub *Subscription) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (
			id, user_id, customer_id, price_id, status, cancel_at_period_end,
			current_period_start, current_period_end, canceled_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			customer_id = EXCLUDED.customer_id,
			price_id = EXCLUDED.price_id,
			status = EXCLUDED.status,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			canceled_at = EXCLUDED.canceled_at,
			updated_at = EXCLUDED.updated_at`,
		sub.ID, sub.UserID, sub.CustomerID, sub.PriceID, string(sub.Status),
		sub.CancelAtPeriodEnd, sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.CanceledAt, sub.UpdatedAt)
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}

const selectSubscription = `
	SELECT id, user_id, customer_id, price_id, status, cancel_at_period_end,
	       current_period_start, current_period_end, canceled_at, updated_at
	FROM subscriptions`

func (s *PGStore) Get(ctx context.Context, id string) (*Subscription, error) {
	row := s.pool.QueryRow(ctx, selectSubscription+` WHERE id = $1`, id)

	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return sub, nil
}

func (s *PGStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx,
		selectSubscription+` WHERE user_id = $1 ORDER BY current_period_end DESC`, userID)
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, errors.Join(ErrStoreFailure, err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return subs, nil
}

func (s *PGStore) DeleteByCustomer(ctx context.Context, customerID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM subscriptions WHERE customer_id = $1`, customerID)
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var (
		sub    Subscription
		status string
	)
	err := row.Scan(&sub.ID, &sub.UserID, &sub.CustomerID, &sub.PriceID, &status,
		&sub.CancelAtPeriodEnd, &sub.CurrentPeriodStart, &sub.CurrentPeriodEnd,
		&sub.CanceledAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sub.Status = Status(status)
	return &sub, nil
}
