package profile

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists profiles in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	if pool == nil {
		panic("profile: pgxpool is required")
	}
	return &PGStore{pool: pool}
}

const selectProfile = `
	SELECT id, user_id, email, full_name, preferences,
	       COALESCE(stripe_customer_id, ''), created_at, updated_at
	FROM profiles`

func (s *PGStore) GetByUserID(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	row := s.pool.QueryRow(ctx, selectProfile+` WHERE user_id = $1`, userID)
	return scanProfile(row)
}

func (s *PGStore) GetByCustomerID(ctx context.Context, customerID string) (*Profile, error) {
	row := s.pool.QueryRow(ctx, selectProfile+` WHERE stripe_customer_id = $1`, customerID)
	return scanProfile(row)
}

func (s *PGStore) Upsert(ctx context.Context, p *Profile) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (id, user_id, email, full_name, preferences, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			full_name = EXCLUDED.full_name,
			preferences = EXCLUDED.preferences,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.UserID, p.Email, p.FullName, p.Preferences, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}

func (s *PGStore) LinkCustomer(ctx context.Context, userID uuid.UUID, customerID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE profiles SET stripe_customer_id = $2, updated_at = now()
		WHERE user_id = $1`,
		userID, customerID)
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (s *PGStore) UnlinkCustomer(ctx context.Context, userID uuid.UUID, customerID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE profiles SET stripe_customer_id = NULL, updated_at = now()
		WHERE user_id = $1 AND stripe_customer_id = $2`,
		userID, customerID)
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}

func (s *PGStore) SaveCustomerLink(ctx context.Context, customerID string, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO customer_links (customer_id, user_id, linked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (customer_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			linked_at = EXCLUDED.linked_at`,
		customerID, userID, time.Now().UTC())
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.UserID, &p.Email, &p.FullName, &p.Preferences,
		&p.StripeCustomerID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return &p, nil
}
