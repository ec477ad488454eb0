// Package pgstore implements the Ledger on PostgreSQL. Every mutation is one
// transaction that locks the rows it checks, so concurrent calls for the same
// user or code serialize on the row lock instead of racing a read-modify-write.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Jujubee-LLM/signature-ai/internal/domain"
)

// Store is a PostgreSQL-backed Ledger.
type Store struct {
	pool *pgxpool.Pool
}

var _ domain.Ledger = (*Store)(nil)

// New creates a PostgreSQL-backed Ledger.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const accountColumns = "user_id, free_used, paid_credits, created_at, updated_at"
const codeColumns = "code, credits, max_uses, used_count, active, created_at, updated_at"

func (s *Store) GetAccount(ctx context.Context, userID string) (domain.UserAccount, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE user_id = $1", userID)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserAccount{UserID: userID}, nil
	}
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("pgstore: get account: %w", err)
	}
	return a, nil
}

// lockAccount upserts the account row and locks it for the transaction.
func lockAccount(ctx context.Context, tx pgx.Tx, userID string) (domain.UserAccount, error) {
	if _, err := tx.Exec(ctx,
		"INSERT INTO accounts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING", userID); err != nil {
		return domain.UserAccount{}, err
	}
	row := tx.QueryRow(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE user_id = $1 FOR UPDATE", userID)
	return scanAccount(row)
}

func (s *Store) Consume(ctx context.Context, userID string, freeLimit int) (domain.ConsumeOutcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.ConsumeOutcome{}, fmt.Errorf("pgstore: consume: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	a, err := lockAccount(ctx, tx, userID)
	if err != nil {
		return domain.ConsumeOutcome{}, fmt.Errorf("pgstore: consume: lock account: %w", err)
	}

	freeRemaining := freeLimit - a.FreeUsed
	if freeRemaining < 0 {
		freeRemaining = 0
	}
	if freeRemaining+a.PaidCredits <= 0 {
		if err := tx.Commit(ctx); err != nil {
			return domain.ConsumeOutcome{}, fmt.Errorf("pgstore: consume: commit: %w", err)
		}
		return domain.ConsumeOutcome{Allowed: false, Account: a}, nil
	}

	bucket := domain.BucketPaid
	if freeRemaining > 0 {
		a.FreeUsed++
		bucket = domain.BucketFree
	} else {
		a.PaidCredits--
	}

	row := tx.QueryRow(ctx, `
UPDATE accounts SET free_used = $2, paid_credits = $3, updated_at = now()
WHERE user_id = $1
RETURNING `+accountColumns, userID, a.FreeUsed, a.PaidCredits)
	a, err = scanAccount(row)
	if err != nil {
		return domain.ConsumeOutcome{}, fmt.Errorf("pgstore: consume: update: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.ConsumeOutcome{}, fmt.Errorf("pgstore: consume: commit: %w", err)
	}
	return domain.ConsumeOutcome{Allowed: true, Bucket: bucket, Account: a}, nil
}

func (s *Store) Refund(ctx context.Context, userID string, bucket domain.Bucket) (domain.UserAccount, error) {
	if !bucket.Valid() {
		return domain.UserAccount{}, domain.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("pgstore: refund: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	a, err := lockAccount(ctx, tx, userID)
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("pgstore: refund: lock account: %w", err)
	}

	if bucket == domain.BucketFree {
		if a.FreeUsed > 0 {
			a.FreeUsed--
		}
	} else {
		a.PaidCredits++
	}

	row := tx.QueryRow(ctx, `
UPDATE accounts SET free_used = $2, paid_credits = $3, updated_at = now()
WHERE user_id = $1
RETURNING `+accountColumns, userID, a.FreeUsed, a.PaidCredits)
	a, err = scanAccount(row)
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("pgstore: refund: update: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.UserAccount{}, fmt.Errorf("pgstore: refund: commit: %w", err)
	}
	return a, nil
}

func (s *Store) GrantCredits(ctx context.Context, userID string, credits int) (domain.UserAccount, error) {
	row := s.pool.QueryRow(ctx, `
INSERT INTO accounts (user_id, paid_credits) VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE
SET paid_credits = accounts.paid_credits + EXCLUDED.paid_credits,
    updated_at = now()
RETURNING `+accountColumns, userID, credits)
	a, err := scanAccount(row)
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("pgstore: grant credits: %w", err)
	}
	return a, nil
}

func (s *Store) Redeem(ctx context.Context, userID, code string) (domain.UserAccount, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("pgstore: redeem: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// All redeem paths lock the code row first, so concurrent redemptions of
	// the same code serialize here.
	row := tx.QueryRow(ctx,
		"SELECT "+codeColumns+" FROM redeem_codes WHERE code = $1 FOR UPDATE", code)
	c, err := scanCode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserAccount{}, domain.ErrCodeInvalid
	}
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("pgstore: redeem: lock code: %w", err)
	}
	if !c.Active {
		return domain.UserAccount{}, domain.ErrCodeInvalid
	}

	var already bool
	if err := tx.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM redemptions WHERE user_id = $1 AND code = $2)",
		userID, code).Scan(&already); err != nil {
		return domain.UserAccount{}, fmt.Errorf("pgstore: redeem: check redemption: %w", err)
	}
	if already {
		return domain.UserAccount{}, domain.ErrCodeAlreadyRedeemed
	}
	if c.UsedCount >= c.MaxUses {
		return domain.UserAccount{}, domain.ErrCodeExhausted
	}

	if _, err := tx.Exec(ctx,
		"UPDATE redeem_codes SET used_count = used_count + 1, updated_at = now() WHERE code = $1",
		code); err != nil {
		return domain.UserAccount{}, fmt.Errorf("pgstore: redeem: update code: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO redemptions (user_id, code) VALUES ($1, $2)", userID, code); err != nil {
		return domain.UserAccount{}, fmt.Errorf("pgstore: redeem: record redemption: %w", err)
	}

	row = tx.QueryRow(ctx, `
INSERT INTO accounts (user_id, paid_credits) VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE
SET paid_credits = accounts.paid_credits + EXCLUDED.paid_credits,
    updated_at = now()
RETURNING `+accountColumns, userID, c.Credits)
	a, err := scanAccount(row)
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("pgstore: redeem: credit account: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.UserAccount{}, fmt.Errorf("pgstore: redeem: commit: %w", err)
	}
	return a, nil
}

func (s *Store) CreateCode(ctx context.Context, code domain.RedeemCode) (domain.RedeemCode, error) {
	row := s.pool.QueryRow(ctx, `
INSERT INTO redeem_codes (code, credits, max_uses, active)
VALUES ($1, $2, $3, $4)
ON CONFLICT (code) DO NOTHING
RETURNING `+codeColumns, code.Code, code.Credits, code.MaxUses, code.Active)
	c, err := scanCode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RedeemCode{}, domain.ErrCodeExists
	}
	if err != nil {
		return domain.RedeemCode{}, fmt.Errorf("pgstore: create code: %w", err)
	}
	return c, nil
}

func (s *Store) GetCode(ctx context.Context, code string) (domain.RedeemCode, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+codeColumns+" FROM redeem_codes WHERE code = $1", code)
	c, err := scanCode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RedeemCode{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RedeemCode{}, fmt.Errorf("pgstore: get code: %w", err)
	}
	return c, nil
}

func (s *Store) SetCodeActive(ctx context.Context, code string, active bool) (domain.RedeemCode, error) {
	row := s.pool.QueryRow(ctx, `
UPDATE redeem_codes SET active = $2, updated_at = now()
WHERE code = $1
RETURNING `+codeColumns, code, active)
	c, err := scanCode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RedeemCode{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RedeemCode{}, fmt.Errorf("pgstore: set code active: %w", err)
	}
	return c, nil
}

func (s *Store) ScanCodes(ctx context.Context, cursor string, count int) ([]domain.RedeemCode, string, error) {
	offset, count, err := parseCursor(cursor, count)
	if err != nil {
		return nil, "", err
	}

	rows, err := s.pool.Query(ctx, `
SELECT `+codeColumns+` FROM redeem_codes
ORDER BY created_at DESC, code
LIMIT $1 OFFSET $2`, count, offset)
	if err != nil {
		return nil, "", fmt.Errorf("pgstore: scan codes: %w", err)
	}
	defer rows.Close()

	var items []domain.RedeemCode
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, "", fmt.Errorf("pgstore: scan codes: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("pgstore: scan codes: %w", err)
	}
	return items, nextCursor(offset, count, len(items)), nil
}

func (s *Store) ScanAccounts(ctx context.Context, cursor string, count int) ([]domain.UserAccount, string, error) {
	offset, count, err := parseCursor(cursor, count)
	if err != nil {
		return nil, "", err
	}

	rows, err := s.pool.Query(ctx, `
SELECT `+accountColumns+` FROM accounts
ORDER BY user_id
LIMIT $1 OFFSET $2`, count, offset)
	if err != nil {
		return nil, "", fmt.Errorf("pgstore: scan accounts: %w", err)
	}
	defer rows.Close()

	var items []domain.UserAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, "", fmt.Errorf("pgstore: scan accounts: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("pgstore: scan accounts: %w", err)
	}
	return items, nextCursor(offset, count, len(items)), nil
}

func parseCursor(cursor string, count int) (offset, limit int, err error) {
	if cursor == "" {
		cursor = "0"
	}
	offset, err = strconv.Atoi(cursor)
	if err != nil || offset < 0 {
		return 0, 0, domain.ErrInvalidInput
	}
	if count < 1 {
		count = 1
	}
	return offset, count, nil
}

func nextCursor(offset, count, got int) string {
	if got < count {
		return "0"
	}
	return strconv.Itoa(offset + count)
}

func scanAccount(row pgx.Row) (domain.UserAccount, error) {
	var a domain.UserAccount
	err := row.Scan(&a.UserID, &a.FreeUsed, &a.PaidCredits, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func scanCode(row pgx.Row) (domain.RedeemCode, error) {
	var c domain.RedeemCode
	err := row.Scan(&c.Code, &c.Credits, &c.MaxUses, &c.UsedCount, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
