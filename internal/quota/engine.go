// Package quota computes remaining-quota snapshots and performs atomic
// consume/refund against the ledger. The engine is stateless; all counters
// live in the store.
package quota

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Jujubee-LLM/signature-ai/internal/domain"
)

// ConsumeResult reports one generation attempt. Exhausted quota is an
// expected outcome, so callers check Allowed rather than an error.
type ConsumeResult struct {
	Allowed      bool                 `json:"allowed"`
	ConsumedFrom domain.Bucket        `json:"consumed_from,omitempty"`
	Quota        domain.QuotaSnapshot `json:"quota"`
}

// Engine is the quota accounting engine.
type Engine struct {
	ledger    domain.Ledger
	freeLimit int
	log       zerolog.Logger
}

// New creates a quota engine. A non-positive freeLimit falls back to
// domain.FreeQuotaLimit.
func New(ledger domain.Ledger, freeLimit int, log zerolog.Logger) *Engine {
	if freeLimit <= 0 {
		freeLimit = domain.FreeQuotaLimit
	}
	return &Engine{ledger: ledger, freeLimit: freeLimit, log: log}
}

// FreeLimit returns the configured free allowance.
func (e *Engine) FreeLimit() int {
	return e.freeLimit
}

// Snapshot returns the derived remaining balance for a user. A missing user
// reads as a fresh zero-balance account; the call never mutates state.
func (e *Engine) Snapshot(ctx context.Context, userID string) (domain.QuotaSnapshot, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return domain.QuotaSnapshot{}, err
	}
	a, err := e.ledger.GetAccount(ctx, userID)
	if err != nil {
		return domain.QuotaSnapshot{}, fmt.Errorf("quota snapshot: %w", err)
	}
	return a.Snapshot(e.freeLimit), nil
}

// Consume atomically debits one generation, free allowance before paid
// credits. A store failure propagates; it is never treated as an allow.
func (e *Engine) Consume(ctx context.Context, userID string) (ConsumeResult, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return ConsumeResult{}, err
	}
	out, err := e.ledger.Consume(ctx, userID, e.freeLimit)
	if err != nil {
		return ConsumeResult{}, fmt.Errorf("quota consume: %w", err)
	}

	res := ConsumeResult{
		Allowed: out.Allowed,
		Quota:   out.Account.Snapshot(e.freeLimit),
	}
	if out.Allowed {
		res.ConsumedFrom = out.Bucket
	}
	e.log.Debug().
		Str("user_id", userID).
		Bool("allowed", res.Allowed).
		Str("bucket", string(res.ConsumedFrom)).
		Msg("quota consume")
	return res, nil
}

// Refund reverses exactly one unit from the bucket a prior consume debited.
// Consume and refund are not one transaction: a crash between the downstream
// failure and the refund leaves the user one unit short.
func (e *Engine) Refund(ctx context.Context, userID string, bucket domain.Bucket) (domain.QuotaSnapshot, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return domain.QuotaSnapshot{}, err
	}
	if !bucket.Valid() {
		return domain.QuotaSnapshot{}, domain.ErrInvalidInput
	}
	a, err := e.ledger.Refund(ctx, userID, bucket)
	if err != nil {
		return domain.QuotaSnapshot{}, fmt.Errorf("quota refund: %w", err)
	}
	e.log.Debug().Str("user_id", userID).Str("bucket", string(bucket)).Msg("quota refund")
	return a.Snapshot(e.freeLimit), nil
}

// Grant adds paid credits to a user (admin path).
func (e *Engine) Grant(ctx context.Context, userID string, credits int) (domain.QuotaSnapshot, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return domain.QuotaSnapshot{}, err
	}
	if credits < 1 {
		return domain.QuotaSnapshot{}, domain.ErrInvalidInput
	}
	a, err := e.ledger.GrantCredits(ctx, userID, credits)
	if err != nil {
		return domain.QuotaSnapshot{}, fmt.Errorf("quota grant: %w", err)
	}
	e.log.Info().Str("user_id", userID).Int("credits", credits).Msg("credits granted")
	return a.Snapshot(e.freeLimit), nil
}
