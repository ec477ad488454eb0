// Package codes administers redeem codes: creation, batch generation,
// listing, activation toggles and aggregate statistics.
package codes

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/Jujubee-LLM/signature-ai/internal/domain"
)

const (
	// DefaultCodeLength is used when no length is configured.
	DefaultCodeLength = 12

	maxListLimit = 200

	// statsPageSize bounds each scan page while stats walks the keyspace.
	statsPageSize = 200
)

// CreateParams describes one code to create. An empty Code means generate
// one. Credits and MaxUses are clamped to a minimum of 1.
type CreateParams struct {
	Code    string
	Credits int
	MaxUses int
	Active  bool
}

// ListPage is one page of codes, most recently created first.
type ListPage struct {
	Items      []domain.RedeemCode `json:"items"`
	NextCursor string              `json:"next_cursor"`
}

// Stats aggregates counts across the whole keyspace. Computing it scans
// every code and account, so it stays off the hot path.
type Stats struct {
	CodeCount          int `json:"code_count"`
	ActiveCodeCount    int `json:"active_code_count"`
	ExhaustedCodeCount int `json:"exhausted_code_count"`
	UserCount          int `json:"user_count"`
	TotalPaidCredits   int `json:"total_paid_credits"`
}

// Admin is the code administration engine.
type Admin struct {
	ledger  domain.Ledger
	codeLen int
	log     zerolog.Logger
}

// New creates a code admin engine.
func New(ledger domain.Ledger, codeLen int, log zerolog.Logger) *Admin {
	if codeLen <= 0 {
		codeLen = DefaultCodeLength
	}
	return &Admin{ledger: ledger, codeLen: codeLen, log: log}
}

// Create stores a new redeem code. Supplied codes are normalized first;
// duplicates fail with ErrCodeExists and are never overwritten.
func (a *Admin) Create(ctx context.Context, p CreateParams) (domain.RedeemCode, error) {
	code := domain.NormalizeCode(p.Code)
	if code == "" {
		generated, err := GenerateCode(a.codeLen)
		if err != nil {
			return domain.RedeemCode{}, fmt.Errorf("codes create: %w", err)
		}
		code = generated
	}
	if p.Credits < 1 {
		p.Credits = 1
	}
	if p.MaxUses < 1 {
		p.MaxUses = 1
	}

	rec, err := a.ledger.CreateCode(ctx, domain.RedeemCode{
		Code:    code,
		Credits: p.Credits,
		MaxUses: p.MaxUses,
		Active:  p.Active,
	})
	if err != nil {
		if errors.Is(err, domain.ErrCodeExists) {
			return domain.RedeemCode{}, err
		}
		return domain.RedeemCode{}, fmt.Errorf("codes create: %w", err)
	}
	a.log.Info().Str("code", rec.Code).Int("credits", rec.Credits).Int("max_uses", rec.MaxUses).Msg("code created")
	return rec, nil
}

// CreateBatch generates count fresh codes. Collisions with existing codes are
// expected given random generation and are retried silently; any other
// failure propagates immediately.
func (a *Admin) CreateBatch(ctx context.Context, count, credits, maxUses int, prefix string) ([]domain.RedeemCode, error) {
	if count < 1 {
		return nil, domain.ErrInvalidInput
	}
	prefix = domain.NormalizeCode(prefix)

	out := make([]domain.RedeemCode, 0, count)
	for len(out) < count {
		random, err := GenerateCode(a.codeLen)
		if err != nil {
			return nil, fmt.Errorf("codes batch: %w", err)
		}
		rec, err := a.Create(ctx, CreateParams{
			Code:    prefix + random,
			Credits: credits,
			MaxUses: maxUses,
			Active:  true,
		})
		if errors.Is(err, domain.ErrCodeExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Get reads one code record.
func (a *Admin) Get(ctx context.Context, code string) (domain.RedeemCode, error) {
	code = domain.NormalizeCode(code)
	if code == "" {
		return domain.RedeemCode{}, domain.ErrInvalidInput
	}
	return a.ledger.GetCode(ctx, code)
}

// SetActive flips a code's gate.
func (a *Admin) SetActive(ctx context.Context, code string, active bool) (domain.RedeemCode, error) {
	code = domain.NormalizeCode(code)
	if code == "" {
		return domain.RedeemCode{}, domain.ErrInvalidInput
	}
	rec, err := a.ledger.SetCodeActive(ctx, code, active)
	if err != nil {
		return domain.RedeemCode{}, err
	}
	a.log.Info().Str("code", code).Bool("active", active).Msg("code gate updated")
	return rec, nil
}

// List returns one page of codes. Cursor "0" (or "") starts a scan; a
// returned cursor of "0" means the scan is complete. The page is sorted by
// creation time, newest first.
func (a *Admin) List(ctx context.Context, cursor string, limit int) (ListPage, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	items, next, err := a.ledger.ScanCodes(ctx, cursor, limit)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return ListPage{}, err
		}
		return ListPage{}, fmt.Errorf("codes list: %w", err)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if items == nil {
		items = []domain.RedeemCode{}
	}
	return ListPage{Items: items, NextCursor: next}, nil
}

// ComputeStats walks the full keyspace page by page and accumulates the
// aggregate counters.
func (a *Admin) ComputeStats(ctx context.Context) (Stats, error) {
	var stats Stats

	cursor := "0"
	for {
		items, next, err := a.ledger.ScanCodes(ctx, cursor, statsPageSize)
		if err != nil {
			return Stats{}, fmt.Errorf("codes stats: %w", err)
		}
		for _, c := range items {
			stats.CodeCount++
			if c.Active {
				stats.ActiveCodeCount++
			}
			if c.Exhausted() {
				stats.ExhaustedCodeCount++
			}
		}
		if next == "0" {
			break
		}
		cursor = next
	}

	cursor = "0"
	for {
		items, next, err := a.ledger.ScanAccounts(ctx, cursor, statsPageSize)
		if err != nil {
			return Stats{}, fmt.Errorf("codes stats: %w", err)
		}
		for _, acct := range items {
			stats.UserCount++
			stats.TotalPaidCredits += acct.PaidCredits
		}
		if next == "0" {
			break
		}
		cursor = next
	}

	return stats, nil
}
