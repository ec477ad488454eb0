// Package redeem applies single-use codes to user balances.
package redeem

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Jujubee-LLM/signature-ai/internal/domain"
)

// User-facing failure messages. Missing and inactive codes share one message
// so callers cannot probe which codes exist.
const (
	MsgInvalidCode   = "invalid or expired code"
	MsgAlreadyUsed   = "you have already used this code"
	MsgCodeExhausted = "this code has been fully redeemed"
)

// Result reports one redemption attempt. Expected failures (bad code, replay,
// exhausted cap) come back as OK=false with a message, not as an error.
type Result struct {
	OK      bool                 `json:"ok"`
	Message string               `json:"error,omitempty"`
	Quota   domain.QuotaSnapshot `json:"quota"`
}

// Engine validates and applies redeem codes.
type Engine struct {
	ledger    domain.Ledger
	freeLimit int
	log       zerolog.Logger
}

// New creates a redeem engine.
func New(ledger domain.Ledger, freeLimit int, log zerolog.Logger) *Engine {
	if freeLimit <= 0 {
		freeLimit = domain.FreeQuotaLimit
	}
	return &Engine{ledger: ledger, freeLimit: freeLimit, log: log}
}

// Apply normalizes rawCode and redeems it for the user in one atomic store
// operation. An empty code fails with ErrInvalidInput before any store
// access. Store transport failures propagate as errors.
func (e *Engine) Apply(ctx context.Context, userID, rawCode string) (Result, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return Result{}, err
	}
	code := domain.NormalizeCode(rawCode)
	if code == "" {
		return Result{}, domain.ErrInvalidInput
	}

	a, err := e.ledger.Redeem(ctx, userID, code)
	if err == nil {
		e.log.Info().Str("user_id", userID).Str("code", code).Msg("code redeemed")
		return Result{OK: true, Quota: a.Snapshot(e.freeLimit)}, nil
	}

	msg := failureMessage(err)
	if msg == "" {
		return Result{}, fmt.Errorf("redeem apply: %w", err)
	}

	// Expected rejection: report it together with the unchanged balance.
	current, gerr := e.ledger.GetAccount(ctx, userID)
	if gerr != nil {
		return Result{}, fmt.Errorf("redeem apply: %w", gerr)
	}
	e.log.Debug().Str("user_id", userID).Str("code", code).Str("reason", msg).Msg("redeem rejected")
	return Result{OK: false, Message: msg, Quota: current.Snapshot(e.freeLimit)}, nil
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrCodeInvalid):
		return MsgInvalidCode
	case errors.Is(err, domain.ErrCodeAlreadyRedeemed):
		return MsgAlreadyUsed
	case errors.Is(err, domain.ErrCodeExhausted):
		return MsgCodeExhausted
	}
	return ""
}
