package domain

import (
	"strings"
	"time"
)

// RedeemCode is a single- or multi-use token exchangeable for paid credits.
// Codes are keyed by their normalized form and are deactivated rather than
// deleted.
type RedeemCode struct {
	Code      string    `json:"code"`
	Credits   int       `json:"credits"`
	MaxUses   int       `json:"max_uses"`
	UsedCount int       `json:"used_count"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Exhausted reports whether the code's global use cap has been reached.
func (c RedeemCode) Exhausted() bool {
	return c.UsedCount >= c.MaxUses
}

// Redeemable reports whether the code can still be applied by some user.
func (c RedeemCode) Redeemable() bool {
	return c.Active && !c.Exhausted()
}

// NormalizeCode maps raw user input to the canonical code form.
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
