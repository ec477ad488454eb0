package domain

import "context"

// ConsumeOutcome reports the result of one atomic consume attempt. When
// Allowed is false the account is returned unchanged.
type ConsumeOutcome struct {
	Allowed bool
	Bucket  Bucket
	Account UserAccount
}

// Ledger is the persistence contract for accounts, redeem codes and per-user
// redemption sets. Every mutating method executes as one indivisible unit
// against the backing store; two concurrent calls for the same key can never
// both observe the same pre-mutation state.
//
// Scan methods use store-native cursor semantics: cursor "0" starts a scan
// and a returned cursor of "0" signals completion. Pages are not guaranteed
// to be ordered; callers sort.
type Ledger interface {
	// GetAccount reads the counters for a user. A missing account is not an
	// error; it returns a zero-valued account with UserID set.
	GetAccount(ctx context.Context, userID string) (UserAccount, error)

	// Consume debits one generation from the free allowance first, then from
	// paid credits. With nothing left it reports Allowed=false and leaves the
	// account untouched.
	Consume(ctx context.Context, userID string, freeLimit int) (ConsumeOutcome, error)

	// Refund reverses exactly one unit from the given bucket. The free
	// counter is clamped at zero.
	Refund(ctx context.Context, userID string, bucket Bucket) (UserAccount, error)

	// GrantCredits adds credits to a user's paid balance.
	GrantCredits(ctx context.Context, userID string, credits int) (UserAccount, error)

	// Redeem applies a normalized code to a user's balance. It returns
	// ErrCodeInvalid for missing or inactive codes, ErrCodeAlreadyRedeemed
	// when the user already used the code and ErrCodeExhausted when the
	// global cap is reached.
	Redeem(ctx context.Context, userID, code string) (UserAccount, error)

	// CreateCode stores a new code. Returns ErrCodeExists when the key is
	// already taken; existing codes are never overwritten.
	CreateCode(ctx context.Context, code RedeemCode) (RedeemCode, error)

	// GetCode reads a code record. Returns ErrNotFound when absent.
	GetCode(ctx context.Context, code string) (RedeemCode, error)

	// SetCodeActive flips the code's gate. Returns ErrNotFound when absent.
	SetCodeActive(ctx context.Context, code string, active bool) (RedeemCode, error)

	// ScanCodes pages over all code records.
	ScanCodes(ctx context.Context, cursor string, count int) ([]RedeemCode, string, error)

	// ScanAccounts pages over all user accounts.
	ScanAccounts(ctx context.Context, cursor string, count int) ([]UserAccount, string, error)
}
