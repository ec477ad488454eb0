package domain

import "time"

// FreeQuotaLimit is the number of generations every user gets for free.
const FreeQuotaLimit = 8

const (
	minUserIDLen = 16
	maxUserIDLen = 128
)

// Bucket identifies which balance a consume call drew from. A refund must
// target the same bucket the matching consume debited.
type Bucket string

const (
	BucketFree Bucket = "free"
	BucketPaid Bucket = "paid"
)

// Valid reports whether b is a known consumption bucket.
func (b Bucket) Valid() bool {
	return b == BucketFree || b == BucketPaid
}

// UserAccount holds the persisted counters for one anonymous user. Accounts
// are created lazily on first write; a missing account reads as all zeros.
type UserAccount struct {
	UserID      string    `json:"user_id"`
	FreeUsed    int       `json:"free_used"`
	PaidCredits int       `json:"paid_credits"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// QuotaSnapshot is a derived view of a user's remaining balance. It is never
// persisted and is always recomputed from the stored counters.
type QuotaSnapshot struct {
	FreeRemaining  int  `json:"free_remaining"`
	PaidRemaining  int  `json:"paid_remaining"`
	TotalRemaining int  `json:"total_remaining"`
	Unavailable    bool `json:"unavailable,omitempty"`
}

// Snapshot derives the remaining-quota view for the given free allowance.
func (a UserAccount) Snapshot(freeLimit int) QuotaSnapshot {
	free := freeLimit - a.FreeUsed
	if free < 0 {
		free = 0
	}
	paid := a.PaidCredits
	if paid < 0 {
		paid = 0
	}
	return QuotaSnapshot{
		FreeRemaining:  free,
		PaidRemaining:  paid,
		TotalRemaining: free + paid,
	}
}

// ValidateUserID checks the opaque anonymous identifier supplied by callers.
func ValidateUserID(id string) error {
	if len(id) < minUserIDLen || len(id) > maxUserIDLen {
		return ErrInvalidInput
	}
	return nil
}
