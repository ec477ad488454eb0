// Package memstore implements the Ledger on in-process maps. It backs unit
// tests and dependency-free local runs; a single mutex stands in for the
// per-key atomicity the networked backends get from scripts and row locks.
package memstore

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Jujubee-LLM/signature-ai/internal/domain"
)

// Store is an in-memory Ledger.
type Store struct {
	mu       sync.Mutex
	accounts map[string]*domain.UserAccount
	codes    map[string]*domain.RedeemCode
	redeemed map[string]map[string]bool
	now      func() time.Time
}

var _ domain.Ledger = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithClock overrides the time source. Tests use this to make created_at
// ordering deterministic.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty in-memory Ledger.
func New(opts ...Option) *Store {
	s := &Store{
		accounts: make(map[string]*domain.UserAccount),
		codes:    make(map[string]*domain.RedeemCode),
		redeemed: make(map[string]map[string]bool),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// account returns the tracked account for userID, creating it on first write.
func (s *Store) account(userID string) *domain.UserAccount {
	a, ok := s.accounts[userID]
	if !ok {
		now := s.now().UTC()
		a = &domain.UserAccount{UserID: userID, CreatedAt: now, UpdatedAt: now}
		s.accounts[userID] = a
	}
	return a
}

func (s *Store) GetAccount(_ context.Context, userID string) (domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.accounts[userID]; ok {
		return *a, nil
	}
	return domain.UserAccount{UserID: userID}, nil
}

func (s *Store) Consume(_ context.Context, userID string, freeLimit int) (domain.ConsumeOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := domain.UserAccount{UserID: userID}
	if a, ok := s.accounts[userID]; ok {
		current = *a
	}

	freeRemaining := freeLimit - current.FreeUsed
	if freeRemaining < 0 {
		freeRemaining = 0
	}
	if freeRemaining+current.PaidCredits <= 0 {
		return domain.ConsumeOutcome{Allowed: false, Account: current}, nil
	}

	a := s.account(userID)
	bucket := domain.BucketPaid
	if freeRemaining > 0 {
		a.FreeUsed++
		bucket = domain.BucketFree
	} else {
		a.PaidCredits--
	}
	a.UpdatedAt = s.now().UTC()

	return domain.ConsumeOutcome{Allowed: true, Bucket: bucket, Account: *a}, nil
}

func (s *Store) Refund(_ context.Context, userID string, bucket domain.Bucket) (domain.UserAccount, error) {
	if !bucket.Valid() {
		return domain.UserAccount{}, domain.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.account(userID)
	if bucket == domain.BucketFree {
		if a.FreeUsed > 0 {
			a.FreeUsed--
		}
	} else {
		a.PaidCredits++
	}
	a.UpdatedAt = s.now().UTC()
	return *a, nil
}

func (s *Store) GrantCredits(_ context.Context, userID string, credits int) (domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.account(userID)
	a.PaidCredits += credits
	a.UpdatedAt = s.now().UTC()
	return *a, nil
}

func (s *Store) Redeem(_ context.Context, userID, code string) (domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.codes[code]
	if !ok || !c.Active {
		return domain.UserAccount{}, domain.ErrCodeInvalid
	}
	if s.redeemed[userID][code] {
		return domain.UserAccount{}, domain.ErrCodeAlreadyRedeemed
	}
	if c.UsedCount >= c.MaxUses {
		return domain.UserAccount{}, domain.ErrCodeExhausted
	}

	now := s.now().UTC()
	c.UsedCount++
	c.UpdatedAt = now
	if s.redeemed[userID] == nil {
		s.redeemed[userID] = make(map[string]bool)
	}
	s.redeemed[userID][code] = true

	a := s.account(userID)
	a.PaidCredits += c.Credits
	a.UpdatedAt = now
	return *a, nil
}

func (s *Store) CreateCode(_ context.Context, code domain.RedeemCode) (domain.RedeemCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[code.Code]; ok {
		return domain.RedeemCode{}, domain.ErrCodeExists
	}
	now := s.now().UTC()
	code.UsedCount = 0
	code.CreatedAt = now
	code.UpdatedAt = now
	s.codes[code.Code] = &code
	return code, nil
}

func (s *Store) GetCode(_ context.Context, code string) (domain.RedeemCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.codes[code]
	if !ok {
		return domain.RedeemCode{}, domain.ErrNotFound
	}
	return *c, nil
}

func (s *Store) SetCodeActive(_ context.Context, code string, active bool) (domain.RedeemCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.codes[code]
	if !ok {
		return domain.RedeemCode{}, domain.ErrNotFound
	}
	c.Active = active
	c.UpdatedAt = s.now().UTC()
	return *c, nil
}

func (s *Store) ScanCodes(_ context.Context, cursor string, count int) ([]domain.RedeemCode, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.codes))
	for k := range s.codes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	keys, next, err := page(keys, cursor, count)
	if err != nil {
		return nil, "", err
	}
	items := make([]domain.RedeemCode, 0, len(keys))
	for _, k := range keys {
		items = append(items, *s.codes[k])
	}
	return items, next, nil
}

func (s *Store) ScanAccounts(_ context.Context, cursor string, count int) ([]domain.UserAccount, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.accounts))
	for k := range s.accounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	keys, next, err := page(keys, cursor, count)
	if err != nil {
		return nil, "", err
	}
	items := make([]domain.UserAccount, 0, len(keys))
	for _, k := range keys {
		items = append(items, *s.accounts[k])
	}
	return items, next, nil
}

// page slices keys according to the "0"-starts, "0"-ends cursor contract.
func page(keys []string, cursor string, count int) ([]string, string, error) {
	if cursor == "" {
		cursor = "0"
	}
	offset, err := strconv.Atoi(cursor)
	if err != nil || offset < 0 {
		return nil, "", domain.ErrInvalidInput
	}
	if count < 1 {
		count = 1
	}
	if offset >= len(keys) {
		return nil, "0", nil
	}
	end := offset + count
	next := "0"
	if end < len(keys) {
		next = strconv.Itoa(end)
	} else {
		end = len(keys)
	}
	return keys[offset:end], next, nil
}
