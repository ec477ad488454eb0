//go:build integration

package pgstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Jujubee-LLM/signature-ai/internal/domain"
)

// Run against a live server:
//
//	TEST_DATABASE_URL=postgres://localhost:5432/signature_test go test -tags integration ./internal/ledger/pgstore/
func newTestStore(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	if err := Migrate(url); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.New(context.Background(), url)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		pool.Exec(ctx, "TRUNCATE accounts, redeem_codes, redemptions")
		pool.Close()
	})

	return New(pool)
}

const testUser = "user-0000000000000001"

func TestConsumeRefundRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	out, err := s.Consume(ctx, testUser, 2)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !out.Allowed || out.Bucket != domain.BucketFree {
		t.Fatalf("outcome = %+v, want free consume", out)
	}

	a, err := s.Refund(ctx, testUser, domain.BucketFree)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if a.FreeUsed != 0 {
		t.Fatalf("free_used = %d, want 0", a.FreeUsed)
	}
}

func TestConcurrentConsume(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const freeLimit = 8
	const paid = 4
	const attempts = 30

	if _, err := s.GrantCredits(ctx, testUser, paid); err != nil {
		t.Fatalf("grant: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := s.Consume(ctx, testUser, freeLimit)
			if err != nil {
				t.Errorf("consume: %v", err)
				return
			}
			results <- out.Allowed
		}()
	}
	wg.Wait()
	close(results)

	var allowed int
	for ok := range results {
		if ok {
			allowed++
		}
	}
	if allowed != freeLimit+paid {
		t.Fatalf("allowed = %d, want %d", allowed, freeLimit+paid)
	}
}

func TestRedeemGlobalCap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateCode(ctx, domain.RedeemCode{Code: "CAPPED", Credits: 5, MaxUses: 3, Active: true}); err != nil {
		t.Fatalf("create: %v", err)
	}

	const users = 10
	var wg sync.WaitGroup
	results := make(chan error, users)
	for i := 0; i < users; i++ {
		userID := fmt.Sprintf("user-%016d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Redeem(ctx, userID, "CAPPED")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, exhausted int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrCodeExhausted):
			exhausted++
		default:
			t.Fatalf("unexpected redeem error: %v", err)
		}
	}
	if ok != 3 || exhausted != users-3 {
		t.Fatalf("ok=%d exhausted=%d, want 3 and %d", ok, exhausted, users-3)
	}

	c, err := s.GetCode(ctx, "CAPPED")
	if err != nil {
		t.Fatalf("get code: %v", err)
	}
	if c.UsedCount != 3 {
		t.Fatalf("used_count = %d, want 3", c.UsedCount)
	}
}

func TestCreateCodeDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateCode(ctx, domain.RedeemCode{Code: "DUP", Credits: 1, MaxUses: 1, Active: true}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateCode(ctx, domain.RedeemCode{Code: "DUP", Credits: 2, MaxUses: 2, Active: true}); !errors.Is(err, domain.ErrCodeExists) {
		t.Fatalf("duplicate error = %v, want ErrCodeExists", err)
	}
}

func TestScanAccountsPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		userID := fmt.Sprintf("scan-user-%012d", i)
		if _, err := s.GrantCredits(ctx, userID, 1); err != nil {
			t.Fatalf("grant: %v", err)
		}
	}

	var total int
	cursor := "0"
	for {
		items, next, err := s.ScanAccounts(ctx, cursor, 2)
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		total += len(items)
		if next == "0" {
			break
		}
		cursor = next
	}
	if total != 5 {
		t.Fatalf("scanned %d accounts, want 5", total)
	}
}
