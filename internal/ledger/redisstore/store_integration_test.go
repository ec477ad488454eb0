//go:build integration

package redisstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Jujubee-LLM/signature-ai/internal/domain"
)

// Run against a live server:
//
//	REDIS_ADDR=localhost:6379 go test -tags integration ./internal/ledger/redisstore/
func newTestStore(t *testing.T) *Store {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	prefix := fmt.Sprintf("test:%s:", t.Name())
	t.Cleanup(func() {
		ctx := context.Background()
		iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	})

	return New(client, WithKeyPrefix(prefix))
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

func TestRedeemLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateCode(ctx, domain.RedeemCode{Code: "WELCOME5", Credits: 5, MaxUses: 2, Active: true}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateCode(ctx, domain.RedeemCode{Code: "WELCOME5", Credits: 1, MaxUses: 1, Active: true}); !errors.Is(err, domain.ErrCodeExists) {
		t.Fatalf("duplicate error = %v, want ErrCodeExists", err)
	}

	a, err := s.Redeem(ctx, testUser, "WELCOME5")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if a.PaidCredits != 5 {
		t.Fatalf("paid_credits = %d, want 5", a.PaidCredits)
	}

	if _, err := s.Redeem(ctx, testUser, "WELCOME5"); !errors.Is(err, domain.ErrCodeAlreadyRedeemed) {
		t.Fatalf("replay error = %v, want ErrCodeAlreadyRedeemed", err)
	}

	const userB = "user-0000000000000002"
	const userC = "user-0000000000000003"
	if _, err := s.Redeem(ctx, userB, "WELCOME5"); err != nil {
		t.Fatalf("second redeem: %v", err)
	}
	if _, err := s.Redeem(ctx, userC, "WELCOME5"); !errors.Is(err, domain.ErrCodeExhausted) {
		t.Fatalf("exhausted error = %v, want ErrCodeExhausted", err)
	}

	if _, err := s.SetCodeActive(ctx, "WELCOME5", false); err != nil {
		t.Fatalf("set active: %v", err)
	}
	const userD = "user-0000000000000004"
	if _, err := s.Redeem(ctx, userD, "WELCOME5"); !errors.Is(err, domain.ErrCodeInvalid) {
		t.Fatalf("inactive error = %v, want ErrCodeInvalid", err)
	}
}

func TestScanCodes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		code := fmt.Sprintf("CODE%02d", i)
		if _, err := s.CreateCode(ctx, domain.RedeemCode{Code: code, Credits: 1, MaxUses: 1, Active: true}); err != nil {
			t.Fatalf("create %s: %v", code, err)
		}
	}

	seen := make(map[string]bool)
	cursor := "0"
	for {
		items, next, err := s.ScanCodes(ctx, cursor, 2)
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		for _, c := range items {
			seen[c.Code] = true
		}
		if next == "0" {
			break
		}
		cursor = next
	}
	if len(seen) != 5 {
		t.Fatalf("scanned %d codes, want 5", len(seen))
	}
}

func TestGetCodeNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetCode(context.Background(), "MISSING"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}
