package seed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Jujubee-LLM/signature-ai/internal/domain"
	"github.com/Jujubee-LLM/signature-ai/internal/ledger/memstore"
)

func TestRunImportsTiers(t *testing.T) {
	store := memstore.New()
	l := NewLoader(store, zerolog.Nop())

	l.Run(context.Background(), []Tier{
		{Credits: 5, Codes: []string{"spring5a", " SPRING5B "}},
		{Credits: 10, Codes: []string{"GOLD10"}},
	})

	for code, credits := range map[string]int{"SPRING5A": 5, "SPRING5B": 5, "GOLD10": 10} {
		rec, err := store.GetCode(context.Background(), code)
		if err != nil {
			t.Fatalf("get %s: %v", code, err)
		}
		if rec.Credits != credits || rec.MaxUses != 1 || !rec.Active {
			t.Fatalf("%s = %+v, want credits=%d max_uses=1 active", code, rec, credits)
		}
	}
}

func TestRunIsIdempotent(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	tiers := []Tier{{Credits: 5, Codes: []string{"KEEP5"}}}
	NewLoader(store, zerolog.Nop()).Run(ctx, tiers)

	// Redeem once, then seed again from a fresh loader; the existing record
	// and its used count must survive.
	const user = "user-0000000000000001"
	if _, err := store.Redeem(ctx, user, "KEEP5"); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	NewLoader(store, zerolog.Nop()).Run(ctx, tiers)

	rec, err := store.GetCode(ctx, "KEEP5")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.UsedCount != 1 {
		t.Fatalf("used_count = %d, want 1 (re-seed reset the code)", rec.UsedCount)
	}
}

func TestRunOnlyOncePerLoader(t *testing.T) {
	store := memstore.New()
	l := NewLoader(store, zerolog.Nop())
	ctx := context.Background()

	l.Run(ctx, []Tier{{Credits: 5, Codes: []string{"FIRST"}}})
	l.Run(ctx, []Tier{{Credits: 5, Codes: []string{"SECOND"}}})

	if _, err := store.GetCode(ctx, "FIRST"); err != nil {
		t.Fatalf("first run not applied: %v", err)
	}
	if _, err := store.GetCode(ctx, "SECOND"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second run applied, err = %v", err)
	}
}

func TestRunSkipsInvalidEntries(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	NewLoader(store, zerolog.Nop()).Run(ctx, []Tier{
		{Credits: 0, Codes: []string{"ZERO"}},
		{Credits: 5, Codes: []string{"   ", "OK5"}},
	})

	if _, err := store.GetCode(ctx, "ZERO"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("zero-credit tier seeded, err = %v", err)
	}
	if _, err := store.GetCode(ctx, "OK5"); err != nil {
		t.Fatalf("valid code skipped: %v", err)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codes.yaml")
	doc := `tiers:
  - credits: 5
    codes: [SPRING5A, SPRING5B]
  - credits: 50
    codes:
      - BIG50
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	tiers, err := ParseFile(path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(tiers) != 2 {
		t.Fatalf("tiers = %d, want 2", len(tiers))
	}
	if tiers[0].Credits != 5 || len(tiers[0].Codes) != 2 {
		t.Fatalf("tier[0] = %+v", tiers[0])
	}
	if tiers[1].Credits != 50 || tiers[1].Codes[0] != "BIG50" {
		t.Fatalf("tier[1] = %+v", tiers[1])
	}

	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file parsed without error")
	}
}
