// Package seed imports operator-configured redeem codes into the ledger once
// per process lifetime.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/Jujubee-LLM/signature-ai/internal/domain"
)

// Tier is one list of pre-shared codes worth the same credit amount.
type Tier struct {
	Credits int      `yaml:"credits"`
	Codes   []string `yaml:"codes"`
}

// ParseFile reads tiers from a YAML file of the form:
//
//	tiers:
//	  - credits: 5
//	    codes: [SPRING5A, SPRING5B]
func ParseFile(path string) ([]Tier, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: read %s: %w", path, err)
	}
	var doc struct {
		Tiers []Tier `yaml:"tiers"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("seed: parse %s: %w", path, err)
	}
	return doc.Tiers, nil
}

// Loader performs the one-shot import. Seeding is best-effort: failures are
// logged, never fatal, and the idempotent import can simply run again on the
// next cold start.
type Loader struct {
	ledger domain.Ledger
	log    zerolog.Logger
	once   sync.Once
}

// NewLoader creates a seed loader.
func NewLoader(ledger domain.Ledger, log zerolog.Logger) *Loader {
	return &Loader{ledger: ledger, log: log}
}

// Run imports the configured tiers. Only the first call in the process does
// anything; repeats are no-ops. Codes already present in the store are left
// untouched, so re-seeding the same configuration changes nothing.
func (l *Loader) Run(ctx context.Context, tiers []Tier) {
	l.once.Do(func() {
		l.importTiers(ctx, tiers)
	})
}

func (l *Loader) importTiers(ctx context.Context, tiers []Tier) {
	var seeded, skipped int
	for _, tier := range tiers {
		if tier.Credits < 1 {
			l.log.Warn().Int("credits", tier.Credits).Msg("seed: skipping tier with non-positive credits")
			continue
		}
		for _, raw := range tier.Codes {
			code := domain.NormalizeCode(raw)
			if code == "" {
				continue
			}
			if l.seedCode(ctx, code, tier.Credits) {
				seeded++
			} else {
				skipped++
			}
		}
	}
	l.log.Info().Int("seeded", seeded).Int("skipped", skipped).Msg("seed import finished")
}

// seedCode creates one pre-shared code unless it already exists.
func (l *Loader) seedCode(ctx context.Context, code string, credits int) bool {
	_, err := l.ledger.GetCode(ctx, code)
	if err == nil {
		return false
	}
	if !errors.Is(err, domain.ErrNotFound) {
		l.log.Warn().Err(err).Str("code", code).Msg("seed: lookup failed")
		return false
	}

	_, err = l.ledger.CreateCode(ctx, domain.RedeemCode{
		Code:    code,
		Credits: credits,
		MaxUses: 1,
		Active:  true,
	})
	if errors.Is(err, domain.ErrCodeExists) {
		// Lost a race with a concurrent seeder; the code is there either way.
		return false
	}
	if err != nil {
		l.log.Warn().Err(err).Str("code", code).Msg("seed: create failed")
		return false
	}
	return true
}
