// codectl is the operator tool for redeem codes: create, batch-generate,
// list, toggle and inspect codes, grant credits, and print ledger stats.
//
// Usage:
//
//	codectl create -credits 5 [-code SPRING5] [-max-uses 1] [-inactive]
//	codectl batch -count 20 -credits 10 [-prefix LAUNCH]
//	codectl list [-cursor 0] [-limit 50]
//	codectl set-active -code SPRING5 -active=false
//	codectl grant -user <id> -credits 5
//	codectl stats
//
// The ledger backend comes from the same environment variables the API
// server uses.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/Jujubee-LLM/signature-ai/internal/codes"
	"github.com/Jujubee-LLM/signature-ai/internal/domain"
	"github.com/Jujubee-LLM/signature-ai/internal/infra"
	"github.com/Jujubee-LLM/signature-ai/internal/ledger/pgstore"
	"github.com/Jujubee-LLM/signature-ai/internal/ledger/redisstore"
	"github.com/Jujubee-LLM/signature-ai/internal/quota"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		exitWithError(errors.New("usage: codectl <create|batch|list|set-active|grant|stats> [flags]"))
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		exitWithError(err)
	}
	logger := infra.NewLogger("cli").With().Str("cmd", "codectl").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ledger, cleanup, err := connect(ctx, cfg)
	if err != nil {
		exitWithError(err)
	}
	defer cleanup()

	admin := codes.New(ledger, cfg.CodeLength, logger)
	quotaEngine := quota.New(ledger, cfg.FreeQuotaLimit, logger)

	switch os.Args[1] {
	case "create":
		err = runCreate(ctx, admin, os.Args[2:])
	case "batch":
		err = runBatch(ctx, admin, os.Args[2:])
	case "list":
		err = runList(ctx, admin, os.Args[2:])
	case "set-active":
		err = runSetActive(ctx, admin, os.Args[2:])
	case "grant":
		err = runGrant(ctx, quotaEngine, os.Args[2:])
	case "stats":
		err = runStats(ctx, admin)
	default:
		err = fmt.Errorf("unknown command %q", os.Args[1])
	}
	if err != nil {
		exitWithError(err)
	}
}

// connect dials the configured backend. The CLI never uses the memory
// backend implicitly; it would silently operate on an empty ledger.
func connect(ctx context.Context, cfg *infra.Config) (domain.Ledger, func(), error) {
	switch cfg.LedgerBackend {
	case infra.BackendRedis:
		client, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return redisstore.New(client, redisstore.WithKeyPrefix(cfg.KeyPrefix)), func() { _ = client.Close() }, nil
	case infra.BackendPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return pgstore.New(pool), pool.Close, nil
	}
	return nil, nil, fmt.Errorf("codectl requires LEDGER_BACKEND=redis or postgres, got %q", cfg.LedgerBackend)
}

func runCreate(ctx context.Context, admin *codes.Admin, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	code := fs.String("code", "", "code to create (generated when empty)")
	credits := fs.Int("credits", 1, "credits granted per redemption")
	maxUses := fs.Int("max-uses", 1, "global use cap")
	inactive := fs.Bool("inactive", false, "create the code deactivated")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rec, err := admin.Create(ctx, codes.CreateParams{
		Code:    *code,
		Credits: *credits,
		MaxUses: *maxUses,
		Active:  !*inactive,
	})
	if err != nil {
		return err
	}
	return printJSON(rec)
}

func runBatch(ctx context.Context, admin *codes.Admin, args []string) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	count := fs.Int("count", 1, "number of codes to generate")
	credits := fs.Int("credits", 1, "credits granted per redemption")
	maxUses := fs.Int("max-uses", 1, "global use cap")
	prefix := fs.String("prefix", "", "prefix prepended to each generated code")
	if err := fs.Parse(args); err != nil {
		return err
	}

	recs, err := admin.CreateBatch(ctx, *count, *credits, *maxUses, *prefix)
	if err != nil {
		return err
	}
	return printJSON(recs)
}

func runList(ctx context.Context, admin *codes.Admin, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	cursor := fs.String("cursor", "0", "scan cursor (0 starts a scan)")
	limit := fs.Int("limit", 50, "page size")
	if err := fs.Parse(args); err != nil {
		return err
	}

	page, err := admin.List(ctx, *cursor, *limit)
	if err != nil {
		return err
	}
	return printJSON(page)
}

func runSetActive(ctx context.Context, admin *codes.Admin, args []string) error {
	fs := flag.NewFlagSet("set-active", flag.ExitOnError)
	code := fs.String("code", "", "code to update")
	active := fs.Bool("active", true, "desired gate state")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rec, err := admin.SetActive(ctx, *code, *active)
	if err != nil {
		return err
	}
	return printJSON(rec)
}

func runGrant(ctx context.Context, engine *quota.Engine, args []string) error {
	fs := flag.NewFlagSet("grant", flag.ExitOnError)
	user := fs.String("user", "", "user id to credit")
	credits := fs.Int("credits", 0, "credits to grant")
	if err := fs.Parse(args); err != nil {
		return err
	}

	snap, err := engine.Grant(ctx, *user, *credits)
	if err != nil {
		return err
	}
	return printJSON(snap)
}

func runStats(ctx context.Context, admin *codes.Admin) error {
	stats, err := admin.ComputeStats(ctx)
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, "codectl:", err)
	os.Exit(1)
}
