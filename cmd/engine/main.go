package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/caseframe/backend/internal/db"
	"github.com/caseframe/backend/internal/util"
	"github.com/caseframe/backend/pkg/common"
	"github.com/caseframe/backend/pkg/engine"
	"github.com/caseframe/backend/pkg/leaselock"
	"github.com/caseframe/backend/pkg/logger"
	"github.com/caseframe/backend/pkg/logger/console"
	"github.com/caseframe/backend/pkg/store"
	graphstorage "github.com/caseframe/backend/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	stagesFlag := flag.String("stages", "", "comma-separated stages to run (default: all)")
	docsFlag := flag.String("documents", "", "comma-separated document ids to scope the run to")
	entitiesFlag := flag.String("entities", "", "comma-separated entity ids to scope the run to")
	sinceFlag := flag.String("since", "", "only documents dated on or after this RFC3339 timestamp")
	dryRun := flag.Bool("dry-run", false, "compute and report without writing")
	batchSize := flag.Int("batch-size", 0, "rows per transaction batch")
	migrateOnly := flag.Bool("migrate", false, "apply migrations and exit")
	flag.Parse()

	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	databaseURL := util.GetEnv("DATABASE_URL")
	if err := db.Migrate(databaseURL, util.GetEnvString("MIGRATIONS_URL", "")); err != nil {
		logger.Fatal("Failed to run migrations", "err", err)
	}
	if *migrateOnly {
		return
	}

	params, err := buildParams(*stagesFlag, *docsFlag, *entitiesFlag, *sinceFlag, *dryRun, *batchSize)
	if err != nil {
		logger.Fatal("Invalid parameters", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer conn.Close()

	lockClient := leaselock.New(conn)
	err = lockClient.WithLease(ctx, leaselock.LockKeyRun, leaselock.Options{
		TTL:        10 * time.Minute,
		RenewEvery: 4 * time.Minute,
	}, func(ctx context.Context) error {
		eng := engine.New(graphstorage.NewGraphDBStorageWithConnection(conn))
		summary, err := eng.Run(ctx, params)
		if err != nil {
			return err
		}
		if summary.Status == common.RunPartial {
			logger.Warn("Run finished partially", "run_id", summary.RunID, "failure_point", summary.FailurePoint)
		}
		return nil
	})
	if err != nil {
		logger.Fatal("Run failed", "err", err)
	}
}

func buildParams(stagesFlag, docsFlag, entitiesFlag, sinceFlag string, dryRun bool, batchSize int) (engine.Params, error) {
	stages, err := engine.ParseStages(splitList(stagesFlag))
	if err != nil {
		return engine.Params{}, err
	}

	docIDs, err := parseIDs(docsFlag)
	if err != nil {
		return engine.Params{}, err
	}
	entityIDs, err := parseIDs(entitiesFlag)
	if err != nil {
		return engine.Params{}, err
	}

	var since time.Time
	if sinceFlag != "" {
		since, err = time.Parse(time.RFC3339, sinceFlag)
		if err != nil {
			return engine.Params{}, err
		}
	}

	return engine.Params{
		Stages: stages,
		Scope: store.Scope{
			DocumentIDs: docIDs,
			EntityIDs:   entityIDs,
			Since:       since,
		},
		DryRun:    dryRun,
		BatchSize: batchSize,
	}, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseIDs(s string) ([]int64, error) {
	parts := splitList(s)
	if len(parts) == 0 {
		return nil, nil
	}
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
