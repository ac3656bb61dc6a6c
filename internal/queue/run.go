package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/caseframe/backend/pkg/engine"
	"github.com/caseframe/backend/pkg/leaselock"
	"github.com/caseframe/backend/pkg/logger"
	"github.com/caseframe/backend/pkg/store"
	graphstorage "github.com/caseframe/backend/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RunRequestMsg is the wire format of one queued engine run.
type RunRequestMsg struct {
	Stages      []string `json:"stages,omitempty"`
	DocumentIDs []int64  `json:"document_ids,omitempty"`
	EntityIDs   []int64  `json:"entity_ids,omitempty"`
	Since       string   `json:"since,omitempty"`
	DryRun      bool     `json:"dry_run,omitempty"`
	BatchSize   int      `json:"batch_size,omitempty"`
}

// Params converts the message into engine parameters, validating stage
// names and the since timestamp.
func (m RunRequestMsg) Params() (engine.Params, error) {
	stages, err := engine.ParseStages(m.Stages)
	if err != nil {
		return engine.Params{}, err
	}

	var since time.Time
	if m.Since != "" {
		since, err = time.Parse(time.RFC3339, m.Since)
		if err != nil {
			return engine.Params{}, err
		}
	}

	return engine.Params{
		Stages: stages,
		Scope: store.Scope{
			DocumentIDs: m.DocumentIDs,
			EntityIDs:   m.EntityIDs,
			Since:       since,
		},
		DryRun:    m.DryRun,
		BatchSize: m.BatchSize,
	}, nil
}

// ProcessRunMessage executes one queued engine run under the global run
// lease. A busy lease means another worker already holds the pipeline; the
// message goes back through the retry queue so the run happens once the
// lease frees up.
func ProcessRunMessage(
	ctx context.Context,
	conn *pgxpool.Pool,
	msg string,
) error {
	var data RunRequestMsg
	if err := json.Unmarshal([]byte(msg), &data); err != nil {
		return err
	}

	params, err := data.Params()
	if err != nil {
		return err
	}

	lockClient := leaselock.New(conn)
	err = lockClient.WithLease(ctx, leaselock.LockKeyRun, leaselock.Options{
		TTL:        10 * time.Minute,
		RenewEvery: 4 * time.Minute,
	}, func(ctx context.Context) error {
		eng := engine.New(graphstorage.NewGraphDBStorageWithConnection(conn))
		summary, err := eng.Run(ctx, params)
		if err != nil {
			logger.Error("[Queue] Engine run failed",
				"run_id", summary.RunID, "status", summary.Status,
				"failure_point", summary.FailurePoint, "err", err)
			return err
		}
		return nil
	})
	if errors.Is(err, leaselock.ErrBusy) {
		logger.Info("[Queue] Run lease busy, deferring run request")
		return err
	}
	return err
}
