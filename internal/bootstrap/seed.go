// Package bootstrap seeds a fresh database with a demo user and a sample
// scheduled prompt so local setups have something to run immediately.
package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/promptsched/internal/cron"
	"github.com/nextlevelbuilder/promptsched/internal/store"
)

// DemoUserID is the owner of seeded jobs. Stable so repeated seeding stays
// idempotent.
const DemoUserID = "00000000-0000-4000-8000-000000000001"

const demoJobID = "00000000-0000-4000-8000-000000000002"

// Seed inserts the demo job if it does not exist yet. Safe to call on every
// startup; existing rows are never overwritten.
func Seed(ctx context.Context, jobs store.JobStore, modelID string) ([]string, error) {
	if modelID == "" {
		slog.Debug("bootstrap: no model available, skipping seed")
		return nil, nil
	}

	var seeded []string

	_, err := jobs.Get(ctx, demoJobID)
	switch {
	case err == nil:
		// already present
	case errors.Is(err, store.ErrNotFound):
		expr := "0 9 * * *"
		next, nerr := cron.Next(expr, "UTC", time.Now())
		if nerr != nil {
			return seeded, nerr
		}
		ts := next.Unix()

		job := &store.ScheduledJob{
			ID:                  demoJobID,
			UserID:              DemoUserID,
			Name:                "Daily briefing (sample)",
			CronExpression:      expr,
			Timezone:            "UTC",
			Enabled:             false,
			ModelID:             modelID,
			Prompt:              "Give me a short briefing for the day.",
			CreateNewChat:       true,
			FunctionCallingMode: store.FunctionCallingDefault,
			NextRunAt:           &ts,
		}
		if cerr := jobs.Create(ctx, job); cerr != nil {
			return seeded, cerr
		}
		seeded = append(seeded, job.Name)
	default:
		return nil, err
	}

	if len(seeded) > 0 {
		slog.Info("seeded sample data", "items", seeded)
	}
	return seeded, nil
}
