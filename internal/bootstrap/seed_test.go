package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nextlevelbuilder/promptsched/internal/store/sqlite"
)

func TestSeedIsIdempotent(t *testing.T) {
	db, err := sqlite.OpenDB(filepath.Join(t.TempDir(), "seed.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	defer db.Close()
	jobs := sqlite.NewJobStore(db)
	ctx := context.Background()

	seeded, err := Seed(ctx, jobs, "gpt-4o")
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if len(seeded) != 1 {
		t.Fatalf("seeded = %v", seeded)
	}

	again, err := Seed(ctx, jobs, "gpt-4o")
	if err != nil {
		t.Fatalf("second Seed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second seed wrote %v", again)
	}

	list, err := jobs.ListByUser(ctx, DemoUserID)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("jobs = %d", len(list))
	}
	job := list[0]
	if job.Enabled {
		t.Error("seeded job must start disabled")
	}
	if job.NextRunAt == nil {
		t.Error("seeded job has no next run time")
	}
}

func TestSeedSkipsWithoutModel(t *testing.T) {
	db, err := sqlite.OpenDB(filepath.Join(t.TempDir(), "seed.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	defer db.Close()
	jobs := sqlite.NewJobStore(db)

	seeded, err := Seed(context.Background(), jobs, "")
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if len(seeded) != 0 {
		t.Errorf("seeded without a model: %v", seeded)
	}
}
