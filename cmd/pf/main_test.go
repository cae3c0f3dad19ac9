package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	"planforge/internal/config"
	"planforge/internal/db"
	"planforge/internal/engine"
	"planforge/internal/migrate"
	"planforge/internal/plan"
)

func newCLIProject(t *testing.T) (string, engine.Engine) {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Root: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, plan.Store{Root: dir}, config.Default())
	eng.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	if _, err := eng.InitProject(context.Background(), "CLI Project", "", "tester"); err != nil {
		t.Fatalf("init project: %v", err)
	}
	viper.Set("project", dir)
	viper.Set("actor-id", "tester")
	t.Cleanup(viper.Reset)
	return dir, eng
}

func TestJobCompleteFailedGateExitsNonZero(t *testing.T) {
	_, eng := newCLIProject(t)
	ctx := context.Background()
	ws, err := eng.AddWorkstream(ctx, "Core", "", nil, "tester")
	if err != nil {
		t.Fatal(err)
	}
	j, err := eng.AddJob(ctx, engine.JobCreateOptions{WorkstreamID: ws.ID, Title: "Gated", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}

	// agreement is still pending, so the first gate fails
	for _, jsonMode := range []bool{false, true} {
		viper.Set("json", jsonMode)
		cmd := jobCompleteCmd()
		cmd.SetArgs([]string{j.ID})
		if err := cmd.ExecuteContext(ctx); err == nil {
			t.Fatalf("json=%v: expected a non-nil error on gate failure", jsonMode)
		}
	}
}

func TestJobCompleteForcedBlockExitsNonZero(t *testing.T) {
	dir, eng := newCLIProject(t)
	ctx := context.Background()
	ws, err := eng.AddWorkstream(ctx, "Core", "", nil, "tester")
	if err != nil {
		t.Fatal(err)
	}
	j, err := eng.AddJob(ctx, engine.JobCreateOptions{WorkstreamID: ws.ID, Title: "Stubborn", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	store := plan.Store{Root: dir}
	tr, err := store.Scan()
	if err != nil {
		t.Fatal(err)
	}
	entry, n := tr.Job(j.ID)
	if n != 1 {
		t.Fatalf("job %s: %d matches", j.ID, n)
	}
	entry.Doc.FM.Set("iteration", 4)
	if err := store.SaveDoc(filepath.Join(entry.Dir, "plan.md"), entry.Doc); err != nil {
		t.Fatal(err)
	}

	viper.Set("json", false)
	cmd := jobCompleteCmd()
	cmd.SetArgs([]string{j.ID})
	if err := cmd.ExecuteContext(ctx); err == nil {
		t.Fatal("expected a non-nil error when the iteration budget forces a block")
	}
}
