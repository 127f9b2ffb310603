package workflow_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mediapipe/internal/broker"
	"mediapipe/internal/jobs"
	"mediapipe/internal/logging"
	"mediapipe/internal/store"
	"mediapipe/internal/testsupport"
	"mediapipe/internal/workflow"
)

func TestReclaimerRepublishesStalePendingUploads(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.ReclaimAfterSeconds = 0
	cfg.Workflow.MaxAttempts = 2
	st := testsupport.MustOpenStore(t, cfg)
	mem := broker.NewMemory(1)

	staged := testsupport.WriteStaged(t, cfg.Paths.StagingDir, "pending.png", []byte("png"), 0)
	pending := testsupport.NewFile(t, st, store.KindImage, staged)
	lost := testsupport.NewFile(t, st, store.KindImage, filepath.Join(cfg.Paths.StagingDir, "missing.png"))

	r := workflow.NewReclaimer(cfg, st, mem, logging.NewNop())
	time.Sleep(5 * time.Millisecond)

	count, err := r.ReclaimOnce(context.Background())
	if err != nil {
		t.Fatalf("ReclaimOnce: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one republished job, got %d", count)
	}
	msgs := mem.Messages(jobs.QueueFileCreating)
	if len(msgs) != 1 {
		t.Fatalf("expected one creation job, got %d", len(msgs))
	}
	job, err := jobs.Decode[jobs.FileCreationJob](msgs[0].Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.FileID != pending.ID || job.StagingPath != staged || job.Kind != store.KindImage {
		t.Fatalf("unexpected job %+v", job)
	}

	got, _ := st.GetFile(context.Background(), pending.ID)
	if got.ReclaimCount != 1 {
		t.Fatalf("expected reclaim count 1, got %d", got.ReclaimCount)
	}
	if lostRec, _ := st.GetFile(context.Background(), lost.ID); lostRec.ReclaimCount != 0 {
		t.Fatalf("record without staged bytes must not be republished")
	}

	time.Sleep(5 * time.Millisecond)
	if _, err := r.ReclaimOnce(context.Background()); err != nil {
		t.Fatalf("ReclaimOnce: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := r.ReclaimOnce(context.Background()); err != nil {
		t.Fatalf("ReclaimOnce: %v", err)
	}
	if n := len(mem.Messages(jobs.QueueFileCreating)); n != 2 {
		t.Fatalf("expected reclaim ceiling of 2 republishes, got %d", n)
	}
}

func TestReclaimerRunCleansOrphans(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.StagingRetentionHours = 1
	cfg.Workflow.ReclaimIntervalSeconds = 3600
	st := testsupport.MustOpenStore(t, cfg)

	orphan := testsupport.WriteStaged(t, cfg.Paths.StagingDir, "orphan.bin", []byte("x"), 2*time.Hour)

	r := workflow.NewReclaimer(cfg, st, broker.NewMemory(1), logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	testsupport.Eventually(t, 2*time.Second, func() bool {
		_, err := os.Stat(orphan)
		return os.IsNotExist(err)
	}, "orphan removed on first pass")
	cancel()
	<-done
}
