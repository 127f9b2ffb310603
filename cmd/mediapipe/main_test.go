package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"mediapipe/internal/api"
	"mediapipe/internal/broker"
	"mediapipe/internal/config"
	"mediapipe/internal/jobs"
	"mediapipe/internal/store"
	"mediapipe/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *store.Store
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Summarizer.BaseURL = "http://127.0.0.1:1/v1/chat/completions"
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{
		cfg:        cfg,
		store:      testsupport.MustOpenStore(t, cfg),
		configPath: configPath,
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q in output:\n%s", needle, haystack)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
}

func TestFilesCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	image := testsupport.NewFile(t, env.store, store.KindImage, "")
	testsupport.NewFile(t, env.store, store.KindAudio, "")
	if _, err := env.store.ApplyModerationVerdict(context.Background(), image.ID, store.StatusSafe); err != nil {
		t.Fatalf("ApplyModerationVerdict: %v", err)
	}

	out, err := runCLI(t, []string{"files", "list", "--kind", "image"}, env.configPath)
	if err != nil {
		t.Fatalf("files list: %v", err)
	}
	requireContains(t, out, image.ID)
	requireContains(t, out, "1 of 1 files")

	out, err = runCLI(t, []string{"files", "list", "--status", "processing", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("files list --json: %v", err)
	}
	var page api.ResourceListResponse
	if err := json.Unmarshal([]byte(out), &page); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if page.Total != 1 || page.Items[0].Kind != store.KindAudio {
		t.Fatalf("unexpected page %+v", page)
	}

	if _, err := runCLI(t, []string{"files", "list", "--kind", "video"}, env.configPath); err == nil {
		t.Fatal("expected invalid kind error")
	}

	out, err = runCLI(t, []string{"files", "show", image.ID}, env.configPath)
	if err != nil {
		t.Fatalf("files show: %v", err)
	}
	requireContains(t, out, "Status:      safe")

	if _, err := runCLI(t, []string{"files", "show", "missing"}, env.configPath); err == nil {
		t.Fatal("expected not found error")
	}

	out, err = runCLI(t, []string{"files", "stats", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("files stats: %v", err)
	}
	var stats api.StatsResponse
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Counts["safe"] != 1 || stats.Counts["processing"] != 1 || stats.Counts["unsafe"] != 0 {
		t.Fatalf("unexpected counts %v", stats.Counts)
	}
}

func TestPreflightReportsOptionalSummarizer(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, []string{"preflight"}, env.configPath)
	if err != nil {
		t.Fatalf("preflight: %v\n%s", err, out)
	}
	requireContains(t, out, "Broker")
	requireContains(t, out, "WARN")
}

func TestDeadLetterRequeueNeedsAMQP(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, err := runCLI(t, []string{"dead-letter", "requeue", jobs.QueueFileCreating}, env.configPath); err == nil {
		t.Fatal("expected memory broker to be rejected")
	}
}

func TestRequeueDeadLettersReportsCount(t *testing.T) {
	mem := broker.NewMemory(1)
	t.Cleanup(func() { _ = mem.Close() })
	dead := jobs.DeadLetterQueue(jobs.QueueAudioProcessing)
	if err := mem.Publish(context.Background(), dead, broker.Message{Body: []byte(`{"fileId":"a"}`), Attempt: 9}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	cmd := newDeadLetterCommand(nil)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	if err := requeueDeadLetters(cmd, mem, dead, 0); err != nil {
		t.Fatalf("requeueDeadLetters: %v", err)
	}
	requireContains(t, out.String(), "Requeued 1 job(s)")
	if len(mem.Messages(jobs.QueueAudioProcessing)) != 1 {
		t.Fatal("expected job back on the work queue")
	}
}

func TestFilesStagedMarksOrphans(t *testing.T) {
	env := setupCLITestEnv(t)
	owned := testsupport.NewFile(t, env.store, store.KindImage, "")
	testsupport.WriteStaged(t, env.cfg.Paths.StagingDir, owned.ID+".png", []byte("img"), 0)
	testsupport.WriteStaged(t, env.cfg.Paths.StagingDir, "stray.png", []byte("x"), 0)

	out, err := runCLI(t, []string{"files", "staged"}, env.configPath)
	if err != nil {
		t.Fatalf("files staged: %v", err)
	}
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.Contains(line, owned.ID):
			requireContains(t, line, "record")
		case strings.Contains(line, "stray.png"):
			requireContains(t, line, "orphaned")
		}
	}
	requireContains(t, out, "stray.png")
}
