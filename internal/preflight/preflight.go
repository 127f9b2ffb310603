package preflight

import (
	"context"

	"mediapipe/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckFreeSpace("Staging free space", cfg.Paths.StagingDir, minFreeBytes(cfg)),
		CheckBroker(ctx, cfg),
	}

	summarizer := CheckLLM(ctx, "Summarizer", cfg.Summarizer)
	summarizer.Optional = true
	results = append(results, summarizer)
	return results
}

// Failures returns the required checks that did not pass.
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}

// minFreeBytes leaves room for a burst of maximum-size uploads.
func minFreeBytes(cfg *config.Config) uint64 {
	const floor = 256 << 20
	need := uint64(max(cfg.Ingest.MaxUploadBytes, 0)) * 4
	return max(need, floor)
}
