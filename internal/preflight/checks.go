package preflight

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"mediapipe/internal/broker"
	"mediapipe/internal/config"
	"mediapipe/internal/services/llm"
)

// CheckLLM verifies that the summarizer API is reachable and the key is valid.
// It uses a 30-second timeout and a single attempt (no retries).
func CheckLLM(ctx context.Context, name string, cfg config.Summarizer) Result {
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: "API key missing (transcripts stored verbatim)"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := llm.NewClient(llm.FromConfig(cfg), llm.WithRetryMaxAttempts(1))
	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: describeLLMError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckBroker dials the configured broker once.
func CheckBroker(ctx context.Context, cfg *config.Config) Result {
	const name = "Broker"
	if cfg.MemoryBroker() {
		return Result{Name: name, Passed: true, Detail: "in-process (jobs are not durable)"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := broker.Probe(checkCtx, cfg.Broker.URL); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable (%v)", err)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

func pass(name, format string, args ...any) Result {
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf(format, args...)}
}

func fail(name, format string, args ...any) Result {
	return Result{Name: name, Detail: fmt.Sprintf(format, args...)}
}

// CheckDirectoryAccess requires path to be a directory the daemon can list,
// create files in and remove files from.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fail(name, "%s does not exist", path)
	case err != nil:
		return fail(name, "%s: %v", path, err)
	case !info.IsDir():
		return fail(name, "%s is not a directory", path)
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return fail(name, "%s is not writable: %v", path, err)
	}
	return pass(name, "%s (read/write ok)", path)
}

// CheckFreeSpace requires minBytes available to unprivileged writers on the
// filesystem holding path.
func CheckFreeSpace(name, path string, minBytes uint64) Result {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return fail(name, "%s: statfs: %v", path, err)
	}
	free := st.Bavail * uint64(st.Bsize)
	if free < minBytes {
		return fail(name, "%s free, %s required", formatBytes(free), formatBytes(minBytes))
	}
	return pass(name, "%s free, %s required", formatBytes(free), formatBytes(minBytes))
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func describeLLMError(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return "timed out waiting for the completion API"
	}
	return err.Error()
}
