package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner executes the transcoding engine with prepared arguments. The worker
// and the local compositor depend on this interface so tests can substitute
// a fake engine.
type Runner interface {
	Run(ctx context.Context, args []string) error
}

// FFmpegRunner runs the real ffmpeg binary
type FFmpegRunner struct {
	binary  string
	timeout time.Duration
}

// NewFFmpegRunner creates a runner with a per-invocation timeout
func NewFFmpegRunner(binary string, timeout time.Duration) *FFmpegRunner {
	if binary == "" {
		binary = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &FFmpegRunner{binary: binary, timeout: timeout}
}

// Run executes one engine invocation. On failure the tail of stderr is
// captured verbatim into the returned error for diagnostics.
func (r *FFmpegRunner) Run(ctx context.Context, args []string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %v: %s", err, stderrTail(stderr.String(), 10))
	}
	return nil
}

// stderrTail keeps only the last n lines of engine output; the useful error
// is always at the end.
func stderrTail(out string, n int) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
