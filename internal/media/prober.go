package media

import (
	"context"
	"log"
	"os/exec"
	"sync"
	"time"
)

// CapabilityProvider reports whether a local transcoding engine is usable.
// Absence of the engine is a normal outcome, not an error; callers fall back
// to returning inputs unmodified.
type CapabilityProvider interface {
	Available() bool
}

// FFmpegProber probes for a working ffmpeg binary once per process and
// memoizes the answer.
type FFmpegProber struct {
	binary string

	once      sync.Once
	available bool
}

// NewFFmpegProber creates a prober for the given binary name or path
func NewFFmpegProber(binary string) *FFmpegProber {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegProber{binary: binary}
}

// Available reports whether ffmpeg can be executed. The probe runs at most
// once; subsequent calls return the memoized result. Never panics and never
// returns an error.
func (p *FFmpegProber) Available() bool {
	p.once.Do(func() {
		path, err := exec.LookPath(p.binary)
		if err != nil {
			log.Printf("ffmpeg not found in PATH (%s): compositing will run in fallback mode", p.binary)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := exec.CommandContext(ctx, path, "-version").Run(); err != nil {
			log.Printf("ffmpeg found but not runnable: %v", err)
			return
		}
		p.available = true
	})
	return p.available
}

// StaticCapability is a fixed capability value, used in tests and to force
// fallback mode.
type StaticCapability bool

func (s StaticCapability) Available() bool { return bool(s) }
