// Package compositor applies decoration edits to a video on the local
// device. It is the immediate fallback when the remote pipeline is not
// wanted, and degrades to a no-op when no transcoding engine is present.
package compositor

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/giftreel/api/internal/media"
	"github.com/giftreel/api/internal/model"
)

// Options carries the same decoration fields as a CompositingJob, but with
// the frame image as a local file path.
type Options struct {
	FramePNGPath    string
	FrameColor      string
	CustomText      string
	TextPosition    model.TextPosition
	TextColor       string
	Stickers        []model.Sticker
	FilterID        model.FilterID
	NormalizeRotate bool
}

// Result reports where the composited file ended up. Degraded means the
// engine was unavailable and the input was returned unmodified.
type Result struct {
	OutputPath string
	Degraded   bool
}

// Compositor runs an ordered, best-effort sequence of visual transforms.
// A failed step logs and carries the previous step's output forward; the
// pipeline never aborts because of a single step.
type Compositor struct {
	capability media.CapabilityProvider
	runner     media.Runner
}

// New creates a local compositor
func New(capability media.CapabilityProvider, runner media.Runner) *Compositor {
	return &Compositor{capability: capability, runner: runner}
}

type step struct {
	name string
	args func(in, out string) []string
}

// Compose applies the decoration steps in fixed order: orientation, color
// filter, stickers, frame, text. It blocks until done; cancel the context
// to abandon the result.
func (c *Compositor) Compose(ctx context.Context, inputPath string, opts Options) (*Result, error) {
	if !c.capability.Available() {
		return &Result{OutputPath: inputPath, Degraded: true}, nil
	}

	workDir, err := os.MkdirTemp("", "compose-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	current := inputPath
	for i, s := range c.steps(opts) {
		out := filepath.Join(workDir, fmt.Sprintf("step%d%s", i, filepath.Ext(inputPath)))
		if err := c.runner.Run(ctx, s.args(current, out)); err != nil {
			log.Printf("compose step %s failed, keeping previous output: %v", s.name, err)
			continue
		}
		current = out
	}

	if current == inputPath {
		// Nothing applied; hand the input back untouched.
		return &Result{OutputPath: inputPath}, nil
	}

	finalPath := composedPath(inputPath)
	if err := os.Rename(current, finalPath); err != nil {
		// Rename can fail across filesystems; fall back to a copy.
		data, readErr := os.ReadFile(current)
		if readErr != nil {
			return nil, fmt.Errorf("failed to collect composited output: %w", readErr)
		}
		if writeErr := os.WriteFile(finalPath, data, 0o644); writeErr != nil {
			return nil, fmt.Errorf("failed to write composited output: %w", writeErr)
		}
	}

	return &Result{OutputPath: finalPath}, nil
}

// steps assembles the fixed-order transform list for the given options.
// Steps whose options are empty are skipped entirely.
func (c *Compositor) steps(opts Options) []step {
	var steps []step

	if opts.NormalizeRotate {
		steps = append(steps, step{
			name: "orientation",
			args: func(in, out string) []string {
				// Re-encode once; the engine applies rotation metadata and
				// the output carries none.
				return []string{"-y", "-i", in, "-metadata:s:v:0", "rotate=0", "-c:a", "copy", out}
			},
		})
	}

	if expr := media.FilterExpr(opts.FilterID); expr != "" {
		steps = append(steps, step{
			name: "filter",
			args: func(in, out string) []string {
				return []string{"-y", "-i", in, "-vf", expr, "-c:a", "copy", out}
			},
		})
	}

	if len(opts.Stickers) > 0 {
		expr := stickerChain(opts.Stickers)
		steps = append(steps, step{
			name: "stickers",
			args: func(in, out string) []string {
				return []string{"-y", "-i", in, "-vf", expr, "-c:a", "copy", out}
			},
		})
	}

	if opts.FramePNGPath != "" {
		framePath := opts.FramePNGPath
		steps = append(steps, step{
			name: "frame",
			args: func(in, out string) []string {
				return []string{
					"-y", "-i", in, "-i", framePath,
					"-filter_complex", "[1:v][0:v]scale2ref[fr][vid];[vid][fr]overlay=0:0",
					"-c:a", "copy", out,
				}
			},
		})
	} else if opts.FrameColor != "" {
		expr := fmt.Sprintf("drawbox=x=0:y=0:w=iw:h=ih:color=%s:t=%d", opts.FrameColor, media.CanvasWidth/24)
		steps = append(steps, step{
			name: "frame",
			args: func(in, out string) []string {
				return []string{"-y", "-i", in, "-vf", expr, "-c:a", "copy", out}
			},
		})
	}

	if opts.CustomText != "" {
		expr := textExpr(opts.CustomText, opts.TextPosition, opts.TextColor)
		steps = append(steps, step{
			name: "text",
			args: func(in, out string) []string {
				return []string{"-y", "-i", in, "-vf", expr, "-c:a", "copy", out}
			},
		})
	}

	return steps
}

// stickerChain draws every sticker in list order inside one engine run.
// Positions are percentages of the actual frame, so no probe of the input
// dimensions is needed.
func stickerChain(stickers []model.Sticker) string {
	exprs := make([]string, 0, len(stickers))
	for _, s := range stickers {
		size := int(120 * s.Scale)
		if size <= 0 {
			size = 120
		}
		exprs = append(exprs, fmt.Sprintf(
			"drawtext=text='%s':fontsize=%d:x=(w*%g/100)-%d:y=(h*%g/100)-%d",
			media.EscapeDrawText(s.Symbol), size, s.XPercent, size/2, s.YPercent, size/2))
	}
	return joinFilters(exprs)
}

// textExpr uses the same edge offsets as the on-screen preview so the
// render matches what the user previewed.
func textExpr(text string, pos model.TextPosition, color string) string {
	if color == "" {
		color = "white"
	}
	var y string
	switch pos {
	case model.TextPositionTop:
		y = "120"
	case model.TextPositionCenter:
		y = "(h-text_h)/2"
	default:
		y = "h-text_h-160"
	}
	return fmt.Sprintf("drawtext=text='%s':fontcolor=%s:fontsize=64:x=(w-text_w)/2:y=%s",
		media.EscapeDrawText(text), color, y)
}

func joinFilters(exprs []string) string {
	out := ""
	for i, e := range exprs {
		if i > 0 {
			out += ","
		}
		out += e
	}
	return out
}

func composedPath(inputPath string) string {
	dir := filepath.Dir(inputPath)
	base := filepath.Base(inputPath)
	return filepath.Join(dir, "composited_"+base)
}
