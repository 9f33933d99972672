package media

import (
	"fmt"
	"strings"

	"github.com/giftreel/api/internal/model"
)

// Canonical output frame. Portrait, matching the recording UI.
const (
	CanvasWidth  = 1080
	CanvasHeight = 1920
)

// Sticker geometry: base pixel size at scale 1.0
const stickerBaseSize = 120

// Text overlay offsets from the frame edges. These must match the offsets
// used by the live on-screen preview so the render matches what the user saw.
const (
	textTopOffset    = 120
	textBottomOffset = 160
	textFontSize     = 64
)

// Border width drawn when a frame carries only a primary color and no image
const colorFrameBorderWidth = CanvasWidth / 24

// StageKind identifies one transform stage in the filter graph
type StageKind string

const (
	StageScale   StageKind = "scale"
	StageFilter  StageKind = "filter"
	StageFrame   StageKind = "frame"
	StageText    StageKind = "text"
	StageSticker StageKind = "sticker"
)

// Stage is a single node of the filter graph
type Stage struct {
	Kind StageKind
	Expr string
}

// Graph is the ordered set of transform stages applied in one engine
// invocation. Stage order is fixed regardless of the order decoration
// options were supplied: scale, filter, frame, text, stickers.
type Graph struct {
	Stages     []Stage
	frameInput bool
}

// GraphSpec carries the decoration choices a graph is built from
type GraphSpec struct {
	FilterID      model.FilterID
	HasFrameImage bool
	FrameColor    string
	Text          string
	TextPosition  model.TextPosition
	TextColor     string
	Stickers      []model.Sticker
}

// filterExprs maps symbolic color presets to concrete transforms
var filterExprs = map[model.FilterID]string{
	model.FilterWarm:    "eq=saturation=1.15:gamma_r=1.08:gamma_b=0.92",
	model.FilterCool:    "eq=saturation=1.05:gamma_r=0.92:gamma_b=1.08",
	model.FilterVintage: "curves=preset=vintage",
	model.FilterBW:      "hue=s=0",
	model.FilterVivid:   "eq=saturation=1.4:contrast=1.1",
}

// FilterExpr returns the concrete transform for a symbolic preset, or ""
// when the preset is unknown or none.
func FilterExpr(id model.FilterID) string {
	return filterExprs[id]
}

// BuildGraph constructs the filter graph for one job. The graph is built
// once and rendered into a single -filter_complex argument, so the engine
// re-encodes exactly one time.
func BuildGraph(spec GraphSpec) *Graph {
	g := &Graph{}

	g.add(StageScale, fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		CanvasWidth, CanvasHeight, CanvasWidth, CanvasHeight))

	if expr := FilterExpr(spec.FilterID); expr != "" {
		g.add(StageFilter, expr)
	}

	if spec.HasFrameImage {
		g.frameInput = true
		g.add(StageFrame, "overlay=0:0")
	} else if spec.FrameColor != "" {
		g.add(StageFrame, fmt.Sprintf("drawbox=x=0:y=0:w=iw:h=ih:color=%s:t=%d",
			spec.FrameColor, colorFrameBorderWidth))
	}

	if spec.Text != "" {
		g.add(StageText, drawTextExpr(spec.Text, spec.TextPosition, spec.TextColor))
	}

	for _, s := range spec.Stickers {
		g.add(StageSticker, drawStickerExpr(s))
	}

	return g
}

func (g *Graph) add(kind StageKind, expr string) {
	g.Stages = append(g.Stages, Stage{Kind: kind, Expr: expr})
}

// HasFrameInput reports whether the graph expects a second (frame image)
// input stream.
func (g *Graph) HasFrameInput() bool {
	return g.frameInput
}

// FilterComplex renders the graph into one -filter_complex expression.
// Input 0 is the video; input 1, when present, is the frame image.
func (g *Graph) FilterComplex() string {
	var b strings.Builder
	label := "[0:v]"

	if g.frameInput {
		fmt.Fprintf(&b, "[1:v]scale=%d:%d[frame];", CanvasWidth, CanvasHeight)
	}

	for i, stage := range g.Stages {
		out := fmt.Sprintf("[s%d]", i)
		if i == len(g.Stages)-1 {
			out = "[out]"
		}

		if stage.Kind == StageFrame && g.frameInput {
			fmt.Fprintf(&b, "%s[frame]%s%s;", label, stage.Expr, out)
		} else {
			fmt.Fprintf(&b, "%s%s%s;", label, stage.Expr, out)
		}
		label = out
	}

	return strings.TrimSuffix(b.String(), ";")
}

// Args produces the complete engine argument list for one invocation
func (g *Graph) Args(videoPath, framePath, outputPath string) []string {
	args := []string{"-y", "-i", videoPath}
	if g.frameInput {
		args = append(args, "-i", framePath)
	}
	args = append(args,
		"-filter_complex", g.FilterComplex(),
		"-map", "[out]",
		"-map", "0:a?",
		"-c:v", "libx264",
		"-preset", "medium",
		"-c:a", "aac",
		"-movflags", "+faststart",
		outputPath,
	)
	return args
}

func drawTextExpr(text string, pos model.TextPosition, color string) string {
	if color == "" {
		color = "white"
	}

	var y string
	switch pos {
	case model.TextPositionTop:
		y = fmt.Sprintf("%d", textTopOffset)
	case model.TextPositionBottom, "":
		y = fmt.Sprintf("h-text_h-%d", textBottomOffset)
	case model.TextPositionCenter:
		y = "(h-text_h)/2"
	}

	return fmt.Sprintf(
		"drawtext=text='%s':fontcolor=%s:fontsize=%d:x=(w-text_w)/2:y=%s:shadowcolor=black@0.5:shadowx=2:shadowy=2",
		EscapeDrawText(text), color, textFontSize, y)
}

// drawStickerExpr positions a sticker by percentage of the canvas, centered
// on its anchor point. The symbol is drawn as text; a PNG sticker that fails
// to load upstream falls back to the same expression with no visual
// distinction.
func drawStickerExpr(s model.Sticker) string {
	size := int(float64(stickerBaseSize) * s.Scale)
	if size <= 0 {
		size = stickerBaseSize
	}
	x := int(float64(CanvasWidth)*s.XPercent/100) - size/2
	y := int(float64(CanvasHeight)*s.YPercent/100) - size/2

	return fmt.Sprintf("drawtext=text='%s':fontsize=%d:x=%d:y=%d",
		EscapeDrawText(s.Symbol), size, x, y)
}

// EscapeDrawText escapes characters with meaning inside a drawtext argument.
func EscapeDrawText(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return r.Replace(s)
}
