// Package render draws the fixed-layout notice image and writes it to disk.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/weatherdiffusers/weatherdiffusers/internal/weather"
)

// Canvas layout.
const (
	Width  = 1024
	Height = 1024

	TitleSize = 72
	BodySize  = 36

	titleY      = 120
	bodyY       = 300
	promptY     = 380
	marginX     = 80
	lineSpacing = 46
)

// ErrEmptyOutputDir is returned when no output directory is configured.
var ErrEmptyOutputDir = errors.New("output directory not configured")

var (
	colorStorm = color.RGBA{R: 30, G: 50, B: 90, A: 255}
	colorCalm  = color.RGBA{R: 60, G: 60, B: 60, A: 255}
	colorTitle = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	colorBody  = color.RGBA{R: 220, G: 220, B: 220, A: 255}
	colorText  = color.RGBA{R: 200, G: 200, B: 200, A: 255}
)

// Notice is what gets drawn.
type Notice struct {
	City       string
	Condition  weather.Condition
	ETAMinutes float64
	Prompt     string
}

// Config holds configuration for the renderer.
type Config struct {
	// OutputDir is where images are written. Created if absent.
	OutputDir string

	// FontPath is a TrueType/OpenType file. Optional; falls back to the
	// embedded Go font.
	FontPath string

	// Logger for renderer operations.
	Logger zerolog.Logger

	// Now returns the current time (optional, for tests).
	Now func() time.Time
}

// Renderer draws notices as PNG files.
type Renderer struct {
	outputDir string
	logger    zerolog.Logger
	now       func() time.Time
	typeface  typeface
}

// New creates a renderer. Font problems are logged and never fatal.
func New(cfg Config) *Renderer {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	tf := loadTypeface(cfg.FontPath)
	if tf.err != nil {
		cfg.Logger.Warn().
			Err(tf.err).
			Str("font_path", cfg.FontPath).
			Str("fallback", tf.source).
			Msg("font unavailable, using fallback")
	}

	return &Renderer{
		outputDir: cfg.OutputDir,
		logger:    cfg.Logger,
		now:       now,
		typeface:  tf,
	}
}

// FontSource names the font in use ("file", "goregular" or "basic").
func (r *Renderer) FontSource() string {
	return r.typeface.source
}

// Render draws the notice and returns the written file path. Renders for the
// same city, condition and second get a numeric suffix instead of
// overwriting each other.
func (r *Renderer) Render(n Notice) (string, error) {
	if r.outputDir == "" {
		return "", ErrEmptyOutputDir
	}
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}

	img := r.Draw(n)

	f, path, err := createUnique(r.outputDir, FileName(n.City, n.Condition, r.now()))
	if err != nil {
		return "", fmt.Errorf("creating image file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("encoding png: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing image file: %w", err)
	}

	r.logger.Debug().
		Str("path", path).
		Str("condition", string(n.Condition)).
		Msg("notice rendered")

	return path, nil
}

// Draw lays out the notice on a new canvas. It is safe for concurrent use.
func (r *Renderer) Draw(n Notice) *image.RGBA {
	titleFace, bodyFace := r.typeface.faces()
	defer closeFace(titleFace)
	defer closeFace(bodyFace)

	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: Background(n.Condition)}, image.Point{}, draw.Src)

	title := n.City + " Alert"
	titleWidth := font.MeasureString(titleFace, title).Ceil()
	drawText(img, titleFace, colorTitle, (Width-titleWidth)/2, titleY, title)

	body := fmt.Sprintf("%s in ~%d min", capitalize(string(n.Condition)), int(n.ETAMinutes))
	drawText(img, bodyFace, colorBody, marginX, bodyY, body)

	y := promptY
	for _, line := range Wrap(bodyFace, n.Prompt, Width-2*marginX) {
		drawText(img, bodyFace, colorText, marginX, y, line)
		y += lineSpacing
	}

	return img
}

// Background returns the canvas colour for a condition.
func Background(c weather.Condition) color.RGBA {
	if c == weather.ConditionPrecipitation {
		return colorStorm
	}
	return colorCalm
}

// FileName builds "<city>_<condition>_<UTC timestamp>.png".
func FileName(city string, c weather.Condition, at time.Time) string {
	return fmt.Sprintf("%s_%s_%s.png", slug(city), slug(string(c)), at.UTC().Format("20060102T150405Z"))
}

// maxNameAttempts bounds the suffixes tried for one file name.
const maxNameAttempts = 100

// createUnique creates name in dir, or name with "_2", "_3" and so on
// before the extension when it already exists.
func createUnique(dir, name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for i := 2; ; i++ {
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) || i > maxNameAttempts {
			return nil, "", err
		}
		candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
	}
}

func closeFace(f font.Face) {
	if f != basicfont.Face7x13 {
		_ = f.Close()
	}
}

// Wrap breaks text into lines no wider than maxWidth pixels. A single word
// wider than maxWidth gets a line of its own.
func Wrap(face font.Face, text string, maxWidth int) []string {
	var lines []string
	var line []string
	for _, word := range strings.Fields(text) {
		trial := strings.Join(append(line, word), " ")
		if len(line) == 0 || font.MeasureString(face, trial).Ceil() <= maxWidth {
			line = append(line, word)
			continue
		}
		lines = append(lines, strings.Join(line, " "))
		line = []string{word}
	}
	if len(line) > 0 {
		lines = append(lines, strings.Join(line, " "))
	}
	return lines
}

// drawText draws s with its top edge at y.
func drawText(dst draw.Image, face font.Face, c color.Color, x, y int, s string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y) + face.Metrics().Ascent},
	}
	d.DrawString(s)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func slug(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
