package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi      = 120.0
	fontSize = 10.0

	panelHeight  = 160
	panelGap     = 30
	tickMarkSize = 5

	// Default border sizes in pixels
	defaultTopBorder    = 30
	defaultLeftBorder   = 80
	defaultBottomBorder = 50
	defaultRightBorder  = 30

	defaultTimeFormat     = "15:04:05"
	defaultDatetimeFormat = time.DateTime
)

var (
	panelBackground = color.RGBA{R: 0xFA, G: 0xFA, B: 0xFA, A: 0xFF}
	gridColor       = color.RGBA{R: 0xE0, G: 0xE0, B: 0xE0, A: 0xFF}
)

// BorderConfig defines the sizes of white space around the trace panels
type BorderConfig struct {
	Top    int
	Left   int // Space for value scale labels
	Bottom int // Space for the time scale and information bar
	Right  int
}

// RenderConfig holds configuration options for trace visualization
type RenderConfig struct {
	TimeFormat     string
	DatetimeFormat string
	Location       *time.Location

	FontSize  float64
	PlotWidth int

	Borders BorderConfig
}

// TraceRenderer draws a recorded session as stacked time-series panels.
type TraceRenderer struct {
	config RenderConfig
}

// NewTraceRenderer creates a renderer, filling zero config values with
// defaults.
func NewTraceRenderer(config RenderConfig) *TraceRenderer {
	if config.TimeFormat == "" {
		config.TimeFormat = defaultTimeFormat
	}
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.PlotWidth == 0 {
		config.PlotWidth = defaultPlotWidth
	}
	if config.Borders.Top == 0 {
		config.Borders.Top = defaultTopBorder
	}
	if config.Borders.Left == 0 {
		config.Borders.Left = defaultLeftBorder
	}
	if config.Borders.Bottom == 0 {
		config.Borders.Bottom = defaultBottomBorder
	}
	if config.Borders.Right == 0 {
		config.Borders.Right = defaultRightBorder
	}

	return &TraceRenderer{config: config}
}

// Render creates an annotated image of the session's trace data.
func (r *TraceRenderer) Render(trace *TraceData) (*image.RGBA, error) {
	panels := trace.Panels()
	for _, p := range panels {
		p.pad()
	}

	width := r.config.Borders.Left + r.config.PlotWidth + r.config.Borders.Right
	height := r.config.Borders.Top + len(panels)*panelHeight + (len(panels)-1)*panelGap + r.config.Borders.Bottom
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	ann, err := newAnnotator(annotatorConfig{
		TimeFormat:     r.config.TimeFormat,
		DatetimeFormat: r.config.DatetimeFormat,
		Location:       r.config.Location,
		FontSize:       r.config.FontSize,
		Borders:        r.config.Borders,
	})
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	ann.setTarget(img)

	for i, panel := range panels {
		area := image.Rect(
			r.config.Borders.Left,
			r.config.Borders.Top+i*(panelHeight+panelGap),
			r.config.Borders.Left+r.config.PlotWidth,
			r.config.Borders.Top+i*(panelHeight+panelGap)+panelHeight,
		)

		r.renderPanel(img, area, panel)
		if err = ann.annotatePanel(img, area, panel); err != nil {
			return nil, fmt.Errorf("annotating panel %q: %w", panel.Title, err)
		}
	}

	bottom := image.Rect(r.config.Borders.Left, height-r.config.Borders.Bottom, width, height)
	if err = ann.annotateTimeScale(img, bottom, trace); err != nil {
		return nil, fmt.Errorf("drawing time scale: %w", err)
	}
	if err = ann.annotateInfoBar(img, trace); err != nil {
		return nil, fmt.Errorf("drawing info bar: %w", err)
	}

	return img, nil
}

// renderPanel fills the panel background and draws every series as a
// connected line trace.
func (r *TraceRenderer) renderPanel(img *image.RGBA, area image.Rectangle, panel *Panel) {
	draw.Draw(img, area, &image.Uniform{C: panelBackground}, image.Point{}, draw.Src)

	// Zero line, when zero is inside the bounds.
	if panel.Min < 0 && panel.Max > 0 {
		zeroY := valueToY(0, panel, area)
		for x := area.Min.X; x < area.Max.X; x++ {
			img.Set(x, zeroY, gridColor)
		}
	}

	for _, series := range panel.Series {
		values := resample(series.Values, area.Dx())

		prevY := -1
		for x, v := range values {
			y := valueToY(v, panel, area)
			if prevY < 0 {
				prevY = y
			}
			drawVerticalRun(img, area.Min.X+x, prevY, y, series.Color)
			prevY = y
		}
	}
}

// valueToY maps a measurement to a pixel row inside the panel area.
func valueToY(v float64, panel *Panel, area image.Rectangle) int {
	ratio := (v - panel.Min) / (panel.Max - panel.Min)
	y := float64(area.Max.Y-1) - ratio*float64(area.Dy()-1)
	return int(math.Round(y))
}

// drawVerticalRun connects two consecutive trace points with a vertical
// pixel run so steep transitions stay visible.
func drawVerticalRun(img *image.RGBA, x, fromY, toY int, c color.Color) {
	if fromY > toY {
		fromY, toY = toY, fromY
	}
	for y := fromY; y <= toY; y++ {
		img.Set(x, y, c)
	}
}

// Internal annotator implementation

type annotatorConfig struct {
	TimeFormat     string
	DatetimeFormat string
	Location       *time.Location
	FontSize       float64
	Borders        BorderConfig
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) setTarget(img *image.RGBA) {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)
}

// annotatePanel draws the title and the min/max value labels on the left.
func (a *annotator) annotatePanel(img *image.RGBA, area image.Rectangle, panel *Panel) error {
	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	title := fmt.Sprintf("%s (%s)", panel.Title, panel.Unit)
	pt := freetype.Pt(area.Min.X, area.Min.Y-metrics.Descent.Round()-2)
	if _, err := a.context.DrawString(title, pt); err != nil {
		return fmt.Errorf("drawing title: %w", err)
	}

	labels := []struct {
		value float64
		y     int
	}{
		{panel.Max, area.Min.Y + fontHeight},
		{panel.Min, area.Max.Y - metrics.Descent.Round()},
	}
	for _, l := range labels {
		label := fmt.Sprintf("%.3g", l.value)
		width := font.MeasureString(a.fontFace, label)

		pt = freetype.Pt(area.Min.X-width.Round()-tickMarkSize-2, l.y)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing value label: %w", err)
		}
	}

	for y := area.Min.Y; y < area.Max.Y; y += area.Dy() - 1 {
		for x := area.Min.X - tickMarkSize; x < area.Min.X; x++ {
			img.Set(x, y, color.Black)
		}
	}
	return nil
}

// annotateTimeScale draws tick marks and clock labels along the bottom edge.
func (a *annotator) annotateTimeScale(img *image.RGBA, area image.Rectangle, trace *TraceData) error {
	duration := trace.Duration()
	if duration <= 0 {
		return nil
	}
	step := calculateNiceTimeStep(duration)

	metrics := a.fontFace.Metrics()
	textY := area.Min.Y + tickMarkSize + (metrics.Ascent + metrics.Descent).Round()

	plotWidth := area.Dx() - a.config.Borders.Right
	for elapsed := time.Duration(0); elapsed <= duration; elapsed += step {
		xRatio := float64(elapsed) / float64(duration)
		x := area.Min.X + int(xRatio*float64(plotWidth))

		for y := area.Min.Y; y < area.Min.Y+tickMarkSize; y++ {
			img.Set(x, y, color.Black)
		}

		label := trace.TimestampStart.Add(elapsed).In(a.config.Location).Format(a.config.TimeFormat)
		width := font.MeasureString(a.fontFace, label)

		pt := freetype.Pt(x-(width.Round()/2), textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}
	return nil
}

// annotateInfoBar draws the session summary along the bottom of the image.
func (a *annotator) annotateInfoBar(img *image.RGBA, trace *TraceData) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Samples: %s", humanize.Comma(int64(trace.Count))))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("Time: %s - %s",
		trace.TimestampStart.In(a.config.Location).Format(a.config.DatetimeFormat),
		trace.TimestampEnd.In(a.config.Location).Format(a.config.DatetimeFormat)))

	if d := trace.Duration(); d > 0 {
		rate := float64(trace.Count) / d.Seconds()
		sb.WriteString("; ")
		sb.WriteString(fmt.Sprintf("Rate: %s", humanize.SIWithDigits(rate, 1, "Hz")))
	}

	metrics := a.fontFace.Metrics()
	textY := img.Bounds().Max.Y - metrics.Descent.Round() - 4

	pt := freetype.Pt(a.config.Borders.Left, textY)
	if _, err := a.context.DrawString(sb.String(), pt); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}
	return nil
}

// calculateNiceTimeStep picks a label interval that yields roughly eight
// labels across the recording.
func calculateNiceTimeStep(duration time.Duration) time.Duration {
	roughStep := duration.Seconds() / 8

	niceIntervals := []float64{
		1,    // 1 second
		5,    // 5 seconds
		10,   // 10 seconds
		30,   // 30 seconds
		60,   // 1 minute
		300,  // 5 minutes
		600,  // 10 minutes
		1800, // 30 minutes
		3600, // 1 hour
	}

	for _, interval := range niceIntervals {
		if roughStep <= interval {
			return time.Duration(interval) * time.Second
		}
	}

	return 2 * time.Hour // Default for very long recordings
}
