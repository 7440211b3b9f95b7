package app

import (
	"image/color"
	"math"
	"time"

	"github.com/cengaverrover/bno055-telemetry/internal/storage"
)

const defaultPlotWidth = 1200

var (
	colorX = color.RGBA{R: 0xD3, G: 0x2F, B: 0x2F, A: 0xFF}
	colorY = color.RGBA{R: 0x38, G: 0x8E, B: 0x3C, A: 0xFF}
	colorZ = color.RGBA{R: 0x19, G: 0x76, B: 0xD2, A: 0xFF}
	colorW = color.RGBA{R: 0x42, G: 0x42, B: 0x42, A: 0xFF}
)

// Series is one measurement channel's full value history.
type Series struct {
	Name   string
	Color  color.Color
	Values []float64
}

// Panel groups the channels that share a vertical axis.
type Panel struct {
	Title string
	Unit  string

	Series []*Series

	Min, Max float64
}

// Update folds a value into the panel's bounds.
func (p *Panel) update(v float64) {
	p.Min = math.Min(p.Min, v)
	p.Max = math.Max(p.Max, v)
}

// pad widens degenerate bounds so a flat trace still renders mid-panel.
func (p *Panel) pad() {
	if p.Min > p.Max { // no samples at all
		p.Min, p.Max = -1, 1
		return
	}
	if p.Max-p.Min < 1e-9 {
		p.Min--
		p.Max++
	}
}

// TraceData accumulates one session's samples grouped into the three
// telemetry panels.
type TraceData struct {
	Acceleration *Panel
	AngularRate  *Panel
	Orientation  *Panel

	TimestampStart, TimestampEnd time.Time
	Count                        int
}

func newPanel(title, unit string, series ...*Series) *Panel {
	return &Panel{
		Title:  title,
		Unit:   unit,
		Series: series,
		Min:    math.MaxFloat64,
		Max:    -math.MaxFloat64,
	}
}

func NewTraceData() *TraceData {
	return &TraceData{
		Acceleration: newPanel("Linear acceleration", "m/s²",
			&Series{Name: "x", Color: colorX},
			&Series{Name: "y", Color: colorY},
			&Series{Name: "z", Color: colorZ}),
		AngularRate: newPanel("Angular velocity", "rad/s",
			&Series{Name: "x", Color: colorX},
			&Series{Name: "y", Color: colorY},
			&Series{Name: "z", Color: colorZ}),
		Orientation: newPanel("Orientation", "quat",
			&Series{Name: "w", Color: colorW},
			&Series{Name: "x", Color: colorX},
			&Series{Name: "y", Color: colorY},
			&Series{Name: "z", Color: colorZ}),
	}
}

// Panels returns the panels in rendering order, top to bottom.
func (t *TraceData) Panels() []*Panel {
	return []*Panel{t.Acceleration, t.AngularRate, t.Orientation}
}

// Update appends one stored sample to every series and extends the bounds
// and the time range.
func (t *TraceData) Update(s *storage.Sample) {
	appendValues(t.Acceleration, s.AccelX, s.AccelY, s.AccelZ)
	appendValues(t.AngularRate, s.GyroX, s.GyroY, s.GyroZ)
	appendValues(t.Orientation, s.QuatW, s.QuatX, s.QuatY, s.QuatZ)

	if t.TimestampStart.IsZero() || t.TimestampStart.After(s.Timestamp) {
		t.TimestampStart = s.Timestamp
	}
	if t.TimestampEnd.IsZero() || t.TimestampEnd.Before(s.Timestamp) {
		t.TimestampEnd = s.Timestamp
	}
	t.Count++
}

func appendValues(p *Panel, values ...float64) {
	for i, v := range values {
		p.Series[i].Values = append(p.Series[i].Values, v)
		p.update(v)
	}
}

// Duration is the wall time the session covers.
func (t *TraceData) Duration() time.Duration {
	if t.TimestampStart.IsZero() {
		return 0
	}
	return t.TimestampEnd.Sub(t.TimestampStart)
}

// resample shrinks (or stretches) a series to the given width. Downsampling
// averages each bucket so short spikes still influence the trace; upsampling
// repeats the nearest sample.
func resample(values []float64, width int) []float64 {
	if width <= 0 || len(values) == 0 {
		return nil
	}
	if len(values) == width {
		return values
	}

	out := make([]float64, width)
	ratio := float64(len(values)) / float64(width)

	for i := 0; i < width; i++ {
		lo := int(float64(i) * ratio)
		hi := int(float64(i+1) * ratio)
		if hi <= lo {
			hi = lo + 1
		}
		if hi > len(values) {
			hi = len(values)
		}

		var sum float64
		for _, v := range values[lo:hi] {
			sum += v
		}
		out[i] = sum / float64(hi-lo)
	}
	return out
}
