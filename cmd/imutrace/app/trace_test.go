package app

import (
	"testing"
	"time"

	"github.com/cengaverrover/bno055-telemetry/internal/storage"
)

func TestTraceDataUpdate(t *testing.T) {
	trace := NewTraceData()

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	samples := []storage.Sample{
		{Timestamp: base, AccelX: 1, AccelY: -2, AccelZ: 9.8, GyroX: 0.5, QuatW: 1},
		{Timestamp: base.Add(10 * time.Millisecond), AccelX: -3, AccelZ: 9.7, GyroX: -0.5, QuatW: 0.9, QuatX: 0.1},
		{Timestamp: base.Add(20 * time.Millisecond), AccelX: 2, AccelZ: 9.9, GyroX: 1.5, QuatW: 1},
	}
	for i := range samples {
		trace.Update(&samples[i])
	}

	if trace.Count != 3 {
		t.Errorf("Count = %d, want 3", trace.Count)
	}
	if got := trace.Duration(); got != 20*time.Millisecond {
		t.Errorf("Duration() = %v, want 20ms", got)
	}

	if trace.Acceleration.Min != -3 || trace.Acceleration.Max != 9.9 {
		t.Errorf("acceleration bounds = [%v, %v], want [-3, 9.9]", trace.Acceleration.Min, trace.Acceleration.Max)
	}
	if trace.AngularRate.Min != -0.5 || trace.AngularRate.Max != 1.5 {
		t.Errorf("angular rate bounds = [%v, %v], want [-0.5, 1.5]", trace.AngularRate.Min, trace.AngularRate.Max)
	}

	for _, p := range trace.Panels() {
		for _, s := range p.Series {
			if len(s.Values) != 3 {
				t.Errorf("panel %q series %q has %d values, want 3", p.Title, s.Name, len(s.Values))
			}
		}
	}
}

func TestPanelPad(t *testing.T) {
	flat := newPanel("flat", "u", &Series{Name: "x"})
	flat.update(5)
	flat.pad()
	if flat.Min >= flat.Max {
		t.Errorf("pad() left degenerate bounds [%v, %v]", flat.Min, flat.Max)
	}

	empty := newPanel("empty", "u", &Series{Name: "x"})
	empty.pad()
	if empty.Min >= empty.Max {
		t.Errorf("pad() on empty panel left bounds [%v, %v]", empty.Min, empty.Max)
	}
}

func TestResample(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		width  int
		want   []float64
	}{
		{"identity", []float64{1, 2, 3}, 3, []float64{1, 2, 3}},
		{"downsample averages buckets", []float64{1, 3, 5, 7}, 2, []float64{2, 6}},
		{"upsample repeats nearest", []float64{1, 4}, 4, []float64{1, 1, 4, 4}},
		{"empty input", nil, 4, nil},
		{"zero width", []float64{1}, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resample(tt.values, tt.width)
			if len(got) != len(tt.want) {
				t.Fatalf("resample() returned %d values, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("resample()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestCalculateNiceTimeStep(t *testing.T) {
	tests := []struct {
		duration time.Duration
		want     time.Duration
	}{
		{5 * time.Second, time.Second},
		{time.Minute, 10 * time.Second},
		{10 * time.Minute, 5 * time.Minute},
		{48 * time.Hour, 2 * time.Hour},
	}

	for _, tt := range tests {
		if got := calculateNiceTimeStep(tt.duration); got != tt.want {
			t.Errorf("calculateNiceTimeStep(%v) = %v, want %v", tt.duration, got, tt.want)
		}
	}
}

func TestRenderProducesImage(t *testing.T) {
	trace := NewTraceData()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 100; i++ {
		trace.Update(&storage.Sample{
			Timestamp: base.Add(time.Duration(i) * 10 * time.Millisecond),
			AccelZ:    9.8,
			GyroX:     float64(i%10) * 0.1,
			QuatW:     1,
		})
	}

	renderer := NewTraceRenderer(RenderConfig{PlotWidth: 200, Location: time.UTC})
	img, err := renderer.Render(trace)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	wantWidth := defaultLeftBorder + 200 + defaultRightBorder
	if img.Bounds().Dx() != wantWidth {
		t.Errorf("image width = %d, want %d", img.Bounds().Dx(), wantWidth)
	}
	if img.Bounds().Dy() <= 3*panelHeight {
		t.Errorf("image height = %d, want > %d", img.Bounds().Dy(), 3*panelHeight)
	}
}
