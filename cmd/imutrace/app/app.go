package app

import (
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/cengaverrover/bno055-telemetry/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	return renderSession(ctx, store, config, logger)
}

func renderSession(ctx context.Context, store *storage.SqliteStore, config *Config, logger *slog.Logger) error {
	session, err := store.Session(ctx, config.SessionID)
	if err != nil {
		return fmt.Errorf("loading session %d: %w", config.SessionID, err)
	}

	logger.Info("reading session",
		slog.Int64("sessionId", session.ID),
		slog.String("device", session.DevicePath),
		slog.String("address", fmt.Sprintf("0x%02X", session.DeviceAddr)),
		slog.String("frameId", session.FrameID),
		slog.String("started", session.StartTime.Local().Format(time.DateTime)))

	iter, err := store.ReadSamples(ctx, config.SessionID)
	if err != nil {
		return err
	}
	defer iter.Close()

	trace := NewTraceData()
	for iter.Next() {
		trace.Update(iter.Current())
	}
	if err = iter.Error(); err != nil {
		return err
	}
	if trace.Count == 0 {
		return fmt.Errorf("session %d has no samples", config.SessionID)
	}

	logger.Info("finished reading samples",
		slog.Group("stats",
			slog.Int("count", trace.Count),
			slog.String("minTimestamp", trace.TimestampStart.Local().Format(time.DateTime)),
			slog.String("maxTimestamp", trace.TimestampEnd.Local().Format(time.DateTime)),
		))

	renderer := NewTraceRenderer(RenderConfig{
		PlotWidth: config.PlotWidth,
	})

	logger.Info("rendering traces",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.Int("plotWidth", config.PlotWidth),
		))

	img, err := renderer.Render(trace)
	if err != nil {
		return fmt.Errorf("rendering traces: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	switch config.Format {
	case ImagePNG:
		err = png.Encode(out, img)

	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{
			Quality: 98,
		})
	}
	return err
}
