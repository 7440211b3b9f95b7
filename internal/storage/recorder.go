package storage

import (
	"context"
	"fmt"

	"github.com/cengaverrover/bno055-telemetry/internal/telemetry"
)

const defaultBatchSize = 100

// WithBatchSize sets the number of buffered samples written per database
// transaction.
func WithBatchSize(size int) func(*Recorder) {
	return func(r *Recorder) {
		if size > 0 {
			r.batchSize = size
		}
	}
}

// Recorder adapts the store to the telemetry.Publisher contract, buffering
// samples and flushing them in batches so the sampling loop is not held up
// by per-row transactions.
type Recorder struct {
	store     *SqliteStore
	sessionID int64

	batchSize int
	buffer    []Sample
}

// NewRecorder creates a session for the given device and returns a publisher
// that records every message into it.
func NewRecorder(ctx context.Context, store *SqliteStore, devicePath string, deviceAddr int, frameID string, options ...func(*Recorder)) (*Recorder, error) {
	sessionID, err := store.CreateSession(ctx, devicePath, deviceAddr, frameID)
	if err != nil {
		return nil, fmt.Errorf("creating recording session: %w", err)
	}

	r := Recorder{
		store:     store,
		sessionID: sessionID,
		batchSize: defaultBatchSize,
	}

	for _, option := range options {
		option(&r)
	}

	r.buffer = make([]Sample, 0, r.batchSize)
	return &r, nil
}

// Publish copies the message into the buffer, flushing a full batch to the
// database when the threshold is reached.
func (r *Recorder) Publish(ctx context.Context, m *telemetry.Message) error {
	r.buffer = append(r.buffer, Sample{
		SessionID: r.sessionID,
		Timestamp: m.Timestamp,
		AccelX:    m.LinearAcceleration.X,
		AccelY:    m.LinearAcceleration.Y,
		AccelZ:    m.LinearAcceleration.Z,
		GyroX:     m.AngularVelocity.X,
		GyroY:     m.AngularVelocity.Y,
		GyroZ:     m.AngularVelocity.Z,
		QuatW:     m.Orientation.W,
		QuatX:     m.Orientation.X,
		QuatY:     m.Orientation.Y,
		QuatZ:     m.Orientation.Z,
	})

	if len(r.buffer) < r.batchSize {
		return nil
	}
	return r.flush(ctx)
}

// Close flushes any buffered samples. The underlying store is shared and is
// closed by its owner, not here.
func (r *Recorder) Close() error {
	return r.flush(context.Background())
}

func (r *Recorder) flush(ctx context.Context) error {
	if len(r.buffer) == 0 {
		return nil
	}

	if err := r.store.StoreSamples(ctx, r.sessionID, r.buffer); err != nil {
		return fmt.Errorf("flushing %d samples: %w", len(r.buffer), err)
	}

	r.buffer = r.buffer[:0]
	return nil
}

var _ telemetry.Publisher = (*Recorder)(nil)
