// Package telemetry defines the outbound IMU telemetry message and the sinks
// it is published to.
package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/cengaverrover/bno055-telemetry/internal/imu"
)

// Covariance diagonals for the BNO055 in fusion mode, identical across the
// three axes of each measurement.
const (
	AccelVariance       = 67.53e-6 // (m/s²)²
	AngularRateVariance = 3.05e-6  // (rad/s)²
	OrientationVariance = 15.9e-3  // rad²
)

// DefaultFrameID is the coordinate frame the measurements are expressed in
// when the configuration does not override it.
const DefaultFrameID = "imu_link"

// Message is one sampling cycle's worth of IMU telemetry. The covariance
// matrices are row-major 3×3 and fixed for the lifetime of the publisher;
// the remaining fields are refreshed on every cycle.
type Message struct {
	Timestamp time.Time `json:"timestamp"`
	FrameID   string    `json:"frameId"`

	LinearAcceleration imu.Vector3    `json:"linearAcceleration"` // m/s²
	AngularVelocity    imu.Vector3    `json:"angularVelocity"`    // rad/s
	Orientation        imu.Quaternion `json:"orientation"`

	LinearAccelerationCovariance [9]float64 `json:"linearAccelerationCovariance"`
	AngularVelocityCovariance    [9]float64 `json:"angularVelocityCovariance"`
	OrientationCovariance        [9]float64 `json:"orientationCovariance"`
}

// DiagonalCovariance builds a row-major 3×3 matrix with the given per-axis
// variances on the diagonal and zeros elsewhere.
func DiagonalCovariance(x, y, z float64) [9]float64 {
	var m [9]float64
	m[0], m[4], m[8] = x, y, z
	return m
}

// NewMessage returns a message with the frame id and the fixed covariance
// matrices populated. The publisher reuses the value across cycles, filling
// the per-sample fields through Assemble.
func NewMessage(frameID string) *Message {
	return &Message{
		FrameID:                      frameID,
		LinearAccelerationCovariance: DiagonalCovariance(AccelVariance, AccelVariance, AccelVariance),
		AngularVelocityCovariance:    DiagonalCovariance(AngularRateVariance, AngularRateVariance, AngularRateVariance),
		OrientationCovariance:        DiagonalCovariance(OrientationVariance, OrientationVariance, OrientationVariance),
	}
}

// Assemble writes one cycle's measurements into the message, leaving the
// frame id and covariance matrices untouched.
func Assemble(m *Message, timestamp time.Time, accel, gyro imu.Vector3, quat imu.Quaternion) {
	m.Timestamp = timestamp
	m.LinearAcceleration = accel
	m.AngularVelocity = gyro
	m.Orientation = quat
}

// Publisher is a sink for assembled telemetry messages. Implementations must
// consume or copy the message synchronously: the caller reuses the backing
// value on the next cycle.
type Publisher interface {
	Publish(ctx context.Context, m *Message) error
	Close() error
}

// MultiPublisher fans a message out to every sink in order. A failing sink
// does not stop delivery to the remaining ones; errors are joined.
type MultiPublisher []Publisher

func (mp MultiPublisher) Publish(ctx context.Context, m *Message) error {
	var errs []error
	for _, p := range mp {
		if err := p.Publish(ctx, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (mp MultiPublisher) Close() error {
	var errs []error
	for _, p := range mp {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
