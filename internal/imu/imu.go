package imu

import "errors"

// ErrConnection is returned by sensor reads when the bus link to the device
// is lost. It is the only error kind callers are expected to recover from;
// adapters wrap their underlying cause with it.
var ErrConnection = errors.New("sensor connection lost")

// Vector3 is a single three-axis measurement in SI units.
type Vector3 struct {
	X float64
	Y float64
	Z float64
}

// Quaternion is an absolute orientation estimate, normalized by the sensor's
// fusion engine.
type Quaternion struct {
	W float64
	X float64
	Y float64
	Z float64
}

// Sensor is the contract for a 9-axis fusion IMU. Reads are blocking, bounded
// by the bus timeout of the underlying adapter, and may fail with
// ErrConnection when the link drops.
//
// Reconnect attempts to restore a lost link and reports the outcome; it never
// returns an error. A Sensor must not be shared between goroutines.
type Sensor interface {
	// LinearAcceleration returns gravity-compensated acceleration in m/s².
	LinearAcceleration() (Vector3, error)

	// AngularVelocity returns the rotation rate in rad/s.
	AngularVelocity() (Vector3, error)

	// Orientation returns the fused absolute orientation quaternion.
	Orientation() (Quaternion, error)

	// Reconnect tears down and reopens the bus link, returning true when the
	// device is reachable again.
	Reconnect() bool

	// Close releases the bus handle. It is safe to call on an already
	// closed sensor.
	Close() error
}
