// Package storage persists recorded telemetry sessions in a SQLite database.
// One session corresponds to one run of the publisher against one device;
// samples within a session are stored in timestamp order.
package storage

import (
	"time"
)

// Session describes one recording run.
type Session struct {
	ID         int64
	StartTime  time.Time
	DevicePath string
	DeviceAddr int
	FrameID    string
}

// Sample is a single stored measurement cycle.
type Sample struct {
	ID        int64
	SessionID int64
	Timestamp time.Time

	AccelX, AccelY, AccelZ float64
	GyroX, GyroY, GyroZ    float64
	QuatW, QuatX           float64
	QuatY, QuatZ           float64
}
