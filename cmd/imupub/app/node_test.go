package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/cengaverrover/bno055-telemetry/internal/imu"
	"github.com/cengaverrover/bno055-telemetry/internal/telemetry"
)

// fakeSensor scripts read and reconnect outcomes per tick. failingTicks maps
// tick numbers (starting at 1) to the 1-based read index at which the link
// drops during that tick; reconnectResults is consumed one entry per
// Reconnect call, defaulting to false when exhausted.
type fakeSensor struct {
	accel imu.Vector3
	gyro  imu.Vector3
	quat  imu.Quaternion

	tick             int
	readIndex        int
	failingTicks     map[int]int
	reconnectResults []bool
	reconnectCalls   int
	closed           bool
}

const (
	failOnAccel = 1
	failOnGyro  = 2
	failOnQuat  = 3
)

func newFakeSensor() *fakeSensor {
	return &fakeSensor{
		accel:        imu.Vector3{X: 0.1, Y: -0.2, Z: 9.81},
		gyro:         imu.Vector3{X: 0.01, Y: 0.02, Z: -0.03},
		quat:         imu.Quaternion{W: 1},
		failingTicks: make(map[int]int),
	}
}

func (s *fakeSensor) read() error {
	if from := s.failingTicks[s.tick]; from != 0 && s.readIndex >= from {
		return fmt.Errorf("%w: bus timeout", imu.ErrConnection)
	}
	return nil
}

func (s *fakeSensor) LinearAcceleration() (imu.Vector3, error) {
	s.tick++ // first read of a cycle advances the tick counter
	s.readIndex = failOnAccel
	if err := s.read(); err != nil {
		return imu.Vector3{}, err
	}
	return s.accel, nil
}

func (s *fakeSensor) AngularVelocity() (imu.Vector3, error) {
	s.readIndex = failOnGyro
	if err := s.read(); err != nil {
		return imu.Vector3{}, err
	}
	return s.gyro, nil
}

func (s *fakeSensor) Orientation() (imu.Quaternion, error) {
	s.readIndex = failOnQuat
	if err := s.read(); err != nil {
		return imu.Quaternion{}, err
	}
	return s.quat, nil
}

func (s *fakeSensor) Reconnect() bool {
	s.reconnectCalls++
	if len(s.reconnectResults) == 0 {
		return false
	}

	result := s.reconnectResults[0]
	s.reconnectResults = s.reconnectResults[1:]
	return result
}

func (s *fakeSensor) Close() error {
	s.closed = true
	return nil
}

// captureSink records copies of every published message.
type captureSink struct {
	messages []telemetry.Message
	err      error
}

func (c *captureSink) Publish(_ context.Context, m *telemetry.Message) error {
	c.messages = append(c.messages, *m)
	return c.err
}

func (c *captureSink) Close() error { return nil }

func newTestNode(t *testing.T, sensor imu.Sensor, sink telemetry.Publisher) *Node {
	t.Helper()

	node, err := NewNode(NodeConfig{
		FrameID:    "test_link",
		OpenSensor: func() (imu.Sensor, error) { return sensor, nil },
		Sink:       sink,
	})
	if err != nil {
		t.Fatalf("NewNode() error = %v", err)
	}
	t.Cleanup(func() { node.Close() })

	node.cooldown = 0 // no real sleeps in tests
	return node
}

func TestNextCycleState(t *testing.T) {
	tests := []struct {
		name        string
		state       cycleState
		readOK      bool
		reconnected bool
		want        cycleState
	}{
		{"sampling stays on success", stateSampling, true, false, stateSampling},
		{"sampling drops to recovering on failed read and reconnect", stateSampling, false, false, stateRecovering},
		{"sampling resumes when reconnect succeeds same tick", stateSampling, false, true, stateSampling},
		{"recovering stays while reconnect fails", stateRecovering, false, false, stateRecovering},
		{"recovering resumes on successful reconnect", stateRecovering, false, true, stateSampling},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextCycleState(tt.state, tt.readOK, tt.reconnected); got != tt.want {
				t.Errorf("nextCycleState(%v, %v, %v) = %v, want %v", tt.state, tt.readOK, tt.reconnected, got, tt.want)
			}
		})
	}
}

func TestCyclePublishesSensorReadings(t *testing.T) {
	sensor := newFakeSensor()
	sink := &captureSink{}
	node := newTestNode(t, sensor, sink)

	stamp := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	node.now = func() time.Time { return stamp }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		node.cycle(ctx)
	}

	if len(sink.messages) != 3 {
		t.Fatalf("published %d messages, want 3", len(sink.messages))
	}

	m := sink.messages[0]
	if m.FrameID != "test_link" {
		t.Errorf("FrameID = %q, want %q", m.FrameID, "test_link")
	}
	if !m.Timestamp.Equal(stamp) {
		t.Errorf("Timestamp = %v, want %v", m.Timestamp, stamp)
	}
	if m.LinearAcceleration != sensor.accel {
		t.Errorf("LinearAcceleration = %+v, want %+v", m.LinearAcceleration, sensor.accel)
	}
	if m.AngularVelocity != sensor.gyro {
		t.Errorf("AngularVelocity = %+v, want %+v", m.AngularVelocity, sensor.gyro)
	}
	if m.Orientation != sensor.quat {
		t.Errorf("Orientation = %+v, want %+v", m.Orientation, sensor.quat)
	}

	if sensor.reconnectCalls != 0 {
		t.Errorf("Reconnect called %d times during healthy sampling, want 0", sensor.reconnectCalls)
	}
}

func TestCycleRecoversAfterConnectionLoss(t *testing.T) {
	sensor := newFakeSensor()
	sensor.failingTicks[2] = failOnAccel          // tick 2 loses the link
	sensor.reconnectResults = []bool{false, true} // tick 2 fails to restore, tick 3 succeeds

	sink := &captureSink{}
	node := newTestNode(t, sensor, sink)

	ctx := context.Background()

	node.cycle(ctx) // tick 1: healthy
	if len(sink.messages) != 1 {
		t.Fatalf("after tick 1: published %d, want 1", len(sink.messages))
	}

	node.cycle(ctx) // tick 2: read fails, reconnect fails
	if len(sink.messages) != 1 {
		t.Errorf("after tick 2: published %d, want 1 (failed tick must not publish)", len(sink.messages))
	}
	if sensor.reconnectCalls != 1 {
		t.Errorf("after tick 2: %d reconnect calls, want 1", sensor.reconnectCalls)
	}
	if node.state != stateRecovering {
		t.Errorf("after tick 2: state = %v, want recovering", node.state)
	}

	node.cycle(ctx) // tick 3: recovering, reconnect succeeds, still no publish
	if len(sink.messages) != 1 {
		t.Errorf("after tick 3: published %d, want 1 (recovery tick must not publish)", len(sink.messages))
	}
	if sensor.reconnectCalls != 2 {
		t.Errorf("after tick 3: %d reconnect calls, want 2", sensor.reconnectCalls)
	}
	if node.state != stateSampling {
		t.Errorf("after tick 3: state = %v, want sampling", node.state)
	}

	node.cycle(ctx) // tick 4: sampling resumed
	if len(sink.messages) != 2 {
		t.Errorf("after tick 4: published %d, want 2 (sampling resumes on first tick after reconnect)", len(sink.messages))
	}
	if sensor.reconnectCalls != 2 {
		t.Errorf("after tick 4: %d reconnect calls, want 2 (none while sampling)", sensor.reconnectCalls)
	}
}

func TestCycleReconnectSameTickResumesNext(t *testing.T) {
	sensor := newFakeSensor()
	sensor.failingTicks[1] = failOnAccel
	sensor.reconnectResults = []bool{true} // restored within the failing tick

	sink := &captureSink{}
	node := newTestNode(t, sensor, sink)

	ctx := context.Background()

	node.cycle(ctx) // tick 1: fails, reconnects immediately
	if len(sink.messages) != 0 {
		t.Errorf("after tick 1: published %d, want 0", len(sink.messages))
	}
	if node.state != stateSampling {
		t.Errorf("after tick 1: state = %v, want sampling", node.state)
	}

	node.cycle(ctx) // tick 2: normal sampling
	if len(sink.messages) != 1 {
		t.Errorf("after tick 2: published %d, want 1", len(sink.messages))
	}
}

func TestCycleNeverMixesPrePostFailureReads(t *testing.T) {
	sensor := newFakeSensor()
	sink := &captureSink{}
	node := newTestNode(t, sensor, sink)

	ctx := context.Background()
	node.cycle(ctx) // healthy baseline

	// Fail mid-cycle: acceleration succeeds, angular velocity loses the link.
	sensor.failingTicks[2] = failOnGyro
	sensor.accel = imu.Vector3{X: 99} // would betray a partial message

	node.cycle(ctx)

	if len(sink.messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(sink.messages))
	}
	if sink.messages[0].LinearAcceleration.X == 99 {
		t.Error("published message contains a read from the failed cycle")
	}
}

func TestCovarianceInvariantAcrossCycles(t *testing.T) {
	sensor := newFakeSensor()
	sensor.failingTicks[5] = failOnQuat // include a failure in the mix

	sink := &captureSink{}
	node := newTestNode(t, sensor, sink)

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		node.cycle(ctx)
	}

	wantAccel := telemetry.DiagonalCovariance(telemetry.AccelVariance, telemetry.AccelVariance, telemetry.AccelVariance)
	wantGyro := telemetry.DiagonalCovariance(telemetry.AngularRateVariance, telemetry.AngularRateVariance, telemetry.AngularRateVariance)
	wantQuat := telemetry.DiagonalCovariance(telemetry.OrientationVariance, telemetry.OrientationVariance, telemetry.OrientationVariance)

	for i, m := range sink.messages {
		if m.LinearAccelerationCovariance != wantAccel ||
			m.AngularVelocityCovariance != wantGyro ||
			m.OrientationCovariance != wantQuat {
			t.Fatalf("message %d: covariance matrices drifted from construction-time values", i)
		}
	}
}

func TestCycleSinkErrorDoesNotStopSampling(t *testing.T) {
	sensor := newFakeSensor()
	sink := &captureSink{err: errors.New("broker down")}
	node := newTestNode(t, sensor, sink)

	ctx := context.Background()
	node.cycle(ctx)
	node.cycle(ctx)

	if node.state != stateSampling {
		t.Errorf("state = %v, want sampling (sink errors are not sensor faults)", node.state)
	}
	if sensor.reconnectCalls != 0 {
		t.Errorf("Reconnect called %d times on sink failure, want 0", sensor.reconnectCalls)
	}
}

func TestCycleCooldownDelaysAfterFailedReconnect(t *testing.T) {
	const cooldown = 50 * time.Millisecond

	sensor := newFakeSensor()
	sensor.failingTicks[1] = failOnAccel // reconnect defaults to false

	node := newTestNode(t, sensor, &captureSink{})
	node.cooldown = cooldown

	start := time.Now()
	node.cycle(context.Background())

	if elapsed := time.Since(start); elapsed < cooldown {
		t.Errorf("cycle() returned after %s, want at least the %s cooldown", elapsed, cooldown)
	}
	if node.state != stateRecovering {
		t.Errorf("state = %v, want recovering", node.state)
	}
}

func TestCycleCooldownHonorsCancelledContext(t *testing.T) {
	sensor := newFakeSensor()
	sensor.failingTicks[1] = failOnAccel

	node := newTestNode(t, sensor, &captureSink{})
	node.cooldown = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	node.cycle(ctx)

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("cycle() blocked for %s with a cancelled context", elapsed)
	}
	if sensor.reconnectCalls != 1 {
		t.Errorf("Reconnect called %d times, want 1", sensor.reconnectCalls)
	}
}

func TestFailedRecoveryAttemptsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	sensor := newFakeSensor()
	sensor.failingTicks[1] = failOnAccel

	node := newTestNode(t, sensor, &captureSink{})
	WithLogger(logger)(node)

	ctx := context.Background()
	node.cycle(ctx) // failing tick
	node.cycle(ctx) // recovering tick, reconnect fails again

	if got := strings.Count(buf.String(), "reconnect failed"); got != 2 {
		t.Errorf("logged %d failed reconnect attempts, want 2:\n%s", got, buf.String())
	}
}

func TestNodeCloseReleasesSensor(t *testing.T) {
	sensor := newFakeSensor()
	node := newTestNode(t, sensor, &captureSink{})

	if err := node.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !sensor.closed {
		t.Error("sensor was not closed")
	}
}
