package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cengaverrover/bno055-telemetry/internal/imu"
	"github.com/cengaverrover/bno055-telemetry/internal/telemetry"
)

const (
	// samplePeriod is the cadence of the publishing timer.
	samplePeriod = 10 * time.Millisecond

	// reconnectCooldown is how long a tick stalls after a failed reconnect
	// attempt before yielding back to the timer.
	reconnectCooldown = time.Second
)

// cycleState is the per-tick state of the sampling loop.
type cycleState int

const (
	// stateSampling is steady-state operation: read, assemble, publish.
	stateSampling cycleState = iota

	// stateRecovering means the last tick lost the sensor link; ticks attempt
	// a reconnect instead of sampling until one succeeds.
	stateRecovering
)

// nextCycleState is the pure transition function of the sampling state
// machine. readOK reports whether all three reads succeeded (ignored while
// recovering); reconnected reports the outcome of a Reconnect call made
// during the tick.
func nextCycleState(s cycleState, readOK, reconnected bool) cycleState {
	if s == stateSampling && readOK {
		return stateSampling
	}
	if reconnected {
		return stateSampling
	}
	return stateRecovering
}

// WithLogger sets the logger for the node
func WithLogger(logger *slog.Logger) func(*Node) {
	return func(n *Node) {
		n.logger = logger.With(slog.String("component", "node"))
	}
}

// NodeConfig carries everything a Node needs to be constructed.
type NodeConfig struct {
	FrameID string

	// OpenSensor opens the sensor handle. Construction fails when it does.
	OpenSensor func() (imu.Sensor, error)

	// Sink receives one message per successful sampling cycle.
	Sink telemetry.Publisher
}

// Node owns the sensor handle, the periodic timer and the reused message
// buffer. It is driven from a single goroutine by Run.
type Node struct {
	sensor imu.Sensor
	sink   telemetry.Publisher
	ticker *time.Ticker
	msg    *telemetry.Message

	state    cycleState
	cooldown time.Duration
	now      func() time.Time

	logger *slog.Logger
}

// NewNode opens the sensor and, on success, arms the sampling timer. The
// covariance matrices and frame id are fixed here and never change for the
// node's lifetime. On failure no timer exists and there is nothing to clean
// up beyond discarding the error.
func NewNode(config NodeConfig, options ...func(*Node)) (*Node, error) {
	sensor, err := config.OpenSensor()
	if err != nil {
		return nil, fmt.Errorf("opening sensor: %w", err)
	}

	n := Node{
		sensor:   sensor,
		sink:     config.Sink,
		msg:      telemetry.NewMessage(config.FrameID),
		state:    stateSampling,
		cooldown: reconnectCooldown,
		now:      time.Now,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&n)
	}

	n.ticker = time.NewTicker(samplePeriod)
	return &n, nil
}

// Run blocks, driving one sampling cycle per timer tick until the context is
// cancelled. Cycles never overlap.
func (n *Node) Run(ctx context.Context) error {
	defer n.ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-n.ticker.C:
			n.cycle(ctx)
		}
	}
}

// Close stops the timer and releases the sensor handle.
func (n *Node) Close() error {
	n.ticker.Stop()
	return n.sensor.Close()
}

// cycle runs one timer tick. A tick either publishes exactly one message or
// publishes nothing; a message never mixes reads taken before and after a
// connection loss.
func (n *Node) cycle(ctx context.Context) {
	if n.state == stateRecovering {
		n.reconnect(ctx)
		return
	}

	if err := n.sample(); err != nil {
		n.logger.Error(fmt.Sprintf("sensor connection is lost, trying to reconnect: %s", err.Error()))
		n.state = nextCycleState(n.state, false, false)
		n.reconnect(ctx)
		return
	}

	if err := n.sink.Publish(ctx, n.msg); err != nil {
		// A sink outage is not a sensor fault: keep sampling.
		n.logger.Warn(fmt.Sprintf("publishing telemetry: %s", err.Error()))
	}
}

// sample performs the three reads and assembles the message. The reads are
// all-or-nothing: the first failure aborts the cycle before the message is
// touched.
func (n *Node) sample() error {
	accel, err := n.sensor.LinearAcceleration()
	if err != nil {
		return err
	}

	gyro, err := n.sensor.AngularVelocity()
	if err != nil {
		return err
	}

	quat, err := n.sensor.Orientation()
	if err != nil {
		return err
	}

	telemetry.Assemble(n.msg, n.now(), accel, gyro, quat)
	return nil
}

// reconnect makes one recovery attempt. On failure the tick is held back for
// the cooldown interval (or until shutdown) so a dead bus is not hammered at
// the sampling rate; retries continue indefinitely on subsequent ticks.
func (n *Node) reconnect(ctx context.Context) {
	restored := n.sensor.Reconnect()
	n.state = nextCycleState(stateRecovering, false, restored)

	if restored {
		n.logger.Info("sensor connection restored")
		return
	}
	n.logger.Debug("sensor reconnect failed, retrying after cooldown")

	timer := time.NewTimer(n.cooldown)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
