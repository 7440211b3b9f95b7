// Package bno055 implements the imu.Sensor contract for a Bosch BNO055
// absolute orientation sensor attached to a Linux I2C bus.
package bno055

import (
	"fmt"
	"time"

	"golang.org/x/exp/io/i2c"

	"github.com/cengaverrover/bno055-telemetry/internal/imu"
)

// modeSwitchDelay is the settling time the chip needs after an operating
// mode change (datasheet table 3-6).
const modeSwitchDelay = 30 * time.Millisecond

// Device is a BNO055 handle over I2C devfs. It is not safe for concurrent
// use; the publisher drives it from a single goroutine.
type Device struct {
	path string
	addr int

	bus *i2c.Device
	buf [8]byte
}

// Open connects to the BNO055 at the given devfs path and bus address and
// switches it into NDOF fusion mode. The returned error wraps
// imu.ErrConnection when the device cannot be reached.
func Open(path string, addr int) (*Device, error) {
	d := Device{path: path, addr: addr}
	if err := d.open(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *Device) open() error {
	bus, err := i2c.Open(&i2c.Devfs{Dev: d.path}, d.addr)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %w", imu.ErrConnection, d.path, err)
	}

	d.bus = bus
	if err = d.configure(); err != nil {
		_ = bus.Close()
		d.bus = nil
		return err
	}
	return nil
}

// configure probes the chip identity and programs power mode, measurement
// units and the NDOF fusion operating mode.
func (d *Device) configure() error {
	if err := d.bus.ReadReg(regChipID, d.buf[:1]); err != nil {
		return fmt.Errorf("%w: reading chip id: %w", imu.ErrConnection, err)
	}
	if d.buf[0] != chipID {
		return fmt.Errorf("%w: unexpected chip id 0x%02X", imu.ErrConnection, d.buf[0])
	}

	steps := []struct {
		reg   byte
		value byte
		delay time.Duration
	}{
		{regOprMode, oprModeConfig, modeSwitchDelay},
		{regPwrMode, pwrModeNormal, 0},
		{regUnitSel, unitSelSI, 0},
		{regSysTrigger, 0x00, 0},
		{regOprMode, oprModeNDOF, modeSwitchDelay},
	}
	for _, s := range steps {
		if err := d.bus.WriteReg(s.reg, []byte{s.value}); err != nil {
			return fmt.Errorf("%w: writing register 0x%02X: %w", imu.ErrConnection, s.reg, err)
		}
		if s.delay > 0 {
			time.Sleep(s.delay)
		}
	}
	return nil
}

// LinearAcceleration reads the gravity-compensated acceleration vector.
func (d *Device) LinearAcceleration() (imu.Vector3, error) {
	if err := d.readBlock(regAccelData, 6); err != nil {
		return imu.Vector3{}, fmt.Errorf("%w: reading acceleration: %w", imu.ErrConnection, err)
	}

	x, y, z := vectorFromLE(d.buf[:6], accelScale)
	return imu.Vector3{X: x, Y: y, Z: z}, nil
}

// AngularVelocity reads the gyroscope rate vector.
func (d *Device) AngularVelocity() (imu.Vector3, error) {
	if err := d.readBlock(regGyroData, 6); err != nil {
		return imu.Vector3{}, fmt.Errorf("%w: reading angular velocity: %w", imu.ErrConnection, err)
	}

	x, y, z := vectorFromLE(d.buf[:6], gyroScale)
	return imu.Vector3{X: x, Y: y, Z: z}, nil
}

// Orientation reads the fused orientation quaternion.
func (d *Device) Orientation() (imu.Quaternion, error) {
	if err := d.readBlock(regQuatData, 8); err != nil {
		return imu.Quaternion{}, fmt.Errorf("%w: reading orientation: %w", imu.ErrConnection, err)
	}

	w, x, y, z := quatFromLE(d.buf[:8])
	return imu.Quaternion{W: w, X: x, Y: y, Z: z}, nil
}

// Reconnect drops the bus handle and performs a full reopen, including chip
// reconfiguration. It reports whether the device is usable again.
func (d *Device) Reconnect() bool {
	_ = d.Close()
	return d.open() == nil
}

// Close releases the underlying bus handle.
func (d *Device) Close() error {
	if d.bus == nil {
		return nil
	}

	err := d.bus.Close()
	d.bus = nil
	return err
}

func (d *Device) readBlock(reg byte, n int) error {
	if d.bus == nil {
		return fmt.Errorf("bus is not open")
	}
	return d.bus.ReadReg(reg, d.buf[:n])
}

var _ imu.Sensor = (*Device)(nil)
