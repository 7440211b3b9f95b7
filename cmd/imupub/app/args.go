package app

import (
	"fmt"
	"strconv"
	"strings"
)

// DeviceArgs is the bus location of the sensor, taken from the command line.
type DeviceArgs struct {
	Path string // I2C devfs path, e.g. /dev/i2c-1
	Addr int    // 7-bit bus address
}

// ParseDeviceArgs validates the positional arguments: an I2C device path and
// a hexadecimal bus address in the 0x00–0xFF range. Anything else is a fatal
// startup error; no device is ever opened with malformed arguments.
func ParseDeviceArgs(args []string) (DeviceArgs, error) {
	if len(args) != 2 {
		return DeviceArgs{}, fmt.Errorf("expected device path and address arguments, got %d", len(args))
	}

	raw := strings.TrimPrefix(strings.ToLower(args[1]), "0x")
	addr, err := strconv.ParseUint(raw, 16, 8)
	if err != nil {
		return DeviceArgs{}, fmt.Errorf("'%s' is not a valid I2C address: %w", args[1], err)
	}

	return DeviceArgs{Path: args[0], Addr: int(addr)}, nil
}
