package bno055

import "encoding/binary"

// Register map, page 0. See the Bosch BNO055 datasheet, section 4.2.
const (
	regChipID     = 0x00
	regAccelData  = 0x08
	regGyroData   = 0x14
	regQuatData   = 0x20
	regUnitSel    = 0x3B
	regOprMode    = 0x3D
	regPwrMode    = 0x3E
	regSysTrigger = 0x3F
)

const (
	chipID = 0xA0

	oprModeConfig = 0x00
	oprModeNDOF   = 0x0C

	pwrModeNormal = 0x00

	// UNIT_SEL: acceleration in m/s², angular rate in rad/s, Celsius.
	unitSelSI = 0x02
)

// Fixed-point scale factors for the selected units (datasheet table 3-22).
const (
	accelScale = 100.0   // LSB per m/s²
	gyroScale  = 900.0   // LSB per rad/s
	quatScale  = 1 << 14 // LSB per unit quaternion component
)

// vectorFromLE decodes a 6-byte little-endian int16 register block into
// three scaled float64 components.
func vectorFromLE(buf []byte, scale float64) (x, y, z float64) {
	x = float64(int16(binary.LittleEndian.Uint16(buf[0:2]))) / scale
	y = float64(int16(binary.LittleEndian.Uint16(buf[2:4]))) / scale
	z = float64(int16(binary.LittleEndian.Uint16(buf[4:6]))) / scale
	return x, y, z
}

// quatFromLE decodes the 8-byte quaternion register block (w, x, y, z order)
// into unit-scaled components.
func quatFromLE(buf []byte) (w, x, y, z float64) {
	w = float64(int16(binary.LittleEndian.Uint16(buf[0:2]))) / quatScale
	x = float64(int16(binary.LittleEndian.Uint16(buf[2:4]))) / quatScale
	y = float64(int16(binary.LittleEndian.Uint16(buf[4:6]))) / quatScale
	z = float64(int16(binary.LittleEndian.Uint16(buf[6:8]))) / quatScale
	return w, x, y, z
}
