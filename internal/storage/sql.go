package storage

import (
	_ "embed"
)

const (
	insertSessionSQL = `
INSERT INTO sessions (start_time,
                      device_path,
                      device_addr,
                      frame_id)
VALUES (?, ?, ?, ?)`

	selectSessionSQL = `
SELECT id,
       start_time,
       device_path,
       device_addr,
       frame_id
FROM sessions
WHERE id = ?`

	selectSessionsSQL = `
SELECT id,
       start_time,
       device_path,
       device_addr,
       frame_id
FROM sessions
ORDER BY start_time`

	insertSampleSQL = `
INSERT INTO samples (session_id,
                     timestamp,
                     accel_x, accel_y, accel_z,
                     gyro_x, gyro_y, gyro_z,
                     quat_w, quat_x, quat_y, quat_z)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectSamplesSQL = `
SELECT id,
       session_id,
       timestamp,
       accel_x, accel_y, accel_z,
       gyro_x, gyro_y, gyro_z,
       quat_w, quat_x, quat_y, quat_z
FROM samples
WHERE session_id = ?
ORDER BY timestamp`
)

//go:embed schema.sql
var schemaSQL string
