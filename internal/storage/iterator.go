package storage

import (
	"database/sql"
)

// SampleIterator provides row-at-a-time iteration over a session's samples,
// keeping memory flat for long recordings.
type SampleIterator struct {
	rows    *sql.Rows
	current Sample
	err     error
}

// Next advances to the next sample, returning false at the end of the set or
// on error.
func (it *SampleIterator) Next() bool {
	if it.err != nil || !it.rows.Next() {
		return false
	}

	sm := &it.current
	if err := it.rows.Scan(&sm.ID, &sm.SessionID, &sm.Timestamp,
		&sm.AccelX, &sm.AccelY, &sm.AccelZ,
		&sm.GyroX, &sm.GyroY, &sm.GyroZ,
		&sm.QuatW, &sm.QuatX, &sm.QuatY, &sm.QuatZ); err != nil {
		it.err = err
		return false
	}
	return true
}

// Current returns the sample the iterator is positioned on. Valid only after
// a successful Next.
func (it *SampleIterator) Current() *Sample {
	return &it.current
}

// Error returns the first error encountered during iteration.
func (it *SampleIterator) Error() error {
	if it.err != nil {
		return it.err
	}
	return it.rows.Err()
}

// Close releases the database resources.
func (it *SampleIterator) Close() error {
	return it.rows.Close()
}
