package domain

import (
	"errors"
	"fmt"
)

// ErrPatientNotFound is returned when a patient identifier does not
// resolve to an existing patient. Raised before any side effect.
var ErrPatientNotFound = errors.New("patient not found")

// DataSourceError wraps a read failure from one of the clinical domains
// during aggregation. The calculation aborts with no partial record; the
// engine never retries on its own.
type DataSourceError struct {
	Domain string // "visits", "prescriptions", "adherence", "art", "labs", "appointments"
	Err    error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("data source %s: %v", e.Domain, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// PersistenceError wraps a failure of the atomic score write. No record
// is considered created; the caller may retry the entire calculation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
