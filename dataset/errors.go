package dataset

import "errors"

// The package classifies failures into three kinds so callers can branch with
// errors.Is. Wrapped errors carry the offending subject or window id.
var (
	// ErrConfig covers bad construction inputs: a malformed subject table,
	// duplicate or negative subject ids, a non-positive sequence length,
	// unknown channels or preprocessing names, and split files referencing
	// subjects the table does not have.
	ErrConfig = errors.New("dataset: invalid configuration")

	// ErrRange is returned when a window id is outside [0, Len()).
	ErrRange = errors.New("dataset: window id out of range")

	// ErrStoreRead is returned when a window resolves correctly but its
	// backing store files cannot be opened or read, including files whose
	// length disagrees with the subject table.
	ErrStoreRead = errors.New("dataset: epoch store read failed")
)
