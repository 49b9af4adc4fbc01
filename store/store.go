// Package store reads and writes the flat binary epoch files that back a
// sleep-staging dataset on disk.
//
// Every subject/channel pair is stored as one file of fixed-size records, one
// record per 30-second epoch, with no header or padding:
//
//	<channel>_<subject>.dat  float32 little-endian, EpochElems(shape) values per epoch
//	y_<subject>.dat          int16 little-endian, one stage label per epoch
//
// Record offsets are plain multiplication, so random access is O(1) and a
// single open handle can serve concurrent reads through ReadAt.
package store

import (
	"errors"
	"fmt"
	"path/filepath"
)

var (
	// ErrSizeMismatch is returned by OpenSignal and OpenLabels when the file
	// length does not correspond to the expected number of epochs.
	ErrSizeMismatch = errors.New("store: file size does not match epoch count")

	// ErrBounds is returned when a read addresses epochs outside the file.
	ErrBounds = errors.New("store: epoch range out of bounds")
)

const (
	signalSampleBytes = 4 // float32
	labelSampleBytes  = 2 // int16
)

// SignalPath returns the store file for one subject's channel, e.g.
// SignalPath("data/raw", "EEG", 7) -> "data/raw/EEG_7.dat".
func SignalPath(dir, channel string, subject int) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%d.dat", channel, subject))
}

// LabelPath returns the stage-label file for one subject, e.g.
// LabelPath("data/raw", 7) -> "data/raw/y_7.dat".
func LabelPath(dir string, subject int) string {
	return filepath.Join(dir, fmt.Sprintf("y_%d.dat", subject))
}

// EpochElems returns the number of values in a single epoch record for the
// given per-epoch shape, e.g. [3000] -> 3000, [29, 129] -> 3741.
// It returns 0 for an empty shape or any non-positive dimension.
func EpochElems(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0
		}
		n *= d
	}
	return n
}
