package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// SignalStore is a read handle for one subject/channel signal file. Reads go
// through ReadAt and never move a shared cursor, so one SignalStore may be
// used from several goroutines at once.
type SignalStore struct {
	f      *os.File
	path   string
	epochs int
	elems  int
}

// OpenSignal opens a signal store and verifies that the file holds exactly
// epochs records of the given per-epoch shape. A wrong length reports
// ErrSizeMismatch immediately rather than surfacing later as a short read.
func OpenSignal(path string, epochs int, shape []int) (*SignalStore, error) {
	elems := EpochElems(shape)
	if elems == 0 {
		return nil, fmt.Errorf("store: invalid epoch shape %v", shape)
	}
	if epochs < 0 {
		return nil, fmt.Errorf("store: negative epoch count %d", epochs)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	want := int64(epochs) * int64(elems) * signalSampleBytes
	if info.Size() != want {
		f.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes, want %d (%d epochs of %d values)",
			ErrSizeMismatch, path, info.Size(), want, epochs, elems)
	}
	return &SignalStore{f: f, path: path, epochs: epochs, elems: elems}, nil
}

// Epochs returns the number of records in the file.
func (s *SignalStore) Epochs() int { return s.epochs }

// Elems returns the number of float32 values per record.
func (s *SignalStore) Elems() int { return s.elems }

// ReadEpochs reads n consecutive records starting at record start and returns
// them as one flat buffer of n*Elems() values.
func (s *SignalStore) ReadEpochs(start, n int) ([]float32, error) {
	if start < 0 || n < 0 || start+n > s.epochs {
		return nil, fmt.Errorf("%w: epochs [%d,%d) of %s with %d", ErrBounds, start, start+n, s.path, s.epochs)
	}
	buf := make([]byte, n*s.elems*signalSampleBytes)
	off := int64(start) * int64(s.elems) * signalSampleBytes
	if _, err := s.f.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("store: read %s epochs [%d,%d): %w", s.path, start, start+n, err)
	}
	out := make([]float32, n*s.elems)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*signalSampleBytes:]))
	}
	return out, nil
}

// Close releases the file handle.
func (s *SignalStore) Close() error { return s.f.Close() }

// LabelStore is a read handle for one subject's stage-label file. Labels are
// stored as int16 and widened to int32 on read.
type LabelStore struct {
	f      *os.File
	path   string
	epochs int
}

// OpenLabels opens a label store and verifies the file holds exactly epochs
// int16 records.
func OpenLabels(path string, epochs int) (*LabelStore, error) {
	if epochs < 0 {
		return nil, fmt.Errorf("store: negative epoch count %d", epochs)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	want := int64(epochs) * labelSampleBytes
	if info.Size() != want {
		f.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes, want %d (%d epochs)",
			ErrSizeMismatch, path, info.Size(), want, epochs)
	}
	return &LabelStore{f: f, path: path, epochs: epochs}, nil
}

// Epochs returns the number of labels in the file.
func (s *LabelStore) Epochs() int { return s.epochs }

// ReadLabels reads n consecutive labels starting at record start.
func (s *LabelStore) ReadLabels(start, n int) ([]int32, error) {
	if start < 0 || n < 0 || start+n > s.epochs {
		return nil, fmt.Errorf("%w: epochs [%d,%d) of %s with %d", ErrBounds, start, start+n, s.path, s.epochs)
	}
	buf := make([]byte, n*labelSampleBytes)
	if _, err := s.f.ReadAt(buf, int64(start)*labelSampleBytes); err != nil {
		return nil, fmt.Errorf("store: read %s labels [%d,%d): %w", s.path, start, start+n, err)
	}
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(int16(binary.LittleEndian.Uint16(buf[i*labelSampleBytes:])))
	}
	return out, nil
}

// Close releases the file handle.
func (s *LabelStore) Close() error { return s.f.Close() }
