package store

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// SignalWriter appends epoch records to a signal file. Writers are for the
// ingest side; they create parent directories as needed and truncate any
// existing file.
type SignalWriter struct {
	f       *os.File
	w       *bufio.Writer
	elems   int
	epochs  int
	scratch []byte
}

// CreateSignal creates (or truncates) a signal store for the given per-epoch
// shape.
func CreateSignal(path string, shape []int) (*SignalWriter, error) {
	elems := EpochElems(shape)
	if elems == 0 {
		return nil, fmt.Errorf("store: invalid epoch shape %v", shape)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &SignalWriter{
		f:       f,
		w:       bufio.NewWriterSize(f, 1<<16),
		elems:   elems,
		scratch: make([]byte, elems*signalSampleBytes),
	}, nil
}

// WriteEpoch appends one record. len(vals) must equal the epoch size.
func (w *SignalWriter) WriteEpoch(vals []float32) error {
	if len(vals) != w.elems {
		return fmt.Errorf("store: epoch has %d values, want %d", len(vals), w.elems)
	}
	for i, v := range vals {
		binary.LittleEndian.PutUint32(w.scratch[i*signalSampleBytes:], math.Float32bits(v))
	}
	if _, err := w.w.Write(w.scratch); err != nil {
		return err
	}
	w.epochs++
	return nil
}

// Epochs returns the number of records written so far.
func (w *SignalWriter) Epochs() int { return w.epochs }

// Close flushes buffered records and closes the file.
func (w *SignalWriter) Close() error {
	ferr := w.w.Flush()
	cerr := w.f.Close()
	if ferr != nil {
		return ferr
	}
	return cerr
}

// LabelWriter appends stage labels to a label file.
type LabelWriter struct {
	f      *os.File
	w      *bufio.Writer
	epochs int
}

// CreateLabels creates (or truncates) a label store.
func CreateLabels(path string) (*LabelWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &LabelWriter{f: f, w: bufio.NewWriterSize(f, 1<<12)}, nil
}

// WriteLabel appends one label. The value must fit in the on-disk int16.
func (w *LabelWriter) WriteLabel(v int32) error {
	if v < math.MinInt16 || v > math.MaxInt16 {
		return fmt.Errorf("store: label %d does not fit in int16", v)
	}
	var buf [labelSampleBytes]byte
	binary.LittleEndian.PutUint16(buf[:], uint16(int16(v)))
	if _, err := w.w.Write(buf[:]); err != nil {
		return err
	}
	w.epochs++
	return nil
}

// WriteLabels appends a run of labels.
func (w *LabelWriter) WriteLabels(vs []int32) error {
	for _, v := range vs {
		if err := w.WriteLabel(v); err != nil {
			return err
		}
	}
	return nil
}

// Epochs returns the number of labels written so far.
func (w *LabelWriter) Epochs() int { return w.epochs }

// Close flushes buffered labels and closes the file.
func (w *LabelWriter) Close() error {
	ferr := w.w.Flush()
	cerr := w.f.Close()
	if ferr != nil {
		return ferr
	}
	return cerr
}
