package ingest

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/OpenPSG/edf"
)

// edfInfo is the part of an EDF header the producers need to pick and size
// a signal: labels, per-record sample counts, and the record geometry.
type edfInfo struct {
	labels        []string
	samples       []int
	records       int
	recordSeconds float64
}

// rate returns signal i's sampling rate in Hz.
func (h *edfInfo) rate(i int) int {
	return int(math.Round(float64(h.samples[i]) / h.recordSeconds))
}

// find returns the index of the first signal matching any of names, trying
// exact case-insensitive matches before falling back to label comparison
// with spaces, dashes and underscores stripped. Montage naming drifts
// across hardware ("C3-A2", "C3A2", "EEG C3-A2"), so both passes are
// needed in practice.
func (h *edfInfo) find(names []string) (int, bool) {
	for _, name := range names {
		for i, label := range h.labels {
			if strings.EqualFold(label, name) {
				return i, true
			}
		}
	}
	for _, name := range names {
		want := normalizeLabel(name)
		for i, label := range h.labels {
			if normalizeLabel(label) == want {
				return i, true
			}
		}
	}
	return 0, false
}

func normalizeLabel(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(s)) {
		switch r {
		case ' ', '-', '_':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// scanEDFHeader reads the fixed 256 byte header block plus the per-signal
// field arrays. The reader is left positioned at the first data record.
func scanEDFHeader(r io.Reader) (*edfInfo, error) {
	fixed := make([]byte, 256)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, fmt.Errorf("ingest: short EDF header: %w", err)
	}
	field := func(b []byte) string { return strings.TrimSpace(string(b)) }

	ns, err := strconv.Atoi(field(fixed[252:256]))
	if err != nil || ns <= 0 {
		return nil, fmt.Errorf("ingest: bad EDF signal count %q", field(fixed[252:256]))
	}
	records, err := strconv.Atoi(field(fixed[236:244]))
	if err != nil {
		return nil, fmt.Errorf("ingest: bad EDF record count %q", field(fixed[236:244]))
	}
	if records < 0 {
		return nil, fmt.Errorf("ingest: EDF record count unknown; file was not finalized")
	}
	dur, err := strconv.ParseFloat(field(fixed[244:252]), 64)
	if err != nil || dur <= 0 {
		return nil, fmt.Errorf("ingest: bad EDF record duration %q", field(fixed[244:252]))
	}

	rest := make([]byte, ns*256)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, fmt.Errorf("ingest: short EDF signal headers: %w", err)
	}
	info := &edfInfo{
		labels:        make([]string, 0, ns),
		samples:       make([]int, 0, ns),
		records:       records,
		recordSeconds: dur,
	}
	for i := 0; i < ns; i++ {
		info.labels = append(info.labels, field(rest[i*16:(i+1)*16]))
	}
	// Samples-per-record sits after the transducer, dimension, range and
	// prefilter arrays: 216 bytes per signal.
	base := ns * 216
	for i := 0; i < ns; i++ {
		n, err := strconv.Atoi(field(rest[base+i*8 : base+(i+1)*8]))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("ingest: bad EDF sample count for signal %d: %q",
				i, field(rest[base+i*8:base+(i+1)*8]))
		}
		info.samples = append(info.samples, n)
	}
	return info, nil
}

// readEDFSignal opens an EDF file and returns the full series of the first
// signal whose label matches one of names, with its sampling rate.
func readEDFSignal(path string, names []string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("ingest: %w", err)
	}
	defer f.Close()

	info, err := scanEDFHeader(f)
	if err != nil {
		return nil, 0, fmt.Errorf("%w (%s)", err, path)
	}
	idx, ok := info.find(names)
	if !ok {
		return nil, 0, fmt.Errorf("ingest: %s: no signal matching %v (file has %v)",
			path, names, info.labels)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("ingest: %s: %w", path, err)
	}
	r, err := edf.Open(f)
	if err != nil {
		return nil, 0, fmt.Errorf("ingest: %s: %w", path, err)
	}
	sig, err := r.Signal(idx)
	if err != nil {
		return nil, 0, fmt.Errorf("ingest: %s: %w", path, err)
	}

	buf := make([]float64, info.records*info.samples[idx])
	n, err := sig.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, 0, fmt.Errorf("ingest: %s: reading signal %d: %w", path, idx, err)
	}
	return buf[:n], info.rate(idx), nil
}
