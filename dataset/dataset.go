// Package dataset presents preprocessed polysomnography recordings as a
// flat, randomly addressable collection of training windows.
//
// A dataset directory is produced by the ingest pipeline and looks like:
//
//	<dir>/table.csv            subject table: id, epoch count, split
//	<dir>/<prep>/EEG_<id>.dat  one signal store per subject and channel
//	<dir>/<prep>/y_<id>.dat    one label store per subject
//	<dir>/<prep>/scaling.json  element-wise normalization statistics
//	<dir>/splits.json          optional explicit split lists
//
// where <prep> is a preprocessing name such as "raw" or "xsleepnet".
//
// Examples are windows of SeqLen consecutive epochs. Windows slide one epoch
// at a time within a subject and never cross subject boundaries; the
// WindowIndex numbers them globally so a training loop can treat the whole
// dataset as one integer range. Everything is loaded lazily: opening a
// dataset touches only table.csv and scaling.json, and each Get reads exactly
// the epochs it needs from the store files.
package dataset

import (
	"fmt"
	"path/filepath"

	"github.com/sleeplab/psgdata/store"
)

// Well-known file names inside a dataset directory.
const (
	TableFile   = "table.csv"
	ScalingFile = "scaling.json"
	SplitsFile  = "splits.json"
)

// Preprocessing names with fixed per-epoch shapes.
const (
	// PreprocessingRaw stores each epoch as 3000 samples: 30 seconds at the
	// 100 Hz ingest target rate.
	PreprocessingRaw = "raw"

	// PreprocessingXSleepNet stores each epoch as a 29x129 log-power
	// spectrogram (2-second windows, 1-second hop, 129 frequency bins).
	PreprocessingXSleepNet = "xsleepnet"
)

// DefaultSeqLen is the default window length in epochs.
const DefaultSeqLen = 21

// EpochShape returns the per-channel shape of one stored epoch under the
// given preprocessing name.
func EpochShape(preprocessing string) ([]int, error) {
	switch preprocessing {
	case PreprocessingRaw:
		return []int{3000}, nil
	case PreprocessingXSleepNet:
		return []int{29, 129}, nil
	}
	return nil, fmt.Errorf("%w: unknown preprocessing %q", ErrConfig, preprocessing)
}

// Config selects what a Dataset reads and how.
type Config struct {
	// Dir is the dataset root directory.
	Dir string

	// Channels to read, in output order (for example "EEG", "EOG", "EMG").
	// Every subject must have a store file for every selected channel.
	Channels []string

	// Preprocessing selects the stored representation. Empty means raw.
	Preprocessing string

	// SeqLen is the window length in epochs. Zero means DefaultSeqLen.
	SeqLen int

	// Normalize applies the element-wise (x-mean)/std transform recorded in
	// the preprocessing directory's scaling.json.
	Normalize bool

	// LabelTransform, when set, rewrites each window's label sequence (for
	// example collapsing stages). It must return a slice of the same length.
	LabelTransform func([]int32) []int32
}

// Window is one dataset example.
type Window struct {
	// Signal is the window's samples, flattened in Shape order.
	Signal []float32

	// Shape is [SeqLen, channels, epoch shape...].
	Shape []int

	// Labels holds one stage label per epoch in the window.
	Labels []int32
}

// Dataset is an opened dataset. It is immutable apart from split assignment;
// Get and NewReader may be used from any goroutine.
type Dataset struct {
	cfg     Config
	dataDir string
	shape   []int
	elems   int
	table   *Table
	index   *WindowIndex
	norm    map[string]channelNorm
}

// Open loads the subject table, builds the window index, and, with
// cfg.Normalize set, loads the scaling statistics. Store files are not
// touched until the first read.
func Open(cfg Config) (*Dataset, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("%w: empty dataset dir", ErrConfig)
	}
	if len(cfg.Channels) == 0 {
		return nil, fmt.Errorf("%w: no channels selected", ErrConfig)
	}
	seen := make(map[string]bool, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		if ch == "" {
			return nil, fmt.Errorf("%w: empty channel name", ErrConfig)
		}
		if seen[ch] {
			return nil, fmt.Errorf("%w: duplicate channel %q", ErrConfig, ch)
		}
		seen[ch] = true
	}
	if cfg.Preprocessing == "" {
		cfg.Preprocessing = PreprocessingRaw
	}
	if cfg.SeqLen == 0 {
		cfg.SeqLen = DefaultSeqLen
	}

	shape, err := EpochShape(cfg.Preprocessing)
	if err != nil {
		return nil, err
	}
	table, err := LoadTable(filepath.Join(cfg.Dir, TableFile))
	if err != nil {
		return nil, err
	}
	index, err := BuildWindowIndex(table.Records(), cfg.SeqLen)
	if err != nil {
		return nil, err
	}

	d := &Dataset{
		cfg:     cfg,
		dataDir: filepath.Join(cfg.Dir, cfg.Preprocessing),
		shape:   shape,
		elems:   store.EpochElems(shape),
		table:   table,
		index:   index,
	}
	if cfg.Normalize {
		sc, err := LoadScaling(filepath.Join(d.dataDir, ScalingFile))
		if err != nil {
			return nil, err
		}
		d.norm = make(map[string]channelNorm, len(cfg.Channels))
		for _, ch := range cfg.Channels {
			cs, ok := sc.Channels[ch]
			if !ok {
				return nil, fmt.Errorf("%w: scaling has no channel %q", ErrConfig, ch)
			}
			if len(cs.Mean) != d.elems || len(cs.Std) != d.elems {
				return nil, fmt.Errorf("%w: scaling for channel %q has %d/%d elements, want %d",
					ErrConfig, ch, len(cs.Mean), len(cs.Std), d.elems)
			}
			d.norm[ch] = newChannelNorm(cs)
		}
	}
	return d, nil
}

// Len returns the total number of windows.
func (d *Dataset) Len() int { return d.index.Len() }

// SeqLen returns the window length in epochs.
func (d *Dataset) SeqLen() int { return d.cfg.SeqLen }

// Channels returns the selected channels in output order.
func (d *Dataset) Channels() []string {
	return append([]string(nil), d.cfg.Channels...)
}

// EpochShape returns the per-channel shape of one epoch.
func (d *Dataset) EpochShape() []int {
	return append([]int(nil), d.shape...)
}

// WindowShape returns the shape of one example: [SeqLen, channels, epoch...].
func (d *Dataset) WindowShape() []int {
	shape := make([]int, 0, 2+len(d.shape))
	shape = append(shape, d.cfg.SeqLen, len(d.cfg.Channels))
	return append(shape, d.shape...)
}

// Table returns the subject table backing this dataset.
func (d *Dataset) Table() *Table { return d.table }

// Locate resolves a global window id to its subject and relative offset.
func (d *Dataset) Locate(window int) (subject, offset int, err error) {
	return d.index.Locate(window)
}

// Get reads one window. It opens the needed store files just for this call;
// use a Reader when fetching many windows.
func (d *Dataset) Get(window int) (Window, error) {
	r := d.NewReader()
	defer r.Close()
	return r.Get(window)
}

// NewReader returns a Reader with its own store handles. A Reader keeps one
// open handle per file it has touched, so consecutive windows of the same
// subject cost no reopen. Readers are not safe for concurrent use; give each
// worker goroutine its own.
func (d *Dataset) NewReader() *Reader {
	return &Reader{
		d:       d,
		signals: make(map[signalKey]*store.SignalStore),
		labels:  make(map[int]*store.LabelStore),
	}
}

type signalKey struct {
	subject int
	channel string
}

// Reader reads windows through a cache of open store handles.
type Reader struct {
	d       *Dataset
	signals map[signalKey]*store.SignalStore
	labels  map[int]*store.LabelStore
}

// Get reads one window: SeqLen consecutive epochs of every selected channel,
// normalized if the dataset was opened with Normalize, plus the matching
// label run.
func (r *Reader) Get(window int) (Window, error) {
	subject, offset, err := r.d.index.Locate(window)
	if err != nil {
		return Window{}, err
	}
	rec, ok := r.d.table.Lookup(subject)
	if !ok {
		return Window{}, fmt.Errorf("%w: window %d maps to subject %d not in table", ErrConfig, window, subject)
	}

	seqLen := r.d.cfg.SeqLen
	nch := len(r.d.cfg.Channels)
	elems := r.d.elems

	w := Window{
		Signal: make([]float32, seqLen*nch*elems),
		Shape:  r.d.WindowShape(),
	}
	for ci, ch := range r.d.cfg.Channels {
		st, err := r.signal(subject, ch, rec.Epochs)
		if err != nil {
			return Window{}, err
		}
		chunk, err := st.ReadEpochs(offset, seqLen)
		if err != nil {
			return Window{}, fmt.Errorf("%w: window %d subject %d channel %s: %w", ErrStoreRead, window, subject, ch, err)
		}
		norm, hasNorm := r.d.norm[ch]
		for e := 0; e < seqLen; e++ {
			dst := w.Signal[(e*nch+ci)*elems : (e*nch+ci+1)*elems]
			src := chunk[e*elems : (e+1)*elems]
			if hasNorm {
				for i, v := range src {
					dst[i] = (v - norm.mean[i]) * norm.inv[i]
				}
			} else {
				copy(dst, src)
			}
		}
	}

	ls, err := r.labelStore(subject, rec.Epochs)
	if err != nil {
		return Window{}, err
	}
	labels, err := ls.ReadLabels(offset, seqLen)
	if err != nil {
		return Window{}, fmt.Errorf("%w: window %d subject %d labels: %w", ErrStoreRead, window, subject, err)
	}
	if tf := r.d.cfg.LabelTransform; tf != nil {
		labels = tf(labels)
		if len(labels) != seqLen {
			return Window{}, fmt.Errorf("%w: label transform returned %d labels, want %d", ErrConfig, len(labels), seqLen)
		}
	}
	w.Labels = labels
	return w, nil
}

func (r *Reader) signal(subject int, channel string, epochs int) (*store.SignalStore, error) {
	key := signalKey{subject, channel}
	if st, ok := r.signals[key]; ok {
		return st, nil
	}
	st, err := store.OpenSignal(store.SignalPath(r.d.dataDir, channel, subject), epochs, r.d.shape)
	if err != nil {
		return nil, fmt.Errorf("%w: subject %d channel %s: %w", ErrStoreRead, subject, channel, err)
	}
	r.signals[key] = st
	return st, nil
}

func (r *Reader) labelStore(subject, epochs int) (*store.LabelStore, error) {
	if st, ok := r.labels[subject]; ok {
		return st, nil
	}
	st, err := store.OpenLabels(store.LabelPath(r.d.dataDir, subject), epochs)
	if err != nil {
		return nil, fmt.Errorf("%w: subject %d labels: %w", ErrStoreRead, subject, err)
	}
	r.labels[subject] = st
	return st, nil
}

// Close releases every cached handle. The Reader stays usable; handles
// reopen on demand.
func (r *Reader) Close() error {
	var first error
	for k, st := range r.signals {
		if err := st.Close(); err != nil && first == nil {
			first = err
		}
		delete(r.signals, k)
	}
	for k, st := range r.labels {
		if err := st.Close(); err != nil && first == nil {
			first = err
		}
		delete(r.labels, k)
	}
	return first
}
