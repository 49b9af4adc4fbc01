package dataset

import (
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Loader streams batches of windows as gomlx tensors. It implements the
// train.Dataset methods (Name, Reset, Yield): Yield returns io.EOF once a
// pass over the loader's windows is exhausted, and Reset starts a new pass
// with a fresh shuffle. A Loader owns a Reader and is therefore single
// goroutine; training with parallel loaders means one Loader per goroutine.
type Loader struct {
	name      string
	reader    *Reader
	ids       []int
	batchSize int
	shuffle   bool
	rand      *rand.Rand
	order     []int
	pos       int
}

// NewLoader builds a loader over the given window ids, usually one of the
// lists from Sets. A zero seed draws one from the clock.
func NewLoader(d *Dataset, name string, ids []int, batchSize int, seed int64) (*Loader, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("%w: batch size %d, want >= 1", ErrConfig, batchSize)
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	l := &Loader{
		name:      name,
		reader:    d.NewReader(),
		ids:       append([]int(nil), ids...),
		batchSize: batchSize,
		shuffle:   true,
		rand:      rand.New(rand.NewSource(seed)),
		order:     make([]int, len(ids)),
	}
	l.resetOrder()
	return l, nil
}

func (l *Loader) resetOrder() {
	l.pos = 0
	for i := range l.order {
		l.order[i] = i
	}
	if l.shuffle {
		l.rand.Shuffle(len(l.order), func(i, j int) {
			l.order[i], l.order[j] = l.order[j], l.order[i]
		})
	}
}

// Name returns the loader's name ("train", "valid", ...).
func (l *Loader) Name() string { return l.name }

// Len returns the number of windows the loader draws from.
func (l *Loader) Len() int { return len(l.ids) }

// Batches returns the number of Yield calls in one pass.
func (l *Loader) Batches() int {
	return (len(l.ids) + l.batchSize - 1) / l.batchSize
}

// SetShuffle controls whether Reset reshuffles. It takes effect at the next
// Reset; sequential order is handy for evaluation passes.
func (l *Loader) SetShuffle(on bool) { l.shuffle = on }

// Reset starts a new pass.
func (l *Loader) Reset() { l.resetOrder() }

// Yield returns the next batch. The final batch of a pass may be short; after
// it, Yield returns io.EOF until Reset is called.
func (l *Loader) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if l.pos >= len(l.order) {
		return nil, nil, nil, io.EOF
	}
	end := min(l.pos+l.batchSize, len(l.order))
	windows := make([]Window, 0, end-l.pos)
	for _, oi := range l.order[l.pos:end] {
		w, err := l.reader.Get(l.ids[oi])
		if err != nil {
			return nil, nil, nil, err
		}
		windows = append(windows, w)
	}
	l.pos = end

	batch, err := MakeWindowBatch(windows)
	if err != nil {
		return nil, nil, nil, err
	}
	in, lab, err := batch.Tensors()
	if err != nil {
		return nil, nil, nil, err
	}
	return nil, []*tensors.Tensor{in}, []*tensors.Tensor{lab}, nil
}

// Close releases the loader's store handles.
func (l *Loader) Close() error { return l.reader.Close() }

// Module bundles the three split loaders, the shape a training loop wants.
type Module struct {
	Train *Loader
	Valid *Loader
	Test  *Loader
}

// NewModule builds loaders over the dataset's current split assignment. With
// a non-zero seed the three loaders get distinct derived seeds so their
// shuffles stay reproducible but uncorrelated.
func NewModule(d *Dataset, batchSize int, seed int64) (*Module, error) {
	derive := func(k int64) int64 {
		if seed == 0 {
			return 0
		}
		return seed + k
	}
	train, valid, test := d.Sets()
	lt, err := NewLoader(d, "train", train, batchSize, derive(0))
	if err != nil {
		return nil, err
	}
	lv, err := NewLoader(d, "valid", valid, batchSize, derive(1))
	if err != nil {
		lt.Close()
		return nil, err
	}
	lx, err := NewLoader(d, "test", test, batchSize, derive(2))
	if err != nil {
		lt.Close()
		lv.Close()
		return nil, err
	}
	return &Module{Train: lt, Valid: lv, Test: lx}, nil
}

// Close releases all three loaders.
func (m *Module) Close() error {
	var first error
	for _, l := range []*Loader{m.Train, m.Valid, m.Test} {
		if l == nil {
			continue
		}
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
