package dataset

import (
	"errors"
	"io"
	"reflect"
	"testing"
)

// TestMakeWindowBatch checks the flattened layout and the consistency
// checks against hand-built windows.
func TestMakeWindowBatch(t *testing.T) {
	w0 := Window{
		Signal: []float32{1, 2, 3, 4, 5, 6},
		Shape:  []int{3, 2},
		Labels: []int32{0, 1, 2},
	}
	w1 := Window{
		Signal: []float32{10, 20, 30, 40, 50, 60},
		Shape:  []int{3, 2},
		Labels: []int32{3, 4, 0},
	}
	b, err := MakeWindowBatch([]Window{w0, w1})
	if err != nil {
		t.Fatalf("MakeWindowBatch: %v", err)
	}
	if b.Batch != 2 || b.Time != 3 || b.Feat != 2 {
		t.Fatalf("dims = %d/%d/%d, want 2/3/2", b.Batch, b.Time, b.Feat)
	}
	wantSignal := []float32{1, 2, 3, 4, 5, 6, 10, 20, 30, 40, 50, 60}
	if !reflect.DeepEqual(b.Signal, wantSignal) {
		t.Errorf("Signal = %v, want %v", b.Signal, wantSignal)
	}
	wantLabels := []int32{0, 1, 2, 3, 4, 0}
	if !reflect.DeepEqual(b.Labels, wantLabels) {
		t.Errorf("Labels = %v, want %v", b.Labels, wantLabels)
	}

	in, lab, err := b.Tensors()
	if err != nil {
		t.Fatalf("Tensors: %v", err)
	}
	if in == nil || lab == nil {
		t.Fatal("Tensors returned nil")
	}
}

func TestMakeWindowBatchInconsistent(t *testing.T) {
	w0 := Window{Signal: make([]float32, 6), Shape: []int{3, 2}, Labels: make([]int32, 3)}

	badShape := Window{Signal: make([]float32, 8), Shape: []int{4, 2}, Labels: make([]int32, 4)}
	if _, err := MakeWindowBatch([]Window{w0, badShape}); err == nil {
		t.Error("mismatched shapes were accepted")
	}

	badSignal := Window{Signal: make([]float32, 5), Shape: []int{3, 2}, Labels: make([]int32, 3)}
	if _, err := MakeWindowBatch([]Window{w0, badSignal}); err == nil {
		t.Error("wrong signal length was accepted")
	}

	badLabels := Window{Signal: make([]float32, 6), Shape: []int{3, 2}, Labels: make([]int32, 2)}
	if _, err := MakeWindowBatch([]Window{w0, badLabels}); err == nil {
		t.Error("wrong label length was accepted")
	}
}

func TestMakeWindowBatchEmpty(t *testing.T) {
	b, err := MakeWindowBatch(nil)
	if err != nil {
		t.Fatalf("MakeWindowBatch: %v", err)
	}
	if b.Batch != 0 {
		t.Fatalf("Batch = %d, want 0", b.Batch)
	}
	if _, _, err := b.Tensors(); err == nil {
		t.Fatal("Tensors accepted an empty batch")
	}
}

// TestLoaderPass runs a full epoch over a 4-window fixture with batch size
// 3: two yields (the second short), then io.EOF until Reset.
func TestLoaderPass(t *testing.T) {
	dir := writeFixture(t, []SubjectRecord{{ID: 0, Epochs: 5}, {ID: 1, Epochs: 3}})
	d := openFixture(t, dir, 3)

	ids := []int{0, 1, 2, 3}
	l, err := NewLoader(d, "train", ids, 3, 42)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	defer l.Close()

	if l.Len() != 4 || l.Batches() != 2 {
		t.Fatalf("Len/Batches = %d/%d, want 4/2", l.Len(), l.Batches())
	}
	if l.Name() != "train" {
		t.Errorf("Name = %q", l.Name())
	}

	for pass := 0; pass < 2; pass++ {
		yields := 0
		for {
			_, inputs, labels, err := l.Yield()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("pass %d Yield: %v", pass, err)
			}
			if len(inputs) != 1 || len(labels) != 1 || inputs[0] == nil || labels[0] == nil {
				t.Fatalf("pass %d yielded %d/%d tensors", pass, len(inputs), len(labels))
			}
			yields++
		}
		if yields != 2 {
			t.Fatalf("pass %d had %d yields, want 2", pass, yields)
		}
		// EOF is sticky until Reset.
		if _, _, _, err := l.Yield(); err != io.EOF {
			t.Fatalf("pass %d: Yield after EOF = %v, want io.EOF", pass, err)
		}
		l.Reset()
	}
}

func TestLoaderOrder(t *testing.T) {
	dir := writeFixture(t, []SubjectRecord{{ID: 0, Epochs: 5}, {ID: 1, Epochs: 3}})
	d := openFixture(t, dir, 3)
	ids := []int{0, 1, 2, 3}

	a, err := NewLoader(d, "a", ids, 2, 7)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	defer a.Close()
	b, err := NewLoader(d, "b", ids, 2, 7)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	defer b.Close()
	if !reflect.DeepEqual(a.order, b.order) {
		t.Error("same seed produced different orders")
	}

	// Without shuffling, Reset returns to sequential order.
	a.SetShuffle(false)
	a.Reset()
	if !reflect.DeepEqual(a.order, []int{0, 1, 2, 3}) {
		t.Errorf("unshuffled order = %v", a.order)
	}
}

func TestLoaderBadBatchSize(t *testing.T) {
	dir := writeFixture(t, []SubjectRecord{{ID: 0, Epochs: 5}})
	d := openFixture(t, dir, 3)
	if _, err := NewLoader(d, "x", []int{0}, 0, 1); !errors.Is(err, ErrConfig) {
		t.Errorf("err = %v, want ErrConfig", err)
	}
}

func TestLoaderEmpty(t *testing.T) {
	dir := writeFixture(t, []SubjectRecord{{ID: 0, Epochs: 5}})
	d := openFixture(t, dir, 3)
	l, err := NewLoader(d, "empty", nil, 4, 1)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	defer l.Close()
	if _, _, _, err := l.Yield(); err != io.EOF {
		t.Fatalf("Yield on empty loader = %v, want io.EOF", err)
	}
}

func TestNewModule(t *testing.T) {
	dir := writeFixture(t, []SubjectRecord{
		{ID: 0, Epochs: 5},
		{ID: 1, Epochs: 4},
		{ID: 2, Epochs: 3},
	})
	d := openFixture(t, dir, 3)
	if err := d.Assign(&SplitFile{Train: []int{0}, Valid: []int{1}, Test: []int{2}}); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	m, err := NewModule(d, 2, 42)
	if err != nil {
		t.Fatalf("NewModule: %v", err)
	}
	defer m.Close()

	if m.Train.Len() != 3 || m.Valid.Len() != 2 || m.Test.Len() != 1 {
		t.Fatalf("loader sizes = %d/%d/%d, want 3/2/1", m.Train.Len(), m.Valid.Len(), m.Test.Len())
	}
	if m.Train.Name() != "train" || m.Valid.Name() != "valid" || m.Test.Name() != "test" {
		t.Errorf("names = %q/%q/%q", m.Train.Name(), m.Valid.Name(), m.Test.Name())
	}

	// Each loader must complete a pass.
	for _, l := range []*Loader{m.Train, m.Valid, m.Test} {
		n := 0
		for {
			_, _, _, err := l.Yield()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("%s Yield: %v", l.Name(), err)
			}
			n++
		}
		if n != l.Batches() {
			t.Errorf("%s yielded %d batches, want %d", l.Name(), n, l.Batches())
		}
	}
}
