package dataset

import (
	"fmt"
	"math"
)

// WindowIndex is the bijection between global window ids and (subject,
// offset) pairs. It keeps two dense arrays: one entry per window with the
// owning subject id, and one entry per subject id with the subject's first
// window. Both directions of the mapping are O(1).
type WindowIndex struct {
	seqLen        int
	windowSubject []int32
	subjectStart  []int32
}

// SubjectWindows is the number of sequence windows a recording of epochs
// epochs contributes: windows slide one epoch at a time and never span two
// subjects, so a recording shorter than the window contributes none.
func SubjectWindows(epochs, seqLen int) int {
	if epochs < seqLen {
		return 0
	}
	return epochs - seqLen + 1
}

// BuildWindowIndex numbers every subject's windows consecutively in record
// order. Duplicate ids, negative ids and negative epoch counts are rejected
// here as well as at table construction, so the index can be built from any
// record slice.
func BuildWindowIndex(records []SubjectRecord, seqLen int) (*WindowIndex, error) {
	if seqLen < 1 {
		return nil, fmt.Errorf("%w: sequence length %d, want >= 1", ErrConfig, seqLen)
	}
	maxID := -1
	total := 0
	seen := make(map[int]bool, len(records))
	for _, r := range records {
		if r.ID < 0 {
			return nil, fmt.Errorf("%w: negative subject id %d", ErrConfig, r.ID)
		}
		if r.Epochs < 0 {
			return nil, fmt.Errorf("%w: subject %d has negative epoch count %d", ErrConfig, r.ID, r.Epochs)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("%w: duplicate subject id %d", ErrConfig, r.ID)
		}
		seen[r.ID] = true
		if r.ID > maxID {
			maxID = r.ID
		}
		total += SubjectWindows(r.Epochs, seqLen)
	}
	if maxID > math.MaxInt32 || total > math.MaxInt32 {
		return nil, fmt.Errorf("%w: index does not fit in int32 (max id %d, %d windows)", ErrConfig, maxID, total)
	}

	ix := &WindowIndex{
		seqLen:        seqLen,
		windowSubject: make([]int32, total),
		subjectStart:  make([]int32, maxID+1),
	}
	w := 0
	for _, r := range records {
		// Subjects with zero windows still get a start entry so the array
		// stays dense; nothing ever dereferences it because no window maps
		// to them.
		ix.subjectStart[r.ID] = int32(w)
		for range SubjectWindows(r.Epochs, seqLen) {
			ix.windowSubject[w] = int32(r.ID)
			w++
		}
	}
	return ix, nil
}

// Len returns the total number of windows.
func (ix *WindowIndex) Len() int { return len(ix.windowSubject) }

// SeqLen returns the window length in epochs.
func (ix *WindowIndex) SeqLen() int { return ix.seqLen }

// Locate resolves a global window id to the owning subject and the window's
// first epoch within that subject's recording.
func (ix *WindowIndex) Locate(window int) (subject, offset int, err error) {
	if window < 0 || window >= len(ix.windowSubject) {
		return 0, 0, fmt.Errorf("%w: window %d, index has %d", ErrRange, window, len(ix.windowSubject))
	}
	id := int(ix.windowSubject[window])
	return id, window - int(ix.subjectStart[id]), nil
}

// start returns the first global window id assigned to a subject. Valid only
// for ids present at build time.
func (ix *WindowIndex) start(subject int) int {
	return int(ix.subjectStart[subject])
}
