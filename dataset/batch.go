package dataset

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// WindowBatch stores a batch of windows in flat contiguous buffers. The
// signal is laid out [batch][time][feat] where feat flattens channels and the
// per-epoch shape; the full logical shape of one window stays available as
// WindowShape on the dataset.
type WindowBatch struct {
	Signal []float32
	Labels []int32
	Batch  int
	Time   int
	Feat   int
}

// MakeWindowBatch flattens windows into one batch, checking that every
// window has the same shape and consistent buffer lengths.
func MakeWindowBatch(windows []Window) (*WindowBatch, error) {
	if len(windows) == 0 {
		return &WindowBatch{}, nil
	}

	timeSteps := windows[0].Shape[0]
	feat := 1
	for _, d := range windows[0].Shape[1:] {
		feat *= d
	}
	for i, w := range windows {
		if len(w.Shape) != len(windows[0].Shape) {
			return nil, fmt.Errorf("inconsistent shapes: window 0 has shape %v, window %d has shape %v",
				windows[0].Shape, i, w.Shape)
		}
		for j, d := range w.Shape {
			if d != windows[0].Shape[j] {
				return nil, fmt.Errorf("inconsistent shapes: window 0 has shape %v, window %d has shape %v",
					windows[0].Shape, i, w.Shape)
			}
		}
		if len(w.Signal) != timeSteps*feat {
			return nil, fmt.Errorf("window %d signal has wrong size: expected %d, got %d",
				i, timeSteps*feat, len(w.Signal))
		}
		if len(w.Labels) != timeSteps {
			return nil, fmt.Errorf("window %d has %d labels, expected %d", i, len(w.Labels), timeSteps)
		}
	}

	batchSize := len(windows)
	flat := make([]float32, batchSize*timeSteps*feat)
	labels := make([]int32, batchSize*timeSteps)
	for i, w := range windows {
		copy(flat[i*timeSteps*feat:], w.Signal)
		copy(labels[i*timeSteps:], w.Labels)
	}

	return &WindowBatch{
		Signal: flat,
		Labels: labels,
		Batch:  batchSize,
		Time:   timeSteps,
		Feat:   feat,
	}, nil
}

// Tensors converts the batch into gomlx tensors: a [batch, time, feat]
// float32 signal tensor and a [batch, time] int32 label tensor. An empty
// batch has no tensor shape and is rejected.
func (b *WindowBatch) Tensors() (*tensors.Tensor, *tensors.Tensor, error) {
	if b.Batch == 0 || b.Time == 0 || b.Feat == 0 {
		return nil, nil, fmt.Errorf("cannot make tensors from an empty batch (%d windows of %dx%d)",
			b.Batch, b.Time, b.Feat)
	}

	signal := make([][][]float32, b.Batch)
	idx := 0
	for i := 0; i < b.Batch; i++ {
		signal[i] = make([][]float32, b.Time)
		for j := 0; j < b.Time; j++ {
			signal[i][j] = b.Signal[idx : idx+b.Feat]
			idx += b.Feat
		}
	}
	labels := make([][]int32, b.Batch)
	for i := 0; i < b.Batch; i++ {
		labels[i] = b.Labels[i*b.Time : (i+1)*b.Time]
	}
	return tensors.FromAnyValue(signal), tensors.FromAnyValue(labels), nil
}
