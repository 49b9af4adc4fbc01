package ingest

import (
	"fmt"
	"math"

	"github.com/sleeplab/psgdata/dataset"
)

// statsAccum keeps element-wise running mean and variance over epochs with
// Welford updates, so scaling statistics come out in a single pass without
// holding the data in memory.
type statsAccum struct {
	n    int64
	mean []float64
	m2   []float64
}

func newStatsAccum(elems int) *statsAccum {
	return &statsAccum{mean: make([]float64, elems), m2: make([]float64, elems)}
}

// add folds in buf, which holds whole epochs back to back.
func (a *statsAccum) add(buf []float32) error {
	elems := len(a.mean)
	if elems == 0 || len(buf)%elems != 0 {
		return fmt.Errorf("ingest: stats buffer of %d values is not whole %d element epochs", len(buf), elems)
	}
	for off := 0; off < len(buf); off += elems {
		a.n++
		inv := 1 / float64(a.n)
		for i := 0; i < elems; i++ {
			v := float64(buf[off+i])
			d := v - a.mean[i]
			a.mean[i] += d * inv
			a.m2[i] += d * (v - a.mean[i])
		}
	}
	return nil
}

// merge folds b's moments into a, leaving b untouched.
func (a *statsAccum) merge(b *statsAccum) {
	if b.n == 0 {
		return
	}
	if a.n == 0 {
		a.n = b.n
		copy(a.mean, b.mean)
		copy(a.m2, b.m2)
		return
	}
	n := a.n + b.n
	for i := range a.mean {
		d := b.mean[i] - a.mean[i]
		a.mean[i] += d * float64(b.n) / float64(n)
		a.m2[i] += b.m2[i] + d*d*float64(a.n)*float64(b.n)/float64(n)
	}
	a.n = n
}

// scale converts the accumulated moments into per-element scaling
// statistics. An element that never varied gets a zero std, which the
// dataset layer treats as "do not scale".
func (a *statsAccum) scale() dataset.ChannelScale {
	cs := dataset.ChannelScale{
		Mean: make([]float64, len(a.mean)),
		Std:  make([]float64, len(a.mean)),
	}
	copy(cs.Mean, a.mean)
	if a.n > 0 {
		for i, m2 := range a.m2 {
			cs.Std[i] = math.Sqrt(m2 / float64(a.n))
		}
	}
	return cs
}
