package ingest

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// EpochSeconds is the scoring epoch length in seconds.
	EpochSeconds = 30

	// TargetRate is the sampling rate every stored signal is resampled to.
	TargetRate = 100

	// EpochSamples is the per-channel sample count of one stored epoch.
	EpochSamples = EpochSeconds * TargetRate
)

// Resampler changes the sampling rate of a series by Fourier-domain
// truncation or zero padding. FFT plans are cached per length, so reusing
// one Resampler across the epochs of a recording is cheap. Not safe for
// concurrent use.
type Resampler struct {
	plans map[int]*fourier.FFT
	coeff []complex128
}

func NewResampler() *Resampler {
	return &Resampler{plans: make(map[int]*fourier.FFT)}
}

func (r *Resampler) plan(n int) *fourier.FFT {
	p, ok := r.plans[n]
	if !ok {
		p = fourier.NewFFT(n)
		r.plans[n] = p
	}
	return p
}

func (r *Resampler) scratch(n int) []complex128 {
	if cap(r.coeff) < n {
		r.coeff = make([]complex128, n)
	}
	return r.coeff[:n]
}

// Resample fills dst with src resampled to len(dst) points spanning the
// same duration. Interior spectrum bins are copied, the Nyquist bin is
// doubled when dropping rate and halved when raising it, and the inverse
// transform is rescaled by the source length.
func (r *Resampler) Resample(dst, src []float64) error {
	m, n := len(src), len(dst)
	if m == 0 || n == 0 {
		return fmt.Errorf("ingest: cannot resample %d samples to %d", m, n)
	}
	if m == n {
		copy(dst, src)
		return nil
	}

	c := r.scratch(max(m, n)/2 + 1)
	r.plan(m).Coefficients(c[:m/2+1], src)
	for i := m/2 + 1; i <= n/2; i++ {
		c[i] = 0
	}
	if N := min(m, n); N%2 == 0 {
		if n < m {
			c[N/2] *= 2
		} else {
			c[N/2] *= 0.5
		}
	}
	r.plan(n).Sequence(dst, c[:n/2+1])

	scale := 1 / float64(m)
	for i := range dst {
		dst[i] *= scale
	}
	return nil
}

// EpochSignal cuts a continuous series recorded at sourceRate into
// 30 second epochs resampled to EpochSamples points each, returning the
// flattened epochs and their count. A trailing partial epoch is dropped.
func EpochSignal(signal []float64, sourceRate int) ([]float32, int, error) {
	if sourceRate < 1 {
		return nil, 0, fmt.Errorf("ingest: invalid sampling rate %d", sourceRate)
	}
	perEpoch := sourceRate * EpochSeconds
	epochs := len(signal) / perEpoch

	r := NewResampler()
	dst := make([]float64, EpochSamples)
	out := make([]float32, 0, epochs*EpochSamples)
	for e := 0; e < epochs; e++ {
		if err := r.Resample(dst, signal[e*perEpoch:(e+1)*perEpoch]); err != nil {
			return nil, 0, err
		}
		for _, v := range dst {
			out = append(out, float32(v))
		}
	}
	return out, epochs, nil
}
