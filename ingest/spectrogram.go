package ingest

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	specWindowSamples = 2 * TargetRate
	specHopSamples    = TargetRate
	specFFTSize       = 256

	// SpecFrames and SpecBins are the time and frequency extents of the
	// time-frequency representation of one epoch: 2 second Hamming windows
	// hopped by 1 second, zero padded to a 256 point FFT.
	SpecFrames = (EpochSamples-specWindowSamples)/specHopSamples + 1
	SpecBins   = specFFTSize/2 + 1
)

// Spectrogrammer turns raw epochs into log-magnitude spectrograms. It
// reuses its FFT plan and scratch buffers, so it is not safe for
// concurrent use; give each worker its own.
type Spectrogrammer struct {
	fft    *fourier.FFT
	window []float64
	frame  []float64
	coeff  []complex128
}

func NewSpectrogrammer() *Spectrogrammer {
	s := &Spectrogrammer{
		fft:    fourier.NewFFT(specFFTSize),
		window: make([]float64, specWindowSamples),
		frame:  make([]float64, specFFTSize),
		coeff:  make([]complex128, SpecBins),
	}
	for i := range s.window {
		s.window[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(specWindowSamples-1))
	}
	return s
}

// Epoch computes the spectrogram of one raw epoch as SpecFrames*SpecBins
// values in [frame][bin] order, each 20*log10(|X|+1e-10).
func (s *Spectrogrammer) Epoch(epoch []float32) ([]float32, error) {
	if len(epoch) != EpochSamples {
		return nil, fmt.Errorf("ingest: spectrogram input has %d samples, want %d", len(epoch), EpochSamples)
	}
	out := make([]float32, 0, SpecFrames*SpecBins)
	for f := 0; f < SpecFrames; f++ {
		off := f * specHopSamples
		for i := 0; i < specWindowSamples; i++ {
			s.frame[i] = float64(epoch[off+i]) * s.window[i]
		}
		// frame[specWindowSamples:] stays zero, padding the FFT to 256.
		s.fft.Coefficients(s.coeff, s.frame)
		for _, c := range s.coeff {
			out = append(out, float32(20*math.Log10(cmplx.Abs(c)+1e-10)))
		}
	}
	return out, nil
}
