package ingest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpectrogramGeometry(t *testing.T) {
	require.Equal(t, 29, SpecFrames)
	require.Equal(t, 129, SpecBins)
}

func TestSpectrogramSilence(t *testing.T) {
	sg := NewSpectrogrammer()
	out, err := sg.Epoch(make([]float32, EpochSamples))
	require.NoError(t, err)
	require.Len(t, out, SpecFrames*SpecBins)
	// 20*log10(1e-10) for every empty bin.
	for i, v := range out {
		require.InDelta(t, -200.0, float64(v), 1e-4, "bin %d", i)
	}
}

func TestSpectrogramTonePeak(t *testing.T) {
	const freq = 25.0 // Hz
	epoch := make([]float32, EpochSamples)
	for i := range epoch {
		epoch[i] = float32(math.Cos(2 * math.Pi * freq * float64(i) / TargetRate))
	}
	sg := NewSpectrogrammer()
	out, err := sg.Epoch(epoch)
	require.NoError(t, err)

	// The peak bin of every frame should sit at freq/(rate/nfft).
	wantBin := int(math.Round(freq * specFFTSize / TargetRate))
	for f := 0; f < SpecFrames; f++ {
		frame := out[f*SpecBins : (f+1)*SpecBins]
		peak := 0
		for b, v := range frame {
			if v > frame[peak] {
				peak = b
			}
		}
		require.InDelta(t, wantBin, peak, 1, "frame %d", f)
	}
}

func TestSpectrogramReuse(t *testing.T) {
	epoch := make([]float32, EpochSamples)
	for i := range epoch {
		epoch[i] = float32(i % 37)
	}
	sg := NewSpectrogrammer()
	first, err := sg.Epoch(epoch)
	require.NoError(t, err)
	second, err := sg.Epoch(epoch)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestSpectrogramWrongLength(t *testing.T) {
	_, err := NewSpectrogrammer().Epoch(make([]float32, 100))
	require.Error(t, err)
}
