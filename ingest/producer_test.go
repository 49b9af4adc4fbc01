package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRemapStage(t *testing.T) {
	cases := []struct {
		code int32
		want int32
		keep bool
	}{
		{code: 0, want: 0, keep: true}, // wake
		{code: 1, want: 4, keep: true}, // REM
		{code: 2, want: 1, keep: true}, // N1
		{code: 3, want: 2, keep: true}, // N2
		{code: 4, want: 3, keep: true}, // stage 3
		{code: 5, want: 3, keep: true}, // stage 4
		{code: 6, keep: false},         // artifact
		{code: 7, keep: false},         // indeterminate
		{code: 9, want: 3, keep: true},
	}
	for _, tc := range cases {
		got, keep := remapStage(tc.code)
		require.Equal(t, tc.keep, keep, "code %d", tc.code)
		if keep {
			require.Equal(t, tc.want, got, "code %d", tc.code)
		}
	}
}

func TestReadStageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stages.txt")
	require.NoError(t, os.WriteFile(path, []byte("0\n1\n\n 2 \nbogus\n7\n"), 0o644))

	labels, err := readStageFile(path)
	require.NoError(t, err)
	require.Equal(t, []int32{0, 1, 2, 7}, labels)
}

func TestReadStageFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stages.txt")
	require.NoError(t, os.WriteFile(path, []byte("no codes here\n"), 0o644))
	_, err := readStageFile(path)
	require.ErrorContains(t, err, "no stage codes")
}

func TestReadStageFileMissing(t *testing.T) {
	_, err := readStageFile(filepath.Join(t.TempDir(), "absent.txt"))
	require.Error(t, err)
}

func constSeries(n int, v float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestBuildRecording(t *testing.T) {
	// Two channels at different rates, three scored epochs; the middle one
	// is an artifact and must disappear from both signal and labels.
	series := [][]float64{
		constSeries(3*100*EpochSeconds, 1),
		constSeries(3*50*EpochSeconds, 2),
	}
	rec, err := buildRecording([]string{"EEG", "EOG"}, series, []int{100, 50}, []int32{0, 6, 2})
	require.NoError(t, err)

	require.Equal(t, []string{"EEG", "EOG"}, rec.Channels)
	require.Equal(t, []int{EpochSamples}, rec.Shape)
	require.Equal(t, 2, rec.Epochs)
	require.Equal(t, []int32{0, 1}, rec.Labels)
	require.Len(t, rec.Signal, 2*2*EpochSamples)

	// Layout is [epoch][channel][sample].
	for e := 0; e < 2; e++ {
		for ci, want := range []float64{1, 2} {
			seg := rec.Signal[(e*2+ci)*EpochSamples : (e*2+ci+1)*EpochSamples]
			for i, v := range seg {
				require.InDelta(t, want, float64(v), 1e-5, "epoch %d channel %d sample %d", e, ci, i)
			}
		}
	}
}

func TestBuildRecordingTrimsToLabels(t *testing.T) {
	// Four epochs of signal but only two scored: the rest is dropped.
	series := [][]float64{constSeries(4*TargetRate*EpochSeconds, 5)}
	rec, err := buildRecording([]string{"EEG"}, series, []int{TargetRate}, []int32{0, 1})
	require.NoError(t, err)
	require.Equal(t, 2, rec.Epochs)
	require.Equal(t, []int32{0, 4}, rec.Labels)
}

func TestBuildRecordingTrimsToSignal(t *testing.T) {
	// More labels than signal epochs: the overhang is dropped.
	series := [][]float64{constSeries(1*TargetRate*EpochSeconds, 5)}
	rec, err := buildRecording([]string{"EEG"}, series, []int{TargetRate}, []int32{0, 1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, 1, rec.Epochs)
	require.Equal(t, []int32{0}, rec.Labels)
}

func TestBuildRecordingMismatch(t *testing.T) {
	_, err := buildRecording([]string{"EEG", "EOG"}, [][]float64{constSeries(100, 1)}, []int{100}, []int32{0})
	require.Error(t, err)
}

func TestRecordingValidate(t *testing.T) {
	good := &Recording{
		Channels: []string{"EEG"},
		Shape:    []int{4},
		Epochs:   2,
		Signal:   make([]float32, 8),
		Labels:   []int32{0, 1},
	}
	require.NoError(t, good.Validate())

	bad := *good
	bad.Signal = make([]float32, 7)
	require.Error(t, bad.Validate())

	bad = *good
	bad.Labels = []int32{0}
	require.Error(t, bad.Validate())

	bad = *good
	bad.Channels = nil
	require.Error(t, bad.Validate())

	bad = *good
	bad.Channels = []string{"EEG", "EEG"}
	require.Error(t, bad.Validate())

	bad = *good
	bad.Shape = nil
	require.Error(t, bad.Validate())
}
