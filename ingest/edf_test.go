package ingest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OpenPSG/edf"
	"github.com/stretchr/testify/require"
)

// writeEDF writes a small EDF file with one second data records and a 1:1
// physical to digital calibration, so integer-valued samples survive the
// round trip exactly.
func writeEDF(t *testing.T, path string, labels []string, rates []int, records int, sample func(sig, rec, i int) float64) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	hdr := edf.Header{
		Version:            edf.Version0,
		PatientID:          "test subject",
		RecordingID:        "test recording",
		StartTime:          time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC),
		DataRecordDuration: time.Second,
		SignalCount:        len(labels),
	}
	for i, label := range labels {
		hdr.Signals = append(hdr.Signals, edf.Signal{
			Label:             label,
			PhysicalDimension: "uV",
			PhysicalMin:       -2048,
			PhysicalMax:       2047,
			DigitalMin:        -2048,
			DigitalMax:        2047,
			SamplesPerRecord:  rates[i],
		})
	}
	w, err := edf.Create(f, hdr)
	require.NoError(t, err)
	for r := 0; r < records; r++ {
		signals := make([][]float64, len(labels))
		for si := range labels {
			signals[si] = make([]float64, rates[si])
			for i := range signals[si] {
				signals[si][i] = sample(si, r, i)
			}
		}
		require.NoError(t, w.WriteRecord(signals))
	}
	require.NoError(t, w.Close())
}

func TestScanEDFHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "night.rec")
	writeEDF(t, path, []string{"C3A2", "ECG"}, []int{128, 64}, 10,
		func(sig, rec, i int) float64 { return 0 })

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	info, err := scanEDFHeader(f)
	require.NoError(t, err)
	require.Equal(t, []string{"C3A2", "ECG"}, info.labels)
	require.Equal(t, []int{128, 64}, info.samples)
	require.Equal(t, 10, info.records)
	require.InDelta(t, 1.0, info.recordSeconds, 1e-9)
	require.Equal(t, 128, info.rate(0))
	require.Equal(t, 64, info.rate(1))
}

func TestScanEDFHeaderTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.rec")
	require.NoError(t, os.WriteFile(path, []byte("not an edf header"), 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = scanEDFHeader(f)
	require.Error(t, err)
}

func TestFindLabel(t *testing.T) {
	info := &edfInfo{labels: []string{"C3-M2", "C3-A2", "chin EMG"}}

	// The first name that matches wins, not the first label.
	idx, ok := info.find([]string{"C3-A2", "C3-M2"})
	require.True(t, ok)
	require.Equal(t, 1, idx)

	// Case-insensitive exact match.
	idx, ok = info.find([]string{"CHIN emg"})
	require.True(t, ok)
	require.Equal(t, 2, idx)

	// Separator-insensitive fallback.
	idx, ok = info.find([]string{"C3A2"})
	require.True(t, ok)
	require.Equal(t, 1, idx)

	_, ok = info.find([]string{"F4-M1"})
	require.False(t, ok)
}

func TestReadEDFSignal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "night.rec")
	writeEDF(t, path, []string{"C3A2", "ECG"}, []int{100, 50}, 4,
		func(sig, rec, i int) float64 { return float64(sig*1000 + rec*100 + i%100) })

	series, rate, err := readEDFSignal(path, []string{"C3-A2"})
	require.NoError(t, err)
	require.Equal(t, 100, rate)
	require.Len(t, series, 400)
	for i, v := range series {
		want := float64(i/100*100 + i%100)
		require.InDelta(t, want, v, 1e-9, "sample %d", i)
	}

	series, rate, err = readEDFSignal(path, []string{"ECG"})
	require.NoError(t, err)
	require.Equal(t, 50, rate)
	require.Len(t, series, 200)
	for i, v := range series {
		want := float64(1000 + i/50*100 + i%50)
		require.InDelta(t, want, v, 1e-9, "sample %d", i)
	}
}

func TestReadEDFSignalNoMatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "night.rec")
	writeEDF(t, path, []string{"C3A2"}, []int{100}, 1,
		func(sig, rec, i int) float64 { return 0 })

	_, _, err := readEDFSignal(path, []string{"F4-M1", "F3-M2"})
	require.ErrorContains(t, err, "no signal matching")
}

func TestReadEDFSignalMissingFile(t *testing.T) {
	_, _, err := readEDFSignal(filepath.Join(t.TempDir(), "absent.rec"), []string{"C3A2"})
	require.Error(t, err)
}
