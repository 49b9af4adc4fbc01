package ingest

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sleeplab/psgdata/store"
)

// Subject identifies one recording a producer can convert.
type Subject struct {
	// ID is the dataset-wide subject id the stores are written under.
	ID int

	// Record locates the subject's source files; its meaning is up to the
	// producer (usually a file path stem). It is carried into the catalog
	// for provenance.
	Record string
}

// Recording is one subject's full night, epoched, resampled and relabeled
// into the store layout: Signal holds Epochs records of
// len(Channels)*EpochElems(Shape) values in [epoch][channel][sample] order,
// Labels one stage per epoch.
type Recording struct {
	Channels []string
	Shape    []int
	Epochs   int
	Signal   []float32
	Labels   []int32
}

// Validate checks the dimensional consistency of a recording.
func (r *Recording) Validate() error {
	if len(r.Channels) == 0 {
		return fmt.Errorf("ingest: recording has no channels")
	}
	seen := make(map[string]bool, len(r.Channels))
	for _, ch := range r.Channels {
		if ch == "" || seen[ch] {
			return fmt.Errorf("ingest: bad channel list %v", r.Channels)
		}
		seen[ch] = true
	}
	elems := store.EpochElems(r.Shape)
	if elems == 0 {
		return fmt.Errorf("ingest: invalid epoch shape %v", r.Shape)
	}
	if r.Epochs < 0 {
		return fmt.Errorf("ingest: negative epoch count %d", r.Epochs)
	}
	if want := r.Epochs * len(r.Channels) * elems; len(r.Signal) != want {
		return fmt.Errorf("ingest: signal has %d values, want %d", len(r.Signal), want)
	}
	if len(r.Labels) != r.Epochs {
		return fmt.Errorf("ingest: %d labels for %d epochs", len(r.Labels), r.Epochs)
	}
	return nil
}

// Producer turns one source collection (ISRUC, UCDDB, ...) into recordings.
// Subjects enumerates what is available; Read converts one subject and must
// be safe to call from several goroutines at once.
type Producer interface {
	Name() string
	Channels() []string
	Subjects(ctx context.Context) ([]Subject, error)
	Read(ctx context.Context, s Subject) (*Recording, error)
}

// Fetcher is implemented by producers that can download their source files.
type Fetcher interface {
	Fetch(ctx context.Context) error
}

// remapStage converts an R&K hypnogram code (0 wake, 1 REM, 2 through 5
// stages S1..S4, 6 artifact, 7 indeterminate) to the label space the stores
// use: 0 wake, 1 N1, 2 N2, 3 N3, 4 REM. S3 and S4 collapse into N3;
// artifact and indeterminate epochs are dropped.
func remapStage(code int32) (int32, bool) {
	switch code {
	case 6, 7:
		return 0, false
	case 0:
		return 0, true
	case 1:
		return 4, true
	case 2:
		return 1, true
	case 3:
		return 2, true
	default:
		return 3, true
	}
}

// readStageFile parses a hypnogram text file with one stage code per line,
// skipping blank and non-numeric lines.
func readStageFile(path string) ([]int32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	defer f.Close()

	var labels []int32
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		code, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		labels = append(labels, int32(code))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ingest: reading %s: %w", path, err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("ingest: %s: no stage codes", path)
	}
	return labels, nil
}

// buildRecording epochs each channel's raw series, trims every channel and
// the hypnogram to the shortest common length, drops masked epochs, and
// interleaves the survivors into the store layout.
func buildRecording(channels []string, series [][]float64, rates []int, labels []int32) (*Recording, error) {
	if len(series) != len(channels) || len(rates) != len(channels) {
		return nil, fmt.Errorf("ingest: %d channels with %d series and %d rates",
			len(channels), len(series), len(rates))
	}
	epoched := make([][]float32, len(series))
	minEpochs := len(labels)
	for i, s := range series {
		sig, n, err := EpochSignal(s, rates[i])
		if err != nil {
			return nil, fmt.Errorf("ingest: channel %s: %w", channels[i], err)
		}
		epoched[i] = sig
		if n < minEpochs {
			minEpochs = n
		}
	}

	nch := len(channels)
	signal := make([]float32, 0, minEpochs*nch*EpochSamples)
	kept := make([]int32, 0, minEpochs)
	for e := 0; e < minEpochs; e++ {
		lab, ok := remapStage(labels[e])
		if !ok {
			continue
		}
		for _, sig := range epoched {
			signal = append(signal, sig[e*EpochSamples:(e+1)*EpochSamples]...)
		}
		kept = append(kept, lab)
	}

	rec := &Recording{
		Channels: channels,
		Shape:    []int{EpochSamples},
		Epochs:   len(kept),
		Signal:   signal,
		Labels:   kept,
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}
