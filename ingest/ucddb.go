package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ucddbChannelLabels maps each stored channel to the montage names it
// appears under in the recordings.
var ucddbChannelLabels = map[string][]string{
	"EEG": {"C3A2", "C3-A2", "EEG C3-A2"},
	"EOG": {"Lefteye", "LOC-A2", "EOG(L)"},
	"EMG": {"chin EMG", "EMG", "Chin"},
	"ECG": {"ECG", "ECG I"},
}

// UCDDB reads the St. Vincent's University Hospital sleep apnea database:
// overnight recordings with EEG, EOG, EMG and ECG channels and an R&K
// hypnogram scored per 30 seconds.
type UCDDB struct {
	// Root holds the PhysioNet files: ucddbNNN.rec recordings with
	// ucddbNNN_stage.txt hypnograms alongside.
	Root string
}

func (p *UCDDB) Name() string { return "ucddb" }

func (p *UCDDB) Channels() []string { return []string{"EEG", "EOG", "EMG", "ECG"} }

// Subjects numbers the recordings 0..n-1 in lexical order of their .rec
// files. The record is the file stem without the extension.
func (p *UCDDB) Subjects(ctx context.Context) ([]Subject, error) {
	recs, err := filepath.Glob(filepath.Join(p.Root, "*.rec"))
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("ingest: no .rec files under %s", p.Root)
	}
	sort.Strings(recs)
	subjects := make([]Subject, 0, len(recs))
	for i, rec := range recs {
		subjects = append(subjects, Subject{ID: i, Record: strings.TrimSuffix(rec, ".rec")})
	}
	return subjects, nil
}

// Read converts one night: the <stem>_stage.txt hypnogram paired with the
// four channels from <stem>.rec, epoched to the store layout. Channels may
// run at different rates; each is resampled independently.
func (p *UCDDB) Read(ctx context.Context, s Subject) (*Recording, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	labels, err := readStageFile(s.Record + "_stage.txt")
	if err != nil {
		return nil, err
	}
	channels := p.Channels()
	series := make([][]float64, len(channels))
	rates := make([]int, len(channels))
	for i, ch := range channels {
		sig, rate, err := readEDFSignal(s.Record+".rec", ucddbChannelLabels[ch])
		if err != nil {
			return nil, err
		}
		series[i] = sig
		rates[i] = rate
	}
	return buildRecording(channels, series, rates, labels)
}
