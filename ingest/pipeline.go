// Package ingest converts source polysomnography collections into dataset
// directories: per-subject signal and label stores for both the raw and
// time-frequency representations, the subject table, element-wise scaling
// statistics, and a seeded subject split.
//
// A Producer adapts one source collection (ISRUC, UCDDB). The Pipeline
// fans subjects out over a worker pool, writes the stores, and can resume
// an interrupted run through a Catalog.
package ingest

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/sleeplab/psgdata/dataset"
	"github.com/sleeplab/psgdata/store"
)

// Pipeline converts a Producer's recordings into a dataset directory.
type Pipeline struct {
	Producer Producer

	// OutDir is the dataset root to write: table.csv, splits.json, and one
	// store directory per representation.
	OutDir string

	// Workers bounds concurrent subject conversions. Zero means GOMAXPROCS.
	Workers int

	// Seed drives the split assignment. Zero means 42.
	Seed int64

	// TrainFrac and TestFrac are the split fractions, summing to at most 1.
	// Zero means 0.7 and 0.15, with the valid split taking the rest.
	TrainFrac, TestFrac float64

	// Catalog, when set, records per-subject outcomes and lets a rerun
	// skip subjects that are already converted.
	Catalog *Catalog

	// Fetch makes a downloading producer pull missing source files first.
	Fetch bool

	// Log receives progress lines. Nil means the standard logger.
	Log *log.Logger
}

// Summary reports what one Run did.
type Summary struct {
	Subjects int   // rows in the subject table
	Skipped  int   // subjects reused from an earlier run
	Failed   int   // subjects whose source could not be converted
	Epochs   int   // epochs across all table rows
	Bytes    int64 // store bytes written by this run
	Elapsed  time.Duration
}

// Run converts every subject the producer offers and writes the dataset
// directory. Per-subject source problems are logged, recorded in the
// catalog, and skipped; store write failures stop the run. Catalog writes
// are best effort: a failure costs the rerun its resume data, so it is
// logged, but it never stops the run.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	if p.Producer == nil {
		return nil, fmt.Errorf("ingest: no producer configured")
	}
	if p.OutDir == "" {
		return nil, fmt.Errorf("ingest: no output directory configured")
	}
	// A bad fraction pair must fail here, not after hours of conversion.
	if err := dataset.ValidateFractions(p.TrainFrac, p.TestFrac); err != nil {
		return nil, err
	}
	logger := p.Log
	if logger == nil {
		logger = log.Default()
	}
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	seed := p.Seed
	if seed == 0 {
		seed = 42
	}

	if p.Fetch {
		f, ok := p.Producer.(Fetcher)
		if !ok {
			return nil, fmt.Errorf("ingest: %s cannot fetch source files", p.Producer.Name())
		}
		if err := f.Fetch(ctx); err != nil {
			return nil, err
		}
	}

	name := p.Producer.Name()
	subjects, err := p.Producer.Subjects(ctx)
	if err != nil {
		return nil, err
	}
	channels := p.Producer.Channels()

	done := map[int]int{}
	if p.Catalog != nil {
		if done, err = p.Catalog.Done(ctx, name); err != nil {
			return nil, err
		}
	}

	rawDir := filepath.Join(p.OutDir, dataset.PreprocessingRaw)
	specDir := filepath.Join(p.OutDir, dataset.PreprocessingXSleepNet)

	var mu sync.Mutex
	rawStats := make(map[string]*statsAccum, len(channels))
	specStats := make(map[string]*statsAccum, len(channels))
	for _, ch := range channels {
		rawStats[ch] = newStatsAccum(EpochSamples)
		specStats[ch] = newStatsAccum(SpecFrames * SpecBins)
	}

	type outcome struct {
		epochs  int
		bytes   int64
		skipped bool
		failed  bool
	}
	outcomes := make([]outcome, len(subjects))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, s := range subjects {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if epochs, ok := done[s.ID]; ok {
				if err := p.reuseSubject(s, epochs, channels, rawDir, specDir, rawStats, specStats, &mu); err != nil {
					logger.Printf("ingest %s: subject %d: cannot reuse earlier run: %v", name, s.ID, err)
					outcomes[i] = outcome{failed: true}
					if p.Catalog != nil {
						if cerr := p.Catalog.MarkFailed(gctx, name, s, err); cerr != nil {
							logger.Printf("ingest %s: subject %d: catalog write failed: %v", name, s.ID, cerr)
						}
					}
					return nil
				}
				outcomes[i] = outcome{epochs: epochs, skipped: true}
				logger.Printf("ingest %s: subject %d: reusing %s epochs from earlier run",
					name, s.ID, humanize.Comma(int64(epochs)))
				return nil
			}

			rec, err := p.Producer.Read(gctx, s)
			if err == nil {
				err = p.checkRecording(rec, channels)
			}
			if err != nil {
				logger.Printf("ingest %s: subject %d failed: %v", name, s.ID, err)
				outcomes[i] = outcome{failed: true}
				if p.Catalog != nil {
					if cerr := p.Catalog.MarkFailed(gctx, name, s, err); cerr != nil {
						logger.Printf("ingest %s: subject %d: catalog write failed: %v", name, s.ID, cerr)
					}
				}
				return nil
			}

			bytes, err := p.writeSubject(rec, s, rawDir, specDir, rawStats, specStats, &mu)
			if err != nil {
				return fmt.Errorf("ingest: subject %d: %w", s.ID, err)
			}
			outcomes[i] = outcome{epochs: rec.Epochs, bytes: bytes}
			if p.Catalog != nil {
				if err := p.Catalog.MarkDone(gctx, name, s, rec.Epochs); err != nil {
					logger.Printf("ingest %s: subject %d: catalog write failed: %v", name, s.ID, err)
				}
			}
			logger.Printf("ingest %s: subject %d: %s epochs, %s written",
				name, s.ID, humanize.Comma(int64(rec.Epochs)), humanize.Bytes(uint64(bytes)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &Summary{}
	rows := make([]dataset.SubjectRecord, 0, len(subjects))
	for i, s := range subjects {
		o := outcomes[i]
		if o.failed {
			summary.Failed++
			continue
		}
		if o.skipped {
			summary.Skipped++
		}
		summary.Epochs += o.epochs
		summary.Bytes += o.bytes
		rows = append(rows, dataset.SubjectRecord{ID: s.ID, Epochs: o.epochs, Split: dataset.SplitNone})
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("ingest %s: no subjects converted", name)
	}
	summary.Subjects = len(rows)

	table, err := dataset.NewTable(rows)
	if err != nil {
		return nil, err
	}
	ids := make([]int, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	split, err := dataset.RandomSplit(ids, seed, p.TrainFrac, p.TestFrac)
	if err != nil {
		return nil, err
	}
	for _, id := range split.Train {
		if err := table.SetSplit(id, dataset.SplitTrain); err != nil {
			return nil, err
		}
	}
	for _, id := range split.Valid {
		if err := table.SetSplit(id, dataset.SplitValid); err != nil {
			return nil, err
		}
	}
	for _, id := range split.Test {
		if err := table.SetSplit(id, dataset.SplitTest); err != nil {
			return nil, err
		}
	}

	if err := table.Save(filepath.Join(p.OutDir, dataset.TableFile)); err != nil {
		return nil, err
	}
	if err := split.Save(filepath.Join(p.OutDir, dataset.SplitsFile)); err != nil {
		return nil, err
	}
	for dir, stats := range map[string]map[string]*statsAccum{rawDir: rawStats, specDir: specStats} {
		sc := dataset.Scaling{Channels: make(map[string]dataset.ChannelScale, len(channels))}
		for _, ch := range channels {
			sc.Channels[ch] = stats[ch].scale()
		}
		if err := sc.Save(filepath.Join(dir, dataset.ScalingFile)); err != nil {
			return nil, err
		}
	}

	summary.Elapsed = time.Since(start)
	logger.Printf("ingest %s: %d subjects (%d reused, %d failed), %s epochs, %s written in %s",
		name, summary.Subjects, summary.Skipped, summary.Failed,
		humanize.Comma(int64(summary.Epochs)), humanize.Bytes(uint64(summary.Bytes)),
		summary.Elapsed.Round(time.Millisecond))
	return summary, nil
}

// checkRecording verifies a producer handed back what it promised.
func (p *Pipeline) checkRecording(rec *Recording, channels []string) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if len(rec.Channels) != len(channels) {
		return fmt.Errorf("ingest: recording has channels %v, want %v", rec.Channels, channels)
	}
	for i, ch := range channels {
		if rec.Channels[i] != ch {
			return fmt.Errorf("ingest: recording has channels %v, want %v", rec.Channels, channels)
		}
	}
	if len(rec.Shape) != 1 || rec.Shape[0] != EpochSamples {
		return fmt.Errorf("ingest: recording epoch shape %v, want [%d]", rec.Shape, EpochSamples)
	}
	return nil
}

// writeSubject writes one recording's raw and spectrogram stores plus its
// labels, folding element statistics into the shared accumulators.
func (p *Pipeline) writeSubject(rec *Recording, s Subject, rawDir, specDir string,
	rawStats, specStats map[string]*statsAccum, mu *sync.Mutex) (int64, error) {

	sg := NewSpectrogrammer()
	nch := len(rec.Channels)
	var written int64

	for ci, ch := range rec.Channels {
		rw, err := store.CreateSignal(store.SignalPath(rawDir, ch, s.ID), rec.Shape)
		if err != nil {
			return written, err
		}
		sw, err := store.CreateSignal(store.SignalPath(specDir, ch, s.ID), []int{SpecFrames, SpecBins})
		if err != nil {
			rw.Close()
			return written, err
		}
		localRaw := newStatsAccum(EpochSamples)
		localSpec := newStatsAccum(SpecFrames * SpecBins)
		for e := 0; e < rec.Epochs; e++ {
			epoch := rec.Signal[(e*nch+ci)*EpochSamples : (e*nch+ci+1)*EpochSamples]
			spec, err := sg.Epoch(epoch)
			if err == nil {
				err = rw.WriteEpoch(epoch)
			}
			if err == nil {
				err = sw.WriteEpoch(spec)
			}
			if err == nil {
				err = localRaw.add(epoch)
			}
			if err == nil {
				err = localSpec.add(spec)
			}
			if err != nil {
				rw.Close()
				sw.Close()
				return written, err
			}
		}
		if err := rw.Close(); err != nil {
			sw.Close()
			return written, err
		}
		if err := sw.Close(); err != nil {
			return written, err
		}
		mu.Lock()
		rawStats[ch].merge(localRaw)
		specStats[ch].merge(localSpec)
		mu.Unlock()
		written += int64(rec.Epochs) * int64(EpochSamples+SpecFrames*SpecBins) * 4
	}

	for _, dir := range []string{rawDir, specDir} {
		lw, err := store.CreateLabels(store.LabelPath(dir, s.ID))
		if err != nil {
			return written, err
		}
		if err := lw.WriteLabels(rec.Labels); err != nil {
			lw.Close()
			return written, err
		}
		if err := lw.Close(); err != nil {
			return written, err
		}
		written += int64(len(rec.Labels)) * 2
	}
	return written, nil
}

// reuseSubject folds an already-converted subject's stores back into the
// scaling statistics, verifying the files still match the catalog.
func (p *Pipeline) reuseSubject(s Subject, epochs int, channels []string, rawDir, specDir string,
	rawStats, specStats map[string]*statsAccum, mu *sync.Mutex) error {

	for _, ch := range channels {
		localRaw, err := readStoreStats(store.SignalPath(rawDir, ch, s.ID), epochs, []int{EpochSamples})
		if err != nil {
			return err
		}
		localSpec, err := readStoreStats(store.SignalPath(specDir, ch, s.ID), epochs, []int{SpecFrames, SpecBins})
		if err != nil {
			return err
		}
		mu.Lock()
		rawStats[ch].merge(localRaw)
		specStats[ch].merge(localSpec)
		mu.Unlock()
	}
	for _, dir := range []string{rawDir, specDir} {
		ls, err := store.OpenLabels(store.LabelPath(dir, s.ID), epochs)
		if err != nil {
			return err
		}
		ls.Close()
	}
	return nil
}

// readStoreStats streams a signal store once and accumulates its
// element-wise moments.
func readStoreStats(path string, epochs int, shape []int) (*statsAccum, error) {
	st, err := store.OpenSignal(path, epochs, shape)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	acc := newStatsAccum(st.Elems())
	const chunk = 256
	for off := 0; off < epochs; off += chunk {
		n := min(chunk, epochs-off)
		vals, err := st.ReadEpochs(off, n)
		if err != nil {
			return nil, err
		}
		if err := acc.add(vals); err != nil {
			return nil, err
		}
	}
	return acc, nil
}
