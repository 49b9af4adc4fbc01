package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const isrucBaseURL = "http://dataset.isr.uc.pt/ISRUC_Sleep"

// isrucEEGLabels are the montage names the C3 EEG derivation appears under
// across the two releases.
var isrucEEGLabels = []string{"C3-A2", "C3-M2"}

// ISRUC reads the ISRUC-Sleep polysomnography collection: subgroup I
// (subjects 1-100, with the withdrawn number 40 skipped) and subgroup III
// (subjects 1-10). Each subject is one night with a C3 EEG derivation and
// a 30 second hypnogram.
type ISRUC struct {
	// Root holds (or receives, when fetching) the extracted source files,
	// one <subgroup>/<subject> directory per night.
	Root string

	// Subgroups narrows ingestion to the named releases ("subgroupI",
	// "subgroupIII"). Empty means both.
	Subgroups []string
}

type isrucGroup struct {
	name     string
	subjects []int
}

func (p *ISRUC) groups() ([]isrucGroup, error) {
	one := make([]int, 0, 99)
	for n := 1; n <= 100; n++ {
		if n == 40 {
			continue
		}
		one = append(one, n)
	}
	three := make([]int, 0, 10)
	for n := 1; n <= 10; n++ {
		three = append(three, n)
	}
	all := []isrucGroup{
		{name: "subgroupI", subjects: one},
		{name: "subgroupIII", subjects: three},
	}
	if len(p.Subgroups) == 0 {
		return all, nil
	}
	var out []isrucGroup
	for _, want := range p.Subgroups {
		found := false
		for _, g := range all {
			if g.name == want {
				out = append(out, g)
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("ingest: unknown ISRUC subgroup %q", want)
		}
	}
	return out, nil
}

func (p *ISRUC) Name() string { return "isruc" }

func (p *ISRUC) Channels() []string { return []string{"EEG"} }

// Subjects numbers the recordings 0..n-1 in subgroup order. The record is
// the per-night file stem: <root>/<subgroup>/<subject>/<subject>.
func (p *ISRUC) Subjects(ctx context.Context) ([]Subject, error) {
	groups, err := p.groups()
	if err != nil {
		return nil, err
	}
	var subjects []Subject
	id := 0
	for _, g := range groups {
		for _, n := range g.subjects {
			subjects = append(subjects, Subject{
				ID:     id,
				Record: filepath.Join(p.Root, g.name, strconv.Itoa(n), strconv.Itoa(n)),
			})
			id++
		}
	}
	return subjects, nil
}

// Fetch downloads and unpacks every subject archive whose directory is not
// already present under Root, removing each archive after extraction.
func (p *ISRUC) Fetch(ctx context.Context) error {
	groups, err := p.groups()
	if err != nil {
		return err
	}
	for _, g := range groups {
		for _, n := range g.subjects {
			if err := ctx.Err(); err != nil {
				return err
			}
			dir := filepath.Join(p.Root, g.name, strconv.Itoa(n))
			if _, err := os.Stat(dir); err == nil {
				continue
			}
			url := fmt.Sprintf("%s/%s/%d.rar", isrucBaseURL, g.name, n)
			archive := dir + ".rar"
			if err := DownloadFile(ctx, url, archive); err != nil {
				return err
			}
			if err := ExtractRAR(archive, filepath.Join(p.Root, g.name)); err != nil {
				return err
			}
			if err := os.Remove(archive); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
		}
	}
	return nil
}

// Read converts one night: the <stem>_1.txt hypnogram paired with the C3
// EEG from <stem>.rec, epoched to the store layout.
func (p *ISRUC) Read(ctx context.Context, s Subject) (*Recording, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	labels, err := readStageFile(s.Record + "_1.txt")
	if err != nil {
		return nil, err
	}
	series, rate, err := readEDFSignal(s.Record+".rec", isrucEEGLabels)
	if err != nil {
		return nil, err
	}
	return buildRecording(p.Channels(), [][]float64{series}, []int{rate}, labels)
}
