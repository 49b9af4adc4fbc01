package dataset

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
)

// SplitFile mirrors splits.json: explicit subject-id lists per partition.
// Persisting the drawn partition keeps runs comparable across machines.
type SplitFile struct {
	Train []int `json:"train"`
	Valid []int `json:"valid"`
	Test  []int `json:"test"`
}

// LoadSplits reads a splits.json file.
func LoadSplits(path string) (*SplitFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open splits: %w", ErrConfig, err)
	}
	var f SplitFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: splits %s: %v", ErrConfig, path, err)
	}
	return &f, nil
}

// Save writes the split lists, creating parent directories as needed.
func (f *SplitFile) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// normalizeFractions applies the default 70/15 pair and rejects fractions
// that claim more subjects than exist.
func normalizeFractions(trainFrac, testFrac float64) (float64, float64, error) {
	if trainFrac <= 0 {
		trainFrac = 0.7
	}
	if testFrac <= 0 {
		testFrac = 0.15
	}
	if trainFrac+testFrac > 1 {
		return 0, 0, fmt.Errorf("%w: train fraction %v and test fraction %v sum to more than 1",
			ErrConfig, trainFrac, testFrac)
	}
	return trainFrac, testFrac, nil
}

// ValidateFractions checks a train/test fraction pair without drawing a
// partition, so a misconfigured pair surfaces before any work depends on
// it. Values at or below zero are checked as the defaults they fall back
// to in RandomSplit.
func ValidateFractions(trainFrac, testFrac float64) error {
	_, _, err := normalizeFractions(trainFrac, testFrac)
	return err
}

// RandomSplit partitions ids into train/valid/test, deterministically for a
// given seed. Fractions at or below zero fall back to the usual 70/15/15;
// valid takes whatever train and test leave, so a pair summing to more
// than 1 is an ErrConfig.
func RandomSplit(ids []int, seed int64, trainFrac, testFrac float64) (*SplitFile, error) {
	trainFrac, testFrac, err := normalizeFractions(trainFrac, testFrac)
	if err != nil {
		return nil, err
	}
	shuffled := append([]int(nil), ids...)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	nTrain := int(float64(len(shuffled)) * trainFrac)
	nTest := int(float64(len(shuffled)) * testFrac)
	f := &SplitFile{
		Train: append([]int(nil), shuffled[:nTrain]...),
		Test:  append([]int(nil), shuffled[nTrain:nTrain+nTest]...),
		Valid: append([]int(nil), shuffled[nTrain+nTest:]...),
	}
	sort.Ints(f.Train)
	sort.Ints(f.Valid)
	sort.Ints(f.Test)
	return f, nil
}

// Assign stamps the table's split column from explicit lists. Every listed id
// must exist; an id in two lists is a configuration error; subjects in no
// list become unassigned. On error the table is left unchanged.
func (d *Dataset) Assign(f *SplitFile) error {
	assign := make(map[int]Split, len(f.Train)+len(f.Valid)+len(f.Test))
	for _, part := range []struct {
		ids   []int
		split Split
	}{
		{f.Train, SplitTrain},
		{f.Valid, SplitValid},
		{f.Test, SplitTest},
	} {
		for _, id := range part.ids {
			if _, ok := d.table.byID[id]; !ok {
				return fmt.Errorf("%w: split %s lists unknown subject %d", ErrConfig, part.split, id)
			}
			if prev, dup := assign[id]; dup {
				return fmt.Errorf("%w: subject %d is in both %s and %s", ErrConfig, id, prev, part.split)
			}
			assign[id] = part.split
		}
	}
	for i := range d.table.rows {
		d.table.rows[i].Split = SplitNone
	}
	for id, s := range assign {
		d.table.rows[d.table.byID[id]].Split = s
	}
	return nil
}

// AssignFile loads a splits.json and applies it.
func (d *Dataset) AssignFile(path string) error {
	f, err := LoadSplits(path)
	if err != nil {
		return err
	}
	return d.Assign(f)
}

// AssignRandom draws a seeded subject-level partition over every subject in
// the table, applies it, and returns it so callers can persist it next to
// the stores.
func (d *Dataset) AssignRandom(seed int64, trainFrac, testFrac float64) (*SplitFile, error) {
	ids := make([]int, 0, d.table.Len())
	for _, r := range d.table.Records() {
		ids = append(ids, r.ID)
	}
	f, err := RandomSplit(ids, seed, trainFrac, testFrac)
	if err != nil {
		return nil, err
	}
	if err := d.Assign(f); err != nil {
		return nil, err
	}
	return f, nil
}

// Sets expands the subject-level assignment into window-id lists. The lists
// are disjoint because every window belongs to exactly one subject; windows
// of unassigned subjects appear in none of them.
func (d *Dataset) Sets() (train, valid, test []int) {
	for _, r := range d.table.Records() {
		n := SubjectWindows(r.Epochs, d.cfg.SeqLen)
		if n == 0 {
			continue
		}
		var dst *[]int
		switch r.Split {
		case SplitTrain:
			dst = &train
		case SplitValid:
			dst = &valid
		case SplitTest:
			dst = &test
		default:
			continue
		}
		start := d.index.start(r.ID)
		for w := start; w < start+n; w++ {
			*dst = append(*dst, w)
		}
	}
	return train, valid, test
}
