package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Split is a subject's partition assignment. The numeric codes are what the
// table file stores.
type Split int8

const (
	SplitTrain Split = 0
	SplitValid Split = 1
	SplitTest  Split = 2
	SplitNone  Split = -1
)

func (s Split) String() string {
	switch s {
	case SplitTrain:
		return "train"
	case SplitValid:
		return "valid"
	case SplitTest:
		return "test"
	default:
		return "none"
	}
}

// ParseSplit accepts the numeric table codes as well as the split names. An
// empty field means unassigned.
func ParseSplit(s string) (Split, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "-1", "none":
		return SplitNone, nil
	case "0", "train":
		return SplitTrain, nil
	case "1", "valid", "validation":
		return SplitValid, nil
	case "2", "test":
		return SplitTest, nil
	}
	return SplitNone, fmt.Errorf("%w: unknown split %q", ErrConfig, s)
}

// SubjectRecord is one row of the subject table.
type SubjectRecord struct {
	// ID is the subject's dataset-wide id. Ids double as positions in the
	// index's per-subject array, so they must be non-negative and unique but
	// need not be contiguous.
	ID int

	// Epochs is the number of 30-second epochs in the subject's recording,
	// which fixes the length of every store file of that subject.
	Epochs int

	// Split is the subject's current partition assignment.
	Split Split

	// Age and Sex are optional demographics carried through from ingest;
	// zero values mean unknown.
	Age int
	Sex string
}

// Table is the subject table. Row order is file order and fixes the global
// window numbering, so it is preserved exactly.
type Table struct {
	rows []SubjectRecord
	byID map[int]int
}

// NewTable builds a table from rows, rejecting duplicate ids, negative ids
// and negative epoch counts.
func NewTable(rows []SubjectRecord) (*Table, error) {
	t := &Table{
		rows: append([]SubjectRecord(nil), rows...),
		byID: make(map[int]int, len(rows)),
	}
	for i, r := range t.rows {
		if r.ID < 0 {
			return nil, fmt.Errorf("%w: negative subject id %d", ErrConfig, r.ID)
		}
		if r.Epochs < 0 {
			return nil, fmt.Errorf("%w: subject %d has negative epoch count %d", ErrConfig, r.ID, r.Epochs)
		}
		if _, dup := t.byID[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate subject id %d", ErrConfig, r.ID)
		}
		t.byID[r.ID] = i
	}
	return t, nil
}

// LoadTable reads a subject table CSV. Required columns are subject_id and
// num_samples; split, age and sex are optional. Any malformed field is a
// configuration error.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open subject table: %w", ErrConfig, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: subject table %s: read header: %v", ErrConfig, path, err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, need := range []string{"subject_id", "num_samples"} {
		if _, ok := col[need]; !ok {
			return nil, fmt.Errorf("%w: subject table %s is missing column %q", ErrConfig, path, need)
		}
	}

	var rows []SubjectRecord
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: subject table %s line %d: %v", ErrConfig, path, line, err)
		}
		field := func(name string) string {
			if i, ok := col[name]; ok && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}

		id, err := strconv.Atoi(field("subject_id"))
		if err != nil {
			return nil, fmt.Errorf("%w: subject table %s line %d: subject_id: %v", ErrConfig, path, line, err)
		}
		epochs, err := strconv.Atoi(field("num_samples"))
		if err != nil {
			return nil, fmt.Errorf("%w: subject table %s line %d: num_samples: %v", ErrConfig, path, line, err)
		}
		row := SubjectRecord{ID: id, Epochs: epochs, Split: SplitNone, Sex: field("sex")}
		if s := field("split"); s != "" {
			row.Split, err = ParseSplit(s)
			if err != nil {
				return nil, fmt.Errorf("%w: subject table %s line %d: %v", ErrConfig, path, line, err)
			}
		}
		if s := field("age"); s != "" {
			row.Age, err = strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("%w: subject table %s line %d: age: %v", ErrConfig, path, line, err)
			}
		}
		rows = append(rows, row)
	}
	return NewTable(rows)
}

// Save writes the table as CSV with the split stored as its numeric code.
// Unknown age is written as an empty field.
func (t *Table) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	w.Write([]string{"subject_id", "num_samples", "split", "age", "sex"})
	for _, r := range t.rows {
		age := ""
		if r.Age != 0 {
			age = strconv.Itoa(r.Age)
		}
		w.Write([]string{
			strconv.Itoa(r.ID),
			strconv.Itoa(r.Epochs),
			strconv.Itoa(int(r.Split)),
			age,
			r.Sex,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Len returns the number of subjects.
func (t *Table) Len() int { return len(t.rows) }

// Records returns a copy of the rows in table order.
func (t *Table) Records() []SubjectRecord {
	return append([]SubjectRecord(nil), t.rows...)
}

// Lookup returns the record for a subject id.
func (t *Table) Lookup(id int) (SubjectRecord, bool) {
	i, ok := t.byID[id]
	if !ok {
		return SubjectRecord{}, false
	}
	return t.rows[i], true
}

// SetSplit reassigns one subject's partition.
func (t *Table) SetSplit(id int, s Split) error {
	i, ok := t.byID[id]
	if !ok {
		return fmt.Errorf("%w: unknown subject id %d", ErrConfig, id)
	}
	t.rows[i].Split = s
	return nil
}

// TotalEpochs sums the epoch counts of every subject.
func (t *Table) TotalEpochs() int {
	total := 0
	for _, r := range t.rows {
		total += r.Epochs
	}
	return total
}
