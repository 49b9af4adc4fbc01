package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestISRUCSubjects(t *testing.T) {
	p := &ISRUC{Root: "download"}
	subjects, err := p.Subjects(context.Background())
	require.NoError(t, err)

	// Subgroup I minus the withdrawn subject 40, plus subgroup III.
	require.Len(t, subjects, 99+10)
	require.Equal(t, 0, subjects[0].ID)
	require.Equal(t, filepath.Join("download", "subgroupI", "1", "1"), subjects[0].Record)
	require.Equal(t, filepath.Join("download", "subgroupIII", "10", "10"), subjects[108].Record)

	withdrawn := filepath.Join("subgroupI", "40")
	for _, s := range subjects {
		require.False(t, strings.Contains(s.Record, withdrawn), "subject 40 should be skipped: %s", s.Record)
	}
	for i, s := range subjects {
		require.Equal(t, i, s.ID)
	}
}

func TestISRUCSubgroupFilter(t *testing.T) {
	p := &ISRUC{Root: "download", Subgroups: []string{"subgroupIII"}}
	subjects, err := p.Subjects(context.Background())
	require.NoError(t, err)
	require.Len(t, subjects, 10)
	require.Contains(t, subjects[0].Record, "subgroupIII")

	p = &ISRUC{Root: "download", Subgroups: []string{"subgroupII"}}
	_, err = p.Subjects(context.Background())
	require.ErrorContains(t, err, "unknown ISRUC subgroup")
}

func TestISRUCRead(t *testing.T) {
	root := t.TempDir()
	stem := filepath.Join(root, "subgroupI", "7", "7")
	require.NoError(t, os.MkdirAll(filepath.Dir(stem), 0o755))

	// Two scored epochs at the target rate; stage 5 collapses to N3.
	writeEDF(t, stem+".rec", []string{"C3-A2"}, []int{TargetRate}, 2*EpochSeconds,
		func(sig, rec, i int) float64 { return 3 })
	require.NoError(t, os.WriteFile(stem+"_1.txt", []byte("0\n5\n"), 0o644))

	p := &ISRUC{Root: root}
	rec, err := p.Read(context.Background(), Subject{ID: 6, Record: stem})
	require.NoError(t, err)

	require.Equal(t, []string{"EEG"}, rec.Channels)
	require.Equal(t, []int{EpochSamples}, rec.Shape)
	require.Equal(t, 2, rec.Epochs)
	require.Equal(t, []int32{0, 3}, rec.Labels)
	require.Len(t, rec.Signal, 2*EpochSamples)
	for i, v := range rec.Signal {
		require.InDelta(t, 3.0, float64(v), 1e-5, "sample %d", i)
	}
}

func TestISRUCReadFallbackMontage(t *testing.T) {
	root := t.TempDir()
	stem := filepath.Join(root, "subgroupIII", "2", "2")
	require.NoError(t, os.MkdirAll(filepath.Dir(stem), 0o755))

	// Subgroup III nights label the derivation C3-M2.
	writeEDF(t, stem+".rec", []string{"C3-M2"}, []int{TargetRate}, EpochSeconds,
		func(sig, rec, i int) float64 { return 1 })
	require.NoError(t, os.WriteFile(stem+"_1.txt", []byte("2\n"), 0o644))

	p := &ISRUC{Root: root}
	rec, err := p.Read(context.Background(), Subject{ID: 0, Record: stem})
	require.NoError(t, err)
	require.Equal(t, 1, rec.Epochs)
	require.Equal(t, []int32{1}, rec.Labels)
}

func TestISRUCReadMissingHypnogram(t *testing.T) {
	root := t.TempDir()
	stem := filepath.Join(root, "subgroupI", "3", "3")
	require.NoError(t, os.MkdirAll(filepath.Dir(stem), 0o755))
	writeEDF(t, stem+".rec", []string{"C3-A2"}, []int{TargetRate}, EpochSeconds,
		func(sig, rec, i int) float64 { return 0 })

	p := &ISRUC{Root: root}
	_, err := p.Read(context.Background(), Subject{ID: 0, Record: stem})
	require.Error(t, err)
}
