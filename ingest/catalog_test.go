package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCatalogRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")

	c, err := OpenCatalog(ctx, path)
	require.NoError(t, err)

	require.NoError(t, c.MarkDone(ctx, "isruc", Subject{ID: 0, Record: "a/0"}, 900))
	require.NoError(t, c.MarkDone(ctx, "isruc", Subject{ID: 1, Record: "a/1"}, 850))
	require.NoError(t, c.MarkFailed(ctx, "isruc", Subject{ID: 2, Record: "a/2"}, errors.New("corrupt hypnogram")))

	done, err := c.Done(ctx, "isruc")
	require.NoError(t, err)
	require.Equal(t, map[int]int{0: 900, 1: 850}, done)

	failed, err := c.Failures(ctx, "isruc")
	require.NoError(t, err)
	require.Equal(t, map[int]string{2: "corrupt hypnogram"}, failed)

	// Other datasets are invisible.
	done, err = c.Done(ctx, "ucddb")
	require.NoError(t, err)
	require.Empty(t, done)

	require.NoError(t, c.Close())

	// State survives reopening.
	c, err = OpenCatalog(ctx, path)
	require.NoError(t, err)
	defer c.Close()

	done, err = c.Done(ctx, "isruc")
	require.NoError(t, err)
	require.Len(t, done, 2)
}

func TestCatalogUpsert(t *testing.T) {
	ctx := context.Background()
	c, err := OpenCatalog(ctx, filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer c.Close()

	s := Subject{ID: 5, Record: "a/5"}
	require.NoError(t, c.MarkFailed(ctx, "isruc", s, errors.New("transient")))

	failed, err := c.Failures(ctx, "isruc")
	require.NoError(t, err)
	require.Contains(t, failed, 5)

	// A later success replaces the failure.
	require.NoError(t, c.MarkDone(ctx, "isruc", s, 720))

	done, err := c.Done(ctx, "isruc")
	require.NoError(t, err)
	require.Equal(t, map[int]int{5: 720}, done)

	failed, err = c.Failures(ctx, "isruc")
	require.NoError(t, err)
	require.Empty(t, failed)
}
