package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/nwaples/rardecode/v2"
)

// DownloadFile fetches url into dest, creating parent directories as
// needed. A partial file is removed on failure so reruns start clean.
func DownloadFile(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("ingest: download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ingest: download %s: %s", url, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return fmt.Errorf("ingest: download %s: %w", url, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dest)
		return fmt.Errorf("ingest: %w", err)
	}
	return nil
}

// ExtractRAR unpacks an archive into dir. Member paths stay relative to
// dir; entries that would escape it are rejected.
func ExtractRAR(archive, dir string) error {
	r, err := rardecode.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("ingest: open %s: %w", archive, err)
	}
	defer r.Close()

	for {
		hdr, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("ingest: reading %s: %w", archive, err)
		}
		dest := filepath.Join(dir, filepath.FromSlash(hdr.Name))
		if rel, err := filepath.Rel(dir, dest); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("ingest: %s: member %q escapes %s", archive, hdr.Name, dir)
		}
		if hdr.IsDir {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		f, err := os.Create(dest)
		if err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		if _, err := io.Copy(f, r); err != nil {
			f.Close()
			return fmt.Errorf("ingest: extract %s from %s: %w", hdr.Name, archive, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
	}
}
