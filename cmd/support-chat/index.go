package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/theimaginaryfoundation/support-buddy/buddy"
	"github.com/theimaginaryfoundation/support-buddy/buddy/fileutils"
)

// rebuildIndex rewrites <export-dir>/index.jsonl from every session.json under the export dir.
func rebuildIndex(exportDir string) (int, error) {
	var paths []string
	err := filepath.WalkDir(exportDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == "session.json" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reindex: walk exports: %w", err)
	}

	records := make([]buddy.IndexRecord, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return 0, fmt.Errorf("reindex: read %s: %w", p, err)
		}
		var snap buddy.Snapshot
		if err := json.Unmarshal(b, &snap); err != nil {
			return 0, fmt.Errorf("reindex: decode %s: %w", p, err)
		}
		rel, err := filepath.Rel(exportDir, p)
		if err != nil {
			rel = p
		}
		records = append(records, buddy.BuildIndexRecord(snap, filepath.ToSlash(rel)))
	}
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].StartedAt.Equal(records[j].StartedAt) {
			return records[i].StartedAt.Before(records[j].StartedAt)
		}
		return records[i].SessionID < records[j].SessionID
	})

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return 0, fmt.Errorf("reindex: encode: %w", err)
		}
	}
	if err := fileutils.WriteFileAtomicSameDir(filepath.Join(exportDir, "index.jsonl"), buf.Bytes(), 0o644); err != nil {
		return 0, fmt.Errorf("reindex: write: %w", err)
	}
	return len(records), nil
}
