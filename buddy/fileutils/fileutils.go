package fileutils

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Truncate trims s and cuts it to at most max bytes on a rune boundary, marking the cut with an ellipsis.
func Truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

// CopyFileIfExists copies srcPath to dstPath atomically. A missing source is not an error.
func CopyFileIfExists(srcPath, dstPath string, overwrite bool) (bool, error) {
	if srcPath == "" || dstPath == "" {
		return false, errors.New("copyFileIfExists: empty path")
	}

	if _, err := os.Stat(srcPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	if !overwrite && FileExists(dstPath) {
		return false, nil
	}

	b, err := os.ReadFile(srcPath)
	if err != nil {
		return false, err
	}
	if err := writeAtomic(dstPath, b, 0o644, ".tmp_copy_*"); err != nil {
		return false, err
	}
	return true, nil
}

func WriteJSONFileAtomic(path string, v any, pretty bool) error {
	var b []byte
	var err error
	if pretty {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	b = append(b, '\n')
	if err := writeAtomic(path, b, 0o644, ".tmp_export_*.json"); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

// WriteCSVAtomic renders rows as CSV and replaces path with the result.
func WriteCSVAtomic(path string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("encode csv: %w", err)
	}
	if err := writeAtomic(path, buf.Bytes(), 0o644, ".tmp_export_*.csv"); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// WriteFileAtomicSameDir writes data to a temp file next to path and renames it into place.
func WriteFileAtomicSameDir(path string, data []byte, mode fs.FileMode) error {
	return writeAtomic(path, data, mode, ".tmp_write_*")
}

func writeAtomic(path string, data []byte, mode fs.FileMode, pattern string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
