package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LoadHistory reads a history file. A missing file returns an empty
// history and no error; a malformed file returns an error the caller
// should downgrade to "no cache available" rather than abort on.
func LoadHistory(path string) (*History, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &History{SchemaVersion: HistorySchemaVersion}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("load history: malformed %s: %w", path, err)
	}
	if h.SchemaVersion == 0 {
		h.SchemaVersion = HistorySchemaVersion
	}
	return &h, nil
}

// SaveHistory writes the history file atomically (temp file + rename)
// so a crash mid-write never leaves a truncated history behind.
func SaveHistory(path string, h *History) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return atomicWrite(path, data)
}

// SaveRecord writes a single deployment record file.
func SaveRecord(path string, r *DeploymentRecord) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return atomicWrite(path, data)
}

// LoadRecord reads a single deployment record file.
func LoadRecord(path string) (*DeploymentRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}
	var r DeploymentRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("load record: malformed %s: %w", path, err)
	}
	return &r, nil
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".chainpress-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
