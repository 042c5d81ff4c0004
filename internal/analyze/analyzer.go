package analyze

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/chainpress/chainpress/internal/fingerprint"
)

// errEmptyFile excludes zero-byte build artifacts (.nojekyll and the
// like); an inscription cannot carry an empty payload.
var errEmptyFile = errors.New("empty file, nothing to publish")

// Warning reports a file excluded from analysis. Warnings never abort
// the run; the deployment simply proceeds without the file.
type Warning struct {
	Path string
	Err  error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %v", w.Path, w.Err)
}

// Analyze scans a build directory and returns its dependency graph.
//
// The error return covers the directory as a whole (missing root,
// unwalkable tree); per-file failures come back as warnings with the
// file excluded from the graph.
func Analyze(root string) (*Graph, []Warning, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, fmt.Errorf("analyze %s: %w", root, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("analyze %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("analyze %s: not a directory", root)
	}

	var relPaths []string
	var warnings []Warning
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			warnings = append(warnings, Warning{Path: p, Err: walkErr})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			warnings = append(warnings, Warning{Path: p, Err: err})
			return nil
		}
		relPaths = append(relPaths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, warnings, fmt.Errorf("analyze %s: %w", root, err)
	}
	sort.Strings(relPaths)

	units := make([]*ContentUnit, 0, len(relPaths))
	for _, rel := range relPaths {
		abs := filepath.Join(absRoot, filepath.FromSlash(rel))
		data, err := os.ReadFile(abs)
		if err != nil {
			slog.Warn("skipping unreadable file", "path", rel, "error", err)
			warnings = append(warnings, Warning{Path: rel, Err: err})
			continue
		}
		if len(data) == 0 {
			slog.Warn("skipping empty file", "path", rel)
			warnings = append(warnings, Warning{Path: rel, Err: errEmptyFile})
			continue
		}

		norm := fingerprint.NormalizePath(rel)
		mime := MIMEForPath(norm)
		units = append(units, &ContentUnit{
			Path:        norm,
			AbsPath:     abs,
			MIME:        mime,
			Fingerprint: fingerprint.Content(data),
			Size:        int64(len(data)),
			Refs:        refsFor(norm, mime, data),
		})
	}

	return NewGraph(units), warnings, nil
}
