package analyze

import (
	"path"
	"regexp"
	"strings"

	"github.com/chainpress/chainpress/internal/fingerprint"
)

// Extraction patterns per text format. These deliberately
// over-extract; resolution against the actual file set filters the
// noise (a match that resolves to nothing in the build is dropped).
var (
	htmlAttrPattern = regexp.MustCompile(`(?i)(?:src|href|poster)\s*=\s*["']([^"']+)["']`)
	htmlSrcsetPattern = regexp.MustCompile(`(?i)srcset\s*=\s*["']([^"']+)["']`)

	cssURLPattern = regexp.MustCompile(`url\(\s*['"]?([^'")\s]+)['"]?\s*\)`)

	jsImportPattern  = regexp.MustCompile(`import\s+(?:[\w{}\s,*$]+\s+from\s+)?['"]([^'"]+)['"]`)
	jsRequirePattern = regexp.MustCompile(`(?:require|import)\(\s*['"]([^'"]+)['"]\s*\)`)
	jsAssetPattern   = regexp.MustCompile(`['"]([^'"\s]+\.(?:png|jpe?g|gif|webp|svg|ico|avif|mp4|webm|mov|mp3|wav|ogg|woff2?|ttf|otf|wasm|json|css|js|mjs))['"]`)

	svgHrefPattern = regexp.MustCompile(`(?i)(?:xlink:href|href)\s*=\s*["']([^"']+)["']`)

	schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)
)

// extractRefs pulls raw reference strings out of a text file.
func extractRefs(format string, data []byte) []string {
	text := string(data)
	var raw []string

	collect := func(re *regexp.Regexp) {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			raw = append(raw, m[1])
		}
	}

	switch format {
	case "html":
		collect(htmlAttrPattern)
		for _, m := range htmlSrcsetPattern.FindAllStringSubmatch(text, -1) {
			// srcset is a comma-separated list of "url [descriptor]"
			// entries.
			for _, entry := range strings.Split(m[1], ",") {
				fields := strings.Fields(strings.TrimSpace(entry))
				if len(fields) > 0 {
					raw = append(raw, fields[0])
				}
			}
		}
		collect(cssURLPattern) // inline style blocks
	case "css":
		collect(cssURLPattern)
	case "js":
		collect(jsImportPattern)
		collect(jsRequirePattern)
		collect(jsAssetPattern)
	case "svg":
		collect(svgHrefPattern)
		collect(cssURLPattern)
	}

	return raw
}

// isExternalRef reports whether a raw reference points outside the
// build: absolute URLs, protocol-relative URLs, data/blob URIs,
// fragments, and framework template placeholders.
func isExternalRef(ref string) bool {
	if ref == "" {
		return true
	}
	if strings.HasPrefix(ref, "//") {
		return true
	}
	if strings.HasPrefix(ref, "#") {
		return true
	}
	if schemePattern.MatchString(ref) {
		return true
	}
	// Template placeholders ({{var}}, ${var}, <%= %>) and bundler
	// internals are not files.
	if strings.Contains(ref, "{{") || strings.Contains(ref, "${") || strings.Contains(ref, "<%") {
		return true
	}
	if strings.HasPrefix(ref, "__") {
		return true
	}
	return false
}

// resolveRef maps a raw reference to a build-root-relative path, or
// "" if the reference leaves the build or is external. fromDir is the
// referencing file's directory relative to the build root ("" for the
// root itself).
func resolveRef(fromDir, ref string) string {
	if isExternalRef(ref) {
		return ""
	}

	// Strip query string and fragment; they address the same file.
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	if ref == "" {
		return ""
	}

	var resolved string
	if strings.HasPrefix(ref, "/") {
		// Root-relative: resolve against the build root.
		resolved = strings.TrimPrefix(path.Clean(ref), "/")
	} else {
		resolved = path.Join(fromDir, ref)
	}

	// A reference that escapes the build root cannot be a dependency.
	if resolved == ".." || strings.HasPrefix(resolved, "../") {
		return ""
	}

	return fingerprint.NormalizePath(resolved)
}

// refsFor extracts, resolves, and deduplicates the references of one
// file. Order is first appearance in the source text, which keeps
// analysis deterministic.
func refsFor(relPath, mime string, data []byte) []string {
	format := textFormat(mime)
	if format == "" {
		return nil
	}

	fromDir := path.Dir(relPath)
	if fromDir == "." {
		fromDir = ""
	}

	seen := make(map[string]bool)
	var refs []string
	for _, raw := range extractRefs(format, data) {
		resolved := resolveRef(fromDir, raw)
		if resolved == "" || resolved == relPath || seen[resolved] {
			continue
		}
		seen[resolved] = true
		refs = append(refs, resolved)
	}
	return refs
}
