package analyze

import (
	"path"
	"regexp"
	"strings"
)

// RewriteRefs replaces every internal reference in a text unit with
// whatever lookup returns for its resolved build-root-relative path.
// References that are external, unresolvable, or declined by lookup
// are left untouched, as are non-text units. Query strings are dropped
// from rewritten references (content addressing makes them
// meaningless); fragments are kept.
//
// The same patterns drive extraction and rewriting, so a reference
// that produced a dependency edge is exactly a reference that gets
// rewritten.
func RewriteRefs(relPath, mime string, data []byte, lookup func(resolved string) (string, bool)) []byte {
	format := textFormat(mime)
	if format == "" {
		return data
	}

	fromDir := path.Dir(relPath)
	if fromDir == "." {
		fromDir = ""
	}

	replaceRaw := func(raw string) (string, bool) {
		resolved := resolveRef(fromDir, raw)
		if resolved == "" || resolved == relPath {
			return "", false
		}
		target, ok := lookup(resolved)
		if !ok {
			return "", false
		}
		if i := strings.IndexByte(raw, '#'); i >= 0 {
			target += raw[i:]
		}
		return target, true
	}

	text := string(data)
	apply := func(re *regexp.Regexp) {
		text = re.ReplaceAllStringFunc(text, func(m string) string {
			sub := re.FindStringSubmatch(m)
			if len(sub) < 2 {
				return m
			}
			if next, ok := replaceRaw(sub[1]); ok {
				return strings.Replace(m, sub[1], next, 1)
			}
			return m
		})
	}
	applySrcset := func() {
		text = htmlSrcsetPattern.ReplaceAllStringFunc(text, func(m string) string {
			sub := htmlSrcsetPattern.FindStringSubmatch(m)
			if len(sub) < 2 {
				return m
			}
			entries := strings.Split(sub[1], ",")
			for i, entry := range entries {
				fields := strings.Fields(strings.TrimSpace(entry))
				if len(fields) == 0 {
					continue
				}
				if next, ok := replaceRaw(fields[0]); ok {
					fields[0] = next
					entries[i] = " " + strings.Join(fields, " ")
					if i == 0 {
						entries[i] = strings.TrimPrefix(entries[i], " ")
					}
				}
			}
			return strings.Replace(m, sub[1], strings.Join(entries, ","), 1)
		})
	}

	switch format {
	case "html":
		apply(htmlAttrPattern)
		applySrcset()
		apply(cssURLPattern)
	case "css":
		apply(cssURLPattern)
	case "js":
		apply(jsImportPattern)
		apply(jsRequirePattern)
		apply(jsAssetPattern)
	case "svg":
		apply(svgHrefPattern)
		apply(cssURLPattern)
	}

	return []byte(text)
}
