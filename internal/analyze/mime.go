package analyze

import (
	"path"
	"strings"
)

// mimeByExtension is the fixed classification table. Unknown
// extensions map to the generic binary type.
var mimeByExtension = map[string]string{
	".html":  "text/html",
	".htm":   "text/html",
	".css":   "text/css",
	".js":    "application/javascript",
	".mjs":   "application/javascript",
	".json":  "application/json",
	".svg":   "image/svg+xml",
	".txt":   "text/plain",
	".md":    "text/markdown",
	".xml":   "application/xml",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".webp":  "image/webp",
	".ico":   "image/x-icon",
	".avif":  "image/avif",
	".mp4":   "video/mp4",
	".webm":  "video/webm",
	".mov":   "video/quicktime",
	".mp3":   "audio/mpeg",
	".wav":   "audio/wav",
	".ogg":   "audio/ogg",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".otf":   "font/otf",
	".wasm":  "application/wasm",
	".pdf":   "application/pdf",
}

// DefaultMIME is the type assigned to unrecognized extensions.
const DefaultMIME = "application/octet-stream"

// MIMEForPath classifies a file by extension.
func MIMEForPath(p string) string {
	ext := strings.ToLower(path.Ext(p))
	if m, ok := mimeByExtension[ext]; ok {
		return m
	}
	return DefaultMIME
}

// IsVideo reports whether the MIME type gets the progressive chunk
// schedule (streaming clients want a small first chunk).
func IsVideo(mime string) bool {
	return strings.HasPrefix(mime, "video/")
}

// textFormat identifies the reference-extraction strategy for a MIME
// type. Empty means the format carries no extractable references.
func textFormat(mime string) string {
	switch mime {
	case "text/html":
		return "html"
	case "text/css":
		return "css"
	case "application/javascript":
		return "js"
	case "image/svg+xml":
		return "svg"
	default:
		return ""
	}
}

// IsRewritable reports whether a unit's references can be rewritten
// after its dependencies publish. The rewriting collaborator only
// receives units of these formats.
func IsRewritable(mime string) bool {
	return textFormat(mime) != ""
}
