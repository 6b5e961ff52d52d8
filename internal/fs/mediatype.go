package fs

import (
	"path/filepath"
	"strings"
)

// Media type constants for the document formats the pipeline understands.
const (
	MediaText     = "text/plain"
	MediaMarkdown = "text/markdown"
	MediaHTML     = "text/html"
	MediaJSON     = "application/json"
	MediaXML      = "application/xml"
	MediaCSV      = "text/csv"
	MediaPDF      = "application/pdf"
	MediaUnknown  = ""
)

// extToMedia maps file extensions to media types.
var extToMedia = map[string]string{
	".txt":      MediaText,
	".text":     MediaText,
	".log":      MediaText,
	".md":       MediaMarkdown,
	".markdown": MediaMarkdown,
	".mdown":    MediaMarkdown,
	".html":     MediaHTML,
	".htm":      MediaHTML,
	".xhtml":    MediaHTML,
	".json":     MediaJSON,
	".xml":      MediaXML,
	".csv":      MediaCSV,
	".pdf":      MediaPDF,
}

// DetectMediaType returns the media type for a file path based on its
// extension, or MediaUnknown.
func DetectMediaType(path string) string {
	return extToMedia[Suffix(path)]
}

// Suffix returns the lower-cased extension of a file name including the
// leading dot, or "" when the name has none.
func Suffix(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// IsDocumentFile reports whether the path has an extension with a known
// media type.
func IsDocumentFile(path string) bool {
	return DetectMediaType(path) != MediaUnknown
}
