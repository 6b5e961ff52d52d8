// Package extract turns raw document bytes into plain text.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/gabriel-vasile/mimetype"

	"github.com/nickcecere/docvec/internal/fs"
)

var (
	// ErrUnsupportedFormat is returned for media types outside the allow-list.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrExtractionFailed is returned when a supported document cannot be decoded.
	ErrExtractionFailed = errors.New("extraction failed")
)

// octetStream is the generic binary type clients send when they do not know better.
const octetStream = "application/octet-stream"

// Allowed lists the media types the extractor accepts.
var Allowed = map[string]bool{
	fs.MediaText:            true,
	fs.MediaMarkdown:        true,
	"text/x-markdown":       true,
	fs.MediaHTML:            true,
	"application/xhtml+xml": true,
	fs.MediaJSON:            true,
	fs.MediaXML:             true,
	"text/xml":              true,
	fs.MediaCSV:             true,
	fs.MediaPDF:             true,
}

// Extractor extracts text from document bytes.
type Extractor interface {
	// Extract returns the text of data. mediaType is the declared type and
	// may be empty; name is the original file name, used for detection.
	Extract(ctx context.Context, data []byte, mediaType, name string) (string, error)
}

// DocumentExtractor is the default Extractor.
type DocumentExtractor struct{}

// New creates a new document extractor.
func New() *DocumentExtractor {
	return &DocumentExtractor{}
}

// Extract implements Extractor.
func (e *DocumentExtractor) Extract(ctx context.Context, data []byte, mediaType, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	resolved := Resolve(data, mediaType, name)
	if !Allowed[resolved] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, resolved)
	}

	log.Debug("Extracting text", "name", name, "media_type", resolved, "bytes", len(data))

	switch resolved {
	case fs.MediaHTML, "application/xhtml+xml":
		return extractHTML(data)
	case fs.MediaJSON:
		return projectJSON(toUTF8(data)), nil
	case fs.MediaXML, "text/xml":
		return projectXML(toUTF8(data)), nil
	case fs.MediaPDF:
		return extractPDF(ctx, data)
	default:
		return toUTF8(data), nil
	}
}

// Normalize lower-cases a media type and strips its parameters.
func Normalize(mediaType string) string {
	mediaType = strings.TrimSpace(mediaType)
	if mediaType == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		return parsed
	}
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// Resolve returns the effective media type of a document. A declared type
// wins unless it is empty or generic binary, in which case the file name
// suffix is tried and then the content is sniffed.
func Resolve(data []byte, declared, name string) string {
	mediaType := Normalize(declared)
	if mediaType != "" && mediaType != octetStream {
		return mediaType
	}

	if byName := fs.DetectMediaType(name); byName != fs.MediaUnknown {
		return byName
	}

	return sniff(data)
}

// sniff detects the media type from content, walking up the detection
// tree until an allowed type is found.
func sniff(data []byte) string {
	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		if t := Normalize(m.String()); Allowed[t] {
			return t
		}
	}
	return Normalize(detected.String())
}

// FormatHint returns the cleaner hint for a media type, falling back to
// the bare suffix.
func FormatHint(mediaType, suffix string) string {
	switch Normalize(mediaType) {
	case fs.MediaMarkdown, "text/x-markdown":
		return "md"
	case fs.MediaText, fs.MediaCSV:
		return "txt"
	case fs.MediaPDF:
		return "pdf"
	case fs.MediaHTML, "application/xhtml+xml":
		return "html"
	case fs.MediaJSON:
		return "json"
	case fs.MediaXML, "text/xml":
		return "xml"
	}
	return strings.TrimPrefix(strings.ToLower(suffix), ".")
}

// toUTF8 decodes data as UTF-8, replacing invalid sequences.
func toUTF8(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "�")
}
