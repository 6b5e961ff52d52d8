// Package fs provides file system helpers for ingestion: content hashing,
// media type detection, directory walking and text chunking.
package fs

import "time"

// FileInfo describes a document found by FileWalker.
type FileInfo struct {
	Path      string // absolute
	RelPath   string // relative to the walk root, used as the upload name
	Size      int64
	ModTime   time.Time
	Hash      string // BLAKE2b-256, hex
	MediaType string
}

// Chunk is one window of cleaned document text. Offsets count runes of the
// cleaned text, EndChar exclusive.
type Chunk struct {
	Content     string
	StartChar   int
	EndChar     int
	ChunkIndex  int
	TotalChunks int
}
