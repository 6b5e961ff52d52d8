package fs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDetectMediaType tests media type detection from file paths.
func TestDetectMediaType(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"notes.txt", MediaText},
		{"server.log", MediaText},
		{"README.md", MediaMarkdown},
		{"guide.MARKDOWN", MediaMarkdown},
		{"index.html", MediaHTML},
		{"page.htm", MediaHTML},
		{"data.json", MediaJSON},
		{"feed.xml", MediaXML},
		{"table.csv", MediaCSV},
		{"paper.pdf", MediaPDF},
		{"photo.png", MediaUnknown},
		{"Makefile", MediaUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectMediaType(tt.path))
		})
	}
}

func TestSuffix(t *testing.T) {
	assert.Equal(t, ".pdf", Suffix("Report.PDF"))
	assert.Equal(t, ".gz", Suffix("archive.tar.gz"))
	assert.Equal(t, "", Suffix("LICENSE"))
}

// TestHashContent tests content hashing.
func TestHashContent(t *testing.T) {
	h1 := HashContent([]byte("hello world"))
	h2 := HashContent([]byte("hello world"))
	h3 := HashContent([]byte("hello world!"))

	assert.Equal(t, h1, h2, "same content should have same hash")
	assert.NotEqual(t, h1, h3, "different content should have different hash")
	assert.Len(t, h1, 64, "BLAKE2b-256 hex digest is 64 chars")
	assert.Equal(t, strings.ToLower(h1), h1)
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.txt")
	content := []byte("some document body")
	require.NoError(t, os.WriteFile(path, content, 0644))

	hash, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, HashContent(content), hash)

	_, err = HashFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestLooksBinary(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content []byte
		binary  bool
	}{
		{"plain.txt", []byte("plain text\nwith lines\n"), false},
		{"data.json", []byte(`{"a": [1, 2, 3]}`), false},
		{"page.html", []byte("<html><body><p>hi</p></body></html>"), false},
		{"nul.txt", []byte{'a', 0, 'b', 0, 0, 0xff}, true},
		{"zip.txt", []byte("PK\x03\x04\x14\x00\x00\x00\x08\x00"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			require.NoError(t, os.WriteFile(path, tt.content, 0644))
			binary, err := looksBinary(path)
			require.NoError(t, err)
			assert.Equal(t, tt.binary, binary)
		})
	}
}

// sentenceText returns exactly n runes made of short sentences.
func sentenceText(n int) string {
	base := strings.Repeat("Lorem ipsum dolor sit amet. ", n/28+2)
	return string([]rune(base)[:n])
}

// TestTextChunker tests the sentence-aware splitter.
func TestTextChunker(t *testing.T) {
	chunker := NewTextChunker(ChunkOptions{
		ChunkSize:    1000,
		ChunkOverlap: 200,
	})

	t.Run("blank content returns nil", func(t *testing.T) {
		assert.Nil(t, chunker.Split(""))
		assert.Nil(t, chunker.Split("   \n\t  "))
	})

	t.Run("small content returns single trimmed chunk", func(t *testing.T) {
		chunks := chunker.Split("  Hello, World!  ")
		require.Len(t, chunks, 1)
		assert.Equal(t, "Hello, World!", chunks[0].Content)
		assert.Equal(t, 0, chunks[0].ChunkIndex)
		assert.Equal(t, 1, chunks[0].TotalChunks)
	})

	t.Run("content exactly chunk size is not split", func(t *testing.T) {
		chunks := chunker.Split(strings.Repeat("a", 1000))
		require.Len(t, chunks, 1)
	})

	t.Run("coverage of 2500 characters", func(t *testing.T) {
		text := sentenceText(2500)
		chunks := chunker.Split(text)
		require.GreaterOrEqual(t, len(chunks), 3)

		assert.Equal(t, 0, chunks[0].StartChar)
		assert.Equal(t, 2500, chunks[len(chunks)-1].EndChar)

		for i := 1; i < len(chunks); i++ {
			advance := chunks[i].StartChar - chunks[i-1].StartChar
			assert.GreaterOrEqual(t, advance, 1, "chunk %d must move forward", i)
			assert.LessOrEqual(t, advance, 1000, "chunk %d advanced too far", i)
			assert.LessOrEqual(t, chunks[i].StartChar, chunks[i-1].EndChar, "chunk %d must overlap", i)
		}
	})

	t.Run("chunks carry index and total", func(t *testing.T) {
		chunks := chunker.Split(sentenceText(2500))
		for i, c := range chunks {
			assert.Equal(t, i, c.ChunkIndex)
			assert.Equal(t, len(chunks), c.TotalChunks)
			assert.NotEmpty(t, c.Content)
		}
	})

	t.Run("chunks end on sentence boundaries", func(t *testing.T) {
		chunks := chunker.Split(sentenceText(2500))
		for _, c := range chunks[:len(chunks)-1] {
			assert.True(t, strings.HasSuffix(c.Content, "."), "chunk should end with a period: %q", c.Content[len(c.Content)-10:])
			assert.LessOrEqual(t, c.EndChar-c.StartChar, 1200)
		}
	})

	t.Run("text without terminators uses raw windows", func(t *testing.T) {
		text := strings.Repeat("abcdefghij", 250)
		chunks := chunker.Split(text)
		require.NotEmpty(t, chunks)
		assert.Equal(t, 1000, chunks[0].EndChar)
		assert.Equal(t, 800, chunks[1].StartChar)
		assert.Equal(t, 2500, chunks[len(chunks)-1].EndChar)
	})

	t.Run("full-width terminators are boundaries", func(t *testing.T) {
		small := NewTextChunker(ChunkOptions{ChunkSize: 20, ChunkOverlap: 0, BoundaryWindow: 10})
		text := strings.Repeat("这是一个句子。 ", 10)
		chunks := small.Split(text)
		require.NotEmpty(t, chunks)
		for _, c := range chunks[:len(chunks)-1] {
			assert.True(t, strings.HasSuffix(c.Content, "。"), "got %q", c.Content)
		}
	})
}

func TestTextChunkerOverlapLargerThanSize(t *testing.T) {
	chunker := NewTextChunker(ChunkOptions{ChunkSize: 10, ChunkOverlap: 50})
	text := strings.Repeat("abcdefghij", 10)

	chunks := chunker.Split(text)

	// The cursor advances one rune at a time but still reaches the end
	require.Len(t, chunks, 91)
	assert.Equal(t, 100, chunks[len(chunks)-1].EndChar)
	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, 1, chunks[i].StartChar-chunks[i-1].StartChar)
	}
}

func TestNewTextChunkerDefaults(t *testing.T) {
	chunker := NewTextChunker(ChunkOptions{ChunkSize: -1, ChunkOverlap: -1})
	opts := chunker.Options()
	defaults := DefaultChunkOptions()

	assert.Equal(t, defaults.ChunkSize, opts.ChunkSize)
	assert.Equal(t, defaults.ChunkOverlap, opts.ChunkOverlap)
	assert.Equal(t, defaults.BoundaryWindow, opts.BoundaryWindow)
	assert.Equal(t, defaults.BoundarySlack, opts.BoundarySlack)
}

// TestFileWalker tests directory walking.
func TestFileWalker(t *testing.T) {
	tmpDir := t.TempDir()

	files := map[string]string{
		"notes.md":           "# Notes\n",
		"readme.txt":         "plain text\n",
		"data.json":          `{"a": 1}`,
		"photo.png":          "not really a png",
		"sub/page.html":      "<p>hello</p>",
		".hidden.md":         "hidden file",
		"node_modules/x.md":  "ignored",
		"sub/deeper/info.md": "deep",
	}

	for path, content := range files {
		fullPath := filepath.Join(tmpDir, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0755))
		require.NoError(t, os.WriteFile(fullPath, []byte(content), 0644))
	}

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".gitignore"), []byte("*.json\n"), 0644))

	t.Run("finds documents only", func(t *testing.T) {
		walker, err := NewFileWalker(WalkOptions{Root: tmpDir, UseGitignore: true})
		require.NoError(t, err)

		var found []string
		require.NoError(t, walker.Walk(func(info FileInfo) error {
			found = append(found, info.RelPath)
			return nil
		}))

		assert.ElementsMatch(t, []string{
			"notes.md",
			"readme.txt",
			filepath.Join("sub", "page.html"),
			filepath.Join("sub", "deeper", "info.md"),
		}, found)
	})

	t.Run("respects extension filter", func(t *testing.T) {
		walker, err := NewFileWalker(WalkOptions{Root: tmpDir, Extensions: []string{"md"}})
		require.NoError(t, err)

		var found []string
		require.NoError(t, walker.Walk(func(info FileInfo) error {
			found = append(found, info.RelPath)
			return nil
		}))

		assert.ElementsMatch(t, []string{"notes.md", filepath.Join("sub", "deeper", "info.md")}, found)
	})

	t.Run("respects max file count", func(t *testing.T) {
		walker, err := NewFileWalker(WalkOptions{Root: tmpDir, MaxFileCount: 1})
		require.NoError(t, err)

		count := 0
		require.NoError(t, walker.Walk(func(info FileInfo) error {
			count++
			return nil
		}))
		assert.Equal(t, 1, count)
	})

	t.Run("fills hash and media type", func(t *testing.T) {
		walker, err := NewFileWalker(WalkOptions{Root: tmpDir})
		require.NoError(t, err)

		var notes *FileInfo
		require.NoError(t, walker.Walk(func(info FileInfo) error {
			if info.RelPath == "notes.md" {
				notes = &info
			}
			return nil
		}))

		require.NotNil(t, notes)
		assert.Equal(t, HashContent([]byte("# Notes\n")), notes.Hash)
		assert.Equal(t, MediaMarkdown, notes.MediaType)
		assert.Equal(t, int64(8), notes.Size)
	})

	t.Run("provides stats", func(t *testing.T) {
		walker, err := NewFileWalker(WalkOptions{Root: tmpDir, UseGitignore: true})
		require.NoError(t, err)
		require.NoError(t, walker.Walk(func(FileInfo) error { return nil }))

		stats := walker.Stats()
		assert.Equal(t, 4, stats.FilesFound)
		assert.Equal(t, 1, stats.Skipped[SkipExtension]) // photo.png
		assert.Equal(t, 1, stats.Skipped[SkipIgnored])   // data.json
		assert.Equal(t, 2, stats.Skipped[SkipHidden])    // .hidden.md, .gitignore
		assert.Equal(t, 4, stats.FilesSkipped())
		assert.Equal(t, 1, stats.DirsSkipped) // node_modules
	})

	t.Run("reads docvecignore", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(root, "keep.md"), []byte("keep"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(root, "draft.md"), []byte("draft"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(root, IgnoreFileName), []byte("draft.md\n"), 0644))

		walker, err := NewFileWalker(WalkOptions{Root: root})
		require.NoError(t, err)
		var found []string
		require.NoError(t, walker.Walk(func(info FileInfo) error {
			found = append(found, info.RelPath)
			return nil
		}))
		assert.Equal(t, []string{"keep.md"}, found)
	})

	t.Run("skips binary content and large files", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(root, "bin.txt"), []byte{0, 1, 2, 0, 0xfe, 0xff}, 0644))
		require.NoError(t, os.WriteFile(filepath.Join(root, "big.md"), []byte(strings.Repeat("x", 64)), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(root, "ok.md"), []byte("fine"), 0644))

		walker, err := NewFileWalker(WalkOptions{Root: root, MaxFileSize: 32})
		require.NoError(t, err)
		require.NoError(t, walker.Walk(func(FileInfo) error { return nil }))

		stats := walker.Stats()
		assert.Equal(t, 1, stats.FilesFound)
		assert.Equal(t, 1, stats.Skipped[SkipBinary])
		assert.Equal(t, 1, stats.Skipped[SkipTooLarge])
		assert.Equal(t, int64(64+6), stats.SkippedBytes)
	})
}

func TestFileWalkerErrors(t *testing.T) {
	t.Run("non-existent root", func(t *testing.T) {
		_, err := NewFileWalker(WalkOptions{Root: "/does/not/exist"})
		assert.Error(t, err)
	})

	t.Run("root is file not directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "file.txt")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

		_, err := NewFileWalker(WalkOptions{Root: path})
		assert.Error(t, err)
	})
}
