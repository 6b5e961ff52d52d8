package fs

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gabriel-vasile/mimetype"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is read from the walk root in addition to .gitignore.
const IgnoreFileName = ".docvecignore"

// WalkOptions configures FileWalker.
type WalkOptions struct {
	Root           string
	MaxFileSize    int64 // 0 means unlimited
	MaxFileCount   int   // 0 means unlimited
	IgnorePatterns []string
	IncludeHidden  bool
	UseGitignore   bool

	// Extensions restricts the walk to these suffixes ("md" or ".md").
	// Empty accepts every extension with a known media type.
	Extensions []string
}

// DefaultWalkOptions returns the options used by directory imports.
func DefaultWalkOptions() WalkOptions {
	return WalkOptions{
		MaxFileSize:  100 << 20,
		MaxFileCount: 10000,
		UseGitignore: true,
	}
}

// SkipReason says why the walker passed over a file.
type SkipReason string

const (
	SkipHidden     SkipReason = "hidden"
	SkipIgnored    SkipReason = "ignored"
	SkipTooLarge   SkipReason = "too_large"
	SkipExtension  SkipReason = "extension"
	SkipBinary     SkipReason = "binary"
	SkipUnreadable SkipReason = "unreadable"
)

// WalkStats summarizes one walk.
type WalkStats struct {
	FilesFound   int
	TotalBytes   int64
	DirsSkipped  int
	SkippedBytes int64
	Skipped      map[SkipReason]int
}

// FilesSkipped is the number of files skipped for any reason.
func (s WalkStats) FilesSkipped() int {
	n := 0
	for _, c := range s.Skipped {
		n += c
	}
	return n
}

// FileWalker finds importable documents below a root directory.
type FileWalker struct {
	opts   WalkOptions
	ignore *gitignore.GitIgnore
	exts   map[string]bool
	stats  WalkStats
}

// NewFileWalker validates the root and compiles the ignore rules.
func NewFileWalker(opts WalkOptions) (*FileWalker, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", root)
	}
	opts.Root = root

	w := &FileWalker{opts: opts}
	for _, ext := range opts.Extensions {
		if w.exts == nil {
			w.exts = make(map[string]bool, len(opts.Extensions))
		}
		w.exts["."+strings.TrimPrefix(strings.ToLower(ext), ".")] = true
	}

	patterns := append(append([]string{}, defaultIgnorePatterns...), opts.IgnorePatterns...)
	files := []string{IgnoreFileName}
	if opts.UseGitignore {
		files = append(files, ".gitignore")
	}
	for _, name := range files {
		lines, err := readIgnoreFile(filepath.Join(root, name))
		if err != nil {
			log.Warn("Failed to read ignore file", "file", name, "error", err)
			continue
		}
		patterns = append(patterns, lines...)
	}
	w.ignore = gitignore.CompileIgnoreLines(patterns...)

	return w, nil
}

// readIgnoreFile returns the lines of an ignore file, nil if it is absent.
func readIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}

// Walk calls fn for each document in lexical order. Unreadable entries
// are logged and skipped; an error from fn stops the walk.
func (w *FileWalker) Walk(fn func(FileInfo) error) error {
	w.stats = WalkStats{Skipped: make(map[SkipReason]int)}

	return filepath.WalkDir(w.opts.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Debug("Skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == w.opts.Root {
			return nil
		}

		rel, err := filepath.Rel(w.opts.Root, path)
		if err != nil {
			rel = path
		}
		slashRel := filepath.ToSlash(rel)

		if d.IsDir() {
			if d.Name() == ".git" || w.hidden(d.Name()) || w.ignore.MatchesPath(slashRel+"/") {
				w.stats.DirsSkipped++
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if w.opts.MaxFileCount > 0 && w.stats.FilesFound >= w.opts.MaxFileCount {
			return filepath.SkipAll
		}

		info, reason := w.inspect(path, d, slashRel)
		if reason != "" {
			w.stats.Skipped[reason]++
			if info != nil {
				w.stats.SkippedBytes += info.Size
			}
			return nil
		}
		info.RelPath = rel

		w.stats.FilesFound++
		w.stats.TotalBytes += info.Size
		return fn(*info)
	})
}

// inspect applies the file filters in order of cost and hashes survivors.
func (w *FileWalker) inspect(path string, d os.DirEntry, rel string) (*FileInfo, SkipReason) {
	if w.hidden(d.Name()) {
		return nil, SkipHidden
	}
	if w.ignore.MatchesPath(rel) {
		return nil, SkipIgnored
	}

	ext := Suffix(path)
	if w.exts != nil && !w.exts[ext] {
		return nil, SkipExtension
	}
	mediaType := DetectMediaType(path)
	if mediaType == MediaUnknown {
		return nil, SkipExtension
	}

	st, err := d.Info()
	if err != nil {
		log.Debug("Failed to stat file", "path", path, "error", err)
		return nil, SkipUnreadable
	}
	info := &FileInfo{Path: path, Size: st.Size(), ModTime: st.ModTime(), MediaType: mediaType}
	if w.opts.MaxFileSize > 0 && info.Size > w.opts.MaxFileSize {
		return info, SkipTooLarge
	}

	if mediaType != MediaPDF && info.Size > 0 {
		binary, err := looksBinary(path)
		if err != nil {
			log.Debug("Failed to sniff file", "path", path, "error", err)
			return info, SkipUnreadable
		}
		if binary {
			return info, SkipBinary
		}
	}

	if info.Hash, err = HashFile(path); err != nil {
		log.Debug("Failed to hash file", "path", path, "error", err)
		return info, SkipUnreadable
	}
	return info, ""
}

func (w *FileWalker) hidden(name string) bool {
	return !w.opts.IncludeHidden && strings.HasPrefix(name, ".")
}

// Stats returns the statistics of the last walk.
func (w *FileWalker) Stats() WalkStats {
	return w.stats
}

// looksBinary reports whether the head of a file sniffs as anything other
// than text.
func looksBinary(path string) (bool, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return false, err
	}
	return !isText(mt), nil
}

func isText(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// Patterns skipped by every directory import.
var defaultIgnorePatterns = []string{
	"node_modules/",
	"vendor/",
	"dist/",
	"build/",
	"target/",
	".idea/",
	".vscode/",
	"*.swp",
	"*~",
	".DS_Store",
	"Thumbs.db",
	"package-lock.json",
	"composer.lock",
	"*.min.*",
	"*.generated.*",
}
