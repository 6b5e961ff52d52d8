package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"

	"github.com/nickcecere/docvec/internal/extract"
	"github.com/nickcecere/docvec/internal/fs"
	"github.com/nickcecere/docvec/internal/store"
	"github.com/nickcecere/docvec/internal/ui"
)

// showSpinner displays an animated spinner until stopCh is closed.
func showSpinner(message string, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()
	defer close(doneCh)

	i := 0
	for {
		select {
		case <-stopCh:
			// Clear spinner line
			fmt.Print("\r\033[2K")
			return
		case <-ticker.C:
			fmt.Printf("\r%s %s", ui.Highlight.Render(frames[i]), message)
			i = (i + 1) % len(frames)
		}
	}
}

// withSpinner runs fn while a spinner is shown.
func withSpinner(message string, fn func() error) error {
	stopSpinner := make(chan struct{})
	spinnerDone := make(chan struct{})
	go showSpinner(message, stopSpinner, spinnerDone)

	err := fn()

	close(stopSpinner)
	<-spinnerDone
	return err
}

// renderMarkdown renders markdown content using glamour.
func renderMarkdown(content string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(content)
}

// highlight colors source in the named chroma language.
func highlight(source, language string) (string, error) {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get("dracula")
	if style == nil {
		style = styles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, source)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// renderDocument formats stored bytes for the terminal. Markdown goes
// through glamour, structured formats are highlighted and PDFs show their
// extracted text.
func renderDocument(ctx context.Context, rec *store.FileRecord, data []byte) string {
	text := string(data)

	var (
		out string
		err error
	)
	switch extract.Normalize(rec.MediaType) {
	case fs.MediaMarkdown, "text/x-markdown":
		out, err = renderMarkdown(text)
	case fs.MediaJSON:
		out, err = highlight(text, "json")
	case fs.MediaXML, "text/xml":
		out, err = highlight(text, "xml")
	case fs.MediaHTML, "application/xhtml+xml":
		out, err = highlight(text, "html")
	case fs.MediaPDF:
		out, err = extract.New().Extract(ctx, data, rec.MediaType, rec.OriginalName)
	default:
		return text
	}
	if err != nil {
		return text
	}
	return out
}

func statusStyle(status store.VectorizationStatus) string {
	return ui.Status(string(status))
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseIDs converts file ID arguments.
func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid file id: %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// confirm asks a yes/no question on stdin.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	return strings.ToLower(strings.TrimSpace(line)) == "y"
}

// truncatePath shortens a path for display.
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	return "..." + path[len(path)-maxLen+3:]
}

// truncateLine shortens a line for display.
func truncateLine(line string, maxLen int) string {
	line = strings.Join(strings.Fields(line), " ")
	if len(line) <= maxLen {
		return line
	}
	return line[:maxLen-3] + "..."
}

// formatBytes formats bytes as human-readable string.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}

	// If today, show time only
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return "today at " + t.Local().Format("15:04")
	}

	// If this year, omit year
	if t.Year() == now.Year() {
		return t.Local().Format("Jan 2 at 15:04")
	}

	return t.Local().Format("Jan 2, 2006 at 15:04")
}
