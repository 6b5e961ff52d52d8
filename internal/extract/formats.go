package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	jsonSyntax  = regexp.MustCompile(`[{}\[\]":]`)
	xmlTag      = regexp.MustCompile(`<[^>]*>`)
	inlineSpace = regexp.MustCompile(`[ \t]+`)
	blankLines  = regexp.MustCompile(`\n\s*\n+`)
)

// projectJSON flattens JSON into readable text: syntax tokens become
// spaces and commas become line breaks.
func projectJSON(text string) string {
	text = jsonSyntax.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, ",", "\n")
	return collapse(text)
}

// projectXML drops tags and keeps character data.
func projectXML(text string) string {
	return collapse(xmlTag.ReplaceAllString(text, " "))
}

// collapse squeezes horizontal whitespace and empty lines.
func collapse(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(inlineSpace.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankLines.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

// skipped elements never contribute visible text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
}

// block elements end a line of text.
var block = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Tr: true, atom.Table: true, atom.Section: true, atom.Article: true,
	atom.Pre: true, atom.Blockquote: true, atom.Title: true,
}

// extractHTML returns the visible text of an HTML document.
func extractHTML(data []byte) (string, error) {
	z := html.NewTokenizer(bytes.NewReader(data))

	var sb strings.Builder
	depth := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", fmt.Errorf("%w: html: %v", ErrExtractionFailed, err)
			}
			return collapse(sb.String()), nil
		case html.StartTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skipped[a] {
				depth++
			}
			if block[a] {
				sb.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skipped[a] && depth > 0 {
				depth--
			}
			if block[a] {
				sb.WriteByte('\n')
			}
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			if block[atom.Lookup(name)] {
				sb.WriteByte('\n')
			}
		case html.TextToken:
			if depth == 0 {
				sb.Write(z.Text())
				sb.WriteByte(' ')
			}
		}
	}
}

// extractPDF returns the plain text layer of a PDF document.
func extractPDF(ctx context.Context, data []byte) (text string, err error) {
	// The PDF reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: pdf: %v", ErrExtractionFailed, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: pdf: %v", ErrExtractionFailed, err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: pdf page %d: %v", ErrExtractionFailed, i, err)
		}
		sb.WriteString(content)
		sb.WriteByte('\n')
	}

	return strings.TrimSpace(sb.String()), nil
}
