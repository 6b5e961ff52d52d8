// Package clean normalizes extracted document text before chunking.
package clean

import (
	"regexp"
	"strings"
)

var (
	// Markdown syntax
	mdHeading    = regexp.MustCompile(`(?m)^#+[ \t]*`)
	mdBold       = regexp.MustCompile(`\*\*|__`)
	mdItalic     = regexp.MustCompile(`[*_]`)
	mdCode       = regexp.MustCompile("`+")
	mdImage      = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdLink       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdBlockquote = regexp.MustCompile(`(?m)^[ \t]*>[ \t]*`)

	// PDF page number artifacts
	pdfPageNumber = regexp.MustCompile(`(?m)^[ \t]*Page \d+.*$`)

	// Common whitespace normalization
	controlSpace = regexp.MustCompile(`[\t\v\f\r]+`)
	repeatSpace  = regexp.MustCompile(`\s{2,}`)
	blankLine    = regexp.MustCompile(`(?m)^\s*$`)
)

// Clean normalizes text according to a format hint such as "md", "txt" or
// "pdf". Unknown hints only get the common whitespace pass. The result may
// be empty but Clean never fails.
//
// Stripping one marker can expose another (a heading behind inline code,
// a link split by backticks), so passes repeat until the text is stable.
// Every pass only removes or replaces characters, which bounds the loop.
func Clean(text, hint string) string {
	hint = strings.ToLower(strings.TrimPrefix(hint, "."))
	for {
		next := cleanPass(text, hint)
		if next == text {
			return next
		}
		text = next
	}
}

func cleanPass(text, hint string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	switch hint {
	case "md", "markdown":
		return cleanCommon(cleanMarkdown(text))
	case "pdf":
		return cleanCommon(pdfPageNumber.ReplaceAllString(text, ""))
	default:
		return cleanCommon(text)
	}
}

// cleanMarkdown strips markdown markup, keeping link text.
func cleanMarkdown(text string) string {
	text = mdHeading.ReplaceAllString(text, "")
	// Nested link syntax needs repeated passes
	for mdImage.MatchString(text) || mdLink.MatchString(text) {
		text = mdImage.ReplaceAllString(text, "")
		text = mdLink.ReplaceAllString(text, "$1")
	}
	text = mdBold.ReplaceAllString(text, "")
	text = mdItalic.ReplaceAllString(text, "")
	text = mdCode.ReplaceAllString(text, "")
	text = mdBlockquote.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

func cleanCommon(text string) string {
	text = controlSpace.ReplaceAllString(text, " ")
	text = repeatSpace.ReplaceAllString(text, " ")
	text = blankLine.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
