package clean

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		hint     string
		expected string
	}{
		{"empty", "", "md", ""},
		{"blank", " \n\t ", "txt", ""},
		{"markdown heading and bold", "# Title\n\n**bold** text", "md", "Title bold text"},
		{"markdown italic and code", "Some _italic_ and `code` here", "md", "Some italic and code here"},
		{"markdown code fence", "```\nfmt.Println()\n```", "md", "fmt.Println()"},
		{"markdown image removed", "before ![alt](img.png) after", "md", "before after"},
		{"markdown link keeps text", "see [the docs](http://x.y) now", "md", "see the docs now"},
		{"markdown blockquote", "> quoted line\nnext", "markdown", "quoted line\nnext"},
		{"markdown hint with dot", "## Heading", ".md", "Heading"},
		{"text collapses whitespace", "a\t\tb    c\r\n\n\nd", "txt", "a b c d"},
		{"text keeps single newlines", "line one\nline two", "text", "line one\nline two"},
		{"pdf page numbers", "Intro text\nPage 12 of 40\nMore text", "pdf", "Intro text More text"},
		{"unknown hint uses common pass", "x   y", "docx", "x y"},
		{"text leaves markdown alone", "**bold**", "txt", "**bold**"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Clean(tt.text, tt.hint))
		})
	}
}

func TestCleanExposedMarkup(t *testing.T) {
	tests := []struct {
		text     string
		expected string
	}{
		{"`#include` pulls headers", "include pulls headers"},
		{"\t# Indented heading", "Indented heading"},
		{"*# starred*", "starred"},
		{"[x]`(y)`", "x"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Clean(tt.text, "md"), tt.text)
	}
}

func TestCleanIdempotent(t *testing.T) {
	inputs := []struct {
		text string
		hint string
	}{
		{"# Title\n\n**bold** text", "md"},
		{"> quote\n\n## Sub\n\n- item *one*\n- item __two__\n\n[link](u) ![img](p)", "md"},
		{"[[nested](a)](b) tail", "md"},
		{"plain\t\ttext\n\n\nwith   gaps  ", "txt"},
		{"  leading and trailing  ", "txt"},
		{"one\n two\n  three", "txt"},
		{"`#include` pulls headers", "md"},
		{"\t# Indented heading", "md"},
		{"*# starred*", "md"},
		{"[x]`(y)`", "md"},
		{"> `> nested` quote", "md"},
		{"text\n\tPage 4 of 9\nmore", "pdf"},
	}

	for _, in := range inputs {
		once := Clean(in.text, in.hint)
		assert.Equal(t, once, Clean(once, in.hint), "cleaning %q twice changed the result", in.text)
	}
}
