package rag

import (
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

var sanitizer = bluemonday.UGCPolicy()

// RenderHTML converts a markdown answer to sanitized HTML.
func RenderHTML(md string) string {
	if md == "" {
		return ""
	}
	// the parser keeps state, so one per call
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(md))

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	return string(sanitizer.SanitizeBytes(markdown.Render(doc, renderer)))
}
