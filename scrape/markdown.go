package scrape

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	mdbase "github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
)

// Markdown renders message markup (mentions, code blocks, links, emphasis)
// as markdown. Markup is sanitised first so scripts and styles never leak
// into the text.
type Markdown struct {
	policy *bluemonday.Policy
	conv   *converter.Converter
}

// NewMarkdown creates a converter. It is safe for concurrent use.
func NewMarkdown() *Markdown {
	return &Markdown{
		policy: bluemonday.UGCPolicy(),
		conv: converter.NewConverter(
			converter.WithPlugins(
				mdbase.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// Convert sanitises html and converts it to trimmed markdown.
func (m *Markdown) Convert(html string) (string, error) {
	out, err := m.conv.ConvertString(m.policy.Sanitize(html))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
