// CLAUDE:SUMMARY Ordered extraction strategies over goquery selections; each strategy is tried in turn until one yields a value.
package scrape

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Strategy extracts one value from an element snapshot. ok=false means the
// strategy does not apply and the next one is tried.
type Strategy func(s *goquery.Selection) (value string, ok bool)

// Chain is an ordered list of strategies.
type Chain []Strategy

// First returns the value of the first strategy that applies.
func (c Chain) First(s *goquery.Selection) (string, bool) {
	for _, strat := range c {
		if v, ok := strat(s); ok {
			return v, true
		}
	}
	return "", false
}

// Or returns the first value, or def when no strategy applies.
func (c Chain) Or(s *goquery.Selection, def string) string {
	if v, ok := c.First(s); ok {
		return v
	}
	return def
}

// find resolves selector against s; an empty selector means s itself.
func find(s *goquery.Selection, selector string) *goquery.Selection {
	if selector == "" {
		return s.First()
	}
	return s.Find(selector).First()
}

// TextOf yields the trimmed text of the first match, if non-empty.
func TextOf(selector string) Strategy {
	return func(s *goquery.Selection) (string, bool) {
		m := find(s, selector)
		if m.Length() == 0 {
			return "", false
		}
		t := strings.TrimSpace(m.Text())
		return t, t != ""
	}
}

// AttrOf yields the attribute of the first match, if non-empty.
func AttrOf(selector, attr string) Strategy {
	return func(s *goquery.Selection) (string, bool) {
		m := find(s, selector)
		if m.Length() == 0 {
			return "", false
		}
		v, ok := m.Attr(attr)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
}

// MarkdownOf yields the inner HTML of the first match rendered as markdown.
func MarkdownOf(selector string, md *Markdown) Strategy {
	return func(s *goquery.Selection) (string, bool) {
		m := find(s, selector)
		if m.Length() == 0 {
			return "", false
		}
		h, err := m.Html()
		if err != nil {
			return "", false
		}
		out, err := md.Convert(h)
		if err != nil {
			return "", false
		}
		return out, out != ""
	}
}

// Map post-processes the value of a strategy; an empty result does not apply.
func Map(strat Strategy, fn func(string) string) Strategy {
	return func(s *goquery.Selection) (string, bool) {
		v, ok := strat(s)
		if !ok {
			return "", false
		}
		v = fn(v)
		return v, v != ""
	}
}
