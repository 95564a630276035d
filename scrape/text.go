package scrape

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	mentionPrefix = regexp.MustCompile(`^\d+\s+mentions?,\s*`)
	allDigits     = regexp.MustCompile(`^\d+$`)
	trailingID    = regexp.MustCompile(`(\d+)$`)
)

// collapse trims s and folds whitespace runs into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// noiseSubstrings mark badge and status text rather than names.
var noiseSubstrings = []string{"notification", "unread"}

// meaningful reports whether t can be a display name: 3 to 99 characters,
// not a bare number, not badge text.
func meaningful(t string) bool {
	n := utf8.RuneCountInString(t)
	if n < 3 || n > 99 {
		return false
	}
	if allDigits.MatchString(t) {
		return false
	}
	lower := strings.ToLower(t)
	for _, noise := range noiseSubstrings {
		if strings.Contains(lower, noise) {
			return false
		}
	}
	return true
}

// stripMentions removes a leading "3 mentions, " badge prefix.
func stripMentions(s string) string {
	return strings.TrimSpace(mentionPrefix.ReplaceAllString(s, ""))
}

// cleanChannelName drops leading decoration (icons, "#", emoji) and collapses
// whitespace.
func cleanChannelName(s string) string {
	s = strings.TrimLeftFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	s = collapse(s)
	if strings.Contains(s, "undefined") {
		return ""
	}
	return s
}

// channelLabelName extracts the name from an aria-label such as
// "general (text channel)" or "unread, general (text channel)".
func channelLabelName(label string) string {
	if i := strings.LastIndex(label, " ("); i > 0 {
		label = label[:i]
	}
	if i := strings.LastIndex(label, ", "); i >= 0 {
		label = label[i+2:]
	}
	return cleanChannelName(label)
}

// idSuffix returns the trailing digit run of s, e.g. the message id of
// "chat-messages-<channel>-<message>".
func idSuffix(s string) (string, bool) {
	m := trailingID.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}
