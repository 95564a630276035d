package discovery

import (
	"sort"
	"time"

	"github.com/hazyhaar/discordweb/entity"
)

// WithinWindow keeps the messages strictly newer than cutoff.
func WithinWindow(msgs []entity.Message, cutoff time.Time) []entity.Message {
	out := make([]entity.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Timestamp.After(cutoff) {
			out = append(out, m)
		}
	}
	return out
}

// AuthorCount is the number of messages of one author.
type AuthorCount struct {
	Name     string `json:"name"`
	Messages int    `json:"messages"`
}

// Summary describes a message batch.
type Summary struct {
	Count           int           `json:"count"`
	DistinctAuthors int           `json:"distinct_authors"`
	Attachments     int           `json:"attachments"`
	Oldest          *time.Time    `json:"oldest,omitempty"`
	Newest          *time.Time    `json:"newest,omitempty"`
	TopAuthors      []AuthorCount `json:"top_authors"`
}

// topAuthors caps Summary.TopAuthors.
const topAuthors = 5

// Summarize computes batch statistics. Top authors are ordered by message
// count, then name.
func Summarize(msgs []entity.Message) Summary {
	s := Summary{Count: len(msgs), TopAuthors: []AuthorCount{}}
	perAuthor := make(map[string]int)
	for i := range msgs {
		m := &msgs[i]
		perAuthor[m.AuthorName]++
		s.Attachments += len(m.Attachments)
		if s.Oldest == nil || m.Timestamp.Before(*s.Oldest) {
			t := m.Timestamp
			s.Oldest = &t
		}
		if s.Newest == nil || m.Timestamp.After(*s.Newest) {
			t := m.Timestamp
			s.Newest = &t
		}
	}
	s.DistinctAuthors = len(perAuthor)

	for name, n := range perAuthor {
		s.TopAuthors = append(s.TopAuthors, AuthorCount{Name: name, Messages: n})
	}
	sort.Slice(s.TopAuthors, func(i, j int) bool {
		a, b := s.TopAuthors[i], s.TopAuthors[j]
		if a.Messages != b.Messages {
			return a.Messages > b.Messages
		}
		return a.Name < b.Name
	})
	if len(s.TopAuthors) > topAuthors {
		s.TopAuthors = s.TopAuthors[:topAuthors]
	}
	return s
}
