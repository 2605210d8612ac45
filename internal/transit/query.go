package transit

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/hyperifyio/placescout/internal/timeparse"
)

var (
	// ErrEmptyQuery is returned for a blank question.
	ErrEmptyQuery = errors.New("empty transit query")
	// ErrNoEndpoints is returned when origin and destination cannot be told apart.
	ErrNoEndpoints = errors.New(`could not detect origin and destination; ask "from X to Y"`)
)

var (
	routeRe = regexp.MustCompile(`(?i)(?:^|\s)(?:from|zo|z)\s+(.+?)\s+(?:to|do)\s+(.+)$`)
	// a time phrase in another language can leave its preposition behind
	danglingRe = regexp.MustCompile(`(?i)\s+(?:o|at|on|around|okolo)$`)
)

const trimSet = " \t?!.,;:\"'"

// Query is a parsed transit question.
type Query struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	When time.Time `json:"when"`
}

// ParseQuery reads "from X to Y" and an optional day and time. Without a
// time the trip starts one hour from now.
func ParseQuery(text string, now time.Time) (Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Query{}, ErrEmptyQuery
	}
	when, rest, found := timeparse.Parse(text, now)
	if !found {
		when = now.Add(time.Hour).Truncate(time.Minute)
	}
	m := routeRe.FindStringSubmatch(strings.Join(strings.Fields(rest), " "))
	if m == nil {
		return Query{}, ErrNoEndpoints
	}
	clean := func(s string) string { return danglingRe.ReplaceAllString(strings.Trim(s, trimSet), "") }
	q := Query{From: clean(m[1]), To: clean(m[2]), When: when}
	if q.From == "" || q.To == "" {
		return Query{}, ErrNoEndpoints
	}
	return q, nil
}
