package weather

import (
	"regexp"
	"strings"
	"time"

	"github.com/hyperifyio/placescout/internal/timeparse"
)

var (
	fillerRe = regexp.MustCompile(`(?i)\b(what's|what|is|the|weather|forecast|like|will|be|it|in|for|at|on|how)\b|[?!.,]`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// ParseQuery splits a free-text weather question into the requested moment
// and the place. Missing times default to now. A place shorter than three
// characters is replaced by fallback.
func ParseQuery(text string, now time.Time, fallback string) (time.Time, string) {
	when, rest, _ := timeparse.Parse(text, now)
	place := strings.TrimSpace(spaceRe.ReplaceAllString(fillerRe.ReplaceAllString(rest, " "), " "))
	if len([]rune(place)) < 3 {
		place = fallback
	}
	return when, place
}
