package transit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hyperifyio/placescout/internal/places"
)

// Connection is one journey candidate as the timetable site shows it.
type Connection struct {
	// Text is the candidate's visible text with whitespace collapsed.
	Text      string `json:"text"`
	Departure string `json:"departure,omitempty"`
	Arrival   string `json:"arrival,omitempty"`
}

// Timetable looks up connections between two named stops.
type Timetable interface {
	Connections(ctx context.Context, from, to string, when time.Time) ([]Connection, error)
}

// connectionSelector matches the result rows of the CP.sk journey planner.
// The markup is not a stable interface, so parsing is best effort.
const connectionSelector = ".connection-row, .spojenie-row, .connection-box, .connection"

var clockRe = regexp.MustCompile(`\b([01]?\d|2[0-3]):[0-5]\d\b`)

// CPTimetable scrapes the CP.sk journey planner.
type CPTimetable struct {
	// BaseURL defaults to the public train and bus search page.
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
	// Limit caps returned connections. Zero means 3.
	Limit int
}

// Connections implements Timetable.
func (c *CPTimetable) Connections(ctx context.Context, from, to string, when time.Time) ([]Connection, error) {
	base := c.BaseURL
	if base == "" {
		base = "https://cp.sk/vlakbus/spojenie/"
	}
	params := url.Values{}
	params.Set("f", from)
	params.Set("t", to)
	params.Set("date", when.Format("02.01.2006"))
	params.Set("time", when.Format("15:04"))
	params.Set("submit", "Vyhľadať")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	ua := c.UserAgent
	if ua == "" {
		ua = places.DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html")
	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("timetable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("timetable: status %d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("timetable: parse: %w", err)
	}
	limit := c.Limit
	if limit <= 0 {
		limit = 3
	}
	return parseConnections(doc, limit), nil
}

// parseConnections returns the outermost matching rows, in page order.
func parseConnections(doc *goquery.Document, limit int) []Connection {
	out := []Connection{}
	seen := map[string]bool{}
	doc.Find(connectionSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.ParentsFiltered(connectionSelector).Length() > 0 {
			return true
		}
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" || seen[text] {
			return true
		}
		seen[text] = true
		conn := Connection{Text: text}
		if times := clockRe.FindAllString(text, -1); len(times) > 0 {
			conn.Departure = times[0]
			if len(times) > 1 {
				conn.Arrival = times[len(times)-1]
			}
		}
		out = append(out, conn)
		return len(out) < limit
	})
	return out
}
