// Package transit answers "how do I get from X to Y" questions: it geocodes
// both ends, picks the nearest public-transport stops, asks a timetable for
// connections and writes a short summary.
package transit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/placescout/internal/cache"
	"github.com/hyperifyio/placescout/internal/llm"
	"github.com/hyperifyio/placescout/internal/metrics"
	"github.com/hyperifyio/placescout/internal/places"
)

const (
	MethodAI       = "ai"
	MethodTemplate = "template"
)

// ErrNoStops is returned when either end has no named stop nearby.
var ErrNoStops = errors.New("no public-transport stops near origin or destination")

// Geocoder resolves a place name. *places.Nominatim implements it.
type Geocoder interface {
	Geocode(ctx context.Context, text string) (places.Location, error)
}

// StopFinder lists stops around a point, nearest first. *places.Overpass
// implements it.
type StopFinder interface {
	Stops(ctx context.Context, lat, lon float64, radiusM int) ([]places.Stop, error)
}

// Endpoint is one end of the trip.
type Endpoint struct {
	Query    string          `json:"query"`
	Location places.Location `json:"location"`
	Stop     places.Stop     `json:"stop"`
}

// Answer is the assistant's reply.
type Answer struct {
	Query       string       `json:"query"`
	From        Endpoint     `json:"from"`
	To          Endpoint     `json:"to"`
	Time        time.Time    `json:"time"`
	Connections []Connection `json:"connections"`
	// TimetableError is set when the timetable lookup failed.
	TimetableError string `json:"timetable_error,omitempty"`
	Summary        string `json:"summary"`
	Method         string `json:"method"`
}

// Assistant combines geocoding, stop lookup, a timetable and a summary.
type Assistant struct {
	Geocoder Geocoder
	Stops    StopFinder
	// Timetable is optional; without it the answer lists stops only.
	Timetable Timetable
	Client    llm.Client
	Model     string
	Cache     *cache.LLMCache
	// RadiusM bounds the stop search around each end. Zero means 600.
	RadiusM int
	Now     func() time.Time
	Timeout time.Duration
}

const summarySystemPrompt = "You are a transport assistant. Given the user's question, the chosen stops, the travel time " +
	"and raw timetable candidates, write a short human-readable route summary. Include transfers, approximate travel time " +
	"and stop names. Do not invent connections that are not in the candidates."

// Ask answers one question. Parsing, geocoding and stop lookup failures are
// errors; a failed timetable lookup is reported in the answer and a failed
// summary call falls back to a fixed template.
func (a *Assistant) Ask(ctx context.Context, question string) (Answer, error) {
	now := time.Now()
	if a.Now != nil {
		now = a.Now()
	}
	q, err := ParseQuery(question, now)
	if err != nil {
		return Answer{}, err
	}
	ans := Answer{Query: strings.TrimSpace(question), Time: q.When, Connections: []Connection{}}
	if ans.From, err = a.endpoint(ctx, q.From); err != nil {
		return Answer{}, err
	}
	if ans.To, err = a.endpoint(ctx, q.To); err != nil {
		return Answer{}, err
	}

	if a.Timetable != nil {
		conns, err := a.Timetable.Connections(ctx, ans.From.Stop.Name, ans.To.Stop.Name, q.When)
		if err != nil {
			log.Warn().Err(err).Str("from", ans.From.Stop.Name).Str("to", ans.To.Stop.Name).Msg("timetable lookup failed")
			ans.TimetableError = err.Error()
		} else {
			ans.Connections = append(ans.Connections, conns...)
		}
	}

	summary, err := a.summarize(ctx, ans)
	if err != nil {
		log.Warn().Err(err).Msg("transit summary fallback")
		metrics.LLMFallbacks.WithLabelValues("transit").Inc()
		ans.Summary, ans.Method = Template(ans), MethodTemplate
		return ans, nil
	}
	ans.Summary, ans.Method = summary, MethodAI
	return ans, nil
}

func (a *Assistant) endpoint(ctx context.Context, text string) (Endpoint, error) {
	loc, err := a.Geocoder.Geocode(ctx, text)
	if err != nil {
		return Endpoint{}, fmt.Errorf("geocode %q: %w", text, err)
	}
	stops, err := a.Stops.Stops(ctx, loc.Lat, loc.Lon, a.RadiusM)
	if err != nil {
		return Endpoint{}, err
	}
	if len(stops) == 0 {
		return Endpoint{}, fmt.Errorf("%w: %s", ErrNoStops, text)
	}
	return Endpoint{Query: text, Location: loc, Stop: stops[0]}, nil
}

func (a *Assistant) summarize(ctx context.Context, ans Answer) (string, error) {
	data, err := json.Marshal(ans.Connections)
	if err != nil {
		return "", err
	}
	user := fmt.Sprintf("User asked: %q\nOrigin stop: %s\nDestination stop: %s\nTime: %s\nTimetable candidates: %s",
		ans.Query, ans.From.Stop.Name, ans.To.Stop.Name, ans.Time.Format("2006-01-02 15:04"), data)
	key := cache.KeyFrom(a.Model, summarySystemPrompt+"\n\n"+user)
	if reply, ok := a.Cache.Get(ctx, key); ok {
		return reply, nil
	}
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	reply, err := llm.Complete(cctx, a.Client, llm.Prompt{Model: a.Model, System: summarySystemPrompt, User: user, Temperature: 0.3})
	if err != nil {
		return "", err
	}
	if reply == "" {
		return "", errors.New("empty transit summary")
	}
	_ = a.Cache.Put(ctx, key, reply)
	return reply, nil
}

// Template writes a plain summary without a model.
func Template(ans Answer) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "From %s (%s, %.0f m from %s) to %s (%s, %.0f m from %s) on %s.",
		ans.From.Stop.Name, ans.From.Stop.Kind, ans.From.Stop.DistanceM, ans.From.Query,
		ans.To.Stop.Name, ans.To.Stop.Kind, ans.To.Stop.DistanceM, ans.To.Query,
		ans.Time.Format("2006-01-02 15:04"))
	if len(ans.Connections) == 0 {
		sb.WriteString(" No timetable connections were found; check the operator's journey planner.")
		return sb.String()
	}
	c := ans.Connections[0]
	switch {
	case c.Departure != "" && c.Arrival != "":
		fmt.Fprintf(&sb, " Next connection departs %s and arrives %s.", c.Departure, c.Arrival)
	case c.Departure != "":
		fmt.Fprintf(&sb, " Next connection departs %s.", c.Departure)
	default:
		fmt.Fprintf(&sb, " Next connection: %s.", c.Text)
	}
	if n := len(ans.Connections) - 1; n > 0 {
		fmt.Fprintf(&sb, " %d more option(s) listed.", n)
	}
	return sb.String()
}
