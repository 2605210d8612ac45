// Package weather answers free-text weather questions for a place and time.
package weather

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

// ErrEmptyQuery is returned for a blank question.
var ErrEmptyQuery = errors.New("empty weather query")

// Geocoder resolves a place name. *places.Nominatim implements it.
type Geocoder interface {
	Geocode(ctx context.Context, text string) (places.Location, error)
}

// Forecaster returns an hourly forecast. *OpenMeteo implements it.
type Forecaster interface {
	Forecast(ctx context.Context, lat, lon float64) (Hourly, error)
}

// Answer is the assistant's reply.
type Answer struct {
	Query    string          `json:"query"`
	Location places.Location `json:"location"`
	Time     time.Time       `json:"time"`
	Forecast Sample          `json:"forecast"`
	Summary  string          `json:"summary"`
	Method   string          `json:"method"`
}

// Assistant combines geocoding, forecast lookup and a model-written summary.
type Assistant struct {
	Geocoder   Geocoder
	Forecaster Forecaster
	Client     llm.Client
	Model      string
	Cache      *cache.LLMCache
	// DefaultPlace is used when the question names no place. Empty means Berlin.
	DefaultPlace string
	Now          func() time.Time
	Timeout      time.Duration
}

const summarySystemPrompt = "You are a friendly weather assistant. Given a user question and the forecast for the requested hour, " +
	"write a short human-readable summary covering temperature, humidity, precipitation, wind, cloud cover and a natural description " +
	"(sunny, rainy, snowy, overcast). Two or three sentences."

// Ask answers one question. Geocoding and forecast failures are errors; a
// failed summary call falls back to a fixed template.
func (a *Assistant) Ask(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuery
	}
	now := time.Now()
	if a.Now != nil {
		now = a.Now()
	}
	fallback := a.DefaultPlace
	if fallback == "" {
		fallback = "Berlin"
	}
	when, place := ParseQuery(question, now, fallback)
	loc, err := a.Geocoder.Geocode(ctx, place)
	if err != nil {
		return Answer{}, fmt.Errorf("geocode %q: %w", place, err)
	}
	hourly, err := a.Forecaster.Forecast(ctx, loc.Lat, loc.Lon)
	if err != nil {
		return Answer{}, err
	}
	sample, ok := Closest(hourly, when)
	if !ok {
		return Answer{}, errors.New("forecast has no hours")
	}
	ans := Answer{Query: question, Location: loc, Time: when, Forecast: sample}
	summary, err := a.summarize(ctx, question, sample)
	if err != nil {
		log.Warn().Err(err).Msg("weather summary fallback")
		metrics.LLMFallbacks.WithLabelValues("weather").Inc()
		ans.Summary, ans.Method = Template(loc.Name, sample), MethodTemplate
		return ans, nil
	}
	ans.Summary, ans.Method = summary, MethodAI
	return ans, nil
}

func (a *Assistant) summarize(ctx context.Context, question string, s Sample) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	user := fmt.Sprintf("User query: %q\nWeather data: %s", question, data)
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
	reply, err := llm.Complete(cctx, a.Client, llm.Prompt{Model: a.Model, System: summarySystemPrompt, User: user, Temperature: 0.5})
	if err != nil {
		return "", err
	}
	if reply == "" {
		return "", errors.New("empty weather summary")
	}
	_ = a.Cache.Put(ctx, key, reply)
	return reply, nil
}

// Template writes a plain summary without a model.
func Template(place string, s Sample) string {
	if i := strings.IndexByte(place, ','); i > 0 {
		place = place[:i]
	}
	return fmt.Sprintf("%s at %s: %.1f°C, %s, humidity %.0f%%, precipitation %.1f mm, wind %.0f km/h, cloud cover %.0f%%.",
		place, strings.Replace(s.Time, "T", " ", 1), s.Temperature, Describe(s.WeatherCode), s.Humidity, s.Precipitation, s.Wind, s.CloudCover)
}
