// Package server exposes discovery and the place assistants over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/placescout/internal/assistant"
	"github.com/hyperifyio/placescout/internal/crawl"
	"github.com/hyperifyio/placescout/internal/discover"
	"github.com/hyperifyio/placescout/internal/metrics"
	"github.com/hyperifyio/placescout/internal/places"
	"github.com/hyperifyio/placescout/internal/rank"
	"github.com/hyperifyio/placescout/internal/request"
	"github.com/hyperifyio/placescout/internal/transit"
	"github.com/hyperifyio/placescout/internal/weather"
)

// Discoverer runs image discovery. *discover.Pipeline implements it.
type Discoverer interface {
	Discover(ctx context.Context, req discover.Request) discover.Result
}

// Server holds the services behind the routes. Nil services answer 503.
type Server struct {
	Discoverer Discoverer
	Parser     request.Parser
	Places     *places.Aggregator
	Geocoder   assistant.Geocoder
	Weather    *weather.Assistant
	Transit    *transit.Assistant
	Assistant  *assistant.Assistant
	// DisableAI turns model page scoring off for every request.
	DisableAI bool
	// AllowOrigins lists origins allowed by CORS; "*" allows all.
	AllowOrigins []string
	// RequestTimeout bounds one request. Zero means 5 minutes.
	RequestTimeout time.Duration
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)
	r.Use(s.cors)
	timeout := s.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	r.Use(middleware.Timeout(timeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/filter-images", s.filterImages)
	r.Get("/request", s.parseRequest)
	r.Get("/nearby", s.nearby)
	r.Get("/weather", s.weather)
	r.Get("/transit", s.transit)
	r.Get("/search-places-with-images", s.searchWithImages)
	return r
}

// observe logs each request and counts it by route pattern and status.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		log.Debug().Str("method", r.Method).Str("route", route).Int("status", status).
			Dur("elapsed", time.Since(start)).Str("request_id", middleware.GetReqID(r.Context())).Msg("http request")
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.AllowOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Status: discover.StatusError, Message: msg})
}

// FilterImagesResponse is the /filter-images body.
type FilterImagesResponse struct {
	Status           string               `json:"status"`
	Message          string               `json:"message,omitempty"`
	FilteredImages   []rank.RatedImage    `json:"filtered_images"`
	TotalImagesFound int                  `json:"total_images_found"`
	ValidAfterFilter int                  `json:"valid_images_after_filter"`
	SelectionMethod  string               `json:"selection_method"`
	DebugInfo        discover.Diagnostics `json:"debug_info"`
}

func (s *Server) filterImages(w http.ResponseWriter, r *http.Request) {
	if s.Discoverer == nil {
		writeError(w, http.StatusServiceUnavailable, "image discovery not configured")
		return
	}
	q := r.URL.Query()
	req := discover.NewRequest(q.Get("website"), q.Get("context"))
	var err error
	if req.PageBudget, err = intParam(q.Get("max_pages"), req.PageBudget); err != nil {
		writeError(w, http.StatusBadRequest, "invalid max_pages")
		return
	}
	if req.ImageBudget, err = intParam(q.Get("max_images"), req.ImageBudget); err != nil {
		writeError(w, http.StatusBadRequest, "invalid max_images")
		return
	}
	if req.UseJS, err = boolParam(q.Get("use_js"), false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid use_js")
		return
	}
	if req.UseAIScoring, err = boolParam(q.Get("use_ai"), true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid use_ai")
		return
	}
	if s.DisableAI {
		req.UseAIScoring = false
	}
	req.Strategy = q.Get("strategy")
	if v := q.Get("max_seconds"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs < 0 {
			writeError(w, http.StatusBadRequest, "invalid max_seconds")
			return
		}
		req.MaxDuration = time.Duration(secs) * time.Second
	}

	res := s.Discoverer.Discover(r.Context(), req)
	code := http.StatusOK
	switch {
	case errors.Is(res.Err, discover.ErrEmptyContext), errors.Is(res.Err, discover.ErrInvalidWebsite),
		errors.Is(res.Err, crawl.ErrUnknownStrategy):
		code = http.StatusBadRequest
	case errors.Is(res.Err, discover.ErrSeedUnreachable):
		code = http.StatusBadGateway
	case res.Err != nil:
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, FilterImagesResponse{
		Status:           res.Status,
		Message:          res.Message,
		FilteredImages:   res.Images,
		TotalImagesFound: res.Diagnostics.TotalImagesFound,
		ValidAfterFilter: res.Diagnostics.ValidAfterFilter,
		SelectionMethod:  res.Diagnostics.SelectionMethod,
		DebugInfo:        res.Diagnostics,
	})
}

func (s *Server) parseRequest(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	f, method, err := request.WithFallback(r.Context(), s.Parser, text)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": discover.StatusSuccess, "parsed_data": f, "method": method})
}

func (s *Server) nearby(w http.ResponseWriter, r *http.Request) {
	if s.Places == nil {
		writeError(w, http.StatusServiceUnavailable, "place search not configured")
		return
	}
	q := r.URL.Query()
	pq := places.Query{PlaceType: q.Get("type")}
	var err error
	if pq.RadiusM, err = intParam(q.Get("radius"), 500); err != nil {
		writeError(w, http.StatusBadRequest, "invalid radius")
		return
	}
	if pq.Limit, err = intParam(q.Get("limit"), 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	loc, code, msg := s.center(r.Context(), q.Get("lat"), q.Get("lon"), q.Get("location"))
	if code != 0 {
		writeError(w, code, msg)
		return
	}
	pq.Lat, pq.Lon = loc.Lat, loc.Lon
	found, rep := s.Places.Search(r.Context(), pq)
	if found == nil {
		found = []places.Place{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": discover.StatusSuccess, "location": loc, "places": found, "sources": rep})
}

// center resolves lat/lon parameters or geocodes location. A non-zero code
// reports a client error.
func (s *Server) center(ctx context.Context, lat, lon, location string) (places.Location, int, string) {
	if lat != "" || lon != "" {
		la, err1 := strconv.ParseFloat(lat, 64)
		lo, err2 := strconv.ParseFloat(lon, 64)
		if err1 != nil || err2 != nil || la < -90 || la > 90 || lo < -180 || lo > 180 {
			return places.Location{}, http.StatusBadRequest, "invalid lat/lon"
		}
		return places.Location{Name: location, Lat: la, Lon: lo}, 0, ""
	}
	if strings.TrimSpace(location) == "" || s.Geocoder == nil {
		return places.Location{}, http.StatusBadRequest, "pass lat and lon or location"
	}
	loc, err := s.Geocoder.Geocode(ctx, location)
	if err != nil {
		if errors.Is(err, places.ErrNotFound) {
			return places.Location{}, http.StatusNotFound, err.Error()
		}
		return places.Location{}, http.StatusBadGateway, err.Error()
	}
	return loc, 0, ""
}

func (s *Server) weather(w http.ResponseWriter, r *http.Request) {
	if s.Weather == nil {
		writeError(w, http.StatusServiceUnavailable, "weather not configured")
		return
	}
	ans, err := s.Weather.Ask(r.Context(), r.URL.Query().Get("q"))
	switch {
	case errors.Is(err, weather.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, places.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, ans)
	}
}

func (s *Server) transit(w http.ResponseWriter, r *http.Request) {
	if s.Transit == nil {
		writeError(w, http.StatusServiceUnavailable, "transit not configured")
		return
	}
	ans, err := s.Transit.Ask(r.Context(), r.URL.Query().Get("q"))
	switch {
	case errors.Is(err, transit.ErrEmptyQuery), errors.Is(err, transit.ErrNoEndpoints):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, places.ErrNotFound), errors.Is(err, transit.ErrNoStops):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, ans)
	}
}

func (s *Server) searchWithImages(w http.ResponseWriter, r *http.Request) {
	if s.Assistant == nil {
		writeError(w, http.StatusServiceUnavailable, "assistant not configured")
		return
	}
	q := r.URL.Query()
	aq := assistant.Query{Text: q.Get("text")}
	var err error
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"radius", &aq.RadiusM},
		{"limit", &aq.Limit},
		{"images_per_place", &aq.ImagesPerPlace},
		{"max_pages", &aq.PagesPerPlace},
	} {
		if *p.dst, err = intParam(q.Get(p.name), 0); err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+p.name)
			return
		}
	}
	if aq.UseJS, err = boolParam(q.Get("use_js"), false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid use_js")
		return
	}
	if q.Get("lat") != "" || q.Get("lon") != "" {
		loc, code, msg := s.center(r.Context(), q.Get("lat"), q.Get("lon"), "")
		if code != 0 {
			writeError(w, code, msg)
			return
		}
		aq.Lat, aq.Lon, aq.HasCenter = loc.Lat, loc.Lon, true
	}
	ans, err := s.Assistant.SearchWithImages(r.Context(), aq)
	switch {
	case errors.Is(err, request.ErrEmptyRequest), errors.Is(err, assistant.ErrNoLocation):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, ans)
	}
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
}

func boolParam(v string, def bool) (bool, error) {
	if v == "" {
		return def, nil
	}
	return strconv.ParseBool(v)
}
