package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides overrides cfg fields whose environment variables are
// set. It runs after the config file and before flags.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}
	setString(&cfg.LLMBaseURL, "LLM_BASE_URL")
	setString(&cfg.LLMModel, "LLM_MODEL")
	setString(&cfg.LLMAPIKey, "LLM_API_KEY", "OPENAI_API_KEY")
	setString(&cfg.GoogleAPIKey, "GOOGLE_PLACES_API_KEY", "GOOGLE_API_KEY")
	setString(&cfg.SearxURL, "SEARX_URL", "SEARXNG_URL")
	setString(&cfg.SearxKey, "SEARX_KEY", "SEARXNG_KEY")
	setString(&cfg.SearchFile, "SEARCH_FILE")
	setString(&cfg.OverpassURL, "OVERPASS_URL")
	setString(&cfg.NominatimURL, "NOMINATIM_URL")
	setString(&cfg.OpenMeteoURL, "OPEN_METEO_URL")
	setString(&cfg.DefaultPlace, "DEFAULT_PLACE")
	setString(&cfg.TimetableURL, "TIMETABLE_URL")
	setString(&cfg.ChromePath, "CHROME_PATH")
	setString(&cfg.UserAgent, "USER_AGENT")
	setString(&cfg.TopicCatalogPath, "TOPIC_CATALOG")
	setString(&cfg.CacheDir, "CACHE_DIR")
	setString(&cfg.ListenAddr, "LISTEN_ADDR")

	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		if _, err := strconv.Atoi(v); err == nil {
			cfg.ListenAddr = ":" + v
		}
	}
	if v := os.Getenv("ALLOW_ORIGINS"); strings.TrimSpace(v) != "" {
		cfg.AllowOrigins = SplitList(v)
	}
	if s := os.Getenv("CACHE_MAX_AGE"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			cfg.CacheMaxAge = d
		}
	}
	setInt := func(dst *int, envKey string) {
		if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(envKey))); err == nil && n >= 0 {
			*dst = n
		}
	}
	setInt(&cfg.PageBudget, "MAX_PAGES")
	setInt(&cfg.ImageBudget, "MAX_IMAGES")
	setInt(&cfg.MaxConcurrent, "MAX_CONCURRENT")
	if s := os.Getenv("RATE_LIMIT"); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
			cfg.RateLimit = f
		}
	}

	setBool := func(dst *bool, envKey string) {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(envKey))) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		}
	}
	setBool(&cfg.Verbose, "VERBOSE")
	setBool(&cfg.CacheClear, "CACHE_CLEAR")
	setBool(&cfg.CacheStrictPerms, "CACHE_STRICT_PERMS")
	setBool(&cfg.RespectRobots, "RESPECT_ROBOTS")
	setBool(&cfg.UseJS, "USE_JS")
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
