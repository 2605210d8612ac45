package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig is the single-file configuration schema.
type FileConfig struct {
	LLM struct {
		BaseURL string `yaml:"base" json:"base"`
		Model   string `yaml:"model" json:"model"`
		APIKey  string `yaml:"key" json:"key"`
	} `yaml:"llm" json:"llm"`

	Server struct {
		Listen       string   `yaml:"listen" json:"listen"`
		AllowOrigins []string `yaml:"allowOrigins" json:"allowOrigins"`
	} `yaml:"server" json:"server"`

	Crawl struct {
		MaxPages    int           `yaml:"maxPages" json:"maxPages"`
		MaxImages   int           `yaml:"maxImages" json:"maxImages"`
		Strategy    string        `yaml:"strategy" json:"strategy"`
		UseJS       bool          `yaml:"useJS" json:"useJS"`
		MaxDuration time.Duration `yaml:"maxDuration" json:"maxDuration"`
		EarlyStop   struct {
			MinImages   int     `yaml:"minImages" json:"minImages"`
			MinPriority float64 `yaml:"minPriority" json:"minPriority"`
		} `yaml:"earlyStop" json:"earlyStop"`
	} `yaml:"crawl" json:"crawl"`

	Fetch struct {
		UserAgent     string  `yaml:"userAgent" json:"userAgent"`
		RateLimit     float64 `yaml:"rateLimit" json:"rateLimit"`
		MaxConcurrent int     `yaml:"maxConcurrent" json:"maxConcurrent"`
		RespectRobots bool    `yaml:"respectRobots" json:"respectRobots"`
		ChromePath    string  `yaml:"chromePath" json:"chromePath"`
	} `yaml:"fetch" json:"fetch"`

	Places struct {
		GoogleKey    string `yaml:"googleKey" json:"googleKey"`
		OverpassURL  string `yaml:"overpassURL" json:"overpassURL"`
		NominatimURL string `yaml:"nominatimURL" json:"nominatimURL"`
		OpenMeteoURL string `yaml:"openMeteoURL" json:"openMeteoURL"`
		DefaultPlace string `yaml:"defaultPlace" json:"defaultPlace"`
		TimetableURL string `yaml:"timetableURL" json:"timetableURL"`
	} `yaml:"places" json:"places"`

	Searx struct {
		URL string `yaml:"url" json:"url"`
		Key string `yaml:"key" json:"key"`
	} `yaml:"searx" json:"searx"`

	Search struct {
		File string `yaml:"file" json:"file"`
	} `yaml:"search" json:"search"`

	Scoring struct {
		TopicCatalog string `yaml:"topicCatalog" json:"topicCatalog"`
		ScoringOverrides `yaml:",inline"`
	} `yaml:"scoring" json:"scoring"`

	Cache struct {
		Dir         string        `yaml:"dir" json:"dir"`
		MaxAge      time.Duration `yaml:"maxAge" json:"maxAge"`
		Clear       bool          `yaml:"clear" json:"clear"`
		StrictPerms bool          `yaml:"strictPerms" json:"strictPerms"`
	} `yaml:"cache" json:"cache"`

	Verbose bool `yaml:"verbose" json:"verbose"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays the values set in fc onto cfg.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	str := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	num := func(dst *int, v int) {
		if v > 0 {
			*dst = v
		}
	}
	str(&cfg.LLMBaseURL, fc.LLM.BaseURL)
	str(&cfg.LLMModel, fc.LLM.Model)
	str(&cfg.LLMAPIKey, fc.LLM.APIKey)

	str(&cfg.ListenAddr, fc.Server.Listen)
	if len(fc.Server.AllowOrigins) > 0 {
		cfg.AllowOrigins = append([]string{}, fc.Server.AllowOrigins...)
	}

	num(&cfg.PageBudget, fc.Crawl.MaxPages)
	num(&cfg.ImageBudget, fc.Crawl.MaxImages)
	str(&cfg.Strategy, fc.Crawl.Strategy)
	cfg.UseJS = cfg.UseJS || fc.Crawl.UseJS
	if fc.Crawl.MaxDuration > 0 {
		cfg.MaxDuration = fc.Crawl.MaxDuration
	}
	num(&cfg.EarlyStopMinImages, fc.Crawl.EarlyStop.MinImages)
	if fc.Crawl.EarlyStop.MinPriority > 0 {
		cfg.EarlyStopMinPriority = fc.Crawl.EarlyStop.MinPriority
	}

	str(&cfg.UserAgent, fc.Fetch.UserAgent)
	if fc.Fetch.RateLimit > 0 {
		cfg.RateLimit = fc.Fetch.RateLimit
	}
	num(&cfg.MaxConcurrent, fc.Fetch.MaxConcurrent)
	cfg.RespectRobots = cfg.RespectRobots || fc.Fetch.RespectRobots
	str(&cfg.ChromePath, fc.Fetch.ChromePath)

	str(&cfg.GoogleAPIKey, fc.Places.GoogleKey)
	str(&cfg.OverpassURL, fc.Places.OverpassURL)
	str(&cfg.NominatimURL, fc.Places.NominatimURL)
	str(&cfg.OpenMeteoURL, fc.Places.OpenMeteoURL)
	str(&cfg.DefaultPlace, fc.Places.DefaultPlace)
	str(&cfg.TimetableURL, fc.Places.TimetableURL)
	str(&cfg.SearxURL, fc.Searx.URL)
	str(&cfg.SearxKey, fc.Searx.Key)
	str(&cfg.SearchFile, fc.Search.File)

	str(&cfg.TopicCatalogPath, fc.Scoring.TopicCatalog)
	if fc.Scoring.ScoringOverrides != (ScoringOverrides{}) {
		cfg.Scoring = fc.Scoring.ScoringOverrides
	}

	str(&cfg.CacheDir, fc.Cache.Dir)
	if fc.Cache.MaxAge > 0 {
		cfg.CacheMaxAge = fc.Cache.MaxAge
	}
	cfg.CacheClear = cfg.CacheClear || fc.Cache.Clear
	cfg.CacheStrictPerms = cfg.CacheStrictPerms || fc.Cache.StrictPerms
	cfg.Verbose = cfg.Verbose || fc.Verbose
}

// ValidateConfig performs minimal validation for required settings.
func ValidateConfig(cfg Config) error {
	if !cfg.Serve {
		if strings.TrimSpace(cfg.Website) == "" {
			return errors.New("config: website is required (or run with -serve)")
		}
		if strings.TrimSpace(cfg.Context) == "" {
			return errors.New("config: context is required")
		}
	}
	if cfg.PageBudget < 0 || cfg.ImageBudget < 0 || cfg.MaxConcurrent < 0 || cfg.RateLimit < 0 {
		return errors.New("config: negative limits are not allowed")
	}
	s := cfg.Scoring
	if s.RuleWeight < 0 || s.AIWeight < 0 || s.ContextWeight < 0 || s.ImageWeight < 0 || s.FewImagesPenalty < 0 {
		return errors.New("config: negative scoring weights are not allowed")
	}
	if cfg.EarlyStopMinPriority > 1 {
		return errors.New("config: earlyStop.minPriority must be within [0,1]")
	}
	return nil
}
