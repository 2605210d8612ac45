package app

import (
	"time"

	"github.com/hyperifyio/placescout/internal/crawl"
)

// Config holds runtime configuration for the application.
type Config struct {
	// One-shot discovery
	Website     string
	Context     string
	PageBudget  int
	ImageBudget int
	Strategy    string
	UseJS       bool
	NoAI        bool
	MaxDuration time.Duration
	OutputPath  string // empty writes to stdout

	// Server
	Serve        bool
	ListenAddr   string
	AllowOrigins []string

	// LLM
	LLMBaseURL string
	LLMModel   string
	LLMAPIKey  string

	// Fetching
	UserAgent     string
	RateLimit     float64 // requests per second, 0 disables
	MaxConcurrent int
	RespectRobots bool
	ChromePath    string

	// Places, weather and transit
	GoogleAPIKey string
	OverpassURL  string
	NominatimURL string
	OpenMeteoURL string
	DefaultPlace string
	TimetableURL string
	SearxURL     string
	SearxKey     string
	SearchFile   string

	// Scoring
	TopicCatalogPath     string
	Scoring              ScoringOverrides
	EarlyStopMinImages   int
	EarlyStopMinPriority float64

	// Cache
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheClear       bool
	CacheStrictPerms bool

	Verbose bool
}

// ScoringOverrides replaces individual crawl weights. Zero fields keep the
// default.
type ScoringOverrides struct {
	RuleWeight       float64 `yaml:"ruleWeight" json:"ruleWeight"`
	AIWeight         float64 `yaml:"aiWeight" json:"aiWeight"`
	ContextWeight    float64 `yaml:"contextWeight" json:"contextWeight"`
	ImageWeight      float64 `yaml:"imageWeight" json:"imageWeight"`
	ImageSaturation  int     `yaml:"imageSaturation" json:"imageSaturation"`
	MinImages        int     `yaml:"minImages" json:"minImages"`
	FewImagesPenalty float64 `yaml:"fewImagesPenalty" json:"fewImagesPenalty"`
}

// Apply returns w with the non-zero overrides applied.
func (o ScoringOverrides) Apply(w crawl.Weights) crawl.Weights {
	if o.RuleWeight > 0 {
		w.Blend.Rule = o.RuleWeight
	}
	if o.AIWeight > 0 {
		w.Blend.AI = o.AIWeight
	}
	if o.ContextWeight > 0 {
		w.ContextWeight = o.ContextWeight
	}
	if o.ImageWeight > 0 {
		w.ImageWeight = o.ImageWeight
	}
	if o.ImageSaturation > 0 {
		w.ImageSaturation = o.ImageSaturation
	}
	if o.MinImages > 0 {
		w.MinImages = o.MinImages
	}
	if o.FewImagesPenalty > 0 {
		w.FewImagesPenalty = o.FewImagesPenalty
	}
	return w
}

// DefaultConfig returns the built-in defaults. File, environment and flags
// are layered on top, in that order.
func DefaultConfig() Config {
	return Config{
		PageBudget:           50,
		ImageBudget:          200,
		ListenAddr:           ":8000",
		MaxConcurrent:        8,
		RateLimit:            4,
		DefaultPlace:         "Berlin",
		EarlyStopMinImages:   5,
		EarlyStopMinPriority: 0.8,
		CacheDir:             ".placescout-cache",
	}
}
