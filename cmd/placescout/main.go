// Command placescout finds the photo gallery of a place's website, or serves
// the place-discovery API with -serve.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/placescout/internal/app"
)

// Set with -ldflags "-X main.version=...".
var (
	version = "0.0.0-dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, showVersion, err := parseConfig(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(2)
	}
	if showVersion {
		fmt.Printf("placescout %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, cfg))
}

func run(ctx context.Context, cfg app.Config) int {
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("init failed")
		return 1
	}
	defer a.Close()
	if err := a.Run(ctx); err != nil {
		if errors.Is(err, app.ErrDiscoveryFailed) {
			log.Warn().Err(err).Msg("no images found")
			return 2
		}
		log.Error().Err(err).Msg("run failed")
		return 1
	}
	return 0
}

// parseConfig layers defaults, the optional config file, environment and
// flags, later sources winning.
func parseConfig(args []string, stderr io.Writer) (app.Config, bool, error) {
	configPath, envPath := prescan(args)
	if envPath != "" {
		if err := app.LoadEnvFiles(envPath); err != nil {
			return app.Config{}, false, fmt.Errorf("load env: %w", err)
		}
	}
	cfg := app.DefaultConfig()
	if configPath != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			return app.Config{}, false, fmt.Errorf("load config: %w", err)
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	app.ApplyEnvOverrides(&cfg)

	fs := flag.NewFlagSet("placescout", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		showVersion  bool
		allowOrigins = strings.Join(cfg.AllowOrigins, ",")
	)
	fs.String("config", configPath, "Path to a YAML or JSON config file")
	fs.String("env", envPath, "Path to a dotenv file loaded before reading the environment")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")

	fs.StringVar(&cfg.Website, "website", cfg.Website, "Website to search for images")
	fs.StringVar(&cfg.Context, "context", cfg.Context, "What the photos should show, e.g. 'cozy tea room interior'")
	fs.IntVar(&cfg.PageBudget, "max-pages", cfg.PageBudget, "Maximum pages to visit")
	fs.IntVar(&cfg.ImageBudget, "max-images", cfg.ImageBudget, "Maximum images to return")
	fs.StringVar(&cfg.Strategy, "strategy", cfg.Strategy, "Crawl strategy: two-phase or early-stop")
	fs.BoolVar(&cfg.UseJS, "js", cfg.UseJS, "Render pages with headless Chrome")
	fs.BoolVar(&cfg.NoAI, "no-ai", cfg.NoAI, "Use rule-based scoring only")
	fs.DurationVar(&cfg.MaxDuration, "max-duration", cfg.MaxDuration, "Wall-clock limit for one discovery; 0 disables")
	fs.StringVar(&cfg.OutputPath, "out", cfg.OutputPath, "Write the JSON result to this file instead of stdout")

	fs.BoolVar(&cfg.Serve, "serve", cfg.Serve, "Serve the HTTP API")
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "HTTP listen address")
	fs.StringVar(&allowOrigins, "allow-origins", allowOrigins, "Comma-separated CORS origins; * allows any")

	fs.StringVar(&cfg.LLMBaseURL, "llm.base", cfg.LLMBaseURL, "OpenAI-compatible base URL")
	fs.StringVar(&cfg.LLMModel, "llm.model", cfg.LLMModel, "Model name; empty disables model calls")
	fs.StringVar(&cfg.LLMAPIKey, "llm.key", cfg.LLMAPIKey, "API key for the OpenAI-compatible server")

	fs.StringVar(&cfg.UserAgent, "ua", cfg.UserAgent, "User-Agent for page fetches")
	fs.Float64Var(&cfg.RateLimit, "rate", cfg.RateLimit, "Page fetches per second; 0 disables pacing")
	fs.IntVar(&cfg.MaxConcurrent, "max-concurrent", cfg.MaxConcurrent, "Concurrent fetches per host")
	fs.BoolVar(&cfg.RespectRobots, "respect-robots", cfg.RespectRobots, "Skip pages disallowed by robots.txt")
	fs.StringVar(&cfg.ChromePath, "chrome", cfg.ChromePath, "Chrome executable for -js; empty searches PATH")

	fs.StringVar(&cfg.GoogleAPIKey, "google.key", cfg.GoogleAPIKey, "Google Places API key; empty disables the source")
	fs.StringVar(&cfg.DefaultPlace, "weather.place", cfg.DefaultPlace, "Place used when a weather question names none")
	fs.StringVar(&cfg.TimetableURL, "transit.url", cfg.TimetableURL, "Journey planner search page; empty uses cp.sk")
	fs.StringVar(&cfg.SearxURL, "searx.url", cfg.SearxURL, "SearxNG base URL for finding missing websites")
	fs.StringVar(&cfg.SearxKey, "searx.key", cfg.SearxKey, "SearxNG API key (optional)")
	fs.StringVar(&cfg.SearchFile, "search.file", cfg.SearchFile, "JSON file for offline website lookup")

	fs.StringVar(&cfg.TopicCatalogPath, "topics", cfg.TopicCatalogPath, "YAML topic catalog replacing the built-in one")
	fs.StringVar(&cfg.CacheDir, "cache.dir", cfg.CacheDir, "Cache directory; empty disables caching")
	fs.DurationVar(&cfg.CacheMaxAge, "cache.maxAge", cfg.CacheMaxAge, "Purge cache entries older than this; 0 disables")
	fs.BoolVar(&cfg.CacheClear, "cache.clear", cfg.CacheClear, "Clear the cache before running")
	fs.BoolVar(&cfg.CacheStrictPerms, "cache.strictPerms", cfg.CacheStrictPerms, "Restrict cache permissions (0700 dirs, 0600 files)")

	if err := fs.Parse(args); err != nil {
		return app.Config{}, false, err
	}
	if showVersion {
		return cfg, true, nil
	}
	cfg.AllowOrigins = app.SplitList(allowOrigins)
	if err := app.ValidateConfig(cfg); err != nil {
		return app.Config{}, false, err
	}
	return cfg, false, nil
}

// prescan finds -config and -env before the flag set exists, since both
// feed the flag defaults.
func prescan(args []string) (configPath, envPath string) {
	envPath = ".env"
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			break
		}
		name := strings.TrimLeft(a, "-")
		if name == a {
			continue
		}
		value := ""
		if k, v, ok := strings.Cut(name, "="); ok {
			name, value = k, v
		} else if (name == "config" || name == "env") && i+1 < len(args) {
			value = args[i+1]
			i++
		}
		switch name {
		case "config":
			configPath = value
		case "env":
			envPath = value
		}
	}
	return configPath, envPath
}
