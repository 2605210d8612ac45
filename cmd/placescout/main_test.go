package main

import (
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPrescan(t *testing.T) {
	cases := []struct {
		args     []string
		cfg, env string
	}{
		{nil, "", ".env"},
		{[]string{"-config", "a.yaml", "-v"}, "a.yaml", ".env"},
		{[]string{"--config=b.json", "-env", "x.env"}, "b.json", "x.env"},
		{[]string{"-website", "https://a.sk", "--", "-config", "c.yaml"}, "", ".env"},
	}
	for _, c := range cases {
		cfg, env := prescan(c.args)
		if cfg != c.cfg || env != c.env {
			t.Errorf("prescan(%v) = %q, %q", c.args, cfg, env)
		}
	}
}

func TestParseConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "placescout.yaml")
	yaml := "crawl:\n  maxPages: 12\n  maxImages: 30\n  strategy: early-stop\nserver:\n  listen: \":9000\"\n"
	if err := os.WriteFile(file, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MAX_PAGES", "20")

	cfg, _, err := parseConfig([]string{
		"-config", file, "-env", filepath.Join(dir, "missing.env"),
		"-website", "https://example.sk", "-context", "tea room",
		"-max-pages", "7", "-max-duration", "30s", "-allow-origins", "https://a.sk, https://b.sk",
	}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PageBudget != 7 {
		t.Errorf("flag should win: %d", cfg.PageBudget)
	}
	if cfg.ImageBudget != 30 || cfg.Strategy != "early-stop" || cfg.ListenAddr != ":9000" {
		t.Errorf("file values lost: %+v", cfg)
	}
	if cfg.MaxDuration != 30*time.Second || len(cfg.AllowOrigins) != 2 || cfg.AllowOrigins[1] != "https://b.sk" {
		t.Errorf("flags: %+v", cfg)
	}
	if cfg.CacheDir != ".placescout-cache" {
		t.Errorf("default lost: %q", cfg.CacheDir)
	}
}

func TestParseConfig_EnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "c.json")
	if err := os.WriteFile(file, []byte(`{"crawl":{"maxPages":12}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MAX_PAGES", "20")
	cfg, _, err := parseConfig([]string{"-config=" + file, "-env=", "-serve"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PageBudget != 20 || !cfg.Serve {
		t.Fatalf("cfg: %+v", cfg)
	}
}

func TestParseConfig_Errors(t *testing.T) {
	if _, _, err := parseConfig([]string{"-env="}, io.Discard); err == nil {
		t.Error("missing website should fail validation")
	}
	if _, _, err := parseConfig([]string{"-env=", "-h"}, io.Discard); !errors.Is(err, flag.ErrHelp) {
		t.Errorf("help: %v", err)
	}
	if _, _, err := parseConfig([]string{"-config", "/nonexistent/placescout.yaml"}, io.Discard); err == nil {
		t.Error("unreadable config file should fail")
	}
	if _, v, err := parseConfig([]string{"-env=", "-version"}, io.Discard); err != nil || !v {
		t.Errorf("version: %v %v", v, err)
	}
}
