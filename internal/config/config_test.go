package config

import (
	"testing"
	"time"
)

func TestDeriveHubURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"https://api.npascu.com", "wss://api.npascu.com/hubs/market"},
		{"http://localhost:5005", "ws://localhost:5005/hubs/market"},
		{"https://api.npascu.com/", "wss://api.npascu.com/hubs/market"},
		{"wss://api.npascu.com", "wss://api.npascu.com/hubs/market"},
	}
	for _, tc := range cases {
		got, err := deriveHubURL(tc.base)
		if err != nil {
			t.Fatalf("deriveHubURL(%q): %v", tc.base, err)
		}
		if got != tc.want {
			t.Errorf("deriveHubURL(%q) = %q, want %q", tc.base, got, tc.want)
		}
	}
}

func TestDeriveHubURLRejectsUnknownScheme(t *testing.T) {
	if _, err := deriveHubURL("ftp://api.npascu.com"); err == nil {
		t.Fatal("expected error for ftp scheme")
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		APIBaseURL:    "https://api.npascu.com",
		Depth:         10,
		FrameInterval: 16 * time.Millisecond,
		TradeTapeSize: 100,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base url", func(c *Config) { c.APIBaseURL = "" }},
		{"zero depth", func(c *Config) { c.Depth = 0 }},
		{"zero frame interval", func(c *Config) { c.FrameInterval = 0 }},
		{"zero tape size", func(c *Config) { c.TradeTapeSize = 0 }},
		{"empty symbol", func(c *Config) { c.Symbols = []SymbolSubscription{{Symbol: ""}} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SYMBOLS_PATH", "/nonexistent/symbols.json")
	t.Setenv("ENVIRONMENT", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Depth != 10 {
		t.Errorf("default depth = %d, want 10", cfg.Depth)
	}
	if cfg.FrameInterval != 16*time.Millisecond {
		t.Errorf("default frame interval = %v, want 16ms", cfg.FrameInterval)
	}
	if cfg.HubURL != "wss://api.npascu.com/hubs/market" {
		t.Errorf("derived hub URL = %q", cfg.HubURL)
	}
	if cfg.RedisEnabled() {
		t.Error("redis should be disabled by default")
	}
}
