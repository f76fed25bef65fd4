// Package config loads the daemon configuration. Precedence, lowest to
// highest: built-in defaults, .env file, environment variables, CLI
// flags.
package config

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	Debug      bool   `env:"DEBUG_MODE"`      // verbose logging, development zap encoder
	ListenAddr string `env:"LISTEN_ADDR"`     // HTTP/websocket bind address
	StorePath  string `env:"STORE_PATH"`      // settings database location
	Lang       string `env:"OCR_LANG"`        // OCR language hint

	HotkeyDebounce   time.Duration `env:"HOTKEY_DEBOUNCE"`   // duplicate-press suppression window
	CaptureTimeout   time.Duration `env:"CAPTURE_TIMEOUT"`   // per capture strategy
	OCRTimeout       time.Duration `env:"OCR_TIMEOUT"`       // one OCR invocation
	SelectionTimeout time.Duration `env:"SELECTION_TIMEOUT"` // one selection/title query
	SnapshotTimeout  time.Duration `env:"SNAPSHOT_TIMEOUT"`  // whole snapshot build

	// OCREngine selects "tesseract" (local binary) or "vision" (hosted model).
	OCREngine       string `env:"OCR_ENGINE"`
	TesseractBinary string `env:"TESSERACT_BINARY"`

	// Vision engine settings. The key can come from a secrets file so it
	// never sits in the environment of child processes.
	OpenRouterAPIKey     string   `env:"OPENROUTER_API_KEY"`
	OpenRouterAPIKeyFile string   `env:"OPENROUTER_API_KEY_FILE"`
	VisionModel          string   `env:"VISION_MODEL"`
	VisionProviders      []string `env:"VISION_PROVIDERS" envSeparator:","`

	SnapshotWorkers int `env:"SNAPSHOT_WORKERS"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Debug:            false,
		ListenAddr:       "127.0.0.1:8741",
		StorePath:        filepath.Join(home, ".config", "sahayak", "settings.db"),
		Lang:             "eng",
		HotkeyDebounce:   250 * time.Millisecond,
		CaptureTimeout:   5 * time.Second,
		OCRTimeout:       15 * time.Second,
		SelectionTimeout: 2 * time.Second,
		SnapshotTimeout:  20 * time.Second,
		OCREngine:        "tesseract",
		TesseractBinary:  "tesseract",
		SnapshotWorkers:  2,
	}
}

// Load builds the effective configuration.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable verbose logging")
	flag.StringVar(&cfg.ListenAddr, "listen-addr", cfg.ListenAddr, "HTTP/websocket bind address")
	flag.StringVar(&cfg.StorePath, "store-path", cfg.StorePath, "settings database path")
	flag.StringVar(&cfg.Lang, "ocr-lang", cfg.Lang, "OCR language hint")
	flag.DurationVar(&cfg.HotkeyDebounce, "hotkey-debounce", cfg.HotkeyDebounce, "shortcut debounce window")
	flag.DurationVar(&cfg.CaptureTimeout, "capture-timeout", cfg.CaptureTimeout, "per-strategy capture timeout")
	flag.DurationVar(&cfg.OCRTimeout, "ocr-timeout", cfg.OCRTimeout, "OCR invocation timeout")
	flag.DurationVar(&cfg.SnapshotTimeout, "snapshot-timeout", cfg.SnapshotTimeout, "whole snapshot build timeout")
	flag.StringVar(&cfg.OCREngine, "ocr-engine", cfg.OCREngine, "OCR engine: tesseract|vision")
	flag.StringVar(&cfg.TesseractBinary, "tesseract-binary", cfg.TesseractBinary, "tesseract executable")
	flag.StringVar(&cfg.VisionModel, "vision-model", cfg.VisionModel, "vision OCR model name")
	flag.Parse()

	cfg.OpenRouterAPIKey = resolveAPIKey(cfg.OpenRouterAPIKey, cfg.OpenRouterAPIKeyFile)
	return cfg, nil
}

// resolveAPIKey prefers a key file over an inline key when both are set.
func resolveAPIKey(inline, file string) string {
	if file != "" {
		if data, err := os.ReadFile(file); err == nil {
			if key := strings.TrimSpace(string(data)); key != "" {
				return key
			}
		}
	}
	return inline
}
