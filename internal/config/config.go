package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dre-etl/internal/components/telemetry"
	"dre-etl/internal/portal"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

const (
	ModeLocal  = "local"
	ModeRemote = "remote"

	ResetToRoot = "root"
	ResetNone   = "none"

	FailureAbort = "abort"
	FailureSkip  = "skip"
)

type PortalConfig struct {
	URL string `json:"url"`
	// LookupTimeoutSeconds bounds every element lookup.
	LookupTimeoutSeconds float64 `json:"lookup_timeout_seconds"`
}

type BrowserConfig struct {
	// Mode is either "local" or "remote".
	Mode string `json:"mode"`
	// Headful shows the browser window in local mode, browsers are headless by default.
	Headful bool `json:"headful"`
	// RemoteURL is the DevTools http endpoint used in remote mode.
	RemoteURL string `json:"remote_url"`
}

type RetryConfig struct {
	AttemptsLimit int `json:"attempts_limit"`
	// ResetPolicy is "root" (re-open the portal root before every retry) or "none".
	ResetPolicy string `json:"reset_policy"`
}

type BatchConfig struct {
	// FailurePolicy is "abort" or "skip".
	FailurePolicy string `json:"failure_policy"`
	// ItemsPerMinute paces acquisitions, 0 disables pacing.
	ItemsPerMinute float64 `json:"items_per_minute"`
	Output         string  `json:"output"`
}

type Config struct {
	Portal    PortalConfig     `json:"portal"`
	Browser   BrowserConfig    `json:"browser"`
	Retry     RetryConfig      `json:"retry"`
	Batch     BatchConfig      `json:"batch"`
	Telemetry telemetry.Config `json:"telemetry"`
}

func Default() Config {
	return Config{
		Portal: PortalConfig{
			URL:                  portal.PortalURL,
			LookupTimeoutSeconds: 10,
		},
		Browser: BrowserConfig{
			Mode:      ModeLocal,
			RemoteURL: "http://127.0.0.1:9222",
		},
		Retry: RetryConfig{
			AttemptsLimit: 5,
			ResetPolicy:   ResetToRoot,
		},
		Batch: BatchConfig{
			FailurePolicy: FailureAbort,
			Output:        "./corpus.tsv",
		},
	}
}

func (c Config) LookupTimeout() time.Duration {
	return time.Duration(c.Portal.LookupTimeoutSeconds * float64(time.Second))
}

func (c Config) Validate() error {
	if c.Portal.URL == "" {
		return fmt.Errorf("portal.url must not be empty")
	}
	if c.Portal.LookupTimeoutSeconds <= 0 {
		return fmt.Errorf("portal.lookup_timeout_seconds must be positive, got %v", c.Portal.LookupTimeoutSeconds)
	}
	switch c.Browser.Mode {
	case ModeLocal, ModeRemote:
	default:
		return fmt.Errorf("browser.mode must be %q or %q, got %q", ModeLocal, ModeRemote, c.Browser.Mode)
	}
	if c.Browser.Mode == ModeRemote && c.Browser.RemoteURL == "" {
		return fmt.Errorf("browser.remote_url is required in remote mode")
	}
	if c.Retry.AttemptsLimit <= 0 {
		return fmt.Errorf("retry.attempts_limit must be positive, got %d", c.Retry.AttemptsLimit)
	}
	switch c.Retry.ResetPolicy {
	case ResetToRoot, ResetNone:
	default:
		return fmt.Errorf("retry.reset_policy must be %q or %q, got %q", ResetToRoot, ResetNone, c.Retry.ResetPolicy)
	}
	switch c.Batch.FailurePolicy {
	case FailureAbort, FailureSkip:
	default:
		return fmt.Errorf("batch.failure_policy must be %q or %q, got %q", FailureAbort, FailureSkip, c.Batch.FailurePolicy)
	}
	if c.Batch.ItemsPerMinute < 0 {
		return fmt.Errorf("batch.items_per_minute must not be negative")
	}
	return nil
}

// Load reads `name` (ex. config.json5) and decodes it over the defaults.
// A sibling <name>.local.<ext> file, if present, is decoded last and takes priority over `name`.
// Layers only touch the keys they contain, an explicit zero (ex. `headful: false`) still wins.
// Missing files are not an error, the defaults are returned instead.
func Load(name string) (Config, error) {
	out := Default()

	layers, err := readLayers(name)
	if err != nil {
		return Config{}, err
	}
	for _, layer := range layers {
		err = json5.Unmarshal(layer.contents, &out)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", layer.path, err)
		}
		if layer.local {
			slog.Info("merged config with local overrides", "local", layer.path)
		}
	}

	if err := out.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", name, err)
	}
	return out, nil
}

// Overlay merges the non-zero fields of flags over c. It is meant for command line flags,
// where a zero value means the flag was not given.
func (c *Config) Overlay(flags Config) error {
	err := mergo.Merge(c, flags, mergo.WithOverride)
	if err != nil {
		return err
	}
	return c.Validate()
}

func splitExt(f string) (string, string) {
	for i := len(f) - 1; i >= 0; i-- {
		if f[i] == '.' {
			return f[0:i], f[i+1:]
		}
	}
	return f, ""
}

type layer struct {
	path     string
	contents []byte
	local    bool
}

func readLayers(name string) ([]layer, error) {
	dirname := filepath.Dir(name)
	prefixname, ext := splitExt(filepath.Base(name))
	localname := filepath.Join(dirname, fmt.Sprintf("%s.local.%s", prefixname, ext))

	var layers []layer
	for _, path := range []string{name, localname} {
		contents, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if len(contents) == 0 {
			continue
		}
		layers = append(layers, layer{path: path, contents: contents, local: path == localname})
	}
	return layers, nil
}
