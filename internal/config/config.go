package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath     = "/app/www/config.json"
	defaultDebounce       = 300 * time.Millisecond
	defaultQueryCacheSize = 256
)

// Language is one configured locale. The order of Config.Languages is the
// order in which translations are concatenated into the search index.
type Language struct {
	Code string `json:"code" yaml:"code"`
	Name string `json:"name" yaml:"name"`
	Flag string `json:"flag,omitempty" yaml:"flag,omitempty"`
}

// Config is the viewer configuration, read from JSON or YAML.
type Config struct {
	Site            string     `json:"site" yaml:"site"`
	Document        string     `json:"document" yaml:"document"`
	LocalesDir      string     `json:"locales_dir" yaml:"locales_dir"`
	LocalesURL      string     `json:"locales_url" yaml:"locales_url"`
	PublicHTMLDir   string     `json:"public_html_dir" yaml:"public_html_dir"`
	IndexDir        string     `json:"index_path" yaml:"index_path"`
	PatchNotes      string     `json:"patch_notes" yaml:"patch_notes"`
	DefaultLanguage string     `json:"default_language" yaml:"default_language"`
	Languages       []Language `json:"languages" yaml:"languages"`
	DebounceMS      int        `json:"debounce_ms" yaml:"debounce_ms"`
	QueryCacheSize  int        `json:"query_cache_size" yaml:"query_cache_size"`
}

func DefaultPath() string {
	if path := os.Getenv("DOCS_VIEWER_CONFIG_FILE"); path != "" {
		return path
	}
	return defaultConfigPath
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if cfg.DefaultLanguage == "" && len(cfg.Languages) > 0 {
		cfg.DefaultLanguage = cfg.Languages[0].Code
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Site == "" {
		return errors.New("config site is required")
	}
	if c.Document == "" {
		return errors.New("config document is required")
	}
	if c.LocalesDir == "" && c.LocalesURL == "" {
		return errors.New("config locales_dir or locales_url is required")
	}
	if len(c.Languages) == 0 {
		return errors.New("config languages is required")
	}
	seen := make(map[string]bool, len(c.Languages))
	for _, lang := range c.Languages {
		if lang.Code == "" {
			return errors.New("config language code is required")
		}
		if seen[lang.Code] {
			return fmt.Errorf("config language %s is duplicated", lang.Code)
		}
		seen[lang.Code] = true
	}
	if !seen[c.DefaultLanguage] {
		return fmt.Errorf("config default_language %q is not a configured language", c.DefaultLanguage)
	}
	if c.DebounceMS < 0 {
		return errors.New("config debounce_ms must not be negative")
	}
	return nil
}

// IndexPath is where the search index snapshot lives.
func (c *Config) IndexPath() string {
	if c.IndexDir != "" {
		return c.IndexDir
	}
	if c.PublicHTMLDir == "" {
		return ""
	}
	return filepath.Join(c.PublicHTMLDir, "search.db")
}

func (c *Config) SiteURL() string {
	return strings.TrimRight(c.Site, "/")
}

func (c *Config) Debounce() time.Duration {
	if c.DebounceMS == 0 {
		return defaultDebounce
	}
	return time.Duration(c.DebounceMS) * time.Millisecond
}

func (c *Config) CacheSize() int {
	if c.QueryCacheSize <= 0 {
		return defaultQueryCacheSize
	}
	return c.QueryCacheSize
}

func (c *Config) LanguageCodes() []string {
	codes := make([]string, 0, len(c.Languages))
	for _, lang := range c.Languages {
		codes = append(codes, lang.Code)
	}
	return codes
}
