package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Provider names accepted in Config.Provider.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderScripted  = "scripted"
)

// Config holds application configuration.
type Config struct {
	// Provider selects the language model backend: anthropic, openai or scripted.
	Provider string `json:"provider,omitempty"`

	// Model is the model name passed to the provider.
	Model string `json:"model,omitempty"`

	// UpgradeModel is tried first for test generation when set and different
	// from Model. Failures fall back to Model.
	UpgradeModel string `json:"upgrade_model,omitempty"`

	// BaseURL overrides the provider API endpoint (proxies, gateways).
	BaseURL string `json:"base_url,omitempty"`

	// MaxTokens caps the length of a model reply.
	MaxTokens int `json:"max_tokens,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// FenceTags are the code fence language tags that mark generated test code.
	FenceTags []string `json:"fence_tags,omitempty"`

	// DefaultImport is prepended to generated code that imports nothing.
	DefaultImport string `json:"default_import,omitempty"`

	// SkipDefaultImport disables DefaultImport prepending.
	SkipDefaultImport bool `json:"skip_default_import,omitempty"`

	// TestSuffix is appended to derived test file names.
	TestSuffix string `json:"test_suffix,omitempty"`

	// MaxSuffixAttempts bounds the -1..-N collision retries.
	MaxSuffixAttempts int `json:"max_suffix_attempts,omitempty"`

	// StopWords are dropped from prompts when naming test files.
	StopWords []string `json:"stop_words,omitempty"`

	// CandidateDirs are probed under each workspace root, in order.
	// "{kind}" is replaced with api or web. Entries must be relative.
	CandidateDirs []string `json:"candidate_dirs,omitempty"`

	// TemplateRepo is the git URL cloned for new test projects.
	TemplateRepo string `json:"template_repo,omitempty"`

	// TemplateBranch is the branch of TemplateRepo to clone.
	TemplateBranch string `json:"template_branch,omitempty"`

	// AllowedPaths is an allowlist of directories for history export.
	// Paths outside ~/.testsmith/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for export.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of tool groups to disable entirely.
	// Known types: "testgen", "history". Unknown type names are logged as warnings.
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:          ProviderAnthropic,
		Model:             "claude-sonnet-4-20250514",
		MaxTokens:         4096,
		LogLevel:          "info",
		FenceTags:         []string{"typescript", "ts"},
		DefaultImport:     "import { test, expect } from '@playwright/test';",
		TestSuffix:        ".spec.ts",
		MaxSuffixAttempts: 100,
		StopWords:         []string{"test", "create", "generate", "for", "the", "and", "or", "to", "a", "an"},
		CandidateDirs:     []string{"tests/{kind}", "test/{kind}", "e2e/{kind}", "tests", "test", "e2e"},
		TemplateRepo:      "https://github.com/akshayp7/playwright-typescript-playwright-test.git",
		TemplateBranch:    "main",
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.testsmith.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// LoadWithRepo loads configuration from both global (~/.testsmith) and repo (.testsmith) directories.
// Repo config is found by walking upward from startDir to find the nearest .testsmith/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .testsmith/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".testsmith", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw returns a zero-valued config (not defaults) when the file is
// missing or the path is empty.
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	return &Config{
		Provider:          pickString(base.Provider, overlay.Provider),
		Model:             pickString(base.Model, overlay.Model),
		UpgradeModel:      pickString(base.UpgradeModel, overlay.UpgradeModel),
		BaseURL:           pickString(base.BaseURL, overlay.BaseURL),
		MaxTokens:         pickInt(base.MaxTokens, overlay.MaxTokens),
		LogLevel:          pickString(base.LogLevel, overlay.LogLevel),
		DefaultImport:     pickString(base.DefaultImport, overlay.DefaultImport),
		TestSuffix:        pickString(base.TestSuffix, overlay.TestSuffix),
		MaxSuffixAttempts: pickInt(base.MaxSuffixAttempts, overlay.MaxSuffixAttempts),
		TemplateRepo:      pickString(base.TemplateRepo, overlay.TemplateRepo),
		TemplateBranch:    pickString(base.TemplateBranch, overlay.TemplateBranch),
		DBMaxOpenConns:    pickInt(base.DBMaxOpenConns, overlay.DBMaxOpenConns),
		DBMaxIdleConns:    pickInt(base.DBMaxIdleConns, overlay.DBMaxIdleConns),

		// Booleans: overlay wins if true, else base
		SkipDefaultImport: base.SkipDefaultImport || overlay.SkipDefaultImport,
		AllowUnsafePaths:  base.AllowUnsafePaths || overlay.AllowUnsafePaths,

		FenceTags:     mergeStringSlice(base.FenceTags, overlay.FenceTags),
		StopWords:     mergeStringSlice(base.StopWords, overlay.StopWords),
		CandidateDirs: mergeStringSlice(base.CandidateDirs, overlay.CandidateDirs),
		AllowedPaths:  mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths),
		DisabledTools: mergeStringSlice(base.DisabledTools, overlay.DisabledTools),
		DisabledTypes: mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes),
	}
}

// ImportLine returns the import prepended to generated code, or "" when
// prepending is disabled.
func (c *Config) ImportLine() string {
	if c.SkipDefaultImport {
		return ""
	}
	return c.DefaultImport
}

func pickString(base, overlay string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

func pickInt(base, overlay int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, list := range [][]string{a, b} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s != "" && !seen[s] {
				seen[s] = true
				result = append(result, s)
			}
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
