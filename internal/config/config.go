package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DirName is the per-user and per-project configuration directory.
const DirName = ".ctxpack"

// Config holds application configuration.
type Config struct {
	// OutputFile is where `dump` writes the bundle, relative to the project root.
	OutputFile string `json:"output_file,omitempty"`

	// StateFile holds the persisted selection, relative to the project root.
	StateFile string `json:"state_file,omitempty"`

	// Include lists auto-include globs. They apply to every file when no
	// selection is persisted, and afterwards to files that are new since the
	// selection was last saved.
	Include []string `json:"include,omitempty"`

	// Exclude lists extra ignore patterns (gitignore syntax).
	Exclude []string `json:"exclude,omitempty"`

	// MaxFileSizeKB skips files larger than this from the catalog.
	MaxFileSizeKB int `json:"max_file_size_kb,omitempty"`

	// Format is the default bundle format: markdown, json, html or template.
	Format string `json:"format,omitempty"`

	// Template is a path to a text/template file used by the template format.
	Template string `json:"template,omitempty"`

	// Model is the default tokenizer model id.
	Model string `json:"model,omitempty"`

	// TokenLimits maps model id to context window size in tokens.
	TokenLimits map[string]int `json:"token_limits,omitempty"`

	// TokenizerTimeoutMS bounds a single tokenizer call.
	TokenizerTimeoutMS int `json:"tokenizer_timeout_ms,omitempty"`

	// LedgerCapacity is the minimum number of cached (path, model) token
	// counts. The cache grows to hold every catalogued file under every model.
	LedgerCapacity int `json:"ledger_capacity,omitempty"`

	// RemoteTokenizers enables API-backed counting where a model supports it.
	// Requires GEMINI_API_KEY for gemini.
	RemoteTokenizers bool `json:"remote_tokenizers,omitempty"`

	// NoGitignore disables .gitignore/.dockerignore/.npmignore loading.
	NoGitignore bool `json:"no_gitignore,omitempty"`

	// Manifest writes a manifest next to every dump.
	Manifest bool `json:"manifest,omitempty"`

	// SuggestLimit caps related-file suggestions.
	SuggestLimit int `json:"suggest_limit,omitempty"`

	// ProjectType is recorded by `init`; informational.
	ProjectType string `json:"project_type,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes disables every MCP tool of a type ("selection", "tokens", ...).
	DisabledTypes []string `json:"disabled_types,omitempty"`

	// GeminiAPIKey is read from the environment only, never from JSON.
	GeminiAPIKey string `json:"-"`
}

// DefaultTokenLimits returns the built-in context windows per model.
func DefaultTokenLimits() map[string]int {
	return map[string]int{
		"claude": 200000,
		"gpt-4":  128000,
		"gpt-4o": 128000,
		"gemini": 1000000,
		"llama":  128000,
	}
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		OutputFile:         "project_code.txt",
		StateFile:          filepath.Join(DirName, "selection.json"),
		MaxFileSizeKB:      1000,
		Format:             "markdown",
		Model:              "claude",
		TokenLimits:        DefaultTokenLimits(),
		TokenizerTimeoutMS: 5000,
		LedgerCapacity:     8192,
		SuggestLimit:       10,
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.ctxpack) and repo (.ctxpack) directories.
// Repo config is found by walking upward from startDir to find the nearest .ctxpack/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated), maps per key.
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

// FindRepoConfig walks upward from startDir to find the nearest .ctxpack/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, DirName, "config.json")
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

// ApplyEnv overlays CTXPACK_* variables and GEMINI_API_KEY onto cfg.
// A .env file in projectRoot is loaded first; it never overrides variables
// already present in the process environment.
func ApplyEnv(cfg *Config, projectRoot string) error {
	envFile := filepath.Join(projectRoot, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return err
		}
	}

	if v := strings.TrimSpace(os.Getenv("CTXPACK_MODEL")); v != "" {
		cfg.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("CTXPACK_OUTPUT_FILE")); v != "" {
		cfg.OutputFile = v
	}
	if v := strings.TrimSpace(os.Getenv("CTXPACK_MAX_FILE_SIZE_KB")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return errors.New("CTXPACK_MAX_FILE_SIZE_KB must be a positive integer")
		}
		cfg.MaxFileSizeKB = n
	}
	if v := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); v != "" {
		cfg.GeminiAPIKey = v
	}
	return nil
}

// Save writes cfg as indented JSON to path, creating parent directories.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
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

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated;
// maps are merged per key with overlay winning.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.OutputFile = pickString(overlay.OutputFile, base.OutputFile)
	result.StateFile = pickString(overlay.StateFile, base.StateFile)
	result.Format = pickString(overlay.Format, base.Format)
	result.Template = pickString(overlay.Template, base.Template)
	result.Model = pickString(overlay.Model, base.Model)
	result.ProjectType = pickString(overlay.ProjectType, base.ProjectType)
	result.GeminiAPIKey = pickString(overlay.GeminiAPIKey, base.GeminiAPIKey)

	result.MaxFileSizeKB = pickInt(overlay.MaxFileSizeKB, base.MaxFileSizeKB)
	result.TokenizerTimeoutMS = pickInt(overlay.TokenizerTimeoutMS, base.TokenizerTimeoutMS)
	result.LedgerCapacity = pickInt(overlay.LedgerCapacity, base.LedgerCapacity)
	result.SuggestLimit = pickInt(overlay.SuggestLimit, base.SuggestLimit)

	// Booleans: overlay wins if true, else base
	result.RemoteTokenizers = base.RemoteTokenizers || overlay.RemoteTokenizers
	result.NoGitignore = base.NoGitignore || overlay.NoGitignore
	result.Manifest = base.Manifest || overlay.Manifest

	// Arrays: merge and deduplicate
	result.Include = mergeStringSlice(base.Include, overlay.Include)
	result.Exclude = mergeStringSlice(base.Exclude, overlay.Exclude)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	result.TokenLimits = mergeIntMap(base.TokenLimits, overlay.TokenLimits)

	return result
}

// TokenLimit returns the configured context window for model, or 0.
func (c *Config) TokenLimit(model string) int {
	return c.TokenLimits[model]
}

// MaxFileSizeBytes converts MaxFileSizeKB to bytes; 0 means unlimited.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeKB) * 1024
}

func pickString(overlay, base string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

func pickInt(overlay, base int) int {
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

func mergeIntMap(a, b map[string]int) map[string]int {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	result := make(map[string]int, len(a)+len(b))
	for k, v := range a {
		result[k] = v
	}
	for k, v := range b {
		if v > 0 {
			result[k] = v
		}
	}
	return result
}
