// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agenttools/internal/paths"
	"agenttools/internal/policy"
	"agenttools/internal/sandbox"
	"agenttools/internal/shell"
	"agenttools/internal/tools"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Environment variables applied after the config file.
const (
	EnvRoot          = "AGENTTOOLS_ROOT"
	EnvSecurityLevel = "AGENTTOOLS_SECURITY_LEVEL"
	EnvLogLevel      = "AGENTTOOLS_LOG_LEVEL"
	EnvToolPrefix    = "AGENTTOOLS_TOOL_PREFIX"
)

// Config represents the application configuration
type Config struct {
	SandboxRoot       string            `json:"sandbox_root,omitempty" yaml:"sandbox_root" toml:"sandbox_root"`
	SecurityLevel     string            `json:"security_level,omitempty" yaml:"security_level" toml:"security_level" jsonschema:"enum=strict,enum=moderate,enum=permissive,enum=disabled"`
	AllowOverride     bool              `json:"allow_override,omitempty" yaml:"allow_override" toml:"allow_override"`
	Override          bool              `json:"override,omitempty" yaml:"override" toml:"override"`
	ResourceLimits    ResourceLimits    `json:"resource_limits,omitempty" yaml:"resource_limits" toml:"resource_limits"`
	AllowedCommands   []string          `json:"allowed_commands,omitempty" yaml:"allowed_commands" toml:"allowed_commands"`
	BlockedCommands   []string          `json:"blocked_commands,omitempty" yaml:"blocked_commands" toml:"blocked_commands"`
	AllowedExtensions []string          `json:"allowed_extensions,omitempty" yaml:"allowed_extensions" toml:"allowed_extensions"`
	BlockedPaths      []string          `json:"blocked_paths,omitempty" yaml:"blocked_paths" toml:"blocked_paths"`
	ToolPrefix        string            `json:"tool_prefix,omitempty" yaml:"tool_prefix" toml:"tool_prefix"`
	DisabledTools     []string          `json:"disabled_tools,omitempty" yaml:"disabled_tools" toml:"disabled_tools"`
	LegacyTools       bool              `json:"legacy_tools,omitempty" yaml:"legacy_tools" toml:"legacy_tools"`
	CacheSize         int               `json:"cache_size,omitempty" yaml:"cache_size" toml:"cache_size"`
	Shell             ShellSettings     `json:"shell,omitempty" yaml:"shell" toml:"shell"`
	ToolLimits        ToolLimits        `json:"tool_limits,omitempty" yaml:"tool_limits" toml:"tool_limits"`
	RateLimits        ToolRateLimits    `json:"rate_limits,omitempty" yaml:"rate_limits" toml:"rate_limits"`
	Timeouts          ToolTimeouts      `json:"tool_timeouts,omitempty" yaml:"tool_timeouts" toml:"tool_timeouts"`
	OutputFilters     ToolOutputFilters `json:"output_filters,omitempty" yaml:"output_filters" toml:"output_filters"`
	LogLevel          string            `json:"log_level,omitempty" yaml:"log_level" toml:"log_level"`
}

// ResourceLimits partially overrides the limits of the selected tier. Unset
// fields keep the preset value.
type ResourceLimits struct {
	Enabled                 *bool  `json:"enabled,omitempty" yaml:"enabled" toml:"enabled"`
	MaxFileSizeBytes        *int64 `json:"max_file_size_bytes,omitempty" yaml:"max_file_size_bytes" toml:"max_file_size_bytes"`
	MaxBatchSize            *int   `json:"max_batch_size,omitempty" yaml:"max_batch_size" toml:"max_batch_size"`
	MaxMemoryBytes          *int64 `json:"max_memory_bytes,omitempty" yaml:"max_memory_bytes" toml:"max_memory_bytes"`
	MaxExecutionSeconds     *int   `json:"max_execution_seconds,omitempty" yaml:"max_execution_seconds" toml:"max_execution_seconds"`
	MaxConcurrentOperations *int   `json:"max_concurrent_operations,omitempty" yaml:"max_concurrent_operations" toml:"max_concurrent_operations"`
	MaxOutputBytes          *int64 `json:"max_output_bytes,omitempty" yaml:"max_output_bytes" toml:"max_output_bytes"`
}

// ShellSettings selects the default shell for the execute tool.
type ShellSettings struct {
	Type           string `json:"type,omitempty" yaml:"type" toml:"type" jsonschema:"enum=default,enum=bash,enum=sh,enum=powershell,enum=pwsh,enum=cmd"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds" toml:"timeout_seconds"`
}

// ToolLimits configures traversal limits for tool execution.
type ToolLimits struct {
	MaxDirectoryDepth   int `json:"max_directory_depth,omitempty" yaml:"max_directory_depth" toml:"max_directory_depth"`
	MaxDirectoryEntries int `json:"max_directory_entries,omitempty" yaml:"max_directory_entries" toml:"max_directory_entries"`
	MaxFindResults      int `json:"max_find_results,omitempty" yaml:"max_find_results" toml:"max_find_results"`
	MaxGrepMatches      int `json:"max_grep_matches,omitempty" yaml:"max_grep_matches" toml:"max_grep_matches"`
}

// ToolRateLimits configures tool rate limits and cooldowns.
type ToolRateLimits struct {
	DefaultPerMinute int            `json:"default_per_minute,omitempty" yaml:"default_per_minute" toml:"default_per_minute"`
	PerTool          map[string]int `json:"per_tool,omitempty" yaml:"per_tool" toml:"per_tool"`
	CooldownSeconds  map[string]int `json:"cooldown_seconds,omitempty" yaml:"cooldown_seconds" toml:"cooldown_seconds"`
}

// ToolTimeouts configures tool execution timeouts.
type ToolTimeouts struct {
	DefaultSeconds int            `json:"default_seconds,omitempty" yaml:"default_seconds" toml:"default_seconds"`
	PerToolSeconds map[string]int `json:"per_tool_seconds,omitempty" yaml:"per_tool_seconds" toml:"per_tool_seconds"`
}

// ToolOutputFilters configures output sanitization for shell results.
type ToolOutputFilters struct {
	MaxChars     int  `json:"max_chars,omitempty" yaml:"max_chars" toml:"max_chars"`
	StripANSI    bool `json:"strip_ansi,omitempty" yaml:"strip_ansi" toml:"strip_ansi"`
	StripControl bool `json:"strip_control,omitempty" yaml:"strip_control" toml:"strip_control"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	limits := tools.DefaultLimits()
	filters := tools.DefaultOutputFilterConfig()
	return &Config{
		SandboxRoot:   ".",
		SecurityLevel: string(policy.LevelModerate),
		CacheSize:     paths.DefaultCacheSize,
		Shell: ShellSettings{
			Type:           "default",
			TimeoutSeconds: int(shell.DefaultTimeout / time.Second),
		},
		ToolLimits: ToolLimits{
			MaxDirectoryDepth:   limits.MaxDirectoryDepth,
			MaxDirectoryEntries: limits.MaxDirectoryEntries,
			MaxFindResults:      limits.MaxFindResults,
			MaxGrepMatches:      limits.MaxGrepMatches,
		},
		RateLimits: ToolRateLimits{
			DefaultPerMinute: tools.DefaultRateLimitConfig().DefaultPerMinute,
		},
		Timeouts: ToolTimeouts{
			DefaultSeconds: int(tools.DefaultTimeoutConfig().Default / time.Second),
		},
		OutputFilters: ToolOutputFilters{
			MaxChars:     filters.MaxChars,
			StripANSI:    filters.StripANSI,
			StripControl: filters.StripControl,
		},
		LogLevel: zerolog.InfoLevel.String(),
	}
}

// LoadConfig loads configuration from a JSON, JSONC, YAML or TOML file,
// loads an optional .env file next to it, applies env overrides and
// validates the result. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decodeConfig(path, data, config); err != nil {
				return nil, fmt.Errorf("config %s: %w", path, err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
	}

	envFile := ".env"
	if path != "" {
		envFile = filepath.Join(filepath.Dir(path), ".env")
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}
	config.applyEnv()

	if err := config.check(); err != nil {
		return nil, err
	}
	return config, nil
}

func decodeConfig(path string, data []byte, config *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	case ".toml":
		md, err := toml.Decode(string(data), config)
		if err != nil {
			return err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown configuration field %q", undecoded[0].String())
		}
		return nil
	default:
		normalized, err := normalizeConfigJSON(jsonc.ToJSON(data))
		if err != nil {
			return err
		}
		return json.Unmarshal(normalized, config)
	}
}

func (c *Config) applyEnv() {
	if val := os.Getenv(EnvRoot); val != "" {
		c.SandboxRoot = val
	}
	if val := os.Getenv(EnvSecurityLevel); val != "" {
		c.SecurityLevel = val
	}
	if val := os.Getenv(EnvLogLevel); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv(EnvToolPrefix); val != "" {
		c.ToolPrefix = val
	}
}

func (c *Config) check() error {
	if _, err := policy.ParseLevel(c.SecurityLevel); err != nil {
		return err
	}
	if _, err := shell.ParseType(c.Shell.Type); err != nil {
		return err
	}
	if _, err := c.ZerologLevel(); err != nil {
		return err
	}
	if c.Override && !c.AllowOverride {
		return fmt.Errorf("override requires allow_override to be set")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size %d must not be negative", c.CacheSize)
	}
	return nil
}

// ZerologLevel parses log_level. An empty value means info.
func (c *Config) ZerologLevel() (zerolog.Level, error) {
	if strings.TrimSpace(c.LogLevel) == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(c.LogLevel)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// SecurityPolicy builds the policy for the configured tier with the
// configured overrides applied.
func (c *Config) SecurityPolicy() (policy.SecurityPolicy, error) {
	level, err := policy.ParseLevel(c.SecurityLevel)
	if err != nil {
		return policy.SecurityPolicy{}, err
	}
	p := policy.ForLevel(level)

	p = p.WithResourceLimits(c.ResourceLimits.apply(p.Resources))

	if c.AllowedCommands != nil || c.BlockedCommands != nil {
		commands := p.Commands
		if c.AllowedCommands != nil {
			commands.AllowedCommands = c.AllowedCommands
		}
		if c.BlockedCommands != nil {
			commands.BlockedCommands = c.BlockedCommands
		}
		p = p.WithCommandPolicy(commands)
	}

	if c.AllowedExtensions != nil || c.BlockedPaths != nil {
		sb := p.Sandbox
		if c.AllowedExtensions != nil {
			sb.AllowedExtensions = c.AllowedExtensions
		}
		if c.BlockedPaths != nil {
			sb.BlockedPaths = append(append([]string{}, sb.BlockedPaths...), c.BlockedPaths...)
		}
		p = p.WithSandboxPolicy(sb)
	}

	if c.AllowOverride {
		p = p.WithOverrideEnabled()
	}
	return p, nil
}

func (r ResourceLimits) apply(limits policy.ResourceLimits) policy.ResourceLimits {
	if r.Enabled != nil {
		limits.Enabled = *r.Enabled
	}
	if r.MaxFileSizeBytes != nil {
		limits.MaxFileSize = *r.MaxFileSizeBytes
	}
	if r.MaxBatchSize != nil {
		limits.MaxBatchSize = *r.MaxBatchSize
	}
	if r.MaxMemoryBytes != nil {
		limits.MaxMemory = *r.MaxMemoryBytes
	}
	if r.MaxExecutionSeconds != nil {
		limits.MaxExecutionTime = time.Duration(*r.MaxExecutionSeconds) * time.Second
	}
	if r.MaxConcurrentOperations != nil {
		limits.MaxConcurrentOperations = *r.MaxConcurrentOperations
	}
	if r.MaxOutputBytes != nil {
		limits.MaxOutputSize = *r.MaxOutputBytes
	}
	return limits
}

// SandboxConfig builds the sandbox configuration.
func (c *Config) SandboxConfig() (sandbox.Config, error) {
	p, err := c.SecurityPolicy()
	if err != nil {
		return sandbox.Config{}, err
	}
	root := c.SandboxRoot
	if root == "" {
		root = "."
	}
	cfg := sandbox.NewConfigWithPolicy(root, p)
	cfg.CacheSize = c.CacheSize
	return cfg, nil
}

// ShellType returns the configured default shell.
func (c *Config) ShellType() (shell.Type, error) {
	return shell.ParseType(c.Shell.Type)
}

// NewToolkit builds the toolkit described by the configuration.
func (c *Config) NewToolkit(logger zerolog.Logger) (*tools.Toolkit, error) {
	cfg, err := c.SandboxConfig()
	if err != nil {
		return nil, err
	}
	shellType, err := c.ShellType()
	if err != nil {
		return nil, err
	}
	return tools.NewToolkit(cfg,
		tools.WithLogger(logger),
		tools.WithLimits(c.ToolLimitsConfig()),
		tools.WithShell(shellType, time.Duration(c.Shell.TimeoutSeconds)*time.Second),
		tools.WithOverride(c.Override),
	)
}

// RegistryOptions returns the registry options described by the configuration.
func (c *Config) RegistryOptions(logger zerolog.Logger) tools.RegistryOptions {
	return tools.RegistryOptions{
		Prefix:        c.ToolPrefix,
		Disabled:      append([]string{}, c.DisabledTools...),
		RateLimits:    c.ToolRateLimitsConfig(),
		OutputFilters: c.ToolOutputFiltersConfig(),
		Timeouts:      c.ToolTimeoutsConfig(),
		Legacy:        c.LegacyTools,
		Logger:        logger,
	}
}

// ToolLimitsConfig returns tool limits for runtime enforcement.
func (c *Config) ToolLimitsConfig() tools.Limits {
	return tools.Limits{
		MaxDirectoryDepth:   c.ToolLimits.MaxDirectoryDepth,
		MaxDirectoryEntries: c.ToolLimits.MaxDirectoryEntries,
		MaxFindResults:      c.ToolLimits.MaxFindResults,
		MaxGrepMatches:      c.ToolLimits.MaxGrepMatches,
	}
}

// ToolRateLimitsConfig returns rate limiting configuration for tools.
func (c *Config) ToolRateLimitsConfig() tools.RateLimitConfig {
	cooldowns := make(map[string]time.Duration, len(c.RateLimits.CooldownSeconds))
	for name, seconds := range c.RateLimits.CooldownSeconds {
		if seconds <= 0 {
			continue
		}
		cooldowns[name] = time.Duration(seconds) * time.Second
	}
	perTool := make(map[string]int, len(c.RateLimits.PerTool))
	for name, rate := range c.RateLimits.PerTool {
		perTool[name] = rate
	}

	return tools.RateLimitConfig{
		DefaultPerMinute: c.RateLimits.DefaultPerMinute,
		PerTool:          perTool,
		Cooldowns:        cooldowns,
	}
}

// ToolTimeoutsConfig returns timeout configuration for tools.
func (c *Config) ToolTimeoutsConfig() tools.TimeoutConfig {
	perTool := make(map[string]time.Duration, len(c.Timeouts.PerToolSeconds))
	for name, seconds := range c.Timeouts.PerToolSeconds {
		if seconds <= 0 {
			continue
		}
		perTool[name] = time.Duration(seconds) * time.Second
	}

	var defaultTimeout time.Duration
	if c.Timeouts.DefaultSeconds > 0 {
		defaultTimeout = time.Duration(c.Timeouts.DefaultSeconds) * time.Second
	}

	return tools.TimeoutConfig{
		Default: defaultTimeout,
		PerTool: perTool,
	}
}

// ToolOutputFiltersConfig returns output filter configuration for tools.
func (c *Config) ToolOutputFiltersConfig() tools.OutputFilterConfig {
	return tools.OutputFilterConfig{
		MaxChars:     c.OutputFilters.MaxChars,
		StripANSI:    c.OutputFilters.StripANSI,
		StripControl: c.OutputFilters.StripControl,
	}
}

// ValidationWarning represents a non-fatal configuration issue
type ValidationWarning struct {
	Field   string
	Message string
}

// Validate checks the configuration for common issues and returns warnings
func (c *Config) Validate(registry *tools.Registry) []ValidationWarning {
	var warnings []ValidationWarning

	if c.Shell.TimeoutSeconds < 0 {
		warnings = append(warnings, ValidationWarning{
			Field:   "shell.timeout_seconds",
			Message: fmt.Sprintf("timeout_seconds %d is negative, using default", c.Shell.TimeoutSeconds),
		})
	}

	if level, err := policy.ParseLevel(c.SecurityLevel); err == nil && level == policy.LevelDisabled {
		warnings = append(warnings, ValidationWarning{
			Field:   "security_level",
			Message: "security level disabled turns off every sandbox and command check",
		})
	}

	if registry != nil {
		registered := make(map[string]bool)
		for _, name := range registry.BaseToolNames() {
			registered[name] = true
		}

		for _, name := range c.DisabledTools {
			if !registered[name] {
				warnings = append(warnings, ValidationWarning{
					Field:   "disabled_tools",
					Message: fmt.Sprintf("tool %q in disabled_tools is not registered", name),
				})
			}
		}
		for _, name := range sortedKeys(c.RateLimits.PerTool) {
			if !registered[name] {
				warnings = append(warnings, ValidationWarning{
					Field:   "rate_limits.per_tool",
					Message: fmt.Sprintf("tool %q in per_tool is not registered", name),
				})
			}
		}
		for _, name := range sortedKeys(c.Timeouts.PerToolSeconds) {
			if !registered[name] {
				warnings = append(warnings, ValidationWarning{
					Field:   "tool_timeouts.per_tool_seconds",
					Message: fmt.Sprintf("tool %q in per_tool_seconds is not registered", name),
				})
			}
		}
	}

	return warnings
}
