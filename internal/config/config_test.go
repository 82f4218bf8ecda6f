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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"agenttools/internal/paths"
	"agenttools/internal/policy"
	"agenttools/internal/shell"
	"agenttools/internal/tools"

	"github.com/rs/zerolog"
)

func writeTempConfig(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvRoot, EnvSecurityLevel, EnvLogLevel, EnvToolPrefix} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigMissingFileReturnsDefault(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SecurityLevel != "moderate" {
		t.Fatalf("expected moderate default, got %s", cfg.SecurityLevel)
	}
	if cfg.SandboxRoot != "." {
		t.Fatalf("expected current directory as default root, got %s", cfg.SandboxRoot)
	}
	if cfg.CacheSize != paths.DefaultCacheSize {
		t.Fatalf("expected default cache size, got %d", cfg.CacheSize)
	}
	if cfg.Shell.TimeoutSeconds != int(shell.DefaultTimeout/time.Second) {
		t.Fatalf("expected default shell timeout, got %d", cfg.Shell.TimeoutSeconds)
	}
	if !cfg.OutputFilters.StripANSI || !cfg.OutputFilters.StripControl {
		t.Fatalf("expected output filters enabled by default, got %+v", cfg.OutputFilters)
	}
}

func TestLoadConfigJSONWithComments(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "config.jsonc", `{
		// tier
		"security_level": "strict",
		/* tools */
		"disabled_tools": ["rm", "mv",],
		"tool_prefix": "fs_",
	}`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SecurityLevel != "strict" || cfg.ToolPrefix != "fs_" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if strings.Join(cfg.DisabledTools, ",") != "rm,mv" {
		t.Fatalf("unexpected disabled tools %v", cfg.DisabledTools)
	}
}

func TestConfigValidationRejectsUnknownField(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{name: "top level", content: `{"unknown_field":123}`, field: "unknown_field"},
		{name: "nested", content: `{"shell":{"color":"red"}}`, field: "shell.color"},
		{name: "resource limits", content: `{"resource_limits":{"max_disk":1}}`, field: "resource_limits.max_disk"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeTempConfig(t, "config.json", tt.content))
			if err == nil {
				t.Fatal("expected error for unknown field")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Fatalf("expected error to name %s, got %v", tt.field, err)
			}
		})
	}
}

func TestConfigValidationRejectsInvalidType(t *testing.T) {
	clearEnv(t)
	tests := []string{
		`{"resource_limits":{"max_file_size_bytes":"oops"}}`,
		`{"disabled_tools":"rm"}`,
		`{"allow_override":"yes"}`,
		`{"rate_limits":{"per_tool":{"cat":"fast"}}}`,
		`{"shell":"bash"}`,
	}
	for _, content := range tests {
		if _, err := LoadConfig(writeTempConfig(t, "config.json", content)); err == nil {
			t.Fatalf("expected error for invalid type in %s", content)
		}
	}
}

func TestLegacyKeysAreMigrated(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "config.json", `{
		"root": "/srv/work",
		"tool_rate_limits": {"default_per_minute": 5},
		"tool_output_filters": {"max_chars": 64}
	}`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SandboxRoot != "/srv/work" {
		t.Fatalf("expected migrated root, got %s", cfg.SandboxRoot)
	}
	if cfg.RateLimits.DefaultPerMinute != 5 {
		t.Fatalf("expected migrated rate limit, got %d", cfg.RateLimits.DefaultPerMinute)
	}
	if cfg.OutputFilters.MaxChars != 64 {
		t.Fatalf("expected migrated output filter, got %d", cfg.OutputFilters.MaxChars)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "config.yaml", `
security_level: permissive
allowed_commands: [echo, ls]
resource_limits:
  max_batch_size: 7
shell:
  type: bash
  timeout_seconds: 5
output_filters:
  strip_ansi: false
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SecurityLevel != "permissive" || cfg.Shell.Type != "bash" || cfg.Shell.TimeoutSeconds != 5 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.ResourceLimits.MaxBatchSize == nil || *cfg.ResourceLimits.MaxBatchSize != 7 {
		t.Fatalf("expected batch size override, got %v", cfg.ResourceLimits.MaxBatchSize)
	}
	if cfg.OutputFilters.StripANSI {
		t.Fatal("expected strip_ansi to be turned off")
	}
	if !cfg.OutputFilters.StripControl {
		t.Fatal("expected strip_control to keep its default")
	}
}

func TestLoadConfigYAMLUnknownField(t *testing.T) {
	clearEnv(t)
	if _, err := LoadConfig(writeTempConfig(t, "config.yml", "colour: blue\n")); err == nil {
		t.Fatal("expected error for unknown YAML field")
	}
}

func TestLoadConfigTOML(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "config.toml", `
security_level = "strict"
blocked_paths = ["secrets"]
log_level = "debug"

[resource_limits]
max_file_size_bytes = 2048

[rate_limits]
default_per_minute = 30

[rate_limits.cooldown_seconds]
shell = 2
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ResourceLimits.MaxFileSizeBytes == nil || *cfg.ResourceLimits.MaxFileSizeBytes != 2048 {
		t.Fatalf("expected file size override, got %v", cfg.ResourceLimits.MaxFileSizeBytes)
	}
	if cfg.RateLimits.DefaultPerMinute != 30 || cfg.RateLimits.CooldownSeconds["shell"] != 2 {
		t.Fatalf("unexpected rate limits %+v", cfg.RateLimits)
	}
	level, err := cfg.ZerologLevel()
	if err != nil || level != zerolog.DebugLevel {
		t.Fatalf("expected debug level, got %v (%v)", level, err)
	}
}

func TestLoadConfigTOMLUnknownField(t *testing.T) {
	clearEnv(t)
	_, err := LoadConfig(writeTempConfig(t, "config.toml", "[shell]\ncolour = \"blue\"\n"))
	if err == nil {
		t.Fatal("expected error for unknown TOML field")
	}
	if !strings.Contains(err.Error(), "shell.colour") {
		t.Fatalf("expected error to name the key, got %v", err)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "config.json", `{"sandbox_root":"/from/file","security_level":"strict","tool_prefix":"a_"}`)
	t.Setenv(EnvRoot, "/from/env")
	t.Setenv(EnvSecurityLevel, "permissive")
	t.Setenv(EnvToolPrefix, "b_")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SandboxRoot != "/from/env" || cfg.SecurityLevel != "permissive" || cfg.ToolPrefix != "b_" || cfg.LogLevel != "warn" {
		t.Fatalf("expected env to override file, got %+v", cfg)
	}
}

func TestDotEnvFileNextToConfig(t *testing.T) {
	clearEnv(t)
	os.Unsetenv(EnvSecurityLevel)
	os.Unsetenv(EnvToolPrefix)
	t.Setenv(EnvLogLevel, "error")

	path := writeTempConfig(t, "config.json", `{}`)
	dotenv := "AGENTTOOLS_SECURITY_LEVEL=strict\nAGENTTOOLS_TOOL_PREFIX=env_\nAGENTTOOLS_LOG_LEVEL=debug\n"
	if err := os.WriteFile(filepath.Join(filepath.Dir(path), ".env"), []byte(dotenv), 0o644); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SecurityLevel != "strict" || cfg.ToolPrefix != "env_" {
		t.Fatalf("expected .env values, got %+v", cfg)
	}
	if cfg.LogLevel != "error" {
		t.Fatalf("expected process env to win over .env, got %s", cfg.LogLevel)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name    string
		content string
	}{
		{name: "security level", content: `{"security_level":"paranoid"}`},
		{name: "shell", content: `{"shell":{"type":"fish"}}`},
		{name: "log level", content: `{"log_level":"loud"}`},
		{name: "override without allow", content: `{"override":true}`},
		{name: "negative cache", content: `{"cache_size":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeTempConfig(t, "config.json", tt.content)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSecurityPolicyOverrides(t *testing.T) {
	maxFile := int64(1024)
	maxExec := 3
	cfg := DefaultConfig()
	cfg.SecurityLevel = "strict"
	cfg.ResourceLimits = ResourceLimits{MaxFileSizeBytes: &maxFile, MaxExecutionSeconds: &maxExec}
	cfg.AllowedCommands = []string{"echo"}
	cfg.AllowedExtensions = []string{".GO", "txt"}
	cfg.BlockedPaths = []string{"secrets"}
	cfg.AllowOverride = true

	p, err := cfg.SecurityPolicy()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	strict := policy.Strict()
	if p.Level != policy.LevelStrict {
		t.Fatalf("expected strict, got %s", p.Level)
	}
	if p.Resources.MaxFileSize != 1024 || p.Resources.MaxExecutionTime != 3*time.Second {
		t.Fatalf("expected overridden limits, got %+v", p.Resources)
	}
	if p.Resources.MaxBatchSize != strict.Resources.MaxBatchSize {
		t.Fatalf("expected preset batch size to survive, got %d", p.Resources.MaxBatchSize)
	}
	if strings.Join(p.Commands.AllowedCommands, ",") != "echo" {
		t.Fatalf("expected replaced allowlist, got %v", p.Commands.AllowedCommands)
	}
	if strings.Join(p.Commands.BlockedCommands, ",") != strings.Join(strict.Commands.BlockedCommands, ",") {
		t.Fatalf("expected preset blocklist, got %v", p.Commands.BlockedCommands)
	}
	if strings.Join(p.Sandbox.AllowedExtensions, ",") != "go,txt" {
		t.Fatalf("expected normalized extensions, got %v", p.Sandbox.AllowedExtensions)
	}
	if len(p.Sandbox.BlockedPaths) == 0 || p.Sandbox.BlockedPaths[len(p.Sandbox.BlockedPaths)-1] != "secrets" {
		t.Fatalf("expected blocked path appended, got %v", p.Sandbox.BlockedPaths)
	}
	if !p.AllowOverride {
		t.Fatal("expected override to be allowed")
	}
	if err := p.ValidateCommand("cat notes.txt"); err == nil {
		t.Fatal("cat should no longer be allowed")
	}
}

func TestSecurityPolicyDefaultsMatchPreset(t *testing.T) {
	p, err := DefaultConfig().SecurityPolicy()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.String() != policy.Moderate().String() {
		t.Fatalf("expected moderate preset, got %s", p)
	}
	if p.AllowOverride {
		t.Fatal("override must stay off by default")
	}
}

func TestSandboxConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SandboxRoot = "/work"
	cfg.CacheSize = 32
	cfg.SecurityLevel = "permissive"

	sc, err := cfg.SandboxConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.Root != "/work" || sc.CacheSize != 32 {
		t.Fatalf("unexpected sandbox config %+v", sc)
	}
	if sc.Policy == nil || sc.Policy.Level != policy.LevelPermissive {
		t.Fatalf("expected permissive policy, got %+v", sc.Policy)
	}
}

func TestNewToolkitFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SandboxRoot = t.TempDir()
	cfg.SecurityLevel = "strict"
	cfg.AllowOverride = true
	cfg.Override = true

	tk, err := cfg.NewToolkit(zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tk.Policy().Level != policy.LevelStrict {
		t.Fatalf("expected strict toolkit, got %s", tk.Policy().Level)
	}
	if !tk.Sandbox().Overridden() {
		t.Fatal("expected override to be active")
	}
}

func TestNewToolkitOverrideRequiresPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SandboxRoot = t.TempDir()
	cfg.Override = true

	if _, err := cfg.NewToolkit(zerolog.Nop()); err == nil {
		t.Fatal("expected override without allow_override to fail")
	}
}

func TestToolRateLimitsCustom(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimits = ToolRateLimits{
		DefaultPerMinute: 10,
		PerTool:          map[string]int{"grep": 3},
		CooldownSeconds:  map[string]int{"shell": 2, "cat": 0},
	}
	limits := cfg.ToolRateLimitsConfig()
	if limits.DefaultPerMinute != 10 || limits.PerTool["grep"] != 3 {
		t.Fatalf("unexpected rate limits %+v", limits)
	}
	if limits.Cooldowns["shell"] != 2*time.Second {
		t.Fatalf("expected shell cooldown, got %v", limits.Cooldowns["shell"])
	}
	if _, ok := limits.Cooldowns["cat"]; ok {
		t.Fatal("non-positive cooldowns should be dropped")
	}
}

func TestToolTimeoutsCustom(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeouts = ToolTimeouts{DefaultSeconds: 0, PerToolSeconds: map[string]int{"shell": 90, "ls": -1}}
	timeouts := cfg.ToolTimeoutsConfig()
	if timeouts.Default != 0 {
		t.Fatalf("expected no default timeout, got %v", timeouts.Default)
	}
	if timeouts.For("shell") != 90*time.Second {
		t.Fatalf("expected shell timeout, got %v", timeouts.For("shell"))
	}
	if _, ok := timeouts.PerTool["ls"]; ok {
		t.Fatal("negative timeouts should be dropped")
	}
}

func TestRegistryOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ToolPrefix = "fs_"
	cfg.DisabledTools = []string{"rm"}
	cfg.LegacyTools = true
	cfg.OutputFilters.MaxChars = 99

	opts := cfg.RegistryOptions(zerolog.Nop())
	if opts.Prefix != "fs_" || !opts.Legacy || opts.OutputFilters.MaxChars != 99 {
		t.Fatalf("unexpected registry options %+v", opts)
	}
	cfg.DisabledTools[0] = "mv"
	if opts.Disabled[0] != "rm" {
		t.Fatal("registry options should not alias the config slice")
	}
	if opts.Timeouts.Default != tools.DefaultTimeoutConfig().Default {
		t.Fatalf("expected default registry timeout, got %v", opts.Timeouts.Default)
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SandboxRoot = t.TempDir()
	cfg.SecurityLevel = "disabled"
	cfg.DisabledTools = []string{"rm", "format_disk"}
	cfg.RateLimits.PerTool = map[string]int{"cat": 5, "nope": 1}
	cfg.Timeouts.PerToolSeconds = map[string]int{"shell": 10}
	cfg.Shell.TimeoutSeconds = -1

	tk, err := cfg.NewToolkit(zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	registry := tools.NewRegistry(tk, cfg.RegistryOptions(zerolog.Nop()))

	warnings := cfg.Validate(registry)
	fields := make(map[string]string)
	for _, w := range warnings {
		fields[w.Field] = w.Message
	}
	if len(warnings) != 4 {
		t.Fatalf("expected 4 warnings, got %+v", warnings)
	}
	if !strings.Contains(fields["disabled_tools"], "format_disk") {
		t.Fatalf("expected disabled_tools warning, got %+v", warnings)
	}
	if !strings.Contains(fields["rate_limits.per_tool"], "nope") {
		t.Fatalf("expected per_tool warning, got %+v", warnings)
	}
	if _, ok := fields["security_level"]; !ok {
		t.Fatalf("expected security_level warning, got %+v", warnings)
	}
	if _, ok := fields["shell.timeout_seconds"]; !ok {
		t.Fatalf("expected timeout warning, got %+v", warnings)
	}
}

func TestValidateWithoutRegistry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DisabledTools = []string{"anything"}
	if warnings := cfg.Validate(nil); len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %+v", warnings)
	}
}

func TestExampleConfigLoads(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(writeTempConfig(t, "config.jsonc", ExampleConfigJSON()))
	if err != nil {
		t.Fatalf("example config should load: %v", err)
	}
	if strings.Join(cfg.DisabledTools, ",") != "rm" {
		t.Fatalf("unexpected disabled tools %v", cfg.DisabledTools)
	}
	schema := SchemaJSON()
	for _, want := range []string{`"security_level"`, `"moderate"`, `"per_tool_seconds"`} {
		if !strings.Contains(schema, want) {
			t.Fatalf("schema should mention %s", want)
		}
	}
}
