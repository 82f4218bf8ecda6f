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

// Package policy defines the security tiers consulted by the sandbox and the
// shell executor.
package policy

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	apperrors "agenttools/internal/errors"
)

// Level names one of the built-in security tiers.
type Level string

const (
	LevelStrict     Level = "strict"
	LevelModerate   Level = "moderate"
	LevelPermissive Level = "permissive"
	LevelDisabled   Level = "disabled"
)

const (
	kib int64 = 1024
	mib       = 1024 * kib
	gib       = 1024 * mib
)

// ParseLevel maps a configuration string to a Level.
func ParseLevel(value string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(value))) {
	case LevelStrict:
		return LevelStrict, nil
	case LevelModerate, "":
		return LevelModerate, nil
	case LevelPermissive:
		return LevelPermissive, nil
	case LevelDisabled, "none", "off":
		return LevelDisabled, nil
	default:
		return "", apperrors.Newf(apperrors.CodeInvalidInput, "unknown security level %q (expected strict, moderate, permissive or disabled)", value)
	}
}

// ResourceLimits bounds the work a single tool call may do.
type ResourceLimits struct {
	Enabled                 bool
	MaxFileSize             int64
	MaxBatchSize            int
	MaxMemory               int64
	MaxExecutionTime        time.Duration
	MaxConcurrentOperations int
	MaxOutputSize           int64
}

// SandboxPolicy controls filesystem reach.
type SandboxPolicy struct {
	Enabled           bool
	AllowReadOutside  bool
	AllowWriteOutside bool
	AllowSymlinks     bool
	AllowHidden       bool
	// AllowedExtensions is nil when any extension is accepted. Entries are
	// lower-case without the leading dot.
	AllowedExtensions []string
	BlockedPaths      []string
}

// CommandPolicy controls which commands the shell executor may run.
type CommandPolicy struct {
	Enabled             bool
	AllowedCommands     []string
	BlockedCommands     []string
	AllowArbitrary      bool
	AllowShellExecution bool
	MaxCommandLength    int
}

// NetworkPolicy describes the network reach granted to tools.
type NetworkPolicy struct {
	Enabled        bool
	AllowOutbound  bool
	AllowedHosts   []string
	BlockedHosts   []string
	AllowedPorts   []int
	MaxConnections int
}

// SecurityPolicy bundles the sub-policies of one tier. Values are treated as
// immutable; the With* builders return modified copies.
type SecurityPolicy struct {
	Level         Level
	Resources     ResourceLimits
	Sandbox       SandboxPolicy
	Commands      CommandPolicy
	Network       NetworkPolicy
	AllowOverride bool
}

// ForLevel returns the preset for level.
func ForLevel(level Level) SecurityPolicy {
	switch level {
	case LevelStrict:
		return Strict()
	case LevelPermissive:
		return Permissive()
	case LevelDisabled:
		return Disabled()
	default:
		return Moderate()
	}
}

// Default returns the Moderate tier.
func Default() SecurityPolicy {
	return Moderate()
}

// Strict confines reads and writes to the root, allows a read-only command
// set and disables the network.
func Strict() SecurityPolicy {
	return SecurityPolicy{
		Level: LevelStrict,
		Resources: ResourceLimits{
			Enabled:                 true,
			MaxFileSize:             10 * mib,
			MaxBatchSize:            100,
			MaxMemory:               256 * mib,
			MaxExecutionTime:        10 * time.Second,
			MaxConcurrentOperations: 5,
			MaxOutputSize:           1 * mib,
		},
		Sandbox: SandboxPolicy{
			Enabled:           true,
			AllowedExtensions: []string{"txt", "md", "json", "yaml", "toml"},
		},
		Commands: CommandPolicy{
			Enabled:          true,
			AllowedCommands:  []string{"cat", "ls", "head", "tail", "grep", "wc"},
			MaxCommandLength: 1024,
		},
		Network: NetworkPolicy{
			Enabled: true,
		},
	}
}

// Moderate is the default tier: reads may leave the root, writes may not,
// and the network is limited to localhost.
func Moderate() SecurityPolicy {
	return SecurityPolicy{
		Level: LevelModerate,
		Resources: ResourceLimits{
			Enabled:                 true,
			MaxFileSize:             100 * mib,
			MaxBatchSize:            1000,
			MaxMemory:               1 * gib,
			MaxExecutionTime:        60 * time.Second,
			MaxConcurrentOperations: 20,
			MaxOutputSize:           10 * mib,
		},
		Sandbox: SandboxPolicy{
			Enabled:          true,
			AllowReadOutside: true,
			AllowSymlinks:    true,
			AllowHidden:      true,
			BlockedPaths:     []string{"/etc/shadow", "/etc/passwd", `C:\Windows\System32\config`},
		},
		Commands: CommandPolicy{
			Enabled:             true,
			AllowedCommands:     []string{"cat", "ls", "head", "tail", "grep", "wc", "find", "sort", "uniq"},
			BlockedCommands:     []string{"rm", "del", "format", "dd"},
			AllowShellExecution: true,
			MaxCommandLength:    4096,
		},
		Network: NetworkPolicy{
			Enabled:        true,
			AllowedHosts:   []string{"localhost", "127.0.0.1"},
			AllowedPorts:   []int{80, 443},
			MaxConnections: 10,
		},
	}
}

// Permissive allows writes outside the root and arbitrary commands except a
// small dangerous set.
func Permissive() SecurityPolicy {
	return SecurityPolicy{
		Level: LevelPermissive,
		Resources: ResourceLimits{
			Enabled:                 true,
			MaxFileSize:             1 * gib,
			MaxBatchSize:            10000,
			MaxMemory:               4 * gib,
			MaxExecutionTime:        300 * time.Second,
			MaxConcurrentOperations: 100,
			MaxOutputSize:           100 * mib,
		},
		Sandbox: SandboxPolicy{
			Enabled:           true,
			AllowReadOutside:  true,
			AllowWriteOutside: true,
			AllowSymlinks:     true,
			AllowHidden:       true,
		},
		Commands: CommandPolicy{
			Enabled:             true,
			BlockedCommands:     []string{"format", "dd"},
			AllowArbitrary:      true,
			AllowShellExecution: true,
			MaxCommandLength:    16384,
		},
		Network: NetworkPolicy{
			Enabled:        true,
			AllowOutbound:  true,
			MaxConnections: 100,
		},
	}
}

// Disabled performs no enforcement.
func Disabled() SecurityPolicy {
	return SecurityPolicy{
		Level: LevelDisabled,
		Resources: ResourceLimits{
			MaxFileSize:             math.MaxInt64,
			MaxBatchSize:            math.MaxInt32,
			MaxMemory:               math.MaxInt64,
			MaxExecutionTime:        time.Duration(math.MaxInt64),
			MaxConcurrentOperations: math.MaxInt32,
			MaxOutputSize:           math.MaxInt64,
		},
		Sandbox: SandboxPolicy{
			AllowReadOutside:  true,
			AllowWriteOutside: true,
			AllowSymlinks:     true,
			AllowHidden:       true,
		},
		Commands: CommandPolicy{
			AllowArbitrary:      true,
			AllowShellExecution: true,
			MaxCommandLength:    math.MaxInt32,
		},
		Network: NetworkPolicy{
			AllowOutbound:  true,
			MaxConnections: math.MaxInt32,
		},
	}
}

// WithResourceLimits replaces the resource limits.
func (p SecurityPolicy) WithResourceLimits(limits ResourceLimits) SecurityPolicy {
	out := p.clone()
	out.Resources = limits
	return out
}

// WithSandboxPolicy replaces the sandbox sub-policy.
func (p SecurityPolicy) WithSandboxPolicy(sandbox SandboxPolicy) SecurityPolicy {
	out := p.clone()
	out.Sandbox = sandbox
	out.Sandbox.AllowedExtensions = normalizeExtensions(sandbox.AllowedExtensions)
	out.Sandbox.BlockedPaths = slices.Clone(sandbox.BlockedPaths)
	return out
}

// WithCommandPolicy replaces the command sub-policy.
func (p SecurityPolicy) WithCommandPolicy(commands CommandPolicy) SecurityPolicy {
	out := p.clone()
	out.Commands = commands
	out.Commands.AllowedCommands = slices.Clone(commands.AllowedCommands)
	out.Commands.BlockedCommands = slices.Clone(commands.BlockedCommands)
	return out
}

// WithNetworkPolicy replaces the network sub-policy.
func (p SecurityPolicy) WithNetworkPolicy(network NetworkPolicy) SecurityPolicy {
	out := p.clone()
	out.Network = network
	out.Network.AllowedHosts = slices.Clone(network.AllowedHosts)
	out.Network.BlockedHosts = slices.Clone(network.BlockedHosts)
	out.Network.AllowedPorts = slices.Clone(network.AllowedPorts)
	return out
}

// WithOverrideEnabled permits a sandbox built from this policy to be placed
// in override mode. It does not activate the override by itself.
func (p SecurityPolicy) WithOverrideEnabled() SecurityPolicy {
	out := p.clone()
	out.AllowOverride = true
	return out
}

func (p SecurityPolicy) clone() SecurityPolicy {
	out := p
	out.Sandbox.AllowedExtensions = slices.Clone(p.Sandbox.AllowedExtensions)
	out.Sandbox.BlockedPaths = slices.Clone(p.Sandbox.BlockedPaths)
	out.Commands.AllowedCommands = slices.Clone(p.Commands.AllowedCommands)
	out.Commands.BlockedCommands = slices.Clone(p.Commands.BlockedCommands)
	out.Network.AllowedHosts = slices.Clone(p.Network.AllowedHosts)
	out.Network.BlockedHosts = slices.Clone(p.Network.BlockedHosts)
	out.Network.AllowedPorts = slices.Clone(p.Network.AllowedPorts)
	return out
}

func normalizeExtensions(exts []string) []string {
	if exts == nil {
		return nil
	}
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			out = append(out, ext)
		}
	}
	return out
}

// String summarizes the tier for logs and prompts.
func (p SecurityPolicy) String() string {
	return fmt.Sprintf("%s (read_outside=%t write_outside=%t arbitrary_commands=%t shell=%t outbound=%t override_allowed=%t)",
		p.Level,
		!p.Sandbox.Enabled || p.Sandbox.AllowReadOutside,
		!p.Sandbox.Enabled || p.Sandbox.AllowWriteOutside,
		!p.Commands.Enabled || p.Commands.AllowArbitrary,
		!p.Commands.Enabled || p.Commands.AllowShellExecution,
		!p.Network.Enabled || p.Network.AllowOutbound,
		p.AllowOverride,
	)
}
