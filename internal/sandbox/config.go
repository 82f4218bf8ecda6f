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

package sandbox

import (
	"agenttools/internal/policy"
)

const (
	// DefaultMaxReadSize applies in legacy mode when no policy is set.
	DefaultMaxReadSize int64 = 100 * 1024 * 1024
	// DefaultMaxBatchSize applies in legacy mode when no policy is set.
	DefaultMaxBatchSize = 1000
)

// Config describes one sandbox root. When Policy is set it takes precedence
// over the legacy scalar fields.
type Config struct {
	Root string

	// Deprecated: use Policy.Sandbox.AllowReadOutside.
	AllowReadOutside bool
	// Deprecated: use Policy.Sandbox.AllowWriteOutside. Without a policy,
	// writes outside the root are never allowed and this field is ignored.
	AllowWriteOutside bool
	// Deprecated: use Policy.Resources.MaxFileSize.
	MaxReadSize int64
	// Deprecated: use Policy.Resources.MaxBatchSize.
	MaxBatchSize int

	Policy *policy.SecurityPolicy

	// CacheSize bounds the path normalization cache.
	CacheSize int
}

// NewConfig returns a legacy-mode config rooted at root.
func NewConfig(root string) Config {
	return Config{
		Root:         root,
		MaxReadSize:  DefaultMaxReadSize,
		MaxBatchSize: DefaultMaxBatchSize,
	}
}

// NewConfigWithPolicy returns a config rooted at root governed by p.
func NewConfigWithPolicy(root string, p policy.SecurityPolicy) Config {
	cfg := NewConfig(root)
	cfg.Policy = &p
	return cfg
}

// EffectivePolicy returns the policy the sandbox enforces. Legacy configs are
// mapped onto the Moderate tier with their scalar fields applied.
func (c Config) EffectivePolicy() policy.SecurityPolicy {
	if c.Policy != nil {
		return *c.Policy
	}

	p := policy.Moderate()
	limits := p.Resources
	if c.MaxReadSize > 0 {
		limits.MaxFileSize = c.MaxReadSize
	} else {
		limits.MaxFileSize = DefaultMaxReadSize
	}
	if c.MaxBatchSize > 0 {
		limits.MaxBatchSize = c.MaxBatchSize
	} else {
		limits.MaxBatchSize = DefaultMaxBatchSize
	}

	return p.
		WithResourceLimits(limits).
		WithSandboxPolicy(policy.SandboxPolicy{
			Enabled:          true,
			AllowReadOutside: c.AllowReadOutside,
			AllowSymlinks:    true,
			AllowHidden:      true,
		})
}

// EffectiveMaxFileSize returns the read size limit in force.
func (c Config) EffectiveMaxFileSize() int64 {
	return c.EffectivePolicy().Resources.MaxFileSize
}

// EffectiveMaxBatchSize returns the batch limit in force.
func (c Config) EffectiveMaxBatchSize() int {
	return c.EffectivePolicy().Resources.MaxBatchSize
}

// EffectiveAllowReadOutside reports whether reads may leave the root.
func (c Config) EffectiveAllowReadOutside() bool {
	p := c.EffectivePolicy()
	return !p.Sandbox.Enabled || p.Sandbox.AllowReadOutside
}

// EffectiveAllowWriteOutside reports whether writes may leave the root.
func (c Config) EffectiveAllowWriteOutside() bool {
	if c.Policy == nil {
		return false
	}
	return !c.Policy.Sandbox.Enabled || c.Policy.Sandbox.AllowWriteOutside
}
