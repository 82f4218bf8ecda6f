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

// Package sandbox authorizes every filesystem access against a configured
// root and the active security policy.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	apperrors "agenttools/internal/errors"
	"agenttools/internal/paths"
	"agenttools/internal/policy"
)

// Sandbox validates paths against one root. It is immutable once built and
// safe for concurrent use.
type Sandbox struct {
	config     Config
	policy     policy.SecurityPolicy
	root       string
	normalizer *paths.Normalizer
	blocked    []string
	override   bool
	logger     zerolog.Logger
}

// Option customizes a Sandbox at construction.
type Option func(*Sandbox)

// WithLogger sets the audit logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Sandbox) {
		s.logger = logger
	}
}

// WithNormalizer shares an existing normalizer instead of creating one.
func WithNormalizer(n *paths.Normalizer) Option {
	return func(s *Sandbox) {
		if n != nil {
			s.normalizer = n
		}
	}
}

// New builds a sandbox. The root must exist and be a directory.
func New(cfg Config, opts ...Option) (*Sandbox, error) {
	s := &Sandbox{
		config: cfg,
		policy: cfg.EffectivePolicy(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.normalizer == nil {
		s.normalizer = paths.NewNormalizer(paths.HostStyle(), cfg.CacheSize)
	}

	root, err := s.resolveRoot(cfg.Root)
	if err != nil {
		return nil, err
	}
	s.root = root

	for _, entry := range s.policy.Sandbox.BlockedPaths {
		resolved, err := paths.ResolveEntry(entry, root)
		if err != nil {
			s.logger.Debug().Err(err).Str("entry", entry).Msg("Skipping unresolvable blocked path")
			continue
		}
		s.blocked = append(s.blocked, resolved)
	}

	s.logger.Debug().
		Str("root", s.root).
		Str("level", string(s.policy.Level)).
		Msg("Sandbox initialized")
	return s, nil
}

func (s *Sandbox) resolveRoot(root string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", apperrors.New(apperrors.CodeInvalidInput, "sandbox root is required")
	}
	normalized, err := s.normalizer.Normalize(root)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(normalized)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeInvalidInput, "invalid sandbox root", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", apperrors.FromOS("sandbox root", root, err)
	}
	if !info.IsDir() {
		return "", apperrors.Newf(apperrors.CodeInvalidInput, "sandbox root %s is not a directory", root)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", apperrors.FromOS("resolve", root, err)
	}
	return resolved, nil
}

// WithOverride returns a copy of the sandbox with every validation bypassed.
// The policy must have been built with WithOverrideEnabled.
func (s *Sandbox) WithOverride(enabled bool) (*Sandbox, error) {
	if enabled && !s.policy.AllowOverride {
		return nil, apperrors.New(apperrors.CodePermission, "security policy does not permit override")
	}
	out := *s
	out.override = enabled
	if enabled {
		s.logger.Warn().
			Bool("override", true).
			Str("root", s.root).
			Str("level", string(s.policy.Level)).
			Msg("Sandbox override activated")
	}
	return &out, nil
}

// Root returns the canonical sandbox root.
func (s *Sandbox) Root() string {
	return s.root
}

// Policy returns the effective security policy.
func (s *Sandbox) Policy() policy.SecurityPolicy {
	return s.policy
}

// Config returns the configuration the sandbox was built from.
func (s *Sandbox) Config() Config {
	return s.config
}

// Normalizer returns the path normalizer owned by this sandbox.
func (s *Sandbox) Normalizer() *paths.Normalizer {
	return s.normalizer
}

// Overridden reports whether validations are bypassed.
func (s *Sandbox) Overridden() bool {
	return s.override
}

// Logger returns the audit logger.
func (s *Sandbox) Logger() zerolog.Logger {
	return s.logger
}

// resolve normalizes path, anchors relative paths at the root and resolves
// symlinks. It returns the lexical absolute path and the canonical one.
func (s *Sandbox) resolve(path string) (string, string, error) {
	normalized, err := s.normalizer.Normalize(path)
	if err != nil {
		return "", "", err
	}
	abs := normalized
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(s.root, abs)
	}
	abs = filepath.Clean(abs)
	canonical, err := paths.Canonicalize(abs)
	if err != nil {
		return "", "", err
	}
	return abs, canonical, nil
}

func (s *Sandbox) reject(op, path, reason string) error {
	s.logger.Warn().
		Str("op", op).
		Str("path", path).
		Str("reason", reason).
		Str("level", string(s.policy.Level)).
		Msg("Sandbox violation")
	return apperrors.New(apperrors.CodeSandboxViolation, fmt.Sprintf("%s: %q", reason, path))
}

func (s *Sandbox) rejectErr(op, path string, err error) error {
	if apperrors.Is(err, apperrors.CodeSandboxViolation) {
		var coded *apperrors.Error
		if errors.As(err, &coded) {
			return s.reject(op, path, coded.Message)
		}
	}
	return err
}

func (s *Sandbox) overridden(op, path, canonical string) {
	s.logger.Warn().
		Bool("override", true).
		Str("op", op).
		Str("path", path).
		Str("resolved", canonical).
		Msg("Sandbox validation overridden")
}

func (s *Sandbox) inside(canonical string) bool {
	return paths.IsWithin(canonical, s.root)
}

func (s *Sandbox) checkBlocked(op, path, abs, canonical string) error {
	for _, candidate := range []string{abs, canonical} {
		for _, blocked := range s.blocked {
			if paths.IsWithin(candidate, blocked) {
				return s.reject(op, path, "path is in blocked list")
			}
		}
	}
	return nil
}

// checkHidden rejects dot-prefixed components below the root, or a
// dot-prefixed base name for paths outside it.
func (s *Sandbox) checkHidden(op, path, canonical string) error {
	if s.policy.Sandbox.AllowHidden {
		return nil
	}
	components := []string{filepath.Base(canonical)}
	if s.inside(canonical) {
		rel, err := filepath.Rel(s.root, canonical)
		if err == nil && rel != "." {
			components = strings.Split(rel, string(os.PathSeparator))
		}
	}
	for _, component := range components {
		if len(component) > 1 && strings.HasPrefix(component, ".") && component != ".." {
			return s.reject(op, path, "hidden files are not allowed")
		}
	}
	return nil
}

func (s *Sandbox) checkSymlink(op, path, abs string) error {
	if s.policy.Sandbox.AllowSymlinks {
		return nil
	}
	if info, err := os.Lstat(abs); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return s.reject(op, path, "symlinks are not allowed")
	}
	return nil
}

// ValidateRead authorizes path for reading and returns its canonical form.
func (s *Sandbox) ValidateRead(path string) (string, error) {
	abs, canonical, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	if s.override {
		s.overridden("read", path, canonical)
		return canonical, nil
	}
	if !s.policy.Sandbox.Enabled {
		return canonical, nil
	}

	if !s.inside(canonical) && !s.policy.Sandbox.AllowReadOutside {
		return "", s.reject("read", path, "path escapes sandbox root")
	}
	if err := s.checkBlocked("read", path, abs, canonical); err != nil {
		return "", err
	}
	if err := s.checkHidden("read", path, canonical); err != nil {
		return "", err
	}
	if err := s.checkSymlink("read", path, abs); err != nil {
		return "", err
	}
	if info, err := os.Stat(canonical); err == nil && !info.IsDir() {
		if err := s.policy.ValidateExtension(canonical); err != nil {
			return "", s.rejectErr("read", path, err)
		}
	}
	return canonical, nil
}

// ValidateWrite authorizes path as a file write target.
func (s *Sandbox) ValidateWrite(path string) (string, error) {
	return s.validateWrite(path, false)
}

// ValidateWriteDir authorizes path as a directory to create or remove.
// The extension allowlist does not apply and missing parents are allowed so
// that nested directories can be created.
func (s *Sandbox) ValidateWriteDir(path string) (string, error) {
	return s.validateWrite(path, true)
}

func (s *Sandbox) validateWrite(path string, dir bool) (string, error) {
	abs, canonical, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	if s.override {
		s.overridden("write", path, canonical)
		return canonical, nil
	}
	if !s.policy.Sandbox.Enabled {
		return canonical, nil
	}

	if !s.inside(canonical) && !s.policy.Sandbox.AllowWriteOutside {
		return "", s.reject("write", path, "path escapes sandbox root")
	}
	if err := s.checkBlocked("write", path, abs, canonical); err != nil {
		return "", err
	}
	if err := s.checkHidden("write", path, canonical); err != nil {
		return "", err
	}
	if err := s.checkSymlinkTarget(path, abs); err != nil {
		return "", err
	}

	isDir := dir
	if info, err := os.Stat(canonical); err == nil && info.IsDir() {
		isDir = true
	}
	if !isDir {
		if err := s.policy.ValidateExtension(canonical); err != nil {
			return "", s.rejectErr("write", path, err)
		}
	}

	if !dir {
		parent := filepath.Dir(canonical)
		if info, err := os.Stat(parent); err != nil || !info.IsDir() {
			return "", s.reject("write", path, "parent directory does not exist")
		}
	}
	return canonical, nil
}

// ValidateRemove authorizes deleting or moving away the directory entry at
// path. A symlink is authorized as the link itself, never its target. The
// sandbox root cannot be removed.
func (s *Sandbox) ValidateRemove(path string) (string, error) {
	abs, _, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	parent, err := paths.Canonicalize(filepath.Dir(abs))
	if err != nil {
		return "", err
	}
	entry := filepath.Join(parent, filepath.Base(abs))
	info, err := os.Lstat(entry)
	if err != nil {
		return "", apperrors.FromOS("stat", path, err)
	}

	if info.Mode()&os.ModeSymlink == 0 {
		resolved, err := s.validateWrite(path, info.IsDir())
		if err != nil {
			return "", err
		}
		if resolved == s.root && !s.override {
			return "", s.reject("remove", path, "refusing to remove sandbox root")
		}
		return resolved, nil
	}

	if s.override {
		s.overridden("remove", path, entry)
		return entry, nil
	}
	if !s.policy.Sandbox.Enabled {
		return entry, nil
	}
	if !s.inside(entry) && !s.policy.Sandbox.AllowWriteOutside {
		return "", s.reject("remove", path, "path escapes sandbox root")
	}
	if err := s.checkBlocked("remove", path, abs, entry); err != nil {
		return "", err
	}
	if err := s.checkHidden("remove", path, entry); err != nil {
		return "", err
	}
	return entry, nil
}

// checkSymlinkTarget rejects a write target that is itself a symlink when
// symlinks are disallowed, or whose target (dangling or not) leaves the root.
func (s *Sandbox) checkSymlinkTarget(path, abs string) error {
	info, err := os.Lstat(abs)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return nil
	}
	if !s.policy.Sandbox.AllowSymlinks {
		return s.reject("write", path, "symlinks are not allowed")
	}
	target, err := os.Readlink(abs)
	if err != nil {
		return s.reject("write", path, "unreadable symlink")
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(abs), target)
	}
	resolved, err := paths.Canonicalize(target)
	if err != nil {
		return s.reject("write", path, "unresolvable symlink")
	}
	if !paths.IsWithin(resolved, s.root) && !s.policy.Sandbox.AllowWriteOutside {
		return s.reject("write", path, "symlink escapes sandbox root")
	}
	return nil
}

// ValidateReads authorizes a batch. The whole batch fails when it exceeds the
// batch limit or when any single path fails.
func (s *Sandbox) ValidateReads(list []string) ([]string, error) {
	if !s.override {
		if err := s.policy.ValidateBatchSize(len(list)); err != nil {
			return nil, s.rejectErr("read", fmt.Sprintf("%d paths", len(list)), err)
		}
	}
	out := make([]string, 0, len(list))
	for _, path := range list {
		resolved, err := s.ValidateRead(path)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}

// ValidateFileSize authorizes path for reading and checks its size from
// metadata before any content is loaded.
func (s *Sandbox) ValidateFileSize(path string) (int64, error) {
	_, size, err := s.ValidateReadFile(path)
	return size, err
}

// ValidateReadFile authorizes path as a regular file to read and returns its
// canonical form together with its size.
func (s *Sandbox) ValidateReadFile(path string) (string, int64, error) {
	resolved, err := s.ValidateRead(path)
	if err != nil {
		return "", 0, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", 0, apperrors.FromOS("stat", path, err)
	}
	if info.IsDir() {
		return "", 0, apperrors.Newf(apperrors.CodeInvalidInput, "%q is a directory", path)
	}
	if !s.override {
		if err := s.policy.ValidateFileSize(info.Size()); err != nil {
			return "", 0, s.rejectErr("read", path, err)
		}
	}
	return resolved, info.Size(), nil
}
