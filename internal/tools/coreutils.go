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

package tools

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/u-root/u-root/pkg/core"
	corebase64 "github.com/u-root/u-root/pkg/core/base64"
	corecp "github.com/u-root/u-root/pkg/core/cp"
	coremkdir "github.com/u-root/u-root/pkg/core/mkdir"
	coremv "github.com/u-root/u-root/pkg/core/mv"
	corerm "github.com/u-root/u-root/pkg/core/rm"
	coreshasum "github.com/u-root/u-root/pkg/core/shasum"
	coretouch "github.com/u-root/u-root/pkg/core/touch"
	"github.com/zeebo/blake3"

	apperrors "agenttools/internal/errors"
)

// runCoreCommand runs an in-process u-root command on already validated
// absolute paths.
func (t *Toolkit) runCoreCommand(ctx context.Context, name string, cmd core.Command, args []string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd.SetIO(strings.NewReader(""), &stdout, &stderr)
	cmd.SetWorkingDir(t.sandbox.Root())

	t.logger.Debug().Str("command", name).Strs("args", args).Msg("Running core command")
	if err := cmd.RunContext(ctx, args...); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", apperrors.Wrap(apperrors.CodeIO, fmt.Sprintf("%s: %s", name, msg), err)
		}
		return "", apperrors.FromOS(name, strings.Join(args, " "), err)
	}
	return stdout.String(), nil
}

// CpOptions tune Cp.
type CpOptions struct {
	Recursive bool
	Force     bool
	// NoFollowSymlinks copies links themselves instead of their targets.
	NoFollowSymlinks bool
}

// Cp copies sources to dest. With several sources dest must be a directory.
func (t *Toolkit) Cp(ctx context.Context, sources []string, dest string, opts CpOptions) error {
	resolvedSources, err := t.validateSources(ctx, sources, opts.Recursive)
	if err != nil {
		return err
	}
	resolvedDest, err := t.validateDestination(sources, resolvedSources, dest)
	if err != nil {
		return err
	}

	var args []string
	if opts.Recursive {
		args = append(args, "-r")
	}
	if opts.Force {
		args = append(args, "-f")
	}
	if opts.NoFollowSymlinks {
		args = append(args, "-P")
	}
	args = append(args, resolvedSources...)
	args = append(args, resolvedDest)
	_, err = t.runCoreCommand(ctx, "cp", corecp.New(), args)
	return err
}

// MvOptions tune Mv.
type MvOptions struct {
	NoClobber bool
	Update    bool
}

// Mv moves sources to dest. Sources are authorized as removals since they
// leave their current location.
func (t *Toolkit) Mv(ctx context.Context, sources []string, dest string, opts MvOptions) error {
	if _, err := t.validateSources(ctx, sources, true); err != nil {
		return err
	}
	resolvedSources := make([]string, 0, len(sources))
	for _, source := range sources {
		entry, err := t.sandbox.ValidateRemove(source)
		if err != nil {
			return err
		}
		resolvedSources = append(resolvedSources, entry)
	}
	resolvedDest, err := t.validateDestination(sources, resolvedSources, dest)
	if err != nil {
		return err
	}

	var args []string
	if opts.Update {
		args = append(args, "-u")
	}
	if opts.NoClobber {
		args = append(args, "-n")
	}
	args = append(args, resolvedSources...)
	args = append(args, resolvedDest)
	_, err = t.runCoreCommand(ctx, "mv", coremv.New(), args)
	return err
}

// validateSources authorizes every source for reading. Directory sources
// need recursive and every entry below them is checked too.
func (t *Toolkit) validateSources(ctx context.Context, sources []string, recursive bool) ([]string, error) {
	if err := requirePaths(sources); err != nil {
		return nil, err
	}
	if !t.sandbox.Overridden() {
		if err := t.Policy().ValidateBatchSize(len(sources)); err != nil {
			return nil, err
		}
	}
	resolved := make([]string, 0, len(sources))
	for _, source := range sources {
		path, err := t.sandbox.ValidateRead(source)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, apperrors.FromOS("stat", source, err)
		}
		if info.IsDir() {
			if !recursive {
				return nil, errInvalidInput("%q is a directory (set recursive to true)", source)
			}
			if err := t.validateTree(ctx, path); err != nil {
				return nil, err
			}
		} else if _, _, err := t.sandbox.ValidateReadFile(source); err != nil {
			return nil, err
		}
		resolved = append(resolved, path)
	}
	return resolved, nil
}

// validateTree checks every entry below dir for reading.
func (t *Toolkit) validateTree(ctx context.Context, dir string) error {
	count := 0
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return apperrors.FromOS("walk", p, err)
		}
		if err := ensureContext(ctx); err != nil {
			return err
		}
		count++
		if count > t.limits.MaxDirectoryEntries {
			return apperrors.Newf(apperrors.CodeSandboxViolation, "directory tree exceeds %d entries", t.limits.MaxDirectoryEntries)
		}
		if d.IsDir() {
			_, err = t.sandbox.ValidateRead(p)
		} else {
			_, _, err = t.sandbox.ValidateReadFile(p)
		}
		return err
	})
}

// validateDestination authorizes dest. When dest is an existing directory
// the final location of each source inside it is checked as well.
func (t *Toolkit) validateDestination(sources, resolvedSources []string, dest string) (string, error) {
	if strings.TrimSpace(dest) == "" {
		return "", errInvalidInput("destination is required")
	}
	anyDir := false
	for _, src := range resolvedSources {
		if info, err := os.Stat(src); err == nil && info.IsDir() {
			anyDir = true
		}
	}

	resolvedDest, err := t.sandbox.ValidateWriteDir(dest)
	if err != nil {
		return "", err
	}
	info, statErr := os.Stat(resolvedDest)
	destIsDir := statErr == nil && info.IsDir()
	if len(sources) > 1 && !destIsDir {
		return "", errInvalidInput("destination %q must be an existing directory for multiple sources", dest)
	}

	if !destIsDir {
		if anyDir {
			return resolvedDest, nil
		}
		return t.sandbox.ValidateWrite(dest)
	}
	for i, src := range resolvedSources {
		target := filepath.Join(dest, filepath.Base(src))
		if info, err := os.Stat(src); err == nil && info.IsDir() {
			_, err = t.sandbox.ValidateWriteDir(target)
			if err != nil {
				return "", err
			}
			continue
		}
		if _, err := t.sandbox.ValidateWrite(target); err != nil {
			return "", fmt.Errorf("copying %s: %w", sources[i], err)
		}
	}
	return resolvedDest, nil
}

// RmOptions tune Rm.
type RmOptions struct {
	Recursive bool
	Force     bool
}

// Rm removes paths. Symlinks are removed as links. The sandbox root itself
// can never be removed.
func (t *Toolkit) Rm(ctx context.Context, paths []string, opts RmOptions) error {
	if err := requirePaths(paths); err != nil {
		return err
	}
	var targets []string
	for _, path := range paths {
		if err := ensureContext(ctx); err != nil {
			return err
		}
		entry, err := t.sandbox.ValidateRemove(path)
		if err != nil {
			if opts.Force && apperrors.Is(err, apperrors.CodeNotFound) {
				continue
			}
			return err
		}
		info, err := os.Lstat(entry)
		if err != nil {
			return apperrors.FromOS("rm", path, err)
		}
		if info.IsDir() && !opts.Recursive {
			return errInvalidInput("%q is a directory (set recursive to true)", path)
		}
		targets = append(targets, entry)
	}
	if len(targets) == 0 {
		return nil
	}

	var args []string
	if opts.Recursive {
		args = append(args, "-r")
	}
	if opts.Force {
		args = append(args, "-f")
	}
	args = append(args, targets...)
	_, err := t.runCoreCommand(ctx, "rm", corerm.New(), args)
	return err
}

// MkdirOptions tune Mkdir.
type MkdirOptions struct {
	Parents bool
	// Mode is an octal permission string such as "755".
	Mode string
}

// Mkdir creates directories.
func (t *Toolkit) Mkdir(ctx context.Context, paths []string, opts MkdirOptions) error {
	if err := requirePaths(paths); err != nil {
		return err
	}
	targets := make([]string, 0, len(paths))
	for _, path := range paths {
		resolved, err := t.sandbox.ValidateWriteDir(path)
		if err != nil {
			return err
		}
		targets = append(targets, resolved)
	}

	var args []string
	if opts.Parents {
		args = append(args, "-p")
	}
	if opts.Mode != "" {
		if err := validateMode(opts.Mode); err != nil {
			return err
		}
		args = append(args, "-m", opts.Mode)
	}
	args = append(args, targets...)
	_, err := t.runCoreCommand(ctx, "mkdir", coremkdir.New(), args)
	return err
}

func validateMode(mode string) error {
	if len(mode) < 3 || len(mode) > 4 {
		return errInvalidInput("invalid mode %q (expected octal such as 755)", mode)
	}
	for _, c := range mode {
		if c < '0' || c > '7' {
			return errInvalidInput("invalid mode %q (expected octal such as 755)", mode)
		}
	}
	return nil
}

// TouchOptions tune Touch.
type TouchOptions struct {
	NoCreate     bool
	Access       bool
	Modification bool
	// Datetime is an RFC3339 timestamp applied instead of the current time.
	Datetime string
}

// Touch creates files or updates their timestamps.
func (t *Toolkit) Touch(ctx context.Context, paths []string, opts TouchOptions) error {
	if err := requirePaths(paths); err != nil {
		return err
	}
	targets := make([]string, 0, len(paths))
	for _, path := range paths {
		resolved, err := t.sandbox.ValidateWrite(path)
		if err != nil {
			return err
		}
		targets = append(targets, resolved)
	}

	var args []string
	if opts.NoCreate {
		args = append(args, "-c")
	}
	if opts.Access {
		args = append(args, "-a")
	}
	if opts.Modification {
		args = append(args, "-m")
	}
	if opts.Datetime != "" {
		args = append(args, "-d", opts.Datetime)
	}
	args = append(args, targets...)
	_, err := t.runCoreCommand(ctx, "touch", coretouch.New(), args)
	return err
}

// Base64 encodes a file, or decodes it when decode is set. Decoded output
// must be text.
func (t *Toolkit) Base64(ctx context.Context, path string, decode bool) (string, error) {
	resolved, _, err := t.sandbox.ValidateReadFile(path)
	if err != nil {
		return "", err
	}
	var args []string
	if decode {
		args = append(args, "-d")
	}
	args = append(args, resolved)
	out, err := t.runCoreCommand(ctx, "base64", corebase64.New(), args)
	if err != nil {
		return "", err
	}
	if decode {
		return decodeText("decoded "+path, []byte(out))
	}
	return strings.TrimRight(out, "\n"), nil
}

// Hash algorithms accepted by Hashsum.
const (
	HashSHA1   = "sha1"
	HashSHA256 = "sha256"
	HashSHA512 = "sha512"
	HashBLAKE3 = "blake3"
)

var shasumBits = map[string]string{
	HashSHA1:   "1",
	HashSHA256: "256",
	HashSHA512: "512",
}

// Hashsum prints "<digest>  <path>" for each file.
func (t *Toolkit) Hashsum(ctx context.Context, paths []string, algorithm string) (string, error) {
	if err := requirePaths(paths); err != nil {
		return "", err
	}
	algorithm = strings.ToLower(strings.TrimSpace(algorithm))
	if algorithm == "" {
		algorithm = HashSHA256
	}
	bits, sha := shasumBits[algorithm]
	if !sha && algorithm != HashBLAKE3 {
		return "", errInvalidInput("unsupported hash algorithm %q (expected sha1, sha256, sha512 or blake3)", algorithm)
	}

	var out strings.Builder
	for _, path := range paths {
		if err := ensureContext(ctx); err != nil {
			return "", err
		}
		resolved, _, err := t.sandbox.ValidateReadFile(path)
		if err != nil {
			return "", err
		}
		var digest string
		if sha {
			line, err := t.runCoreCommand(ctx, "shasum", coreshasum.New(), []string{"-a", bits, resolved})
			if err != nil {
				return "", err
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				return "", apperrors.Newf(apperrors.CodeIO, "shasum produced no output for %q", path)
			}
			digest = fields[0]
		} else {
			digest, err = blake3File(resolved)
			if err != nil {
				return "", apperrors.FromOS("hash", path, err)
			}
		}
		fmt.Fprintf(&out, "%s  %s\n", digest, path)
	}
	return out.String(), nil
}

func blake3File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
