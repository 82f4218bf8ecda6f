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
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	apperrors "agenttools/internal/errors"
	"agenttools/internal/policy"
)

func newTestSandbox(t *testing.T, p policy.SecurityPolicy) (*Sandbox, string) {
	t.Helper()
	root := t.TempDir()
	sb, err := New(NewConfigWithPolicy(root, p))
	if err != nil {
		t.Fatalf("failed to create sandbox: %v", err)
	}
	return sb, sb.Root()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create parent dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func expectViolation(t *testing.T, err error) {
	t.Helper()
	if !apperrors.Is(err, apperrors.CodeSandboxViolation) {
		t.Fatalf("expected SandboxViolation, got %v", err)
	}
}

func TestNewRejectsMissingRoot(t *testing.T) {
	_, err := New(NewConfig(filepath.Join(t.TempDir(), "missing")))
	if !apperrors.Is(err, apperrors.CodeNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestNewRejectsFileRoot(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	writeFile(t, file, "x")
	_, err := New(NewConfig(file))
	if !apperrors.Is(err, apperrors.CodeInvalidInput) {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}

func TestValidateReadRelativeResolvesAgainstRoot(t *testing.T) {
	sb, root := newTestSandbox(t, policy.Moderate())
	writeFile(t, filepath.Join(root, "docs", "a.txt"), "hello")

	got, err := sb.ValidateRead("docs/a.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := filepath.Join(root, "docs", "a.txt"); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestValidateReadOutsideRoot(t *testing.T) {
	outside := filepath.Join(t.TempDir(), "outside.txt")
	writeFile(t, outside, "data")

	moderate, _ := newTestSandbox(t, policy.Moderate())
	if _, err := moderate.ValidateRead(outside); err != nil {
		t.Fatalf("moderate should allow reads outside the root: %v", err)
	}

	strict, _ := newTestSandbox(t, policy.Strict())
	_, err := strict.ValidateRead(outside)
	expectViolation(t, err)
	if !strings.Contains(err.Error(), "escapes sandbox root") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestValidateWriteOutsideRootAlwaysFailsWithoutWriteOutside(t *testing.T) {
	sb, root := newTestSandbox(t, policy.Moderate())
	_, err := sb.ValidateWrite(filepath.Join(root, "..", "escape.txt"))
	expectViolation(t, err)

	_, err = sb.ValidateWrite("../escape.txt")
	expectViolation(t, err)
}

func TestValidateWriteOutsideRootPermissive(t *testing.T) {
	sb, _ := newTestSandbox(t, policy.Permissive())
	target := filepath.Join(t.TempDir(), "out.txt")
	if _, err := sb.ValidateWrite(target); err != nil {
		t.Fatalf("permissive should allow writes outside the root: %v", err)
	}
}

func TestLegacyConfigNeverWritesOutside(t *testing.T) {
	root := t.TempDir()
	cfg := NewConfig(root)
	cfg.AllowReadOutside = true
	cfg.AllowWriteOutside = true
	sb, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create sandbox: %v", err)
	}
	outside := filepath.Join(t.TempDir(), "x.txt")
	if _, err := sb.ValidateRead(outside); err != nil {
		t.Fatalf("legacy read outside should be allowed: %v", err)
	}
	_, err = sb.ValidateWrite(outside)
	expectViolation(t, err)
}

func TestValidateWriteRequiresParent(t *testing.T) {
	sb, _ := newTestSandbox(t, policy.Moderate())
	_, err := sb.ValidateWrite("missing/dir/file.txt")
	expectViolation(t, err)
	if !strings.Contains(err.Error(), "parent directory") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestBlockedPaths(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix blocked paths")
	}
	sb, _ := newTestSandbox(t, policy.Moderate())
	_, err := sb.ValidateRead("/etc/passwd")
	expectViolation(t, err)
}

func TestBlockedRelativeEntry(t *testing.T) {
	root := t.TempDir()
	p := policy.Moderate()
	p.Sandbox.BlockedPaths = []string{"secrets"}
	sb, err := New(NewConfigWithPolicy(root, p))
	if err != nil {
		t.Fatalf("failed to create sandbox: %v", err)
	}
	writeFile(t, filepath.Join(sb.Root(), "secrets", "key.txt"), "k")
	_, err = sb.ValidateRead("secrets/key.txt")
	expectViolation(t, err)
}

func TestStrictExtensionRules(t *testing.T) {
	sb, root := newTestSandbox(t, policy.Strict())
	writeFile(t, filepath.Join(root, "notes.md"), "# notes")
	writeFile(t, filepath.Join(root, "binary.exe"), "MZ")

	if _, err := sb.ValidateRead("notes.md"); err != nil {
		t.Fatalf("expected md to be readable: %v", err)
	}
	_, err := sb.ValidateRead("binary.exe")
	expectViolation(t, err)

	_, err = sb.ValidateWrite("script.sh")
	expectViolation(t, err)

	if _, err := sb.ValidateWriteDir("subdir"); err != nil {
		t.Fatalf("directories are not subject to extension rules: %v", err)
	}
	if _, err := sb.ValidateRead("."); err != nil {
		t.Fatalf("root directory should be readable: %v", err)
	}
}

func TestStrictRejectsHiddenFiles(t *testing.T) {
	sb, root := newTestSandbox(t, policy.Strict())
	writeFile(t, filepath.Join(root, ".env.txt"), "SECRET=1")
	_, err := sb.ValidateRead(".env.txt")
	expectViolation(t, err)
}

func TestSymlinkEscape(t *testing.T) {
	outsideDir := t.TempDir()
	writeFile(t, filepath.Join(outsideDir, "secret.txt"), "secret")

	sb, root := newTestSandbox(t, policy.Moderate())
	link := filepath.Join(root, "link")
	if err := os.Symlink(outsideDir, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := sb.ValidateWrite("link/secret.txt")
	expectViolation(t, err)

	got, err := sb.ValidateRead("link/secret.txt")
	if err != nil {
		t.Fatalf("moderate read through symlink should resolve: %v", err)
	}
	if !strings.HasPrefix(got, outsideDir) && !strings.Contains(got, filepath.Base(outsideDir)) {
		t.Fatalf("expected canonical path under %s, got %s", outsideDir, got)
	}
}

func TestStrictRejectsSymlinks(t *testing.T) {
	sb, root := newTestSandbox(t, policy.Strict())
	writeFile(t, filepath.Join(root, "real.txt"), "x")
	if err := os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "alias.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	_, err := sb.ValidateRead("alias.txt")
	expectViolation(t, err)
}

func TestDanglingSymlinkWrite(t *testing.T) {
	sb, root := newTestSandbox(t, policy.Moderate())
	target := filepath.Join(t.TempDir(), "missing.txt")
	if err := os.Symlink(target, filepath.Join(root, "dangling.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	_, err := sb.ValidateWrite("dangling.txt")
	expectViolation(t, err)
}

func TestValidateReadsBatchLimit(t *testing.T) {
	p := policy.Moderate().WithResourceLimits(policy.ResourceLimits{
		Enabled:      true,
		MaxFileSize:  1024,
		MaxBatchSize: 3,
	})
	sb, root := newTestSandbox(t, p)
	var list []string
	for _, name := range []string{"a.txt", "b.txt", "c.txt", "d.txt"} {
		writeFile(t, filepath.Join(root, name), name)
		list = append(list, name)
	}

	got, err := sb.ValidateReads(list[:3])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 resolved paths, got %d", len(got))
	}

	_, err = sb.ValidateReads(list)
	expectViolation(t, err)
}

func TestValidateReadsAllOrNothing(t *testing.T) {
	sb, root := newTestSandbox(t, policy.Strict())
	writeFile(t, filepath.Join(root, "ok.txt"), "ok")
	got, err := sb.ValidateReads([]string{"ok.txt", filepath.Join(t.TempDir(), "x.txt")})
	expectViolation(t, err)
	if got != nil {
		t.Fatalf("expected no partial result, got %v", got)
	}
}

func TestValidateFileSize(t *testing.T) {
	p := policy.Moderate().WithResourceLimits(policy.ResourceLimits{
		Enabled:      true,
		MaxFileSize:  4,
		MaxBatchSize: 10,
	})
	sb, root := newTestSandbox(t, p)
	writeFile(t, filepath.Join(root, "small.txt"), "abc")
	writeFile(t, filepath.Join(root, "large.txt"), "abcdefgh")

	size, err := sb.ValidateFileSize("small.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size != 3 {
		t.Fatalf("expected size 3, got %d", size)
	}
	_, err = sb.ValidateFileSize("large.txt")
	expectViolation(t, err)

	_, err = sb.ValidateFileSize("absent.txt")
	if !apperrors.Is(err, apperrors.CodeNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestOverrideRequiresPolicy(t *testing.T) {
	sb, _ := newTestSandbox(t, policy.Strict())
	_, err := sb.WithOverride(true)
	if !apperrors.Is(err, apperrors.CodePermission) {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
}

func TestOverrideBypassesValidation(t *testing.T) {
	sb, _ := newTestSandbox(t, policy.Strict().WithOverrideEnabled())
	outside := filepath.Join(t.TempDir(), "out.bin")

	_, err := sb.ValidateWrite(outside)
	expectViolation(t, err)

	overridden, err := sb.WithOverride(true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !overridden.Overridden() || sb.Overridden() {
		t.Fatal("override must apply to the copy only")
	}
	if _, err := overridden.ValidateWrite(outside); err != nil {
		t.Fatalf("override should bypass validation: %v", err)
	}
}

func TestDisabledPolicyAllowsEverything(t *testing.T) {
	sb, _ := newTestSandbox(t, policy.Disabled())
	outside := filepath.Join(t.TempDir(), ".hidden.bin")
	if _, err := sb.ValidateRead(outside); err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if _, err := sb.ValidateWrite(outside); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
}

func TestInvalidPathInput(t *testing.T) {
	sb, _ := newTestSandbox(t, policy.Moderate())
	_, err := sb.ValidateRead("")
	if !apperrors.Is(err, apperrors.CodePath) {
		t.Fatalf("expected PathError, got %v", err)
	}
	_, err = sb.ValidateRead("bad\x00path")
	if !apperrors.Is(err, apperrors.CodePath) {
		t.Fatalf("expected PathError, got %v", err)
	}
}

func TestValidateWriteDirAllowsMissingParents(t *testing.T) {
	sb, root := newTestSandbox(t, policy.Strict())
	got, err := sb.ValidateWriteDir("a/b/c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := filepath.Join(root, "a", "b", "c"); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	_, err = sb.ValidateWriteDir("../outside")
	expectViolation(t, err)
}

func TestValidateRemoveSymlinkIsTheLink(t *testing.T) {
	sb, root := newTestSandbox(t, policy.Moderate())
	target := filepath.Join(root, "target.txt")
	writeFile(t, target, "keep")
	link := filepath.Join(root, "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	got, err := sb.ValidateRemove("link.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != link {
		t.Fatalf("expected link path %s, got %s", link, got)
	}
}

func TestValidateRemoveRefusesRoot(t *testing.T) {
	sb, root := newTestSandbox(t, policy.Permissive())
	_, err := sb.ValidateRemove(root)
	expectViolation(t, err)
}

func TestValidateRemoveMissing(t *testing.T) {
	sb, _ := newTestSandbox(t, policy.Moderate())
	_, err := sb.ValidateRemove("missing.txt")
	if !apperrors.Is(err, apperrors.CodeNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
