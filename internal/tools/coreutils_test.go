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
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	apperrors "agenttools/internal/errors"
	"agenttools/internal/policy"
)

func readTestFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

func TestCpFile(t *testing.T) {
	tk, root := newTestToolkit(t, policy.Moderate())
	writeTestFile(t, root, "src.txt", "payload")

	if err := tk.Cp(context.Background(), []string{"src.txt"}, "dst.txt", CpOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := readTestFile(t, filepath.Join(root, "dst.txt")); got != "payload" {
		t.Fatalf("unexpected copy content %q", got)
	}
}

func TestCpIntoDirectory(t *testing.T) {
	tk, root := newTestToolkit(t, policy.Moderate())
	writeTestFile(t, root, "a.txt", "a")
	writeTestFile(t, root, "b.txt", "b")
	if err := os.Mkdir(filepath.Join(root, "out"), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}

	if err := tk.Cp(context.Background(), []string{"a.txt", "b.txt"}, "out", CpOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, name := range []string{"a.txt", "b.txt"} {
		if _, err := os.Stat(filepath.Join(root, "out", name)); err != nil {
			t.Fatalf("expected %s in destination: %v", name, err)
		}
	}
}

func TestCpRecursive(t *testing.T) {
	tk, root := newTestToolkit(t, policy.Moderate())
	writeTestFile(t, root, "tree/a.txt", "a")
	writeTestFile(t, root, "tree/sub/b.txt", "b")

	err := tk.Cp(context.Background(), []string{"tree"}, "copy", CpOptions{})
	expectCode(t, err, apperrors.CodeInvalidInput)

	if err := tk.Cp(context.Background(), []string{"tree"}, "copy", CpOptions{Recursive: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := readTestFile(t, filepath.Join(root, "copy", "sub", "b.txt")); got != "b" {
		t.Fatalf("unexpected nested content %q", got)
	}
}

func TestCpRejectsEscapingDestination(t *testing.T) {
	tk, root := newTestToolkit(t, policy.Moderate())
	writeTestFile(t, root, "src.txt", "payload")

	err := tk.Cp(context.Background(), []string{"src.txt"}, "../stolen.txt", CpOptions{})
	expectCode(t, err, apperrors.CodeSandboxViolation)
	if _, statErr := os.Stat(filepath.Join(filepath.Dir(root), "stolen.txt")); statErr == nil {
		t.Fatal("file was copied outside the sandbox")
	}
}

func TestCpMultipleSourcesNeedDirectory(t *testing.T) {
	tk, root := newTestToolkit(t, policy.Moderate())
	writeTestFile(t, root, "a.txt", "a")
	writeTestFile(t, root, "b.txt", "b")
	err := tk.Cp(context.Background(), []string{"a.txt", "b.txt"}, "c.txt", CpOptions{})
	expectCode(t, err, apperrors.CodeInvalidInput)
}

func TestMv(t *testing.T) {
	tk, root := newTestToolkit(t, policy.Moderate())
	writeTestFile(t, root, "old.txt", "data")

	if err := tk.Mv(context.Background(), []string{"old.txt"}, "new.txt", MvOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "old.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected source to be gone, got %v", err)
	}
	if got := readTestFile(t, filepath.Join(root, "new.txt")); got != "data" {
		t.Fatalf("unexpected moved content %q", got)
	}
}

func TestMvRejectsSourceOutsideRoot(t *testing.T) {
	tk, root := newTestToolkit(t, policy.Moderate())
	outside := filepath.Join(t.TempDir(), "outside.txt")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	err := tk.Mv(context.Background(), []string{outside}, "inside.txt", MvOptions{})
	expectCode(t, err, apperrors.CodeSandboxViolation)
	if _, statErr := os.Stat(outside); statErr != nil {
		t.Fatalf("outside file should be untouched: %v", statErr)
	}
	if _, statErr := os.Stat(filepath.Join(root, "inside.txt")); statErr == nil {
		t.Fatal("destination should not exist")
	}
}

func TestRm(t *testing.T) {
	tk, root := newTestToolkit(t, policy.Moderate())
	writeTestFile(t, root, "a.txt", "a")
	writeTestFile(t, root, "dir/b.txt", "b")

	if err := tk.Rm(context.Background(), []string{"a.txt"}, RmOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "a.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, got %v", err)
	}

	err := tk.Rm(context.Background(), []string{"dir"}, RmOptions{})
	expectCode(t, err, apperrors.CodeInvalidInput)

	if err := tk.Rm(context.Background(), []string{"dir"}, RmOptions{Recursive: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "dir")); !os.IsNotExist(err) {
		t.Fatalf("expected dir removed, got %v", err)
	}
}

func TestRmMissing(t *testing.T) {
	tk, _ := newTestToolkit(t, policy.Moderate())
	err := tk.Rm(context.Background(), []string{"missing.txt"}, RmOptions{})
	expectCode(t, err, apperrors.CodeNotFound)
	if err := tk.Rm(context.Background(), []string{"missing.txt"}, RmOptions{Force: true}); err != nil {
		t.Fatalf("force should ignore missing files, got %v", err)
	}
}

func TestRmRefusesRoot(t *testing.T) {
	tk, root := newTestToolkit(t, policy.Permissive())
	err := tk.Rm(context.Background(), []string{"."}, RmOptions{Recursive: true})
	expectCode(t, err, apperrors.CodeSandboxViolation)
	if _, statErr := os.Stat(root); statErr != nil {
		t.Fatalf("root must survive: %v", statErr)
	}
}

func TestRmSymlinkRemovesLinkOnly(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	tk, root := newTestToolkit(t, policy.Moderate())
	target := writeTestFile(t, root, "target.txt", "keep")
	if err := os.Symlink(target, filepath.Join(root, "link.txt")); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}
	if err := tk.Rm(context.Background(), []string{"link.txt"}, RmOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := readTestFile(t, target); got != "keep" {
		t.Fatalf("target should be untouched, got %q", got)
	}
	if _, err := os.Lstat(filepath.Join(root, "link.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected link removed, got %v", err)
	}
}

func TestMkdir(t *testing.T) {
	tk, root := newTestToolkit(t, policy.Moderate())
	if err := tk.Mkdir(context.Background(), []string{"a/b/c"}, MkdirOptions{Parents: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	info, err := os.Stat(filepath.Join(root, "a", "b", "c"))
	if err != nil || !info.IsDir() {
		t.Fatalf("expected directory, got %v", err)
	}

	err = tk.Mkdir(context.Background(), []string{"x"}, MkdirOptions{Mode: "999"})
	expectCode(t, err, apperrors.CodeInvalidInput)

	err = tk.Mkdir(context.Background(), []string{"../escape"}, MkdirOptions{})
	expectCode(t, err, apperrors.CodeSandboxViolation)
}

func TestTouch(t *testing.T) {
	tk, root := newTestToolkit(t, policy.Moderate())
	if err := tk.Touch(context.Background(), []string{"new.txt"}, TouchOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "new.txt")); err != nil {
		t.Fatalf("expected file created: %v", err)
	}

	if err := tk.Touch(context.Background(), []string{"absent.txt"}, TouchOptions{NoCreate: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "absent.txt")); !os.IsNotExist(err) {
		t.Fatalf("no_create should not create files, got %v", err)
	}
}

func TestBase64RoundTrip(t *testing.T) {
	tk, root := newTestToolkit(t, policy.Moderate())
	writeTestFile(t, root, "plain.txt", "hello")

	encoded, err := tk.Base64(context.Background(), "plain.txt", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if encoded != "aGVsbG8=" {
		t.Fatalf("unexpected encoding %q", encoded)
	}

	writeTestFile(t, root, "encoded.txt", encoded+"\n")
	decoded, err := tk.Base64(context.Background(), "encoded.txt", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded != "hello" {
		t.Fatalf("unexpected decoding %q", decoded)
	}
}

func TestHashsum(t *testing.T) {
	tk, root := newTestToolkit(t, policy.Moderate())
	writeTestFile(t, root, "hello.txt", "hello\n")

	tests := []struct {
		algorithm string
		digest    string
	}{
		{algorithm: "", digest: "5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03"},
		{algorithm: HashSHA1, digest: "f572d396fae9206628714fb2ce00f72e94f2258f"},
	}
	for _, tt := range tests {
		out, err := tk.Hashsum(context.Background(), []string{"hello.txt"}, tt.algorithm)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.algorithm, err)
		}
		if out != tt.digest+"  hello.txt\n" {
			t.Fatalf("%s: unexpected output %q", tt.algorithm, out)
		}
	}

	out, err := tk.Hashsum(context.Background(), []string{"hello.txt"}, HashBLAKE3)
	if err != nil {
		t.Fatalf("blake3: unexpected error: %v", err)
	}
	digest, _, _ := strings.Cut(out, " ")
	if len(digest) != 64 {
		t.Fatalf("blake3: expected 64 hex chars, got %q", out)
	}

	_, err = tk.Hashsum(context.Background(), []string{"hello.txt"}, "md5")
	expectCode(t, err, apperrors.CodeInvalidInput)
}
