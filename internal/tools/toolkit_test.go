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
	"strings"
	"testing"

	apperrors "agenttools/internal/errors"
	"agenttools/internal/policy"
	"agenttools/internal/sandbox"
)

func newTestToolkit(t *testing.T, p policy.SecurityPolicy, opts ...ToolkitOption) (*Toolkit, string) {
	t.Helper()
	root := t.TempDir()
	tk, err := NewToolkit(sandbox.NewConfigWithPolicy(root, p), opts...)
	if err != nil {
		t.Fatalf("failed to create toolkit: %v", err)
	}
	return tk, tk.Root()
}

func writeTestFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create parent dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", rel, err)
	}
	return path
}

func expectCode(t *testing.T, err error, code apperrors.Code) {
	t.Helper()
	if !apperrors.Is(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func TestNewToolkitWithRootUsesModerate(t *testing.T) {
	tk, err := NewToolkitWithRoot(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tk.Policy().Level != policy.LevelModerate {
		t.Fatalf("expected moderate policy, got %s", tk.Policy().Level)
	}
}

func TestNewToolkitOverrideRequiresPolicy(t *testing.T) {
	root := t.TempDir()
	_, err := NewToolkit(sandbox.NewConfigWithPolicy(root, policy.Strict()), WithOverride(true))
	expectCode(t, err, apperrors.CodePermission)

	tk, err := NewToolkit(sandbox.NewConfigWithPolicy(root, policy.Strict().WithOverrideEnabled()), WithOverride(true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tk.Sandbox().Overridden() {
		t.Fatal("expected overridden sandbox")
	}
}

func TestCat(t *testing.T) {
	tk, root := newTestToolkit(t, policy.Moderate())
	writeTestFile(t, root, "a.txt", "one\ntwo\n")
	writeTestFile(t, root, "b.txt", "\n\n\nthree")

	tests := []struct {
		name     string
		opts     CatOptions
		expected string
	}{
		{name: "plain", expected: "one\ntwo\n\n\n\nthree\n"},
		{name: "number lines", opts: CatOptions{NumberLines: true}, expected: "     1\tone\n     2\ttwo\n     3\t\n     4\t\n     5\t\n     6\tthree\n"},
		{name: "show ends", opts: CatOptions{ShowEnds: true}, expected: "one$\ntwo$\n$\n$\n$\nthree$\n"},
		{name: "squeeze blank", opts: CatOptions{SqueezeBlank: true}, expected: "one\ntwo\n\nthree\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tk.Cat(context.Background(), []string{"a.txt", "b.txt"}, tt.opts)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out != tt.expected {
				t.Fatalf("expected %q, got %q", tt.expected, out)
			}
		})
	}
}

func TestCatRejectsEscape(t *testing.T) {
	tk, _ := newTestToolkit(t, policy.Strict())
	_, err := tk.Cat(context.Background(), []string{"../outside.txt"}, CatOptions{})
	expectCode(t, err, apperrors.CodeSandboxViolation)
}

func TestCatRequiresPaths(t *testing.T) {
	tk, _ := newTestToolkit(t, policy.Moderate())
	_, err := tk.Cat(context.Background(), nil, CatOptions{})
	expectCode(t, err, apperrors.CodeInvalidInput)
}

func TestCatCanceledContext(t *testing.T) {
	tk, root := newTestToolkit(t, policy.Moderate())
	writeTestFile(t, root, "a.txt", "one\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tk.Cat(ctx, []string{"a.txt"}, CatOptions{}); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestReadTextEncodings(t *testing.T) {
	tk, root := newTestToolkit(t, policy.Moderate())
	tests := []struct {
		name     string
		data     []byte
		expected string
	}{
		{name: "utf8 bom", data: []byte("\xEF\xBB\xBFhello\n"), expected: "hello\n"},
		{name: "utf16le bom", data: []byte{0xFF, 0xFE, 'h', 0, 'i', 0, '\n', 0}, expected: "hi\n"},
		{name: "utf16be bom", data: []byte{0xFE, 0xFF, 0, 'h', 0, 'i', 0, '\n'}, expected: "hi\n"},
		{name: "crlf", data: []byte("a\r\nb\r\n"), expected: "a\nb\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(root, "enc.txt")
			if err := os.WriteFile(path, tt.data, 0o644); err != nil {
				t.Fatalf("failed to write file: %v", err)
			}
			out, err := tk.Cat(context.Background(), []string{"enc.txt"}, CatOptions{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out != tt.expected {
				t.Fatalf("expected %q, got %q", tt.expected, out)
			}
		})
	}
}

func TestReadTextRejectsBinary(t *testing.T) {
	tk, root := newTestToolkit(t, policy.Moderate())
	if err := os.WriteFile(filepath.Join(root, "data.bin"), []byte{0x7f, 'E', 'L', 'F', 0, 0, 1}, 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	_, err := tk.Cat(context.Background(), []string{"data.bin"}, CatOptions{})
	expectCode(t, err, apperrors.CodeEncoding)
	if !strings.Contains(err.Error(), "detected") {
		t.Fatalf("expected detected mime type in message, got %v", err)
	}
}

func TestDetectBom(t *testing.T) {
	tests := []struct {
		data []byte
		want Bom
		size int
	}{
		{data: []byte{0xEF, 0xBB, 0xBF, 'a'}, want: BomUTF8, size: 3},
		{data: []byte{0xFF, 0xFE, 'a', 0}, want: BomUTF16LE, size: 2},
		{data: []byte{0xFE, 0xFF, 0, 'a'}, want: BomUTF16BE, size: 2},
		{data: []byte("abc"), want: BomNone, size: 0},
		{data: nil, want: BomNone, size: 0},
	}
	for _, tt := range tests {
		got := DetectBom(tt.data)
		if got != tt.want {
			t.Fatalf("DetectBom(%v) = %s, want %s", tt.data, got, tt.want)
		}
		if got.Size() != tt.size {
			t.Fatalf("%s size = %d, want %d", got, got.Size(), tt.size)
		}
	}
}

func TestLs(t *testing.T) {
	tk, root := newTestToolkit(t, policy.Moderate())
	writeTestFile(t, root, "b.txt", "bb")
	writeTestFile(t, root, "a.txt", "a")
	writeTestFile(t, root, ".hidden", "h")
	writeTestFile(t, root, "dir/nested.txt", "n")

	result, err := tk.Ls(context.Background(), ".", LsOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result.Format(LsOptions{}); got != "a.txt\nb.txt\ndir/\n" {
		t.Fatalf("unexpected listing %q", got)
	}

	result, err = tk.Ls(context.Background(), "", LsOptions{All: true, Recursive: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	names := make([]string, 0, len(result.Entries))
	for _, entry := range result.Entries {
		names = append(names, entry.Name)
	}
	if strings.Join(names, ",") != ".hidden,a.txt,b.txt,dir,dir/nested.txt" {
		t.Fatalf("unexpected recursive listing %v", names)
	}
	if result.Total != 5 {
		t.Fatalf("expected 5 entries, got %d", result.Total)
	}

	result, err = tk.Ls(context.Background(), ".", LsOptions{Reverse: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Entries[0].Name != "dir" {
		t.Fatalf("expected reversed order, got %v", result.Entries)
	}
}

func TestLsLongFormat(t *testing.T) {
	tk, root := newTestToolkit(t, policy.Moderate())
	writeTestFile(t, root, "big.txt", strings.Repeat("x", 2048))

	opts := LsOptions{Long: true, HumanReadable: true}
	result, err := tk.Ls(context.Background(), ".", opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := result.Format(opts)
	if !strings.Contains(out, "2.0 KiB") || !strings.Contains(out, "big.txt") {
		t.Fatalf("unexpected long listing %q", out)
	}
	if !strings.Contains(out, "total 1 entries") {
		t.Fatalf("expected total row, got %q", out)
	}
}

func TestLsFileListsItself(t *testing.T) {
	tk, root := newTestToolkit(t, policy.Moderate())
	writeTestFile(t, root, "a.txt", "abc")
	result, err := tk.Ls(context.Background(), "a.txt", LsOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entries) != 1 || result.Entries[0].Size != 3 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestLsMissing(t *testing.T) {
	tk, _ := newTestToolkit(t, policy.Moderate())
	_, err := tk.Ls(context.Background(), "missing", LsOptions{})
	expectCode(t, err, apperrors.CodeNotFound)
}

func TestWrite(t *testing.T) {
	tk, root := newTestToolkit(t, policy.Moderate())
	n, err := tk.Write(context.Background(), "out.txt", "hello", WriteOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 bytes, got %d", n)
	}
	if _, err := tk.Write(context.Background(), "out.txt", " world", WriteOptions{Append: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "out.txt"))
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestWriteCreateDirs(t *testing.T) {
	tk, root := newTestToolkit(t, policy.Moderate())
	_, err := tk.Write(context.Background(), "a/b/c.txt", "x", WriteOptions{})
	if err == nil {
		t.Fatal("expected error for missing parent")
	}
	if _, err := tk.Write(context.Background(), "a/b/c.txt", "x", WriteOptions{CreateDirs: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "a", "b", "c.txt")); err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
}

func TestWriteCreateDirsLeavesNothingOnRejection(t *testing.T) {
	rules := policy.Moderate().Sandbox
	rules.AllowedExtensions = []string{"txt"}
	p := policy.Moderate().WithSandboxPolicy(rules)
	p.Resources.MaxFileSize = 4
	tk, root := newTestToolkit(t, p)

	tests := []struct {
		name    string
		path    string
		content string
	}{
		{name: "extension", path: "ext/deep/payload.exe", content: "x"},
		{name: "size", path: "size/deep/big.txt", content: "12345"},
		{name: "escape", path: "../outside/deep/x.txt", content: "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tk.Write(context.Background(), tt.path, tt.content, WriteOptions{CreateDirs: true})
			expectCode(t, err, apperrors.CodeSandboxViolation)
			top := strings.Split(filepath.ToSlash(tt.path), "/")[0]
			if top == ".." {
				top = filepath.Join("..", "outside")
			}
			if _, err := os.Stat(filepath.Join(root, top)); !os.IsNotExist(err) {
				t.Fatalf("rejected write left %s behind (%v)", top, err)
			}
		})
	}
}

func TestWriteOutsideRootFails(t *testing.T) {
	tk, _ := newTestToolkit(t, policy.Moderate())
	_, err := tk.Write(context.Background(), "../escape.txt", "x", WriteOptions{})
	expectCode(t, err, apperrors.CodeSandboxViolation)
}

func TestWriteRejectsDirectory(t *testing.T) {
	tk, root := newTestToolkit(t, policy.Moderate())
	if err := os.Mkdir(filepath.Join(root, "dir"), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	_, err := tk.Write(context.Background(), "dir", "x", WriteOptions{})
	expectCode(t, err, apperrors.CodeInvalidInput)
}

func TestWriteRespectsFileSizeLimit(t *testing.T) {
	p := policy.Moderate()
	p.Resources.MaxFileSize = 4
	tk, _ := newTestToolkit(t, p)
	_, err := tk.Write(context.Background(), "big.txt", "12345", WriteOptions{})
	expectCode(t, err, apperrors.CodeSandboxViolation)
}
