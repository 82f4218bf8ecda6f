package systemprompt

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestLoadJoinsSectionsInOrder(t *testing.T) {
	names, err := filepath.Glob("*.txt")
	if err != nil || len(names) == 0 {
		t.Fatalf("expected prompt sections on disk, got %v (%v)", names, err)
	}
	slices.Sort(names)

	var sections []string
	for _, name := range names {
		data, err := os.ReadFile(name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		section := string(data)
		if !strings.HasSuffix(section, "\n") {
			section += "\n"
		}
		sections = append(sections, section)
	}

	prompt, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if want := strings.Join(sections, "\n"); prompt != want {
		t.Fatalf("Load() output mismatch")
	}
	if !strings.Contains(prompt, "sandbox") {
		t.Fatal("expected the prompt to describe the sandbox")
	}
}

func TestRenderAppendsEnvironment(t *testing.T) {
	var out bytes.Buffer
	err := Render(&out, Environment{
		Root: "/work",
		Tier: "strict",
		Tools: []Tool{
			{Name: "cat", Description: "Concatenate files"},
			{Name: "ls", Description: "List directory contents"},
		},
	})
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}

	prompt, _ := Load()
	want := prompt + "\nSandbox root: /work\nSecurity tier: strict\n\nAvailable tools:\n- cat: Concatenate files\n- ls: List directory contents\n"
	if out.String() != want {
		t.Fatalf("Render() output mismatch:\n%s", out.String())
	}
}

func TestRenderWithoutTools(t *testing.T) {
	var out bytes.Buffer
	if err := Render(&out, Environment{Root: "/w", Tier: "moderate"}); err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if !strings.HasSuffix(out.String(), "Security tier: moderate\n\nAvailable tools:\n") {
		t.Fatalf("unexpected trailer: %q", out.String())
	}
}
