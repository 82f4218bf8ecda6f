package systemprompt

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"slices"
	"strings"
	"text/template"
)

//go:embed *.txt
var promptFiles embed.FS

// Tool is one entry of the "Available tools" list.
type Tool struct {
	Name        string
	Description string
}

// Environment is the toolkit state appended after the static prompt.
type Environment struct {
	Root  string
	Tier  string
	Tools []Tool
}

var environmentTemplate = template.Must(template.New("environment").Parse(`
Sandbox root: {{.Root}}
Security tier: {{.Tier}}

Available tools:
{{range .Tools}}- {{.Name}}: {{.Description}}
{{end}}`))

// Load joins the embedded *.txt sections in file name order, one blank line
// between sections.
func Load() (string, error) {
	names, err := fs.Glob(promptFiles, "*.txt")
	if err != nil {
		return "", fmt.Errorf("list embedded prompt sections: %w", err)
	}
	if len(names) == 0 {
		return "", errors.New("no system prompt sections embedded")
	}
	slices.Sort(names)

	sections := make([]string, 0, len(names))
	for _, name := range names {
		data, err := promptFiles.ReadFile(name)
		if err != nil {
			return "", fmt.Errorf("read prompt section %q: %w", name, err)
		}
		section := string(data)
		if !strings.HasSuffix(section, "\n") {
			section += "\n"
		}
		sections = append(sections, section)
	}
	return strings.Join(sections, "\n"), nil
}

// Render writes the static prompt followed by env.
func Render(w io.Writer, env Environment) error {
	prompt, err := Load()
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, prompt); err != nil {
		return err
	}
	return environmentTemplate.Execute(w, env)
}
