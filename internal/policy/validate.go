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

package policy

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/samber/lo"

	apperrors "agenttools/internal/errors"
	"agenttools/internal/paths"
)

// dangerousPatterns are rejected at every enforcing tier, whatever the
// command lists say.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`>\s*/dev/(sd|nvme|hd|disk)`),
	regexp.MustCompile(`\brm\s+-[a-zA-Z]*r[a-zA-Z]*\s+/(\s|$)`),
	regexp.MustCompile(`curl.*\|\s*(sh|bash)`),
	regexp.MustCompile(`wget.*\|\s*(sh|bash)`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\};:`),
}

var (
	segmentSeparators = regexp.MustCompile(`&&|\|\||[;|&\n]`)
	redirectFolding   = strings.NewReplacer(">&", ">", "&>", ">")
)

func violation(format string, args ...any) error {
	return apperrors.Newf(apperrors.CodeSandboxViolation, format, args...)
}

// ValidateFileSize rejects sizes above MaxFileSize.
func (p SecurityPolicy) ValidateFileSize(size int64) error {
	if !p.Resources.Enabled {
		return nil
	}
	if size > p.Resources.MaxFileSize {
		return violation("file size %d exceeds maximum allowed %d", size, p.Resources.MaxFileSize)
	}
	return nil
}

// ValidateBatchSize rejects batches above MaxBatchSize.
func (p SecurityPolicy) ValidateBatchSize(count int) error {
	if !p.Resources.Enabled {
		return nil
	}
	if count > p.Resources.MaxBatchSize {
		return violation("batch size %d exceeds maximum allowed %d", count, p.Resources.MaxBatchSize)
	}
	return nil
}

// ValidateCommand checks a command line against the command policy. Each
// segment of a pipeline or command list is checked on its own: blocked
// commands first, then the allowlist when arbitrary commands are not allowed.
func (p SecurityPolicy) ValidateCommand(command string) error {
	if !p.Commands.Enabled {
		return nil
	}
	if strings.TrimSpace(command) == "" {
		return apperrors.New(apperrors.CodeInvalidInput, "command cannot be empty")
	}
	if len(command) > p.Commands.MaxCommandLength {
		return violation("command length %d exceeds maximum allowed %d", len(command), p.Commands.MaxCommandLength)
	}

	if !p.Commands.AllowArbitrary && (strings.Contains(command, "$(") || strings.Contains(command, "`")) {
		return violation("command substitution is not allowed at security level %s", p.Level)
	}

	if !p.Commands.AllowArbitrary {
		for _, target := range outputRedirects(command) {
			if target != "/dev/null" {
				return violation("output redirection to %q is not allowed at security level %s", target, p.Level)
			}
		}
	}

	for _, segment := range segmentSeparators.Split(redirectFolding.Replace(command), -1) {
		assignments, word, args := splitSegment(segment)
		name := commandName(word)
		if name == "" {
			continue
		}
		if lo.Contains(p.Commands.BlockedCommands, name) {
			return violation("command '%s' is explicitly blocked", name)
		}
		if p.Commands.AllowArbitrary {
			continue
		}
		if strings.ContainsAny(word, `/\`) {
			return violation("command '%s' must be named without a path at security level %s", word, p.Level)
		}
		if len(p.Commands.AllowedCommands) > 0 && !lo.Contains(p.Commands.AllowedCommands, name) {
			return violation("command '%s' is not in allowed list", name)
		}
		for _, assignment := range assignments {
			key, _, _ := strings.Cut(assignment, "=")
			if ProtectedEnvKey(key) {
				return violation("setting %s is not allowed at security level %s", key, p.Level)
			}
		}
		if check, ok := argumentChecks[name]; ok {
			if flag := check(args); flag != "" {
				return violation("option %s of '%s' is not allowed at security level %s", flag, name, p.Level)
			}
		}
	}

	for _, pattern := range dangerousPatterns {
		if pattern.MatchString(command) {
			return violation("command contains a dangerous pattern")
		}
	}
	return nil
}

// CommandName extracts the program name of a command segment: leading
// environment assignments are skipped, directories and a trailing .exe are
// dropped and the result is lower-cased.
func CommandName(segment string) string {
	_, word, _ := splitSegment(segment)
	return commandName(word)
}

func commandName(word string) string {
	if idx := strings.LastIndexAny(word, `/\`); idx >= 0 {
		word = word[idx+1:]
	}
	return strings.TrimSuffix(strings.ToLower(word), ".exe")
}

// splitSegment separates a command segment into its leading VAR=value
// assignments, the command word and the remaining arguments. Quotes and
// grouping characters are trimmed from every field.
func splitSegment(segment string) (assignments []string, word string, args []string) {
	fields := strings.Fields(segment)
	for i, field := range fields {
		field = strings.Trim(field, `"'(){}`)
		if strings.Contains(field, "=") && !strings.ContainsAny(field, `/\`) {
			assignments = append(assignments, field)
			continue
		}
		for _, arg := range fields[i+1:] {
			args = append(args, strings.Trim(arg, `"'`))
		}
		return assignments, field, args
	}
	return assignments, "", nil
}

// ProtectedEnvKey reports whether key changes how a shell starts or how
// programs are found and loaded. Such keys may only be set by callers at
// tiers that allow arbitrary commands.
func ProtectedEnvKey(key string) bool {
	key = strings.ToUpper(key)
	if lo.Contains(protectedEnvKeys, key) {
		return true
	}
	return lo.SomeBy(protectedEnvPrefixes, func(prefix string) bool {
		return strings.HasPrefix(key, prefix)
	})
}

var (
	protectedEnvKeys = []string{
		"BASH_ENV", "ENV", "PATH", "PATHEXT", "PS4", "SHELLOPTS", "BASHOPTS",
		"PROMPT_COMMAND", "IFS", "CDPATH", "GLOBIGNORE", "COMSPEC", "PSMODULEPATH",
	}
	protectedEnvPrefixes = []string{"LD_", "DYLD_", "BASH_FUNC_"}
)

// ValidateEnv rejects caller-supplied environment entries that could run
// code before an allowed command starts.
func (p SecurityPolicy) ValidateEnv(env map[string]string) error {
	if !p.Commands.Enabled || p.Commands.AllowArbitrary {
		return nil
	}
	for _, key := range lo.Keys(env) {
		if ProtectedEnvKey(key) {
			return violation("environment variable %s cannot be set at security level %s", key, p.Level)
		}
	}
	return nil
}

// argumentChecks return the first option of an allowed command that would
// write files or run other programs, or "" when the arguments are safe.
var argumentChecks = map[string]func(args []string) string{
	"find": func(args []string) string {
		for _, arg := range args {
			switch arg {
			case "-delete", "-exec", "-execdir", "-ok", "-okdir",
				"-fprint", "-fprint0", "-fprintf", "-fls":
				return arg
			}
		}
		return ""
	},
	"sort": func(args []string) string {
		for _, arg := range args {
			if arg == "--" {
				return ""
			}
			if strings.HasPrefix(arg, "--output") || strings.HasPrefix(arg, "--compress-program") {
				return arg
			}
			if strings.HasPrefix(arg, "-") && !strings.HasPrefix(arg, "--") && shortFlagsInclude(arg[1:], 'o', "ktST") {
				return arg
			}
		}
		return ""
	},
}

// shortFlagsInclude reports whether a cluster of short options such as
// "rno" contains flag before any option that consumes the rest of the
// cluster as its value.
func shortFlagsInclude(cluster string, flag byte, valued string) bool {
	for i := 0; i < len(cluster); i++ {
		if cluster[i] == flag {
			return true
		}
		if strings.IndexByte(valued, cluster[i]) >= 0 {
			return false
		}
	}
	return false
}

// outputRedirects returns the targets of every output redirection outside
// quotes. Duplications onto another descriptor (2>&1, >&2) are not
// redirections to a file and are skipped.
func outputRedirects(command string) []string {
	var targets []string
	var quote byte
	for i := 0; i < len(command); i++ {
		c := command[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			continue
		case c == '\'':
			quote = c
			continue
		case c == '"':
			quote = c
			continue
		case c == '\\':
			i++
			continue
		case c != '>':
			continue
		}

		j := i + 1
		if j < len(command) && (command[j] == '>' || command[j] == '|') {
			j++
		}
		duplicate := j < len(command) && command[j] == '&'
		if duplicate {
			j++
		}
		for j < len(command) && (command[j] == ' ' || command[j] == '\t') {
			j++
		}
		k := j
		for k < len(command) && !strings.ContainsRune(" \t;|&<>()", rune(command[k])) {
			k++
		}
		target := strings.Trim(command[j:k], `"'`)
		i = k - 1
		if duplicate && (target == "-" || isDescriptor(target)) {
			continue
		}
		targets = append(targets, target)
	}
	return targets
}

func isDescriptor(s string) bool {
	return s != "" && strings.Trim(s, "0123456789") == ""
}

// ValidatePath applies the blocked-path and extension rules to path.
func (p SecurityPolicy) ValidatePath(path string) error {
	if err := p.ValidateBlockedPath(path); err != nil {
		return err
	}
	return p.ValidateExtension(path)
}

// ValidateBlockedPath rejects path when it equals or lies under a blocked entry.
func (p SecurityPolicy) ValidateBlockedPath(path string) error {
	if !p.Sandbox.Enabled {
		return nil
	}
	for _, blocked := range p.Sandbox.BlockedPaths {
		if paths.IsWithin(filepath.Clean(path), filepath.Clean(blocked)) {
			return violation("path is in blocked list")
		}
	}
	return nil
}

// ValidateExtension rejects files whose extension is not allowlisted. With no
// allowlist configured any extension passes.
func (p SecurityPolicy) ValidateExtension(path string) error {
	if !p.Sandbox.Enabled || p.Sandbox.AllowedExtensions == nil {
		return nil
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return violation("files without an extension are not allowed at security level %s", p.Level)
	}
	if !lo.Contains(p.Sandbox.AllowedExtensions, ext) {
		return violation("file extension '%s' is not in allowed list", ext)
	}
	return nil
}

// IsHostAllowed reports whether host may be contacted. Blocked hosts always
// lose; listed hosts are allowed; anything else needs outbound access.
func (p SecurityPolicy) IsHostAllowed(host string) bool {
	if !p.Network.Enabled {
		return true
	}
	host = strings.ToLower(strings.TrimSpace(host))
	if lo.Contains(p.Network.BlockedHosts, host) {
		return false
	}
	if len(p.Network.AllowedHosts) > 0 {
		return lo.Contains(p.Network.AllowedHosts, host)
	}
	return p.Network.AllowOutbound
}

// IsPortAllowed reports whether port may be used.
func (p SecurityPolicy) IsPortAllowed(port int) bool {
	if !p.Network.Enabled {
		return true
	}
	if port <= 0 || port > 65535 {
		return false
	}
	if len(p.Network.AllowedPorts) > 0 {
		return lo.Contains(p.Network.AllowedPorts, port)
	}
	return p.Network.AllowOutbound
}
