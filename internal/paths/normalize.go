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

package paths

import (
	"runtime"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	apperrors "agenttools/internal/errors"
)

const (
	// MaxPath is the ordinary Windows path limit. Longer Windows-style
	// results are re-prefixed with the long-path marker.
	MaxPath = 260
	// MaxInputLength bounds raw input before any parsing happens.
	MaxInputLength = 32767
	// DefaultCacheSize is the number of raw inputs memoized per Normalizer.
	DefaultCacheSize = 4096

	uncPrefix = `\\?\`
)

// Style selects the rendering of a normalized path.
type Style int

const (
	// StylePOSIX renders drive paths under /mnt/<drive> and keeps rooted paths as is.
	StylePOSIX Style = iota
	// StyleWindows renders drive paths as C:\... with backslashes.
	StyleWindows
)

func (s Style) String() string {
	if s == StyleWindows {
		return "windows"
	}
	return "posix"
}

// HostStyle returns the style native to the running platform.
func HostStyle() Style {
	if runtime.GOOS == "windows" {
		return StyleWindows
	}
	return StylePOSIX
}

// Format is the notation a raw path was written in.
type Format int

const (
	FormatRelative Format = iota
	FormatDos
	FormatDosForward
	FormatMixed
	FormatWsl
	FormatCygwin
	FormatGitBash
	FormatUnc
	FormatRooted
)

var formatNames = map[Format]string{
	FormatRelative:   "relative",
	FormatDos:        "dos",
	FormatDosForward: "dos-forward",
	FormatMixed:      "mixed",
	FormatWsl:        "wsl",
	FormatCygwin:     "cygwin",
	FormatGitBash:    "gitbash",
	FormatUnc:        "unc",
	FormatRooted:     "rooted",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return "unknown"
}

// DetectFormat classifies a raw path by its prefix.
func DetectFormat(path string) Format {
	switch {
	case strings.HasPrefix(path, uncPrefix):
		return FormatUnc
	case driveMount(path, "/mnt/"):
		return FormatWsl
	case driveMount(path, "/cygdrive/"):
		return FormatCygwin
	case driveMount(path, "//"):
		return FormatGitBash
	}

	mixed := strings.ContainsRune(path, '\\') && strings.ContainsRune(path, '/')
	if hasDriveLetter(path) {
		switch {
		case mixed:
			return FormatMixed
		case strings.ContainsRune(path, '/'):
			return FormatDosForward
		default:
			return FormatDos
		}
	}
	if path != "" && (path[0] == '/' || path[0] == '\\') {
		return FormatRooted
	}
	if mixed {
		return FormatMixed
	}
	return FormatRelative
}

func isDriveLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func hasDriveLetter(path string) bool {
	return len(path) >= 2 && isDriveLetter(path[0]) && path[1] == ':'
}

// driveMount matches prefix followed by a single drive letter that ends the
// path or is followed by a separator, so /mnt/data stays a plain path.
func driveMount(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) || len(path) <= len(prefix) {
		return false
	}
	rest := path[len(prefix):]
	if !isDriveLetter(rest[0]) {
		return false
	}
	return len(rest) == 1 || rest[1] == '/' || rest[1] == '\\'
}

type parsedPath struct {
	drive  byte
	rooted bool
	parts  []string
}

func parse(path string) (parsedPath, error) {
	var p parsedPath
	rest := path

	switch format := DetectFormat(path); format {
	case FormatUnc:
		body := path[len(uncPrefix):]
		if !hasDriveLetter(body) {
			return p, apperrors.Newf(apperrors.CodePath, "unsupported UNC path form: %q", path)
		}
		p.drive, rest = body[0], body[2:]
	case FormatWsl:
		p.drive, rest = path[5], path[6:]
	case FormatCygwin:
		p.drive, rest = path[10], path[11:]
	case FormatGitBash:
		p.drive, rest = path[2], path[3:]
	case FormatRooted:
		p.rooted = true
	default:
		if hasDriveLetter(path) {
			p.drive, rest = path[0], path[2:]
		}
	}

	if p.drive != 0 {
		p.drive = upper(p.drive)
		p.rooted = true
	}
	p.parts = cleanComponents(rest, p.rooted)
	return p, nil
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c - 'A' + 'a'
	}
	return c
}

// cleanComponents splits on both separators and resolves dot components
// lexically. ".." never climbs above a root; relative paths keep leading "..".
func cleanComponents(rest string, rooted bool) []string {
	fields := strings.FieldsFunc(rest, func(r rune) bool { return r == '/' || r == '\\' })
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		switch field {
		case ".":
			continue
		case "..":
			if len(parts) > 0 && parts[len(parts)-1] != ".." {
				parts = parts[:len(parts)-1]
			} else if !rooted {
				parts = append(parts, "..")
			}
		default:
			parts = append(parts, field)
		}
	}
	return parts
}

func (p parsedPath) render(style Style) string {
	if style == StyleWindows {
		joined := strings.Join(p.parts, `\`)
		switch {
		case p.drive != 0:
			out := string([]byte{p.drive, ':', '\\'}) + joined
			if len(out) > MaxPath {
				return uncPrefix + out
			}
			return out
		case p.rooted:
			return `\` + joined
		case joined == "":
			return "."
		default:
			return joined
		}
	}

	joined := strings.Join(p.parts, "/")
	switch {
	case p.drive != 0:
		out := "/mnt/" + string(lower(p.drive))
		if joined != "" {
			out += "/" + joined
		}
		return out
	case p.rooted:
		return "/" + joined
	case joined == "":
		return "."
	default:
		return joined
	}
}

// Normalizer converts any supported notation into one canonical string for
// its style. Results are memoized in a bounded LRU keyed by the raw input.
type Normalizer struct {
	style Style
	cache *lru.Cache[string, string]
}

// NewNormalizer returns a normalizer for style with a cache of cacheSize
// entries. A non-positive size selects DefaultCacheSize.
func NewNormalizer(style Style, cacheSize int) *Normalizer {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		panic(err)
	}
	return &Normalizer{style: style, cache: cache}
}

// Style returns the rendering style.
func (n *Normalizer) Style() Style {
	return n.style
}

// Normalize returns the canonical form of path. It never touches the
// filesystem and never checks whether a drive exists.
func (n *Normalizer) Normalize(path string) (string, error) {
	if cached, ok := n.cache.Get(path); ok {
		return cached, nil
	}
	if err := CheckRaw(path, MaxInputLength); err != nil {
		return "", err
	}
	parsed, err := parse(path)
	if err != nil {
		return "", err
	}
	out := parsed.render(n.style)
	n.cache.Add(path, out)
	return out, nil
}

// IsAbsolute reports whether path names a location independent of any
// working directory once normalized.
func (n *Normalizer) IsAbsolute(path string) bool {
	normalized, err := n.Normalize(path)
	if err != nil {
		return false
	}
	if n.style == StyleWindows {
		return strings.HasPrefix(normalized, uncPrefix) || hasDriveLetter(normalized)
	}
	return strings.HasPrefix(normalized, "/")
}

// Join appends rel to base. An absolute rel replaces base.
func (n *Normalizer) Join(base, rel string) (string, error) {
	if n.IsAbsolute(rel) {
		return n.Normalize(rel)
	}
	baseNorm, err := n.Normalize(base)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(rel) == "" {
		return baseNorm, nil
	}
	if strings.IndexByte(rel, 0) != -1 {
		return "", apperrors.New(apperrors.CodePath, "path contains null byte")
	}
	sep := "/"
	if n.style == StyleWindows {
		sep = `\`
	}
	trimmed := strings.TrimPrefix(baseNorm, uncPrefix)
	return n.Normalize(strings.TrimRight(trimmed, `/\`) + sep + rel)
}

// CacheLen reports how many inputs are currently memoized.
func (n *Normalizer) CacheLen() int {
	return n.cache.Len()
}
