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
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const defaultLineCount = 10

// HeadOptions tune Head and Tail. Lines defaults to 10. When Bytes is set it
// takes precedence over Lines.
type HeadOptions struct {
	Lines   int
	Bytes   int
	Verbose bool
	Quiet   bool
}

// TailOptions tune Tail.
type TailOptions = HeadOptions

// Head prints the first lines or bytes of each file.
func (t *Toolkit) Head(ctx context.Context, paths []string, opts HeadOptions) (string, error) {
	return t.headTail(ctx, paths, opts, true)
}

// Tail prints the last lines or bytes of each file.
func (t *Toolkit) Tail(ctx context.Context, paths []string, opts TailOptions) (string, error) {
	return t.headTail(ctx, paths, opts, false)
}

func (t *Toolkit) headTail(ctx context.Context, paths []string, opts HeadOptions, head bool) (string, error) {
	if err := requirePaths(paths); err != nil {
		return "", err
	}
	if opts.Lines < 0 || opts.Bytes < 0 {
		return "", errInvalidInput("lines and bytes must not be negative")
	}
	if _, err := t.sandbox.ValidateReads(paths); err != nil {
		return "", err
	}
	lines := opts.Lines
	if lines == 0 {
		lines = defaultLineCount
	}
	headers := !opts.Quiet && (opts.Verbose || len(paths) > 1)

	var out strings.Builder
	for idx, path := range paths {
		if err := ensureContext(ctx); err != nil {
			return "", err
		}
		if headers {
			if idx > 0 {
				out.WriteByte('\n')
			}
			fmt.Fprintf(&out, "==> %s <==\n", path)
		}
		if opts.Bytes > 0 {
			chunk, err := t.readBytes(path, opts.Bytes, head)
			if err != nil {
				return "", err
			}
			out.WriteString(chunk)
			continue
		}
		all, err := t.readLines(path)
		if err != nil {
			return "", err
		}
		n := min(lines, len(all))
		if head {
			out.WriteString(joinLines(all[:n]))
		} else {
			out.WriteString(joinLines(all[len(all)-n:]))
		}
	}
	return out.String(), nil
}

// readBytes returns up to n bytes from the start or end of path, trimmed to
// whole UTF-8 characters.
func (t *Toolkit) readBytes(path string, n int, head bool) (string, error) {
	text, err := t.readText(path)
	if err != nil {
		return "", err
	}
	if n >= len(text) {
		return text, nil
	}
	if head {
		chunk := text[:n]
		for !utf8.ValidString(chunk) && len(chunk) > 0 {
			chunk = chunk[:len(chunk)-1]
		}
		return chunk, nil
	}
	chunk := text[len(text)-n:]
	for !utf8.ValidString(chunk) && len(chunk) > 0 {
		chunk = chunk[1:]
	}
	return chunk, nil
}

// WcOptions select the counters. With none selected lines, words and bytes
// are reported.
type WcOptions struct {
	Lines bool
	Words bool
	Bytes bool
	Chars bool
}

// WcCount holds the counters of one file, or the total row.
type WcCount struct {
	Path  string `json:"path"`
	Lines int    `json:"lines"`
	Words int    `json:"words"`
	Bytes int    `json:"bytes"`
	Chars int    `json:"chars"`
}

// Wc counts lines, words, bytes and characters. A "total" row is appended
// when more than one file is given.
func (t *Toolkit) Wc(ctx context.Context, paths []string, opts WcOptions) ([]WcCount, error) {
	if err := requirePaths(paths); err != nil {
		return nil, err
	}
	if _, err := t.sandbox.ValidateReads(paths); err != nil {
		return nil, err
	}
	counts := make([]WcCount, 0, len(paths)+1)
	total := WcCount{Path: "total"}
	for _, path := range paths {
		if err := ensureContext(ctx); err != nil {
			return nil, err
		}
		text, err := t.readText(path)
		if err != nil {
			return nil, err
		}
		c := WcCount{
			Path:  path,
			Lines: strings.Count(text, "\n"),
			Words: len(strings.Fields(text)),
			Bytes: len(text),
			Chars: utf8.RuneCountInString(text),
		}
		total.Lines += c.Lines
		total.Words += c.Words
		total.Bytes += c.Bytes
		total.Chars += c.Chars
		counts = append(counts, c)
	}
	if len(paths) > 1 {
		counts = append(counts, total)
	}
	return counts, nil
}

// FormatWc renders counts as wc prints them.
func FormatWc(counts []WcCount, opts WcOptions) string {
	if !opts.Lines && !opts.Words && !opts.Bytes && !opts.Chars {
		opts = WcOptions{Lines: true, Words: true, Bytes: true}
	}
	var out strings.Builder
	for _, c := range counts {
		var fields []string
		if opts.Lines {
			fields = append(fields, fmt.Sprintf("%7d", c.Lines))
		}
		if opts.Words {
			fields = append(fields, fmt.Sprintf("%7d", c.Words))
		}
		if opts.Chars {
			fields = append(fields, fmt.Sprintf("%7d", c.Chars))
		}
		if opts.Bytes {
			fields = append(fields, fmt.Sprintf("%7d", c.Bytes))
		}
		fmt.Fprintf(&out, "%s %s\n", strings.Join(fields, " "), c.Path)
	}
	return out.String()
}

// SortOptions tune Sort. At most one of Numeric, Version, Month and
// HumanNumeric should be set; the first set one wins in that order.
type SortOptions struct {
	Reverse      bool
	Numeric      bool
	Unique       bool
	IgnoreCase   bool
	Version      bool
	Month        bool
	HumanNumeric bool
}

// Sort merges the lines of all files and sorts them.
func (t *Toolkit) Sort(ctx context.Context, paths []string, opts SortOptions) (string, error) {
	lines, err := t.collectLines(ctx, paths)
	if err != nil {
		return "", err
	}
	compare := sortComparator(opts)
	slices.SortStableFunc(lines, func(a, b string) int {
		if opts.Reverse {
			return compare(b, a)
		}
		return compare(a, b)
	})
	if opts.Unique {
		lines = slices.CompactFunc(lines, func(a, b string) bool { return compare(a, b) == 0 })
	}
	return joinLines(lines), nil
}

func (t *Toolkit) collectLines(ctx context.Context, paths []string) ([]string, error) {
	if err := requirePaths(paths); err != nil {
		return nil, err
	}
	if _, err := t.sandbox.ValidateReads(paths); err != nil {
		return nil, err
	}
	var lines []string
	for _, path := range paths {
		if err := ensureContext(ctx); err != nil {
			return nil, err
		}
		fileLines, err := t.readLines(path)
		if err != nil {
			return nil, err
		}
		lines = append(lines, fileLines...)
	}
	return lines, nil
}

func sortComparator(opts SortOptions) func(a, b string) int {
	var key func(string) string
	if opts.IgnoreCase {
		key = strings.ToLower
	} else {
		key = func(s string) string { return s }
	}
	switch {
	case opts.Numeric:
		return func(a, b string) int { return compareParsed(a, b, parseNumber) }
	case opts.Version:
		return func(a, b string) int { return compareVersion(key(a), key(b)) }
	case opts.Month:
		return func(a, b string) int {
			if c := cmp.Compare(monthIndex(a), monthIndex(b)); c != 0 {
				return c
			}
			return strings.Compare(key(a), key(b))
		}
	case opts.HumanNumeric:
		return func(a, b string) int { return compareParsed(a, b, parseHumanNumber) }
	default:
		return func(a, b string) int { return strings.Compare(key(a), key(b)) }
	}
}

// compareParsed orders lines with a numeric value before lines without one.
func compareParsed(a, b string, parse func(string) (float64, bool)) int {
	an, aok := parse(a)
	bn, bok := parse(b)
	switch {
	case aok && bok:
		if c := cmp.Compare(an, bn); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	case aok:
		return -1
	case bok:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

func parseNumber(s string) (float64, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	return v, err == nil
}

var humanSuffixes = map[byte]float64{
	'K': 1 << 10, 'M': 1 << 20, 'G': 1 << 30, 'T': 1 << 40, 'P': 1 << 50,
}

func parseHumanNumber(s string) (float64, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, false
	}
	field := strings.ToUpper(fields[0])
	field = strings.TrimSuffix(field, "B")
	field = strings.TrimSuffix(field, "I")
	mult := 1.0
	if n := len(field); n > 0 {
		if m, ok := humanSuffixes[field[n-1]]; ok {
			mult = m
			field = field[:n-1]
		}
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, false
	}
	return v * mult, true
}

var months = []string{"JAN", "FEB", "MAR", "APR", "MAY", "JUN", "JUL", "AUG", "SEP", "OCT", "NOV", "DEC"}

// monthIndex returns 1-12 for a line starting with a month name, 0 otherwise.
func monthIndex(s string) int {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 3 {
		return 0
	}
	return slices.Index(months, s[:3]) + 1
}

// compareVersion compares digit runs numerically and everything else
// lexically.
func compareVersion(a, b string) int {
	for a != "" && b != "" {
		ap, arest := nextVersionPart(a)
		bp, brest := nextVersionPart(b)
		aDigit, bDigit := isDigitRun(ap), isDigitRun(bp)
		var c int
		switch {
		case aDigit && bDigit:
			an := strings.TrimLeft(ap, "0")
			bn := strings.TrimLeft(bp, "0")
			if c = cmp.Compare(len(an), len(bn)); c == 0 {
				c = strings.Compare(an, bn)
			}
		case aDigit:
			c = -1
		case bDigit:
			c = 1
		default:
			c = strings.Compare(ap, bp)
		}
		if c != 0 {
			return c
		}
		a, b = arest, brest
	}
	return cmp.Compare(len(a), len(b))
}

func nextVersionPart(s string) (string, string) {
	digit := unicode.IsDigit(rune(s[0]))
	i := 1
	for i < len(s) && unicode.IsDigit(rune(s[i])) == digit {
		i++
	}
	return s[:i], s[i:]
}

func isDigitRun(s string) bool {
	return s != "" && unicode.IsDigit(rune(s[0]))
}

// UniqOptions tune Uniq.
type UniqOptions struct {
	Count      bool
	Repeated   bool
	Unique     bool
	IgnoreCase bool
	SkipFields int
	SkipChars  int
}

// Uniq collapses adjacent duplicate lines of each file.
func (t *Toolkit) Uniq(ctx context.Context, paths []string, opts UniqOptions) (string, error) {
	if err := requirePaths(paths); err != nil {
		return "", err
	}
	if opts.SkipFields < 0 || opts.SkipChars < 0 {
		return "", errInvalidInput("skip_fields and skip_chars must not be negative")
	}
	if _, err := t.sandbox.ValidateReads(paths); err != nil {
		return "", err
	}
	var out []string
	for _, path := range paths {
		if err := ensureContext(ctx); err != nil {
			return "", err
		}
		lines, err := t.readLines(path)
		if err != nil {
			return "", err
		}
		out = append(out, uniqLines(lines, opts)...)
	}
	return joinLines(out), nil
}

func uniqLines(lines []string, opts UniqOptions) []string {
	var out []string
	emit := func(line string, count int) {
		if opts.Repeated && count <= 1 {
			return
		}
		if opts.Unique && count > 1 {
			return
		}
		if opts.Count {
			out = append(out, fmt.Sprintf("%7d %s", count, line))
			return
		}
		out = append(out, line)
	}

	if len(lines) == 0 {
		return out
	}
	prev, prevKey, count := lines[0], uniqKey(lines[0], opts), 1
	for _, line := range lines[1:] {
		key := uniqKey(line, opts)
		if key == prevKey {
			count++
			continue
		}
		emit(prev, count)
		prev, prevKey, count = line, key, 1
	}
	emit(prev, count)
	return out
}

func uniqKey(line string, opts UniqOptions) string {
	key := line
	if opts.SkipFields > 0 {
		fields := strings.Fields(key)
		if opts.SkipFields < len(fields) {
			key = strings.Join(fields[opts.SkipFields:], " ")
		} else {
			key = ""
		}
	}
	if opts.SkipChars > 0 {
		runes := []rune(key)
		if opts.SkipChars < len(runes) {
			key = string(runes[opts.SkipChars:])
		} else {
			key = ""
		}
	}
	if opts.IgnoreCase {
		key = strings.ToLower(key)
	}
	return key
}

// Tac prints the lines of each file in reverse order.
func (t *Toolkit) Tac(ctx context.Context, paths []string) (string, error) {
	if err := requirePaths(paths); err != nil {
		return "", err
	}
	if _, err := t.sandbox.ValidateReads(paths); err != nil {
		return "", err
	}
	var out strings.Builder
	for _, path := range paths {
		if err := ensureContext(ctx); err != nil {
			return "", err
		}
		lines, err := t.readLines(path)
		if err != nil {
			return "", err
		}
		slices.Reverse(lines)
		out.WriteString(joinLines(lines))
	}
	return out.String(), nil
}

// Nl numbers the non-blank lines of each file, starting at start (default 1).
func (t *Toolkit) Nl(ctx context.Context, paths []string, start int) (string, error) {
	lines, err := t.collectLines(ctx, paths)
	if err != nil {
		return "", err
	}
	if start == 0 {
		start = 1
	}
	var out strings.Builder
	n := start
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			out.WriteString(line)
			out.WriteByte('\n')
			continue
		}
		fmt.Fprintf(&out, "%6d\t%s\n", n, line)
		n++
	}
	return out.String(), nil
}

// CutOptions select either fields or characters. Lists use cut syntax such
// as "1,3-5" or "2-".
type CutOptions struct {
	Fields     string
	Characters string
	// Delimiter separates fields; it defaults to a tab.
	Delimiter string
	// OnlyDelimited drops lines without the delimiter in field mode.
	OnlyDelimited bool
}

// Cut selects portions of each line.
func (t *Toolkit) Cut(ctx context.Context, paths []string, opts CutOptions) (string, error) {
	if (opts.Fields == "") == (opts.Characters == "") {
		return "", errInvalidInput("exactly one of fields or characters is required")
	}
	list := opts.Fields
	if list == "" {
		list = opts.Characters
	}
	ranges, err := parseCutList(list)
	if err != nil {
		return "", err
	}
	delim := opts.Delimiter
	if delim == "" {
		delim = "\t"
	}

	lines, err := t.collectLines(ctx, paths)
	if err != nil {
		return "", err
	}
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if opts.Characters != "" {
			out = append(out, string(selectRanges([]rune(line), ranges)))
			continue
		}
		if !strings.Contains(line, delim) {
			if !opts.OnlyDelimited {
				out = append(out, line)
			}
			continue
		}
		fields := strings.Split(line, delim)
		out = append(out, strings.Join(selectRanges(fields, ranges), delim))
	}
	return joinLines(out), nil
}

type cutRange struct {
	from, to int // 1-based, inclusive; to == 0 means open ended
}

func parseCutList(list string) ([]cutRange, error) {
	var ranges []cutRange
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, errInvalidInput("invalid list %q", list)
		}
		lo, hi, isRange := strings.Cut(part, "-")
		r := cutRange{from: 1}
		var err error
		if lo != "" {
			if r.from, err = strconv.Atoi(lo); err != nil || r.from < 1 {
				return nil, errInvalidInput("invalid list %q", list)
			}
		}
		switch {
		case !isRange:
			r.to = r.from
		case hi != "":
			if r.to, err = strconv.Atoi(hi); err != nil || r.to < r.from {
				return nil, errInvalidInput("invalid list %q", list)
			}
		}
		if isRange && lo == "" && hi == "" {
			return nil, errInvalidInput("invalid list %q", list)
		}
		ranges = append(ranges, r)
	}
	return ranges, nil
}

func selectRanges[T any](items []T, ranges []cutRange) []T {
	var out []T
	for i, item := range items {
		pos := i + 1
		for _, r := range ranges {
			if pos >= r.from && (r.to == 0 || pos <= r.to) {
				out = append(out, item)
				break
			}
		}
	}
	return out
}
