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
	"os"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/encoding/unicode"

	apperrors "agenttools/internal/errors"
)

// Bom is the byte order mark found at the start of a text file.
type Bom int

const (
	BomNone Bom = iota
	BomUTF8
	BomUTF16LE
	BomUTF16BE
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// binarySniffLen is how much of a file is inspected for NUL bytes.
const binarySniffLen = 8000

// DetectBom inspects the leading bytes of data.
func DetectBom(data []byte) Bom {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return BomUTF8
	case bytes.HasPrefix(data, bomUTF16LE):
		return BomUTF16LE
	case bytes.HasPrefix(data, bomUTF16BE):
		return BomUTF16BE
	default:
		return BomNone
	}
}

// Size returns the length of the mark in bytes.
func (b Bom) Size() int {
	switch b {
	case BomUTF8:
		return 3
	case BomUTF16LE, BomUTF16BE:
		return 2
	default:
		return 0
	}
}

func (b Bom) String() string {
	switch b {
	case BomUTF8:
		return "utf-8"
	case BomUTF16LE:
		return "utf-16le"
	case BomUTF16BE:
		return "utf-16be"
	default:
		return "none"
	}
}

// decodeText converts raw file content to a UTF-8 string. A UTF-8 mark is
// stripped and UTF-16 content is transcoded. Anything else must already be
// valid UTF-8 without NUL bytes.
func decodeText(display string, data []byte) (string, error) {
	bom := DetectBom(data)
	switch bom {
	case BomUTF8:
		data = data[bom.Size():]
	case BomUTF16LE, BomUTF16BE:
		endian := unicode.LittleEndian
		if bom == BomUTF16BE {
			endian = unicode.BigEndian
		}
		decoded, err := unicode.UTF16(endian, unicode.ExpectBOM).NewDecoder().Bytes(data)
		if err != nil {
			return "", apperrors.Wrap(apperrors.CodeEncoding, "cannot decode "+display+" as "+bom.String(), err)
		}
		data = decoded
	}

	sniff := data
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	if bytes.IndexByte(sniff, 0) != -1 || !utf8.Valid(data) {
		return "", apperrors.Newf(apperrors.CodeEncoding, "%s is not UTF-8 text (detected %s)", display, mimetype.Detect(data).String())
	}
	return string(data), nil
}

// readText authorizes path, enforces the file size limit and decodes the
// content.
func (t *Toolkit) readText(path string) (string, error) {
	resolved, _, err := t.sandbox.ValidateReadFile(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", apperrors.FromOS("read", path, err)
	}
	return decodeText(path, data)
}

// readLines returns the lines of path without terminators. A trailing
// newline does not produce an empty last line and CRLF endings are folded.
func (t *Toolkit) readLines(path string) ([]string, error) {
	text, err := t.readText(path)
	if err != nil {
		return nil, err
	}
	return splitLines(text), nil
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
