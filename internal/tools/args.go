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

// Argument structs decoded from tool calls. The json and jsonschema tags
// drive the published schema; validate tags are checked before dispatch.

type catArgs struct {
	Paths        []string `json:"paths,omitempty" jsonschema:"description=Files to concatenate"`
	Path         string   `json:"path,omitempty" jsonschema:"description=Single file to print"`
	NumberLines  bool     `json:"number_lines,omitempty" jsonschema:"description=Number all output lines"`
	ShowEnds     bool     `json:"show_ends,omitempty" jsonschema:"description=Display $ at the end of each line"`
	SqueezeBlank bool     `json:"squeeze_blank,omitempty" jsonschema:"description=Suppress repeated empty lines"`
}

type lsArgs struct {
	Path          string `json:"path,omitempty" jsonschema:"description=Directory to list (default: sandbox root)"`
	All           bool   `json:"all,omitempty" jsonschema:"description=Include entries starting with a dot"`
	Long          bool   `json:"long,omitempty" jsonschema:"description=Use the long listing format"`
	HumanReadable bool   `json:"human_readable,omitempty" jsonschema:"description=Print sizes like 1K 234M 2G"`
	Recursive     bool   `json:"recursive,omitempty" jsonschema:"description=List subdirectories recursively"`
	SortByTime    bool   `json:"sort_by_time,omitempty" jsonschema:"description=Sort by modification time with newest first"`
	Reverse       bool   `json:"reverse,omitempty" jsonschema:"description=Reverse the sort order"`
}

type headArgs struct {
	Paths   []string `json:"paths,omitempty" jsonschema:"description=Files to read"`
	Path    string   `json:"path,omitempty" jsonschema:"description=Single file to read"`
	Lines   int      `json:"lines,omitempty" jsonschema:"description=Number of lines (default 10)" validate:"gte=0"`
	Bytes   int      `json:"bytes,omitempty" jsonschema:"description=Number of bytes; overrides lines" validate:"gte=0"`
	Verbose bool     `json:"verbose,omitempty" jsonschema:"description=Always print file name headers"`
	Quiet   bool     `json:"quiet,omitempty" jsonschema:"description=Never print file name headers"`
}

type wcArgs struct {
	Paths []string `json:"paths,omitempty" jsonschema:"description=Files to count"`
	Path  string   `json:"path,omitempty" jsonschema:"description=Single file to count"`
	Lines bool     `json:"lines,omitempty" jsonschema:"description=Print the newline count"`
	Words bool     `json:"words,omitempty" jsonschema:"description=Print the word count"`
	Bytes bool     `json:"bytes,omitempty" jsonschema:"description=Print the byte count"`
	Chars bool     `json:"chars,omitempty" jsonschema:"description=Print the character count"`
}

type grepArgs struct {
	Pattern           string   `json:"pattern" jsonschema:"description=Pattern to search for (regular expression)" validate:"required"`
	Paths             []string `json:"paths,omitempty" jsonschema:"description=Files or directories to search"`
	Path              string   `json:"path,omitempty" jsonschema:"description=Single file or directory to search"`
	IgnoreCase        bool     `json:"ignore_case,omitempty" jsonschema:"description=Case-insensitive matching"`
	InvertMatch       bool     `json:"invert_match,omitempty" jsonschema:"description=Select non-matching lines"`
	LineNumber        bool     `json:"line_number,omitempty" jsonschema:"description=Prefix each line with its line number"`
	Count             bool     `json:"count,omitempty" jsonschema:"description=Print only a count of matching lines per file"`
	FilesWithMatches  bool     `json:"files_with_matches,omitempty" jsonschema:"description=Print only names of files with matches"`
	FilesWithoutMatch bool     `json:"files_without_match,omitempty" jsonschema:"description=Print only names of files without matches"`
	BeforeContext     int      `json:"before_context,omitempty" jsonschema:"description=Lines of leading context" validate:"gte=0"`
	AfterContext      int      `json:"after_context,omitempty" jsonschema:"description=Lines of trailing context" validate:"gte=0"`
	FixedStrings      bool     `json:"fixed_strings,omitempty" jsonschema:"description=Treat the pattern as a literal string"`
	Recursive         bool     `json:"recursive,omitempty" jsonschema:"description=Search directories recursively"`
	MaxMatches        int      `json:"max_matches,omitempty" jsonschema:"description=Maximum number of matches to return" validate:"gte=0"`
}

type sortArgs struct {
	Paths        []string `json:"paths,omitempty" jsonschema:"description=Files to sort"`
	Path         string   `json:"path,omitempty" jsonschema:"description=Single file to sort"`
	Reverse      bool     `json:"reverse,omitempty" jsonschema:"description=Reverse the result"`
	Numeric      bool     `json:"numeric,omitempty" jsonschema:"description=Compare by numerical value"`
	Unique       bool     `json:"unique,omitempty" jsonschema:"description=Output only the first of equal lines"`
	IgnoreCase   bool     `json:"ignore_case,omitempty" jsonschema:"description=Fold lower case to upper case"`
	Version      bool     `json:"version,omitempty" jsonschema:"description=Natural sort of version numbers"`
	Month        bool     `json:"month,omitempty" jsonschema:"description=Compare month names (JAN < ... < DEC)"`
	HumanNumeric bool     `json:"human_numeric,omitempty" jsonschema:"description=Compare human readable numbers (2K 1G)"`
}

type uniqArgs struct {
	Paths      []string `json:"paths,omitempty" jsonschema:"description=Files to filter"`
	Path       string   `json:"path,omitempty" jsonschema:"description=Single file to filter"`
	Count      bool     `json:"count,omitempty" jsonschema:"description=Prefix lines by the number of occurrences"`
	Repeated   bool     `json:"repeated,omitempty" jsonschema:"description=Only print duplicate lines"`
	Unique     bool     `json:"unique,omitempty" jsonschema:"description=Only print unique lines"`
	IgnoreCase bool     `json:"ignore_case,omitempty" jsonschema:"description=Ignore case when comparing"`
	SkipFields int      `json:"skip_fields,omitempty" jsonschema:"description=Skip the first N fields" validate:"gte=0"`
	SkipChars  int      `json:"skip_chars,omitempty" jsonschema:"description=Skip the first N characters" validate:"gte=0"`
}

type tacArgs struct {
	Paths []string `json:"paths,omitempty" jsonschema:"description=Files to reverse"`
	Path  string   `json:"path,omitempty" jsonschema:"description=Single file to reverse"`
}

type nlArgs struct {
	Paths []string `json:"paths,omitempty" jsonschema:"description=Files to number"`
	Path  string   `json:"path,omitempty" jsonschema:"description=Single file to number"`
	Start int      `json:"start,omitempty" jsonschema:"description=First line number (default 1)"`
}

type cutArgs struct {
	Paths         []string `json:"paths,omitempty" jsonschema:"description=Files to cut"`
	Path          string   `json:"path,omitempty" jsonschema:"description=Single file to cut"`
	Fields        string   `json:"fields,omitempty" jsonschema:"description=Field list such as 1-3 or 2-"`
	Characters    string   `json:"characters,omitempty" jsonschema:"description=Character list such as 1-10"`
	Delimiter     string   `json:"delimiter,omitempty" jsonschema:"description=Field delimiter (default tab)"`
	OnlyDelimited bool     `json:"only_delimited,omitempty" jsonschema:"description=Skip lines without the delimiter"`
}

type findArgs struct {
	Path       string `json:"path,omitempty" jsonschema:"description=Directory to search (default: sandbox root)"`
	Name       string `json:"name,omitempty" jsonschema:"description=Glob matched against base names (e.g. *.go)"`
	Regex      string `json:"regex,omitempty" jsonschema:"description=Regular expression matched against base names"`
	IgnoreCase bool   `json:"ignore_case,omitempty" jsonschema:"description=Case-insensitive name matching"`
	Type       string `json:"type,omitempty" jsonschema:"description=f for files or d for directories" validate:"omitempty,oneof=f d"`
	MaxDepth   int    `json:"max_depth,omitempty" jsonschema:"description=Maximum directory depth" validate:"gte=0"`
	Hidden     bool   `json:"hidden,omitempty" jsonschema:"description=Include hidden entries"`
	Limit      int    `json:"limit,omitempty" jsonschema:"description=Maximum number of results (at most 1000)" validate:"gte=0"`
}

type copyArgs struct {
	Sources          []string `json:"sources" jsonschema:"description=Source file or directory paths" validate:"required,min=1"`
	Destination      string   `json:"destination" jsonschema:"description=Destination path" validate:"required"`
	Recursive        bool     `json:"recursive,omitempty" jsonschema:"description=Copy directories recursively"`
	Force            bool     `json:"force,omitempty" jsonschema:"description=Overwrite existing files"`
	NoFollowSymlinks bool     `json:"no_follow_symlinks,omitempty" jsonschema:"description=Copy symlink itself instead of target"`
}

type moveArgs struct {
	Sources     []string `json:"sources" jsonschema:"description=Source file or directory paths" validate:"required,min=1"`
	Destination string   `json:"destination" jsonschema:"description=Destination path" validate:"required"`
	Update      bool     `json:"update,omitempty" jsonschema:"description=Move only when source is newer or destination is missing"`
	NoClobber   bool     `json:"no_clobber,omitempty" jsonschema:"description=Do not overwrite existing files"`
}

type removeArgs struct {
	Paths     []string `json:"paths,omitempty" jsonschema:"description=Paths to remove"`
	Path      string   `json:"path,omitempty" jsonschema:"description=Single path to remove"`
	Recursive bool     `json:"recursive,omitempty" jsonschema:"description=Remove directories recursively"`
	Force     bool     `json:"force,omitempty" jsonschema:"description=Ignore nonexistent files"`
}

type mkdirArgs struct {
	Paths   []string `json:"paths,omitempty" jsonschema:"description=Directory paths to create"`
	Path    string   `json:"path,omitempty" jsonschema:"description=Single directory path to create"`
	Parents bool     `json:"parents,omitempty" jsonschema:"description=Create parent directories as needed"`
	Mode    string   `json:"mode,omitempty" jsonschema:"description=Octal permission mode such as 755"`
}

type touchArgs struct {
	Paths        []string `json:"paths,omitempty" jsonschema:"description=File paths to touch"`
	Path         string   `json:"path,omitempty" jsonschema:"description=Single file path to touch"`
	Access       bool     `json:"access,omitempty" jsonschema:"description=Change access time only"`
	Modification bool     `json:"modification,omitempty" jsonschema:"description=Change modification time only"`
	NoCreate     bool     `json:"no_create,omitempty" jsonschema:"description=Do not create files if they do not exist"`
	Datetime     string   `json:"datetime,omitempty" jsonschema:"description=RFC3339 timestamp to apply"`
}

type base64Args struct {
	Path   string `json:"path" jsonschema:"description=File to encode or decode" validate:"required"`
	Decode bool   `json:"decode,omitempty" jsonschema:"description=Decode instead of encode"`
}

type hashsumArgs struct {
	Paths     []string `json:"paths,omitempty" jsonschema:"description=Files to hash"`
	Path      string   `json:"path,omitempty" jsonschema:"description=Single file to hash"`
	Algorithm string   `json:"algorithm,omitempty" jsonschema:"description=One of sha1 or sha256 or sha512 or blake3 (default sha256)" validate:"omitempty,oneof=sha1 sha256 sha512 blake3"`
}

type writeArgs struct {
	Path       string `json:"path" jsonschema:"description=File to create or overwrite" validate:"required"`
	Content    string `json:"content" jsonschema:"description=Content to write"`
	Append     bool   `json:"append,omitempty" jsonschema:"description=Append instead of overwriting"`
	CreateDirs bool   `json:"create_dirs,omitempty" jsonschema:"description=Create missing parent directories"`
}

type shellArgs struct {
	Command       string            `json:"command" jsonschema:"description=Command line to run" validate:"required"`
	Shell         string            `json:"shell,omitempty" jsonschema:"description=Shell to use: default or powershell or cmd or bash" validate:"omitempty,oneof=default powershell pwsh cmd cmd.exe bash sh"`
	WorkingDir    string            `json:"working_dir,omitempty" jsonschema:"description=Working directory (default: sandbox root)"`
	Env           map[string]string `json:"env,omitempty" jsonschema:"description=Extra environment variables"`
	Timeout       float64           `json:"timeout,omitempty" jsonschema:"description=Timeout in seconds" validate:"gte=0"`
	CaptureStdout *bool             `json:"capture_stdout,omitempty" jsonschema:"description=Capture standard output (default true)"`
	CaptureStderr *bool             `json:"capture_stderr,omitempty" jsonschema:"description=Capture standard error (default true)"`
}

// pathList merges the paths and path arguments.
func pathList(paths []string, path string) []string {
	if path == "" {
		return paths
	}
	return append([]string{path}, paths...)
}
