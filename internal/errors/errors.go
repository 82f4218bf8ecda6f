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

package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
)

// Code identifies a class of error for programmatic handling.
type Code string

const (
	CodePath             Code = "PathError"
	CodeSandboxViolation Code = "SandboxViolation"
	CodeIO               Code = "IoError"
	CodeInvalidInput     Code = "InvalidInput"
	CodePermission       Code = "PermissionDenied"
	CodeNotFound         Code = "NotFound"
	CodeUnsupported      Code = "Unsupported"
	CodeEncoding         Code = "EncodingError"
	CodeTimedOut         Code = "TimedOut"
)

// Error wraps an underlying error with a code and message.
type Error struct {
	Code    Code
	Message string
	Err     error

	// terse errors keep Err for errors.Is but print Message alone.
	terse bool
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.terse {
		return e.Message
	}
	if e.Message == "" {
		if e.Err != nil {
			return e.Err.Error()
		}
		return string(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new coded error with a message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a new coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new coded error that wraps an underlying error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the outermost coded error in the chain.
// Errors without a code are reported as IoError.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.Code
	}
	return CodeIO
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// FromOS classifies an operating system error. Coded errors pass through
// unchanged so that a violation is never downgraded. The message names only
// op and the path the caller supplied; the resolved path carried by the OS
// error stays in the chain for errors.Is and errors.As.
func FromOS(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var coded *Error
	if stderrors.As(err, &coded) {
		return err
	}
	code, reason := CodeIO, osReason(err)
	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		code, reason = CodeNotFound, "no such file or directory"
	case stderrors.Is(err, fs.ErrPermission):
		code, reason = CodePermission, "permission denied"
	}
	return &Error{Code: code, Message: fmt.Sprintf("%s %s: %s", op, path, reason), Err: err, terse: true}
}

// osReason strips the operation and path the os package prefixes to its
// errors.
func osReason(err error) string {
	var pathErr *fs.PathError
	if stderrors.As(err, &pathErr) {
		return pathErr.Err.Error()
	}
	var linkErr *os.LinkError
	if stderrors.As(err, &linkErr) {
		return linkErr.Err.Error()
	}
	var sysErr *os.SyscallError
	if stderrors.As(err, &sysErr) {
		return sysErr.Err.Error()
	}
	return err.Error()
}

// Render formats err as "<Kind>: message" for tool-call consumers.
func Render(err error) string {
	if err == nil {
		return ""
	}
	var coded *Error
	if stderrors.As(err, &coded) {
		msg := coded.Message
		if msg == "" && coded.Err != nil {
			msg = coded.Err.Error()
		}
		return fmt.Sprintf("%s: %s", coded.Code, msg)
	}
	return fmt.Sprintf("%s: %s", CodeIO, err.Error())
}
