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
	"errors"
	"fmt"

	apperrors "agenttools/internal/errors"
)

// Sentinels returned by the registry before a tool runs.
var (
	ErrToolNotAllowed   = errors.New("tool blocked by policy")
	ErrToolNotFound     = errors.New("tool not found")
	ErrInvalidArguments = errors.New("invalid tool arguments")
	ErrToolRateLimited  = errors.New("tool rate limit exceeded")
	ErrToolInCooldown   = errors.New("tool is in cooldown")
)

// sentinelCodes assigns each registry sentinel the kind it is reported as.
var sentinelCodes = []struct {
	err  error
	code apperrors.Code
}{
	{ErrToolNotFound, apperrors.CodeNotFound},
	{ErrInvalidArguments, apperrors.CodeInvalidInput},
	{ErrToolNotAllowed, apperrors.CodePermission},
	{ErrToolRateLimited, apperrors.CodePermission},
	{ErrToolInCooldown, apperrors.CodePermission},
}

func errInvalidInput(format string, args ...any) error {
	return apperrors.Newf(apperrors.CodeInvalidInput, format, args...)
}

// classify gives every error leaving the registry a code. Errors that
// already carry one keep it; anything unrecognised becomes IoError.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			return apperrors.Wrap(s.code, "", err)
		}
	}
	var coded *apperrors.Error
	if errors.As(err, &coded) {
		return err
	}
	return apperrors.Wrap(apperrors.CodeIO, "", err)
}

func panicError(tool string, recovered any) error {
	return apperrors.Newf(apperrors.CodeIO, "tool %s panicked: %v", tool, recovered)
}

func wrapArgs(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
}
