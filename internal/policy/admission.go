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
	"context"

	"golang.org/x/sync/semaphore"

	apperrors "agenttools/internal/errors"
)

// Admission gates tool dispatch on MaxConcurrentOperations. The policy only
// supplies the number; host integrations acquire a slot before each call.
type Admission struct {
	sem   *semaphore.Weighted
	limit int64
}

// NewAdmission sizes a gate from limits. A non-positive limit admits one
// call at a time.
func NewAdmission(limits ResourceLimits) *Admission {
	limit := int64(limits.MaxConcurrentOperations)
	if limit <= 0 {
		limit = 1
	}
	return &Admission{sem: semaphore.NewWeighted(limit), limit: limit}
}

// Acquire blocks until a slot is free or ctx is done. The returned function
// releases the slot.
func (a *Admission) Acquire(ctx context.Context) (func(), error) {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeTimedOut, "waiting for a free tool slot", err)
	}
	return func() { a.sem.Release(1) }, nil
}

// TryAcquire takes a slot without blocking.
func (a *Admission) TryAcquire() (func(), bool) {
	if !a.sem.TryAcquire(1) {
		return nil, false
	}
	return func() { a.sem.Release(1) }, true
}

// Limit returns the number of concurrent slots.
func (a *Admission) Limit() int64 {
	return a.limit
}
