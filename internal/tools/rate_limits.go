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
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig bounds how often each tool may be called. Keys are base
// tool names, before any registry prefix is applied.
type RateLimitConfig struct {
	DefaultPerMinute int
	PerTool          map[string]int
	Cooldowns        map[string]time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{DefaultPerMinute: 120}
}

// limiterFor builds the limiter of one tool, or nil when the tool is
// neither rate limited nor cooled down.
func (c RateLimitConfig) limiterFor(tool string, now func() time.Time) *callLimiter {
	perMinute := c.DefaultPerMinute
	if override, ok := c.PerTool[tool]; ok {
		perMinute = override
	}
	cooldown := c.Cooldowns[tool]
	if perMinute <= 0 && cooldown <= 0 {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	limiter := &callLimiter{cooldown: cooldown, now: now}
	if perMinute > 0 {
		// A full minute of calls may be spent in one burst.
		limiter.bucket = rate.NewLimiter(rate.Limit(float64(perMinute)/60), perMinute)
	}
	return limiter
}

// callLimiter combines a token bucket with a fixed quiet period after each
// admitted call. A nil callLimiter admits everything.
type callLimiter struct {
	bucket *rate.Limiter
	now    func() time.Time

	mu         sync.Mutex
	cooldown   time.Duration
	quietUntil time.Time
}

// Allow admits one call or reports why it was refused.
func (l *callLimiter) Allow() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Before(l.quietUntil) {
		return fmt.Errorf("%w: retry after %s", ErrToolInCooldown, l.quietUntil.Sub(now).Round(time.Millisecond))
	}
	if l.bucket != nil && !l.bucket.AllowN(now, 1) {
		return ErrToolRateLimited
	}
	if l.cooldown > 0 {
		l.quietUntil = now.Add(l.cooldown)
	}
	return nil
}
