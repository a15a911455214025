// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package guard

import (
	"context"
	"fmt"
)

// RateLimiter enforces a fixed-window limit per key. The counter key gets
// its ttl on first increment, so the window starts at the first message.
type RateLimiter struct {
	store         Store
	windowSeconds int
	maxRequests   int64
}

func NewRateLimiter(store Store, windowSeconds int, maxRequests int) *RateLimiter {
	return &RateLimiter{
		store:         store,
		windowSeconds: windowSeconds,
		maxRequests:   int64(maxRequests),
	}
}

// Allow reports whether one more request fits in the current window.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	counterKey := "ratelimit:" + key

	count, err := r.store.Incr(ctx, counterKey)
	if err != nil {
		return false, fmt.Errorf("rate limit increment failed: %w", err)
	}
	if count == 1 {
		if err := r.store.Expire(ctx, counterKey, r.windowSeconds); err != nil {
			return false, fmt.Errorf("rate limit expire failed: %w", err)
		}
	}

	return count <= r.maxRequests, nil
}
