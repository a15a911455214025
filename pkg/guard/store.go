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

// Package guard implements the shared-state primitives that keep concurrent
// turns safe: per-session locks, fixed-window rate limits, message
// deduplication and out-of-order drop.
package guard

import "context"

// Store is the minimal key-value surface the guards need. Production uses
// Redis; tests use the in-memory store.
type Store interface {
	// SetNX sets key to value only if it does not exist. ttlSeconds of 0
	// means no expiry. Returns true when the key was set.
	SetNX(ctx context.Context, key, value string, ttlSeconds int) (bool, error)

	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes key to value with an optional expiry.
	Set(ctx context.Context, key, value string, ttlSeconds int) error

	// Incr atomically increments the integer at key, creating it at 1.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets the key's ttl.
	Expire(ctx context.Context, key string, ttlSeconds int) error

	// Del removes the key.
	Del(ctx context.Context, key string) error

	// CompareAndDelete deletes key only if it currently holds value.
	// Returns true when the key was deleted.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}
