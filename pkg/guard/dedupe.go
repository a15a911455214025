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
	"strconv"
)

// Deduper remembers processed message IDs so webhook redeliveries are
// dropped.
type Deduper struct {
	store      Store
	ttlSeconds int
}

func NewDeduper(store Store, ttlSeconds int) *Deduper {
	return &Deduper{store: store, ttlSeconds: ttlSeconds}
}

// Seen marks messageID as processed. Returns true when the ID was already
// recorded.
func (d *Deduper) Seen(ctx context.Context, messageID string) (bool, error) {
	ok, err := d.store.SetNX(ctx, "dedupe:msg:"+messageID, "1", d.ttlSeconds)
	if err != nil {
		return false, fmt.Errorf("dedupe check failed: %w", err)
	}
	return !ok, nil
}

// OrderGuard drops messages whose provider timestamp is older than the
// latest one already processed for the sender.
type OrderGuard struct {
	store      Store
	ttlSeconds int
}

func NewOrderGuard(store Store, ttlSeconds int) *OrderGuard {
	return &OrderGuard{store: store, ttlSeconds: ttlSeconds}
}

// Check accepts timestamp and records it as the sender's high-water mark
// unless it is strictly older than the mark. Equal timestamps pass; provider
// timestamps have second resolution, so two quick messages can share one.
func (g *OrderGuard) Check(ctx context.Context, sender string, timestamp int64) (bool, error) {
	key := "order:last:" + sender

	last, ok, err := g.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("order check failed: %w", err)
	}
	if ok {
		lastTS, err := strconv.ParseInt(last, 10, 64)
		if err == nil && timestamp < lastTS {
			return false, nil
		}
	}

	if err := g.store.Set(ctx, key, strconv.FormatInt(timestamp, 10), g.ttlSeconds); err != nil {
		return false, fmt.Errorf("order record failed: %w", err)
	}
	return true, nil
}
