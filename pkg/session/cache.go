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

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache keeps JSON session copies in Redis with a TTL. The cached copy
// includes the retained history window.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func cacheKey(sessionID string) string {
	return "session:cache:" + sessionID
}

func (c *RedisCache) Get(ctx context.Context, sessionID string) (*Session, bool, error) {
	raw, err := c.client.Get(ctx, cacheKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("session cache read failed: %w", err)
	}

	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		// A corrupt entry falls back to the durable store.
		return nil, false, nil
	}
	if s.Slots == nil {
		s.Slots = make(map[string]SlotValue)
	}
	return &s, true, nil
}

func (c *RedisCache) Set(ctx context.Context, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session cache marshal failed: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(s.SessionID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("session cache write failed: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, cacheKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("session cache delete failed: %w", err)
	}
	return nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

var _ Cache = (*RedisCache)(nil)
