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
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrLockTimeout is returned when the lock cannot be acquired within the
// wait window.
var ErrLockTimeout = errors.New("timed out waiting for session lock")

const lockPollInterval = 50 * time.Millisecond

// Locker hands out per-session token locks. Release is compare-and-delete,
// so an expired lock re-acquired by another holder is never released by the
// original one.
type Locker struct {
	store       Store
	ttlSeconds  int
	waitTimeout time.Duration
}

func NewLocker(store Store, ttlSeconds int, waitTimeout time.Duration) *Locker {
	return &Locker{
		store:       store,
		ttlSeconds:  ttlSeconds,
		waitTimeout: waitTimeout,
	}
}

// Acquire blocks until the lock for sessionID is held or the wait window
// elapses. The returned token is required to release.
func (l *Locker) Acquire(ctx context.Context, sessionID string) (string, error) {
	key := lockKey(sessionID)
	token := uuid.NewString()
	deadline := time.Now().Add(l.waitTimeout)

	for {
		ok, err := l.store.SetNX(ctx, key, token, l.ttlSeconds)
		if err != nil {
			return "", fmt.Errorf("lock acquire failed: %w", err)
		}
		if ok {
			return token, nil
		}
		if time.Now().After(deadline) {
			return "", ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

// Release frees the lock if it is still held with the given token.
func (l *Locker) Release(ctx context.Context, sessionID, token string) error {
	_, err := l.store.CompareAndDelete(ctx, lockKey(sessionID), token)
	return err
}

func lockKey(sessionID string) string {
	return "lock:session:" + sessionID
}
