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
	"log/slog"
	"time"

	"github.com/kadirpekel/advisor/pkg/observability"
)

const (
	// HistoryWindow is how many turns ride along with the session.
	HistoryWindow = 5

	// HistoryTruncateAt caps assistant text stored in history.
	HistoryTruncateAt = 100
)

// Service is the cache-first session access layer. All mutation happens
// under the caller's per-session lock.
type Service struct {
	store         Store
	cache         Cache
	idleThreshold time.Duration
	location      *time.Location
	now           func() time.Time
}

type ServiceOption func(*Service)

// WithNowFunc overrides the clock. Tests use this to cross the idle
// threshold without sleeping.
func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store Store, cache Cache, idleThreshold time.Duration, location *time.Location, opts ...ServiceOption) *Service {
	s := &Service{
		store:         store,
		cache:         cache,
		idleThreshold: idleThreshold,
		location:      location,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) nowLocal() time.Time {
	return s.now().In(s.location)
}

// Now returns the current time in the service timezone.
func (s *Service) Now() time.Time {
	return s.nowLocal()
}

// Get returns the session for an identifier, creating it lazily. Sessions
// idle past the threshold come back with transient state cleared.
func (s *Service) Get(ctx context.Context, sessionID string) (*Session, error) {
	sess, hit, err := s.cache.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if hit {
		observability.SessionCacheHits.Inc()
		return s.maybeIdleReset(ctx, sess)
	}
	observability.SessionCacheMisses.Inc()

	sess, found, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !found {
		sess = New(sessionID, s.nowLocal())
		return sess, nil
	}

	history, err := s.store.LoadHistory(ctx, sessionID, HistoryWindow)
	if err != nil {
		return nil, err
	}
	sess.History = history

	if err := s.cache.Set(ctx, sess); err != nil {
		slog.Warn("session cache populate failed", "session_id", sessionID, "error", err)
	}

	return s.maybeIdleReset(ctx, sess)
}

func (s *Service) maybeIdleReset(ctx context.Context, sess *Session) (*Session, error) {
	if sess.LastActive.IsZero() || s.nowLocal().Sub(sess.LastActive) <= s.idleThreshold {
		return sess, nil
	}

	slog.Info("resetting idle session", "session_id", sess.SessionID)
	sess.ResetTransient()
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Save persists the session and refreshes the cache copy.
func (s *Service) Save(ctx context.Context, sess *Session) error {
	sess.LastActive = s.nowLocal()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = sess.LastActive
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return err
	}
	if err := s.cache.Set(ctx, sess); err != nil {
		slog.Warn("session cache update failed", "session_id", sess.SessionID, "error", err)
	}
	return nil
}

// AppendHistory records one turn, truncating the assistant text for
// storage, and keeps the in-memory window bounded.
func (s *Service) AppendHistory(ctx context.Context, sess *Session, user, assistant string) error {
	stored := assistant
	if len(stored) > HistoryTruncateAt {
		stored = stored[:HistoryTruncateAt]
	}

	entry := HistoryEntry{
		SessionID: sess.SessionID,
		Timestamp: s.nowLocal(),
		User:      user,
		Assistant: stored,
	}

	if err := s.store.AppendHistory(ctx, entry); err != nil {
		return err
	}

	sess.History = append(sess.History, entry)
	if len(sess.History) > HistoryWindow {
		sess.History = sess.History[len(sess.History)-HistoryWindow:]
	}
	sess.LastActive = entry.Timestamp

	if err := s.cache.Set(ctx, sess); err != nil {
		slog.Warn("session cache update failed", "session_id", sess.SessionID, "error", err)
	}
	return nil
}

// Reset clears transient state while keeping history, and persists.
func (s *Service) Reset(ctx context.Context, sess *Session) error {
	sess.ResetTransient()
	return s.Save(ctx, sess)
}

// Ping checks both backing stores.
func (s *Service) Ping(ctx context.Context) (storeErr, cacheErr error) {
	return s.store.Ping(ctx), s.cache.Ping(ctx)
}
