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
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	sessions map[string]Session
	history  []HistoryEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]Session)}
}

func (f *fakeStore) Load(ctx context.Context, sessionID string) (*Session, bool, error) {
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, false, nil
	}
	copied := s
	return &copied, true, nil
}

func (f *fakeStore) Save(ctx context.Context, s *Session) error {
	stored := *s
	if existing, ok := f.sessions[s.SessionID]; ok {
		stored.CreatedAt = existing.CreatedAt
	}
	stored.History = nil
	f.sessions[s.SessionID] = stored
	return nil
}

func (f *fakeStore) AppendHistory(ctx context.Context, entry HistoryEntry) error {
	f.history = append(f.history, entry)
	return nil
}

func (f *fakeStore) LoadHistory(ctx context.Context, sessionID string, limit int) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	for _, e := range f.history {
		if e.SessionID == sessionID {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

type fakeCache struct {
	entries map[string]Session
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]Session)}
}

func (f *fakeCache) Get(ctx context.Context, sessionID string) (*Session, bool, error) {
	s, ok := f.entries[sessionID]
	if !ok {
		return nil, false, nil
	}
	copied := s
	return &copied, true, nil
}

func (f *fakeCache) Set(ctx context.Context, s *Session) error {
	f.entries[s.SessionID] = *s
	return nil
}

func (f *fakeCache) Delete(ctx context.Context, sessionID string) error {
	delete(f.entries, sessionID)
	return nil
}

func (f *fakeCache) Ping(ctx context.Context) error { return nil }

func newTestService(t *testing.T) (*Service, *fakeStore, *fakeCache, *time.Time) {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Singapore")
	require.NoError(t, err)

	now := time.Date(2025, 6, 2, 10, 0, 0, 0, loc)
	store := newFakeStore()
	cache := newFakeCache()
	svc := NewService(store, cache, 900*time.Second, loc,
		WithNowFunc(func() time.Time { return now }))
	return svc, store, cache, &now
}

func TestService_GetCreatesLazily(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", sess.SessionID)
	assert.NotNil(t, sess.Slots)

	// Not persisted until first save.
	assert.Empty(t, store.sessions)

	require.NoError(t, svc.Save(ctx, sess))
	assert.Len(t, store.sessions, 1)
}

func TestService_GetCacheFirst(t *testing.T) {
	svc, store, cache, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	sess.Product = "Travel"
	require.NoError(t, svc.Save(ctx, sess))

	// A store-side change is invisible while the cache copy is live.
	stored := store.sessions["s1"]
	stored.Product = "Maid"
	store.sessions["s1"] = stored

	got, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Travel", got.Product)

	// Dropping the cache falls through to the store and repopulates.
	require.NoError(t, cache.Delete(ctx, "s1"))
	got, err = svc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Maid", got.Product)
	_, hit, _ := cache.Get(ctx, "s1")
	assert.True(t, hit)
}

func TestService_IdleReset(t *testing.T) {
	svc, _, _, now := newTestService(t)
	ctx := context.Background()

	sess, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	sess.Product = "Travel"
	sess.RecommendationStatus = StatusInProgress
	sess.Slots["destination"] = SlotValue{Value: "Japan", Valid: true}
	require.NoError(t, svc.Save(ctx, sess))
	require.NoError(t, svc.AppendHistory(ctx, sess, "hello", "hi there"))

	// Exactly at the threshold the session is untouched.
	*now = now.Add(900 * time.Second)
	got, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Travel", got.Product)

	// Past the threshold transient state is cleared but history survives.
	*now = now.Add(901 * time.Second)
	got, err = svc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, got.Product)
	assert.Empty(t, got.RecommendationStatus)
	assert.Empty(t, got.Slots)
	assert.Len(t, got.History, 1)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestService_AppendHistoryTruncatesAndBounds(t *testing.T) {
	svc, store, _, now := newTestService(t)
	ctx := context.Background()

	sess, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, svc.Save(ctx, sess))

	long := strings.Repeat("a", 150)
	for i := 0; i < 7; i++ {
		*now = now.Add(time.Second)
		require.NoError(t, svc.AppendHistory(ctx, sess, "q", long))
	}

	assert.Len(t, sess.History, HistoryWindow)
	assert.Len(t, store.history, 7)
	assert.Len(t, sess.History[0].Assistant, HistoryTruncateAt)
}

func TestService_ResetPreservesHistory(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	sess.Product = "Maid"
	sess.SummaryStatus = StatusInProgress
	sess.SummarySlot = &WorkingSlot{Product: "Maid", Tiers: []string{"Basic"}}
	require.NoError(t, svc.Save(ctx, sess))
	require.NoError(t, svc.AppendHistory(ctx, sess, "u", "a"))

	require.NoError(t, svc.Reset(ctx, sess))
	assert.Empty(t, sess.Product)
	assert.Empty(t, sess.SummaryStatus)
	assert.Nil(t, sess.SummarySlot)
	assert.Len(t, sess.History, 1)
}

func TestSession_ActiveStatus(t *testing.T) {
	s := New("x", time.Now())
	_, ok := s.ActiveStatus()
	assert.False(t, ok)

	s.ComparisonStatus = StatusInProgress
	flow, ok := s.ActiveStatus()
	assert.True(t, ok)
	assert.Equal(t, FlowComparison, flow)

	s.ComparisonStatus = StatusDone
	_, ok = s.ActiveStatus()
	assert.False(t, ok)
}
