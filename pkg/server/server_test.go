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

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/advisor/pkg/flow"
	"github.com/kadirpekel/advisor/pkg/guard"
	"github.com/kadirpekel/advisor/pkg/session"
)

type memStore struct {
	sessions map[string]*session.Session
	history  []session.HistoryEntry
	pingErr  error
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]*session.Session)}
}

func (m *memStore) Load(ctx context.Context, sessionID string) (*session.Session, bool, error) {
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, false, nil
	}
	copied := *s
	return &copied, true, nil
}

func (m *memStore) Save(ctx context.Context, s *session.Session) error {
	copied := *s
	m.sessions[s.SessionID] = &copied
	return nil
}

func (m *memStore) AppendHistory(ctx context.Context, entry session.HistoryEntry) error {
	m.history = append(m.history, entry)
	return nil
}

func (m *memStore) LoadHistory(ctx context.Context, sessionID string, limit int) ([]session.HistoryEntry, error) {
	return nil, nil
}

func (m *memStore) Ping(ctx context.Context) error { return m.pingErr }

type noopCache struct{ pingErr error }

func (c noopCache) Get(ctx context.Context, sessionID string) (*session.Session, bool, error) {
	return nil, false, nil
}
func (c noopCache) Set(ctx context.Context, s *session.Session) error { return nil }
func (c noopCache) Delete(ctx context.Context, sessionID string) error { return nil }
func (c noopCache) Ping(ctx context.Context) error { return c.pingErr }

type fakeEngine struct {
	reply   string
	sources string
	err     error
	calls   int
}

func (f *fakeEngine) HandleTurn(ctx context.Context, sess *session.Session, message string) (*flow.Turn, error) {
	f.calls++
	return &flow.Turn{Session: sess, Message: message, Reply: f.reply, Sources: f.sources}, f.err
}

func newTestServer(engine TurnHandler, store *memStore, cache noopCache) (*Server, *guard.MemoryStore) {
	guardStore := guard.NewMemoryStore()
	sessions := session.NewService(store, cache, 15*time.Minute, time.UTC)
	locker := guard.NewLocker(guardStore, 15, 50*time.Millisecond)
	return New(":0", engine, sessions, locker), guardStore
}

func postChat(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestChat_HappyPath(t *testing.T) {
	engine := &fakeEngine{reply: "Travel Gold covers overseas medical.", sources: "travel.md"}
	store := newMemStore()
	srv, _ := newTestServer(engine, store, noopCache{})

	rec := postChat(t, srv.Routes(), `{"session_id":"s1","message":"what does gold cover?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Travel Gold covers overseas medical.", resp.Response)
	assert.Equal(t, "travel.md", resp.Sources)

	assert.Contains(t, store.sessions, "s1")
	require.Len(t, store.history, 1)
	assert.Equal(t, "what does gold cover?", store.history[0].User)
}

func TestChat_HiResetsAndGreets(t *testing.T) {
	engine := &fakeEngine{reply: "unused"}
	store := newMemStore()
	stale := session.New("s1", time.Now())
	stale.Product = "Travel"
	require.NoError(t, store.Save(context.Background(), stale))

	srv, _ := newTestServer(engine, store, noopCache{})
	rec := postChat(t, srv.Routes(), `{"session_id":"s1","message":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.Response, "Good "))
	assert.Empty(t, resp.Sources)
	assert.Equal(t, 0, engine.calls)
	assert.Empty(t, store.sessions["s1"].Product)
}

func TestChat_BadRequest(t *testing.T) {
	srv, _ := newTestServer(&fakeEngine{}, newMemStore(), noopCache{})

	for _, body := range []string{`{}`, `{"session_id":"s1"}`, `not json`} {
		rec := postChat(t, srv.Routes(), body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body: %s", body)
	}
}

func TestChat_BusyReturns503(t *testing.T) {
	srv, guardStore := newTestServer(&fakeEngine{reply: "ok"}, newMemStore(), noopCache{})

	// Hold the session lock so the request cannot acquire it.
	blocker := guard.NewLocker(guardStore, 60, time.Second)
	_, err := blocker.Acquire(context.Background(), "s1")
	require.NoError(t, err)

	rec := postChat(t, srv.Routes(), `{"session_id":"s1","message":"hello"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Service busy")
}

func TestChat_EngineErrorReturns500(t *testing.T) {
	srv, _ := newTestServer(&fakeEngine{err: assert.AnError}, newMemStore(), noopCache{})

	rec := postChat(t, srv.Routes(), `{"session_id":"s1","message":"hello"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(&fakeEngine{}, newMemStore(), noopCache{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestReady_ReportsDependencyFailures(t *testing.T) {
	store := newMemStore()
	store.pingErr = assert.AnError
	srv, _ := newTestServer(&fakeEngine{}, store, noopCache{})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"error"`)
	assert.Contains(t, rec.Body.String(), "mongo")
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(&fakeEngine{}, newMemStore(), noopCache{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
