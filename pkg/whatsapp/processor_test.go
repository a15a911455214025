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

package whatsapp

import (
	"context"
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

func (m *memStore) Ping(ctx context.Context) error { return nil }

type noopCache struct{}

func (noopCache) Get(ctx context.Context, sessionID string) (*session.Session, bool, error) {
	return nil, false, nil
}
func (noopCache) Set(ctx context.Context, s *session.Session) error { return nil }
func (noopCache) Delete(ctx context.Context, sessionID string) error { return nil }
func (noopCache) Ping(ctx context.Context) error { return nil }

type fakeEngine struct {
	reply string
	err   error
	calls int
}

func (f *fakeEngine) HandleTurn(ctx context.Context, sess *session.Session, message string) (*flow.Turn, error) {
	f.calls++
	return &flow.Turn{Session: sess, Message: message, Reply: f.reply}, f.err
}

type captureSender struct {
	sent []string
}

func (c *captureSender) Send(ctx context.Context, recipient, body string) error {
	c.sent = append(c.sent, body)
	return nil
}

func newTestProcessor(engine TurnHandler, maxPerWindow int) (*Processor, *memStore, *captureSender) {
	store := newMemStore()
	guardStore := guard.NewMemoryStore()
	sender := &captureSender{}
	sessions := session.NewService(store, noopCache{}, 15*time.Minute, time.UTC)
	p := NewProcessor(engine,
		sessions,
		guard.NewRateLimiter(guardStore, 60, maxPerWindow),
		guard.NewLocker(guardStore, 15, 5*time.Second),
		sender)
	return p, store, sender
}

func TestProcessor_RunsTurnAndPersists(t *testing.T) {
	engine := &fakeEngine{reply: "Travel covers trip cancellation."}
	p, store, sender := newTestProcessor(engine, 10)

	p.Process(context.Background(), Inbound{Message: "what does travel cover?", Phone: "6591234567"})

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Travel covers trip cancellation.", sender.sent[0])
	assert.Equal(t, 1, engine.calls)
	assert.Contains(t, store.sessions, "whatsapp_6591234567")
	require.Len(t, store.history, 1)
	assert.Equal(t, "what does travel cover?", store.history[0].User)
}

func TestProcessor_HiResetsSession(t *testing.T) {
	engine := &fakeEngine{reply: "should not be used"}
	p, store, sender := newTestProcessor(engine, 10)

	stale := session.New("whatsapp_6591234567", time.Now())
	stale.Product = "Travel"
	stale.RecommendationStatus = session.StatusInProgress
	require.NoError(t, store.Save(context.Background(), stale))

	p.Process(context.Background(), Inbound{Message: "Hi", Phone: "6591234567"})

	require.Len(t, sender.sent, 1)
	assert.True(t, strings.HasPrefix(sender.sent[0], "Good "), "expected a greeting, got %q", sender.sent[0])
	assert.Equal(t, 0, engine.calls)

	saved := store.sessions["whatsapp_6591234567"]
	require.NotNil(t, saved)
	assert.Empty(t, saved.Product)
	assert.Empty(t, saved.RecommendationStatus)
}

func TestProcessor_RateLimited(t *testing.T) {
	engine := &fakeEngine{reply: "answer"}
	p, _, sender := newTestProcessor(engine, 1)

	p.Process(context.Background(), Inbound{Message: "first", Phone: "6591234567"})
	p.Process(context.Background(), Inbound{Message: "second", Phone: "6591234567"})

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "answer", sender.sent[0])
	assert.Equal(t, throttleReply, sender.sent[1])
	assert.Equal(t, 1, engine.calls)
}

func TestProcessor_EngineErrorFallsBack(t *testing.T) {
	engine := &fakeEngine{err: assert.AnError}
	p, _, sender := newTestProcessor(engine, 10)

	p.Process(context.Background(), Inbound{Message: "hello there", Phone: "6591234567"})

	require.Len(t, sender.sent, 1)
	assert.Equal(t, processingErrMsg, sender.sent[0])
}
