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
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const (
	sessionsCollection = "sessions"
	historyCollection  = "conversation_history"
)

// MongoStore persists sessions and conversation history in MongoDB.
type MongoStore struct {
	client   *mongo.Client
	sessions *mongo.Collection
	history  *mongo.Collection
}

// NewMongoStore connects to MongoDB and ensures the indexes the query
// patterns rely on.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	db := client.Database(database)
	store := &MongoStore{
		client:   client,
		sessions: db.Collection(sessionsCollection),
		history:  db.Collection(historyCollection),
	}

	if err := store.ensureIndexes(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

func (m *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := m.sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "last_active", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}

	_, err = m.history.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "session_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "timestamp", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create history indexes: %w", err)
	}

	return nil
}

// Load reads one session document. History is not included; callers load it
// separately.
func (m *MongoStore) Load(ctx context.Context, sessionID string) (*Session, bool, error) {
	var s Session
	err := m.sessions.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if s.Slots == nil {
		s.Slots = make(map[string]SlotValue)
	}
	return &s, true, nil
}

// Save upserts the session document. created_at is only written on insert,
// so repeated saves keep the original creation time.
func (m *MongoStore) Save(ctx context.Context, s *Session) error {
	update := bson.M{
		"$set": bson.M{
			"product":               s.Product,
			"slots":                 s.Slots,
			"recommendation_status": s.RecommendationStatus,
			"comparison_status":     s.ComparisonStatus,
			"summary_status":        s.SummaryStatus,
			"comparison_slot":       s.ComparisonSlot,
			"summary_slot":          s.SummarySlot,
			"last_question":         s.LastQuestion,
			"info_clarify_pending":  s.InfoClarifyPending,
			"info_clarify_message":  s.InfoClarifyMessage,
			"follow_up_query":       s.FollowUpQuery,
			"last_completed":        s.LastCompleted,
			"wants_detail":          s.WantsDetail,
			"comparison_history":    s.ComparisonHistory,
			"last_active":           s.LastActive,
		},
		"$setOnInsert": bson.M{
			"created_at": s.CreatedAt,
		},
	}

	_, err := m.sessions.UpdateOne(ctx,
		bson.M{"session_id": s.SessionID},
		update,
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", s.SessionID, err)
	}
	return nil
}

// AppendHistory inserts one conversation turn.
func (m *MongoStore) AppendHistory(ctx context.Context, entry HistoryEntry) error {
	if _, err := m.history.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to append history for %s: %w", entry.SessionID, err)
	}
	return nil
}

// LoadHistory returns the most recent turns in chronological order.
func (m *MongoStore) LoadHistory(ctx context.Context, sessionID string, limit int) ([]HistoryEntry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := m.history.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", sessionID, err)
	}

	var entries []HistoryEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode history for %s: %w", sessionID, err)
	}

	// Stored newest first, returned oldest first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Ping verifies connectivity to the primary.
func (m *MongoStore) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the underlying client.
func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

var _ Store = (*MongoStore)(nil)
