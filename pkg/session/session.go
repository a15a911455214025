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

// Package session holds the conversational session document and its
// persistence: a durable Mongo store for the canonical record plus
// conversation history, a Redis cache for low-latency reads, and a service
// that ties the two together with idle reset.
package session

import (
	"context"
	"time"
)

// Sub-flow statuses.
const (
	StatusInProgress = "in_progress"
	StatusDone       = "done"
)

// Sub-flow names, used for status bookkeeping and last_completed.
const (
	FlowRecommendation = "recommendation"
	FlowComparison     = "comparison"
	FlowSummary        = "summary"
	FlowInformation    = "information"
)

// SlotValue is a captured slot. Valid flips to true only after the value
// passes validation.
type SlotValue struct {
	Value string `bson:"value" json:"value"`
	Valid bool   `bson:"valid" json:"valid"`
}

// WorkingSlot is the ephemeral product+tiers record used by the comparison
// and summary sub-flows.
type WorkingSlot struct {
	Product string   `bson:"product" json:"product"`
	Tiers   []string `bson:"tiers" json:"tiers"`
}

// ComparisonRecord is one completed comparison, retained capped.
type ComparisonRecord struct {
	Product   string    `bson:"product" json:"product"`
	Tiers     []string  `bson:"tiers" json:"tiers"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// HistoryEntry is one conversation turn. Assistant text is truncated before
// storage.
type HistoryEntry struct {
	SessionID string    `bson:"session_id" json:"session_id"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	User      string    `bson:"user" json:"user"`
	Assistant string    `bson:"assistant" json:"assistant"`
}

// Session is the per-conversation state document.
type Session struct {
	SessionID string `bson:"session_id" json:"session_id"`

	Product string               `bson:"product,omitempty" json:"product,omitempty"`
	Slots   map[string]SlotValue `bson:"slots,omitempty" json:"slots,omitempty"`

	RecommendationStatus string `bson:"recommendation_status,omitempty" json:"recommendation_status,omitempty"`
	ComparisonStatus     string `bson:"comparison_status,omitempty" json:"comparison_status,omitempty"`
	SummaryStatus        string `bson:"summary_status,omitempty" json:"summary_status,omitempty"`

	ComparisonSlot *WorkingSlot `bson:"comparison_slot,omitempty" json:"comparison_slot,omitempty"`
	SummarySlot    *WorkingSlot `bson:"summary_slot,omitempty" json:"summary_slot,omitempty"`

	// LastQuestion disambiguates bare yes/no replies during slot filling.
	LastQuestion string `bson:"last_question,omitempty" json:"last_question,omitempty"`

	// InfoClarifyPending and InfoClarifyMessage carry the information
	// sub-flow's product clarification across one turn.
	InfoClarifyPending bool   `bson:"info_clarify_pending,omitempty" json:"info_clarify_pending,omitempty"`
	InfoClarifyMessage string `bson:"info_clarify_message,omitempty" json:"info_clarify_message,omitempty"`

	// FollowUpQuery is a rewritten standalone retrieval query valid for a
	// single turn.
	FollowUpQuery string `bson:"follow_up_query,omitempty" json:"follow_up_query,omitempty"`

	LastCompleted string `bson:"last_completed,omitempty" json:"last_completed,omitempty"`

	// WantsDetail records the user's stated preference for detailed
	// explanations while filling slots.
	WantsDetail bool `bson:"wants_detail,omitempty" json:"wants_detail,omitempty"`

	ComparisonHistory []ComparisonRecord `bson:"comparison_history,omitempty" json:"comparison_history,omitempty"`

	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	LastActive time.Time `bson:"last_active" json:"last_active"`

	// History is the last few turns, loaded alongside the document. It is
	// persisted in its own collection, not on the session record.
	History []HistoryEntry `bson:"-" json:"history,omitempty"`
}

// New returns a fresh session for the given identifier.
func New(sessionID string, now time.Time) *Session {
	return &Session{
		SessionID:   sessionID,
		Slots:       make(map[string]SlotValue),
		WantsDetail: true,
		CreatedAt:   now,
		LastActive:  now,
	}
}

// ActiveStatus returns the sub-flow currently in progress, if any.
func (s *Session) ActiveStatus() (string, bool) {
	switch {
	case s.RecommendationStatus == StatusInProgress:
		return FlowRecommendation, true
	case s.ComparisonStatus == StatusInProgress:
		return FlowComparison, true
	case s.SummaryStatus == StatusInProgress:
		return FlowSummary, true
	}
	return "", false
}

// ResetTransient clears everything except identity, history and created_at.
func (s *Session) ResetTransient() {
	s.Product = ""
	s.Slots = make(map[string]SlotValue)
	s.RecommendationStatus = ""
	s.ComparisonStatus = ""
	s.SummaryStatus = ""
	s.ComparisonSlot = nil
	s.SummarySlot = nil
	s.LastQuestion = ""
	s.InfoClarifyPending = false
	s.InfoClarifyMessage = ""
	s.FollowUpQuery = ""
	s.LastCompleted = ""
	s.WantsDetail = true
}

// ClearInfoClarification drops a stale product clarification continuation.
func (s *Session) ClearInfoClarification() {
	s.InfoClarifyPending = false
	s.InfoClarifyMessage = ""
}

// Store is the durable persistence surface.
type Store interface {
	Load(ctx context.Context, sessionID string) (*Session, bool, error)
	Save(ctx context.Context, s *Session) error
	AppendHistory(ctx context.Context, entry HistoryEntry) error
	LoadHistory(ctx context.Context, sessionID string, limit int) ([]HistoryEntry, error)
	Ping(ctx context.Context) error
}

// Cache is the low-latency session copy.
type Cache interface {
	Get(ctx context.Context, sessionID string) (*Session, bool, error)
	Set(ctx context.Context, s *Session) error
	Delete(ctx context.Context, sessionID string) error
	Ping(ctx context.Context) error
}
