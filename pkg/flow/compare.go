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

package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kadirpekel/advisor/pkg/catalog"
	"github.com/kadirpekel/advisor/pkg/retrieval"
	"github.com/kadirpekel/advisor/pkg/session"
)

const comparisonHistoryCap = 10

// runComparison collects product and two tiers across turns, then compares
// them over the benefits chunks. While collection is incomplete the
// comparison status stays in progress and the router is bypassed.
func (e *Engine) runComparison(ctx context.Context, turn *Turn) error {
	sess := turn.Session

	if sess.ComparisonSlot == nil {
		sess.ComparisonSlot = &session.WorkingSlot{}
	}
	slot := sess.ComparisonSlot

	if err := e.ensureWorkingProduct(ctx, sess, slot, turn.Message); err != nil {
		return err
	}
	if err := e.ensureWorkingTiers(ctx, sess, slot, turn.Message, 2); err != nil {
		return err
	}

	if slot.Product == "" {
		sess.ComparisonStatus = session.StatusInProgress
		turn.Reply = e.askClarify(ctx, sess, awaitProduct, "", nil, "comparison")
		slog.Info("comparison pending", "session_id", sess.SessionID, "await", awaitProduct)
		return nil
	}

	isCar := strings.EqualFold(slot.Product, catalog.ProductCar)
	if !isCar && len(slot.Tiers) < 2 {
		sess.ComparisonStatus = session.StatusInProgress
		turn.Reply = e.askClarify(ctx, sess, awaitTiers, slot.Product, slot.Tiers, "comparison")
		slog.Info("comparison pending", "session_id", sess.SessionID, "await", awaitTiers, "known_tiers", slot.Tiers)
		return nil
	}
	if isCar && len(slot.Tiers) > 0 {
		slog.Info("comparison ignoring tiers for Car", "tiers", slot.Tiers)
		slot.Tiers = nil
	}

	chunks, err := e.search.FetchBenefits(ctx, slot.Product)
	if err != nil {
		slog.Error("comparison benefits retrieval failed", "error", err)
		chunks = nil
	}

	tiersText := strings.Join(slot.Tiers, ", ")
	if tiersText == "" && isCar {
		tiersText = "N/A"
	}

	tpl := templateFor(compareTemplates, defaultCompareTemplate, slot.Product)
	answer, err := e.synthesize(ctx, tpl, map[string]string{
		"product":  slot.Product,
		"tiers":    tiersText,
		"question": turn.Message,
		"context":  retrieval.JoinContext(chunks),
	}, slot.Product)
	if err != nil {
		slog.Error("comparison synthesis failed", "error", err)
		answer = ""
	}
	if answer == "" {
		if isCar {
			answer = "Here is a concise comparison."
		} else {
			answer = "Which two tiers should I compare?"
		}
	}
	turn.Reply = answer

	record := session.ComparisonRecord{
		Product:   slot.Product,
		Tiers:     append([]string(nil), slot.Tiers...),
		Timestamp: e.now(),
	}
	sess.ComparisonHistory = append(sess.ComparisonHistory, record)
	if len(sess.ComparisonHistory) > comparisonHistoryCap {
		sess.ComparisonHistory = sess.ComparisonHistory[len(sess.ComparisonHistory)-comparisonHistoryCap:]
	}

	sess.ComparisonStatus = session.StatusDone
	sess.ComparisonSlot = nil
	sess.LastCompleted = session.FlowComparison
	slog.Info("comparison completed", "session_id", sess.SessionID, "product", record.Product, "tiers", record.Tiers)
	return nil
}
