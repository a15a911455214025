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

// runSummary collects product and at least one tier across turns, then
// summarizes the selected tier(s) over the benefits chunks. Two or more
// tiers yield a differences-focused summary via the same template.
func (e *Engine) runSummary(ctx context.Context, turn *Turn) error {
	sess := turn.Session

	if sess.SummarySlot == nil {
		sess.SummarySlot = &session.WorkingSlot{}
	}
	slot := sess.SummarySlot

	if err := e.ensureWorkingProduct(ctx, sess, slot, turn.Message); err != nil {
		return err
	}
	if err := e.ensureWorkingTiers(ctx, sess, slot, turn.Message, 1); err != nil {
		return err
	}

	if slot.Product == "" {
		sess.SummaryStatus = session.StatusInProgress
		turn.Reply = e.askClarify(ctx, sess, awaitProduct, "", nil, "summary")
		slog.Info("summary pending", "session_id", sess.SessionID, "await", awaitProduct)
		return nil
	}

	isCar := strings.EqualFold(slot.Product, catalog.ProductCar)
	if !isCar && len(slot.Tiers) < 1 {
		sess.SummaryStatus = session.StatusInProgress
		turn.Reply = e.askClarify(ctx, sess, awaitTiers, slot.Product, slot.Tiers, "summary")
		slog.Info("summary pending", "session_id", sess.SessionID, "await", awaitTiers)
		return nil
	}

	chunks, err := e.search.FetchBenefits(ctx, slot.Product)
	if err != nil {
		slog.Error("summary benefits retrieval failed", "error", err)
		chunks = nil
	}

	tiersText := strings.Join(slot.Tiers, ", ")
	if tiersText == "" && isCar {
		tiersText = "N/A"
	}

	answer, err := e.synthesize(ctx, defaultSummaryTemplate, map[string]string{
		"product":  slot.Product,
		"tiers":    tiersText,
		"question": turn.Message,
		"context":  retrieval.JoinContext(chunks),
	}, slot.Product)
	if err != nil {
		slog.Error("summary synthesis failed", "error", err)
		answer = ""
	}
	if answer == "" {
		if isCar {
			answer = "Here is a concise summary."
		} else {
			answer = "Which tier should I summarize?"
		}
	}
	turn.Reply = answer

	sess.SummaryStatus = session.StatusDone
	sess.SummarySlot = nil
	sess.LastCompleted = session.FlowSummary
	slog.Info("summary completed", "session_id", sess.SessionID, "product", slot.Product, "tiers", slot.Tiers)
	return nil
}
