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
	"fmt"
	"log/slog"

	"github.com/kadirpekel/advisor/pkg/retrieval"
)

const (
	infoProductFallbackQuestion = "Which product would you like to ask about: Travel, Maid, or Car?"
	infoSynthesisFallback       = "I couldn't find precise details. Could you clarify your question?"
)

// runInformation answers one question over the document corpus. With
// useFollowUpQuery set, the query constructed by the follow-up handler is
// used instead of the raw message as long as a product is known.
func (e *Engine) runInformation(ctx context.Context, turn *Turn, useFollowUpQuery bool) error {
	sess := turn.Session
	question := turn.Message

	fastPath := false
	if useFollowUpQuery && sess.FollowUpQuery != "" && sess.Product != "" {
		slog.Info("information fast path", "session_id", sess.SessionID, "query_len", len(sess.FollowUpQuery))
		question = sess.FollowUpQuery
		fastPath = true
	}

	if !fastPath {
		if sess.Product == "" {
			identified, clarifyQuestion, err := e.identifyProduct(ctx,
				fmt.Sprintf("Message: %s\nSession product: %s", turn.Message, sess.Product), sess.Product)
			if err != nil {
				return err
			}
			if identified == "" {
				// Remember the unanswered question so the next turn can
				// resume it once the user names a product.
				sess.InfoClarifyPending = true
				sess.InfoClarifyMessage = turn.Message
				if clarifyQuestion == "" {
					clarifyQuestion = infoProductFallbackQuestion
				}
				turn.Reply = clarifyQuestion
				return nil
			}
			sess.Product = identified
		}

		if sess.InfoClarifyPending {
			// The previous turn asked for a product and this message may be
			// the answer; if so, search with the original question instead
			// of the product word.
			check, _, err := e.identifyProduct(ctx,
				fmt.Sprintf("Message: %s", turn.Message), "")
			if err != nil {
				return err
			}
			if check != "" {
				sess.Product = check
				if sess.InfoClarifyMessage != "" {
					question = sess.InfoClarifyMessage
				}
				sess.ClearInfoClarification()
			}
		}
	}

	chunks, err := e.search.HybridSearch(ctx, question, sess.Product)
	if err != nil {
		return err
	}

	if len(chunks) == 0 {
		turn.Reply = fmt.Sprintf(
			"I couldn't find that in our %s documents. Could you specify a bit more so I can search precisely?",
			sess.Product)
		turn.Sources = ""
		return nil
	}

	tpl := templateFor(infoTemplates, defaultInfoTemplate, sess.Product)
	answer, err := e.synthesize(ctx, tpl, map[string]string{
		"question": question,
		"context":  retrieval.JoinContext(chunks),
		"product":  sess.Product,
	}, sess.Product)
	if err != nil {
		slog.Error("information synthesis failed", "error", err)
		answer = ""
	}
	if answer == "" {
		answer = infoSynthesisFallback
	}

	turn.Reply = answer
	turn.Sources = retrieval.JoinSources(chunks)
	return nil
}
