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
	"strings"

	"github.com/kadirpekel/advisor/pkg/catalog"
	"github.com/kadirpekel/advisor/pkg/prompt"
	"github.com/kadirpekel/advisor/pkg/retrieval"
	"github.com/kadirpekel/advisor/pkg/session"
)

const (
	recProductFallbackQuestion = "What type of insurance are you interested in for the recommendation: Travel or Maid?"
	recAlreadyDoneReply        = "You already have a recommendation. How else can I help you?"

	recBenefitsFallbackLimit = 1500
	carBenefitsFallbackLimit = 4096
)

var recommendationRestartKeywords = []string{
	"new recommendation", "fresh recommendation", "start over", "restart", "again", "different recommendation",
}

// runRecommendation drives the questionnaire: extract slots from the
// message, validate new values, ask for the next missing slot, and emit
// the recommendation once everything is filled.
func (e *Engine) runRecommendation(ctx context.Context, turn *Turn) error {
	sess := turn.Session

	identified, clarifyQuestion, err := e.identifyProduct(ctx,
		fmt.Sprintf("Message: %s\nSession product: %s", turn.Message, sess.Product), sess.Product)
	if err != nil {
		return err
	}

	switch {
	case identified != "" && identified != sess.Product:
		// Product switch mid-questionnaire drops collected answers.
		if sess.Product != "" {
			slog.Info("recommendation product switch", "from", sess.Product, "to", identified)
		}
		sess.Slots = make(map[string]session.SlotValue)
		sess.RecommendationStatus = ""
		sess.Product = identified
	case identified != "":
		sess.Product = identified
	case sess.Product == "":
		if clarifyQuestion == "" {
			clarifyQuestion = recProductFallbackQuestion
		}
		sess.RecommendationStatus = session.StatusInProgress
		turn.Reply = clarifyQuestion
		return nil
	}

	if sess.RecommendationStatus == session.StatusDone {
		if !wantsNewRecommendation(turn.Message) {
			turn.Reply = recAlreadyDoneReply
			return nil
		}
		sess.RecommendationStatus = ""
		sess.Slots = make(map[string]session.SlotValue)
	}

	requiredSlots := e.catalog.RequiredSlots(sess.Product)
	if len(requiredSlots) > 0 && sess.RecommendationStatus != session.StatusInProgress {
		sess.RecommendationStatus = session.StatusInProgress
	}

	if strings.EqualFold(sess.Product, catalog.ProductCar) {
		return e.recommendCar(ctx, turn)
	}

	extraction, err := e.extractSlots(ctx, sess, turn.Message, requiredSlots)
	if err != nil {
		return err
	}
	if explanation := extraction.String("explanation"); extraction.Bool("user_needs_explanation") && explanation != "" {
		turn.Reply = explanation
		return nil
	}

	var toValidate []string
	for name, value := range extraction.StringMap("slots") {
		if !containsFold(requiredSlots, name) {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			delete(sess.Slots, name)
			continue
		}
		existing := sess.Slots[name]
		if existing.Value == value && existing.Valid {
			continue
		}
		sess.Slots[name] = session.SlotValue{Value: value}
		toValidate = append(toValidate, name)
	}

	// Required-slot order keeps validation deterministic.
	for _, name := range requiredSlots {
		if !containsFold(toValidate, name) {
			continue
		}
		verdict, err := e.validateSlot(ctx, sess, name, sess.Slots[name].Value, turn.Message)
		if err != nil {
			return err
		}
		if verdict.Bool("valid") && verdict.String("normalized_value") != "" {
			sess.Slots[name] = session.SlotValue{Value: verdict.String("normalized_value"), Valid: true}
			continue
		}

		delete(sess.Slots, name)
		question := verdict.String("question")
		// travel_duration uses the validator's question verbatim; other
		// slots get a generic retry when the validator stays silent.
		if name != "travel_duration" && question == "" {
			question = fmt.Sprintf(
				"I'm sorry, I didn't understand that. Could you please provide a valid value for %s?",
				strings.ReplaceAll(name, "_", " "))
		}
		slog.Info("slot validation failed", "session_id", sess.SessionID, "slot", name)
		turn.Reply = question
		return nil
	}

	var missing []string
	for _, name := range requiredSlots {
		if slot, ok := sess.Slots[name]; !ok || slot.Value == "" || !slot.Valid {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		question, err := e.askSlotQuestion(ctx, sess, missing[0])
		if err != nil {
			return err
		}
		sess.LastQuestion = question
		turn.Reply = question
		return nil
	}

	return e.completeRecommendation(ctx, turn)
}

func wantsNewRecommendation(message string) bool {
	lower := strings.ToLower(message)
	for _, keyword := range recommendationRestartKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return strings.Contains(lower, "recommendation")
}

// extractSlots runs the slot extractor over the current message with the
// product's slot schema and the last asked question for yes/no context.
func (e *Engine) extractSlots(ctx context.Context, sess *session.Session, message string, requiredSlots []string) (prompt.Result, error) {
	product, _ := e.catalog.Lookup(sess.Product)

	var slotInfo []string
	for _, name := range requiredSlots {
		current := sess.Slots[name].Value
		if current == "" {
			current = "not filled"
		}
		description := product.Slots[name].Description
		if description == "" {
			description = fmt.Sprintf("Information about %s", name)
		}
		slotInfo = append(slotInfo, fmt.Sprintf("- %s: %s (current: %s)", name, description, current))
	}

	lastQuestion := sess.LastQuestion
	if lastQuestion == "" {
		lastQuestion = "None"
	}

	contextText := fmt.Sprintf(
		"Product: %s\nUser message: %s\nLast bot question: %s\n\nSlots to extract/update:\n%s\n\nSlot schema (JSON):\n%s",
		sess.Product, message, lastQuestion, strings.Join(slotInfo, "\n"), e.catalog.SlotMetaJSON(sess.Product))

	return e.runner.Run(ctx, prompt.TaskExtractSlots, prompt.Context{
		Text:    contextText,
		Product: sess.Product,
	})
}

// validateSlot validates one freshly extracted value. The current date is
// included so relative durations and dates can be checked.
func (e *Engine) validateSlot(ctx context.Context, sess *session.Session, name, value, message string) (prompt.Result, error) {
	product, _ := e.catalog.Lookup(sess.Product)

	lines := []string{
		fmt.Sprintf("Product: %s", sess.Product),
		fmt.Sprintf("Slot: %s", name),
		fmt.Sprintf("Value: %s", value),
		fmt.Sprintf("User message: %s", message),
		fmt.Sprintf("Current date (Asia/Singapore): %s", e.nowLocal().Format("02 January 2006")),
	}
	if rule := product.Slots[name].ValidationRule; rule != "" {
		lines = append(lines, "Validation rules:\n"+rule)
	}

	return e.runner.Run(ctx, prompt.TaskValidateSlot, prompt.Context{
		Text:    strings.Join(lines, "\n"),
		Product: sess.Product,
	})
}

// askSlotQuestion returns the canonical question for a slot, or generates
// one when the catalog has no preferred phrasing.
func (e *Engine) askSlotQuestion(ctx context.Context, sess *session.Session, name string) (string, error) {
	product, _ := e.catalog.Lookup(sess.Product)
	meta := product.Slots[name]
	if meta.Question != "" {
		return meta.Question, nil
	}

	description := meta.Description
	if description == "" {
		description = fmt.Sprintf("information about %s", name)
	}

	var filled []string
	for slotName, slot := range sess.Slots {
		if slot.Value != "" {
			filled = append(filled, fmt.Sprintf("%s=%s", slotName, slot.Value))
		}
	}

	contextText := fmt.Sprintf(
		"Product: %s\nMissing slot: %s\nSlot description: %s\nCurrent slots: %s\nUser wants detailed explanations: %t",
		sess.Product, name, description, strings.Join(filled, ", "), sess.WantsDetail)

	result, err := e.runner.Run(ctx, prompt.TaskAskQuestion, prompt.Context{
		Text:    contextText,
		Product: sess.Product,
	})
	if err != nil {
		return "", err
	}

	question := strings.TrimSpace(result.String("question"))
	if question == "" {
		question = fmt.Sprintf("Could you please provide %s?", name)
	}
	return question, nil
}

// completeRecommendation decides the tier from the filled slots and
// synthesizes the final answer over the benefits chunks.
func (e *Engine) completeRecommendation(ctx context.Context, turn *Turn) error {
	sess := turn.Session

	tier := e.catalog.RecommendTier(sess.Product, func(name string) string {
		return sess.Slots[name].Value
	})
	slog.Info("recommendation tier decided", "session_id", sess.SessionID, "product", sess.Product, "tier", tier)

	chunks, err := e.search.FetchBenefits(ctx, sess.Product)
	if err != nil {
		slog.Error("recommendation benefits retrieval failed", "error", err)
		chunks = nil
	}
	benefits := retrieval.JoinContext(chunks)

	values := map[string]string{
		"tier":     tier,
		"benefits": benefits,
	}
	if strings.EqualFold(sess.Product, catalog.ProductMaid) {
		addOns := sess.Slots["add_ons"].Value
		if addOns == "" {
			addOns = "not_required"
		}
		values["add_ons"] = addOns
	}

	tpl := templateFor(recommendationTemplates, defaultRecommendationTemplate, sess.Product)
	answer, err := e.synthesize(ctx, tpl, values, sess.Product)
	if err != nil {
		slog.Error("recommendation synthesis failed", "error", err)
		answer = ""
	}
	if answer == "" {
		answer = fmt.Sprintf("We recommend %s.\n\nHere are key benefits:\n%s", tier, truncate(benefits, recBenefitsFallbackLimit))
	}

	turn.Reply = answer
	e.finishRecommendation(sess)
	return nil
}

// recommendCar answers immediately: Car has no tiers and no questionnaire.
func (e *Engine) recommendCar(ctx context.Context, turn *Turn) error {
	sess := turn.Session

	chunks, err := e.search.FetchBenefits(ctx, sess.Product)
	if err != nil {
		slog.Error("recommendation benefits retrieval failed", "error", err)
		chunks = nil
	}
	benefits := retrieval.JoinContext(chunks)

	tpl := templateFor(recommendationTemplates, defaultRecommendationTemplate, sess.Product)
	answer, err := e.synthesize(ctx, tpl, map[string]string{
		"tier":     "",
		"benefits": benefits,
	}, sess.Product)
	if err != nil {
		slog.Error("recommendation synthesis failed", "error", err)
		answer = ""
	}
	if answer == "" {
		answer = fmt.Sprintf("Here are the key benefits for Car insurance:\n\n%s", truncate(benefits, carBenefitsFallbackLimit))
	}

	turn.Reply = answer
	e.finishRecommendation(sess)
	return nil
}

// finishRecommendation marks the flow done and clears any half-collected
// comparison or summary state so the router is not bypassed next turn.
func (e *Engine) finishRecommendation(sess *session.Session) {
	sess.RecommendationStatus = session.StatusDone
	sess.LastCompleted = session.FlowRecommendation
	if sess.ComparisonStatus == session.StatusInProgress {
		sess.ComparisonStatus = ""
	}
	if sess.SummaryStatus == session.StatusInProgress {
		sess.SummaryStatus = ""
	}
	sess.ComparisonSlot = nil
	sess.SummarySlot = nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
