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
	"github.com/kadirpekel/advisor/pkg/session"
)

const (
	awaitProduct = "product"
	awaitTiers   = "tiers"
)

// askClarify generates one short guided question for a missing product or
// tier selection. Falls back to a static question when the model gives
// nothing usable.
func (e *Engine) askClarify(ctx context.Context, sess *session.Session, await, product string, knownTiers []string, flowType string) string {
	lines := []string{
		fmt.Sprintf("await=%s", await),
		fmt.Sprintf("product=%s", product),
		fmt.Sprintf("known_tiers=%s", strings.Join(knownTiers, ", ")),
		fmt.Sprintf("flow_type=%s", flowType),
	}
	if product != "" {
		if strings.EqualFold(product, catalog.ProductCar) {
			lines = append(lines, "available_tiers=None (Car has no tiers)")
		} else if tiers := e.catalog.Tiers(product); len(tiers) > 0 {
			lines = append(lines, fmt.Sprintf("available_tiers=%s", strings.Join(tiers, ", ")))
		}
	}
	lines = append(lines, historyPairs(sess, 3))

	result, err := e.runner.Run(ctx, prompt.TaskFollowUpClarification, prompt.Context{
		Text:    strings.Join(lines, "\n"),
		Product: product,
	})
	if err != nil {
		slog.Warn("clarification generation failed", "error", err)
	} else {
		question := strings.TrimSpace(result.String("question"))
		if question == "" {
			question = strings.TrimSpace(result.String("response"))
		}
		if question != "" {
			return question
		}
	}

	return fallbackClarify(await, product, flowType)
}

func fallbackClarify(await, product, flowType string) string {
	switch await {
	case awaitProduct:
		if flowType == "summary" {
			return "Which product would you like summarized: Travel, Maid, or Car?"
		}
		return "Which product would you like to compare: Travel, Maid, or Car?"
	case awaitTiers:
		switch strings.ToLower(strings.TrimSpace(product)) {
		case "travel":
			if flowType == "summary" {
				return "Which Travel tier(s) should I summarize? Available: Basic, Silver, Gold, Platinum"
			}
			return "Which Travel tiers would you like to compare? Available: Basic, Silver, Gold, Platinum"
		case "maid":
			if flowType == "summary" {
				return "Which Maid tier(s) should I summarize? Available: Basic, Enhanced, Premier, Exclusive"
			}
			return "Which Maid tiers would you like to compare? Available: Basic, Enhanced, Premier, Exclusive"
		case "personalaccident":
			if flowType == "summary" {
				return "Which Personal Accident tier(s) should I summarize? Available: Bronze, Silver, Premier, Platinum"
			}
			return "Which Personal Accident tiers would you like to compare? Available: Bronze, Silver, Premier, Platinum"
		case "car":
			if flowType == "summary" {
				return "Car has no tiers. Which aspects should I summarize?"
			}
			return "Car has no tiers to compare. Which aspects would you like me to compare?"
		}
		if flowType == "summary" {
			return "Which tier(s) should I summarize?"
		}
		return "Which two tiers should I compare?"
	}
	if flowType == "summary" {
		return "Could you clarify what you want me to summarize?"
	}
	return "Could you clarify what you want me to compare?"
}

// ensureWorkingProduct fills the working slot's product, from the session
// first, then via the product identifier. A product change clears any tiers
// collected for the previous product.
func (e *Engine) ensureWorkingProduct(ctx context.Context, sess *session.Session, slot *session.WorkingSlot, message string) error {
	if slot.Product != "" {
		return nil
	}
	if sess.Product != "" {
		slot.Product = sess.Product
		return nil
	}

	identified, _, err := e.identifyProduct(ctx,
		fmt.Sprintf("User Message: %s\nSession product: %s", message, sess.Product), sess.Product)
	if err != nil {
		return err
	}
	if identified == "" {
		return nil
	}
	if slot.Product != "" && slot.Product != identified {
		slot.Tiers = nil
	}
	slot.Product = identified
	sess.Product = identified
	return nil
}

// ensureWorkingTiers runs the tier identifier and merges new tiers into the
// working slot, deduplicated and canonicalized. The identifier may also
// infer a product; a switch clears previously collected tiers.
func (e *Engine) ensureWorkingTiers(ctx context.Context, sess *session.Session, slot *session.WorkingSlot, message string, minimum int) error {
	if strings.EqualFold(slot.Product, catalog.ProductCar) {
		return nil
	}
	if len(slot.Tiers) >= minimum {
		return nil
	}

	tiersCtx := fmt.Sprintf(
		"Product: %s\nUser Message: %s\nRecent conversation (most recent first):\n%s",
		slot.Product, message, historyPairs(sess, 3))

	result, err := e.runner.Run(ctx, prompt.TaskIdentifyTiers, prompt.Context{
		Text:    tiersCtx,
		Product: slot.Product,
	})
	if err != nil {
		return err
	}

	if inferred := e.catalog.Normalize(result.String("product")); inferred != "" {
		switch {
		case slot.Product == "":
			slot.Product = inferred
			sess.Product = inferred
		case slot.Product != inferred:
			slog.Info("working slot product switch", "from", slot.Product, "to", inferred)
			slot.Tiers = nil
			slot.Product = inferred
			sess.Product = inferred
		}
	}

	merged := slot.Tiers
	for _, tier := range result.Strings("tiers") {
		if canonical, ok := e.catalog.HasTier(slot.Product, tier); ok {
			tier = canonical
		}
		tier = strings.TrimSpace(tier)
		if tier == "" || containsFold(merged, tier) {
			continue
		}
		merged = append(merged, tier)
	}
	slot.Tiers = merged
	return nil
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}
