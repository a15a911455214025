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

// Package prompt builds the system/user prompt pairs for every LLM task and
// runs them through the chat provider, recovering structured output from
// imperfect replies.
package prompt

// AgentSpec describes an LLM persona.
type AgentSpec struct {
	Role      string
	Backstory string
	Goal      string
}

// TaskSpec describes one LLM task. ExpectedOutput is the JSON contract
// appended to the system prompt. AllowText marks tasks whose free-text
// replies are acceptable as-is.
type TaskSpec struct {
	Agent          string
	Description    string
	ExpectedOutput string
	AllowText      bool
}

// Agent keys.
const (
	AgentOrchestrator          = "orchestrator"
	AgentProductIdentifier     = "product_identifier"
	AgentTierIdentifier        = "tier_identifier"
	AgentSlotExtractor         = "slot_extractor"
	AgentSlotValidator         = "slot_validator"
	AgentQuestionAsker         = "question_asker"
	AgentResponder             = "recommendation_responder"
	AgentFollowUp              = "follow_up_agent"
	AgentFollowUpClarification = "followup_clarification_agent"
)

// Task keys.
const (
	TaskRouteDecision          = "route_decision"
	TaskIdentifyProduct        = "identify_product"
	TaskIdentifyTiers          = "identify_tiers"
	TaskExtractSlots           = "extract_slots"
	TaskValidateSlot           = "validate_slot"
	TaskAskQuestion            = "ask_question"
	TaskSynthesizeResponse     = "synthesize_response"
	TaskConstructFollowUpQuery = "construct_follow_up_query"
	TaskFollowUpClarification  = "followup_clarification"
)

// Agents is the static persona registry.
var Agents = map[string]AgentSpec{
	AgentOrchestrator: {
		Role:      "a routing specialist for an insurance assistant",
		Backstory: "You read a short conversation window and decide which capability should handle the latest message.",
		Goal:      "Pick exactly one directive from the allowed set. Never invent new directives.",
	},
	AgentProductIdentifier: {
		Role:      "an insurance product identification specialist",
		Backstory: "You map user messages onto the fixed product catalog: Travel, Maid, Car, PersonalAccident.",
		Goal:      "Identify which product the user is talking about, or ask one short clarification question when you cannot.",
	},
	AgentTierIdentifier: {
		Role:      "an insurance tier identification specialist",
		Backstory: "You recognise plan tier names mentioned by users, including informal variants.",
		Goal:      "List the tiers the user referred to, in the order mentioned, and note the product if it differs from the current one.",
	},
	AgentSlotExtractor: {
		Role:      "an information extraction specialist for insurance questionnaires",
		Backstory: "You pull answers out of user messages given the question the assistant just asked.",
		Goal:      "Extract values only for the listed slots. Never guess a value the user did not supply.",
	},
	AgentSlotValidator: {
		Role:      "a strict validator of questionnaire answers",
		Backstory: "You check one answer at a time against the product's validation rules.",
		Goal:      "Accept and normalize valid values; reject invalid ones with a reason and a better question.",
	},
	AgentQuestionAsker: {
		Role:      "a friendly insurance questionnaire assistant",
		Backstory: "You ask for exactly one missing piece of information at a time, adapting tone to how much detail the user wants.",
		Goal:      "Produce one short, unambiguous question for the named slot.",
	},
	AgentResponder: {
		Role:      "an insurance advisor writing customer-facing replies",
		Backstory: "You turn retrieved policy material into clear, honest answers without inventing coverage.",
		Goal:      "Answer using only the provided context. Say so when the context does not cover the question.",
	},
	AgentFollowUp: {
		Role:      "a query rewriting specialist",
		Backstory: "You turn elliptical follow-up messages into standalone search queries using the recent conversation.",
		Goal:      "Produce one self-contained query that preserves the user's intent.",
	},
	AgentFollowUpClarification: {
		Role:      "a clarification specialist for an insurance assistant",
		Backstory: "You ask for the one missing detail that blocks the current flow, offering the available options when known.",
		Goal:      "Ask a single polite clarification question.",
	},
}

// Tasks is the static task registry.
var Tasks = map[string]TaskSpec{
	TaskRouteDecision: {
		Agent: AgentOrchestrator,
		Description: "Decide how to handle the latest user message. Allowed directives: " +
			"greet, handle_capabilities, handle_information, handle_follow_up, handle_summary, " +
			"plan_only_comparison, handle_recommendation, handle_other. " +
			"Use handle_follow_up only when the message clearly continues the previous exchange.",
		ExpectedOutput: `{ "directive": string }`,
	},
	TaskIdentifyProduct: {
		Agent: AgentProductIdentifier,
		Description: "Identify the insurance product the user means for {product}. Products: Travel, Maid, Car, PersonalAccident. " +
			"If the message does not indicate a product and no current product applies, ask a clarification question instead.",
		ExpectedOutput: `{ "product"?: "Travel"|"Maid"|"Car"|"PersonalAccident", "question"?: string }`,
	},
	TaskIdentifyTiers: {
		Agent: AgentTierIdentifier,
		Description: "List the plan tiers for {product} that the user mentioned in the message or recent conversation. " +
			"Report a different product only if the user clearly switched.",
		ExpectedOutput: `{ "tiers": [string], "product"?: string }`,
	},
	TaskExtractSlots: {
		Agent: AgentSlotExtractor,
		Description: "Extract answers for the listed {product} slots from the user message, using the last assistant question " +
			"to resolve yes/no replies. If the user is asking what a slot means rather than answering, explain it instead.",
		ExpectedOutput: `{ "slots"?: { slot_name: string }, "user_needs_explanation"?: true, "explanation"?: string }`,
	},
	TaskValidateSlot: {
		Agent: AgentSlotValidator,
		Description: "Validate the provided {product} slot value against the rules in the context. " +
			"Normalize accepted values to the expected format.",
		ExpectedOutput: `{ "valid": true|false, "slot_name": string, "normalized_value"?: string, "question"?: string, "reason"?: string }`,
	},
	TaskAskQuestion: {
		Agent: AgentQuestionAsker,
		Description: "Ask the user for the missing {product} slot described in the context. Mention the valid options for " +
			"choice slots. Keep it to one question.",
		ExpectedOutput: `{ "question": string }`,
	},
	TaskSynthesizeResponse: {
		Agent: AgentResponder,
		Description: "Write the customer-facing reply for {product} using only the supplied context chunks. " +
			"Be accurate about coverage amounts and exclusions.",
		ExpectedOutput: `{ "response": string }`,
		AllowText:      true,
	},
	TaskConstructFollowUpQuery: {
		Agent: AgentFollowUp,
		Description: "Rewrite the user's follow-up message as one standalone search query about {product}, " +
			"carrying over the subject from the recent conversation.",
		ExpectedOutput: `{ "query": string }`,
	},
	TaskFollowUpClarification: {
		Agent: AgentFollowUpClarification,
		Description: "Ask the user for the missing detail described in the context, listing the available options " +
			"when they are provided.",
		ExpectedOutput: `{ "question": string }`,
		AllowText:      true,
	},
}
