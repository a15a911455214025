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

package prompt

import (
	"fmt"
	"strings"
)

// Context carries the inputs for one prompt render. Text is the task
// context block; Product, when set, is interpolated into the task
// description.
type Context struct {
	Text    string
	Product string
}

// BuildPrompts renders the system and user prompt for an (agent, task)
// pair. When the context text already carries [System]/[User] sections it
// is passed through as the user prompt verbatim.
func BuildPrompts(agentKey, taskKey string, pctx Context) (string, string) {
	agent, ok := Agents[agentKey]
	if !ok {
		agent = AgentSpec{Role: agentKey}
	}
	task := Tasks[taskKey]

	description := strings.TrimSpace(task.Description)
	if pctx.Product != "" {
		description = strings.ReplaceAll(description, "{product}", pctx.Product)
	} else {
		description = strings.ReplaceAll(description, "{product}", "the product")
	}

	systemPrompt := strings.TrimSpace(fmt.Sprintf(
		"You are %s. %s\n%s\n\nOutput contract (JSON):\n%s",
		agent.Role, agent.Backstory, agent.Goal, strings.TrimSpace(task.ExpectedOutput)))

	if taskKey == TaskValidateSlot {
		systemPrompt = fmt.Sprintf("%s\n\nFocus only on validating %s.",
			systemPrompt, focusSlot(pctx.Text))
	}

	trimmed := strings.TrimSpace(pctx.Text)
	if strings.HasPrefix(trimmed, "[System]") || strings.HasPrefix(trimmed, "[User]") {
		return systemPrompt, trimmed
	}

	userPrompt := strings.TrimSpace(fmt.Sprintf(
		"Task:\n%s\n\n[Context]\n%s", description, trimmed))

	return systemPrompt, userPrompt
}

// focusSlot pulls the slot name from a "Slot: <name>" line in the context.
func focusSlot(contextText string) string {
	for _, line := range strings.Split(contextText, "\n") {
		if strings.HasPrefix(strings.ToLower(line), "slot:") {
			if name := strings.TrimSpace(line[len("slot:"):]); name != "" {
				return name
			}
		}
	}
	return "the provided slot"
}
