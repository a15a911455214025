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
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/kadirpekel/advisor/pkg/llms"
)

// Runner is the single chokepoint for LLM invocation. It renders prompts,
// calls the provider and recovers a structured result from the reply.
type Runner struct {
	provider         llms.Provider
	responseProvider llms.Provider
}

type RunnerOption func(*Runner)

// WithResponseProvider routes text-allowed synthesis tasks to a separate
// provider, so user-facing prose can run on a different deployment than
// structured routing and extraction.
func WithResponseProvider(p llms.Provider) RunnerOption {
	return func(r *Runner) {
		r.responseProvider = p
	}
}

func NewRunner(provider llms.Provider, opts ...RunnerOption) *Runner {
	r := &Runner{provider: provider}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result is the parsed task output.
type Result map[string]any

// String returns the string at key, or empty.
func (r Result) String(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// Bool returns the bool at key, or false.
func (r Result) Bool(key string) bool {
	v, ok := r[key].(bool)
	return ok && v
}

// Strings returns the string slice at key.
func (r Result) Strings(key string) []string {
	raw, ok := r[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// StringMap returns the string-to-string mapping at key.
func (r Result) StringMap(key string) map[string]string {
	raw, ok := r[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// Run executes one task. Provider errors propagate; malformed replies are
// recovered (balanced-brace extraction, then JSON repair, then a text
// wrap for text-allowed tasks) and degrade to an empty result.
func (r *Runner) Run(ctx context.Context, taskKey string, pctx Context) (Result, error) {
	task, ok := Tasks[taskKey]
	if !ok {
		slog.Warn("unknown prompt task", "task", taskKey)
		return Result{}, nil
	}

	systemPrompt, userPrompt := BuildPrompts(task.Agent, taskKey, pctx)

	provider := r.provider
	if task.AllowText && r.responseProvider != nil {
		provider = r.responseProvider
	}

	raw, err := provider.Generate(ctx, []llms.Message{
		{Role: llms.RoleSystem, Content: systemPrompt},
		{Role: llms.RoleUser, Content: userPrompt},
	})
	if err != nil {
		return nil, err
	}

	return parseReply(raw, task.AllowText, taskKey), nil
}

func parseReply(raw string, allowText bool, taskKey string) Result {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Result{}
	}

	if result, ok := tryParse(text); ok {
		return result
	}

	if extracted := extractBalanced(text); extracted != "" {
		if result, ok := tryParse(extracted); ok {
			return result
		}
		if repaired, err := jsonrepair.JSONRepair(extracted); err == nil {
			if result, ok := tryParse(repaired); ok {
				return result
			}
		}
	}

	if allowText {
		slog.Debug("no JSON in reply, using text fallback", "task", taskKey, "len", len(text))
		return Result{"response": text}
	}

	slog.Warn("unparseable task reply discarded", "task", taskKey)
	return Result{}
}

func tryParse(text string) (Result, bool) {
	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, false
	}
	return Result(out), true
}

// extractBalanced returns the first top-level {...} block, tolerating
// braces inside string literals.
func extractBalanced(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	// Unbalanced tail: hand the whole remainder to the repairer.
	return text[start:]
}
