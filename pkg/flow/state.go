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

// Package flow implements the conversational engine: the router and the
// information, comparison, summary and recommendation sub-flows.
package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/kadirpekel/advisor/pkg/prompt"
	"github.com/kadirpekel/advisor/pkg/session"
)

// TaskRunner runs one LLM task. Satisfied by prompt.Runner.
type TaskRunner interface {
	Run(ctx context.Context, taskKey string, pctx prompt.Context) (prompt.Result, error)
}

// Turn is the state of one conversational turn. The engine mutates the
// session in place and fills Reply and Sources.
type Turn struct {
	Session *session.Session
	Message string
	Reply   string
	Sources string
}

// historyPairs renders the most recent n turns as "User:/Assistant:" lines,
// most recent first.
func historyPairs(sess *session.Session, n int) string {
	history := sess.History
	if len(history) > n {
		history = history[len(history)-n:]
	}

	var lines []string
	for i := len(history) - 1; i >= 0; i-- {
		entry := history[i]
		if entry.User == "" && entry.Assistant == "" {
			continue
		}
		lines = append(lines,
			fmt.Sprintf("User: %s", entry.User),
			fmt.Sprintf("Assistant: %s", entry.Assistant))
	}
	if len(lines) == 0 {
		return "No recent conversation"
	}
	return strings.Join(lines, "\n")
}
