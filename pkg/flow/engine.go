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
	"time"

	"github.com/kadirpekel/advisor/pkg/catalog"
	"github.com/kadirpekel/advisor/pkg/prompt"
	"github.com/kadirpekel/advisor/pkg/retrieval"
	"github.com/kadirpekel/advisor/pkg/session"
)

// Router directives.
const (
	DirectiveGreet          = "greet"
	DirectiveCapabilities   = "handle_capabilities"
	DirectiveInformation    = "handle_information"
	DirectiveFollowUp       = "handle_follow_up"
	DirectiveSummary        = "handle_summary"
	DirectiveComparison     = "plan_only_comparison"
	DirectiveRecommendation = "handle_recommendation"
	DirectiveOther          = "handle_other"
)

const (
	capabilitiesReply = "I can help you with insurance plans, providing information, summaries, and comparisons."
	otherReply        = "I can't understand this. Can you clearly tell what you want to do?\n" +
		"I can help you with insurance plans, questions, comparisons, and summaries."
)

// Engine routes one turn to the right sub-flow and executes it. All
// mutation happens on the session the caller passed in; the caller holds
// the per-session lock and persists afterwards.
type Engine struct {
	runner  TaskRunner
	search  retrieval.Searcher
	catalog *catalog.Catalog
	loc     *time.Location
	now     func() time.Time
}

type EngineOption func(*Engine)

// WithNowFunc overrides the clock used for greetings and validation dates.
func WithNowFunc(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(runner TaskRunner, search retrieval.Searcher, cat *catalog.Catalog, loc *time.Location, opts ...EngineOption) *Engine {
	e := &Engine{
		runner:  runner,
		search:  search,
		catalog: cat,
		loc:     loc,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) nowLocal() time.Time {
	return e.now().In(e.loc)
}

// HandleTurn executes one conversational turn.
func (e *Engine) HandleTurn(ctx context.Context, sess *session.Session, message string) (*Turn, error) {
	turn := &Turn{Session: sess, Message: message}

	// The constructed follow-up query is valid for this turn only.
	defer func() { sess.FollowUpQuery = "" }()

	if flow, active := sess.ActiveStatus(); active {
		slog.Info("mid-flow bypass", "session_id", sess.SessionID, "flow", flow)
		var err error
		switch flow {
		case session.FlowRecommendation:
			err = e.runRecommendation(ctx, turn)
		case session.FlowComparison:
			err = e.runComparison(ctx, turn)
		case session.FlowSummary:
			err = e.runSummary(ctx, turn)
		}
		return turn, err
	}

	// Completed flows are cleared so follow-up questions route normally.
	if sess.RecommendationStatus == session.StatusDone {
		sess.RecommendationStatus = ""
	}
	if sess.ComparisonStatus == session.StatusDone {
		sess.ComparisonStatus = ""
	}
	if sess.SummaryStatus == session.StatusDone {
		sess.SummaryStatus = ""
	}

	directive, err := e.route(ctx, turn)
	if err != nil {
		return turn, err
	}
	slog.Info("router decision", "session_id", sess.SessionID, "directive", directive)

	// A non-follow-up directive means the clarification exchange is over.
	if directive != DirectiveFollowUp && sess.InfoClarifyPending {
		sess.ClearInfoClarification()
		sess.LastQuestion = ""
	}

	switch directive {
	case DirectiveGreet:
		turn.Reply = Greeting(e.nowLocal())
	case DirectiveCapabilities:
		turn.Reply = capabilitiesReply
	case DirectiveInformation:
		err = e.runInformation(ctx, turn, false)
	case DirectiveFollowUp:
		err = e.runFollowUp(ctx, turn)
	case DirectiveSummary:
		err = e.runSummary(ctx, turn)
	case DirectiveComparison:
		err = e.runComparison(ctx, turn)
	case DirectiveRecommendation:
		err = e.runRecommendation(ctx, turn)
	case DirectiveOther:
		turn.Reply = otherReply
	default:
		turn.Reply = "How can I help you further?"
	}

	return turn, err
}

func (e *Engine) route(ctx context.Context, turn *Turn) (string, error) {
	sess := turn.Session

	product := sess.Product
	if product == "" {
		product = "None"
	}

	contextText := fmt.Sprintf(
		"Last_user_message: %s\nProduct_in_session: %s\nRecent_conversation:\n%s",
		turn.Message, product, historyPairs(sess, 1))

	result, err := e.runner.Run(ctx, prompt.TaskRouteDecision, prompt.Context{Text: contextText})
	if err != nil {
		return "", err
	}

	directive := result.String("directive")
	if directive == "" {
		directive = DirectiveCapabilities
	}
	return directive, nil
}

// identifyProduct runs the product identifier and returns the canonical
// product name plus an optional clarification question.
func (e *Engine) identifyProduct(ctx context.Context, contextText, currentProduct string) (string, string, error) {
	result, err := e.runner.Run(ctx, prompt.TaskIdentifyProduct, prompt.Context{
		Text:    contextText,
		Product: currentProduct,
	})
	if err != nil {
		return "", "", err
	}
	return e.catalog.Normalize(result.String("product")), result.String("question"), nil
}

func (e *Engine) runFollowUp(ctx context.Context, turn *Turn) error {
	sess := turn.Session

	// The previous turn asked which product the question was about; this
	// message is the answer. Re-run the original question with it.
	if sess.InfoClarifyPending && sess.InfoClarifyMessage != "" {
		clarified, _, err := e.identifyProduct(ctx,
			fmt.Sprintf("Message: %s", turn.Message), "")
		if err != nil {
			return err
		}
		if clarified != "" {
			sess.Product = clarified
		}
		turn.Message = sess.InfoClarifyMessage
		sess.ClearInfoClarification()
		sess.LastQuestion = ""
		return e.runInformation(ctx, turn, false)
	}

	identified, _, err := e.identifyProduct(ctx,
		fmt.Sprintf("Message: %s\nSession product: %s", turn.Message, sess.Product), sess.Product)
	if err != nil {
		return err
	}
	if identified != "" && identified != sess.Product {
		slog.Info("follow-up product switch", "from", sess.Product, "to", identified)
		sess.Product = identified
		sess.LastQuestion = ""
	}

	fuContext := fmt.Sprintf(
		"Product: %s\nLatest: %s\nRecent conversation (most recent first):\n%s",
		sess.Product, turn.Message, historyPairs(sess, 1))

	result, err := e.runner.Run(ctx, prompt.TaskConstructFollowUpQuery, prompt.Context{
		Text:    fuContext,
		Product: sess.Product,
	})
	if err != nil {
		return err
	}

	query := strings.TrimSpace(result.String("query"))
	if query == "" {
		query = turn.Message
	}
	sess.FollowUpQuery = query

	return e.runInformation(ctx, turn, true)
}

// synthesize renders a template and runs the user-facing response task.
// The [System]/[User] framing passes through the prompt builder verbatim.
func (e *Engine) synthesize(ctx context.Context, tpl Template, values map[string]string, product string) (string, error) {
	systemText, userText := tpl.Render(values)
	result, err := e.runner.Run(ctx, prompt.TaskSynthesizeResponse, prompt.Context{
		Text:    fmt.Sprintf("[System]\n%s\n\n[User]\n%s", systemText, userText),
		Product: product,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.String("response")), nil
}
