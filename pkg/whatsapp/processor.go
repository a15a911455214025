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

package whatsapp

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/kadirpekel/advisor/pkg/flow"
	"github.com/kadirpekel/advisor/pkg/guard"
	"github.com/kadirpekel/advisor/pkg/observability"
	"github.com/kadirpekel/advisor/pkg/session"
)

const (
	throttleReply    = "You're sending messages too quickly! Please wait a moment and try again."
	processingErrMsg = "I'm sorry, there was an error processing your message. Please try again later."
	emptyReplyMsg    = "I'm sorry, I couldn't process your request. Please try again or ask for help."

	sessionPrefix = "whatsapp_"
)

// TurnHandler runs one conversational turn. Satisfied by flow.Engine.
type TurnHandler interface {
	HandleTurn(ctx context.Context, sess *session.Session, message string) (*flow.Turn, error)
}

// MessageSender delivers outbound replies. Satisfied by Sender.
type MessageSender interface {
	Send(ctx context.Context, recipient, body string) error
}

// Processor runs one inbound message end to end: rate limit, per-session
// lock, turn execution, persistence, outbound send.
type Processor struct {
	engine   TurnHandler
	sessions *session.Service
	limiter  *guard.RateLimiter
	locker   *guard.Locker
	sender   MessageSender
}

func NewProcessor(engine TurnHandler, sessions *session.Service, limiter *guard.RateLimiter, locker *guard.Locker, sender MessageSender) *Processor {
	return &Processor{
		engine:   engine,
		sessions: sessions,
		limiter:  limiter,
		locker:   locker,
		sender:   sender,
	}
}

// Process handles one extracted inbound message. Errors are absorbed into
// user-facing fallbacks; the webhook has already been acknowledged.
func (p *Processor) Process(ctx context.Context, in Inbound) {
	allowed, err := p.limiter.Allow(ctx, in.Phone)
	if err != nil {
		slog.Error("rate limit check failed", "error", err)
	}
	if !allowed && err == nil {
		if sendErr := p.sender.Send(ctx, in.Phone, throttleReply); sendErr != nil {
			slog.Error("throttle reply send failed", "error", sendErr)
		}
		observability.WAMessagesProcessedTotal.WithLabelValues("rate_limited").Inc()
		return
	}

	sessionID := sessionPrefix + in.Phone

	token, err := p.locker.Acquire(ctx, sessionID)
	if err != nil {
		if errors.Is(err, guard.ErrLockTimeout) {
			observability.LockTimeouts.WithLabelValues("whatsapp").Inc()
		}
		slog.Error("session lock acquisition failed", "session_id", sessionID, "error", err)
		observability.WAMessagesProcessedTotal.WithLabelValues("error").Inc()
		return
	}
	defer func() {
		if err := p.locker.Release(ctx, sessionID, token); err != nil {
			slog.Warn("session lock release failed", "session_id", sessionID, "error", err)
		}
	}()

	reply := p.respond(ctx, sessionID, in.Message)

	if err := p.sender.Send(ctx, in.Phone, reply); err != nil {
		slog.Error("reply send failed", "recipient", in.Phone, "error", err)
		observability.WAMessagesProcessedTotal.WithLabelValues("error").Inc()
		return
	}
	observability.WAMessagesProcessedTotal.WithLabelValues("ok").Inc()
}

func (p *Processor) respond(ctx context.Context, sessionID, message string) string {
	// "hi" resets before the session is consulted so no stale state leaks
	// into the fresh conversation.
	if strings.EqualFold(strings.TrimSpace(message), "hi") {
		sess, err := p.sessions.Get(ctx, sessionID)
		if err == nil {
			if err := p.sessions.Reset(ctx, sess); err != nil {
				slog.Error("session reset failed", "session_id", sessionID, "error", err)
			}
		} else {
			slog.Error("session load failed for greeting", "session_id", sessionID, "error", err)
		}
		return flow.Greeting(p.sessions.Now())
	}

	sess, err := p.sessions.Get(ctx, sessionID)
	if err != nil {
		slog.Error("session load failed", "session_id", sessionID, "error", err)
		return processingErrMsg
	}

	turn, err := p.engine.HandleTurn(ctx, sess, message)
	if err != nil {
		slog.Error("turn failed", "session_id", sessionID, "error", err)
		return processingErrMsg
	}

	if err := p.sessions.Save(ctx, sess); err != nil {
		slog.Error("session save failed", "session_id", sessionID, "error", err)
	}
	if err := p.sessions.AppendHistory(ctx, sess, message, turn.Reply); err != nil {
		slog.Error("history append failed", "session_id", sessionID, "error", err)
	}

	if turn.Reply == "" {
		return emptyReplyMsg
	}
	return turn.Reply
}
