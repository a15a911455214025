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
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kadirpekel/advisor/pkg/guard"
	"github.com/kadirpekel/advisor/pkg/observability"
)

// Handler terminates the Meta webhook: GET verification and POST events.
// Events are acknowledged immediately and processed asynchronously.
type Handler struct {
	verifyToken string
	appSecret   string
	processor   *Processor
	deduper     *guard.Deduper
	orderGuard  *guard.OrderGuard
	loc         *time.Location
	now         func() time.Time

	// dispatch runs the processor; replaced in tests to run inline.
	dispatch func(in Inbound)
}

func NewHandler(verifyToken, appSecret string, processor *Processor, deduper *guard.Deduper, orderGuard *guard.OrderGuard, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	h := &Handler{
		verifyToken: verifyToken,
		appSecret:   appSecret,
		processor:   processor,
		deduper:     deduper,
		orderGuard:  orderGuard,
		loc:         loc,
		now:         time.Now,
	}
	h.dispatch = func(in Inbound) {
		go h.processor.Process(detachedContext(), in)
	}
	return h
}

// Verify handles the GET subscription handshake.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	slog.Info("webhook verification attempt", "mode", mode, "token_present", token != "")

	if mode == "" || token == "" || challenge == "" {
		http.Error(w, "Missing parameters", http.StatusBadRequest)
		return
	}
	if mode != "subscribe" || token != h.verifyToken {
		http.Error(w, "Verification failed", http.StatusForbidden)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

// Receive handles POSTed webhook events. It always acknowledges with 200
// (except on a signature mismatch) so Meta does not disable the webhook.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Error("reading webhook body failed", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	if h.appSecret != "" && !h.verifySignature(raw, r.Header.Get("X-Hub-Signature-256")) {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	in, ok := ExtractInbound(raw, h.now())
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx := r.Context()

	if in.MessageID != "" {
		seen, err := h.deduper.Seen(ctx, in.MessageID)
		if err != nil {
			slog.Error("dedupe check failed", "error", err)
		} else if seen {
			slog.Info("duplicate message ignored", "message_id", in.MessageID)
			observability.WAMessagesProcessedTotal.WithLabelValues("duplicate").Inc()
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	inOrder, err := h.orderGuard.Check(ctx, in.Phone, in.Timestamp)
	if err != nil {
		slog.Error("order check failed", "error", err)
	} else if !inOrder {
		slog.Info("out-of-order message dropped", "phone", in.Phone, "timestamp", in.Timestamp)
		observability.WAMessagesProcessedTotal.WithLabelValues("out_of_order").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	h.dispatch(in)
	w.WriteHeader(http.StatusOK)
}

// Health reports webhook configuration state for monitoring.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":    "healthy",
		"timestamp": h.now().In(h.loc).Format(time.RFC3339),
		"webhook_verification_token_configured": h.verifyToken != "",
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

// detachedContext backs background processing that must outlive the
// acknowledged webhook request.
func detachedContext() context.Context {
	return context.Background()
}

func (h *Handler) verifySignature(body []byte, header string) bool {
	if !strings.HasPrefix(header, "sha256=") {
		slog.Error("webhook signature missing or malformed")
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	provided := strings.TrimPrefix(header, "sha256=")
	if !hmac.Equal([]byte(expected), []byte(provided)) {
		slog.Error("webhook signature mismatch")
		return false
	}
	return true
}
