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

// Package whatsapp implements the Meta WhatsApp Cloud API ingress: webhook
// verification, payload extraction, ordering and dedupe guards, and the
// outbound message sender.
package whatsapp

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MaxMessageLength is the WhatsApp text message limit.
const MaxMessageLength = 4096

// Inbound is one extracted user message.
type Inbound struct {
	Message   string
	Phone     string
	MessageID string
	Timestamp int64
	FromName  string
}

type webhookEnvelope struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Statuses []struct {
					Status      string `json:"status"`
					RecipientID string `json:"recipient_id"`
				} `json:"statuses"`
				Messages []struct {
					ID        string `json:"id"`
					From      string `json:"from"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
				Contacts []struct {
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`

	// Flattened shape some relays deliver.
	Body struct {
		Text string `json:"text"`
	} `json:"body"`
	From string `json:"from"`
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	nonPhoneRe   = regexp.MustCompile(`[^\d+]`)
)

// ExtractInbound parses a webhook payload into a user message. It returns
// ok=false for delivery status events and anything else that carries no
// user text.
func ExtractInbound(raw []byte, now time.Time) (Inbound, bool) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		slog.Warn("webhook payload is not JSON", "error", err)
		return Inbound{}, false
	}

	var in Inbound
	for _, entry := range envelope.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			if len(value.Statuses) > 0 {
				slog.Info("ignoring delivery status update",
					"status", value.Statuses[0].Status,
					"recipient", value.Statuses[0].RecipientID)
				return Inbound{}, false
			}
			if len(value.Messages) == 0 {
				continue
			}
			msg := value.Messages[0]
			in.Message = msg.Text.Body
			in.Phone = msg.From
			in.MessageID = msg.ID
			if ts, err := strconv.ParseInt(msg.Timestamp, 10, 64); err == nil {
				in.Timestamp = ts
			}
			if len(value.Contacts) > 0 {
				in.FromName = value.Contacts[0].Profile.Name
			}
		}
	}

	if in.Message == "" && envelope.Body.Text != "" && envelope.From != "" {
		in.Message = envelope.Body.Text
		in.Phone = envelope.From
	}

	in.Message = CleanMessage(in.Message)
	in.Phone = NormalizePhone(in.Phone)
	if in.Message == "" || in.Phone == "" {
		return Inbound{}, false
	}
	if in.Timestamp == 0 {
		in.Timestamp = now.Unix()
	}
	return in, true
}

// CleanMessage collapses whitespace and enforces the WhatsApp length cap.
func CleanMessage(message string) string {
	message = whitespaceRe.ReplaceAllString(strings.TrimSpace(message), " ")
	if len(message) > MaxMessageLength {
		slog.Warn("inbound message truncated", "length", len(message))
		message = message[:MaxMessageLength] + "..."
	}
	return message
}

// NormalizePhone strips everything but digits and a leading plus, and
// rejects implausible lengths.
func NormalizePhone(phone string) string {
	clean := nonPhoneRe.ReplaceAllString(phone, "")
	if len(clean) < 8 || len(clean) > 15 {
		if phone != "" {
			slog.Warn("invalid phone number", "length", len(clean))
		}
		return ""
	}
	return clean
}
