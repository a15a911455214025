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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kadirpekel/advisor/pkg/httpclient"
)

const truncationNote = "...\n\nMessage was truncated. Please ask for specific details!"

// Sender delivers text messages through the Meta Graph API.
type Sender struct {
	baseURL       string
	phoneNumberID string
	accessToken   string
	client        *httpclient.Client
}

type SenderOption func(*Sender)

// WithBaseURL overrides the Graph API endpoint, for tests.
func WithBaseURL(baseURL string) SenderOption {
	return func(s *Sender) {
		s.baseURL = baseURL
	}
}

func WithClient(client *httpclient.Client) SenderOption {
	return func(s *Sender) {
		s.client = client
	}
}

func NewSender(phoneNumberID, accessToken string, opts ...SenderOption) *Sender {
	s := &Sender{
		baseURL:       "https://graph.facebook.com/v18.0",
		phoneNumberID: phoneNumberID,
		accessToken:   accessToken,
		client: httpclient.New(
			httpclient.WithMaxRetries(3),
			httpclient.WithBaseDelay(500*time.Millisecond),
			httpclient.WithRetryStrategy(func(int) httpclient.RetryStrategy { return httpclient.BackoffRetry }),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type outboundText struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             outboundBody `json:"text"`
}

type outboundBody struct {
	Body string `json:"body"`
}

// Send posts one text message. Replies over the WhatsApp limit are
// truncated with a note asking for a narrower question.
func (s *Sender) Send(ctx context.Context, recipient, body string) error {
	if s.phoneNumberID == "" || s.accessToken == "" {
		return fmt.Errorf("whatsapp sender is not configured")
	}

	if len(body) > MaxMessageLength {
		body = body[:MaxMessageLength-50] + truncationNote
	}

	payload, err := json.Marshal(outboundText{
		MessagingProduct: "whatsapp",
		To:               recipient,
		Type:             "text",
		Text:             outboundBody{Body: body},
	})
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.baseURL, s.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("graph API returned %d: %s", resp.StatusCode, string(detail))
	}

	slog.Info("whatsapp message sent", "recipient", recipient, "length", len(body))
	return nil
}
