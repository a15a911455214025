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

package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/advisor/pkg/httpclient"
	"github.com/kadirpekel/advisor/pkg/observability"
)

// AzureOpenAIProvider calls the Azure OpenAI chat completions API for a
// single deployment.
type AzureOpenAIProvider struct {
	endpoint    string
	deployment  string
	apiVersion  string
	apiKey      string
	temperature float64
	maxTokens   int
	httpClient  *httpclient.Client
}

type AzureOpenAIOption func(*AzureOpenAIProvider)

func WithTemperature(t float64) AzureOpenAIOption {
	return func(p *AzureOpenAIProvider) {
		p.temperature = t
	}
}

func WithMaxTokens(n int) AzureOpenAIOption {
	return func(p *AzureOpenAIProvider) {
		p.maxTokens = n
	}
}

func WithAPIVersion(v string) AzureOpenAIOption {
	return func(p *AzureOpenAIProvider) {
		p.apiVersion = v
	}
}

func WithHTTPClient(client *httpclient.Client) AzureOpenAIOption {
	return func(p *AzureOpenAIProvider) {
		p.httpClient = client
	}
}

func NewAzureOpenAIProvider(endpoint, deployment, apiKey string, opts ...AzureOpenAIOption) (*AzureOpenAIProvider, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("azure openai endpoint is required")
	}
	if deployment == "" {
		return nil, fmt.Errorf("azure openai deployment is required")
	}

	p := &AzureOpenAIProvider{
		endpoint:    strings.TrimRight(endpoint, "/"),
		deployment:  deployment,
		apiVersion:  "2024-02-15-preview",
		apiKey:      apiKey,
		temperature: 0.2,
		maxTokens:   1024,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
		),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

type chatRequest struct {
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
	Error   *chatError   `json:"error,omitempty"`
}

type chatChoice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

func (p *AzureOpenAIProvider) Deployment() string {
	return p.deployment
}

// Generate sends a chat completion request and returns the assistant text.
func (p *AzureOpenAIProvider) Generate(ctx context.Context, messages []Message) (string, error) {
	startTime := time.Now()

	tracer := observability.GetTracer("advisor.llm")
	ctx, span := tracer.Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(
			attribute.String(observability.AttrLLMDeployment, p.deployment),
			attribute.String("provider", "azure_openai"),
		),
	)
	defer span.End()

	text, err := p.makeRequest(ctx, messages)
	duration := time.Since(startTime)

	observability.LLMCallDuration.WithLabelValues(p.deployment).Observe(duration.Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.LLMCallErrors.WithLabelValues(p.deployment).Inc()
		return "", err
	}

	return text, nil
}

func (p *AzureOpenAIProvider) makeRequest(ctx context.Context, messages []Message) (string, error) {
	reqBody := chatRequest{
		Messages:    messages,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		p.endpoint, p.deployment, p.apiVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read chat response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat request returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("chat API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat response contained no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}

var _ Provider = (*AzureOpenAIProvider)(nil)
