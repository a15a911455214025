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

package embedders

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

// AzureOpenAIEmbedder calls the Azure OpenAI embeddings API for a single
// deployment.
type AzureOpenAIEmbedder struct {
	endpoint   string
	deployment string
	apiVersion string
	apiKey     string
	httpClient *httpclient.Client
}

type AzureOpenAIEmbedderOption func(*AzureOpenAIEmbedder)

func WithAPIVersion(v string) AzureOpenAIEmbedderOption {
	return func(e *AzureOpenAIEmbedder) {
		e.apiVersion = v
	}
}

func WithHTTPClient(client *httpclient.Client) AzureOpenAIEmbedderOption {
	return func(e *AzureOpenAIEmbedder) {
		e.httpClient = client
	}
}

func NewAzureOpenAIEmbedder(endpoint, deployment, apiKey string, opts ...AzureOpenAIEmbedderOption) (*AzureOpenAIEmbedder, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("azure openai endpoint is required")
	}
	if deployment == "" {
		return nil, fmt.Errorf("embedding deployment is required")
	}

	e := &AzureOpenAIEmbedder{
		endpoint:   strings.TrimRight(endpoint, "/"),
		deployment: deployment,
		apiVersion: "2024-02-15-preview",
		apiKey:     apiKey,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
		),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

type embedRequest struct {
	Input string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (e *AzureOpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	tracer := observability.GetTracer("advisor.embedder")
	ctx, span := tracer.Start(ctx, observability.SpanEmbedRequest,
		trace.WithAttributes(
			attribute.String(observability.AttrLLMDeployment, e.deployment),
		),
	)
	defer span.End()

	payload, err := json.Marshal(embedRequest{Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	url := fmt.Sprintf("%s/openai/deployments/%s/embeddings?api-version=%s",
		e.endpoint, e.deployment, e.apiVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("embedding request returned status %d: %s", resp.StatusCode, string(body))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var parsed embedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("embedding API error: %s", parsed.Error.Message)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}

	return parsed.Data[0].Embedding, nil
}

var _ Embedder = (*AzureOpenAIEmbedder)(nil)
