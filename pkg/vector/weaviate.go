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

package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// WeaviateConfig configures the Weaviate provider.
type WeaviateConfig struct {
	// Host is the Weaviate server hostname.
	Host string `yaml:"host"`

	// Port is the Weaviate HTTP port (default: 8080).
	Port int `yaml:"port,omitempty"`

	// APIKey for authenticated access (optional).
	APIKey string `yaml:"api_key,omitempty"`

	// UseTLS enables HTTPS connections.
	UseTLS bool `yaml:"use_tls,omitempty"`

	// Class is the collection holding knowledge base chunks.
	Class string `yaml:"class,omitempty"`
}

// WeaviateProvider implements Provider over the Weaviate GraphQL API.
type WeaviateProvider struct {
	baseURL    string
	apiKey     string
	class      string
	httpClient *http.Client
}

// NewWeaviateProvider creates a new Weaviate provider.
func NewWeaviateProvider(cfg WeaviateConfig) (*WeaviateProvider, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required for Weaviate")
	}

	scheme := "http"
	if cfg.UseTLS {
		scheme = "https"
	}

	port := cfg.Port
	if port == 0 {
		port = 8080
	}

	class := cfg.Class
	if class == "" {
		class = "InsuranceChunk"
	}

	return &WeaviateProvider{
		baseURL:    fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, port),
		apiKey:     cfg.APIKey,
		class:      class,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Hybrid runs a hybrid vector + keyword search, optionally filtered to a
// single product.
func (p *WeaviateProvider) Hybrid(ctx context.Context, q HybridQuery) ([]Chunk, error) {
	var sb strings.Builder
	sb.WriteString("hybrid: {")
	sb.WriteString(fmt.Sprintf("query: %s", graphqlString(q.Query)))
	sb.WriteString(fmt.Sprintf(", alpha: %g", q.Alpha))
	if len(q.Vector) > 0 {
		sb.WriteString(", vector: ")
		sb.WriteString(vectorLiteral(q.Vector))
	}
	if len(q.TargetVectors) > 0 {
		// Scores across the named vectors are averaged; the server default
		// join is not guaranteed to be average.
		sb.WriteString(", targets: {combinationMethod: average, targetVectors: [")
		for i, tv := range q.TargetVectors {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(graphqlString(tv))
		}
		sb.WriteString("]}")
	}
	sb.WriteString("}")

	return p.runGetQuery(ctx, sb.String(), q.Limit, q.ProductName, "score")
}

// BM25 runs a keyword-only search.
func (p *WeaviateProvider) BM25(ctx context.Context, q BM25Query) ([]Chunk, error) {
	arg := fmt.Sprintf("bm25: {query: %s}", graphqlString(q.Query))
	return p.runGetQuery(ctx, arg, q.Limit, q.ProductName, "score")
}

// FetchByDocType returns chunks of a document type for one product.
func (p *WeaviateProvider) FetchByDocType(ctx context.Context, productName, docType string, limit int) ([]Chunk, error) {
	where := fmt.Sprintf(
		`where: {operator: And, operands: [{path: ["product_name"], operator: Equal, valueString: %s}, {path: ["doc_type"], operator: Equal, valueString: %s}]}`,
		graphqlString(productName), graphqlString(docType))

	query := fmt.Sprintf(`{
		Get {
			%s(%s, limit: %d) {
				content
				product_name
				doc_type
				source_file
			}
		}
	}`, p.class, where, limit)

	return p.execute(ctx, query)
}

func (p *WeaviateProvider) runGetQuery(ctx context.Context, searchArg string, limit int, productName, scoreField string) ([]Chunk, error) {
	args := []string{searchArg, "limit: " + strconv.Itoa(limit)}
	if productName != "" {
		args = append(args, fmt.Sprintf(
			`where: {path: ["product_name"], operator: Equal, valueString: %s}`,
			graphqlString(productName)))
	}

	query := fmt.Sprintf(`{
		Get {
			%s(%s) {
				content
				product_name
				doc_type
				source_file
				_additional { %s }
			}
		}
	}`, p.class, strings.Join(args, ", "), scoreField)

	return p.execute(ctx, query)
}

func (p *WeaviateProvider) execute(ctx context.Context, query string) ([]Chunk, error) {
	payload, err := json.Marshal(map[string]any{"query": query})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	url := fmt.Sprintf("%s/v1/graphql", p.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("search failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if errs, ok := result["errors"].([]any); ok && len(errs) > 0 {
		return nil, fmt.Errorf("graphql errors: %v", errs)
	}

	return p.convertResults(result), nil
}

func (p *WeaviateProvider) convertResults(result map[string]any) []Chunk {
	data, ok := result["data"].(map[string]any)
	if !ok {
		return []Chunk{}
	}

	get, ok := data["Get"].(map[string]any)
	if !ok {
		return []Chunk{}
	}

	classData, ok := get[p.class].([]any)
	if !ok {
		return []Chunk{}
	}

	chunks := make([]Chunk, 0, len(classData))
	for _, obj := range classData {
		objMap, ok := obj.(map[string]any)
		if !ok {
			continue
		}

		chunk := Chunk{}
		if v, ok := objMap["content"].(string); ok {
			chunk.Content = v
		}
		if v, ok := objMap["product_name"].(string); ok {
			chunk.ProductName = v
		}
		if v, ok := objMap["doc_type"].(string); ok {
			chunk.DocType = v
		}
		if v, ok := objMap["source_file"].(string); ok {
			chunk.SourceFile = v
		}

		if additional, ok := objMap["_additional"].(map[string]any); ok {
			switch s := additional["score"].(type) {
			case float64:
				chunk.Score = float32(s)
			case string:
				if f, err := strconv.ParseFloat(s, 64); err == nil {
					chunk.Score = float32(f)
				}
			}
		}

		chunks = append(chunks, chunk)
	}

	return chunks
}

// Close closes the provider.
func (p *WeaviateProvider) Close() error {
	return nil
}

func graphqlString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func vectorLiteral(vec []float32) string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, v := range vec {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	sb.WriteString("]")
	return sb.String()
}

var _ Provider = (*WeaviateProvider)(nil)
