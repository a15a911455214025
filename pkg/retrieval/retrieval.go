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

// Package retrieval combines the embedder and the vector store into the
// search operations the sub-flows use.
package retrieval

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/advisor/pkg/embedders"
	"github.com/kadirpekel/advisor/pkg/observability"
	"github.com/kadirpekel/advisor/pkg/vector"
)

// The two named vectors every knowledge chunk carries. Hybrid search
// scores against their average.
var targetVectors = []string{"content_vector", "questions_vector"}

const benefitsDocType = "benefits"

// Searcher is what the sub-flows consume.
type Searcher interface {
	HybridSearch(ctx context.Context, query, product string) ([]vector.Chunk, error)
	FetchBenefits(ctx context.Context, product string) ([]vector.Chunk, error)
}

// Retriever embeds the query and runs hybrid search with a lexical
// fallback.
type Retriever struct {
	embedder embedders.Embedder
	provider vector.Provider

	alpha         float64
	topK          int
	fallbackTopK  int
	benefitsLimit int
}

type Option func(*Retriever)

func WithAlpha(alpha float64) Option {
	return func(r *Retriever) {
		r.alpha = alpha
	}
}

func WithTopK(topK, fallbackTopK int) Option {
	return func(r *Retriever) {
		r.topK = topK
		r.fallbackTopK = fallbackTopK
	}
}

func New(embedder embedders.Embedder, provider vector.Provider, opts ...Option) *Retriever {
	r := &Retriever{
		embedder:      embedder,
		provider:      provider,
		alpha:         0.7,
		topK:          10,
		fallbackTopK:  5,
		benefitsLimit: 100,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HybridSearch embeds the query and searches the product's chunks. On
// embedding or hybrid failure, or an empty result, it degrades to a
// keyword-only query. An empty slice means nothing relevant was found.
func (r *Retriever) HybridSearch(ctx context.Context, query, product string) ([]vector.Chunk, error) {
	tracer := observability.GetTracer("advisor.retrieval")
	ctx, span := tracer.Start(ctx, observability.SpanRetrieval,
		trace.WithAttributes(attribute.String(observability.AttrProduct, product)),
	)
	defer span.End()

	chunks, err := r.hybrid(ctx, query, product)
	if err != nil {
		slog.Warn("hybrid search failed, falling back to keyword search",
			"product", product, "error", err)
	}
	if len(chunks) > 0 {
		return chunks, nil
	}

	chunks, err = r.provider.BM25(ctx, vector.BM25Query{
		Query:       query,
		Limit:       r.fallbackTopK,
		ProductName: product,
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *Retriever) hybrid(ctx context.Context, query, product string) ([]vector.Chunk, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	return r.provider.Hybrid(ctx, vector.HybridQuery{
		Query:         query,
		Vector:        vec,
		Alpha:         r.alpha,
		Limit:         r.topK,
		TargetVectors: targetVectors,
		ProductName:   product,
	})
}

// FetchBenefits returns every benefits chunk for a product.
func (r *Retriever) FetchBenefits(ctx context.Context, product string) ([]vector.Chunk, error) {
	return r.provider.FetchByDocType(ctx, product, benefitsDocType, r.benefitsLimit)
}

// JoinContext concatenates chunks into the context block handed to
// synthesis templates, each prefixed with its document type.
func JoinContext(chunks []vector.Chunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		docType := c.DocType
		if docType == "" {
			docType = "document"
		}
		parts = append(parts, "["+docType+"] "+c.Content)
	}
	return strings.Join(parts, "\n\n")
}

// JoinSources concatenates the distinct source files of the chunks.
func JoinSources(chunks []vector.Chunk) string {
	seen := make(map[string]bool)
	var sources []string
	for _, c := range chunks {
		if c.SourceFile == "" || seen[c.SourceFile] {
			continue
		}
		seen[c.SourceFile] = true
		sources = append(sources, c.SourceFile)
	}
	return strings.Join(sources, ", ")
}

var _ Searcher = (*Retriever)(nil)
