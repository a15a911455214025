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

// Package vector provides access to the knowledge base stored in Weaviate.
package vector

import "context"

// Chunk is a retrieved knowledge base fragment.
type Chunk struct {
	Content     string  `json:"content"`
	ProductName string  `json:"product_name"`
	DocType     string  `json:"doc_type"`
	SourceFile  string  `json:"source_file"`
	Score       float32 `json:"score"`
}

// HybridQuery describes a hybrid (vector + keyword) search.
type HybridQuery struct {
	Query string
	// Vector is the query embedding. When empty the search degrades to
	// keyword-only on the server side.
	Vector []float32
	// Alpha balances vector and keyword scores (1 = pure vector).
	Alpha float64
	Limit int
	// TargetVectors are the named vectors to score against, averaged.
	TargetVectors []string
	// ProductName filters chunks to a single product when set.
	ProductName string
}

// BM25Query describes a keyword-only search.
type BM25Query struct {
	Query       string
	Limit       int
	ProductName string
}

// Provider is the knowledge base search interface.
type Provider interface {
	Hybrid(ctx context.Context, q HybridQuery) ([]Chunk, error)
	BM25(ctx context.Context, q BM25Query) ([]Chunk, error)
	// FetchByDocType returns chunks of one document type for a product,
	// without scoring. Used for benefit tables.
	FetchByDocType(ctx context.Context, productName, docType string, limit int) ([]Chunk, error)
	Close() error
}
