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
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) (*WeaviateProvider, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	provider, err := NewWeaviateProvider(WeaviateConfig{
		Host:  host,
		Port:  port,
		Class: "InsuranceChunk",
	})
	require.NoError(t, err)
	return provider, server
}

func graphqlResponse(chunks []map[string]any) map[string]any {
	return map[string]any{
		"data": map[string]any{
			"Get": map[string]any{
				"InsuranceChunk": chunks,
			},
		},
	}
}

func TestWeaviateProvider_Hybrid(t *testing.T) {
	var gotQuery string
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/graphql", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotQuery = body["query"]

		json.NewEncoder(w).Encode(graphqlResponse([]map[string]any{
			{
				"content":      "Travel insurance covers trip cancellation.",
				"product_name": "Travel",
				"doc_type":     "faq",
				"source_file":  "travel_faq.md",
				"_additional":  map[string]any{"score": "0.91"},
			},
		}))
	})

	chunks, err := provider.Hybrid(context.Background(), HybridQuery{
		Query:         "trip cancellation",
		Vector:        []float32{0.1, 0.2},
		Alpha:         0.7,
		Limit:         10,
		TargetVectors: []string{"content_vector", "questions_vector"},
		ProductName:   "Travel",
	})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Travel", chunks[0].ProductName)
	assert.InDelta(t, 0.91, float64(chunks[0].Score), 0.001)

	assert.Contains(t, gotQuery, `alpha: 0.7`)
	assert.Contains(t, gotQuery, `targets: {combinationMethod: average, targetVectors: ["content_vector", "questions_vector"]}`)
	assert.Contains(t, gotQuery, `valueString: "Travel"`)
	assert.Contains(t, gotQuery, "limit: 10")
}

func TestWeaviateProvider_BM25(t *testing.T) {
	var gotQuery string
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotQuery = body["query"]

		json.NewEncoder(w).Encode(graphqlResponse(nil))
	})

	chunks, err := provider.BM25(context.Background(), BM25Query{
		Query: "helper coverage",
		Limit: 5,
	})
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Contains(t, gotQuery, `bm25: {query: "helper coverage"}`)
	assert.Contains(t, gotQuery, "limit: 5")
	assert.NotContains(t, gotQuery, "where:")
}

func TestWeaviateProvider_FetchByDocType(t *testing.T) {
	var gotQuery string
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotQuery = body["query"]

		json.NewEncoder(w).Encode(graphqlResponse([]map[string]any{
			{"content": "Gold: overseas medical up to $500,000", "product_name": "Travel", "doc_type": "benefits"},
		}))
	})

	chunks, err := provider.FetchByDocType(context.Background(), "Travel", "benefits", 20)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "benefits", chunks[0].DocType)
	assert.Contains(t, gotQuery, `doc_type`)
	assert.Contains(t, gotQuery, `valueString: "benefits"`)
}

func TestWeaviateProvider_GraphQLErrors(t *testing.T) {
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []any{map[string]any{"message": "class not found"}},
		})
	})

	_, err := provider.BM25(context.Background(), BM25Query{Query: "x", Limit: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "class not found")
}

func TestNewWeaviateProvider_RequiresHost(t *testing.T) {
	_, err := NewWeaviateProvider(WeaviateConfig{})
	assert.Error(t, err)
}
