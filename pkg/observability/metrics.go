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

// Package observability holds the Prometheus metrics and the otel tracer
// accessor shared across the service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts HTTP requests by endpoint and status code.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advisor_requests_total",
		Help: "Total HTTP requests",
	}, []string{"endpoint", "status"})

	// WAMessagesProcessedTotal counts WhatsApp messages grouped by outcome
	// (ok, duplicate, out_of_order, rate_limited, error).
	WAMessagesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advisor_wa_messages_processed_total",
		Help: "Total WhatsApp messages processed grouped by result",
	}, []string{"result"})

	// SessionCacheHits counts session reads served from the cache.
	SessionCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "advisor_session_cache_hits_total",
		Help: "Session cache hits",
	})

	// SessionCacheMisses counts session reads that fell through to the
	// durable store.
	SessionCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "advisor_session_cache_misses_total",
		Help: "Session cache misses",
	})

	// LockTimeouts counts per-session lock acquisition timeouts by scope.
	LockTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advisor_lock_timeouts_total",
		Help: "Session lock acquisition timeouts",
	}, []string{"scope"})

	// LLMCallDuration observes LLM call latency per task label.
	LLMCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "advisor_llm_call_duration_seconds",
		Help:    "LLM call duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"deployment"})

	// LLMCallErrors counts failed LLM calls per deployment.
	LLMCallErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advisor_llm_call_errors_total",
		Help: "Total failed LLM calls",
	}, []string{"deployment"})
)
