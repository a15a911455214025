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

package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Span names used across the service.
const (
	SpanLLMRequest   = "llm.request"
	SpanEmbedRequest = "embed.request"
	SpanRetrieval    = "retrieval.query"
)

// Attribute keys.
const (
	AttrLLMDeployment = "llm.deployment"
	AttrProduct       = "product"
	AttrTaskLabel     = "task.label"
)

// GetTracer returns a named tracer from the globally registered provider.
// Without an SDK installed this yields a no-op tracer, so instrumented code
// never has to nil-check.
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
