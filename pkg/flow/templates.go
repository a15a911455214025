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

package flow

import "strings"

// Template is a system/user prompt pair for user-facing synthesis.
// Placeholders ({question}, {context}, {product}, {tiers}, {tier},
// {add_ons}, {benefits}) are substituted at render time.
type Template struct {
	System string
	User   string
}

// Render substitutes the placeholder values into both parts.
func (t Template) Render(values map[string]string) (string, string) {
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "{"+k+"}", v)
	}
	replacer := strings.NewReplacer(pairs...)
	return replacer.Replace(t.System), replacer.Replace(t.User)
}

var defaultInfoTemplate = Template{
	System: "You are an insurance information responder. Answer using only the provided context. " +
		"Quote coverage amounts exactly as stated and say so when the context does not answer the question.",
	User: "Question: {question}\n\n[Context]\n{context}",
}

// infoTemplates are the product-specific answer templates for the
// information sub-flow.
var infoTemplates = map[string]Template{
	"travel": {
		System: "You are a Travel insurance specialist for HLAS. Answer the customer's question using only the " +
			"provided context. Mention tier names when coverage differs by tier. Never invent coverage.",
		User: "Question: {question}\n\n[Context]\n{context}",
	},
	"maid": {
		System: "You are a Maid insurance specialist for HLAS. Answer using only the provided context, " +
			"including MOM requirements where relevant. Never invent coverage.",
		User: "Question: {question}\n\n[Context]\n{context}",
	},
	"car": {
		System: "You are a Car insurance specialist for HLAS. Answer using only the provided context. " +
			"Never invent coverage.",
		User: "Question: {question}\n\n[Context]\n{context}",
	},
	"personalaccident": {
		System: "You are a Personal Accident insurance specialist for HLAS. Answer using only the provided " +
			"context. Never invent coverage.",
		User: "Question: {question}\n\n[Context]\n{context}",
	},
}

var defaultCompareTemplate = Template{
	System: "You are an insurance comparison responder. Compare the requested tiers succinctly using only the " +
		"provided context, in a short table or bullet list.",
	User: "Product: {product}\nTiers: {tiers}\nQuestion: {question}\n\n[Context]\n{context}",
}

var compareTemplates = map[string]Template{
	"car": {
		System: "You are a Car insurance responder. Car has no tiers; compare the requested aspects of the " +
			"coverage using only the provided context.",
		User: "Product: {product}\nQuestion: {question}\n\n[Context]\n{context}",
	},
}

var defaultSummaryTemplate = Template{
	System: "You are an insurance summary responder. Summarize the coverage of the requested tier(s) using only " +
		"the provided context. Keep it short and concrete.",
	User: "Product: {product}\nTiers: {tiers}\nQuestion: {question}\n\n[Context]\n{context}",
}

var defaultRecommendationTemplate = Template{
	System: "You are an insurance advisor. Recommend the {tier} plan and explain, using only the provided " +
		"benefits, why it fits the customer's answers. Keep it friendly and concrete.",
	User: "Recommended tier: {tier}\n\n[Benefits]\n{benefits}",
}

// recommendationTemplates are rendered once all slots are filled. Maid's
// template additionally reflects the add-on preference.
var recommendationTemplates = map[string]Template{
	"maid": {
		System: "You are a Maid insurance advisor. Recommend the {tier} plan using only the provided benefits, " +
			"and address the customer's add-on preference.",
		User: "Recommended tier: {tier}\nAdd-ons preference: {add_ons}\n\n[Benefits]\n{benefits}",
	},
	"car": {
		System: "You are a Car insurance advisor. Present the key benefits of the Car plan using only the " +
			"provided benefits. There are no tiers to choose between.",
		User: "[Benefits]\n{benefits}",
	},
}

func templateFor(templates map[string]Template, fallback Template, product string) Template {
	if t, ok := templates[strings.ToLower(strings.TrimSpace(product))]; ok {
		return t
	}
	return fallback
}
