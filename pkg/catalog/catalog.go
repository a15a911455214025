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

// Package catalog defines the closed product set: tiers, required slots,
// slot metadata, validation rules and the deterministic tier decision.
package catalog

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Product names.
const (
	ProductTravel           = "Travel"
	ProductMaid             = "Maid"
	ProductCar              = "Car"
	ProductPersonalAccident = "PersonalAccident"
)

// Slot types.
const (
	SlotTypeValue  = "value"
	SlotTypeYesNo  = "yesno"
	SlotTypeChoice = "choice"
)

// SlotMeta describes one questionnaire slot.
type SlotMeta struct {
	Type        string   `yaml:"type" json:"type"`
	Description string   `yaml:"description" json:"description"`
	Options     []string `yaml:"options,omitempty" json:"options,omitempty"`
	Format      string   `yaml:"format,omitempty" json:"format,omitempty"`

	// Question is the preferred phrasing when asking for this slot.
	Question string `yaml:"question,omitempty" json:"-"`

	// ValidationRule is handed to the slot validator verbatim.
	ValidationRule string `yaml:"validation_rule,omitempty" json:"-"`
}

// Product is one entry in the closed catalog.
type Product struct {
	Name          string              `yaml:"name"`
	Tiers         []string            `yaml:"tiers"`
	RequiredSlots []string            `yaml:"required_slots"`
	Slots         map[string]SlotMeta `yaml:"slots"`
}

// Catalog is the product registry.
type Catalog struct {
	products map[string]Product
}

// New builds a catalog from explicit products. Used by configuration
// overrides; most callers want Default.
func New(products []Product) *Catalog {
	c := &Catalog{products: make(map[string]Product, len(products))}
	for _, p := range products {
		c.products[strings.ToLower(p.Name)] = p
	}
	return c
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return New([]Product{
		{
			Name:          ProductTravel,
			Tiers:         []string{"Basic", "Silver", "Gold", "Platinum"},
			RequiredSlots: []string{"destination", "travel_duration", "pre_existing_medical_condition", "plan_preference"},
			Slots: map[string]SlotMeta{
				"destination": {
					Type:           SlotTypeValue,
					Description:    "Country or region the user is traveling to",
					Question:       "Could you please tell me where you will be travelling to?",
					ValidationRule: "Must be a real country or region name. Normalize to the common English country name.",
				},
				"travel_duration": {
					Type:           SlotTypeValue,
					Description:    "Number of days for the trip",
					Format:         "<n> days",
					Question:       "How long will your trip be?",
					ValidationRule: "Must be a positive whole number of days between 1 and 182. Normalize to '<n> days'.",
				},
				"pre_existing_medical_condition": {
					Type:           SlotTypeYesNo,
					Description:    "Whether the user has any pre-existing medical conditions (yes/no)",
					Question:       "Do you have any pre-existing medical conditions that we should note for this trip?",
					ValidationRule: "Accept only yes or no. Normalize to lowercase yes/no.",
				},
				"plan_preference": {
					Type:           SlotTypeChoice,
					Description:    "The user's coverage preference",
					Options:        []string{"budget", "comprehensive"},
					Question:       "Do you prefer a budget-friendly plan or a comprehensive plan?",
					ValidationRule: "Accept only 'budget' or 'comprehensive' (including close paraphrases such as 'cheap' or 'full coverage'). Normalize to the option name.",
				},
			},
		},
		{
			Name:          ProductMaid,
			Tiers:         []string{"Basic", "Enhanced", "Premier", "Exclusive"},
			RequiredSlots: []string{"duration_of_insurance", "maid_country", "coverage_above_mom_minimum", "add_ons"},
			Slots: map[string]SlotMeta{
				"duration_of_insurance": {
					Type:           SlotTypeValue,
					Description:    "How long the insurance coverage is needed (months or years)",
					Format:         "<n> months",
					Question:       "How long would you like the insurance coverage to last?",
					ValidationRule: "Must be a duration in months or years, at least 2 months. Normalize to '<n> months'.",
				},
				"maid_country": {
					Type:           SlotTypeValue,
					Description:    "Country where the domestic helper is from",
					Question:       "May I know which country is your maid from?",
					ValidationRule: "Must be a real country name. Normalize to the common English country name.",
				},
				"coverage_above_mom_minimum": {
					Type:           SlotTypeYesNo,
					Description:    "Whether the user wants coverage beyond the MOM minimum (yes/no)",
					Question:       "Would you like coverage above the MOM minimum requirement?",
					ValidationRule: "Accept only yes or no. Normalize to lowercase yes/no.",
				},
				"add_ons": {
					Type:           SlotTypeChoice,
					Description:    "Whether the user wants additional add-on coverages",
					Options:        []string{"required", "not_required"},
					Question:       "Would you be also interested in add-on coverages such as increased Hospital expenses, waiver of excess and medical examination package cover?",
					ValidationRule: "Accept yes/no style answers. Normalize to 'required' or 'not_required'.",
				},
			},
		},
		{
			Name: ProductCar,
			// Direct synthesis: no tiers, no slots.
		},
		{
			Name:          ProductPersonalAccident,
			Tiers:         []string{"Bronze", "Silver", "Premier", "Platinum"},
			RequiredSlots: []string{"coverage_scope", "risk_level", "desired_amount"},
			Slots: map[string]SlotMeta{
				"coverage_scope": {
					Type:           SlotTypeChoice,
					Description:    "Who the personal accident cover is for",
					Options:        []string{"individual", "family"},
					Question:       "Is the personal accident cover for yourself or for your family?",
					ValidationRule: "Accept only 'individual' or 'family'. Normalize to the option name.",
				},
				"risk_level": {
					Type:           SlotTypeChoice,
					Description:    "The user's occupational or lifestyle risk level",
					Options:        []string{"low", "moderate", "high"},
					Question:       "How would you describe your day-to-day risk level: low, moderate, or high?",
					ValidationRule: "Accept only 'low', 'moderate' or 'high'. Normalize to the option name.",
				},
				"desired_amount": {
					Type:           SlotTypeValue,
					Description:    "Monthly coverage amount the user wants, in dollars",
					Format:         "<n>",
					Question:       "What coverage amount are you looking for, between $500 and $3,500?",
					ValidationRule: "Must be a number between 500 and 3500. Normalize to the plain number without currency symbols.",
				},
			},
		},
	})
}

// Lookup resolves a product by name, case-insensitively.
func (c *Catalog) Lookup(name string) (Product, bool) {
	p, ok := c.products[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Normalize returns the canonical product name, or empty when unknown.
func (c *Catalog) Normalize(name string) string {
	if p, ok := c.Lookup(name); ok {
		return p.Name
	}
	return ""
}

// Names lists the canonical product names.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.products))
	for _, p := range c.products {
		names = append(names, p.Name)
	}
	return names
}

// RequiredSlots returns the required slot names for a product.
func (c *Catalog) RequiredSlots(name string) []string {
	p, ok := c.Lookup(name)
	if !ok {
		return nil
	}
	return p.RequiredSlots
}

// Tiers returns the tier names for a product.
func (c *Catalog) Tiers(name string) []string {
	p, ok := c.Lookup(name)
	if !ok {
		return nil
	}
	return p.Tiers
}

// HasTier reports whether tier is valid for the product, matching
// case-insensitively, and returns the canonical name.
func (c *Catalog) HasTier(product, tier string) (string, bool) {
	for _, t := range c.Tiers(product) {
		if strings.EqualFold(t, strings.TrimSpace(tier)) {
			return t, true
		}
	}
	return "", false
}

// SlotMetaJSON renders the product's slot metadata as a JSON blob for the
// extractor prompt.
func (c *Catalog) SlotMetaJSON(name string) string {
	p, ok := c.Lookup(name)
	if !ok || len(p.Slots) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(p.Slots)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// RecommendTier computes the recommended tier from completed slots.
// Products without a decision rule (Car) return empty.
func (c *Catalog) RecommendTier(product string, slotValue func(string) string) string {
	switch strings.ToLower(strings.TrimSpace(product)) {
	case "travel":
		switch strings.ToLower(strings.TrimSpace(slotValue("plan_preference"))) {
		case "budget":
			return "Silver"
		case "comprehensive":
			return "Gold"
		}
	case "maid":
		switch strings.ToLower(strings.TrimSpace(slotValue("coverage_above_mom_minimum"))) {
		case "yes":
			return "Premier"
		case "no":
			return "Enhanced"
		}
	case "personalaccident":
		amount, err := strconv.Atoi(strings.TrimSpace(slotValue("desired_amount")))
		if err != nil {
			return ""
		}
		switch {
		case amount >= 500 && amount <= 1000:
			return "Silver"
		case amount >= 1001 && amount <= 2500:
			return "Premier"
		case amount >= 2501 && amount <= 3500:
			return "Platinum"
		}
	}
	return ""
}
