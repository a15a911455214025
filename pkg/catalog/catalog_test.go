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

package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupCaseInsensitive(t *testing.T) {
	c := Default()

	p, ok := c.Lookup("travel")
	assert.True(t, ok)
	assert.Equal(t, ProductTravel, p.Name)

	assert.Equal(t, ProductPersonalAccident, c.Normalize("personalaccident"))
	assert.Empty(t, c.Normalize("Home"))
}

func TestRequiredSlots(t *testing.T) {
	c := Default()

	assert.Equal(t,
		[]string{"destination", "travel_duration", "pre_existing_medical_condition", "plan_preference"},
		c.RequiredSlots(ProductTravel))
	assert.Empty(t, c.RequiredSlots(ProductCar))
}

func TestHasTier(t *testing.T) {
	c := Default()

	canonical, ok := c.HasTier(ProductTravel, "gold")
	assert.True(t, ok)
	assert.Equal(t, "Gold", canonical)

	_, ok = c.HasTier(ProductTravel, "Exclusive")
	assert.False(t, ok)

	_, ok = c.HasTier(ProductCar, "Gold")
	assert.False(t, ok)
}

func TestRecommendTier(t *testing.T) {
	c := Default()

	slots := func(m map[string]string) func(string) string {
		return func(name string) string { return m[name] }
	}

	assert.Equal(t, "Silver", c.RecommendTier("Travel", slots(map[string]string{"plan_preference": "budget"})))
	assert.Equal(t, "Gold", c.RecommendTier("Travel", slots(map[string]string{"plan_preference": "Comprehensive"})))

	assert.Equal(t, "Premier", c.RecommendTier("Maid", slots(map[string]string{"coverage_above_mom_minimum": "yes"})))
	assert.Equal(t, "Enhanced", c.RecommendTier("Maid", slots(map[string]string{"coverage_above_mom_minimum": "no"})))

	assert.Equal(t, "Silver", c.RecommendTier("PersonalAccident", slots(map[string]string{"desired_amount": "1000"})))
	assert.Equal(t, "Premier", c.RecommendTier("PersonalAccident", slots(map[string]string{"desired_amount": "1001"})))
	assert.Equal(t, "Platinum", c.RecommendTier("PersonalAccident", slots(map[string]string{"desired_amount": "3500"})))
	assert.Empty(t, c.RecommendTier("PersonalAccident", slots(map[string]string{"desired_amount": "400"})))

	assert.Empty(t, c.RecommendTier("Car", slots(nil)))
}

func TestSlotMetaJSON(t *testing.T) {
	c := Default()

	blob := c.SlotMetaJSON(ProductTravel)
	assert.Contains(t, blob, `"plan_preference"`)
	assert.Contains(t, blob, `"budget"`)
	// Prompt-side fields stay out of the extractor blob.
	assert.NotContains(t, blob, "travelling to?")

	assert.Equal(t, "{}", c.SlotMetaJSON(ProductCar))
	assert.Equal(t, "{}", c.SlotMetaJSON("unknown"))
}
