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

package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSender_SendsTextMessage(t *testing.T) {
	var gotPath, gotAuth string
	var gotPayload outboundText

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewSender("12345", "token", WithBaseURL(server.URL))
	require.NoError(t, s.Send(context.Background(), "6591234567", "hello"))

	assert.Equal(t, "/12345/messages", gotPath)
	assert.Equal(t, "Bearer token", gotAuth)
	assert.Equal(t, "whatsapp", gotPayload.MessagingProduct)
	assert.Equal(t, "6591234567", gotPayload.To)
	assert.Equal(t, "hello", gotPayload.Text.Body)
}

func TestSender_TruncatesLongReply(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload outboundText
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		gotBody = payload.Text.Body
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewSender("12345", "token", WithBaseURL(server.URL))
	require.NoError(t, s.Send(context.Background(), "6591234567", strings.Repeat("x", MaxMessageLength+500)))

	assert.Len(t, gotBody, MaxMessageLength-50+len(truncationNote))
	assert.True(t, strings.HasSuffix(gotBody, truncationNote))
}

func TestSender_APIErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	s := NewSender("12345", "token", WithBaseURL(server.URL))
	err := s.Send(context.Background(), "6591234567", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestSender_RequiresCredentials(t *testing.T) {
	s := NewSender("", "")
	assert.Error(t, s.Send(context.Background(), "6591234567", "hello"))
}
