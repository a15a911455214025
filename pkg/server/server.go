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

// Package server exposes the REST API: the /chat endpoint, health and
// readiness probes, Prometheus metrics and the WhatsApp webhook routes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kadirpekel/advisor/pkg/flow"
	"github.com/kadirpekel/advisor/pkg/guard"
	"github.com/kadirpekel/advisor/pkg/observability"
	"github.com/kadirpekel/advisor/pkg/session"
	"github.com/kadirpekel/advisor/pkg/whatsapp"
)

// TurnHandler runs one conversational turn. Satisfied by flow.Engine.
type TurnHandler interface {
	HandleTurn(ctx context.Context, sess *session.Session, message string) (*flow.Turn, error)
}

// Server wires the chat engine and its supporting services into an HTTP
// surface.
type Server struct {
	engine   TurnHandler
	sessions *session.Service
	locker   *guard.Locker
	wa       *whatsapp.Handler

	httpServer *http.Server
}

type Option func(*Server)

// WithWhatsApp mounts the Meta webhook routes.
func WithWhatsApp(handler *whatsapp.Handler) Option {
	return func(s *Server) {
		s.wa = handler
	}
}

func New(addr string, engine TurnHandler, sessions *session.Service, locker *guard.Locker, opts ...Option) *Server {
	s := &Server{
		engine:   engine,
		sessions: sessions,
		locker:   locker,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes builds the router. Exposed separately for tests.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/chat", s.handleChat)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	if s.wa != nil {
		r.Get("/meta-whatsapp", s.wa.Verify)
		r.Post("/meta-whatsapp", s.wa.Receive)
		r.Get("/whatsapp/health", s.wa.Health)
	}

	return r
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	slog.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
	Sources  string `json:"sources"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "session_id and message are required"})
		observability.RequestsTotal.WithLabelValues("/chat", "400").Inc()
		return
	}

	ctx := r.Context()
	slog.Info("chat request", "session_id", req.SessionID, "message_len", len(req.Message))

	// "hi" resets the session before it is consulted, so a returning user
	// always starts clean.
	if strings.EqualFold(strings.TrimSpace(req.Message), "hi") {
		if sess, err := s.sessions.Get(ctx, req.SessionID); err == nil {
			if err := s.sessions.Reset(ctx, sess); err != nil {
				slog.Error("session reset failed", "session_id", req.SessionID, "error", err)
			}
		} else {
			slog.Error("session load failed for greeting", "session_id", req.SessionID, "error", err)
		}
		writeJSON(w, http.StatusOK, chatResponse{Response: flow.Greeting(s.sessions.Now())})
		observability.RequestsTotal.WithLabelValues("/chat", "200").Inc()
		return
	}

	token, err := s.locker.Acquire(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, guard.ErrLockTimeout) {
			observability.LockTimeouts.WithLabelValues("chat").Inc()
			observability.RequestsTotal.WithLabelValues("/chat", "503").Inc()
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Detail: "Service busy, please retry"})
			return
		}
		s.chatError(w, req.SessionID, err)
		return
	}
	defer func() {
		if err := s.locker.Release(ctx, req.SessionID, token); err != nil {
			slog.Warn("session lock release failed", "session_id", req.SessionID, "error", err)
		}
	}()

	sess, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		s.chatError(w, req.SessionID, err)
		return
	}

	turn, err := s.engine.HandleTurn(ctx, sess, req.Message)
	if err != nil {
		s.chatError(w, req.SessionID, err)
		return
	}

	if err := s.sessions.AppendHistory(ctx, sess, req.Message, turn.Reply); err != nil {
		slog.Error("history append failed", "session_id", req.SessionID, "error", err)
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		s.chatError(w, req.SessionID, err)
		return
	}

	observability.RequestsTotal.WithLabelValues("/chat", "200").Inc()
	writeJSON(w, http.StatusOK, chatResponse{Response: turn.Reply, Sources: turn.Sources})
}

func (s *Server) chatError(w http.ResponseWriter, sessionID string, err error) {
	slog.Error("chat request failed", "session_id", sessionID, "error", err)
	observability.RequestsTotal.WithLabelValues("/chat", "500").Inc()
	writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "internal error"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "HLAS Insurance Assistant",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	details := map[string]string{"mongo": "ok", "redis": "ok"}
	status := "ok"
	code := http.StatusOK

	storeErr, cacheErr := s.sessions.Ping(r.Context())
	if storeErr != nil {
		details["mongo"] = fmt.Sprintf("error: %v", storeErr)
		status = "error"
		code = http.StatusServiceUnavailable
	}
	if cacheErr != nil {
		details["redis"] = fmt.Sprintf("error: %v", cacheErr)
		status = "error"
		code = http.StatusServiceUnavailable
	}

	body := map[string]string{"status": status}
	for k, v := range details {
		body[k] = v
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("writing response failed", "error", err)
	}
}
