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

// Package server exposes the Orchestrator over HTTP/SSE (SPEC_FULL.md
// §11.1): a go-chi/chi/v5 router wiring the seven external operations of
// §6 to JSON request/response bodies, with the streaming endpoints
// rendered as text/event-stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kbagents/orchestrator/pkg/apierror"
	"github.com/kbagents/orchestrator/pkg/auth"
	"github.com/kbagents/orchestrator/pkg/config"
	"github.com/kbagents/orchestrator/pkg/observability"
	"github.com/kbagents/orchestrator/pkg/orchestration/orchestrator"
	"github.com/kbagents/orchestrator/pkg/orchestration/types"
)

// HTTPServer is the orchestrator's HTTP/SSE transport.
type HTTPServer struct {
	cfg    *config.ServerConfig
	orch   *orchestrator.Orchestrator
	auth   *auth.JWTValidator
	obs    *observability.Manager
	server *http.Server
	log    *slog.Logger
}

// NewHTTPServer builds the router and wraps it in an *http.Server. validator
// and obs may be nil; each degrades gracefully (no bearer-token requirement,
// no tracing/metrics middleware).
func NewHTTPServer(cfg *config.ServerConfig, orch *orchestrator.Orchestrator, validator *auth.JWTValidator, obs *observability.Manager, log *slog.Logger) *HTTPServer {
	if log == nil {
		log = slog.Default()
	}
	s := &HTTPServer{cfg: cfg, orch: orch, auth: validator, obs: obs, log: log}
	s.server = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// routes builds the chi router. Middleware chain order is observability ->
// logging -> cors -> auth -> routes, so every request is traced/measured
// regardless of how far it gets before failing.
func (s *HTTPServer) routes() http.Handler {
	r := chi.NewRouter()

	if s.obs != nil {
		r.Use(func(next http.Handler) http.Handler {
			return observability.HTTPMiddleware(s.obs.Tracer(), s.obs.Metrics())(next)
		})
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)
	if s.obs != nil && s.obs.MetricsEnabled() {
		r.Handle(s.obs.MetricsEndpoint(), s.obs.MetricsHandler())
	}

	r.Route("/v1", func(r chi.Router) {
		if s.auth != nil {
			r.Use(s.auth.HTTPMiddleware)
		}
		r.Post("/agents/execute", s.handleExecute(false))
		r.Post("/agents/stream", s.handleStream(false))
		r.Post("/enterprise/execute", s.handleExecute(true))
		r.Post("/enterprise/stream", s.handleStream(true))
		r.Get("/agents", s.handleListAgentKinds)
		r.Get("/tools", s.handleListTools)
		r.Post("/classify", s.handleClassify)
	})

	return r
}

func (s *HTTPServer) corsMiddleware(next http.Handler) http.Handler {
	cors := s.cfg.CORS
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case cors == nil:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "":
			for _, allowed := range cors.AllowedOrigins {
				if allowed == "*" || allowed == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
			if config.BoolValue(cors.AllowCredentials, false) {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
		default:
			for _, allowed := range cors.AllowedOrigins {
				if allowed == "*" {
					w.Header().Set("Access-Control-Allow-Origin", "*")
					break
				}
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// executeRequest is the wire shape of an execute/stream POST body.
type executeRequest struct {
	Task           string                     `json:"task"`
	AgentKind      types.AgentKind            `json:"agent_kind,omitempty"`
	SessionID      string                     `json:"session_id,omitempty"`
	Language       string                     `json:"language,omitempty"`
	MaxSteps       int                        `json:"max_steps,omitempty"`
	IncludeSources bool                       `json:"include_sources,omitempty"`
	FileContext    string                     `json:"file_context,omitempty"`
	URLContext     string                     `json:"url_context,omitempty"`
	Config         *types.OrchestrationConfig `json:"config,omitempty"`
}

func (req executeRequest) toOrchestratorRequest() orchestrator.Request {
	// An omitted max_steps decodes as 0; pass it on as "unset" (negative) so
	// the executor applies DefaultMaxSteps.
	maxSteps := req.MaxSteps
	if maxSteps == 0 {
		maxSteps = -1
	}
	return orchestrator.Request{
		Task: req.Task, AgentKind: req.AgentKind, SessionID: req.SessionID, Language: req.Language,
		MaxSteps: maxSteps, IncludeSources: req.IncludeSources, FileContext: req.FileContext,
		URLContext: req.URLContext, Config: req.Config,
	}
}

func (s *HTTPServer) handleExecute(enterprise bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body executeRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeError(w, r, apierror.Validation("invalid request body", err))
			return
		}
		if body.Task == "" {
			s.writeError(w, r, apierror.Validation("task is required", nil))
			return
		}

		userID := userIDFromRequest(r)
		req := body.toOrchestratorRequest()

		var resp orchestrator.Response
		if enterprise {
			resp = s.orch.ExecuteEnterprise(r.Context(), req, userID)
		} else {
			resp = s.orch.Execute(r.Context(), req, userID)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func (s *HTTPServer) handleStream(enterprise bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body executeRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeError(w, r, apierror.Validation("invalid request body", err))
			return
		}
		if body.Task == "" {
			s.writeError(w, r, apierror.Validation("task is required", nil))
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			s.writeError(w, r, apierror.Internal("streaming unsupported by this connection", nil))
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		userID := userIDFromRequest(r)
		req := body.toOrchestratorRequest()

		var events <-chan orchestrator.StreamEvent
		if enterprise {
			events = s.orch.StreamEnterprise(r.Context(), req, userID)
		} else {
			events = s.orch.Stream(r.Context(), req, userID)
		}

		keepAlive := time.NewTicker(time.Duration(s.cfg.SSEKeepAliveSeconds) * time.Second)
		defer keepAlive.Stop()

		for {
			select {
			case ev, open := <-events:
				if !open {
					return
				}
				s.writeSSEEvent(w, ev)
				flusher.Flush()
			case <-keepAlive.C:
				fmt.Fprint(w, ": keep-alive\n\n")
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	}
}

func (s *HTTPServer) writeSSEEvent(w http.ResponseWriter, ev orchestrator.StreamEvent) {
	if ev.Response != nil {
		data, err := json.Marshal(ev.Response)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: done\ndata: %s\n\n", data)
		return
	}

	data, err := json.Marshal(ev.Chunk)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Chunk.Kind, data)
}

func (s *HTTPServer) handleListAgentKinds(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.orch.ListAgentKinds())
}

func (s *HTTPServer) handleListTools(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromRequest(r)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.orch.ListTools(userID))
}

type classifyRequest struct {
	Task   string `json:"task"`
	UseLLM bool   `json:"use_llm,omitempty"`
}

type classifyResponse struct {
	Task      string          `json:"task"`
	AgentKind types.AgentKind `json:"agent_kind"`
	Method    string          `json:"method"`
}

func (s *HTTPServer) handleClassify(w http.ResponseWriter, r *http.Request) {
	var body classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, apierror.Validation("invalid request body", err))
		return
	}
	if body.Task == "" {
		s.writeError(w, r, apierror.Validation("task is required", nil))
		return
	}

	if !body.UseLLM {
		kind := orchestrator.ClassifyTask(body.Task)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(classifyResponse{Task: body.Task, AgentKind: kind, Method: "keyword"})
		return
	}

	kind, method, err := s.orch.ClassifyWithLLM(r.Context(), body.Task)
	if err != nil {
		s.log.Warn("classify_with_llm fell back to keyword scoring", "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(classifyResponse{Task: body.Task, AgentKind: kind, Method: method})
}

func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, apiErr *apierror.Error) {
	apiErr = apiErr.WithRequestID(middleware.GetReqID(r.Context()))
	resp := apierror.ToResponse(apiErr, apierror.AppMode())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.StatusCode())
	_ = json.NewEncoder(w).Encode(resp)
}

// userIDFromRequest resolves the acting user id from the JWT claims the
// auth middleware attached to the request context. Unauthenticated
// deployments (no validator configured) see an empty user id, which the
// Permission Manager treats as carrying no admin/override membership.
func userIDFromRequest(r *http.Request) string {
	claims := auth.GetClaims(r)
	if claims == nil {
		return ""
	}
	return claims.Subject
}

// Start runs the HTTP server until ctx is canceled, then shuts it down
// gracefully.
func (s *HTTPServer) Start(ctx context.Context) error {
	s.log.Info("http server starting", "address", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.TLS != nil && config.BoolValue(s.cfg.TLS.Enabled, false) {
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	s.log.Info("http server shutting down")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Address returns the host:port the server listens on.
func (s *HTTPServer) Address() string {
	return s.cfg.Address()
}
