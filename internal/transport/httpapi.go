package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/classroomgames/tugquiz/internal/config"
	"github.com/classroomgames/tugquiz/internal/session"
	"github.com/classroomgames/tugquiz/internal/wire"
)

// Server is the combined WebSocket + Control API HTTP server (§6,
// transport notes).
type Server struct {
	cfg     config.Config
	auth    *Authenticator
	manager *session.Manager
	control *session.ControlAPI
	log     zerolog.Logger

	mux    *http.ServeMux
	server *http.Server
}

// New builds a Server bound to manager and wires its routes.
func New(cfg config.Config, manager *session.Manager, log zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		auth:    NewAuthenticator(cfg.JWTSigningKey),
		manager: manager,
		control: session.NewControlAPI(manager),
		log:     log,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins serving. It blocks until the server is shut down.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.cfg.ListenAddr).Msg("session engine listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /ws", s.HandleWS)

	s.mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	s.mux.HandleFunc("POST /v1/sessions/{id}/init", s.requireTeacher(s.handleInit))
	s.mux.HandleFunc("GET /v1/sessions/{id}/state", s.requireAuth(s.handleGetState))
	s.mux.HandleFunc("POST /v1/sessions/{id}/answers", s.requireAuth(s.handleSubmitAnswer))
	s.mux.HandleFunc("POST /v1/sessions/{id}/kick", s.requireTeacher(s.handleKick))
	s.mux.HandleFunc("POST /v1/sessions/{id}/end", s.requireTeacher(s.handleEnd))

	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
}

type ctxKey int

const claimsKey ctxKey = 0

// requireAuth validates the Authorization bearer token and checks it
// matches the {id} path segment before calling next.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.bearerClaims(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		if claims.SessionID != r.PathValue("id") {
			http.Error(w, "token does not authorize this session", http.StatusForbidden)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	}
}

// requireTeacher additionally rejects student-role tokens.
func (s *Server) requireTeacher(next http.HandlerFunc) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		claims := r.Context().Value(claimsKey).(*Claims)
		if claims.Role != session.RoleTeacher {
			http.Error(w, "teacher role required", http.StatusForbidden)
			return
		}
		next(w, r)
	})
}

func (s *Server) bearerClaims(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, fmt.Errorf("missing bearer token")
	}
	return s.auth.Verify(token)
}

type createSessionRequest struct {
	SessionID   string   `json:"sessionId"`
	TenantID    string   `json:"tenantId"`
	QuestionIDs []string `json:"questionIds"`
	Teams       []struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Color string `json:"color"`
		Side  string `json:"side"`
	} `json:"teams"`
}

// handleCreateSession registers a brand-new session's in-memory runtime
// side. The classroom platform is expected to have already created the
// relational session/roster rows before calling this; the bearer token
// here authenticates the platform itself, not a particular session, so
// it is checked for validity but not matched against a session id.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if _, err := s.bearerClaims(r); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	teams := make([]*session.Team, 0, len(req.Teams))
	for _, t := range req.Teams {
		teams = append(teams, &session.Team{ID: t.ID, Name: t.Name, Color: t.Color, Side: session.Side(t.Side)})
	}
	s.control.CreateSession(req.SessionID, req.TenantID, teams, req.QuestionIDs)
	w.WriteHeader(http.StatusCreated)
}

type initRequest struct {
	RulesetID string `json:"rulesetId"`
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	var req initRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	sessionID := r.PathValue("id")
	if err := s.control.Init(r.Context(), sessionID, req.RulesetID); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	claims := r.Context().Value(claimsKey).(*Claims)
	proj, err := s.control.GetState(r.Context(), r.PathValue("id"), claims.Role)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.ToWireState(proj))
}

type submitAnswerRequest struct {
	StudentID      string `json:"studentId"`
	InstanceID     string `json:"instanceId"`
	AnswerID       string `json:"answerId"`
	ResponseTimeMs int64  `json:"responseTimeMs"`
}

func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	result, err := s.control.SubmitAnswer(r.Context(), r.PathValue("id"), req.StudentID, req.InstanceID, req.AnswerID, req.ResponseTimeMs)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type kickRequest struct {
	StudentID string `json:"studentId"`
}

func (s *Server) handleKick(w http.ResponseWriter, r *http.Request) {
	var req kickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.control.Kick(r.Context(), r.PathValue("id"), req.StudentID); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	if err := s.control.End(r.Context(), r.PathValue("id")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeEngineError(w http.ResponseWriter, err error) {
	eerr := session.AsEngineError(err)
	status := http.StatusInternalServerError
	switch eerr.Kind {
	case session.KindProtocol, session.KindState:
		status = http.StatusBadRequest
	case session.KindAuthorization:
		status = http.StatusForbidden
	case session.KindRateLimit:
		status = http.StatusTooManyRequests
	}
	switch eerr.Code {
	case wire.ErrSessionNotFound:
		status = http.StatusNotFound
	case wire.ErrInvalidState:
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"code": string(eerr.Code), "message": eerr.Msg})
}
