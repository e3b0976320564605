package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/shelfscan/shelfscan/internal/app"
	"github.com/shelfscan/shelfscan/internal/logging"
	"github.com/shelfscan/shelfscan/internal/session"
	"github.com/shelfscan/shelfscan/internal/store"
	_ "github.com/shelfscan/shelfscan/internal/server/docs" // swagger spec registration
)

// Server is the HTTP + WebSocket API surface.
type Server struct {
	cfg          Config
	orchestrator *app.Orchestrator
	router       chi.Router
	upgrader     websocket.Upgrader
	logger       logging.Logger
}

type ctxKey int

const userKey ctxKey = iota

// NewServer creates a Server with its own Orchestrator.
func NewServer(cfg Config) (*Server, error) {
	if cfg.AppConfig == nil {
		cfg.AppConfig = app.DefaultConfig()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("server")
	}

	orch, err := app.NewOrchestrator(cfg.AppConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	return NewServerWith(cfg, orch, logger), nil
}

// NewServerWith wires routes around an existing orchestrator; used by tests
// that inject fakes.
func NewServerWith(cfg Config, orch *app.Orchestrator, logger logging.Logger) *Server {
	s := &Server{
		cfg:          cfg,
		orchestrator: orch,
		router:       chi.NewRouter(),
		logger:       logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: restrict origins once the UI host is configurable
				return true
			},
		},
	}
	s.routes()
	return s
}

// Orchestrator returns the underlying orchestrator for advanced use (tests, etc.).
func (s *Server) Orchestrator() *app.Orchestrator {
	return s.orchestrator
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)
	r.Use(s.sessionMiddleware)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// Sessions
	r.Post("/auth/signin", s.handleSignIn)
	r.Post("/auth/signout", s.handleSignOut)

	// Analysis runs
	r.Post("/analyses", s.requireUser(s.handleStartAnalysis))
	r.Get("/ws/analyses", s.requireUser(s.handleAnalysisWS))

	// Jobs
	r.Get("/jobs", s.requireUser(s.handleListJobs))
	r.Get("/jobs/{jobID}", s.requireUser(s.handleGetJob))
	r.Delete("/jobs/{jobID}", s.requireUser(s.handleCancelJob))

	// Records
	r.Get("/records", s.requireUser(s.handleHistory))
	r.Get("/records/compare", s.requireUser(s.handleCompare))
	r.Get("/records/{recordID}", s.requireUser(s.handleGetRecord))
	r.Get("/records/{recordID}/export", s.requireUser(s.handleExportCSV))
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sessionMiddleware resolves the bearer token to a session and stores the
// user on the request context. Anonymous requests pass through; handlers
// behind requireUser reject them.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := s.orchestrator.Sessions().Current(bearerToken(r))
		if !sess.IsAnonymous() {
			r = r.WithContext(context.WithValue(r.Context(), userKey, sess.User))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if userFrom(r) == nil {
			writeError(w, http.StatusUnauthorized, "sign-in required")
			return
		}
		next(w, r)
	}
}

func userFrom(r *http.Request) *session.User {
	u, _ := r.Context().Value(userKey).(*session.User)
	return u
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	// Websocket clients can't always set headers; accept a query fallback.
	return r.URL.Query().Get("token")
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("http_request",
		logging.Field{Key: "method", Value: r.Method},
		logging.Field{Key: "path", Value: r.URL.Path})
	s.router.ServeHTTP(w, r)
}

// Close shuts down the orchestrator and underlying resources.
func (s *Server) Close() {
	if s.orchestrator != nil {
		_ = s.orchestrator.Close()
	}
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// --- HTTP handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSignIn godoc
// @Summary Establish a session from a bearer token
// @Accept json
// @Produce json
// @Param request body SignInRequest true "token"
// @Success 200 {object} session.Session
// @Failure 401 {object} ErrorResponse
// @Router /auth/signin [post]
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.Token == "" {
		body.Token = bearerToken(r)
	}

	sess, err := s.orchestrator.Sessions().SignIn(r.Context(), body.Token)
	if err != nil {
		s.logger.Warn("sign-in rejected", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	s.orchestrator.Sessions().SignOut(bearerToken(r))
	writeJSON(w, http.StatusNoContent, nil)
}

// handleStartAnalysis godoc
// @Summary Start an analysis run
// @Accept json
// @Produce json
// @Param request body StartAnalysisRequest true "url and mode"
// @Success 202 {object} app.Job
// @Failure 400 {object} ErrorResponse
// @Router /analyses [post]
func (s *Server) handleStartAnalysis(w http.ResponseWriter, r *http.Request) {
	var body StartAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	job, err := s.orchestrator.StartAnalysis(r.Context(), userFrom(r).ID, body.URL, app.Mode(body.Mode))
	if err != nil {
		s.logger.Warn("starting analysis", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("started analysis",
		logging.Field{Key: "job_id", Value: job.ID},
		logging.Field{Key: "url", Value: job.URL},
		logging.Field{Key: "mode", Value: string(job.Mode)})
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil || job.UserID != userFrom(r).ID {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil || job.UserID != userFrom(r).ID {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.orchestrator.CancelJob(jobID)
	s.logger.Info("canceled job", logging.Field{Key: "job_id", Value: jobID})
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	var jobs []*app.Job
	for _, j := range s.orchestrator.ListJobs() {
		if j.UserID == user.ID {
			jobs = append(jobs, j)
		}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// handleHistory godoc
// @Summary List the signed-in user's analysis records, newest first
// @Produce json
// @Param limit query int false "maximum records"
// @Success 200 {array} model.AnalysisRecord
// @Router /records [get]
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if ls := r.URL.Query().Get("limit"); ls != "" {
		if v, err := strconv.Atoi(ls); err == nil && v > 0 {
			limit = v
		}
	}

	recs, err := s.orchestrator.History(r.Context(), userFrom(r).ID, limit)
	if err != nil {
		s.logger.Warn("listing history", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.orchestrator.GetRecord(r.Context(), userFrom(r).ID, chi.URLParam(r, "recordID"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrRecordNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleExportCSV streams the record's page results as a CSV attachment.
// Records without results yield 204: nothing to download.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	data, filename, err := s.orchestrator.ExportCSV(r.Context(), userFrom(r).ID, chi.URLParam(r, "recordID"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrRecordNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	if data == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	beforeID := r.URL.Query().Get("before")
	afterID := r.URL.Query().Get("after")
	if beforeID == "" || afterID == "" {
		writeError(w, http.StatusBadRequest, "before and after query parameters are required")
		return
	}

	cmp, err := s.orchestrator.CompareRecords(r.Context(), userFrom(r).ID, beforeID, afterID)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, store.ErrRecordNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

// handleAnalysisWS starts an analysis and streams its job events over a
// websocket. A dropped connection cancels the job.
func (s *Server) handleAnalysisWS(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	mode := app.Mode(r.URL.Query().Get("mode"))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	job, err := s.orchestrator.StartAnalysis(r.Context(), userFrom(r).ID, url, mode)
	if err != nil {
		_ = conn.WriteJSON(ErrorResponse{Error: err.Error()})
		return
	}

	s.logger.Info("started analysis over ws", logging.Field{Key: "job_id", Value: job.ID})
	_ = conn.WriteJSON(job)

	for ev := range job.Events {
		if err := conn.WriteJSON(ev); err != nil {
			// Assume client disconnected; cancel job
			s.orchestrator.CancelJob(job.ID)
			return
		}
	}

	// Channel closed: send the final job state including the result.
	if final := s.orchestrator.GetJob(job.ID); final != nil {
		_ = conn.WriteJSON(final)
	}
}
