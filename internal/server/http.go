package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spacedog/spacedog/internal/config"
	"github.com/spacedog/spacedog/internal/leaderboard"
	"github.com/spacedog/spacedog/internal/scene"
	"github.com/spacedog/spacedog/internal/score"
)

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Server struct {
	cfg     *config.Config
	hub     *Hub
	scores  *score.Service
	board   leaderboard.Board
	checks  map[string]HealthCheck
	logger  *slog.Logger
	mux     *http.ServeMux
	metrics *Metrics
}

func New(cfg *config.Config, scores *score.Service, board leaderboard.Board, hub *Hub, metrics *Metrics, logger *slog.Logger) *Server {
	if metrics == nil {
		metrics = NewMetrics()
	}
	s := &Server{
		cfg:     cfg,
		hub:     hub,
		scores:  scores,
		board:   board,
		checks:  make(map[string]HealthCheck),
		logger:  logger,
		mux:     http.NewServeMux(),
		metrics: metrics,
	}
	s.routes()
	return s
}

// AddHealthCheck registers a dependency that /health must reach.
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.checks[name] = check
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /metrics", s.metrics.ServeHTTP)
	if s.hub != nil {
		s.mux.Handle("GET /ws", s.hub)
	}

	// Leaderboard endpoints
	s.mux.HandleFunc("GET /api/leaderboard", s.handleGetLeaderboard)
	s.mux.HandleFunc("POST /api/leaderboard", s.handlePostLeaderboard)
	s.mux.HandleFunc("GET /api/standings", s.handleStandings)
	s.mux.HandleFunc("POST /api/scores", s.handleSubmitScore)

	// Profile endpoints
	s.mux.HandleFunc("GET /api/profile/{id}", s.handleGetProfile)
	s.mux.HandleFunc("POST /api/profile/{id}/tutorial", s.handleTutorialSeen)

	// Static client build; unknown paths get index.html for client routing
	s.mux.Handle("GET /", spaHandler(s.cfg.StaticDir))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			status[name] = "down"
			status["status"] = "degraded"
		} else {
			status[name] = "ok"
		}
	}

	// The global store degrades to local-only, so it never fails the check.
	switch {
	case !s.scores.GlobalConfigured():
		status["global"] = "disabled"
	case s.scores.GlobalAvailable():
		status["global"] = "ok"
	default:
		status["global"] = "unavailable"
	}

	w.Header().Set("Content-Type", "application/json")
	if status["status"] != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("write json", "err", err)
	}
}

func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := s.board.Top(r.Context())
	if err != nil {
		s.logger.Error("read leaderboard", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, entries)
}

type scoreRequest struct {
	Profile string `json:"profile"`
	Name    string `json:"name"`
	Score   any    `json:"score"`
}

func decodeScoreRequest(r *http.Request) (scoreRequest, error) {
	var req scoreRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return req, err
	}
	return req, nil
}

func (s *Server) handlePostLeaderboard(w http.ResponseWriter, r *http.Request) {
	req, err := decodeScoreRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid input. Name and score are required.")
		return
	}
	n, err := score.ParseScore(req.Score)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid input. Name and score are required.")
		return
	}
	e, err := score.NewEntry(req.Name, n, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid input. Name and score are required.")
		return
	}
	if err := s.board.Add(r.Context(), leaderboard.Entry{Name: e.Name, Score: e.Score}); err != nil {
		s.logger.Error("add leaderboard entry", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "Score added to leaderboard"})
}

type standingsResponse struct {
	Entries         []score.Entry `json:"entries"`
	Source          string        `json:"source"`
	GlobalAvailable bool          `json:"global_available"`
	Error           string        `json:"error,omitempty"`
}

func (s *Server) handleStandings(w http.ResponseWriter, r *http.Request) {
	profile := r.URL.Query().Get("profile")
	if !ValidProfile(profile) {
		writeError(w, http.StatusBadRequest, "bad profile")
		return
	}
	st, err := s.scores.Standings(r.Context(), profile)
	if err != nil {
		s.logger.Error("read standings", "profile", profile, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	resp := standingsResponse{
		Entries:         st.Entries,
		Source:          st.Source,
		GlobalAvailable: st.GlobalAvailable,
	}
	if st.Err != nil {
		s.metrics.IncrGlobalFailures()
		resp.Error = "Global leaderboard unavailable, showing local scores"
	}
	writeJSON(w, resp)
}

type submitResponse struct {
	Entry   score.Entry   `json:"entry"`
	Local   []score.Entry `json:"local"`
	Global  bool          `json:"global"`
	Message string        `json:"message"`
}

func (s *Server) handleSubmitScore(w http.ResponseWriter, r *http.Request) {
	req, err := decodeScoreRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	if !ValidProfile(req.Profile) {
		writeError(w, http.StatusBadRequest, "bad profile")
		return
	}
	n, err := score.ParseScore(req.Score)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	receipt, err := s.scores.Submit(r.Context(), req.Profile, req.Name, n)
	var verr *score.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, verr.Error())
		return
	}
	if err != nil {
		s.logger.Error("submit score", "profile", req.Profile, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.metrics.IncrScoresSubmitted()

	resp := submitResponse{
		Entry:   receipt.Entry,
		Local:   receipt.Local,
		Global:  receipt.Global,
		Message: "Score saved",
	}
	if receipt.GlobalErr != nil {
		s.metrics.IncrGlobalFailures()
		resp.Message = "Could not save score"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(resp)
}

type profileResponse struct {
	Profile      string        `json:"profile"`
	HighScore    int64         `json:"high_score"`
	TutorialSeen bool          `json:"tutorial_seen"`
	InitialScene scene.Scene   `json:"initial_scene"`
	Scores       []score.Entry `json:"scores"`
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !ValidProfile(id) {
		writeError(w, http.StatusBadRequest, "bad profile")
		return
	}
	local := s.scores.Local(id)
	ctx := r.Context()

	hs, err := local.HighScore(ctx)
	if err != nil {
		s.internalError(w, "read high score", err)
		return
	}
	seen, err := local.TutorialSeen(ctx)
	if err != nil {
		s.internalError(w, "read tutorial flag", err)
		return
	}
	entries, err := local.Scores(ctx)
	if err != nil {
		s.internalError(w, "read local scores", err)
		return
	}
	writeJSON(w, profileResponse{
		Profile:      id,
		HighScore:    hs,
		TutorialSeen: seen,
		InitialScene: scene.Initial(seen),
		Scores:       entries,
	})
}

func (s *Server) handleTutorialSeen(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !ValidProfile(id) {
		writeError(w, http.StatusBadRequest, "bad profile")
		return
	}
	if err := s.scores.Local(id).MarkTutorialSeen(r.Context()); err != nil {
		s.internalError(w, "mark tutorial seen", err)
		return
	}
	writeJSON(w, map[string]bool{"tutorial_seen": true})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op, "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) Handler() http.Handler {
	return s.HandlerWithLimiter(NewRateLimiter(30, 60))
}

// HandlerWithLimiter builds the middleware chain around a caller-owned limiter.
func (s *Server) HandlerWithLimiter(limiter *RateLimiter) http.Handler {
	return ChainMiddleware(s.mux,
		RecoveryMiddleware(s.logger),
		LoggingMiddleware(s.logger),
		CORSMiddleware(s.cfg.CORSOrigin),
		RateLimitMiddleware(limiter, s.logger),
	)
}

// spaHandler serves files from dir and falls back to index.html.
func spaHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}
		path := filepath.Join(dir, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))
		if info, err := os.Stat(path); err != nil || info.IsDir() && r.URL.Path != "/" {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		files.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
