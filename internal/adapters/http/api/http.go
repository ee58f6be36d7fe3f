// Package api is the thin JSON HTTP surface over the points service.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	service "github.com/okian/pointsboard/internal/app"
	"github.com/okian/pointsboard/internal/domain/model"
	"github.com/okian/pointsboard/pkg/logger"
)

const (
	defaultLimit   = 10
	maxRequestBody = 1 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	SubmitAward(ctx context.Context, r model.AwardRequest) (service.Submission, error)
	AwardDailyLoginBonus(ctx context.Context, userID, communityID string) (*model.AwardResult, error)
	BatchUpdate(ctx context.Context, updates []model.PointsUpdate) ([]model.PointsTransaction, error)
	RegisterUser(ctx context.Context, u model.User) (model.User, error)

	CommunityLeaderboard(ctx context.Context, communityID string, tf model.Timeframe, limit int) ([]model.LeaderboardEntry, error)
	GlobalLeaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
	UserRank(ctx context.Context, userID string) (model.UserRank, error)
	Transactions(ctx context.Context, userID, communityID string, limit int) ([]model.PointsTransaction, error)

	AchievementProgress(ctx context.Context, userID string) ([]model.AchievementProgress, error)
	Milestones(ctx context.Context, userID string) (model.Milestones, error)
	Achievement(id string) (model.Achievement, error)
	Achievements() []model.Achievement
	AchievementLeaderboard(ctx context.Context, limit int) ([]model.AchievementRanking, error)
	AchievementStats(ctx context.Context) ([]model.AchievementStat, error)

	GetStats(ctx context.Context) (service.Stats, error)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for server-side failures.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// Server wires HTTP routes for the points API.
type Server struct {
	deps Dependencies
	log  logger.Logger
}

// NewServer creates a new API server.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{deps: deps, log: logger.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	routes := []struct {
		pattern  string
		endpoint string
		handler  http.HandlerFunc
	}{
		{"GET /healthz", "healthz", HandleHealth},
		{"GET /stats", "stats", s.handleStats},

		{"POST /users", "users", s.handleRegisterUser},
		{"POST /awards", "awards", s.handleSubmitAward},
		{"POST /awards/daily-login", "awards_daily_login", s.handleDailyLogin},
		{"POST /awards/batch", "awards_batch", s.handleBatch},

		{"GET /leaderboard", "leaderboard", s.handleCommunityLeaderboard},
		{"GET /leaderboard/global", "leaderboard_global", s.handleGlobalLeaderboard},
		{"GET /users/{id}/rank", "user_rank", s.handleUserRank},
		{"GET /users/{id}/transactions", "user_transactions", s.handleTransactions},
		{"GET /users/{id}/achievements", "user_achievements", s.handleUserAchievements},
		{"GET /users/{id}/milestones", "user_milestones", s.handleMilestones},

		{"GET /achievements", "achievements", s.handleAchievements},
		{"GET /achievements/leaderboard", "achievements_leaderboard", s.handleAchievementLeaderboard},
		{"GET /achievements/stats", "achievements_stats", s.handleAchievementStats},
		{"GET /achievements/{id}", "achievement", s.handleAchievement},
	}
	for _, r := range routes {
		mux.HandleFunc(r.pattern, MetricsMiddleware(r.handler, r.endpoint))
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil && status < http.StatusInternalServerError {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// fail classifies err and writes it. Server errors are logged since their
// detail is not sent to the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error(r.Context(), "request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", status),
			logger.Error(err))
	}
	writeError(w, status, code, err)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// limitParam reads ?limit=, defaulting when absent. Range checks belong to
// the engines.
func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("limit %q is not a number", raw)
	}
	return n, nil
}
