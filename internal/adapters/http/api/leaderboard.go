package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/okian/pointsboard/internal/domain/model"
)

func errMissing(field string) error {
	return errors.New("missing " + field)
}

// userID reads the {id} path segment.
func userID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		return "", errMissing("user id")
	}
	return id, nil
}

// handleCommunityLeaderboard handles
// GET /leaderboard?community=&timeframe=&limit=. An empty community ranks
// across every community.
func (s *Server) handleCommunityLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.community_leaderboard"
	limit, err := limitParam(r)
	if err != nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	q := r.URL.Query()
	tf := model.Timeframe(q.Get("timeframe"))
	if tf == "" {
		tf = model.TimeframeAll
	}
	entries, err := s.deps.CommunityLeaderboard(r.Context(), q.Get("community"), tf, limit)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleGlobalLeaderboard handles GET /leaderboard/global?limit=.
func (s *Server) handleGlobalLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.global_leaderboard"
	limit, err := limitParam(r)
	if err != nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	entries, err := s.deps.GlobalLeaderboard(r.Context(), limit)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleUserRank handles GET /users/{id}/rank.
func (s *Server) handleUserRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.user_rank"
	id, err := userID(r)
	if err != nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	rank, err := s.deps.UserRank(r.Context(), id)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rank)
}

// handleTransactions handles GET /users/{id}/transactions?community=&limit=.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	const op = "api.user_transactions"
	id, err := userID(r)
	if err != nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	txns, err := s.deps.Transactions(r.Context(), id, r.URL.Query().Get("community"), limit)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, txns)
}
