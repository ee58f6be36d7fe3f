package api

import "net/http"

func (s *Server) handleUserAchievements(w http.ResponseWriter, r *http.Request) {
	const op = "api.user_achievements"
	id, err := userID(r)
	if err != nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	progress, err := s.deps.AchievementProgress(r.Context(), id)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleMilestones(w http.ResponseWriter, r *http.Request) {
	const op = "api.user_milestones"
	id, err := userID(r)
	if err != nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	m, err := s.deps.Milestones(r.Context(), id)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleAchievements(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Achievements())
}

func (s *Server) handleAchievement(w http.ResponseWriter, r *http.Request) {
	const op = "api.achievement"
	a, err := s.deps.Achievement(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleAchievementLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.achievement_leaderboard"
	limit, err := limitParam(r)
	if err != nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	rows, err := s.deps.AchievementLeaderboard(r.Context(), limit)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleAchievementStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.achievement_stats"
	stats, err := s.deps.AchievementStats(r.Context())
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
