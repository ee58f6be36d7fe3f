package api

import (
	"net/http"
	"strings"

	"github.com/okian/pointsboard/internal/domain/model"
)

type userRequest struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

type dailyLoginRequest struct {
	UserID      string `json:"user_id"`
	CommunityID string `json:"community_id"`
}

type dailyLoginResponse struct {
	Awarded bool               `json:"awarded"`
	Result  *model.AwardResult `json:"result,omitempty"`
}

type batchRequest struct {
	Updates []model.PointsUpdate `json:"updates"`
}

type batchResponse struct {
	Transactions []model.PointsTransaction `json:"transactions"`
}

type ackResponse struct {
	SubmissionID string `json:"submission_id"`
	Status       string `json:"status"`
	Duplicate    bool   `json:"duplicate"`
}

// handleRegisterUser handles POST /users.
func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	const op = "api.register_user"
	var req userRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	u, err := s.deps.RegisterUser(r.Context(), model.User{
		ID:          req.ID,
		Username:    req.Username,
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// handleSubmitAward handles POST /awards. The award is applied
// asynchronously; a repeated submission id is acknowledged with 200.
func (s *Server) handleSubmitAward(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_award"
	var req model.AwardRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	sub, err := s.deps.SubmitAward(r.Context(), req)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	if sub.Duplicate {
		writeJSON(w, http.StatusOK, ackResponse{SubmissionID: sub.ID, Status: "duplicate", Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{SubmissionID: sub.ID, Status: "accepted"})
}

// handleDailyLogin handles POST /awards/daily-login.
func (s *Server) handleDailyLogin(w http.ResponseWriter, r *http.Request) {
	const op = "api.daily_login"
	var req dailyLoginRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		s.fail(w, r, WrapKind(op, ErrBadRequest, errMissing("user_id")))
		return
	}
	res, err := s.deps.AwardDailyLoginBonus(r.Context(), req.UserID, req.CommunityID)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	if res == nil {
		writeJSON(w, http.StatusOK, dailyLoginResponse{})
		return
	}
	writeJSON(w, http.StatusCreated, dailyLoginResponse{Awarded: true, Result: res})
}

// handleBatch handles POST /awards/batch. Either every update commits or
// none does.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.batch"
	var req batchRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	if len(req.Updates) == 0 {
		s.fail(w, r, WrapKind(op, ErrBadRequest, errMissing("updates")))
		return
	}
	txns, err := s.deps.BatchUpdate(r.Context(), req.Updates)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, batchResponse{Transactions: txns})
}
