package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pageforge/api/internal/rewards"
)

func (s *HTTPServer) handleRewardsRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email      string `json:"email"`
		Name       string `json:"name"`
		Password   string `json:"password"`
		Role       string `json:"role"`
		CompanyID  string `json:"company_id"`
		ManagerID  string `json:"manager_id"`
		Department string `json:"department"`
	}
	if !bind(w, r, &body) {
		return
	}
	sess, member, err := s.service.RewardsRegister(r.Context(), rewards.RegisterRequest{
		Email:      body.Email,
		Name:       body.Name,
		Password:   body.Password,
		Role:       body.Role,
		CompanyID:  body.CompanyID,
		ManagerID:  body.ManagerID,
		Department: body.Department,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	response := tokenResponse(sess)
	response["user"] = member
	writeJSON(w, http.StatusCreated, response)
}

func (s *HTTPServer) handleRewardsLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !bind(w, r, &body) {
		return
	}
	sess, member, err := s.service.RewardsLogin(r.Context(), body.Email, body.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	response := tokenResponse(sess)
	response["user"] = member
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleRewardsMe(w http.ResponseWriter, r *http.Request) {
	member, err := s.service.RewardsMe(r.Context(), sessionFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (s *HTTPServer) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name          string `json:"name"`
		PointName     string `json:"point_name"`
		AdminEmail    string `json:"admin_email"`
		AdminName     string `json:"admin_name"`
		AdminPassword string `json:"admin_password"`
	}
	if !bind(w, r, &body) {
		return
	}
	company, admin, err := s.service.CreateCompany(r.Context(), rewards.CreateCompanyRequest{
		Name:          body.Name,
		PointName:     body.PointName,
		AdminEmail:    body.AdminEmail,
		AdminName:     body.AdminName,
		AdminPassword: body.AdminPassword,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"company": company, "admin": admin})
}

func (s *HTTPServer) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	company, err := s.service.GetCompany(r.Context(), sessionFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, company)
}

func (s *HTTPServer) handleGivePoints(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ToUserID string `json:"to_user_id"`
		Amount   int    `json:"amount"`
		Reason   string `json:"reason"`
	}
	if !bind(w, r, &body) {
		return
	}
	result, err := s.service.GivePoints(r.Context(), sessionFrom(r), rewards.GiveRequest{
		ToUserID: body.ToUserID,
		Amount:   body.Amount,
		Reason:   body.Reason,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":        "Points awarded successfully",
		"transaction":    result.Transaction,
		"badges_awarded": result.BadgesAwarded,
	})
}

func (s *HTTPServer) handleTransactions(w http.ResponseWriter, r *http.Request) {
	txns, err := s.service.PointTransactions(r.Context(), sessionFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txns)
}

func (s *HTTPServer) handleTeam(w http.ResponseWriter, r *http.Request) {
	team, err := s.service.Team(r.Context(), sessionFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (s *HTTPServer) handleBadges(w http.ResponseWriter, r *http.Request) {
	badges, err := s.service.MemberBadges(r.Context(), sessionFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, badges)
}

func (s *HTTPServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.DashboardStats(r.Context(), sessionFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *HTTPServer) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title        string `json:"title"`
		Description  string `json:"description"`
		PointsReward int    `json:"points_reward"`
	}
	if !bind(w, r, &body) {
		return
	}
	task, err := s.service.CreateTask(r.Context(), sessionFrom(r), rewards.TaskRequest{
		Title:        body.Title,
		Description:  body.Description,
		PointsReward: body.PointsReward,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *HTTPServer) handleTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.service.Tasks(r.Context(), sessionFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}
