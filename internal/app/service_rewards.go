package app

import (
	"context"
	"errors"
	"net/http"

	"pageforge/api/internal/auth"
	"pageforge/api/internal/rewards"
	"pageforge/api/internal/session"
	"pageforge/api/internal/store"
)

func translateRewardsError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rewards.ErrInvalidInput):
		return validationError(err.Error())
	case errors.Is(err, rewards.ErrEmailExists):
		return domainError(http.StatusBadRequest, codeEmailExists, "User already exists", nil)
	case errors.Is(err, rewards.ErrCompanyExists):
		return domainError(http.StatusBadRequest, "COMPANY_EXISTS", "Company already exists", nil)
	case errors.Is(err, rewards.ErrInvalidCredentials):
		return unauthorized("Invalid credentials")
	case errors.Is(err, rewards.ErrForbidden):
		return forbidden(err.Error(), nil)
	case errors.Is(err, rewards.ErrNotFound):
		return notFound(err.Error())
	case errors.Is(err, rewards.ErrInsufficientCap), errors.Is(err, store.ErrInsufficientCap):
		return validationError("Insufficient point cap")
	}
	return err
}

func (s *Service) memberSession(ctx context.Context, member store.Member) (Session, error) {
	sess, err := s.issueSession(ctx, session.Identity{
		UserID: member.ID,
		Role:   member.Role,
		Tenant: member.Company(),
		Scope:  auth.ScopeRewards,
	})
	if err != nil {
		return Session{}, err
	}
	sess.UserName = member.Name
	return sess, nil
}

func (s *Service) RewardsRegister(ctx context.Context, req rewards.RegisterRequest) (Session, store.Member, error) {
	member, err := s.rewards.Register(ctx, req)
	if err != nil {
		return Session{}, store.Member{}, translateRewardsError(err)
	}
	sess, err := s.memberSession(ctx, member)
	return sess, member, err
}

func (s *Service) RewardsLogin(ctx context.Context, emailAddress, password string) (Session, store.Member, error) {
	member, err := s.rewards.Login(ctx, emailAddress, password)
	if err != nil {
		return Session{}, store.Member{}, translateRewardsError(err)
	}
	sess, err := s.memberSession(ctx, member)
	return sess, member, err
}

func (s *Service) RewardsMe(ctx context.Context, sess Session) (store.Member, error) {
	member, err := s.rewards.Me(ctx, sess.UserID)
	return member, translateRewardsError(err)
}

func (s *Service) CreateCompany(ctx context.Context, req rewards.CreateCompanyRequest) (store.Company, store.Member, error) {
	company, admin, err := s.rewards.CreateCompany(ctx, req)
	return company, admin, translateRewardsError(err)
}

func (s *Service) GetCompany(ctx context.Context, sess Session, companyID string) (store.Company, error) {
	viewer, err := s.rewards.Me(ctx, sess.UserID)
	if err != nil {
		return store.Company{}, translateRewardsError(err)
	}
	company, err := s.rewards.GetCompany(ctx, viewer, companyID)
	return company, translateRewardsError(err)
}

func (s *Service) GivePoints(ctx context.Context, sess Session, req rewards.GiveRequest) (rewards.GiveResult, error) {
	result, err := s.rewards.GivePoints(ctx, sess.UserID, req)
	return result, translateRewardsError(err)
}

func (s *Service) PointTransactions(ctx context.Context, sess Session) ([]store.PointTransaction, error) {
	txns, err := s.rewards.Transactions(ctx, sess.UserID)
	return txns, translateRewardsError(err)
}

func (s *Service) Team(ctx context.Context, sess Session) ([]store.Member, error) {
	team, err := s.rewards.Team(ctx, sess.UserID)
	return team, translateRewardsError(err)
}

func (s *Service) MemberBadges(ctx context.Context, sess Session) ([]store.EarnedBadge, error) {
	badges, err := s.rewards.Badges(ctx, sess.UserID)
	return badges, translateRewardsError(err)
}

func (s *Service) DashboardStats(ctx context.Context, sess Session) (rewards.DashboardStats, error) {
	stats, err := s.rewards.Dashboard(ctx, sess.UserID)
	return stats, translateRewardsError(err)
}

func (s *Service) CreateTask(ctx context.Context, sess Session, req rewards.TaskRequest) (store.Task, error) {
	task, err := s.rewards.CreateTask(ctx, sess.UserID, req)
	return task, translateRewardsError(err)
}

func (s *Service) Tasks(ctx context.Context, sess Session) ([]store.Task, error) {
	tasks, err := s.rewards.Tasks(ctx, sess.UserID)
	return tasks, translateRewardsError(err)
}
