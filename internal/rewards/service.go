// Package rewards implements the company points and badge programme.
package rewards

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"pageforge/api/internal/authpw"
	"pageforge/api/internal/store"
	"pageforge/api/internal/util"
)

const (
	RoleSuperAdmin   = "super_admin"
	RoleCompanyAdmin = "company_admin"
	RoleManager      = "manager"
	RoleEmployee     = "employee"

	DefaultPointName    = "effyPoints"
	DefaultPointCap     = 500
	TransactionLimit    = 100
	RecentTransactions  = 5
	transactionTypeGive = "manager_award"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrEmailExists        = errors.New("user already exists")
	ErrCompanyExists      = errors.New("company already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("not allowed")
	ErrNotFound           = errors.New("not found")
	ErrInsufficientCap    = errors.New("insufficient point cap")
)

type defaultBadge struct {
	name        string
	description string
	icon        string
	points      int
}

var defaultBadges = []defaultBadge{
	{"Bronze Star", "Earned 50 points", "🥉", 50},
	{"Silver Star", "Earned 150 points", "🥈", 150},
	{"Gold Star", "Earned 300 points", "🥇", 300},
	{"Platinum Star", "Earned 500 points", "💎", 500},
	{"Rising Star", "First 10 points earned", "⭐", 10},
}

func ValidRole(role string) bool {
	switch role {
	case RoleSuperAdmin, RoleCompanyAdmin, RoleManager, RoleEmployee:
		return true
	}
	return false
}

type Store interface {
	CreateMember(ctx context.Context, member store.Member) error
	CreateCompany(ctx context.Context, company store.Company, admin store.Member, badges []store.Badge) error
	GetCompany(ctx context.Context, id string) (store.Company, error)
	GetMemberByEmail(ctx context.Context, email string) (store.Member, error)
	GetMemberByID(ctx context.Context, id string) (store.Member, error)
	TouchMemberLogin(ctx context.Context, id string) error
	TransferPoints(ctx context.Context, txn store.PointTransaction) error
	AwardEligibleBadges(ctx context.Context, memberID, companyID string) ([]store.Badge, error)
	ListTransactions(ctx context.Context, memberID string, limit int) ([]store.PointTransaction, error)
	ListTeam(ctx context.Context, viewer store.Member) ([]store.Member, error)
	CountTeam(ctx context.Context, viewer store.Member) (int, error)
	ListMemberBadges(ctx context.Context, memberID string) ([]store.EarnedBadge, error)
	CountMemberBadges(ctx context.Context, memberID string) (int, error)
	CreateTask(ctx context.Context, task store.Task) error
	ListTasks(ctx context.Context, companyID string) ([]store.Task, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

type RegisterRequest struct {
	Email      string
	Name       string
	Password   string
	Role       string
	CompanyID  string
	ManagerID  string
	Department string
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func (s *Service) newMember(req RegisterRequest) (store.Member, error) {
	email := authpw.NormalizeEmail(req.Email)
	if err := authpw.ValidateCredentials(email, req.Password); err != nil {
		return store.Member{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if strings.TrimSpace(req.Name) == "" {
		return store.Member{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if !ValidRole(req.Role) {
		return store.Member{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, req.Role)
	}
	hash, err := authpw.HashPassword(req.Password)
	if err != nil {
		return store.Member{}, err
	}
	return store.Member{
		ID:                  util.NewID("mem"),
		Email:               email,
		Name:                strings.TrimSpace(req.Name),
		PasswordHash:        hash,
		Role:                req.Role,
		CompanyID:           optional(req.CompanyID),
		ManagerID:           optional(req.ManagerID),
		Department:          optional(req.Department),
		PointCap:            DefaultPointCap,
		PointCapRenewalType: "request",
		IsActive:            true,
		CreatedAt:           s.now(),
	}, nil
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (store.Member, error) {
	member, err := s.newMember(req)
	if err != nil {
		return store.Member{}, err
	}
	if err := s.store.CreateMember(ctx, member); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.Member{}, ErrEmailExists
		}
		return store.Member{}, fmt.Errorf("create member: %w", err)
	}
	return member, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (store.Member, error) {
	member, err := s.store.GetMemberByEmail(ctx, authpw.NormalizeEmail(email))
	if errors.Is(err, sql.ErrNoRows) {
		return store.Member{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.Member{}, fmt.Errorf("lookup member: %w", err)
	}
	if !member.IsActive || !authpw.CheckPassword(member.PasswordHash, password) {
		return store.Member{}, ErrInvalidCredentials
	}
	if err := s.store.TouchMemberLogin(ctx, member.ID); err != nil {
		return store.Member{}, fmt.Errorf("touch last login: %w", err)
	}
	now := s.now()
	member.LastLogin = &now
	return member, nil
}

// Me loads the caller; a token for a deleted member is treated as not found.
func (s *Service) Me(ctx context.Context, memberID string) (store.Member, error) {
	member, err := s.store.GetMemberByID(ctx, memberID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Member{}, ErrNotFound
	}
	if err != nil {
		return store.Member{}, err
	}
	return member, nil
}

type CreateCompanyRequest struct {
	Name          string
	PointName     string
	AdminEmail    string
	AdminName     string
	AdminPassword string
}

// CreateCompany creates the company with its admin and the default badge set.
func (s *Service) CreateCompany(ctx context.Context, req CreateCompanyRequest) (store.Company, store.Member, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return store.Company{}, store.Member{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	pointName := strings.TrimSpace(req.PointName)
	if pointName == "" {
		pointName = DefaultPointName
	}
	now := s.now()
	company := store.Company{
		ID:        util.NewID("cmp"),
		Name:      name,
		PointName: pointName,
		IsActive:  true,
		CreatedAt: now,
	}
	admin, err := s.newMember(RegisterRequest{
		Email:     req.AdminEmail,
		Name:      req.AdminName,
		Password:  req.AdminPassword,
		Role:      RoleCompanyAdmin,
		CompanyID: company.ID,
	})
	if err != nil {
		return store.Company{}, store.Member{}, err
	}

	badges := make([]store.Badge, 0, len(defaultBadges))
	for _, def := range defaultBadges {
		points := def.points
		badges = append(badges, store.Badge{
			ID:             util.NewID("bdg"),
			Name:           def.name,
			Description:    def.description,
			Icon:           def.icon,
			BadgeType:      "points_based",
			CompanyID:      &company.ID,
			PointsRequired: &points,
			IsActive:       true,
			CreatedAt:      now,
		})
	}

	if err := s.store.CreateCompany(ctx, company, admin, badges); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.Company{}, store.Member{}, ErrCompanyExists
		}
		return store.Company{}, store.Member{}, fmt.Errorf("create company: %w", err)
	}
	return company, admin, nil
}

// GetCompany is visible to members of that company and to super admins.
func (s *Service) GetCompany(ctx context.Context, viewer store.Member, companyID string) (store.Company, error) {
	if viewer.Role != RoleSuperAdmin && viewer.Company() != companyID {
		return store.Company{}, ErrForbidden
	}
	company, err := s.store.GetCompany(ctx, companyID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Company{}, ErrNotFound
	}
	if err != nil {
		return store.Company{}, err
	}
	return company, nil
}

type GiveRequest struct {
	ToUserID string
	Amount   int
	Reason   string
}

type GiveResult struct {
	Transaction   store.PointTransaction `json:"transaction"`
	BadgesAwarded []store.Badge          `json:"badges_awarded"`
}

// GivePoints moves points from the sender's cap to the recipient's balance
// and then awards any badge the recipient newly qualifies for.
func (s *Service) GivePoints(ctx context.Context, senderID string, req GiveRequest) (GiveResult, error) {
	sender, err := s.Me(ctx, senderID)
	if err != nil {
		return GiveResult{}, err
	}
	if sender.Role != RoleManager && sender.Role != RoleCompanyAdmin {
		return GiveResult{}, fmt.Errorf("%w: only managers and company admins can give points", ErrForbidden)
	}
	if req.Amount <= 0 {
		return GiveResult{}, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if strings.TrimSpace(req.Reason) == "" {
		return GiveResult{}, fmt.Errorf("%w: reason is required", ErrInvalidInput)
	}

	recipient, err := s.store.GetMemberByID(ctx, req.ToUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return GiveResult{}, fmt.Errorf("%w: recipient", ErrNotFound)
	}
	if err != nil {
		return GiveResult{}, err
	}
	if recipient.Company() == "" || recipient.Company() != sender.Company() {
		return GiveResult{}, fmt.Errorf("%w: recipient is in another company", ErrForbidden)
	}
	switch sender.Role {
	case RoleManager:
		if recipient.Manager() != sender.ID {
			return GiveResult{}, fmt.Errorf("%w: managers can only give points to direct reports", ErrForbidden)
		}
	case RoleCompanyAdmin:
		if recipient.Role != RoleManager {
			return GiveResult{}, fmt.Errorf("%w: company admins can only give points to managers", ErrForbidden)
		}
	}

	txn := store.PointTransaction{
		ID:              util.NewID("txn"),
		FromUserID:      sender.ID,
		ToUserID:        recipient.ID,
		Amount:          req.Amount,
		Reason:          strings.TrimSpace(req.Reason),
		CompanyID:       sender.Company(),
		TransactionType: transactionTypeGive,
		CreatedAt:       s.now(),
		FromUserName:    sender.Name,
		ToUserName:      recipient.Name,
	}
	if err := s.store.TransferPoints(ctx, txn); err != nil {
		if errors.Is(err, store.ErrInsufficientCap) {
			return GiveResult{}, ErrInsufficientCap
		}
		return GiveResult{}, fmt.Errorf("transfer points: %w", err)
	}

	badges, err := s.store.AwardEligibleBadges(ctx, recipient.ID, recipient.Company())
	if err != nil {
		return GiveResult{}, fmt.Errorf("award badges: %w", err)
	}
	return GiveResult{Transaction: txn, BadgesAwarded: badges}, nil
}

func (s *Service) Transactions(ctx context.Context, memberID string) ([]store.PointTransaction, error) {
	txns, err := s.store.ListTransactions(ctx, memberID, TransactionLimit)
	if err != nil {
		return nil, err
	}
	if txns == nil {
		txns = []store.PointTransaction{}
	}
	return txns, nil
}

func canLead(role string) bool {
	return role == RoleManager || role == RoleCompanyAdmin
}

func (s *Service) Team(ctx context.Context, viewerID string) ([]store.Member, error) {
	viewer, err := s.Me(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	if !canLead(viewer.Role) {
		return nil, ErrForbidden
	}
	team, err := s.store.ListTeam(ctx, viewer)
	if err != nil {
		return nil, err
	}
	if team == nil {
		team = []store.Member{}
	}
	return team, nil
}

func (s *Service) Badges(ctx context.Context, memberID string) ([]store.EarnedBadge, error) {
	return s.store.ListMemberBadges(ctx, memberID)
}

type DashboardStats struct {
	PointBalance       int                      `json:"point_balance"`
	PointCap           int                      `json:"point_cap"`
	BadgesCount        int                      `json:"badges_count"`
	TeamSize           int                      `json:"team_size"`
	RecentTransactions []store.PointTransaction `json:"recent_transactions"`
}

func (s *Service) Dashboard(ctx context.Context, memberID string) (DashboardStats, error) {
	member, err := s.Me(ctx, memberID)
	if err != nil {
		return DashboardStats{}, err
	}
	stats := DashboardStats{
		PointBalance: member.PointBalance,
		PointCap:     member.PointCap,
	}
	if stats.BadgesCount, err = s.store.CountMemberBadges(ctx, member.ID); err != nil {
		return DashboardStats{}, err
	}
	if canLead(member.Role) {
		if stats.TeamSize, err = s.store.CountTeam(ctx, member); err != nil {
			return DashboardStats{}, err
		}
	}
	if stats.RecentTransactions, err = s.store.ListTransactions(ctx, member.ID, RecentTransactions); err != nil {
		return DashboardStats{}, err
	}
	if stats.RecentTransactions == nil {
		stats.RecentTransactions = []store.PointTransaction{}
	}
	return stats, nil
}

type TaskRequest struct {
	Title        string
	Description  string
	PointsReward int
}

func (s *Service) CreateTask(ctx context.Context, creatorID string, req TaskRequest) (store.Task, error) {
	creator, err := s.Me(ctx, creatorID)
	if err != nil {
		return store.Task{}, err
	}
	if !canLead(creator.Role) || creator.Company() == "" {
		return store.Task{}, ErrForbidden
	}
	if strings.TrimSpace(req.Title) == "" {
		return store.Task{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if req.PointsReward <= 0 {
		return store.Task{}, fmt.Errorf("%w: points_reward must be positive", ErrInvalidInput)
	}
	task := store.Task{
		ID:           util.NewID("task"),
		Title:        strings.TrimSpace(req.Title),
		Description:  strings.TrimSpace(req.Description),
		PointsReward: req.PointsReward,
		CompanyID:    creator.Company(),
		CreatedBy:    creator.ID,
		IsActive:     true,
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return store.Task{}, err
	}
	return task, nil
}

func (s *Service) Tasks(ctx context.Context, memberID string) ([]store.Task, error) {
	member, err := s.Me(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if member.Company() == "" {
		return []store.Task{}, nil
	}
	tasks, err := s.store.ListTasks(ctx, member.Company())
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []store.Task{}
	}
	return tasks, nil
}
