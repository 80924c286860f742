package store

import "time"

type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	FullName     string     `db:"full_name" json:"full_name"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         string     `db:"role" json:"role"`
	Organization string     `db:"organization" json:"organization"`
	AvatarURL    *string    `db:"avatar_url" json:"avatar_url,omitempty"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
}

type Document struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Type           string         `json:"type"`
	Status         string         `json:"status"`
	OwnerID        string         `json:"owner_id"`
	Organization   string         `json:"organization"`
	Sections       []Section      `json:"sections"`
	Pages          []Page         `json:"pages"`
	Comments       []Comment      `json:"comments"`
	Collaborators  []Collaborator `json:"collaborators"`
	Tags           []string       `json:"tags"`
	Metadata       map[string]any `json:"metadata"`
	CurrentVersion int            `json:"current_version"`
	SharedLink     *string        `json:"shared_link,omitempty"`
	OriginalKey    *string        `json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Section is the legacy flat content block.
type Section struct {
	ID                  string               `json:"id"`
	Title               string               `json:"title"`
	Content             string               `json:"content"`
	Order               int                  `json:"order"`
	MultimediaElements  []MultimediaElement  `json:"multimedia_elements"`
	InteractiveElements []InteractiveElement `json:"interactive_elements"`
	Version             int                  `json:"version"`
}

type Page struct {
	ID                  string               `json:"id"`
	PageNumber          int                  `json:"page_number"`
	Title               string               `json:"title"`
	Content             string               `json:"content"`
	MultimediaElements  []MultimediaElement  `json:"multimedia_elements"`
	InteractiveElements []InteractiveElement `json:"interactive_elements"`
}

type MultimediaElement struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Duration    *int   `json:"duration,omitempty"`
}

type InteractiveElement struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Label    string   `json:"label"`
	Action   string   `json:"action,omitempty"`
	Required bool     `json:"required"`
	Position Position `json:"position"`
}

// Position is normalized to the page: x and y in [0,1].
type Position struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Page int     `json:"page"`
}

// Comment is stored flat with ParentID; Replies is only filled on read.
type Comment struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parent_id,omitempty"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Content   string    `json:"content"`
	SectionID string    `json:"section_id,omitempty"`
	Position  *Point    `json:"position,omitempty"`
	Resolved  bool      `json:"resolved"`
	Timestamp time.Time `json:"timestamp"`
	Replies   []Comment `json:"replies,omitempty"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Collaborator struct {
	UserID  string    `json:"user_id"`
	Role    string    `json:"role"`
	AddedAt time.Time `json:"added_at"`
}

type ViewerInfo struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	Location  string `json:"location,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	UserName  string `json:"user_name,omitempty"`
}

type PageView struct {
	PageNumber     int        `json:"page_number"`
	TimeSpent      int        `json:"time_spent"`
	ScrollDepth    float64    `json:"scroll_depth"`
	Interactions   []string   `json:"interactions"`
	ClickPositions []Point    `json:"click_positions,omitempty"`
	EnteredAt      *time.Time `json:"entered_at,omitempty"`
	ExitedAt       *time.Time `json:"exited_at,omitempty"`
}

// DocumentView is one viewing session.
type DocumentView struct {
	ID               string     `json:"id"`
	DocumentID       string     `json:"document_id"`
	SessionID        string     `json:"session_id,omitempty"`
	ViewerInfo       ViewerInfo `json:"viewer_info"`
	PagesViewed      []PageView `json:"pages_viewed"`
	TotalTimeSpent   int        `json:"total_time_spent"`
	CurrentPage      int        `json:"current_page"`
	MaxPageReached   int        `json:"max_page_reached"`
	CompletedViewing bool       `json:"completed_viewing"`
	Downloaded       bool       `json:"downloaded"`
	Signed           bool       `json:"signed"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type ActivityLog struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	UserName   string         `json:"user_name"`
	DocumentID string         `json:"document_id"`
	Action     string         `json:"action"`
	Details    map[string]any `json:"details"`
	CreatedAt  time.Time      `json:"created_at"`
}

// DocumentFilter narrows List to one subject's visible documents.
type DocumentFilter struct {
	UserID string
	Type   string
	Status string
	Limit  int
	Offset int
}

// Reward domain.

type Company struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	PointName string    `db:"point_name" json:"point_name"`
	LogoURL   *string   `db:"logo_url" json:"logo_url,omitempty"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Member struct {
	ID                  string     `db:"id" json:"id"`
	Email               string     `db:"email" json:"email"`
	Name                string     `db:"name" json:"name"`
	PasswordHash        string     `db:"password_hash" json:"-"`
	Role                string     `db:"role" json:"role"`
	CompanyID           *string    `db:"company_id" json:"company_id,omitempty"`
	ManagerID           *string    `db:"manager_id" json:"manager_id,omitempty"`
	Department          *string    `db:"department" json:"department,omitempty"`
	PointBalance        int        `db:"point_balance" json:"point_balance"`
	PointCap            int        `db:"point_cap" json:"point_cap"`
	PointCapRenewalType string     `db:"point_cap_renewal_type" json:"point_cap_renewal_type"`
	IsActive            bool       `db:"is_active" json:"is_active"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	LastLogin           *time.Time `db:"last_login" json:"last_login,omitempty"`
}

func (m Member) Company() string {
	if m.CompanyID == nil {
		return ""
	}
	return *m.CompanyID
}

func (m Member) Manager() string {
	if m.ManagerID == nil {
		return ""
	}
	return *m.ManagerID
}

type PointTransaction struct {
	ID              string    `db:"id" json:"id"`
	FromUserID      string    `db:"from_user_id" json:"from_user_id"`
	ToUserID        string    `db:"to_user_id" json:"to_user_id"`
	Amount          int       `db:"amount" json:"amount"`
	Reason          string    `db:"reason" json:"reason"`
	CompanyID       string    `db:"company_id" json:"company_id"`
	TransactionType string    `db:"transaction_type" json:"transaction_type"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	FromUserName    string    `db:"from_user_name" json:"from_user_name,omitempty"`
	ToUserName      string    `db:"to_user_name" json:"to_user_name,omitempty"`
}

type Badge struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Description    string    `db:"description" json:"description"`
	Icon           string    `db:"icon" json:"icon"`
	BadgeType      string    `db:"badge_type" json:"badge_type"`
	CompanyID      *string   `db:"company_id" json:"company_id,omitempty"`
	PointsRequired *int      `db:"points_required" json:"points_required,omitempty"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

type EarnedBadge struct {
	EarnedAt time.Time `json:"earned_at"`
	Badge    Badge     `json:"badge"`
}

type Task struct {
	ID           string    `db:"id" json:"id"`
	Title        string    `db:"title" json:"title"`
	Description  string    `db:"description" json:"description"`
	PointsReward int       `db:"points_reward" json:"points_reward"`
	CompanyID    string    `db:"company_id" json:"company_id"`
	CreatedBy    string    `db:"created_by" json:"created_by"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
