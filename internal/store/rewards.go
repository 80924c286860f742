package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"pageforge/api/internal/util"
)

const memberColumns = `id, email, name, password_hash, role, company_id, manager_id, department, point_balance,
	point_cap, point_cap_renewal_type, is_active, created_at, last_login`

func insertMember(ctx context.Context, exec sqlx.ExecerContext, member Member) error {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO members (id, email, name, password_hash, role, company_id, manager_id, department,
			point_balance, point_cap, point_cap_renewal_type, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, member.ID, member.Email, member.Name, member.PasswordHash, member.Role, member.CompanyID, member.ManagerID,
		member.Department, member.PointBalance, member.PointCap, member.PointCapRenewalType, member.IsActive, member.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateMember(ctx context.Context, member Member) error {
	return insertMember(ctx, s.db, member)
}

// CreateCompany inserts the company, its admin and its badges atomically.
func (s *PostgresStore) CreateCompany(ctx context.Context, company Company, admin Member, badges []Badge) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO companies (id, name, point_name, logo_url, is_active, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, company.ID, company.Name, company.PointName, company.LogoURL, company.IsActive, company.CreatedAt)
		if isUniqueViolation(err) {
			return ErrConflict
		}
		if err != nil {
			return fmt.Errorf("insert company: %w", err)
		}
		if err := insertMember(ctx, tx, admin); err != nil {
			return err
		}
		for _, badge := range badges {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO badges (id, name, description, icon, badge_type, company_id, points_required, is_active, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			`, badge.ID, badge.Name, badge.Description, badge.Icon, badge.BadgeType, badge.CompanyID,
				badge.PointsRequired, badge.IsActive, badge.CreatedAt); err != nil {
				return fmt.Errorf("insert badge %s: %w", badge.Name, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) GetCompany(ctx context.Context, id string) (Company, error) {
	var company Company
	if err := s.db.GetContext(ctx, &company, `
		SELECT id, name, point_name, logo_url, is_active, created_at FROM companies WHERE id = $1
	`, id); err != nil {
		return Company{}, err
	}
	return company, nil
}

func (s *PostgresStore) GetMemberByEmail(ctx context.Context, email string) (Member, error) {
	var member Member
	if err := s.db.GetContext(ctx, &member, `SELECT `+memberColumns+` FROM members WHERE lower(email) = lower($1)`, email); err != nil {
		return Member{}, err
	}
	return member, nil
}

func (s *PostgresStore) GetMemberByID(ctx context.Context, id string) (Member, error) {
	var member Member
	if err := s.db.GetContext(ctx, &member, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id); err != nil {
		return Member{}, err
	}
	return member, nil
}

func (s *PostgresStore) TouchMemberLogin(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE members SET last_login = $1 WHERE id = $2`, s.now(), id)
	return err
}

// TransferPoints debits the sender's cap, credits the recipient and records
// the transaction in one transaction. The debit is conditional so two
// concurrent transfers can never overdraw the cap.
func (s *PostgresStore) TransferPoints(ctx context.Context, txn PointTransaction) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE members SET point_cap = point_cap - $1 WHERE id = $2 AND point_cap >= $1
		`, txn.Amount, txn.FromUserID)
		if err != nil {
			return fmt.Errorf("debit cap: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrInsufficientCap
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE members SET point_balance = point_balance + $1 WHERE id = $2
		`, txn.Amount, txn.ToUserID); err != nil {
			return fmt.Errorf("credit balance: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO point_transactions (id, from_user_id, to_user_id, amount, reason, company_id, transaction_type, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, txn.ID, txn.FromUserID, txn.ToUserID, txn.Amount, txn.Reason, txn.CompanyID, txn.TransactionType, txn.CreatedAt); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		return nil
	})
}

// AwardEligibleBadges records every points badge of the company the member
// now qualifies for and returns only the ones earned by this call.
func (s *PostgresStore) AwardEligibleBadges(ctx context.Context, memberID, companyID string) ([]Badge, error) {
	var eligible []Badge
	if err := s.db.SelectContext(ctx, &eligible, `
		SELECT b.id, b.name, b.description, b.icon, b.badge_type, b.company_id, b.points_required, b.is_active, b.created_at
		FROM badges b, members m
		WHERE m.id = $1
		  AND b.company_id = $2
		  AND b.badge_type = 'points_based'
		  AND b.is_active
		  AND b.points_required IS NOT NULL
		  AND b.points_required <= m.point_balance
		ORDER BY b.points_required
	`, memberID, companyID); err != nil {
		return nil, fmt.Errorf("list eligible badges: %w", err)
	}

	awarded := []Badge{}
	for _, badge := range eligible {
		result, err := s.db.ExecContext(ctx, `
			INSERT INTO user_badges (id, user_id, badge_id, earned_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, badge_id) DO NOTHING
		`, util.NewID("ub"), memberID, badge.ID, s.now())
		if err != nil {
			return nil, fmt.Errorf("award badge %s: %w", badge.Name, err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			awarded = append(awarded, badge)
		}
	}
	return awarded, nil
}

// ListTransactions returns transfers given or received by the member, newest first.
func (s *PostgresStore) ListTransactions(ctx context.Context, memberID string, limit int) ([]PointTransaction, error) {
	var txns []PointTransaction
	if err := s.db.SelectContext(ctx, &txns, `
		SELECT t.id, t.from_user_id, t.to_user_id, t.amount, t.reason, t.company_id, t.transaction_type, t.created_at,
			COALESCE(f.name, 'Unknown') AS from_user_name,
			COALESCE(r.name, 'Unknown') AS to_user_name
		FROM point_transactions t
		LEFT JOIN members f ON f.id = t.from_user_id
		LEFT JOIN members r ON r.id = t.to_user_id
		WHERE t.from_user_id = $1 OR t.to_user_id = $1
		ORDER BY t.created_at DESC
		LIMIT $2
	`, memberID, limit); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txns, nil
}

// teamClause selects direct reports for a manager and every non-admin
// member for a company admin.
func teamClause(viewer Member) (string, []any) {
	if viewer.Role == "manager" {
		return `manager_id = $1 AND company_id = $2 AND is_active`, []any{viewer.ID, viewer.Company()}
	}
	return `company_id = $1 AND is_active AND role <> 'company_admin'`, []any{viewer.Company()}
}

func (s *PostgresStore) ListTeam(ctx context.Context, viewer Member) ([]Member, error) {
	where, args := teamClause(viewer)
	var members []Member
	if err := s.db.SelectContext(ctx, &members, `SELECT `+memberColumns+` FROM members WHERE `+where+` ORDER BY name LIMIT 100`, args...); err != nil {
		return nil, fmt.Errorf("list team: %w", err)
	}
	return members, nil
}

func (s *PostgresStore) CountTeam(ctx context.Context, viewer Member) (int, error) {
	where, args := teamClause(viewer)
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM members WHERE `+where, args...); err != nil {
		return 0, fmt.Errorf("count team: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListMemberBadges(ctx context.Context, memberID string) ([]EarnedBadge, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT ub.earned_at, b.id, b.name, b.description, b.icon, b.badge_type, b.company_id,
			b.points_required, b.is_active, b.created_at
		FROM user_badges ub
		JOIN badges b ON b.id = ub.badge_id
		WHERE ub.user_id = $1
		ORDER BY ub.earned_at
	`, memberID)
	if err != nil {
		return nil, fmt.Errorf("list member badges: %w", err)
	}
	defer rows.Close()

	earned := []EarnedBadge{}
	for rows.Next() {
		var item EarnedBadge
		if err := rows.Scan(&item.EarnedAt, &item.Badge.ID, &item.Badge.Name, &item.Badge.Description,
			&item.Badge.Icon, &item.Badge.BadgeType, &item.Badge.CompanyID, &item.Badge.PointsRequired,
			&item.Badge.IsActive, &item.Badge.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan member badge: %w", err)
		}
		earned = append(earned, item)
	}
	return earned, rows.Err()
}

func (s *PostgresStore) CountMemberBadges(ctx context.Context, memberID string) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM user_badges WHERE user_id = $1`, memberID); err != nil {
		return 0, fmt.Errorf("count member badges: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CreateTask(ctx context.Context, task Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, points_reward, company_id, created_by, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, task.ID, task.Title, task.Description, task.PointsReward, task.CompanyID, task.CreatedBy, task.IsActive, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, companyID string) ([]Task, error) {
	var tasks []Task
	if err := s.db.SelectContext(ctx, &tasks, `
		SELECT id, title, description, points_reward, company_id, created_by, is_active, created_at
		FROM tasks WHERE company_id = $1 AND is_active
		ORDER BY created_at DESC
	`, companyID); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}
