package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestTransferPointsInsufficientCapRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE members SET point_cap = point_cap - \$1 WHERE id = \$2 AND point_cap >= \$1`).
		WithArgs(600, "mgr_1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.TransferPoints(context.Background(), PointTransaction{ID: "tx_1", FromUserID: "mgr_1", ToUserID: "emp_1", Amount: 600})
	if !errors.Is(err, ErrInsufficientCap) {
		t.Fatalf("TransferPoints() error = %v, want ErrInsufficientCap", err)
	}
	expectationsMet(t, mock)
}

func TestTransferPointsCommitsDebitCreditAndRecord(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE members SET point_cap = point_cap - \$1`).
		WithArgs(50, "mgr_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE members SET point_balance = point_balance \+ \$1 WHERE id = \$2`).
		WithArgs(50, "emp_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO point_transactions`).
		WithArgs("tx_1", "mgr_1", "emp_1", 50, "great demo", "co_1", "manager_award", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.TransferPoints(context.Background(), PointTransaction{
		ID: "tx_1", FromUserID: "mgr_1", ToUserID: "emp_1", Amount: 50, Reason: "great demo",
		CompanyID: "co_1", TransactionType: "manager_award", CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("TransferPoints() error = %v", err)
	}
	expectationsMet(t, mock)
}

func TestAwardEligibleBadgesReturnsOnlyNewlyEarned(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	company := "co_1"
	ten, fifty := 10, 50
	mock.ExpectQuery(`FROM badges b, members m`).
		WithArgs("emp_1", "co_1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "icon", "badge_type", "company_id", "points_required", "is_active", "created_at"}).
			AddRow("b_rising", "Rising Star", "", "", "points_based", company, ten, true, created).
			AddRow("b_bronze", "Bronze Star", "", "", "points_based", company, fifty, true, created))
	mock.ExpectExec(`INSERT INTO user_badges .* ON CONFLICT \(user_id, badge_id\) DO NOTHING`).
		WithArgs(sqlmock.AnyArg(), "emp_1", "b_rising", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO user_badges`).
		WithArgs(sqlmock.AnyArg(), "emp_1", "b_bronze", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	awarded, err := s.AwardEligibleBadges(context.Background(), "emp_1", "co_1")
	if err != nil {
		t.Fatalf("AwardEligibleBadges() error = %v", err)
	}
	if len(awarded) != 1 || awarded[0].Name != "Bronze Star" {
		t.Fatalf("awarded = %+v", awarded)
	}
	expectationsMet(t, mock)
}

func TestCreateCompanyDuplicateName(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO companies`).WillReturnError(uniqueViolation())
	mock.ExpectRollback()

	err := s.CreateCompany(context.Background(), Company{ID: "co_1", Name: "Acme"}, Member{ID: "m_1"}, nil)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("CreateCompany() error = %v, want ErrConflict", err)
	}
	expectationsMet(t, mock)
}

func TestListTeamForManagerUsesDirectReports(t *testing.T) {
	s, mock := newMockStore(t)
	company := "co_1"
	mock.ExpectQuery(`FROM members WHERE manager_id = \$1 AND company_id = \$2 AND is_active`).
		WithArgs("mgr_1", "co_1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("emp_1", "Erin"))

	members, err := s.ListTeam(context.Background(), Member{ID: "mgr_1", Role: "manager", CompanyID: &company})
	if err != nil {
		t.Fatalf("ListTeam() error = %v", err)
	}
	if len(members) != 1 || members[0].Name != "Erin" {
		t.Fatalf("members = %+v", members)
	}
	expectationsMet(t, mock)
}

func TestCountTeamForCompanyAdminExcludesAdmins(t *testing.T) {
	s, mock := newMockStore(t)
	company := "co_1"
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM members WHERE company_id = \$1 AND is_active AND role <> 'company_admin'`).
		WithArgs("co_1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := s.CountTeam(context.Background(), Member{ID: "adm_1", Role: "company_admin", CompanyID: &company})
	if err != nil {
		t.Fatalf("CountTeam() error = %v", err)
	}
	if count != 4 {
		t.Fatalf("count = %d, want 4", count)
	}
}
