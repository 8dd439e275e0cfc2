package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/vibast-solutions/ms-go-campaigns/app/entity"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestRepository(t *testing.T) (*CampaignRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := NewCampaignRepository(db)
	repo.now = func() time.Time { return fixedNow }
	return repo, mock
}

func TestCampaignRepositoryCreate(t *testing.T) {
	t.Parallel()

	repo, mock := newTestRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO campaigns").
		WithArgs(sqlmock.AnyArg(), "Launch", "Hello", "pending", fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO campaign_recipients").
		WithArgs(sqlmock.AnyArg(), 0, "a@x.com", sqlmock.AnyArg(), 1, "b@x.com").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	campaign, err := repo.Create(context.Background(), "Launch", "Hello", []string{"a@x.com", "b@x.com"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if campaign.ID == "" || campaign.Status != entity.CampaignStatusPending {
		t.Fatalf("unexpected campaign: %+v", campaign)
	}
	if len(campaign.Emails) != 2 || campaign.Emails[0].Email != "a@x.com" || campaign.Emails[1].IsSent {
		t.Fatalf("unexpected recipients: %+v", campaign.Emails)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCampaignRepositoryCreateKeepsCaseVariants(t *testing.T) {
	t.Parallel()

	repo, mock := newTestRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO campaigns").
		WithArgs(sqlmock.AnyArg(), "Launch", "Hello", "pending", fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO campaign_recipients").
		WithArgs(sqlmock.AnyArg(), 0, "John@x.com", sqlmock.AnyArg(), 1, "john@x.com").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	campaign, err := repo.Create(context.Background(), "Launch", "Hello", []string{"John@x.com", "john@x.com"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(campaign.Emails) != 2 {
		t.Fatalf("expected both spellings as recipients, got %+v", campaign.Emails)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCampaignRepositoryCreateBatchesRecipients(t *testing.T) {
	t.Parallel()

	repo, mock := newTestRepository(t)

	emails := make([]string, insertBatchSize+1)
	for i := range emails {
		emails[i] = "user" + string(rune('a'+i%26)) + "@x.com"
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO campaigns").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO campaign_recipients").WillReturnResult(sqlmock.NewResult(0, insertBatchSize))
	mock.ExpectExec("INSERT INTO campaign_recipients").
		WithArgs(sqlmock.AnyArg(), insertBatchSize, emails[insertBatchSize]).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if _, err := repo.Create(context.Background(), "Big", "Hi", emails); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCampaignRepositoryCreateRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	repo, mock := newTestRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO campaigns").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO campaign_recipients").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()

	_, err := repo.Create(context.Background(), "Dup", "Hi", []string{"a@x.com"})
	if !errors.Is(err, ErrDuplicateCampaign) {
		t.Fatalf("expected ErrDuplicateCampaign, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCampaignRepositoryMarkRecipient(t *testing.T) {
	t.Parallel()

	repo, mock := newTestRepository(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE campaign_recipients").
		WithArgs(true, fixedNow, nil, "c-1", "a@x.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.MarkRecipient(ctx, "c-1", "a@x.com", true, "", fixedNow); err != nil {
		t.Fatalf("MarkRecipient: %v", err)
	}

	mock.ExpectExec("UPDATE campaign_recipients").
		WithArgs(false, fixedNow, "mailbox full", "c-1", "b@x.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.MarkRecipient(ctx, "c-1", "b@x.com", false, "mailbox full", fixedNow); err != nil {
		t.Fatalf("MarkRecipient failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCampaignRepositoryMarkRecipientUnchangedRow(t *testing.T) {
	t.Parallel()

	repo, mock := newTestRepository(t)

	mock.ExpectExec("UPDATE campaign_recipients").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("c-1", "a@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	if err := repo.MarkRecipient(context.Background(), "c-1", "a@x.com", true, "", fixedNow); err != nil {
		t.Fatalf("expected nil for unchanged row, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCampaignRepositoryMarkRecipientNotFound(t *testing.T) {
	t.Parallel()

	repo, mock := newTestRepository(t)

	mock.ExpectExec("UPDATE campaign_recipients").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("c-1", "ghost@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	err := repo.MarkRecipient(context.Background(), "c-1", "ghost@x.com", true, "", fixedNow)
	if !errors.Is(err, ErrRecipientNotFound) {
		t.Fatalf("expected ErrRecipientNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCampaignRepositoryRecipient(t *testing.T) {
	t.Parallel()

	repo, mock := newTestRepository(t)

	mock.ExpectQuery("SELECT email, is_sent, attempted_at, last_error").
		WithArgs("c-1", "a@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"email", "is_sent", "attempted_at", "last_error"}).
			AddRow("a@x.com", false, fixedNow, "rejected"))

	rec, err := repo.Recipient(context.Background(), "c-1", "a@x.com")
	if err != nil {
		t.Fatalf("Recipient: %v", err)
	}
	if rec.IsSent || rec.Error != "rejected" || rec.Timestamp == nil || !rec.Timestamp.Equal(fixedNow) {
		t.Fatalf("unexpected recipient: %+v", rec)
	}

	mock.ExpectQuery("SELECT email, is_sent, attempted_at, last_error").
		WithArgs("c-1", "ghost@x.com").
		WillReturnError(sql.ErrNoRows)
	if _, err := repo.Recipient(context.Background(), "c-1", "ghost@x.com"); !errors.Is(err, ErrRecipientNotFound) {
		t.Fatalf("expected ErrRecipientNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCampaignRepositoryRefreshCounts(t *testing.T) {
	t.Parallel()

	repo, mock := newTestRepository(t)

	mock.ExpectExec("UPDATE campaigns SET").
		WithArgs("c-1", "c-1", fixedNow, "c-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.RefreshCounts(context.Background(), "c-1"); err != nil {
		t.Fatalf("RefreshCounts: %v", err)
	}

	// Counters already up to date: MySQL reports no changed rows.
	mock.ExpectExec("UPDATE campaigns SET").
		WithArgs("c-1", "c-1", fixedNow, "c-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM campaigns").
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	if err := repo.RefreshCounts(context.Background(), "c-1"); err != nil {
		t.Fatalf("RefreshCounts unchanged: %v", err)
	}

	mock.ExpectExec("UPDATE campaigns SET").
		WithArgs("nope", "nope", fixedNow, "nope").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM campaigns").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	if err := repo.RefreshCounts(context.Background(), "nope"); !errors.Is(err, ErrCampaignNotFound) {
		t.Fatalf("expected ErrCampaignNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCampaignRepositoryTransition(t *testing.T) {
	t.Parallel()

	repo, mock := newTestRepository(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE campaigns").
		WithArgs("running", nil, nil, fixedNow, "c-1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.Transition(ctx, "c-1", entity.CampaignStatusRunning, ""); err != nil {
		t.Fatalf("Transition running: %v", err)
	}

	mock.ExpectExec("UPDATE campaigns").
		WithArgs("failed", "smtp down", fixedNow, fixedNow, "c-1", "pending", "running").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.Transition(ctx, "c-1", entity.CampaignStatusFailed, "smtp down"); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCampaignRepositoryTransitionRejected(t *testing.T) {
	t.Parallel()

	repo, mock := newTestRepository(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE campaigns").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM campaigns").
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("completed"))
	if err := repo.Transition(ctx, "c-1", entity.CampaignStatusRunning, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	mock.ExpectExec("UPDATE campaigns").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM campaigns").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	if err := repo.Transition(ctx, "ghost", entity.CampaignStatusCompleted, ""); !errors.Is(err, ErrCampaignNotFound) {
		t.Fatalf("expected ErrCampaignNotFound, got %v", err)
	}

	if err := repo.Transition(ctx, "c-1", entity.CampaignStatusPending, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for pending target, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

var campaignColumns = []string{"id", "campaign_name", "subject", "status", "sent_count", "failed_count", "failed_reason", "created_at", "updated_at", "completed_at"}

func TestCampaignRepositoryGet(t *testing.T) {
	t.Parallel()

	repo, mock := newTestRepository(t)

	mock.ExpectQuery("SELECT id, campaign_name").
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows(campaignColumns).
			AddRow("c-1", "Launch", "Hello", "completed", 1, 1, nil, fixedNow, fixedNow, fixedNow))
	mock.ExpectQuery("SELECT email, is_sent").
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{"email", "is_sent", "attempted_at", "last_error"}).
			AddRow("a@x.com", true, fixedNow, nil).
			AddRow("b@x.com", false, fixedNow, "bounced"))

	campaign, err := repo.Get(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if campaign.Status != entity.CampaignStatusCompleted || campaign.CompletedAt == nil {
		t.Fatalf("unexpected campaign: %+v", campaign)
	}
	if len(campaign.Emails) != 2 || campaign.Emails[0].Email != "a@x.com" {
		t.Fatalf("unexpected recipients: %+v", campaign.Emails)
	}
	if len(campaign.FailedEmails) != 1 || campaign.FailedEmails[0].Error != "bounced" {
		t.Fatalf("unexpected failed emails: %+v", campaign.FailedEmails)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCampaignRepositoryGetNotFound(t *testing.T) {
	t.Parallel()

	repo, mock := newTestRepository(t)

	mock.ExpectQuery("SELECT id, campaign_name").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	if _, err := repo.Get(context.Background(), "ghost"); !errors.Is(err, ErrCampaignNotFound) {
		t.Fatalf("expected ErrCampaignNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCampaignRepositoryList(t *testing.T) {
	t.Parallel()

	repo, mock := newTestRepository(t)

	mock.ExpectQuery("SELECT id, campaign_name").
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows(campaignColumns).
			AddRow("c-2", "Second", "Hi", "running", 3, 0, nil, fixedNow, fixedNow, nil).
			AddRow("c-1", "First", "Hi", "failed", 0, 0, "Email transporter verification failed", fixedNow, fixedNow, fixedNow))

	campaigns, err := repo.List(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(campaigns) != 2 {
		t.Fatalf("expected 2 campaigns, got %d", len(campaigns))
	}
	if campaigns[0].CompletedAt != nil || campaigns[1].FailedReason != "Email transporter verification failed" {
		t.Fatalf("unexpected campaigns: %+v", campaigns)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
