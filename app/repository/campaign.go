package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/vibast-solutions/ms-go-campaigns/app/entity"
)

var (
	ErrCampaignNotFound  = errors.New("campaign not found")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrInvalidTransition = errors.New("invalid campaign status transition")
	ErrDuplicateCampaign = errors.New("campaign already exists")
)

const (
	insertBatchSize     = 500
	mysqlDuplicateEntry = 1062
)

type CampaignRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewCampaignRepository constructs a repository backed by MySQL.
func NewCampaignRepository(db *sql.DB) *CampaignRepository {
	return &CampaignRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new pending campaign and its recipients in one transaction.
func (r *CampaignRepository) Create(ctx context.Context, name string, subject string, recipients []string) (*entity.Campaign, error) {
	now := r.now()
	campaign := &entity.Campaign{
		ID:           uuid.NewString(),
		CampaignName: name,
		Subject:      subject,
		Status:       entity.CampaignStatusPending,
		Emails:       make([]entity.Recipient, 0, len(recipients)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, email := range recipients {
		campaign.Emails = append(campaign.Emails, entity.Recipient{Email: email})
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertCampaign = `
		INSERT INTO campaigns (id, campaign_name, subject, status, sent_count, failed_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, 0, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, insertCampaign, campaign.ID, name, subject, string(campaign.Status), now, now); err != nil {
		return nil, mapWriteError(fmt.Errorf("insert campaign: %w", err))
	}

	for start := 0; start < len(recipients); start += insertBatchSize {
		end := min(start+insertBatchSize, len(recipients))
		query, args := recipientInsert(campaign.ID, start, recipients[start:end])
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, mapWriteError(fmt.Errorf("insert recipients: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit campaign: %w", err)
	}
	return campaign, nil
}

func recipientInsert(campaignID string, offset int, emails []string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO campaign_recipients (campaign_id, position, email, is_sent) VALUES ")
	args := make([]any, 0, len(emails)*3)
	for i, email := range emails {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, 0)")
		args = append(args, campaignID, offset+i, email)
	}
	return b.String(), args
}

func mapWriteError(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return fmt.Errorf("%w: %v", ErrDuplicateCampaign, err)
	}
	return err
}

// MarkRecipient records one delivery attempt for (campaignID, email).
func (r *CampaignRepository) MarkRecipient(ctx context.Context, campaignID string, email string, isSent bool, errMsg string, at time.Time) error {
	const query = `
		UPDATE campaign_recipients
		SET is_sent = ?, attempted_at = ?, last_error = ?
		WHERE campaign_id = ? AND email = ?
	`
	res, err := r.db.ExecContext(ctx, query, isSent, at.UTC(), nullString(errMsg), campaignID, email)
	if err != nil {
		return fmt.Errorf("update recipient: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// MySQL reports 0 affected rows when the values did not change.
	var count int
	const exists = `SELECT COUNT(*) FROM campaign_recipients WHERE campaign_id = ? AND email = ?`
	if err := r.db.QueryRowContext(ctx, exists, campaignID, email).Scan(&count); err != nil {
		return fmt.Errorf("check recipient: %w", err)
	}
	if count == 0 {
		return ErrRecipientNotFound
	}
	return nil
}

// Recipient loads the delivery state of one campaign recipient.
func (r *CampaignRepository) Recipient(ctx context.Context, campaignID string, email string) (*entity.Recipient, error) {
	const query = `
		SELECT email, is_sent, attempted_at, last_error
		FROM campaign_recipients
		WHERE campaign_id = ? AND email = ?
	`
	rec, err := scanRecipient(r.db.QueryRowContext(ctx, query, campaignID, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecipientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select recipient: %w", err)
	}
	return rec, nil
}

// RefreshCounts recomputes sent/failed counters from the recipient rows.
func (r *CampaignRepository) RefreshCounts(ctx context.Context, campaignID string) error {
	const query = `
		UPDATE campaigns SET
			sent_count = (SELECT COUNT(*) FROM campaign_recipients WHERE campaign_id = ? AND is_sent = 1),
			failed_count = (SELECT COUNT(*) FROM campaign_recipients WHERE campaign_id = ? AND is_sent = 0 AND attempted_at IS NOT NULL),
			updated_at = ?
		WHERE id = ?
	`
	res, err := r.db.ExecContext(ctx, query, campaignID, campaignID, r.now(), campaignID)
	if err != nil {
		return fmt.Errorf("refresh counts: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Unchanged counters within the same millisecond also report 0 rows.
	var count int
	const exists = `SELECT COUNT(*) FROM campaigns WHERE id = ?`
	if err := r.db.QueryRowContext(ctx, exists, campaignID).Scan(&count); err != nil {
		return fmt.Errorf("check campaign: %w", err)
	}
	if count == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

// Transition moves a campaign forward to status. Terminal states also stamp
// completed_at and, for failures, the reason.
func (r *CampaignRepository) Transition(ctx context.Context, campaignID string, status entity.CampaignStatus, reason string) error {
	from := status.Predecessors()
	if len(from) == 0 {
		return fmt.Errorf("%w: no path to %s", ErrInvalidTransition, status)
	}

	now := r.now()
	var completedAt any
	if status.Terminal() {
		completedAt = now
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	query := `
		UPDATE campaigns
		SET status = ?, failed_reason = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status IN (` + placeholders + `)`

	args := []any{string(status), nullString(reason), completedAt, now, campaignID}
	for _, s := range from {
		args = append(args, string(s))
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var current string
	const lookup = `SELECT status FROM campaigns WHERE id = ?`
	if err := r.db.QueryRowContext(ctx, lookup, campaignID).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrCampaignNotFound
		}
		return fmt.Errorf("select campaign status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
}

// Get loads a campaign with its recipients in submission order.
func (r *CampaignRepository) Get(ctx context.Context, campaignID string) (*entity.Campaign, error) {
	const query = `
		SELECT id, campaign_name, subject, status, sent_count, failed_count, failed_reason, created_at, updated_at, completed_at
		FROM campaigns
		WHERE id = ?
	`
	campaign, err := scanCampaign(r.db.QueryRowContext(ctx, query, campaignID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select campaign: %w", err)
	}

	const recipients = `
		SELECT email, is_sent, attempted_at, last_error
		FROM campaign_recipients
		WHERE campaign_id = ?
		ORDER BY position
	`
	rows, err := r.db.QueryContext(ctx, recipients, campaignID)
	if err != nil {
		return nil, fmt.Errorf("select recipients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		campaign.Emails = append(campaign.Emails, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipients: %w", err)
	}

	campaign.CollectFailures()
	return campaign, nil
}

// List returns campaign summaries, newest first. Recipients are not loaded.
func (r *CampaignRepository) List(ctx context.Context, limit int, offset int) ([]entity.Campaign, error) {
	const query = `
		SELECT id, campaign_name, subject, status, sent_count, failed_count, failed_reason, created_at, updated_at, completed_at
		FROM campaigns
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := make([]entity.Campaign, 0, limit)
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		campaigns = append(campaigns, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate campaigns: %w", err)
	}
	return campaigns, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*entity.Campaign, error) {
	var (
		c           entity.Campaign
		status      string
		reason      sql.NullString
		completedAt sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.CampaignName, &c.Subject, &status, &c.SentCount, &c.FailedCount, &reason, &c.CreatedAt, &c.UpdatedAt, &completedAt); err != nil {
		return nil, err
	}
	c.Status = entity.CampaignStatus(status)
	c.FailedReason = reason.String
	if completedAt.Valid {
		t := completedAt.Time
		c.CompletedAt = &t
	}
	return &c, nil
}

func scanRecipient(row rowScanner) (*entity.Recipient, error) {
	var (
		rec         entity.Recipient
		attemptedAt sql.NullTime
		lastError   sql.NullString
	)
	if err := row.Scan(&rec.Email, &rec.IsSent, &attemptedAt, &lastError); err != nil {
		return nil, err
	}
	if attemptedAt.Valid {
		t := attemptedAt.Time
		rec.Timestamp = &t
	}
	rec.Error = lastError.String
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
