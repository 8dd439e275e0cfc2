package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-campaigns/app/dispatch"
	"github.com/vibast-solutions/ms-go-campaigns/app/entity"
	"github.com/vibast-solutions/ms-go-campaigns/app/ingest"
	"github.com/vibast-solutions/ms-go-campaigns/app/repository"
	"github.com/vibast-solutions/ms-go-campaigns/app/sanitizer"
)

var (
	ErrCampaignNotFound  = errors.New("campaign not found")
	ErrRecipientNotFound = errors.New("Email not found in campaign")
)

// SubmitInput is a validated campaign submission.
type SubmitInput struct {
	CampaignName string
	Subject      string
	Body         string
	Interval     time.Duration
	CSV          []byte
}

type CampaignService struct {
	campaigns *repository.CampaignRepository
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewCampaignService builds the campaign service with dependencies.
func NewCampaignService(campaigns *repository.CampaignRepository, log logrus.FieldLogger) *CampaignService {
	return &CampaignService{
		campaigns: campaigns,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit parses the recipient list, sanitizes the body and stores a pending
// campaign. The returned job is ready for the dispatch engine or the queue.
// Nothing is stored when the input is rejected.
func (s *CampaignService) Submit(ctx context.Context, in SubmitInput) (*entity.Campaign, entity.CampaignJob, error) {
	if in.Interval < dispatch.MinInterval {
		return nil, entity.CampaignJob{}, dispatch.ErrIntervalTooLow
	}

	recipients, err := ingest.Recipients(in.CSV)
	if err != nil {
		return nil, entity.CampaignJob{}, err
	}

	body := sanitizer.SanitizeEmailHTML(in.Body)

	campaign, err := s.campaigns.Create(ctx, in.CampaignName, in.Subject, recipients)
	if err != nil {
		return nil, entity.CampaignJob{}, fmt.Errorf("create campaign: %w", err)
	}

	loggerFor(ctx, s.log).WithFields(logrus.Fields{
		"campaign_id": campaign.ID,
		"recipients":  len(recipients),
	}).Info("campaign created")

	job := entity.CampaignJob{
		CampaignID: campaign.ID,
		Subject:    in.Subject,
		Body:       body,
		Recipients: recipients,
		IntervalMS: in.Interval.Milliseconds(),
	}
	return campaign, job, nil
}

// UpdateRecipient sets the delivery flag of one recipient. Repeating the same
// update leaves the stored state untouched.
func (s *CampaignService) UpdateRecipient(ctx context.Context, campaignID string, email string, isSent bool) (*entity.Recipient, error) {
	current, err := s.campaigns.Recipient(ctx, campaignID, email)
	if err != nil {
		if errors.Is(err, repository.ErrRecipientNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, fmt.Errorf("load recipient: %w", err)
	}
	if current.Attempted() && current.IsSent == isSent {
		return current, nil
	}

	errMsg := ""
	if !isSent {
		errMsg = current.Error
	}
	at := s.now()
	if err := s.campaigns.MarkRecipient(ctx, campaignID, email, isSent, errMsg, at); err != nil {
		if errors.Is(err, repository.ErrRecipientNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, fmt.Errorf("update recipient: %w", err)
	}
	if err := s.campaigns.RefreshCounts(ctx, campaignID); err != nil {
		return nil, fmt.Errorf("refresh counters: %w", err)
	}

	loggerFor(ctx, s.log).WithFields(logrus.Fields{
		"campaign_id": campaignID,
		"email":       email,
		"is_sent":     isSent,
	}).Info("recipient status updated")

	return &entity.Recipient{Email: email, IsSent: isSent, Timestamp: &at, Error: errMsg}, nil
}

// Status returns the campaign with its recipients and failures.
func (s *CampaignService) Status(ctx context.Context, campaignID string) (*entity.Campaign, error) {
	campaign, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		if errors.Is(err, repository.ErrCampaignNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, fmt.Errorf("load campaign: %w", err)
	}
	return campaign, nil
}

// List returns campaign summaries, newest first.
func (s *CampaignService) List(ctx context.Context, limit int, offset int) ([]entity.Campaign, error) {
	campaigns, err := s.campaigns.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	return campaigns, nil
}
