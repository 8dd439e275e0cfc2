package dispatch

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-campaigns/app/entity"
	"github.com/vibast-solutions/ms-go-campaigns/app/preparer"
	"github.com/vibast-solutions/ms-go-campaigns/app/provider"
)

// MinInterval is the smallest pause allowed between two sends of a campaign.
const MinInterval = 500 * time.Millisecond

// Store is the campaign persistence the engine reads and writes.
type Store interface {
	Get(ctx context.Context, campaignID string) (*entity.Campaign, error)
	MarkRecipient(ctx context.Context, campaignID string, email string, isSent bool, errMsg string, at time.Time) error
	RefreshCounts(ctx context.Context, campaignID string) error
	Transition(ctx context.Context, campaignID string, status entity.CampaignStatus, reason string) error
}

// Summary is the outcome of a finished dispatch run.
type Summary struct {
	CampaignID   string
	Sent         int
	Failed       int
	FailedEmails []entity.FailedEmail
}

type Engine struct {
	sender provider.MailSender
	store  Store
	from   string
	log    logrus.FieldLogger
	now    func() time.Time
	wait   func(ctx context.Context, d time.Duration) bool
}

// NewEngine constructs a dispatch engine sending as from.
func NewEngine(sender provider.MailSender, store Store, from string, log logrus.FieldLogger) *Engine {
	return &Engine{
		sender: sender,
		store:  store,
		from:   from,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
		wait:   sleep,
	}
}

// Dispatch returns the progress of delivering job. Nothing happens until the
// sequence is iterated; it can be iterated once. Breaking out of the loop or
// cancelling ctx stops delivery before the next recipient.
func (e *Engine) Dispatch(ctx context.Context, job entity.CampaignJob) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		stopped := false
		emit := func(ev Event) bool {
			if !yield(ev) {
				stopped = true
				return false
			}
			return true
		}

		if _, err := e.run(ctx, job, emit); err != nil && !stopped {
			yield(errorEvent(err, e.now()))
		}
	}
}

// Run delivers job to completion without a live consumer. Progress is only
// visible through the store.
func (e *Engine) Run(ctx context.Context, job entity.CampaignJob) (*Summary, error) {
	return e.run(ctx, job, func(ev Event) bool {
		e.log.WithFields(logrus.Fields{
			"campaign_id": job.CampaignID,
			"event":       ev.Type,
			"email":       ev.Email,
		}).Debug("campaign progress")
		return true
	})
}

func (e *Engine) run(ctx context.Context, job entity.CampaignJob, yield func(Event) bool) (*Summary, error) {
	if job.Interval() < MinInterval {
		return nil, ErrIntervalTooLow
	}

	log := e.log.WithField("campaign_id", job.CampaignID)

	campaign, err := e.store.Get(ctx, job.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("load campaign: %w", err)
	}
	if campaign.Status.Terminal() {
		return nil, ErrCampaignFinished
	}

	recipients := job.Recipients
	if len(recipients) == 0 {
		for _, r := range campaign.Emails {
			recipients = append(recipients, r.Email)
		}
	}
	if len(recipients) == 0 {
		return nil, e.fail(ctx, log, job.CampaignID, "Campaign has no recipients", ErrNoRecipients)
	}

	if v, ok := e.sender.(provider.Verifier); ok {
		if err := v.Verify(ctx); err != nil {
			return nil, e.fail(ctx, log, job.CampaignID, ReasonTransportVerification, err)
		}
	}

	if campaign.Status == entity.CampaignStatusPending {
		if err := e.store.Transition(ctx, job.CampaignID, entity.CampaignStatusRunning, ""); err != nil {
			return nil, fmt.Errorf("start campaign: %w", err)
		}
	}

	summary := &Summary{CampaignID: job.CampaignID}
	attempted := make(map[string]bool, len(campaign.Emails))
	for _, r := range campaign.Emails {
		if !r.Attempted() {
			continue
		}
		attempted[r.Email] = true
		if r.IsSent {
			summary.Sent++
		} else {
			summary.Failed++
			summary.FailedEmails = append(summary.FailedEmails, entity.FailedEmail{Email: r.Email, Error: r.Error})
		}
	}

	remaining := make([]string, 0, len(recipients))
	for _, email := range recipients {
		if !attempted[email] {
			remaining = append(remaining, email)
		}
	}
	if skipped := len(recipients) - len(remaining); skipped > 0 {
		log.WithField("skipped", skipped).Info("resuming campaign")
	}

	for i, email := range remaining {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		ev, err := e.attempt(ctx, log, job, email)
		if err != nil {
			return summary, e.fail(ctx, log, job.CampaignID, "Campaign dispatch aborted", err)
		}

		if ev.Type == EventSent {
			summary.Sent++
			ev.SentCount = summary.Sent
		} else {
			summary.Failed++
			summary.FailedEmails = append(summary.FailedEmails, entity.FailedEmail{Email: email, Error: ev.Error})
		}

		if !yield(ev) {
			return summary, errStopped
		}

		if i < len(remaining)-1 && !e.wait(ctx, job.Interval()) {
			return summary, ctx.Err()
		}
	}

	if err := e.store.Transition(ctx, job.CampaignID, entity.CampaignStatusCompleted, ""); err != nil {
		return summary, fmt.Errorf("complete campaign: %w", err)
	}
	log.WithFields(logrus.Fields{"sent": summary.Sent, "failed": summary.Failed}).Info("campaign completed")

	yield(completeEvent(summary.Sent, summary.Failed, summary.FailedEmails, e.now()))
	return summary, nil
}

// attempt sends to one recipient and persists the outcome. Delivery errors
// become failed events; only a panic is returned as an error.
func (e *Engine) attempt(ctx context.Context, log logrus.FieldLogger, job entity.CampaignJob, email string) (ev Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while sending to %s: %v", email, r)
		}
	}()

	msg := preparer.Message{
		From:    e.from,
		To:      email,
		Subject: job.Subject,
		HTML:    job.Body,
		Headers: map[string]string{"X-Campaign-ID": job.CampaignID},
	}

	// Once a send starts it is finished and recorded even if ctx is
	// cancelled, so a resumed run never delivers to this recipient again.
	ctx = context.WithoutCancel(ctx)

	sendErr := e.sender.Send(ctx, msg)
	at := e.now()
	entry := log.WithField("email", email)

	errMsg := ""
	if sendErr != nil {
		errMsg = sendErr.Error()
		entry.WithError(sendErr).Warn("delivery failed")
	}

	if err := e.store.MarkRecipient(ctx, job.CampaignID, email, sendErr == nil, errMsg, at); err != nil {
		entry.WithError(err).Error("record recipient status")
	}
	if err := e.store.RefreshCounts(ctx, job.CampaignID); err != nil {
		entry.WithError(err).Error("refresh campaign counters")
	}

	if sendErr != nil {
		return failedEvent(email, errMsg, at), nil
	}
	return sentEvent(email, 0, at), nil
}

func (e *Engine) fail(ctx context.Context, log logrus.FieldLogger, campaignID string, reason string, cause error) error {
	if err := e.store.Transition(context.WithoutCancel(ctx), campaignID, entity.CampaignStatusFailed, reason); err != nil {
		log.WithError(err).Error("mark campaign failed")
	}
	log.WithError(cause).WithField("reason", reason).Error("campaign failed")
	return &PipelineError{CampaignID: campaignID, Reason: reason, Err: cause}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// IsPipelineError reports whether err aborted the campaign for good.
func IsPipelineError(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe)
}
