package entity

import "time"

type CampaignStatus string

const (
	CampaignStatusPending   CampaignStatus = "pending"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusFailed    CampaignStatus = "failed"
)

// Terminal reports whether no further recipient attempts may happen.
func (s CampaignStatus) Terminal() bool {
	return s == CampaignStatusCompleted || s == CampaignStatusFailed
}

// Predecessors lists the states a campaign may move to s from.
func (s CampaignStatus) Predecessors() []CampaignStatus {
	switch s {
	case CampaignStatusRunning:
		return []CampaignStatus{CampaignStatusPending}
	case CampaignStatusCompleted:
		return []CampaignStatus{CampaignStatusRunning}
	case CampaignStatusFailed:
		return []CampaignStatus{CampaignStatusPending, CampaignStatusRunning}
	default:
		return nil
	}
}

// Recipient is the delivery state of one address inside a campaign.
type Recipient struct {
	Email     string     `json:"email"`
	IsSent    bool       `json:"isSent"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Attempted is true once a delivery was tried for this recipient.
func (r Recipient) Attempted() bool {
	return r.Timestamp != nil
}

type FailedEmail struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

type Campaign struct {
	ID           string         `json:"id"`
	CampaignName string         `json:"campaignName"`
	Subject      string         `json:"subject"`
	Emails       []Recipient    `json:"emails"`
	Status       CampaignStatus `json:"status"`
	SentCount    int            `json:"sentCount"`
	FailedCount  int            `json:"failedCount"`
	FailedEmails []FailedEmail  `json:"failedEmails,omitempty"`
	FailedReason string         `json:"failedReason,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	CompletedAt  *time.Time     `json:"completedAt,omitempty"`
}

// CollectFailures fills FailedEmails from the attempted-but-unsent recipients.
func (c *Campaign) CollectFailures() {
	c.FailedEmails = nil
	for _, r := range c.Emails {
		if r.Attempted() && !r.IsSent {
			c.FailedEmails = append(c.FailedEmails, FailedEmail{Email: r.Email, Error: r.Error})
		}
	}
}

const JobTypeSendCampaign = "send-email-campaign"

// CampaignJob is the payload of a scheduled campaign dispatch.
type CampaignJob struct {
	CampaignID string   `json:"campaignId"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	Recipients []string `json:"recipients"`
	IntervalMS int64    `json:"intervalMs"`
}

func (j CampaignJob) Interval() time.Duration {
	return time.Duration(j.IntervalMS) * time.Millisecond
}
