package provider

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-campaigns/app/preparer"
)

// NoopProvider accepts every message without delivering it. Useful for dry
// runs of a campaign list against a real database.
type NoopProvider struct {
	log logrus.FieldLogger
}

// NewNoopProvider constructs a dry-run provider that only logs recipients.
func NewNoopProvider(log logrus.FieldLogger) *NoopProvider {
	return &NoopProvider{log: log}
}

// Send logs the recipient and reports success.
func (p *NoopProvider) Send(_ context.Context, msg preparer.Message) error {
	p.log.WithFields(logrus.Fields{
		"to":          msg.To,
		"subject":     msg.Subject,
		"campaign_id": msg.Headers["X-Campaign-ID"],
	}).Debug("dry run, email not sent")
	return nil
}
