package provider

import (
	"context"

	"github.com/vibast-solutions/ms-go-campaigns/app/preparer"
)

// MailSender delivers one email to one recipient.
type MailSender interface {
	Send(ctx context.Context, msg preparer.Message) error
}

// Verifier is implemented by senders that can check their transport
// (credentials, connectivity) before a campaign starts.
type Verifier interface {
	Verify(ctx context.Context) error
}
