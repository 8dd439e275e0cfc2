package provider

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/vibast-solutions/ms-go-campaigns/app/preparer"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	GetAccount(ctx context.Context, params *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error)
}

type SESProvider struct {
	client   sesAPI
	source   string
	preparer preparer.EmailPreparer
}

// NewSESProvider builds a provider that sends email via AWS SES.
func NewSESProvider(cfg aws.Config, source string) *SESProvider {
	return &SESProvider{
		client:   sesv2.NewFromConfig(cfg),
		source:   source,
		preparer: preparer.NewChain(preparer.NewRawPreparer(source)),
	}
}

// Send renders msg as raw MIME and sends it via SES.
func (p *SESProvider) Send(ctx context.Context, msg preparer.Message) error {
	if msg.To == "" {
		return fmt.Errorf("recipient is required")
	}

	raw, err := p.preparer.Prepare(ctx, msg)
	if err != nil {
		return fmt.Errorf("prepare email content: %w", err)
	}

	_, err = p.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(p.source),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send raw email: %w", err)
	}

	return nil
}

// Verify checks that the account credentials work and sending is enabled.
func (p *SESProvider) Verify(ctx context.Context) error {
	out, err := p.client.GetAccount(ctx, &sesv2.GetAccountInput{})
	if err != nil {
		return fmt.Errorf("ses get account: %w", err)
	}
	if !out.SendingEnabled {
		return fmt.Errorf("ses sending is disabled for this account")
	}
	return nil
}
