package preparer

import (
	"context"
	"fmt"
)

// EmailPreparer turns an outgoing campaign message into a raw MIME document.
type EmailPreparer interface {
	Prepare(ctx context.Context, msg Message) ([]byte, error)
}

// Message is one campaign email addressed to a single recipient.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
	Headers map[string]string
	Raw     []byte
}

type Step interface {
	Prepare(ctx context.Context, msg *Message) error
}

type Chain struct {
	steps []Step
}

// NewChain builds an email preparer chain from steps.
func NewChain(steps ...Step) *Chain {
	return &Chain{steps: steps}
}

// Prepare runs all preparer steps and returns the final raw message.
func (c *Chain) Prepare(ctx context.Context, msg Message) ([]byte, error) {
	work := msg
	work.Raw = nil

	for _, step := range c.steps {
		if err := step.Prepare(ctx, &work); err != nil {
			return nil, err
		}
	}

	if len(work.Raw) == 0 {
		return nil, fmt.Errorf("prepared raw message is empty")
	}

	return work.Raw, nil
}
