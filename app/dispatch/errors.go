package dispatch

import (
	"errors"
	"fmt"
)

var (
	ErrIntervalTooLow   = errors.New("interval must be at least 500ms")
	ErrCampaignFinished = errors.New("campaign already finished")
	ErrNoRecipients     = errors.New("campaign has no recipients")

	errStopped = errors.New("progress consumer stopped")
)

const ReasonTransportVerification = "Email transporter verification failed"

// PipelineError aborts a whole campaign and moves it to failed.
type PipelineError struct {
	CampaignID string
	Reason     string
	Err        error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
