package dispatch

import (
	"encoding/json"
	"time"

	"github.com/vibast-solutions/ms-go-campaigns/app/entity"
)

type EventType string

const (
	EventSent     EventType = "sent"
	EventFailed   EventType = "failed"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Event is one entry of a campaign's progress sequence.
type Event struct {
	Type      EventType
	Email     string
	Error     string
	Timestamp time.Time

	// SentCount is the running total carried by sent events.
	SentCount int

	// Terminal totals, set on complete events.
	Success      bool
	Sent         int
	Failed       int
	FailedEmails []entity.FailedEmail
}

func sentEvent(email string, sentCount int, at time.Time) Event {
	return Event{Type: EventSent, Email: email, SentCount: sentCount, Timestamp: at}
}

func failedEvent(email string, errMsg string, at time.Time) Event {
	return Event{Type: EventFailed, Email: email, Error: errMsg, Timestamp: at}
}

func completeEvent(sent, failed int, failedEmails []entity.FailedEmail, at time.Time) Event {
	return Event{
		Type:         EventComplete,
		Success:      true,
		Sent:         sent,
		Failed:       failed,
		FailedEmails: failedEmails,
		Timestamp:    at,
	}
}

func errorEvent(err error, at time.Time) Event {
	return Event{Type: EventError, Error: err.Error(), Timestamp: at}
}

// MarshalJSON renders only the fields that belong to the event type.
func (e Event) MarshalJSON() ([]byte, error) {
	ts := e.Timestamp.UTC().Format(timestampLayout)
	switch e.Type {
	case EventSent:
		return json.Marshal(struct {
			Type      EventType `json:"type"`
			Email     string    `json:"email"`
			SentCount int       `json:"sentCount"`
			Timestamp string    `json:"timestamp"`
		}{e.Type, e.Email, e.SentCount, ts})
	case EventFailed:
		return json.Marshal(struct {
			Type      EventType `json:"type"`
			Email     string    `json:"email"`
			Error     string    `json:"error"`
			Timestamp string    `json:"timestamp"`
		}{e.Type, e.Email, e.Error, ts})
	case EventComplete:
		return json.Marshal(struct {
			Type         EventType            `json:"type"`
			Success      bool                 `json:"success"`
			Sent         int                  `json:"sent"`
			Failed       int                  `json:"failed"`
			FailedEmails []entity.FailedEmail `json:"failedEmails,omitempty"`
			Timestamp    string               `json:"timestamp"`
		}{e.Type, e.Success, e.Sent, e.Failed, e.FailedEmails, ts})
	default:
		return json.Marshal(struct {
			Type      EventType `json:"type"`
			Error     string    `json:"error"`
			Timestamp string    `json:"timestamp"`
		}{e.Type, e.Error, ts})
	}
}
