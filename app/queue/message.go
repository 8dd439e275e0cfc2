package queue

import (
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/vibast-solutions/ms-go-campaigns/app/entity"
)

const StreamName = "campaigns:jobs"
const DelayedSetName = "campaigns:jobs:delayed"
const ConsumerGroup = "campaign-dispatchers"

const (
	fieldJobType = "job_type"
	fieldPayload = "payload"
)

// Envelope is a delayed job as stored in the sorted set. ID keeps two
// identical jobs from collapsing into one member.
type Envelope struct {
	ID      string `json:"id"`
	JobType string `json:"jobType"`
	Payload string `json:"payload"`
}

func encodeJob(job entity.CampaignJob) (string, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encode campaign job: %w", err)
	}
	return string(payload), nil
}

// decodeMessage extracts the campaign job carried by a stream entry.
func decodeMessage(msg redis.XMessage) (entity.CampaignJob, error) {
	var job entity.CampaignJob

	jobType, _ := msg.Values[fieldJobType].(string)
	if jobType != entity.JobTypeSendCampaign {
		return job, fmt.Errorf("unsupported job type %q", jobType)
	}
	payload, _ := msg.Values[fieldPayload].(string)
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return job, fmt.Errorf("decode campaign job: %w", err)
	}
	if job.CampaignID == "" {
		return job, fmt.Errorf("campaign job without campaign id")
	}
	return job, nil
}
