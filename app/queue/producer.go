package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vibast-solutions/ms-go-campaigns/app/entity"
)

// promoteScript moves due envelopes from the delayed set onto the stream.
// KEYS[1] delayed set, KEYS[2] stream; ARGV[1] now (ms), ARGV[2] batch size.
var promoteScript = redis.NewScript(`
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, tonumber(ARGV[2]))
local moved = 0
for _, raw in ipairs(due) do
	if redis.call("ZREM", KEYS[1], raw) == 1 then
		local env = cjson.decode(raw)
		redis.call("XADD", KEYS[2], "*", "job_type", env["jobType"], "payload", env["payload"])
		moved = moved + 1
	end
end
return moved
`)

const promoteBatchSize = 100

type CampaignProducer struct {
	client *redis.Client
	now    func() time.Time
}

// NewCampaignProducer constructs a Redis stream producer for campaign jobs.
func NewCampaignProducer(client *redis.Client) *CampaignProducer {
	return &CampaignProducer{client: client, now: time.Now}
}

// Schedule queues job to run after delay. A non-positive delay makes it
// available to consumers right away.
func (p *CampaignProducer) Schedule(ctx context.Context, delay time.Duration, job entity.CampaignJob) error {
	if delay <= 0 {
		return p.publish(ctx, job)
	}

	payload, err := encodeJob(job)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(Envelope{ID: uuid.NewString(), JobType: entity.JobTypeSendCampaign, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode campaign envelope: %w", err)
	}
	due := p.now().Add(delay).UnixMilli()
	if err := p.client.ZAdd(ctx, DelayedSetName, redis.Z{Score: float64(due), Member: string(raw)}).Err(); err != nil {
		return fmt.Errorf("zadd to %s: %w", DelayedSetName, err)
	}
	return nil
}

func (p *CampaignProducer) publish(ctx context.Context, job entity.CampaignJob) error {
	payload, err := encodeJob(job)
	if err != nil {
		return err
	}
	_, err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamName,
		Values: map[string]interface{}{
			fieldJobType: entity.JobTypeSendCampaign,
			fieldPayload: payload,
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd to %s: %w", StreamName, err)
	}
	return nil
}

// Promote moves every delayed job that is due onto the stream and returns
// how many were moved.
func (p *CampaignProducer) Promote(ctx context.Context) (int, error) {
	now := strconv.FormatInt(p.now().UnixMilli(), 10)
	moved, err := promoteScript.Run(ctx, p.client, []string{DelayedSetName, StreamName}, now, promoteBatchSize).Int()
	if err != nil {
		return 0, fmt.Errorf("promote delayed jobs: %w", err)
	}
	return moved, nil
}
