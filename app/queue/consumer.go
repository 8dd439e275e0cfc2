package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-campaigns/app/dispatch"
	"github.com/vibast-solutions/ms-go-campaigns/app/entity"
	"github.com/vibast-solutions/ms-go-campaigns/app/lock"
	"github.com/vibast-solutions/ms-go-campaigns/app/repository"
	"golang.org/x/sync/semaphore"
)

// Runner executes one campaign job to the end.
type Runner interface {
	Run(ctx context.Context, job entity.CampaignJob) (*dispatch.Summary, error)
}

type CampaignConsumer struct {
	client         *redis.Client
	runner         Runner
	locker         lock.Locker
	consumerName   string
	maxConcurrency int64
	log            logrus.FieldLogger
	redrain        atomic.Bool
}

// NewCampaignConsumer constructs a Redis stream consumer running up to
// maxConcurrency campaigns at once.
func NewCampaignConsumer(client *redis.Client, runner Runner, locker lock.Locker, consumerName string, maxConcurrency int, log logrus.FieldLogger) *CampaignConsumer {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &CampaignConsumer{
		client:         client,
		runner:         runner,
		locker:         locker,
		consumerName:   consumerName,
		maxConcurrency: int64(maxConcurrency),
		log:            log.WithField("consumer", consumerName),
	}
}

// Run starts the consumer loop and blocks until context cancellation. Jobs
// already running are waited for before it returns.
func (c *CampaignConsumer) Run(ctx context.Context) error {
	if err := EnsureGroup(ctx, c.client); err != nil {
		return err
	}

	c.log.Infof("Consumer started on stream %s", StreamName)

	sem := semaphore.NewWeighted(c.maxConcurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	// First drain our own pending entries, then switch to new ones.
	startID := "0"
	for {
		if err := sem.Acquire(ctx, 1); err != nil {
			c.log.Info("Consumer shutting down")
			return nil
		}

		if c.redrain.CompareAndSwap(true, false) {
			startID = "0"
		}

		msg, ok, err := c.next(ctx, &startID)
		if err != nil {
			sem.Release(1)
			if ctx.Err() != nil {
				c.log.Info("Consumer shutting down")
				return nil
			}
			c.log.WithError(err).Error("XReadGroup error")
			time.Sleep(time.Second)
			continue
		}
		if !ok {
			sem.Release(1)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			c.processMessage(ctx, msg)
		}()
	}
}

// next reads one entry. While draining pending entries startID advances past
// each returned ID so a job that stays pending is not handed back forever.
func (c *CampaignConsumer) next(ctx context.Context, startID *string) (redis.XMessage, bool, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: c.consumerName,
		Streams:  []string{StreamName, *startID},
		Count:    1,
		Block:    5 * time.Second,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			if *startID != ">" {
				*startID = ">"
			}
			return redis.XMessage{}, false, nil
		}
		return redis.XMessage{}, false, err
	}

	for _, stream := range streams {
		if len(stream.Messages) == 0 {
			if *startID != ">" {
				// No more pending messages, switch to reading new.
				*startID = ">"
			}
			continue
		}
		msg := stream.Messages[0]
		if *startID != ">" {
			*startID = msg.ID
		}
		return msg, true, nil
	}
	return redis.XMessage{}, false, nil
}

// processMessage runs a single job under its campaign lock and acks it unless
// it should be retried.
func (c *CampaignConsumer) processMessage(ctx context.Context, msg redis.XMessage) {
	log := c.log.WithField("message_id", msg.ID)

	job, err := decodeMessage(msg)
	if err != nil {
		log.WithError(err).Error("Dropping undecodable job")
		c.ack(ctx, log, msg.ID)
		return
	}
	log = log.WithField("campaign_id", job.CampaignID)
	log.WithField("recipients", len(job.Recipients)).Info("Processing campaign job")

	var summary *dispatch.Summary
	err = lock.Hold(ctx, c.locker, lock.CampaignKey(job.CampaignID), lockTTL(job), func(ctx context.Context) error {
		var runErr error
		summary, runErr = c.runner.Run(ctx, job)
		return runErr
	})

	switch {
	case err == nil:
		log.WithFields(logrus.Fields{"sent": summary.Sent, "failed": summary.Failed}).Info("Campaign job finished")
	case errors.Is(err, lock.ErrNotAcquired), errors.Is(err, lock.ErrAlreadyHeld):
		log.Info("Campaign is being dispatched elsewhere, job stays pending")
		return
	case errors.Is(err, dispatch.ErrCampaignFinished):
		log.Info("Campaign already finished")
	case errors.Is(err, repository.ErrCampaignNotFound), errors.Is(err, dispatch.ErrIntervalTooLow):
		log.WithError(err).Error("Dropping invalid campaign job")
	case dispatch.IsPipelineError(err):
		log.WithError(err).Error("Campaign failed")
	default:
		log.WithError(err).Warn("Campaign job interrupted, message stays pending")
		return
	}

	c.ack(ctx, log, msg.ID)
}

func (c *CampaignConsumer) ack(ctx context.Context, log logrus.FieldLogger, id string) {
	if err := c.client.XAck(context.WithoutCancel(ctx), StreamName, ConsumerGroup, id).Err(); err != nil {
		log.WithError(err).Error("XAck failed")
	}
}

// lockTTL covers one pause plus a slow send. The lock is extended while the
// job runs, so this only bounds how long a crashed worker blocks the campaign.
func lockTTL(job entity.CampaignJob) time.Duration {
	return max(time.Minute, job.Interval()*2+30*time.Second)
}

// EnsureGroup creates the stream and consumer group if missing.
func EnsureGroup(ctx context.Context, client *redis.Client) error {
	err := client.XGroupCreateMkStream(ctx, StreamName, ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Reclaim takes over entries that stayed pending for longer than minIdle
// (their consumer died or gave up) and schedules them for this consumer's
// next pending drain. It returns how many were claimed.
func (c *CampaignConsumer) Reclaim(ctx context.Context, minIdle time.Duration) (int, error) {
	claimed := 0
	start := "0-0"
	defer func() {
		if claimed > 0 {
			c.redrain.Store(true)
		}
	}()
	for {
		msgs, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   StreamName,
			Group:    ConsumerGroup,
			Consumer: c.consumerName,
			MinIdle:  minIdle,
			Start:    start,
			Count:    100,
		}).Result()
		if err != nil {
			return claimed, err
		}
		claimed += len(msgs)
		if next == "0-0" || next == "" {
			return claimed, nil
		}
		start = next
	}
}
