package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-campaigns/app/dispatch"
	"github.com/vibast-solutions/ms-go-campaigns/app/queue"
	"github.com/vibast-solutions/ms-go-campaigns/app/repository"
	"github.com/vibast-solutions/ms-go-campaigns/config"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Consume queued jobs",
	Long:  "Consume queued jobs from Redis streams.",
}

// init registers consume subcommands.
func init() {
	consumeCmd.AddCommand(consumeCampaignsCmd)
	rootCmd.AddCommand(consumeCmd)
}

var consumeCampaignsCmd = &cobra.Command{
	Use:   "campaigns [consumer_name]",
	Short: "Start the campaign queue consumer",
	Long:  "Start a worker that reads campaign jobs from the Redis stream and delivers them one recipient at a time.",
	Args:  cobra.ExactArgs(1),
	Run:   runConsumeCampaigns,
}

// runConsumeCampaigns starts the campaign queue consumer worker.
func runConsumeCampaigns(_ *cobra.Command, args []string) {
	consumerName := args[0]

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := newLogger(cfg)

	db, err := openDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	rdb, err := openRedis(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	sender, err := buildEmailProvider(cfg, log)
	if err != nil {
		log.Fatalf("Failed to build email provider: %v", err)
	}
	locker, err := buildLocker(cfg, db, rdb)
	if err != nil {
		log.Fatalf("Failed to build locker: %v", err)
	}

	campaigns := repository.NewCampaignRepository(db)
	engine := dispatch.NewEngine(sender, campaigns, cfg.Sender(), log)
	producer := queue.NewCampaignProducer(rdb)
	consumer := queue.NewCampaignConsumer(rdb, engine, locker, consumerName, cfg.SchedulerMaxConcurrency, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler, err := startMaintenance(ctx, cfg, producer, consumer, log)
	if err != nil {
		log.Fatalf("Failed to schedule queue maintenance: %v", err)
	}

	if err := consumer.Run(ctx); err != nil {
		log.Fatalf("Consumer error: %v", err)
	}

	<-scheduler.Stop().Done()
	log.Info("Consumer stopped")
}

// startMaintenance runs delayed-job promotion and stale-claim recovery on a
// cron schedule next to the consumer.
func startMaintenance(ctx context.Context, cfg *config.Config, producer *queue.CampaignProducer, consumer *queue.CampaignConsumer, log logrus.FieldLogger) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	if _, err := c.AddFunc("@every "+cfg.SchedulerPollInterval.String(), func() {
		moved, err := producer.Promote(ctx)
		if err != nil {
			log.WithError(err).Error("Promote delayed campaigns")
			return
		}
		if moved > 0 {
			log.WithField("moved", moved).Info("Promoted delayed campaigns")
		}
	}); err != nil {
		return nil, err
	}

	if _, err := c.AddFunc("@every 1m", func() {
		claimed, err := consumer.Reclaim(ctx, cfg.SchedulerClaimStaleAfter)
		if err != nil {
			log.WithError(err).Error("Reclaim stale campaign jobs")
			return
		}
		if claimed > 0 {
			log.WithField("claimed", claimed).Info("Reclaimed stale campaign jobs")
		}
	}); err != nil {
		return nil, err
	}

	c.Start()
	return c, nil
}
