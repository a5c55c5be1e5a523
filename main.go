package main

import (
	"context"
	"log"
	"os"
	"strings"

	pubnub "github.com/pubnub/go"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"

	"waiting-system/config"
	"waiting-system/handlers"
	_ "waiting-system/migrations"
	"waiting-system/models"
	"waiting-system/monitoring"
	"waiting-system/security"
	"waiting-system/services"
	"waiting-system/utils"
)

func main() {
	app := pocketbase.New()
	cfg := config.LoadConfig()

	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})

	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)

	queueStore := services.NewQueueStore(redisClient, cfg.SoftLockTTL)
	boothStore := services.NewBoothStore(redisClient)
	waitStats := services.NewWaitStats(redisClient, cfg.AverageServiceMinutes, cfg.MinServiceSamples)
	ledger := services.NewLedgerStore(app)

	notifier, closeNotifier := buildNotifier(cfg)

	admission := services.NewAdmissionService(queueStore, boothStore, waitStats, ledger, cfg.MaxActiveBooths)
	calls := services.NewCallService(queueStore, boothStore, ledger, notifier, waitStats)

	recovery := services.NewRecoveryService(queueStore, ledger, cfg.RecoveryInterval)
	noShow := services.NewNoShowService(ledger, notifier, cfg.NoShowTimeout, cfg.NoShowInterval)
	broadcaster := services.NewPositionBroadcaster(redisClient, buildPubNub(cfg), cfg.PositionUpdateInterval)

	var consumer *services.NotificationConsumer
	if cfg.RabbitURL != "" {
		c, err := services.NewNotificationConsumer(
			cfg.RabbitURL, cfg.RabbitExchange, cfg.NotificationQueue,
			redisClient, &services.LogPushSender{})
		if err != nil {
			log.Printf("Notification consumer disabled: %v", err)
		} else {
			consumer = c
		}
	}

	guard := security.NewStaffGuard(cfg.StaffKeyHash)
	limiter := security.NewRateLimiter(redisClient, cfg.EnqueuePerMinute)
	waitingHandler := handlers.NewWaitingHandler(admission, calls, limiter)

	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		if err := seedBoothCache(se.App, boothStore); err != nil {
			log.Printf("Booth cache seed failed: %v", err)
		}

		waitingHandler.Register(se, guard)

		recovery.Start()
		noShow.Start()
		broadcaster.Start()
		if consumer != nil {
			if err := consumer.Start(context.Background()); err != nil {
				log.Printf("Notification consumer failed to start: %v", err)
			}
		}

		if cfg.EnableMetrics {
			monitoring.NewMonitor(redisClient)
			monitoring.StartMetricsServer(cfg.MetricsPort, redisClient)
		}

		return se.Next()
	})

	bindBoothCacheSync(app, boothStore)

	app.OnTerminate().BindFunc(func(te *core.TerminateEvent) error {
		recovery.Shutdown()
		noShow.Shutdown()
		broadcaster.Shutdown()
		if consumer != nil {
			_ = consumer.Close()
		}
		closeNotifier()
		_ = redisClient.Close()
		return te.Next()
	})

	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
}

func buildNotifier(cfg *config.Config) (services.Notifier, func()) {
	if cfg.RabbitURL == "" {
		log.Println("RabbitMQ not configured, notifications go to the stub")
		return &services.StubNotifier{}, func() {}
	}

	rabbit, err := services.NewRabbitNotifier(cfg.RabbitURL, cfg.RabbitExchange)
	if err != nil {
		log.Printf("RabbitMQ unavailable (%v), notifications go to the stub", err)
		return &services.StubNotifier{}, func() {}
	}
	return rabbit, func() { _ = rabbit.Close() }
}

func buildPubNub(cfg *config.Config) *pubnub.PubNub {
	if cfg.PubNubPublishKey == "" || cfg.PubNubSubscribeKey == "" {
		log.Println("PubNub not configured, position broadcasts disabled")
		return nil
	}

	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey
	if hostname, err := os.Hostname(); err == nil {
		pnConfig.UUID = "waiting-server-" + hostname
	}

	return pubnub.NewPubNub(pnConfig)
}

// seedBoothCache loads every booth record into the Redis cache so
// validation reads never hit the database.
func seedBoothCache(app core.App, booths *services.BoothStore) error {
	records, err := app.FindAllRecords("booths")
	if err != nil {
		return err
	}

	ctx := context.Background()
	for _, record := range records {
		if err := booths.Put(ctx, boothFromRecord(record)); err != nil {
			return err
		}
	}

	log.Printf("Booth cache seeded with %d booths", len(records))
	return nil
}

// bindBoothCacheSync keeps the Redis booth cache in step with the
// booths collection.
func bindBoothCacheSync(app *pocketbase.PocketBase, booths *services.BoothStore) {
	app.OnRecordAfterCreateSuccess("booths").BindFunc(func(e *core.RecordEvent) error {
		if err := booths.Put(context.Background(), boothFromRecord(e.Record)); err != nil {
			log.Printf("Booth cache sync failed: %v", err)
		}
		return e.Next()
	})

	app.OnRecordAfterUpdateSuccess("booths").BindFunc(func(e *core.RecordEvent) error {
		if err := booths.Put(context.Background(), boothFromRecord(e.Record)); err != nil {
			log.Printf("Booth cache sync failed: %v", err)
		}
		return e.Next()
	})

	app.OnRecordAfterDeleteSuccess("booths").BindFunc(func(e *core.RecordEvent) error {
		if err := booths.Delete(context.Background(), e.Record.Id); err != nil {
			log.Printf("Booth cache delete failed: %v", err)
		}
		return e.Next()
	})
}

func boothFromRecord(record *core.Record) *models.Booth {
	return &models.Booth{
		ID:       record.Id,
		Name:     record.GetString("name"),
		Status:   models.BoothStatus(strings.ToLower(record.GetString("status"))),
		Capacity: record.GetInt("capacity"),
	}
}
