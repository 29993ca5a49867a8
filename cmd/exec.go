package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"live-requests/config"
	"live-requests/handlers"
	"live-requests/internal/services/pix"
	_ "live-requests/migrations"
	"live-requests/monitoring"
	"live-requests/security"
	"live-requests/services"
	"live-requests/store"
	"live-requests/utils"

	"live-requests/internal/status"

	"github.com/pocketbase/dbx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	pubnub "github.com/pubnub/go/v7"
	"github.com/redis/go-redis/v9"

	"github.com/pocketbase/pocketbase"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Initialize PubNub
	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PubNubUUID))
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	pn := pubnub.NewPubNub(pnConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pixProvider, err := pix.New(ctx, &cfg.PixConfig)
	if err != nil {
		return err
	}
	if pixProvider != nil {
		defer pixProvider.Close(context.Background())
	}

	// Initialize services
	services.SetPriorityFloor(cfg.PriorityFloor)
	st := store.New(app)
	bus := services.NewPubNubBus(pn)

	var monitor *monitoring.Monitor
	if cfg.EnableMetrics {
		monitor = monitoring.NewMonitor()
	}

	var charges services.ChargeCreator
	if pixProvider != nil {
		breaker := utils.NewCircuitBreaker(utils.BreakerSettings{
			Name:         "pix-create-charge",
			MaxRequests:  uint32(cfg.BreakerMaxRequests),
			Interval:     cfg.BreakerInterval,
			Timeout:      cfg.BreakerTimeout,
			FailureRatio: cfg.BreakerFailureRatio,
		})
		charges = services.NewPixCharges(pixProvider, breaker)
	} else {
		slog.Warn("pix provider not configured, paid submissions will be rejected")
	}

	lifecycleService := services.NewLifecycleService(st, bus, monitor)
	paymentService := services.NewPaymentService(redisClient, st, lifecycleService, charges, cfg.PaymentSessionTTL)
	submissionService := services.NewSubmissionService(st, lifecycleService, paymentService)

	if pixProvider != nil {
		txChannel := make(chan *status.Transaction, 16)
		pixProvider.SetTransactionChannel(txChannel)
		go paymentService.ListenSettlements(ctx, txChannel)
	}

	// Initialize handlers
	requestHandler := handlers.NewRequestHandler(app, submissionService, lifecycleService, st)
	eventHandler := handlers.NewEventHandler(app, lifecycleService, st)
	paymentHandler := handlers.NewPaymentHandler(app, paymentService, pixProvider)

	rateLimiter := security.NewRateLimiter(redisClient, cfg.SubmissionRateLimit, cfg.SubmissionRateWindow)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Start background tasks
	if monitor != nil {
		go collectQueueMetrics(ctx, redisClient, st, monitor, cfg.MetricsInterval)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		syncLiveEventsToRedis(app, redisClient)

		// Submission endpoints
		e.Router.POST("/api/v1/requests", requestHandler.Create).BindFunc(rateLimiter.SubmissionRateLimit())
		e.Router.GET("/api/v1/events/{eventId}/requests", requestHandler.List)
		e.Router.GET("/api/v1/events/{eventId}/queue", requestHandler.Queue)

		// Artist moderation endpoints
		e.Router.POST("/api/v1/requests/{id}/accept", requestHandler.Accept)
		e.Router.POST("/api/v1/requests/{id}/reject", requestHandler.Reject)

		// Event lifecycle endpoints
		e.Router.POST("/api/v1/events/start", eventHandler.Start)
		e.Router.POST("/api/v1/events/{id}/end", eventHandler.End)
		e.Router.GET("/api/v1/events/live", eventHandler.Current)

		// Payment endpoints
		e.Router.POST("/api/v1/payments/webhook", paymentHandler.Webhook)
		e.Router.GET("/api/v1/payments/{reference}/status", paymentHandler.Status)

		// Test endpoint for settlement simulation
		if cfg.Environment == "development" {
			e.Router.POST("/api/v1/test/simulate-payment", paymentHandler.SimulateSettlement)
		}

		if cfg.EnableMetrics {
			e.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		setupEventHooks(app, redisClient)

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// syncLiveEventsToRedis rebuilds the live_events set on startup so the
// metrics collector survives restarts.
func syncLiveEventsToRedis(app *pocketbase.PocketBase, redisClient *redis.Client) {
	ctx := context.Background()

	var records []dbx.NullStringMap
	if err := app.DB().NewQuery(
		"SELECT id FROM events WHERE status = 'LIVE'",
	).All(&records); err != nil {
		log.Printf("Error fetching live events: %v", err)
		return
	}

	redisClient.Del(ctx, "live_events")

	if len(records) > 0 {
		var eventIDs []interface{}
		for _, record := range records {
			if id := record["id"].String; id != "" {
				eventIDs = append(eventIDs, id)
			}
		}

		if len(eventIDs) > 0 {
			redisClient.SAdd(ctx, "live_events", eventIDs...)
			log.Printf("Synced %d live events to Redis", len(eventIDs))
		}
	}
}

// setupEventHooks mirrors event status changes into the live_events
// set. Hooks on the model layer fire for programmatic saves too, not
// just for API requests.
func setupEventHooks(app *pocketbase.PocketBase, redisClient *redis.Client) {
	ctx := context.Background()

	app.OnRecordAfterCreateSuccess("events").BindFunc(func(e *core.RecordEvent) error {
		if e.Record.GetString("status") == "LIVE" {
			if err := redisClient.SAdd(ctx, "live_events", e.Record.Id).Err(); err != nil {
				slog.Error("add live event to redis", "eventID", e.Record.Id, "error", err)
			}
		}
		return e.Next()
	})

	app.OnRecordAfterUpdateSuccess("events").BindFunc(func(e *core.RecordEvent) error {
		eventID := e.Record.Id
		if e.Record.GetString("status") == "LIVE" {
			if err := redisClient.SAdd(ctx, "live_events", eventID).Err(); err != nil {
				slog.Error("add live event to redis", "eventID", eventID, "error", err)
			}
		} else {
			if err := redisClient.SRem(ctx, "live_events", eventID).Err(); err != nil {
				slog.Error("remove ended event from redis", "eventID", eventID, "error", err)
			}
		}
		return e.Next()
	})

	app.OnRecordAfterDeleteSuccess("events").BindFunc(func(e *core.RecordEvent) error {
		if err := redisClient.SRem(ctx, "live_events", e.Record.Id).Err(); err != nil {
			slog.Error("remove deleted event from redis", "eventID", e.Record.Id, "error", err)
		}
		return e.Next()
	})
}

// collectQueueMetrics periodically projects the queue of every live
// event and exports the bucket sizes.
func collectQueueMetrics(ctx context.Context, redisClient *redis.Client, st *store.Store, monitor *monitoring.Monitor, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eventIDs, err := redisClient.SMembers(ctx, "live_events").Result()
			if err != nil {
				slog.Error("list live events", "error", err)
				continue
			}

			for _, eventID := range eventIDs {
				requests, err := st.ListRequestsByEvent(ctx, eventID)
				if err != nil {
					slog.Error("list requests for metrics", "eventID", eventID, "error", err)
					continue
				}
				view := services.ProjectQueue(requests)
				monitor.TrackBuckets(eventID, len(view.History), len(view.Waiting), len(view.Priority))
			}
		}
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
