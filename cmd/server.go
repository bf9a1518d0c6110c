package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"example.com/hdtickets/services/discovery/api"
	"example.com/hdtickets/services/discovery/cache"
	"example.com/hdtickets/services/discovery/domain"
	"example.com/hdtickets/services/discovery/eventbus"
	"example.com/hdtickets/services/discovery/eventstore"
	"example.com/hdtickets/services/discovery/messaging"
	"example.com/hdtickets/services/discovery/models"
	"example.com/hdtickets/services/discovery/platforms"
	"example.com/hdtickets/services/discovery/projections"
	"example.com/hdtickets/services/discovery/purchase"
	"example.com/hdtickets/services/discovery/repositories"
	"example.com/hdtickets/services/discovery/stats"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server and message consumers",
	Run:   runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) {
	log.Info().Msg("Starting server")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.DBSource), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	// Auto migrate tables
	if cfg.EnableMigrations {
		err = db.AutoMigrate(&models.Event{}, &models.Ticket{}, &models.AlertRule{}, &models.Purchase{})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate database")
		}
	}

	// Initialize event store and bus
	eventStore := eventstore.NewGormEventStore(db)
	bus := eventbus.NewBus(eventStore, cfg.BusWorkers, cfg.BusQueueSize)
	defer bus.Close()

	// Initialize Redis-backed components
	ticketCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer ticketCache.Close()

	redisClient := cache.NewClient(cfg.Redis)
	defer redisClient.Close()
	recorder := stats.NewRedisRecorder(redisClient)

	// Initialize Elasticsearch
	esClient, err := projections.NewElasticsearchClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Elasticsearch")
	}
	if err := projections.EnsureIndices(esClient, cfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure Elasticsearch indices")
	}
	indexer := projections.NewTicketIndexer(esClient, cfg)

	// Initialize repositories
	tickets := repositories.NewGormTicketRepository(db)
	alerts := repositories.NewGormAlertRuleRepository(db)
	purchases := repositories.NewGormPurchaseRepository(db)

	// Wire projectors onto the bus
	discoveryProjector := projections.NewDiscoveryProjector(
		tickets, alerts, ticketCache, recorder, indexer, bus,
		cfg.TicketCacheTTL, cfg.IndexCacheTTL,
	)
	bus.Subscribe(domain.TicketDiscovered, discoveryProjector)
	bus.Subscribe(domain.TicketPriceChanged, discoveryProjector)
	bus.Subscribe(domain.TicketAvailabilityChanged, discoveryProjector)
	bus.Subscribe(domain.TicketSoldOut, discoveryProjector)

	purchaseProjector := projections.NewPurchaseProjector(purchases)
	bus.Subscribe(domain.PurchaseInitiated, purchaseProjector)
	bus.Subscribe(domain.PaymentProcessed, purchaseProjector)
	bus.Subscribe(domain.PurchaseCompleted, purchaseProjector)
	bus.Subscribe(domain.PurchaseFailed, purchaseProjector)

	// Initialize purchase engine
	engine := purchase.NewEngine(bus, purchases, redisClient, cfg.Purchase.LockTTL)
	engine.RegisterPurchaser(purchase.NewTicketekPurchaser(cfg.TicketekBaseURL, cfg.Purchase))

	// Initialize Azure Service Bus consumer
	consumer, err := messaging.NewConsumer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Azure Service Bus")
	}

	// Start scraped payload consumer
	msgProcessor := messaging.NewProcessor(bus, cfg.Purchase.MaxRetries, platforms.NewTicketekAdapter())
	go func() {
		if err := consumer.Start(cfg.AzureScrapedQueueName, msgProcessor); err != nil {
			log.Fatal().Err(err).Msg("Failed to start scraped queue consumer")
		}
	}()

	// Initialize server
	server := api.NewServer(cfg, tickets, alerts, purchases, ticketCache, recorder, engine)

	// Start HTTP server
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}
