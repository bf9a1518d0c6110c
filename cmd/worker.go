package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"example.com/hdtickets/services/discovery/cache"
	"example.com/hdtickets/services/discovery/domain"
	"example.com/hdtickets/services/discovery/eventbus"
	"example.com/hdtickets/services/discovery/eventstore"
	"example.com/hdtickets/services/discovery/models"
	"example.com/hdtickets/services/discovery/projections"
	"example.com/hdtickets/services/discovery/repositories"
	"example.com/hdtickets/services/discovery/stats"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the event replay worker",
	Run:   runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) {
	log.Info().Msg("Starting worker")

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

	// Wire projectors onto the bus so replays reach them
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

	// Initialize and start the replay processor
	processor := projections.NewEventProcessor(eventStore, bus)
	processor.Start()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker...")

	// Shutdown processor gracefully
	processor.Stop()

	log.Info().Msg("Worker exited properly")
}
