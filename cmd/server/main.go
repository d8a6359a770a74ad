package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/checkout-router/internal/adapters"
	"github.com/ignite/checkout-router/internal/api"
	"github.com/ignite/checkout-router/internal/config"
	"github.com/ignite/checkout-router/internal/domain"
	"github.com/ignite/checkout-router/internal/feeds"
	"github.com/ignite/checkout-router/internal/pkg/distlock"
	"github.com/ignite/checkout-router/internal/pkg/logger"
	"github.com/ignite/checkout-router/internal/sinks"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/config.yaml"
}

func isS3Locator(locator string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(locator)), "s3://")
}

// awsClients holds the AWS clients; each is nil when unused.
type awsClients struct {
	s3       *s3.Client
	dynamodb *dynamodb.Client
	sqs      *sqs.Client
}

func loadAWS(ctx context.Context, cfg *config.Config) (awsClients, error) {
	var clients awsClients
	needsS3 := cfg.Storage.DocumentBucket != "" || isS3Locator(cfg.Feeds.TrackingRules) || isS3Locator(cfg.Feeds.OfferDefaults)
	if !needsS3 && cfg.Storage.JournalTable == "" && cfg.Storage.QueueURL == "" {
		return clients, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Storage.AWSRegion)}
	if profile := cfg.Storage.GetAWSProfile(); profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return clients, fmt.Errorf("aws config: %w", err)
	}

	if needsS3 {
		clients.s3 = s3.NewFromConfig(awsCfg)
	}
	if cfg.Storage.JournalTable != "" {
		clients.dynamodb = dynamodb.NewFromConfig(awsCfg)
	}
	if cfg.Storage.QueueURL != "" {
		clients.sqs = sqs.NewFromConfig(awsCfg)
	}
	log.Printf("AWS initialized: region=%s profile=%q", awsCfg.Region, cfg.Storage.GetAWSProfile())
	return clients, nil
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		log.Println("Redis not configured (REDIS_ADDR not set), postback dedupe is process-local")
		return nil
	}
	opts, err := redis.ParseURL(cfg.Addr)
	if err != nil {
		opts = &redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("Warning: Redis connection failed (%s): %v, falling back to process-local dedupe", cfg.Addr, err)
		client.Close()
		return nil
	}
	log.Printf("Redis connected: %s (distributed dedupe enabled)", cfg.Addr)
	return client
}

func main() {
	log.Println("checkout-router starting")

	cfg, err := config.LoadFromEnv(configPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if cfg.Log.RedactPII != nil {
		logger.SetRedactPII(*cfg.Log.RedactPII)
	}

	host, port := cfg.Server.GetHost(), cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clients, err := loadAWS(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize AWS: %v", err)
	}

	// Feeds
	var objects feeds.ObjectGetter
	if clients.s3 != nil {
		objects = clients.s3
	}
	rules := feeds.NewRuleSource(cfg.Feeds.TrackingRules, feeds.Options{
		RefreshInterval: cfg.Feeds.TrackingRulesRefresh(),
		S3:              objects,
	})
	defaults := feeds.NewDefaultsSource(cfg.Feeds.OfferDefaults, feeds.Options{
		RefreshInterval: cfg.Feeds.OfferDefaultsRefresh(),
		S3:              objects,
	})
	log.Printf("Feeds: tracking_rules=%q offer_defaults=%q", cfg.Feeds.TrackingRules, cfg.Feeds.OfferDefaults)

	// Adapters
	platformConfigs := make(map[domain.Platform]adapters.Config, len(domain.Platforms))
	for _, p := range domain.Platforms {
		pc := cfg.Platform(p)
		platformConfigs[p] = adapters.Config{
			Secret:         pc.Secret,
			ReturnMode:     domain.ParseReturnMode(pc.ReturnMode),
			ScrapeCheckout: *pc.ScrapeCheckout,
		}
		if pc.Secret == "" {
			log.Printf("Warning: %s webhook secret not configured, its postbacks will be rejected", p)
		}
	}
	factory := adapters.NewFactory(platformConfigs, adapters.Deps{Rules: rules, Defaults: defaults})

	// Sinks
	var delivery []sinks.Sink
	if clients.s3 != nil && cfg.Storage.DocumentBucket != "" {
		delivery = append(delivery, sinks.NewDocumentSink(clients.s3, cfg.Storage.DocumentBucket, cfg.Storage.DocumentPrefix))
	}
	if clients.dynamodb != nil {
		delivery = append(delivery, sinks.NewJournalSink(clients.dynamodb, cfg.Storage.JournalTable, cfg.Storage.JournalTTL()))
	}
	if cfg.Analytics.Enabled() {
		delivery = append(delivery, sinks.NewAnalyticsSink(nil, cfg.Analytics.Endpoint, cfg.Analytics.MeasurementID, cfg.Analytics.APISecret))
	}

	var consumer *sinks.Consumer
	fanout := sinks.NewFanout(cfg.Postbacks.SinkTimeout(), delivery...)
	var inbound sinks.Sink = fanout
	if clients.sqs != nil {
		queue := sinks.NewQueueSink(clients.sqs, cfg.Storage.QueueURL)
		if cfg.Postbacks.Async {
			inbound = queue
			consumer = sinks.NewConsumer(clients.sqs, cfg.Storage.QueueURL, fanout)
			consumer.Start(ctx)
		} else {
			inbound = sinks.NewFanout(cfg.Postbacks.SinkTimeout(), append(delivery, queue)...)
		}
	}
	log.Printf("Postback sinks: %d direct, async=%v", len(delivery), consumer != nil)

	// Dedupe
	redisClient := connectRedis(ctx, cfg.Redis)
	var cmdable redis.Cmdable
	if redisClient != nil {
		cmdable = redisClient
		defer redisClient.Close()
	}

	handlers := api.NewHandlers(api.Options{
		Factory:   factory,
		Sink:      inbound,
		Locker:    distlock.NewLocker(cmdable),
		DedupeTTL: cfg.Postbacks.DedupeTTL(),
	})

	var bucket api.BucketHeader
	if clients.s3 != nil && cfg.Storage.DocumentBucket != "" {
		bucket = clients.s3
	}
	health := api.NewHealthChecker(cmdable, bucket, cfg.Storage.DocumentBucket, rules, defaults)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      api.SetupRoutes(handlers, health, cfg.Server.AllowedOrigins),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down checkout-router...")

	if consumer != nil {
		consumer.Stop()
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
