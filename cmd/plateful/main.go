package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	appoutbox "plateful/internal/app/outbox"
	authsvc "plateful/internal/app/services/auth"
	chatsvc "plateful/internal/app/services/chat"
	listingsvc "plateful/internal/app/services/listings"
	domainauth "plateful/internal/domain/auth"
	domainchat "plateful/internal/domain/chat"
	domainlisting "plateful/internal/domain/listing"
	domainuser "plateful/internal/domain/user"
	"plateful/internal/infra/broker/kafka"
	"plateful/internal/infra/config"
	mongostore "plateful/internal/infra/db/mongo"
	ginserver "plateful/internal/infra/http/gin"
	"plateful/internal/infra/obs"
	"plateful/internal/infra/outbox"
	"plateful/internal/infra/pubsub"
	"plateful/internal/infra/security"
	"plateful/internal/infra/storage/memory"
	"plateful/internal/infra/storage/s3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := getenv("APP_ENV", "dev")
	logger := obs.NewLogger(env)

	cfg, err := config.Load()
	if err != nil {
		logger.Warn("using fallback configuration", "error", err)
		cfg.Env = env
		cfg.HTTPAddr = getenv("HTTP_ADDR", ":8080")
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.close(logger)

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready: app.ready,
	}, app.handlers)

	fixturesPath := getenv("LISTINGS_FIXTURES", "")
	if fixturesPath == "" {
		fixturesPath = defaultListingFixturesPath()
	}
	if err := app.loadListingFixtures(ctx, fixturesPath, logger); err != nil {
		logger.Warn("listing fixtures load failed", "error", err, "path", fixturesPath)
	}

	if app.worker != nil {
		go func() {
			if err := app.worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("outbox worker stopped", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "env", cfg.Env)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type application struct {
	handlers ginserver.Handlers
	worker   *outbox.Worker
	ready    func() error

	listings domainlisting.Repository
	users    domainuser.Repository

	cleanups []func(context.Context) error
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (application, error) {
	app := application{ready: func() error { return nil }}

	var (
		users         domainuser.Repository
		sessions      domainauth.SessionStore = memory.NewSessionStore()
		listings      domainlisting.Repository
		conversations domainchat.ConversationRepository
		messages      domainchat.MessageRepository
	)

	if cfg.MongoURI != "" {
		client, err := mongostore.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return application{}, fmt.Errorf("mongo connect: %w", err)
		}
		app.cleanups = append(app.cleanups, client.Disconnect)
		app.ready = func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx)
		}

		userRepo := mongostore.NewUserRepository(client.DB)
		conversationRepo := mongostore.NewConversationRepository(client.DB)
		messageRepo := mongostore.NewMessageRepository(client.DB)
		for name, ensure := range map[string]func(context.Context) error{
			"users":         userRepo.EnsureIndexes,
			"conversations": conversationRepo.EnsureIndexes,
			"messages":      messageRepo.EnsureIndexes,
		} {
			if err := ensure(ctx); err != nil {
				logger.Warn("index creation failed", "collection", name, "error", err)
			}
		}
		users = userRepo
		listings = mongostore.NewListingRepository(client.DB)
		conversations = conversationRepo
		messages = messageRepo
		logger.Info("storage: mongo", "db", cfg.MongoDB)
	} else {
		users = memory.NewUserRepository()
		listings = memory.NewListingRepository()
		conversations = memory.NewConversationRepository()
		messages = memory.NewMessageRepository()
		logger.Info("storage: in-memory")
	}
	app.users = users
	app.listings = listings

	var feed chatsvc.Feed
	if cfg.RedisAddr != "" {
		redisFeed := pubsub.NewRedis(cfg.RedisAddr, logger)
		if err := redisFeed.Ping(ctx); err != nil {
			return application{}, fmt.Errorf("redis connect: %w", err)
		}
		app.cleanups = append(app.cleanups, func(context.Context) error { return redisFeed.Close() })
		feed = redisFeed
		logger.Info("message feed: redis", "addr", cfg.RedisAddr)
	} else {
		feed = pubsub.NewMemory()
		logger.Info("message feed: in-process")
	}

	var events appoutbox.Recorder
	outboxStore := memory.NewOutbox()
	events = outboxStore
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			return application{}, fmt.Errorf("kafka connect: %w", err)
		}
		app.cleanups = append(app.cleanups, func(context.Context) error { return producer.Close() })
		app.worker = &outbox.Worker{
			Queue:       outboxStore,
			Producer:    producer,
			Interval:    cfg.OutboxPollInterval,
			TopicPrefix: cfg.KafkaTopicPrefix,
			Backoff:     cfg.RetryBackoff,
		}
		logger.Info("event publishing: kafka", "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("event publishing: disabled, events stay staged")
	}

	var photos listingsvc.Uploader
	if cfg.S3Endpoint != "" {
		uploader, err := s3.NewClient(cfg.S3Endpoint, cfg.S3UseSSL,
			cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3PublicEndpoint, logger)
		if err != nil {
			return application{}, fmt.Errorf("s3 connect: %w", err)
		}
		photos = uploader
		logger.Info("photo storage: s3", "bucket", cfg.S3Bucket)
	} else {
		logger.Info("photo storage: disabled")
	}

	authService := &authsvc.Service{
		Users:      users,
		Sessions:   sessions,
		Passwords:  security.BcryptHasher{},
		Tokens:     security.RandomTokenGenerator{},
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
	}
	listingService := &listingsvc.Service{
		Listings: listings,
		Photos:   photos,
		Events:   events,
		Logger:   logger,
	}
	chatService := &chatsvc.Service{
		Conversations: conversations,
		Messages:      messages,
		Listings:      listings,
		Feed:          feed,
		Events:        events,
		Logger:        logger,
	}

	app.handlers = ginserver.Handlers{
		Auth:           ginserver.AuthHandler{Service: authService, Logger: logger},
		Listing:        ginserver.ListingHandler{Service: listingService, Logger: logger},
		Chat:           ginserver.ChatHandler{Service: chatService, Logger: logger},
		AuthMiddleware: ginserver.AuthMiddleware{Service: authService, Logger: logger}.Handle,
	}
	return app, nil
}

func (a application) close(logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, cleanup := range a.cleanups {
		if err := cleanup(ctx); err != nil {
			logger.Warn("cleanup failed", "error", err)
		}
	}
}

func (a application) loadListingFixtures(ctx context.Context, path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("listing fixtures file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read fixtures: %w", err)
	}
	if len(data) == 0 {
		logger.Warn("listing fixtures file empty", "path", path)
		return nil
	}

	var fixtures []listingFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}

	now := time.Now().UTC()
	for _, fx := range fixtures {
		id := fx.ID
		if id == "" {
			id = uuid.NewString()
		}
		category, err := domainlisting.ParseCategory(fx.Category)
		if err != nil {
			logger.Error("fixture invalid", "listing_id", id, "error", err)
			continue
		}
		tags := make([]domainlisting.DietaryTag, 0, len(fx.DietaryTags))
		for _, raw := range fx.DietaryTags {
			tag, err := domainlisting.ParseDietaryTag(raw)
			if err != nil {
				logger.Error("fixture invalid", "listing_id", id, "error", err)
				tags = nil
				break
			}
			tags = append(tags, tag)
		}

		item, err := domainlisting.NewListing(domainlisting.CreateParams{
			ID:          domainlisting.ListingID(id),
			Owner:       domainuser.ID(fx.Owner),
			Title:       fx.Title,
			Description: fx.Description,
			PriceCents:  fx.PriceCents,
			Category:    category,
			DietaryTags: tags,
			ExpiresAt:   parseFixtureExpiry(fx.ExpiresAt, fx.ExpiresIn, now),
			Pickup: domainlisting.Address{
				Line1:   fx.Pickup.Line1,
				City:    fx.Pickup.City,
				Country: fx.Pickup.Country,
				Lat:     fx.Pickup.Lat,
				Lon:     fx.Pickup.Lon,
			},
			Photos: append([]string(nil), fx.Photos...),
			Now:    now,
		})
		if err != nil {
			logger.Error("fixture invalid", "listing_id", id, "error", err)
			continue
		}
		if err := item.Activate(now); err != nil {
			logger.Error("fixture activation failed", "listing_id", id, "error", err)
			continue
		}
		if err := a.listings.Save(ctx, item); err != nil {
			logger.Error("cannot store fixture listing", "listing_id", id, "error", err)
			continue
		}
		logger.Info("listing fixture imported", "listing_id", item.ID)
	}
	return nil
}

type listingFixture struct {
	ID          string         `json:"id"`
	Owner       string         `json:"owner"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	PriceCents  int64          `json:"price_cents"`
	Category    string         `json:"category"`
	DietaryTags []string       `json:"dietary_tags"`
	ExpiresAt   string         `json:"expires_at"`
	ExpiresIn   string         `json:"expires_in"`
	Photos      []string       `json:"photos"`
	Pickup      fixtureAddress `json:"pickup"`
}

type fixtureAddress struct {
	Line1   string  `json:"line1"`
	City    string  `json:"city"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// parseFixtureExpiry accepts either an absolute RFC3339 expires_at or a
// relative expires_in duration, so demo data stays fresh on every boot.
func parseFixtureExpiry(absolute, relative string, now time.Time) *time.Time {
	if strings.TrimSpace(absolute) != "" {
		if t, err := time.Parse(time.RFC3339, absolute); err == nil {
			return &t
		}
	}
	if strings.TrimSpace(relative) != "" {
		if d, err := time.ParseDuration(relative); err == nil {
			t := now.Add(d)
			return &t
		}
	}
	return nil
}

func defaultListingFixturesPath() string {
	candidates := []string{
		filepath.Join("data", "listings.json"),
		filepath.Join("backend", "data", "listings.json"),
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return candidates[0]
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
