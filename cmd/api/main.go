package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	redis "github.com/go-redis/redis/v8"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/velora-shop/api/internal/di"
	"github.com/velora-shop/api/internal/handlers"
	"github.com/velora-shop/api/internal/payments"
	"github.com/velora-shop/api/internal/platform/auth"
	"github.com/velora-shop/api/internal/platform/config"
	pfirestore "github.com/velora-shop/api/internal/platform/firestore"
	"github.com/velora-shop/api/internal/platform/idempotency"
	"github.com/velora-shop/api/internal/platform/jobs"
	"github.com/velora-shop/api/internal/platform/observability"
	"github.com/velora-shop/api/internal/platform/secrets"
	platformstorage "github.com/velora-shop/api/internal/platform/storage"
	"github.com/velora-shop/api/internal/platform/webhooklog"
	"github.com/velora-shop/api/internal/repositories"
	firestoreRepo "github.com/velora-shop/api/internal/repositories/firestore"
	"github.com/velora-shop/api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	requiredSecrets := requiredSecretNames(envValues)
	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecrets...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
	}

	healthRepo, err := newHealthRepository(firestoreClient, redisClient)
	if err != nil {
		logger.Fatal("failed to initialise health repository", zap.Error(err))
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, firestoreRepo.WithHealthRepository(healthRepo))
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := registry.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithUserGetter(firebaseVerifier))

	paymentManager, err := newPaymentManager(logger.Named("payments"), cfg)
	if err != nil {
		logger.Fatal("failed to initialise payment manager", zap.Error(err))
	}

	var completer *openai.Client
	if key := strings.TrimSpace(cfg.AI.APIKey); key != "" {
		completer = openai.NewClient(key)
	} else {
		logger.Info("assistant key not configured; chat endpoint will report unavailable")
	}

	signedURLClient := newSignedURLClient(logger, cfg)

	var publisher services.OrderEventPublisher
	if topicID := strings.TrimSpace(envValues["API_PUBSUB_ORDER_EVENTS_TOPIC"]); topicID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Firestore.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		publisher, err = jobs.NewPubSubOrderEventPublisher(pubsubClient.Topic(topicID))
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
	}

	container, err := di.NewContainer(ctx, cfg, registry, di.Dependencies{
		Payments:  paymentManager,
		Completer: completer,
		Storage:   signedURLClient,
		Publisher: publisher,
		Logger:    newServiceLogger(logger.Named("services")),
		Clock:     time.Now,
	})
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}

	var webhookLogStore webhooklog.Store
	if redisClient != nil {
		store, err := webhooklog.NewRedisStore(redisClient,
			webhooklog.WithRedisKey(cfg.Redis.WebhookLogKey),
			webhooklog.WithRedisCapacity(cfg.Redis.WebhookLogSize),
		)
		if err != nil {
			logger.Fatal("failed to initialise webhook log store", zap.Error(err))
		}
		webhookLogStore = store
	} else {
		webhookLogStore = webhooklog.NewMemoryStore(webhooklog.WithMemoryCapacity(cfg.Redis.WebhookLogSize))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	svc := container.Services

	reviewHandlers := handlers.NewReviewHandlers(authenticator, svc.Reviews)
	productHandlers := handlers.NewProductHandlers(svc.Catalog, reviewHandlers)
	categoryHandlers := handlers.NewCategoryHandlers(svc.Catalog)
	cartHandlers := handlers.NewCartHandlers(authenticator, svc.Cart)
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders)
	paymentHandlers := handlers.NewPaymentHandlers(authenticator, svc.Checkout, svc.Settlement)
	wishlistHandlers := handlers.NewWishlistHandlers(authenticator, svc.Wishlist)
	chatHandlers := handlers.NewChatHandlers(authenticator, svc.Chat)
	meHandlers := handlers.NewMeHandlers(authenticator, svc.Users)
	webhookHandlers := handlers.NewWebhookHandlers(handlers.WebhookHandlersDeps{
		Settlement:     svc.Settlement,
		Log:            webhookLogStore,
		StripeSecret:   cfg.PSP.StripeWebhookSecret,
		RazorpaySecret: cfg.PSP.RazorpayWebhookSecret,
	})
	adminHandlers := handlers.NewAdminHandlers(handlers.AdminHandlersDeps{
		Authenticator: authenticator,
		Users:         svc.Users,
		Catalog:       svc.Catalog,
		Orders:        svc.Orders,
		Uploads:       svc.Uploads,
		Audit:         svc.Audit,
		WebhookLog:    webhookLogStore,
	})
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthSystemService(svc.System),
	)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
		idempotencyMiddleware,
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithCategoryRoutes(categoryHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithWishlistRoutes(wishlistHandlers.Routes),
		handlers.WithChatRoutes(chatHandlers.Routes),
		handlers.WithMeRoutes(meHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("velora api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// newPaymentManager assembles the gateway manager. INR traffic routes to
// Razorpay when both gateways are configured.
func newPaymentManager(logger *zap.Logger, cfg config.Config) (*payments.Manager, error) {
	providers := make(map[string]payments.Provider)

	if strings.TrimSpace(cfg.PSP.StripeAPIKey) != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: cfg.PSP.StripeAPIKey,
			Logger: newProviderLogger(logger, "stripe"),
			Clock:  time.Now,
		})
		if err != nil {
			return nil, err
		}
		providers["stripe"] = stripeProvider
	}

	if strings.TrimSpace(cfg.PSP.RazorpayKeyID) != "" && strings.TrimSpace(cfg.PSP.RazorpayKeySecret) != "" {
		razorpayProvider, err := payments.NewRazorpayProvider(payments.RazorpayProviderConfig{
			KeyID:     cfg.PSP.RazorpayKeyID,
			KeySecret: cfg.PSP.RazorpayKeySecret,
			Logger:    newProviderLogger(logger, "razorpay"),
		})
		if err != nil {
			return nil, err
		}
		providers["razorpay"] = razorpayProvider
	}

	if len(providers) == 0 {
		return nil, errors.New("at least one payment gateway must be configured")
	}

	opts := []payments.ManagerOption{}
	if _, ok := providers["razorpay"]; ok {
		opts = append(opts, payments.WithCurrencyRoutes(map[string]string{"INR": "razorpay"}))
	}
	return payments.NewManager(providers, opts...)
}

func newProviderLogger(logger *zap.Logger, provider string) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+2)
		zFields = append(zFields, zap.String("provider", provider), zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("gateway log", zFields...)
	}
}

func newServiceLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service log", zFields...)
	}
}

// newSignedURLClient builds the signed URL issuer from the service account
// credentials file. Product image uploads stay disabled without one.
func newSignedURLClient(logger *zap.Logger, cfg config.Config) *platformstorage.Client {
	credentialsFile := strings.TrimSpace(cfg.Firebase.CredentialsFile)
	if credentialsFile == "" || strings.TrimSpace(cfg.Storage.MediaBucket) == "" {
		logger.Info("signed uploads not configured; admin product image uploads disabled")
		return nil
	}
	signer, err := platformstorage.NewServiceAccountSignerFromFile(credentialsFile)
	if err != nil {
		logger.Warn("failed to parse storage signer credentials", zap.Error(err))
		return nil
	}
	client, err := platformstorage.NewClient(signer)
	if err != nil {
		logger.Warn("failed to initialise signed url client", zap.Error(err))
		return nil
	}
	return client
}

func newHealthRepository(client *firestore.Client, redisClient *redis.Client) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 2)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if redisClient != nil {
		r := redisClient
		checks = append(checks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				return r.Ping(ctx).Err()
			},
		})
	}
	return repositories.NewDependencyHealthRepository(checks)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		if value, ok := env[key]; ok {
			return strings.TrimSpace(value)
		}
		return ""
	}

	envLabel := strings.ToLower(lookup("API_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	projectMap := secretProjectMapFromEnv(env)
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames marks a gateway credential as mandatory only when its
// environment key is present, so partially configured local setups still boot.
func requiredSecretNames(env map[string]string) []string {
	candidates := []struct {
		envKey string
		name   string
	}{
		{"API_PSP_STRIPE_API_KEY", "PSP.StripeAPIKey"},
		{"API_PSP_STRIPE_WEBHOOK_SECRET", "PSP.StripeWebhookSecret"},
		{"API_PSP_RAZORPAY_KEY_SECRET", "PSP.RazorpayKeySecret"},
		{"API_PSP_RAZORPAY_WEBHOOK_SECRET", "PSP.RazorpayWebhookSecret"},
		{"API_AI_API_KEY", "AI.APIKey"},
	}

	required := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if env == nil {
			continue
		}
		if strings.TrimSpace(env[candidate.envKey]) != "" {
			required = append(required, candidate.name)
		}
	}
	return uniqueStrings(required)
}

func secretProjectMapFromEnv(env map[string]string) map[string]string {
	raw := ""
	if env != nil {
		raw = env["API_SECRET_PROJECT_IDS"]
	}
	raw = strings.TrimSpace(raw)
	projects := make(map[string]string)
	if raw == "" {
		return projects
	}
	entries := strings.Split(raw, ",")
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		envLabel := strings.ToLower(strings.TrimSpace(parts[0]))
		project := strings.TrimSpace(parts[1])
		if envLabel == "" || project == "" {
			continue
		}
		projects[envLabel] = project
	}
	return projects
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}
