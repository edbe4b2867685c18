package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/availability"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/billing"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/config"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/ledger"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/middleware"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/models"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/notify"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/orchestrator"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/providers"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/queue"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/ratelimit"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/storage"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/utils"
)

// Dependencies holds the long-lived pieces the server must shut down.
type Dependencies struct {
	DB          *storage.DB
	Redis       *redis.Client
	UsageWorker *storage.UsageQueueWorker
	cancel      context.CancelFunc
	logger      *utils.Logger
}

// Close stops workers and releases connections. Safe to call once.
func (d *Dependencies) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.UsageWorker != nil {
		if err := d.UsageWorker.Stop(); err != nil {
			d.logger.Error("usage worker stop failed", "error", err)
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.logger.Error("redis close failed", "error", err)
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			d.logger.Error("database close failed", "error", err)
		}
	}
}

// NewRouter wires the whole service from config: storage, queues,
// trackers, the provider gateway, the ledger and the orchestrator. All
// state is owned by the returned dependencies; nothing lives in package
// globals.
func NewRouter(cfg *config.Config) (*http.ServeMux, *Dependencies, error) {
	logger := utils.NewLogger("httpapi")

	db, err := storage.NewDB(cfg.Database, cfg.Cache)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize database: %w", err)
	}

	// Redis is optional. Without it the queues fall back to memory and
	// restarts drop whatever is in flight.
	redisClient, err := storage.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, using in-memory queues", "error", err)
		redisClient = nil
	}

	usageQueue, usageDLQ, err := buildQueue(redisClient, queue.DefaultConfig("usage"))
	if err != nil {
		return nil, nil, fmt.Errorf("create usage queue: %w", err)
	}
	notifyCfg := queue.DefaultConfig("notifications")
	notifyQueue, _, err := buildQueue(redisClient, notifyCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create notification queue: %w", err)
	}

	workerCtx, cancel := context.WithCancel(context.Background())

	usageWorker := storage.NewUsageQueueWorker(usageQueue, usageDLQ, db.Usage(), queue.DefaultConfig("usage"))
	usageWorker.Start(workerCtx)

	notifier, err := buildNotifier(workerCtx, cfg.Telegram, notifyQueue, logger)
	if err != nil {
		cancel()
		return nil, nil, err
	}

	limits := ratelimit.NewTracker()
	avail := availability.NewTracker(cfg.Gateway.CooldownWindow)
	gateway := providers.NewGateway(
		buildAdapters(cfg.Gateway),
		buildTokenSources(cfg.Gateway),
		limits,
		avail,
		providers.GatewayConfig{
			MaxAttempts:      cfg.Gateway.MaxAttempts,
			BaseBackoff:      cfg.Gateway.BaseBackoff,
			RequestTimeout:   cfg.Gateway.RequestTimeout,
			MaxMessageLength: cfg.Gateway.MaxMessageLength,
		},
		utils.NewLogger("gateway"),
	)

	ledgerSvc := ledger.NewService(db.Agents(), db.Ledger(), cfg.Credits.TrialGrant, utils.NewLogger("ledger"))
	orch := orchestrator.New(db.Agents(), ledgerSvc, gateway, usageWorker, notifier, utils.NewLogger("orchestrator"))
	billingSvc := billing.NewService(cfg.Stripe.APIKey, cfg.Stripe.SuccessURL, cfg.Stripe.CancelURL, ledgerSvc, utils.NewLogger("billing"))

	healthChecks := map[string]func(context.Context) error{
		"database": db.Health,
	}
	if redisClient != nil {
		healthChecks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	} else {
		healthChecks["redis"] = nil
	}

	handlers := NewHandlers(orch, db.Agents(), ledgerSvc, billingSvc, db.Usage(), healthChecks, logger)

	mux := http.NewServeMux()
	RegisterRoutes(mux, handlers, cfg.JWTSecret, cfg.ServiceKeyHash)

	deps := &Dependencies{
		DB:          db,
		Redis:       redisClient,
		UsageWorker: usageWorker,
		cancel:      cancel,
		logger:      logger,
	}
	return mux, deps, nil
}

// RegisterRoutes attaches every endpoint to the mux. Split out so tests
// can mount handlers backed by fakes.
func RegisterRoutes(mux *http.ServeMux, h *Handlers, jwtSecret []byte, serviceKeyHash string) {
	userAuth := middleware.UserAuth(jwtSecret)
	serviceAuth := middleware.ServiceKeyAuth(serviceKeyHash)

	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /v1/agents", h.HandleListAgents)
	mux.HandleFunc("GET /v1/billing/packs", h.HandleListPacks)

	mux.Handle("POST /v1/agents/{agentID}/generate", userAuth(http.HandlerFunc(h.HandleGenerate)))
	mux.Handle("GET /v1/agents/{agentID}/eligibility", userAuth(http.HandlerFunc(h.HandleEligibility)))
	mux.Handle("POST /v1/query", userAuth(http.HandlerFunc(h.HandleQuery)))
	mux.Handle("GET /v1/credits/balance", userAuth(http.HandlerFunc(h.HandleBalance)))
	mux.Handle("GET /v1/credits/transactions", userAuth(http.HandlerFunc(h.HandleTransactions)))
	mux.Handle("POST /v1/credits/trial", userAuth(http.HandlerFunc(h.HandleTrialGrant)))
	mux.Handle("GET /v1/usage", userAuth(http.HandlerFunc(h.HandleUsage)))
	mux.Handle("POST /v1/billing/checkout", userAuth(http.HandlerFunc(h.HandleCheckout)))

	mux.Handle("POST /internal/billing/events", serviceAuth(http.HandlerFunc(h.HandleBillingEvent)))
}

// buildQueue prefers Redis when a client is present.
func buildQueue(client *redis.Client, cfg *queue.Config) (queue.Queue, queue.DeadLetterQueue, error) {
	if client == nil {
		return queue.NewMemoryQueue(cfg), queue.NewMemoryDeadLetterQueue(), nil
	}
	q, err := queue.NewRedisQueue(client, cfg)
	if err != nil {
		return nil, nil, err
	}
	dlq, err := queue.NewRedisDeadLetterQueue(client, cfg)
	if err != nil {
		return nil, nil, err
	}
	return q, dlq, nil
}

// buildNotifier starts the Telegram worker when configured, otherwise
// returns a noop.
func buildNotifier(ctx context.Context, cfg config.TelegramConfig, q queue.Queue, logger *utils.Logger) (orchestrator.Notifier, error) {
	if !cfg.Enabled || cfg.BotToken == "" {
		logger.Info("telegram notifications disabled")
		return notify.NoopNotifier{}, nil
	}

	notifier, err := notify.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, q, utils.NewLogger("notify"))
	if err != nil {
		return nil, fmt.Errorf("initialize telegram notifier: %w", err)
	}
	go notifier.Start(ctx)
	return notifier, nil
}

func buildAdapters(cfg config.GatewayConfig) []providers.Provider {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	return []providers.Provider{
		providers.NewOpenAIProvider(client, ""),
		providers.NewAnthropicProvider(client, ""),
		providers.NewGeminiProvider(client, ""),
	}
}

func buildTokenSources(cfg config.GatewayConfig) map[models.ProviderName]providers.TokenSource {
	return map[models.ProviderName]providers.TokenSource{
		models.ProviderOpenAI:    providers.StaticTokenSource{Key: cfg.OpenAIAPIKey},
		models.ProviderAnthropic: providers.StaticTokenSource{Key: cfg.AnthropicAPIKey},
		models.ProviderGemini:    providers.StaticTokenSource{Key: cfg.GeminiAPIKey},
	}
}
