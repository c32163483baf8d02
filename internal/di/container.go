package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/velora-shop/api/internal/payments"
	"github.com/velora-shop/api/internal/platform/config"
	pstorage "github.com/velora-shop/api/internal/platform/storage"
	"github.com/velora-shop/api/internal/repositories"
	"github.com/velora-shop/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Cart       services.CartService
	Checkout   services.CheckoutService
	Settlement services.SettlementService
	Orders     services.OrderService
	Catalog    services.CatalogService
	Users      services.UserService
	Reviews    services.ReviewService
	Wishlist   services.WishlistService
	Chat       services.ChatService
	Audit      services.AuditLogService
	Counters   services.CounterService
	Uploads    services.UploadService
	System     services.SystemService
}

// Dependencies carries collaborators that live outside the repository registry:
// the payment gateway manager, the assistant completion client, the signed URL
// issuer, and the optional order event publisher.
type Dependencies struct {
	Payments  *payments.Manager
	Completer *openai.Client
	Storage   *pstorage.Client
	Publisher services.OrderEventPublisher
	Logger    func(ctx context.Context, event string, fields map[string]any)
	Clock     func() time.Time
}

// Container wires repositories, services, and shared infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides
// Firestore-backed repositories, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, deps Dependencies) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(cfg, reg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, deps Dependencies) (Services, error) {
	var svc Services

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger

	auditSvc, err := services.NewAuditLogService(services.AuditLogServiceDeps{
		Repository: reg.AuditLogs(),
		Clock:      clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build audit log service: %w", err)
	}
	svc.Audit = auditSvc

	counterSvc, err := services.NewCounterService(services.CounterServiceDeps{
		Repository: reg.Counters(),
		Clock:      clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build counter service: %w", err)
	}
	svc.Counters = counterSvc

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:   reg.Products(),
		Categories: reg.Categories(),
		Audit:      auditSvc,
		Clock:      clock,
		Logger:     logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	userSvc, err := services.NewUserService(services.UserServiceDeps{
		Users:     reg.Users(),
		Addresses: reg.Addresses(),
		Wishlists: reg.Wishlists(),
		Carts:     reg.Carts(),
		Audit:     auditSvc,
		Clock:     clock,
		Logger:    logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build user service: %w", err)
	}
	svc.Users = userSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:           reg.Carts(),
		Products:        reg.Products(),
		Clock:           clock,
		DefaultCurrency: cfg.Checkout.Currency,
		Logger:          logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	taxBasisPoints := int64(cfg.Checkout.TaxRatePercent) * 100

	checkoutDeps := services.CheckoutServiceDeps{
		Carts:                 reg.Carts(),
		Orders:                reg.Orders(),
		Addresses:             reg.Addresses(),
		Validator:             cartSvc,
		Counters:              counterSvc,
		Clock:                 clock,
		Logger:                logger,
		ShippingFee:           cfg.Checkout.ShippingFee,
		FreeShippingThreshold: cfg.Checkout.FreeShippingThreshold,
		TaxRateBasisPoints:    taxBasisPoints,
	}
	if deps.Payments != nil {
		checkoutDeps.Payments = deps.Payments
	}
	checkoutSvc, err := services.NewCheckoutService(checkoutDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	settlementDeps := services.SettlementServiceDeps{
		Orders:                reg.Orders(),
		Carts:                 reg.Carts(),
		Publisher:             deps.Publisher,
		RazorpayConfirmSecret: cfg.PSP.RazorpayKeySecret,
		Clock:                 clock,
		Logger:                logger,
	}
	if deps.Payments != nil {
		settlementDeps.Payments = deps.Payments
	}
	settlementSvc, err := services.NewSettlementService(settlementDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build settlement service: %w", err)
	}
	svc.Settlement = settlementSvc

	orderDeps := services.OrderServiceDeps{
		Orders:                reg.Orders(),
		Products:              reg.Products(),
		Addresses:             reg.Addresses(),
		Counters:              counterSvc,
		Publisher:             deps.Publisher,
		Audit:                 auditSvc,
		Clock:                 clock,
		Logger:                logger,
		ShippingFee:           cfg.Checkout.ShippingFee,
		FreeShippingThreshold: cfg.Checkout.FreeShippingThreshold,
		TaxRateBasisPoints:    taxBasisPoints,
		DefaultCurrency:       cfg.Checkout.Currency,
	}
	if deps.Payments != nil {
		orderDeps.Payments = deps.Payments
	}
	orderSvc, err := services.NewOrderService(orderDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	if cfg.Features.EnableReviews {
		reviewSvc, err := services.NewReviewService(services.ReviewServiceDeps{
			Reviews:  reg.Reviews(),
			Products: reg.Products(),
			Audit:    auditSvc,
			Clock:    clock,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build review service: %w", err)
		}
		svc.Reviews = reviewSvc
	}

	wishlistSvc, err := services.NewWishlistService(services.WishlistServiceDeps{
		Wishlists: reg.Wishlists(),
		Products:  reg.Products(),
		Clock:     clock,
		Logger:    logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build wishlist service: %w", err)
	}
	svc.Wishlist = wishlistSvc

	if cfg.Features.EnableChat {
		chatDeps := services.ChatServiceDeps{
			Products: reg.Products(),
			Model:    cfg.AI.Model,
			Logger:   logger,
		}
		// A nil completer leaves the chat endpoint answering 503 rather than
		// taking the whole API down.
		if deps.Completer != nil {
			chatDeps.Completer = deps.Completer
		}
		chatSvc, err := services.NewChatService(chatDeps)
		if err != nil {
			return Services{}, fmt.Errorf("build chat service: %w", err)
		}
		svc.Chat = chatSvc
	}

	if deps.Storage != nil && cfg.Storage.MediaBucket != "" {
		uploadSvc, err := services.NewUploadService(services.UploadServiceDeps{
			Storage: deps.Storage,
			Bucket:  cfg.Storage.MediaBucket,
			Logger:  logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build upload service: %w", err)
		}
		svc.Uploads = uploadSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
