// Package app wires configuration, storage, the backend client and the HTTP
// handlers into a runnable storefront.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"krayotmarket/internal/backend"
	"krayotmarket/internal/config"
	"krayotmarket/internal/events"
	"krayotmarket/internal/handlers"
	"krayotmarket/internal/payment"
	"krayotmarket/internal/services"
	"krayotmarket/internal/slots"
	"krayotmarket/internal/storage"
	"krayotmarket/internal/telemetry"
)

// checkoutIdleTTL is how long an untouched checkout stays in memory.
const checkoutIdleTTL = 2 * time.Hour

func init() {
	// Prices go to the browser and the backend as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// App is a wired storefront.
type App struct {
	Config *config.Config
	Engine *gin.Engine

	closers []func(context.Context) error
}

// New builds every dependency from cfg. Optional integrations (AMQP, SMTP)
// that cannot be reached are logged and left out.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	shutdown, err := telemetry.Setup(cfg.Telemetry.Enabled, cfg.Telemetry.ServiceName)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, shutdown)

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	pricing, err := pricingFrom(cfg.Pricing)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	security := services.NewSecurityLogger(cfg.Admin.SecurityLog)
	a.closers = append(a.closers, func(context.Context) error {
		security.Close()
		return nil
	})
	admin, err := services.NewAdminGate(cfg.Admin.Password, cfg.Admin.PasswordHash, store, cfg.Admin.SessionTTL, security)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	client := backend.NewClient(cfg.Backend.URL, telemetry.HTTPClient(cfg.Backend.Timeout))
	cart := services.NewCartService(store, pricing, cfg.Storage.CartTTL)

	deps := &services.CheckoutDeps{
		Orders:       client,
		Payments:     payment.NewHostedFields(backend.PaymentSessions{Client: client}, cfg.Payment.TrustedOrigin, cfg.Payment.FieldsBaseURL),
		Availability: services.NewAvailability(client, store, cfg.Storage.AvailabilityTTL),
		Cart:         cart,
		Slots: slots.Calculator{
			HourStart: cfg.Delivery.HourStart,
			HourEnd:   cfg.Delivery.HourEnd,
			LeadHours: cfg.Delivery.LeadHours,
		},
		SlotCapacity:  cfg.Delivery.SlotCapacity,
		Events:        a.openEvents(),
		ReturnBaseURL: cfg.Server.PublicURL,
		InitDelay:     cfg.Payment.InitDelay,
		InitTimeout:   cfg.Payment.InitTimeout,
	}
	if email := services.NewEmailService(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Pass, cfg.SMTP.NotifyTo); email.Enabled() {
		deps.Notifier = email
	}

	catalog := services.NewCatalog(client)
	if err := catalog.Load(ctx); err != nil {
		log.Printf("app.New - Catalog not loaded yet, will retry on first request: %v", err)
	}

	h := handlers.NewHandler(handlers.Deps{
		Backend:       client,
		Catalog:       catalog,
		Cart:          cart,
		Checkouts:     services.NewCheckoutRegistry(deps, checkoutIdleTTL),
		Preferences:   services.NewPreferences(store),
		Admin:         admin,
		TrustedOrigin: cfg.Payment.TrustedOrigin,
		SecureCookies: cfg.Server.SecureCookies,
		CartTTL:       cfg.Storage.CartTTL,
		AdminTTL:      cfg.Admin.SessionTTL,
	})

	engine, err := NewEngine(cfg.Server.TrustedProxies, h)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Engine = engine
	return a, nil
}

// NewEngine creates the gin engine with logging, recovery and the embedded
// templates, and registers h's routes.
func NewEngine(trustedProxies []string, h *handlers.Handler) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	if err := r.SetTrustedProxies(trustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	renderer, err := handlers.LoadTemplates()
	if err != nil {
		return nil, err
	}
	r.HTMLRender = renderer

	h.RegisterRoutes(r)
	return r, nil
}

// Handler is the engine wrapped with request tracing when telemetry is on.
func (a *App) Handler() http.Handler {
	if !a.Config.Telemetry.Enabled {
		return a.Engine
	}
	return telemetry.Handler(a.Engine, a.Config.Telemetry.ServiceName)
}

// Close releases everything New opened, newest first.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			log.Printf("App.Close - %v", err)
		}
	}
	a.closers = nil
}

func (a *App) openStore(ctx context.Context) (storage.Store, error) {
	sc := a.Config.Storage
	switch sc.Driver {
	case "memory":
		log.Println("app.openStore - Using in-memory storage")
		return storage.NewMemoryStore(), nil
	case "file":
		fs, err := storage.NewFileStore(sc.FilePath)
		if err != nil {
			return nil, err
		}
		log.Printf("app.openStore - Using file storage at %s", sc.FilePath)
		return fs, nil
	case "redis":
		rs, err := storage.DialRedis(ctx, sc.RedisURL, sc.Namespace)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return rs.Close() })
		log.Println("app.openStore - Using redis storage")
		return rs, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", sc.Driver)
}

func (a *App) openEvents() events.Publisher {
	ec := a.Config.Events
	if ec.AMQPURL == "" {
		return events.NopPublisher{}
	}
	pub, err := events.DialAMQP(ec.AMQPURL, ec.Queue)
	if err != nil {
		log.Printf("app.openEvents - AMQP unavailable, order events disabled: %v", err)
		return events.NopPublisher{}
	}
	a.closers = append(a.closers, func(context.Context) error { return pub.Close() })
	log.Printf("app.openEvents - Publishing order events to queue %s", ec.Queue)
	return pub
}

func pricingFrom(pc config.PricingConfig) (services.Pricing, error) {
	fee, err := decimal.NewFromString(pc.DeliveryFee)
	if err != nil {
		return services.Pricing{}, fmt.Errorf("delivery fee %q: %w", pc.DeliveryFee, err)
	}
	freeMin, err := decimal.NewFromString(pc.FreeShippingMin)
	if err != nil {
		return services.Pricing{}, fmt.Errorf("free shipping minimum %q: %w", pc.FreeShippingMin, err)
	}
	if fee.IsNegative() || freeMin.IsNegative() {
		return services.Pricing{}, fmt.Errorf("pricing amounts must not be negative")
	}
	return services.Pricing{DeliveryFee: fee, FreeShippingMin: freeMin}, nil
}
