package di

import (
	"context"
	"errors"
	"fmt"

	"github.com/foodies-app/api/internal/payments"
	"github.com/foodies-app/api/internal/platform/config"
	"github.com/foodies-app/api/internal/repositories"
	"github.com/foodies-app/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders  services.OrderService
	Catalog services.CatalogService
}

// Deps lists the external collaborators the container cannot build itself:
// the payment gateway and the event fan-out are constructed in main because
// their lifecycles (Stripe client, pub/sub bridge) outlive the request path.
type Deps struct {
	Gateway payments.Provider
	Events  services.EventPublisher
	Logger  func(context.Context, string, map[string]any)
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides the
// Firestore-backed registry and the Stripe provider, while tests can supply
// in-memory registries and stub gateways.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, deps Deps) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment gateway is required")
	}

	svc, err := buildServices(reg, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, cfg config.Config, deps Deps) (Services, error) {
	var svc Services

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Restaurants: reg.Restaurants(),
		MenuItems:   reg.MenuItems(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	pricing, err := services.NewPricingEngine(services.PricingEngineDeps{
		MenuItems: reg.MenuItems(),
		Logger:    deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing engine: %w", err)
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:         reg.Orders(),
		Restaurants:    reg.Restaurants(),
		Users:          reg.Users(),
		Pricing:        pricing,
		Payments:       deps.Gateway,
		Events:         deps.Events,
		TxRunner:       reg,
		GatewayTimeout: cfg.PSP.RefundTimeout,
		Logger:         deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	return svc, nil
}
