package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/foodies-app/api/internal/domain"
	"github.com/foodies-app/api/internal/platform/textutil"
	"github.com/foodies-app/api/internal/repositories"
)

const (
	// taxRate applies to the item subtotal only, never to fees or tips.
	taxRate = 0.10
	// deliveryFee is flat per order regardless of distance or size.
	deliveryFee = 5.00

	maxOrderItems   = 50
	maxItemQuantity = 50
	maxNoteLength   = 500
)

var (
	// ErrPricingInvalidInput signals malformed order lines such as zero quantities or unknown customizations.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrPricingItemUnavailable is returned when a referenced menu item cannot be sold right now.
	ErrPricingItemUnavailable = errors.New("pricing: item unavailable")
)

// PricingEngine derives order line prices and the charge breakdown from the
// catalog. Client-supplied prices are never trusted; every amount is looked up
// from the stored menu at pricing time and frozen into the order snapshot.
type PricingEngine struct {
	menuItems repositories.MenuItemRepository
	notes     *textutil.Sanitizer
	logger    func(context.Context, string, map[string]any)
}

// PricingEngineDeps lists collaborators for NewPricingEngine.
type PricingEngineDeps struct {
	MenuItems repositories.MenuItemRepository
	Logger    func(context.Context, string, map[string]any)
}

// NewPricingEngine validates dependencies and returns a ready engine.
func NewPricingEngine(deps PricingEngineDeps) (*PricingEngine, error) {
	if deps.MenuItems == nil {
		return nil, errors.New("pricing engine: menu item repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PricingEngine{
		menuItems: deps.MenuItems,
		notes:     textutil.NewSanitizer(maxNoteLength),
		logger:    logger,
	}, nil
}

// PricedOrder is the output of PriceOrder: resolved lines plus the snapshot.
type PricedOrder struct {
	Items   []domain.OrderItem
	Pricing domain.PricingSnapshot
}

// PriceOrder resolves each requested line against the restaurant's menu,
// applies customization deltas from the catalog, and computes
// subtotal, tax, delivery fee, and total. Tip passes through unchanged.
func (e *PricingEngine) PriceOrder(ctx context.Context, restaurantID string, inputs []CreateOrderItemInput, tip float64) (PricedOrder, error) {
	restaurantID = strings.TrimSpace(restaurantID)
	if restaurantID == "" {
		return PricedOrder{}, fmt.Errorf("%w: restaurant id is required", ErrPricingInvalidInput)
	}
	if len(inputs) == 0 {
		return PricedOrder{}, fmt.Errorf("%w: order must contain at least one item", ErrPricingInvalidInput)
	}
	if len(inputs) > maxOrderItems {
		return PricedOrder{}, fmt.Errorf("%w: order exceeds %d items", ErrPricingInvalidInput, maxOrderItems)
	}
	if tip < 0 {
		return PricedOrder{}, fmt.Errorf("%w: tip must not be negative", ErrPricingInvalidInput)
	}

	items := make([]domain.OrderItem, 0, len(inputs))
	var subtotal float64
	for i, input := range inputs {
		line, err := e.priceLine(ctx, restaurantID, input)
		if err != nil {
			return PricedOrder{}, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, line)
		subtotal += line.UnitPrice * float64(line.Quantity)
	}

	pricing := domain.PricingSnapshot{
		Subtotal:    subtotal,
		Tax:         subtotal * taxRate,
		DeliveryFee: deliveryFee,
		Tip:         tip,
	}
	pricing.Total = pricing.Subtotal + pricing.Tax + pricing.DeliveryFee + pricing.Tip

	return PricedOrder{Items: items, Pricing: pricing}, nil
}

func (e *PricingEngine) priceLine(ctx context.Context, restaurantID string, input CreateOrderItemInput) (domain.OrderItem, error) {
	menuItemID := strings.TrimSpace(input.MenuItemID)
	if menuItemID == "" {
		return domain.OrderItem{}, fmt.Errorf("%w: menu item id is required", ErrPricingInvalidInput)
	}
	if input.Quantity < 1 || input.Quantity > maxItemQuantity {
		return domain.OrderItem{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrPricingInvalidInput, maxItemQuantity)
	}

	menuItem, err := e.menuItems.FindByID(ctx, restaurantID, menuItemID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.OrderItem{}, fmt.Errorf("%w: unknown menu item %q", ErrPricingItemUnavailable, menuItemID)
		}
		return domain.OrderItem{}, fmt.Errorf("load menu item %q: %w", menuItemID, err)
	}
	if menuItem.RestaurantID != restaurantID {
		return domain.OrderItem{}, fmt.Errorf("%w: menu item %q belongs to another restaurant", ErrPricingInvalidInput, menuItemID)
	}
	if !menuItem.Available {
		return domain.OrderItem{}, fmt.Errorf("%w: %q", ErrPricingItemUnavailable, menuItem.Name)
	}

	unitPrice := menuItem.Price
	customizations := make([]domain.Customization, 0, len(input.Customizations))
	for _, requested := range input.Customizations {
		resolved, err := resolveCustomization(menuItem, requested)
		if err != nil {
			return domain.OrderItem{}, err
		}
		unitPrice += resolved.PriceDelta
		customizations = append(customizations, resolved)
	}
	if len(customizations) == 0 {
		customizations = nil
	}

	return domain.OrderItem{
		MenuItemID:     menuItem.ID,
		Name:           menuItem.Name,
		Quantity:       input.Quantity,
		UnitPrice:      unitPrice,
		Customizations: customizations,
		Note:           e.sanitizeNote(input.Note),
	}, nil
}

// resolveCustomization looks the requested choice up in the catalog; the
// price delta always comes from the stored option, never from the request.
func resolveCustomization(menuItem domain.MenuItem, requested domain.Customization) (domain.Customization, error) {
	name := strings.TrimSpace(requested.Name)
	option := strings.TrimSpace(requested.Option)
	if name == "" || option == "" {
		return domain.Customization{}, fmt.Errorf("%w: customization name and option are required", ErrPricingInvalidInput)
	}
	for _, group := range menuItem.Customizations {
		if group.Name != name {
			continue
		}
		for _, choice := range group.Options {
			if choice.Option == option {
				return domain.Customization{
					Name:       name,
					Option:     option,
					PriceDelta: choice.PriceDelta,
				}, nil
			}
		}
	}
	return domain.Customization{}, fmt.Errorf("%w: unknown customization %q=%q for %q", ErrPricingInvalidInput, name, option, menuItem.Name)
}

func (e *PricingEngine) sanitizeNote(note string) string {
	return e.notes.Clean(note)
}
