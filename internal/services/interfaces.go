package services

import (
	"context"
	"time"

	domain "github.com/foodies-app/api/internal/domain"
	"github.com/foodies-app/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination      = domain.Pagination
	Order           = domain.Order
	OrderItem       = domain.OrderItem
	OrderStatus     = domain.OrderStatus
	PaymentStatus   = domain.PaymentStatus
	PaymentMethod   = domain.PaymentMethod
	PricingSnapshot = domain.PricingSnapshot
	PaymentDetails  = domain.PaymentDetails
	RefundInfo      = domain.RefundInfo
	Address         = domain.Address
	Restaurant      = domain.Restaurant
	MenuItem        = domain.MenuItem
	UserProfile     = domain.UserProfile
	OrderEvent      = domain.OrderEvent
)

// Actor identifies the authenticated caller of a service operation.
type Actor struct {
	ID    string
	Roles []string
}

// HasRole reports whether the actor carries the given role.
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// OrderService coordinates the order lifecycle: creation with server-side
// pricing, status transitions, cancellation with refunds, and payment
// reconciliation from gateway webhooks.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (CreateOrderResult, error)
	Get(ctx context.Context, orderID string, actor Actor) (Order, error)
	ListForUser(ctx context.Context, cmd ListUserOrdersCommand) (domain.CursorPage[Order], error)
	ListForRestaurant(ctx context.Context, cmd ListRestaurantOrdersCommand) (domain.CursorPage[Order], error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	ApplyPaymentSucceeded(ctx context.Context, cmd PaymentWebhookCommand) error
	ApplyPaymentFailed(ctx context.Context, cmd PaymentWebhookCommand) error
}

// CatalogService serves public restaurant and menu reads.
type CatalogService interface {
	GetRestaurant(ctx context.Context, restaurantID string) (Restaurant, error)
	ListOpenRestaurants(ctx context.Context, pager Pagination) (domain.CursorPage[Restaurant], error)
	ListMenu(ctx context.Context, restaurantID string) ([]MenuItem, error)
}

// EventPublisher fans order events out to subscribers. Implementations must
// never fail the calling mutation: delivery problems are logged internally.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent)
}

// Command and DTO definitions ------------------------------------------------

// OrderListFilter mirrors the repository filter for handler convenience.
type OrderListFilter = repositories.OrderListFilter

// CreateOrderItemInput is one requested line of a new order.
type CreateOrderItemInput struct {
	MenuItemID     string
	Quantity       int
	Customizations []domain.Customization
	Note           string
}

// CreateOrderCommand carries everything needed to place an order. Prices are
// deliberately absent: the pricing engine derives them from the catalog.
type CreateOrderCommand struct {
	Actor           Actor
	RestaurantID    string
	Items           []CreateOrderItemInput
	DeliveryAddress Address
	PaymentMethod   PaymentMethod
	Tip             float64
}

// CreateOrderResult returns the stored order plus the gateway client secret
// when a card intent was opened.
type CreateOrderResult struct {
	Order               Order
	PaymentClientSecret string
}

// ListUserOrdersCommand lists a customer's own orders.
type ListUserOrdersCommand struct {
	Actor  Actor
	UserID string
	Status *OrderStatus
	Pager  Pagination
}

// ListRestaurantOrdersCommand lists orders belonging to a restaurant.
type ListRestaurantOrdersCommand struct {
	Actor        Actor
	RestaurantID string
	Status       *OrderStatus
	Pager        Pagination
}

// UpdateOrderStatusCommand moves an order to a new fulfillment status.
type UpdateOrderStatusCommand struct {
	Actor        Actor
	OrderID      string
	TargetStatus OrderStatus
}

// CancelOrderCommand cancels a pending order on the customer's behalf.
type CancelOrderCommand struct {
	Actor   Actor
	OrderID string
	Reason  string
}

// PaymentWebhookCommand applies a verified gateway notification to an order.
type PaymentWebhookCommand struct {
	EventID       string
	OrderID       string
	IntentID      string
	TransactionID string
	Amount        float64
	Currency      string
	OccurredAt    time.Time
}
