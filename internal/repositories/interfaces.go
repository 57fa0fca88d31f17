package repositories

import (
	"context"

	domain "github.com/foodies-app/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Restaurants() RestaurantRepository
	MenuItems() MenuItemRepository
	Users() UserRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	UserID       string
	RestaurantID string
	Status       *domain.OrderStatus
	Pager        domain.Pagination
}

// OrderRepository persists order documents.
//
// Mutate loads the order, applies fn, and writes the result atomically with
// respect to any concurrent Mutate on the same order. fn may run more than
// once when the backend retries a contended transaction, so it must be a pure
// function of the loaded order. Returning an error from fn aborts the write
// and surfaces that error unchanged.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByIntentID(ctx context.Context, intentID string) (domain.Order, error)
	Mutate(ctx context.Context, orderID string, fn func(order *domain.Order) error) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// RestaurantRepository reads restaurant documents.
type RestaurantRepository interface {
	FindByID(ctx context.Context, restaurantID string) (domain.Restaurant, error)
	ListOpen(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Restaurant], error)
}

// MenuItemRepository reads the menu of a restaurant.
type MenuItemRepository interface {
	FindByID(ctx context.Context, restaurantID, menuItemID string) (domain.MenuItem, error)
	ListByRestaurant(ctx context.Context, restaurantID string) ([]domain.MenuItem, error)
}

// UserRepository stores user profiles.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.UserProfile, error)
}
