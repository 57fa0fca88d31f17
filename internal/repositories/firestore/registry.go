package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/foodies-app/api/internal/platform/firestore"
	"github.com/foodies-app/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry contract.
type Registry struct {
	provider *pfirestore.Provider

	orders      *OrderRepository
	restaurants *RestaurantRepository
	menuItems   *MenuItemRepository
	users       *UserRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs every repository against the shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	restaurants, err := NewRestaurantRepository(provider)
	if err != nil {
		return nil, err
	}
	menuItems, err := NewMenuItemRepository(provider)
	if err != nil {
		return nil, err
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:    provider,
		orders:      orders,
		restaurants: restaurants,
		menuItems:   menuItems,
		users:       users,
	}, nil
}

// Close releases the shared Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// Orders returns the order repository.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// Restaurants returns the restaurant repository.
func (r *Registry) Restaurants() repositories.RestaurantRepository { return r.restaurants }

// MenuItems returns the menu item repository.
func (r *Registry) MenuItems() repositories.MenuItemRepository { return r.menuItems }

// Users returns the user repository.
func (r *Registry) Users() repositories.UserRepository { return r.users }

// RunInTx executes fn inside a Firestore transaction. The transaction rides
// on the context so repository writes made by fn join it.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(pfirestore.WithTx(ctx, tx))
	})
}
