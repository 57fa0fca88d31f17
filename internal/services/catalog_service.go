package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	domain "github.com/foodies-app/api/internal/domain"
	"github.com/foodies-app/api/internal/repositories"
)

var (
	// ErrCatalogInvalidInput indicates the caller supplied bad read parameters.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the restaurant does not exist.
	ErrCatalogNotFound = errors.New("catalog: not found")
)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Restaurants repositories.RestaurantRepository
	MenuItems   repositories.MenuItemRepository
}

type catalogService struct {
	restaurants repositories.RestaurantRepository
	menuItems   repositories.MenuItemRepository
}

// NewCatalogService constructs the public catalog read service.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Restaurants == nil {
		return nil, errors.New("catalog service: restaurant repository is required")
	}
	if deps.MenuItems == nil {
		return nil, errors.New("catalog service: menu item repository is required")
	}
	return &catalogService{
		restaurants: deps.Restaurants,
		menuItems:   deps.MenuItems,
	}, nil
}

func (s *catalogService) GetRestaurant(ctx context.Context, restaurantID string) (Restaurant, error) {
	restaurantID = strings.TrimSpace(restaurantID)
	if restaurantID == "" {
		return Restaurant{}, fmt.Errorf("%w: restaurant id is required", ErrCatalogInvalidInput)
	}
	restaurant, err := s.restaurants.FindByID(ctx, restaurantID)
	if err != nil {
		if isNotFound(err) {
			return Restaurant{}, fmt.Errorf("%w: restaurant %s", ErrCatalogNotFound, restaurantID)
		}
		return Restaurant{}, err
	}
	return restaurant, nil
}

func (s *catalogService) ListOpenRestaurants(ctx context.Context, pager Pagination) (domain.CursorPage[Restaurant], error) {
	page, err := s.restaurants.ListOpen(ctx, pager)
	if err != nil {
		return domain.CursorPage[Restaurant]{}, err
	}
	return page, nil
}

func (s *catalogService) ListMenu(ctx context.Context, restaurantID string) ([]MenuItem, error) {
	restaurantID = strings.TrimSpace(restaurantID)
	if restaurantID == "" {
		return nil, fmt.Errorf("%w: restaurant id is required", ErrCatalogInvalidInput)
	}
	if _, err := s.restaurants.FindByID(ctx, restaurantID); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: restaurant %s", ErrCatalogNotFound, restaurantID)
		}
		return nil, err
	}

	items, err := s.menuItems.ListByRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Category != items[j].Category {
			return items[i].Category < items[j].Category
		}
		return items[i].Name < items[j].Name
	})
	return items, nil
}
