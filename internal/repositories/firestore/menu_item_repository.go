package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/foodies-app/api/internal/domain"
	pfirestore "github.com/foodies-app/api/internal/platform/firestore"
)

const menuItemCollection = "menuItems"

// MenuItemRepository reads menu items from Firestore. Items live in a single
// collection keyed by item id with a restaurantId field for scoping.
type MenuItemRepository struct {
	base *pfirestore.BaseRepository[menuItemDocument]
}

// NewMenuItemRepository constructs a Firestore-backed menu item repository.
func NewMenuItemRepository(provider *pfirestore.Provider) (*MenuItemRepository, error) {
	if provider == nil {
		return nil, errors.New("menu item repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[menuItemDocument](provider, menuItemCollection, nil, nil)
	return &MenuItemRepository{base: base}, nil
}

// FindByID loads a menu item and verifies it belongs to the restaurant. An
// item filed under another restaurant reads as not found.
func (r *MenuItemRepository) FindByID(ctx context.Context, restaurantID, menuItemID string) (domain.MenuItem, error) {
	if r == nil || r.base == nil {
		return domain.MenuItem{}, errors.New("menu item repository not initialised")
	}
	restaurantID = strings.TrimSpace(restaurantID)
	menuItemID = strings.TrimSpace(menuItemID)
	if restaurantID == "" || menuItemID == "" {
		return domain.MenuItem{}, errors.New("menu item repository: restaurant and item ids are required")
	}

	doc, err := r.base.Get(ctx, menuItemID)
	if err != nil {
		return domain.MenuItem{}, err
	}
	if doc.Data.RestaurantID != restaurantID {
		return domain.MenuItem{}, pfirestore.WrapError("menuItems.get",
			status.Errorf(codes.NotFound, "menu item %s not in restaurant %s", menuItemID, restaurantID))
	}
	return toDomainMenuItem(doc.ID, doc.Data), nil
}

// ListByRestaurant returns the full menu of a restaurant.
func (r *MenuItemRepository) ListByRestaurant(ctx context.Context, restaurantID string) ([]domain.MenuItem, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("menu item repository not initialised")
	}
	restaurantID = strings.TrimSpace(restaurantID)
	if restaurantID == "" {
		return nil, errors.New("menu item repository: restaurant id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("restaurantId", "==", restaurantID)
	})
	if err != nil {
		return nil, err
	}

	items := make([]domain.MenuItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toDomainMenuItem(doc.ID, doc.Data))
	}
	return items, nil
}

type menuItemDocument struct {
	RestaurantID   string                        `firestore:"restaurantId"`
	Name           string                        `firestore:"name"`
	Description    string                        `firestore:"description,omitempty"`
	Price          float64                       `firestore:"price"`
	Category       string                        `firestore:"category,omitempty"`
	Available      bool                          `firestore:"available"`
	Customizations []customizationGroupDocument  `firestore:"customizations,omitempty"`
	CreatedAt      time.Time                     `firestore:"createdAt"`
	UpdatedAt      time.Time                     `firestore:"updatedAt"`
}

type customizationGroupDocument struct {
	Name    string                        `firestore:"name"`
	Options []customizationChoiceDocument `firestore:"options"`
}

type customizationChoiceDocument struct {
	Option     string  `firestore:"option"`
	PriceDelta float64 `firestore:"priceDelta"`
}

func toDomainMenuItem(menuItemID string, doc menuItemDocument) domain.MenuItem {
	item := domain.MenuItem{
		ID:           menuItemID,
		RestaurantID: doc.RestaurantID,
		Name:         doc.Name,
		Description:  doc.Description,
		Price:        doc.Price,
		Category:     doc.Category,
		Available:    doc.Available,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
	for _, group := range doc.Customizations {
		converted := domain.CustomizationOption{Name: group.Name}
		for _, choice := range group.Options {
			converted.Options = append(converted.Options, domain.CustomizationChoice(choice))
		}
		item.Customizations = append(item.Customizations, converted)
	}
	return item
}
