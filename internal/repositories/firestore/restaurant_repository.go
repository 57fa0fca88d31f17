package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/foodies-app/api/internal/domain"
	pfirestore "github.com/foodies-app/api/internal/platform/firestore"
	"github.com/foodies-app/api/internal/platform/pagination"
)

const restaurantCollection = "restaurants"

// RestaurantRepository reads restaurant documents from Firestore.
type RestaurantRepository struct {
	base *pfirestore.BaseRepository[restaurantDocument]
}

// NewRestaurantRepository constructs a Firestore-backed restaurant repository.
func NewRestaurantRepository(provider *pfirestore.Provider) (*RestaurantRepository, error) {
	if provider == nil {
		return nil, errors.New("restaurant repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[restaurantDocument](provider, restaurantCollection, nil, nil)
	return &RestaurantRepository{base: base}, nil
}

// FindByID loads a restaurant.
func (r *RestaurantRepository) FindByID(ctx context.Context, restaurantID string) (domain.Restaurant, error) {
	if r == nil || r.base == nil {
		return domain.Restaurant{}, errors.New("restaurant repository not initialised")
	}
	restaurantID = strings.TrimSpace(restaurantID)
	if restaurantID == "" {
		return domain.Restaurant{}, errors.New("restaurant repository: restaurant id is required")
	}

	doc, err := r.base.Get(ctx, restaurantID)
	if err != nil {
		return domain.Restaurant{}, err
	}
	return toDomainRestaurant(doc.ID, doc.Data), nil
}

// ListOpen returns currently open restaurants ordered by name.
func (r *RestaurantRepository) ListOpen(ctx context.Context, pager domain.Pagination) (domain.CursorPage[domain.Restaurant], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Restaurant]{}, errors.New("restaurant repository not initialised")
	}

	limit := pager.Limit
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(pager.Cursor); token != "" {
		name, docID, err := pagination.DecodeToken(token)
		if err != nil {
			return domain.CursorPage[domain.Restaurant]{}, fmt.Errorf("restaurant repository: invalid cursor: %w", err)
		}
		startAfter = []any{name, docID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("isOpen", "==", true).
			OrderBy("name", firestore.Asc).
			OrderBy(firestore.DocumentID, firestore.Asc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Restaurant]{}, err
	}

	nextCursor := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextCursor = pagination.EncodeToken(last.Data.Name, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Restaurant, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toDomainRestaurant(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.Restaurant]{Items: items, NextCursor: nextCursor}, nil
}

type restaurantDocument struct {
	OwnerID   string          `firestore:"ownerId"`
	Name      string          `firestore:"name"`
	Cuisine   string          `firestore:"cuisine,omitempty"`
	Address   addressDocument `firestore:"address"`
	IsOpen    bool            `firestore:"isOpen"`
	CreatedAt time.Time       `firestore:"createdAt"`
	UpdatedAt time.Time       `firestore:"updatedAt"`
}

func toDomainRestaurant(restaurantID string, doc restaurantDocument) domain.Restaurant {
	return domain.Restaurant{
		ID:        restaurantID,
		OwnerID:   doc.OwnerID,
		Name:      doc.Name,
		Cuisine:   doc.Cuisine,
		Address:   domain.Address(doc.Address),
		IsOpen:    doc.IsOpen,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}
