package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/foodies-app/api/internal/domain"
	"github.com/foodies-app/api/internal/platform/httpx"
	"github.com/foodies-app/api/internal/services"
)

// CatalogHandlers serves the public restaurant and menu endpoints. These
// routes are unauthenticated: browsing requires no account.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs a new CatalogHandlers instance.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes registers the /restaurants endpoints.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listRestaurants)
	r.Get("/{restaurantID}", h.getRestaurant)
	r.Get("/{restaurantID}/menu", h.listMenu)
}

func (h *CatalogHandlers) listRestaurants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}
	pager, ok := parsePagination(ctx, w, r)
	if !ok {
		return
	}

	page, err := h.catalog.ListOpenRestaurants(ctx, pager)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]restaurantPayload, 0, len(page.Items))
	for _, restaurant := range page.Items {
		items = append(items, buildRestaurantPayload(restaurant))
	}
	writeJSONResponse(w, http.StatusOK, restaurantListResponse{
		Items:      items,
		NextCursor: page.NextCursor,
	})
}

func (h *CatalogHandlers) getRestaurant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}
	restaurantID := strings.TrimSpace(chi.URLParam(r, "restaurantID"))

	restaurant, err := h.catalog.GetRestaurant(ctx, restaurantID)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, restaurantResponse{Restaurant: buildRestaurantPayload(restaurant)})
}

func (h *CatalogHandlers) listMenu(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}
	restaurantID := strings.TrimSpace(chi.URLParam(r, "restaurantID"))

	items, err := h.catalog.ListMenu(ctx, restaurantID)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	payloads := make([]menuItemPayload, 0, len(items))
	for _, item := range items {
		payloads = append(payloads, buildMenuItemPayload(item))
	}
	writeJSONResponse(w, http.StatusOK, menuResponse{Items: payloads})
}

type restaurantListResponse struct {
	Items      []restaurantPayload `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

type restaurantResponse struct {
	Restaurant restaurantPayload `json:"restaurant"`
}

type menuResponse struct {
	Items []menuItemPayload `json:"items"`
}

type restaurantPayload struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Cuisine   string         `json:"cuisine,omitempty"`
	Address   addressPayload `json:"address"`
	IsOpen    bool           `json:"is_open"`
	CreatedAt string         `json:"created_at,omitempty"`
}

type menuItemPayload struct {
	ID             string                       `json:"id"`
	RestaurantID   string                       `json:"restaurant_id"`
	Name           string                       `json:"name"`
	Description    string                       `json:"description,omitempty"`
	Price          float64                      `json:"price"`
	Category       string                       `json:"category,omitempty"`
	Available      bool                         `json:"available"`
	Customizations []customizationOptionPayload `json:"customizations,omitempty"`
}

type customizationOptionPayload struct {
	Name    string                       `json:"name"`
	Options []customizationChoicePayload `json:"options"`
}

type customizationChoicePayload struct {
	Option     string  `json:"option"`
	PriceDelta float64 `json:"price_delta"`
}

func buildRestaurantPayload(restaurant domain.Restaurant) restaurantPayload {
	return restaurantPayload{
		ID:        restaurant.ID,
		Name:      restaurant.Name,
		Cuisine:   restaurant.Cuisine,
		Address:   buildAddressPayload(restaurant.Address),
		IsOpen:    restaurant.IsOpen,
		CreatedAt: formatTime(restaurant.CreatedAt),
	}
}

func buildMenuItemPayload(item domain.MenuItem) menuItemPayload {
	payload := menuItemPayload{
		ID:           item.ID,
		RestaurantID: item.RestaurantID,
		Name:         item.Name,
		Description:  item.Description,
		Price:        item.Price,
		Category:     item.Category,
		Available:    item.Available,
	}
	for _, option := range item.Customizations {
		optionPayload := customizationOptionPayload{Name: option.Name}
		for _, choice := range option.Options {
			optionPayload.Options = append(optionPayload.Options, customizationChoicePayload(choice))
		}
		payload.Customizations = append(payload.Customizations, optionPayload)
	}
	return payload
}

func writeCatalogUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("restaurant_not_found", "restaurant not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to load catalog data", http.StatusInternalServerError))
	}
}
