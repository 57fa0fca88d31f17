package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/foodies-app/api/internal/domain"
	"github.com/foodies-app/api/internal/platform/auth"
	"github.com/foodies-app/api/internal/platform/httpx"
	"github.com/foodies-app/api/internal/platform/pagination"
	"github.com/foodies-app/api/internal/services"
)

const (
	defaultOrderPageSize  = pagination.DefaultPageSize
	maxOrderPageSize      = pagination.MaxPageSize
	maxOrderBodySize      = 64 * 1024
	maxCancelBodySize     = 4 * 1024
	maxStatusBodySize     = 4 * 1024
	rateLimitedErrorCode  = "rate_limited"
	unauthenticatedErrMsg = "authentication required"
)

// OrderHandlers exposes the order lifecycle endpoints for authenticated users.
type OrderHandlers struct {
	authn   *auth.Authenticator
	orders  services.OrderService
	limiter rateLimiter
}

// OrderHandlersOption customises OrderHandlers construction.
type OrderHandlersOption func(*OrderHandlers)

// WithCreateRateLimit throttles order creation per authenticated user.
func WithCreateRateLimit(limit int, window time.Duration) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, nil)
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/restaurant/{restaurantID}", h.listRestaurantOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	r.Post("/{orderID}:status", h.updateStatus)
}

type createOrderRequest struct {
	RestaurantID    string                   `json:"restaurant_id"`
	Items           []createOrderItemRequest `json:"items"`
	DeliveryAddress addressPayload           `json:"delivery_address"`
	PaymentMethod   string                   `json:"payment_method"`
	Tip             float64                  `json:"tip"`
}

type createOrderItemRequest struct {
	MenuItemID     string                 `json:"menu_item_id"`
	Quantity       int                    `json:"quantity"`
	Customizations []customizationPayload `json:"customizations"`
	Note           string                 `json:"note"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}

	if h.limiter != nil && !h.limiter.Allow(actor.ID) {
		httpx.WriteError(ctx, w, httpx.NewError(rateLimitedErrorCode, "too many orders, slow down", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	items := make([]services.CreateOrderItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		input := services.CreateOrderItemInput{
			MenuItemID: strings.TrimSpace(item.MenuItemID),
			Quantity:   item.Quantity,
			Note:       item.Note,
		}
		for _, c := range item.Customizations {
			input.Customizations = append(input.Customizations, domain.Customization{
				Name:   c.Name,
				Option: c.Option,
			})
		}
		items = append(items, input)
	}

	result, err := h.orders.Create(ctx, services.CreateOrderCommand{
		Actor:           actor,
		RestaurantID:    strings.TrimSpace(req.RestaurantID),
		Items:           items,
		DeliveryAddress: toDomainAddress(req.DeliveryAddress),
		PaymentMethod:   domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		Tip:             req.Tip,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	payload := createOrderResponse{
		Order: buildOrderPayload(result.Order),
	}
	if result.PaymentClientSecret != "" {
		payload.PaymentClientSecret = result.PaymentClientSecret
	}
	writeJSONResponse(w, http.StatusCreated, payload)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}

	status, ok := parseStatusFilter(ctx, w, r)
	if !ok {
		return
	}
	pager, ok := parsePagination(ctx, w, r)
	if !ok {
		return
	}

	page, err := h.orders.ListForUser(ctx, services.ListUserOrdersCommand{
		Actor:  actor,
		Status: status,
		Pager:  pager,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeOrderList(w, page)
}

func (h *OrderHandlers) listRestaurantOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}

	restaurantID := strings.TrimSpace(chi.URLParam(r, "restaurantID"))
	if restaurantID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "restaurant id is required", http.StatusBadRequest))
		return
	}
	status, ok := parseStatusFilter(ctx, w, r)
	if !ok {
		return
	}
	pager, ok := parsePagination(ctx, w, r)
	if !ok {
		return
	}

	page, err := h.orders.ListForRestaurant(ctx, services.ListRestaurantOrdersCommand{
		Actor:        actor,
		RestaurantID: restaurantID,
		Status:       status,
		Pager:        pager,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeOrderList(w, page)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.Get(ctx, orderID, actor)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req cancelOrderRequest
	body, err := readLimitedBody(r, maxCancelBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	cancelled, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		Actor:   actor,
		OrderID: orderID,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	payload := cancelOrderResponse{
		Order: buildOrderPayload(cancelled),
	}
	// The cancellation itself succeeded; a rejected refund is reported to the
	// caller without failing the request.
	if cancelled.Refund.Status == domain.RefundStatusRejected {
		payload.RefundFailed = true
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxStatusBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req updateStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	updated, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		Actor:        actor,
		OrderID:      orderID,
		TargetStatus: domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(updated)})
}

func (h *OrderHandlers) requireActor(ctx context.Context, w http.ResponseWriter) (services.Actor, bool) {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return services.Actor{}, false
	}
	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", unauthenticatedErrMsg, http.StatusUnauthorized))
		return services.Actor{}, false
	}
	return actor, true
}

func actorFromContext(ctx context.Context) (services.Actor, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		return services.Actor{}, false
	}
	return services.Actor{
		ID:    strings.TrimSpace(identity.UID),
		Roles: identity.Roles,
	}, true
}

func parseStatusFilter(ctx context.Context, w http.ResponseWriter, r *http.Request) (*domain.OrderStatus, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("status"))
	if raw == "" {
		return nil, true
	}
	status := domain.OrderStatus(strings.ToLower(raw))
	if !status.Valid() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
		return nil, false
	}
	return &status, true
}

func parsePagination(ctx context.Context, w http.ResponseWriter, r *http.Request) (domain.Pagination, bool) {
	query := r.URL.Query()
	limit := defaultOrderPageSize
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be an integer", http.StatusBadRequest))
			return domain.Pagination{}, false
		}
		limit = pagination.ClampLimit(parsed)
	}
	return domain.Pagination{
		Limit:  limit,
		Cursor: strings.TrimSpace(query.Get("cursor")),
	}, true
}

func writeOrderList(w http.ResponseWriter, page domain.CursorPage[domain.Order]) {
	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:      items,
		NextCursor: page.NextCursor,
	})
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

type orderListResponse struct {
	Items      []orderPayload `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type createOrderResponse struct {
	Order               orderPayload `json:"order"`
	PaymentClientSecret string       `json:"payment_client_secret,omitempty"`
}

type cancelOrderResponse struct {
	Order        orderPayload `json:"order"`
	RefundFailed bool         `json:"refund_failed,omitempty"`
}

type orderPayload struct {
	ID                    string                 `json:"id"`
	UserID                string                 `json:"user_id"`
	RestaurantID          string                 `json:"restaurant_id"`
	Items                 []orderItemPayload     `json:"items"`
	Status                string                 `json:"status"`
	PaymentStatus         string                 `json:"payment_status"`
	PaymentMethod         string                 `json:"payment_method"`
	Pricing               pricingPayload         `json:"pricing"`
	PaymentDetails        *paymentDetailsPayload `json:"payment_details,omitempty"`
	Refund                *refundPayload         `json:"refund,omitempty"`
	DeliveryAddress       addressPayload         `json:"delivery_address"`
	EstimatedDeliveryTime string                 `json:"estimated_delivery_time"`
	ActualDeliveryTime    string                 `json:"actual_delivery_time,omitempty"`
	CreatedAt             string                 `json:"created_at"`
	UpdatedAt             string                 `json:"updated_at,omitempty"`
}

type orderItemPayload struct {
	MenuItemID     string                 `json:"menu_item_id"`
	Name           string                 `json:"name"`
	Quantity       int                    `json:"quantity"`
	UnitPrice      float64                `json:"unit_price"`
	Customizations []customizationPayload `json:"customizations,omitempty"`
	Note           string                 `json:"note,omitempty"`
}

type customizationPayload struct {
	Name       string  `json:"name"`
	Option     string  `json:"option"`
	PriceDelta float64 `json:"price_delta,omitempty"`
}

type pricingPayload struct {
	Subtotal    float64 `json:"subtotal"`
	Tax         float64 `json:"tax"`
	DeliveryFee float64 `json:"delivery_fee"`
	Tip         float64 `json:"tip"`
	Total       float64 `json:"total"`
}

type paymentDetailsPayload struct {
	TransactionID string  `json:"transaction_id,omitempty"`
	IntentID      string  `json:"intent_id,omitempty"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	PaidAt        string  `json:"paid_at,omitempty"`
}

type refundPayload struct {
	Status      string  `json:"status"`
	Amount      float64 `json:"amount,omitempty"`
	GatewayID   string  `json:"gateway_id,omitempty"`
	ProcessedAt string  `json:"processed_at,omitempty"`
}

type addressPayload struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:                    order.ID,
		UserID:                order.UserID,
		RestaurantID:          order.RestaurantID,
		Items:                 buildOrderItems(order.Items),
		Status:                string(order.Status),
		PaymentStatus:         string(order.PaymentStatus),
		PaymentMethod:         string(order.PaymentMethod),
		Pricing:               pricingPayload(order.Pricing),
		DeliveryAddress:       buildAddressPayload(order.DeliveryAddress),
		EstimatedDeliveryTime: formatTime(order.EstimatedDeliveryTime),
		CreatedAt:             formatTime(order.CreatedAt),
		UpdatedAt:             formatTime(order.UpdatedAt),
	}
	if order.ActualDeliveryTime != nil {
		payload.ActualDeliveryTime = formatTime(*order.ActualDeliveryTime)
	}
	if order.PaymentDetails != nil {
		payload.PaymentDetails = &paymentDetailsPayload{
			TransactionID: order.PaymentDetails.TransactionID,
			IntentID:      order.PaymentDetails.IntentID,
			Amount:        order.PaymentDetails.Amount,
			Currency:      order.PaymentDetails.Currency,
			PaidAt:        formatTime(order.PaymentDetails.PaidAt),
		}
	}
	if order.Refund.Status != "" && order.Refund.Status != domain.RefundStatusNone {
		refund := refundPayload{
			Status: string(order.Refund.Status),
			Amount: order.Refund.Amount,
		}
		refund.GatewayID = order.Refund.GatewayID
		if order.Refund.ProcessedAt != nil {
			refund.ProcessedAt = formatTime(*order.Refund.ProcessedAt)
		}
		payload.Refund = &refund
	}
	return payload
}

func buildOrderItems(items []domain.OrderItem) []orderItemPayload {
	payloads := make([]orderItemPayload, 0, len(items))
	for _, item := range items {
		payload := orderItemPayload{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Note:       item.Note,
		}
		for _, c := range item.Customizations {
			payload.Customizations = append(payload.Customizations, customizationPayload(c))
		}
		payloads = append(payloads, payload)
	}
	return payloads
}

func buildAddressPayload(addr domain.Address) addressPayload {
	return addressPayload{
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		Notes:      addr.Notes,
	}
}

func toDomainAddress(payload addressPayload) domain.Address {
	return domain.Address{
		Line1:      strings.TrimSpace(payload.Line1),
		Line2:      strings.TrimSpace(payload.Line2),
		City:       strings.TrimSpace(payload.City),
		State:      strings.TrimSpace(payload.State),
		PostalCode: strings.TrimSpace(payload.PostalCode),
		Country:    strings.TrimSpace(payload.Country),
		Notes:      strings.TrimSpace(payload.Notes),
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrPricingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPricingItemUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("item_unavailable", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not allowed to act on this order", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderPaymentUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_unavailable", "payment gateway unavailable", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
