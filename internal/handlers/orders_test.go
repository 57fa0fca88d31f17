package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/foodies-app/api/internal/domain"
	"github.com/foodies-app/api/internal/platform/auth"
	"github.com/foodies-app/api/internal/services"
)

type stubOrderService struct {
	createFunc            func(ctx context.Context, cmd services.CreateOrderCommand) (services.CreateOrderResult, error)
	getFunc               func(ctx context.Context, orderID string, actor services.Actor) (domain.Order, error)
	listForUserFunc       func(ctx context.Context, cmd services.ListUserOrdersCommand) (domain.CursorPage[domain.Order], error)
	listForRestaurantFunc func(ctx context.Context, cmd services.ListRestaurantOrdersCommand) (domain.CursorPage[domain.Order], error)
	updateStatusFunc      func(ctx context.Context, cmd services.UpdateOrderStatusCommand) (domain.Order, error)
	cancelFunc            func(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error)
	succeededFunc         func(ctx context.Context, cmd services.PaymentWebhookCommand) error
	failedFunc            func(ctx context.Context, cmd services.PaymentWebhookCommand) error
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (services.CreateOrderResult, error) {
	if s.createFunc == nil {
		return services.CreateOrderResult{}, errors.New("create not stubbed")
	}
	return s.createFunc(ctx, cmd)
}

func (s *stubOrderService) Get(ctx context.Context, orderID string, actor services.Actor) (domain.Order, error) {
	if s.getFunc == nil {
		return domain.Order{}, errors.New("get not stubbed")
	}
	return s.getFunc(ctx, orderID, actor)
}

func (s *stubOrderService) ListForUser(ctx context.Context, cmd services.ListUserOrdersCommand) (domain.CursorPage[domain.Order], error) {
	if s.listForUserFunc == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("list not stubbed")
	}
	return s.listForUserFunc(ctx, cmd)
}

func (s *stubOrderService) ListForRestaurant(ctx context.Context, cmd services.ListRestaurantOrdersCommand) (domain.CursorPage[domain.Order], error) {
	if s.listForRestaurantFunc == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("restaurant list not stubbed")
	}
	return s.listForRestaurantFunc(ctx, cmd)
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (domain.Order, error) {
	if s.updateStatusFunc == nil {
		return domain.Order{}, errors.New("update not stubbed")
	}
	return s.updateStatusFunc(ctx, cmd)
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
	if s.cancelFunc == nil {
		return domain.Order{}, errors.New("cancel not stubbed")
	}
	return s.cancelFunc(ctx, cmd)
}

func (s *stubOrderService) ApplyPaymentSucceeded(ctx context.Context, cmd services.PaymentWebhookCommand) error {
	if s.succeededFunc == nil {
		return errors.New("succeeded not stubbed")
	}
	return s.succeededFunc(ctx, cmd)
}

func (s *stubOrderService) ApplyPaymentFailed(ctx context.Context, cmd services.PaymentWebhookCommand) error {
	if s.failedFunc == nil {
		return errors.New("failed not stubbed")
	}
	return s.failedFunc(ctx, cmd)
}

func sampleOrder(id string) domain.Order {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:           id,
		UserID:       "user-1",
		RestaurantID: "rest-1",
		Items: []domain.OrderItem{
			{
				MenuItemID: "menu-1",
				Name:       "Margherita",
				Quantity:   2,
				UnitPrice:  10.99,
				Customizations: []domain.Customization{
					{Name: "Size", Option: "Regular", PriceDelta: 0},
				},
			},
		},
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		PaymentMethod: domain.PaymentMethodCard,
		Pricing: domain.PricingSnapshot{
			Subtotal:    21.98,
			Tax:         2.198,
			DeliveryFee: 5.00,
			Tip:         0,
			Total:       29.178,
		},
		DeliveryAddress: domain.Address{
			Line1: "1 Main St",
			City:  "Springfield",
		},
		EstimatedDeliveryTime: now.Add(45 * time.Minute),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

func authedRequest(method, target string, body []byte, identity *auth.Identity) *http.Request {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	}
	if identity != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), identity))
	}
	return req
}

func customerIdentity() *auth.Identity {
	return &auth.Identity{UID: "user-1", Roles: []string{"user"}}
}

func TestOrderHandlersCreateSuccess(t *testing.T) {
	order := sampleOrder("ord_1")
	var captured services.CreateOrderCommand
	service := &stubOrderService{
		createFunc: func(ctx context.Context, cmd services.CreateOrderCommand) (services.CreateOrderResult, error) {
			captured = cmd
			return services.CreateOrderResult{Order: order, PaymentClientSecret: "pi_1_secret"}, nil
		},
	}
	router := NewRouter(WithOrderRoutes(NewOrderHandlers(nil, service).Routes))

	body := []byte(`{
		"restaurant_id": " rest-1 ",
		"items": [{"menu_item_id": "menu-1", "quantity": 2, "customizations": [{"name": "Size", "option": "Regular"}], "note": "extra sauce"}],
		"delivery_address": {"line1": "1 Main St", "city": "Springfield"},
		"payment_method": "Card",
		"tip": 1.5
	}`)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/orders", body, customerIdentity()))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.Actor.ID != "user-1" {
		t.Fatalf("expected actor user-1, got %s", captured.Actor.ID)
	}
	if captured.RestaurantID != "rest-1" {
		t.Fatalf("expected trimmed restaurant id, got %q", captured.RestaurantID)
	}
	if captured.PaymentMethod != domain.PaymentMethodCard {
		t.Fatalf("expected normalised payment method card, got %s", captured.PaymentMethod)
	}
	if len(captured.Items) != 1 || captured.Items[0].Quantity != 2 || captured.Items[0].Note != "extra sauce" {
		t.Fatalf("unexpected items %+v", captured.Items)
	}
	if captured.Tip != 1.5 {
		t.Fatalf("expected tip 1.5, got %v", captured.Tip)
	}

	var payload createOrderResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Order.ID != "ord_1" {
		t.Fatalf("expected order id ord_1, got %s", payload.Order.ID)
	}
	if payload.PaymentClientSecret != "pi_1_secret" {
		t.Fatalf("expected client secret in payload, got %q", payload.PaymentClientSecret)
	}
	if payload.Order.Pricing.Total != 29.178 {
		t.Fatalf("expected total 29.178, got %v", payload.Order.Pricing.Total)
	}
}

func TestOrderHandlersCreateRequiresIdentity(t *testing.T) {
	service := &stubOrderService{}
	router := NewRouter(WithOrderRoutes(NewOrderHandlers(nil, service).Routes))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/orders", []byte(`{}`), nil))

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestOrderHandlersCreateErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "invalid input", err: services.ErrOrderInvalidInput, status: http.StatusBadRequest},
		{name: "pricing invalid", err: services.ErrPricingInvalidInput, status: http.StatusBadRequest},
		{name: "item unavailable", err: services.ErrPricingItemUnavailable, status: http.StatusBadRequest},
		{name: "payment unavailable", err: services.ErrOrderPaymentUnavailable, status: http.StatusBadGateway},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := &stubOrderService{
				createFunc: func(ctx context.Context, cmd services.CreateOrderCommand) (services.CreateOrderResult, error) {
					return services.CreateOrderResult{}, tc.err
				},
			}
			router := NewRouter(WithOrderRoutes(NewOrderHandlers(nil, service).Routes))

			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/orders", []byte(`{"restaurant_id":"rest-1"}`), customerIdentity()))

			if resp.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, resp.Code)
			}
		})
	}
}

func TestOrderHandlersCreateRejectsInvalidJSON(t *testing.T) {
	service := &stubOrderService{}
	router := NewRouter(WithOrderRoutes(NewOrderHandlers(nil, service).Routes))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/orders", []byte(`{"restaurant_id":`), customerIdentity()))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestOrderHandlersCreateRateLimited(t *testing.T) {
	service := &stubOrderService{
		createFunc: func(ctx context.Context, cmd services.CreateOrderCommand) (services.CreateOrderResult, error) {
			return services.CreateOrderResult{Order: sampleOrder("ord_1")}, nil
		},
	}
	handler := NewOrderHandlers(nil, service, WithCreateRateLimit(1, time.Minute))
	router := NewRouter(WithOrderRoutes(handler.Routes))

	body := []byte(`{"restaurant_id":"rest-1"}`)
	first := httptest.NewRecorder()
	router.ServeHTTP(first, authedRequest(http.MethodPost, "/api/v1/orders", body, customerIdentity()))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected first request to pass, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	router.ServeHTTP(second, authedRequest(http.MethodPost, "/api/v1/orders", body, customerIdentity()))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", second.Code)
	}
}

func TestOrderHandlersGetMapsNotFound(t *testing.T) {
	service := &stubOrderService{
		getFunc: func(ctx context.Context, orderID string, actor services.Actor) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderNotFound
		},
	}
	router := NewRouter(WithOrderRoutes(NewOrderHandlers(nil, service).Routes))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, authedRequest(http.MethodGet, "/api/v1/orders/ord_missing", nil, customerIdentity()))

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestOrderHandlersGetSuccess(t *testing.T) {
	order := sampleOrder("ord_1")
	service := &stubOrderService{
		getFunc: func(ctx context.Context, orderID string, actor services.Actor) (domain.Order, error) {
			if orderID != "ord_1" {
				t.Fatalf("expected order id ord_1, got %s", orderID)
			}
			return order, nil
		},
	}
	router := NewRouter(WithOrderRoutes(NewOrderHandlers(nil, service).Routes))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, authedRequest(http.MethodGet, "/api/v1/orders/ord_1", nil, customerIdentity()))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var payload orderResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Order.Status != "pending" || payload.Order.PaymentStatus != "pending" {
		t.Fatalf("unexpected statuses %s/%s", payload.Order.Status, payload.Order.PaymentStatus)
	}
	if payload.Order.EstimatedDeliveryTime == "" {
		t.Fatal("expected estimated delivery time to be set")
	}
	if payload.Order.Refund != nil {
		t.Fatal("expected no refund block for a fresh order")
	}
}

func TestOrderHandlersListDefaultsPagination(t *testing.T) {
	var captured services.ListUserOrdersCommand
	service := &stubOrderService{
		listForUserFunc: func(ctx context.Context, cmd services.ListUserOrdersCommand) (domain.CursorPage[domain.Order], error) {
			captured = cmd
			return domain.CursorPage[domain.Order]{
				Items:      []domain.Order{sampleOrder("ord_1")},
				NextCursor: "next-token",
			}, nil
		},
	}
	router := NewRouter(WithOrderRoutes(NewOrderHandlers(nil, service).Routes))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, authedRequest(http.MethodGet, "/api/v1/orders", nil, customerIdentity()))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if captured.Pager.Limit != defaultOrderPageSize {
		t.Fatalf("expected default limit %d, got %d", defaultOrderPageSize, captured.Pager.Limit)
	}
	var payload orderListResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(payload.Items) != 1 || payload.NextCursor != "next-token" {
		t.Fatalf("unexpected list payload %+v", payload)
	}
}

func TestOrderHandlersListClampsLimitAndFilters(t *testing.T) {
	var captured services.ListUserOrdersCommand
	service := &stubOrderService{
		listForUserFunc: func(ctx context.Context, cmd services.ListUserOrdersCommand) (domain.CursorPage[domain.Order], error) {
			captured = cmd
			return domain.CursorPage[domain.Order]{}, nil
		},
	}
	router := NewRouter(WithOrderRoutes(NewOrderHandlers(nil, service).Routes))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, authedRequest(http.MethodGet, "/api/v1/orders?limit=500&cursor=abc&status=delivered", nil, customerIdentity()))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if captured.Pager.Limit != maxOrderPageSize {
		t.Fatalf("expected clamped limit %d, got %d", maxOrderPageSize, captured.Pager.Limit)
	}
	if captured.Pager.Cursor != "abc" {
		t.Fatalf("expected cursor abc, got %q", captured.Pager.Cursor)
	}
	if captured.Status == nil || *captured.Status != domain.OrderStatusDelivered {
		t.Fatalf("expected delivered status filter, got %v", captured.Status)
	}
}

func TestOrderHandlersListRejectsUnknownStatus(t *testing.T) {
	service := &stubOrderService{}
	router := NewRouter(WithOrderRoutes(NewOrderHandlers(nil, service).Routes))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, authedRequest(http.MethodGet, "/api/v1/orders?status=bogus", nil, customerIdentity()))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestOrderHandlersRestaurantListing(t *testing.T) {
	var captured services.ListRestaurantOrdersCommand
	service := &stubOrderService{
		listForRestaurantFunc: func(ctx context.Context, cmd services.ListRestaurantOrdersCommand) (domain.CursorPage[domain.Order], error) {
			captured = cmd
			return domain.CursorPage[domain.Order]{Items: []domain.Order{sampleOrder("ord_1")}}, nil
		},
	}
	router := NewRouter(WithOrderRoutes(NewOrderHandlers(nil, service).Routes))

	identity := &auth.Identity{UID: "owner-1", Roles: []string{"restaurant-owner"}}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, authedRequest(http.MethodGet, "/api/v1/orders/restaurant/rest-1", nil, identity))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.RestaurantID != "rest-1" {
		t.Fatalf("expected restaurant id rest-1, got %s", captured.RestaurantID)
	}
	if captured.Actor.ID != "owner-1" {
		t.Fatalf("expected actor owner-1, got %s", captured.Actor.ID)
	}
}

func TestOrderHandlersRestaurantListingForbidden(t *testing.T) {
	service := &stubOrderService{
		listForRestaurantFunc: func(ctx context.Context, cmd services.ListRestaurantOrdersCommand) (domain.CursorPage[domain.Order], error) {
			return domain.CursorPage[domain.Order]{}, services.ErrOrderForbidden
		},
	}
	router := NewRouter(WithOrderRoutes(NewOrderHandlers(nil, service).Routes))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, authedRequest(http.MethodGet, "/api/v1/orders/restaurant/rest-1", nil, customerIdentity()))

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}
}

func TestOrderHandlersCancelSuccess(t *testing.T) {
	cancelled := sampleOrder("ord_1")
	cancelled.Status = domain.OrderStatusCancelled
	cancelled.PaymentStatus = domain.PaymentStatusRefunded
	processedAt := time.Date(2024, 6, 1, 12, 5, 0, 0, time.UTC)
	cancelled.Refund = domain.RefundInfo{
		Status:      domain.RefundStatusProcessed,
		Amount:      29.178,
		GatewayID:   "re_1",
		ProcessedAt: &processedAt,
	}

	var captured services.CancelOrderCommand
	service := &stubOrderService{
		cancelFunc: func(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
			captured = cmd
			return cancelled, nil
		},
	}
	router := NewRouter(WithOrderRoutes(NewOrderHandlers(nil, service).Routes))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/orders/ord_1:cancel", []byte(`{"reason":" changed my mind "}`), customerIdentity()))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.OrderID != "ord_1" {
		t.Fatalf("expected order id ord_1, got %s", captured.OrderID)
	}
	if captured.Reason != "changed my mind" {
		t.Fatalf("expected trimmed reason, got %q", captured.Reason)
	}

	var payload cancelOrderResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.RefundFailed {
		t.Fatal("expected refund_failed to be absent for a processed refund")
	}
	if payload.Order.Refund == nil || payload.Order.Refund.Status != "processed" {
		t.Fatalf("expected processed refund block, got %+v", payload.Order.Refund)
	}
	if payload.Order.Refund.GatewayID != "re_1" {
		t.Fatalf("expected gateway id re_1, got %s", payload.Order.Refund.GatewayID)
	}
}

func TestOrderHandlersCancelReportsRefundFailure(t *testing.T) {
	cancelled := sampleOrder("ord_1")
	cancelled.Status = domain.OrderStatusCancelled
	cancelled.PaymentStatus = domain.PaymentStatusCompleted
	cancelled.Refund = domain.RefundInfo{Status: domain.RefundStatusRejected, Amount: 29.178}

	service := &stubOrderService{
		cancelFunc: func(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
			return cancelled, nil
		},
	}
	router := NewRouter(WithOrderRoutes(NewOrderHandlers(nil, service).Routes))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/orders/ord_1:cancel", nil, customerIdentity()))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var payload cancelOrderResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !payload.RefundFailed {
		t.Fatal("expected refund_failed marker for a rejected refund")
	}
	if payload.Order.Status != "cancelled" {
		t.Fatalf("expected cancelled order, got %s", payload.Order.Status)
	}
}

func TestOrderHandlersCancelErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "not found", err: services.ErrOrderNotFound, status: http.StatusNotFound},
		{name: "forbidden", err: services.ErrOrderForbidden, status: http.StatusForbidden},
		{name: "invalid state", err: services.ErrOrderInvalidState, status: http.StatusConflict},
		{name: "conflict", err: services.ErrOrderConflict, status: http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := &stubOrderService{
				cancelFunc: func(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
					return domain.Order{}, tc.err
				},
			}
			router := NewRouter(WithOrderRoutes(NewOrderHandlers(nil, service).Routes))

			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/orders/ord_1:cancel", nil, customerIdentity()))

			if resp.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, resp.Code)
			}
		})
	}
}

func TestOrderHandlersUpdateStatus(t *testing.T) {
	updated := sampleOrder("ord_1")
	updated.Status = domain.OrderStatusPreparing

	var captured services.UpdateOrderStatusCommand
	service := &stubOrderService{
		updateStatusFunc: func(ctx context.Context, cmd services.UpdateOrderStatusCommand) (domain.Order, error) {
			captured = cmd
			return updated, nil
		},
	}
	router := NewRouter(WithOrderRoutes(NewOrderHandlers(nil, service).Routes))

	identity := &auth.Identity{UID: "owner-1", Roles: []string{"restaurant-owner"}}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/orders/ord_1:status", []byte(`{"status":" Preparing "}`), identity))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.TargetStatus != domain.OrderStatusPreparing {
		t.Fatalf("expected normalised preparing target, got %s", captured.TargetStatus)
	}
	var payload orderResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Order.Status != "preparing" {
		t.Fatalf("expected preparing, got %s", payload.Order.Status)
	}
}

func TestOrderHandlersUpdateStatusRequiresBody(t *testing.T) {
	service := &stubOrderService{}
	router := NewRouter(WithOrderRoutes(NewOrderHandlers(nil, service).Routes))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/orders/ord_1:status", nil, customerIdentity()))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}
