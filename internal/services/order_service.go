package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/foodies-app/api/internal/domain"
	"github.com/foodies-app/api/internal/payments"
	"github.com/foodies-app/api/internal/repositories"
)

const (
	orderIDPrefix = "ord_"
	eventIDPrefix = "evt_"

	orderCurrency = "usd"

	deliveryEstimateWindow = 45 * time.Minute

	defaultGatewayTimeout = 10 * time.Second
)

var (
	// ErrOrderInvalidInput signals bad request data such as an unknown restaurant or a malformed status.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound is returned when the order does not exist or the caller may not see it.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden is returned when the caller may not perform the mutation.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderInvalidState is returned when the current lifecycle state does not admit the operation.
	ErrOrderInvalidState = errors.New("order: invalid state")
	// ErrOrderConflict indicates a write collided with a concurrent mutation.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderPaymentUnavailable indicates the card gateway could not be reached.
	ErrOrderPaymentUnavailable = errors.New("order: payment gateway unavailable")
)

// OrderServiceDeps lists collaborators for NewOrderService.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Restaurants repositories.RestaurantRepository
	Users       repositories.UserRepository
	Pricing     *PricingEngine
	Payments    payments.Provider
	Events      EventPublisher
	TxRunner    repositories.UnitOfWork

	// GatewayTimeout bounds intent and refund calls to the card gateway.
	GatewayTimeout time.Duration

	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type orderService struct {
	orders         repositories.OrderRepository
	restaurants    repositories.RestaurantRepository
	users          repositories.UserRepository
	pricing        *PricingEngine
	payments       payments.Provider
	events         EventPublisher
	tx             repositories.UnitOfWork
	gatewayTimeout time.Duration
	clock          func() time.Time
	newID          func() string
	logger         func(context.Context, string, map[string]any)
}

// NewOrderService wires the order lifecycle coordinator.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Restaurants == nil {
		return nil, errors.New("order service: restaurant repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("order service: pricing engine is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("order service: payment provider is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	tx := deps.TxRunner
	if tx == nil {
		tx = noopUnitOfWork{}
	}
	timeout := deps.GatewayTimeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}

	return &orderService{
		orders:         deps.Orders,
		restaurants:    deps.Restaurants,
		users:          deps.Users,
		pricing:        deps.Pricing,
		payments:       deps.Payments,
		events:         deps.Events,
		tx:             tx,
		gatewayTimeout: timeout,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (CreateOrderResult, error) {
	if strings.TrimSpace(cmd.Actor.ID) == "" {
		return CreateOrderResult{}, fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}
	restaurantID := strings.TrimSpace(cmd.RestaurantID)
	if restaurantID == "" {
		return CreateOrderResult{}, fmt.Errorf("%w: restaurant id is required", ErrOrderInvalidInput)
	}
	if !cmd.PaymentMethod.Valid() {
		return CreateOrderResult{}, fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}
	if strings.TrimSpace(cmd.DeliveryAddress.Line1) == "" || strings.TrimSpace(cmd.DeliveryAddress.City) == "" {
		return CreateOrderResult{}, fmt.Errorf("%w: delivery address requires line1 and city", ErrOrderInvalidInput)
	}

	// Profiles come from the accounts system; a token for a user without a
	// profile cannot place orders.
	if s.users != nil {
		if _, err := s.users.FindByID(ctx, cmd.Actor.ID); err != nil {
			if isNotFound(err) {
				return CreateOrderResult{}, fmt.Errorf("%w: unknown user %q", ErrOrderForbidden, cmd.Actor.ID)
			}
			return CreateOrderResult{}, err
		}
	}

	restaurant, err := s.restaurants.FindByID(ctx, restaurantID)
	if err != nil {
		if isNotFound(err) {
			return CreateOrderResult{}, fmt.Errorf("%w: unknown restaurant %q", ErrOrderInvalidInput, restaurantID)
		}
		return CreateOrderResult{}, fmt.Errorf("load restaurant: %w", err)
	}
	if !restaurant.IsOpen {
		return CreateOrderResult{}, fmt.Errorf("%w: restaurant %q is currently closed", ErrOrderInvalidInput, restaurant.Name)
	}

	priced, err := s.pricing.PriceOrder(ctx, restaurantID, cmd.Items, cmd.Tip)
	if err != nil {
		return CreateOrderResult{}, err
	}

	now := s.now()
	order := domain.Order{
		ID:                    s.nextOrderID(),
		UserID:                cmd.Actor.ID,
		RestaurantID:          restaurantID,
		Items:                 priced.Items,
		Status:                domain.OrderStatusPending,
		PaymentStatus:         domain.PaymentStatusPending,
		PaymentMethod:         cmd.PaymentMethod,
		Pricing:               priced.Pricing,
		Refund:                domain.RefundInfo{Status: domain.RefundStatusNone},
		DeliveryAddress:       cmd.DeliveryAddress,
		EstimatedDeliveryTime: now.Add(deliveryEstimateWindow),
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	var clientSecret string
	if cmd.PaymentMethod == domain.PaymentMethodCard {
		intent, err := s.openPaymentIntent(ctx, order)
		if err != nil {
			return CreateOrderResult{}, err
		}
		clientSecret = intent.ClientSecret
		order.PaymentDetails = &domain.PaymentDetails{
			IntentID: intent.ID,
			Amount:   order.Pricing.Total,
			Currency: orderCurrency,
		}
	}

	err = s.runInTx(ctx, func(ctx context.Context) error {
		if err := s.orders.Insert(ctx, order); err != nil {
			return mapOrderRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return CreateOrderResult{}, err
	}

	s.publishEvent(ctx, domain.OrderEventCreated, order)

	return CreateOrderResult{Order: order, PaymentClientSecret: clientSecret}, nil
}

func (s *orderService) openPaymentIntent(ctx context.Context, order domain.Order) (payments.Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	intent, err := s.payments.CreateIntent(ctx, payments.IntentRequest{
		OrderID:        order.ID,
		UserID:         order.UserID,
		Amount:         order.Pricing.Total,
		Currency:       orderCurrency,
		IdempotencyKey: order.ID,
		Description:    fmt.Sprintf("Order %s", order.ID),
	})
	if err != nil {
		s.logger(ctx, "order.payment_intent.failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
		return payments.Intent{}, fmt.Errorf("%w: %v", ErrOrderPaymentUnavailable, err)
	}
	return intent, nil
}

func (s *orderService) Get(ctx context.Context, orderID string, actor Actor) (Order, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	allowed, err := s.canActOn(ctx, actor, order)
	if err != nil {
		return Order{}, err
	}
	if !allowed {
		// Reads deny with not-found so callers cannot probe for other users' orders.
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (s *orderService) ListForUser(ctx context.Context, cmd ListUserOrdersCommand) (domain.CursorPage[Order], error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		userID = cmd.Actor.ID
	}
	if userID != cmd.Actor.ID && !cmd.Actor.HasRole(string(domain.RoleAdmin)) {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: cannot list another user's orders", ErrOrderForbidden)
	}

	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID: userID,
		Status: cmd.Status,
		Pager:  cmd.Pager,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, mapOrderRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) ListForRestaurant(ctx context.Context, cmd ListRestaurantOrdersCommand) (domain.CursorPage[Order], error) {
	restaurantID := strings.TrimSpace(cmd.RestaurantID)
	if restaurantID == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: restaurant id is required", ErrOrderInvalidInput)
	}
	if !cmd.Actor.HasRole(string(domain.RoleAdmin)) {
		restaurant, err := s.restaurants.FindByID(ctx, restaurantID)
		if err != nil {
			if isNotFound(err) {
				return domain.CursorPage[Order]{}, fmt.Errorf("%w: restaurant %s", ErrOrderNotFound, restaurantID)
			}
			return domain.CursorPage[Order]{}, fmt.Errorf("load restaurant: %w", err)
		}
		if restaurant.OwnerID != cmd.Actor.ID {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: not the restaurant owner", ErrOrderForbidden)
		}
	}

	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		RestaurantID: restaurantID,
		Status:       cmd.Status,
		Pager:        cmd.Pager,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, mapOrderRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	target := cmd.TargetStatus
	if !target.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, target)
	}

	order, err := s.findOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	allowed, err := s.canActOn(ctx, cmd.Actor, order)
	if err != nil {
		return Order{}, err
	}
	if !allowed {
		return Order{}, fmt.Errorf("%w: cannot update this order", ErrOrderForbidden)
	}

	changed := false
	updated, err := s.orders.Mutate(ctx, order.ID, func(o *domain.Order) error {
		changed = false
		if o.Status.Terminal() {
			return fmt.Errorf("%w: order is %s", ErrOrderInvalidState, o.Status)
		}
		if target == domain.OrderStatusCancelled {
			return fmt.Errorf("%w: cancellation goes through the cancel operation", ErrOrderInvalidInput)
		}
		if o.Status == target {
			return nil
		}
		now := s.now()
		o.Status = target
		if target == domain.OrderStatusDelivered && o.ActualDeliveryTime == nil {
			o.ActualDeliveryTime = &now
		}
		o.UpdatedAt = now
		changed = true
		return nil
	})
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}

	if changed {
		s.publishEvent(ctx, domain.OrderEventStatusChanged, updated)
	}
	return updated, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	order, err := s.findOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if order.UserID != cmd.Actor.ID {
		return Order{}, fmt.Errorf("%w: only the customer may cancel", ErrOrderForbidden)
	}

	refundDue := false
	cancelled, err := s.orders.Mutate(ctx, order.ID, func(o *domain.Order) error {
		refundDue = false
		if o.Status != domain.OrderStatusPending {
			return fmt.Errorf("%w: only pending orders can be cancelled, order is %s", ErrOrderInvalidState, o.Status)
		}
		now := s.now()
		o.Status = domain.OrderStatusCancelled
		o.UpdatedAt = now
		if o.PaymentStatus == domain.PaymentStatusCompleted {
			o.Refund = domain.RefundInfo{
				Status: domain.RefundStatusRequested,
				Amount: o.Pricing.Total,
			}
			refundDue = true
		}
		return nil
	})
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}

	if refundDue {
		cancelled = s.processRefund(ctx, cancelled, cmd.Reason)
	}

	s.publishEvent(ctx, domain.OrderEventCancelled, cancelled)
	if cancelled.PaymentStatus == domain.PaymentStatusRefunded {
		s.publishEvent(ctx, domain.OrderEventPaymentUpdated, cancelled)
	}
	return cancelled, nil
}

// processRefund runs the gateway refund outside the order transaction. The
// cancellation is already committed at this point: a gateway failure marks
// the refund rejected but never un-cancels the order.
func (s *orderService) processRefund(ctx context.Context, order domain.Order, reason string) domain.Order {
	intentID := ""
	if order.PaymentDetails != nil {
		intentID = order.PaymentDetails.IntentID
	}

	refundCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	result, refundErr := s.payments.Refund(refundCtx, payments.RefundRequest{
		IntentID:       intentID,
		Amount:         order.Refund.Amount,
		Reason:         reason,
		IdempotencyKey: order.ID + ":refund",
	})

	updated, err := s.orders.Mutate(ctx, order.ID, func(o *domain.Order) error {
		if refundErr != nil {
			o.Refund.Status = domain.RefundStatusRejected
		} else {
			now := s.now()
			o.Refund.Status = domain.RefundStatusProcessed
			o.Refund.GatewayID = result.RefundID
			o.Refund.ProcessedAt = &now
			o.PaymentStatus = domain.PaymentStatusRefunded
			o.UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		s.logger(ctx, "order.refund.record_failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
		return order
	}
	if refundErr != nil {
		s.logger(ctx, "order.refund.failed", map[string]any{
			"order":  order.ID,
			"intent": intentID,
			"error":  refundErr.Error(),
		})
	}
	return updated
}

func (s *orderService) ApplyPaymentSucceeded(ctx context.Context, cmd PaymentWebhookCommand) error {
	orderID, err := s.resolveWebhookOrder(ctx, cmd)
	if err != nil {
		return err
	}
	if orderID == "" {
		return nil
	}

	statusChanged := false
	applied := false
	updated, err := s.orders.Mutate(ctx, orderID, func(o *domain.Order) error {
		statusChanged, applied = false, false
		if o.PaymentStatus == domain.PaymentStatusCompleted || o.PaymentStatus == domain.PaymentStatusRefunded {
			// Replayed notification; the first delivery already landed.
			return nil
		}
		now := s.now()
		paidAt := cmd.OccurredAt
		if paidAt.IsZero() {
			paidAt = now
		}
		o.PaymentStatus = domain.PaymentStatusCompleted
		o.PaymentDetails = &domain.PaymentDetails{
			TransactionID: cmd.TransactionID,
			IntentID:      cmd.IntentID,
			Amount:        amountOrTotal(cmd.Amount, o.Pricing.Total),
			Currency:      currencyOrDefault(cmd.Currency),
			PaidAt:        paidAt,
		}
		if o.Status == domain.OrderStatusPending {
			o.Status = domain.OrderStatusConfirmed
			statusChanged = true
		}
		o.UpdatedAt = now
		applied = true
		return nil
	})
	if err != nil {
		if errors.Is(mapOrderRepositoryError(err), ErrOrderNotFound) {
			s.logWebhookOrphan(ctx, cmd)
			return nil
		}
		return mapOrderRepositoryError(err)
	}

	if applied {
		s.publishEvent(ctx, domain.OrderEventPaymentUpdated, updated)
	}
	if statusChanged {
		s.publishEvent(ctx, domain.OrderEventStatusChanged, updated)
	}
	return nil
}

func (s *orderService) ApplyPaymentFailed(ctx context.Context, cmd PaymentWebhookCommand) error {
	orderID, err := s.resolveWebhookOrder(ctx, cmd)
	if err != nil {
		return err
	}
	if orderID == "" {
		return nil
	}

	statusChanged := false
	applied := false
	updated, err := s.orders.Mutate(ctx, orderID, func(o *domain.Order) error {
		statusChanged, applied = false, false
		switch o.PaymentStatus {
		case domain.PaymentStatusFailed:
			return nil
		case domain.PaymentStatusCompleted, domain.PaymentStatusRefunded:
			// A stale failure after funds already moved; keep the stronger state.
			return nil
		}
		now := s.now()
		o.PaymentStatus = domain.PaymentStatusFailed
		if !o.Status.Terminal() {
			o.Status = domain.OrderStatusCancelled
			statusChanged = true
		}
		o.UpdatedAt = now
		applied = true
		return nil
	})
	if err != nil {
		if errors.Is(mapOrderRepositoryError(err), ErrOrderNotFound) {
			s.logWebhookOrphan(ctx, cmd)
			return nil
		}
		return mapOrderRepositoryError(err)
	}

	if applied {
		s.publishEvent(ctx, domain.OrderEventPaymentUpdated, updated)
	}
	if statusChanged {
		s.publishEvent(ctx, domain.OrderEventCancelled, updated)
	}
	return nil
}

// resolveWebhookOrder picks the order id from the notification, falling back
// to an intent lookup. An empty result with nil error means the notification
// references nothing we know; callers acknowledge it without acting.
func (s *orderService) resolveWebhookOrder(ctx context.Context, cmd PaymentWebhookCommand) (string, error) {
	if id := strings.TrimSpace(cmd.OrderID); id != "" {
		return id, nil
	}
	if intentID := strings.TrimSpace(cmd.IntentID); intentID != "" {
		order, err := s.orders.FindByIntentID(ctx, intentID)
		if err == nil {
			return order.ID, nil
		}
		if isNotFound(err) {
			s.logWebhookOrphan(ctx, cmd)
			return "", nil
		}
		return "", mapOrderRepositoryError(err)
	}
	s.logWebhookOrphan(ctx, cmd)
	return "", nil
}

func (s *orderService) logWebhookOrphan(ctx context.Context, cmd PaymentWebhookCommand) {
	s.logger(ctx, "order.webhook.orphaned", map[string]any{
		"event":  cmd.EventID,
		"order":  cmd.OrderID,
		"intent": cmd.IntentID,
	})
}

// canActOn is the single authorization policy for per-order operations:
// admins, the ordering customer, and the owner of the order's restaurant.
func (s *orderService) canActOn(ctx context.Context, actor Actor, order domain.Order) (bool, error) {
	if actor.HasRole(string(domain.RoleAdmin)) {
		return true, nil
	}
	if actor.ID != "" && actor.ID == order.UserID {
		return true, nil
	}
	if actor.HasRole(string(domain.RoleRestaurantOwner)) {
		restaurant, err := s.restaurants.FindByID(ctx, order.RestaurantID)
		if err != nil {
			if isNotFound(err) {
				return false, nil
			}
			return false, fmt.Errorf("load restaurant: %w", err)
		}
		return restaurant.OwnerID == actor.ID, nil
	}
	return false, nil
}

func (s *orderService) findOrder(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, mapOrderRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) publishEvent(ctx context.Context, eventType domain.OrderEventType, order domain.Order) {
	if s.events == nil {
		return
	}
	s.events.PublishOrderEvent(ctx, domain.OrderEvent{
		EventID:      eventIDPrefix + s.newID(),
		Type:         eventType,
		OrderID:      order.ID,
		RestaurantID: order.RestaurantID,
		UserID:       order.UserID,
		Status:       order.Status,
		OccurredAt:   s.now(),
	})
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	return s.tx.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func mapOrderRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		}
	}
	return err
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func amountOrTotal(amount, total float64) float64 {
	if amount > 0 {
		return amount
	}
	return total
}

func currencyOrDefault(currency string) string {
	if currency == "" {
		return orderCurrency
	}
	return strings.ToLower(currency)
}
