package domain

import "time"

// Pagination captures offset/limit style pagination inputs.
type Pagination struct {
	Limit  int
	Cursor string
}

// CursorPage wraps a result slice with the cursor for the next page.
type CursorPage[T any] struct {
	Items      []T
	NextCursor string
}

// OrderStatus tracks an order through the fulfillment pipeline.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was placed and awaits restaurant confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates the restaurant accepted the order.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusPreparing indicates the kitchen is working on the order.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusReadyForPickup indicates the order awaits courier handoff.
	OrderStatusReadyForPickup OrderStatus = "ready_for_pickup"
	// OrderStatusOutForDelivery indicates the order is with a courier.
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing,
		OrderStatusReadyForPickup, OrderStatusOutForDelivery,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// PaymentStatus tracks the money side of an order independently of fulfillment.
type PaymentStatus string

const (
	// PaymentStatusPending indicates payment has not completed yet.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusCompleted indicates funds were captured.
	PaymentStatusCompleted PaymentStatus = "completed"
	// PaymentStatusFailed indicates the payment attempt failed.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded indicates captured funds were returned.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// PaymentMethod is chosen at order creation and never changes afterwards.
type PaymentMethod string

const (
	// PaymentMethodCard pays through the card gateway.
	PaymentMethodCard PaymentMethod = "card"
	// PaymentMethodCash pays the courier on delivery.
	PaymentMethodCash PaymentMethod = "cash"
)

// Valid reports whether the payment method is supported.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCard || m == PaymentMethodCash
}

// RefundStatus tracks the refund sub-state of an order.
type RefundStatus string

const (
	// RefundStatusNone indicates no refund activity.
	RefundStatusNone RefundStatus = "none"
	// RefundStatusRequested indicates a refund was asked for but not decided.
	RefundStatusRequested RefundStatus = "requested"
	// RefundStatusApproved indicates a refund was approved but not yet moved.
	RefundStatusApproved RefundStatus = "approved"
	// RefundStatusProcessed indicates the gateway returned the funds.
	RefundStatusProcessed RefundStatus = "processed"
	// RefundStatusRejected indicates the refund could not be completed.
	RefundStatusRejected RefundStatus = "rejected"
)

// Order is the aggregate the platform coordinates. Monetary values are in
// currency units (not cents); conversion to the gateway's integer minor
// units happens at the payment boundary.
type Order struct {
	ID           string
	UserID       string
	RestaurantID string

	Items []OrderItem

	Status        OrderStatus
	PaymentStatus PaymentStatus
	PaymentMethod PaymentMethod

	Pricing        PricingSnapshot
	PaymentDetails *PaymentDetails
	Refund         RefundInfo

	DeliveryAddress Address

	EstimatedDeliveryTime time.Time
	ActualDeliveryTime    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderItem snapshots a menu item at order time. UnitPrice already includes
// the customization deltas applied when the order was placed.
type OrderItem struct {
	MenuItemID     string
	Name           string
	Quantity       int
	UnitPrice      float64
	Customizations []Customization
	Note           string
}

// Customization records a chosen option and its price delta.
type Customization struct {
	Name       string
	Option     string
	PriceDelta float64
}

// PricingSnapshot freezes the charge breakdown at creation time. It is never
// recomputed, even when menu prices change later.
type PricingSnapshot struct {
	Subtotal    float64
	Tax         float64
	DeliveryFee float64
	Tip         float64
	Total       float64
}

// PaymentDetails is populated only once a payment completes.
type PaymentDetails struct {
	TransactionID string
	IntentID      string
	Amount        float64
	Currency      string
	PaidAt        time.Time
}

// RefundInfo tracks refund progress on a cancelled order.
type RefundInfo struct {
	Status      RefundStatus
	Amount      float64
	GatewayID   string
	ProcessedAt *time.Time
}

// Address is a delivery destination snapshot.
type Address struct {
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Notes      string
}

// Restaurant is the catalog entity orders are placed against.
type Restaurant struct {
	ID        string
	OwnerID   string
	Name      string
	Cuisine   string
	Address   Address
	IsOpen    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MenuItem is a purchasable catalog entry belonging to one restaurant.
type MenuItem struct {
	ID             string
	RestaurantID   string
	Name           string
	Description    string
	Price          float64
	Category       string
	Available      bool
	Customizations []CustomizationOption
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CustomizationOption describes a configurable choice on a menu item.
type CustomizationOption struct {
	Name    string
	Options []CustomizationChoice
}

// CustomizationChoice is one selectable value with its price delta.
type CustomizationChoice struct {
	Option     string
	PriceDelta float64
}

// UserRole scopes what a caller may do.
type UserRole string

const (
	// RoleUser is a customer placing orders.
	RoleUser UserRole = "user"
	// RoleRestaurantOwner manages one or more restaurants.
	RoleRestaurantOwner UserRole = "restaurant-owner"
	// RoleAdmin can act on any order.
	RoleAdmin UserRole = "admin"
)

// UserProfile is the slice of the user record the order flow needs.
type UserProfile struct {
	ID        string
	Email     string
	Name      string
	Role      UserRole
	CreatedAt time.Time
	UpdatedAt time.Time
}
