package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/foodies-app/api/internal/domain"
	pfirestore "github.com/foodies-app/api/internal/platform/firestore"
	"github.com/foodies-app/api/internal/platform/pagination"
	"github.com/foodies-app/api/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository persists orders in Firestore. All mutations after insert go
// through Mutate so concurrent writers serialise on the document.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{base: base, provider: provider}, nil
}

// Insert creates the order document, failing when the id already exists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}

	docRef, err := r.base.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		if err := tx.Create(docRef, fromDomainOrder(order)); err != nil {
			return pfirestore.WrapError("orders.insert", err)
		}
		return nil
	}
	if _, err := docRef.Create(ctx, fromDomainOrder(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc.ID, doc.Data), nil
}

// FindByIntentID resolves an order from the payment intent recorded at
// creation time. Used as a webhook fallback when the notification carries no
// order id.
func (r *OrderRepository) FindByIntentID(ctx context.Context, intentID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return domain.Order{}, errors.New("order repository: intent id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("paymentDetails.intentId", "==", intentID).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError("orders.findByIntent",
			status.Errorf(codes.NotFound, "no order for intent %s", intentID))
	}
	return toDomainOrder(docs[0].ID, docs[0].Data), nil
}

// Mutate applies fn to the order inside a Firestore transaction. fn may run
// multiple times when the transaction retries; errors returned by fn abort
// the transaction and surface to the caller.
func (r *OrderRepository) Mutate(ctx context.Context, orderID string, fn func(*domain.Order) error) (domain.Order, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	if fn == nil {
		return domain.Order{}, errors.New("order repository: mutation function is required")
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		order := toDomainOrder(orderID, doc)
		if err := fn(&order); err != nil {
			return err
		}
		updated = order
		return tx.Set(docRef, fromDomainOrder(order))
	})
	if err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

// List returns orders matching the filter, newest first, with a cursor for
// the next page.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	limit := filter.Pager.Limit
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pager.Cursor); token != "" {
		tokenTime, tokenID, err := pagination.DecodeTimeToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: invalid cursor: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.UserID != "" {
			q = q.Where("userId", "==", filter.UserID)
		}
		if filter.RestaurantID != "" {
			q = q.Where("restaurantId", "==", filter.RestaurantID)
		}
		if filter.Status != nil {
			q = q.Where("status", "==", string(*filter.Status))
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	nextCursor := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextCursor = pagination.EncodeTimeToken(tokenTime, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toDomainOrder(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.Order]{Items: items, NextCursor: nextCursor}, nil
}

type orderDocument struct {
	UserID                string                  `firestore:"userId"`
	RestaurantID          string                  `firestore:"restaurantId"`
	Items                 []orderItemDocument     `firestore:"items"`
	Status                string                  `firestore:"status"`
	PaymentStatus         string                  `firestore:"paymentStatus"`
	PaymentMethod         string                  `firestore:"paymentMethod"`
	Pricing               pricingDocument         `firestore:"pricing"`
	PaymentDetails        *paymentDetailsDocument `firestore:"paymentDetails,omitempty"`
	Refund                refundDocument          `firestore:"refund"`
	DeliveryAddress       addressDocument         `firestore:"deliveryAddress"`
	EstimatedDeliveryTime time.Time               `firestore:"estimatedDeliveryTime"`
	ActualDeliveryTime    *time.Time              `firestore:"actualDeliveryTime,omitempty"`
	CreatedAt             time.Time               `firestore:"createdAt"`
	UpdatedAt             time.Time               `firestore:"updatedAt"`
}

type orderItemDocument struct {
	MenuItemID     string                  `firestore:"menuItemId"`
	Name           string                  `firestore:"name"`
	Quantity       int                     `firestore:"quantity"`
	UnitPrice      float64                 `firestore:"unitPrice"`
	Customizations []customizationDocument `firestore:"customizations,omitempty"`
	Note           string                  `firestore:"note,omitempty"`
}

type customizationDocument struct {
	Name       string  `firestore:"name"`
	Option     string  `firestore:"option"`
	PriceDelta float64 `firestore:"priceDelta"`
}

type pricingDocument struct {
	Subtotal    float64 `firestore:"subtotal"`
	Tax         float64 `firestore:"tax"`
	DeliveryFee float64 `firestore:"deliveryFee"`
	Tip         float64 `firestore:"tip"`
	Total       float64 `firestore:"total"`
}

type paymentDetailsDocument struct {
	TransactionID string    `firestore:"transactionId,omitempty"`
	IntentID      string    `firestore:"intentId,omitempty"`
	Amount        float64   `firestore:"amount"`
	Currency      string    `firestore:"currency"`
	PaidAt        time.Time `firestore:"paidAt,omitempty"`
}

type refundDocument struct {
	Status      string     `firestore:"status"`
	Amount      float64    `firestore:"amount"`
	GatewayID   string     `firestore:"gatewayId,omitempty"`
	ProcessedAt *time.Time `firestore:"processedAt,omitempty"`
}

type addressDocument struct {
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	State      string `firestore:"state,omitempty"`
	PostalCode string `firestore:"postalCode,omitempty"`
	Country    string `firestore:"country,omitempty"`
	Notes      string `firestore:"notes,omitempty"`
}

func fromDomainOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		UserID:                order.UserID,
		RestaurantID:          order.RestaurantID,
		Items:                 fromDomainItems(order.Items),
		Status:                string(order.Status),
		PaymentStatus:         string(order.PaymentStatus),
		PaymentMethod:         string(order.PaymentMethod),
		Pricing:               pricingDocument(order.Pricing),
		Refund:                fromDomainRefund(order.Refund),
		DeliveryAddress:       addressDocument(order.DeliveryAddress),
		EstimatedDeliveryTime: order.EstimatedDeliveryTime,
		ActualDeliveryTime:    order.ActualDeliveryTime,
		CreatedAt:             order.CreatedAt,
		UpdatedAt:             order.UpdatedAt,
	}
	if order.PaymentDetails != nil {
		details := paymentDetailsDocument{
			TransactionID: order.PaymentDetails.TransactionID,
			IntentID:      order.PaymentDetails.IntentID,
			Amount:        order.PaymentDetails.Amount,
			Currency:      order.PaymentDetails.Currency,
			PaidAt:        order.PaymentDetails.PaidAt,
		}
		doc.PaymentDetails = &details
	}
	return doc
}

func toDomainOrder(orderID string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:                    orderID,
		UserID:                doc.UserID,
		RestaurantID:          doc.RestaurantID,
		Items:                 toDomainItems(doc.Items),
		Status:                domain.OrderStatus(doc.Status),
		PaymentStatus:         domain.PaymentStatus(doc.PaymentStatus),
		PaymentMethod:         domain.PaymentMethod(doc.PaymentMethod),
		Pricing:               domain.PricingSnapshot(doc.Pricing),
		Refund:                toDomainRefund(doc.Refund),
		DeliveryAddress:       domain.Address(doc.DeliveryAddress),
		EstimatedDeliveryTime: doc.EstimatedDeliveryTime,
		ActualDeliveryTime:    doc.ActualDeliveryTime,
		CreatedAt:             doc.CreatedAt,
		UpdatedAt:             doc.UpdatedAt,
	}
	if doc.PaymentDetails != nil {
		order.PaymentDetails = &domain.PaymentDetails{
			TransactionID: doc.PaymentDetails.TransactionID,
			IntentID:      doc.PaymentDetails.IntentID,
			Amount:        doc.PaymentDetails.Amount,
			Currency:      doc.PaymentDetails.Currency,
			PaidAt:        doc.PaymentDetails.PaidAt,
		}
	}
	return order
}

func fromDomainItems(items []domain.OrderItem) []orderItemDocument {
	docs := make([]orderItemDocument, 0, len(items))
	for _, item := range items {
		doc := orderItemDocument{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Note:       item.Note,
		}
		for _, c := range item.Customizations {
			doc.Customizations = append(doc.Customizations, customizationDocument(c))
		}
		docs = append(docs, doc)
	}
	return docs
}

func toDomainItems(docs []orderItemDocument) []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(docs))
	for _, doc := range docs {
		item := domain.OrderItem{
			MenuItemID: doc.MenuItemID,
			Name:       doc.Name,
			Quantity:   doc.Quantity,
			UnitPrice:  doc.UnitPrice,
			Note:       doc.Note,
		}
		for _, c := range doc.Customizations {
			item.Customizations = append(item.Customizations, domain.Customization(c))
		}
		items = append(items, item)
	}
	return items
}

func fromDomainRefund(refund domain.RefundInfo) refundDocument {
	status := string(refund.Status)
	if status == "" {
		status = string(domain.RefundStatusNone)
	}
	return refundDocument{
		Status:      status,
		Amount:      refund.Amount,
		GatewayID:   refund.GatewayID,
		ProcessedAt: refund.ProcessedAt,
	}
}

func toDomainRefund(doc refundDocument) domain.RefundInfo {
	refund := domain.RefundInfo{
		Status:      domain.RefundStatus(doc.Status),
		Amount:      doc.Amount,
		GatewayID:   doc.GatewayID,
		ProcessedAt: doc.ProcessedAt,
	}
	if refund.Status == "" {
		refund.Status = domain.RefundStatusNone
	}
	return refund
}

