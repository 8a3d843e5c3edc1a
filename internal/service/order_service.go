package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/01moynul/storefront-api/internal/models"
	"github.com/01moynul/storefront-api/internal/orderstate"
	"github.com/01moynul/storefront-api/internal/pricing"
	"github.com/01moynul/storefront-api/internal/repo"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// OrderLine is one requested item at checkout. Price, name and image come
// from the catalogue, never from the client.
type OrderLine struct {
	ProductID      int64  `json:"product" binding:"required,gt=0"`
	Qty            int    `json:"qty" binding:"required,gt=0"`
	Size           string `json:"size"`
	Color          string `json:"color"`
	IsCustomDesign bool   `json:"isCustomDesign"`
}

type CreateOrderInput struct {
	UserID          int64
	Items           []OrderLine
	ShippingAddress models.ShippingAddress
	PaymentMethod   models.PaymentMethod
	PromoCode       string
}

type StatusUpdate struct {
	Status         models.OrderStatus
	TrackingNumber string
	Reason         string
}

type OrderService interface {
	Create(ctx context.Context, in CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, actor Actor, id int64) (*models.Order, error)
	ListMine(ctx context.Context, userID int64) ([]models.Order, error)
	List(ctx context.Context, f models.OrderFilter) ([]models.Order, int, error)
	UpdateStatus(ctx context.Context, id int64, u StatusUpdate) (*models.Order, error)
	Cancel(ctx context.Context, actor Actor, id int64, reason string) (*models.Order, error)
	ConfirmDelivery(ctx context.Context, actor Actor, id int64) (*models.Order, error)
	MarkPaidManually(ctx context.Context, id int64) (*models.Order, error)
}

type orderService struct {
	orders   repo.OrderRepo
	products repo.ProductRepo
	carts    repo.CartRepo
	calc     *pricing.Calculator
	log      *slog.Logger
	now      func() time.Time
}

func NewOrderService(orders repo.OrderRepo, products repo.ProductRepo, carts repo.CartRepo, calc *pricing.Calculator, logger *slog.Logger) OrderService {
	return &orderService{
		orders:   orders,
		products: products,
		carts:    carts,
		calc:     calc,
		log:      logger,
		now:      time.Now,
	}
}

func (s *orderService) Create(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if len(in.Items) == 0 {
		return nil, invalidField("orderItems", "no order items")
	}
	if !in.PaymentMethod.Valid() {
		return nil, invalidField("paymentMethod", "unsupported payment method %q", in.PaymentMethod)
	}

	ids := make([]int64, 0, len(in.Items))
	wanted := make(map[int64]int, len(in.Items))
	for _, l := range in.Items {
		if l.Qty < 1 {
			return nil, invalidField("orderItems", "quantity for product %d must be at least 1", l.ProductID)
		}
		if _, seen := wanted[l.ProductID]; !seen {
			ids = append(ids, l.ProductID)
		}
		wanted[l.ProductID] += l.Qty
	}

	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for id, qty := range wanted {
		p, ok := products[id]
		if !ok {
			return nil, invalidField("orderItems", "product %d does not exist", id)
		}
		if p.CountInStock < qty {
			return nil, fmt.Errorf("%w: %s has %d left", ErrOutOfStock, p.Name, p.CountInStock)
		}
	}

	lines := make([]pricing.Line, 0, len(in.Items))
	items := make([]models.OrderItem, 0, len(in.Items))
	weight := 0.0
	for _, l := range in.Items {
		p := products[l.ProductID]
		lines = append(lines, pricing.Line{Price: p.Price, Qty: l.Qty})
		weight += p.Weight * float64(l.Qty)
		items = append(items, models.OrderItem{
			ProductID:      p.ID,
			Name:           p.Name,
			Image:          p.Image,
			Price:          p.Price,
			Qty:            l.Qty,
			Size:           l.Size,
			Color:          l.Color,
			IsCustomDesign: l.IsCustomDesign,
		})
	}

	quote, err := s.calc.Quote(pricing.QuoteInput{
		Items:     lines,
		Location:  in.ShippingAddress.State,
		Weight:    weight,
		PromoCode: in.PromoCode,
		Now:       s.now(),
	})
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		UserID:          in.UserID,
		Items:           items,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		ItemsPrice:      quote.ItemsPrice,
		ShippingPrice:   quote.ShippingPrice,
		TaxPrice:        quote.TaxPrice,
		Discount:        quote.Discount,
		TotalPrice:      quote.TotalPrice,
		Status:          models.OrderPending,
	}
	if quote.PromoCode != "" {
		code := quote.PromoCode
		order.PromoCode = &code
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	if err := s.carts.Delete(ctx, in.UserID); err != nil {
		s.log.WarnContext(ctx, "could not clear saved cart", "user_id", in.UserID, "error", err)
	}

	s.log.InfoContext(ctx, "order created",
		"order_id", order.ID, "user_id", order.UserID, "total", order.TotalPrice, "payment_method", order.PaymentMethod)
	return order, nil
}

func (s *orderService) Get(ctx context.Context, actor Actor, id int64) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", id, err)
	}
	if !actor.owns(order.UserID) {
		return nil, ErrForbidden
	}
	return order, nil
}

func (s *orderService) ListMine(ctx context.Context, userID int64) ([]models.Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

func (s *orderService) List(ctx context.Context, f models.OrderFilter) ([]models.Order, int, error) {
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Status != nil && !f.Status.Valid() {
		return nil, 0, invalidField("status", "unknown status %q", *f.Status)
	}
	return s.orders.List(ctx, f)
}

func (s *orderService) UpdateStatus(ctx context.Context, id int64, u StatusUpdate) (*models.Order, error) {
	if !u.Status.Valid() {
		return nil, invalidField("status", "unknown status %q", u.Status)
	}
	event, err := orderstate.EventForStatus(u.Status, u.Reason)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", id, err)
	}
	if tracking := strings.TrimSpace(u.TrackingNumber); tracking != "" {
		order.TrackingNumber = &tracking
	}
	return s.apply(ctx, order, event)
}

func (s *orderService) Cancel(ctx context.Context, actor Actor, id int64, reason string) (*models.Order, error) {
	order, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, order, orderstate.Cancel(reason))
}

func (s *orderService) ConfirmDelivery(ctx context.Context, actor Actor, id int64) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", id, err)
	}
	if order.UserID != actor.UserID {
		return nil, ErrForbidden
	}
	return s.apply(ctx, order, orderstate.ConfirmDelivery())
}

// apply runs event through the lifecycle rules, stamps the matching
// timestamps and persists the result guarded on the status it read.
func (s *orderService) apply(ctx context.Context, order *models.Order, event orderstate.Event) (*models.Order, error) {
	prev := order.Status
	next, err := orderstate.Transition(orderstate.FromOrder(order), event)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	order.Status = next.Status
	switch event.Kind {
	case orderstate.EventCancel:
		reason := strings.TrimSpace(event.Reason)
		order.CancelReason = &reason
		order.CancelledAt = &now
	case orderstate.EventDeliver:
		order.DeliveredAt = &now
	case orderstate.EventConfirmDelivery:
		order.DeliveryConfirmedAt = &now
	}

	if err := s.orders.UpdateLifecycle(ctx, order, prev); err != nil {
		return nil, fmt.Errorf("order %d: %w", order.ID, err)
	}
	s.log.InfoContext(ctx, "order status changed",
		"order_id", order.ID, "event", event.Kind, "from", prev, "to", order.Status)
	return order, nil
}

func (s *orderService) MarkPaidManually(ctx context.Context, id int64) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", id, err)
	}
	if order.PaymentMethod != models.PaymentMethodCashOnDelivery {
		return nil, invalidField("reference", "a payment reference is required for %s orders", order.PaymentMethod)
	}
	if order.IsPaid {
		return nil, orderstate.ErrAlreadyPaid
	}

	applied, err := markOrderPaid(ctx, s.orders, order, s.now().UTC(), "")
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, orderstate.ErrAlreadyPaid
	}
	s.log.InfoContext(ctx, "cash on delivery order marked paid", "order_id", order.ID)
	return order, nil
}

// markOrderPaid applies the payment event and persists it with the
// is_paid = 0 guard. It returns false, with order refreshed, when another
// writer got there first.
func markOrderPaid(ctx context.Context, orders repo.OrderRepo, order *models.Order, paidAt time.Time, reference string) (bool, error) {
	next, err := orderstate.Transition(orderstate.FromOrder(order), orderstate.PaymentSucceeded())
	if errors.Is(err, orderstate.ErrAlreadyPaid) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	applied, err := orders.MarkPaid(ctx, order.ID, order.Status, next.Status, paidAt, reference)
	if err != nil {
		return false, fmt.Errorf("order %d: %w", order.ID, err)
	}
	if !applied {
		fresh, err := orders.FindByID(ctx, order.ID)
		if err != nil {
			return false, fmt.Errorf("order %d: %w", order.ID, err)
		}
		*order = *fresh
		if fresh.IsPaid {
			return false, nil
		}
		return false, fmt.Errorf("order %d: %w", order.ID, repo.ErrConflict)
	}

	order.IsPaid = true
	order.PaidAt = &paidAt
	order.Status = next.Status
	if reference != "" {
		order.PaymentReference = &reference
	}
	return true, nil
}
