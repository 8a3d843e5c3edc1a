package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/01moynul/storefront-api/internal/models"
	"github.com/01moynul/storefront-api/internal/orderstate"
	"github.com/01moynul/storefront-api/internal/pricing"
	"github.com/01moynul/storefront-api/internal/repo"
)

const (
	customerID int64 = 10
	strangerID int64 = 11
	adminID    int64 = 1
)

var (
	customer = Actor{UserID: customerID}
	stranger = Actor{UserID: strangerID}
	admin    = Actor{UserID: adminID, Admin: true}
)

func lagosAddress() models.ShippingAddress {
	return models.ShippingAddress{FullName: "Ada Obi", Address: "1 Marina", City: "Lagos", State: "Lagos", Phone: "08030000000"}
}

type OrderServiceSuite struct {
	suite.Suite
	ctx      context.Context
	products *memProducts
	orders   *memOrders
	carts    *memCarts
	svc      *orderService
}

func (s *OrderServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.products = newMemProducts(
		models.Product{ID: 1, Name: "Classic Tee", Slug: "classic-tee", Price: 10000, Weight: 0.5, CountInStock: 5},
		models.Product{ID: 2, Name: "Heavy Hoodie", Slug: "heavy-hoodie", Price: 30000, Weight: 2, CountInStock: 2},
	)
	s.orders = newMemOrders(s.products)
	s.carts = newMemCarts()
	calc := pricing.NewCalculator(pricing.DefaultRates(), pricing.DefaultPromoCatalog())
	s.svc = NewOrderService(s.orders, s.products, s.carts, calc, discardLogger()).(*orderService)
	s.svc.now = func() time.Time { return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC) }
}

func TestOrderServiceSuite(t *testing.T) {
	suite.Run(t, new(OrderServiceSuite))
}

func (s *OrderServiceSuite) create(lines ...OrderLine) *models.Order {
	o, err := s.svc.Create(s.ctx, CreateOrderInput{
		UserID:          customerID,
		Items:           lines,
		ShippingAddress: lagosAddress(),
		PaymentMethod:   models.PaymentMethodPaystack,
	})
	s.Require().NoError(err)
	return o
}

func (s *OrderServiceSuite) TestCreate_PricesFromCatalogue() {
	s.Require().NoError(s.carts.Save(s.ctx, &models.SavedCart{UserID: customerID}))

	o := s.create(OrderLine{ProductID: 1, Qty: 2, Size: "M"})

	s.Equal(20000.0, o.ItemsPrice)
	s.Equal(1000.0, o.ShippingPrice)
	s.Equal(1500.0, o.TaxPrice)
	s.Equal(22500.0, o.TotalPrice)
	s.Equal(models.OrderPending, o.Status)
	s.False(o.IsPaid)
	s.Require().Len(o.Items, 1)
	s.Equal("Classic Tee", o.Items[0].Name)
	s.Equal(10000.0, o.Items[0].Price)

	_, err := s.carts.Get(s.ctx, customerID)
	s.ErrorIs(err, repo.ErrNotFound, "saved cart is cleared")
}

func (s *OrderServiceSuite) TestCreate_WeightAndPromo() {
	o, err := s.svc.Create(s.ctx, CreateOrderInput{
		UserID:          customerID,
		Items:           []OrderLine{{ProductID: 2, Qty: 1}},
		ShippingAddress: models.ShippingAddress{FullName: "A", Address: "B", City: "Port Harcourt", State: "Rivers", Phone: "1"},
		PaymentMethod:   models.PaymentMethodPaystack,
		PromoCode:       "welcome20",
	})
	s.Require().NoError(err)

	// 1000 × 1.6 (Rivers) × 1.2 (2kg)
	s.Equal(1920.0, o.ShippingPrice)
	s.Equal(6000.0, o.Discount)
	s.Equal(2250.0, o.TaxPrice)
	s.Equal(30000.0+1920+2250-6000, o.TotalPrice)
	s.Require().NotNil(o.PromoCode)
	s.Equal("WELCOME20", *o.PromoCode)
}

func (s *OrderServiceSuite) TestCreate_Rejections() {
	base := CreateOrderInput{UserID: customerID, ShippingAddress: lagosAddress(), PaymentMethod: models.PaymentMethodPaystack}

	in := base
	_, err := s.svc.Create(s.ctx, in)
	var verr *ValidationError
	s.ErrorAs(err, &verr)

	in = base
	in.Items = []OrderLine{{ProductID: 1, Qty: 1}}
	in.PaymentMethod = "bitcoin"
	_, err = s.svc.Create(s.ctx, in)
	s.ErrorAs(err, &verr)
	s.Equal("paymentMethod", verr.Field)

	in = base
	in.Items = []OrderLine{{ProductID: 404, Qty: 1}}
	_, err = s.svc.Create(s.ctx, in)
	s.ErrorAs(err, &verr)

	in = base
	in.Items = []OrderLine{{ProductID: 2, Qty: 1, Size: "M"}, {ProductID: 2, Qty: 2, Size: "L"}}
	_, err = s.svc.Create(s.ctx, in)
	s.ErrorIs(err, ErrOutOfStock, "quantities of the same product add up")

	in = base
	in.Items = []OrderLine{{ProductID: 1, Qty: 1}}
	in.PromoCode = "BOGUS"
	_, err = s.svc.Create(s.ctx, in)
	s.ErrorIs(err, pricing.ErrPromoNotFound)
}

func (s *OrderServiceSuite) TestGet_Ownership() {
	o := s.create(OrderLine{ProductID: 1, Qty: 1})

	_, err := s.svc.Get(s.ctx, customer, o.ID)
	s.NoError(err)
	_, err = s.svc.Get(s.ctx, admin, o.ID)
	s.NoError(err)
	_, err = s.svc.Get(s.ctx, stranger, o.ID)
	s.ErrorIs(err, ErrForbidden)
	_, err = s.svc.Get(s.ctx, customer, 999)
	s.ErrorIs(err, repo.ErrNotFound)
}

func (s *OrderServiceSuite) TestList_ClampsPageSize() {
	s.create(OrderLine{ProductID: 1, Qty: 1})
	s.create(OrderLine{ProductID: 1, Qty: 1})

	orders, total, err := s.svc.List(s.ctx, models.OrderFilter{Limit: 5000})
	s.Require().NoError(err)
	s.Equal(2, total)
	s.Len(orders, 2)

	bad := models.OrderStatus("Lost")
	_, _, err = s.svc.List(s.ctx, models.OrderFilter{Status: &bad})
	var verr *ValidationError
	s.ErrorAs(err, &verr)

	mine, err := s.svc.ListMine(s.ctx, customerID)
	s.Require().NoError(err)
	s.Len(mine, 2)
}

func (s *OrderServiceSuite) TestFulfilmentFlow() {
	o := s.create(OrderLine{ProductID: 1, Qty: 1})

	_, err := s.svc.UpdateStatus(s.ctx, o.ID, StatusUpdate{Status: models.OrderProcessing})
	s.ErrorIs(err, orderstate.ErrPaymentRequired, "unpaid paystack orders cannot be processed")

	_, err = markOrderPaid(s.ctx, s.orders, o, time.Now(), "PSK-ref")
	s.Require().NoError(err)

	_, err = s.svc.UpdateStatus(s.ctx, o.ID, StatusUpdate{Status: models.OrderDelivered})
	s.ErrorIs(err, orderstate.ErrInvalidTransition, "cannot skip Shipped")

	shipped, err := s.svc.UpdateStatus(s.ctx, o.ID, StatusUpdate{Status: models.OrderShipped, TrackingNumber: " GIG-123 "})
	s.Require().NoError(err)
	s.Equal(models.OrderShipped, shipped.Status)
	s.Equal("GIG-123", *shipped.TrackingNumber)

	_, err = s.svc.Cancel(s.ctx, customer, o.ID, "changed my mind")
	s.ErrorIs(err, orderstate.ErrInvalidTransition, "shipped orders cannot be cancelled")

	delivered, err := s.svc.UpdateStatus(s.ctx, o.ID, StatusUpdate{Status: models.OrderDelivered})
	s.Require().NoError(err)
	s.NotNil(delivered.DeliveredAt)

	_, err = s.svc.Cancel(s.ctx, admin, o.ID, "too late")
	s.ErrorIs(err, orderstate.ErrInvalidTransition, "delivered orders cannot be cancelled")

	_, err = s.svc.ConfirmDelivery(s.ctx, admin, o.ID)
	s.ErrorIs(err, ErrForbidden, "only the buyer confirms delivery")

	confirmed, err := s.svc.ConfirmDelivery(s.ctx, customer, o.ID)
	s.Require().NoError(err)
	s.NotNil(confirmed.DeliveryConfirmedAt)

	_, err = s.svc.ConfirmDelivery(s.ctx, customer, o.ID)
	s.ErrorIs(err, orderstate.ErrInvalidTransition)
}

func (s *OrderServiceSuite) TestCancel() {
	o := s.create(OrderLine{ProductID: 1, Qty: 1})

	_, err := s.svc.Cancel(s.ctx, customer, o.ID, "   ")
	s.ErrorIs(err, orderstate.ErrReasonRequired)

	_, err = s.svc.Cancel(s.ctx, stranger, o.ID, "not mine")
	s.ErrorIs(err, ErrForbidden)

	cancelled, err := s.svc.Cancel(s.ctx, customer, o.ID, " wrong size ")
	s.Require().NoError(err)
	s.Equal(models.OrderCancelled, cancelled.Status)
	s.Equal("wrong size", *cancelled.CancelReason)
	s.NotNil(cancelled.CancelledAt)

	_, err = s.svc.UpdateStatus(s.ctx, o.ID, StatusUpdate{Status: models.OrderProcessing})
	s.ErrorIs(err, orderstate.ErrInvalidTransition)
}

func (s *OrderServiceSuite) TestUpdateStatus_Validation() {
	o := s.create(OrderLine{ProductID: 1, Qty: 1})

	_, err := s.svc.UpdateStatus(s.ctx, o.ID, StatusUpdate{Status: "Teleported"})
	var verr *ValidationError
	s.ErrorAs(err, &verr)

	_, err = s.svc.UpdateStatus(s.ctx, o.ID, StatusUpdate{Status: models.OrderPending})
	s.ErrorIs(err, orderstate.ErrInvalidTransition)

	_, err = s.svc.UpdateStatus(s.ctx, o.ID, StatusUpdate{Status: models.OrderCancelled})
	s.ErrorIs(err, orderstate.ErrReasonRequired)
}

func (s *OrderServiceSuite) TestMarkPaidManually() {
	paystackOrder := s.create(OrderLine{ProductID: 1, Qty: 1})
	_, err := s.svc.MarkPaidManually(s.ctx, paystackOrder.ID)
	var verr *ValidationError
	s.ErrorAs(err, &verr)

	cod, err := s.svc.Create(s.ctx, CreateOrderInput{
		UserID:          customerID,
		Items:           []OrderLine{{ProductID: 1, Qty: 2}},
		ShippingAddress: lagosAddress(),
		PaymentMethod:   models.PaymentMethodCashOnDelivery,
	})
	s.Require().NoError(err)

	_, err = s.svc.UpdateStatus(s.ctx, cod.ID, StatusUpdate{Status: models.OrderProcessing})
	s.Require().NoError(err, "cash on delivery ships before payment")
	_, err = s.svc.UpdateStatus(s.ctx, cod.ID, StatusUpdate{Status: models.OrderShipped})
	s.Require().NoError(err)
	_, err = s.svc.UpdateStatus(s.ctx, cod.ID, StatusUpdate{Status: models.OrderDelivered})
	s.Require().NoError(err)

	paid, err := s.svc.MarkPaidManually(s.ctx, cod.ID)
	s.Require().NoError(err)
	s.True(paid.IsPaid)
	s.Equal(models.OrderDelivered, paid.Status)
	s.Equal(3, s.products.stock(1), "stock leaves with payment")

	_, err = s.svc.MarkPaidManually(s.ctx, cod.ID)
	s.ErrorIs(err, orderstate.ErrAlreadyPaid)
}
