package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/01moynul/storefront-api/internal/models"
	"github.com/01moynul/storefront-api/internal/paystack"
	"github.com/01moynul/storefront-api/internal/repo"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type memProducts struct {
	mu    sync.Mutex
	byID  map[int64]*models.Product
	maxID int64
}

func newMemProducts(ps ...models.Product) *memProducts {
	m := &memProducts{byID: map[int64]*models.Product{}}
	for i := range ps {
		p := ps[i]
		m.byID[p.ID] = &p
		if p.ID > m.maxID {
			m.maxID = p.ID
		}
	}
	return m
}

func (m *memProducts) Create(_ context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Slug == p.Slug {
			return repo.ErrDuplicate
		}
	}
	m.maxID++
	p.ID = m.maxID
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *memProducts) FindByID(_ context.Context, id int64) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProducts) FindBySlug(_ context.Context, slug string) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.Slug == slug {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memProducts) FindByIDs(_ context.Context, ids []int64) (map[int64]*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[int64]*models.Product{}
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (m *memProducts) List(_ context.Context, category string, limit, offset int) ([]models.Product, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Product
	for _, p := range m.byID {
		if category == "" || p.Category == category {
			out = append(out, *p)
		}
	}
	return out, len(out), nil
}

func (m *memProducts) stock(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id].CountInStock
}

type memOrders struct {
	mu       sync.Mutex
	byID     map[int64]*models.Order
	products *memProducts
	nextID   int64
	markPaid int
}

func newMemOrders(products *memProducts) *memOrders {
	return &memOrders{byID: map[int64]*models.Order{}, products: products}
}

func cloneOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	return &cp
}

func (m *memOrders) put(o models.Order) *models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == 0 {
		m.nextID++
		o.ID = m.nextID
	}
	if o.ID > m.nextID {
		m.nextID = o.ID
	}
	m.byID[o.ID] = cloneOrder(&o)
	return cloneOrder(&o)
}

func (m *memOrders) get(id int64) *models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneOrder(m.byID[id])
}

func (m *memOrders) Create(_ context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	o.ID = m.nextID
	o.CreatedAt = time.Now()
	m.byID[o.ID] = cloneOrder(o)
	return nil
}

func (m *memOrders) FindByID(_ context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *memOrders) ListByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	out, _, err := m.List(ctx, models.OrderFilter{UserID: &userID})
	return out, err
}

func (m *memOrders) List(_ context.Context, f models.OrderFilter) ([]models.Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for id := int64(1); id <= m.nextID; id++ {
		o, ok := m.byID[id]
		if !ok {
			continue
		}
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		if f.IsPaid != nil && o.IsPaid != *f.IsPaid {
			continue
		}
		out = append(out, *cloneOrder(o))
	}
	return out, len(out), nil
}

func (m *memOrders) MarkPaid(_ context.Context, id int64, from, to models.OrderStatus, paidAt time.Time, reference string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok || o.IsPaid || o.Status != from {
		return false, nil
	}
	m.markPaid++
	o.IsPaid, o.PaidAt, o.Status = true, &paidAt, to
	if reference != "" {
		o.PaymentReference = &reference
	}
	if m.products != nil {
		m.products.mu.Lock()
		for _, it := range o.Items {
			if p, ok := m.products.byID[it.ProductID]; ok {
				p.CountInStock = max(p.CountInStock-it.Qty, 0)
			}
		}
		m.products.mu.Unlock()
	}
	return true, nil
}

func (m *memOrders) UpdateLifecycle(_ context.Context, o *models.Order, from models.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[o.ID]
	if !ok || cur.Status != from {
		return repo.ErrConflict
	}
	m.byID[o.ID] = cloneOrder(o)
	return nil
}

type memPayments struct {
	mu    sync.Mutex
	byRef map[string]*models.Payment
	order []string
}

func newMemPayments() *memPayments {
	return &memPayments{byRef: map[string]*models.Payment{}}
}

func (m *memPayments) Create(_ context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byRef[p.Reference]; ok {
		return repo.ErrDuplicate
	}
	p.ID = int64(len(m.order) + 1)
	cp := *p
	m.byRef[p.Reference] = &cp
	m.order = append(m.order, p.Reference)
	return nil
}

func (m *memPayments) FindByReference(_ context.Context, ref string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byRef[ref]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPayments) ListByOrder(_ context.Context, orderID int64) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for _, ref := range m.order {
		if p := m.byRef[ref]; p.OrderID == orderID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memPayments) UpdateStatus(_ context.Context, ref string, u repo.PaymentUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byRef[ref]
	if !ok {
		return repo.ErrNotFound
	}
	p.Status = u.Status
	if u.Channel != "" {
		p.Channel = &u.Channel
	}
	if u.GatewayResponse != "" {
		p.GatewayResponse = &u.GatewayResponse
	}
	if u.PaidAt != nil {
		p.PaidAt = u.PaidAt
	}
	return nil
}

func (m *memPayments) AbandonPending(_ context.Context, orderID int64, keep string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for ref, p := range m.byRef {
		if p.OrderID == orderID && p.Status == models.PaymentPending && ref != keep {
			p.Status = models.PaymentAbandoned
			n++
		}
	}
	return n, nil
}

func (m *memPayments) status(ref string) models.PaymentStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byRef[ref].Status
}

type memCarts struct {
	mu      sync.Mutex
	carts   map[int64]*models.SavedCart
	deleted []int64
}

func newMemCarts() *memCarts {
	return &memCarts{carts: map[int64]*models.SavedCart{}}
}

func (m *memCarts) Get(_ context.Context, userID int64) (*models.SavedCart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCarts) Save(_ context.Context, c *models.SavedCart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.carts[c.UserID] = &cp
	return nil
}

func (m *memCarts) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, userID)
	m.deleted = append(m.deleted, userID)
	return nil
}

type memEvents struct {
	mu   sync.Mutex
	keys map[string]models.WebhookEvent
}

func newMemEvents() *memEvents {
	return &memEvents{keys: map[string]models.WebhookEvent{}}
}

func (m *memEvents) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[key]
	return ok, nil
}

func (m *memEvents) Record(_ context.Context, e *models.WebhookEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[e.EventKey]; ok {
		return false, nil
	}
	m.keys[e.EventKey] = *e
	return true, nil
}

// fakeGateway answers from func fields; nil fields fall back to defaults.
type fakeGateway struct {
	client       *paystack.Client
	initializeFn func(ctx context.Context, req paystack.InitializeRequest) (*paystack.Session, error)
	verifyFn     func(ctx context.Context, ref string) (*paystack.Transaction, error)
	initialized  []paystack.InitializeRequest
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{client: paystack.NewClient(paystack.Config{SecretKey: "sk_test"})}
}

func (g *fakeGateway) ValidateInitialize(req paystack.InitializeRequest) error {
	return g.client.ValidateInitialize(req)
}

func (g *fakeGateway) Initialize(ctx context.Context, req paystack.InitializeRequest) (*paystack.Session, error) {
	g.initialized = append(g.initialized, req)
	if g.initializeFn != nil {
		return g.initializeFn(ctx, req)
	}
	return &paystack.Session{
		Reference:        req.Reference,
		AuthorizationURL: "https://checkout.paystack.com/" + req.Reference,
		AccessCode:       "ac_" + req.Reference,
		PublicKey:        "pk_test",
	}, nil
}

func (g *fakeGateway) Verify(ctx context.Context, ref string) (*paystack.Transaction, error) {
	if g.verifyFn != nil {
		return g.verifyFn(ctx, ref)
	}
	return nil, &paystack.Error{Kind: paystack.KindNotFound, Message: "transaction not found"}
}

func successTx(ref string, orderID, kobo int64) *paystack.Transaction {
	paid := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	return &paystack.Transaction{
		ID:              99,
		Reference:       ref,
		Status:          "success",
		Amount:          kobo,
		Currency:        "NGN",
		Channel:         "card",
		GatewayResponse: "Approved",
		PaidAt:          &paid,
		OrderID:         orderID,
	}
}
