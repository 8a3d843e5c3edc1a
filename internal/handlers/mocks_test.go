package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/01moynul/storefront-api/internal/auth"
	"github.com/01moynul/storefront-api/internal/middleware"
	"github.com/01moynul/storefront-api/internal/models"
	"github.com/01moynul/storefront-api/internal/paystack"
	"github.com/01moynul/storefront-api/internal/pricing"
	"github.com/01moynul/storefront-api/internal/repo"
	"github.com/01moynul/storefront-api/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var errNotStubbed = errors.New("not stubbed")

// --- Services ---

type mockOrders struct {
	create           func(service.CreateOrderInput) (*models.Order, error)
	get              func(service.Actor, int64) (*models.Order, error)
	listMine         func(int64) ([]models.Order, error)
	list             func(models.OrderFilter) ([]models.Order, int, error)
	updateStatus     func(int64, service.StatusUpdate) (*models.Order, error)
	cancel           func(service.Actor, int64, string) (*models.Order, error)
	confirmDelivery  func(service.Actor, int64) (*models.Order, error)
	markPaidManually func(int64) (*models.Order, error)
}

func (m *mockOrders) Create(_ context.Context, in service.CreateOrderInput) (*models.Order, error) {
	if m.create == nil {
		return nil, errNotStubbed
	}
	return m.create(in)
}

func (m *mockOrders) Get(_ context.Context, a service.Actor, id int64) (*models.Order, error) {
	if m.get == nil {
		return nil, errNotStubbed
	}
	return m.get(a, id)
}

func (m *mockOrders) ListMine(_ context.Context, userID int64) ([]models.Order, error) {
	if m.listMine == nil {
		return nil, errNotStubbed
	}
	return m.listMine(userID)
}

func (m *mockOrders) List(_ context.Context, f models.OrderFilter) ([]models.Order, int, error) {
	if m.list == nil {
		return nil, 0, errNotStubbed
	}
	return m.list(f)
}

func (m *mockOrders) UpdateStatus(_ context.Context, id int64, u service.StatusUpdate) (*models.Order, error) {
	if m.updateStatus == nil {
		return nil, errNotStubbed
	}
	return m.updateStatus(id, u)
}

func (m *mockOrders) Cancel(_ context.Context, a service.Actor, id int64, reason string) (*models.Order, error) {
	if m.cancel == nil {
		return nil, errNotStubbed
	}
	return m.cancel(a, id, reason)
}

func (m *mockOrders) ConfirmDelivery(_ context.Context, a service.Actor, id int64) (*models.Order, error) {
	if m.confirmDelivery == nil {
		return nil, errNotStubbed
	}
	return m.confirmDelivery(a, id)
}

func (m *mockOrders) MarkPaidManually(_ context.Context, id int64) (*models.Order, error) {
	if m.markPaidManually == nil {
		return nil, errNotStubbed
	}
	return m.markPaidManually(id)
}

type mockPayments struct {
	initialize func(service.Actor, int64, string) (*paystack.Session, error)
	retry      func(service.Actor, int64, string) (*paystack.Session, error)
	verify     func(service.Actor, string) (*service.Settlement, error)
	payOrder   func(service.Actor, int64, string) (*service.Settlement, error)
}

func (m *mockPayments) Initialize(_ context.Context, a service.Actor, orderID int64, email string) (*paystack.Session, error) {
	if m.initialize == nil {
		return nil, errNotStubbed
	}
	return m.initialize(a, orderID, email)
}

func (m *mockPayments) Retry(_ context.Context, a service.Actor, orderID int64, email string) (*paystack.Session, error) {
	if m.retry == nil {
		return nil, errNotStubbed
	}
	return m.retry(a, orderID, email)
}

func (m *mockPayments) Verify(_ context.Context, a service.Actor, reference string) (*service.Settlement, error) {
	if m.verify == nil {
		return nil, errNotStubbed
	}
	return m.verify(a, reference)
}

func (m *mockPayments) PayOrder(_ context.Context, a service.Actor, orderID int64, reference string) (*service.Settlement, error) {
	if m.payOrder == nil {
		return nil, errNotStubbed
	}
	return m.payOrder(a, orderID, reference)
}

func (m *mockPayments) ApplyCharge(context.Context, *paystack.Transaction) (*service.Settlement, error) {
	return nil, errNotStubbed
}

type mockWebhooks struct {
	handle func(context.Context, []byte) (service.WebhookOutcome, error)
}

func (m *mockWebhooks) Handle(ctx context.Context, body []byte) (service.WebhookOutcome, error) {
	if m.handle == nil {
		return service.WebhookOutcome{}, errNotStubbed
	}
	return m.handle(ctx, body)
}

// --- Repositories ---

type memUsers struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*models.User
}

func newMemUsers(users ...*models.User) *memUsers {
	m := &memUsers{byID: map[int64]*models.User{}}
	for _, u := range users {
		m.byID[u.ID] = u
		if u.ID > m.nextID {
			m.nextID = u.ID
		}
	}
	return m
}

func (m *memUsers) Create(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.Email = strings.ToLower(u.Email)
	for _, existing := range m.byID {
		if existing.Email == u.Email {
			return repo.ErrDuplicate
		}
	}
	m.nextID++
	u.ID = m.nextID
	m.byID[u.ID] = u
	return nil
}

func (m *memUsers) FindByID(_ context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, repo.ErrNotFound
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == strings.ToLower(email) {
			return u, nil
		}
	}
	return nil, repo.ErrNotFound
}

type memProducts struct {
	bySlug map[string]*models.Product
	nextID int64
}

func newMemProducts() *memProducts { return &memProducts{bySlug: map[string]*models.Product{}} }

func (m *memProducts) Create(_ context.Context, p *models.Product) error {
	if _, taken := m.bySlug[p.Slug]; taken {
		return repo.ErrDuplicate
	}
	m.nextID++
	p.ID = m.nextID
	cp := *p
	m.bySlug[p.Slug] = &cp
	return nil
}

func (m *memProducts) FindByID(_ context.Context, id int64) (*models.Product, error) {
	for _, p := range m.bySlug {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memProducts) FindBySlug(_ context.Context, slug string) (*models.Product, error) {
	if p, ok := m.bySlug[slug]; ok {
		return p, nil
	}
	return nil, repo.ErrNotFound
}

func (m *memProducts) FindByIDs(context.Context, []int64) (map[int64]*models.Product, error) {
	return nil, errNotStubbed
}

func (m *memProducts) List(_ context.Context, category string, limit, offset int) ([]models.Product, int, error) {
	var out []models.Product
	for _, p := range m.bySlug {
		if category == "" || p.Category == category {
			out = append(out, *p)
		}
	}
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return out[offset:end], total, nil
}

type memCarts struct {
	carts map[int64]*models.SavedCart
}

func (m *memCarts) Get(_ context.Context, userID int64) (*models.SavedCart, error) {
	if c, ok := m.carts[userID]; ok {
		return c, nil
	}
	return nil, repo.ErrNotFound
}

func (m *memCarts) Save(_ context.Context, c *models.SavedCart) error {
	m.carts[c.UserID] = c
	return nil
}

func (m *memCarts) Delete(_ context.Context, userID int64) error {
	delete(m.carts, userID)
	return nil
}

type stubStats struct {
	stats    *models.DashboardStats
	lowStock int
}

func (s *stubStats) Dashboard(_ context.Context, lowStockBelow int) (*models.DashboardStats, error) {
	s.lowStock = lowStockBelow
	return s.stats, nil
}

// --- Harness ---

const webhookSecret = "sk_test_webhook"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandlers() *Handlers {
	return &Handlers{
		Orders:         &mockOrders{},
		Payments:       &mockPayments{},
		Webhooks:       &mockWebhooks{},
		Users:          newMemUsers(),
		Products:       newMemProducts(),
		Carts:          &memCarts{carts: map[int64]*models.SavedCart{}},
		Stats:          &stubStats{},
		Pricing:        pricing.NewCalculator(pricing.DefaultRates(), pricing.DefaultPromoCatalog()),
		Tokens:         auth.NewTokenManager("jwt-secret", time.Hour),
		Log:            discardLogger(),
		WebhookSecret:  webhookSecret,
		WebhookTimeout: time.Second,
		WebhookMaxBody: 1 << 16,
		MaxUploadSize:  1 << 20,
	}
}

// as stands in for AuthMiddleware.
func as(userID int64, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserID, userID)
		c.Set(middleware.ContextRole, role)
		c.Next()
	}
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}
