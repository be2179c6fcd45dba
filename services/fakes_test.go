package services_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dev-maui0806/e-siremart-backend/models"
	"github.com/dev-maui0806/e-siremart-backend/providers"
	"github.com/dev-maui0806/e-siremart-backend/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---- in-memory store implementing repository.UnitOfWork ----

type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	orders   map[uuid.UUID]models.Order
	carts    map[uuid.UUID][]models.CartItem
	products map[uuid.UUID]*models.Product
	payables map[string]models.Payable
	users    map[uuid.UUID]models.User
	shops    map[uuid.UUID]models.Shop
	seq      int

	clearErr  error
	updateErr error
}

func newMemStore() *memStore {
	return &memStore{
		orders:   map[uuid.UUID]models.Order{},
		carts:    map[uuid.UUID][]models.CartItem{},
		products: map[uuid.UUID]*models.Product{},
		payables: map[string]models.Payable{},
		users:    map[uuid.UUID]models.User{},
		shops:    map[uuid.UUID]models.Shop{},
	}
}

type memState struct {
	orders   map[uuid.UUID]models.Order
	carts    map[uuid.UUID][]models.CartItem
	payables map[string]models.Payable
}

func (s *memStore) save() memState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := memState{
		orders:   make(map[uuid.UUID]models.Order, len(s.orders)),
		carts:    make(map[uuid.UUID][]models.CartItem, len(s.carts)),
		payables: make(map[string]models.Payable, len(s.payables)),
	}
	for k, v := range s.orders {
		st.orders[k] = cloneOrder(v)
	}
	for k, v := range s.carts {
		st.carts[k] = append([]models.CartItem(nil), v...)
	}
	for k, v := range s.payables {
		st.payables[k] = v
	}
	return st
}

func (s *memStore) restore(st memState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders, s.carts, s.payables = st.orders, st.carts, st.payables
}

func (s *memStore) Do(_ context.Context, fn func(repository.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	st := s.save()
	if err := fn(s.Repos()); err != nil {
		s.restore(st)
		return err
	}
	return nil
}

func (s *memStore) Repos() repository.Repositories {
	return repository.Repositories{
		Orders:    memOrders{s},
		Carts:     memCarts{s},
		Payables:  memPayables{s},
		Directory: memDirectory{s},
	}
}

func cloneOrder(o models.Order) models.Order {
	o.Items = append([]models.OrderItem(nil), o.Items...)
	if o.PaymentDetails != nil {
		d := *o.PaymentDetails
		o.PaymentDetails = &d
	}
	if o.DeliveryPersonID != nil {
		id := *o.DeliveryPersonID
		o.DeliveryPersonID = &id
	}
	return o
}

// seeding helpers

func (s *memStore) addShop(ownerID uuid.UUID) models.Shop {
	shop := models.Shop{ID: uuid.New(), Name: "shop", OwnerID: ownerID}
	s.shops[shop.ID] = shop
	s.users[ownerID] = models.User{ID: ownerID, Email: ownerID.String() + "@shop.test", Role: models.RoleShopOwner}
	return shop
}

func (s *memStore) addProduct(shop models.Shop, name, price string, stock int) *models.Product {
	p := &models.Product{
		ID:       uuid.New(),
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Quantity: stock,
		ShopID:   shop.ID,
		OwnerID:  shop.OwnerID,
	}
	s.products[p.ID] = p
	return p
}

func (s *memStore) addToCart(userID uuid.UUID, p *models.Product, qty int) {
	s.carts[userID] = append(s.carts[userID], models.CartItem{ID: uuid.New(), ProductID: p.ID, Quantity: qty})
}

func (s *memStore) cartSize(userID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.carts[userID])
}

func (s *memStore) allOrders() []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, cloneOrder(o))
	}
	return out
}

func (s *memStore) order(id uuid.UUID) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneOrder(s.orders[id])
}

func (s *memStore) putOrder(o models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = cloneOrder(o)
}

func (s *memStore) payable(ref string) (models.Payable, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payables[ref]
	return p, ok
}

// ---- orders ----

type memOrders struct{ s *memStore }

func (r memOrders) duplicate(o *models.Order) bool {
	if o.ProviderOrderID == nil {
		return false
	}
	for _, existing := range r.s.orders {
		if existing.ProviderOrderID != nil && *existing.ProviderOrderID == *o.ProviderOrderID && existing.ShopID == o.ShopID {
			return true
		}
	}
	return false
}

func (r memOrders) insert(o *models.Order) {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	r.s.seq++
	o.CreatedAt = time.Unix(int64(r.s.seq), 0)
	o.UpdatedAt = o.CreatedAt
	r.s.orders[o.ID] = cloneOrder(*o)
}

func (r memOrders) Create(_ context.Context, o *models.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.duplicate(o) {
		return repository.ErrConflict
	}
	r.insert(o)
	return nil
}

func (r memOrders) CreateIfAbsent(_ context.Context, o *models.Order) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.duplicate(o) {
		return false, nil
	}
	r.insert(o)
	return true, nil
}

func (r memOrders) FindByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := cloneOrder(o)
	return &c, nil
}

func (r memOrders) FindByIDs(_ context.Context, ids []uuid.UUID) ([]models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Order
	for _, id := range ids {
		if o, ok := r.s.orders[id]; ok {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

func (r memOrders) FindByProviderOrderID(_ context.Context, ref string) ([]models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Order
	for _, o := range r.s.orders {
		if o.ProviderOrderID != nil && *o.ProviderOrderID == ref {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r memOrders) UpdateGuarded(_ context.Context, o *models.Order, expected models.OrderStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.updateErr != nil {
		return r.s.updateErr
	}
	stored, ok := r.s.orders[o.ID]
	if !ok || stored.Status != expected {
		return repository.ErrStaleWrite
	}
	stored.Status = o.Status
	stored.DeliveryPersonID = o.DeliveryPersonID
	stored.PaymentDetails = o.PaymentDetails
	stored.Feedback = o.Feedback
	stored.UpdatedAt = o.UpdatedAt
	r.s.orders[o.ID] = cloneOrder(stored)
	return nil
}

func matches(f repository.OrderFilter, o models.Order) bool {
	if f.CustomerID != nil && o.CustomerID != *f.CustomerID {
		return false
	}
	if f.ShopID != nil && o.ShopID != *f.ShopID {
		return false
	}
	if f.DeliveryPersonID != nil && (o.DeliveryPersonID == nil || *o.DeliveryPersonID != *f.DeliveryPersonID) {
		return false
	}
	return true
}

func (r memOrders) List(_ context.Context, f repository.OrderFilter, page, limit int) ([]models.Order, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Order
	for _, o := range r.s.orders {
		if matches(f, o) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := int64(len(out))
	start := (page - 1) * limit
	if start > len(out) {
		start = len(out)
	}
	end := start + limit
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

func (r memOrders) CountByStatus(_ context.Context, f repository.OrderFilter) (map[models.OrderStatus]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := map[models.OrderStatus]int64{}
	for _, o := range r.s.orders {
		if matches(f, o) {
			out[o.Status]++
		}
	}
	return out, nil
}

func (r memOrders) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.orders, id)
	return nil
}

// ---- carts ----

type memCarts struct{ s *memStore }

func (r memCarts) FindByUserID(_ context.Context, userID uuid.UUID) (*models.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	items, ok := r.s.carts[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cart := &models.Cart{ID: uuid.New(), UserID: userID}
	for _, it := range items {
		if p, ok := r.s.products[it.ProductID]; ok {
			cp := *p
			it.Product = &cp
		}
		cart.Items = append(cart.Items, it)
	}
	return cart, nil
}

func (r memCarts) Clear(_ context.Context, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.clearErr != nil {
		return r.s.clearErr
	}
	if _, ok := r.s.carts[userID]; ok {
		r.s.carts[userID] = nil
	}
	return nil
}

// ---- payables ----

type memPayables struct{ s *memStore }

func (r memPayables) Create(_ context.Context, p *models.Payable) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.payables[p.ProviderRef]; ok {
		return repository.ErrConflict
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.s.payables[p.ProviderRef] = *p
	return nil
}

func (r memPayables) FindByProviderRef(_ context.Context, ref string) (*models.Payable, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payables[ref]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r memPayables) LockByProviderRef(ctx context.Context, ref string) (*models.Payable, error) {
	return r.FindByProviderRef(ctx, ref)
}

func (r memPayables) MarkCompleted(_ context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for ref, p := range r.s.payables {
		if p.ID == id {
			if p.Status != models.PayableStatusPending {
				return repository.ErrStaleWrite
			}
			p.Status = models.PayableStatusCompleted
			p.CompletedAt = &at
			r.s.payables[ref] = p
			return nil
		}
	}
	return repository.ErrNotFound
}

// ---- directory ----

type memDirectory struct{ s *memStore }

func (r memDirectory) FindUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r memDirectory) FindUserByEmail(_ context.Context, email string, role models.Role) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email && u.Role == role {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memDirectory) FindShopByOwner(_ context.Context, ownerID uuid.UUID) (*models.Shop, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sh := range r.s.shops {
		if sh.OwnerID == ownerID {
			return &sh, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memDirectory) FindShopByID(_ context.Context, id uuid.UUID) (*models.Shop, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sh, ok := r.s.shops[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sh, nil
}

// ---- payment gateway ----

type refundCall struct {
	paymentID string
	amount    int64
	key       string
}

type fakeGateway struct {
	name   string
	secret string

	mu         sync.Mutex
	seq        int
	failOnCall int
	createErr  error
	requests   []providers.PayableRequest

	status      *providers.PayableStatus
	retrieveErr error

	event      *providers.WebhookEvent
	webhookErr error

	refundErr error
	refunds   []refundCall
}

func newFakeGateway(name string) *fakeGateway {
	return &fakeGateway{name: name, secret: "test_secret"}
}

func (g *fakeGateway) Name() string { return g.name }

func (g *fakeGateway) CreatePayable(_ context.Context, req providers.PayableRequest) (*providers.ProviderRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	g.requests = append(g.requests, req)
	if g.createErr != nil && (g.failOnCall == 0 || g.failOnCall == g.seq) {
		return nil, g.createErr
	}
	return &providers.ProviderRef{
		Provider:    g.name,
		ID:          fmt.Sprintf("ord_%d", g.seq),
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
	}, nil
}

func (g *fakeGateway) RetrievePayable(_ context.Context, id string) (*providers.PayableStatus, error) {
	if g.retrieveErr != nil {
		return nil, g.retrieveErr
	}
	if g.status != nil {
		st := *g.status
		return &st, nil
	}
	return nil, errors.New("unknown session " + id)
}

func (g *fakeGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return providers.VerifyHMAC(g.secret, []byte(orderID+"|"+paymentID), signature)
}

func (g *fakeGateway) VerifyWebhook(_ []byte, header string) (*providers.WebhookEvent, error) {
	if header != "valid" {
		return nil, providers.ErrInvalidSignature
	}
	if g.webhookErr != nil {
		return nil, g.webhookErr
	}
	evt := *g.event
	return &evt, nil
}

func (g *fakeGateway) Refund(_ context.Context, paymentID string, amount int64, _ string, key string) (*providers.RefundRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refunds = append(g.refunds, refundCall{paymentID: paymentID, amount: amount, key: key})
	return &providers.RefundRef{ID: fmt.Sprintf("rfnd_%d", len(g.refunds)), Status: "processed"}, nil
}

// ---- idempotency store ----

type memIdempotency struct {
	mu     sync.Mutex
	data   map[string]string
	setErr error
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{data: map[string]string{}}
}

func (m *memIdempotency) Claim(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value
	return true, nil
}

func (m *memIdempotency) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memIdempotency) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func (m *memIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// ---- notifier ----

type recordingNotifier struct {
	mu      sync.Mutex
	placed  []models.Order
	changes []models.OrderStatus
	alerts  []models.ReconciliationAlert
}

func (n *recordingNotifier) OrdersPlaced(_ context.Context, orders []models.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.placed = append(n.placed, orders...)
}

func (n *recordingNotifier) StatusChanged(_ context.Context, o *models.Order, _ models.OrderStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, o.Status)
}

func (n *recordingNotifier) ReconciliationAlert(_ context.Context, a models.ReconciliationAlert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
}
