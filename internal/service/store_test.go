package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/apperrors"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/config"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/models"
	"github.com/tm-acme-shop/acme-shop-storefront-orders/internal/repository"
)

// memState is the data behind memStore. It is copied before each
// transaction and restored when the transaction fails.
type memState struct {
	orders     map[int64]models.Order
	items      []models.LineItem
	outbox     []models.OutboxMessage
	webhooks   map[string]models.ProcessedWebhookEvent
	nextOrder  int64
	nextItem   int64
	nextOutbox int64
}

func (s memState) clone() memState {
	c := s
	c.orders = make(map[int64]models.Order, len(s.orders))
	for k, v := range s.orders {
		c.orders[k] = v
	}
	c.items = append([]models.LineItem(nil), s.items...)
	c.outbox = append([]models.OutboxMessage(nil), s.outbox...)
	c.webhooks = make(map[string]models.ProcessedWebhookEvent, len(s.webhooks))
	for k, v := range s.webhooks {
		c.webhooks[k] = v
	}
	return c
}

// memStore is an in-memory repository.Store. Transactions are serialised.
type memStore struct {
	txMu     sync.Mutex
	mu       sync.Mutex
	state    memState
	products map[int64]decimal.Decimal

	priceLookups int
	failOutbox   error
	now          func() time.Time

	// afterRead runs once, after the next non-locking order read.
	afterRead func(id int64)
}

var _ repository.Store = (*memStore)(nil)

func newMemStore(prices map[int64]string) *memStore {
	products := make(map[int64]decimal.Decimal, len(prices))
	for id, p := range prices {
		products[id] = decimal.RequireFromString(p)
	}
	return &memStore{
		state: memState{
			orders:   map[int64]models.Order{},
			webhooks: map[string]models.ProcessedWebhookEvent{},
		},
		products: products,
		now:      time.Now,
	}
}

func (s *memStore) Orders() repository.OrderRepository               { return memOrders{s} }
func (s *memStore) LineItems() repository.LineItemRepository         { return memLineItems{s} }
func (s *memStore) Products() repository.ProductRepository           { return memProducts{s} }
func (s *memStore) Outbox() repository.OutboxRepository              { return memOutbox{s} }
func (s *memStore) WebhookEvents() repository.WebhookEventRepository { return memWebhookEvents{s} }

func (s *memStore) WithinTransaction(ctx context.Context, fn func(uow repository.UnitOfWork) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.state.clone()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.state = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) order(id int64) (models.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.state.orders[id]
	return o, ok
}

func (s *memStore) itemsOf(orderID int64) []models.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LineItem
	for _, it := range s.state.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out
}

func (s *memStore) outboxTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.state.outbox))
	for _, m := range s.state.outbox {
		out = append(out, m.EventType)
	}
	return out
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.orders)
}

func (s *memStore) seedOrder(o models.Order) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.nextOrder++
	o.ID = s.state.nextOrder
	if o.PaymentStatus == "" {
		o.PaymentStatus = models.PaymentStatusPending
	}
	o.LineItems = nil
	s.state.orders[o.ID] = o
	return o.ID
}

type memOrders struct{ s *memStore }

func (r memOrders) Insert(ctx context.Context, fields models.OrderFields, totalCents int64, currency string) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.state.nextOrder++
	now := r.s.now()
	o := models.Order{
		ID:              r.s.state.nextOrder,
		OrderFields:     fields,
		TotalPriceCents: totalCents,
		Currency:        currency,
		PaymentStatus:   models.PaymentStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	r.s.state.orders[o.ID] = o
	o.LineItems = []models.LineItem{}
	return &o, nil
}

func (r memOrders) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	r.s.mu.Lock()
	hook := r.s.afterRead
	r.s.afterRead = nil
	r.s.mu.Unlock()

	o, err := r.get(id)
	if err == nil && hook != nil {
		hook(id)
	}
	return o, err
}

func (r memOrders) GetByIDForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return r.get(id)
}

func (r memOrders) get(id int64) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.state.orders[id]
	if !ok {
		return nil, apperrors.NotFound("order %d not found", id)
	}
	o.LineItems = []models.LineItem{}
	return &o, nil
}

func (r memOrders) List(ctx context.Context, filter models.ListFilter) ([]*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := make([]int64, 0, len(r.s.state.orders))
	for id := range r.s.state.orders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	out := []*models.Order{}
	for i, id := range ids {
		if i < filter.Offset {
			continue
		}
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
		o := r.s.state.orders[id]
		out = append(out, &o)
	}
	return out, nil
}

func (r memOrders) UpdateFields(ctx context.Context, id int64, update models.OrderFieldsUpdate) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.state.orders[id]
	if !ok {
		return nil, apperrors.NotFound("order %d not found", id)
	}
	if !update.IsEmpty() {
		update.Apply(&o.OrderFields)
		o.UpdatedAt = r.s.now()
		r.s.state.orders[id] = o
	}
	return &o, nil
}

func (r memOrders) SetTotalPrice(ctx context.Context, id int64, totalCents int64) error {
	return r.mutate(id, func(o *models.Order) { o.TotalPriceCents = totalCents })
}

func (r memOrders) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.state.orders[id]; !ok {
		return apperrors.NotFound("order %d not found", id)
	}
	for _, it := range r.s.state.items {
		if it.OrderID == id {
			return apperrors.Conflict("order %d still has line items", id)
		}
	}
	delete(r.s.state.orders, id)
	return nil
}

func (r memOrders) TransitionPaymentStatus(ctx context.Context, id int64, from, to models.PaymentStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.state.orders[id]
	if !ok || o.PaymentStatus != from {
		return false, nil
	}
	o.PaymentStatus = to
	r.s.state.orders[id] = o
	return true, nil
}

func (r memOrders) SetCheckoutSession(ctx context.Context, id int64, sessionID string) error {
	return r.mutate(id, func(o *models.Order) { o.CheckoutSessionID = &sessionID })
}

func (r memOrders) FindIDByCheckoutSession(ctx context.Context, sessionID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, o := range r.s.state.orders {
		if o.CheckoutSessionID != nil && *o.CheckoutSessionID == sessionID {
			return id, nil
		}
	}
	return 0, apperrors.NotFound("no order for checkout session")
}

func (r memOrders) mutate(id int64, fn func(o *models.Order)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.state.orders[id]
	if !ok {
		return apperrors.NotFound("order %d not found", id)
	}
	fn(&o)
	r.s.state.orders[id] = o
	return nil
}

type memLineItems struct{ s *memStore }

func (r memLineItems) Replace(ctx context.Context, orderID int64, items []models.LineItemInput) ([]models.LineItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.state.items[:0:0]
	for _, it := range r.s.state.items {
		if it.OrderID != orderID {
			kept = append(kept, it)
		}
	}
	out := make([]models.LineItem, 0, len(items))
	for _, in := range items {
		r.s.state.nextItem++
		item := models.LineItem{
			ID:             r.s.state.nextItem,
			OrderID:        orderID,
			ProductID:      in.ProductID,
			Quantity:       in.Quantity,
			UnitPriceCents: in.UnitPriceCents,
		}
		kept = append(kept, item)
		out = append(out, item)
	}
	r.s.state.items = kept
	return out, nil
}

func (r memLineItems) DeleteByOrderID(ctx context.Context, orderID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.state.items[:0:0]
	for _, it := range r.s.state.items {
		if it.OrderID != orderID {
			kept = append(kept, it)
		}
	}
	r.s.state.items = kept
	return nil
}

func (r memLineItems) ListByOrderIDs(ctx context.Context, orderIDs []int64) ([]models.LineItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := make(map[int64]bool, len(orderIDs))
	for _, id := range orderIDs {
		want[id] = true
	}
	var out []models.LineItem
	for _, it := range r.s.state.items {
		if want[it.OrderID] {
			out = append(out, it)
		}
	}
	return out, nil
}

type memProducts struct{ s *memStore }

func (r memProducts) GetUnitPrice(ctx context.Context, productID int64) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.priceLookups++
	p, ok := r.s.products[productID]
	if !ok {
		return decimal.Zero, apperrors.NotFound("product %d not found", productID)
	}
	return p, nil
}

type memOutbox struct{ s *memStore }

func (r memOutbox) Insert(ctx context.Context, msg models.OutboxMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failOutbox != nil {
		return r.s.failOutbox
	}
	r.s.state.nextOutbox++
	msg.ID = r.s.state.nextOutbox
	r.s.state.outbox = append(r.s.state.outbox, msg)
	return nil
}

func (r memOutbox) FetchPending(ctx context.Context, limit int) ([]models.OutboxMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := append([]models.OutboxMessage(nil), r.s.state.outbox...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memOutbox) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.state.outbox[:0:0]
	for _, m := range r.s.state.outbox {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	r.s.state.outbox = kept
	return nil
}

func (r memOutbox) MarkFailed(ctx context.Context, id int64, attempts int, lastErr string, nextAttemptAt time.Time) error {
	return nil
}

type memWebhookEvents struct{ s *memStore }

func (r memWebhookEvents) Record(ctx context.Context, event models.ProcessedWebhookEvent) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.state.webhooks[event.EventID]; ok {
		return false, nil
	}
	event.Outcome = models.WebhookOutcomeProcessing
	event.ProcessedAt = r.s.now()
	r.s.state.webhooks[event.EventID] = event
	return true, nil
}

func (r memWebhookEvents) SetOutcome(ctx context.Context, eventID string, orderID *int64, outcome models.WebhookOutcome) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e := r.s.state.webhooks[eventID]
	e.OrderID, e.Outcome = orderID, outcome
	r.s.state.webhooks[eventID] = e
	return nil
}

func (r memWebhookEvents) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, e := range r.s.state.webhooks {
		if e.ProcessedAt.Before(cutoff) {
			delete(r.s.state.webhooks, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) webhookOutcome(eventID string) (models.WebhookOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.state.webhooks[eventID]
	return e.Outcome, ok
}

// memCache is a map-backed repository.OrderCache.
type memCache struct {
	mu       sync.Mutex
	entries  map[int64]models.Order
	versions map[int64]int64
	deletes  int
}

func newMemCache() *memCache {
	return &memCache{entries: map[int64]models.Order{}, versions: map[int64]int64{}}
}

func (c *memCache) Get(ctx context.Context, id int64) (*models.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.entries[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (c *memCache) Version(ctx context.Context, id int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[id], nil
}

func (c *memCache) Set(ctx context.Context, order *models.Order, version int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[order.ID] != version {
		return nil
	}
	c.entries[order.ID] = *order
	return nil
}

func (c *memCache) Delete(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	c.versions[id]++
	c.deletes++
	return nil
}

func (c *memCache) has(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

func testConfig() *config.Config {
	return &config.Config{
		Payment: config.PaymentConfig{
			Currency:   "usd",
			Timeout:    time.Second,
			SuccessURL: "http://localhost:8082/api/v1/payments/success",
			CancelURL:  "http://localhost:8082/api/v1/payments/cancel",
		},
		Webhook: config.WebhookConfig{
			SigningSecret: "whsec_test",
			Tolerance:     5 * time.Minute,
			Timeout:       time.Second,
		},
		Features: config.FeatureFlags{
			EnableOrderEvents:  true,
			EnableOrderCaching: true,
		},
	}
}

func customer() models.OrderFields {
	return models.OrderFields{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Country:     "Norway",
		City:        "Oslo",
		Address:     "Karl Johans gate 1",
		PostalCode:  "0154",
		PhoneNumber: "+4712345678",
		Email:       "ada@example.com",
	}
}
