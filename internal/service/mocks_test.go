package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shop-backend/internal/gateway"
	"shop-backend/internal/models"
	"shop-backend/internal/store"
)

// fakeStore is an in-memory Datastore with the same not-found and
// unique-constraint semantics as the Postgres store.
type fakeStore struct {
	mu sync.Mutex

	users    map[int64]*models.User
	products map[int64]*models.Product

	carts      map[int64]*models.Cart
	nextCartID int64

	orders          map[string]*models.Order
	ordersBySession map[string]string

	processed map[string]string

	decrementBatches [][]store.StockDecrement
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:           map[int64]*models.User{},
		products:        map[int64]*models.Product{},
		carts:           map[int64]*models.Cart{},
		orders:          map[string]*models.Order{},
		ordersBySession: map[string]string{},
		processed:       map[string]string{},
		nextCartID:      1,
	}
}

func (f *fakeStore) addUser(u models.User) {
	f.users[u.ID] = &u
}

func (f *fakeStore) addProduct(p models.Product) {
	f.products[p.ID] = &p
}

func (f *fakeStore) addCart(userID int64, items ...models.CartItem) *models.Cart {
	f.mu.Lock()
	defer f.mu.Unlock()

	cart := &models.Cart{ID: f.nextCartID, UserID: userID, Items: items}
	f.nextCartID++
	for i := range cart.Items {
		cart.Items[i].CartID = cart.ID
		cart.Items[i].LinePrice = cart.Items[i].UnitPrice * int64(cart.Items[i].Quantity)
		cart.TotalPrice += cart.Items[i].LinePrice
	}
	f.carts[cart.ID] = cart
	return cart
}

func (f *fakeStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	u := *user
	return &u, nil
}

func (f *fakeStore) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	product, ok := f.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	p := *product
	return &p, nil
}

func (f *fakeStore) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Product
	for _, id := range ids {
		if product, ok := f.products[id]; ok {
			out = append(out, *product)
		}
	}
	return out, nil
}

func (f *fakeStore) DecrementStock(ctx context.Context, decrements []store.StockDecrement) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.decrementBatches = append(f.decrementBatches, decrements)

	var affected int64
	for _, d := range decrements {
		if product, ok := f.products[d.ProductID]; ok {
			product.Quantity -= d.Quantity
			product.Sold += d.Quantity
			affected++
		}
	}
	return affected, nil
}

func (f *fakeStore) GetCartByUserID(ctx context.Context, userID int64) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, cart := range f.carts {
		if cart.UserID == userID {
			return copyCart(cart), nil
		}
	}
	return nil, fmt.Errorf("cart for user %d: %w", userID, store.ErrNotFound)
}

func (f *fakeStore) GetCartByID(ctx context.Context, cartID int64) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, ok := f.carts[cartID]
	if !ok {
		return nil, fmt.Errorf("cart %d: %w", cartID, store.ErrNotFound)
	}
	return copyCart(cart), nil
}

func (f *fakeStore) CreateCart(ctx context.Context, userID int64) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, cart := range f.carts {
		if cart.UserID == userID {
			return nil, fmt.Errorf("cart for user %d: %w", userID, store.ErrDuplicate)
		}
	}
	cart := &models.Cart{ID: f.nextCartID, UserID: userID}
	f.nextCartID++
	f.carts[cart.ID] = cart
	return copyCart(cart), nil
}

func (f *fakeStore) UpsertCartItem(ctx context.Context, cartID, productID int64, quantity int, unitPrice int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, ok := f.carts[cartID]
	if !ok {
		return fmt.Errorf("cart %d: %w", cartID, store.ErrNotFound)
	}
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items[i].Quantity += quantity
			cart.Items[i].UnitPrice = unitPrice
			cart.Items[i].LinePrice = int64(cart.Items[i].Quantity) * unitPrice
			return nil
		}
	}
	cart.Items = append(cart.Items, models.CartItem{
		CartID:    cartID,
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		LinePrice: int64(quantity) * unitPrice,
	})
	return nil
}

func (f *fakeStore) SetCartItemQuantity(ctx context.Context, cartID, productID int64, quantity int, unitPrice int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, ok := f.carts[cartID]
	if !ok {
		return fmt.Errorf("cart %d: %w", cartID, store.ErrNotFound)
	}
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items[i].Quantity = quantity
			cart.Items[i].UnitPrice = unitPrice
			cart.Items[i].LinePrice = int64(quantity) * unitPrice
			return nil
		}
	}
	return fmt.Errorf("product %d in cart %d: %w", productID, cartID, store.ErrNotFound)
}

func (f *fakeStore) RemoveCartItem(ctx context.Context, cartID, productID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, ok := f.carts[cartID]
	if !ok {
		return fmt.Errorf("cart %d: %w", cartID, store.ErrNotFound)
	}
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("product %d in cart %d: %w", productID, cartID, store.ErrNotFound)
}

func (f *fakeStore) RefreshCartTotal(ctx context.Context, cartID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, ok := f.carts[cartID]
	if !ok {
		return fmt.Errorf("cart %d: %w", cartID, store.ErrNotFound)
	}
	cart.TotalPrice = 0
	for _, item := range cart.Items {
		cart.TotalPrice += item.LinePrice
	}
	return nil
}

func (f *fakeStore) DeleteCart(ctx context.Context, cartID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.carts, cartID)
	return nil
}

func (f *fakeStore) ClearCart(ctx context.Context, cartID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, ok := f.carts[cartID]
	if !ok {
		return fmt.Errorf("cart %d: %w", cartID, store.ErrNotFound)
	}
	cart.Items = nil
	cart.TotalPrice = 0
	return nil
}

func (f *fakeStore) CreateOrderIfAbsent(ctx context.Context, order *models.Order) (*models.Order, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if existingID, ok := f.ordersBySession[order.SessionID]; ok {
		existing := *f.orders[existingID]
		return &existing, false, nil
	}

	stored := *order
	f.orders[order.ID] = &stored
	f.ordersBySession[order.SessionID] = order.ID
	return order, true, nil
}

func (f *fakeStore) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, store.ErrNotFound)
	}
	o := *order
	return &o, nil
}

func (f *fakeStore) GetOrderBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.ordersBySession[sessionID]
	if !ok {
		return nil, fmt.Errorf("order for session %s: %w", sessionID, store.ErrNotFound)
	}
	o := *f.orders[id]
	return &o, nil
}

func (f *fakeStore) GetOrderByCartID(ctx context.Context, cartID int64) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, order := range f.orders {
		if order.CartID == cartID {
			o := *order
			return &o, nil
		}
	}
	return nil, fmt.Errorf("order for cart %d: %w", cartID, store.ErrNotFound)
}

func (f *fakeStore) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, order := range f.orders {
		if order.UserID == userID {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (f *fakeStore) ListOrders(ctx context.Context, limit, offset int) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, order := range f.orders {
		out = append(out, *order)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) CountOrders(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.orders)), nil
}

func (f *fakeStore) UpdateDeliveryStatus(ctx context.Context, orderID string, delivered bool, deliveredAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, store.ErrNotFound)
	}
	order.IsDelivered = delivered
	order.DeliveredAt = &deliveredAt
	return nil
}

func (f *fakeStore) MarkOrderPaid(ctx context.Context, orderID, paymentID string, paidAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, store.ErrNotFound)
	}
	order.IsPaid = true
	order.PaidAt = &paidAt
	order.PaymentID = paymentID
	order.PaymentStatus = models.PaymentStatusCompleted
	return nil
}

func (f *fakeStore) DeleteOrder(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, store.ErrNotFound)
	}
	delete(f.ordersBySession, order.SessionID)
	delete(f.orders, orderID)
	return nil
}

func (f *fakeStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.processed[eventID]
	return ok, nil
}

func (f *fakeStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[eventID] = eventType
	return nil
}

func (f *fakeStore) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func copyCart(cart *models.Cart) *models.Cart {
	c := *cart
	c.Items = append([]models.CartItem(nil), cart.Items...)
	return &c
}

// fakeCache implements Cache with an in-memory claim set.
type fakeCache struct {
	mu         sync.Mutex
	claims     map[string]bool
	claimErr   error
	decrements map[int64]int
}

func newFakeCache() *fakeCache {
	return &fakeCache{claims: map[string]bool{}, decrements: map[int64]int{}}
}

func (f *fakeCache) ClaimSession(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return false, f.claimErr
	}
	if f.claims[sessionID] {
		return false, nil
	}
	f.claims[sessionID] = true
	return true, nil
}

func (f *fakeCache) ReleaseSession(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.claims, sessionID)
	return nil
}

func (f *fakeCache) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decrements[productID] += quantity
	return nil
}

// fakePublisher records published confirmation events.
type fakePublisher struct {
	mu     sync.Mutex
	events []*models.OrderConfirmedEvent
	err    error
}

func (f *fakePublisher) PublishOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

// fakeGateway is a provider stub for coordinator and legacy-path tests.
type fakeGateway struct {
	mu            sync.Mutex
	createdParams []gateway.CreateSessionParams
	session       *gateway.Session
	createErr     error
	paymentStatus string
}

func (f *fakeGateway) CreateSession(ctx context.Context, params gateway.CreateSessionParams) (*gateway.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.createdParams = append(f.createdParams, params)
	if f.session != nil {
		return f.session, nil
	}
	return &gateway.Session{ID: "cs_test_1", URL: "https://checkout.test/cs_test_1"}, nil
}

func (f *fakeGateway) ConstructEvent(payload []byte, sigHeader string) (*gateway.Event, error) {
	return nil, fmt.Errorf("not implemented in fake")
}

func (f *fakeGateway) RetrievePaymentStatus(ctx context.Context, paymentID string) (string, error) {
	if f.paymentStatus == "" {
		return "succeeded", nil
	}
	return f.paymentStatus, nil
}

func (f *fakeGateway) lastParams() gateway.CreateSessionParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createdParams[len(f.createdParams)-1]
}
