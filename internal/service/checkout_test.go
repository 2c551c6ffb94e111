package service

import (
	"context"
	"encoding/json"
	"testing"

	"shop-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCheckoutFixture() (*CheckoutService, *fakeStore, *fakeGateway) {
	fs := newFakeStore()
	gw := &fakeGateway{}
	return NewCheckoutService(fs, gw, "https://shop.example.com"), fs, gw
}

func seedCheckoutCart(fs *fakeStore) *models.Cart {
	fs.addUser(models.User{ID: 7, Name: "Jane", Email: "jane@example.com"})
	fs.addProduct(models.Product{ID: 1, Name: "Product A", Price: 1000, Quantity: 5})
	fs.addProduct(models.Product{ID: 2, Name: "Product B", Price: 500, Quantity: 3})
	return fs.addCart(7,
		models.CartItem{ProductID: 1, Quantity: 2, UnitPrice: 1000},
		models.CartItem{ProductID: 2, Quantity: 1, UnitPrice: 500},
	)
}

func TestCreateCheckoutSession(t *testing.T) {
	svc, fs, gw := newCheckoutFixture()
	cart := seedCheckoutCart(fs)

	result, err := svc.CreateCheckoutSession(context.Background(), 7, "en", testAddress)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", result.SessionID)
	assert.Equal(t, "https://checkout.test/cs_test_1", result.RedirectURL)

	params := gw.lastParams()
	assert.Equal(t, "jane@example.com", params.CustomerEmail)
	assert.Equal(t, "https://shop.example.com/en/order-success?session_id={CHECKOUT_SESSION_ID}", params.SuccessURL)
	assert.Equal(t, "https://shop.example.com/en/cart", params.CancelURL)

	require.Len(t, params.LineItems, 2)
	assert.Equal(t, "Product A", params.LineItems[0].Name)
	assert.Equal(t, int64(1000), params.LineItems[0].UnitAmount)
	assert.Equal(t, 2, params.LineItems[0].Quantity)

	assert.Equal(t, "7", params.Metadata["userId"])
	assert.Equal(t, jsonNumber(cart.ID), params.Metadata["cartId"])

	var addr models.ShippingAddress
	require.NoError(t, json.Unmarshal([]byte(params.Metadata["shippingAddress"]), &addr))
	assert.Equal(t, testAddress, addr)

	// Session creation leaves the cart alone.
	_, err = fs.GetCartByID(context.Background(), cart.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, fs.orderCount())
}

func TestCreateCheckoutSessionUsesCurrentCatalogPrices(t *testing.T) {
	svc, fs, gw := newCheckoutFixture()
	seedCheckoutCart(fs)

	// Catalog price changed since the item was added to the cart.
	fs.addProduct(models.Product{ID: 1, Name: "Product A", Price: 1200, Quantity: 5})

	_, err := svc.CreateCheckoutSession(context.Background(), 7, "en", testAddress)
	require.NoError(t, err)

	params := gw.lastParams()
	assert.Equal(t, int64(1200), params.LineItems[0].UnitAmount)
}

func TestCreateCheckoutSessionDefaultsLocale(t *testing.T) {
	svc, fs, gw := newCheckoutFixture()
	seedCheckoutCart(fs)

	_, err := svc.CreateCheckoutSession(context.Background(), 7, "", testAddress)
	require.NoError(t, err)
	assert.Contains(t, gw.lastParams().SuccessURL, "/en/")
}

func TestCreateCheckoutSessionMissingCart(t *testing.T) {
	svc, fs, _ := newCheckoutFixture()
	fs.addUser(models.User{ID: 7, Email: "jane@example.com"})

	_, err := svc.CreateCheckoutSession(context.Background(), 7, "en", testAddress)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateCheckoutSessionVanishedProduct(t *testing.T) {
	svc, fs, _ := newCheckoutFixture()
	fs.addUser(models.User{ID: 7, Email: "jane@example.com"})
	fs.addCart(7, models.CartItem{ProductID: 42, Quantity: 1, UnitPrice: 100})

	_, err := svc.CreateCheckoutSession(context.Background(), 7, "en", testAddress)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateCheckoutSessionInvalidAddress(t *testing.T) {
	svc, fs, _ := newCheckoutFixture()
	seedCheckoutCart(fs)

	_, err := svc.CreateCheckoutSession(context.Background(), 7, "en", models.ShippingAddress{Street: "1 Main St"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateCheckoutSessionGatewayFailure(t *testing.T) {
	svc, fs, gw := newCheckoutFixture()
	seedCheckoutCart(fs)
	gw.createErr = context.DeadlineExceeded

	_, err := svc.CreateCheckoutSession(context.Background(), 7, "en", testAddress)
	require.Error(t, err)
	assert.True(t, IsGatewayError(err))
}
