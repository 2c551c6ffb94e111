package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/decrement_stock.lua
var decrementStockScript string

//go:embed scripts/init_stock.lua
var initStockScript string

// Client wraps Redis for the checkout core: per-session completion claims and
// a read-side mirror of product stock. Postgres stays authoritative; the
// mirror only serves cheap stock reads.
type Client struct {
	rdb             *redis.Client
	decrementScript *redis.Script
	initScript      *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:             rdb,
		decrementScript: redis.NewScript(decrementStockScript),
		initScript:      redis.NewScript(initStockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// ClaimSession takes the completion claim for a checkout session. Returns
// false when another processor instance already holds it. The claim is the
// mutual-exclusion primitive between concurrent deliveries of the same event;
// the order-store unique constraint remains the durable safety net.
func (c *Client) ClaimSession(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("checkout:claim:%s", sessionID), "1", ttl).Result()
}

// ReleaseSession drops a completion claim so a failed completion can be
// retried before the TTL expires.
func (c *Client) ReleaseSession(ctx context.Context, sessionID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("checkout:claim:%s", sessionID)).Err()
}

// InitStock seeds the stock mirror for a product
func (c *Client) InitStock(ctx context.Context, productID int64, quantity, sold int) error {
	key := fmt.Sprintf("stock:%d", productID)

	_, err := c.initScript.Run(ctx, c.rdb, []string{key}, quantity, sold).Result()
	return err
}

// DecrementStock mirrors a sale into the stock cache: quantity -= qty,
// sold += qty. No-op when the product was never seeded.
func (c *Client) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	key := fmt.Sprintf("stock:%d", productID)

	_, err := c.decrementScript.Run(ctx, c.rdb, []string{key}, quantity).Result()
	if err != nil {
		return fmt.Errorf("decrement stock script failed: %w", err)
	}
	return nil
}

// GetStock reads the mirrored stock counts for a product
func (c *Client) GetStock(ctx context.Context, productID int64) (quantity, sold int, err error) {
	key := fmt.Sprintf("stock:%d", productID)

	result, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}

	if len(result) == 0 {
		return 0, 0, fmt.Errorf("stock not mirrored for product %d", productID)
	}

	fmt.Sscanf(result["quantity"], "%d", &quantity)
	fmt.Sscanf(result["sold"], "%d", &sold)
	return quantity, sold, nil
}
