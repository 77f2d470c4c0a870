package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// Client wraps redis.Client but fails safe: read and write errors behave as
// a cache miss so the API keeps serving from the database. Only Delete
// reports failures. A circuit breaker
// stops calling redis for a while once most calls fail.
type Client struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	prefix  string
}

// New creates a new Redis client. Keys are namespaced with prefix.
func New(addr, password string, db int, prefix string, log logrus.FieldLogger) *Client {
	opts := &redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  500 * time.Millisecond,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		MaxRetries:   -1,
	}

	st := gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithField("breaker", name).Warnf("circuit breaker state changed from %s to %s", from, to)
		},
	}

	return &Client{
		client:  redis.NewClient(opts),
		breaker: gobreaker.NewCircuitBreaker(st),
		prefix:  prefix,
	}
}

// Disabled returns a client that never stores anything.
func Disabled() *Client {
	return nil
}

func (c *Client) key(k string) string {
	return c.prefix + k
}

func (c *Client) enabled() bool {
	return c != nil && c.client != nil
}

// Ping reports whether redis is reachable. Callers only log the result.
func (c *Client) Ping(ctx context.Context) error {
	if !c.enabled() {
		return errors.New("cache disabled")
	}
	return c.client.Ping(ctx).Err()
}

// Get returns value or nil if missing or redis unavailable.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	if !c.enabled() {
		return nil, nil
	}
	res, err := c.breaker.Execute(func() (interface{}, error) {
		data, err := c.client.Get(ctx, c.key(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			// a miss is not a redis failure
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return data, nil
	})
	if err != nil {
		return nil, nil
	}
	data, _ := res.([]byte)
	return data, nil
}

// Set stores value with TTL, ignoring redis errors.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !c.enabled() {
		return nil
	}
	_, _ = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Set(ctx, c.key(key), value, ttl).Err()
	})
	return nil
}

// Delete removes a key. Unlike reads, a failed invalidation is reported so
// callers can log that a stale entry may survive until its TTL.
func (c *Client) Delete(ctx context.Context, key string) error {
	if !c.enabled() {
		return nil
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Del(ctx, c.key(key)).Err()
	})
	if err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

// GetJSON decodes a cached value into dst. It reports false on miss or
// decode failure.
func (c *Client) GetJSON(ctx context.Context, key string, dst interface{}) bool {
	data, _ := c.Get(ctx, key)
	if data == nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

// SetJSON encodes value and stores it with TTL.
func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.Set(ctx, key, payload, ttl)
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	if !c.enabled() {
		return nil
	}
	return c.client.Close()
}
