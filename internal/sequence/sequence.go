// Package sequence issues ticket numbers from a durable named counter.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"rinkdesk/backend/internal/fee"
	"rinkdesk/backend/internal/store"
)

// TicketCounter is the counter that backs ticket numbers.
const TicketCounter = "ticketNo"

// RedisKeyPrefix namespaces counters when SEQUENCE_BACKEND=redis.
const RedisKeyPrefix = "rinkdesk:counter:"

type Counter interface {
	NextValue(ctx context.Context, name string) (int64, error)
}

type RedisCounter struct {
	client *redis.Client
	prefix string
}

func NewRedisCounter(client *redis.Client, prefix string) *RedisCounter {
	return &RedisCounter{client: client, prefix: prefix}
}

func (c *RedisCounter) NextValue(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("%w: counter name required", store.ErrValidation)
	}
	next, err := c.client.Incr(ctx, c.prefix+name).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: redis incr %s: %v", store.ErrUnavailable, name, err)
	}
	return next, nil
}

// Current reads a counter without advancing it. A missing key reads as 0.
func (c *RedisCounter) Current(ctx context.Context, name string) (int64, error) {
	value, err := c.client.Get(ctx, c.prefix+name).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: redis get %s: %v", store.ErrUnavailable, name, err)
	}
	return value, nil
}

var raiseScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local target = tonumber(ARGV[1])
if target > current then
	redis.call("SET", KEYS[1], ARGV[1])
	return target
end
return current
`)

// RaiseCounter sets the counter to value unless it is already higher.
func (c *RedisCounter) RaiseCounter(ctx context.Context, name string, value int64) error {
	if name == "" {
		return fmt.Errorf("%w: counter name required", store.ErrValidation)
	}
	if err := raiseScript.Run(ctx, c.client, []string{c.prefix + name}, value).Err(); err != nil {
		return fmt.Errorf("%w: redis raise %s: %v", store.ErrUnavailable, name, err)
	}
	return nil
}

func FormatTicketNumber(n int64) string {
	return fmt.Sprintf("%06d", n)
}

// Issuer hands out formatted ticket numbers. When the counter store is
// unavailable it degrades to a clock-derived number and reports it.
type Issuer struct {
	counter    Counter
	logger     *slog.Logger
	now        func() time.Time
	onFallback func()
}

func NewIssuer(counter Counter, logger *slog.Logger, onFallback func()) *Issuer {
	if logger == nil {
		logger = slog.Default()
	}
	if onFallback == nil {
		onFallback = func() {}
	}
	return &Issuer{counter: counter, logger: logger, now: time.Now, onFallback: onFallback}
}

// WithClock returns a copy whose fallback numbers are derived from now.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	dup := *i
	dup.now = now
	return &dup
}

// Next returns the next ticket number and whether it came from the fallback.
func (i *Issuer) Next(ctx context.Context) (string, bool, error) {
	value, err := i.counter.NextValue(ctx, TicketCounter)
	if err == nil {
		return FormatTicketNumber(value), false, nil
	}
	if !errors.Is(err, store.ErrUnavailable) {
		return "", false, err
	}

	fallback := fee.FallbackSequence(i.now())
	i.onFallback()
	i.logger.WarnContext(ctx, "ticket counter unavailable, using clock-derived ticket number",
		"counter", TicketCounter, "ticket_number", FormatTicketNumber(fallback), "error", err)
	return FormatTicketNumber(fallback), true, nil
}
