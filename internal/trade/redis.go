package trade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"SpikeSentinel/internal/model"
)

// Redis key layout.
const (
	// Format: sentinel:position:{symbol}:{side}
	positionKeyPrefix = "sentinel:position"
	// Set of "{symbol}:{side}" members for every cached position.
	positionIndexKey = "sentinel:positions"
	positionTTL      = 7 * 24 * time.Hour

	defaultRedisRetry = 5 * time.Second
)

// RedisCache shares the position cache through Redis and mirrors every
// successful read into memory. While Redis is unreachable it serves the
// mirror and queues writes, which are replayed once Redis answers again.
// A cancelled or expired context is returned to the caller and never
// counts as an outage.
type RedisCache struct {
	client    *redis.Client
	mem       *MemoryCache
	available atomic.Bool
	// lastFailure is the UnixNano of the last Redis outage error.
	lastFailure atomic.Int64
	retryEvery  time.Duration
	logger      zerolog.Logger

	mu sync.Mutex
	// pending holds writes Redis has not seen yet. nil marks a delete.
	pending map[model.PositionKey]*model.Position
}

// NewRedisCache pings client once and loads the cached positions into
// memory. A nil client runs memory-only.
func NewRedisCache(client *redis.Client, logger zerolog.Logger) *RedisCache {
	c := &RedisCache{
		client:     client,
		mem:        NewMemoryCache(),
		retryEvery: defaultRedisRetry,
		logger:     logger.With().Str("component", "redis_cache").Logger(),
		pending:    make(map[model.PositionKey]*model.Position),
	}
	if client == nil {
		c.logger.Info().Msg("no redis client, using in-memory position cache")
		return c
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		c.lastFailure.Store(time.Now().UnixNano())
		c.logger.Warn().Err(err).Msg("redis unavailable at startup, using in-memory position cache")
		return c
	}
	c.available.Store(true)
	if all, err := c.List(ctx, ""); err == nil {
		c.logger.Info().Int("positions", len(all)).Msg("position cache loaded from redis")
	}
	return c
}

// Available reports whether Redis answered the last operation.
func (c *RedisCache) Available() bool { return c.available.Load() }

func redisKey(key model.PositionKey) string {
	return fmt.Sprintf("%s:%s:%s", positionKeyPrefix, key.Symbol, key.Side)
}

// fail records a Redis outage. Context errors are returned unchanged.
func (c *RedisCache) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	c.lastFailure.Store(time.Now().UnixNano())
	if c.available.Swap(false) {
		c.logger.Warn().Err(err).Msg("redis error, falling back to in-memory position cache")
	}
	return nil
}

// redisUp reports whether Redis should serve this call. Queued writes are
// replayed first so Redis never answers with data older than memory.
func (c *RedisCache) redisUp(ctx context.Context) (bool, error) {
	if c.client == nil {
		return false, nil
	}
	if !c.available.Load() && time.Since(time.Unix(0, c.lastFailure.Load())) < c.retryEvery {
		return false, nil
	}
	if err := c.syncPending(ctx); err != nil {
		return false, c.fail(ctx, err)
	}
	if !c.available.Swap(true) {
		c.logger.Info().Msg("redis reachable again, queued position writes synced")
	}
	return true, nil
}

func (c *RedisCache) queue(key model.PositionKey, pos *model.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[key] = pos
}

func (c *RedisCache) syncPending(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return nil
	}
	pipe := c.client.TxPipeline()
	for key, pos := range c.pending {
		if pos == nil {
			pipe.Del(ctx, redisKey(key))
			pipe.SRem(ctx, positionIndexKey, key.String())
			continue
		}
		data, err := json.Marshal(pos)
		if err != nil {
			return fmt.Errorf("encode position: %w", err)
		}
		pipe.Set(ctx, redisKey(key), data, positionTTL)
		pipe.SAdd(ctx, positionIndexKey, key.String())
	}
	pipe.Expire(ctx, positionIndexKey, positionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	c.logger.Info().Int("writes", len(c.pending)).Msg("replayed queued position writes to redis")
	clear(c.pending)
	return nil
}

func (c *RedisCache) Get(ctx context.Context, key model.PositionKey) (*model.Position, bool, error) {
	up, err := c.redisUp(ctx)
	if err != nil {
		return nil, false, err
	}
	if !up {
		return c.mem.Get(ctx, key)
	}
	pos, found, err := c.fetch(ctx, key)
	if errors.Is(err, errCorruptPosition) {
		return nil, false, err
	}
	if err != nil {
		if ferr := c.fail(ctx, err); ferr != nil {
			return nil, false, ferr
		}
		return c.mem.Get(ctx, key)
	}
	if !found {
		_ = c.mem.Delete(ctx, key)
		return nil, false, nil
	}
	_ = c.mem.Put(ctx, pos)
	return pos, true, nil
}

// errCorruptPosition marks a stored value that does not decode. It is not
// an outage.
var errCorruptPosition = errors.New("undecodable cached position")

// fetch reads one key from Redis.
func (c *RedisCache) fetch(ctx context.Context, key model.PositionKey) (*model.Position, bool, error) {
	data, err := c.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var pos model.Position
	if err := json.Unmarshal(data, &pos); err != nil {
		return nil, false, fmt.Errorf("%w %s: %v", errCorruptPosition, key, err)
	}
	return &pos, true, nil
}

// Put writes memory first. A write Redis could not take is queued and
// replayed later, so Put only fails on encoding errors.
func (c *RedisCache) Put(ctx context.Context, pos *model.Position) error {
	_ = c.mem.Put(ctx, pos)
	if c.client == nil {
		return nil
	}
	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("encode position: %w", err)
	}
	up, err := c.redisUp(ctx)
	if err != nil || !up {
		c.queue(pos.Key(), clonePosition(pos))
		return nil
	}
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, redisKey(pos.Key()), data, positionTTL)
	pipe.SAdd(ctx, positionIndexKey, pos.Key().String())
	pipe.Expire(ctx, positionIndexKey, positionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		_ = c.fail(ctx, err)
		c.queue(pos.Key(), clonePosition(pos))
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key model.PositionKey) error {
	_ = c.mem.Delete(ctx, key)
	if c.client == nil {
		return nil
	}
	up, err := c.redisUp(ctx)
	if err != nil || !up {
		c.queue(key, nil)
		return nil
	}
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, redisKey(key))
	pipe.SRem(ctx, positionIndexKey, key.String())
	if _, err := pipe.Exec(ctx); err != nil {
		_ = c.fail(ctx, err)
		c.queue(key, nil)
	}
	return nil
}

func (c *RedisCache) List(ctx context.Context, symbol string) ([]model.Position, error) {
	up, err := c.redisUp(ctx)
	if err != nil {
		return nil, err
	}
	if !up {
		return c.mem.List(ctx, symbol)
	}
	out, err := c.listRedis(ctx, symbol)
	if errors.Is(err, errCorruptPosition) {
		return nil, err
	}
	if err != nil {
		if ferr := c.fail(ctx, err); ferr != nil {
			return nil, ferr
		}
		return c.mem.List(ctx, symbol)
	}
	c.mem.replaceSymbol(symbol, out)
	return out, nil
}

func (c *RedisCache) listRedis(ctx context.Context, symbol string) ([]model.Position, error) {
	members, err := c.client.SMembers(ctx, positionIndexKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]model.Position, 0, len(members))
	for _, m := range members {
		key, ok := parseMember(m)
		if !ok || (symbol != "" && key.Symbol != symbol) {
			continue
		}
		pos, found, err := c.fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, *pos)
		}
	}
	sortPositions(out)
	return out, nil
}

func clonePosition(pos *model.Position) *model.Position {
	cp := *pos
	return &cp
}

// parseMember splits "{symbol}:{side}". Symbols may contain colons.
func parseMember(m string) (model.PositionKey, bool) {
	for i := len(m) - 1; i >= 0; i-- {
		if m[i] == ':' {
			side := model.Side(m[i+1:])
			if side != model.SideBuy && side != model.SideSell {
				return model.PositionKey{}, false
			}
			return model.PositionKey{Symbol: m[:i], Side: side}, true
		}
	}
	return model.PositionKey{}, false
}
