package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on a go-redis client.  Request handlers share
// the client's connection pool; SubscribeExpired opens a dedicated pub/sub
// connection.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an existing client.  The client must be non-nil.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	if rdb == nil {
		panic("nil redis client passed to NewRedisStore")
	}
	return &RedisStore{rdb: rdb}
}

// Client exposes the underlying client for middleware that needs raw
// commands (rate limiting).
func (s *RedisStore) Client() *redis.Client { return s.rdb }

// mapErr converts go-redis errors into the store taxonomy.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return ErrNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

// readCmds is satisfied by both *redis.Client and a watched *redis.Tx.
type readCmds interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

// cmdReader implements Reader over the client or a watched connection.
type cmdReader struct {
	c readCmds
}

func (r cmdReader) HGet(ctx context.Context, key, field string) (string, error) {
	v, err := r.c.HGet(ctx, key, field).Result()
	return v, mapErr(err)
}

// HGetAll returns ErrNotFound for a missing key (redis reports an empty hash).
func (r cmdReader) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := r.c.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, mapErr(err)
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return m, nil
}

func (r cmdReader) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.c.Exists(ctx, key).Result()
	return n > 0, mapErr(err)
}

func (r cmdReader) SMembers(ctx context.Context, key string) ([]string, error) {
	v, err := r.c.SMembers(ctx, key).Result()
	return v, mapErr(err)
}

func (s *RedisStore) HGet(ctx context.Context, key, field string) (string, error) {
	return cmdReader{s.rdb}.HGet(ctx, key, field)
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return cmdReader{s.rdb}.HGetAll(ctx, key)
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	return cmdReader{s.rdb}.Exists(ctx, key)
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	return cmdReader{s.rdb}.SMembers(ctx, key)
}

func (s *RedisStore) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	return mapErr(s.rdb.HSet(ctx, key, values).Err())
}

func (s *RedisStore) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	n, err := s.rdb.HIncrBy(ctx, key, field, delta).Result()
	return n, mapErr(err)
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return mapErr(s.rdb.Expire(ctx, key, ttl).Err())
}

func (s *RedisStore) Persist(ctx context.Context, key string) error {
	return mapErr(s.rdb.Persist(ctx, key).Err())
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return mapErr(s.rdb.Del(ctx, keys...).Err())
}

func (s *RedisStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	v, err := s.rdb.LRange(ctx, key, start, stop).Result()
	return v, mapErr(err)
}

// ScanKeys walks the keyspace with SCAN so large inventories do not block
// the server the way KEYS would.
func (s *RedisStore) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		out    []string
		cursor uint64
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return nil, mapErr(err)
		}
		out = append(out, keys...)
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return mapErr(s.rdb.Ping(ctx).Err())
}

// redisBatch records writes into a MULTI/EXEC pipeline.
type redisBatch struct {
	ctx context.Context
	p   redis.Pipeliner
}

func (b redisBatch) HSet(key string, values map[string]interface{}) { b.p.HSet(b.ctx, key, values) }
func (b redisBatch) HDel(key string, fields ...string) { b.p.HDel(b.ctx, key, fields...) }
func (b redisBatch) HIncrBy(key, field string, delta int64) { b.p.HIncrBy(b.ctx, key, field, delta) }
func (b redisBatch) Expire(key string, ttl time.Duration) { b.p.Expire(b.ctx, key, ttl) }
func (b redisBatch) Persist(key string) { b.p.Persist(b.ctx, key) }
func (b redisBatch) Del(keys ...string) { b.p.Del(b.ctx, keys...) }

func (b redisBatch) SAdd(key string, members ...string) {
	b.p.SAdd(b.ctx, key, toArgs(members)...)
}

func (b redisBatch) SRem(key string, members ...string) {
	b.p.SRem(b.ctx, key, toArgs(members)...)
}

func (b redisBatch) LPush(key string, values ...string) {
	b.p.LPush(b.ctx, key, toArgs(values)...)
}

func toArgs(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// redisTxn is the Txn view over a watched connection.
type redisTxn struct {
	cmdReader
	writes []func(Batch)
}

func (t *redisTxn) Queue(w func(b Batch)) { t.writes = append(t.writes, w) }

// Transaction implements the WATCH / MULTI / EXEC retry loop.  A failed
// EXEC (redis.TxFailedErr) means a watched key changed, so the body is run
// again against fresh state.
func (s *RedisStore) Transaction(ctx context.Context, fn TxnFunc, keys ...string) error {
	for attempt := 1; ; attempt++ {
		var bodyErr error
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			t := &redisTxn{cmdReader: cmdReader{tx}}
			if bodyErr = fn(ctx, t); bodyErr != nil {
				return bodyErr
			}
			if len(t.writes) == 0 {
				return nil
			}
			_, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				b := redisBatch{ctx: ctx, p: p}
				for _, w := range t.writes {
					w(b)
				}
				return nil
			})
			return err
		}, keys...)
		switch {
		case err == nil:
			return nil
		case bodyErr != nil:
			return bodyErr
		case errors.Is(err, redis.TxFailedErr):
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if attempt%50 == 0 {
				log.Printf("store: transaction on %v still conflicting after %d attempts", keys, attempt)
			}
			continue
		default:
			return mapErr(err)
		}
	}
}

// EnableExpiryEvents turns on expired-key keyspace notifications.  Managed
// Redis offerings often forbid CONFIG SET; the error is returned so the
// caller can log it and rely on server-side configuration instead.
func (s *RedisStore) EnableExpiryEvents(ctx context.Context) error {
	return mapErr(s.rdb.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err())
}

// ExpiredChannel is the keyevent channel for the client's database.
func (s *RedisStore) ExpiredChannel() string {
	return "__keyevent@" + strconv.Itoa(s.rdb.Options().DB) + "__:expired"
}

type redisSubscription struct {
	ps   *redis.PubSub
	out  chan string
	done chan struct{}
	once sync.Once
}

func (r *redisSubscription) Channel() <-chan string { return r.out }

func (r *redisSubscription) Close() error {
	r.once.Do(func() { close(r.done) })
	return r.ps.Close()
}

// SubscribeExpired subscribes to the expired keyevent channel and waits for
// the server to confirm the subscription before returning.
func (s *RedisStore) SubscribeExpired(ctx context.Context) (Subscription, error) {
	ps := s.rdb.Subscribe(ctx, s.ExpiredChannel())
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, mapErr(err)
	}
	sub := &redisSubscription{
		ps:   ps,
		out:  make(chan string, 64),
		done: make(chan struct{}),
	}
	go func() {
		defer close(sub.out)
		for m := range ps.Channel() {
			select {
			case sub.out <- m.Payload:
			case <-sub.done:
				return
			}
		}
	}()
	return sub, nil
}
