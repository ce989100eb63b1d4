// Package store defines the key-value inventory backend used by the
// reservation engine.  The interface is deliberately narrow: hashed records,
// atomic increments, index sets/lists, per-key TTL, optimistic transactions
// and an expired-key notification stream.  RedisStore is the production
// implementation.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key or hash field does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrUnavailable wraps connectivity and protocol failures.  Callers should
// treat it as a server-side fault, never as a business outcome.
var ErrUnavailable = errors.New("store: unavailable")

// Reader is the read-only subset of the store.  It is also the view handed
// to a transaction body, where reads observe the watched state.
type Reader interface {
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Exists(ctx context.Context, key string) (bool, error)
	SMembers(ctx context.Context, key string) ([]string, error)
}

// Batch collects writes that are applied all-or-nothing when a transaction
// commits.  Methods only record the command; nothing is sent until commit.
type Batch interface {
	HSet(key string, values map[string]interface{})
	HDel(key string, fields ...string)
	HIncrBy(key, field string, delta int64)
	Expire(key string, ttl time.Duration)
	Persist(key string)
	Del(keys ...string)
	SAdd(key string, members ...string)
	SRem(key string, members ...string)
	LPush(key string, values ...string)
}

// Txn is passed to a TxnFunc.  Reads go through the embedded Reader;
// writes are queued and only applied if the body returns nil and no
// watched key changed in the meantime.
type Txn interface {
	Reader
	Queue(func(b Batch))
}

// TxnFunc is the body of an optimistic transaction.  Returning a non-nil
// error aborts the transaction without effect and the error is handed back
// to the caller of Transaction unchanged.  The body may run several times.
type TxnFunc func(ctx context.Context, tx Txn) error

// Subscription streams the names of keys whose TTL elapsed.  Delivery is
// best effort: keys expiring while the subscription is down are lost.
type Subscription interface {
	Channel() <-chan string
	Close() error
}

// Store is the full inventory backend contract.
type Store interface {
	Reader

	HSet(ctx context.Context, key string, values map[string]interface{}) error
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Persist(ctx context.Context, key string) error
	Del(ctx context.Context, keys ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ScanKeys(ctx context.Context, pattern string) ([]string, error)

	// Transaction watches keys and runs fn until it either aborts or
	// commits without conflict.  It returns ctx.Err() if the context ends
	// while retrying.
	Transaction(ctx context.Context, fn TxnFunc, keys ...string) error

	SubscribeExpired(ctx context.Context) (Subscription, error)
	Ping(ctx context.Context) error
}
