package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/BryanChi/SuperGPT-Website/internal/license"
)

// DefaultRedisPrefix namespaces every key written by RedisStore.
const DefaultRedisPrefix = "sgpt:"

const maxWatchRetries = 10

// Connect initializes a Redis client from URL or host:port input.
func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisStore keeps each record as a JSON string under
// <prefix>license:<key> or <prefix>payment:<transactionId>.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ license.Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) licenseKey(key string) string { return s.prefix + "license:" + key }
func (s *RedisStore) paymentKey(id string) string  { return s.prefix + "payment:" + id }

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) GetLicense(ctx context.Context, key string) (license.License, error) {
	var lic license.License
	if err := s.get(ctx, "get license", s.licenseKey(key), &lic); err != nil {
		return license.License{}, err
	}
	return lic, nil
}

func (s *RedisStore) CreateLicense(ctx context.Context, lic license.License) error {
	return s.create(ctx, "create license", s.licenseKey(lic.Key), lic)
}

func (s *RedisStore) PutLicense(ctx context.Context, lic license.License) error {
	buf, err := json.Marshal(lic)
	if err != nil {
		return fmt.Errorf("encode license: %w", err)
	}
	if err := s.client.Set(ctx, s.licenseKey(lic.Key), buf, 0).Err(); err != nil {
		return unavailable("put license", err)
	}
	return nil
}

func (s *RedisStore) UpdateLicense(ctx context.Context, key string, fn func(*license.License) error) (license.License, error) {
	var updated license.License
	err := s.update(ctx, "update license", s.licenseKey(key), func(raw []byte) ([]byte, error) {
		var lic license.License
		if err := json.Unmarshal(raw, &lic); err != nil {
			return nil, err
		}
		if err := fn(&lic); err != nil {
			return nil, passthrough{err}
		}
		lic.Key = key
		updated = lic
		return json.Marshal(lic)
	})
	if err != nil {
		return license.License{}, err
	}
	return updated, nil
}

func (s *RedisStore) ListLicenses(ctx context.Context) ([]license.License, error) {
	return s.FindLicenses(ctx, func(license.License) bool { return true })
}

func (s *RedisStore) FindLicenses(ctx context.Context, match func(license.License) bool) ([]license.License, error) {
	out := []license.License{}
	err := s.scan(ctx, "list licenses", s.prefix+"license:*", func(raw []byte) error {
		var lic license.License
		if err := json.Unmarshal(raw, &lic); err != nil {
			return err
		}
		if match(lic) {
			out = append(out, lic)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortLicenses(out)
	return out, nil
}

func (s *RedisStore) GetPayment(ctx context.Context, transactionID string) (license.Payment, error) {
	var p license.Payment
	if err := s.get(ctx, "get payment", s.paymentKey(transactionID), &p); err != nil {
		return license.Payment{}, err
	}
	return p, nil
}

func (s *RedisStore) CreatePayment(ctx context.Context, p license.Payment) error {
	return s.create(ctx, "create payment", s.paymentKey(p.TransactionID), p)
}

func (s *RedisStore) UpdatePayment(ctx context.Context, transactionID string, fn func(*license.Payment) error) (license.Payment, error) {
	var updated license.Payment
	err := s.update(ctx, "update payment", s.paymentKey(transactionID), func(raw []byte) ([]byte, error) {
		var p license.Payment
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		if err := fn(&p); err != nil {
			return nil, passthrough{err}
		}
		p.TransactionID = transactionID
		updated = p
		return json.Marshal(p)
	})
	if err != nil {
		return license.Payment{}, err
	}
	return updated, nil
}

func (s *RedisStore) DeletePayment(ctx context.Context, transactionID string) error {
	n, err := s.client.Del(ctx, s.paymentKey(transactionID)).Result()
	if err != nil {
		return unavailable("delete payment", err)
	}
	if n == 0 {
		return license.ErrNotFound
	}
	return nil
}

func (s *RedisStore) ListPayments(ctx context.Context) ([]license.Payment, error) {
	out := []license.Payment{}
	err := s.scan(ctx, "list payments", s.prefix+"payment:*", func(raw []byte) error {
		var p license.Payment
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortPayments(out)
	return out, nil
}

func (s *RedisStore) get(ctx context.Context, op, key string, v any) error {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return license.ErrNotFound
	}
	if err != nil {
		return unavailable(op, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return unavailable(op, err)
	}
	return nil
}

// create writes v only if key does not exist yet.
func (s *RedisStore) create(ctx context.Context, op, key string, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	ok, err := s.client.SetNX(ctx, key, buf, 0).Result()
	if err != nil {
		return unavailable(op, err)
	}
	if !ok {
		return license.ErrAlreadyExists
	}
	return nil
}

// update performs an optimistic read-modify-write of key with WATCH/MULTI,
// retrying when another client changes the key in between.
func (s *RedisStore) update(ctx context.Context, op, key string, mutate func([]byte) ([]byte, error)) error {
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return license.ErrNotFound
		}
		if err != nil {
			return err
		}
		next, err := mutate(raw)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if derr, ok := domainError(err); ok {
			return derr
		}
		return unavailable(op, err)
	}
	return unavailable(op, fmt.Errorf("too much contention on %s", key))
}

func (s *RedisStore) scan(ctx context.Context, op, pattern string, fn func([]byte) error) error {
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return unavailable(op, err)
	}
	keys = uniqueKeys(keys)

	for start := 0; start < len(keys); start += 100 {
		end := min(start+100, len(keys))
		vals, err := s.client.MGet(ctx, keys[start:end]...).Result()
		if err != nil {
			return unavailable(op, err)
		}
		for _, v := range vals {
			str, ok := v.(string)
			if !ok {
				continue
			}
			if err := fn([]byte(str)); err != nil {
				return unavailable(op, err)
			}
		}
	}
	return nil
}

// uniqueKeys drops repeats in place, keeping first occurrences. SCAN may
// return a key more than once while the keyspace is rehashed.
func uniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
