package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/BryanChi/SuperGPT-Website/internal/license"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string
	BoltPath    string
	RedisURL    string
	RedisPrefix string
}

// Open returns the store named by opts.Backend. Redis connectivity is checked
// before returning.
func Open(ctx context.Context, opts Options) (license.Store, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendBolt, "bolt":
		if opts.BoltPath == "" {
			return nil, fmt.Errorf("bbolt backend requires a database path")
		}
		return OpenBolt(opts.BoltPath)
	case BackendRedis:
		if opts.RedisURL == "" {
			return nil, fmt.Errorf("redis backend requires a url")
		}
		client, err := Connect(ctx, opts.RedisURL)
		if err != nil {
			return nil, err
		}
		st := NewRedisStore(client, opts.RedisPrefix)
		if err := st.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
