package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

const keyPrefix = "threadgrabba:recent:"

// ValkeyRecentSet is a Filter shared between processes. Keys expire after
// ttl instead of being evicted by count.
type ValkeyRecentSet struct {
	client valkey.Client
	ttl    time.Duration
}

// NewValkeyClient connects to addr and verifies the connection.
func NewValkeyClient(ctx context.Context, addr, password string) (valkey.Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:      []string{addr},
		Password:         password,
		ConnWriteTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping valkey: %w", err)
	}
	return client, nil
}

// NewValkeyRecentSet wraps an existing client.
func NewValkeyRecentSet(client valkey.Client, ttl time.Duration) *ValkeyRecentSet {
	if ttl < time.Second {
		ttl = 24 * time.Hour
	}
	return &ValkeyRecentSet{client: client, ttl: ttl}
}

// TryAdd sets the key with NX so only the first caller sees it as new.
func (s *ValkeyRecentSet) TryAdd(ctx context.Context, key string) (bool, error) {
	cmd := s.client.B().Set().Key(keyPrefix + key).Value("1").Nx().ExSeconds(int64(s.ttl / time.Second)).Build()
	err := s.client.Do(ctx, cmd).Error()
	if valkey.IsValkeyNil(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("valkey set: %w", err)
	}
	return true, nil
}

// Forget deletes the key.
func (s *ValkeyRecentSet) Forget(ctx context.Context, key string) error {
	if err := s.client.Do(ctx, s.client.B().Del().Key(keyPrefix+key).Build()).Error(); err != nil {
		return fmt.Errorf("valkey del: %w", err)
	}
	return nil
}
