// Package redisstore implements the token blacklist on Redis. Entries are plain
// keys with a TTL, so expiry is enforced by the server and DeleteExpired has
// nothing to do.
package redisstore

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
	"github.com/aussiebroadwan/proptrust/internal/auth/store"
)

const defaultKeyPrefix = "pt:bl:"

type Blacklist struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ store.Blacklist = (*Blacklist)(nil)

// NewBlacklist wraps an existing client. An empty prefix uses the default.
func NewBlacklist(rdb redis.UniversalClient, prefix string) *Blacklist {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Blacklist{rdb: rdb, prefix: prefix, now: time.Now}
}

// Open parses a redis:// URL and returns a blacklist on a new client.
func Open(url string) (*Blacklist, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, err
	}
	rdb := redis.NewClient(opts)
	return NewBlacklist(rdb, ""), rdb, nil
}

func (b *Blacklist) key(tokenHash string) string {
	return b.prefix + tokenHash
}

// Add stores the entry with SET NX so a second revocation of the same token
// keeps the original reason and expiry.
func (b *Blacklist) Add(ctx context.Context, e domain.BlacklistEntry) error {
	ttl := e.ExpiresAt.Sub(b.now())
	if ttl <= 0 {
		return nil
	}
	value := strings.Join([]string{string(e.Kind), string(e.Reason), e.AccountID}, "|")
	return b.rdb.SetNX(ctx, b.key(e.TokenHash), value, ttl).Err()
}

func (b *Blacklist) Contains(ctx context.Context, tokenHash string) (bool, error) {
	n, err := b.rdb.Exists(ctx, b.key(tokenHash)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *Blacklist) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (b *Blacklist) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}
