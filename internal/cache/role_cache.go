// Package cache decorates the membership oracle with a Redis read-through
// cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwrk-planet/plan-chat/internal/domain"

	"github.com/redis/go-redis/v9"
)

type Oracle interface {
	Role(ctx context.Context, planID, userID string) (domain.Role, error)
}

type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

type cachedRole struct {
	IsCreator     bool       `json:"c"`
	IsAdmin       bool       `json:"a"`
	IsParticipant bool       `json:"p"`
	JoinedAt      *time.Time `json:"j,omitempty"`
}

// RoleCache caches positive membership answers only, so a user added to a
// plan is admitted on the next lookup while a removal is seen after TTL.
type RoleCache struct {
	client *redis.Client
	next   Oracle
	ttl    time.Duration
	prefix string
	log    *slog.Logger
}

func NewRedisClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func NewRoleCache(client *redis.Client, next Oracle, ttl time.Duration, prefix string, log *slog.Logger) *RoleCache {
	if prefix == "" {
		prefix = "planchat:role"
	}
	if log == nil {
		log = slog.Default()
	}
	return &RoleCache{client: client, next: next, ttl: ttl, prefix: prefix, log: log}
}

func (c *RoleCache) key(planID, userID string) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, planID, userID)
}

func (c *RoleCache) Role(ctx context.Context, planID, userID string) (domain.Role, error) {
	key := c.key(planID, userID)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cr cachedRole
		if jerr := json.Unmarshal(data, &cr); jerr == nil {
			return domain.Role(cr), nil
		}
		c.log.Warn("cache.role_decode", slog.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		// redis down: answer from the source of truth
		c.log.Warn("cache.role_get", slog.String("key", key), slog.Any("err", err))
	}

	role, err := c.next.Role(ctx, planID, userID)
	if err != nil {
		return role, err
	}
	if role.IsMember() {
		c.store(ctx, key, role)
	}
	return role, nil
}

func (c *RoleCache) store(ctx context.Context, key string, role domain.Role) {
	data, err := json.Marshal(cachedRole(role))
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn("cache.role_set", slog.String("key", key), slog.Any("err", err))
	}
}

// Invalidate drops the cached role, e.g. after a participant leaves the plan.
func (c *RoleCache) Invalidate(ctx context.Context, planID, userID string) error {
	if err := c.client.Del(ctx, c.key(planID, userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}
