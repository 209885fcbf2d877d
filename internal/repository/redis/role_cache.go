package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/resourceldg/cuiot-sub001/internal/core/domain"
	"github.com/resourceldg/cuiot-sub001/internal/core/port"
)

const defaultRoleCacheTTL = 5 * time.Minute

// RoleCache caches role rows by name in Redis. Roles are read far more often
// than written, so a short TTL plus explicit invalidation on mutation keeps
// lookups cheap. Assignment rows are deliberately never cached here.
type RoleCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRoleCache constructs a RoleCache with the provided key prefix and TTL.
func NewRoleCache(client *redis.Client, prefix string, ttl time.Duration) *RoleCache {
	if prefix == "" {
		prefix = "authz:role"
	}
	if ttl <= 0 {
		ttl = defaultRoleCacheTTL
	}
	return &RoleCache{client: client, prefix: prefix, ttl: ttl}
}

type cachedRole struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Description *string               `json:"description,omitempty"`
	Permissions domain.PermissionTree `json:"permissions"`
	IsSystem    bool                  `json:"is_system"`
	IsActive    bool                  `json:"is_active"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// Get returns the cached role or (nil, nil) on a miss.
func (c *RoleCache) Get(ctx context.Context, name string) (*domain.Role, error) {
	payload, err := c.client.Get(ctx, c.key(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached role: %w", err)
	}

	var cached cachedRole
	if err := json.Unmarshal(payload, &cached); err != nil {
		// Treat a corrupt entry as a miss; the read-through path rewrites it.
		return nil, nil
	}

	return &domain.Role{
		ID:          cached.ID,
		Name:        cached.Name,
		Description: cached.Description,
		Permissions: cached.Permissions,
		IsSystem:    cached.IsSystem,
		IsActive:    cached.IsActive,
		CreatedAt:   cached.CreatedAt,
		UpdatedAt:   cached.UpdatedAt,
	}, nil
}

// Set stores the role under its name.
func (c *RoleCache) Set(ctx context.Context, role domain.Role) error {
	payload, err := json.Marshal(cachedRole{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		Permissions: role.Permissions,
		IsSystem:    role.IsSystem,
		IsActive:    role.IsActive,
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal cached role: %w", err)
	}

	if err := c.client.Set(ctx, c.key(role.Name), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached role: %w", err)
	}

	return nil
}

// Invalidate drops the cache entries for the provided role names.
func (c *RoleCache) Invalidate(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}

	keys := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		keys = append(keys, c.key(name))
	}
	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate cached roles: %w", err)
	}

	return nil
}

func (c *RoleCache) key(name string) string {
	return fmt.Sprintf("%s:%s", c.prefix, name)
}

var _ port.RoleCache = (*RoleCache)(nil)
