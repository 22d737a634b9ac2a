package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// CachedStore wraps a Store with a Redis read-through cache for the
// per-user role lookup, which dominates request traffic. Role mutations
// write through and invalidate. Cache failures degrade to the
// underlying store; they never fail a read.
type CachedStore struct {
	store Store
	redis *redis.Client
	ttl   time.Duration
}

// NewCachedStore creates a Redis-backed cache in front of a store
func NewCachedStore(store Store, client *redis.Client, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedStore{store: store, redis: client, ttl: ttl}
}

func userRolesKey(userID string) string {
	return fmt.Sprintf("rbac:user_roles:%s", userID)
}

// GetRolesForUser returns roles from cache when fresh, the store otherwise.
func (c *CachedStore) GetRolesForUser(ctx context.Context, userID string) ([]Role, error) {
	key := userRolesKey(userID)

	cached, err := c.redis.Get(ctx, key).Result()
	if err == nil {
		var roles []Role
		if err := json.Unmarshal([]byte(cached), &roles); err == nil {
			return roles, nil
		}
		// Corrupt entry; drop it and fall through.
		c.redis.Del(ctx, key)
	}

	roles, err := c.store.GetRolesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(roles); err == nil {
		c.redis.Set(ctx, key, data, c.ttl)
	}
	return roles, nil
}

// GetRoleByCode passes through to the store
func (c *CachedStore) GetRoleByCode(ctx context.Context, code string, tenantID string) (*Role, error) {
	return c.store.GetRoleByCode(ctx, code, tenantID)
}

// CreateRole passes through to the store
func (c *CachedStore) CreateRole(ctx context.Context, role *Role) error {
	return c.store.CreateRole(ctx, role)
}

// UpsertRole passes through and flushes cached grants, since a changed
// bundle alters every holder's effective permissions.
func (c *CachedStore) UpsertRole(ctx context.Context, role *Role) error {
	if err := c.store.UpsertRole(ctx, role); err != nil {
		return err
	}
	c.flushUserRoles(ctx)
	return nil
}

// ListRoles passes through to the store
func (c *CachedStore) ListRoles(ctx context.Context, tenantID string) ([]Role, error) {
	return c.store.ListRoles(ctx, tenantID)
}

// AssignRole writes through and invalidates the user's cached roles
func (c *CachedStore) AssignRole(ctx context.Context, assignment *RoleAssignment) error {
	if err := c.store.AssignRole(ctx, assignment); err != nil {
		return err
	}
	c.redis.Del(ctx, userRolesKey(assignment.UserID))
	return nil
}

// RevokeRole writes through and invalidates the user's cached roles
func (c *CachedStore) RevokeRole(ctx context.Context, userID string, roleID int64) error {
	if err := c.store.RevokeRole(ctx, userID, roleID); err != nil {
		return err
	}
	c.redis.Del(ctx, userRolesKey(userID))
	return nil
}

// InvalidateUser drops a user's cached roles
func (c *CachedStore) InvalidateUser(ctx context.Context, userID string) error {
	return c.redis.Del(ctx, userRolesKey(userID)).Err()
}

func (c *CachedStore) flushUserRoles(ctx context.Context) {
	iter := c.redis.Scan(ctx, 0, "rbac:user_roles:*", 0).Iterator()
	for iter.Next(ctx) {
		c.redis.Del(ctx, iter.Val())
	}
}
