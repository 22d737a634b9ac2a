package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// CachedService wraps a Service with a Redis cache for the ownership
// lookup on the hot path. Tenant and account CRUD passes through;
// mutations that can change ownership invalidate. Cache failures
// degrade to the underlying service.
type CachedService struct {
	service Service
	redis   *redis.Client
	ttl     time.Duration
}

// NewCachedService creates a Redis-backed cache in front of a service
func NewCachedService(service Service, client *redis.Client, ttl time.Duration) *CachedService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedService{service: service, redis: client, ttl: ttl}
}

func accountTenantKey(accountID string) string {
	return fmt.Sprintf("directory:account_tenant:%s", accountID)
}

// AccountBelongsToTenant resolves ownership from cache when fresh. The
// cache stores the owning tenant ID per account, so one entry answers
// checks against any tenant.
func (c *CachedService) AccountBelongsToTenant(ctx context.Context, accountID, tenantID string) (bool, error) {
	key := accountTenantKey(accountID)

	cached, err := c.redis.Get(ctx, key).Result()
	if err == nil {
		return cached == tenantID, nil
	}

	account, err := c.service.GetAccount(ctx, accountID)
	if err == ErrAccountNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if account.Status == StatusDeleted {
		return false, nil
	}

	c.redis.Set(ctx, key, account.TenantID, c.ttl)
	return account.TenantID == tenantID, nil
}

// CreateTenant passes through to the service
func (c *CachedService) CreateTenant(ctx context.Context, tenant *Tenant) error {
	return c.service.CreateTenant(ctx, tenant)
}

// GetTenant passes through to the service
func (c *CachedService) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	return c.service.GetTenant(ctx, id)
}

// GetTenantBySlug passes through to the service
func (c *CachedService) GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return c.service.GetTenantBySlug(ctx, slug)
}

// ListTenants passes through to the service
func (c *CachedService) ListTenants(ctx context.Context) ([]*Tenant, error) {
	return c.service.ListTenants(ctx)
}

// DeleteTenant passes through to the service
func (c *CachedService) DeleteTenant(ctx context.Context, id string) error {
	return c.service.DeleteTenant(ctx, id)
}

// CreateAccount writes through and primes the ownership cache
func (c *CachedService) CreateAccount(ctx context.Context, account *Account) error {
	if err := c.service.CreateAccount(ctx, account); err != nil {
		return err
	}
	c.redis.Set(ctx, accountTenantKey(account.ID), account.TenantID, c.ttl)
	return nil
}

// GetAccount passes through to the service
func (c *CachedService) GetAccount(ctx context.Context, id string) (*Account, error) {
	return c.service.GetAccount(ctx, id)
}

// ListAccounts passes through to the service
func (c *CachedService) ListAccounts(ctx context.Context, tenantID string) ([]*Account, error) {
	return c.service.ListAccounts(ctx, tenantID)
}

// DeleteAccount writes through and drops the cached ownership entry
func (c *CachedService) DeleteAccount(ctx context.Context, id string) error {
	if err := c.service.DeleteAccount(ctx, id); err != nil {
		return err
	}
	c.redis.Del(ctx, accountTenantKey(id))
	return nil
}

// InvalidateAccount drops an account's cached ownership entry
func (c *CachedService) InvalidateAccount(ctx context.Context, accountID string) error {
	return c.redis.Del(ctx, accountTenantKey(accountID)).Err()
}
