package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestCachedStore_ReadThrough(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	inner := newTestStore(t, db)
	cached := NewCachedStore(inner, setupTestRedis(t), time.Minute)

	role := &Role{Code: RoleTalent, Name: "Talent", Patterns: []string{"user.*"}}
	require.NoError(t, inner.CreateRole(ctx, role))
	grantRole(t, inner, "u-1", role)

	// First read populates the cache.
	roles, err := cached.GetRolesForUser(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, RoleTalent, roles[0].Code)

	// Mutate behind the cache's back; the cached copy is served.
	_, err = db.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1`, "u-1")
	require.NoError(t, err)

	roles, err = cached.GetRolesForUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, roles, 1)
}

func TestCachedStore_AssignInvalidates(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	inner := newTestStore(t, db)
	cached := NewCachedStore(inner, setupTestRedis(t), time.Minute)

	role := &Role{Code: RoleTalent, Name: "Talent", Patterns: []string{"user.*"}}
	require.NoError(t, inner.CreateRole(ctx, role))

	roles, err := cached.GetRolesForUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, roles)

	require.NoError(t, cached.AssignRole(ctx, &RoleAssignment{UserID: "u-1", RoleID: role.ID}))

	roles, err = cached.GetRolesForUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, roles, 1)
}

func TestCachedStore_RevokeInvalidates(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	inner := newTestStore(t, db)
	cached := NewCachedStore(inner, setupTestRedis(t), time.Minute)

	role := &Role{Code: RoleTalent, Name: "Talent", Patterns: []string{"user.*"}}
	require.NoError(t, inner.CreateRole(ctx, role))
	require.NoError(t, cached.AssignRole(ctx, &RoleAssignment{UserID: "u-1", RoleID: role.ID}))

	roles, err := cached.GetRolesForUser(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, roles, 1)

	require.NoError(t, cached.RevokeRole(ctx, "u-1", role.ID))

	roles, err = cached.GetRolesForUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestCachedStore_UpsertFlushesAllUsers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	inner := newTestStore(t, db)
	cached := NewCachedStore(inner, setupTestRedis(t), time.Minute)

	role := &Role{Code: RoleTalent, Name: "Talent", Patterns: []string{"user.profile.read"}}
	require.NoError(t, inner.CreateRole(ctx, role))
	grantRole(t, inner, "u-1", role)

	roles, err := cached.GetRolesForUser(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, []string{"user.profile.read"}, roles[0].Patterns)

	role.Patterns = []string{"user.*"}
	require.NoError(t, cached.UpsertRole(ctx, role))

	roles, err = cached.GetRolesForUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"user.*"}, roles[0].Patterns)
}

func TestCachedStore_CorruptEntryFallsThrough(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	inner := newTestStore(t, db)
	client := setupTestRedis(t)
	cached := NewCachedStore(inner, client, time.Minute)

	role := &Role{Code: RoleTalent, Name: "Talent", Patterns: []string{"user.*"}}
	require.NoError(t, inner.CreateRole(ctx, role))
	grantRole(t, inner, "u-1", role)

	require.NoError(t, client.Set(ctx, userRolesKey("u-1"), "not json", time.Minute).Err())

	roles, err := cached.GetRolesForUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, roles, 1)
}
