package routemeta

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenroomhq/greenroom/pkg/tier"
)

func TestRuleFromMeta(t *testing.T) {
	rule, err := RuleFromMeta(map[string]interface{}{
		KeyTier:                 "tenant",
		KeyPermissions:          []string{"tenant.users.read", "tenant.users.manage"},
		KeyRequireTenantContext: true,
	})
	require.NoError(t, err)
	assert.Equal(t, tier.Tenant, rule.Tier)
	assert.Equal(t, []string{"tenant.users.read", "tenant.users.manage"}, rule.Permissions)
	assert.True(t, rule.RequireTenantContext)
	assert.False(t, rule.RequireAccountContext)
}

func TestRuleFromMeta_LegacySingularKey(t *testing.T) {
	rule, err := RuleFromMeta(map[string]interface{}{
		KeyPermission: "account.talent.read",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"account.talent.read"}, rule.Permissions)
}

func TestRuleFromMeta_BothKeysMerged(t *testing.T) {
	rule, err := RuleFromMeta(map[string]interface{}{
		KeyPermissions: []string{"account.talent.read"},
		KeyPermission:  "account.talent.manage",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"account.talent.read", "account.talent.manage"}, rule.Permissions)
}

func TestRuleFromMeta_DuplicateSingularIgnored(t *testing.T) {
	rule, err := RuleFromMeta(map[string]interface{}{
		KeyPermissions: []string{"account.talent.read"},
		KeyPermission:  "account.talent.read",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"account.talent.read"}, rule.Permissions)
}

func TestRuleFromMeta_InterfaceSlice(t *testing.T) {
	// Metadata decoded from JSON arrives as []interface{}.
	rule, err := RuleFromMeta(map[string]interface{}{
		KeyPermissions: []interface{}{"user.profile.read", "user.profile.manage"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"user.profile.read", "user.profile.manage"}, rule.Permissions)
}

func TestRuleFromMeta_Errors(t *testing.T) {
	_, err := RuleFromMeta(map[string]interface{}{KeyTier: "galactic"})
	assert.ErrorIs(t, err, tier.ErrInvalid)

	_, err = RuleFromMeta(map[string]interface{}{KeyTier: 3})
	assert.Error(t, err)

	_, err = RuleFromMeta(map[string]interface{}{KeyPermissions: "not-a-list"})
	assert.Error(t, err)

	_, err = RuleFromMeta(map[string]interface{}{KeyPermissions: []interface{}{42}})
	assert.Error(t, err)

	_, err = RuleFromMeta(map[string]interface{}{KeyRequireTenantContext: "yes"})
	assert.Error(t, err)
}

func TestRuleIsZero(t *testing.T) {
	assert.True(t, Rule{}.IsZero())
	assert.False(t, Rule{Tier: tier.User}.IsZero())
	assert.False(t, Rule{RequireAccountContext: true}.IsZero())
}

func TestRegistry_Resolve(t *testing.T) {
	reg := NewRegistry()
	reg.SetGroupDefault("/tenant/", Rule{Tier: tier.Tenant, RequireTenantContext: true})
	reg.RegisterRule(http.MethodPost, "/tenant/users", Rule{
		Tier:                 tier.Tenant,
		Permissions:          []string{"tenant.users.manage"},
		RequireTenantContext: true,
	})

	// Route rule wins over the group default.
	rule := reg.Resolve(http.MethodPost, "/tenant/users")
	assert.Equal(t, []string{"tenant.users.manage"}, rule.Permissions)

	// Unregistered route under the group inherits the default.
	rule = reg.Resolve(http.MethodGet, "/tenant/listings")
	assert.Equal(t, tier.Tenant, rule.Tier)
	assert.Empty(t, rule.Permissions)
	assert.True(t, rule.RequireTenantContext)

	// Routes outside any group get the zero rule.
	assert.True(t, reg.Resolve(http.MethodGet, "/public/health").IsZero())
}

func TestRegistry_LongestPrefixWins(t *testing.T) {
	reg := NewRegistry()
	reg.SetGroupDefault("/platform/", Rule{Tier: tier.Platform})
	reg.SetGroupDefault("/platform/support/", Rule{
		Tier:        tier.Platform,
		Permissions: []string{"platform.*.read"},
	})

	rule := reg.Resolve(http.MethodGet, "/platform/support/tickets")
	assert.Equal(t, []string{"platform.*.read"}, rule.Permissions)

	rule = reg.Resolve(http.MethodGet, "/platform/tenants")
	assert.Empty(t, rule.Permissions)
	assert.Equal(t, tier.Platform, rule.Tier)
}

func TestRegistry_RegisterFromMeta(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(http.MethodGet, "/account/talent", map[string]interface{}{
		KeyTier:                  "account",
		KeyPermission:            "account.talent.read",
		KeyRequireAccountContext: true,
	}))

	rule := reg.Resolve(http.MethodGet, "/account/talent")
	assert.Equal(t, tier.Account, rule.Tier)
	assert.Equal(t, []string{"account.talent.read"}, rule.Permissions)
	assert.True(t, rule.RequireAccountContext)

	assert.Error(t, reg.Register(http.MethodGet, "/bad", map[string]interface{}{
		KeyTier: "bogus",
	}))
}
