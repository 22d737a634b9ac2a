// Package routemeta holds the declarative access rules attached to
// routes. Rules are registered once at startup and looked up by the
// gate on every dispatch.
package routemeta

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/greenroomhq/greenroom/pkg/tier"
)

// Metadata keys accepted at registration. KeyPermissions is the current
// form; KeyPermission is the legacy singular form still emitted by older
// route tables. Both normalize into Rule.Permissions.
const (
	KeyTier                  = "tier"
	KeyPermissions           = "permissions"
	KeyPermission            = "permission"
	KeyRequireTenantContext  = "require_tenant_context"
	KeyRequireAccountContext = "require_account_context"
)

// Rule is the access requirement for a route. A zero Rule means the
// route only requires authentication handled elsewhere: no tier floor,
// no permissions, no scope context.
type Rule struct {
	Tier                  tier.Tier `json:"tier,omitempty"`
	Permissions           []string  `json:"permissions,omitempty"`
	RequireTenantContext  bool      `json:"require_tenant_context,omitempty"`
	RequireAccountContext bool      `json:"require_account_context,omitempty"`
}

// IsZero reports whether the rule imposes no requirements
func (r Rule) IsZero() bool {
	return r.Tier == "" && len(r.Permissions) == 0 &&
		!r.RequireTenantContext && !r.RequireAccountContext
}

// RuleFromMeta builds a Rule from a metadata map, normalizing the
// legacy singular permission key into the permissions list. The plural
// key wins ordering; a singular value is appended if not already
// present. An invalid tier value is a registration error.
func RuleFromMeta(meta map[string]interface{}) (Rule, error) {
	var rule Rule

	if raw, ok := meta[KeyTier]; ok {
		s, ok := raw.(string)
		if !ok {
			return Rule{}, fmt.Errorf("route metadata %q must be a string, got %T", KeyTier, raw)
		}
		t, err := tier.Parse(s)
		if err != nil {
			return Rule{}, fmt.Errorf("route metadata %q: %w", KeyTier, err)
		}
		rule.Tier = t
	}

	if raw, ok := meta[KeyPermissions]; ok {
		perms, err := toStringSlice(raw)
		if err != nil {
			return Rule{}, fmt.Errorf("route metadata %q: %w", KeyPermissions, err)
		}
		rule.Permissions = perms
	}

	if raw, ok := meta[KeyPermission]; ok {
		s, ok := raw.(string)
		if !ok {
			return Rule{}, fmt.Errorf("route metadata %q must be a string, got %T", KeyPermission, raw)
		}
		if s != "" && !contains(rule.Permissions, s) {
			rule.Permissions = append(rule.Permissions, s)
		}
	}

	if raw, ok := meta[KeyRequireTenantContext]; ok {
		b, ok := raw.(bool)
		if !ok {
			return Rule{}, fmt.Errorf("route metadata %q must be a bool, got %T", KeyRequireTenantContext, raw)
		}
		rule.RequireTenantContext = b
	}

	if raw, ok := meta[KeyRequireAccountContext]; ok {
		b, ok := raw.(bool)
		if !ok {
			return Rule{}, fmt.Errorf("route metadata %q must be a bool, got %T", KeyRequireAccountContext, raw)
		}
		rule.RequireAccountContext = b
	}

	return rule, nil
}

func toStringSlice(raw interface{}) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string elements, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a string list, got %T", raw)
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// Registry maps route names to rules and path prefixes to group
// defaults. Route rules take precedence over group defaults; a route
// with no rule and no matching group gets the zero Rule.
type Registry struct {
	mu     sync.RWMutex
	routes map[string]Rule
	groups map[string]Rule
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		routes: make(map[string]Rule),
		groups: make(map[string]Rule),
	}
}

func routeKey(method, path string) string {
	return method + " " + path
}

// SetGroupDefault registers a default rule for every route whose path
// starts with prefix. Longer prefixes win over shorter ones.
func (r *Registry) SetGroupDefault(prefix string, rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[prefix] = rule
}

// Register attaches a rule built from metadata to a route
func (r *Registry) Register(method, path string, meta map[string]interface{}) error {
	rule, err := RuleFromMeta(meta)
	if err != nil {
		return fmt.Errorf("route %s %s: %w", method, path, err)
	}
	r.RegisterRule(method, path, rule)
	return nil
}

// RegisterRule attaches a rule to a route directly
func (r *Registry) RegisterRule(method, path string, rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[routeKey(method, path)] = rule
}

// Resolve returns the effective rule for a route. A registered route
// rule overrides any group default entirely; partial merging would make
// it impossible for a route to relax its group's requirements.
func (r *Registry) Resolve(method, path string) Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rule, ok := r.routes[routeKey(method, path)]; ok {
		return rule
	}
	return r.groupDefault(path)
}

func (r *Registry) groupDefault(path string) Rule {
	prefixes := make([]string, 0, len(r.groups))
	for prefix := range r.groups {
		prefixes = append(prefixes, prefix)
	}
	// Longest prefix first.
	sort.Slice(prefixes, func(i, j int) bool {
		return len(prefixes[i]) > len(prefixes[j])
	})

	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return r.groups[prefix]
		}
	}
	return Rule{}
}
