// Package tier defines the platform's ordered access levels.
//
// Every authenticated identity carries exactly one tier. Tiers form a
// strict total order (public < user < account < tenant < platform) and
// are used for coarse eligibility checks before any permission pattern
// is consulted.
package tier

import (
	"fmt"
	"strings"
)

// Tier represents a coarse-grained access level.
type Tier string

const (
	Public   Tier = "public"
	User     Tier = "user"
	Account  Tier = "account"
	Tenant   Tier = "tenant"
	Platform Tier = "platform"
)

// ErrInvalid is returned when an identity carries a tier value outside
// the recognized set. Callers must treat this as a data-integrity error,
// not as the lowest tier.
var ErrInvalid = fmt.Errorf("invalid user tier")

// ranks is defined once; rank strictly increases along the tier order.
var ranks = map[Tier]int{
	Public:   0,
	User:     1,
	Account:  2,
	Tenant:   3,
	Platform: 4,
}

// Rank returns the numeric rank of the tier, or -1 for unknown values.
func (t Tier) Rank() int {
	if r, ok := ranks[t]; ok {
		return r
	}
	return -1
}

// Valid reports whether the tier is one of the five recognized levels.
func (t Tier) Valid() bool {
	_, ok := ranks[t]
	return ok
}

func (t Tier) String() string {
	return string(t)
}

// Parse validates a raw tier value. Unknown values are rejected with
// ErrInvalid rather than silently mapped to the lowest rank, so privilege
// can never be inferred from malformed identity data.
func Parse(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return t, nil
}

// HasMinimum reports whether userTier meets requiredTier. An empty
// required tier means no restriction and always passes. Both sides must
// be recognized tiers; an error marks the check unanswerable and the
// caller must reject the request.
func HasMinimum(userTier, requiredTier Tier) (bool, error) {
	if requiredTier == "" {
		return true, nil
	}
	if !userTier.Valid() {
		return false, fmt.Errorf("%w: %q", ErrInvalid, userTier)
	}
	if !requiredTier.Valid() {
		return false, fmt.Errorf("%w: %q", ErrInvalid, requiredTier)
	}
	return userTier.Rank() >= requiredTier.Rank(), nil
}

// All returns the tiers in ascending rank order.
func All() []Tier {
	return []Tier{Public, User, Account, Tenant, Platform}
}

// FromPath classifies a request path into a tier label for metrics.
// The label is operational metadata only and never feeds enforcement.
func FromPath(path string) string {
	for _, t := range All() {
		if strings.HasPrefix(path, "/"+string(t)+"/") || path == "/"+string(t) {
			return string(t)
		}
	}
	return "unknown"
}
