// Package permission implements wildcard permission pattern matching.
//
// Permissions are dot-delimited three-segment strings of the form
// "{resource}.{action}.{scope}" (e.g. "tenant.users.create"). A granted
// pattern may replace any segment with "*", may be the single global
// wildcard "*", or may be a two-segment module wildcard "resource.*"
// covering every action and scope under that resource.
package permission

import "strings"

// Wildcard matches any permission.
const Wildcard = "*"

// Matches reports whether a granted pattern matches a required
// permission string. Rules are evaluated in precedence order and the
// first hit wins:
//
//  1. exact string equality
//  2. pattern is the global wildcard "*"
//  3. pattern is exactly two segments ending in "*" ("platform.*"),
//     matching any permission that starts with "platform."
//  4. pattern and required have the same segment count and every
//     pattern segment is either equal to its counterpart or "*"
//
// Mixed arities not covered by rule 3 never match. Rule 3 exists
// because a two-segment "platform.*" cannot be expressed as an
// equal-arity match against three-segment permissions; it is a special
// case on top of rule 4, not a generalization of it.
func Matches(pattern, required string) bool {
	if pattern == required {
		return true
	}
	if pattern == Wildcard {
		return true
	}

	patParts := strings.Split(pattern, ".")
	if len(patParts) == 2 && patParts[1] == Wildcard {
		return strings.HasPrefix(required, patParts[0]+".")
	}

	reqParts := strings.Split(required, ".")
	if len(patParts) != len(reqParts) {
		return false
	}
	for i, seg := range patParts {
		if seg != Wildcard && seg != reqParts[i] {
			return false
		}
	}
	return true
}

// MatchAny returns the first pattern in patterns that matches required.
func MatchAny(patterns []string, required string) (string, bool) {
	for _, p := range patterns {
		if Matches(p, required) {
			return p, true
		}
	}
	return "", false
}
