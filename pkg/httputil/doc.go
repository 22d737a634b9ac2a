// Package httputil provides the JSON wire envelope shared by every endpoint.
//
// # Overview
//
// Success responses are written as plain JSON. Refusals always use the
// envelope {"error": <code>, "message": <text>}: the code is stable and
// machine-readable, the message is for humans. Handlers use the typed
// helpers; the authorization gate writes its own codes (insufficient_tier,
// insufficient_permission, scope_violation, ...) through WriteRefusal so
// the whole API speaks one taxonomy.
//
// # Responses
//
//	httputil.WriteSuccess(w, resource)
//	httputil.WriteCreated(w, resource)
//	httputil.WriteNoContent(w)
//
//	httputil.WriteValidationError(w, "name is required")     // 400 validation_failed
//	httputil.WriteNotFoundError(w, "tenant not found")       // 404 not_found
//	httputil.WriteUnauthenticated(w, "invalid token")        // 401 unauthenticated
//	httputil.WriteInternalError(w, err)                      // 500 internal
//	httputil.WriteRateLimited(w, 30)                         // 429 rate_limited
//
// # Request Parsing
//
//	var req CreateAccountRequest
//	if err := httputil.ParseJSON(r, &req); err != nil {
//		httputil.WriteValidationError(w, "invalid JSON body")
//		return
//	}
//
//	id, ok := httputil.ParsePathInt64OrError(w, r, "token_id")
//	if !ok {
//		return // refusal already written
//	}
//
// # Related Packages
//
//   - pkg/middleware: the gate and auth middleware that extend the
//     refusal taxonomy
package httputil
