// Package middleware provides HTTP middleware for authentication, authorization, and rate limiting.
//
// # Overview
//
// This package implements request processing middleware including token authentication,
// the composite authorization gate (tier, permission, and scope checks), request IDs,
// and rate limiting (per-user and distributed).
//
// # Middleware Components
//
// AuthMiddleware: Token-based authentication
//
//	authMW := middleware.NewAuthMiddleware(tokenManager, metrics, false)
//	router.Use(authMW.Handler)
//	// Extracts Bearer token, validates, adds AuthContext to request
//
// Gate: Composite authorization
//
//	gate := middleware.NewGate(registry, resolver, dirService, metrics, logger, auditLogger)
//	router.Use(gate.Middleware())
//	// Checks run in order: authentication, tier, permissions, scope context.
//	// Infrastructure failures deny the request.
//
// RequestIDMiddleware: Request ID assignment
//
//	router.Use(middleware.RequestIDMiddleware)
//
// RateLimitMiddleware: In-memory rate limiting
//
//	router.Use(middleware.NewRateLimitMiddleware().Handler)
//
// DistributedRateLimitMiddleware: Redis-backed rate limiting
//
//	router.Use(middleware.NewDistributedRateLimitMiddleware(redisClient).Handler)
//
// # Rate Limiting
//
// Budgets are keyed by the caller's tier: user 300 req/min, account
// 600, tenant 1200, platform 5000, each with burst headroom.
// Unauthenticated traffic shares a 60 req/min budget per client
// address. The Redis-backed variant shares one counter per caller
// across instances and fails open during Redis outages.
//
// # Related Packages
//
//   - pkg/auth: Token validation
//   - pkg/rbac: Permission resolution
//   - pkg/routemeta: Route authorization metadata
//   - pkg/directory: Tenant and account ownership
package middleware
