// Package authcore is the authentication and authorization engine of the
// member platform. It is transport-agnostic: hosts bring their own HTTP
// or RPC layer and call the Engine, which owns password hashing, the
// access/refresh/step-up token lifecycle, TOTP MFA, login rate limiting,
// role-based permission resolution, and redis-backed sessions with
// atomic rotation and replay revocation.
//
// Build an engine with the builder:
//
//	cfg := authcore.DefaultConfig()
//	cfg.Token.AccessSecret = accessSecret
//	cfg.Token.RefreshSecret = refreshSecret
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithRedis(redisClient).
//		WithStore(postgres.New(pool)).
//		Build()
//
// Durable storage is pluggable through the store package; redis is
// required for sessions and rate limits.
package authcore
