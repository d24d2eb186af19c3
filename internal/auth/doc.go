// Package auth provides optional bearer-token authentication for the bridge API.
//
// When auth.jwt_secret is configured, every /api route requires an
// Authorization header carrying an HS256 JWT issued by this bridge:
//
//	v, err := auth.NewJWTVerifier([]byte(secret))
//	token, err := v.Generate("dashboard", 24*time.Hour)
//
// Tokens carry the issuer "engine-bridge", a subject naming the client, and
// a mandatory expiry. The `engine-bridge token` command prints one.
// Health endpoints are never authenticated.
package auth
