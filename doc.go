// Package auth implements a GitHub backed authentication service: OAuth2
// login (authorization code with PKCE or a provider issued token), a JWT
// access/refresh token pair with rotating single-use refresh tokens, a bun
// backed account directory, and a cookie based HTTP session boundary.
//
// The usual wiring is NewRepositoryManager over a bun.DB, NewTokenService on
// top of it, NewAuthenticator with a provider from provider/github, and
// NewHTTPAuthenticator plus NewHTTPController to expose the flows over
// go-router.
package auth
