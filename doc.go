// Package authority implements an OAuth2-style token issuance authority.
//
// A TokenAuthority validates client and user credentials against injected
// stores and issues bearer access tokens bound to sessions. Two grant types
// are supported, both restricted to internal clients:
//
//   - password (CreateTokenByUser): client and user credentials are looked up
//     concurrently, then the client type is checked.
//   - client_credentials (CreateTokenByClient): only the client is looked up;
//     the resulting session has no user.
//
// Authentication always precedes authorization: credentials that do not
// match yield ErrUnauthenticated (401) and never reveal whether the client
// type would have been accepted, and a failed lookup never reveals which
// half of the credential pair was wrong. Store failures surface as
// ErrServer (500), distinct from credential rejection.
//
// GetSession resolves an issued access token back to its session, returning
// ErrNotFound (404) for unknown or expired tokens.
//
// # HTTP
//
// Handler exposes the authority over HTTP:
//
//	ta, _ := authority.New(store, store, store, &authority.Config{Issuer: "https://auth.example.com"})
//	h := authority.NewHandler(ta, logger)
//	mux := http.NewServeMux()
//	h.RegisterRoutes(mux)               // POST /token, GET /session
//	mux.Handle("/api/", h.RequireSession(api))
//
// Token requests are form encoded and may authenticate the client with HTTP
// Basic auth, as golang.org/x/oauth2 clients do.
package authority
