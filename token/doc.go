// Package token mints the credential strings carried by a session.
//
// Two generators are provided:
//   - Opaque: random URL-safe strings with no embedded meaning
//   - JWTGenerator: HS256-signed JWT access tokens carrying the session,
//     client, and user identifiers, paired with opaque refresh tokens
//
// Either way the token authority treats the result as an opaque string; only
// the session store that issued a token can resolve it.
package token
