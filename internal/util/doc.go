// Package util provides small helpers shared across the token authority that
// don't fit into a domain-specific package.
//
// Key utilities:
//   - SafeTruncate: truncates tokens and identifiers before they are logged
//   - NormalizeURL: canonicalizes issuer URLs
package util
