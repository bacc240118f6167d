// Package testutil provides fixtures and assertions shared by the token
// authority's tests: hashed client and user records, random strings, and a
// small HTTP request builder for handler tests.
package testutil
