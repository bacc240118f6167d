// Package valkey provides a Valkey storage backend for the token authority.
//
// Valkey is a high-performance key-value store that is wire-compatible with
// Redis. The Store type implements storage.ClientStore, storage.UserStore and
// storage.SessionStore, making it suitable for deployments where several
// authority replicas must resolve each other's tokens.
//
// # Key Schema
//
// All keys use a configurable prefix (default "authority:"):
//
//	{prefix}client:{clientID}         -> JSON(client)
//	{prefix}user:{login}              -> JSON(user)
//	{prefix}session:{sha256(token)}   -> JSON(session), TTL = expires_in + grace
//
// Access tokens are only used as key material after hashing, and refresh
// tokens are sealed with the configured security.Encryptor, so reading the
// keyspace does not yield usable tokens. Session expiry is enforced both by
// the key TTL and by checking the stored expiry on read.
//
// # Usage
//
//	store, err := valkey.New(valkey.Config{Address: "localhost:6379"})
//	if err != nil {
//		return err
//	}
//	defer store.Close()
package valkey
