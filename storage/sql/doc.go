// Package sqlstore implements the ClientStore, UserStore and SessionStore
// interfaces on a relational database through bun.
//
// SQLite (github.com/mattn/go-sqlite3) and PostgreSQL (github.com/lib/pq) are
// supported; the caller imports the driver it needs. Access tokens are stored
// only as SHA-256 digests and refresh tokens may be sealed with a
// security.Encryptor, so a database dump does not yield usable tokens.
//
//	db, err := sqlstore.Open(sqlstore.Config{Driver: "sqlite3", DSN: "file:authority.db"})
//	store := sqlstore.New(db)
//	if err := store.CreateSchema(ctx); err != nil { ... }
package sqlstore
