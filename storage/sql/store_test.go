package sqlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/giantswarm/token-authority/internal/testutil"
	"github.com/giantswarm/token-authority/security"
	"github.com/giantswarm/token-authority/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := Open(Config{
		Driver:       DriverSQLite,
		DSN:          "file:" + testutil.GenerateRandomString(12) + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	store := New(db)
	t.Cleanup(func() { _ = store.Close() })

	if err := store.CreateSchema(context.Background()); err != nil {
		t.Fatalf("CreateSchema() error = %v", err)
	}
	return store
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "mysql"}); err == nil {
		t.Error("Open() should reject unsupported drivers")
	}
}

func TestStore_CreateSchema_Idempotent(t *testing.T) {
	store := newTestStore(t)
	if err := store.CreateSchema(context.Background()); err != nil {
		t.Fatalf("second CreateSchema() error = %v", err)
	}
}

func TestStore_Credentials(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, _, user := testutil.Seed(t, store, store)

	client, err := store.LookupClient(ctx, testutil.InternalClientID, testutil.InternalClientSecret)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, client.Type, storage.ClientTypeInternal)

	if _, err := store.LookupClient(ctx, testutil.InternalClientID, "wrong"); !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("LookupClient(wrong secret) error = %v", err)
	}
	if _, err := store.LookupClient(ctx, "unknown", "x"); !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("LookupClient(unknown) error = %v", err)
	}

	got, err := store.LookupUser(ctx, testutil.UserLogin, testutil.UserPassword)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got.ID, user.ID)

	if _, err := store.LookupUser(ctx, testutil.UserLogin, "wrong"); !errors.Is(err, storage.ErrUserNotFound) {
		t.Errorf("LookupUser(wrong password) error = %v", err)
	}
	if _, err := store.LookupUser(ctx, "mallory", "x"); !errors.Is(err, storage.ErrUserNotFound) {
		t.Errorf("LookupUser(unknown) error = %v", err)
	}
}

func TestStore_SaveClient_Upsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c := testutil.NewClient(t, "svc", "first", storage.ClientTypeExternal)
	testutil.AssertNoError(t, store.SaveClient(ctx, c))

	c2 := testutil.NewClient(t, "svc", "second", storage.ClientTypeInternal)
	testutil.AssertNoError(t, store.SaveClient(ctx, c2))

	if _, err := store.LookupClient(ctx, "svc", "first"); !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("old secret should no longer match, err = %v", err)
	}
	got, err := store.LookupClient(ctx, "svc", "second")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got.Type, storage.ClientTypeInternal)
}

func TestStore_Sessions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	internal, _, user := testutil.Seed(t, store, store)

	key, _ := security.GenerateKey()
	enc, err := security.NewEncryptor(key)
	testutil.AssertNoError(t, err)
	store.SetEncryptor(enc)
	store.SetSessionTTL(30 * time.Minute)

	withUser, err := store.CreateSession(ctx, internal, user)
	testutil.AssertNoError(t, err)
	clientOnly, err := store.CreateSession(ctx, internal, nil)
	testutil.AssertNoError(t, err)

	if withUser.AccessToken == clientOnly.AccessToken {
		t.Fatal("sessions share an access token")
	}
	testutil.AssertEqual(t, withUser.ExpiresIn, int64(1800))

	got, err := store.GetSession(ctx, withUser.AccessToken)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got.ID, withUser.ID)
	testutil.AssertEqual(t, got.UserID, user.ID)
	testutil.AssertEqual(t, got.RefreshToken, withUser.RefreshToken)

	got, err = store.GetSession(ctx, clientOnly.AccessToken)
	testutil.AssertNoError(t, err)
	if got.HasUser() {
		t.Error("client-only session should have no user")
	}

	var stored sessionRecord
	err = store.DB().NewSelect().Model(&stored).Where("?TableAlias.id = ?", withUser.ID).Scan(ctx)
	testutil.AssertNoError(t, err)
	if stored.AccessTokenHash == withUser.AccessToken || stored.RefreshToken == withUser.RefreshToken {
		t.Error("tokens must not be stored in plaintext")
	}

	if _, err := store.GetSession(ctx, "unknown"); !errors.Is(err, storage.ErrSessionNotFound) {
		t.Errorf("GetSession(unknown) error = %v", err)
	}
}

func TestStore_ExpiredSessions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	internal, _, _ := testutil.Seed(t, store, store)

	session, err := store.CreateSession(ctx, internal, nil)
	testutil.AssertNoError(t, err)

	_, err = store.DB().NewUpdate().
		Model((*sessionRecord)(nil)).
		Set("expires_at = ?", time.Now().UTC().Add(-time.Hour)).
		Where("id = ?", session.ID).
		Exec(ctx)
	testutil.AssertNoError(t, err)

	if _, err := store.GetSession(ctx, session.AccessToken); !errors.Is(err, storage.ErrSessionNotFound) {
		t.Errorf("GetSession(expired) error = %v", err)
	}

	n, err := store.DeleteExpiredSessions(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, int64(1))
}

func TestStore_LookupClient_StoreFailure(t *testing.T) {
	store := newTestStore(t)
	_ = store.DB().Close()

	_, err := store.LookupClient(context.Background(), "any", "secret")
	if err == nil || storage.IsNotFound(err) {
		t.Errorf("LookupClient() on a closed database should report an infrastructure error, got %v", err)
	}
}
