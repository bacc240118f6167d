package authority

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/giantswarm/token-authority/internal/testutil"
	"github.com/giantswarm/token-authority/security"
	"github.com/giantswarm/token-authority/storage"
)

func setupTestHandler(t *testing.T) (*Handler, *http.ServeMux, *testStores) {
	t.Helper()
	ta, stores := setupTestAuthority(t)
	h := NewHandler(ta, nil)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h, mux, stores
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp
}

func TestHandler_ServeToken(t *testing.T) {
	tests := []struct {
		name       string
		form       url.Values
		basicAuth  [2]string
		wantStatus int
		wantCode   string
	}{
		{
			name: "password grant",
			form: url.Values{
				"grant_type":    {GrantTypePassword},
				"client_id":     {testutil.InternalClientID},
				"client_secret": {testutil.InternalClientSecret},
				"username":      {testutil.UserLogin},
				"password":      {testutil.UserPassword},
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "password grant with basic auth",
			form: url.Values{
				"grant_type": {GrantTypePassword},
				"username":   {testutil.UserLogin},
				"password":   {testutil.UserPassword},
			},
			basicAuth:  [2]string{testutil.InternalClientID, testutil.InternalClientSecret},
			wantStatus: http.StatusOK,
		},
		{
			name: "client credentials grant",
			form: url.Values{
				"grant_type":    {GrantTypeClientCredentials},
				"client_id":     {testutil.InternalClientID},
				"client_secret": {testutil.InternalClientSecret},
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "wrong password",
			form: url.Values{
				"grant_type":    {GrantTypePassword},
				"client_id":     {testutil.InternalClientID},
				"client_secret": {testutil.InternalClientSecret},
				"username":      {testutil.UserLogin},
				"password":      {"wrong"},
			},
			wantStatus: http.StatusUnauthorized,
			wantCode:   ErrorCodeInvalidClient,
		},
		{
			name: "external client",
			form: url.Values{
				"grant_type":    {GrantTypeClientCredentials},
				"client_id":     {testutil.ExternalClientID},
				"client_secret": {testutil.ExternalClientSecret},
			},
			wantStatus: http.StatusForbidden,
			wantCode:   ErrorCodeUnauthorizedClient,
		},
		{
			name: "missing client credentials",
			form: url.Values{
				"grant_type": {GrantTypeClientCredentials},
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrorCodeInvalidRequest,
		},
		{
			name: "password grant without username",
			form: url.Values{
				"grant_type":    {GrantTypePassword},
				"client_id":     {testutil.InternalClientID},
				"client_secret": {testutil.InternalClientSecret},
				"password":      {testutil.UserPassword},
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrorCodeInvalidRequest,
		},
		{
			name: "missing grant type",
			form: url.Values{
				"client_id":     {testutil.InternalClientID},
				"client_secret": {testutil.InternalClientSecret},
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrorCodeInvalidRequest,
		},
		{
			name: "authorization code grant",
			form: url.Values{
				"grant_type":    {"authorization_code"},
				"client_id":     {testutil.InternalClientID},
				"client_secret": {testutil.InternalClientSecret},
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrorCodeUnsupportedGrantType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mux, _ := setupTestHandler(t)

			req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			if tt.basicAuth[0] != "" {
				req.SetBasicAuth(url.QueryEscape(tt.basicAuth[0]), url.QueryEscape(tt.basicAuth[1]))
			}
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body: %s", rr.Code, tt.wantStatus, rr.Body.String())
			}
			testutil.AssertEqual(t, rr.Header().Get("Cache-Control"), "no-store")
			testutil.AssertEqual(t, rr.Header().Get("Content-Type"), "application/json")

			if tt.wantCode != "" {
				resp := decodeError(t, rr)
				testutil.AssertEqual(t, resp.Error, tt.wantCode)
				return
			}

			var tok AccessToken
			testutil.AssertNoError(t, json.NewDecoder(rr.Body).Decode(&tok))
			testutil.AssertEqual(t, tok.TokenType, TokenTypeBearer)
			if tok.AccessToken == "" || tok.ExpiresIn <= 0 {
				t.Errorf("incomplete token response: %+v", tok)
			}
		})
	}
}

func TestHandler_ServeToken_MethodNotAllowed(t *testing.T) {
	_, mux, _ := setupTestHandler(t)

	rr := testutil.NewHTTPRequest(http.MethodGet, "/token").Do(mux)
	testutil.AssertEqual(t, rr.Code, http.StatusMethodNotAllowed)
}

func TestHandler_ServeToken_EchoesState(t *testing.T) {
	_, mux, _ := setupTestHandler(t)

	rr := testutil.NewHTTPRequest(http.MethodPost, "/token").WithForm(url.Values{
		"grant_type":    {GrantTypeClientCredentials},
		"client_id":     {testutil.InternalClientID},
		"client_secret": {testutil.InternalClientSecret},
		"state":         {"xyz"},
	}).Do(mux)
	testutil.AssertEqual(t, rr.Code, http.StatusOK)

	var tok AccessToken
	testutil.AssertNoError(t, json.NewDecoder(rr.Body).Decode(&tok))
	testutil.AssertEqual(t, tok.State, "xyz")
}

func TestHandler_ServeToken_ServerErrorHidesCause(t *testing.T) {
	_, mux, stores := setupTestHandler(t)
	stores.sessions.CreateSessionFunc = func(context.Context, *storage.Client, *storage.User) (*storage.Session, error) {
		return nil, errors.New("disk full on /var/lib/authority")
	}

	rr := testutil.NewHTTPRequest(http.MethodPost, "/token").WithForm(url.Values{
		"grant_type":    {GrantTypeClientCredentials},
		"client_id":     {testutil.InternalClientID},
		"client_secret": {testutil.InternalClientSecret},
	}).Do(mux)

	testutil.AssertEqual(t, rr.Code, http.StatusInternalServerError)
	if strings.Contains(rr.Body.String(), "disk full") {
		t.Errorf("response leaks store error: %s", rr.Body.String())
	}
	testutil.AssertEqual(t, decodeError(t, rr).Error, ErrorCodeServerError)
}

func TestHandler_ServeToken_RateLimited(t *testing.T) {
	h, mux, _ := setupTestHandler(t)
	rl := security.NewRateLimiter(1, 1, nil)
	t.Cleanup(rl.Stop)
	h.SetRateLimiter(rl)

	// No credentials are checked, so the bucket cannot refill between requests.
	form := url.Values{"grant_type": {GrantTypeClientCredentials}}

	first := testutil.NewHTTPRequest(http.MethodPost, "/token").WithForm(form).Do(mux)
	testutil.AssertEqual(t, first.Code, http.StatusBadRequest)

	second := testutil.NewHTTPRequest(http.MethodPost, "/token").WithForm(form).Do(mux)
	testutil.AssertEqual(t, second.Code, http.StatusTooManyRequests)
	testutil.AssertEqual(t, second.Header().Get("Retry-After"), "60")
	testutil.AssertEqual(t, decodeError(t, second).Error, ErrorCodeRateLimitExceeded)
}

func TestHandler_ServeSession(t *testing.T) {
	_, mux, stores := setupTestHandler(t)

	issued := testutil.NewHTTPRequest(http.MethodPost, "/token").WithForm(url.Values{
		"grant_type":    {GrantTypePassword},
		"client_id":     {testutil.InternalClientID},
		"client_secret": {testutil.InternalClientSecret},
		"username":      {testutil.UserLogin},
		"password":      {testutil.UserPassword},
	}).Do(mux)
	testutil.AssertEqual(t, issued.Code, http.StatusOK)

	var tok AccessToken
	testutil.AssertNoError(t, json.NewDecoder(issued.Body).Decode(&tok))

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
		wantCode   string
	}{
		{name: "valid token", authHeader: "Bearer " + tok.AccessToken, wantStatus: http.StatusOK},
		{name: "lowercase scheme", authHeader: "bearer " + tok.AccessToken, wantStatus: http.StatusOK},
		{name: "unknown token", authHeader: "Bearer never-issued", wantStatus: http.StatusNotFound, wantCode: ErrorCodeInvalidToken},
		{name: "missing header", wantStatus: http.StatusUnauthorized, wantCode: ErrorCodeInvalidToken},
		{name: "basic scheme", authHeader: "Basic Zm9vOmJhcg==", wantStatus: http.StatusUnauthorized, wantCode: ErrorCodeInvalidToken},
		{name: "empty bearer", authHeader: "Bearer ", wantStatus: http.StatusUnauthorized, wantCode: ErrorCodeInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.NewHTTPRequest(http.MethodGet, "/session")
			if tt.authHeader != "" {
				req.WithHeader("Authorization", tt.authHeader)
			}
			rr := req.Do(mux)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body: %s", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantCode != "" {
				if tt.wantStatus == http.StatusUnauthorized {
					testutil.AssertEqual(t, rr.Header().Get("WWW-Authenticate"), "Bearer")
				}
				testutil.AssertEqual(t, decodeError(t, rr).Error, tt.wantCode)
				return
			}

			var view SessionView
			testutil.AssertNoError(t, json.NewDecoder(rr.Body).Decode(&view))
			testutil.AssertEqual(t, view.ClientID, testutil.InternalClientID)
			testutil.AssertEqual(t, view.UserID, stores.user.ID)
			if view.SessionID == "" {
				t.Error("session view is missing session_id")
			}
			if strings.Contains(rr.Body.String(), tok.AccessToken) {
				t.Error("session view exposes the access token")
			}
		})
	}
}

func TestRequireSession_PutsSessionInContext(t *testing.T) {
	h, _, _ := setupTestHandler(t)
	tok, err := h.authority.CreateTokenByClient(context.Background(), testutil.InternalClientID, testutil.InternalClientSecret)
	testutil.AssertNoError(t, err)

	var got *storage.Session
	protected := h.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = SessionFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := testutil.NewHTTPRequest(http.MethodGet, "/api").WithBearer(tok.AccessToken).Do(protected)
	testutil.AssertEqual(t, rr.Code, http.StatusNoContent)
	if got == nil {
		t.Fatal("session not found in request context")
	}
	testutil.AssertEqual(t, got.AccessToken, tok.AccessToken)
	if got.HasUser() {
		t.Error("client credentials session should have no user")
	}
}

// ============================================================
// End-to-end with golang.org/x/oauth2 clients
// ============================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	_, mux, _ := setupTestHandler(t)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEndToEnd_PasswordCredentials(t *testing.T) {
	srv := newTestServer(t)

	for _, style := range []oauth2.AuthStyle{oauth2.AuthStyleInHeader, oauth2.AuthStyleInParams} {
		cfg := &oauth2.Config{
			ClientID:     testutil.InternalClientID,
			ClientSecret: testutil.InternalClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: srv.URL + "/token", AuthStyle: style},
		}

		tok, err := cfg.PasswordCredentialsToken(t.Context(), testutil.UserLogin, testutil.UserPassword)
		testutil.AssertNoError(t, err)
		if !tok.Valid() {
			t.Fatalf("token is not valid: %+v", tok)
		}
		testutil.AssertEqual(t, tok.Type(), "Bearer")
		if tok.RefreshToken == "" {
			t.Error("refresh token missing")
		}

		req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/session", nil)
		testutil.AssertNoError(t, err)
		tok.SetAuthHeader(req)
		resp, err := http.DefaultClient.Do(req)
		testutil.AssertNoError(t, err)
		var view SessionView
		testutil.AssertNoError(t, json.NewDecoder(resp.Body).Decode(&view))
		_ = resp.Body.Close()
		testutil.AssertEqual(t, resp.StatusCode, http.StatusOK)
		testutil.AssertEqual(t, view.ClientID, testutil.InternalClientID)
	}
}

func TestEndToEnd_PasswordCredentials_Rejected(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name       string
		clientID   string
		secret     string
		password   string
		wantStatus int
	}{
		{name: "wrong password", clientID: testutil.InternalClientID, secret: testutil.InternalClientSecret, password: "wrong", wantStatus: http.StatusUnauthorized},
		{name: "external client", clientID: testutil.ExternalClientID, secret: testutil.ExternalClientSecret, password: testutil.UserPassword, wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &oauth2.Config{
				ClientID:     tt.clientID,
				ClientSecret: tt.secret,
				Endpoint:     oauth2.Endpoint{TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams},
			}
			_, err := cfg.PasswordCredentialsToken(t.Context(), testutil.UserLogin, tt.password)

			var rerr *oauth2.RetrieveError
			if !errors.As(err, &rerr) {
				t.Fatalf("error = %v, want *oauth2.RetrieveError", err)
			}
			testutil.AssertEqual(t, rerr.Response.StatusCode, tt.wantStatus)
		})
	}
}

func TestEndToEnd_ClientCredentials(t *testing.T) {
	srv := newTestServer(t)

	cfg := &clientcredentials.Config{
		ClientID:     testutil.InternalClientID,
		ClientSecret: testutil.InternalClientSecret,
		TokenURL:     srv.URL + "/token",
	}

	tok, err := cfg.Token(t.Context())
	testutil.AssertNoError(t, err)
	if !tok.Valid() {
		t.Fatalf("token is not valid: %+v", tok)
	}

	client := cfg.Client(t.Context())
	resp, err := client.Get(srv.URL + "/session")
	testutil.AssertNoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	testutil.AssertEqual(t, resp.StatusCode, http.StatusOK)

	var view SessionView
	testutil.AssertNoError(t, json.NewDecoder(resp.Body).Decode(&view))
	testutil.AssertEqual(t, view.UserID, "")
}
