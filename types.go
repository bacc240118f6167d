package authority

import (
	"time"

	"golang.org/x/oauth2"

	"github.com/giantswarm/token-authority/security"
	"github.com/giantswarm/token-authority/storage"
)

// Grant types accepted at the token endpoint.
const (
	GrantTypePassword          = "password"
	GrantTypeClientCredentials = "client_credentials"
)

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "bearer"

// AccessToken is the token response of a successful grant. It is a
// projection of the created session and is never stored.
type AccessToken struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`

	// State echoes the request's state parameter, if any
	State string `json:"state,omitempty"`
}

func newAccessToken(session *storage.Session) *AccessToken {
	return &AccessToken{
		AccessToken:  session.AccessToken,
		TokenType:    TokenTypeBearer,
		RefreshToken: session.RefreshToken,
		ExpiresIn:    session.ExpiresIn,
	}
}

// ToOAuth2 converts the response to an *oauth2.Token, with Expiry computed from now.
func (t *AccessToken) ToOAuth2() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		ExpiresIn:    t.ExpiresIn,
	}
	if t.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	return tok
}

// SessionView is the JSON served for a resolved access token.
type SessionView struct {
	SessionID string    `json:"session_id"`
	ClientID  string    `json:"client_id"`
	UserID    string    `json:"user_id,omitempty"`
	ExpiresIn int64     `json:"expires_in"` // seconds remaining
	ExpiresAt time.Time `json:"expires_at"`
}

// NewSessionView builds the public view of session. Tokens are not included.
func NewSessionView(session *storage.Session, now time.Time) *SessionView {
	return &SessionView{
		SessionID: session.ID,
		ClientID:  session.ClientID,
		UserID:    session.UserID,
		ExpiresIn: security.RemainingSeconds(session.ExpiresAt, now),
		ExpiresAt: session.ExpiresAt,
	}
}

// ErrorResponse is the JSON body of a failed request
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}
