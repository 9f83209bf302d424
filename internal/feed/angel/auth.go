package angel

import (
	"context"
	"log"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/session"
)

// Credentials are the static SmartAPI login inputs.
type Credentials struct {
	ClientCode string
	Password   string
	TOTPSecret string
}

// Authenticator logs in with a freshly generated TOTP on every call.
type Authenticator struct {
	api   API
	creds Credentials
	now   func() time.Time
}

// NewAuthenticator creates an authenticator.
func NewAuthenticator(api API, creds Credentials) *Authenticator {
	return &Authenticator{api: api, creds: creds, now: time.Now}
}

// Login implements session.Authenticator.
func (a *Authenticator) Login(ctx context.Context) (session.Credentials, error) {
	code, err := totp.GenerateCode(a.creds.TOTPSecret, a.now())
	if err != nil {
		return session.Credentials{}, session.Credential("totp", err)
	}
	s, err := a.api.Login(ctx, a.creds.ClientCode, a.creds.Password, code)
	if err != nil {
		return session.Credentials{}, classify("login", err)
	}
	log.Printf("[angel] session ready for %s", a.creds.ClientCode)
	return session.Credentials{
		AuthToken:    s.JWT,
		FeedToken:    s.FeedToken,
		RefreshToken: s.RefreshToken,
		IssuedAt:     s.IssuedAt,
	}, nil
}
