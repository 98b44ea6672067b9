package app

import (
	"fmt"
	"strings"

	"sinapsisdata/pkg/auth"
	"sinapsisdata/pkg/domain"
	"sinapsisdata/pkg/store"
)

type jwksProvider interface {
	JWKS() []store.JWK
}

// Login validates credentials and issues a session token.
func (a *App) Login(email, password string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if user.Status == domain.UserDisabled {
		return domain.User{}, "", ErrUserDisabled
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// UserFromToken resolves an active user from a session token.
func (a *App) UserFromToken(token string) (domain.User, bool) {
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false
	}
	user, found, err := a.store.GetUserByID(uid)
	if err != nil || !found {
		return domain.User{}, false
	}
	if user.Status == domain.UserDisabled {
		return domain.User{}, false
	}
	return user, true
}

// Logout revokes the session token.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// LogoutAll revokes every session issued to the actor so far.
func (a *App) LogoutAll(actor domain.User) error {
	revoker, ok := a.sessions.(store.UserSessionRevoker)
	if !ok {
		return ErrRevokeUnsupported
	}
	if err := revoker.RevokeUserSessions(actor.ID, a.now()); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// JWKS returns public signing keys when the session store supports it.
func (a *App) JWKS() []store.JWK {
	provider, ok := a.sessions.(jwksProvider)
	if !ok {
		return nil
	}
	return provider.JWKS()
}
