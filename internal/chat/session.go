package chat

import (
	"context"
	"fmt"
	"sync"

	"dmchat/internal/hub"
)

// Fabric is what the chat core needs from the group broadcast hub.
type Fabric interface {
	Join(group string, c hub.Conn)
	Leave(group string, c hub.Conn)
	Members(group string) []hub.Conn
	SendToOne(c hub.Conn, payload []byte) error
	SendToGroup(group string, payload []byte) int
}

// Session is the per-connection state. It is empty until LOGIN succeeds.
type Session struct {
	mu   sync.RWMutex
	user *User
}

func (s *Session) Bind(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &u
}

func (s *Session) User() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

// LoginClaim is what a client presents in a LOGIN action.
type LoginClaim struct {
	User  string
	Token string
}

// IdentityResolver turns a login claim into a trusted username.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, claim LoginClaim) (string, error)
}

// TrustResolver accepts whatever username the client claims.
// There is NO authentication in this mode.
type TrustResolver struct{}

func (TrustResolver) ResolveIdentity(_ context.Context, claim LoginClaim) (string, error) {
	if claim.User == "" {
		return "", fmt.Errorf("%w: empty username", ErrAuth)
	}
	return claim.User, nil
}

type TokenValidator interface {
	ValidateToken(tokenString string) (string, error)
}

// TokenResolver requires a token issued by the credentials service and
// takes the username from it.
type TokenResolver struct {
	validator TokenValidator
}

func NewTokenResolver(v TokenValidator) *TokenResolver {
	return &TokenResolver{validator: v}
}

func (r *TokenResolver) ResolveIdentity(_ context.Context, claim LoginClaim) (string, error) {
	if claim.Token == "" {
		return "", fmt.Errorf("%w: missing token", ErrAuth)
	}
	username, err := r.validator.ValidateToken(claim.Token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	if claim.User != "" && claim.User != username {
		return "", fmt.Errorf("%w: token is for %q, not %q", ErrAuth, username, claim.User)
	}
	return username, nil
}
