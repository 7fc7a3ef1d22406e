package auth

import (
	"context"
	"errors"
	"log"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is what a verified credential resolves to. Immutable for the life
// of a connection.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Claims is the access-token payload issued by the auth service.
type Claims struct {
	UserID    string `json:"_id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// Result reports the outcome of a verification. Expired is set only when the
// token parsed correctly but its expiry has passed.
type Result struct {
	Valid    bool
	Expired  bool
	Identity *Identity
	Error    string
}

// Verifier validates a bearer credential.
type Verifier interface {
	Verify(ctx context.Context, credential string) Result
}

// SessionStore answers whether a session id is still active. A token whose
// session was revoked fails verification regardless of its expiry.
type SessionStore interface {
	Active(ctx context.Context, sessionID string) (bool, error)
}

// JWTVerifier verifies HS256 access tokens and optionally cross-checks the
// embedded session id against a session store.
type JWTVerifier struct {
	secret   []byte
	sessions SessionStore
}

// NewJWTVerifier creates a verifier. sessions may be nil to skip the
// revocation check.
func NewJWTVerifier(secret []byte, sessions SessionStore) *JWTVerifier {
	return &JWTVerifier{secret: secret, sessions: sessions}
}

func (v *JWTVerifier) Verify(ctx context.Context, credential string) Result {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Result{Expired: true, Error: "TOKEN_EXPIRED: Access token has expired"}
		}
		return Result{Error: "TOKEN_INVALID: " + err.Error()}
	}

	if v.sessions != nil && claims.SessionID != "" {
		active, err := v.sessions.Active(ctx, claims.SessionID)
		if err != nil {
			// Fail closed: an unreachable session store must not mint identities.
			log.Printf("Session lookup failed for %s: %v", claims.SessionID, err)
			return Result{Error: "SESSION_LOOKUP_FAILED: Could not validate session"}
		}
		if !active {
			return Result{Error: "SESSION_REVOKED: Session is no longer active"}
		}
	}

	return Result{
		Valid: true,
		Identity: &Identity{
			UserID:   claims.UserID,
			Username: claims.Username,
			Role:     claims.Role,
		},
	}
}
