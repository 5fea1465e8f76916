package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"settle/apps/settle/internal/model"
)

type actorKey struct{}

// Claims is the bearer token issued by the identity service. Subject is the
// user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	responder
	secret []byte
}

func NewAuthenticator(secret string, r responder) *Authenticator {
	return &Authenticator{responder: r, secret: []byte(secret)}
}

// IssueToken signs an HS256 token for the user. The identity service owns
// issuance in production; this is used by tests and local tooling.
func IssueToken(secret, userID string, role model.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString([]byte(secret))
}

func (a *Authenticator) parse(raw string) (model.Actor, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(30*time.Second))
	if err != nil {
		return model.Actor{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return model.Actor{}, errors.New("invalid token claims")
	}
	if claims.Subject == "" {
		return model.Actor{}, errors.New("token has no subject")
	}

	role := model.Role(claims.Role)
	switch role {
	case model.RoleClient, model.RoleCreative, model.RoleStaff:
	default:
		return model.Actor{}, fmt.Errorf("unknown role %q", claims.Role)
	}
	return model.Actor{UserID: claims.Subject, Role: role}, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// actor in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw := strings.TrimPrefix(header, "Bearer ")
		if header == "" || raw == header {
			a.writeErrorResponse(w, http.StatusUnauthorized, "missing_token", "Bearer token is required")
			return
		}

		actor, err := a.parse(raw)
		if err != nil {
			a.writeErrorResponse(w, http.StatusUnauthorized, "invalid_token", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
	})
}

func actorFrom(r *http.Request) model.Actor {
	actor, _ := r.Context().Value(actorKey{}).(model.Actor)
	return actor
}
