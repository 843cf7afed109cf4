package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/compliance-rag/internal/entity"
	"github.com/futig/compliance-rag/internal/pkg/logger"
	"github.com/futig/compliance-rag/internal/pkg/response"
)

const UserIDHeader = "X-User-ID"

var errInvalidToken = errors.New("invalid bearer token")

type identityKey struct{}

// IdentityConfig selects how callers are identified. A bearer token is
// checked when Secret is set; the user header is honoured only when
// TrustUserHeader is on. Everyone else is anonymous.
type IdentityConfig struct {
	Secret          string
	TrustUserHeader bool
}

// Identity resolves the caller and stores it in the request context.
func Identity(cfg IdentityConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := resolveIdentity(r, cfg)
			if err != nil {
				ctxzap.Warn(r.Context(), "rejected credentials", zap.Error(err))
				response.Error(w, http.StatusUnauthorized, err.Error())
				return
			}

			ctx := WithIdentity(r.Context(), identity)
			ctx = logger.WithUser(ctx, identity.Subject())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type AccessChecker interface {
	Check(ctx context.Context, identity entity.Identity, capability string) (bool, error)
}

// RequireCapability rejects callers without capability with 403.
func RequireCapability(checker AccessChecker, capability string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFrom(r.Context())
			allowed, err := checker.Check(r.Context(), identity, capability)
			if err != nil {
				ctxzap.Error(r.Context(), "access check failed", zap.Error(err))
			}
			if err != nil || !allowed {
				response.Error(w, http.StatusForbidden, fmt.Sprintf("%s lacks %s", identity.Subject(), capability))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func resolveIdentity(r *http.Request, cfg IdentityConfig) (entity.Identity, error) {
	if auth := r.Header.Get("Authorization"); cfg.Secret != "" && auth != "" {
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			return entity.Identity{}, errInvalidToken
		}
		subject, err := ParseToken(cfg.Secret, strings.TrimSpace(token))
		if err != nil {
			return entity.Identity{}, err
		}
		return entity.AuthenticatedIdentity(subject), nil
	}

	if cfg.TrustUserHeader {
		if id := strings.TrimSpace(r.Header.Get(UserIDHeader)); id != "" {
			return entity.AuthenticatedIdentity(id), nil
		}
	}
	return entity.AnonymousIdentity(), nil
}

// ParseToken verifies an HS256 token and returns its subject.
func ParseToken(secret, tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", errInvalidToken)
	}
	return claims.Subject, nil
}

// SignToken issues an HS256 token for subject.
func SignToken(secret, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func WithIdentity(ctx context.Context, identity entity.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFrom returns the caller identity, anonymous when none was set.
func IdentityFrom(ctx context.Context) entity.Identity {
	if id, ok := ctx.Value(identityKey{}).(entity.Identity); ok {
		return id
	}
	return entity.AnonymousIdentity()
}
