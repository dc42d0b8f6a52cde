package auth

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"customs-ledger/internal/domain"
)

type ctxKey string

const identityKey ctxKey = "identity"

// Identity is the authenticated caller.
type Identity struct {
	UserID int64
	Admin  bool
}

type TokenFinder interface {
	FindTokenByPlainToken(ctx context.Context, plainToken string) (*domain.PersonalAccessToken, error)
}

// Middleware authenticates with a bearer JWT when jwtSecret is set, then
// falls back to Sanctum personal access tokens. The token may also come in
// the "token" query parameter, which websocket clients use.
func Middleware(tokens TokenFinder, jwtSecret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				token = strings.TrimSpace(r.URL.Query().Get("token"))
			}
			if token == "" {
				log.Printf("[AUTH] %s %s: no token -> 401", r.Method, r.URL.Path)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if len(jwtSecret) > 0 {
				if claims, err := ParseJWT(token, jwtSecret); err == nil {
					id := Identity{UserID: claims.UserID, Admin: claims.Role == RoleAdmin}
					next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
					return
				}
			}

			if tokens == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			pat, err := tokens.FindTokenByPlainToken(r.Context(), token)
			if err != nil {
				log.Printf("[AUTH] %s %s: token lookup: %v -> 401", r.Method, r.URL.Path, err)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if pat.Expired(time.Now()) {
				log.Printf("[AUTH] token id=%d expired at %v -> 401", pat.ID, pat.ExpiresAt)
				http.Error(w, "Token expired", http.StatusUnauthorized)
				return
			}

			id := Identity{UserID: pat.UserID, Admin: pat.HasAbility(RoleAdmin)}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func SanctumMiddleware(tokens TokenFinder) func(http.Handler) http.Handler {
	return Middleware(tokens, nil)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func GetIdentity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

func GetUserID(ctx context.Context) (int64, error) {
	id, ok := GetIdentity(ctx)
	if !ok {
		return 0, errors.New("userID not found in context")
	}
	return id.UserID, nil
}
