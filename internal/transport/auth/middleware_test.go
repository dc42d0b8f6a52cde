package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"customs-ledger/internal/domain"
)

type fakeTokens map[string]*domain.PersonalAccessToken

func (f fakeTokens) FindTokenByPlainToken(ctx context.Context, plain string) (*domain.PersonalAccessToken, error) {
	if t, ok := f[plain]; ok {
		return t, nil
	}
	return nil, errors.New("token not found")
}

func serve(t *testing.T, mw func(http.Handler) http.Handler, req *http.Request) (*httptest.ResponseRecorder, Identity) {
	t.Helper()
	var got Identity
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := GetIdentity(r.Context())
		if !ok {
			t.Fatalf("identity missing from context")
		}
		got = id
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, got
}

func TestMiddleware_Sanctum(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	tokens := fakeTokens{
		"1|user":    {ID: 1, UserID: 10, Abilities: `["*"]`},
		"2|clerk":   {ID: 2, UserID: 11, Abilities: `["ledger"]`},
		"3|expired": {ID: 3, UserID: 12, ExpiresAt: &past},
	}
	mw := SanctumMiddleware(tokens)

	req := httptest.NewRequest(http.MethodGet, "/incoming-payments", nil)
	req.Header.Set("Authorization", "Bearer 1|user")
	rec, id := serve(t, mw, req)
	if rec.Code != http.StatusNoContent || id.UserID != 10 || !id.Admin {
		t.Fatalf("unexpected result %d %+v", rec.Code, id)
	}

	req = httptest.NewRequest(http.MethodGet, "/ws?token=2|clerk", nil)
	rec, id = serve(t, mw, req)
	if rec.Code != http.StatusNoContent || id.UserID != 11 || id.Admin {
		t.Fatalf("unexpected result %d %+v", rec.Code, id)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer 3|expired")
	if rec, _ := serve(t, mw, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	if rec, _ := serve(t, mw, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestMiddleware_JWT(t *testing.T) {
	secret := []byte("test-secret")
	mw := Middleware(fakeTokens{}, secret)

	signed, err := SignJWT(secret, 7, RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec, id := serve(t, mw, req)
	if rec.Code != http.StatusNoContent || id.UserID != 7 || !id.Admin {
		t.Fatalf("unexpected result %d %+v", rec.Code, id)
	}

	forged, _ := SignJWT([]byte("other-secret"), 7, RoleAdmin, time.Hour)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	if rec, _ := serve(t, mw, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign signature, got %d", rec.Code)
	}
}

func TestGetUserID(t *testing.T) {
	if _, err := GetUserID(context.Background()); err == nil {
		t.Fatalf("expected error for empty context")
	}
	id, err := GetUserID(WithIdentity(context.Background(), Identity{UserID: 5}))
	if err != nil || id != 5 {
		t.Fatalf("expected 5, got %d %v", id, err)
	}
}
