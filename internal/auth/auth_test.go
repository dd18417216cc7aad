package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorpalhq/vorpal/internal/models"
)

func resolveThrough(t *testing.T, r *Resolver, mutate func(*http.Request)) models.Actor {
	t.Helper()
	var got models.Actor
	handler := r.Middleware(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		got = ActorFromContext(req.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/systems", nil)
	if mutate != nil {
		mutate(req)
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestMiddlewareAnonymousByDefault(t *testing.T) {
	actor := resolveThrough(t, &Resolver{}, nil)
	assert.Equal(t, "anonymous", actor.ID)
	assert.Equal(t, models.ActorTypeUser, actor.Type)
}

func TestMiddlewareAPIKey(t *testing.T) {
	r := &Resolver{APIKeys: map[string]string{"secret-key": "ci-bot"}}

	actor := resolveThrough(t, r, func(req *http.Request) {
		req.Header.Set("X-API-Key", "secret-key")
	})
	assert.Equal(t, "ci-bot", actor.ID)
	assert.Equal(t, models.ActorTypeAPIKey, actor.Type)
}

func TestMiddlewareUnknownAPIKeyFallsBackToAnonymous(t *testing.T) {
	r := &Resolver{APIKeys: map[string]string{"secret-key": "ci-bot"}}

	actor := resolveThrough(t, r, func(req *http.Request) {
		req.Header.Set("X-API-Key", "wrong")
	})
	assert.Equal(t, "anonymous", actor.ID, "bad credentials attribute as anonymous, they do not reject")
}

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestMiddlewareBearerToken(t *testing.T) {
	secret := []byte("test-secret")
	r := &Resolver{JWTSecret: secret}

	raw := signToken(t, secret, jwt.MapClaims{
		"sub":  "alice",
		"name": "Alice Example",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	actor := resolveThrough(t, r, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+raw)
	})
	assert.Equal(t, "alice", actor.ID)
	assert.Equal(t, models.ActorTypeUser, actor.Type)
	assert.Equal(t, "Alice Example", actor.DisplayName)
}

func TestMiddlewareRejectsBadSignature(t *testing.T) {
	r := &Resolver{JWTSecret: []byte("server-secret")}

	raw := signToken(t, []byte("attacker-secret"), jwt.MapClaims{"sub": "mallory"})
	actor := resolveThrough(t, r, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+raw)
	})
	assert.Equal(t, "anonymous", actor.ID)
}

func TestMiddlewareRejectsTokenWithoutSubject(t *testing.T) {
	secret := []byte("test-secret")
	r := &Resolver{JWTSecret: secret}

	raw := signToken(t, secret, jwt.MapClaims{"name": "nobody"})
	actor := resolveThrough(t, r, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+raw)
	})
	assert.Equal(t, "anonymous", actor.ID)
}

func TestMiddlewareCapturesRequestMeta(t *testing.T) {
	var meta Meta
	handler := (&Resolver{}).Middleware(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		meta = MetaFromContext(req.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:4432"
	req.Header.Set("User-Agent", "vorpalctl/1.0")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "198.51.100.7", meta.IPAddress)
	assert.Equal(t, "vorpalctl/1.0", meta.UserAgent)
}

func TestActorFromContextDefaultsToAnonymous(t *testing.T) {
	actor := ActorFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.Equal(t, "anonymous", actor.ID)
}
