// Package auth resolves the acting principal for each request. Identity
// management proper lives elsewhere; this layer only extracts claims from
// a bearer JWT or an API key header and hangs the resolved actor on the
// request context for audit emission.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/vorpalhq/vorpal/internal/models"
)

type contextKey int

const (
	actorKey contextKey = iota
	metaKey
)

// Meta is the per-request metadata recorded on audit events.
type Meta struct {
	IPAddress string
	UserAgent string
	RequestID string
}

// ActorFromContext returns the resolved actor, or the anonymous user actor
// when none was resolved (direct service calls in tests, CLI seeding).
func ActorFromContext(ctx context.Context) models.Actor {
	if actor, ok := ctx.Value(actorKey).(models.Actor); ok {
		return actor
	}
	return Anonymous()
}

func MetaFromContext(ctx context.Context) Meta {
	if meta, ok := ctx.Value(metaKey).(Meta); ok {
		return meta
	}
	return Meta{}
}

// WithActor returns a context carrying the given actor. Background workers
// use it to attribute their own events.
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func Anonymous() models.Actor {
	return models.Actor{ID: "anonymous", Type: models.ActorTypeUser, DisplayName: "anonymous"}
}

// Resolver builds the actor-resolution middleware. JWTSecret empty
// disables token verification (dev mode: all traffic is anonymous unless
// it carries an API key).
type Resolver struct {
	JWTSecret []byte
	// APIKeys maps accepted keys to actor ids.
	APIKeys map[string]string
	Logger  *slog.Logger
}

// Middleware resolves the actor from Authorization: Bearer or X-API-Key
// and stores actor plus request metadata on the context. Invalid
// credentials fall back to anonymous rather than rejecting: authorization
// decisions belong to the policy engine, attribution is all this layer
// does.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		actor := Anonymous()

		if key := req.Header.Get("X-API-Key"); key != "" {
			if id, ok := r.APIKeys[key]; ok {
				actor = models.Actor{ID: id, Type: models.ActorTypeAPIKey, DisplayName: id}
			} else {
				logger.Warn("unknown api key presented", "remote", req.RemoteAddr)
			}
		} else if header := req.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token := strings.TrimPrefix(header, "Bearer ")
			if resolved, err := r.resolveJWT(token); err == nil {
				actor = resolved
			} else {
				logger.Warn("bearer token rejected", "error", err)
			}
		}

		meta := Meta{
			IPAddress: clientIP(req),
			UserAgent: req.UserAgent(),
			RequestID: middleware.GetReqID(req.Context()),
		}

		ctx := context.WithValue(req.Context(), actorKey, actor)
		ctx = context.WithValue(ctx, metaKey, meta)
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

func (r *Resolver) resolveJWT(raw string) (models.Actor, error) {
	if len(r.JWTSecret) == 0 {
		return models.Actor{}, fmt.Errorf("jwt verification not configured")
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.JWTSecret, nil
	})
	if err != nil {
		return models.Actor{}, err
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return models.Actor{}, fmt.Errorf("token has no subject")
	}
	name, _ := claims["name"].(string)
	return models.Actor{ID: sub, Type: models.ActorTypeUser, DisplayName: name}, nil
}

func clientIP(req *http.Request) string {
	// chi's RealIP middleware rewrites RemoteAddr from X-Forwarded-For
	addr := req.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx > 0 {
		addr = addr[:idx]
	}
	return strings.Trim(addr, "[]")
}
