// Package handler exposes the import & ledger pipeline as plain
// net/http.HandlerFuncs: POST /imports/parse, POST /imports/commit, and
// GET /imports, mounted on the same mux as the rest of the API (AMBIENT
// STACK A.6).
package handler

import (
	"context"
	"errors"
	"net/http"
)

type contextKey string

const userIDContextKey contextKey = "userID"

// errNoUserID signals a request reached a handler without an
// authenticated caller attached to its context.
var errNoUserID = errors.New("no user id in request context")

// UserIDFromContext resolves the authenticated caller's id that
// RequireAuth (or any other edge middleware calling WithUserID) attached
// to ctx (§9 "Ambient request context").
func UserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDContextKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithUserID attaches an authenticated user id to ctx; exported so the
// edge middleware that terminates auth (bearer token, session cookie,
// whatever the deployment uses) can populate it before handing the
// request to this package's handlers.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

func requireUserID(r *http.Request) (string, error) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		return "", errNoUserID
	}
	return userID, nil
}
