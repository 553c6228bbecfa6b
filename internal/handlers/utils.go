package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ByAncort/JwtAuth/types"
)

type contextKey string

const contextPrincipalKey contextKey = "principal"

// principalFromContext returns the authenticated user attached by the auth
// middleware for the current request.
func principalFromContext(ctx context.Context) (types.User, error) {
	user, ok := ctx.Value(contextPrincipalKey).(types.User)
	if !ok {
		return types.User{}, errors.New("missing principal")
	}
	return user, nil
}

func withPrincipal(ctx context.Context, user types.User) context.Context {
	return context.WithValue(ctx, contextPrincipalKey, user)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}
