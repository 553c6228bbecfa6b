package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ByAncort/JwtAuth/internal/services"
	"github.com/ByAncort/JwtAuth/internal/store"
	"github.com/ByAncort/JwtAuth/internal/token"
	"github.com/ByAncort/JwtAuth/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const invalidCredentialsMessage = "invalid username or password"

// PrincipalResolver loads the user a verified token subject refers to.
type PrincipalResolver interface {
	GetByUsername(ctx context.Context, username string) (types.User, error)
}

// AuthHandler provides the signin/signup/validate endpoints.
type AuthHandler struct {
	auth       *services.AuthService
	codec      *token.Codec
	users      PrincipalResolver
	cookieName string
	logger     zerolog.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(auth *services.AuthService, codec *token.Codec, users PrincipalResolver, cookieName string, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:       auth,
		codec:      codec,
		users:      users,
		cookieName: cookieName,
		logger:     logger,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler) {
	r.Post("/signin", handler.Signin)
	r.Post("/signup", handler.Signup)
	r.With(handler.RequireAuth).Get("/validate", handler.Validate)
}

// RequireAuth enforces bearer-token authentication and attaches the resolved
// user to the request context. Any token failure is rejected with 401 before
// protected handlers run; the principal lives only for this request.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := h.requestToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		subject, err := h.codec.ExtractSubject(tokenString)
		if err != nil {
			h.logger.Debug().Err(err).Msg("token rejected")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		user, err := h.users.GetByUsername(r.Context(), subject)
		if err != nil || !user.Enabled {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), user)))
	})
}

// Signin verifies credentials and returns a fresh token.
func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	result, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		// UserNotFound and InvalidCredentials are distinguishable in logs
		// only; the response is identical to prevent user enumeration.
		if errors.Is(err, services.ErrUserNotFound) || errors.Is(err, services.ErrInvalidCredentials) {
			h.logger.Info().Err(err).Str("username", req.Username).Msg("signin denied")
			writeError(w, http.StatusUnauthorized, invalidCredentialsMessage)
			return
		}
		h.logger.Error().Err(err).Msg("signin failed")
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Signup creates a new user account and returns a fresh token.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	result, err := h.auth.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUsernameTaken):
			writeError(w, http.StatusBadRequest, "Error: Username is already taken!")
		case errors.Is(err, services.ErrEmailTaken):
			writeError(w, http.StatusBadRequest, "Error: Email is already in use!")
		default:
			h.logger.Error().Err(err).Msg("signup failed")
			writeError(w, http.StatusInternalServerError, "failed to register user")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Validate confirms the presented token. The middleware has already verified
// it and resolved the principal; reaching this handler means the token is
// good.
func (h *AuthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	user, err := principalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	writeJSON(w, http.StatusOK, TokenValidationResponse{
		Valid:    true,
		Username: user.Username,
		Message:  "token is valid and active",
	})
}

func (h *AuthHandler) requestToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", errors.New("invalid authorization header")
		}
		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			return "", errors.New("invalid authorization header")
		}
		return tokenString, nil
	}

	if h.cookieName != "" {
		cookie, err := r.Cookie(h.cookieName)
		if err == nil && cookie.Value != "" {
			return cookie.Value, nil
		}
	}

	return "", errors.New("missing authorization")
}

var _ PrincipalResolver = (*store.UserRepository)(nil)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenValidationResponse is the payload of GET /validate.
type TokenValidationResponse struct {
	Valid    bool   `json:"valid"`
	Username string `json:"username"`
	Message  string `json:"message"`
}
