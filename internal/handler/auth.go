package handler

import (
	"log/slog"
	"net/http"

	"github.com/skywatch-labs/skywatch/internal/model"
	"github.com/skywatch-labs/skywatch/internal/server/middleware"
	"github.com/skywatch-labs/skywatch/internal/service"
)

// AuthHandler serves login, provisioning and identity introspection.
type AuthHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(auth *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string           `json:"token"`
	TokenType string           `json:"token_type"`
	ExpiresIn int              `json:"expires_in"`
	User      model.PublicUser `json:"user"`
}

// Login verifies credentials and returns a bearer token.
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	res, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, "", err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     res.Token,
		TokenType: "bearer",
		ExpiresIn: int(h.auth.TTL().Seconds()),
		User:      res.User,
	})
}

// Register provisions a new identity.
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := readJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	u, err := h.auth.Register(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, h.logger, "", err)
		return
	}

	if id, ok := middleware.IdentityFrom(r.Context()); ok {
		h.logger.Info("user provisioned", "user_id", u.ID, "role", u.Role, "by", id.ID)
	}
	writeJSON(w, http.StatusCreated, u)
}

type meResponse struct {
	ID   string     `json:"id"`
	Role model.Role `json:"role"`
}

// Me returns the identity attached to the request.
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	writeJSON(w, http.StatusOK, meResponse{ID: id.ID, Role: id.Role})
}
