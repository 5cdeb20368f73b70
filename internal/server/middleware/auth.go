package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/skywatch-labs/skywatch/internal/model"
	"github.com/skywatch-labs/skywatch/internal/service"
)

type contextKeyAuth string

const identityKey contextKeyAuth = "auth_identity"

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	ID   string
	Role model.Role
}

// TokenVerifier validates a bearer token. *service.AuthService satisfies it.
type TokenVerifier interface {
	ValidateToken(token string) (*service.Principal, error)
}

// unauthorizedMessage is shared by every 401 so a client cannot tell a
// missing token from a rejected one.
const unauthorizedMessage = "Authentication required"

// errNoIdentity means RequireRoles ran on a route without Authenticate.
var errNoIdentity = errors.New("no identity on request context")

// Authenticate returns an HTTP middleware that requires a valid
// "Authorization: Bearer <token>" header. On success an Identity is attached
// to the request context. On failure a 401 JSON error response is returned.
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				writeAuthError(w, err)
				return
			}

			p, err := verifier.ValidateToken(token)
			if err != nil {
				writeAuthError(w, err)
				return
			}

			ctx := WithIdentity(r.Context(), Identity{ID: p.UserID, Role: p.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRoles returns an HTTP middleware that admits only identities whose
// role is listed. It must run after Authenticate; a request that reaches it
// without an identity is answered with 500. It panics if roles is empty.
func RequireRoles(roles ...model.Role) func(http.Handler) http.Handler {
	allowed := model.NewRoleSet(roles...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				writeAuthError(w, errNoIdentity)
				return
			}
			if !allowed.Allows(id.Role) {
				writeAuthError(w, service.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Protect chains Authenticate and RequireRoles so a route cannot be mounted
// with only one of them.
func Protect(verifier TokenVerifier, roles ...model.Role) func(http.Handler) http.Handler {
	authn := Authenticate(verifier)
	authz := RequireRoles(roles...)
	return func(next http.Handler) http.Handler {
		return authn(authz(next))
	}
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom extracts the authenticated identity from the context.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", service.ErrUnauthenticated
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", service.ErrUnauthenticated
	}
	return token, nil
}

// authStatus maps an authentication or authorization failure to its
// response. Any verifier error that is not a known sentinel still answers
// 401 so an unexpected failure never admits the request.
func authStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, errNoIdentity):
		return http.StatusInternalServerError, "Authorization is misconfigured for this route"
	default:
		return http.StatusUnauthorized, unauthorizedMessage
	}
}

type authErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeAuthError writes the handler package's error envelope. It lives here
// to avoid an import cycle with handler.
func writeAuthError(w http.ResponseWriter, err error) {
	status, message := authStatus(err)
	var body authErrorBody
	body.Error.Code = status
	body.Error.Message = message

	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="skywatch"`)
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
