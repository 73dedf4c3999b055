package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/sandeepkv93/edu-session-service/internal/http/middleware"
	"github.com/sandeepkv93/edu-session-service/internal/http/response"
	"github.com/sandeepkv93/edu-session-service/internal/observability"
	"github.com/sandeepkv93/edu-session-service/internal/security"
	"github.com/sandeepkv93/edu-session-service/internal/service"
)

// SessionIssuer is the slice of service.AuthService the handlers need.
type SessionIssuer interface {
	Login(ctx context.Context, req service.LoginRequest) (*service.LoginResult, error)
	Logout(ctx context.Context, userID string) error
}

type AuthHandler struct {
	auth SessionIssuer
}

func NewAuthHandler(auth SessionIssuer) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type loginRequest struct {
	Identity string `json:"identity"`
	Password string `json:"password"`
	// Secret is accepted as an alias for Password.
	Secret string `json:"secret"`
}

type loginResponse struct {
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type sessionResponse struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		observability.Audit(r, "auth.login", "outcome", "rejected", "reason", "malformed_body")
		response.ServiceError(w, r, service.ErrMalformedRequest)
		return
	}
	password := req.Password
	if password == "" {
		password = req.Secret
	}
	res, err := h.auth.Login(r.Context(), service.LoginRequest{
		Identity: req.Identity,
		Password: password,
		Signals:  security.SignalsFromRequest(r),
	})
	if err != nil {
		reason := service.FailureReason(err)
		if response.Classify(err).Status >= http.StatusInternalServerError {
			slog.ErrorContext(r.Context(), "login failed", "reason", reason, "error", err.Error())
		}
		observability.Audit(r, "auth.login", "outcome", "rejected", "reason", reason)
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.login", "outcome", "success", "user_id", res.UserID)
	response.JSON(w, r, http.StatusOK, loginResponse{
		UserID:    res.UserID,
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		response.ServiceError(w, r, service.ErrSessionRequired)
		return
	}
	if err := h.auth.Logout(r.Context(), id.UserID); err != nil {
		slog.ErrorContext(r.Context(), "logout failed", "user_id", id.UserID, "error", err.Error())
		observability.Audit(r, "auth.logout", "outcome", "error", "user_id", id.UserID)
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.logout", "outcome", "success", "user_id", id.UserID)
	LoggedOut(w, r)
}

// LoggedOut is the logout reply. It is also served when the caller's session
// has already ended, so repeated logouts succeed.
func LoggedOut(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "logged_out"})
}

// Session reports the caller's session as renewed by this very request.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		response.ServiceError(w, r, service.ErrSessionRequired)
		return
	}
	response.JSON(w, r, http.StatusOK, sessionResponse{
		UserID:    id.UserID,
		Username:  id.Username,
		ExpiresAt: id.SessionExpiresAt,
	})
}
