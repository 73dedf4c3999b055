package handler

import (
	"net/http"

	"github.com/sandeepkv93/edu-session-service/internal/http/middleware"
	"github.com/sandeepkv93/edu-session-service/internal/http/response"
	"github.com/sandeepkv93/edu-session-service/internal/service"
)

type UserHandler struct{}

func NewUserHandler() *UserHandler { return &UserHandler{} }

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		response.ServiceError(w, r, service.ErrSessionRequired)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{
		"user_id":  id.UserID,
		"username": id.Username,
	})
}
