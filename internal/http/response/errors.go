package response

import (
	"errors"
	"net/http"

	"github.com/sandeepkv93/edu-session-service/internal/service"
)

// Client-facing messages. Internal reason codes never reach the body.
const (
	MsgSessionRequired     = "Sesión requerida"
	MsgInvalidToken        = "Token inválido"
	MsgDeviceNotAuthorized = "Dispositivo no autorizado"
	MsgSessionExpired      = "Sesión expirada o inválida"
	MsgInvalidCredentials  = "Credenciales inválidas"
	MsgBadRequest          = "Solicitud inválida"
	MsgOriginRejected      = "Origen no permitido"
	MsgRateLimited         = "Demasiadas solicitudes"
	MsgInternal            = "Error interno"
)

type Failure struct {
	Status  int
	Code    string
	Message string
}

// Classify maps a service error onto its HTTP status, code and message.
// Anything unrecognised is an internal error.
func Classify(err error) Failure {
	switch {
	case errors.Is(err, service.ErrMalformedRequest):
		return Failure{http.StatusBadRequest, "BAD_REQUEST", MsgBadRequest}
	case errors.Is(err, service.ErrSessionRequired):
		return Failure{http.StatusUnauthorized, "SESSION_REQUIRED", MsgSessionRequired}
	case errors.Is(err, service.ErrInvalidToken):
		return Failure{http.StatusUnauthorized, "INVALID_TOKEN", MsgInvalidToken}
	case errors.Is(err, service.ErrFingerprintMismatch):
		return Failure{http.StatusUnauthorized, "DEVICE_NOT_AUTHORIZED", MsgDeviceNotAuthorized}
	case errors.Is(err, service.ErrSessionExpired):
		return Failure{http.StatusUnauthorized, "SESSION_EXPIRED", MsgSessionExpired}
	case errors.Is(err, service.ErrInvalidCredentials):
		return Failure{http.StatusUnauthorized, "INVALID_CREDENTIALS", MsgInvalidCredentials}
	case errors.Is(err, service.ErrConfigurationMissing):
		return Failure{http.StatusInternalServerError, "CONFIGURATION_MISSING", MsgInternal}
	default:
		return Failure{http.StatusInternalServerError, "INTERNAL", MsgInternal}
	}
}

func ServiceError(w http.ResponseWriter, r *http.Request, err error) {
	f := Classify(err)
	Error(w, r, f.Status, f.Code, f.Message)
}
