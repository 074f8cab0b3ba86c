package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lernio/gatekeeper"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

const (
	msgUnauthorized = "Authentication required"
	msgForbidden    = "You do not have access to this resource"
	msgInternal     = "An unexpected error occurred"
)

// public lists the errors whose own text is safe to show to clients.
var public = []error{
	gatekeeper.ErrInvalidCredentials,
	gatekeeper.ErrRateLimited,
	gatekeeper.ErrUnknownRole,
	gatekeeper.ErrSessionNotFound,
	gatekeeper.ErrSessionLimitExceeded,
	gatekeeper.ErrAdminRequestExists,
	gatekeeper.ErrAdminRequestPreviouslyRejected,
	gatekeeper.ErrAdminAlreadyExists,
	gatekeeper.ErrAdminRequestProcessed,
	gatekeeper.ErrAdminRequestNotFound,
	gatekeeper.ErrPasswordResetInvalid,
	gatekeeper.ErrPasswordPolicy,
}

// OK sends a 200 response.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Created sends a 201 response.
func Created(c *gin.Context, data any, message string) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data, Message: message})
}

// Message sends a 200 response without data.
func Message(c *gin.Context, message string) {
	c.JSON(http.StatusOK, Envelope{Success: true, Message: message})
}

// BadRequest sends a 400 response for malformed bodies.
func BadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Envelope{Error: string(gatekeeper.KindValidation), Message: message})
}

// Unauthorized sends a 401 response. It never says which check failed.
func Unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Envelope{Error: string(gatekeeper.KindUnauthorized), Message: msgUnauthorized})
}

// Conflict sends a 409 response carrying data, used when the caller must act
// on the payload (e.g. revoke a session) before retrying.
func Conflict(c *gin.Context, err error, data any) {
	c.AbortWithStatusJSON(http.StatusConflict, Envelope{
		Error:   string(gatekeeper.KindConflict),
		Message: publicMessage(err, msgInternal),
		Data:    data,
	})
}

// Error converts err into an error envelope and aborts the chain.
func Error(c *gin.Context, err error) {
	status, body := Describe(err)
	c.AbortWithStatusJSON(status, body)
}

// Describe maps err to its HTTP status and envelope.
func Describe(err error) (int, Envelope) {
	if isUnavailable(err) {
		return http.StatusServiceUnavailable, Envelope{Error: string(gatekeeper.KindInternal), Message: msgInternal}
	}

	kind := gatekeeper.KindOf(err)
	body := Envelope{Error: string(kind)}
	switch kind {
	case gatekeeper.KindUnauthorized:
		body.Message = msgUnauthorized
		if errors.Is(err, gatekeeper.ErrInvalidCredentials) {
			body.Message = gatekeeper.ErrInvalidCredentials.Error()
		}
		return http.StatusUnauthorized, body
	case gatekeeper.KindForbidden:
		body.Message = msgForbidden
		return http.StatusForbidden, body
	case gatekeeper.KindRateLimited:
		body.Message = gatekeeper.ErrRateLimited.Error()
		return http.StatusTooManyRequests, body
	case gatekeeper.KindConflict:
		body.Message = publicMessage(err, msgInternal)
		return http.StatusConflict, body
	case gatekeeper.KindNotFound:
		body.Message = publicMessage(err, "Not found")
		return http.StatusNotFound, body
	case gatekeeper.KindValidation:
		var verr *gatekeeper.ValidationError
		if errors.As(err, &verr) {
			body.Message = gatekeeper.ErrInvalidInput.Error()
			body.Data = verr.Fields
		} else {
			body.Message = publicMessage(err, gatekeeper.ErrInvalidInput.Error())
		}
		return http.StatusBadRequest, body
	default:
		body.Error = string(gatekeeper.KindInternal)
		body.Message = msgInternal
		return http.StatusInternalServerError, body
	}
}

func isUnavailable(err error) bool {
	return errors.Is(err, gatekeeper.ErrStoreUnavailable) ||
		errors.Is(err, gatekeeper.ErrDatabaseUnavailable) ||
		errors.Is(err, gatekeeper.ErrMailUnavailable) ||
		errors.Is(err, gatekeeper.ErrPasswordResetUnavailable) ||
		errors.Is(err, gatekeeper.ErrEngineNotReady)
}

func publicMessage(err error, fallback string) string {
	for _, target := range public {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return fallback
}
