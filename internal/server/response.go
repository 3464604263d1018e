package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abhisek/alis/internal/tutor"
)

// ErrorEnvelope is the body of every failed request.
type ErrorEnvelope struct {
	ErrorKind tutor.Kind `json:"errorKind"`
	Message   string     `json:"message"`
	Retryable bool       `json:"retryable,omitempty"`
}

func statusFor(kind tutor.Kind) int {
	switch kind {
	case tutor.KindNotFound:
		return http.StatusNotFound
	case tutor.KindInvalidState, tutor.KindIllegalTransition, tutor.KindConflict:
		return http.StatusConflict
	case tutor.KindGeneration, tutor.KindGenerationTimeout:
		return http.StatusServiceUnavailable
	case tutor.KindConfiguration, tutor.KindBadRequest:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondError writes err as an ErrorEnvelope. Internal details stay in
// the log.
func (s *Server) respondError(c *gin.Context, err error) {
	kind := tutor.KindOf(err)
	status := statusFor(kind)

	msg := err.Error()
	var te *tutor.Error
	if errors.As(err, &te) {
		msg = te.Message
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
		msg = "internal error"
	}
	retry := tutor.Retryable(err)
	if retry {
		c.Header("Retry-After", "1")
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{ErrorKind: kind, Message: msg, Retryable: retry})
}

func badRequest(format string, args ...any) error {
	return tutor.BadRequest(format, args...)
}
