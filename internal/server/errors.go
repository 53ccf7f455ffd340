package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	apicalldomain "github.com/citeflex/citeledger/internal/apicall/domain"
	auditdomain "github.com/citeflex/citeledger/internal/audit/domain"
	dailystatsdomain "github.com/citeflex/citeledger/internal/dailystats/domain"
	ledgerdomain "github.com/citeflex/citeledger/internal/ledger/domain"
	reportingdomain "github.com/citeflex/citeledger/internal/reporting/domain"
	resolutiondomain "github.com/citeflex/citeledger/internal/resolution/domain"
	sessiondomain "github.com/citeflex/citeledger/internal/session/domain"
	userdomain "github.com/citeflex/citeledger/internal/user/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, auditdomain.ErrRetentionViolation),
		errors.Is(err, auditdomain.ErrImmutableRecord),
		errors.Is(err, ledgerdomain.ErrImmutableTransaction):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: err.Error(),
		}
	case errors.Is(err, ledgerdomain.ErrInsufficientBalance):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_balance",
			Message: "insufficient balance",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, userdomain.ErrAlreadyExists),
		errors.Is(err, sessiondomain.ErrAlreadyFinalized),
		errors.Is(err, sessiondomain.ErrDuplicateKey),
		errors.Is(err, ledgerdomain.ErrConflictRetryable),
		errors.Is(err, ledgerdomain.ErrSessionCharged),
		errors.Is(err, dailystatsdomain.ErrDateClosed):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, userdomain.ErrInvalidEmail),
		errors.Is(err, userdomain.ErrInvalidTier),
		errors.Is(err, userdomain.ErrInvalidUser),
		errors.Is(err, ledgerdomain.ErrInvalidUser),
		errors.Is(err, ledgerdomain.ErrInvalidAmount),
		errors.Is(err, ledgerdomain.ErrInvalidKind),
		errors.Is(err, ledgerdomain.ErrRefundWithoutSession),
		errors.Is(err, sessiondomain.ErrInvalidUser),
		errors.Is(err, sessiondomain.ErrInvalidStatus),
		errors.Is(err, apicalldomain.ErrInvalidProvider),
		errors.Is(err, apicalldomain.ErrInvalidSourceType),
		errors.Is(err, apicalldomain.ErrInvalidCitationType),
		errors.Is(err, apicalldomain.ErrInvalidTokens),
		errors.Is(err, apicalldomain.ErrInvalidCost),
		errors.Is(err, apicalldomain.ErrInvalidSession),
		errors.Is(err, resolutiondomain.ErrInvalidSession),
		errors.Is(err, resolutiondomain.ErrInvalidSimilarity),
		errors.Is(err, dailystatsdomain.ErrInvalidDate),
		errors.Is(err, reportingdomain.ErrInvalidRange),
		errors.Is(err, auditdomain.ErrInvalidAction),
		errors.Is(err, auditdomain.ErrInvalidOutcome),
		errors.Is(err, auditdomain.ErrInvalidSeverity),
		errors.Is(err, auditdomain.ErrInvalidCategory):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, userdomain.ErrNotFound),
		errors.Is(err, sessiondomain.ErrNotFound),
		errors.Is(err, dailystatsdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}
