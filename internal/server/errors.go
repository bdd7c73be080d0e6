package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/tabledesk/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/tabledesk/internal/catalog/domain"
	orderdomain "github.com/smallbiznis/tabledesk/internal/order/domain"
	paymentdomain "github.com/smallbiznis/tabledesk/internal/payment/domain"
	"github.com/smallbiznis/tabledesk/internal/pricing"
	"github.com/smallbiznis/tabledesk/internal/ratelimit"
	salesreportdomain "github.com/smallbiznis/tabledesk/internal/salesreport/domain"
	sessiondomain "github.com/smallbiznis/tabledesk/internal/tablesession/domain"
	"github.com/smallbiznis/tabledesk/pkg/db"
	"gorm.io/gorm"
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
	Type      string            `json:"type"`
	Message   string            `json:"message"`
	Errors    []ValidationError `json:"errors,omitempty"`
	Retryable bool              `json:"retryable,omitempty"`
	// Session is the balance a rejected payment was checked against.
	Session *sessiondomain.Aggregate `json:"session,omitempty"`
	Order   *orderdomain.Order       `json:"order,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
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
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	var overpayment *paymentdomain.OverpaymentError
	switch {
	case errors.As(err, &overpayment):
		return http.StatusConflict, errorPayload{
			Type:    "overpayment_rejected",
			Message: "amount exceeds the remaining balance",
			Session: overpayment.Aggregate,
		}
	case errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:      "rate_limited",
			Message:   "too many orders from this table, try again shortly",
			Retryable: true,
		}
	case isConflictError(err):
		payload := errorPayload{
			Type:    conflictType(err),
			Message: "conflict",
		}
		var closed *paymentdomain.SessionClosedError
		if errors.As(err, &closed) {
			payload.Session = closed.Aggregate
		}
		var transition *orderdomain.TransitionError
		if errors.As(err, &transition) {
			payload.Order = transition.Order
		}
		return http.StatusConflict, payload
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, db.ErrTransientStore):
		return http.StatusServiceUnavailable, errorPayload{
			Type:      "transient_store_error",
			Message:   "store temporarily unavailable, retry",
			Retryable: true,
		}
	case errors.Is(err, catalogdomain.ErrCatalogUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "catalog_unavailable",
			Message: "menu unavailable",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		// Partial writes land here too; diners get one generic message.
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger a type and a low-cardinality code.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	code := payload.Type
	switch {
	case errors.Is(err, orderdomain.ErrPartialWrite):
		code = orderdomain.ErrPartialWrite.Error()
	case len(payload.Errors) > 0:
		code = payload.Errors[0].Code
	}
	return payload.Type, code
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
		errors.Is(err, catalogdomain.ErrInvalidSlug):
		return true
	case isPricingValidationError(err),
		isOrderValidationError(err),
		isSessionValidationError(err),
		isPaymentValidationError(err),
		isSalesReportValidationError(err),
		errors.Is(err, auditdomain.ErrInvalidRestaurant):
		return true
	default:
		return false
	}
}

func isPricingValidationError(err error) bool {
	switch {
	case errors.Is(err, pricing.ErrInvalidProduct),
		errors.Is(err, pricing.ErrInvalidQuantity),
		errors.Is(err, pricing.ErrUnknownModifier),
		errors.Is(err, pricing.ErrDuplicateModifier),
		errors.Is(err, pricing.ErrInvalidModifierKind):
		return true
	default:
		return false
	}
}

func isOrderValidationError(err error) bool {
	switch {
	case errors.Is(err, orderdomain.ErrInvalidTable),
		errors.Is(err, orderdomain.ErrEmptyOrder),
		errors.Is(err, orderdomain.ErrInvalidProductID),
		errors.Is(err, orderdomain.ErrInvalidOrderID),
		errors.Is(err, orderdomain.ErrInvalidStatus):
		return true
	default:
		return false
	}
}

func isSessionValidationError(err error) bool {
	switch {
	case errors.Is(err, sessiondomain.ErrInvalidTable),
		errors.Is(err, sessiondomain.ErrInvalidSessionID),
		errors.Is(err, sessiondomain.ErrInvalidStatusFilter):
		return true
	default:
		return false
	}
}

func isPaymentValidationError(err error) bool {
	switch {
	case errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidMethod),
		errors.Is(err, paymentdomain.ErrInvalidSplit):
		return true
	default:
		return false
	}
}

func isSalesReportValidationError(err error) bool {
	return errors.Is(err, salesreportdomain.ErrInvalidRestaurant) ||
		errors.Is(err, salesreportdomain.ErrInvalidRange)
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, paymentdomain.ErrOverpaymentRejected),
		errors.Is(err, paymentdomain.ErrSessionClosed),
		errors.Is(err, orderdomain.ErrInvalidTransition),
		errors.Is(err, orderdomain.ErrOrderPaid),
		errors.Is(err, orderdomain.ErrSessionChanged),
		errors.Is(err, sessiondomain.ErrAmbiguousSession):
		return true
	default:
		return false
	}
}

func conflictType(err error) string {
	for _, known := range []error{
		paymentdomain.ErrOverpaymentRejected,
		paymentdomain.ErrSessionClosed,
		orderdomain.ErrInvalidTransition,
		orderdomain.ErrOrderPaid,
		orderdomain.ErrSessionChanged,
		sessiondomain.ErrAmbiguousSession,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "conflict"
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, catalogdomain.ErrRestaurantNotFound),
		errors.Is(err, orderdomain.ErrProductNotFound),
		errors.Is(err, orderdomain.ErrOrderNotFound),
		errors.Is(err, sessiondomain.ErrSessionNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "empty_order":
		return "items"
	case "unknown_modifier", "duplicate_modifier", "invalid_modifier_kind":
		return "modifiers"
	case "invalid_range_days":
		return "range_days"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "empty_order":
		return "order has no items"
	case "unknown_modifier":
		return "modifier is not offered for this product"
	case "invalid_amount":
		return "amount must be positive with at most two decimals"
	default:
		return "invalid value"
	}
}
