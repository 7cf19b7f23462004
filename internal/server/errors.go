package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	customerdomain "github.com/retailware/bonusgate/internal/customer/domain"
	productdomain "github.com/retailware/bonusgate/internal/product/domain"
	receiptdomain "github.com/retailware/bonusgate/internal/receipt/domain"
)

// apiError is the wire shape for every non-2xx reply. The 1C integration
// reads the detail string, so it stays human-readable.
type apiError struct {
	status int
	Code   string       `json:"code"`
	Detail string       `json:"detail"`
	Fields []fieldError `json:"fields,omitempty"`
}

type fieldError struct {
	Field  string `json:"field"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

func (e *apiError) Error() string { return e.Detail }

var (
	ErrUnauthorized    = &apiError{status: http.StatusUnauthorized, Code: "unauthorized", Detail: "Invalid API key"}
	ErrAuthUnset       = &apiError{status: http.StatusUnauthorized, Code: "auth_not_configured", Detail: "Server auth not configured"}
	ErrIPNotAllowed    = &apiError{status: http.StatusForbidden, Code: "ip_not_allowed", Detail: "IP not allowed"}
	ErrBadSignature    = &apiError{status: http.StatusUnauthorized, Code: "bad_signature", Detail: "Invalid signature"}
	ErrStaleTimestamp  = &apiError{status: http.StatusUnauthorized, Code: "stale_timestamp", Detail: "Timestamp out of range"}
	ErrNotFound        = &apiError{status: http.StatusNotFound, Code: "not_found", Detail: "Not found"}
	ErrTooManyRequests = &apiError{status: http.StatusTooManyRequests, Code: "rate_limited", Detail: "Too many requests"}
)

func invalidRequestError() *apiError {
	return &apiError{status: http.StatusBadRequest, Code: "invalid_request", Detail: "Invalid request body"}
}

// bindingError turns a gin binding failure into an apiError, preserving the
// per-field validator diagnostics when present.
func bindingError(err error) *apiError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return invalidRequestError()
	}
	api := invalidRequestError()
	api.Code = "validation_error"
	for _, fe := range verrs {
		api.Fields = append(api.Fields, fieldError{
			Field:  fe.Field(),
			Code:   fe.Tag(),
			Detail: fe.Error(),
		})
	}
	return api
}

func newValidationError(field, code, detail string) *apiError {
	return &apiError{
		status: http.StatusBadRequest,
		Code:   "validation_error",
		Detail: detail,
		Fields: []fieldError{{Field: field, Code: code, Detail: detail}},
	}
}

// AbortWithError renders err as an apiError and stops the handler chain.
// Domain sentinels map to their HTTP statuses; anything unrecognized is a 500
// with no internals leaked.
func AbortWithError(c *gin.Context, err error) {
	var api *apiError
	if errors.As(err, &api) {
		c.AbortWithStatusJSON(api.status, api)
		return
	}

	switch {
	case errors.Is(err, receiptdomain.ErrMissingIdempotencyKey):
		api = newValidationError("X-Idempotency-Key", "required", "Missing X-Idempotency-Key header")
	case errors.Is(err, receiptdomain.ErrCustomerUnresolvable):
		api = newValidationError("customer", "unresolvable", "Customer could not be resolved")
	case errors.Is(err, receiptdomain.ErrCustomerNotFound),
		errors.Is(err, customerdomain.ErrNotFound):
		api = &apiError{status: http.StatusNotFound, Code: "customer_not_found", Detail: "Customer not found"}
	case errors.Is(err, receiptdomain.ErrInvalidPurchaseDate):
		api = newValidationError("purchase_date", "invalid", "purchase_date must be DD-MM-YYYY")
	case errors.Is(err, receiptdomain.ErrInvalidPurchaseTime):
		api = newValidationError("purchase_time", "invalid", "purchase_time must be HH:MM or HH:MM:SS")
	case errors.Is(err, customerdomain.ErrInvalidTelegram):
		api = newValidationError("telegram_id", "required", "telegram_id is required")
	case errors.Is(err, productdomain.ErrInvalidCode):
		api = newValidationError("product_code", "required", "product_code is required")
	case errors.Is(err, productdomain.ErrInvalidName):
		api = newValidationError("name", "required", "name is required")
	default:
		_ = c.Error(err)
		api = &apiError{status: http.StatusInternalServerError, Code: "internal", Detail: "Internal server error"}
	}
	c.AbortWithStatusJSON(api.status, api)
}
