package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"carrental/internal/auth"
	"carrental/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// envelope is the shape of every JSON response: success and message are
// always present, the payload key depends on the route.
type envelope map[string]any

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeFailure(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, envelope{"success": false, "message": message, "code": code})
}

// writeError maps service errors onto HTTP statuses. Unclassified errors are
// logged and reported as a generic 500.
func writeError(w http.ResponseWriter, logger *zerolog.Logger, err error) {
	statusCode, code := classify(err)
	if statusCode == http.StatusInternalServerError {
		logger.Error().Err(err).Msg("request failed")
		writeFailure(w, statusCode, code, "internal server error")
		return
	}

	body := envelope{"success": false, "message": err.Error(), "code": code}
	var exists *service.PaymentExistsError
	if errors.As(err, &exists) {
		body["payment"] = exists.Existing
	}
	writeJSON(w, statusCode, body)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidDateRange):
		return http.StatusBadRequest, "INVALID_DATE_RANGE"
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, service.ErrCarUnavailable):
		return http.StatusConflict, "CAR_UNAVAILABLE"
	case errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, service.ErrPaymentAlreadyExists):
		return http.StatusConflict, "PAYMENT_ALREADY_EXISTS"
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED"
	case errors.Is(err, service.ErrRatesUnavailable):
		return http.StatusServiceUnavailable, "RATES_UNAVAILABLE"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

// decode reads a JSON body into dst and runs struct validation on it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body", service.ErrInvalidInput)
	}
	if err := h.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", service.ErrInvalidInput, strings.Join(msgs, "; "))
}
