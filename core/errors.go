package core

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	MarketplaceErrorBadInput          = "MARKETPLACE_BAD_INPUT"
	MarketplaceErrorNotFound          = "MARKETPLACE_NOT_FOUND"
	MarketplaceErrorForbidden         = "MARKETPLACE_FORBIDDEN"
	MarketplaceErrorInvalidState      = "MARKETPLACE_INVALID_STATE"
	MarketplaceErrorConflict          = "MARKETPLACE_CONFLICT"
	MarketplaceErrorTransactionFailed = "MARKETPLACE_TRANSACTION_FAILED"
	MarketplaceErrorRateLimited       = "MARKETPLACE_RATE_LIMITED"
	MarketplaceErrorUnauthorized      = "MARKETPLACE_UNAUTHORIZED"
	MarketplaceErrorInternal          = "MARKETPLACE_INTERNAL_ERROR"
)

func NotFoundError(entity string, id string) *goerrors.Error {
	return newMarketplaceError(
		fmt.Errorf("%w: %s %q", ErrNotFound, entity, strings.TrimSpace(id)),
		goerrors.CategoryNotFound,
		MarketplaceErrorNotFound,
	).WithMetadata(map[string]any{
		"entity": entity,
		"id":     strings.TrimSpace(id),
	})
}

func ForbiddenError(message string) *goerrors.Error {
	return newMarketplaceError(
		fmt.Errorf("%w: %s", ErrForbidden, message),
		goerrors.CategoryAuthz,
		MarketplaceErrorForbidden,
	)
}

func InvalidStateError(message string) *goerrors.Error {
	return newMarketplaceError(
		fmt.Errorf("%w: %s", ErrInvalidState, message),
		goerrors.CategoryConflict,
		MarketplaceErrorInvalidState,
	)
}

func ConflictError(message string) *goerrors.Error {
	return newMarketplaceError(
		fmt.Errorf("%w: %s", ErrConflict, message),
		goerrors.CategoryConflict,
		MarketplaceErrorConflict,
	)
}

func ValidationError(field string, message string) *goerrors.Error {
	return goerrors.NewValidation("core: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(MarketplaceErrorBadInput)
}

func TransactionFailedError(cause error) *goerrors.Error {
	wrapped := ErrTransactionFailed
	if cause != nil {
		wrapped = fmt.Errorf("%w: %v", ErrTransactionFailed, cause)
	}
	return newMarketplaceError(wrapped, goerrors.CategoryInternal, MarketplaceErrorTransactionFailed)
}

func newMarketplaceError(err error, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureMarketplaceErrorEnvelope(
		goerrors.Wrap(err, category, err.Error()).
			WithTextCode(textCode),
	)
}

// MapError converts any error into a marketplace error envelope.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureMarketplaceErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrTransactionFailed):
		return newMarketplaceError(err, goerrors.CategoryInternal, MarketplaceErrorTransactionFailed)
	case errors.Is(err, ErrNotFound), errors.Is(err, sql.ErrNoRows):
		return newMarketplaceError(err, goerrors.CategoryNotFound, MarketplaceErrorNotFound)
	case errors.Is(err, ErrForbidden):
		return newMarketplaceError(err, goerrors.CategoryAuthz, MarketplaceErrorForbidden)
	case errors.Is(err, ErrInvalidState):
		return newMarketplaceError(err, goerrors.CategoryConflict, MarketplaceErrorInvalidState)
	case errors.Is(err, ErrConflict), errors.Is(err, ErrUniqueViolation):
		return newMarketplaceError(err, goerrors.CategoryConflict, MarketplaceErrorConflict)
	case errors.Is(err, ErrValidation):
		return newMarketplaceError(err, goerrors.CategoryValidation, MarketplaceErrorBadInput)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newMarketplaceError(err, goerrors.CategoryRateLimit, MarketplaceErrorRateLimited)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newMarketplaceError(err, goerrors.CategoryBadInput, MarketplaceErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureMarketplaceErrorEnvelope(mapped)
}

func ensureMarketplaceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = marketplaceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultMarketplaceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultMarketplaceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return MarketplaceErrorBadInput
	case goerrors.CategoryNotFound:
		return MarketplaceErrorNotFound
	case goerrors.CategoryAuth:
		return MarketplaceErrorUnauthorized
	case goerrors.CategoryAuthz:
		return MarketplaceErrorForbidden
	case goerrors.CategoryConflict:
		return MarketplaceErrorConflict
	case goerrors.CategoryRateLimit:
		return MarketplaceErrorRateLimited
	default:
		return MarketplaceErrorInternal
	}
}

func marketplaceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func hasTextCode(err error, textCode string, sentinel error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sentinel) {
		return true
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == textCode
	}
	return false
}

func IsNotFound(err error) bool {
	return hasTextCode(err, MarketplaceErrorNotFound, ErrNotFound)
}

func IsForbidden(err error) bool {
	return hasTextCode(err, MarketplaceErrorForbidden, ErrForbidden)
}

func IsInvalidState(err error) bool {
	return hasTextCode(err, MarketplaceErrorInvalidState, ErrInvalidState)
}

func IsConflict(err error) bool {
	return hasTextCode(err, MarketplaceErrorConflict, ErrConflict)
}

func IsValidation(err error) bool {
	return hasTextCode(err, MarketplaceErrorBadInput, ErrValidation)
}

func IsTransactionFailed(err error) bool {
	return hasTextCode(err, MarketplaceErrorTransactionFailed, ErrTransactionFailed)
}
