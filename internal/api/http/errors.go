package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/service"
	"github.com/spec-kit/identity-service/internal/uow"
	apperrors "github.com/spec-kit/identity-service/pkg/util"
)

// MapError translates service and domain failures into transport errors.
// Anything unrecognised becomes an internal error.
func MapError(err error) *apperrors.DomainError {
	var (
		domainErr    *apperrors.DomainError
		fiberErr     *fiber.Error
		validation   *domain.ValidationError
		rule         *domain.RuleViolationError
		already      *domain.AlreadyInStateError
		consistency  *service.ConsistencyError
		commitFailed *uow.TransactionFailedError
	)

	switch {
	case errors.As(err, &domainErr):
		return domainErr
	case errors.As(err, &fiberErr):
		return apperrors.NewDomainError(fiberCode(fiberErr.Code), fiberErr.Message, fiberErr.Code, nil)
	case errors.As(err, &validation):
		return wrap(apperrors.NewValidationError(validation.Error(), map[string]any{validation.Field: validation.Reason}), err)
	case errors.Is(err, service.ErrPasswordLength):
		return wrap(apperrors.NewValidationError(err.Error(), map[string]any{"password": err.Error()}), err)
	case errors.As(err, &rule):
		return wrap(apperrors.NewRuleViolation(rule.Rule), err)
	case errors.As(err, &already):
		return wrap(apperrors.NewRuleViolation(already.Error()), err)
	case errors.Is(err, service.ErrAccountAlreadyExists):
		return wrap(apperrors.NewConflict(err.Error(), nil), err)
	case errors.Is(err, service.ErrAccountNotFound):
		return wrap(apperrors.NewNotFound("account", nil), err)
	case errors.Is(err, service.ErrConfirmationTokenInvalid),
		errors.Is(err, service.ErrRecoverTokenInvalid):
		return wrap(apperrors.NewRuleViolation(err.Error()), err)
	case errors.Is(err, auth.ErrTokenExpired):
		return wrap(apperrors.NewTokenExpired(), err)
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrRefreshTokenInvalid),
		errors.Is(err, auth.ErrTokenInvalid):
		return wrap(apperrors.NewUnauthorized(unauthorizedMessage(err)), err)
	case errors.Is(err, service.ErrCannotAuthenticate),
		errors.Is(err, service.ErrForbidden):
		return wrap(apperrors.NewForbidden(err.Error()), err)
	case errors.As(err, &consistency):
		return apperrors.ToDomainError(apperrors.NewInternalError(err))
	case errors.As(err, &commitFailed):
		if commitFailed.Transient() {
			return apperrors.ToDomainError(apperrors.NewUnavailable(err))
		}
		return apperrors.ToDomainError(apperrors.NewInternalError(err))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperrors.ToDomainError(apperrors.NewUnavailable(err))
	}
	return apperrors.ToDomainError(err)
}

func wrap(err error, cause error) *apperrors.DomainError {
	domainErr := apperrors.ToDomainError(err)
	domainErr.Err = cause
	return domainErr
}

func unauthorizedMessage(err error) string {
	if errors.Is(err, service.ErrRefreshTokenInvalid) {
		return service.ErrRefreshTokenInvalid.Error()
	}
	if errors.Is(err, auth.ErrTokenInvalid) {
		return "access token invalid"
	}
	return err.Error()
}

func fiberCode(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
		return "VALIDATION_FAILED"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	}
	if status >= fiber.StatusInternalServerError {
		return "INTERNAL_ERROR"
	}
	return "REQUEST_FAILED"
}
