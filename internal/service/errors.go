package service

import (
	"errors"
	"fmt"

	"github.com/Troha7/E-store/internal/repository"
)

var (
	// ErrEntityNotFound indicates an order, product, user or (order, product) pair does not exist.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrInvalidQuantity indicates a line item quantity of zero or less, or one past MaxQuantity.
	ErrInvalidQuantity = errors.New("quantity must be between 1 and 2147483647")
	// ErrDuplicateProduct indicates the same product appears twice in one replace request.
	ErrDuplicateProduct = errors.New("duplicate product")
	// ErrInvalidState indicates the order's status does not allow the operation.
	ErrInvalidState = errors.New("invalid order state")
	// ErrConflict indicates a concurrent modification or a unique value already taken.
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput indicates a malformed catalog or user value.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthorized indicates bad credentials or an unknown session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates an authenticated caller without the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrStorageFailure wraps any failure of the store itself.
	ErrStorageFailure = errors.New("storage failure")
)

var domainErrors = []error{
	ErrEntityNotFound,
	ErrInvalidQuantity,
	ErrDuplicateProduct,
	ErrInvalidState,
	ErrConflict,
	ErrInvalidInput,
	ErrUnauthorized,
	ErrForbidden,
	ErrStorageFailure,
}

// translateRepoError maps repository sentinels onto the service taxonomy. Anything it does
// not recognise, context cancellation included, becomes a storage failure.
func translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrEntityNotFound, err)
	case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return fmt.Errorf("%w: %w", ErrStorageFailure, err)
}

// fail translates err and logs it: client errors at warn, storage failures at error.
func fail(err error, format string, args ...any) error {
	err = translateRepoError(err)
	if errors.Is(err, ErrStorageFailure) {
		logger.Error().Err(err).Msgf(format, args...)
	} else {
		logger.Warn().Err(err).Msgf(format, args...)
	}
	return err
}
