package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")

	ErrInvalidRequest = errors.New("invalid request body")
	ErrValidation     = errors.New("validation failed")

	ErrSignature    = errors.New("invalid webhook signature")
	ErrNoCredential = errors.New("no github credential available")

	ErrSyncInProgress = errors.New("sync already in progress")

	ErrUpstream    = errors.New("github api request failed")
	ErrRateLimited = errors.New("github api rate limit exceeded")
)

type SyncInProgressError struct{ UserID string }

func (e *SyncInProgressError) Error() string {
	return fmt.Sprintf("sync already in progress for user '%s'", e.UserID)
}
func (e *SyncInProgressError) Is(target error) bool { return target == ErrSyncInProgress }

type IntegrationNotFoundError struct{ UserID string }

func (e *IntegrationNotFoundError) Error() string {
	return fmt.Sprintf("github integration for user '%s' not found or inactive", e.UserID)
}
func (e *IntegrationNotFoundError) Is(target error) bool { return target == ErrNotFound }
