// Package apperr holds the error taxonomy shared by the entitlement core.
// Callers match with errors.Is against the sentinels and errors.As against
// the concrete types when they need the attached detail.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not_found")
	ErrStorage       = errors.New("storage_error")
	ErrConfiguration = errors.New("configuration_error")
)

// NotFoundError reports a missing tier or user profile. It is never
// downgraded to a default.
type NotFoundError struct {
	Resource string
	ID       string
}

func NotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// StorageError wraps a failure of the underlying store.
type StorageError struct {
	Op  string
	Err error
}

func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *StorageError
	if errors.As(err, &existing) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// ConfigurationError reports a billing price with no tier mapping.
type ConfigurationError struct {
	PriceID string
	Msg     string
}

func (e *ConfigurationError) Error() string {
	if e.PriceID == "" {
		return "configuration: " + e.Msg
	}
	return fmt.Sprintf("configuration: %s (price %q)", e.Msg, e.PriceID)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}
