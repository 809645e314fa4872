package models

import (
	"errors"
	"fmt"
	"strings"
)

// Every error below implements IsTransient. Validation failures are
// permanent; only storage unavailability may succeed on retry.

// MissingFieldsError lists every required field absent from a row
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

func (e *MissingFieldsError) IsTransient() bool {
	return false
}

// FieldError reports a present field that failed normalization
type FieldError struct {
	Field  string
	Value  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *FieldError) IsTransient() bool {
	return false
}

// InvalidCodeError reports a site code outside the three-digit range rule
type InvalidCodeError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidCodeError) IsTransient() bool {
	return false
}

// UnsupportedCategoryError is returned before any row is processed
type UnsupportedCategoryError struct {
	Category string
}

func (e *UnsupportedCategoryError) Error() string {
	return fmt.Sprintf("unsupported category %q", e.Category)
}

func (e *UnsupportedCategoryError) IsTransient() bool {
	return false
}

// SourceError wraps a tabular source that could not be read at all
type SourceError struct {
	Format string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("cannot read %s source: %v", e.Format, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

func (e *SourceError) IsTransient() bool {
	return false
}

// StorageUnavailableError means the store could not be reached
type StorageUnavailableError struct {
	Op  string
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable during %s", e.Op)
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Err
}

func (e *StorageUnavailableError) IsTransient() bool {
	return true
}

// StorageError is a store-side rejection of a single statement. Reason holds
// only the server message, never connection details.
type StorageError struct {
	Op     string
	Reason string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage rejected %s: %s", e.Op, e.Reason)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) IsTransient() bool {
	return false
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}

// RowError ties a row-level failure to its human-visible row number
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("Row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

func (e *RowError) IsTransient() bool {
	return IsTransient(e.Err)
}

// IsTransient reports whether err, or any error it wraps, is marked transient
func IsTransient(err error) bool {
	var t interface{ IsTransient() bool }
	if errors.As(err, &t) {
		return t.IsTransient()
	}
	return false
}

// IsStorageUnavailable reports whether err is or wraps a StorageUnavailableError
func IsStorageUnavailable(err error) bool {
	var unavailable *StorageUnavailableError
	return errors.As(err, &unavailable)
}

// IsValidation reports whether err is a permanent row-level validation error
func IsValidation(err error) bool {
	var (
		missing *MissingFieldsError
		field   *FieldError
		code    *InvalidCodeError
	)
	return errors.As(err, &missing) || errors.As(err, &field) || errors.As(err, &code)
}
