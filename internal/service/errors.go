package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned for any lookup that matches nothing.  Identity
	// lookups return it for every kind of mismatch.
	ErrNotFound = errors.New("certificate not found")
	// ErrArtifactNotFound is returned by Download when the record exists but
	// its PDF cannot be resolved.
	ErrArtifactNotFound = errors.New("certificate document not found")
	// ErrConflict is matched by every *ConflictError.
	ErrConflict = errors.New("conflict")
	// ErrForbidden is returned when the principal's role may not perform
	// the operation.
	ErrForbidden = errors.New("forbidden")
)

// ValidationError reports missing or malformed input.  Fields maps the
// request field name to a human readable message.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// ConflictError reports a duplicate credential ID or admission number.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	switch e.Field {
	case "admission_number":
		return "a certificate was already issued for this admission number"
	case "credential_id":
		return "could not allocate a unique credential id"
	}
	return "certificate already exists"
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// RenderError wraps a PDF generation fault, including an empty document.
type RenderError struct{ Err error }

func (e *RenderError) Error() string { return fmt.Sprintf("render certificate: %v", e.Err) }
func (e *RenderError) Unwrap() error { return e.Err }

// ArtifactStoreError wraps an upload or retrieval fault of the artifact
// backend.
type ArtifactStoreError struct {
	Op  string
	Err error
}

func (e *ArtifactStoreError) Error() string { return fmt.Sprintf("artifact %s: %v", e.Op, e.Err) }
func (e *ArtifactStoreError) Unwrap() error { return e.Err }

// PersistenceError wraps a database fault that is not otherwise classified.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }
