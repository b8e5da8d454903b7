// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow higher layers to distinguish
// between missing rows and unique index violations without inspecting
// driver errors.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// mysqlDuplicateEntry is the server error number for unique key violations.
const mysqlDuplicateEntry = 1062

// DuplicateError reports a unique index violation.  Key names the logical
// column ("credential_id", "admission_number", "email") when it can be
// recovered from the server message.
type DuplicateError struct {
	Key string
	Err error
}

func (e *DuplicateError) Error() string {
	if e.Key == "" {
		return "duplicate entry"
	}
	return "duplicate " + e.Key
}

func (e *DuplicateError) Unwrap() error { return e.Err }

// uniqueKeys maps index names in schema.sql to the column they guard.
var uniqueKeys = map[string]string{
	"uq_certificates_credential_id":    "credential_id",
	"uq_certificates_admission_number": "admission_number",
	"uq_accounts_email":                "email",
	"uq_refresh_tokens_hash":           "token_hash",
}

// asDuplicate converts a MySQL 1062 error into *DuplicateError and returns
// any other error unchanged.
func asDuplicate(err error) error {
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != mysqlDuplicateEntry {
		return err
	}
	for idx, key := range uniqueKeys {
		if strings.Contains(me.Message, idx) {
			return &DuplicateError{Key: key, Err: err}
		}
	}
	return &DuplicateError{Err: err}
}

// InsertedError reports a failure that happened after the row was written.
// The record exists; only read-back of generated values failed.
type InsertedError struct {
	Err error
}

func (e *InsertedError) Error() string { return "row inserted, read-back failed: " + e.Err.Error() }
func (e *InsertedError) Unwrap() error { return e.Err }
