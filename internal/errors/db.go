package errors

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	msgUnavailable = "Database is unavailable. Please try again."
	msgTimeout     = "Request timed out. Please try again."
)

var (
	// "Key (field)=(value) already exists."
	reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)
	// "... is still referenced from table ..." on parent delete.
	reReferencedFrom = regexp.MustCompile(`is still referenced from table "?([^"]+)"?`)
	// "... is not present in table ..." on child insert.
	reNotPresent = regexp.MustCompile(`is not present in table "?([^"]+)"?`)
)

var tableDomainNames = map[string]string{
	"channels":          "Channel",
	"endpoints":         "Endpoint",
	"endpoint_groups":   "Endpoint Group",
	"endpoint_to_group": "Endpoint Group",
	"push_logs":         "Push Log",
	"push_queue":        "Push Queue",
}

// MapDBError turns driver and context errors into AppErrors so handlers can answer
// with the right status. AppErrors and unrecognised errors are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}

	var pgErr *pgconn.PgError
	var connErr *pgconn.ConnectError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrCodeTimeout, msgTimeout)
	case errors.Is(err, context.Canceled):
		return Wrap(err, ErrCodeCanceled, "Request was canceled.")
	case errors.Is(err, pgx.ErrNoRows):
		return Wrap(err, ErrCodeNotFound, "Resource not found")
	case errors.As(err, &pgErr):
		return mapPgError(pgErr)
	case errors.As(err, &connErr):
		return Wrap(err, ErrCodeUnavailable, msgUnavailable)
	default:
		return err
	}
}

func mapPgError(pgErr *pgconn.PgError) *AppError {
	switch code := pgErr.Code; {
	case code == pgerrcode.UniqueViolation:
		return &AppError{
			Code:    ErrCodeConflict,
			Message: "This value already exists. Please choose a different one.",
			Field:   uniqueField(pgErr),
			Cause:   pgErr,
		}
	case code == pgerrcode.ForeignKeyViolation:
		return Wrap(pgErr, ErrCodeForeignKey, foreignKeyMessage(pgErr))
	case code == pgerrcode.CheckViolation:
		return columnValidation(pgErr, "This field has an invalid value.", "Invalid data. Please check your input.")
	case code == pgerrcode.NotNullViolation:
		return columnValidation(pgErr, "This field is required.", "Required field is missing. Please check your input.")
	case pgerrcode.IsConnectionException(code), pgerrcode.IsInsufficientResources(code):
		return Wrap(pgErr, ErrCodeUnavailable, msgUnavailable)
	case code == pgerrcode.QueryCanceled:
		return Wrap(pgErr, ErrCodeTimeout, msgTimeout)
	default:
		return Wrap(pgErr, ErrCodeInternal, "A database error occurred. Please try again.")
	}
}

// uniqueField prefers the reported column and falls back to the key list in Detail,
// which covers multi-column keys such as (group_id, endpoint_id).
func uniqueField(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
		return m[1]
	}
	return ""
}

func foreignKeyMessage(pgErr *pgconn.PgError) string {
	if m := reReferencedFrom.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
		return "Cannot delete because this item is in use by " + mapTableToDomain(m[1]) + "."
	}
	if m := reNotPresent.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
		return "Cannot complete operation because the referenced " + mapTableToDomain(m[1]) + " does not exist."
	}
	if pgErr.TableName != "" {
		return "Cannot complete operation because this item is in use by " + mapTableToDomain(pgErr.TableName) + "."
	}
	return "Cannot complete operation because this item is in use."
}

func columnValidation(pgErr *pgconn.PgError, fieldMessage, genericMessage string) *AppError {
	if pgErr.ColumnName == "" {
		return Wrap(pgErr, ErrCodeValidation, genericMessage)
	}
	return &AppError{Code: ErrCodeValidation, Message: fieldMessage, Field: pgErr.ColumnName, Cause: pgErr}
}

// mapTableToDomain names a table for messages, title-casing unknown ones.
func mapTableToDomain(tableName string) string {
	tableName = strings.ToLower(strings.TrimSpace(tableName))
	if name, ok := tableDomainNames[tableName]; ok {
		return name
	}

	words := strings.Fields(strings.ReplaceAll(tableName, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
