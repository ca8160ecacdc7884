package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapDBError_NilError(t *testing.T) {
	if err := MapDBError(nil); err != nil {
		t.Errorf("MapDBError(nil) = %v, want nil", err)
	}
}

func TestMapDBError_Codes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode ErrorCode
	}{
		{name: "deadline exceeded", err: context.DeadlineExceeded, wantCode: ErrCodeTimeout},
		{name: "canceled", err: fmt.Errorf("query: %w", context.Canceled), wantCode: ErrCodeCanceled},
		{name: "no rows", err: pgx.ErrNoRows, wantCode: ErrCodeNotFound},
		{name: "unique", err: &pgconn.PgError{Code: pgerrcode.UniqueViolation}, wantCode: ErrCodeConflict},
		{name: "foreign key", err: &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}, wantCode: ErrCodeForeignKey},
		{name: "check", err: &pgconn.PgError{Code: pgerrcode.CheckViolation}, wantCode: ErrCodeValidation},
		{name: "not null", err: &pgconn.PgError{Code: pgerrcode.NotNullViolation}, wantCode: ErrCodeValidation},
		{name: "connection failure", err: &pgconn.PgError{Code: pgerrcode.ConnectionFailure}, wantCode: ErrCodeUnavailable},
		{name: "too many connections", err: &pgconn.PgError{Code: pgerrcode.TooManyConnections}, wantCode: ErrCodeUnavailable},
		{name: "statement timeout", err: &pgconn.PgError{Code: pgerrcode.QueryCanceled}, wantCode: ErrCodeTimeout},
		{name: "unknown", err: &pgconn.PgError{Code: pgerrcode.SyntaxError}, wantCode: ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.err)
			if got := GetCode(err); got != tt.wantCode {
				t.Errorf("MapDBError() code = %v, want %v", got, tt.wantCode)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("MapDBError() must keep the cause")
			}
		})
	}
}

func TestMapDBError_PassesThroughUnknownAndAppErrors(t *testing.T) {
	plain := errors.New("boom")
	if got := MapDBError(plain); got != plain {
		t.Errorf("MapDBError(plain) = %v, want original", got)
	}

	appErr := New(ErrCodeNotFound, "endpoint not found")
	if got := MapDBError(appErr); got != error(appErr) {
		t.Errorf("MapDBError(AppError) = %v, want original", got)
	}
}

func TestMapDBError_UniqueViolationField(t *testing.T) {
	tests := []struct {
		name      string
		pgErr     *pgconn.PgError
		wantField string
	}{
		{
			name:      "column name",
			pgErr:     &pgconn.PgError{Code: pgerrcode.UniqueViolation, ColumnName: "name"},
			wantField: "name",
		},
		{
			name:      "detail",
			pgErr:     &pgconn.PgError{Code: pgerrcode.UniqueViolation, Detail: "Key (group_id, endpoint_id)=(g, e) already exists."},
			wantField: "group_id, endpoint_id",
		},
		{
			name:  "no hints",
			pgErr: &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "push_queue_pkey"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var appErr *AppError
			if !errors.As(MapDBError(tt.pgErr), &appErr) {
				t.Fatal("expected AppError")
			}
			if appErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.wantField)
			}
		})
	}
}

func TestMapDBError_ForeignKeyMessages(t *testing.T) {
	tests := []struct {
		name  string
		pgErr *pgconn.PgError
		want  string
	}{
		{
			name: "parent delete",
			pgErr: &pgconn.PgError{
				Code:   pgerrcode.ForeignKeyViolation,
				Detail: `Key (id)=(ch-1) is still referenced from table "endpoints".`,
			},
			want: "in use by Endpoint",
		},
		{
			name: "missing parent",
			pgErr: &pgconn.PgError{
				Code:   pgerrcode.ForeignKeyViolation,
				Detail: `Key (group_id)=(g-1) is not present in table "endpoint_groups".`,
			},
			want: "referenced Endpoint Group does not exist",
		},
		{
			name:  "table fallback",
			pgErr: &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, TableName: "endpoint_to_group"},
			want:  "in use by Endpoint Group",
		},
		{
			name:  "generic",
			pgErr: &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation},
			want:  "this item is in use",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.pgErr)
			if !strings.Contains(PublicMessage(err), tt.want) {
				t.Errorf("message = %q, want it to contain %q", PublicMessage(err), tt.want)
			}
		})
	}
}

func TestMapTableToDomain(t *testing.T) {
	tests := map[string]string{
		"channels":        "Channel",
		" PUSH_LOGS ":     "Push Log",
		"endpoint_groups": "Endpoint Group",
		"audit_events":    "Audit Events",
	}
	for in, want := range tests {
		if got := mapTableToDomain(in); got != want {
			t.Errorf("mapTableToDomain(%q) = %q, want %q", in, got, want)
		}
	}
}
