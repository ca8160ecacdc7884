package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"net"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

type providerErr struct{ code int }

func (e *providerErr) Error() string { return fmt.Sprintf("code %d", e.code) }

type classified struct{ class string }

func (e classified) Error() string      { return "classified" }
func (e classified) ErrorClass() string { return e.class }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "self classified", err: fmt.Errorf("send: %w", classified{class: "provider_rejected"}), want: "provider_rejected"},
		{name: "empty class falls through", err: classified{}, want: "errors_classified"},
		{name: "deadline", err: fmt.Errorf("post: %w", context.DeadlineExceeded), want: "timeout"},
		{name: "canceled", err: context.Canceled, want: "canceled"},
		{name: "postgres", err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgerrcode.UniqueViolation}), want: "postgres_23"},
		{name: "network", err: &net.OpError{Op: "dial", Err: goerrors.New("refused")}, want: "network"},
		{name: "innermost type", err: fmt.Errorf("wrap: %w", &providerErr{code: 1}), want: "errors_providererr"},
		{name: "plain", err: goerrors.New("x"), want: "errors_errorstring"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
