package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Mark-hil/chat-app/pkg/chat"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{
			name: "nil passes through",
			in:   nil,
			want: nil,
		},
		{
			name: "foreign key violation means missing reference",
			in:   &pgconn.PgError{Code: pgForeignKeyViolation, ConstraintName: "chat_message_user_id_fkey"},
			want: chat.ErrNotFound,
		},
		{
			name: "wrapped foreign key violation",
			in:   fmt.Errorf("scan: %w", &pgconn.PgError{Code: pgForeignKeyViolation}),
			want: chat.ErrNotFound,
		},
		{
			name: "no rows means missing row",
			in:   sql.ErrNoRows,
			want: chat.ErrNotFound,
		},
		{
			name: "other pg errors are transient",
			in:   &pgconn.PgError{Code: "40001"},
			want: chat.ErrTransientStore,
		},
		{
			name: "driver errors are transient",
			in:   errors.New("connection reset"),
			want: chat.ErrTransientStore,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(tc.in)
			if tc.want == nil {
				if got != nil {
					t.Fatalf("expected nil, got %v", got)
				}
				return
			}
			if !errors.Is(got, tc.want) {
				t.Errorf("classify(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestClassifyKeepsContextErrors(t *testing.T) {
	for _, in := range []error{context.Canceled, context.DeadlineExceeded} {
		got := classify(in)
		if !errors.Is(got, in) {
			t.Errorf("classify(%v) = %v, want the context error preserved", in, got)
		}
		if errors.Is(got, chat.ErrTransientStore) {
			t.Errorf("classify(%v) must not be reported as a store failure", in)
		}
	}
}
