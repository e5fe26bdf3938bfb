package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	sql  string
	args []any
	err  error
}

func (e *recordingExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	e.sql = sql
	e.args = args
	return pgconn.CommandTag{}, e.err
}

func TestKindWrapped(t *testing.T) {
	cases := map[error]string{
		fmt.Errorf("%w: 0.01 > 0.00", ErrExceedsBalance):          "ExceedsBalance",
		fmt.Errorf("%w: cannot reverse", ErrInsufficientStock):     "InsufficientStock",
		fmt.Errorf("payments: %w", ErrTransient):                   "TransientFailure",
		fmt.Errorf("%w: SENT -> ACCEPTED", ErrIllegalTransition):   "IllegalTransition",
		ErrNotAnInvoice:                                            "NotAnInvoice",
		ErrAlreadyCancelled:                                        "AlreadyCancelled",
		ErrInvalidAmount:                                           "InvalidAmount",
		fmt.Errorf("document 7: %w", ErrNotFound):                  "NotFound",
		errors.New("boom"):                                         "",
	}
	for err, want := range cases {
		require.Equal(t, want, Kind(err), err.Error())
	}
}

func TestUserSafeMessageHidesInternals(t *testing.T) {
	require.Equal(t, "internal error, please try again later", UserSafeMessage(errors.New("dial tcp 10.0.0.1:5432")))
	require.Contains(t, UserSafeMessage(fmt.Errorf("%w: 5 requested", ErrInsufficientStock)), "insufficient stock")
	require.Empty(t, UserSafeMessage(nil))
}

func TestIdempotencyConflictMapping(t *testing.T) {
	db := &recordingExecer{err: &pgconn.PgError{Code: "23505"}}
	store := NewIdempotencyStore(db)
	err := store.CheckAndInsert(context.Background(), IdempotencyKey(1, "inventory", "abc"), "inventory")
	require.ErrorIs(t, err, ErrIdempotencyConflict)
	require.Equal(t, "1:inventory:abc", db.args[0])
}

func TestAuditRecordRequiresCompany(t *testing.T) {
	db := &recordingExecer{}
	logger := NewAuditLogger(db)
	err := logger.Record(context.Background(), AuditLog{Action: "x", Entity: "y", EntityID: "1"})
	require.Error(t, err)

	err = logger.Record(context.Background(), AuditLog{CompanyID: 3, Action: "payment:apply", Entity: "document", EntityID: "9"})
	require.NoError(t, err)
	require.Equal(t, int64(3), db.args[0])
	require.Nil(t, db.args[6])
}

func TestPaginationOffset(t *testing.T) {
	p := NewPagination(3, 50, 120)
	require.Equal(t, 100, p.Offset())
	require.Equal(t, 3, p.TotalPages)
}
