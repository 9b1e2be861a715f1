package postgres_test

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/avery-holt/cascade/internal/store"
	"github.com/avery-holt/cascade/internal/store/postgres"
	"github.com/avery-holt/cascade/internal/task"
)

func newMockStore(t *testing.T) (*postgres.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return postgres.New(sqlxDB), mock
}

func TestCreateTaskInsertsRow(t *testing.T) {
	st, mock := newMockStore(t)
	tk := task.New("acme/x", 1, 3)

	mock.ExpectExec("INSERT INTO tasks").WillReturnResult(sqlmock.NewResult(1, 1))

	err := st.CreateTask(context.Background(), tk)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTaskStaleWriteReturnsZeroRows(t *testing.T) {
	st, mock := newMockStore(t)
	tk := task.New("acme/x", 1, 3)
	tk.UpdatedAt = time.Now()

	mock.ExpectExec("UPDATE tasks SET").WillReturnResult(sqlmock.NewResult(0, 0))

	err := st.UpdateTask(context.Background(), tk, tk.UpdatedAt.UnixNano())
	require.ErrorIs(t, err, store.ErrStaleWrite)
	require.NoError(t, mock.ExpectationsWereMet())
}
