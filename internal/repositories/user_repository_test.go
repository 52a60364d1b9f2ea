package repositories

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupUserRepo(t *testing.T) (*UserRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewUserRepo(sqlx.NewDb(db, "sqlmock")), mock
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "online", "last_seen", "created_at"})
}

func TestGetUserFound(t *testing.T) {
	repo, mock := setupUserRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id=$1`)).
		WithArgs(1).
		WillReturnRows(userRows().AddRow(1, "alice", "alice@example.com", "", true, nil, time.Now()))

	user, err := repo.GetUser(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, "alice", user.Name)
	assert.True(t, user.Online)
}

func TestGetUserNotFound(t *testing.T) {
	repo, mock := setupUserRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id=$1`)).
		WithArgs(99).
		WillReturnRows(userRows())

	_, err := repo.GetUser(context.Background(), 99)

	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestListUsersExcludesRequester(t *testing.T) {
	repo, mock := setupUserRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE id <> $1 ORDER BY name ASC`)).
		WithArgs(1).
		WillReturnRows(userRows().
			AddRow(2, "bob", "bob@example.com", "", false, nil, time.Now()).
			AddRow(3, "carol", "carol@example.com", "", true, nil, time.Now()))

	users, err := repo.ListUsers(context.Background(), 1)

	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "bob", users[0].Name)
}

func TestUpdatePresenceWritesDurableColumns(t *testing.T) {
	repo, mock := setupUserRepo(t)

	lastSeen := time.Now()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET online=$2, last_seen=$3 WHERE id=$1`)).
		WithArgs(1, false, lastSeen).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdatePresence(context.Background(), 1, false, lastSeen)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
