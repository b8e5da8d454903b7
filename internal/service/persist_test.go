package service

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/certichain/internal/repository"
)

// newSQLFixture backs the service with the real repository over sqlmock,
// expecting the two uniqueness checks of an issuance.
func newSQLFixture(t *testing.T) (*fixture, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := newFixture(t, withStore(repository.NewCertificateRepo(db)))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE admission_number = ?")).
		WithArgs("GU-001").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE credential_id = ?")).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	return f, mock
}

func TestIssueKeepsArtifactWhenInsertCommitted(t *testing.T) {
	f, mock := newSQLFixture(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO certificates")).
		WillReturnResult(sqlmock.NewErrorResult(errors.New("connection reset")))

	c, err := f.svc.Issue(context.Background(), university, ashaRao())
	require.NoError(t, err)
	assert.Equal(t, 1, f.artifacts.puts)
	assert.Zero(t, f.artifacts.deletes)
	assert.NotEmpty(t, c.CredentialID)
	assert.False(t, c.CreatedAt.IsZero())
	require.Len(t, f.events.events, 1)
	assert.Equal(t, c.CredentialID, f.events.events[0].CredentialID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueDiscardsArtifactWhenInsertFails(t *testing.T) {
	f, mock := newSQLFixture(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO certificates")).
		WillReturnError(errors.New("connection reset"))

	_, err := f.svc.Issue(context.Background(), university, ashaRao())
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 1, f.artifacts.deletes)
	assert.Empty(t, f.events.events)
	require.NoError(t, mock.ExpectationsWereMet())
}
