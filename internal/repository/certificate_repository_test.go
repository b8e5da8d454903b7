package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/certichain/internal/model"
)

var certColumns = []string{
	"id", "credential_id", "content_hash", "subject_name", "course", "grade",
	"issue_date", "date_of_birth", "admission_number", "email", "mobile", "address",
	"institution", "section", "semester", "issuer_id", "issuer_name",
	"artifact_backend", "artifact_key", "artifact_url", "artifact_data",
	"verified", "verified_by", "verified_at", "created_at", "updated_at",
}

func certRow(data driver.Value, verifiedBy driver.Value) []driver.Value {
	ts := time.Date(2025, 6, 30, 9, 0, 0, 0, time.UTC)
	return []driver.Value{
		uint64(7), "GU-ABC-0123456789", "ab12", "Asha Rao", "B.Sc CS", "",
		time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC), time.Date(2001, 5, 4, 0, 0, 0, 0, time.UTC),
		"GU-001", "asha@example.com", "", "", "Galgotias University", "A", "8",
		uint64(1), "Galgotias University Admin",
		"inline", nil, nil, data,
		verifiedBy != nil, verifiedBy, nil, ts, ts,
	}
}

func newMockRepo(t *testing.T) (*CertificateRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewCertificateRepo(db), mock
}

func TestCertificateRepo_CreateDuplicateAdmission(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO certificates")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'GU-001' for key 'certificates.uq_certificates_admission_number'"})

	err := repo.Create(context.Background(), &model.Certificate{CredentialID: "GU-X", AdmissionNumber: "GU-001"})
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "admission_number", dup.Key)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepo_CreateFillsTimestamps(t *testing.T) {
	repo, mock := newMockRepo(t)
	ts := time.Date(2025, 6, 30, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return ts.Add(250 * time.Millisecond) }
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO certificates")).
		WillReturnResult(sqlmock.NewResult(42, 1))

	c := &model.Certificate{
		CredentialID: "GU-X",
		IssueDate:    time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		DateOfBirth:  time.Date(2001, 5, 4, 0, 0, 0, 0, time.UTC),
		Artifact:     model.Artifact{Backend: model.ArtifactInline, Data: "JVBERg=="},
	}
	require.NoError(t, repo.Create(context.Background(), c))
	assert.Equal(t, uint64(42), c.ID)
	assert.Equal(t, ts, c.CreatedAt)
	assert.Equal(t, ts, c.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepo_CreateReadBackFailureIsDistinct(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO certificates")).
		WillReturnResult(sqlmock.NewErrorResult(errors.New("connection reset")))

	c := &model.Certificate{CredentialID: "GU-X", AdmissionNumber: "GU-001"}
	err := repo.Create(context.Background(), c)
	var inserted *InsertedError
	require.ErrorAs(t, err, &inserted)
	assert.False(t, c.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepo_GetByCredentialID(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM certificates WHERE credential_id = ?")).
		WithArgs("GU-ABC-0123456789").
		WillReturnRows(sqlmock.NewRows(certColumns).AddRow(certRow("JVBERg==", int64(1))...))

	c, err := repo.GetByCredentialID(context.Background(), "GU-ABC-0123456789", true)
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", c.SubjectName)
	assert.Equal(t, "JVBERg==", c.Artifact.Data)
	assert.True(t, c.Verified)
	require.NotNil(t, c.VerifiedBy)
	assert.Equal(t, uint64(1), *c.VerifiedBy)
	assert.Nil(t, c.VerifiedAt)
}

func TestCertificateRepo_GetByCredentialIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM certificates WHERE credential_id = ?")).
		WillReturnRows(sqlmock.NewRows(certColumns))

	_, err := repo.GetByCredentialID(context.Background(), "nope", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCertificateRepo_Exists(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE admission_number = ?")).
		WithArgs("GU-001").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE credential_id = ?")).
		WithArgs("GU-X").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	ok, err := repo.AdmissionNumberExists(context.Background(), "GU-001")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.CredentialIDExists(context.Background(), "GU-X")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCertificateRepo_List(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM certificates WHERE issuer_id = ? AND (LOWER(subject_name) LIKE ?")).
		WithArgs(uint64(1), "%asha%", "%asha%", "%asha%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?")).
		WithArgs(uint64(1), "%asha%", "%asha%", "%asha%", 20, 0).
		WillReturnRows(sqlmock.NewRows(certColumns).AddRow(certRow(nil, nil)...))

	out, total, err := repo.List(context.Background(), model.CertificateFilter{IssuerID: 1, Query: " Asha ", Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, out, 1)
	assert.False(t, out[0].Verified)
	assert.Empty(t, out[0].Artifact.Data)
}

func TestCertificateRepo_MarkVerified(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE certificates SET verified = 1")).
		WithArgs(uint64(1), at, "GU-X").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE certificates SET verified = 1")).
		WithArgs(uint64(1), at, "GU-X").
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := repo.MarkVerified(context.Background(), "GU-X", 1, at)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkVerified(context.Background(), "GU-X", 1, at)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestAsDuplicate(t *testing.T) {
	plain := errors.New("connection reset")
	assert.Same(t, plain, asDuplicate(plain))
	assert.Nil(t, asDuplicate(nil))

	err := asDuplicate(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key 'certificates.uq_certificates_credential_id'"})
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "credential_id", dup.Key)

	other := &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}
	assert.Equal(t, error(other), asDuplicate(other))
}
