package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/certichain/internal/model"
)

// CertificateRepo encapsulates all queries against the `certificates` table.
// Uniqueness of credential_id and admission_number is enforced by the
// table's unique indexes; Create reports violations as *DuplicateError.
type CertificateRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewCertificateRepo(db *sql.DB) *CertificateRepo {
	return &CertificateRepo{db: db, now: time.Now}
}

// certificateCols returns the select list.  The inline artifact can be large,
// so it is only read when the caller asks for it.
func certificateCols(withArtifact bool) string {
	data := "NULL"
	if withArtifact {
		data = "artifact_data"
	}
	return `id, credential_id, content_hash, subject_name, course, grade,
		issue_date, date_of_birth, admission_number, email, mobile, address,
		institution, section, semester, issuer_id, issuer_name,
		artifact_backend, artifact_key, artifact_url, ` + data + `,
		verified, verified_by, verified_at, created_at, updated_at`
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCertificate(s rowScanner) (*model.Certificate, error) {
	var (
		c              model.Certificate
		key, url, data sql.NullString
		verifiedBy     sql.NullInt64
		verifiedAt     sql.NullTime
	)
	err := s.Scan(
		&c.ID, &c.CredentialID, &c.ContentHash, &c.SubjectName, &c.Course, &c.Grade,
		&c.IssueDate, &c.DateOfBirth, &c.AdmissionNumber, &c.Email, &c.Mobile, &c.Address,
		&c.Institution, &c.Section, &c.Semester, &c.IssuerID, &c.IssuerName,
		&c.Artifact.Backend, &key, &url, &data,
		&c.Verified, &verifiedBy, &verifiedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Artifact.Key = key.String
	c.Artifact.URL = url.String
	c.Artifact.Data = data.String
	if verifiedBy.Valid {
		v := uint64(verifiedBy.Int64)
		c.VerifiedBy = &v
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		c.VerifiedAt = &t
	}
	return &c, nil
}

// Create inserts c and fills in ID and timestamps.
func (r *CertificateRepo) Create(ctx context.Context, c *model.Certificate) error {
	const q = `INSERT INTO certificates (
		credential_id, content_hash, subject_name, course, grade,
		issue_date, date_of_birth, admission_number, email, mobile, address,
		institution, section, semester, issuer_id, issuer_name,
		artifact_backend, artifact_key, artifact_url, artifact_data,
		created_at, updated_at
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`
	now := r.now().UTC().Truncate(time.Second)
	res, err := r.db.ExecContext(ctx, q,
		c.CredentialID, c.ContentHash, c.SubjectName, c.Course, c.Grade,
		dateOnly(c.IssueDate), dateOnly(c.DateOfBirth), c.AdmissionNumber, c.Email, c.Mobile, c.Address,
		c.Institution, c.Section, c.Semester, c.IssuerID, c.IssuerName,
		c.Artifact.Backend, nullString(c.Artifact.Key), nullString(c.Artifact.URL), nullString(c.Artifact.Data),
		now, now,
	)
	if err != nil {
		return asDuplicate(err)
	}
	c.CreatedAt, c.UpdatedAt = now, now
	id, err := res.LastInsertId()
	if err != nil {
		return &InsertedError{Err: err}
	}
	c.ID = uint64(id)
	return nil
}

// CredentialIDExists reports whether a certificate already uses id.
func (r *CertificateRepo) CredentialIDExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, "SELECT 1 FROM certificates WHERE credential_id = ? LIMIT 1", id)
}

// AdmissionNumberExists reports whether a certificate was issued for n.
func (r *CertificateRepo) AdmissionNumberExists(ctx context.Context, n string) (bool, error) {
	return r.exists(ctx, "SELECT 1 FROM certificates WHERE admission_number = ? LIMIT 1", n)
}

func (r *CertificateRepo) exists(ctx context.Context, q string, arg any) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, q, arg).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// GetByCredentialID fetches one certificate.  The inline artifact payload is
// only loaded when withArtifact is true.
func (r *CertificateRepo) GetByCredentialID(ctx context.Context, id string, withArtifact bool) (*model.Certificate, error) {
	q := "SELECT " + certificateCols(withArtifact) + " FROM certificates WHERE credential_id = ? LIMIT 1"
	c, err := scanCertificate(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// GetByAdmissionNumber fetches the certificate issued for an admission
// number, without the artifact payload.  The column uses a binary collation
// so the match is exact.
func (r *CertificateRepo) GetByAdmissionNumber(ctx context.Context, n string) (*model.Certificate, error) {
	q := "SELECT " + certificateCols(false) + " FROM certificates WHERE admission_number = ? LIMIT 1"
	c, err := scanCertificate(r.db.QueryRowContext(ctx, q, n))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// List returns certificates newest first, plus the total matching count.
func (r *CertificateRepo) List(ctx context.Context, f model.CertificateFilter) ([]model.Certificate, int64, error) {
	where := []string{}
	args := []any{}
	if f.IssuerID != 0 {
		where = append(where, "issuer_id = ?")
		args = append(args, f.IssuerID)
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		like := "%" + q + "%"
		where = append(where, "(LOWER(subject_name) LIKE ? OR LOWER(admission_number) LIKE ? OR LOWER(course) LIKE ?)")
		args = append(args, like, like, like)
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM certificates WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataSQL := "SELECT " + certificateCols(false) + " FROM certificates WHERE " + cond +
		" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, dataSQL, append(append([]any{}, args...), f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Certificate, 0, f.Limit)
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// MarkVerified flips the verification flag if it is not set yet.  It returns
// false without error when the certificate was already verified; the
// original verifier is kept.
func (r *CertificateRepo) MarkVerified(ctx context.Context, credentialID string, by uint64, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE certificates SET verified = 1, verified_by = ?, verified_at = ? WHERE credential_id = ? AND verified = 0",
		by, at.UTC(), credentialID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func dateOnly(t time.Time) string { return t.Format(time.DateOnly) }

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
