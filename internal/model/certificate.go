package model

import "time"

// Artifact backends.
const (
	ArtifactInline = "inline" // base64 PDF stored in the certificate row
	ArtifactS3     = "s3"     // PDF stored in an S3 compatible bucket
)

// Artifact is the retrieval handle of a rendered certificate PDF.  Exactly one
// of Key (external store) or Data (inline base64) is set for a stored
// artifact; a zero Artifact means nothing was stored.
type Artifact struct {
	Backend string // certificates.artifact_backend
	Key     string // certificates.artifact_key (object key for external stores)
	URL     string // certificates.artifact_url (public URL, may be empty)
	Data    string // certificates.artifact_data (base64, inline backend only)
}

// Empty reports whether the artifact carries no retrievable content.
func (a Artifact) Empty() bool {
	return a.Backend == "" || (a.Key == "" && a.Data == "")
}

// Certificate mirrors a row of the `certificates` table.  A certificate is
// written once at issuance; afterwards only the verification fields change.
//
// Fields:
//
//	CredentialID    – public identifier, unique.
//	ContentHash     – SHA‑256 over the defining subject fields and a creation nonce.
//	AdmissionNumber – institution enrolment number, unique.
//	IssuerID        – accounts.id of the University principal that issued it.
//	Verified        – manual approval flag, flipped at most once.
type Certificate struct {
	ID              uint64
	CredentialID    string
	ContentHash     string
	SubjectName     string
	Course          string
	Grade           string
	IssueDate       time.Time
	DateOfBirth     time.Time
	AdmissionNumber string
	Email           string
	Mobile          string
	Address         string
	Institution     string
	Section         string
	Semester        string
	IssuerID        uint64
	IssuerName      string
	Artifact        Artifact
	Verified        bool
	VerifiedBy      *uint64
	VerifiedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CertificateFilter narrows the issued-certificate listing.  Query matches
// case-insensitively against subject name, admission number and course.
type CertificateFilter struct {
	IssuerID uint64
	Query    string
	Limit    int
	Offset   int
}
