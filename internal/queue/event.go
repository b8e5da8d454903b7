// Package queue defines message payloads exchanged over the message broker
// together with the publisher and the audit consumer for them.
package queue

// IssuedQueue is the durable queue certificate.issued events are routed to.
const IssuedQueue = "certificate.issued"

// CertificateIssuedEvent is published after a certificate record has been
// persisted.  It carries enough for downstream consumers to audit or notify
// without querying the primary database; the PDF itself is never included.
type CertificateIssuedEvent struct {
	CredentialID    string `json:"credential_id"`
	ContentHash     string `json:"content_hash"`
	SubjectName     string `json:"subject_name"`
	AdmissionNumber string `json:"admission_number"`
	Course          string `json:"course"`
	IssueDate       string `json:"issue_date"`
	IssuerID        uint64 `json:"issuer_id"`
	IssuerName      string `json:"issuer_name"`
	ArtifactBackend string `json:"artifact_backend"`
	IssuedAt        string `json:"issued_at"`
}
