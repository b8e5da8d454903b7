package service

import (
	"context"
	"time"

	"github.com/iliyamo/certichain/internal/credential"
	"github.com/iliyamo/certichain/internal/model"
	"github.com/iliyamo/certichain/internal/queue"
	"github.com/iliyamo/certichain/internal/render"
)

// CertificateStore is the persistence port; *repository.CertificateRepo
// implements it.  Implementations report missing rows as
// repository.ErrNotFound and unique violations as *repository.DuplicateError.
type CertificateStore interface {
	Create(ctx context.Context, c *model.Certificate) error
	CredentialIDExists(ctx context.Context, id string) (bool, error)
	AdmissionNumberExists(ctx context.Context, n string) (bool, error)
	GetByCredentialID(ctx context.Context, id string, withArtifact bool) (*model.Certificate, error)
	GetByAdmissionNumber(ctx context.Context, n string) (*model.Certificate, error)
	List(ctx context.Context, f model.CertificateFilter) ([]model.Certificate, int64, error)
	MarkVerified(ctx context.Context, credentialID string, by uint64, at time.Time) (bool, error)
}

// CredentialGenerator produces credential IDs and content hashes.
type CredentialGenerator interface {
	Generate(f credential.Fields) (credential.Credential, error)
}

// Renderer turns display fields into a complete PDF.
type Renderer interface {
	Render(c render.Certificate) ([]byte, error)
}

// EventPublisher publishes domain events.  Failures are logged and never
// fail the operation that raised the event.
type EventPublisher interface {
	PublishIssued(ctx context.Context, ev queue.CertificateIssuedEvent) error
}
