// Package artifact persists rendered certificate PDFs and reads them back.
//
// Two backends exist: Inline keeps the base64 encoded bytes in the handle
// itself (the certificate row stores it), S3 uploads to an S3 compatible
// bucket and keeps the object key.  Both reject empty buffers before doing
// any work and both reconstitute the exact bytes on Get.
package artifact

import (
	"context"
	"errors"
	"fmt"

	"github.com/iliyamo/certichain/internal/model"
)

var (
	// ErrEmpty is returned by Put for a zero-length buffer.
	ErrEmpty = errors.New("artifact is empty")
	// ErrNotFound is returned by Get when the handle resolves to nothing.
	ErrNotFound = errors.New("artifact not found")
)

// Store is implemented by every artifact backend.
type Store interface {
	// Put stores data under key (normally the credential ID) and returns
	// the handle to persist with the certificate.
	Put(ctx context.Context, key string, data []byte) (model.Artifact, error)
	// Get returns the exact bytes previously stored under h.
	Get(ctx context.Context, h model.Artifact) ([]byte, error)
	// Delete removes the artifact; used to clean up after a failed issuance.
	Delete(ctx context.Context, h model.Artifact) error
	// Name identifies the backend in logs.
	Name() string
}

// StoreError wraps a failure reported by the underlying backend (network,
// auth, quota) so callers can tell it apart from ErrEmpty/ErrNotFound.
type StoreError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Resolver dispatches Get/Delete to the backend that produced a handle.
// Certificates issued before a backend switch stay downloadable.
type Resolver struct {
	primary Store
	inline  Store
}

// NewResolver returns a Resolver writing to primary.
func NewResolver(primary Store) *Resolver {
	if primary == nil {
		primary = NewInline()
	}
	return &Resolver{primary: primary, inline: NewInline()}
}

func (r *Resolver) Put(ctx context.Context, key string, data []byte) (model.Artifact, error) {
	return r.primary.Put(ctx, key, data)
}

func (r *Resolver) Get(ctx context.Context, h model.Artifact) ([]byte, error) {
	s, err := r.backend(h)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, h)
}

func (r *Resolver) Delete(ctx context.Context, h model.Artifact) error {
	s, err := r.backend(h)
	if err != nil {
		return err
	}
	return s.Delete(ctx, h)
}

func (r *Resolver) Name() string { return r.primary.Name() }

func (r *Resolver) backend(h model.Artifact) (Store, error) {
	switch h.Backend {
	case model.ArtifactInline:
		return r.inline, nil
	case r.primary.Name():
		return r.primary, nil
	case "":
		return nil, ErrNotFound
	}
	return nil, &StoreError{Backend: h.Backend, Op: "resolve", Err: errors.New("backend not configured")}
}
