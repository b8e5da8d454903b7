// Package service holds the certificate workflows: issuance, lookup,
// manual verification and download.  Handlers translate HTTP to calls on
// CertificateService and map the returned error kinds to status codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/iliyamo/certichain/internal/artifact"
	"github.com/iliyamo/certichain/internal/credential"
	"github.com/iliyamo/certichain/internal/metrics"
	"github.com/iliyamo/certichain/internal/model"
	"github.com/iliyamo/certichain/internal/queue"
	"github.com/iliyamo/certichain/internal/render"
	"github.com/iliyamo/certichain/internal/repository"
)

// Stage names a step of the issuance workflow.
type Stage string

const (
	StageValidating Stage = "validating"
	StageGenerating Stage = "generating"
	StageRendering  Stage = "rendering"
	StageStoring    Stage = "storing"
	StagePersisting Stage = "persisting"
	StageDone       Stage = "done"
)

const (
	maxGenerateAttempts = 3
	defaultIssueTimeout = 30 * time.Second
	publishTimeout      = 5 * time.Second
	defaultListLimit    = 20
	maxListLimit        = 100
	pdfContentType      = "application/pdf"
)

// IssueRequest carries the subject fields of a new certificate.  Dates are
// YYYY-MM-DD; IssueDate defaults to today.
type IssueRequest struct {
	SubjectName     string `json:"name" validate:"required,max=200"`
	Course          string `json:"course" validate:"required,max=200"`
	Grade           string `json:"grade" validate:"max=50"`
	IssueDate       string `json:"issue_date"`
	DateOfBirth     string `json:"dob" validate:"required"`
	AdmissionNumber string `json:"admission_number" validate:"required,max=64"`
	Email           string `json:"email" validate:"omitempty,email,max=255"`
	Mobile          string `json:"mobile" validate:"max=32"`
	Address         string `json:"address" validate:"max=500"`
	Institution     string `json:"institution" validate:"max=200"`
	Section         string `json:"section" validate:"max=32"`
	Semester        string `json:"semester" validate:"max=20"`
}

func (r *IssueRequest) normalize() {
	for _, p := range []*string{
		&r.SubjectName, &r.Course, &r.Grade, &r.IssueDate, &r.DateOfBirth, &r.AdmissionNumber,
		&r.Email, &r.Mobile, &r.Address, &r.Institution, &r.Section, &r.Semester,
	} {
		*p = strings.TrimSpace(*p)
	}
	r.Email = strings.ToLower(r.Email)
}

// IdentityQuery is the identity triple a student uses to find their
// certificate without a credential ID.
type IdentityQuery struct {
	Name            string `json:"name" validate:"required,max=200"`
	AdmissionNumber string `json:"admission_number" validate:"required,max=64"`
	DateOfBirth     string `json:"dob" validate:"required"`
}

// Document is a resolved certificate PDF ready to be sent to a client.
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ListResult is one page of issued certificates.
type ListResult struct {
	Items  []model.Certificate
	Total  int64
	Limit  int
	Offset int
}

// CertificateDeps are the collaborators of CertificateService.  Events and
// Metrics may be nil.
type CertificateDeps struct {
	Store        CertificateStore
	Generator    CredentialGenerator
	Renderer     Renderer
	Artifacts    artifact.Store
	Events       EventPublisher
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
	Institution  string
	Clock        func() time.Time
	IssueTimeout time.Duration
}

// CertificateService implements the certificate workflows.  It keeps no
// per-request state and is safe for concurrent use.
type CertificateService struct {
	store        CertificateStore
	gen          CredentialGenerator
	renderer     Renderer
	artifacts    artifact.Store
	events       EventPublisher
	metrics      *metrics.Metrics
	log          *zap.Logger
	institution  string
	now          func() time.Time
	issueTimeout time.Duration
}

func NewCertificateService(d CertificateDeps) *CertificateService {
	s := &CertificateService{
		store:        d.Store,
		gen:          d.Generator,
		renderer:     d.Renderer,
		artifacts:    d.Artifacts,
		events:       d.Events,
		metrics:      d.Metrics,
		log:          d.Logger,
		institution:  d.Institution,
		now:          d.Clock,
		issueTimeout: d.IssueTimeout,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.With(zap.String("component", "certificate_service"))
	if s.now == nil {
		s.now = time.Now
	}
	if s.issueTimeout <= 0 {
		s.issueTimeout = defaultIssueTimeout
	}
	return s
}

// Issue runs the issuance workflow for p.  The returned certificate never
// carries the inline PDF payload.
//
// Once rendering starts the work continues on a context detached from ctx,
// bounded by the issue timeout, so a client disconnect cannot interrupt it
// between storing the artifact and writing the record.
func (s *CertificateService) Issue(ctx context.Context, p model.Principal, req IssueRequest) (*model.Certificate, error) {
	if p.Role != model.RoleUniversity {
		return nil, ErrForbidden
	}
	req.normalize()
	c, fields, err := s.validateIssue(req)
	if err != nil {
		return nil, s.failIssue(StageValidating, err)
	}
	logf := []zap.Field{zap.String("admission_number", c.AdmissionNumber), zap.Uint64("issuer_id", p.ID)}

	taken, err := s.store.AdmissionNumberExists(ctx, c.AdmissionNumber)
	if err != nil {
		return nil, s.failIssue(StageValidating, &PersistenceError{Op: "check admission number", Err: err}, logf...)
	}
	if taken {
		return nil, s.failIssue(StageValidating, &ConflictError{Field: "admission_number"}, logf...)
	}

	cred, err := s.generate(ctx, fields)
	if err != nil {
		return nil, s.failIssue(StageGenerating, err, logf...)
	}
	c.CredentialID, c.ContentHash = cred.ID, cred.Hash
	c.IssuerID, c.IssuerName = p.ID, p.Name
	logf = append(logf, zap.String("credential_id", c.CredentialID))

	work, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.issueTimeout)
	defer cancel()

	pdf, err := s.render(work, c)
	if err != nil {
		return nil, s.failIssue(StageRendering, err, logf...)
	}

	h, err := s.artifacts.Put(work, c.CredentialID, pdf)
	if err != nil {
		return nil, s.failIssue(StageStoring, &ArtifactStoreError{Op: "put", Err: err}, logf...)
	}
	c.Artifact = h

	var inserted *repository.InsertedError
	if err := s.store.Create(work, c); errors.As(err, &inserted) {
		s.log.Warn("certificate stored, read-back failed", append(logf, zap.Error(err))...)
	} else if err != nil {
		s.discard(work, h)
		var dup *repository.DuplicateError
		if errors.As(err, &dup) {
			return nil, s.failIssue(StagePersisting, &ConflictError{Field: dup.Key}, logf...)
		}
		return nil, s.failIssue(StagePersisting, &PersistenceError{Op: "insert certificate", Err: err}, logf...)
	}

	s.publishIssued(work, c)
	s.metrics.Issuance(string(StageDone), true)
	s.log.Info("certificate issued", append(logf,
		zap.String("artifact_backend", h.Backend), zap.Int("artifact_bytes", len(pdf)))...)

	out := *c
	out.Artifact.Data = ""
	return &out, nil
}

func (s *CertificateService) validateIssue(req IssueRequest) (*model.Certificate, credential.Fields, error) {
	if err := ValidateStruct(req); err != nil {
		return nil, credential.Fields{}, err
	}
	verr := &ValidationError{Fields: map[string]string{}}
	dob, err := parseDate(req.DateOfBirth)
	if err != nil {
		verr.Fields["dob"] = validationMessage("datetime", "")
	}
	issued := calendarDay(s.now().UTC())
	if req.IssueDate != "" {
		if issued, err = parseDate(req.IssueDate); err != nil {
			verr.Fields["issue_date"] = validationMessage("datetime", "")
		}
	}
	if len(verr.Fields) == 0 && dob.After(issued) {
		verr.Fields["dob"] = "must not be after the issue date"
	}
	if len(verr.Fields) > 0 {
		return nil, credential.Fields{}, verr
	}

	institution := req.Institution
	if institution == "" {
		institution = s.institution
	}
	c := &model.Certificate{
		SubjectName:     req.SubjectName,
		Course:          req.Course,
		Grade:           req.Grade,
		IssueDate:       issued,
		DateOfBirth:     dob,
		AdmissionNumber: req.AdmissionNumber,
		Email:           req.Email,
		Mobile:          req.Mobile,
		Address:         req.Address,
		Institution:     institution,
		Section:         req.Section,
		Semester:        req.Semester,
	}
	f := credential.Fields{
		SubjectName:     c.SubjectName,
		Course:          c.Course,
		Grade:           c.Grade,
		AdmissionNumber: c.AdmissionNumber,
		DateOfBirth:     dob.Format(time.DateOnly),
		IssueDate:       issued.Format(time.DateOnly),
	}
	return c, f, nil
}

// generate draws credential IDs until one is unused.  The unique index is
// still the final arbiter; this only avoids rendering for a known collision.
func (s *CertificateService) generate(ctx context.Context, f credential.Fields) (credential.Credential, error) {
	for attempt := 1; attempt <= maxGenerateAttempts; attempt++ {
		cred, err := s.gen.Generate(f)
		if err != nil {
			return credential.Credential{}, fmt.Errorf("generate credential: %w", err)
		}
		taken, err := s.store.CredentialIDExists(ctx, cred.ID)
		if err != nil {
			return credential.Credential{}, &PersistenceError{Op: "check credential id", Err: err}
		}
		if !taken {
			return cred, nil
		}
		s.log.Warn("credential id collision, regenerating",
			zap.String("credential_id", cred.ID), zap.Int("attempt", attempt))
	}
	return credential.Credential{}, &ConflictError{Field: "credential_id"}
}

// render waits for the renderer exactly once: it returns the complete
// document or an error, never a partial buffer.
func (s *CertificateService) render(ctx context.Context, c *model.Certificate) ([]byte, error) {
	type result struct {
		pdf []byte
		err error
	}
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("renderer panic: %v", r)}
			}
		}()
		pdf, err := s.renderer.Render(render.Certificate{
			SubjectName:  c.SubjectName,
			Course:       c.Course,
			Grade:        c.Grade,
			Institution:  c.Institution,
			IssuerName:   c.IssuerName,
			CredentialID: c.CredentialID,
			IssueDate:    c.IssueDate,
		})
		done <- result{pdf: pdf, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, &RenderError{Err: ctx.Err()}
	case r := <-done:
		if r.err != nil {
			return nil, &RenderError{Err: r.err}
		}
		if len(r.pdf) == 0 {
			return nil, &RenderError{Err: render.ErrEmptyDocument}
		}
		s.metrics.Rendered(time.Since(start), len(r.pdf))
		return r.pdf, nil
	}
}

// discard removes an artifact whose record was never inserted.
func (s *CertificateService) discard(ctx context.Context, h model.Artifact) {
	if err := s.artifacts.Delete(ctx, h); err != nil {
		s.log.Warn("could not remove orphaned artifact",
			zap.String("backend", h.Backend), zap.String("key", h.Key), zap.Error(err))
	}
}

func (s *CertificateService) publishIssued(ctx context.Context, c *model.Certificate) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	issuedAt := c.CreatedAt
	if issuedAt.IsZero() {
		issuedAt = s.now()
	}
	ev := queue.CertificateIssuedEvent{
		CredentialID:    c.CredentialID,
		ContentHash:     c.ContentHash,
		SubjectName:     c.SubjectName,
		AdmissionNumber: c.AdmissionNumber,
		Course:          c.Course,
		IssueDate:       c.IssueDate.Format(time.DateOnly),
		IssuerID:        c.IssuerID,
		IssuerName:      c.IssuerName,
		ArtifactBackend: c.Artifact.Backend,
		IssuedAt:        issuedAt.UTC().Format(time.RFC3339),
	}
	if err := s.events.PublishIssued(ctx, ev); err != nil {
		s.log.Warn("publish certificate.issued failed",
			zap.String("credential_id", c.CredentialID), zap.Error(err))
	}
}

func (s *CertificateService) failIssue(stage Stage, err error, fields ...zap.Field) error {
	s.metrics.Issuance(string(stage), false)
	fields = append(fields, zap.String("stage", string(stage)), zap.Error(err))
	var verr *ValidationError
	if errors.As(err, &verr) || errors.Is(err, ErrConflict) {
		s.log.Info("issuance rejected", fields...)
	} else {
		s.log.Error("issuance failed", fields...)
	}
	return err
}

// LookupByCredentialID returns the certificate with the given public ID,
// without its artifact payload.
func (s *CertificateService) LookupByCredentialID(ctx context.Context, id string) (*model.Certificate, error) {
	c, err := s.get(ctx, id, false)
	s.metrics.Lookup("credential", err == nil)
	return c, err
}

// LookupByIdentity finds a certificate by admission number, then checks the
// name case-insensitively and the date of birth by calendar day.  Every
// mismatch yields the same ErrNotFound.
func (s *CertificateService) LookupByIdentity(ctx context.Context, q IdentityQuery) (*model.Certificate, error) {
	q.Name = strings.TrimSpace(q.Name)
	q.AdmissionNumber = strings.TrimSpace(q.AdmissionNumber)
	q.DateOfBirth = strings.TrimSpace(q.DateOfBirth)
	if err := ValidateStruct(q); err != nil {
		return nil, err
	}
	dob, err := parseDate(q.DateOfBirth)
	if err != nil {
		return nil, invalid("dob", validationMessage("datetime", ""))
	}

	c, err := s.store.GetByAdmissionNumber(ctx, q.AdmissionNumber)
	if errors.Is(err, repository.ErrNotFound) {
		s.metrics.Lookup("identity", false)
		return nil, ErrNotFound
	}
	if err != nil {
		s.log.Error("identity lookup failed", zap.Error(err))
		return nil, &PersistenceError{Op: "get certificate", Err: err}
	}
	if c.AdmissionNumber != q.AdmissionNumber ||
		!strings.EqualFold(strings.TrimSpace(c.SubjectName), q.Name) ||
		!sameDay(c.DateOfBirth, dob) {
		s.metrics.Lookup("identity", false)
		return nil, ErrNotFound
	}
	s.metrics.Lookup("identity", true)
	return c, nil
}

// Verify sets the manual verification flag on behalf of p.  Verifying an
// already verified certificate succeeds and keeps the original verifier.
func (s *CertificateService) Verify(ctx context.Context, p model.Principal, id string) (*model.Certificate, error) {
	if p.Role != model.RoleUniversity {
		return nil, ErrForbidden
	}
	c, err := s.get(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if c.Verified {
		return c, nil
	}

	now := s.now().UTC()
	changed, err := s.store.MarkVerified(ctx, c.CredentialID, p.ID, now)
	if err != nil {
		s.log.Error("mark verified failed", zap.String("credential_id", c.CredentialID), zap.Error(err))
		return nil, &PersistenceError{Op: "mark verified", Err: err}
	}
	if !changed {
		// verified concurrently; report the stored verifier
		return s.get(ctx, c.CredentialID, false)
	}
	by := p.ID
	c.Verified, c.VerifiedBy, c.VerifiedAt = true, &by, &now
	s.log.Info("certificate verified",
		zap.String("credential_id", c.CredentialID), zap.Uint64("verified_by", p.ID))
	return c, nil
}

// Download resolves the stored PDF of a certificate.  A missing record
// yields ErrNotFound, a record without a retrievable artifact
// ErrArtifactNotFound.
func (s *CertificateService) Download(ctx context.Context, id string) (*Document, error) {
	c, err := s.get(ctx, id, true)
	if err != nil {
		s.metrics.Download("not_found")
		return nil, err
	}
	if c.Artifact.Empty() {
		s.metrics.Download("missing_artifact")
		return nil, ErrArtifactNotFound
	}
	data, err := s.artifacts.Get(ctx, c.Artifact)
	switch {
	case errors.Is(err, artifact.ErrNotFound), err == nil && len(data) == 0:
		s.metrics.Download("missing_artifact")
		return nil, ErrArtifactNotFound
	case err != nil:
		s.metrics.Download("error")
		s.log.Error("artifact read failed", zap.String("credential_id", c.CredentialID),
			zap.String("backend", c.Artifact.Backend), zap.Error(err))
		return nil, &ArtifactStoreError{Op: "get", Err: err}
	}
	s.metrics.Download("ok")
	return &Document{
		Filename:    DownloadFilename(c.SubjectName, c.CredentialID),
		ContentType: pdfContentType,
		Data:        data,
	}, nil
}

// List returns the certificates issued by p, newest first.
func (s *CertificateService) List(ctx context.Context, p model.Principal, f model.CertificateFilter) (ListResult, error) {
	if p.Role != model.RoleUniversity {
		return ListResult{}, ErrForbidden
	}
	f.IssuerID = p.ID
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	items, total, err := s.store.List(ctx, f)
	if err != nil {
		s.log.Error("list certificates failed", zap.Error(err))
		return ListResult{}, &PersistenceError{Op: "list certificates", Err: err}
	}
	return ListResult{Items: items, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

func (s *CertificateService) get(ctx context.Context, id string, withArtifact bool) (*model.Certificate, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}
	c, err := s.store.GetByCredentialID(ctx, id, withArtifact)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		s.log.Error("get certificate failed", zap.String("credential_id", id), zap.Error(err))
		return nil, &PersistenceError{Op: "get certificate", Err: err}
	}
	return c, nil
}

// DownloadFilename builds "<Subject_Name>_Certificate.pdf" from the subject
// name with runs of whitespace collapsed to one underscore.  Characters that
// are not letters, digits, '-' or '.' are dropped; fallback is used when
// nothing is left.
func DownloadFilename(subject, fallback string) string {
	words := make([]string, 0, 4)
	for _, w := range strings.Fields(subject) {
		w = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '.' {
				return r
			}
			return -1
		}, w)
		if w = strings.Trim(w, "."); w != "" {
			words = append(words, w)
		}
	}
	name := strings.Join(words, "_")
	if name == "" {
		name = fallback
	}
	return name + "_Certificate.pdf"
}
