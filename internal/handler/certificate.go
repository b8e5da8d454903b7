package handler

import (
	"context"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/certichain/internal/middleware"
	"github.com/iliyamo/certichain/internal/model"
	"github.com/iliyamo/certichain/internal/service"
)

// CertificateService is implemented by *service.CertificateService.
type CertificateService interface {
	Issue(ctx context.Context, p model.Principal, req service.IssueRequest) (*model.Certificate, error)
	LookupByCredentialID(ctx context.Context, id string) (*model.Certificate, error)
	LookupByIdentity(ctx context.Context, q service.IdentityQuery) (*model.Certificate, error)
	Verify(ctx context.Context, p model.Principal, id string) (*model.Certificate, error)
	Download(ctx context.Context, id string) (*service.Document, error)
	List(ctx context.Context, p model.Principal, f model.CertificateFilter) (service.ListResult, error)
}

// CachePurger drops cached responses of a path after a write.
type CachePurger interface {
	Purge(ctx context.Context, path string) error
}

// VerifyPath is the public verification route; the cache is purged on this
// path when a certificate is manually verified.
func VerifyPath(credentialID string) string {
	return "/v1/certificates/verify/" + credentialID
}

func downloadPath(credentialID string) string {
	return "/v1/certificates/" + credentialID + "/download"
}

type CertificateHandler struct {
	svc   CertificateService
	cache CachePurger
	log   *zap.Logger
}

// NewCertificateHandler wires the certificate endpoints.  cache may be nil.
func NewCertificateHandler(svc CertificateService, cache CachePurger, log *zap.Logger) *CertificateHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CertificateHandler{svc: svc, cache: cache, log: log.With(zap.String("component", "certificate_handler"))}
}

// publicView is what anyone holding a credential ID may see.  Contact
// details and date of birth are left out.
type publicView struct {
	CredentialID string     `json:"credential_id"`
	ContentHash  string     `json:"content_hash"`
	Name         string     `json:"name"`
	Course       string     `json:"course"`
	Grade        string     `json:"grade,omitempty"`
	IssueDate    string     `json:"issue_date"`
	Institution  string     `json:"institution"`
	IssuerName   string     `json:"issuer_name"`
	Verified     bool       `json:"verified"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
	ArtifactURL  string     `json:"artifact_url,omitempty"`
	DownloadURL  string     `json:"download_url"`
}

// fullView is returned to the issuing University and to the student who
// proved their identity.
type fullView struct {
	publicView
	AdmissionNumber string    `json:"admission_number"`
	DateOfBirth     string    `json:"dob"`
	Email           string    `json:"email,omitempty"`
	Mobile          string    `json:"mobile,omitempty"`
	Address         string    `json:"address,omitempty"`
	Section         string    `json:"section,omitempty"`
	Semester        string    `json:"semester,omitempty"`
	VerifiedBy      *uint64   `json:"verified_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func toPublic(c *model.Certificate) publicView {
	return publicView{
		CredentialID: c.CredentialID,
		ContentHash:  c.ContentHash,
		Name:         c.SubjectName,
		Course:       c.Course,
		Grade:        c.Grade,
		IssueDate:    c.IssueDate.Format(time.DateOnly),
		Institution:  c.Institution,
		IssuerName:   c.IssuerName,
		Verified:     c.Verified,
		VerifiedAt:   c.VerifiedAt,
		ArtifactURL:  c.Artifact.URL,
		DownloadURL:  downloadPath(c.CredentialID),
	}
}

func toFull(c *model.Certificate) fullView {
	return fullView{
		publicView:      toPublic(c),
		AdmissionNumber: c.AdmissionNumber,
		DateOfBirth:     c.DateOfBirth.Format(time.DateOnly),
		Email:           c.Email,
		Mobile:          c.Mobile,
		Address:         c.Address,
		Section:         c.Section,
		Semester:        c.Semester,
		VerifiedBy:      c.VerifiedBy,
		CreatedAt:       c.CreatedAt,
	}
}

// Issue handles POST /v1/certificates.
func (h *CertificateHandler) Issue(c echo.Context) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req service.IssueRequest
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	cert, err := h.svc.Issue(c.Request().Context(), p, req)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, toFull(cert))
}

// List handles GET /v1/certificates?q=&limit=&offset=.
func (h *CertificateHandler) List(c echo.Context) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	f := model.CertificateFilter{Query: c.QueryParam("q")}
	fields := map[string]string{}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fields["limit"] = "must be a non-negative integer"
		}
		f.Limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fields["offset"] = "must be a non-negative integer"
		}
		f.Offset = n
	}
	if len(fields) > 0 {
		return respondError(c, h.log, &service.ValidationError{Fields: fields})
	}

	res, err := h.svc.List(c.Request().Context(), p, f)
	if err != nil {
		return respondError(c, h.log, err)
	}
	items := make([]fullView, 0, len(res.Items))
	for i := range res.Items {
		items = append(items, toFull(&res.Items[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items":  items,
		"total":  res.Total,
		"limit":  res.Limit,
		"offset": res.Offset,
	})
}

// Verify handles PUT /v1/certificates/:credential_id/verify.
func (h *CertificateHandler) Verify(c echo.Context) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	cert, err := h.svc.Verify(c.Request().Context(), p, c.Param("credential_id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	if h.cache != nil {
		if err := h.cache.Purge(c.Request().Context(), VerifyPath(cert.CredentialID)); err != nil {
			h.log.Warn("cache purge failed", zap.String("credential_id", cert.CredentialID), zap.Error(err))
		}
	}
	return c.JSON(http.StatusOK, toFull(cert))
}

// LookupByCredentialID handles GET /v1/certificates/verify/:credential_id.
func (h *CertificateHandler) LookupByCredentialID(c echo.Context) error {
	cert, err := h.svc.LookupByCredentialID(c.Request().Context(), c.Param("credential_id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toPublic(cert))
}

// LookupByIdentity handles POST /v1/certificates/fetch.
func (h *CertificateHandler) LookupByIdentity(c echo.Context) error {
	var q service.IdentityQuery
	if err := c.Bind(&q); err != nil {
		return badBody(c)
	}
	cert, err := h.svc.LookupByIdentity(c.Request().Context(), q)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toFull(cert))
}

// Download handles GET /v1/certificates/:credential_id/download.
func (h *CertificateHandler) Download(c echo.Context) error {
	doc, err := h.svc.Download(c.Request().Context(), c.Param("credential_id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	hdr := c.Response().Header()
	hdr.Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
	hdr.Set(echo.HeaderContentLength, strconv.Itoa(len(doc.Data)))
	hdr.Set("Cache-Control", "no-store")
	return c.Blob(http.StatusOK, doc.ContentType, doc.Data)
}
