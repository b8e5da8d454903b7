package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iliyamo/certichain/internal/artifact"
	"github.com/iliyamo/certichain/internal/credential"
	"github.com/iliyamo/certichain/internal/metrics"
	"github.com/iliyamo/certichain/internal/model"
	"github.com/iliyamo/certichain/internal/queue"
	"github.com/iliyamo/certichain/internal/render"
	"github.com/iliyamo/certichain/internal/repository"
)

var (
	university = model.Principal{ID: 1, Name: "Galgotias University", Role: model.RoleUniversity}
	company    = model.Principal{ID: 9, Name: "Acme Hiring", Role: model.RoleCompany}
	testNow    = time.Date(2025, 6, 30, 9, 0, 0, 0, time.UTC)
)

// fakeStore is an in-memory CertificateStore enforcing the same unique keys
// as the certificates table.
type fakeStore struct {
	mu         sync.Mutex
	rows       map[string]*model.Certificate
	nextID     uint64
	createErr  error
	calls      int
	lastFilter model.CertificateFilter
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[string]*model.Certificate{}}
}

func (f *fakeStore) Create(_ context.Context, c *model.Certificate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.rows[c.CredentialID]; ok {
		return &repository.DuplicateError{Key: "credential_id"}
	}
	for _, r := range f.rows {
		if r.AdmissionNumber == c.AdmissionNumber {
			return &repository.DuplicateError{Key: "admission_number"}
		}
	}
	f.nextID++
	c.ID = f.nextID
	c.CreatedAt, c.UpdatedAt = testNow, testNow
	cp := *c
	f.rows[c.CredentialID] = &cp
	return nil
}

func (f *fakeStore) CredentialIDExists(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	_, ok := f.rows[id]
	return ok, nil
}

func (f *fakeStore) AdmissionNumberExists(_ context.Context, n string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for _, r := range f.rows {
		if r.AdmissionNumber == n {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) GetByCredentialID(_ context.Context, id string, withArtifact bool) (*model.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	if !withArtifact {
		cp.Artifact.Data = ""
	}
	return &cp, nil
}

func (f *fakeStore) GetByAdmissionNumber(_ context.Context, n string) (*model.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.AdmissionNumber == n {
			cp := *r
			cp.Artifact.Data = ""
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) List(_ context.Context, flt model.CertificateFilter) ([]model.Certificate, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = flt
	var all []model.Certificate
	for _, r := range f.rows {
		if flt.IssuerID == 0 || r.IssuerID == flt.IssuerID {
			cp := *r
			cp.Artifact.Data = ""
			all = append(all, cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := int64(len(all))
	if flt.Offset >= len(all) {
		return []model.Certificate{}, total, nil
	}
	all = all[flt.Offset:]
	if len(all) > flt.Limit {
		all = all[:flt.Limit]
	}
	return all, total, nil
}

func (f *fakeStore) MarkVerified(_ context.Context, id string, by uint64, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok || r.Verified {
		return false, nil
	}
	r.Verified, r.VerifiedBy, r.VerifiedAt = true, &by, &at
	return true, nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func (f *fakeStore) put(c model.Certificate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c.ID = f.nextID
	f.rows[c.CredentialID] = &c
}

// seqGenerator hands out the given IDs in order, repeating the last one.
type seqGenerator struct {
	ids   []string
	calls int
	err   error
}

func (g *seqGenerator) Generate(f credential.Fields) (credential.Credential, error) {
	if g.err != nil {
		return credential.Credential{}, g.err
	}
	id := g.ids[min(g.calls, len(g.ids)-1)]
	g.calls++
	return credential.Credential{ID: id, Hash: credential.Hash(f, "nonce"), Nonce: "nonce"}, nil
}

// recordingRenderer wraps a render function and remembers its last output.
type recordingRenderer struct {
	fn    func(render.Certificate) ([]byte, error)
	calls int
	last  []byte
}

func (r *recordingRenderer) Render(c render.Certificate) ([]byte, error) {
	r.calls++
	out, err := r.fn(c)
	r.last = out
	return out, err
}

func realRenderer() *recordingRenderer {
	return &recordingRenderer{fn: render.NewPDFRenderer().Render}
}

// recordingArtifacts wraps a Store and can inject failures.
type recordingArtifacts struct {
	artifact.Store
	putErr  error
	getErr  error
	puts    int
	deletes int
}

func (a *recordingArtifacts) Put(ctx context.Context, key string, data []byte) (model.Artifact, error) {
	if a.putErr != nil {
		return model.Artifact{}, &artifact.StoreError{Backend: "fake", Op: "put", Err: a.putErr}
	}
	a.puts++
	return a.Store.Put(ctx, key, data)
}

func (a *recordingArtifacts) Get(ctx context.Context, h model.Artifact) ([]byte, error) {
	if a.getErr != nil {
		return nil, a.getErr
	}
	return a.Store.Get(ctx, h)
}

func (a *recordingArtifacts) Delete(ctx context.Context, h model.Artifact) error {
	a.deletes++
	return a.Store.Delete(ctx, h)
}

type fakeEvents struct {
	mu     sync.Mutex
	events []queue.CertificateIssuedEvent
	err    error
}

func (e *fakeEvents) PublishIssued(_ context.Context, ev queue.CertificateIssuedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.events = append(e.events, ev)
	return nil
}

type fixture struct {
	svc       *CertificateService
	store     *fakeStore
	renderer  *recordingRenderer
	artifacts *recordingArtifacts
	events    *fakeEvents
}

type fixtureOption func(*CertificateDeps)

func withGenerator(g CredentialGenerator) fixtureOption {
	return func(d *CertificateDeps) { d.Generator = g }
}

func withStore(st CertificateStore) fixtureOption {
	return func(d *CertificateDeps) { d.Store = st }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	f := &fixture{
		store:     newFakeStore(),
		renderer:  realRenderer(),
		artifacts: &recordingArtifacts{Store: artifact.NewResolver(artifact.NewInline())},
		events:    &fakeEvents{},
	}
	d := CertificateDeps{
		Store:       f.store,
		Generator:   credential.NewGenerator("GU"),
		Renderer:    f.renderer,
		Artifacts:   f.artifacts,
		Events:      f.events,
		Metrics:     metrics.New(prometheus.NewRegistry()),
		Institution: "Galgotias University",
		Clock:       func() time.Time { return testNow },
	}
	for _, o := range opts {
		o(&d)
	}
	f.svc = NewCertificateService(d)
	return f
}

func ashaRao() IssueRequest {
	return IssueRequest{
		SubjectName:     "Asha Rao",
		Course:          "B.Sc CS",
		AdmissionNumber: "GU-001",
		DateOfBirth:     "2001-05-04",
	}
}

var errBoom = errors.New("boom")
