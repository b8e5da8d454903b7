package artifact

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/certichain/internal/model"
)

var pdfBytes = []byte("%PDF-1.3\n...binary\x00\x01\x02...\n%%EOF\n")

func TestInline_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewInline()

	h, err := s.Put(ctx, "GU-X-1", pdfBytes)
	require.NoError(t, err)
	assert.Equal(t, model.ArtifactInline, h.Backend)
	assert.Equal(t, base64.StdEncoding.EncodeToString(pdfBytes), h.Data)

	got, err := s.Get(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, pdfBytes, got)
}

func TestInline_RejectsEmpty(t *testing.T) {
	_, err := NewInline().Put(context.Background(), "k", nil)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestInline_GetMissingAndCorrupt(t *testing.T) {
	ctx := context.Background()
	_, err := NewInline().Get(ctx, model.Artifact{Backend: model.ArtifactInline})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = NewInline().Get(ctx, model.Artifact{Backend: model.ArtifactInline, Data: "%%%"})
	var se *StoreError
	assert.ErrorAs(t, err, &se)
}

func TestResolver_DispatchesByBackend(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(nil)
	assert.Equal(t, model.ArtifactInline, r.Name())

	h, err := r.Put(ctx, "k", pdfBytes)
	require.NoError(t, err)
	got, err := r.Get(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, pdfBytes, got)

	_, err = r.Get(ctx, model.Artifact{})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Get(ctx, model.Artifact{Backend: "gcs", Key: "x"})
	var se *StoreError
	assert.ErrorAs(t, err, &se)
}
