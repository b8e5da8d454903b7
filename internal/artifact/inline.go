package artifact

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/iliyamo/certichain/internal/model"
)

// Inline keeps artifacts inside the certificate record as base64.
type Inline struct{}

func NewInline() *Inline { return &Inline{} }

func (*Inline) Name() string { return model.ArtifactInline }

func (*Inline) Put(_ context.Context, _ string, data []byte) (model.Artifact, error) {
	if len(data) == 0 {
		return model.Artifact{}, ErrEmpty
	}
	return model.Artifact{
		Backend: model.ArtifactInline,
		Data:    base64.StdEncoding.EncodeToString(data),
	}, nil
}

func (*Inline) Get(_ context.Context, h model.Artifact) ([]byte, error) {
	if h.Data == "" {
		return nil, ErrNotFound
	}
	b, err := base64.StdEncoding.DecodeString(h.Data)
	if err != nil {
		return nil, &StoreError{Backend: model.ArtifactInline, Op: "decode", Err: fmt.Errorf("corrupt inline artifact: %w", err)}
	}
	return b, nil
}

// Delete is a no-op; the bytes disappear with the record that holds them.
func (*Inline) Delete(context.Context, model.Artifact) error { return nil }
