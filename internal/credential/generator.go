// Package credential produces the public credential identifier and the
// content hash stored with every certificate.
package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultPrefix is used when no institutional prefix is configured.
const DefaultPrefix = "GU"

// suffixLen is the number of hex characters of the random UUID kept in the ID.
const suffixLen = 10

// Fields are the defining subject fields covered by the content hash.
type Fields struct {
	SubjectName     string
	Course          string
	Grade           string
	AdmissionNumber string
	DateOfBirth     string // YYYY-MM-DD
	IssueDate       string // YYYY-MM-DD
}

// Credential is the output of one generation.
type Credential struct {
	ID    string
	Hash  string
	Nonce string
}

// Generator builds IDs of the form PREFIX-<base36 unix millis>-<10 hex>.
// The time component keeps IDs roughly sortable, the random suffix keeps them
// unguessable from public information.
type Generator struct {
	prefix  string
	now     func() time.Time
	entropy io.Reader
}

// Option customises a Generator.
type Option func(*Generator)

// WithClock replaces the time source (tests).
func WithClock(now func() time.Time) Option { return func(g *Generator) { g.now = now } }

// WithEntropy replaces the random source (tests).
func WithEntropy(r io.Reader) Option { return func(g *Generator) { g.entropy = r } }

// NewGenerator returns a generator for the given institutional prefix.
func NewGenerator(prefix string, opts ...Option) *Generator {
	prefix = strings.ToUpper(strings.Trim(strings.TrimSpace(prefix), "-"))
	if prefix == "" {
		prefix = DefaultPrefix
	}
	g := &Generator{prefix: prefix, now: time.Now, entropy: rand.Reader}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Prefix returns the normalised institutional prefix.
func (g *Generator) Prefix() string { return g.prefix }

// Generate draws a fresh credential ID and hashes f with a creation-time
// nonce.  Every call consumes new entropy, so callers retry on collision
// simply by calling Generate again.
func (g *Generator) Generate(f Fields) (Credential, error) {
	now := g.now().UTC()
	u, err := uuid.NewRandomFromReader(g.entropy)
	if err != nil {
		return Credential{}, fmt.Errorf("read entropy: %w", err)
	}
	suffix := strings.ToUpper(strings.ReplaceAll(u.String(), "-", ""))[:suffixLen]
	stamp := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	nonce := now.Format(time.RFC3339Nano)
	return Credential{
		ID:    g.prefix + "-" + stamp + "-" + suffix,
		Hash:  Hash(f, nonce),
		Nonce: nonce,
	}, nil
}

// Hash returns the hex SHA‑256 of the subject fields and nonce.  Each part
// is written with a 4-byte big-endian length prefix, so no choice of field
// contents can make two different inputs encode the same.
func Hash(f Fields, nonce string) string {
	parts := []string{
		strings.TrimSpace(f.SubjectName),
		strings.TrimSpace(f.Course),
		strings.TrimSpace(f.Grade),
		strings.TrimSpace(f.AdmissionNumber),
		f.DateOfBirth,
		f.IssueDate,
		nonce,
	}
	h := sha256.New()
	var n [4]byte
	for _, p := range parts {
		binary.BigEndian.PutUint32(n[:], uint32(len(p)))
		h.Write(n[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
