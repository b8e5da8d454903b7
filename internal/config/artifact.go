package config

import (
	"fmt"
	"strings"
)

// ArtifactConfig selects and configures the PDF artifact backend.
// Backend is "inline" (base64 inside the certificate row) or "s3".
type ArtifactConfig struct {
	Backend      string
	S3Bucket     string
	S3Prefix     string
	S3Region     string
	S3Endpoint   string
	S3AccessKey  string
	S3SecretKey  string
	S3PublicBase string
	S3MaxRetries int
}

// LoadArtifactConfig reads ARTIFACT_STORE and the S3_* variables.
func LoadArtifactConfig() ArtifactConfig {
	return ArtifactConfig{
		Backend:      strings.ToLower(envStr("ARTIFACT_STORE", "inline")),
		S3Bucket:     envStr("S3_BUCKET", ""),
		S3Prefix:     envStr("S3_PREFIX", "certificates"),
		S3Region:     envStr("S3_REGION", "us-east-1"),
		S3Endpoint:   envStr("S3_ENDPOINT", ""),
		S3AccessKey:  envStr("S3_ACCESS_KEY", ""),
		S3SecretKey:  envStr("S3_SECRET_KEY", ""),
		S3PublicBase: envStr("S3_PUBLIC_BASE_URL", ""),
		S3MaxRetries: envInt("S3_MAX_RETRIES", 3),
	}
}

// Validate reports configuration that cannot produce a working backend.
func (c ArtifactConfig) Validate() error {
	switch c.Backend {
	case "inline":
		return nil
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("ARTIFACT_STORE=s3 requires S3_BUCKET")
		}
		return nil
	}
	return fmt.Errorf("unknown ARTIFACT_STORE %q (want inline or s3)", c.Backend)
}
