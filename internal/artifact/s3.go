package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"go.uber.org/zap"

	"github.com/iliyamo/certichain/internal/model"
)

const pdfContentType = "application/pdf"

// S3Options configures the S3 backend.  Endpoint is set for S3 compatible
// services (MinIO, R2); PublicBaseURL, when set, is used to build the public
// URL returned with each handle.
type S3Options struct {
	Bucket        string
	Prefix        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
	MaxRetries    int
	HTTPClient    *http.Client
}

// S3 stores artifacts as private objects in a bucket.
type S3 struct {
	client  *s3.S3
	bucket  string
	prefix  string
	baseURL string
	log     *zap.Logger
}

// NewS3 creates the client once; it is reused for every request.
func NewS3(opts S3Options, log *zap.Logger) (*S3, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	cfg := aws.Config{
		Region:     aws.String(opts.Region),
		MaxRetries: aws.Int(opts.MaxRetries),
	}
	if opts.Endpoint != "" {
		cfg.Endpoint = aws.String(opts.Endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(opts.AccessKey, opts.SecretKey, "")
	} else {
		log.Warn("no S3 credentials configured, relying on the default credential chain")
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return &S3{
		client:  s3.New(sess),
		bucket:  opts.Bucket,
		prefix:  strings.Trim(opts.Prefix, "/"),
		baseURL: strings.TrimSuffix(opts.PublicBaseURL, "/"),
		log:     log.With(zap.String("component", "artifact.s3"), zap.String("bucket", opts.Bucket)),
	}, nil
}

func (b *S3) Name() string { return model.ArtifactS3 }

func (b *S3) Put(ctx context.Context, key string, data []byte) (model.Artifact, error) {
	if len(data) == 0 {
		return model.Artifact{}, ErrEmpty
	}
	objectKey := b.objectKey(key)
	start := time.Now()
	_, err := b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(pdfContentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		b.log.Error("put object failed", zap.String("key", objectKey), zap.Error(err), zap.Duration("duration", time.Since(start)))
		return model.Artifact{}, &StoreError{Backend: b.Name(), Op: "put", Err: err}
	}
	b.log.Debug("stored artifact", zap.String("key", objectKey), zap.Int("size", len(data)), zap.Duration("duration", time.Since(start)))
	return model.Artifact{Backend: b.Name(), Key: objectKey, URL: b.publicURL(objectKey)}, nil
}

func (b *S3) Get(ctx context.Context, h model.Artifact) ([]byte, error) {
	if h.Key == "" {
		return nil, ErrNotFound
	}
	out, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(h.Key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		b.log.Error("get object failed", zap.String("key", h.Key), zap.Error(err))
		return nil, &StoreError{Backend: b.Name(), Op: "get", Err: err}
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &StoreError{Backend: b.Name(), Op: "read", Err: err}
	}
	return data, nil
}

func (b *S3) Delete(ctx context.Context, h model.Artifact) error {
	if h.Key == "" {
		return nil
	}
	_, err := b.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(h.Key),
	})
	if err != nil {
		return &StoreError{Backend: b.Name(), Op: "delete", Err: err}
	}
	return nil
}

func (b *S3) objectKey(key string) string {
	name := key + ".pdf"
	if b.prefix == "" {
		return name
	}
	return path.Join(b.prefix, name)
}

func (b *S3) publicURL(objectKey string) string {
	if b.baseURL == "" {
		return ""
	}
	return b.baseURL + "/" + objectKey
}

func isNoSuchKey(err error) bool {
	var aerr awserr.RequestFailure
	if errors.As(err, &aerr) && aerr.StatusCode() == http.StatusNotFound {
		return true
	}
	var cerr awserr.Error
	return errors.As(err, &cerr) && (cerr.Code() == s3.ErrCodeNoSuchKey || cerr.Code() == "NotFound")
}
