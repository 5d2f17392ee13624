package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/heppoko-wizard/web-collections/internal/errs"
)

// S3API is the narrow subset of the S3 client the backend needs.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 stores the encrypted snapshot as a single object under a fixed key.
type S3 struct {
	api    S3API
	bucket string
	key    string
	region string
	log    *zap.Logger
}

// S3Option configures an S3 backend.
type S3Option func(*S3)

// WithS3Client injects a pre-built client (tests, custom endpoints).
func WithS3Client(api S3API) S3Option {
	return func(s *S3) { s.api = api }
}

// NewS3 constructs the S3 backend. prefix may be empty; the object key is
// always the Drive sync filename so all blob backends share one artifact
// name.
func NewS3(bucket, prefix, region string, log *zap.Logger, opts ...S3Option) *S3 {
	s := &S3{
		bucket: bucket,
		key:    path.Join(prefix, DriveSyncFilename),
		region: region,
		log:    log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Backend.
func (s *S3) Name() string { return "s3" }

// Encrypted implements Backend; like Drive, the object carries an
// EncryptedPayload.
func (s *S3) Encrypted() bool { return true }

// Authenticate resolves AWS credentials from the default provider chain
// and builds the client. Credential resolution failure surfaces as
// ErrAuthentication.
func (s *S3) Authenticate(ctx context.Context) (Credential, error) {
	if s.api != nil {
		return s.api, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s.region))
	if err != nil {
		return nil, errs.NewBackend(s.Name(), "authenticate", fmt.Errorf("%w: %v", errs.ErrAuthentication, err))
	}
	if _, err := cfg.Credentials.Retrieve(ctx); err != nil {
		return nil, errs.NewBackend(s.Name(), "authenticate", fmt.Errorf("%w: %v", errs.ErrAuthentication, err))
	}
	s.api = s3.NewFromConfig(cfg)
	return s.api, nil
}

// Push overwrites the sync object with payload.
func (s *S3) Push(ctx context.Context, cred Credential, payload []byte) error {
	api, err := s.client(cred, "push")
	if err != nil {
		return err
	}
	_, err = api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return errs.NewBackend(s.Name(), "push", fmt.Errorf("%w: %v", errs.ErrNetwork, err))
	}
	s.log.Info("s3 push complete", zap.String("bucket", s.bucket), zap.String("key", s.key))
	return nil
}

// Pull downloads the sync object, or reports absence when the key does
// not exist.
func (s *S3) Pull(ctx context.Context, cred Credential) ([]byte, bool, error) {
	api, err := s.client(cred, "pull")
	if err != nil {
		return nil, false, err
	}
	out, err := api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, false, nil
		}
		return nil, false, errs.NewBackend(s.Name(), "pull", fmt.Errorf("%w: %v", errs.ErrNetwork, err))
	}
	defer out.Body.Close()
	payload, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, errs.NewBackend(s.Name(), "pull", fmt.Errorf("%w: %v", errs.ErrNetwork, err))
	}
	return payload, true, nil
}

func (s *S3) client(cred Credential, op string) (S3API, error) {
	api, ok := cred.(S3API)
	if !ok || api == nil {
		return nil, errs.NewBackend(s.Name(), op, fmt.Errorf("%w: invalid credential", errs.ErrAuthentication))
	}
	return api, nil
}
