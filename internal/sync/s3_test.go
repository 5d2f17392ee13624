package sync_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/heppoko-wizard/web-collections/internal/errs"
	syncer "github.com/heppoko-wizard/web-collections/internal/sync"
)

// fakeS3 keeps objects in a map keyed by bucket/key.
type fakeS3 struct {
	objects map[string][]byte
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}}
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*params.Bucket+"/"+*params.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[*params.Bucket+"/"+*params.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(body)))}, nil
}

func TestS3_AuthenticateWithInjectedClient(t *testing.T) {
	api := newFakeS3()
	s := syncer.NewS3("bucket", "", "eu-west-1", zap.NewNop(), syncer.WithS3Client(api))

	cred, err := s.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, syncer.S3API(api), cred)
}

func TestS3_PushPullRoundTrip(t *testing.T) {
	ctx := context.Background()
	api := newFakeS3()
	s := syncer.NewS3("bucket", "backups", "eu-west-1", zap.NewNop(), syncer.WithS3Client(api))

	require.NoError(t, s.Push(ctx, syncer.S3API(api), []byte("ciphertext")))

	// objects live under prefix/filename
	assert.Contains(t, api.objects, "bucket/backups/"+syncer.DriveSyncFilename)

	got, ok, err := s.Pull(ctx, syncer.S3API(api))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("ciphertext"), got)
}

func TestS3_PullAbsentKey(t *testing.T) {
	api := newFakeS3()
	s := syncer.NewS3("bucket", "", "eu-west-1", zap.NewNop(), syncer.WithS3Client(api))

	got, ok, err := s.Pull(context.Background(), syncer.S3API(api))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestS3_PushFailureIsNetworkError(t *testing.T) {
	api := newFakeS3()
	api.putErr = errors.New("dial tcp: connection refused")
	s := syncer.NewS3("bucket", "", "eu-west-1", zap.NewNop(), syncer.WithS3Client(api))

	err := s.Push(context.Background(), syncer.S3API(api), []byte("x"))
	assert.True(t, errors.Is(err, errs.ErrNetwork))
}

func TestS3_InvalidCredential(t *testing.T) {
	s := syncer.NewS3("bucket", "", "eu-west-1", zap.NewNop())

	err := s.Push(context.Background(), "nope", []byte("x"))
	assert.True(t, errors.Is(err, errs.ErrAuthentication))
}
