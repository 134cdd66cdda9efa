package photohost

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/maukemana/lumalens/internal/apperr"
)

// S3OriginalsMirrorConfig configures the optional object-storage mirror of
// originals fetched from the photo host.
type S3OriginalsMirrorConfig struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURLBase   string
}

// S3OriginalsMirror keeps an optional copy of fetched originals in an
// S3-compatible bucket. Batch processing only writes to it (Put); jobs
// always fetch their bytes from the photo host, never from the mirror.
type S3OriginalsMirror struct {
	client     *s3.Client
	bucketName string
	publicURL  string
}

// NewS3OriginalsMirror builds a mirror client against any S3-compatible
// endpoint derived from cfg.AccountID, in the shape Cloudflare R2 and
// similar providers expose.
func NewS3OriginalsMirror(cfg S3OriginalsMirrorConfig) (*S3OriginalsMirror, error) {
	if cfg.AccountID == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.BucketName == "" {
		return nil, apperr.New(apperr.ConfigMissing, "originals mirror requires accountID, accessKeyID, secretAccessKey and bucketName")
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	client := s3.New(s3.Options{
		Region:       "auto",
		BaseEndpoint: aws.String(endpoint),
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
	})

	return &S3OriginalsMirror{
		client:     client,
		bucketName: cfg.BucketName,
		publicURL:  cfg.PublicURLBase,
	}, nil
}

// Put mirrors fetched original bytes under key.
func (m *S3OriginalsMirror) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return apperr.Wrap(apperr.Upstream503, "put originals mirror object", err)
	}
	return nil
}

// Get reads a previously mirrored original back out, falling back to the
// live photo host on a miss is the caller's responsibility — this client
// only knows about the bucket.
func (m *S3OriginalsMirror) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Upstream503, "get originals mirror object", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.Parse, "read originals mirror object body", err)
	}
	return data, nil
}

// Delete removes a mirrored original. Neither record replacement nor the
// duplicate tools call it.
func (m *S3OriginalsMirror) Delete(ctx context.Context, key string) error {
	_, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(m.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return apperr.Wrap(apperr.Upstream503, "delete originals mirror object", err)
	}
	return nil
}

// PublicURL returns the public URL for a mirrored key, if PublicURLBase
// was configured.
func (m *S3OriginalsMirror) PublicURL(key string) string {
	if m.publicURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s", m.publicURL, key)
}

// PresignPut returns a short-lived presigned URL an operator tool can use
// to upload a replacement original directly to the mirror.
func (m *S3OriginalsMirror) PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	presignClient := s3.NewPresignClient(m.client)
	req, err := presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucketName),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", apperr.Wrap(apperr.Upstream503, "presign originals mirror upload", err)
	}
	return req.URL, nil
}
