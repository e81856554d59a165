package approval

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/frahmantamala/atelier/internal"
	"github.com/google/uuid"
)

type PutObjectPresigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3ProofStore hands out presigned PUT URLs so proof files go straight to
// the bucket.
type S3ProofStore struct {
	presigner PutObjectPresigner
	bucket    string
	prefix    string
	endpoint  string
	region    string
	expiry    time.Duration
	now       func() time.Time
}

func NewS3ProofStore(presigner PutObjectPresigner, cfg internal.StorageConfig) *S3ProofStore {
	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &S3ProofStore{
		presigner: presigner,
		bucket:    cfg.Bucket,
		prefix:    strings.Trim(cfg.ProofPrefix, "/"),
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		region:    cfg.Region,
		expiry:    expiry,
		now:       time.Now,
	}
}

func (s *S3ProofStore) PresignUpload(ctx context.Context, userID int64, filename, contentType string) (*ProofUpload, error) {
	key := s.objectKey(userID, filename)

	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.expiry
	})
	if err != nil {
		return nil, fmt.Errorf("failed to presign proof upload: %w", err)
	}

	return &ProofUpload{
		UploadURL: req.URL,
		Method:    req.Method,
		Key:       key,
		ProofURL:  s.objectURL(key),
		ExpiresAt: s.now().Add(s.expiry).UTC(),
	}, nil
}

func (s *S3ProofStore) objectKey(userID int64, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return path.Join(s.prefix, fmt.Sprintf("%d", userID), uuid.New().String()+ext)
}

func (s *S3ProofStore) objectURL(key string) string {
	if s.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key)
	}
	if s.region != "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
}
