package blob

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// MinioConfig holds object store connection settings.
type MinioConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	Region       string
	Bucket       string
	UploadExpiry time.Duration
	ResultExpiry time.Duration
}

// MinioStore implements Store against an S3-compatible object store.
type MinioStore struct {
	client       *minio.Client
	bucket       string
	uploadExpiry time.Duration
	resultExpiry time.Duration
	logger       zerolog.Logger
}

// NewMinioStore creates a Store backed by MinIO or any S3-compatible service.
func NewMinioStore(cfg MinioConfig, logger zerolog.Logger) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	uploadExpiry := cfg.UploadExpiry
	if uploadExpiry <= 0 {
		uploadExpiry = time.Hour
	}
	resultExpiry := cfg.ResultExpiry
	if resultExpiry <= 0 {
		resultExpiry = 48 * time.Hour
	}

	return &MinioStore{
		client:       client,
		bucket:       cfg.Bucket,
		uploadExpiry: uploadExpiry,
		resultExpiry: resultExpiry,
		logger:       logger,
	}, nil
}

// IssueWriteCredential presigns a PUT for one object key. The Content-Type
// header is folded into the signature, so the upload must carry the declared
// type verbatim.
func (s *MinioStore) IssueWriteCredential(ctx context.Context, key, contentType string) (*Credential, error) {
	headers := http.Header{}
	headers.Set("Content-Type", contentType)

	u, err := s.client.PresignHeader(ctx, http.MethodPut, s.bucket, key, s.uploadExpiry, url.Values{}, headers)
	if err != nil {
		return nil, fmt.Errorf("%w: presign put %s: %v", ErrUnavailable, key, err)
	}

	s.logger.Debug().Str("key", key).Dur("expiry", s.uploadExpiry).Msg("issued write credential")
	return &Credential{
		URL:       u.String(),
		ExpiresAt: time.Now().Add(s.uploadExpiry),
	}, nil
}

// IssueReadCredential presigns a GET for an existing object.
func (s *MinioStore) IssueReadCredential(ctx context.Context, key string) (*Credential, error) {
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("%w: stat %s: %v", ErrUnavailable, key, err)
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.resultExpiry, url.Values{})
	if err != nil {
		return nil, fmt.Errorf("%w: presign get %s: %v", ErrUnavailable, key, err)
	}

	return &Credential{
		URL:       u.String(),
		ExpiresAt: time.Now().Add(s.resultExpiry),
	}, nil
}

// Download copies the object at key to localPath.
func (s *MinioStore) Download(ctx context.Context, key, localPath string) error {
	if err := s.client.FGetObject(ctx, s.bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return fmt.Errorf("%w: get %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Upload stores the file at localPath under key.
func (s *MinioStore) Upload(ctx context.Context, key, localPath, contentType string) error {
	_, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Location renders the stored location string for key.
func (s *MinioStore) Location(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}
