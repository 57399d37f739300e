package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/votegate/internal/config"
)

// EvidenceStore keeps the raw captures of rejected attempts for later audit.
type EvidenceStore struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewEvidenceStore(cfg config.MinIOConfig, prefix string) (*EvidenceStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &EvidenceStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *EvidenceStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// SaveRejected uploads a rejected capture and returns its object key.
func (s *EvidenceStore) SaveRejected(ctx context.Context, electionID, voterID uuid.UUID, reason string, image []byte, at time.Time) (string, error) {
	key := EvidenceKey(s.prefix, electionID, voterID, reason, at)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(image), int64(len(image)), minio.PutObjectOptions{
		ContentType: http.DetectContentType(image),
		UserMetadata: map[string]string{
			"reason": reason,
		},
	})
	if err != nil {
		return "", fmt.Errorf("put evidence %s: %w", key, err)
	}
	return key, nil
}

// ListEvidence returns the evidence keys recorded for one voter in one election.
func (s *EvidenceStore) ListEvidence(ctx context.Context, electionID, voterID uuid.UUID) ([]string, error) {
	prefix := path.Join(s.prefix, electionID.String(), voterID.String()) + "/"
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list evidence %s: %w", prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// Ping checks MinIO connectivity.
func (s *EvidenceStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

// EvidenceKey lays keys out as <prefix>/<election>/<voter>/<unix-nanos>_<reason>.
func EvidenceKey(prefix string, electionID, voterID uuid.UUID, reason string, at time.Time) string {
	return path.Join(prefix, electionID.String(), voterID.String(),
		fmt.Sprintf("%d_%s", at.UTC().UnixNano(), reason))
}
