// Package archive stores version-history bundles in S3-compatible object
// storage. Deleting a resume keeps a full JSON copy of it and every snapshot
// so support can recover data the retention sweep or the user removed.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Bundle is the archived payload: the resume plus all of its snapshots.
type Bundle struct {
	ResumeID   string            `json:"resumeId"`
	OwnerID    string            `json:"ownerId"`
	Title      string            `json:"title"`
	TemplateID string            `json:"templateId,omitempty"`
	Content    json.RawMessage   `json:"content"`
	Versions   []VersionSnapshot `json:"versions"`
	ArchivedAt time.Time         `json:"archivedAt"`
	Reason     string            `json:"reason"`
}

// VersionSnapshot is one archived version entry.
type VersionSnapshot struct {
	ID            string          `json:"id"`
	Seq           int             `json:"seq"`
	Name          string          `json:"name"`
	Content       json.RawMessage `json:"content"`
	ChangeSummary string          `json:"changeSummary,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Config holds the object storage connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Service uploads archive bundles. It is optional: when object storage is
// not configured the app runs without it.
type Service struct {
	client *minio.Client
	bucket string
}

// New connects to object storage and ensures the archive bucket exists.
func New(ctx context.Context, cfg Config) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object storage: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &Service{client: client, bucket: cfg.Bucket}, nil
}

// ArchiveResume uploads a bundle and returns the object key.
func (s *Service) ArchiveResume(ctx context.Context, bundle Bundle) (string, error) {
	if bundle.ArchivedAt.IsZero() {
		bundle.ArchivedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode archive bundle: %w", err)
	}

	key := objectKey(bundle.OwnerID, bundle.ResumeID, bundle.ArchivedAt)
	_, err = s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("upload archive %s: %w", key, err)
	}

	return key, nil
}

// FetchBundle downloads a previously archived bundle by key.
func (s *Service) FetchBundle(ctx context.Context, key string) (Bundle, error) {
	var bundle Bundle

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return bundle, fmt.Errorf("fetch archive %s: %w", key, err)
	}
	defer obj.Close()

	if err := json.NewDecoder(obj).Decode(&bundle); err != nil {
		return bundle, fmt.Errorf("decode archive %s: %w", key, err)
	}
	return bundle, nil
}

// ListKeys returns the archive object keys for one owner, newest key last.
func (s *Service) ListKeys(ctx context.Context, ownerID string) ([]string, error) {
	prefix := fmt.Sprintf("resumes/%s/", ownerID)

	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list archives: %w", obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func objectKey(ownerID, resumeID string, at time.Time) string {
	return fmt.Sprintf("resumes/%s/%s/%s.json", ownerID, resumeID, at.Format("20060102T150405Z"))
}
