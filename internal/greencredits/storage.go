package greencredits

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"greenfin/portal/portal-backend/internal/invoice"
	"greenfin/portal/portal-backend/pkg/storage"
)

const invoiceURLTTL = 15 * time.Minute

// FileStore keeps uploaded invoices and returns a reference for the claim row
type FileStore interface {
	Store(ctx context.Context, userID uuid.UUID, file invoice.File) (string, error)
	// Discard removes a stored invoice after the claim could not be recorded
	Discard(ctx context.Context, ref string) error
	// DownloadURL returns "" for references the store cannot serve
	DownloadURL(ctx context.Context, ref string) (string, error)
}

func uploadReference(name string) string {
	return "uploaded:" + name
}

// ReferenceFileStore records only the file name. Used when no bucket is set.
type ReferenceFileStore struct{}

func (ReferenceFileStore) Store(_ context.Context, _ uuid.UUID, file invoice.File) (string, error) {
	return uploadReference(file.Name), nil
}

func (ReferenceFileStore) Discard(context.Context, string) error { return nil }

func (ReferenceFileStore) DownloadURL(context.Context, string) (string, error) { return "", nil }

// S3FileStore uploads invoices to s3://<bucket>/<prefix>/<user>/<id>-<name>
type S3FileStore struct {
	client storage.S3Client
	bucket string
	prefix string
	ttl    time.Duration
}

func NewS3FileStore(client storage.S3Client, bucket, prefix string) *S3FileStore {
	return &S3FileStore{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		ttl:    invoiceURLTTL,
	}
}

func (s *S3FileStore) Key(userID uuid.UUID, objectID uuid.UUID, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		name = "invoice.pdf"
	}
	return path.Join(s.prefix, userID.String(), objectID.String()+"-"+name)
}

func (s *S3FileStore) Store(ctx context.Context, userID uuid.UUID, file invoice.File) (string, error) {
	key := s.Key(userID, uuid.New(), file.Name)
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	if err := s.client.Upload(ctx, s.bucket, key, contentType, bytes.NewReader(file.Data)); err != nil {
		return "", fmt.Errorf("failed to store invoice: %w", err)
	}
	return s.reference(key), nil
}

func (s *S3FileStore) Discard(ctx context.Context, ref string) error {
	key, ok := s.keyOf(ref)
	if !ok {
		return nil
	}
	if err := s.client.Delete(ctx, s.bucket, key); err != nil {
		return fmt.Errorf("failed to discard invoice: %w", err)
	}
	return nil
}

func (s *S3FileStore) DownloadURL(ctx context.Context, ref string) (string, error) {
	key, ok := s.keyOf(ref)
	if !ok {
		return "", nil
	}
	url, err := s.client.GetPresignedURL(ctx, s.bucket, key, s.ttl)
	if err != nil {
		return "", fmt.Errorf("failed to sign invoice url: %w", err)
	}
	return url, nil
}

func (s *S3FileStore) reference(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}

// keyOf accepts only references into this store's bucket
func (s *S3FileStore) keyOf(ref string) (string, bool) {
	key, ok := strings.CutPrefix(ref, "s3://"+s.bucket+"/")
	if !ok || key == "" {
		return "", false
	}
	return key, true
}
