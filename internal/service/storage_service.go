package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/resumekit/resumekit/internal/observability"
)

const (
	maxPhotoSize    = 5 * 1024 * 1024
	presignedURLTTL = 15 * time.Minute
	photoPathPrefix = "photos"
)

var (
	ErrFileTooBig           = errors.New("file size exceeds 5MB limit")
	ErrInvalidFileType      = errors.New("invalid file type, only JPEG and PNG images are allowed")
	ErrBucketCreationFailed = errors.New("failed to create storage bucket")
	ErrUploadFailed         = errors.New("failed to upload file")
	ErrDeleteFailed         = errors.New("failed to delete file")
	ErrURLGenerationFailed  = errors.New("failed to generate presigned URL")
	ErrUnauthorizedAccess   = errors.New("unauthorized access to resource")
)

// photoExtensions doubles as the allowlist of accepted content types.
var photoExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

// StorageService stores resume photos in an S3-compatible bucket. Object
// keys are namespaced per account and ownership is checked before any
// destructive call.
type StorageService interface {
	UploadPhoto(ctx context.Context, accountID uint, file io.Reader, fileSize int64) (string, error)
	DeletePhoto(ctx context.Context, accountID uint, objectKey string) error
	PhotoURL(ctx context.Context, objectKey string) (string, error)
}

type MinIOStorageService struct {
	client     *minio.Client
	bucketName string
	initOnce   sync.Once
	initErr    error
}

// NewMinIOStorageService builds the client; bucket creation is deferred to
// the first operation so startup never blocks on storage.
func NewMinIOStorageService(endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*MinIOStorageService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinIOStorageService{client: client, bucketName: bucketName}, nil
}

func (s *MinIOStorageService) lazyInit(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucketName)
		if err != nil {
			s.initErr = fmt.Errorf("%w: check bucket existence: %v", ErrBucketCreationFailed, err)
			return
		}
		if exists {
			return
		}
		if err := s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{}); err != nil {
			s.initErr = fmt.Errorf("%w: create bucket: %v", ErrBucketCreationFailed, err)
		}
	})
	return s.initErr
}

// sniffPhotoType reads the first bytes of the stream and detects the content
// type from them, never trusting a client-supplied header. It returns the
// detected type, the file extension, and a reader replaying the full stream.
func sniffPhotoType(file io.Reader) (contentType, extension string, replay io.Reader, err error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", "", nil, fmt.Errorf("%w: read file for content detection: %v", ErrUploadFailed, err)
	}
	head = head[:n]

	contentType = strings.ToLower(strings.TrimSpace(http.DetectContentType(head)))
	extension, ok := photoExtensions[contentType]
	if !ok {
		return "", "", nil, ErrInvalidFileType
	}
	return contentType, extension, io.MultiReader(bytes.NewReader(head), file), nil
}

func (s *MinIOStorageService) UploadPhoto(ctx context.Context, accountID uint, file io.Reader, fileSize int64) (string, error) {
	if fileSize > maxPhotoSize {
		observability.RecordStorageEvent(ctx, "upload", "too_big")
		return "", ErrFileTooBig
	}

	contentType, extension, replay, err := sniffPhotoType(file)
	if err != nil {
		if errors.Is(err, ErrInvalidFileType) {
			observability.RecordStorageEvent(ctx, "upload", "bad_type")
		}
		return "", err
	}

	if err := s.lazyInit(ctx); err != nil {
		return "", err
	}

	objectKey := photoObjectKey(accountID, extension)
	_, err = s.client.PutObject(ctx, s.bucketName, objectKey, replay, fileSize, minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"Account-ID":  fmt.Sprintf("%d", accountID),
			"Uploaded-At": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		observability.RecordStorageEvent(ctx, "upload", "error")
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	observability.RecordStorageEvent(ctx, "upload", "success")
	return objectKey, nil
}

func (s *MinIOStorageService) DeletePhoto(ctx context.Context, accountID uint, objectKey string) error {
	if strings.TrimSpace(objectKey) == "" {
		return nil
	}
	if !keyOwnedByAccount(objectKey, accountID) {
		observability.RecordStorageEvent(ctx, "delete", "foreign_key")
		return ErrUnauthorizedAccess
	}

	if err := s.lazyInit(ctx); err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucketName, objectKey, minio.RemoveObjectOptions{}); err != nil {
		observability.RecordStorageEvent(ctx, "delete", "error")
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	observability.RecordStorageEvent(ctx, "delete", "success")
	return nil
}

func (s *MinIOStorageService) PhotoURL(ctx context.Context, objectKey string) (string, error) {
	if strings.TrimSpace(objectKey) == "" {
		return "", fmt.Errorf("%w: empty object key", ErrURLGenerationFailed)
	}
	if err := s.lazyInit(ctx); err != nil {
		return "", err
	}
	presigned, err := s.client.PresignedGetObject(ctx, s.bucketName, objectKey, presignedURLTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrURLGenerationFailed, err)
	}
	return presigned.String(), nil
}

func photoObjectKey(accountID uint, extension string) string {
	return fmt.Sprintf("%s/account-%d/%s%s", photoPathPrefix, accountID, uuid.New().String(), extension)
}

func keyOwnedByAccount(objectKey string, accountID uint) bool {
	if strings.Contains(objectKey, "..") {
		return false
	}
	return strings.HasPrefix(objectKey, fmt.Sprintf("%s/account-%d/", photoPathPrefix, accountID))
}
